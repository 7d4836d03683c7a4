package dsc

import (
	"math/big"
	"time"
)

// Internal fixed-point precision. All USD values, health factors and stable
// token amounts use 18 decimals regardless of an asset's native precision.
const PrecisionDecimals = 18

var (
	// PrecisionUnit is 10^18, the 1.0 of the internal fixed point.
	PrecisionUnit = big.NewInt(1_000_000_000_000_000_000)

	// MaxHealthFactor is the health factor of a user with zero debt. A user
	// with no debt can never be liquidated.
	MaxHealthFactor = new(big.Int).Lsh(big.NewInt(1), 255)

	bpsDenominator = big.NewInt(10_000)
)

// PriceQuote is one reading from a price source, in the oracle's native
// decimals. Quotes are read fresh on every valuation and never cached
// across state changes.
type PriceQuote struct {
	Symbol    string
	Price     *big.Int // raw price, OracleDecimals precision
	Timestamp time.Time
	RoundID   uint64
}

// PriceFeed reads the latest quote for a symbol. Implementations wrap an
// external source (websocket stream, on-chain aggregator, fixture).
type PriceFeed interface {
	LatestQuote(symbol string) (PriceQuote, error)
}

// SequencerSource reports whether the ordering layer is live and since when
// the current status holds. Only meaningful on rollup-style deployments.
type SequencerSource interface {
	Status() (up bool, since time.Time)
}

// AssetConfig describes one admitted collateral asset. Decimals, freshness
// window and price bounds are per-asset configuration, never compiled-in
// constants.
type AssetConfig struct {
	Symbol         string
	Token          FungibleLedger
	Feed           PriceFeed
	Decimals       uint8 // asset's own smallest-unit precision
	OracleDecimals uint8 // precision of the feed's raw price
	StaleAfter     time.Duration
	MinPrice       *big.Int // raw oracle units; quote <= MinPrice rejected
	MaxPrice       *big.Int // raw oracle units; quote >= MaxPrice rejected
	BonusBps       uint64   // per-asset liquidation bonus override, 0 = engine default
}

// MinPositionMode selects where the minimum-position floor is enforced.
type MinPositionMode int

const (
	MinPositionOff MinPositionMode = iota
	MinPositionAtMint
	MinPositionAtDeposit
	MinPositionBoth
)

// EngineConfig carries the engine-wide tunables.
type EngineConfig struct {
	// LiquidationThresholdBps is the usable fraction of collateral face
	// value, in basis points. 5000 means 50% usable, i.e. an effective
	// 200% collateralization requirement.
	LiquidationThresholdBps uint64

	// LiquidationBonusBps is the default liquidator bonus in basis points.
	LiquidationBonusBps uint64

	// MinHealthFactor is the break-even ratio in 1e18 fixed point.
	MinHealthFactor *big.Int

	// MinPositionUSD is the dust floor in 1e18 fixed point USD.
	// Zero disables the policy regardless of mode.
	MinPositionUSD *big.Int

	MinPositionMode MinPositionMode

	// SequencerGrace is how long after a sequencer recovery all price reads
	// keep being refused.
	SequencerGrace time.Duration
}

// DefaultEngineConfig returns the standard 200%-collateralization setup
// with a 10% liquidation bonus and the dust floor disabled.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		LiquidationThresholdBps: 5000,
		LiquidationBonusBps:     1000,
		MinHealthFactor:         new(big.Int).Set(PrecisionUnit),
		MinPositionUSD:          big.NewInt(0),
		MinPositionMode:         MinPositionAtMint,
		SequencerGrace:          time.Hour,
	}
}

// AccountInfo is the point-in-time view of a user's debt and collateral.
type AccountInfo struct {
	User               string
	DebtUSD            *big.Int // outstanding DSC, 1e18
	CollateralValueUSD *big.Int // 1e18
	HealthFactor       *big.Int // 1e18, PrecisionUnit = break-even
}

// pow10 returns 10^n as a big integer.
func pow10(n uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

// ceilDiv returns ceil(a/b) for positive a, b.
func ceilDiv(a, b *big.Int) *big.Int {
	q, r := new(big.Int).QuoRem(a, b, new(big.Int))
	if r.Sign() != 0 {
		q.Add(q, big.NewInt(1))
	}
	return q
}
