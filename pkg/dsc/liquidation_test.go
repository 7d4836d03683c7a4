package dsc

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// underwater returns a fixture where alice holds 10 units against $100,000
// of debt and the price has dropped to $15,000, a 0.75 health factor.
func underwater(t *testing.T) *fixture {
	t.Helper()
	f := newFixture(t, DefaultEngineConfig())
	require.NoError(t, f.engine.DepositCollateralAndMint("alice", "WBTC", sats(10), usd(100_000)))
	f.setPrice(1_500_000_000_000)

	// The liquidator funds repayments from their own DSC.
	f.wbtc.SetBalance("liquidator", sats(20))
	require.NoError(t, f.engine.DepositCollateralAndMint("liquidator", "WBTC", sats(20), usd(60_000)))
	return f
}

func TestLiquidateSafeTarget(t *testing.T) {
	f := newFixture(t, DefaultEngineConfig())
	require.NoError(t, f.engine.DepositCollateralAndMint("alice", "WBTC", sats(10), usd(100_000)))

	_, err := f.engine.Liquidate("liquidator", "alice", "WBTC", usd(10_000))
	assert.ErrorIs(t, err, ErrHealthFactorOk)
}

func TestLiquidatePartial(t *testing.T) {
	f := underwater(t)

	res, err := f.engine.Liquidate("liquidator", "alice", "WBTC", usd(50_000))
	require.NoError(t, err)

	// $50,000 at $15,000 is 333333333 smallest units, plus the 10% bonus.
	assert.Equal(t, 0, res.Seized.Cmp(big.NewInt(366_666_666)))
	assert.False(t, res.Clamped)
	assert.Equal(t, uint64(1000), res.BonusApplied)
	assert.Equal(t, 1, res.EndingHF.Cmp(res.StartingHF))

	assert.Equal(t, 0, f.engine.DebtOf("alice").Cmp(usd(50_000)))
	assert.Equal(t, 0, f.wbtc.BalanceOf("liquidator").Cmp(big.NewInt(366_666_666)))
	assert.Equal(t, 0, f.stable.BalanceOf("liquidator").Cmp(usd(10_000)))
	assert.Equal(t, 0, f.ledger.Position("alice", "WBTC").Cmp(big.NewInt(633_333_334)))
}

func TestLiquidateMoreThanDebt(t *testing.T) {
	f := underwater(t)

	_, err := f.engine.Liquidate("liquidator", "alice", "WBTC", usd(100_001))
	assert.ErrorIs(t, err, ErrInsufficientDebt)
}

func TestLiquidateZeroAmount(t *testing.T) {
	f := underwater(t)

	_, err := f.engine.Liquidate("liquidator", "alice", "WBTC", big.NewInt(0))
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestLiquidateSeizureClamped(t *testing.T) {
	f := newFixture(t, DefaultEngineConfig())
	require.NoError(t, f.engine.DepositCollateralAndMint("alice", "WBTC", sats(10), usd(100_000)))

	// At $10,500 the position is worth $105,000 against $100,000 of debt:
	// inside the band where debt plus bonus exceeds the collateral. The
	// seizure clamps to the whole position so the account still clears.
	f.setPrice(1_050_000_000_000)

	f.wbtc.SetBalance("liquidator", sats(40))
	require.NoError(t, f.engine.DepositCollateralAndMint("liquidator", "WBTC", sats(40), usd(100_000)))

	res, err := f.engine.Liquidate("liquidator", "alice", "WBTC", usd(100_000))
	require.NoError(t, err)

	assert.True(t, res.Clamped)
	assert.Equal(t, 0, res.Seized.Cmp(sats(10)))
	assert.Equal(t, 0, f.engine.DebtOf("alice").Sign())
	assert.Equal(t, 0, f.ledger.Position("alice", "WBTC").Sign())
	assert.Equal(t, 0, res.EndingHF.Cmp(MaxHealthFactor))
}

func TestLiquidateNotImprovedRollsBack(t *testing.T) {
	f := newFixture(t, DefaultEngineConfig())

	// A 90% bonus on this asset drains collateral value faster than debt,
	// so a partial liquidation leaves the target worse off.
	greedy := NewSimpleToken("GRD")
	greedy.SetBalance("alice", sats(100))
	greedy.SetBalance("liquidator", sats(100))
	require.NoError(t, f.engine.RegisterAsset(AssetConfig{
		Symbol:         "GRD",
		Token:          greedy,
		Feed:           f.feed,
		Decimals:       8,
		OracleDecimals: 8,
		StaleAfter:     3 * time.Hour,
		BonusBps:       9000,
	}))
	f.feed.set("GRD", big.NewInt(3_000_000_000_000), f.now)

	require.NoError(t, f.engine.DepositCollateralAndMint("alice", "GRD", sats(10), usd(100_000)))
	require.NoError(t, f.engine.DepositCollateralAndMint("liquidator", "GRD", sats(100), usd(100_000)))
	f.feed.set("GRD", big.NewInt(1_500_000_000_000), f.now)

	_, err := f.engine.Liquidate("liquidator", "alice", "GRD", usd(10_000))
	assert.ErrorIs(t, err, ErrHealthFactorNotImproved)

	// Everything rolled back.
	assert.Equal(t, 0, f.engine.DebtOf("alice").Cmp(usd(100_000)))
	assert.Equal(t, 0, f.ledger.Position("alice", "GRD").Cmp(sats(10)))
	assert.Equal(t, 0, f.engine.DebtOf("liquidator").Cmp(usd(100_000)))
	assert.Equal(t, 0, f.stable.BalanceOf("liquidator").Cmp(usd(100_000)))
	assert.Equal(t, 0, greedy.BalanceOf("liquidator").Sign())
}

func TestLiquidatePerAssetBonus(t *testing.T) {
	f := newFixture(t, DefaultEngineConfig())

	modest := NewSimpleToken("MDT")
	modest.SetBalance("alice", sats(100))
	require.NoError(t, f.engine.RegisterAsset(AssetConfig{
		Symbol:         "MDT",
		Token:          modest,
		Feed:           f.feed,
		Decimals:       8,
		OracleDecimals: 8,
		StaleAfter:     3 * time.Hour,
		BonusBps:       500,
	}))
	f.feed.set("MDT", big.NewInt(3_000_000_000_000), f.now)

	require.NoError(t, f.engine.DepositCollateralAndMint("alice", "MDT", sats(10), usd(100_000)))
	f.feed.set("MDT", big.NewInt(1_500_000_000_000), f.now)

	f.wbtc.SetBalance("liquidator", sats(20))
	require.NoError(t, f.engine.DepositCollateralAndMint("liquidator", "WBTC", sats(20), usd(60_000)))

	res, err := f.engine.Liquidate("liquidator", "alice", "MDT", usd(50_000))
	require.NoError(t, err)

	// 5% override instead of the engine's 10% default.
	assert.Equal(t, uint64(500), res.BonusApplied)
	assert.Equal(t, 0, res.Seized.Cmp(big.NewInt(349_999_999)))
}

func TestLiquidateNoCollateralInAsset(t *testing.T) {
	f := underwater(t)

	other := NewSimpleToken("OTH")
	require.NoError(t, f.engine.RegisterAsset(AssetConfig{
		Symbol:         "OTH",
		Token:          other,
		Feed:           f.feed,
		Decimals:       8,
		OracleDecimals: 8,
		StaleAfter:     3 * time.Hour,
	}))
	f.feed.set("OTH", big.NewInt(1_500_000_000_000), f.now)

	_, err := f.engine.Liquidate("liquidator", "alice", "OTH", usd(10_000))
	assert.ErrorIs(t, err, ErrInsufficientCollateral)
}

func TestLiquidateRecomputesEligibility(t *testing.T) {
	f := underwater(t)

	// A first partial liquidation leaves the target below the line; a
	// second one must still be allowed from the fresh state.
	_, err := f.engine.Liquidate("liquidator", "alice", "WBTC", usd(30_000))
	require.NoError(t, err)

	hf, err := f.engine.HealthFactorOf("alice")
	require.NoError(t, err)
	require.True(t, hf.Cmp(PrecisionUnit) < 0)

	_, err = f.engine.Liquidate("liquidator", "alice", "WBTC", usd(20_000))
	assert.NoError(t, err)
}
