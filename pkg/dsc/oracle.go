package dsc

import (
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/luxfi/log"
)

// OracleAdapter is the single gateway between the engine and external price
// sources. It owns the registered asset set, normalizes every price to the
// internal 18-decimal precision and rejects stale, clamped or
// sequencer-compromised readings. Rejections surface as distinct error
// kinds; there is no fallback price, ever.
type OracleAdapter struct {
	mu        sync.RWMutex
	assets    map[string]*AssetConfig
	sequencer SequencerSource
	grace     time.Duration
	logger    log.Logger
	now       func() time.Time
}

// NewOracleAdapter creates an adapter. sequencer may be nil on deployments
// without an ordering-layer liveness signal.
func NewOracleAdapter(logger log.Logger, sequencer SequencerSource, grace time.Duration) *OracleAdapter {
	return &OracleAdapter{
		assets:    make(map[string]*AssetConfig),
		sequencer: sequencer,
		grace:     grace,
		logger:    logger,
		now:       time.Now,
	}
}

// RegisterAsset admits a collateral asset. The asset set is keyed by
// symbol, so a double registration fails instead of double-counting
// valuations.
func (o *OracleAdapter) RegisterAsset(cfg AssetConfig) error {
	if cfg.Symbol == "" {
		return fmt.Errorf("%w: empty symbol", ErrUnknownAsset)
	}
	if cfg.Feed == nil {
		return fmt.Errorf("asset %s: nil price feed", cfg.Symbol)
	}
	if cfg.Token == nil {
		return fmt.Errorf("asset %s: nil token ledger", cfg.Symbol)
	}
	if cfg.OracleDecimals > PrecisionDecimals {
		return fmt.Errorf("asset %s: oracle decimals %d exceed internal precision", cfg.Symbol, cfg.OracleDecimals)
	}
	if cfg.StaleAfter <= 0 {
		return fmt.Errorf("asset %s: non-positive staleness window", cfg.Symbol)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if _, exists := o.assets[cfg.Symbol]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateAsset, cfg.Symbol)
	}

	stored := cfg
	o.assets[cfg.Symbol] = &stored
	o.logger.Info("registered collateral asset",
		"symbol", cfg.Symbol,
		"decimals", cfg.Decimals,
		"oracleDecimals", cfg.OracleDecimals,
		"staleAfter", cfg.StaleAfter)
	return nil
}

// Asset returns the configuration of a registered asset.
func (o *OracleAdapter) Asset(symbol string) (*AssetConfig, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	cfg, exists := o.assets[symbol]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAsset, symbol)
	}
	return cfg, nil
}

// Assets returns the registered symbols.
func (o *OracleAdapter) Assets() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()

	symbols := make([]string, 0, len(o.assets))
	for symbol := range o.assets {
		symbols = append(symbols, symbol)
	}
	return symbols
}

// GetPrice reads a fresh quote for the asset, enforcing sequencer liveness,
// staleness and price bounds. Every violation aborts the read with its own
// error kind.
func (o *OracleAdapter) GetPrice(symbol string) (PriceQuote, error) {
	cfg, err := o.Asset(symbol)
	if err != nil {
		return PriceQuote{}, err
	}

	if err := o.checkSequencer(); err != nil {
		return PriceQuote{}, err
	}

	quote, err := cfg.Feed.LatestQuote(symbol)
	if err != nil {
		return PriceQuote{}, fmt.Errorf("feed read for %s: %w", symbol, err)
	}
	if quote.Price == nil || quote.Price.Sign() <= 0 {
		return PriceQuote{}, fmt.Errorf("%w: %s non-positive price", ErrPriceOutOfBounds, symbol)
	}

	if age := o.now().Sub(quote.Timestamp); age > cfg.StaleAfter {
		return PriceQuote{}, fmt.Errorf("%w: %s quote is %s old, limit %s",
			ErrStalePrice, symbol, age.Truncate(time.Second), cfg.StaleAfter)
	}

	if cfg.MinPrice != nil && cfg.MinPrice.Sign() > 0 && quote.Price.Cmp(cfg.MinPrice) <= 0 {
		return PriceQuote{}, fmt.Errorf("%w: %s at or below floor", ErrPriceOutOfBounds, symbol)
	}
	if cfg.MaxPrice != nil && cfg.MaxPrice.Sign() > 0 && quote.Price.Cmp(cfg.MaxPrice) >= 0 {
		return PriceQuote{}, fmt.Errorf("%w: %s at or above ceiling", ErrPriceOutOfBounds, symbol)
	}

	return quote, nil
}

// checkSequencer refuses reads while the sequencer is down and for the
// configured grace period after it reports recovery.
func (o *OracleAdapter) checkSequencer() error {
	if o.sequencer == nil {
		return nil
	}
	up, since := o.sequencer.Status()
	if !up {
		return fmt.Errorf("%w: sequencer down since %s", ErrSequencerUnavailable, since.UTC().Format(time.RFC3339))
	}
	if recovered := o.now().Sub(since); recovered < o.grace {
		return fmt.Errorf("%w: %s into %s recovery grace period",
			ErrSequencerUnavailable, recovered.Truncate(time.Second), o.grace)
	}
	return nil
}

// NormalizedPrice returns the current price scaled to 18 decimals:
// raw * 10^(18 - oracleDecimals).
func (o *OracleAdapter) NormalizedPrice(symbol string) (*big.Int, error) {
	cfg, err := o.Asset(symbol)
	if err != nil {
		return nil, err
	}
	quote, err := o.GetPrice(symbol)
	if err != nil {
		return nil, err
	}
	scale := pow10(PrecisionDecimals - cfg.OracleDecimals)
	return new(big.Int).Mul(quote.Price, scale), nil
}

// ValueInUSD values amount (asset smallest units) at the current price,
// returning 1e18 fixed-point USD.
func (o *OracleAdapter) ValueInUSD(symbol string, amount *big.Int) (*big.Int, error) {
	cfg, err := o.Asset(symbol)
	if err != nil {
		return nil, err
	}
	price, err := o.NormalizedPrice(symbol)
	if err != nil {
		return nil, err
	}
	value := new(big.Int).Mul(price, amount)
	return value.Quo(value, pow10(cfg.Decimals)), nil
}

// TokenAmountFromUSD converts a 1e18 fixed-point USD amount into the
// asset's smallest units at the current price. The result uses the asset's
// own decimal count, not the internal 18.
func (o *OracleAdapter) TokenAmountFromUSD(symbol string, usd *big.Int) (*big.Int, error) {
	cfg, err := o.Asset(symbol)
	if err != nil {
		return nil, err
	}
	price, err := o.NormalizedPrice(symbol)
	if err != nil {
		return nil, err
	}
	amount := new(big.Int).Mul(usd, pow10(cfg.Decimals))
	return amount.Quo(amount, price), nil
}
