// Package feed provides price feed sources for the oracle adapter.
package feed

import (
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/luxfi/dsc/pkg/dsc"
)

// StaticFeed is a settable in-process price source for tests and local
// runs. Quotes keep whatever timestamp they were set with, so staleness
// behavior is fully controllable.
type StaticFeed struct {
	mu     sync.RWMutex
	quotes map[string]dsc.PriceQuote
}

// NewStaticFeed creates an empty feed.
func NewStaticFeed() *StaticFeed {
	return &StaticFeed{quotes: make(map[string]dsc.PriceQuote)}
}

// SetQuote stores a quote for a symbol.
func (f *StaticFeed) SetQuote(symbol string, price *big.Int, ts time.Time, round uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.quotes[symbol] = dsc.PriceQuote{
		Symbol:    symbol,
		Price:     new(big.Int).Set(price),
		Timestamp: ts,
		RoundID:   round,
	}
}

// LatestQuote implements dsc.PriceFeed.
func (f *StaticFeed) LatestQuote(symbol string) (dsc.PriceQuote, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	quote, ok := f.quotes[symbol]
	if !ok {
		return dsc.PriceQuote{}, fmt.Errorf("%w: %s", dsc.ErrNoQuote, symbol)
	}
	quote.Price = new(big.Int).Set(quote.Price)
	return quote, nil
}
