package market

import (
	"context"
	"fmt"
	"sync"
	"time"

	"papertrade/internal/cache"
)

// Oracle returns a current reference price for a symbol. The simulation
// engine fills paper orders against this price.
type Oracle interface {
	GetPrice(ctx context.Context, symbol string) (float64, error)
}

// StaticOracle serves prices from an in-memory table. It backs simulation
// environments and tests; SetPrice drives price movement.
type StaticOracle struct {
	prices       map[string]float64
	defaultPrice float64
	mu           sync.RWMutex
}

// NewStaticOracle creates a static oracle seeded with a price table.
// Unknown symbols resolve to defaultPrice.
func NewStaticOracle(prices map[string]float64, defaultPrice float64) *StaticOracle {
	table := make(map[string]float64, len(prices))
	for symbol, price := range prices {
		table[symbol] = price
	}
	return &StaticOracle{
		prices:       table,
		defaultPrice: defaultPrice,
	}
}

// GetPrice implements Oracle
func (o *StaticOracle) GetPrice(ctx context.Context, symbol string) (float64, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	if price, ok := o.prices[symbol]; ok {
		return price, nil
	}
	if o.defaultPrice > 0 {
		return o.defaultPrice, nil
	}
	return 0, fmt.Errorf("no price for symbol %s", symbol)
}

// SetPrice updates the table price for a symbol
func (o *StaticOracle) SetPrice(symbol string, price float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.prices[symbol] = price
}

// CachedOracle decorates an Oracle with a short-lived cache so bursts of
// fills against the same symbol do not hammer the underlying source.
type CachedOracle struct {
	source Oracle
	cache  cache.Cacher
	ttl    time.Duration
}

// NewCachedOracle creates a caching decorator around source
func NewCachedOracle(source Oracle, cacher cache.Cacher, ttl time.Duration) *CachedOracle {
	return &CachedOracle{
		source: source,
		cache:  cacher,
		ttl:    ttl,
	}
}

// GetPrice implements Oracle
func (o *CachedOracle) GetPrice(ctx context.Context, symbol string) (float64, error) {
	key := "price:" + symbol

	var price float64
	if err := o.cache.Get(ctx, key, &price); err == nil {
		return price, nil
	}

	price, err := o.source.GetPrice(ctx, symbol)
	if err != nil {
		return 0, err
	}

	// A failed cache write only costs the next caller a source lookup
	_ = o.cache.Set(ctx, key, price, o.ttl)

	return price, nil
}
