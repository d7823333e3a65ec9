package core

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// PricePoint is the last known price of a symbol
type PricePoint struct {
	Price decimal.Decimal
	At    time.Time
}

// PriceCache holds the last price seen per symbol
type PriceCache struct {
	mu     sync.RWMutex
	prices map[string]PricePoint
}

// NewPriceCache creates an empty cache
func NewPriceCache() *PriceCache {
	return &PriceCache{
		prices: make(map[string]PricePoint),
	}
}

// Set overwrites the price for symbol
func (c *PriceCache) Set(symbol string, price decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prices[symbol] = PricePoint{Price: price, At: time.Now()}
}

// Get returns the last price for symbol
func (c *PriceCache) Get(symbol string) (PricePoint, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.prices[symbol]
	return p, ok
}
