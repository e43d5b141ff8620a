// Package oracle defines the price-feed collaborator. Prices are unit
// prices in 8-decimal price units (e.g. 600000000 = $6.00). A missing
// price is a hard failure of any operation depending on it.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
)

// PriceScale is the decimal scale of oracle prices.
const PriceScale int32 = 8

// ErrUnavailable is returned when no price is known for an asset.
var ErrUnavailable = errors.New("oracle: price unavailable")

// Oracle resolves a unit price for an asset.
type Oracle interface {
	PriceOf(ctx context.Context, asset string) (decimal.Decimal, error)
}

// Static serves prices from an in-memory table. Pool-implied pricing for
// the protocol asset and external feeds for the native asset are both
// modeled as entries set by the host process.
type Static struct {
	mu     sync.RWMutex
	prices map[string]decimal.Decimal
}

// NewStatic creates an empty static oracle.
func NewStatic() *Static {
	return &Static{prices: make(map[string]decimal.Decimal)}
}

// SetPrice installs or replaces the unit price for an asset.
func (o *Static) SetPrice(asset string, price decimal.Decimal) {
	o.mu.Lock()
	o.prices[asset] = price
	o.mu.Unlock()
}

func (o *Static) PriceOf(_ context.Context, asset string) (decimal.Decimal, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	price, ok := o.prices[asset]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrUnavailable, asset)
	}
	return price, nil
}
