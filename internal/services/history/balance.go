// Package history reconstructs past balances from the current snapshot and the ledger.
package history

import (
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/cointax/internal/domain"
)

// Valuation balance of one asset at a past time.
type Valuation struct {
	Asset domain.Asset `json:"asset"`
	At    time.Time    `json:"at"`
	// Quantity holdings in whole coins.
	Quantity decimal.Decimal `json:"quantity"`
	// Price USD price of the calendar date of At.
	Price decimal.Decimal `json:"price"`
	Fiat  decimal.Decimal `json:"fiat"`
	// Peeled number of entries undone.
	Peeled int `json:"peeled"`
	// Insufficient the reconstructed quantity went negative, the ledger does not reach back far enough.
	Insufficient bool `json:"insufficient"`
}

// QuantityAt undoes every entry of the asset newer than at against the current holdings. The order of entries
// does not matter, only their time relative to at. The result is in base units and is not clamped.
func QuantityAt(asset domain.Asset, at time.Time, snap domain.Snapshot, entries []domain.LedgerEntry) (decimal.Decimal, int) {
	balance := snap.Get(asset).BaseUnits
	peeled := 0

	for _, e := range entries {
		if e.Asset != asset || !e.Time.After(at) {
			continue
		}
		// IN entries grew the balance after at, OUT entries shrank it
		balance = balance.Sub(asset.ToBase(e.Signed()))
		peeled++
	}

	return balance, peeled
}

// BalanceAt returns the fiat value of the asset's holdings at a past time. A missing price for the calendar date of at
// is returned as an error wrapping domain.ErrPriceMissing, never as a zero value.
func BalanceAt(asset domain.Asset, at time.Time, snap domain.Snapshot, entries []domain.LedgerEntry, prices domain.PriceBook) (Valuation, error) {
	if !asset.Valid() {
		return Valuation{}, errors.Wrapf(domain.ErrUnknownAsset, "%q", asset)
	}

	base, peeled := QuantityAt(asset, at, snap, entries)
	quantity := asset.ToNatural(base)

	v := Valuation{
		Asset:        asset,
		At:           at,
		Quantity:     quantity,
		Peeled:       peeled,
		Insufficient: quantity.IsNegative(),
	}

	price, err := prices.Price(asset, at)
	if err != nil {
		return v, errors.Wrapf(err, "balance of %s at %s", asset, domain.DateKey(at))
	}

	v.Price = price
	v.Fiat = quantity.Mul(price)

	return v, nil
}
