package domain

import (
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// DateLayout calendar date format used to key daily prices.
const DateLayout = "01/02/2006"

// DateKey returns the zero-padded MM/DD/YYYY key of the UTC calendar date of t.
func DateKey(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// ParseDateKey parses a MM/DD/YYYY key into midnight UTC.
func ParseDateKey(key string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, key, time.UTC)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "parse date key %q", key)
	}

	return t, nil
}

// PriceBook daily closing price lookup.
type PriceBook interface {
	// Price returns the USD price of one coin on the calendar date of day.
	Price(asset Asset, day time.Time) (decimal.Decimal, error)
}

// PriceTable in-memory PriceBook keyed by asset and date key.
type PriceTable struct {
	prices map[Asset]map[string]decimal.Decimal
}

// NewPriceTable creates an empty PriceTable.
func NewPriceTable() *PriceTable {
	return &PriceTable{prices: make(map[Asset]map[string]decimal.Decimal)}
}

// Set stores the price for the calendar date of day, replacing any previous value.
func (t *PriceTable) Set(asset Asset, day time.Time, price decimal.Decimal) {
	t.SetKey(asset, DateKey(day), price)
}

// SetKey stores the price under an already formatted date key.
func (t *PriceTable) SetKey(asset Asset, key string, price decimal.Decimal) {
	byDate, ok := t.prices[asset]
	if !ok {
		byDate = make(map[string]decimal.Decimal)
		t.prices[asset] = byDate
	}
	byDate[key] = price
}

// Fill stores the price only when the date has none yet.
func (t *PriceTable) Fill(asset Asset, day time.Time, price decimal.Decimal) bool {
	if t.Has(asset, day) {
		return false
	}
	t.Set(asset, day, price)

	return true
}

// Has reports whether a price is known for the date.
func (t *PriceTable) Has(asset Asset, day time.Time) bool {
	_, ok := t.prices[asset][DateKey(day)]
	return ok
}

// Len number of prices stored for the asset.
func (t *PriceTable) Len(asset Asset) int {
	return len(t.prices[asset])
}

// Keys returns all date keys known for the asset, unordered.
func (t *PriceTable) Keys(asset Asset) []string {
	keys := make([]string, 0, len(t.prices[asset]))
	for k := range t.prices[asset] {
		keys = append(keys, k)
	}

	return keys
}

// Merge copies every price of other into t, replacing existing values.
func (t *PriceTable) Merge(other *PriceTable) {
	if other == nil {
		return
	}
	for asset, byDate := range other.prices {
		for key, price := range byDate {
			t.SetKey(asset, key, price)
		}
	}
}

// Price implements PriceBook.
func (t *PriceTable) Price(asset Asset, day time.Time) (decimal.Decimal, error) {
	price, ok := t.prices[asset][DateKey(day)]
	if !ok {
		return decimal.Zero, errors.Wrapf(ErrPriceMissing, "%s on %s", asset, DateKey(day))
	}

	return price, nil
}

// FiatValue returns quantity × price for the date, invalid when the price is missing.
func FiatValue(prices PriceBook, asset Asset, day time.Time, quantity decimal.Decimal) decimal.NullDecimal {
	price, err := prices.Price(asset, day)
	if err != nil {
		return decimal.NullDecimal{}
	}

	return decimal.NewNullDecimal(quantity.Mul(price))
}
