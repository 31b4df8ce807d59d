package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Balance holdings of one asset at a point in time.
type Balance struct {
	// Asset the coin held.
	Asset Asset `json:"asset"`
	// BaseUnits integer amount in satoshi, wei or litoshi.
	BaseUnits decimal.Decimal `json:"base_units"`
	// Fiat natural amount × daily price of the snapshot date. Zero and not counted when Priced is false.
	Fiat decimal.Decimal `json:"fiat"`
	// Priced the snapshot date had a price, or nothing is held.
	Priced bool `json:"priced"`
	// ReportedFiat USD value reported by the upstream balance source, display only.
	ReportedFiat decimal.Decimal `json:"reported_fiat"`
}

// NewBalance values baseUnits at the price of asOf. A missing price leaves the balance unpriced, never valued at zero.
func NewBalance(asset Asset, baseUnits, reportedFiat decimal.Decimal, prices PriceBook, asOf time.Time) Balance {
	b := Balance{
		Asset:        asset,
		BaseUnits:    baseUnits,
		ReportedFiat: reportedFiat,
		Fiat:         decimal.Zero,
		Priced:       baseUnits.IsZero(),
	}
	if prices != nil && !b.Priced {
		if v := FiatValue(prices, asset, asOf, b.Quantity()); v.Valid {
			b.Fiat = v.Decimal
			b.Priced = true
		}
	}

	return b
}

// Value fiat value, invalid when unpriced.
func (b Balance) Value() decimal.NullDecimal {
	if !b.Priced {
		return decimal.NullDecimal{}
	}

	return decimal.NewNullDecimal(b.Fiat)
}

// Quantity holdings in whole coins.
func (b Balance) Quantity() decimal.Decimal {
	return b.Asset.ToNatural(b.BaseUnits)
}

// Snapshot holdings per asset at a point in time. Only the current snapshot is fetched; every other one is derived.
type Snapshot struct {
	// Timestamp the as-of time.
	Timestamp time.Time `json:"ts"`
	// Balances per asset.
	Balances map[Asset]Balance `json:"balances"`
}

// NewSnapshot creates an empty snapshot at ts.
func NewSnapshot(ts time.Time) Snapshot {
	return Snapshot{Timestamp: ts.UTC(), Balances: make(map[Asset]Balance, len(Assets))}
}

// Get returns the balance of the asset, zero valued when absent.
func (s Snapshot) Get(asset Asset) Balance {
	if b, ok := s.Balances[asset]; ok {
		return b
	}

	return Balance{Asset: asset, BaseUnits: decimal.Zero, Fiat: decimal.Zero, ReportedFiat: decimal.Zero, Priced: true}
}

// Total sum of fiat values over the priced assets. Check Unpriced before reading it as the whole portfolio.
func (s Snapshot) Total() decimal.Decimal {
	total := decimal.Zero
	for _, b := range s.Balances {
		if b.Priced {
			total = total.Add(b.Fiat)
		}
	}

	return total
}

// Unpriced assets held at the snapshot time without a price, in display order.
func (s Snapshot) Unpriced() []Asset {
	var out []Asset
	for _, a := range Assets {
		if !s.Get(a).Priced {
			out = append(out, a)
		}
	}

	return out
}

// Share fraction of the total held in asset, zero when the total is zero or the asset is unpriced.
func (s Snapshot) Share(asset Asset) decimal.Decimal {
	total := s.Total()
	if total.IsZero() {
		return decimal.Zero
	}

	return s.Get(asset).Fiat.Div(total)
}
