// Package fifo matches disposals against the earliest unconsumed acquisitions.
package fifo

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/cointax/internal/domain"
)

// Totals quantity accounting of one asset. Matched + Unmatched equals Sold and Matched + Remaining equals Bought.
type Totals struct {
	Bought    decimal.Decimal `json:"bought"`
	Sold      decimal.Decimal `json:"sold"`
	Matched   decimal.Decimal `json:"matched"`
	Unmatched decimal.Decimal `json:"unmatched"`
	Remaining decimal.Decimal `json:"remaining"`
}

// Result output of one matching run.
type Result struct {
	// Lots realized gain lots, grouped by asset in domain.Assets order, each group in sell order.
	Lots []domain.GainLot `json:"lots"`
	// Unmatched sold quantity no buy was left for, per asset, over the whole ledger.
	Unmatched map[domain.Asset]decimal.Decimal `json:"unmatched"`
	// UnmatchedSells the sells behind Unmatched, in sell order per asset.
	UnmatchedSells []domain.UnmatchedSell `json:"unmatched_sells"`
	// Remaining unconsumed buy quantity, per asset.
	Remaining map[domain.Asset]decimal.Decimal `json:"remaining"`

	totals map[domain.Asset]Totals
}

// Conservation returns the quantity accounting of the asset.
func (r Result) Conservation(asset domain.Asset) Totals {
	if t, ok := r.totals[asset]; ok {
		return t
	}

	return Totals{
		Bought:    decimal.Zero,
		Sold:      decimal.Zero,
		Matched:   decimal.Zero,
		Unmatched: decimal.Zero,
		Remaining: decimal.Zero,
	}
}

// HasUnmatched reports whether any asset sold more than was ever bought.
func (r Result) HasUnmatched() bool {
	for _, q := range r.Unmatched {
		if q.IsPositive() {
			return true
		}
	}

	return false
}

// LotsFor returns the lots of one asset.
func (r Result) LotsFor(asset domain.Asset) []domain.GainLot {
	lots := make([]domain.GainLot, 0)
	for _, lot := range r.Lots {
		if lot.Asset == asset {
			lots = append(lots, lot)
		}
	}

	return lots
}

// leg private working copy of a ledger entry.
type leg struct {
	date      time.Time
	remaining decimal.Decimal
	ppu       decimal.Decimal
	priced    bool
	id        string
}

// Match runs FIFO matching over the ledger. Input order does not matter and entries are not modified. Every call
// starts from fresh state.
func Match(entries []domain.LedgerEntry) Result {
	res := Result{
		Lots:           make([]domain.GainLot, 0),
		Unmatched:      make(map[domain.Asset]decimal.Decimal, len(domain.Assets)),
		UnmatchedSells: make([]domain.UnmatchedSell, 0),
		Remaining:      make(map[domain.Asset]decimal.Decimal, len(domain.Assets)),
		totals:         make(map[domain.Asset]Totals, len(domain.Assets)),
	}

	for _, asset := range domain.Assets {
		buys, sells := partition(asset, entries)
		if len(buys) == 0 && len(sells) == 0 {
			continue
		}

		lots, unmatched, totals := matchAsset(asset, buys, sells)
		res.Lots = append(res.Lots, lots...)
		res.UnmatchedSells = append(res.UnmatchedSells, unmatched...)
		res.Unmatched[asset] = totals.Unmatched
		res.Remaining[asset] = totals.Remaining
		res.totals[asset] = totals
	}

	return res
}

func partition(asset domain.Asset, entries []domain.LedgerEntry) (buys, sells []*leg) {
	for _, e := range entries {
		if e.Asset != asset {
			continue
		}
		l := &leg{
			date:      e.Time,
			remaining: e.Quantity,
			ppu:       e.PricePerUnit(),
			priced:    e.Priced(),
			id:        e.ExternalID,
		}
		if e.Direction == domain.In {
			buys = append(buys, l)
		} else {
			sells = append(sells, l)
		}
	}

	byDate(buys)
	byDate(sells)

	return buys, sells
}

func byDate(legs []*leg) {
	sort.SliceStable(legs, func(i, j int) bool {
		if !legs[i].date.Equal(legs[j].date) {
			return legs[i].date.Before(legs[j].date)
		}
		return legs[i].id < legs[j].id
	})
}

func matchAsset(asset domain.Asset, buys, sells []*leg) ([]domain.GainLot, []domain.UnmatchedSell, Totals) {
	totals := Totals{
		Bought:    decimal.Zero,
		Sold:      decimal.Zero,
		Matched:   decimal.Zero,
		Unmatched: decimal.Zero,
		Remaining: decimal.Zero,
	}
	for _, b := range buys {
		totals.Bought = totals.Bought.Add(b.remaining)
	}

	lots := make([]domain.GainLot, 0, len(sells))
	var unmatched []domain.UnmatchedSell
	head := 0
	for _, sell := range sells {
		totals.Sold = totals.Sold.Add(sell.remaining)

		for sell.remaining.IsPositive() && head < len(buys) {
			buy := buys[head]
			matched := decimal.Min(sell.remaining, buy.remaining)

			lot := domain.GainLot{
				Asset:    asset,
				BuyDate:  buy.date,
				SellDate: sell.date,
				Amount:   matched,
				Gain:     decimal.Zero,
				Term:     domain.TermFor(buy.date, sell.date),
				Priced:   buy.priced && sell.priced,
			}
			if lot.Priced {
				lot.Gain = matched.Mul(sell.ppu.Sub(buy.ppu))
			}
			lots = append(lots, lot)

			totals.Matched = totals.Matched.Add(matched)
			sell.remaining = sell.remaining.Sub(matched)
			buy.remaining = buy.remaining.Sub(matched)
			if !buy.remaining.IsPositive() {
				head++
			}
		}

		if sell.remaining.IsPositive() {
			totals.Unmatched = totals.Unmatched.Add(sell.remaining)
			unmatched = append(unmatched, domain.UnmatchedSell{
				Asset:      asset,
				SellDate:   sell.date,
				Amount:     sell.remaining,
				ExternalID: sell.id,
			})
		}
	}

	for _, b := range buys[head:] {
		totals.Remaining = totals.Remaining.Add(b.remaining)
	}

	return lots, unmatched, totals
}
