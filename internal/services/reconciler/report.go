package reconciler

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/cointax/internal/domain"
	"github.com/vadiminshakov/cointax/internal/services/fifo"
	"github.com/vadiminshakov/cointax/internal/services/history"
	"github.com/vadiminshakov/cointax/internal/services/normalizer"
	"github.com/vadiminshakov/cointax/internal/services/tax"
)

// Report outcome of one reconciliation run. It is immutable once returned.
type Report struct {
	RunID     string
	At        time.Time
	Addresses domain.AddressBook
	Snapshot  domain.Snapshot
	// Ledger canonical entries of every asset, chronological.
	Ledger    domain.Ledger
	Issues    []normalizer.Issue
	Discarded int
	// Incomplete assets whose upstream fetch failed, each error wraps domain.ErrAssetIncomplete.
	Incomplete map[domain.Asset]error
	// PriceErrors assets for which no price source answered.
	PriceErrors map[domain.Asset]error
	// Unvalued assets held at the run time without a price for that day, each error wraps domain.ErrPriceMissing.
	// They are left out of the snapshot total.
	Unvalued map[domain.Asset]error
	Matches  fifo.Result

	prices  *domain.PriceTable
	sampler *history.Sampler
}

func newReport(run string, at time.Time, book domain.AddressBook, prices *domain.PriceTable) *Report {
	return &Report{
		RunID:       run,
		At:          at,
		Addresses:   book,
		Snapshot:    domain.NewSnapshot(at),
		Incomplete:  make(map[domain.Asset]error),
		PriceErrors: make(map[domain.Asset]error),
		Unvalued:    make(map[domain.Asset]error),
		prices:      prices,
	}
}

// Prices price book the run valued everything with.
func (r *Report) Prices() domain.PriceBook {
	return r.prices
}

// Unpriced number of ledger entries without a fiat value.
func (r *Report) Unpriced() int {
	n := 0
	for _, e := range r.Ledger {
		if !e.Priced() {
			n++
		}
	}

	return n
}

// Degraded reports whether any part of the run is based on partial data.
func (r *Report) Degraded() bool {
	return len(r.Incomplete) > 0 || len(r.PriceErrors) > 0 || len(r.Unvalued) > 0 ||
		len(r.Issues) > 0 || r.Unpriced() > 0
}

// UnvaluedAssets assets of Unvalued in display order.
func (r *Report) UnvaluedAssets() []domain.Asset {
	var out []domain.Asset
	for _, a := range domain.Assets {
		if _, ok := r.Unvalued[a]; ok {
			out = append(out, a)
		}
	}

	return out
}

// IncompleteAssets assets of Incomplete in display order.
func (r *Report) IncompleteAssets() []domain.Asset {
	var out []domain.Asset
	for _, a := range domain.Assets {
		if _, ok := r.Incomplete[a]; ok {
			out = append(out, a)
		}
	}

	return out
}

// Series samples the portfolio value over the window ending at the run time.
func (r *Report) Series(w history.Window) (history.Series, error) {
	return r.sampler.Series(w, r.At)
}

// Change24h change of the total value over the last 24 hours.
func (r *Report) Change24h() (history.Change, error) {
	return r.sampler.Change24h(r.At)
}

// BalanceAt reconstructs one asset's value at a past time.
func (r *Report) BalanceAt(asset domain.Asset, at time.Time) (history.Valuation, error) {
	return history.BalanceAt(asset, at, r.Snapshot, r.Ledger, r.prices)
}

// Tax realized gains of the year including the year's sells that had no matching buy.
func (r *Report) Tax(year int) tax.YearTotals {
	return tax.Summarize(r.Matches.Lots, year).WithUnmatched(r.Matches.UnmatchedSells)
}

// Holding one row of the holdings overview.
type Holding struct {
	Asset        domain.Asset        `json:"asset"`
	Quantity     decimal.Decimal     `json:"quantity"`
	Price        decimal.NullDecimal `json:"price"`
	Fiat         decimal.NullDecimal `json:"fiat"`
	ReportedFiat decimal.Decimal     `json:"reported_fiat"`
	Share        decimal.Decimal     `json:"share"`
	Incomplete   bool                `json:"incomplete"`
}

// Holdings per-asset amount, today's price, value and allocation share.
func (r *Report) Holdings() []Holding {
	out := make([]Holding, 0, len(domain.Assets))
	for _, a := range domain.Assets {
		b := r.Snapshot.Get(a)
		h := Holding{
			Asset:        a,
			Quantity:     b.Quantity(),
			Fiat:         b.Value(),
			ReportedFiat: b.ReportedFiat,
			Share:        r.Snapshot.Share(a),
		}
		if p, err := r.prices.Price(a, r.At); err == nil {
			h.Price = decimal.NewNullDecimal(p)
		}
		_, h.Incomplete = r.Incomplete[a]
		out = append(out, h)
	}

	return out
}

// Summary compact form persisted after every run.
func (r *Report) Summary() domain.RunSummary {
	s := domain.RunSummary{
		RunID:      r.RunID,
		At:         r.At,
		Total:      r.Snapshot.Total(),
		Holdings:   make(map[domain.Asset]domain.HoldingSummary, len(domain.Assets)),
		Entries:    len(r.Ledger),
		Lots:       len(r.Matches.Lots),
		Issues:     len(r.Issues),
		Incomplete: r.IncompleteAssets(),
		Unvalued:   r.UnvaluedAssets(),
		Degraded:   r.Degraded(),
	}
	for _, h := range r.Holdings() {
		s.Holdings[h.Asset] = domain.HoldingSummary{Quantity: h.Quantity, Fiat: h.Fiat.Decimal}
	}

	return s
}

// Overview JSON view of a report.
type Overview struct {
	RunID      string                  `json:"run_id"`
	At         time.Time               `json:"at"`
	Total      decimal.Decimal         `json:"total"`
	Change24h  *history.Change         `json:"change_24h,omitempty"`
	Holdings   []Holding               `json:"holdings"`
	Entries    int                     `json:"entries"`
	Unpriced   int                     `json:"unpriced"`
	Issues     []normalizer.Issue      `json:"issues,omitempty"`
	Incomplete map[domain.Asset]string `json:"incomplete,omitempty"`
	Prices     map[domain.Asset]string `json:"price_errors,omitempty"`
	Unvalued   map[domain.Asset]string `json:"unvalued,omitempty"`
	Degraded   bool                    `json:"degraded"`
}

// Overview builds the JSON view.
func (r *Report) Overview() Overview {
	o := Overview{
		RunID:      r.RunID,
		At:         r.At,
		Total:      r.Snapshot.Total(),
		Holdings:   r.Holdings(),
		Entries:    len(r.Ledger),
		Unpriced:   r.Unpriced(),
		Issues:     r.Issues,
		Incomplete: errorStrings(r.Incomplete),
		Prices:     errorStrings(r.PriceErrors),
		Unvalued:   errorStrings(r.Unvalued),
		Degraded:   r.Degraded(),
	}
	if c, err := r.Change24h(); err == nil {
		o.Change24h = &c
	}

	return o
}

func errorStrings(m map[domain.Asset]error) map[domain.Asset]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[domain.Asset]string, len(m))
	for a, err := range m {
		out[a] = err.Error()
	}

	return out
}
