// Package tax sums realized gains per reporting year and estimates the tax owed.
package tax

import (
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/cointax/internal/domain"
)

// Bracket marginal bracket. Incomes up to and including Ceiling are taxed at Rate; an invalid Ceiling is unbounded.
type Bracket struct {
	Ceiling decimal.NullDecimal `json:"ceiling"`
	Rate    decimal.Decimal     `json:"rate"`
}

// Schedule ordered brackets, lowest ceiling first, ending with an unbounded one.
type Schedule []Bracket

func bracket(ceiling int64, rate string) Bracket {
	return Bracket{Ceiling: decimal.NewNullDecimal(decimal.NewFromInt(ceiling)), Rate: decimal.RequireFromString(rate)}
}

func top(rate string) Bracket {
	return Bracket{Rate: decimal.RequireFromString(rate)}
}

// DefaultShortTerm ordinary income brackets applied to short-term gains.
func DefaultShortTerm() Schedule {
	return Schedule{
		bracket(11925, "0.10"),
		bracket(48475, "0.12"),
		bracket(103350, "0.22"),
		bracket(197300, "0.24"),
		bracket(250525, "0.32"),
		bracket(626350, "0.35"),
		top("0.37"),
	}
}

// DefaultLongTerm preferential brackets applied to long-term gains.
func DefaultLongTerm() Schedule {
	return Schedule{
		bracket(49230, "0"),
		bracket(541450, "0.15"),
		top("0.20"),
	}
}

// Validate checks ceilings are ascending, rates lie in [0, 1] and the last bracket is unbounded.
func (s Schedule) Validate() error {
	if len(s) == 0 {
		return errors.New("schedule has no brackets")
	}

	prev := decimal.NullDecimal{}
	for i, b := range s {
		if b.Rate.IsNegative() || b.Rate.GreaterThan(decimal.NewFromInt(1)) {
			return errors.Errorf("bracket %d: rate %s out of [0, 1]", i, b.Rate)
		}
		last := i == len(s)-1
		if !b.Ceiling.Valid {
			if !last {
				return errors.Errorf("bracket %d: only the last bracket may be unbounded", i)
			}
			continue
		}
		if last {
			return errors.New("last bracket must be unbounded")
		}
		if prev.Valid && !b.Ceiling.Decimal.GreaterThan(prev.Decimal) {
			return errors.Errorf("bracket %d: ceiling %s is not above %s", i, b.Ceiling.Decimal, prev.Decimal)
		}
		prev = b.Ceiling
	}

	return nil
}

// Rate returns the rate of the first bracket whose ceiling is at least income.
func (s Schedule) Rate(income decimal.Decimal) decimal.Decimal {
	for _, b := range s {
		if !b.Ceiling.Valid || income.LessThanOrEqual(b.Ceiling.Decimal) {
			return b.Rate
		}
	}
	if len(s) > 0 {
		return s[len(s)-1].Rate
	}

	return decimal.Zero
}

// YearTotals realized gains of one calendar year.
type YearTotals struct {
	Year  int             `json:"year"`
	Short decimal.Decimal `json:"short"`
	Long  decimal.Decimal `json:"long"`
	// ShortLots and LongLots number of priced lots summed.
	ShortLots int `json:"short_lots"`
	LongLots  int `json:"long_lots"`
	// Unpriced lots sold in the year that could not be valued.
	Unpriced int `json:"unpriced"`
	// Unmatched quantity sold in the year, per asset, that no acquisition was found for.
	Unmatched map[domain.Asset]decimal.Decimal `json:"unmatched,omitempty"`
}

// Summarize sums priced lots whose sell date falls in year (UTC), separately per term.
func Summarize(lots []domain.GainLot, year int) YearTotals {
	totals := YearTotals{Year: year, Short: decimal.Zero, Long: decimal.Zero}

	for _, lot := range lots {
		if lot.SellDate.UTC().Year() != year {
			continue
		}
		if !lot.Priced {
			totals.Unpriced++
			continue
		}

		switch lot.Term {
		case domain.Long:
			totals.Long = totals.Long.Add(lot.Gain)
			totals.LongLots++
		default:
			totals.Short = totals.Short.Add(lot.Gain)
			totals.ShortLots++
		}
	}

	return totals
}

// WithUnmatched sums the unmatched sells of the totals' year (UTC) per asset.
func (t YearTotals) WithUnmatched(sells []domain.UnmatchedSell) YearTotals {
	t.Unmatched = make(map[domain.Asset]decimal.Decimal)
	for _, s := range sells {
		if s.SellDate.UTC().Year() != t.Year || !s.Amount.IsPositive() {
			continue
		}
		q, ok := t.Unmatched[s.Asset]
		if !ok {
			q = decimal.Zero
		}
		t.Unmatched[s.Asset] = q.Add(s.Amount)
	}

	return t
}

// Total net realized gain of the year.
func (t YearTotals) Total() decimal.Decimal {
	return t.Short.Add(t.Long)
}

// Estimate tax owed per term.
type Estimate struct {
	OtherIncome decimal.Decimal `json:"other_income"`
	ShortRate   decimal.Decimal `json:"short_rate"`
	LongRate    decimal.Decimal `json:"long_rate"`
	ShortTax    decimal.Decimal `json:"short_tax"`
	LongTax     decimal.Decimal `json:"long_tax"`
}

// Total tax owed over both terms.
func (e Estimate) Total() decimal.Decimal {
	return e.ShortTax.Add(e.LongTax)
}

// Estimate looks each term's rate up at otherIncome plus that term's gains and applies it to the gains.
// Net losses owe nothing. The totals are not modified.
func (t YearTotals) Estimate(otherIncome decimal.Decimal, short, long Schedule) Estimate {
	e := Estimate{
		OtherIncome: otherIncome,
		ShortRate:   short.Rate(otherIncome.Add(t.Short)),
		LongRate:    long.Rate(otherIncome.Add(t.Long)),
	}
	e.ShortTax = decimal.Max(t.Short, decimal.Zero).Mul(e.ShortRate)
	e.LongTax = decimal.Max(t.Long, decimal.Zero).Mul(e.LongRate)

	return e
}

// Years returns the distinct sell years of the lots, newest first.
func Years(lots []domain.GainLot) []int {
	seen := make(map[int]struct{})
	years := make([]int, 0)
	for _, lot := range lots {
		y := lot.SellDate.UTC().Year()
		if _, ok := seen[y]; ok {
			continue
		}
		seen[y] = struct{}{}
		years = append(years, y)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(years)))

	return years
}

// ReportingYear the most recent completed calendar year as of now.
func ReportingYear(now time.Time) int {
	return now.UTC().Year() - 1
}
