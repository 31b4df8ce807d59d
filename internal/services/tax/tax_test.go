package tax

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/cointax/internal/domain"
)

func lot(sell time.Time, gain int64, term domain.Term, priced bool) domain.GainLot {
	return domain.GainLot{
		Asset:    domain.BTC,
		BuyDate:  sell.AddDate(0, -1, 0),
		SellDate: sell,
		Amount:   decimal.NewFromInt(1),
		Gain:     decimal.NewFromInt(gain),
		Term:     term,
		Priced:   priced,
	}
}

func TestSummarize_YearFilter(t *testing.T) {
	lots := []domain.GainLot{
		lot(time.Date(2023, 12, 31, 23, 59, 59, 0, time.UTC), 1000, domain.Short, true),
		lot(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), 200, domain.Short, true),
		lot(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), -50, domain.Short, true),
		lot(time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC), 700, domain.Long, true),
		lot(time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC), 9999, domain.Long, false),
		lot(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), 5000, domain.Long, true),
	}

	totals := Summarize(lots, 2024)
	assert.Equal(t, 2024, totals.Year)
	assert.True(t, totals.Short.Equal(decimal.NewFromInt(150)), totals.Short.String())
	assert.True(t, totals.Long.Equal(decimal.NewFromInt(700)))
	assert.Equal(t, 2, totals.ShortLots)
	assert.Equal(t, 1, totals.LongLots)
	assert.Equal(t, 1, totals.Unpriced)
	assert.True(t, totals.Total().Equal(decimal.NewFromInt(850)))

	prev := Summarize(lots, 2023)
	assert.True(t, prev.Short.Equal(decimal.NewFromInt(1000)))
	assert.True(t, prev.Long.IsZero())
}

func TestSchedule_Rate(t *testing.T) {
	short := DefaultShortTerm()
	require.NoError(t, short.Validate())

	cases := map[int64]string{
		0:       "0.1",
		11925:   "0.1",
		11926:   "0.12",
		48475:   "0.12",
		103350:  "0.22",
		197300:  "0.24",
		250525:  "0.32",
		626350:  "0.35",
		626351:  "0.37",
		5000000: "0.37",
	}
	for income, want := range cases {
		assert.Equal(t, want, short.Rate(decimal.NewFromInt(income)).String(), "income %d", income)
	}

	long := DefaultLongTerm()
	require.NoError(t, long.Validate())
	assert.True(t, long.Rate(decimal.NewFromInt(49230)).IsZero())
	assert.Equal(t, "0.15", long.Rate(decimal.NewFromInt(49231)).String())
	assert.Equal(t, "0.15", long.Rate(decimal.NewFromInt(541450)).String())
	assert.Equal(t, "0.2", long.Rate(decimal.NewFromInt(541451)).String())
}

func TestSchedule_Validate(t *testing.T) {
	require.Error(t, Schedule{}.Validate())
	require.Error(t, Schedule{bracket(100, "0.1")}.Validate())
	require.Error(t, Schedule{top("0.1"), top("0.2")}.Validate())
	require.Error(t, Schedule{bracket(100, "0.1"), bracket(50, "0.2"), top("0.3")}.Validate())
	require.Error(t, Schedule{top("1.5")}.Validate())
	require.NoError(t, Schedule{top("0.3")}.Validate())
}

func TestEstimate(t *testing.T) {
	totals := YearTotals{Year: 2024, Short: decimal.NewFromInt(10000), Long: decimal.NewFromInt(20000)}

	low := totals.Estimate(decimal.NewFromInt(1000), DefaultShortTerm(), DefaultLongTerm())
	// short: 1000 + 10000 = 11000 -> 10%; long: 1000 + 20000 = 21000 -> 0%
	assert.Equal(t, "0.1", low.ShortRate.String())
	assert.True(t, low.ShortTax.Equal(decimal.NewFromInt(1000)))
	assert.True(t, low.LongTax.IsZero())

	high := totals.Estimate(decimal.NewFromInt(200000), DefaultShortTerm(), DefaultLongTerm())
	// short: 210000 -> 32%; long: 220000 -> 15%
	assert.True(t, high.ShortTax.Equal(decimal.NewFromInt(3200)))
	assert.True(t, high.LongTax.Equal(decimal.NewFromInt(3000)))
	assert.True(t, high.Total().Equal(decimal.NewFromInt(6200)))

	// re-estimating leaves the sums untouched
	assert.True(t, totals.Short.Equal(decimal.NewFromInt(10000)))
	assert.True(t, totals.Long.Equal(decimal.NewFromInt(20000)))
	again := totals.Estimate(decimal.NewFromInt(1000), DefaultShortTerm(), DefaultLongTerm())
	assert.Equal(t, low, again)
}

func TestEstimate_NetLossOwesNothing(t *testing.T) {
	totals := YearTotals{Short: decimal.NewFromInt(-500), Long: decimal.Zero}

	e := totals.Estimate(decimal.NewFromInt(50000), DefaultShortTerm(), DefaultLongTerm())
	assert.True(t, e.ShortTax.IsZero())
	assert.True(t, e.Total().IsZero())
}

func TestWithUnmatched_FiltersBySellYear(t *testing.T) {
	sells := []domain.UnmatchedSell{
		{Asset: domain.BTC, SellDate: time.Date(2023, 12, 31, 23, 0, 0, 0, time.UTC), Amount: decimal.NewFromInt(2), ExternalID: "old"},
		{Asset: domain.BTC, SellDate: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), Amount: decimal.RequireFromString("0.5"), ExternalID: "a"},
		{Asset: domain.BTC, SellDate: time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC), Amount: decimal.RequireFromString("0.25"), ExternalID: "b"},
		{Asset: domain.ETH, SellDate: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), Amount: decimal.NewFromInt(1), ExternalID: "next"},
	}

	totals := YearTotals{Year: 2024}.WithUnmatched(sells)
	require.Len(t, totals.Unmatched, 1)
	assert.True(t, totals.Unmatched[domain.BTC].Equal(decimal.RequireFromString("0.75")), totals.Unmatched[domain.BTC].String())

	assert.Empty(t, YearTotals{Year: 2022}.WithUnmatched(sells).Unmatched)
	assert.Equal(t, "2", YearTotals{Year: 2023}.WithUnmatched(sells).Unmatched[domain.BTC].String())
}

func TestYears(t *testing.T) {
	lots := []domain.GainLot{
		lot(time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC), 1, domain.Short, true),
		lot(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), 1, domain.Short, true),
		lot(time.Date(2022, 5, 1, 0, 0, 0, 0, time.UTC), 1, domain.Short, true),
	}
	assert.Equal(t, []int{2024, 2022}, Years(lots))
	assert.Equal(t, 2025, ReportingYear(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)))
}
