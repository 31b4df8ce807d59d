package pricer

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vadiminshakov/cointax/internal/domain"
)

type fakeSource struct {
	closes []domain.DailyClose
	err    error
	calls  int
}

func (f *fakeSource) DailyCloses(_ context.Context, _ domain.Asset, _ int) ([]domain.DailyClose, error) {
	f.calls++
	return f.closes, f.err
}

type fakeCache struct {
	stored map[domain.Asset][]domain.DailyClose
	puts   []string
}

func newFakeCache() *fakeCache {
	return &fakeCache{stored: make(map[domain.Asset][]domain.DailyClose)}
}

func (c *fakeCache) Put(_ context.Context, asset domain.Asset, source string, closes []domain.DailyClose) error {
	c.stored[asset] = append(c.stored[asset], closes...)
	c.puts = append(c.puts, source)
	return nil
}

func (c *fakeCache) LoadInto(_ context.Context, asset domain.Asset, table *domain.PriceTable) (int, error) {
	for _, dc := range c.stored[asset] {
		table.Set(asset, dc.Day, dc.Close)
	}
	return len(c.stored[asset]), nil
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func price(t *testing.T, table *domain.PriceTable, asset domain.Asset, at time.Time) string {
	t.Helper()
	p, err := table.Price(asset, at)
	require.NoError(t, err)
	return p.String()
}

func TestParseCSV(t *testing.T) {
	input := strings.Join([]string{
		"Date;Price",
		"03/12/2025;82.345,67",
		"03/11/2025 ; 1.234.567,5",
		"03/10/2025;80000",
		"garbage",
		"13/45/2025;1,0",
	}, "\n")

	table := domain.NewPriceTable()
	n, err := ParseCSV(strings.NewReader(input), domain.BTC, table)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	assert.Equal(t, "82345.67", price(t, table, domain.BTC, day(2025, 3, 12)))
	assert.Equal(t, "1234567.5", price(t, table, domain.BTC, day(2025, 3, 11)))
	assert.Equal(t, "80000", price(t, table, domain.BTC, day(2025, 3, 10)))
}

func TestHistoryPath(t *testing.T) {
	assert.Equal(t, filepath.Join("data", "Litecoin_Historical_Data.csv"), HistoryPath("data", domain.LTC))
}

func TestPricesLayering(t *testing.T) {
	dir := t.TempDir()
	csvBody := "01/01/2024;40.000,00\n01/02/2024;41.000,00\n01/03/2024;42.000,00\n"
	require.NoError(t, os.WriteFile(HistoryPath(dir, domain.BTC), []byte(csvBody), 0o644))

	cache := newFakeCache()
	cache.stored[domain.BTC] = []domain.DailyClose{{Day: day(2024, 1, 2), Close: decimal.NewFromInt(41500)}}

	primary := &fakeSource{closes: []domain.DailyClose{
		{Day: day(2024, 1, 3), Close: decimal.NewFromInt(42500)},
		{Day: day(2024, 1, 4), Close: decimal.NewFromInt(43000)},
	}}
	fallback := &fakeSource{closes: []domain.DailyClose{
		{Day: day(2024, 1, 4), Close: decimal.NewFromInt(1)},
		{Day: day(2024, 1, 5), Close: decimal.NewFromInt(44000)},
	}}

	p := New(zap.NewNop(), dir, cache, 365,
		NamedSource{Name: "coingecko", Source: primary},
		NamedSource{Name: "binance", Source: fallback},
	)

	table, err := p.Prices(context.Background(), domain.BTC)
	require.NoError(t, err)

	assert.Equal(t, "40000", price(t, table, domain.BTC, day(2024, 1, 1)), "csv only")
	assert.Equal(t, "41500", price(t, table, domain.BTC, day(2024, 1, 2)), "cache overrides csv")
	assert.Equal(t, "42500", price(t, table, domain.BTC, day(2024, 1, 3)), "primary overrides csv")
	assert.Equal(t, "43000", price(t, table, domain.BTC, day(2024, 1, 4)), "fallback does not override")
	assert.Equal(t, "44000", price(t, table, domain.BTC, day(2024, 1, 5)), "fallback fills gaps")

	assert.Equal(t, []string{"coingecko", "binance"}, cache.puts)
}

func TestPricesSourceFailureIsTolerated(t *testing.T) {
	failing := &fakeSource{err: errors.New("boom")}
	working := &fakeSource{closes: []domain.DailyClose{{Day: day(2024, 6, 1), Close: decimal.NewFromInt(3000)}}}

	p := New(zap.NewNop(), "", nil, 30,
		NamedSource{Name: "coingecko", Source: failing},
		NamedSource{Name: "binance", Source: working},
	)

	table, err := p.Prices(context.Background(), domain.ETH)
	require.NoError(t, err)
	assert.Equal(t, "3000", price(t, table, domain.ETH, day(2024, 6, 1)))
	assert.Equal(t, 1, failing.calls)
}

func TestPricesNothingAvailable(t *testing.T) {
	p := New(zap.NewNop(), t.TempDir(), nil, 30, NamedSource{Name: "coingecko", Source: &fakeSource{err: errors.New("down")}})

	_, err := p.Prices(context.Background(), domain.LTC)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "down")

	_, err = New(zap.NewNop(), "", nil, 30).Prices(context.Background(), domain.LTC)
	assert.Error(t, err)
}

func TestPricesCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := New(zap.NewNop(), "", nil, 30, NamedSource{Name: "coingecko", Source: &fakeSource{err: context.Canceled}})

	_, err := p.Prices(ctx, domain.BTC)
	assert.ErrorIs(t, err, context.Canceled)
}
