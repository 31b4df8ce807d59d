package pricecache

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/cointax/internal/domain"
)

func newTestCache(t *testing.T) (*SQLite, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "prices.db")

	c, err := NewSQLite(path)
	require.NoError(t, err)

	return c, path
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestSQLiteSchemaCreated(t *testing.T) {
	t.Parallel()

	c, path := newTestCache(t)
	require.NoError(t, c.Close())

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	var name string
	err = db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name = 'prices'`).Scan(&name)
	require.NoError(t, err)
	assert.Equal(t, "prices", name)
}

func TestSQLitePutAndLoad(t *testing.T) {
	t.Parallel()

	c, _ := newTestCache(t)
	t.Cleanup(func() { _ = c.Close() })
	ctx := context.Background()

	closes := []domain.DailyClose{
		{Day: day(2024, 1, 2), Close: decimal.RequireFromString("45000.5")},
		{Day: day(2024, 1, 1), Close: decimal.RequireFromString("44000")},
	}
	require.NoError(t, c.Put(ctx, domain.BTC, "coingecko", closes))

	loaded, err := c.Load(ctx, domain.BTC)
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.True(t, loaded[0].Day.Equal(day(2024, 1, 1)))
	assert.Equal(t, "45000.5", loaded[1].Close.String())

	other, err := c.Load(ctx, domain.ETH)
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestSQLitePutOverwritesSameDay(t *testing.T) {
	t.Parallel()

	c, _ := newTestCache(t)
	t.Cleanup(func() { _ = c.Close() })
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, domain.LTC, "csv", []domain.DailyClose{{Day: day(2024, 3, 1), Close: decimal.NewFromInt(80)}}))
	require.NoError(t, c.Put(ctx, domain.LTC, "binance", []domain.DailyClose{{Day: day(2024, 3, 1), Close: decimal.NewFromInt(82)}}))

	loaded, err := c.Load(ctx, domain.LTC)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "82", loaded[0].Close.String())
}

func TestSQLiteLoadIntoAndLatest(t *testing.T) {
	t.Parallel()

	c, _ := newTestCache(t)
	t.Cleanup(func() { _ = c.Close() })
	ctx := context.Background()

	_, ok, err := c.Latest(ctx, domain.ETH)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Put(ctx, domain.ETH, "coingecko", []domain.DailyClose{
		{Day: day(2024, 5, 1), Close: decimal.NewFromInt(3000)},
		{Day: day(2024, 5, 3), Close: decimal.NewFromInt(3100)},
	}))

	latest, ok, err := c.Latest(ctx, domain.ETH)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, latest.Equal(day(2024, 5, 3)))

	table := domain.NewPriceTable()
	n, err := c.LoadInto(ctx, domain.ETH, table)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	price, err := table.Price(domain.ETH, day(2024, 5, 1).Add(15*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "3000", price.String())
}
