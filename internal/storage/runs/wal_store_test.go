package runs

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/cointax/internal/domain"
)

func summary(id string, total int64) domain.RunSummary {
	return domain.RunSummary{
		RunID: id,
		At:    time.Date(2025, 2, 1, 12, 0, 0, 0, time.UTC),
		Total: decimal.NewFromInt(total),
		Holdings: map[domain.Asset]domain.HoldingSummary{
			domain.BTC: {Quantity: decimal.RequireFromString("0.5"), Fiat: decimal.NewFromInt(total)},
		},
		Entries: 3,
	}
}

func TestWALStoreSaveAndRead(t *testing.T) {
	store, err := NewWALStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.Save(summary("run-1", 100)))
	require.NoError(t, store.Save(summary("run-2", 200)))
	assert.Equal(t, uint64(2), store.CurrentIndex())

	records, err := store.SummariesAfter(0)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "run-1", records[0].Summary.RunID)
	assert.Equal(t, uint64(2), records[1].Index)
	assert.True(t, records[1].Summary.Total.Equal(decimal.NewFromInt(200)))
	assert.Equal(t, "0.5", records[1].Summary.Holdings[domain.BTC].Quantity.String())

	after, err := store.SummariesAfter(1)
	require.NoError(t, err)
	require.Len(t, after, 1)
	assert.Equal(t, "run-2", after[0].Summary.RunID)

	none, err := store.SummariesAfter(2)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestWALStoreLatest(t *testing.T) {
	store, err := NewWALStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	_, ok, err := store.Latest()
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Save(summary("run-1", 100)))
	require.NoError(t, store.Save(summary("run-2", 250)))

	latest, ok, err := store.Latest()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "run-2", latest.Summary.RunID)
}

func TestWALStoreReopen(t *testing.T) {
	dir := t.TempDir()
	store, err := NewWALStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.Save(summary("run-1", 100)))
	require.NoError(t, store.Save(summary("run-2", 200)))
	require.NoError(t, store.Close())

	store, err = NewWALStore(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	records, err := store.SummariesAfter(0)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "run-1", records[0].Summary.RunID)
	assert.Equal(t, "run-2", records[1].Summary.RunID)

	require.NoError(t, store.Save(summary("run-3", 300)))
	latest, ok, err := store.Latest()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(3), latest.Index)
}

func TestWALStoreRejectsMissingID(t *testing.T) {
	store, err := NewWALStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	assert.Error(t, store.Save(domain.RunSummary{}))
}

func TestWALStoreNilGuard(t *testing.T) {
	var store *WALStore

	assert.Error(t, store.Save(summary("x", 1)))
	assert.Equal(t, uint64(0), store.CurrentIndex())
	_, err := store.SummariesAfter(0)
	assert.Error(t, err)
	assert.Error(t, store.Close())
}
