package web

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vadiminshakov/cointax/internal/events"
	"github.com/vadiminshakov/cointax/internal/services/reconciler"
)

func TestReportCache_ReusesUntilExpired(t *testing.T) {
	report := testReport(t)
	runs := 0
	run := func(context.Context) (*reconciler.Report, error) {
		runs++
		return report, nil
	}

	store := &memSummaries{}
	bus := events.NewRunBroadcaster(4)
	published := bus.Subscribe()
	c := NewReportCache(zap.NewNop(), run, time.Minute, store, bus)
	clock := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return clock }

	got, err := c.Latest(context.Background())
	require.NoError(t, err)
	assert.Same(t, report, got)

	_, err = c.Latest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, runs)

	clock = clock.Add(2 * time.Minute)
	_, err = c.Latest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, runs)

	_, err = c.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, runs)

	records, err := store.SummariesAfter(0)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, report.RunID, records[0].Summary.RunID)
	assert.Len(t, published, 3)
}

func TestReportCache_FailureKeepsPrevious(t *testing.T) {
	report := testReport(t)
	fail := false
	run := func(context.Context) (*reconciler.Report, error) {
		if fail {
			return nil, errors.New("upstream down")
		}
		return report, nil
	}

	c := NewReportCache(zap.NewNop(), run, time.Hour, nil, nil)

	_, err := c.Latest(context.Background())
	require.NoError(t, err)

	fail = true
	_, err = c.Refresh(context.Background())
	require.Error(t, err)

	got, err := c.Latest(context.Background())
	require.NoError(t, err)
	assert.Same(t, report, got)
}
