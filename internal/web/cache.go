package web

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vadiminshakov/cointax/internal/domain"
	"github.com/vadiminshakov/cointax/internal/events"
	"github.com/vadiminshakov/cointax/internal/services/reconciler"
)

// RunFunc performs one reconciliation.
type RunFunc func(ctx context.Context) (*reconciler.Report, error)

type summaryWriter interface {
	Save(summary domain.RunSummary) error
}

// ReportCache serves the latest report and reruns the reconciliation once it is older than ttl.
// Concurrent callers share a single run.
type ReportCache struct {
	l     *zap.Logger
	run   RunFunc
	ttl   time.Duration
	store summaryWriter
	bus   *events.RunBroadcaster
	now   func() time.Time

	mu     sync.Mutex
	report *reconciler.Report
	at     time.Time
}

// NewReportCache creates a cache. store and bus are optional; every fresh report's summary is appended to the
// store and then published on the bus.
func NewReportCache(l *zap.Logger, run RunFunc, ttl time.Duration, store summaryWriter, bus *events.RunBroadcaster) *ReportCache {
	return &ReportCache{l: l, run: run, ttl: ttl, store: store, bus: bus, now: time.Now}
}

// Latest returns the cached report, reconciling first when there is none or it expired.
func (c *ReportCache) Latest(ctx context.Context) (*reconciler.Report, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.report != nil && c.now().Sub(c.at) < c.ttl {
		return c.report, nil
	}

	return c.refreshLocked(ctx)
}

// Refresh reconciles unconditionally.
func (c *ReportCache) Refresh(ctx context.Context) (*reconciler.Report, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.refreshLocked(ctx)
}

func (c *ReportCache) refreshLocked(ctx context.Context) (*reconciler.Report, error) {
	report, err := c.run(ctx)
	if err != nil {
		return nil, err
	}

	c.report = report
	c.at = c.now()

	summary := report.Summary()
	if c.store != nil {
		if err := c.store.Save(summary); err != nil {
			c.l.Warn("failed to persist run summary", zap.String("run", report.RunID), zap.Error(err))
		}
	}
	c.bus.Publish(summary)

	return report, nil
}
