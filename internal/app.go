package internal

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/cointax/config"
	"github.com/vadiminshakov/cointax/internal/services/reconciler"
	"github.com/vadiminshakov/cointax/internal/storage/addresses"
	"github.com/vadiminshakov/cointax/internal/storage/runs"
	"github.com/vadiminshakov/cointax/internal/storage/pricecache"
)

// ErrNoAddresses the address book is empty.
var ErrNoAddresses = errors.New("no addresses tracked, add one with 'cointax addresses add' or run 'cointax setup'")

// App owns the stores and the reconciler of one process.
type App struct {
	Config     config.Config
	Addresses  *addresses.Store
	Prices     *pricecache.SQLite
	Runs       *runs.WALStore
	Reconciler *reconciler.Reconciler

	l *zap.Logger
}

// NewApp opens the stores under the configured data directory and wires the reconciler to the upstream APIs.
func NewApp(l *zap.Logger, cfg config.Config) (*App, error) {
	return newApp(l, cfg, nil)
}

func newApp(l *zap.Logger, cfg config.Config, sources *reconciler.Sources) (*App, error) {
	book, err := addresses.NewStore(cfg.AddressBookPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open address book")
	}

	cache, err := pricecache.NewSQLite(cfg.PriceCachePath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open price cache")
	}

	history, err := runs.NewWALStore(cfg.RunsDir)
	if err != nil {
		_ = cache.Close()
		return nil, errors.Wrap(err, "failed to open run history")
	}

	src := NewSources(l, cfg, cache)
	if sources != nil {
		src = *sources
	}

	rec, err := reconciler.New(l.Named("reconciler"), src)
	if err != nil {
		_ = cache.Close()
		_ = history.Close()
		return nil, errors.Wrap(err, "failed to create reconciler")
	}

	return &App{
		Config:     cfg,
		Addresses:  book,
		Prices:     cache,
		Runs:       history,
		Reconciler: rec,
		l:          l,
	}, nil
}

// Close closes the stores.
func (a *App) Close() error {
	var first error
	if err := a.Runs.Close(); err != nil {
		first = err
	}
	if err := a.Prices.Close(); err != nil && first == nil {
		first = err
	}

	return first
}

// Reconcile runs one reconciliation over the stored address book.
func (a *App) Reconcile(ctx context.Context) (*reconciler.Report, error) {
	book, err := a.Addresses.Load()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load address book")
	}
	if book.Empty() {
		return nil, ErrNoAddresses
	}

	return a.Reconciler.Reconcile(ctx, book)
}

// ReconcileAndRecord reconciles and appends the run summary to the run history.
func (a *App) ReconcileAndRecord(ctx context.Context) (*reconciler.Report, error) {
	report, err := a.Reconcile(ctx)
	if err != nil {
		return nil, err
	}
	if err := a.Runs.Save(report.Summary()); err != nil {
		a.l.Warn("failed to persist run summary", zap.String("run", report.RunID), zap.Error(err))
	}

	return report, nil
}

// Run refreshes through refresh every interval until ctx is done. Failed runs are logged and retried on the next
// tick.
func (a *App) Run(ctx context.Context, interval time.Duration, refresh func(ctx context.Context) (*reconciler.Report, error)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	a.l.Info("starting reconciliation loop", zap.Duration("interval", interval))

	for {
		select {
		case <-ctx.Done():
			a.l.Info("context done, stopping reconciliation loop")
			return ctx.Err()
		case <-ticker.C:
			report, err := refresh(ctx)
			if err != nil {
				if errors.Is(err, ErrNoAddresses) {
					a.l.Debug("nothing to reconcile")
				} else if ctx.Err() == nil {
					a.l.Error("scheduled reconciliation failed", zap.Error(err))
				}
				continue
			}

			a.l.Info("scheduled reconciliation finished",
				zap.String("run", report.RunID),
				zap.String("total", report.Snapshot.Total().String()),
				zap.Bool("degraded", report.Degraded()))
		}
	}
}

// ReportingYear tax year selected by the config for now.
func (a *App) ReportingYear(now time.Time) int {
	return a.Config.ReportingYear(now)
}
