// Package reconciler runs one reconciliation: fetch every source, normalize, value and match lots.
package reconciler

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vadiminshakov/cointax/internal/clients"
	"github.com/vadiminshakov/cointax/internal/domain"
	"github.com/vadiminshakov/cointax/internal/services/fifo"
	"github.com/vadiminshakov/cointax/internal/services/history"
	"github.com/vadiminshakov/cointax/internal/services/normalizer"
)

// DashboardFetcher current balance and ETH transfers of an address.
type DashboardFetcher interface {
	Dashboard(ctx context.Context, asset domain.Asset, address string) (clients.Dashboard, error)
}

// UTXOFetcher BTC transaction history of an address.
type UTXOFetcher interface {
	Transactions(ctx context.Context, address string, expected int) ([]domain.UTXOTx, error)
}

// FeeFetcher ETH fees paid by an address.
type FeeFetcher interface {
	Fees(ctx context.Context, address string, log domain.FeeLog) error
}

// TxRefFetcher LTC transaction references of an address.
type TxRefFetcher interface {
	TxRefs(ctx context.Context, address string) ([]domain.IndexedTxRef, error)
}

// PriceFetcher daily price table of one asset.
type PriceFetcher interface {
	Prices(ctx context.Context, asset domain.Asset) (*domain.PriceTable, error)
}

// Sources upstream data providers of a run.
type Sources struct {
	Dashboards DashboardFetcher
	UTXO       UTXOFetcher
	Fees       FeeFetcher
	TxRefs     TxRefFetcher
	Prices     PriceFetcher
}

func (s Sources) validate() error {
	if s.Dashboards == nil || s.UTXO == nil || s.Fees == nil || s.TxRefs == nil || s.Prices == nil {
		return errors.New("every reconciliation source is required")
	}

	return nil
}

// Reconciler builds reports. It keeps no state between runs.
type Reconciler struct {
	l       *zap.Logger
	sources Sources
	now     func() time.Time
}

// New creates a Reconciler.
func New(l *zap.Logger, sources Sources) (*Reconciler, error) {
	if err := sources.validate(); err != nil {
		return nil, err
	}

	return &Reconciler{l: l, sources: sources, now: time.Now}, nil
}

// fetched raw data of one asset.
type fetched struct {
	asset      domain.Asset
	baseUnits  decimal.Decimal
	reportedFX decimal.Decimal
	records    []domain.RawRecord
	fees       domain.FeeLog
	err        error
}

// Reconcile runs the whole pipeline for the address book. Upstream failures degrade the report; only context
// cancellation fails the run.
func (r *Reconciler) Reconcile(ctx context.Context, book domain.AddressBook) (*Report, error) {
	run := uuid.NewString()
	now := r.now().UTC()
	l := r.l.With(zap.String("run", run))

	l.Info("reconciliation started", zap.Time("as_of", now))

	var (
		mu     sync.Mutex
		prices = domain.NewPriceTable()
		priceE = make(map[domain.Asset]error)
		data   = make([]fetched, len(domain.Assets))
	)

	g, gctx := errgroup.WithContext(ctx)
	for i, asset := range domain.Assets {
		g.Go(func() error {
			table, err := r.sources.Prices.Prices(gctx, asset)
			if gctx.Err() != nil {
				return gctx.Err()
			}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				priceE[asset] = err
				l.Warn("prices unavailable", zap.String("asset", asset.String()), zap.Error(err))
				return nil
			}
			prices.Merge(table)
			return nil
		})

		g.Go(func() error {
			f := r.fetchAsset(gctx, asset, book[asset])
			if gctx.Err() != nil {
				return gctx.Err()
			}
			data[i] = f
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, errors.Wrap(err, "fetch phase")
	}

	report := newReport(run, now, book, prices)
	for asset, err := range priceE {
		report.PriceErrors[asset] = err
	}

	norm := normalizer.New(l, prices)
	var entries domain.Ledger
	for _, f := range data {
		if f.err != nil {
			report.Incomplete[f.asset] = errors.Wrap(domain.ErrAssetIncomplete, f.err.Error())
			report.Snapshot.Balances[f.asset] = domain.NewBalance(f.asset, decimal.Zero, decimal.Zero, prices, now)
			l.Warn("asset incomplete", zap.String("asset", f.asset.String()), zap.Error(f.err))
			continue
		}

		report.Snapshot.Balances[f.asset] = domain.NewBalance(f.asset, f.baseUnits, f.reportedFX, prices, now)

		batch := norm.NormalizeBatch(f.asset, f.records, book.Set(f.asset), f.fees)
		entries = append(entries, batch.Entries...)
		report.Issues = append(report.Issues, batch.Issues...)
		report.Discarded += batch.Discarded
	}

	for _, asset := range report.Snapshot.Unpriced() {
		err := errors.Wrapf(domain.ErrPriceMissing, "%s on %s", asset, domain.DateKey(now))
		report.Unvalued[asset] = err
		l.Warn("holdings left unvalued", zap.String("asset", asset.String()), zap.Error(err))
	}

	report.Ledger = entries.SortChronological()
	report.Matches = fifo.Match(report.Ledger)
	report.sampler = history.NewSampler(l, report.Snapshot, report.Ledger, prices)

	l.Info("reconciliation finished",
		zap.Int("entries", len(report.Ledger)),
		zap.Int("lots", len(report.Matches.Lots)),
		zap.Int("issues", len(report.Issues)),
		zap.Int("incomplete", len(report.Incomplete)),
		zap.String("total", report.Snapshot.Total().String()))

	return report, nil
}

// fetchAsset fetches every address of the asset sequentially; upstream rate limits are per key, not per address.
func (r *Reconciler) fetchAsset(ctx context.Context, asset domain.Asset, addresses []string) fetched {
	f := fetched{asset: asset, baseUnits: decimal.Zero, reportedFX: decimal.Zero}

	if asset == domain.ETH {
		f.fees = domain.FeeLog{}
	}

	seen := make(map[string]struct{})
	for _, address := range addresses {
		dash, err := r.sources.Dashboards.Dashboard(ctx, asset, address)
		if err != nil {
			f.err = errors.Wrapf(err, "dashboard of %s", address)
			return f
		}
		f.baseUnits = f.baseUnits.Add(dash.Balance)
		f.reportedFX = f.reportedFX.Add(dash.BalanceUSD)

		switch asset {
		case domain.BTC:
			txs, err := r.sources.UTXO.Transactions(ctx, address, dash.TxCount)
			if err != nil {
				f.err = errors.Wrapf(err, "transactions of %s", address)
				return f
			}
			for _, tx := range txs {
				if _, dup := seen[tx.TxID]; dup {
					continue
				}
				seen[tx.TxID] = struct{}{}
				f.records = append(f.records, tx)
			}

		case domain.ETH:
			if err := r.sources.Fees.Fees(ctx, address, f.fees); err != nil {
				f.err = errors.Wrapf(err, "fees of %s", address)
				return f
			}
			for _, call := range dash.Calls {
				key := callKey(call)
				if _, dup := seen[key]; dup {
					continue
				}
				seen[key] = struct{}{}
				f.records = append(f.records, call)
			}

		case domain.LTC:
			refs, err := r.sources.TxRefs.TxRefs(ctx, address)
			if err != nil {
				f.err = errors.Wrapf(err, "tx refs of %s", address)
				return f
			}
			for _, ref := range refs {
				f.records = append(f.records, ref)
			}
		}
	}

	return f
}

// callKey identity of an ETH transfer seen from several owner addresses.
func callKey(c domain.AccountCall) string {
	return strings.Join([]string{
		c.Hash,
		strings.ToLower(c.Sender),
		strings.ToLower(c.Recipient),
		c.Value.String(),
	}, "|")
}
