package internal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vadiminshakov/cointax/config"
	"github.com/vadiminshakov/cointax/internal/clients"
	"github.com/vadiminshakov/cointax/internal/domain"
	"github.com/vadiminshakov/cointax/internal/services/reconciler"
)

const btcAddress = "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa"

type stubDashboards struct{}

func (stubDashboards) Dashboard(_ context.Context, asset domain.Asset, address string) (clients.Dashboard, error) {
	return clients.Dashboard{Asset: asset, Address: address, Balance: asset.ToBase(decimal.NewFromInt(2))}, nil
}

type stubUTXO struct{}

func (stubUTXO) Transactions(context.Context, string, int) ([]domain.UTXOTx, error) { return nil, nil }

type stubFees struct{}

func (stubFees) Fees(context.Context, string, domain.FeeLog) error { return nil }

type stubTxRefs struct{}

func (stubTxRefs) TxRefs(context.Context, string) ([]domain.IndexedTxRef, error) { return nil, nil }

type stubPrices struct{}

func (stubPrices) Prices(_ context.Context, asset domain.Asset) (*domain.PriceTable, error) {
	if asset != domain.BTC {
		return nil, errors.Errorf("no prices for %s", asset)
	}
	t := domain.NewPriceTable()
	t.Set(asset, time.Now().UTC(), decimal.NewFromInt(50000))
	return t, nil
}

func testConfig(t *testing.T) config.Config {
	t.Helper()

	dir := t.TempDir()
	cfg := config.Default()
	cfg.DataDir = dir
	cfg.AddressBookPath = filepath.Join(dir, "addresses.json")
	cfg.PriceCachePath = filepath.Join(dir, "prices.db")
	cfg.RunsDir = filepath.Join(dir, "runs")

	return cfg
}

func newTestApp(t *testing.T) *App {
	t.Helper()

	app, err := newApp(zap.NewNop(), testConfig(t), &reconciler.Sources{
		Dashboards: stubDashboards{},
		UTXO:       stubUTXO{},
		Fees:       stubFees{},
		TxRefs:     stubTxRefs{},
		Prices:     stubPrices{},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })

	return app
}

func TestNewApp_WiresRealSources(t *testing.T) {
	app, err := NewApp(zap.NewNop(), testConfig(t))
	require.NoError(t, err)
	require.NotNil(t, app.Reconciler)
	assert.NoError(t, app.Close())
}

func TestApp_ReconcileRequiresAddresses(t *testing.T) {
	app := newTestApp(t)

	_, err := app.Reconcile(context.Background())
	assert.ErrorIs(t, err, ErrNoAddresses)
}

func TestApp_ReconcileAndRecord(t *testing.T) {
	app := newTestApp(t)
	_, err := app.Addresses.Add(domain.BTC, btcAddress)
	require.NoError(t, err)

	report, err := app.ReconcileAndRecord(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "100000", report.Snapshot.Total().String())

	latest, ok, err := app.Runs.Latest()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, report.RunID, latest.Summary.RunID)
}

func TestApp_RunStopsOnCancel(t *testing.T) {
	app := newTestApp(t)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	calls := 0
	err := app.Run(ctx, 10*time.Millisecond, func(context.Context) (*reconciler.Report, error) {
		calls++
		return nil, ErrNoAddresses
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Positive(t, calls)
}
