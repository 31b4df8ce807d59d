package reconciler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vadiminshakov/cointax/internal/clients"
	"github.com/vadiminshakov/cointax/internal/domain"
	"github.com/vadiminshakov/cointax/internal/services/history"
)

const (
	btcA = "bc1qownerone"
	btcB = "bc1qownertwo"
	ethA = "0x00000000000000000000000000000000000000aa"
	ltcA = "Lowner"
)

var (
	now     = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	btcBuy1 = time.Date(2023, 1, 10, 9, 0, 0, 0, time.UTC)
	btcBuy2 = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	ethBuy  = time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)
	ethSell = time.Date(2024, 8, 1, 9, 0, 0, 0, time.UTC)
)

func base(asset domain.Asset, s string) decimal.Decimal {
	return asset.ToBase(decimal.RequireFromString(s))
}

type fakeDashboards struct {
	byAddress map[string]clients.Dashboard
}

func (f *fakeDashboards) Dashboard(_ context.Context, asset domain.Asset, address string) (clients.Dashboard, error) {
	d, ok := f.byAddress[address]
	if !ok {
		return clients.Dashboard{}, errors.Errorf("no dashboard for %s", address)
	}
	d.Asset = asset
	d.Address = address
	return d, nil
}

type fakeUTXO struct {
	byAddress map[string][]domain.UTXOTx
}

func (f *fakeUTXO) Transactions(_ context.Context, address string, _ int) ([]domain.UTXOTx, error) {
	return f.byAddress[address], nil
}

type fakeFees struct {
	fees map[string]decimal.Decimal
	err  error
}

func (f *fakeFees) Fees(_ context.Context, _ string, log domain.FeeLog) error {
	if f.err != nil {
		return f.err
	}
	for h, fee := range f.fees {
		log.Add(h, fee)
	}
	return nil
}

type fakeTxRefs struct {
	refs []domain.IndexedTxRef
	err  error
}

func (f *fakeTxRefs) TxRefs(context.Context, string) ([]domain.IndexedTxRef, error) {
	return f.refs, f.err
}

type fakePrices struct {
	mu     sync.Mutex
	tables map[domain.Asset]*domain.PriceTable
	calls  int
}

func (f *fakePrices) Prices(_ context.Context, asset domain.Asset) (*domain.PriceTable, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	t, ok := f.tables[asset]
	if !ok {
		return nil, errors.Errorf("no prices for %s", asset)
	}
	return t, nil
}

func priceTable(asset domain.Asset, prices map[time.Time]int64) *domain.PriceTable {
	t := domain.NewPriceTable()
	for day, p := range prices {
		t.Set(asset, day, decimal.NewFromInt(p))
	}
	return t
}

func fixture() Sources {
	tx1 := domain.UTXOTx{
		TxID:      "btc-1",
		BlockTime: btcBuy1,
		Inputs:    []domain.UTXOInput{{Address: "bc1qstranger", Value: base(domain.BTC, "5")}},
		Outputs:   []domain.UTXOOutput{{Address: btcA, Value: base(domain.BTC, "2")}},
	}
	// paid to A and seen again from B's history
	tx2 := domain.UTXOTx{
		TxID:      "btc-2",
		BlockTime: btcBuy2,
		Inputs:    []domain.UTXOInput{{Address: "bc1qstranger", Value: base(domain.BTC, "4")}},
		Outputs:   []domain.UTXOOutput{{Address: btcA, Value: base(domain.BTC, "1")}},
	}

	ethIn := domain.AccountCall{
		Hash: "0xin", Time: ethBuy, Sender: "0x00000000000000000000000000000000000000bb",
		Recipient: ethA, Value: base(domain.ETH, "1"),
	}
	ethOut := domain.AccountCall{
		Hash: "0xout", Time: ethSell, Sender: "0x00000000000000000000000000000000000000AA",
		Recipient: "0x00000000000000000000000000000000000000cc", Value: base(domain.ETH, "0.1"),
	}

	return Sources{
		Dashboards: &fakeDashboards{byAddress: map[string]clients.Dashboard{
			btcA: {Balance: base(domain.BTC, "3"), BalanceUSD: decimal.NewFromInt(239000), TxCount: 2},
			btcB: {Balance: decimal.Zero, TxCount: 1},
			ethA: {Balance: base(domain.ETH, "0.899"), Calls: []domain.AccountCall{ethIn, ethOut, ethIn}},
			ltcA: {Balance: base(domain.LTC, "10")},
		}},
		UTXO: &fakeUTXO{byAddress: map[string][]domain.UTXOTx{
			btcA: {tx2, tx1},
			btcB: {tx2},
		}},
		Fees:   &fakeFees{fees: map[string]decimal.Decimal{"0xout": base(domain.ETH, "0.001")}},
		TxRefs: &fakeTxRefs{err: errors.New("blockcypher: retry budget exhausted")},
		Prices: &fakePrices{tables: map[domain.Asset]*domain.PriceTable{
			domain.BTC: priceTable(domain.BTC, map[time.Time]int64{btcBuy1: 20000, btcBuy2: 60000, now: 80000}),
			domain.ETH: priceTable(domain.ETH, map[time.Time]int64{ethBuy: 2500, ethSell: 3000, now: 2000}),
			domain.LTC: priceTable(domain.LTC, map[time.Time]int64{now: 90}),
		}},
	}
}

func book() domain.AddressBook {
	return domain.AddressBook{
		domain.BTC: {btcA, btcB},
		domain.ETH: {ethA},
		domain.LTC: {ltcA},
	}
}

func newTestReconciler(t *testing.T, sources Sources) *Reconciler {
	t.Helper()

	r, err := New(zap.NewNop(), sources)
	require.NoError(t, err)
	r.now = func() time.Time { return now }

	return r
}

func TestNew_RequiresEverySource(t *testing.T) {
	_, err := New(zap.NewNop(), Sources{})
	assert.Error(t, err)
}

func TestReconcile_BuildsLedgerAndSnapshot(t *testing.T) {
	r := newTestReconciler(t, fixture())

	report, err := r.Reconcile(context.Background(), book())
	require.NoError(t, err)

	assert.NotEmpty(t, report.RunID)
	assert.True(t, report.At.Equal(now))

	require.Len(t, report.Ledger, 4, "btc-2 and 0xin deduplicated")
	assert.Equal(t, "btc-1", report.Ledger[0].ExternalID)
	assert.Equal(t, "0xin", report.Ledger[1].ExternalID)
	assert.Equal(t, "btc-2", report.Ledger[2].ExternalID)
	assert.Equal(t, "0xout", report.Ledger[3].ExternalID)

	out := report.Ledger[3]
	assert.Equal(t, domain.Out, out.Direction)
	assert.Equal(t, "0.101", out.Quantity.String())
	assert.Equal(t, "303", out.FiatValue.Decimal.String())

	assert.Equal(t, "240000", report.Snapshot.Get(domain.BTC).Fiat.String())
	assert.Equal(t, "239000", report.Snapshot.Get(domain.BTC).ReportedFiat.String())
	assert.Equal(t, "1798", report.Snapshot.Get(domain.ETH).Fiat.String())
	assert.Equal(t, 0, report.Unpriced())
	assert.Empty(t, report.Unvalued)
}

func TestReconcile_FailedAssetDegrades(t *testing.T) {
	r := newTestReconciler(t, fixture())

	report, err := r.Reconcile(context.Background(), book())
	require.NoError(t, err)

	require.Contains(t, report.Incomplete, domain.LTC)
	assert.ErrorIs(t, report.Incomplete[domain.LTC], domain.ErrAssetIncomplete)
	assert.Equal(t, []domain.Asset{domain.LTC}, report.IncompleteAssets())
	assert.True(t, report.Snapshot.Get(domain.LTC).BaseUnits.IsZero())
	assert.True(t, report.Degraded())

	for _, h := range report.Holdings() {
		assert.Equal(t, h.Asset == domain.LTC, h.Incomplete)
	}
}

func TestReconcile_RoundTripAndHistory(t *testing.T) {
	r := newTestReconciler(t, fixture())

	report, err := r.Reconcile(context.Background(), book())
	require.NoError(t, err)

	v, err := report.BalanceAt(domain.BTC, now)
	require.NoError(t, err)
	assert.True(t, v.Fiat.Equal(report.Snapshot.Get(domain.BTC).Fiat))

	v, err = report.BalanceAt(domain.BTC, btcBuy2.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "2", v.Quantity.String())
	assert.Equal(t, "120000", v.Fiat.String())

	series, err := report.Series(history.Window1M)
	require.NoError(t, err)
	require.Len(t, series.Points, history.Points)
	assert.True(t, series.Points[history.Points-1].Current)
}

func TestReconcile_MatchesLotsAndTaxes(t *testing.T) {
	r := newTestReconciler(t, fixture())

	report, err := r.Reconcile(context.Background(), book())
	require.NoError(t, err)

	eth := report.Matches.LotsFor(domain.ETH)
	require.Len(t, eth, 1)
	assert.Equal(t, domain.Short, eth[0].Term)
	assert.Equal(t, "50.5", eth[0].Gain.String())
	assert.Empty(t, report.Matches.LotsFor(domain.BTC))

	totals := report.Tax(2024)
	assert.Equal(t, "50.5", totals.Short.String())
	assert.True(t, totals.Long.IsZero())
	assert.Equal(t, 1, totals.ShortLots)
	assert.True(t, report.Tax(2023).Total().IsZero())
}

func TestReconcile_FreshStatePerRun(t *testing.T) {
	r := newTestReconciler(t, fixture())

	first, err := r.Reconcile(context.Background(), book())
	require.NoError(t, err)
	second, err := r.Reconcile(context.Background(), book())
	require.NoError(t, err)

	assert.NotEqual(t, first.RunID, second.RunID)
	assert.Len(t, second.Ledger, len(first.Ledger))
	assert.Equal(t, first.Snapshot.Total().String(), second.Snapshot.Total().String())
}

func TestReconcile_MissingPricesLeaveEntriesUnpriced(t *testing.T) {
	sources := fixture()
	sources.Prices = &fakePrices{tables: map[domain.Asset]*domain.PriceTable{}}
	sources.TxRefs = &fakeTxRefs{}
	r := newTestReconciler(t, sources)

	report, err := r.Reconcile(context.Background(), book())
	require.NoError(t, err)

	assert.Len(t, report.PriceErrors, len(domain.Assets))
	assert.Equal(t, len(report.Ledger), report.Unpriced())
	assert.True(t, report.Snapshot.Total().IsZero())

	for _, lot := range report.Matches.Lots {
		assert.False(t, lot.Priced)
	}

	_, err = report.Change24h()
	assert.Error(t, err)
}

func TestReconcile_MissingCurrentPriceIsNotZero(t *testing.T) {
	sources := fixture()
	sources.TxRefs = &fakeTxRefs{}
	sources.Prices.(*fakePrices).tables[domain.LTC] = priceTable(domain.LTC, map[time.Time]int64{now.AddDate(0, 0, -1): 90})
	r := newTestReconciler(t, sources)

	report, err := r.Reconcile(context.Background(), book())
	require.NoError(t, err)

	ltc := report.Snapshot.Get(domain.LTC)
	assert.Equal(t, "10", ltc.Quantity().String())
	assert.False(t, ltc.Priced)
	assert.Empty(t, report.PriceErrors)
	require.Contains(t, report.Unvalued, domain.LTC)
	assert.ErrorIs(t, report.Unvalued[domain.LTC], domain.ErrPriceMissing)
	assert.True(t, report.Degraded())
	assert.Equal(t, "241798", report.Snapshot.Total().String(), "LTC is left out, not counted as zero")

	_, err = report.BalanceAt(domain.LTC, now)
	assert.ErrorIs(t, err, domain.ErrPriceMissing)

	for _, h := range report.Holdings() {
		assert.Equal(t, h.Asset != domain.LTC, h.Fiat.Valid, h.Asset)
	}

	series, err := report.Series(history.Window5D)
	require.NoError(t, err)
	last := series.Points[history.Points-1]
	assert.True(t, last.Degraded)
	assert.Equal(t, []domain.Asset{domain.LTC}, last.Missing)

	s := report.Summary()
	assert.Equal(t, []domain.Asset{domain.LTC}, s.Unvalued)
	assert.True(t, s.Degraded)
	assert.Contains(t, report.Overview().Unvalued, domain.LTC)
}

func TestReconcile_FeeFailureMarksEthIncomplete(t *testing.T) {
	sources := fixture()
	sources.Fees = &fakeFees{err: errors.New("etherscan down")}
	sources.TxRefs = &fakeTxRefs{}
	r := newTestReconciler(t, sources)

	report, err := r.Reconcile(context.Background(), book())
	require.NoError(t, err)

	assert.Equal(t, []domain.Asset{domain.ETH}, report.IncompleteAssets())
	assert.Empty(t, report.Ledger.ForAsset(domain.ETH))
	assert.Len(t, report.Ledger.ForAsset(domain.BTC), 2)
}

func TestReconcile_EmptyBook(t *testing.T) {
	r := newTestReconciler(t, fixture())

	report, err := r.Reconcile(context.Background(), domain.AddressBook{})
	require.NoError(t, err)
	assert.Empty(t, report.Ledger)
	assert.Empty(t, report.Incomplete)
	assert.True(t, report.Snapshot.Total().IsZero())

	series, err := report.Series(history.WindowAll)
	require.NoError(t, err)
	assert.Len(t, series.Points, 1)
}

func TestReconcile_CancelledContext(t *testing.T) {
	r := newTestReconciler(t, fixture())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Reconcile(ctx, book())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReport_Summary(t *testing.T) {
	r := newTestReconciler(t, fixture())

	report, err := r.Reconcile(context.Background(), book())
	require.NoError(t, err)

	s := report.Summary()
	assert.Equal(t, report.RunID, s.RunID)
	assert.Equal(t, "241798", s.Total.String())
	assert.Equal(t, 4, s.Entries)
	assert.Equal(t, 1, s.Lots)
	assert.Equal(t, []domain.Asset{domain.LTC}, s.Incomplete)
	assert.True(t, s.Degraded)
	assert.Equal(t, "3", s.Holdings[domain.BTC].Quantity.String())

	o := report.Overview()
	assert.Contains(t, o.Incomplete, domain.LTC)
	assert.Len(t, o.Holdings, len(domain.Assets))
}
