package clients

import (
	"context"
	"sort"
	"strconv"
	"time"

	"github.com/hirokisan/bybit/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/cointax/internal/domain"
	"github.com/vadiminshakov/cointax/pkg/retrier"
)

// bybitMaxKlines upper bound of one V5 kline request.
const bybitMaxKlines = 1000

// NewBybitClient creates an unauthenticated V5 market client. A non-empty baseURL overrides the endpoint.
func NewBybitClient(baseURL string) *bybit.Client {
	client := bybit.NewClient()
	if baseURL != "" {
		client = client.WithBaseURL(baseURL)
	}
	return client
}

// Bybit fetches daily closing prices of the asset's USDT spot market.
type Bybit struct {
	l      *zap.Logger
	client *bybit.Client
	r      *retrier.Retrier
}

// NewBybit creates a Bybit price source.
func NewBybit(l *zap.Logger, client *bybit.Client, r *retrier.Retrier) *Bybit {
	return &Bybit{l: l, client: client, r: r}
}

// DailyCloses fetches up to days daily spot candles, oldest first.
func (b *Bybit) DailyCloses(ctx context.Context, asset domain.Asset, days int) ([]domain.DailyClose, error) {
	if days > bybitMaxKlines {
		days = bybitMaxKlines
	}
	pair := domain.USDPair(asset)
	symbol := bybit.SymbolV5(pair.Symbol())

	res, err := retrier.DoWithData(b.r, ctx, func(context.Context) (*bybit.V5GetKlineResponse, error) {
		return b.client.V5().Market().GetKline(bybit.V5GetKlineParam{
			Category: "spot",
			Symbol:   symbol,
			Interval: "D",
			Limit:    &days,
		})
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to fetch klines from Bybit for %s", pair.String())
	}

	closes := make([]domain.DailyClose, 0, len(res.Result.List))
	for i, k := range res.Result.List {
		start, err := strconv.ParseInt(k.StartTime, 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse start time at index %d", i)
		}
		price, err := decimal.NewFromString(k.Close)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse close price at index %d", i)
		}
		closes = append(closes, domain.DailyClose{
			Day:   time.UnixMilli(start).UTC(),
			Close: price,
		})
	}
	// bybit lists newest first
	sort.Slice(closes, func(i, j int) bool { return closes[i].Day.Before(closes[j].Day) })

	b.l.Debug("fetched bybit klines", zap.String("symbol", pair.Symbol()), zap.Int("days", len(closes)))

	return closes, nil
}
