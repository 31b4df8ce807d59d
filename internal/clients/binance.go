package clients

import (
	"context"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/cointax/internal/domain"
	"github.com/vadiminshakov/cointax/pkg/retrier"
)

// binanceMaxKlines upper bound of one klines request.
const binanceMaxKlines = 1000

// NewBinanceClient creates an unauthenticated market data client. A non-empty baseURL overrides the endpoint.
func NewBinanceClient(baseURL string) *binance.Client {
	client := binance.NewClient("", "")
	if baseURL != "" {
		client.BaseURL = baseURL
	}
	return client
}

// Binance fetches daily closing prices of the asset's USDT market.
type Binance struct {
	l      *zap.Logger
	client *binance.Client
	r      *retrier.Retrier
}

// NewBinance creates a Binance price source.
func NewBinance(l *zap.Logger, client *binance.Client, r *retrier.Retrier) *Binance {
	return &Binance{l: l, client: client, r: r}
}

// DailyCloses fetches up to days daily candles, oldest first.
func (b *Binance) DailyCloses(ctx context.Context, asset domain.Asset, days int) ([]domain.DailyClose, error) {
	if days > binanceMaxKlines {
		days = binanceMaxKlines
	}
	pair := domain.USDPair(asset)

	klines, err := retrier.DoWithData(b.r, ctx, func(ctx context.Context) ([]*binance.Kline, error) {
		return b.client.NewKlinesService().
			Symbol(pair.Symbol()).
			Interval("1d").
			Limit(days).
			Do(ctx)
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to fetch klines from Binance for %s", pair.String())
	}

	closes := make([]domain.DailyClose, 0, len(klines))
	for i, k := range klines {
		price, err := decimal.NewFromString(k.Close)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse close price at index %d", i)
		}
		closes = append(closes, domain.DailyClose{
			Day:   time.UnixMilli(k.OpenTime).UTC(),
			Close: price,
		})
	}

	b.l.Debug("fetched binance klines", zap.String("symbol", pair.Symbol()), zap.Int("days", len(closes)))

	return closes, nil
}
