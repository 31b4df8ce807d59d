package clients

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/cointax/internal/domain"
	"github.com/vadiminshakov/cointax/pkg/retrier"
)

// DefaultCoinGeckoURL public CoinGecko API.
const DefaultCoinGeckoURL = "https://api.coingecko.com/api/v3"

// CoinGecko fetches daily USD prices.
type CoinGecko struct {
	l       *zap.Logger
	baseURL string
	apiKey  string
	hc      *http.Client
	r       *retrier.Retrier
}

// NewCoinGecko creates a CoinGecko client. An empty baseURL selects the public API.
func NewCoinGecko(l *zap.Logger, baseURL, apiKey string, r *retrier.Retrier) *CoinGecko {
	if baseURL == "" {
		baseURL = DefaultCoinGeckoURL
	}

	return &CoinGecko{l: l, baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey, hc: newHTTPClient(), r: r}
}

type marketChart struct {
	Prices [][]decimal.Decimal `json:"prices"`
}

// DailyCloses fetches the last days of USD prices of the asset. With several samples on one date the latest wins.
func (c *CoinGecko) DailyCloses(ctx context.Context, asset domain.Asset, days int) ([]domain.DailyClose, error) {
	coin := chainName(asset)
	if coin == "" {
		return nil, errors.Wrapf(domain.ErrUnknownAsset, "%q", asset)
	}

	q := url.Values{}
	q.Set("vs_currency", "usd")
	q.Set("days", strconv.Itoa(days))
	if c.apiKey != "" {
		q.Set("x_cg_demo_api_key", c.apiKey)
	}
	endpoint := c.baseURL + "/coins/" + coin + "/market_chart?" + q.Encode()

	chart, err := retrier.DoWithData(c.r, ctx, func(ctx context.Context) (marketChart, error) {
		var chart marketChart
		err := getJSON(ctx, c.hc, endpoint, &chart)
		return chart, err
	})
	if err != nil {
		return nil, errors.Wrapf(err, "fetch %s prices", asset)
	}

	byDay := make(map[string]int, len(chart.Prices))
	closes := make([]domain.DailyClose, 0, len(chart.Prices))
	for _, point := range chart.Prices {
		if len(point) < 2 {
			continue
		}
		ts := time.UnixMilli(point[0].IntPart()).UTC()
		day := time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
		k := domain.DailyClose{Day: day, Close: point[1]}
		if i, ok := byDay[k.Key()]; ok {
			closes[i] = k
			continue
		}
		byDay[k.Key()] = len(closes)
		closes = append(closes, k)
	}

	c.l.Debug("fetched coingecko prices", zap.String("asset", asset.String()), zap.Int("days", len(closes)))

	return closes, nil
}
