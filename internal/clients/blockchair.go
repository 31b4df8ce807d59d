package clients

import (
	"context"
	"encoding/json"
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

// DefaultBlockchairURL public Blockchair API.
const DefaultBlockchairURL = "https://api.blockchair.com"

const (
	blockchairTimeLayout = "2006-01-02 15:04:05"
	ethCallsLimit        = 10000
)

// Dashboard balance and, for ETH, value transfers of one address.
type Dashboard struct {
	Asset   domain.Asset
	Address string
	// Balance in base units.
	Balance decimal.Decimal
	// BalanceUSD value reported by Blockchair.
	BalanceUSD decimal.Decimal
	TxCount    int
	// Calls ETH value transfers, empty for other assets.
	Calls []domain.AccountCall
}

type blockchairResponse struct {
	Data    json.RawMessage `json:"data"`
	Context struct {
		Code  int    `json:"code"`
		Error string `json:"error"`
	} `json:"context"`
}

type blockchairDashboard struct {
	Address *struct {
		Balance          decimal.Decimal `json:"balance"`
		BalanceUSD       decimal.Decimal `json:"balance_usd"`
		TransactionCount int             `json:"transaction_count"`
	} `json:"address"`
	Calls []struct {
		TransactionHash string          `json:"transaction_hash"`
		Time            string          `json:"time"`
		Sender          string          `json:"sender"`
		Recipient       string          `json:"recipient"`
		Value           decimal.Decimal `json:"value"`
	} `json:"calls"`
}

// Blockchair fetches address dashboards.
type Blockchair struct {
	l       *zap.Logger
	baseURL string
	apiKey  string
	hc      *http.Client
	r       *retrier.Retrier
}

// NewBlockchair creates a Blockchair client. An empty baseURL selects the public API; apiKey may be empty.
func NewBlockchair(l *zap.Logger, baseURL, apiKey string, r *retrier.Retrier) *Blockchair {
	if baseURL == "" {
		baseURL = DefaultBlockchairURL
	}

	return &Blockchair{l: l, baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey, hc: newHTTPClient(), r: r}
}

// Dashboard fetches the dashboard of one address. The entry is looked up by the requested address,
// case-insensitively; a response without it is an error.
func (c *Blockchair) Dashboard(ctx context.Context, asset domain.Asset, address string) (Dashboard, error) {
	chain := chainName(asset)
	if chain == "" {
		return Dashboard{}, errors.Wrapf(domain.ErrUnknownAsset, "%q", asset)
	}

	q := url.Values{}
	if asset == domain.ETH {
		q.Set("limit", strconv.Itoa(ethCallsLimit))
	}
	if c.apiKey != "" {
		q.Set("key", c.apiKey)
	}
	endpoint := c.baseURL + "/" + chain + "/dashboards/address/" + url.PathEscape(address)
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}

	resp, err := retrier.DoWithData(c.r, ctx, func(ctx context.Context) (blockchairResponse, error) {
		var resp blockchairResponse
		err := getJSON(ctx, c.hc, endpoint, &resp)
		return resp, err
	})
	if err != nil {
		return Dashboard{}, errors.Wrapf(err, "fetch %s dashboard of %s", asset, address)
	}
	if resp.Context.Error != "" {
		return Dashboard{}, errors.Errorf("blockchair %s dashboard of %s: %s", asset, address, resp.Context.Error)
	}

	raw, ok := lookupAddress(resp.Data, address)
	if !ok {
		return Dashboard{}, errors.Wrapf(domain.ErrMalformedRecord, "blockchair response has no entry for %s", address)
	}

	var dash blockchairDashboard
	if err := json.Unmarshal(raw, &dash); err != nil {
		return Dashboard{}, errors.Wrapf(domain.ErrMalformedRecord, "blockchair dashboard of %s: %s", address, err)
	}
	if dash.Address == nil {
		return Dashboard{}, errors.Wrapf(domain.ErrMalformedRecord, "blockchair dashboard of %s has no address section", address)
	}

	out := Dashboard{
		Asset:      asset,
		Address:    address,
		Balance:    dash.Address.Balance,
		BalanceUSD: dash.Address.BalanceUSD,
		TxCount:    dash.Address.TransactionCount,
	}
	for _, call := range dash.Calls {
		at, err := time.ParseInLocation(blockchairTimeLayout, call.Time, time.UTC)
		if err != nil {
			// the normalizer rejects the zero time and reports the record
			c.l.Debug("unparsable call time", zap.String("txid", call.TransactionHash), zap.String("time", call.Time))
			at = time.Time{}
		}
		out.Calls = append(out.Calls, domain.AccountCall{
			Hash:      call.TransactionHash,
			Time:      at,
			Sender:    call.Sender,
			Recipient: call.Recipient,
			Value:     call.Value,
		})
	}
	if asset == domain.ETH && len(out.Calls) >= ethCallsLimit {
		c.l.Warn("eth call list truncated", zap.String("address", address), zap.Int("limit", ethCallsLimit))
	}

	return out, nil
}

func lookupAddress(body json.RawMessage, address string) (json.RawMessage, bool) {
	// an address unknown to blockchair comes back as an empty array
	var data map[string]json.RawMessage
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, false
	}
	if raw, ok := data[address]; ok {
		return raw, true
	}
	for key, raw := range data {
		if strings.EqualFold(key, address) {
			return raw, true
		}
	}

	return nil, false
}
