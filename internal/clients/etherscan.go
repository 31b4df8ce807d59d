package clients

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/url"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/cointax/internal/domain"
	"github.com/vadiminshakov/cointax/pkg/retrier"
)

// DefaultEtherscanURL public Etherscan API.
const DefaultEtherscanURL = "https://api.etherscan.io/api"

type etherscanResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  etherscanResult `json:"result"`
}

type etherscanTx struct {
	Hash     string `json:"hash"`
	From     string `json:"from"`
	Gas      string `json:"gas"`
	GasPrice string `json:"gasPrice"`
	GasUsed  string `json:"gasUsed"`
}

// etherscanResult is a tx list on success and an error string otherwise.
type etherscanResult struct {
	Txs   []etherscanTx
	Error string
}

func (r *etherscanResult) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		return json.Unmarshal(b, &r.Error)
	}

	return json.Unmarshal(b, &r.Txs)
}

// Etherscan fetches the network fees of an address's outgoing transactions.
type Etherscan struct {
	l       *zap.Logger
	baseURL string
	apiKey  string
	hc      *http.Client
	r       *retrier.Retrier
}

// NewEtherscan creates an Etherscan client. An empty baseURL selects the public API.
func NewEtherscan(l *zap.Logger, baseURL, apiKey string, r *retrier.Retrier) *Etherscan {
	if baseURL == "" {
		baseURL = DefaultEtherscanURL
	}

	return &Etherscan{l: l, baseURL: baseURL, apiKey: apiKey, hc: newHTTPClient(), r: r}
}

// Fees adds to log the fee in wei of every transaction sent by address. Fee is gasUsed × gasPrice, falling back to
// the gas limit when gasUsed is absent. Transactions with unparsable numbers are skipped.
func (c *Etherscan) Fees(ctx context.Context, address string, log domain.FeeLog) error {
	if !common.IsHexAddress(address) {
		return errors.Errorf("invalid eth address %q", address)
	}

	q := url.Values{}
	q.Set("module", "account")
	q.Set("action", "txlist")
	q.Set("address", address)
	q.Set("startblock", "0")
	q.Set("endblock", "99999999")
	if c.apiKey != "" {
		q.Set("apikey", c.apiKey)
	}
	endpoint := c.baseURL + "?" + q.Encode()

	resp, err := retrier.DoWithData(c.r, ctx, func(ctx context.Context) (etherscanResponse, error) {
		var resp etherscanResponse
		if err := getJSON(ctx, c.hc, endpoint, &resp); err != nil {
			return resp, err
		}
		if resp.Status != "1" && !strings.HasPrefix(resp.Message, "No transactions found") {
			// rate limits are reported with status 0 and a 200 response
			return resp, errors.Errorf("etherscan: %s: %s", resp.Message, resp.Result.Error)
		}
		return resp, nil
	})
	if err != nil {
		return errors.Wrapf(err, "fetch eth fees of %s", address)
	}

	owner := common.HexToAddress(address)
	skipped := 0
	for _, tx := range resp.Result.Txs {
		if !common.IsHexAddress(tx.From) || common.HexToAddress(tx.From) != owner {
			continue
		}
		fee, ok := txFee(tx)
		if !ok {
			skipped++
			continue
		}
		log.Add(tx.Hash, fee)
	}

	c.l.Debug("fetched eth fees",
		zap.String("address", address),
		zap.Int("txs", len(resp.Result.Txs)),
		zap.Int("fees", len(log)),
		zap.Int("skipped", skipped))

	return nil
}

func txFee(tx etherscanTx) (decimal.Decimal, bool) {
	price, ok := math.ParseBig256(tx.GasPrice)
	if !ok || tx.GasPrice == "" {
		return decimal.Zero, false
	}

	gas, ok := math.ParseBig256(tx.GasUsed)
	if !ok || tx.GasUsed == "" {
		gas, ok = math.ParseBig256(tx.Gas)
		if !ok || tx.Gas == "" {
			return decimal.Zero, false
		}
	}

	return decimal.NewFromBigInt(new(big.Int).Mul(gas, price), 0), true
}
