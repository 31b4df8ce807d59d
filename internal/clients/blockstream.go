package clients

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/cointax/internal/domain"
	"github.com/vadiminshakov/cointax/pkg/retrier"
)

// DefaultBlockstreamURL public Esplora API.
const DefaultBlockstreamURL = "https://blockstream.info/api"

// blockstreamPageSize confirmed transactions returned per chain page.
const blockstreamPageSize = 25

type esploraTx struct {
	TxID   string `json:"txid"`
	Status struct {
		Confirmed bool  `json:"confirmed"`
		BlockTime int64 `json:"block_time"`
	} `json:"status"`
	Vin []struct {
		Prevout *struct {
			Address string          `json:"scriptpubkey_address"`
			Value   decimal.Decimal `json:"value"`
		} `json:"prevout"`
	} `json:"vin"`
	Vout []struct {
		Address string          `json:"scriptpubkey_address"`
		Value   decimal.Decimal `json:"value"`
	} `json:"vout"`
}

// Blockstream pages through the confirmed BTC transactions of an address.
type Blockstream struct {
	l       *zap.Logger
	baseURL string
	hc      *http.Client
	r       *retrier.Retrier
}

// NewBlockstream creates a Blockstream client. An empty baseURL selects the public API.
func NewBlockstream(l *zap.Logger, baseURL string, r *retrier.Retrier) *Blockstream {
	if baseURL == "" {
		baseURL = DefaultBlockstreamURL
	}

	return &Blockstream{l: l, baseURL: strings.TrimRight(baseURL, "/"), hc: newHTTPClient(), r: r}
}

// Transactions fetches every confirmed transaction of the address, newest first. expected is the transaction
// count reported by the balance source; paging stops once that many are fetched or a short page arrives.
func (c *Blockstream) Transactions(ctx context.Context, address string, expected int) ([]domain.UTXOTx, error) {
	txs := make([]domain.UTXOTx, 0, max(expected, 0))
	last := ""

	for {
		endpoint := c.baseURL + "/address/" + url.PathEscape(address) + "/txs/chain"
		if last != "" {
			endpoint += "/" + url.PathEscape(last)
		}

		page, err := retrier.DoWithData(c.r, ctx, func(ctx context.Context) ([]esploraTx, error) {
			var page []esploraTx
			err := getJSON(ctx, c.hc, endpoint, &page)
			return page, err
		})
		if err != nil {
			return txs, errors.Wrapf(err, "fetch btc transactions of %s after %q", address, last)
		}

		for _, tx := range page {
			txs = append(txs, tx.toDomain())
		}
		c.l.Debug("fetched btc page",
			zap.String("address", address),
			zap.Int("page", len(page)),
			zap.Int("total", len(txs)))

		if len(page) == 0 || len(page) < blockstreamPageSize || (expected > 0 && len(txs) >= expected) {
			return txs, nil
		}
		last = page[len(page)-1].TxID
	}
}

func (t esploraTx) toDomain() domain.UTXOTx {
	tx := domain.UTXOTx{
		TxID:      t.TxID,
		Confirmed: t.Status.Confirmed,
		Inputs:    make([]domain.UTXOInput, 0, len(t.Vin)),
		Outputs:   make([]domain.UTXOOutput, 0, len(t.Vout)),
	}
	if t.Status.BlockTime > 0 {
		tx.BlockTime = time.Unix(t.Status.BlockTime, 0).UTC()
	}
	for _, in := range t.Vin {
		// coinbase inputs have no previous output
		if in.Prevout == nil {
			continue
		}
		tx.Inputs = append(tx.Inputs, domain.UTXOInput{Address: in.Prevout.Address, Value: in.Prevout.Value})
	}
	for _, out := range t.Vout {
		tx.Outputs = append(tx.Outputs, domain.UTXOOutput{Address: out.Address, Value: out.Value})
	}

	return tx
}
