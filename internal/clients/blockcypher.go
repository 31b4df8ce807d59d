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

// DefaultBlockcypherURL public Blockcypher LTC API.
const DefaultBlockcypherURL = "https://api.blockcypher.com/v1/ltc/main"

const blockcypherPageLimit = 2000

type blockcypherAddress struct {
	Balance decimal.Decimal `json:"final_balance"`
	TxRefs  []struct {
		TxHash      string          `json:"tx_hash"`
		BlockHeight int64           `json:"block_height"`
		TxInputN    int             `json:"tx_input_n"`
		TxOutputN   int             `json:"tx_output_n"`
		Value       decimal.Decimal `json:"value"`
		Confirmed   string          `json:"confirmed"`
	} `json:"txrefs"`
	HasMore bool `json:"hasMore"`
}

// Blockcypher pages through the LTC transaction references of an address.
type Blockcypher struct {
	l       *zap.Logger
	baseURL string
	hc      *http.Client
	r       *retrier.Retrier
}

// NewBlockcypher creates a Blockcypher client. An empty baseURL selects the public API.
func NewBlockcypher(l *zap.Logger, baseURL string, r *retrier.Retrier) *Blockcypher {
	if baseURL == "" {
		baseURL = DefaultBlockcypherURL
	}

	return &Blockcypher{l: l, baseURL: strings.TrimRight(baseURL, "/"), hc: newHTTPClient(), r: r}
}

// TxRefs fetches every confirmed transaction reference of the address, paging backwards by block height.
func (c *Blockcypher) TxRefs(ctx context.Context, address string) ([]domain.IndexedTxRef, error) {
	refs := make([]domain.IndexedTxRef, 0)
	var before int64

	for {
		q := url.Values{}
		q.Set("limit", strconv.Itoa(blockcypherPageLimit))
		if before > 0 {
			q.Set("before", strconv.FormatInt(before, 10))
		}
		endpoint := c.baseURL + "/addrs/" + url.PathEscape(address) + "?" + q.Encode()

		page, err := retrier.DoWithData(c.r, ctx, func(ctx context.Context) (blockcypherAddress, error) {
			var page blockcypherAddress
			err := getJSON(ctx, c.hc, endpoint, &page)
			return page, err
		})
		if err != nil {
			return refs, errors.Wrapf(err, "fetch ltc txrefs of %s before block %d", address, before)
		}

		for _, ref := range page.TxRefs {
			confirmed, err := time.Parse(time.RFC3339, ref.Confirmed)
			if err != nil {
				// rejected by the normalizer as a malformed record
				confirmed = time.Time{}
			}
			refs = append(refs, domain.IndexedTxRef{
				Hash:      ref.TxHash,
				Confirmed: confirmed.UTC(),
				TxInputN:  ref.TxInputN,
				TxOutputN: ref.TxOutputN,
				Value:     ref.Value,
			})
		}
		c.l.Debug("fetched ltc page",
			zap.String("address", address),
			zap.Int("page", len(page.TxRefs)),
			zap.Int("total", len(refs)),
			zap.Bool("more", page.HasMore))

		if !page.HasMore || len(page.TxRefs) == 0 {
			return refs, nil
		}
		next := page.TxRefs[len(page.TxRefs)-1].BlockHeight
		if before > 0 && next >= before {
			return refs, errors.Errorf("ltc paging of %s stuck at block %d", address, next)
		}
		before = next
	}
}
