// Package normalizer converts chain-native transaction records into canonical ledger entries.
package normalizer

import (
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/cointax/internal/domain"
)

// Issue a record skipped during a batch.
type Issue struct {
	Asset      domain.Asset `json:"asset"`
	ExternalID string       `json:"external_id"`
	Err        error        `json:"-"`
	Reason     string       `json:"reason"`
}

// Batch result of normalizing one asset's records.
type Batch struct {
	Entries domain.Ledger
	Issues  []Issue
	// Discarded records that had no effect on the owner's holdings.
	Discarded int
}

// Normalizer classifies raw records against the owner's address set.
type Normalizer struct {
	l      *zap.Logger
	prices domain.PriceBook
}

// New creates a Normalizer. prices may be nil, in which case no entry is priced.
func New(l *zap.Logger, prices domain.PriceBook) *Normalizer {
	return &Normalizer{l: l, prices: prices}
}

// Normalize converts one record into at most one entry. ok is false for records with no effect on the owner's
// holdings. fees is consulted for ETH only and may be nil.
func (n *Normalizer) Normalize(rec domain.RawRecord, owner domain.AddressSet, fees domain.FeeLog) (entry domain.LedgerEntry, ok bool, err error) {
	if rec == nil {
		return domain.LedgerEntry{}, false, errors.Wrap(domain.ErrMalformedRecord, "nil record")
	}
	if err := rec.Validate(); err != nil {
		return domain.LedgerEntry{}, false, err
	}

	var (
		dir      domain.Direction
		quantity decimal.Decimal
	)
	switch r := rec.(type) {
	case domain.UTXOTx:
		dir, quantity = netUTXO(r, owner)
	case domain.AccountCall:
		dir, quantity, ok = n.classifyAccount(r, owner, fees)
		if !ok {
			return domain.LedgerEntry{}, false, nil
		}
	case domain.IndexedTxRef:
		dir, quantity = classifyIndexed(r)
	default:
		return domain.LedgerEntry{}, false, errors.Wrapf(domain.ErrMalformedRecord, "unsupported record type %T", rec)
	}

	asset := rec.Asset()
	natural := asset.ToNatural(quantity)
	if !natural.IsPositive() {
		return domain.LedgerEntry{}, false, nil
	}

	at := rec.Timestamp()
	fiat := decimal.NullDecimal{}
	if n.prices != nil {
		fiat = domain.FiatValue(n.prices, asset, at, natural)
	}

	entry, err = domain.NewLedgerEntry(asset, at, dir, natural, fiat, rec.ID())
	if err != nil {
		return domain.LedgerEntry{}, false, errors.Wrapf(domain.ErrMalformedRecord, "%s %s: %s", asset, rec.ID(), err)
	}

	return entry, true, nil
}

// NormalizeBatch normalizes every record of one asset. Malformed records are skipped and reported as issues;
// the batch never fails as a whole.
func (n *Normalizer) NormalizeBatch(asset domain.Asset, recs []domain.RawRecord, owner domain.AddressSet, fees domain.FeeLog) Batch {
	batch := Batch{Entries: make(domain.Ledger, 0, len(recs))}
	unpriced := 0

	for _, rec := range recs {
		if rec == nil {
			batch.Issues = append(batch.Issues, n.issue(asset, "", errors.Wrap(domain.ErrMalformedRecord, "nil record")))
			continue
		}
		if rec.Asset() != asset {
			batch.Issues = append(batch.Issues, n.issue(asset, rec.ID(),
				errors.Wrapf(domain.ErrMalformedRecord, "%s record in %s batch", rec.Asset(), asset)))
			continue
		}

		entry, ok, err := n.Normalize(rec, owner, fees)
		if err != nil {
			batch.Issues = append(batch.Issues, n.issue(asset, rec.ID(), err))
			continue
		}
		if !ok {
			batch.Discarded++
			continue
		}
		if !entry.Priced() {
			unpriced++
		}
		batch.Entries = append(batch.Entries, entry)
	}

	n.l.Debug("normalized batch",
		zap.String("asset", asset.String()),
		zap.Int("records", len(recs)),
		zap.Int("entries", len(batch.Entries)),
		zap.Int("skipped", len(batch.Issues)),
		zap.Int("discarded", batch.Discarded),
		zap.Int("unpriced", unpriced))

	return batch
}

func (n *Normalizer) issue(asset domain.Asset, id string, err error) Issue {
	n.l.Warn("skipping transaction record",
		zap.String("asset", asset.String()),
		zap.String("txid", id),
		zap.Error(err))

	return Issue{Asset: asset, ExternalID: id, Err: err, Reason: err.Error()}
}

// netUTXO sums owner outputs minus owner inputs. Self transfers and change net out.
func netUTXO(tx domain.UTXOTx, owner domain.AddressSet) (domain.Direction, decimal.Decimal) {
	net := decimal.Zero
	for _, out := range tx.Outputs {
		if owner.Contains(out.Address) {
			net = net.Add(out.Value)
		}
	}
	for _, in := range tx.Inputs {
		if owner.Contains(in.Address) {
			net = net.Sub(in.Value)
		}
	}

	if net.IsNegative() {
		return domain.Out, net.Neg()
	}

	return domain.In, net
}

func (n *Normalizer) classifyAccount(c domain.AccountCall, owner domain.AddressSet, fees domain.FeeLog) (domain.Direction, decimal.Decimal, bool) {
	sent := owner.Contains(c.Sender)
	received := owner.Contains(c.Recipient)

	fee := decimal.Zero
	if sent {
		if fees.Has(c.Hash) {
			fee = fees.Fee(c.Hash)
		} else {
			n.l.Debug("fee not logged, assuming zero", zap.String("txid", c.Hash))
		}
	}

	switch {
	case sent && received:
		// value stays with the owner, only the fee leaves
		return domain.Out, fee, true
	case sent:
		return domain.Out, c.Value.Add(fee), true
	case received:
		return domain.In, c.Value, true
	default:
		n.l.Debug("owner is neither sender nor recipient, discarding",
			zap.String("txid", c.Hash),
			zap.String("sender", c.Sender),
			zap.String("recipient", c.Recipient))
		return "", decimal.Zero, false
	}
}

func classifyIndexed(r domain.IndexedTxRef) (domain.Direction, decimal.Decimal) {
	if r.Outgoing() {
		return domain.Out, r.Value
	}

	return domain.In, r.Value
}
