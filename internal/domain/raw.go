package domain

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// RawRecord one chain-native transaction record as fetched from upstream.
// The set of implementations is closed: UTXOTx, AccountCall and IndexedTxRef.
type RawRecord interface {
	// Asset the chain the record belongs to.
	Asset() Asset
	// ID chain transaction id.
	ID() string
	// Timestamp confirmation time.
	Timestamp() time.Time
	// Validate checks the record has every field normalization needs.
	Validate() error

	raw()
}

// UTXOInput spent previous output.
type UTXOInput struct {
	// Address of the previous output, empty for coinbase inputs.
	Address string `json:"address"`
	// Value in satoshi.
	Value decimal.Decimal `json:"value"`
}

// UTXOOutput created output.
type UTXOOutput struct {
	// Address empty for OP_RETURN and other non-standard outputs.
	Address string `json:"address"`
	// Value in satoshi.
	Value decimal.Decimal `json:"value"`
}

// UTXOTx BTC transaction with full inputs and outputs.
type UTXOTx struct {
	TxID      string       `json:"txid"`
	BlockTime time.Time    `json:"block_time"`
	Confirmed bool         `json:"confirmed"`
	Inputs    []UTXOInput  `json:"inputs"`
	Outputs   []UTXOOutput `json:"outputs"`
}

func (UTXOTx) raw() {}

// Asset implements RawRecord.
func (UTXOTx) Asset() Asset { return BTC }

// ID implements RawRecord.
func (t UTXOTx) ID() string { return t.TxID }

// Timestamp implements RawRecord.
func (t UTXOTx) Timestamp() time.Time { return t.BlockTime }

// Validate implements RawRecord.
func (t UTXOTx) Validate() error {
	if strings.TrimSpace(t.TxID) == "" {
		return errors.Wrap(ErrMalformedRecord, "btc tx without txid")
	}
	if t.BlockTime.IsZero() {
		return errors.Wrapf(ErrMalformedRecord, "btc tx %s without block time", t.TxID)
	}
	if len(t.Inputs) == 0 && len(t.Outputs) == 0 {
		return errors.Wrapf(ErrMalformedRecord, "btc tx %s without inputs and outputs", t.TxID)
	}
	for i, in := range t.Inputs {
		if in.Value.IsNegative() {
			return errors.Wrapf(ErrMalformedRecord, "btc tx %s input %d has negative value", t.TxID, i)
		}
	}
	for i, out := range t.Outputs {
		if out.Value.IsNegative() {
			return errors.Wrapf(ErrMalformedRecord, "btc tx %s output %d has negative value", t.TxID, i)
		}
	}

	return nil
}

// AccountCall ETH value transfer between two addresses.
type AccountCall struct {
	Hash      string          `json:"transaction_hash"`
	Time      time.Time       `json:"time"`
	Sender    string          `json:"sender"`
	Recipient string          `json:"recipient"`
	// Value in wei.
	Value decimal.Decimal `json:"value"`
}

func (AccountCall) raw() {}

// Asset implements RawRecord.
func (AccountCall) Asset() Asset { return ETH }

// ID implements RawRecord.
func (c AccountCall) ID() string { return c.Hash }

// Timestamp implements RawRecord.
func (c AccountCall) Timestamp() time.Time { return c.Time }

// Validate implements RawRecord.
func (c AccountCall) Validate() error {
	switch {
	case strings.TrimSpace(c.Hash) == "":
		return errors.Wrap(ErrMalformedRecord, "eth call without hash")
	case c.Time.IsZero():
		return errors.Wrapf(ErrMalformedRecord, "eth call %s without time", c.Hash)
	case c.Sender == "" && c.Recipient == "":
		return errors.Wrapf(ErrMalformedRecord, "eth call %s without sender and recipient", c.Hash)
	case c.Value.IsNegative():
		return errors.Wrapf(ErrMalformedRecord, "eth call %s has negative value", c.Hash)
	}

	return nil
}

// IndexedTxRef LTC transaction reference already scoped to one owner address.
type IndexedTxRef struct {
	Hash      string    `json:"tx_hash"`
	Confirmed time.Time `json:"confirmed"`
	// TxInputN index of the owner's input, negative when the owner received.
	TxInputN int `json:"tx_input_n"`
	// TxOutputN index of the owner's output, negative when the owner spent.
	TxOutputN int `json:"tx_output_n"`
	// Value in litoshi.
	Value decimal.Decimal `json:"value"`
}

func (IndexedTxRef) raw() {}

// Asset implements RawRecord.
func (IndexedTxRef) Asset() Asset { return LTC }

// ID implements RawRecord.
func (r IndexedTxRef) ID() string { return r.Hash }

// Timestamp implements RawRecord.
func (r IndexedTxRef) Timestamp() time.Time { return r.Confirmed }

// Validate implements RawRecord.
func (r IndexedTxRef) Validate() error {
	switch {
	case strings.TrimSpace(r.Hash) == "":
		return errors.Wrap(ErrMalformedRecord, "ltc txref without hash")
	case r.Confirmed.IsZero():
		return errors.Wrapf(ErrMalformedRecord, "ltc txref %s without confirmation time", r.Hash)
	case r.Value.IsNegative():
		return errors.Wrapf(ErrMalformedRecord, "ltc txref %s has negative value", r.Hash)
	}

	return nil
}

// Outgoing reports whether the reference spends an owner input.
func (r IndexedTxRef) Outgoing() bool {
	return r.TxInputN >= 0
}

// FeeLog ETH network fee in wei keyed by lowercased transaction hash.
type FeeLog map[string]decimal.Decimal

// Add records the fee of a transaction.
func (f FeeLog) Add(hash string, fee decimal.Decimal) {
	f[strings.ToLower(hash)] = fee
}

// Fee returns the fee of the transaction, zero when it is not logged.
func (f FeeLog) Fee(hash string) decimal.Decimal {
	if fee, ok := f[strings.ToLower(hash)]; ok {
		return fee
	}

	return decimal.Zero
}

// Has reports whether the fee of the transaction is logged.
func (f FeeLog) Has(hash string) bool {
	_, ok := f[strings.ToLower(hash)]
	return ok
}
