// Package domain defines the canonical ledger types shared by the reconciliation services.
package domain

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Asset tracked cryptocurrency.
type Asset string

const (
	BTC Asset = "BTC"
	ETH Asset = "ETH"
	LTC Asset = "LTC"
)

// Assets lists every supported asset in display order.
var Assets = []Asset{BTC, ETH, LTC}

// baseUnitExponents number of decimal places between the smallest unit and a whole coin.
var baseUnitExponents = map[Asset]int32{
	BTC: 8,  // satoshi
	ETH: 18, // wei
	LTC: 8,  // litoshi
}

// ParseAsset parses an asset symbol, case-insensitive.
func ParseAsset(s string) (Asset, error) {
	a := Asset(strings.ToUpper(strings.TrimSpace(s)))
	if !a.Valid() {
		return "", errors.Wrapf(ErrUnknownAsset, "%q", s)
	}

	return a, nil
}

// Valid reports whether the asset is one of the supported ones.
func (a Asset) Valid() bool {
	_, ok := baseUnitExponents[a]
	return ok
}

// String returns the asset symbol.
func (a Asset) String() string {
	return string(a)
}

// Name returns the human readable coin name.
func (a Asset) Name() string {
	switch a {
	case BTC:
		return "Bitcoin"
	case ETH:
		return "Ethereum"
	case LTC:
		return "Litecoin"
	default:
		return string(a)
	}
}

// Exponent returns the base unit exponent of the asset.
func (a Asset) Exponent() int32 {
	return baseUnitExponents[a]
}

// ToNatural converts an amount in base units (satoshi, wei, litoshi) to whole coins.
func (a Asset) ToNatural(base decimal.Decimal) decimal.Decimal {
	return base.Shift(-a.Exponent())
}

// ToBase converts an amount in whole coins to base units.
func (a Asset) ToBase(natural decimal.Decimal) decimal.Decimal {
	return natural.Shift(a.Exponent())
}

// ExplorerURL returns a block explorer link for the transaction.
func (a Asset) ExplorerURL(txID string) string {
	if a == LTC {
		return "https://blockchair.com/litecoin/transaction/" + txID
	}

	return "https://www.blockchain.com/explorer/transactions/" + strings.ToLower(string(a)) + "/" + txID
}

// AddressURL returns a block explorer link for the address.
func (a Asset) AddressURL(address string) string {
	return "https://blockchair.com/" + strings.ToLower(a.Name()) + "/address/" + address
}

// Direction whether the owner's holdings grew or shrank.
type Direction string

const (
	In  Direction = "IN"
	Out Direction = "OUT"
)

// ParseDirection parses IN/OUT, case-insensitive.
func ParseDirection(s string) (Direction, error) {
	switch Direction(strings.ToUpper(strings.TrimSpace(s))) {
	case In:
		return In, nil
	case Out:
		return Out, nil
	default:
		return "", errors.Errorf("unknown direction %q", s)
	}
}
