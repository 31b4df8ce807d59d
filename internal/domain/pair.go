package domain

import "fmt"

// Pair exchange market used as a daily price source.
type Pair struct {
	// From base currency symbol.
	From string
	// To quote currency symbol.
	To string
}

// USDPair returns the USD-stable market of the asset.
func USDPair(asset Asset) Pair {
	return Pair{From: asset.String(), To: "USDT"}
}

// String returns the string representation.
func (p *Pair) String() string {
	return fmt.Sprintf("%s_%s", p.From, p.To)
}

// Symbol returns the concatenated symbol representation.
func (p *Pair) Symbol() string {
	return fmt.Sprintf("%s%s", p.From, p.To)
}
