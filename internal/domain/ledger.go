package domain

import (
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// LedgerEntry one economic event affecting the owner's holdings of one asset.
// Entries are created once by the normalizer and only read afterwards.
type LedgerEntry struct {
	// Asset the coin that moved.
	Asset Asset `json:"asset"`
	// Time confirmation time, UTC.
	Time time.Time `json:"time"`
	// Direction IN when the owner's holdings grew.
	Direction Direction `json:"direction"`
	// Quantity amount moved in whole coins, always positive.
	Quantity decimal.Decimal `json:"quantity"`
	// FiatValue USD value of Quantity at the transaction date. Invalid when the date has no price.
	FiatValue decimal.NullDecimal `json:"fiat_value"`
	// ExternalID chain transaction id, for display and linking only.
	ExternalID string `json:"external_id"`
}

// NewLedgerEntry creates a validated LedgerEntry.
func NewLedgerEntry(asset Asset, at time.Time, dir Direction, quantity decimal.Decimal, fiat decimal.NullDecimal, externalID string) (LedgerEntry, error) {
	if !asset.Valid() {
		return LedgerEntry{}, errors.Wrapf(ErrUnknownAsset, "%q", asset)
	}
	if dir != In && dir != Out {
		return LedgerEntry{}, errors.Errorf("invalid direction %q", dir)
	}
	if quantity.LessThanOrEqual(decimal.Zero) {
		return LedgerEntry{}, errors.Errorf("quantity must be positive, got %s", quantity.String())
	}
	if at.IsZero() {
		return LedgerEntry{}, errors.New("timestamp is required")
	}
	if strings.TrimSpace(externalID) == "" {
		return LedgerEntry{}, errors.New("external id is required")
	}

	return LedgerEntry{
		Asset:      asset,
		Time:       at.UTC(),
		Direction:  dir,
		Quantity:   quantity,
		FiatValue:  fiat,
		ExternalID: externalID,
	}, nil
}

// Priced reports whether the entry has a fiat value.
func (e LedgerEntry) Priced() bool {
	return e.FiatValue.Valid
}

// PricePerUnit fiat value of one coin at the transaction date.
func (e LedgerEntry) PricePerUnit() decimal.Decimal {
	if !e.FiatValue.Valid || e.Quantity.IsZero() {
		return decimal.Zero
	}

	return e.FiatValue.Decimal.Div(e.Quantity)
}

// Signed returns the quantity with the sign of its effect on holdings.
func (e LedgerEntry) Signed() decimal.Decimal {
	if e.Direction == Out {
		return e.Quantity.Neg()
	}

	return e.Quantity
}

// Date calendar date key of the entry.
func (e LedgerEntry) Date() string {
	return DateKey(e.Time)
}

// Ledger ordered sequence of entries.
type Ledger []LedgerEntry

// SortChronological returns a copy sorted oldest first. Ties are broken by external id so the order is stable
// across runs.
func (l Ledger) SortChronological() Ledger {
	out := make(Ledger, len(l))
	copy(out, l)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Time.Equal(out[j].Time) {
			return out[i].Time.Before(out[j].Time)
		}
		return out[i].ExternalID < out[j].ExternalID
	})

	return out
}

// ForAsset returns the entries of one asset, preserving order.
func (l Ledger) ForAsset(asset Asset) Ledger {
	out := make(Ledger, 0, len(l))
	for _, e := range l {
		if e.Asset == asset {
			out = append(out, e)
		}
	}

	return out
}

// Earliest returns the oldest entry time and false when the ledger is empty.
func (l Ledger) Earliest() (time.Time, bool) {
	var earliest time.Time
	for i, e := range l {
		if i == 0 || e.Time.Before(earliest) {
			earliest = e.Time
		}
	}

	return earliest, len(l) > 0
}

// AddressSet owner's addresses for one asset.
type AddressSet struct {
	asset     Asset
	addresses map[string]struct{}
}

// NewAddressSet builds the owner set. ETH addresses compare case-insensitively.
func NewAddressSet(asset Asset, addresses []string) AddressSet {
	set := AddressSet{asset: asset, addresses: make(map[string]struct{}, len(addresses))}
	for _, a := range addresses {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		set.addresses[set.key(a)] = struct{}{}
	}

	return set
}

// Contains reports whether address belongs to the owner.
func (s AddressSet) Contains(address string) bool {
	if address == "" {
		return false
	}
	_, ok := s.addresses[s.key(address)]

	return ok
}

// Len number of distinct addresses.
func (s AddressSet) Len() int {
	return len(s.addresses)
}

func (s AddressSet) key(address string) string {
	if s.asset == ETH {
		return strings.ToLower(address)
	}

	return address
}

// AddressBook owner's addresses per asset.
type AddressBook map[Asset][]string

// Set returns the owner set for the asset.
func (b AddressBook) Set(asset Asset) AddressSet {
	return NewAddressSet(asset, b[asset])
}

// Empty reports whether no address is configured at all.
func (b AddressBook) Empty() bool {
	for _, addrs := range b {
		if len(addrs) > 0 {
			return false
		}
	}

	return true
}
