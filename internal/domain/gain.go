package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// LongTermThreshold minimum holding period of a long-term lot: 365 days of 86,400,000 ms.
// Leap years are not accounted for.
const LongTermThreshold = 31_536_000_000 * time.Millisecond

// Term holding period classification.
type Term string

const (
	Short Term = "SHORT"
	Long  Term = "LONG"
)

// TermFor classifies the holding period between buy and sell.
func TermFor(buy, sell time.Time) Term {
	if sell.Sub(buy) >= LongTermThreshold {
		return Long
	}

	return Short
}

// GainLot one sell matched against one buy.
type GainLot struct {
	Asset    Asset           `json:"asset"`
	BuyDate  time.Time       `json:"buy_date"`
	SellDate time.Time       `json:"sell_date"`
	Amount   decimal.Decimal `json:"amount"`
	// Gain realized fiat gain, negative for a loss. Zero when the lot is not priced.
	Gain decimal.Decimal `json:"gain"`
	Term Term            `json:"term"`
	// Priced false when the buy or the sell date had no price.
	Priced bool `json:"priced"`
}

// UnmatchedSell part of a sell no earlier acquisition was left for.
type UnmatchedSell struct {
	Asset      Asset           `json:"asset"`
	SellDate   time.Time       `json:"sell_date"`
	Amount     decimal.Decimal `json:"amount"`
	ExternalID string          `json:"external_id"`
}
