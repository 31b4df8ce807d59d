package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// HoldingSummary holdings of one asset at the end of a run.
type HoldingSummary struct {
	Quantity decimal.Decimal `json:"quantity"`
	Fiat     decimal.Decimal `json:"fiat"`
}

// RunSummary compact record of one reconciliation run, persisted for the dashboard stream.
type RunSummary struct {
	RunID    string                   `json:"run_id"`
	At       time.Time                `json:"at"`
	Total    decimal.Decimal          `json:"total"`
	Holdings map[Asset]HoldingSummary `json:"holdings"`
	Entries  int                      `json:"entries"`
	Lots     int                      `json:"lots"`
	Issues   int                      `json:"issues"`
	// Incomplete assets whose upstream data could not be fetched.
	Incomplete []Asset `json:"incomplete,omitempty"`
	// Unvalued held assets without a price for the run date, not counted in Total.
	Unvalued []Asset `json:"unvalued,omitempty"`
	Degraded bool    `json:"degraded"`
}

// RunSummaryRecord summary with its position in the store.
type RunSummaryRecord struct {
	Index   uint64     `json:"index"`
	Summary RunSummary `json:"summary"`
}
