package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DailyClose closing price of one calendar day.
type DailyClose struct {
	// Day start of the candle, UTC.
	Day time.Time
	// Close closing price in USD.
	Close decimal.Decimal
}

// Key date key of the candle.
func (k DailyClose) Key() string {
	return DateKey(k.Day)
}
