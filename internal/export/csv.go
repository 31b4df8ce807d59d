package export

import (
	"encoding/csv"
	"io"

	"github.com/pkg/errors"

	"github.com/vadiminshakov/cointax/internal/domain"
)

// LedgerHeader columns of the ledger CSV.
var LedgerHeader = []string{"Crypto", "Date", "IN/OUT", "Amount", "$USD Value on TX Date", "TXID"}

// LotsHeader columns of the gain lots CSV.
var LotsHeader = []string{"Crypto", "Buy Date", "Sell Date", "Amount", "Gain", "Term", "Priced"}

// WriteLedger writes the rows as CSV. Unpriced entries have an empty value column.
func WriteLedger(w io.Writer, rows domain.Ledger) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(LedgerHeader); err != nil {
		return errors.Wrap(err, "write ledger header")
	}

	for _, e := range rows {
		fiat := ""
		if e.Priced() {
			fiat = e.FiatValue.Decimal.StringFixed(2)
		}
		record := []string{
			e.Asset.String(),
			e.Date(),
			string(e.Direction),
			e.Quantity.String(),
			fiat,
			e.ExternalID,
		}
		if err := cw.Write(record); err != nil {
			return errors.Wrapf(err, "write ledger row %s", e.ExternalID)
		}
	}

	cw.Flush()
	return errors.Wrap(cw.Error(), "flush ledger csv")
}

// WriteLots writes gain lots as CSV.
func WriteLots(w io.Writer, lots []domain.GainLot) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(LotsHeader); err != nil {
		return errors.Wrap(err, "write lots header")
	}

	for i, lot := range lots {
		priced := "yes"
		if !lot.Priced {
			priced = "no"
		}
		record := []string{
			lot.Asset.String(),
			domain.DateKey(lot.BuyDate),
			domain.DateKey(lot.SellDate),
			lot.Amount.String(),
			lot.Gain.StringFixed(2),
			string(lot.Term),
			priced,
		}
		if err := cw.Write(record); err != nil {
			return errors.Wrapf(err, "write lot %d", i)
		}
	}

	cw.Flush()
	return errors.Wrap(cw.Error(), "flush lots csv")
}
