package pricer

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/cointax/internal/domain"
)

// HistoryPath location of the asset's price history file inside dir.
func HistoryPath(dir string, asset domain.Asset) string {
	return filepath.Join(dir, asset.Name()+"_Historical_Data.csv")
}

// LoadCSV reads a price history file into the table and returns how many days were loaded.
func LoadCSV(path string, asset domain.Asset, table *domain.PriceTable) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, errors.Wrap(err, "open price history")
	}
	defer f.Close()

	return ParseCSV(f, asset, table)
}

// ParseCSV reads `MM/DD/YYYY;1.234,56` rows. Rows whose date or price do not parse are skipped.
func ParseCSV(r io.Reader, asset domain.Asset, table *domain.PriceTable) (int, error) {
	reader := csv.NewReader(r)
	reader.Comma = ';'
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	loaded := 0
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return loaded, errors.Wrap(err, "read price history row")
		}
		if len(row) < 2 {
			continue
		}

		day, err := domain.ParseDateKey(strings.TrimSpace(row[0]))
		if err != nil {
			continue
		}
		price, err := parseLocalizedDecimal(row[1])
		if err != nil {
			continue
		}

		table.Set(asset, day, price)
		loaded++
	}

	return loaded, nil
}

// parseLocalizedDecimal parses "1.234,56" style numbers: dots group thousands, the comma is the decimal mark.
func parseLocalizedDecimal(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, ".", "")
	s = strings.Replace(s, ",", ".", 1)

	return decimal.NewFromString(s)
}
