// Package pricecache keeps fetched daily closes in sqlite so reruns need fewer upstream requests.
package pricecache

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/cointax/internal/domain"
)

// Schema of the cache database.
const Schema = `
CREATE TABLE IF NOT EXISTS prices (
	asset      TEXT NOT NULL,
	day        TEXT NOT NULL,
	close      TEXT NOT NULL,
	source     TEXT NOT NULL,
	fetched_at TIMESTAMP NOT NULL,
	PRIMARY KEY (asset, day)
);
`

// isoDay sortable day column format.
const isoDay = "2006-01-02"

// SQLite daily price cache.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens or creates the cache at path.
func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrap(err, "open price cache")
	}

	if _, err := db.Exec(Schema); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "create price cache schema")
	}

	return &SQLite{db: db}, nil
}

// Put upserts the closes of one asset. Later writes for the same day win.
func (c *SQLite) Put(ctx context.Context, asset domain.Asset, source string, closes []domain.DailyClose) error {
	if len(closes) == 0 {
		return nil
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin price cache tx")
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO prices (asset, day, close, source, fetched_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(asset, day) DO UPDATE SET
			close = excluded.close,
			source = excluded.source,
			fetched_at = excluded.fetched_at`)
	if err != nil {
		return errors.Wrap(err, "prepare price insert")
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, dc := range closes {
		day := dc.Day.UTC().Format(isoDay)
		if _, err := stmt.ExecContext(ctx, string(asset), day, dc.Close.String(), source, now); err != nil {
			return errors.Wrapf(err, "insert %s price for %s", asset, day)
		}
	}

	return errors.Wrap(tx.Commit(), "commit price cache tx")
}

// Load returns the cached closes of one asset, oldest first.
func (c *SQLite) Load(ctx context.Context, asset domain.Asset) ([]domain.DailyClose, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT day, close FROM prices WHERE asset = ? ORDER BY day`, string(asset))
	if err != nil {
		return nil, errors.Wrapf(err, "query %s prices", asset)
	}
	defer rows.Close()

	var closes []domain.DailyClose
	for rows.Next() {
		var day, closeStr string
		if err := rows.Scan(&day, &closeStr); err != nil {
			return nil, errors.Wrap(err, "scan price row")
		}

		t, err := time.ParseInLocation(isoDay, day, time.UTC)
		if err != nil {
			return nil, errors.Wrapf(err, "parse cached day %q", day)
		}
		price, err := decimal.NewFromString(closeStr)
		if err != nil {
			return nil, errors.Wrapf(err, "parse cached close %q", closeStr)
		}

		closes = append(closes, domain.DailyClose{Day: t, Close: price})
	}

	return closes, errors.Wrap(rows.Err(), "iterate price rows")
}

// LoadInto copies every cached close of the asset into the table and returns how many were copied.
func (c *SQLite) LoadInto(ctx context.Context, asset domain.Asset, table *domain.PriceTable) (int, error) {
	closes, err := c.Load(ctx, asset)
	if err != nil {
		return 0, err
	}

	for _, dc := range closes {
		table.Set(asset, dc.Day, dc.Close)
	}

	return len(closes), nil
}

// Latest returns the newest cached day of the asset, false when nothing is cached.
func (c *SQLite) Latest(ctx context.Context, asset domain.Asset) (time.Time, bool, error) {
	var day sql.NullString
	err := c.db.QueryRowContext(ctx, `SELECT MAX(day) FROM prices WHERE asset = ?`, string(asset)).Scan(&day)
	if err != nil {
		return time.Time{}, false, errors.Wrapf(err, "query latest %s price", asset)
	}
	if !day.Valid {
		return time.Time{}, false, nil
	}

	t, err := time.ParseInLocation(isoDay, day.String, time.UTC)
	if err != nil {
		return time.Time{}, false, errors.Wrapf(err, "parse cached day %q", day.String)
	}

	return t, true, nil
}

// Close closes the database.
func (c *SQLite) Close() error {
	return c.db.Close()
}
