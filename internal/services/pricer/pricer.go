// Package pricer builds the daily price book from the local CSV history, the sqlite cache and the market data APIs.
package pricer

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/cointax/internal/domain"
)

// Source daily close provider.
type Source interface {
	DailyCloses(ctx context.Context, asset domain.Asset, days int) ([]domain.DailyClose, error)
}

// Cache persistent daily close storage.
type Cache interface {
	Put(ctx context.Context, asset domain.Asset, source string, closes []domain.DailyClose) error
	LoadInto(ctx context.Context, asset domain.Asset, table *domain.PriceTable) (int, error)
}

// NamedSource source with a name used in logs and cache rows.
type NamedSource struct {
	Name string
	Source
}

// Pricer layers price sources into a single table per asset.
// Order: CSV history, cache, primary source, then fallback sources filling gaps only.
type Pricer struct {
	l       *zap.Logger
	csvDir  string
	cache   Cache
	days    int
	sources []NamedSource
}

// New creates a Pricer. csvDir and cache are optional.
func New(l *zap.Logger, csvDir string, cache Cache, days int, sources ...NamedSource) *Pricer {
	return &Pricer{
		l:       l,
		csvDir:  csvDir,
		cache:   cache,
		days:    days,
		sources: sources,
	}
}

// Prices builds the table of one asset. It fails only when no layer produced any price.
func (p *Pricer) Prices(ctx context.Context, asset domain.Asset) (*domain.PriceTable, error) {
	table := domain.NewPriceTable()

	if p.csvDir != "" {
		n, err := LoadCSV(HistoryPath(p.csvDir, asset), asset, table)
		if err != nil {
			p.l.Warn("price history csv unavailable", zap.String("asset", asset.String()), zap.Error(err))
		} else {
			p.l.Debug("loaded price history csv", zap.String("asset", asset.String()), zap.Int("days", n))
		}
	}

	if p.cache != nil {
		if _, err := p.cache.LoadInto(ctx, asset, table); err != nil {
			p.l.Warn("price cache read failed", zap.String("asset", asset.String()), zap.Error(err))
		}
	}

	var lastErr error
	for i, src := range p.sources {
		closes, err := src.DailyCloses(ctx, asset, p.days)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			p.l.Warn("price source failed",
				zap.String("source", src.Name),
				zap.String("asset", asset.String()),
				zap.Error(err))
			continue
		}

		filled := 0
		for _, dc := range closes {
			if i == 0 {
				table.Set(asset, dc.Day, dc.Close)
				filled++
				continue
			}
			if table.Fill(asset, dc.Day, dc.Close) {
				filled++
			}
		}

		if p.cache != nil {
			if err := p.cache.Put(ctx, asset, src.Name, closes); err != nil {
				p.l.Warn("price cache write failed", zap.String("asset", asset.String()), zap.Error(err))
			}
		}

		p.l.Debug("applied price source",
			zap.String("source", src.Name),
			zap.String("asset", asset.String()),
			zap.Int("fetched", len(closes)),
			zap.Int("applied", filled))
	}

	if table.Len(asset) == 0 {
		if lastErr == nil {
			lastErr = errors.New("no price source configured")
		}
		return nil, errors.Wrapf(lastErr, "no prices for %s", asset)
	}

	return table, nil
}
