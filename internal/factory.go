package internal

import (
	"go.uber.org/zap"

	"github.com/vadiminshakov/cointax/config"
	"github.com/vadiminshakov/cointax/internal/clients"
	"github.com/vadiminshakov/cointax/internal/services/pricer"
	"github.com/vadiminshakov/cointax/internal/services/reconciler"
	"github.com/vadiminshakov/cointax/pkg/retrier"
)

// Price source names, stored with every cached close.
const (
	SourceCoinGecko = "coingecko"
	SourceBinance   = "binance"
	SourceBybit     = "bybit"
)

// NewSources builds every upstream client with its retry budget.
// This is the single point of truth for which API serves which part of a run.
func NewSources(l *zap.Logger, cfg config.Config, cache pricer.Cache) reconciler.Sources {
	budget := func(name string, b config.Budget) *retrier.Retrier {
		sl := l.With(zap.String("source", name))
		return b.Retrier(retrier.WithOnRetry(func(attempt int, err error) {
			sl.Debug("retrying upstream call", zap.Int("attempt", attempt), zap.Error(err))
		}))
	}

	prices := pricer.New(
		l.Named("pricer"),
		cfg.PriceHistoryDir,
		cache,
		cfg.PriceDays,
		pricer.NamedSource{
			Name:   SourceCoinGecko,
			Source: clients.NewCoinGecko(l, cfg.Endpoints.CoinGecko, cfg.Keys.CoinGecko, budget(SourceCoinGecko, cfg.Retries.Prices)),
		},
		pricer.NamedSource{
			Name: SourceBinance,
			Source: clients.NewBinance(l,
				clients.NewBinanceClient(cfg.Endpoints.Binance),
				budget(SourceBinance, cfg.Retries.Prices)),
		},
		pricer.NamedSource{
			Name: SourceBybit,
			Source: clients.NewBybit(l,
				clients.NewBybitClient(cfg.Endpoints.Bybit),
				budget(SourceBybit, cfg.Retries.Prices)),
		},
	)

	return reconciler.Sources{
		Dashboards: clients.NewBlockchair(l, cfg.Endpoints.Blockchair, cfg.Keys.Blockchair, budget("blockchair", cfg.Retries.Dashboards)),
		UTXO:       clients.NewBlockstream(l, cfg.Endpoints.Blockstream, budget("blockstream", cfg.Retries.BTC)),
		Fees:       clients.NewEtherscan(l, cfg.Endpoints.Etherscan, cfg.Keys.Etherscan, budget("etherscan", cfg.Retries.ETHFees)),
		TxRefs:     clients.NewBlockcypher(l, cfg.Endpoints.Blockcypher, budget("blockcypher", cfg.Retries.LTC)),
		Prices:     prices,
	}
}
