// Package app wires the store, the MOEX clients, the caches and the index
// service into one runnable unit shared by the CLI and the API server.
package app

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/seenimoa/moexidx/internal/cache"
	"github.com/seenimoa/moexidx/internal/config"
	"github.com/seenimoa/moexidx/internal/index"
	"github.com/seenimoa/moexidx/internal/moex"
	"github.com/seenimoa/moexidx/internal/store"
	"github.com/seenimoa/moexidx/pkg/utils"
)

// App holds every long-lived component.
type App struct {
	Config     *config.Config
	Store      *store.Store
	ISS        *moex.ISS
	Prices     *cache.SeriesCache
	Benchmark  *cache.SeriesCache
	Caps       *cache.CapStore
	FreeFloats *cache.FreeFloatStore
	Dividends  *cache.DividendStore
	Index      *index.Service
}

// New opens the store and builds all components from cfg.
func New(cfg *config.Config) (*App, error) {
	db, err := store.Open(cfg.Store)
	if err != nil {
		return nil, err
	}

	var opts []cache.Option
	if cfg.Cache.Epoch != "" {
		epoch, err := utils.ParseDate(cfg.Cache.Epoch)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("cache.epoch: %w", err)
		}
		opts = append(opts, cache.WithEpoch(epoch))
	}
	if cache.GapModel(cfg.Cache.GapModel) == cache.GapIntervals {
		opts = append(opts, cache.WithIntervalCoverage(db))
	}

	iss := moex.NewISS(cfg.MOEX)
	prices := cache.NewSeriesCache(db.Prices(), iss, opts...)
	bench := cache.NewSeriesCache(db.Benchmark(cfg.MOEX.Benchmark), iss, opts...)

	caps := cache.NewCapStore(db, moex.NewCapScraper(cfg.MOEX))
	sheets := moex.NewSheets(cfg.MOEX)
	ff := cache.NewFreeFloatStore(db, sheets)
	divs := cache.NewDividendStore(db, sheets)

	valuator := index.NewValuator(prices, iss, db.Prices(), index.ValuatorOptions{
		Fill:         index.FillPolicy(cfg.Valuation.FillMissing),
		LookbackDays: cfg.Valuation.LatestLookbackDays,
		Concurrency:  cfg.Cache.ConcurrentFetches,
	})

	svc := index.NewService(index.Deps{
		Repo:        db,
		Caps:        caps,
		FreeFloats:  ff,
		Dividends:   divs,
		Valuator:    valuator,
		Benchmark:   bench,
		BenchmarkID: cfg.MOEX.Benchmark,
	})

	log.Info().
		Str("driver", db.Driver()).
		Str("gap_model", string(prices.Model())).
		Str("fill", cfg.Valuation.FillMissing).
		Str("benchmark", cfg.MOEX.Benchmark).
		Msg("app: initialized")

	return &App{
		Config:     cfg,
		Store:      db,
		ISS:        iss,
		Prices:     prices,
		Benchmark:  bench,
		Caps:       caps,
		FreeFloats: ff,
		Dividends:  divs,
		Index:      svc,
	}, nil
}

// Series returns the cache serving seriesID: the benchmark cache for the
// configured benchmark, the share price cache otherwise.
func (a *App) Series(seriesID string) *cache.SeriesCache {
	if seriesID == a.Config.MOEX.Benchmark {
		return a.Benchmark
	}
	return a.Prices
}

// Close releases the store.
func (a *App) Close() error {
	return a.Store.Close()
}
