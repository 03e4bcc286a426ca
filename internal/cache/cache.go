// Package cache keeps the durable store in sync with MOEX. SeriesCache is a
// read-through, gap-filling cache of daily series; CapStore, FreeFloatStore
// and DividendStore are all-or-nothing caches of reference tables.
package cache

import (
	"context"
	"time"

	"github.com/seenimoa/moexidx/pkg/models"
)

// SeriesSource fetches daily closes for one series from a remote provider.
// The result may be empty and is not required to be sorted.
type SeriesSource interface {
	Name() string
	FetchDailyCloses(ctx context.Context, seriesID string, from, till time.Time) ([]models.SeriesPoint, error)
}

// SeriesStore is the durable table behind a SeriesCache. UpsertSeries must
// leave rows already stored for a date untouched.
type SeriesStore interface {
	LoadSeries(ctx context.Context, seriesID string) ([]models.SeriesPoint, error)
	UpsertSeries(ctx context.Context, seriesID string, pts []models.SeriesPoint) error
}

// CoverageStore records which date ranges were already fetched per series.
type CoverageStore interface {
	LoadCoverage(ctx context.Context, seriesID string) ([]models.DateRange, error)
	AddCoverage(ctx context.Context, seriesID string, r models.DateRange) error
}

// CapSource fetches a quarterly capitalization table.
type CapSource interface {
	FetchCapitalization(ctx context.Context, year, quarter int) ([]models.CapitalizationRecord, error)
}

// CapRepo is the durable capitalization table.
type CapRepo interface {
	Capitalizations(ctx context.Context, year, quarter int) ([]models.CapitalizationRecord, error)
	SaveCapitalizations(ctx context.Context, recs []models.CapitalizationRecord) error
}

// FreeFloatSource fetches the current free-float table.
type FreeFloatSource interface {
	FetchFreeFloat(ctx context.Context, asOf time.Time) ([]models.FreeFloatRecord, error)
}

// FreeFloatRepo is the durable free-float table.
type FreeFloatRepo interface {
	LatestFreeFloat(ctx context.Context, days ...time.Time) ([]models.FreeFloatRecord, error)
	SaveFreeFloat(ctx context.Context, recs []models.FreeFloatRecord) error
}

// DividendSource fetches the dividend-yield table.
type DividendSource interface {
	FetchDividendYields(ctx context.Context, defaultYear int, loadedAt time.Time) ([]models.DividendYieldRecord, error)
}

// DividendRepo is the durable dividend-yield table.
type DividendRepo interface {
	LatestDividendYear(ctx context.Context, year int) (int, bool, error)
	DividendYields(ctx context.Context, year int) ([]models.DividendYieldRecord, error)
	SaveDividendYields(ctx context.Context, recs []models.DividendYieldRecord) error
}
