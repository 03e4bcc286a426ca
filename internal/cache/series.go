package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/seenimoa/moexidx/internal/errs"
	"github.com/seenimoa/moexidx/pkg/models"
	"github.com/seenimoa/moexidx/pkg/utils"
)

// DefaultEpoch is the earliest day ever requested from the provider.
var DefaultEpoch = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

// SeriesCache is a read-through cache of daily series over one durable
// table. Rows are only ever appended; a repeated fetch of a stored date is
// a no-op.
type SeriesCache struct {
	store    SeriesStore
	source   SeriesSource
	coverage CoverageStore
	model    GapModel
	epoch    time.Time
	now      func() time.Time
}

// Option configures a SeriesCache.
type Option func(*SeriesCache)

// WithEpoch sets the earliest day the cache ever asks the provider for.
func WithEpoch(epoch time.Time) Option {
	return func(c *SeriesCache) { c.epoch = utils.Day(epoch) }
}

// WithIntervalCoverage switches to the interval gap model backed by cov.
func WithIntervalCoverage(cov CoverageStore) Option {
	return func(c *SeriesCache) {
		c.model = GapIntervals
		c.coverage = cov
	}
}

// WithClock overrides the source of "today".
func WithClock(now func() time.Time) Option {
	return func(c *SeriesCache) { c.now = now }
}

// NewSeriesCache creates a cache over store, filled from source.
func NewSeriesCache(store SeriesStore, source SeriesSource, opts ...Option) *SeriesCache {
	c := &SeriesCache{
		store:  store,
		source: source,
		model:  GapBoundary,
		epoch:  DefaultEpoch,
		now:    utils.Today,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Model returns the active gap model.
func (c *SeriesCache) Model() GapModel { return c.model }

// Get returns the points of seriesID within [from, till], sorted by date,
// fetching whatever the gap model considers missing. A window with no
// trading days yields an empty result, not an error.
func (c *SeriesCache) Get(ctx context.Context, seriesID string, from, till time.Time) ([]models.SeriesPoint, error) {
	from, till = utils.Day(from), utils.Day(till)
	if from.After(till) {
		return nil, errs.Invalid("range", "from %s is after till %s", utils.FormatDate(from), utils.FormatDate(till))
	}
	if from.Before(c.epoch) {
		from = c.epoch
	}
	want := models.DateRange{From: from, Till: till}
	if want.Empty() {
		return nil, nil
	}

	have, err := c.store.LoadSeries(ctx, seriesID)
	if err != nil {
		return nil, err
	}

	gaps, err := c.plan(ctx, seriesID, have, want)
	if err != nil {
		return nil, err
	}
	if len(gaps) > 0 {
		log.Debug().Str("series", seriesID).Str("want", want.String()).
			Int("gaps", len(gaps)).Str("model", string(c.model)).Msg("cache: filling gaps")
	}

	fetched := make([][]models.SeriesPoint, 0, len(gaps)+1)
	fetched = append(fetched, have)
	for _, gap := range gaps {
		pts, err := c.fill(ctx, seriesID, gap)
		if err != nil {
			return nil, err
		}
		fetched = append(fetched, pts)
	}

	return models.ClipPoints(models.MergePoints(fetched...), want), nil
}

// Sync fills the full history of seriesID from the epoch through today.
func (c *SeriesCache) Sync(ctx context.Context, seriesID string) (int, error) {
	pts, err := c.Get(ctx, seriesID, c.epoch, c.now())
	return len(pts), err
}

func (c *SeriesCache) plan(ctx context.Context, seriesID string, have []models.SeriesPoint, want models.DateRange) ([]models.DateRange, error) {
	if c.model != GapIntervals {
		return boundaryGaps(have, want), nil
	}
	covered, err := c.coverage.LoadCoverage(ctx, seriesID)
	if err != nil {
		return nil, err
	}
	if len(covered) == 0 && len(have) > 0 {
		// Rows written before coverage tracking: record their span once.
		seed := models.DateRange{From: have[0].Date, Till: have[0].Date}
		for _, p := range have[1:] {
			if p.Date.Before(seed.From) {
				seed.From = p.Date
			}
			if p.Date.After(seed.Till) {
				seed.Till = p.Date
			}
		}
		if seed = clampCoverage(seed, c.now()); !seed.Empty() {
			if err := c.coverage.AddCoverage(ctx, seriesID, seed); err != nil {
				return nil, err
			}
			covered = []models.DateRange{seed}
		}
	}
	return intervalGaps(covered, want), nil
}

// fill fetches one gap, drops anything outside it, persists the rest and
// records the coverage.
func (c *SeriesCache) fill(ctx context.Context, seriesID string, gap models.DateRange) ([]models.SeriesPoint, error) {
	raw, err := c.source.FetchDailyCloses(ctx, seriesID, gap.From, gap.Till)
	if err != nil {
		return nil, &errs.FetchError{Source: c.source.Name(), SeriesID: seriesID, Range: gap, Err: err}
	}

	pts := make([]models.SeriesPoint, 0, len(raw))
	for _, p := range raw {
		p.Date = utils.Day(p.Date)
		if gap.Contains(p.Date) {
			pts = append(pts, p)
		}
	}
	if dropped := len(raw) - len(pts); dropped > 0 {
		log.Warn().Str("series", seriesID).Str("gap", gap.String()).
			Int("dropped", dropped).Msg("cache: provider returned points outside the gap")
	}
	pts = models.MergePoints(pts)

	if len(pts) > 0 {
		if err := c.store.UpsertSeries(ctx, seriesID, pts); err != nil {
			return nil, fmt.Errorf("persist %s [%s]: %w", seriesID, gap, err)
		}
	}
	if c.model == GapIntervals {
		if done := clampCoverage(gap, c.now()); !done.Empty() {
			if err := c.coverage.AddCoverage(ctx, seriesID, done); err != nil {
				return nil, err
			}
		}
	}

	log.Debug().Str("series", seriesID).Str("gap", gap.String()).Int("rows", len(pts)).Msg("cache: gap filled")
	return pts, nil
}
