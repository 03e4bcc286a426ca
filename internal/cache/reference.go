package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/seenimoa/moexidx/internal/errs"
	"github.com/seenimoa/moexidx/pkg/models"
	"github.com/seenimoa/moexidx/pkg/utils"
)

// ── Capitalization ──────────────────────────────────────────────

// CapStore caches quarterly capitalization snapshots. A quarter is either
// fully stored or fetched whole.
type CapStore struct {
	repo   CapRepo
	source CapSource
}

// NewCapStore creates a capitalization cache.
func NewCapStore(repo CapRepo, source CapSource) *CapStore {
	return &CapStore{repo: repo, source: source}
}

// Get returns the capitalization table of a quarter.
func (s *CapStore) Get(ctx context.Context, year, quarter int) ([]models.CapitalizationRecord, error) {
	if quarter < 1 || quarter > 4 {
		return nil, errs.Invalid("quarter", "%d is not in 1..4", quarter)
	}
	if year < 1990 {
		return nil, errs.Invalid("year", "%d is out of range", year)
	}

	recs, err := s.repo.Capitalizations(ctx, year, quarter)
	if err != nil || len(recs) > 0 {
		return recs, err
	}

	fetched, err := s.source.FetchCapitalization(ctx, year, quarter)
	if err != nil {
		return nil, &errs.FetchError{
			Source:   "capitalization",
			SeriesID: fmt.Sprintf("%dQ%d", year, quarter),
			Err:      err,
		}
	}
	if len(fetched) == 0 {
		return nil, nil
	}
	for i := range fetched {
		fetched[i].Year, fetched[i].Quarter = year, quarter
	}
	if err := s.repo.SaveCapitalizations(ctx, fetched); err != nil {
		return nil, err
	}
	log.Info().Int("year", year).Int("quarter", quarter).Int("rows", len(fetched)).Msg("cache: capitalization stored")

	return s.repo.Capitalizations(ctx, year, quarter)
}

// Securities lists the (secid, name) pairs of a quarter's table.
func (s *CapStore) Securities(ctx context.Context, year, quarter int) ([]models.Security, error) {
	recs, err := s.Get(ctx, year, quarter)
	if err != nil {
		return nil, err
	}
	out := make([]models.Security, len(recs))
	for i, r := range recs {
		out[i] = models.Security{SecID: r.SecID, Name: r.Name}
	}
	return out, nil
}

// ── Free float ──────────────────────────────────────────────────

// FreeFloatStore caches the free-float table. Rows stored today or
// yesterday are fresh; otherwise the whole table is refetched.
type FreeFloatStore struct {
	repo   FreeFloatRepo
	source FreeFloatSource
	now    func() time.Time
}

// NewFreeFloatStore creates a free-float cache.
func NewFreeFloatStore(repo FreeFloatRepo, source FreeFloatSource) *FreeFloatStore {
	return &FreeFloatStore{repo: repo, source: source, now: utils.Today}
}

// Get returns the freshest free-float table.
func (s *FreeFloatStore) Get(ctx context.Context) ([]models.FreeFloatRecord, error) {
	today := utils.Day(s.now())
	recs, err := s.repo.LatestFreeFloat(ctx, today, utils.AddDays(today, -1))
	if err != nil || len(recs) > 0 {
		return recs, err
	}

	fetched, err := s.source.FetchFreeFloat(ctx, today)
	if err != nil {
		return nil, &errs.FetchError{
			Source: "free-float",
			Range:  models.DateRange{From: today, Till: today},
			Err:    err,
		}
	}
	for i := range fetched {
		fetched[i].AsOf = today
	}
	if err := s.repo.SaveFreeFloat(ctx, fetched); err != nil {
		return nil, err
	}
	log.Info().Int("rows", len(fetched)).Msg("cache: free float stored")
	return s.repo.LatestFreeFloat(ctx, today)
}

// BySecID returns the freshest free float keyed by secid.
func (s *FreeFloatStore) BySecID(ctx context.Context) (map[string]float64, error) {
	recs, err := s.Get(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(recs))
	for _, r := range recs {
		out[r.SecID] = r.FreeFloatPct
	}
	return out, nil
}

// ── Dividend yield ──────────────────────────────────────────────

// DividendStore caches dividend yields keyed by registration id. A missing
// year triggers at most one successful refetch per day.
type DividendStore struct {
	repo   DividendRepo
	source DividendSource
	now    func() time.Time

	mu        sync.Mutex
	attempted map[int]time.Time
}

// NewDividendStore creates a dividend-yield cache.
func NewDividendStore(repo DividendRepo, source DividendSource) *DividendStore {
	return &DividendStore{
		repo:      repo,
		source:    source,
		now:       utils.Today,
		attempted: make(map[int]time.Time),
	}
}

// Get returns registration id → yield for the latest stored year not after
// year, refreshing from the source when year itself is missing.
func (s *DividendStore) Get(ctx context.Context, year int) (map[string]float64, error) {
	latest, ok, err := s.repo.LatestDividendYear(ctx, year)
	if err != nil {
		return nil, err
	}

	if (!ok || latest != year) && s.shouldFetch(year) {
		today := utils.Day(s.now())
		fetched, err := s.source.FetchDividendYields(ctx, year, today)
		if err != nil {
			return nil, &errs.FetchError{Source: "dividend-yield", SeriesID: fmt.Sprint(year), Err: err}
		}
		if err := s.repo.SaveDividendYields(ctx, fetched); err != nil {
			return nil, err
		}
		s.markFetched(year)
		log.Info().Int("year", year).Int("rows", len(fetched)).Msg("cache: dividend yields stored")

		if latest, ok, err = s.repo.LatestDividendYear(ctx, year); err != nil {
			return nil, err
		}
	}

	out := make(map[string]float64)
	if !ok {
		return out, nil
	}
	recs, err := s.repo.DividendYields(ctx, latest)
	if err != nil {
		return nil, err
	}
	for _, r := range recs {
		out[r.RegistrationID] = r.YieldPct
	}
	return out, nil
}

func (s *DividendStore) shouldFetch(year int) bool {
	today := utils.Day(s.now())
	s.mu.Lock()
	defer s.mu.Unlock()
	last, ok := s.attempted[year]
	return !ok || !last.Equal(today)
}

// markFetched records a successful refresh; failed fetches are retried.
func (s *DividendStore) markFetched(year int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempted[year] = utils.Day(s.now())
}
