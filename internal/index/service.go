package index

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/seenimoa/moexidx/internal/analysis/performance"
	"github.com/seenimoa/moexidx/internal/errs"
	"github.com/seenimoa/moexidx/pkg/models"
	"github.com/seenimoa/moexidx/pkg/utils"
)

// Repo persists indices and their frozen components.
type Repo interface {
	CreateIndex(ctx context.Context, idx models.Index, weights models.Weights) (models.Index, []models.IndexComponent, error)
	GetIndex(ctx context.Context, id int64) (models.Index, error)
	ListIndices(ctx context.Context, query string) ([]models.Index, error)
	Components(ctx context.Context, indexID int64) ([]models.IndexComponent, error)
}

// CapTable serves quarterly capitalization snapshots.
type CapTable interface {
	Get(ctx context.Context, year, quarter int) ([]models.CapitalizationRecord, error)
	Securities(ctx context.Context, year, quarter int) ([]models.Security, error)
}

// FreeFloats serves the freshest free float keyed by secid.
type FreeFloats interface {
	BySecID(ctx context.Context) (map[string]float64, error)
}

// DividendYields serves yields keyed by registration id.
type DividendYields interface {
	Get(ctx context.Context, year int) (map[string]float64, error)
}

// SecurityRequest is one security of a create request.
type SecurityRequest struct {
	SecID        string   `json:"secid"`
	CustomWeight *float64 `json:"custom_weight,omitempty"`
}

// CreateRequest describes a new index.
type CreateRequest struct {
	Name       string            `json:"name"`
	BaseDate   time.Time         `json:"base_date"`
	Weighting  string            `json:"weighting"`
	Securities []SecurityRequest `json:"securities"`
}

// Detail is an index with its components.
type Detail struct {
	models.Index
	Components []models.IndexComponent `json:"components"`
}

// Deps wires a Service.
type Deps struct {
	Repo        Repo
	Caps        CapTable
	FreeFloats  FreeFloats
	Dividends   DividendYields
	Valuator    *Valuator
	Benchmark   SeriesGetter
	BenchmarkID string
}

// Service creates, lists and values custom indices.
type Service struct {
	repo        Repo
	caps        CapTable
	freeFloats  FreeFloats
	dividends   DividendYields
	valuator    *Valuator
	benchmark   SeriesGetter
	benchmarkID string
	now         func() time.Time
}

// NewService creates an index service.
func NewService(d Deps) *Service {
	return &Service{
		repo:        d.Repo,
		caps:        d.Caps,
		freeFloats:  d.FreeFloats,
		dividends:   d.Dividends,
		valuator:    d.Valuator,
		benchmark:   d.Benchmark,
		benchmarkID: d.BenchmarkID,
		now:         utils.Today,
	}
}

// BenchmarkID returns the id of the benchmark series.
func (s *Service) BenchmarkID() string { return s.benchmarkID }

// ════════════════════════════════════════════════════════════════════
// Create
// ════════════════════════════════════════════════════════════════════

// Create builds weights from the capitalization table of the base date's
// quarter, values the index at today's prices and persists it together
// with its components.
func (s *Service) Create(ctx context.Context, req CreateRequest) (Detail, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return Detail{}, errs.Invalid("name", "must not be empty")
	}
	scheme, err := models.ParseWeightingScheme(req.Weighting)
	if err != nil {
		return Detail{}, errs.Invalid("weighting", "%v", err)
	}
	custom := make(map[string]*float64, len(req.Securities))
	var secids []string
	for _, sec := range req.Securities {
		id := utils.NormalizeSecID(sec.SecID)
		if id == "" {
			continue
		}
		if _, seen := custom[id]; !seen {
			secids = append(secids, id)
		}
		custom[id] = sec.CustomWeight
	}
	if len(secids) == 0 {
		return Detail{}, errs.Invalid("securities", "selection is empty")
	}
	base := utils.Day(req.BaseDate)
	if req.BaseDate.IsZero() {
		base = utils.Day(s.now())
	}

	year, quarter := utils.QuarterOf(base)
	table, err := s.caps.Get(ctx, year, quarter)
	if err != nil {
		return Detail{}, err
	}
	byID := make(map[string]models.CapitalizationRecord, len(table))
	for _, r := range table {
		byID[r.SecID] = r
	}

	members := make([]Member, 0, len(secids))
	for _, id := range secids {
		rec, ok := byID[id]
		if !ok {
			log.Debug().Str("secid", id).Int("year", year).Int("quarter", quarter).Msg("index: security not in capitalization table")
			continue
		}
		members = append(members, Member{SecID: id, MarketCap: rec.MarketCap, CustomWeight: custom[id]})
	}
	if len(members) == 0 {
		return Detail{}, errs.Invalid("securities", "none found in the %dQ%d capitalization table", year, quarter)
	}

	if err := s.enrich(ctx, members, byID, scheme, year); err != nil {
		return Detail{}, err
	}

	weights, err := BuildWeights(members, scheme)
	if err != nil {
		return Detail{}, err
	}
	baseValue, err := s.valuator.ComputeValue(ctx, weights)
	if err != nil {
		return Detail{}, err
	}

	idx, comps, err := s.repo.CreateIndex(ctx, models.Index{
		Name:      name,
		BaseDate:  base,
		Weighting: scheme,
		BaseValue: baseValue,
	}, weights)
	if err != nil {
		return Detail{}, err
	}
	log.Info().Int64("id", idx.ID).Str("name", idx.Name).Str("weighting", string(scheme)).
		Int("components", len(comps)).Float64("base_value", baseValue).Msg("index: created")
	return Detail{Index: idx, Components: comps}, nil
}

// enrich joins free float and dividend yields when the scheme needs them.
// Dividend yields come from the year before the base year.
func (s *Service) enrich(ctx context.Context, members []Member, caps map[string]models.CapitalizationRecord, scheme models.WeightingScheme, baseYear int) error {
	switch scheme {
	case models.WeightCapFreeFloat:
		ff, err := s.freeFloats.BySecID(ctx)
		if err != nil {
			return err
		}
		for i := range members {
			if v, ok := ff[members[i].SecID]; ok {
				members[i].FreeFloat = &v
			}
		}
	case models.WeightCapDivYield:
		dy, err := s.dividends.Get(ctx, baseYear-1)
		if err != nil {
			return err
		}
		for i := range members {
			if v, ok := dy[caps[members[i].SecID].RegistrationID]; ok {
				members[i].DivYield = &v
			}
		}
	}
	return nil
}

// ════════════════════════════════════════════════════════════════════
// Queries
// ════════════════════════════════════════════════════════════════════

// Get returns an index with its components.
func (s *Service) Get(ctx context.Context, id int64) (Detail, error) {
	idx, err := s.repo.GetIndex(ctx, id)
	if err != nil {
		return Detail{}, err
	}
	comps, err := s.repo.Components(ctx, id)
	if err != nil {
		return Detail{}, err
	}
	return Detail{Index: idx, Components: comps}, nil
}

// List returns indices whose name contains query, case-insensitively.
func (s *Service) List(ctx context.Context, query string) ([]models.Index, error) {
	return s.repo.ListIndices(ctx, query)
}

// Securities lists the securities of a quarter's capitalization table.
func (s *Service) Securities(ctx context.Context, year, quarter int) ([]models.Security, error) {
	return s.caps.Securities(ctx, year, quarter)
}

func (s *Service) weights(ctx context.Context, id int64) (models.Index, models.Weights, error) {
	d, err := s.Get(ctx, id)
	if err != nil {
		return models.Index{}, nil, err
	}
	if len(d.Components) == 0 {
		return models.Index{}, nil, errs.Invalid("index", "%d has no components", id)
	}
	return d.Index, models.ComponentWeights(d.Components), nil
}

// Value returns the index value at today's prices.
func (s *Service) Value(ctx context.Context, id int64) (models.IndexValue, error) {
	_, w, err := s.weights(ctx, id)
	if err != nil {
		return models.IndexValue{}, err
	}
	v, err := s.valuator.ComputeValue(ctx, w)
	if err != nil {
		return models.IndexValue{}, err
	}
	return models.IndexValue{Date: utils.Day(s.now()), Value: v}, nil
}

// Series returns the daily index series in [from, till]. A zero from
// starts at the base date, a zero till ends today. With withBenchmark,
// each point carries the benchmark close of the same day when known.
func (s *Service) Series(ctx context.Context, id int64, from, till time.Time, withBenchmark bool) ([]models.IndexPoint, error) {
	idx, w, err := s.weights(ctx, id)
	if err != nil {
		return nil, err
	}
	from, till = s.window(idx, from, till)
	if from.After(till) {
		return nil, errs.Invalid("range", "from %s is after till %s", utils.FormatDate(from), utils.FormatDate(till))
	}

	pts, err := s.valuator.ComputeSeries(ctx, w, from, till)
	if err != nil {
		return nil, err
	}
	if !withBenchmark {
		return pts, nil
	}

	bench, err := s.benchmark.Get(ctx, s.benchmarkID, from, till)
	if err != nil {
		return nil, fmt.Errorf("benchmark %s: %w", s.benchmarkID, err)
	}
	byDate := make(map[time.Time]float64, len(bench))
	for _, b := range bench {
		byDate[b.Date] = b.Value
	}
	for i := range pts {
		if v, ok := byDate[pts[i].Date]; ok {
			pts[i].Benchmark = &v
		}
	}
	return pts, nil
}

// Stats computes performance statistics of the index against the
// benchmark over [from, till].
func (s *Service) Stats(ctx context.Context, id int64, from, till time.Time) (models.Stats, error) {
	idx, w, err := s.weights(ctx, id)
	if err != nil {
		return models.Stats{}, err
	}
	from, till = s.window(idx, from, till)
	if from.After(till) {
		return models.Stats{}, errs.Invalid("range", "from %s is after till %s", utils.FormatDate(from), utils.FormatDate(till))
	}

	pts, err := s.valuator.ComputeSeries(ctx, w, from, till)
	if err != nil {
		return models.Stats{}, err
	}
	bench, err := s.benchmark.Get(ctx, s.benchmarkID, from, till)
	if err != nil {
		return models.Stats{}, fmt.Errorf("benchmark %s: %w", s.benchmarkID, err)
	}

	series := make([]models.SeriesPoint, len(pts))
	for i, p := range pts {
		series[i] = models.SeriesPoint{Date: p.Date, Value: p.Value}
	}
	return performance.Compute(series, bench)
}

func (s *Service) window(idx models.Index, from, till time.Time) (time.Time, time.Time) {
	if from.IsZero() {
		from = idx.BaseDate
	}
	if till.IsZero() {
		till = s.now()
	}
	return utils.Day(from), utils.Day(till)
}
