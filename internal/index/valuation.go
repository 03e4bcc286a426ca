package index

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/seenimoa/moexidx/internal/errs"
	"github.com/seenimoa/moexidx/pkg/models"
	"github.com/seenimoa/moexidx/pkg/utils"
)

// FillPolicy decides what a component contributes on a day it has no close.
type FillPolicy string

const (
	// FillZero counts a missing close as zero.
	FillZero FillPolicy = "zero"
	// FillForward carries the component's previous close forward.
	FillForward FillPolicy = "forward"
)

// SeriesGetter returns cached daily closes of one series.
type SeriesGetter interface {
	Get(ctx context.Context, seriesID string, from, till time.Time) ([]models.SeriesPoint, error)
}

// QuoteSource returns the close of today's daily candle.
type QuoteSource interface {
	LatestClose(ctx context.Context, secid string) (float64, bool, error)
}

// LastCloseLookup finds the most recent stored close within a lookback.
type LastCloseLookup interface {
	LastClose(ctx context.Context, secid string, day time.Time, lookback int) (models.SeriesPoint, bool, error)
}

// ValuatorOptions tunes a Valuator.
type ValuatorOptions struct {
	Fill         FillPolicy
	LookbackDays int
	Concurrency  int
}

// Valuator values fixed-weight indices from component prices.
type Valuator struct {
	series   SeriesGetter
	quotes   QuoteSource
	closes   LastCloseLookup
	fill     FillPolicy
	lookback int
	limit    int
	now      func() time.Time
}

// NewValuator creates a valuator. closes may be nil, which disables the
// stored-close fallback for the current value.
func NewValuator(series SeriesGetter, quotes QuoteSource, closes LastCloseLookup, opts ValuatorOptions) *Valuator {
	v := &Valuator{
		series:   series,
		quotes:   quotes,
		closes:   closes,
		fill:     opts.Fill,
		lookback: opts.LookbackDays,
		limit:    opts.Concurrency,
		now:      utils.Today,
	}
	if v.fill == "" {
		v.fill = FillZero
	}
	if v.limit < 1 {
		v.limit = 1
	}
	return v
}

// ComputeValue returns Σ weight·price using today's closes. A component
// without a candle today is priced at its latest stored close within the
// lookback window, and at zero when there is none.
func (v *Valuator) ComputeValue(ctx context.Context, weights models.Weights) (float64, error) {
	if len(weights) == 0 {
		return 0, errs.Invalid("index", "has no components")
	}

	prices := make(map[string]float64, len(weights))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(v.limit)
	for secid := range weights {
		g.Go(func() error {
			price, err := v.latestPrice(gctx, secid)
			if err != nil {
				return err
			}
			mu.Lock()
			prices[secid] = price
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	total := 0.0
	for _, secid := range sortedSecIDs(weights) {
		total += weights[secid] * prices[secid]
	}
	return total, nil
}

func (v *Valuator) latestPrice(ctx context.Context, secid string) (float64, error) {
	today := utils.Day(v.now())
	price, ok, err := v.quotes.LatestClose(ctx, secid)
	if err != nil {
		return 0, &errs.FetchError{Source: "quotes", SeriesID: secid, Range: models.DateRange{From: today, Till: today}, Err: err}
	}
	if ok {
		return price, nil
	}

	if v.closes != nil && v.lookback > 0 {
		p, found, err := v.closes.LastClose(ctx, secid, today, v.lookback)
		if err != nil {
			return 0, err
		}
		if found {
			log.Debug().Str("secid", secid).Str("date", utils.FormatDate(p.Date)).Msg("valuation: no candle today, using last stored close")
			return p.Value, nil
		}
	}
	log.Warn().Str("secid", secid).Msg("valuation: no price available, counting component as zero")
	return 0, nil
}

// ComputeSeries returns the index series over the union of the components'
// trading days in [from, till]. Under forward fill a component enters the
// window with its last stored close before from, when one is in lookback.
func (v *Valuator) ComputeSeries(ctx context.Context, weights models.Weights, from, till time.Time) ([]models.IndexPoint, error) {
	if len(weights) == 0 {
		return nil, errs.Invalid("index", "has no components")
	}

	closes := make(map[string]map[time.Time]float64, len(weights))
	last := make(map[string]float64, len(weights))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(v.limit)
	for secid := range weights {
		g.Go(func() error {
			pts, err := v.series.Get(gctx, secid, from, till)
			if err != nil {
				return err
			}
			byDate := make(map[time.Time]float64, len(pts))
			for _, p := range pts {
				byDate[p.Date] = p.Value
			}
			prev, ok, err := v.closeBefore(gctx, secid, from)
			if err != nil {
				return err
			}
			mu.Lock()
			closes[secid] = byDate
			if ok {
				last[secid] = prev
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	dateSet := make(map[time.Time]struct{})
	for _, byDate := range closes {
		for d := range byDate {
			dateSet[d] = struct{}{}
		}
	}
	dates := make([]time.Time, 0, len(dateSet))
	for d := range dateSet {
		dates = append(dates, d)
	}
	slices.SortFunc(dates, func(a, b time.Time) int { return a.Compare(b) })

	secids := sortedSecIDs(weights)
	out := make([]models.IndexPoint, 0, len(dates))
	for _, d := range dates {
		value := 0.0
		for _, secid := range secids {
			price, ok := closes[secid][d]
			switch {
			case ok:
				last[secid] = price
			case v.fill == FillForward:
				price = last[secid]
			default:
				price = 0
			}
			value += weights[secid] * price
		}
		out = append(out, models.IndexPoint{Date: d, Value: value})
	}
	return out, nil
}

// closeBefore returns the stored close carried into a forward-filled
// window: the latest one before from, within the lookback.
func (v *Valuator) closeBefore(ctx context.Context, secid string, from time.Time) (float64, bool, error) {
	if v.fill != FillForward || v.closes == nil || v.lookback <= 0 {
		return 0, false, nil
	}
	p, ok, err := v.closes.LastClose(ctx, secid, utils.AddDays(from, -1), v.lookback)
	if err != nil || !ok {
		return 0, false, err
	}
	return p.Value, true, nil
}

func sortedSecIDs(w models.Weights) []string {
	keys := make([]string, 0, len(w))
	for k := range w {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
