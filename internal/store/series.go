package store

import (
	"context"
	"fmt"
	"time"

	"github.com/seenimoa/moexidx/internal/errs"
	"github.com/seenimoa/moexidx/pkg/models"
	"github.com/seenimoa/moexidx/pkg/utils"
)

// PriceTable stores daily closes of shares keyed by (secid, date).
type PriceTable struct{ s *Store }

// Prices returns the share price table.
func (s *Store) Prices() *PriceTable { return &PriceTable{s: s} }

// LoadSeries returns every stored close of secid, date ascending.
func (t *PriceTable) LoadSeries(ctx context.Context, secid string) ([]models.SeriesPoint, error) {
	var rows []priceRow
	err := t.s.db.WithContext(ctx).
		Where("secid = ?", secid).
		Order("date").
		Find(&rows).Error
	if err != nil {
		return nil, errs.Store("load prices "+secid, err)
	}
	pts := make([]models.SeriesPoint, len(rows))
	for i, r := range rows {
		pts[i] = models.SeriesPoint{Date: utils.Day(r.Date), Value: r.Close}
	}
	return pts, nil
}

// UpsertSeries inserts points that are not stored yet.
func (t *PriceTable) UpsertSeries(ctx context.Context, secid string, pts []models.SeriesPoint) error {
	rows := make([]priceRow, len(pts))
	for i, p := range pts {
		rows[i] = priceRow{SecID: secid, Date: utils.Day(p.Date), Close: p.Value}
	}
	return insertIgnore(ctx, t.s.db, "upsert prices "+secid, rows)
}

// LastClose returns the most recent close of secid on or before day that is
// no older than lookback days. ok is false when no such close is stored.
func (t *PriceTable) LastClose(ctx context.Context, secid string, day time.Time, lookback int) (models.SeriesPoint, bool, error) {
	var rows []priceRow
	err := t.s.db.WithContext(ctx).
		Where("secid = ? AND date <= ? AND date >= ?", secid, utils.Day(day), utils.AddDays(day, -lookback)).
		Order("date DESC").
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return models.SeriesPoint{}, false, errs.Store("last close "+secid, err)
	}
	if len(rows) == 0 {
		return models.SeriesPoint{}, false, nil
	}
	return models.SeriesPoint{Date: utils.Day(rows[0].Date), Value: rows[0].Close}, true, nil
}

// BenchmarkTable stores the daily closes of the single benchmark index. The
// table is keyed by date; it answers only for the series id it is bound to.
type BenchmarkTable struct {
	s  *Store
	id string
}

// Benchmark returns the benchmark table bound to the given series id.
func (s *Store) Benchmark(id string) *BenchmarkTable { return &BenchmarkTable{s: s, id: id} }

func (t *BenchmarkTable) check(seriesID string) error {
	if seriesID != t.id {
		return fmt.Errorf("benchmark table holds %s, not %s", t.id, seriesID)
	}
	return nil
}

// LoadSeries returns every stored benchmark close, date ascending.
func (t *BenchmarkTable) LoadSeries(ctx context.Context, seriesID string) ([]models.SeriesPoint, error) {
	if err := t.check(seriesID); err != nil {
		return nil, err
	}
	var rows []benchmarkRow
	if err := t.s.db.WithContext(ctx).Order("date").Find(&rows).Error; err != nil {
		return nil, errs.Store("load benchmark", err)
	}
	pts := make([]models.SeriesPoint, len(rows))
	for i, r := range rows {
		pts[i] = models.SeriesPoint{Date: utils.Day(r.Date), Value: r.Close}
	}
	return pts, nil
}

// UpsertSeries inserts benchmark points that are not stored yet.
func (t *BenchmarkTable) UpsertSeries(ctx context.Context, seriesID string, pts []models.SeriesPoint) error {
	if err := t.check(seriesID); err != nil {
		return err
	}
	rows := make([]benchmarkRow, len(pts))
	for i, p := range pts {
		rows[i] = benchmarkRow{Date: utils.Day(p.Date), Close: p.Value}
	}
	return insertIgnore(ctx, t.s.db, "upsert benchmark", rows)
}

// LoadCoverage returns the date ranges already fetched for a series.
func (s *Store) LoadCoverage(ctx context.Context, seriesID string) ([]models.DateRange, error) {
	var rows []coverageRow
	err := s.db.WithContext(ctx).
		Where("series_id = ?", seriesID).
		Order("date_from").
		Find(&rows).Error
	if err != nil {
		return nil, errs.Store("load coverage "+seriesID, err)
	}
	out := make([]models.DateRange, len(rows))
	for i, r := range rows {
		out[i] = models.DateRange{From: utils.Day(r.DateFrom), Till: utils.Day(r.DateTill)}
	}
	return out, nil
}

// AddCoverage records that r was fetched for a series.
func (s *Store) AddCoverage(ctx context.Context, seriesID string, r models.DateRange) error {
	row := []coverageRow{{SeriesID: seriesID, DateFrom: utils.Day(r.From), DateTill: utils.Day(r.Till)}}
	return insertIgnore(ctx, s.db, "add coverage "+seriesID, row)
}
