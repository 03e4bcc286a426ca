package store

import (
	"context"
	"fmt"
	"time"

	"github.com/seenimoa/moexidx/internal/errs"
	"github.com/seenimoa/moexidx/pkg/models"
	"github.com/seenimoa/moexidx/pkg/utils"
)

// ── Capitalization ──────────────────────────────────────────────

// Capitalizations returns the stored snapshot for a quarter, ordered by
// descending market cap. An empty result means the period is not cached.
func (s *Store) Capitalizations(ctx context.Context, year, quarter int) ([]models.CapitalizationRecord, error) {
	var rows []capitalizationRow
	err := s.db.WithContext(ctx).
		Where("year = ? AND quarter = ?", year, quarter).
		Order("cap DESC").Order("secid").
		Find(&rows).Error
	if err != nil {
		return nil, errs.Store(fmt.Sprintf("load capitalization %dQ%d", year, quarter), err)
	}
	out := make([]models.CapitalizationRecord, len(rows))
	for i, r := range rows {
		out[i] = models.CapitalizationRecord{
			Year:              r.Year,
			Quarter:           r.Quarter,
			SecID:             r.SecID,
			Name:              r.Name,
			RegistrationID:    r.StateReg,
			SharesOutstanding: r.SharesOut,
			Price:             r.Price,
			MarketCap:         r.Cap,
		}
	}
	return out, nil
}

// SaveCapitalizations stores a snapshot; rows already present are kept.
func (s *Store) SaveCapitalizations(ctx context.Context, recs []models.CapitalizationRecord) error {
	rows := make([]capitalizationRow, len(recs))
	for i, r := range recs {
		rows[i] = capitalizationRow{
			Year:      r.Year,
			Quarter:   r.Quarter,
			SecID:     r.SecID,
			Name:      r.Name,
			StateReg:  r.RegistrationID,
			SharesOut: r.SharesOutstanding,
			Price:     r.Price,
			Cap:       r.MarketCap,
		}
	}
	return insertIgnore(ctx, s.db, "save capitalization", rows)
}

// ── Free float ──────────────────────────────────────────────────

// LatestFreeFloat returns the rows of the most recent date among days.
func (s *Store) LatestFreeFloat(ctx context.Context, days ...time.Time) ([]models.FreeFloatRecord, error) {
	if len(days) == 0 {
		return nil, nil
	}
	norm := make([]time.Time, len(days))
	for i, d := range days {
		norm[i] = utils.Day(d)
	}

	var latest []freeFloatRow
	err := s.db.WithContext(ctx).
		Where("date IN ?", norm).
		Order("date DESC").
		Limit(1).
		Find(&latest).Error
	if err != nil {
		return nil, errs.Store("latest free float", err)
	}
	if len(latest) == 0 {
		return nil, nil
	}

	var rows []freeFloatRow
	err = s.db.WithContext(ctx).
		Where("date = ?", latest[0].Date).
		Order("secid").
		Find(&rows).Error
	if err != nil {
		return nil, errs.Store("load free float", err)
	}
	out := make([]models.FreeFloatRecord, len(rows))
	for i, r := range rows {
		out[i] = models.FreeFloatRecord{AsOf: utils.Day(r.Date), SecID: r.SecID, FreeFloatPct: r.FreeFloat}
	}
	return out, nil
}

// SaveFreeFloat stores free-float rows.
func (s *Store) SaveFreeFloat(ctx context.Context, recs []models.FreeFloatRecord) error {
	rows := make([]freeFloatRow, len(recs))
	for i, r := range recs {
		rows[i] = freeFloatRow{Date: utils.Day(r.AsOf), SecID: r.SecID, FreeFloat: r.FreeFloatPct}
	}
	return insertIgnore(ctx, s.db, "save free float", rows)
}

// ── Dividend yield ──────────────────────────────────────────────

// LatestDividendYear returns the most recent loaded year not after year.
// ok is false when nothing at or before year is stored.
func (s *Store) LatestDividendYear(ctx context.Context, year int) (int, bool, error) {
	var rows []dividendYieldRow
	err := s.db.WithContext(ctx).
		Where("year <= ?", year).
		Order("year DESC").
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return 0, false, errs.Store("latest dividend year", err)
	}
	if len(rows) == 0 {
		return 0, false, nil
	}
	return rows[0].Year, true, nil
}

// DividendYields returns the yields loaded for year.
func (s *Store) DividendYields(ctx context.Context, year int) ([]models.DividendYieldRecord, error) {
	var rows []dividendYieldRow
	err := s.db.WithContext(ctx).
		Where("year = ?", year).
		Order("state_reg").
		Find(&rows).Error
	if err != nil {
		return nil, errs.Store(fmt.Sprintf("load dividend yields %d", year), err)
	}
	out := make([]models.DividendYieldRecord, len(rows))
	for i, r := range rows {
		out[i] = models.DividendYieldRecord{
			Year:           r.Year,
			RegistrationID: r.StateReg,
			YieldPct:       r.DivYield,
			LoadedAt:       utils.Day(r.LoadedAt),
		}
	}
	return out, nil
}

// SaveDividendYields stores dividend yield rows.
func (s *Store) SaveDividendYields(ctx context.Context, recs []models.DividendYieldRecord) error {
	rows := make([]dividendYieldRow, len(recs))
	for i, r := range recs {
		rows[i] = dividendYieldRow{
			Year:     r.Year,
			StateReg: r.RegistrationID,
			DivYield: r.YieldPct,
			LoadedAt: utils.Day(r.LoadedAt),
		}
	}
	return insertIgnore(ctx, s.db, "save dividend yields", rows)
}
