package moex

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/xuri/excelize/v2"

	"github.com/seenimoa/moexidx/internal/config"
	"github.com/seenimoa/moexidx/pkg/models"
	"github.com/seenimoa/moexidx/pkg/utils"
)

// notCalculated marks a security whose free float is not published.
const notCalculated = "не рассчитан"

// Free-float export layout: secid, name, itin, type, state_reg,
// listing_level, free_float.
const (
	ffColSecID     = 0
	ffColFreeFloat = 6
)

// Sheets downloads and parses the MOEX spreadsheet exports.
type Sheets struct {
	freeFloatURL string
	dividendURL  string
	http         *fetcher
}

// NewSheets creates a spreadsheet source for the configured export URLs.
func NewSheets(cfg config.MOEXConfig) *Sheets {
	return &Sheets{
		freeFloatURL: cfg.FreeFloatURL,
		dividendURL:  cfg.DividendYieldURL,
		http:         newFetcher(time.Duration(cfg.TimeoutSec)*time.Second, cfg.RateLimit),
	}
}

// FetchFreeFloat downloads the free-float table. Rows without a published
// value are skipped; asOf is stamped on every record.
func (s *Sheets) FetchFreeFloat(ctx context.Context, asOf time.Time) ([]models.FreeFloatRecord, error) {
	rows, err := s.rows(ctx, s.freeFloatURL)
	if err != nil {
		return nil, fmt.Errorf("free float: %w", err)
	}

	var recs []models.FreeFloatRecord
	for i, row := range rows {
		if i == 0 || len(row) <= ffColFreeFloat {
			continue // header or short row
		}
		raw := strings.TrimSpace(row[ffColFreeFloat])
		if strings.EqualFold(raw, notCalculated) {
			continue
		}
		pct, err := parseNumber(raw)
		if err != nil {
			continue
		}
		secid := utils.NormalizeSecID(row[ffColSecID])
		if secid == "" {
			continue
		}
		recs = append(recs, models.FreeFloatRecord{
			AsOf:         utils.Day(asOf),
			SecID:        secid,
			FreeFloatPct: pct.InexactFloat64(),
		})
	}
	log.Debug().Int("rows", len(recs)).Msg("moex: free float loaded")
	return recs, nil
}

// FetchDividendYields downloads the dividend-yield table. Columns are
// located by header: registration number, yield and, when present, year.
// Rows without a year column are attributed to defaultYear.
func (s *Sheets) FetchDividendYields(ctx context.Context, defaultYear int, loadedAt time.Time) ([]models.DividendYieldRecord, error) {
	rows, err := s.rows(ctx, s.dividendURL)
	if err != nil {
		return nil, fmt.Errorf("dividend yields: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	header := rows[0]
	regCol := findColumn(header, "state_reg", "регистрац", "рег. номер", "рег.номер")
	yieldCol := findColumn(header, "div_yield", "yield", "доходн")
	yearCol := findColumn(header, "year", "год")
	if yearCol == yieldCol || yearCol == regCol {
		yearCol = -1
	}
	if regCol < 0 || yieldCol < 0 {
		return nil, fmt.Errorf("dividend yields: registration or yield column not found in %v", header)
	}

	var recs []models.DividendYieldRecord
	for _, row := range rows[1:] {
		if len(row) <= regCol || len(row) <= yieldCol {
			continue
		}
		reg := strings.TrimSpace(row[regCol])
		y, err := parseNumber(row[yieldCol])
		if reg == "" || err != nil {
			continue
		}
		year := defaultYear
		if yearCol >= 0 && yearCol < len(row) {
			if v, err := parseNumber(row[yearCol]); err == nil {
				year = int(v.IntPart())
			}
		}
		recs = append(recs, models.DividendYieldRecord{
			Year:           year,
			RegistrationID: reg,
			YieldPct:       y.InexactFloat64(),
			LoadedAt:       utils.Day(loadedAt),
		})
	}
	log.Debug().Int("rows", len(recs)).Msg("moex: dividend yields loaded")
	return recs, nil
}

// rows downloads a workbook and returns the cells of its first sheet.
func (s *Sheets) rows(ctx context.Context, u string) ([][]string, error) {
	body, err := s.http.get(ctx, u, map[string]string{
		"Accept": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	})
	if err != nil {
		return nil, err
	}
	defer body.Close()

	f, err := excelize.OpenReader(body)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}
	return f.GetRows(sheets[0])
}

func findColumn(header []string, keys ...string) int {
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(h))
		for _, k := range keys {
			if strings.Contains(h, k) {
				return i
			}
		}
	}
	return -1
}
