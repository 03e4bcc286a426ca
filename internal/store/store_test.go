package store

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/seenimoa/moexidx/internal/config"
	"github.com/seenimoa/moexidx/internal/errs"
	"github.com/seenimoa/moexidx/pkg/models"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(config.StoreConfig{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "test.db")})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func day(s string) time.Time {
	d, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestOpenUnsupportedDriver(t *testing.T) {
	if _, err := Open(config.StoreConfig{Driver: "oracle", DSN: "x"}); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}

// ════════════════════════════════════════════════════════════════════
// Series
// ════════════════════════════════════════════════════════════════════

func TestPriceUpsertIsIdempotent(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	prices := s.Prices()

	first := []models.SeriesPoint{
		{Date: day("2024-01-03"), Value: 101},
		{Date: day("2024-01-02"), Value: 100},
	}
	if err := prices.UpsertSeries(ctx, "SBER", first); err != nil {
		t.Fatalf("UpsertSeries: %v", err)
	}
	// Same dates with other values must not rewrite stored rows.
	again := []models.SeriesPoint{
		{Date: day("2024-01-02"), Value: 999},
		{Date: day("2024-01-04"), Value: 102},
	}
	if err := prices.UpsertSeries(ctx, "SBER", again); err != nil {
		t.Fatalf("UpsertSeries again: %v", err)
	}
	if err := prices.UpsertSeries(ctx, "SBER", nil); err != nil {
		t.Fatalf("UpsertSeries empty: %v", err)
	}

	got, err := prices.LoadSeries(ctx, "SBER")
	if err != nil {
		t.Fatalf("LoadSeries: %v", err)
	}
	want := []models.SeriesPoint{
		{Date: day("2024-01-02"), Value: 100},
		{Date: day("2024-01-03"), Value: 101},
		{Date: day("2024-01-04"), Value: 102},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d points, want %d", len(got), len(want))
	}
	for i := range want {
		if !got[i].Date.Equal(want[i].Date) || got[i].Value != want[i].Value {
			t.Errorf("point %d = %+v, want %+v", i, got[i], want[i])
		}
	}

	other, err := prices.LoadSeries(ctx, "GAZP")
	if err != nil {
		t.Fatalf("LoadSeries GAZP: %v", err)
	}
	if len(other) != 0 {
		t.Errorf("GAZP should be empty, got %d", len(other))
	}
}

func TestConcurrentUpsertsNeverDuplicate(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	prices := s.Prices()

	// Two fillers racing on overlapping windows of the same series.
	batch := func(from, till string) []models.SeriesPoint {
		var pts []models.SeriesPoint
		for d := day(from); !d.After(day(till)); d = d.AddDate(0, 0, 1) {
			pts = append(pts, models.SeriesPoint{Date: d, Value: float64(d.Day())})
		}
		return pts
	}
	batches := [][]models.SeriesPoint{
		batch("2024-01-01", "2024-01-20"),
		batch("2024-01-10", "2024-01-31"),
		batch("2024-01-01", "2024-01-31"),
		batch("2024-01-15", "2024-01-25"),
	}

	var wg sync.WaitGroup
	errCh := make(chan error, len(batches)*4)
	for i := 0; i < 4; i++ {
		for _, b := range batches {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errCh <- prices.UpsertSeries(ctx, "SBER", b)
			}()
		}
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		if err != nil {
			t.Fatalf("UpsertSeries: %v", err)
		}
	}

	got, err := prices.LoadSeries(ctx, "SBER")
	if err != nil {
		t.Fatalf("LoadSeries: %v", err)
	}
	if len(got) != 31 {
		t.Fatalf("got %d rows, want 31", len(got))
	}
	var rows int64
	if err := s.db.Model(&priceRow{}).Where("secid = ?", "SBER").Count(&rows).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if rows != 31 {
		t.Errorf("table holds %d rows, want 31", rows)
	}
}

func TestLastCloseRespectsLookback(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	prices := s.Prices()
	prices.UpsertSeries(ctx, "LKOH", []models.SeriesPoint{
		{Date: day("2024-03-01"), Value: 7000},
		{Date: day("2024-03-05"), Value: 7100},
	})

	p, ok, err := prices.LastClose(ctx, "LKOH", day("2024-03-10"), 14)
	if err != nil || !ok {
		t.Fatalf("LastClose: ok=%v err=%v", ok, err)
	}
	if p.Value != 7100 {
		t.Errorf("LastClose = %v, want 7100", p.Value)
	}

	if _, ok, _ := prices.LastClose(ctx, "LKOH", day("2024-04-30"), 14); ok {
		t.Error("close older than lookback should not be returned")
	}
}

func TestBenchmarkTableBoundToSeries(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	b := s.Benchmark("IMOEX")

	if err := b.UpsertSeries(ctx, "IMOEX", []models.SeriesPoint{{Date: day("2024-01-02"), Value: 3100}}); err != nil {
		t.Fatalf("UpsertSeries: %v", err)
	}
	if _, err := b.LoadSeries(ctx, "RTSI"); err == nil {
		t.Error("expected error for foreign series id")
	}
	got, err := b.LoadSeries(ctx, "IMOEX")
	if err != nil || len(got) != 1 || got[0].Value != 3100 {
		t.Fatalf("LoadSeries = %+v, %v", got, err)
	}
}

func TestCoverage(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	r := models.DateRange{From: day("2024-01-01"), Till: day("2024-01-31")}

	for range 2 {
		if err := s.AddCoverage(ctx, "SBER", r); err != nil {
			t.Fatalf("AddCoverage: %v", err)
		}
	}
	s.AddCoverage(ctx, "SBER", models.DateRange{From: day("2023-06-01"), Till: day("2023-06-30")})

	got, err := s.LoadCoverage(ctx, "SBER")
	if err != nil {
		t.Fatalf("LoadCoverage: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d ranges, want 2", len(got))
	}
	if !got[0].From.Equal(day("2023-06-01")) || !got[1].Till.Equal(day("2024-01-31")) {
		t.Errorf("unexpected coverage %v", got)
	}
}

// ════════════════════════════════════════════════════════════════════
// Reference data
// ════════════════════════════════════════════════════════════════════

func TestCapitalizationSnapshotIsFrozen(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	recs := []models.CapitalizationRecord{
		{Year: 2024, Quarter: 1, SecID: "SBER", Name: "Сбербанк", RegistrationID: "10301481B", SharesOutstanding: 21586948000, Price: 300, MarketCap: 6.4e12},
		{Year: 2024, Quarter: 1, SecID: "GAZP", Name: "Газпром", RegistrationID: "1-02-00028-A", SharesOutstanding: 23673512900, Price: 160, MarketCap: 3.8e12},
	}
	if err := s.SaveCapitalizations(ctx, recs); err != nil {
		t.Fatalf("SaveCapitalizations: %v", err)
	}
	changed := recs[0]
	changed.MarketCap = 1
	s.SaveCapitalizations(ctx, []models.CapitalizationRecord{changed})

	got, err := s.Capitalizations(ctx, 2024, 1)
	if err != nil {
		t.Fatalf("Capitalizations: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d rows, want 2", len(got))
	}
	if got[0].SecID != "SBER" || got[0].MarketCap != 6.4e12 {
		t.Errorf("first row = %+v, want SBER with original cap", got[0])
	}
	if got[1].RegistrationID != "1-02-00028-A" {
		t.Errorf("registration id lost: %+v", got[1])
	}

	empty, _ := s.Capitalizations(ctx, 2024, 2)
	if len(empty) != 0 {
		t.Errorf("other quarter should be empty, got %d", len(empty))
	}
}

func TestLatestFreeFloat(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	s.SaveFreeFloat(ctx, []models.FreeFloatRecord{
		{AsOf: day("2024-05-01"), SecID: "SBER", FreeFloatPct: 48},
		{AsOf: day("2024-05-02"), SecID: "SBER", FreeFloatPct: 50},
		{AsOf: day("2024-05-02"), SecID: "GAZP", FreeFloatPct: 46},
	})

	got, err := s.LatestFreeFloat(ctx, day("2024-05-02"), day("2024-05-01"))
	if err != nil {
		t.Fatalf("LatestFreeFloat: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d rows, want 2", len(got))
	}
	for _, r := range got {
		if !r.AsOf.Equal(day("2024-05-02")) {
			t.Errorf("row %+v not from latest date", r)
		}
	}

	none, err := s.LatestFreeFloat(ctx, day("2024-06-01"))
	if err != nil || len(none) != 0 {
		t.Errorf("expected no rows, got %d (%v)", len(none), err)
	}
}

func TestDividendYields(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	s.SaveDividendYields(ctx, []models.DividendYieldRecord{
		{Year: 2022, RegistrationID: "10301481B", YieldPct: 0.5, LoadedAt: day("2023-01-10")},
		{Year: 2023, RegistrationID: "10301481B", YieldPct: 11.2, LoadedAt: day("2024-01-10")},
	})

	year, ok, err := s.LatestDividendYear(ctx, 2024)
	if err != nil || !ok || year != 2023 {
		t.Fatalf("LatestDividendYear = %d, %v, %v; want 2023", year, ok, err)
	}
	if _, ok, _ := s.LatestDividendYear(ctx, 2021); ok {
		t.Error("no year at or before 2021 should be found")
	}

	got, err := s.DividendYields(ctx, 2023)
	if err != nil || len(got) != 1 || got[0].YieldPct != 11.2 {
		t.Fatalf("DividendYields = %+v, %v", got, err)
	}
}

// ════════════════════════════════════════════════════════════════════
// Indices
// ════════════════════════════════════════════════════════════════════

func TestCreateAndListIndices(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	idx, comps, err := s.CreateIndex(ctx, models.Index{
		Name:      "Blue Chips",
		BaseDate:  day("2024-01-10"),
		Weighting: models.WeightEqual,
		BaseValue: 250,
	}, models.Weights{"SBER": 0.5, "GAZP": 0.5})
	if err != nil {
		t.Fatalf("CreateIndex: %v", err)
	}
	if idx.ID == 0 {
		t.Fatal("index id not assigned")
	}
	if len(comps) != 2 || comps[0].SecID != "GAZP" || comps[0].IndexID != idx.ID {
		t.Errorf("components = %+v", comps)
	}
	s.CreateIndex(ctx, models.Index{Name: "Oil", BaseDate: day("2024-01-10"), Weighting: models.WeightMarketCap}, models.Weights{"LKOH": 1})

	got, err := s.GetIndex(ctx, idx.ID)
	if err != nil {
		t.Fatalf("GetIndex: %v", err)
	}
	if got.Name != "Blue Chips" || got.Weighting != models.WeightEqual || !got.BaseDate.Equal(day("2024-01-10")) {
		t.Errorf("GetIndex = %+v", got)
	}

	stored, err := s.Components(ctx, idx.ID)
	if err != nil || len(stored) != 2 {
		t.Fatalf("Components = %+v, %v", stored, err)
	}

	all, _ := s.ListIndices(ctx, "")
	if len(all) != 2 {
		t.Errorf("ListIndices all = %d, want 2", len(all))
	}
	found, _ := s.ListIndices(ctx, "blue")
	if len(found) != 1 || found[0].ID != idx.ID {
		t.Errorf("ListIndices(blue) = %+v", found)
	}
}

func TestGetIndexNotFound(t *testing.T) {
	s := testStore(t)
	_, err := s.GetIndex(context.Background(), 42)
	if !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
