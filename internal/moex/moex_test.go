package moex

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/seenimoa/moexidx/internal/config"
)

func testConfig(base string) config.MOEXConfig {
	return config.MOEXConfig{
		ISSURL:           base,
		PassportURL:      base + "/authenticate",
		SiteURL:          base,
		FreeFloatURL:     base + "/ff.xlsx",
		DividendYieldURL: base + "/div.xlsx",
		Board:            "TQBR",
		Benchmark:        "IMOEX",
		BenchmarkBoard:   "SNDX",
		RateLimit:        1000,
		TimeoutSec:       5,
		QuoteTTLSec:      60,
	}
}

func day(s string) time.Time {
	d, _ := time.Parse(time.DateOnly, s)
	return d
}

// ════════════════════════════════════════════════════════════════════
// ISS
// ════════════════════════════════════════════════════════════════════

func TestFetchDailyClosesPaginates(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		if r.URL.Query().Get("history.columns") != "TRADEDATE,CLOSE" {
			t.Errorf("missing column filter: %s", r.URL.RawQuery)
		}
		switch r.URL.Query().Get("start") {
		case "0":
			fmt.Fprint(w, `{"history":{"columns":["TRADEDATE","CLOSE"],"data":[["2024-01-03",271.5],["2024-01-04",null]]},
				"history.cursor":{"columns":["INDEX","TOTAL","PAGESIZE"],"data":[[0,3,2]]}}`)
		case "2":
			fmt.Fprint(w, `{"history":{"columns":["TRADEDATE","CLOSE"],"data":[["2024-01-05",273.1]]},
				"history.cursor":{"columns":["INDEX","TOTAL","PAGESIZE"],"data":[[2,3,2]]}}`)
		default:
			t.Errorf("unexpected start %q", r.URL.Query().Get("start"))
		}
	}))
	defer srv.Close()

	c := NewISS(testConfig(srv.URL))
	pts, err := c.FetchDailyCloses(context.Background(), "SBER", day("2024-01-01"), day("2024-01-10"))
	if err != nil {
		t.Fatalf("FetchDailyCloses: %v", err)
	}
	if len(pts) != 2 {
		t.Fatalf("got %d points, want 2 (null close skipped)", len(pts))
	}
	if !pts[0].Date.Equal(day("2024-01-03")) || pts[0].Value != 271.5 || pts[1].Value != 273.1 {
		t.Errorf("points = %+v", pts)
	}
	if want := "/history/engines/stock/markets/shares/boards/TQBR/securities/SBER.json"; paths[0] != want {
		t.Errorf("path = %s, want %s", paths[0], want)
	}
	if len(paths) != 2 {
		t.Errorf("requests = %d, want 2", len(paths))
	}
}

func TestFetchDailyClosesBenchmarkBoard(t *testing.T) {
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		fmt.Fprint(w, `{"history":{"columns":["TRADEDATE","CLOSE"],"data":[]},"history.cursor":{"columns":["INDEX","TOTAL","PAGESIZE"],"data":[[0,0,100]]}}`)
	}))
	defer srv.Close()

	pts, err := NewISS(testConfig(srv.URL)).FetchDailyCloses(context.Background(), "IMOEX", day("2024-01-01"), day("2024-01-10"))
	if err != nil {
		t.Fatalf("FetchDailyCloses: %v", err)
	}
	if len(pts) != 0 {
		t.Errorf("expected empty result, got %d", len(pts))
	}
	if want := "/history/engines/stock/markets/index/boards/SNDX/securities/IMOEX.json"; path != want {
		t.Errorf("path = %s, want %s", path, want)
	}
}

func TestFetchDailyClosesDropsOutOfWindow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"history":{"columns":["TRADEDATE","CLOSE"],"data":[["2023-12-29",1],["2024-01-03",2]]}}`)
	}))
	defer srv.Close()

	pts, err := NewISS(testConfig(srv.URL)).FetchDailyCloses(context.Background(), "GAZP", day("2024-01-01"), day("2024-01-10"))
	if err != nil {
		t.Fatalf("FetchDailyCloses: %v", err)
	}
	if len(pts) != 1 || pts[0].Value != 2 {
		t.Errorf("points = %+v, want only 2024-01-03", pts)
	}
}

func TestFetchDailyClosesHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewISS(testConfig(srv.URL)).FetchDailyCloses(context.Background(), "SBER", day("2024-01-01"), day("2024-01-10"))
	var httpErr *ErrHTTP
	if !errors.As(err, &httpErr) || httpErr.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("err = %v, want ErrHTTP 503", err)
	}
}

func TestLatestCloseMemoized(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Query().Get("interval") != "24" {
			t.Errorf("interval = %q", r.URL.Query().Get("interval"))
		}
		switch {
		case strings.Contains(r.URL.Path, "/SBER/"):
			fmt.Fprint(w, `{"candles":{"columns":["open","close","high","low","value","volume","begin","end"],
				"data":[[270,271,272,269,1,1,"2024-01-03 00:00:00","2024-01-03 23:59:59"],[271,275.5,276,270,1,1,"2024-01-03 00:00:00","2024-01-03 23:59:59"]]}}`)
		default:
			fmt.Fprint(w, `{"candles":{"columns":["open","close"],"data":[]}}`)
		}
	}))
	defer srv.Close()

	c := NewISS(testConfig(srv.URL))
	c.now = func() time.Time { return day("2024-01-03") }
	ctx := context.Background()

	for range 2 {
		price, ok, err := c.LatestClose(ctx, "SBER")
		if err != nil || !ok || price != 275.5 {
			t.Fatalf("LatestClose = %v, %v, %v", price, ok, err)
		}
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}

	_, ok, err := c.LatestClose(ctx, "GAZP")
	if err != nil || ok {
		t.Errorf("GAZP without candle: ok=%v err=%v", ok, err)
	}
}

func TestPassportCookieAttached(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/authenticate" {
			user, pass, ok := r.BasicAuth()
			if !ok || user != "trader" || pass != "secret" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			http.SetCookie(w, &http.Cookie{Name: "MicexPassportCert", Value: "token"})
			return
		}
		if c, err := r.Cookie("MicexPassportCert"); err != nil || c.Value != "token" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		fmt.Fprint(w, `{"history":{"columns":["TRADEDATE","CLOSE"],"data":[["2024-01-03",1]]}}`)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.Username, cfg.Password = "trader", "secret"
	pts, err := NewISS(cfg).FetchDailyCloses(context.Background(), "SBER", day("2024-01-01"), day("2024-01-10"))
	if err != nil || len(pts) != 1 {
		t.Fatalf("FetchDailyCloses = %v, %v", pts, err)
	}
}

func TestPassportRetriedAfterTransientFailure(t *testing.T) {
	var authCalls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/authenticate" {
			if authCalls.Add(1) == 1 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			http.SetCookie(w, &http.Cookie{Name: "MicexPassportCert", Value: "token"})
			return
		}
		if _, err := r.Cookie("MicexPassportCert"); err != nil {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		fmt.Fprint(w, `{"history":{"columns":["TRADEDATE","CLOSE"],"data":[["2024-01-03",1]]}}`)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.Username, cfg.Password = "trader", "secret"
	iss := NewISS(cfg)
	ctx := context.Background()

	if _, err := iss.FetchDailyCloses(ctx, "SBER", day("2024-01-01"), day("2024-01-10")); err == nil {
		t.Fatal("expected the first fetch to fail on passport 503")
	}
	for i := 0; i < 2; i++ {
		pts, err := iss.FetchDailyCloses(ctx, "SBER", day("2024-01-01"), day("2024-01-10"))
		if err != nil || len(pts) != 1 {
			t.Fatalf("fetch #%d = %v, %v", i+2, pts, err)
		}
	}
	if n := authCalls.Load(); n != 2 {
		t.Errorf("passport calls = %d, want 2 (one failure, one success)", n)
	}
}

// ════════════════════════════════════════════════════════════════════
// Capitalization
// ════════════════════════════════════════════════════════════════════

const s26Page = `<html><body>
<table class="table1">
<tr><th>2023</th><th>2024</th></tr>
<tr><td><a href="/a1.html">1 квартал 2023</a></td><td><a href="/files/cap-2024-1.html">1 квартал 2024</a></td></tr>
<tr><td><a href="/a2.html">2 квартал 2023</a></td><td>2 квартал 2024</td></tr>
</table></body></html>`

const capPage = `<html><body><div class="table-scroller"><table class="table1">
<tr><th>Код</th><th>Наименование</th><th>Тип</th><th>Рег. номер</th><th>Кол-во</th><th>Цена</th><th>Капитализация</th></tr>
<tr><td> SBER </td><td>Сбербанк</td><td>ао</td><td>10301481B</td><td>21 586 948 000</td><td>292,55</td><td>6 315 261 085 400,00</td></tr>
<tr><td>GAZP</td><td>Газпром</td><td>ао</td><td>1-02-00028-A</td><td>23 673 512 900</td><td>159,8</td><td>3 783 027 361 420</td></tr>
<tr><td>BAD</td><td>broken</td><td>ао</td><td>x</td><td>n/a</td><td>1</td><td>1</td></tr>
</table></div></body></html>`

func TestFetchCapitalization(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/s26":
			fmt.Fprint(w, s26Page)
		case "/files/cap-2024-1.html":
			fmt.Fprint(w, capPage)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	s := NewCapScraper(testConfig(srv.URL))
	recs, err := s.FetchCapitalization(context.Background(), 2024, 1)
	if err != nil {
		t.Fatalf("FetchCapitalization: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2", len(recs))
	}
	sber := recs[0]
	if sber.SecID != "SBER" || sber.RegistrationID != "10301481B" || sber.SharesOutstanding != 21586948000 {
		t.Errorf("SBER = %+v", sber)
	}
	if sber.Price != 292.55 || sber.MarketCap != 6315261085400 {
		t.Errorf("SBER numbers = %v / %v", sber.Price, sber.MarketCap)
	}
	if sber.Year != 2024 || sber.Quarter != 1 {
		t.Errorf("period = %d Q%d", sber.Year, sber.Quarter)
	}
}

func TestFetchCapitalizationMissingPeriod(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, s26Page)
	}))
	defer srv.Close()

	s := NewCapScraper(testConfig(srv.URL))
	tests := []struct {
		name          string
		year, quarter int
	}{
		{"unknown year", 2019, 1},
		{"quarter without link", 2024, 2},
		{"quarter not listed", 2024, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.FetchCapitalization(context.Background(), tt.year, tt.quarter); err == nil {
				t.Error("expected error")
			}
		})
	}
}

// ════════════════════════════════════════════════════════════════════
// Spreadsheets
// ════════════════════════════════════════════════════════════════════

func workbook(t *testing.T, rows [][]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow("Sheet1", cell, &row); err != nil {
			t.Fatalf("SetSheetRow: %v", err)
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("WriteToBuffer: %v", err)
	}
	return buf.Bytes()
}

func TestFetchFreeFloat(t *testing.T) {
	book := workbook(t, [][]any{
		{"Код", "Наименование", "ISIN", "Тип", "Рег. номер", "Уровень", "Free-float, %"},
		{"SBER", "Сбербанк", "RU0009029540", "ао", "10301481B", "1", "48"},
		{"GAZP", "Газпром", "RU0007661625", "ао", "1-02-00028-A", "1", "46,5"},
		{"NEW", "Новая", "RU000", "ао", "1-01", "3", "не рассчитан"},
	})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(book)
	}))
	defer srv.Close()

	recs, err := NewSheets(testConfig(srv.URL)).FetchFreeFloat(context.Background(), day("2024-05-02"))
	if err != nil {
		t.Fatalf("FetchFreeFloat: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2", len(recs))
	}
	if recs[1].SecID != "GAZP" || recs[1].FreeFloatPct != 46.5 || !recs[1].AsOf.Equal(day("2024-05-02")) {
		t.Errorf("GAZP = %+v", recs[1])
	}
}

func TestFetchDividendYields(t *testing.T) {
	book := workbook(t, [][]any{
		{"Эмитент", "Рег. номер", "Год", "Дивидендная доходность, %"},
		{"Сбербанк", "10301481B", "2023", "11,2"},
		{"Газпром", "1-02-00028-A", "2023", "0"},
		{"Пусто", "", "2023", "5"},
	})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(book)
	}))
	defer srv.Close()

	recs, err := NewSheets(testConfig(srv.URL)).FetchDividendYields(context.Background(), 2024, day("2024-05-02"))
	if err != nil {
		t.Fatalf("FetchDividendYields: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2", len(recs))
	}
	if recs[0].RegistrationID != "10301481B" || recs[0].YieldPct != 11.2 || recs[0].Year != 2023 {
		t.Errorf("SBER = %+v", recs[0])
	}
}

func TestParseNumber(t *testing.T) {
	tests := []struct {
		in   string
		want string
		err  bool
	}{
		{"1 234,5", "1234.5", false},
		{"48 %", "48", false},
		{"6 315 261 085 400,00", "6315261085400", false},
		{"", "", true},
		{"n/a", "", true},
	}
	for _, tt := range tests {
		got, err := parseNumber(tt.in)
		if tt.err {
			if err == nil {
				t.Errorf("parseNumber(%q) expected error", tt.in)
			}
			continue
		}
		if err != nil || !got.Equal(mustDecimal(tt.want)) {
			t.Errorf("parseNumber(%q) = %v, %v; want %s", tt.in, got, err, tt.want)
		}
	}
}

func mustDecimal(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
