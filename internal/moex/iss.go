package moex

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/seenimoa/moexidx/internal/config"
	"github.com/seenimoa/moexidx/internal/infra"
	"github.com/seenimoa/moexidx/pkg/models"
	"github.com/seenimoa/moexidx/pkg/utils"
)

// ISS is a client of the MOEX Informational & Statistical Server. Share
// series are read from the configured share board; the benchmark series
// is read from the index market.
type ISS struct {
	baseURL        string
	board          string
	benchmark      string
	benchmarkBoard string

	passportURL string
	username    string
	password    string
	authMu      sync.Mutex
	authed      bool

	http   *fetcher
	quotes *infra.Memo[string, latestQuote]
	now    func() time.Time
}

type latestQuote struct {
	close float64
	ok    bool
}

// NewISS creates an ISS client from configuration.
func NewISS(cfg config.MOEXConfig) *ISS {
	return &ISS{
		baseURL:        strings.TrimRight(cfg.ISSURL, "/"),
		board:          cfg.Board,
		benchmark:      cfg.Benchmark,
		benchmarkBoard: cfg.BenchmarkBoard,
		passportURL:    cfg.PassportURL,
		username:       cfg.Username,
		password:       cfg.Password,
		http:           newFetcher(time.Duration(cfg.TimeoutSec)*time.Second, cfg.RateLimit),
		quotes:         infra.NewMemo[string, latestQuote](time.Duration(cfg.QuoteTTLSec) * time.Second),
		now:            utils.Today,
	}
}

// Name implements the series source interface.
func (c *ISS) Name() string { return "moex-iss" }

// issTable is the ISS JSON block layout: column names plus row arrays.
type issTable struct {
	Columns []string `json:"columns"`
	Data    [][]any  `json:"data"`
}

func (t issTable) col(name string) int {
	for i, c := range t.Columns {
		if strings.EqualFold(c, name) {
			return i
		}
	}
	return -1
}

type historyResponse struct {
	History issTable `json:"history"`
	Cursor  issTable `json:"history.cursor"`
}

type candlesResponse struct {
	Candles issTable `json:"candles"`
}

// login establishes the passport session once. A failed attempt is not
// remembered; the next request tries again.
func (c *ISS) login(ctx context.Context) error {
	if c.username == "" {
		return nil
	}
	c.authMu.Lock()
	defer c.authMu.Unlock()
	if c.authed {
		return nil
	}
	if err := c.http.authenticate(ctx, c.passportURL, c.username, c.password); err != nil {
		return err
	}
	c.authed = true
	log.Debug().Str("user", c.username).Msg("moex: passport session established")
	return nil
}

func (c *ISS) getJSON(ctx context.Context, u string, out any) error {
	if err := c.login(ctx); err != nil {
		return err
	}
	body, err := c.http.get(ctx, u, nil)
	if err != nil {
		return err
	}
	defer body.Close()
	if err := json.NewDecoder(body).Decode(out); err != nil {
		return fmt.Errorf("decode ISS response: %w", err)
	}
	return nil
}

// FetchDailyCloses returns the daily closes of seriesID between from and
// till inclusive. Days without a close are skipped; an empty result is not
// an error.
func (c *ISS) FetchDailyCloses(ctx context.Context, seriesID string, from, till time.Time) ([]models.SeriesPoint, error) {
	market, board := "shares", c.board
	if seriesID == c.benchmark {
		market, board = "index", c.benchmarkBoard
	}
	from, till = utils.Day(from), utils.Day(till)
	window := models.DateRange{From: from, Till: till}

	var out []models.SeriesPoint
	for start := 0; ; {
		q := url.Values{}
		q.Set("from", utils.FormatDate(from))
		q.Set("till", utils.FormatDate(till))
		q.Set("start", strconv.Itoa(start))
		q.Set("iss.meta", "off")
		q.Set("iss.only", "history,history.cursor")
		q.Set("history.columns", "TRADEDATE,CLOSE")
		u := fmt.Sprintf("%s/history/engines/stock/markets/%s/boards/%s/securities/%s.json?%s",
			c.baseURL, market, board, url.PathEscape(seriesID), q.Encode())

		var resp historyResponse
		if err := c.getJSON(ctx, u, &resp); err != nil {
			return nil, err
		}
		pts, err := parseHistory(resp.History, window)
		if err != nil {
			return nil, fmt.Errorf("%s history: %w", seriesID, err)
		}
		out = append(out, pts...)

		next, more := nextPage(resp.Cursor, start, len(resp.History.Data))
		if !more {
			break
		}
		start = next
	}

	log.Debug().Str("series", seriesID).Str("board", board).
		Str("range", window.String()).Int("rows", len(out)).Msg("moex: history fetched")
	return out, nil
}

func parseHistory(t issTable, window models.DateRange) ([]models.SeriesPoint, error) {
	di, ci := t.col("TRADEDATE"), t.col("CLOSE")
	if len(t.Data) == 0 {
		return nil, nil
	}
	if di < 0 || ci < 0 {
		return nil, fmt.Errorf("missing TRADEDATE/CLOSE columns in %v", t.Columns)
	}
	pts := make([]models.SeriesPoint, 0, len(t.Data))
	for _, row := range t.Data {
		if len(row) <= di || len(row) <= ci {
			continue
		}
		ds, ok := row[di].(string)
		if !ok {
			continue
		}
		closeVal, ok := row[ci].(float64)
		if !ok {
			continue // null close: no trades that day
		}
		d, err := utils.ParseDate(ds)
		if err != nil {
			return nil, err
		}
		if !window.Contains(d) {
			continue
		}
		pts = append(pts, models.SeriesPoint{Date: d, Value: closeVal})
	}
	return pts, nil
}

// nextPage reads the history.cursor block. Without a cursor, a page is
// assumed to be the last one.
func nextPage(cursor issTable, start, got int) (int, bool) {
	if len(cursor.Data) == 0 || got == 0 {
		return 0, false
	}
	row := cursor.Data[0]
	num := func(name string) int {
		i := cursor.col(name)
		if i < 0 || i >= len(row) {
			return 0
		}
		v, _ := row[i].(float64)
		return int(v)
	}
	index, total, size := num("INDEX"), num("TOTAL"), num("PAGESIZE")
	if size <= 0 {
		size = got
	}
	next := index + size
	if next >= total || next <= start {
		return 0, false
	}
	return next, true
}

// LatestClose returns the close of the last daily candle of secid traded
// today. ok is false when there is no candle today.
func (c *ISS) LatestClose(ctx context.Context, secid string) (float64, bool, error) {
	if q, hit := c.quotes.Get(secid); hit {
		return q.close, q.ok, nil
	}

	today := utils.FormatDate(c.now())
	q := url.Values{}
	q.Set("interval", "24")
	q.Set("from", today)
	q.Set("till", today)
	q.Set("iss.meta", "off")
	q.Set("iss.only", "candles")
	u := fmt.Sprintf("%s/engines/stock/markets/shares/securities/%s/candles.json?%s",
		c.baseURL, url.PathEscape(secid), q.Encode())

	var resp candlesResponse
	if err := c.getJSON(ctx, u, &resp); err != nil {
		return 0, false, err
	}

	quote := latestQuote{}
	if ci := resp.Candles.col("close"); ci >= 0 && len(resp.Candles.Data) > 0 {
		last := resp.Candles.Data[len(resp.Candles.Data)-1]
		if ci < len(last) {
			quote.close, quote.ok = last[ci].(float64)
		}
	}
	c.quotes.Set(secid, quote)
	return quote.close, quote.ok, nil
}
