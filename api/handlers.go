package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/seenimoa/moexidx/internal/errs"
	"github.com/seenimoa/moexidx/internal/index"
	"github.com/seenimoa/moexidx/pkg/models"
	"github.com/seenimoa/moexidx/pkg/utils"
)

// ============================================================
// Request / response types
// ============================================================

// SecurityIn is one security of a create request.
type SecurityIn struct {
	SecID        string   `json:"secid"`
	CustomWeight *float64 `json:"custom_weight,omitempty"`
}

// CreateIndexRequest is the body for POST /api/v1/index.
type CreateIndexRequest struct {
	Name       string       `json:"name"`
	BaseDate   string       `json:"base_date"` // YYYY-MM-DD, defaults to today
	Weighting  string       `json:"weighting"`
	Securities []SecurityIn `json:"securities"`
}

// IndexInfo is an index as returned by the API.
type IndexInfo struct {
	ID        int64   `json:"id"`
	Name      string  `json:"name"`
	BaseDate  string  `json:"base_date"`
	Weighting string  `json:"weighting"`
	BaseValue float64 `json:"base_value"`
}

// IndexOut is an index with its frozen weights.
type IndexOut struct {
	IndexInfo
	Weights models.Weights `json:"weights"`
}

// IndexValue is the body of GET /api/v1/index/{id}/value.
type IndexValue struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}

// IndexPoint is one day of GET /api/v1/index/{id}/series.
type IndexPoint struct {
	Date      string   `json:"date"`
	Value     float64  `json:"value"`
	Benchmark *float64 `json:"benchmark,omitempty"`
}

func toInfo(idx models.Index) IndexInfo {
	return IndexInfo{
		ID:        idx.ID,
		Name:      idx.Name,
		BaseDate:  utils.FormatDate(idx.BaseDate),
		Weighting: string(idx.Weighting),
		BaseValue: idx.BaseValue,
	}
}

func toOut(d index.Detail) IndexOut {
	return IndexOut{IndexInfo: toInfo(d.Index), Weights: models.ComponentWeights(d.Components)}
}

// ============================================================
// Handlers
// ============================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	data := map[string]interface{}{
		"status":        "ok",
		"version":       Version,
		"market_status": utils.MarketStatus(),
		"time_msk":      utils.FormatDateTimeMSK(utils.NowMSK()),
	}
	if s.store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := s.store.Ping(ctx); err != nil {
			data["status"] = "degraded"
			data["store"] = err.Error()
			writeJSON(w, http.StatusServiceUnavailable, APIResponse{Success: false, Data: data, Error: "store unavailable"})
			return
		}
		data["store"] = "ok"
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: data})
}

func (s *Server) handleCreateIndex(w http.ResponseWriter, r *http.Request) {
	var req CreateIndexRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var base time.Time
	if strings.TrimSpace(req.BaseDate) != "" {
		d, err := utils.ParseDate(req.BaseDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "base_date must be YYYY-MM-DD")
			return
		}
		base = d
	}
	secs := make([]index.SecurityRequest, len(req.Securities))
	for i, sec := range req.Securities {
		secs[i] = index.SecurityRequest{SecID: sec.SecID, CustomWeight: sec.CustomWeight}
	}

	d, err := s.svc.Create(r.Context(), index.CreateRequest{
		Name:       req.Name,
		BaseDate:   base,
		Weighting:  req.Weighting,
		Securities: secs,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, APIResponse{Success: true, Data: toOut(d)})
}

func (s *Server) handleListIndices(w http.ResponseWriter, r *http.Request) {
	list, err := s.svc.List(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	out := make([]IndexInfo, len(list))
	for i, idx := range list {
		out[i] = toInfo(idx)
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: out})
}

func (s *Server) handleGetIndex(w http.ResponseWriter, r *http.Request) {
	id, ok := indexID(w, r)
	if !ok {
		return
	}
	d, err := s.svc.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: toOut(d)})
}

func (s *Server) handleIndexValue(w http.ResponseWriter, r *http.Request) {
	id, ok := indexID(w, r)
	if !ok {
		return
	}
	v, err := s.svc.Value(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    IndexValue{Date: utils.FormatDate(v.Date), Value: v.Value},
	})
}

func (s *Server) handleIndexSeries(w http.ResponseWriter, r *http.Request) {
	id, ok := indexID(w, r)
	if !ok {
		return
	}
	from, till, err := dateWindow(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	withBenchmark := false
	if v := r.URL.Query().Get("benchmark"); v != "" {
		if withBenchmark, err = strconv.ParseBool(v); err != nil {
			writeError(w, http.StatusBadRequest, "benchmark must be true or false")
			return
		}
	}

	pts, err := s.svc.Series(r.Context(), id, from, till, withBenchmark)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	out := make([]IndexPoint, len(pts))
	for i, p := range pts {
		out[i] = IndexPoint{Date: utils.FormatDate(p.Date), Value: p.Value, Benchmark: p.Benchmark}
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: out})
}

func (s *Server) handleIndexStats(w http.ResponseWriter, r *http.Request) {
	id, ok := indexID(w, r)
	if !ok {
		return
	}
	from, till, err := dateWindow(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	st, err := s.svc.Stats(r.Context(), id, from, till)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: st})
}

func (s *Server) handleSecurities(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	year := utils.NowMSK().Year()
	quarter := 1
	if v := q.Get("year"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "year must be a number")
			return
		}
		year = n
	}
	if v := q.Get("quarter"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "quarter must be a number")
			return
		}
		quarter = n
	}

	secs, err := s.svc.Securities(r.Context(), year, quarter)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: secs})
}

// ============================================================
// Helpers
// ============================================================

func indexID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid index id")
		return 0, false
	}
	return id, true
}

// dateWindow reads the optional from/till query parameters.
func dateWindow(r *http.Request) (from, till time.Time, err error) {
	q := r.URL.Query()
	if v := q.Get("from"); v != "" {
		if from, err = utils.ParseDate(v); err != nil {
			return from, till, errs.Invalid("from", "must be YYYY-MM-DD")
		}
	}
	if v := q.Get("till"); v != "" {
		if till, err = utils.ParseDate(v); err != nil {
			return from, till, errs.Invalid("till", "must be YYYY-MM-DD")
		}
	}
	return from, till, nil
}
