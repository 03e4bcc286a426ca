// Package performance computes risk and performance statistics of an index
// series relative to a benchmark series.
package performance

import (
	"math"
	"sort"
	"time"

	"github.com/seenimoa/moexidx/internal/errs"
	"github.com/seenimoa/moexidx/pkg/models"
)

// TradingDays is the annualization factor.
const TradingDays = 252

// ════════════════════════════════════════════════════════════════════
// Statistics
// ════════════════════════════════════════════════════════════════════

// Compute aligns both series on the union of their dates with forward
// fill, drops days before both have started, and derives the statistics
// from simple daily returns.
func Compute(index, benchmark []models.SeriesPoint) (models.Stats, error) {
	idx, bm := align(index, benchmark)
	if len(idx) < 3 {
		return models.Stats{}, errs.Invalid("series", "need at least two aligned daily returns, have %d", max(len(idx)-1, 0))
	}

	ri, rb := dailyReturns(idx), dailyReturns(bm)

	var st models.Stats
	p := &st.Performance
	p.AnnualVol = stddev(ri) * math.Sqrt(TradingDays)
	p.AnnualReturn = mean(ri) * TradingDays
	if p.AnnualVol > 0 {
		p.Sharpe = p.AnnualReturn / p.AnnualVol
	}
	p.VaR95 = quantile(ri, 0.05)
	p.MaxDrawdown = maxDrawdown(idx)
	p.YTD = yearToDate(idx)

	v := &st.VsBenchmark
	v.Corr = correlation(ri, rb)
	if vb := variance(rb); vb > 0 {
		v.Beta = covariance(ri, rb) / vb
	}
	diff := make([]float64, len(ri))
	for i := range ri {
		diff[i] = ri[i] - rb[i]
	}
	v.TrackingError = math.Sqrt(meanSquare(diff))
	if v.TrackingError > 0 {
		v.InformationRatio = (mean(ri) - mean(rb)) / v.TrackingError
	}
	return st, nil
}

// ────────────────────────────────────────────────────────────────────
// Alignment
// ────────────────────────────────────────────────────────────────────

// align returns both series on the union of their dates, forward filled,
// starting on the first day both have a value.
func align(a, b []models.SeriesPoint) ([]models.SeriesPoint, []models.SeriesPoint) {
	av, bv := toMap(a), toMap(b)
	dates := make([]time.Time, 0, len(av)+len(bv))
	for d := range av {
		dates = append(dates, d)
	}
	for d := range bv {
		if _, ok := av[d]; !ok {
			dates = append(dates, d)
		}
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	var (
		outA, outB   []models.SeriesPoint
		lastA, lastB float64
		hasA, hasB   bool
	)
	for _, d := range dates {
		if v, ok := av[d]; ok {
			lastA, hasA = v, true
		}
		if v, ok := bv[d]; ok {
			lastB, hasB = v, true
		}
		if hasA && hasB {
			outA = append(outA, models.SeriesPoint{Date: d, Value: lastA})
			outB = append(outB, models.SeriesPoint{Date: d, Value: lastB})
		}
	}
	return outA, outB
}

func toMap(pts []models.SeriesPoint) map[time.Time]float64 {
	m := make(map[time.Time]float64, len(pts))
	for _, p := range pts {
		m[p.Date] = p.Value
	}
	return m
}

// ────────────────────────────────────────────────────────────────────
// Series measures
// ────────────────────────────────────────────────────────────────────

// dailyReturns computes simple returns; a day after a non-positive value
// has a zero return.
func dailyReturns(pts []models.SeriesPoint) []float64 {
	if len(pts) < 2 {
		return nil
	}
	returns := make([]float64, len(pts)-1)
	for i := 1; i < len(pts); i++ {
		if prev := pts[i-1].Value; prev > 0 {
			returns[i-1] = (pts[i].Value - prev) / prev
		}
	}
	return returns
}

func maxDrawdown(pts []models.SeriesPoint) float64 {
	peak := pts[0].Value
	mdd := 0.0
	for _, p := range pts {
		if p.Value > peak {
			peak = p.Value
		}
		if peak > 0 {
			if dd := p.Value/peak - 1; dd < mdd {
				mdd = dd
			}
		}
	}
	return mdd
}

// yearToDate is last/first - 1 over the calendar year of the last point.
func yearToDate(pts []models.SeriesPoint) float64 {
	last := pts[len(pts)-1]
	first := last
	for i := len(pts) - 1; i >= 0 && pts[i].Date.Year() == last.Date.Year(); i-- {
		first = pts[i]
	}
	if first.Value == 0 {
		return 0
	}
	return last.Value/first.Value - 1
}

// ════════════════════════════════════════════════════════════════════
// Helpers
// ════════════════════════════════════════════════════════════════════

func mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range data {
		sum += v
	}
	return sum / float64(len(data))
}

func meanSquare(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range data {
		sum += v * v
	}
	return sum / float64(len(data))
}

func covariance(a, b []float64) float64 {
	if len(a) < 2 || len(a) != len(b) {
		return 0
	}
	ma, mb := mean(a), mean(b)
	sum := 0.0
	for i := range a {
		sum += (a[i] - ma) * (b[i] - mb)
	}
	return sum / float64(len(a)-1) // sample covariance
}

func variance(data []float64) float64 { return covariance(data, data) }

func stddev(data []float64) float64 { return math.Sqrt(variance(data)) }

func correlation(a, b []float64) float64 {
	sa, sb := stddev(a), stddev(b)
	if sa == 0 || sb == 0 {
		return 0
	}
	return covariance(a, b) / (sa * sb)
}

// quantile uses linear interpolation between closest ranks.
func quantile(data []float64, q float64) float64 {
	if len(data) == 0 {
		return 0
	}
	s := append([]float64(nil), data...)
	sort.Float64s(s)
	pos := q * float64(len(s)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return s[lo]
	}
	return s[lo] + (s[hi]-s[lo])*(pos-float64(lo))
}
