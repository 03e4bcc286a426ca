package cache

import (
	"sort"
	"time"

	"github.com/seenimoa/moexidx/pkg/models"
	"github.com/seenimoa/moexidx/pkg/utils"
)

// GapModel selects how missing ranges are detected.
type GapModel string

const (
	// GapBoundary reasons only from the first and last stored dates. An
	// internal hole left by an interrupted backfill is never detected.
	GapBoundary GapModel = "boundary"
	// GapIntervals tracks every fetched range and fetches the complement.
	GapIntervals GapModel = "intervals"
)

// boundaryGaps returns at most a leading and a trailing gap around the
// stored points.
func boundaryGaps(have []models.SeriesPoint, want models.DateRange) []models.DateRange {
	haveMin, haveMax := utils.AddDays(want.Till, 1), utils.AddDays(want.From, -1)
	if len(have) > 0 {
		haveMin, haveMax = have[0].Date, have[0].Date
		for _, p := range have[1:] {
			if p.Date.Before(haveMin) {
				haveMin = p.Date
			}
			if p.Date.After(haveMax) {
				haveMax = p.Date
			}
		}
	}

	var gaps []models.DateRange
	if want.From.Before(haveMin) {
		gaps = append(gaps, models.DateRange{From: want.From, Till: utils.AddDays(haveMin, -1)})
	}
	if want.Till.After(haveMax) {
		trailing := models.DateRange{From: utils.AddDays(haveMax, 1), Till: want.Till}
		if len(gaps) == 0 || !sameRange(gaps[0], trailing) {
			gaps = append(gaps, trailing)
		}
	}

	out := gaps[:0]
	for _, g := range gaps {
		if !g.Empty() {
			out = append(out, g)
		}
	}
	return out
}

// intervalGaps returns the parts of want not covered by any range.
func intervalGaps(covered []models.DateRange, want models.DateRange) []models.DateRange {
	merged := mergeRanges(covered)
	var gaps []models.DateRange
	cursor := want.From
	for _, r := range merged {
		if r.Till.Before(cursor) {
			continue
		}
		if r.From.After(want.Till) {
			break
		}
		if r.From.After(cursor) {
			gaps = append(gaps, models.DateRange{From: cursor, Till: utils.AddDays(r.From, -1)})
		}
		cursor = utils.AddDays(r.Till, 1)
		if cursor.After(want.Till) {
			return gaps
		}
	}
	if !cursor.After(want.Till) {
		gaps = append(gaps, models.DateRange{From: cursor, Till: want.Till})
	}
	return gaps
}

// mergeRanges sorts ranges and joins overlapping or adjacent ones.
func mergeRanges(in []models.DateRange) []models.DateRange {
	rs := make([]models.DateRange, 0, len(in))
	for _, r := range in {
		if !r.Empty() {
			rs = append(rs, r)
		}
	}
	sort.Slice(rs, func(i, j int) bool { return rs[i].From.Before(rs[j].From) })

	var out []models.DateRange
	for _, r := range rs {
		if n := len(out); n > 0 && !r.From.After(utils.AddDays(out[n-1].Till, 1)) {
			if r.Till.After(out[n-1].Till) {
				out[n-1].Till = r.Till
			}
			continue
		}
		out = append(out, r)
	}
	return out
}

func sameRange(a, b models.DateRange) bool {
	return a.From.Equal(b.From) && a.Till.Equal(b.Till)
}

// clampCoverage trims a fetched range so it never includes today or later:
// today's close may still change.
func clampCoverage(r models.DateRange, today time.Time) models.DateRange {
	if last := utils.AddDays(today, -1); r.Till.After(last) {
		r.Till = last
	}
	return r
}
