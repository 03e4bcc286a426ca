// Package models defines the typed records shared by the cache, the index
// engines, the store and the API.
package models

import (
	"sort"
	"time"
)

// SeriesPoint is one daily observation of a scalar series (a close price or
// an index level). Date is always a UTC midnight.
type SeriesPoint struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// DateRange is an inclusive range of trading days.
type DateRange struct {
	From time.Time `json:"from"`
	Till time.Time `json:"till"`
}

// Empty reports whether the range holds no day at all.
func (r DateRange) Empty() bool { return r.From.After(r.Till) }

// Contains reports whether d falls inside the range, boundaries included.
func (r DateRange) Contains(d time.Time) bool {
	return !d.Before(r.From) && !d.After(r.Till)
}

// String renders the range as "2006-01-02..2006-01-02".
func (r DateRange) String() string {
	return r.From.Format(time.DateOnly) + ".." + r.Till.Format(time.DateOnly)
}

// SortPoints sorts points by date ascending in place.
func SortPoints(pts []SeriesPoint) {
	sort.Slice(pts, func(i, j int) bool { return pts[i].Date.Before(pts[j].Date) })
}

// MergePoints returns the union of the given slices, deduplicated by date
// and sorted ascending. On duplicate dates the first occurrence wins.
func MergePoints(sets ...[]SeriesPoint) []SeriesPoint {
	seen := make(map[time.Time]struct{})
	var out []SeriesPoint
	for _, set := range sets {
		for _, p := range set {
			if _, ok := seen[p.Date]; ok {
				continue
			}
			seen[p.Date] = struct{}{}
			out = append(out, p)
		}
	}
	SortPoints(out)
	return out
}

// ClipPoints returns the points of a sorted slice that fall inside r.
func ClipPoints(pts []SeriesPoint, r DateRange) []SeriesPoint {
	lo := sort.Search(len(pts), func(i int) bool { return !pts[i].Date.Before(r.From) })
	hi := sort.Search(len(pts), func(i int) bool { return pts[i].Date.After(r.Till) })
	if lo >= hi {
		return nil
	}
	return pts[lo:hi]
}
