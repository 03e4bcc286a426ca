package models

import (
	"fmt"
	"time"
)

// WeightingScheme selects how raw security attributes become index weights.
type WeightingScheme string

const (
	WeightEqual        WeightingScheme = "equal"
	WeightMarketCap    WeightingScheme = "market_cap"
	WeightCapFreeFloat WeightingScheme = "cap_freefloat"
	WeightCapDivYield  WeightingScheme = "cap_divyield"
	WeightCustom       WeightingScheme = "custom"
)

// WeightingSchemes lists every supported scheme.
var WeightingSchemes = []WeightingScheme{
	WeightEqual, WeightMarketCap, WeightCapFreeFloat, WeightCapDivYield, WeightCustom,
}

// ParseWeightingScheme validates a scheme name.
func ParseWeightingScheme(s string) (WeightingScheme, error) {
	for _, w := range WeightingSchemes {
		if string(w) == s {
			return w, nil
		}
	}
	return "", fmt.Errorf("unknown weighting scheme %q", s)
}

// Index is a custom index. Its composition is frozen at creation; a
// rebalance is a new Index.
type Index struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	BaseDate  time.Time       `json:"base_date"`
	Weighting WeightingScheme `json:"weighting"`
	BaseValue float64         `json:"base_value"`
}

// IndexComponent is one weighted member of an Index.
type IndexComponent struct {
	ID      int64   `json:"id"`
	IndexID int64   `json:"index_id"`
	SecID   string  `json:"secid"`
	Weight  float64 `json:"weight"`
}

// IndexPoint is one day of an index series. Benchmark carries the
// benchmark close of the same day when requested and available.
type IndexPoint struct {
	Date      time.Time `json:"date"`
	Value     float64   `json:"value"`
	Benchmark *float64  `json:"benchmark,omitempty"`
}

// IndexValue is the value of an index on a day.
type IndexValue struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// Weights maps secid to a normalized weight.
type Weights map[string]float64

// ComponentWeights converts stored components to a weight map.
func ComponentWeights(comps []IndexComponent) Weights {
	w := make(Weights, len(comps))
	for _, c := range comps {
		w[c.SecID] = c.Weight
	}
	return w
}
