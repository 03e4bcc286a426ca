// Package index builds custom indices: weights from capitalization data,
// point values and historical series from cached prices, and the service
// that persists and serves them.
package index

import (
	"math"
	"slices"

	"github.com/seenimoa/moexidx/internal/errs"
	"github.com/seenimoa/moexidx/pkg/models"
)

// Member is one selected security with the attributes the weighting
// schemes draw on. Optional attributes are nil when unknown.
type Member struct {
	SecID        string
	MarketCap    float64
	FreeFloat    *float64 // percent
	DivYield     *float64 // percent
	CustomWeight *float64
}

// BuildWeights turns a selection into weights that sum to one. Members
// lacking the attribute a scheme needs are left out.
func BuildWeights(members []Member, scheme models.WeightingScheme) (models.Weights, error) {
	if _, err := models.ParseWeightingScheme(string(scheme)); err != nil {
		return nil, errs.Invalid("weighting", "%v", err)
	}
	if len(members) == 0 {
		return nil, errs.Invalid("securities", "selection is empty")
	}

	raw := make(map[string]float64, len(members))
	for _, m := range members {
		if _, dup := raw[m.SecID]; dup {
			return nil, errs.Invalid("securities", "%s selected twice", m.SecID)
		}
		v, ok := rawWeight(m, scheme)
		if !ok {
			continue
		}
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, errs.Invalid("weights", "%s has raw weight %v under %s", m.SecID, v, scheme)
		}
		raw[m.SecID] = v
	}
	if len(raw) == 0 {
		if scheme == models.WeightCustom {
			return nil, errs.Invalid("custom_weight", "custom weighting needs at least one custom weight")
		}
		return nil, errs.Invalid("securities", "no selected security has the data %s needs", scheme)
	}

	// Sum in a fixed order so equal inputs give bit-identical weights.
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	total := 0.0
	for _, k := range keys {
		total += raw[k]
	}
	if total <= 0 {
		return nil, errs.Invalid("weights", "raw weights under %s sum to zero", scheme)
	}

	w := make(models.Weights, len(raw))
	for _, k := range keys {
		w[k] = raw[k] / total
	}
	return w, nil
}

func rawWeight(m Member, scheme models.WeightingScheme) (float64, bool) {
	switch scheme {
	case models.WeightEqual:
		return 1, true
	case models.WeightMarketCap:
		return m.MarketCap, true
	case models.WeightCapFreeFloat:
		if m.FreeFloat == nil {
			return 0, false
		}
		return m.MarketCap * *m.FreeFloat / 100, true
	case models.WeightCapDivYield:
		if m.DivYield == nil {
			return 0, false
		}
		return m.MarketCap * *m.DivYield, true
	case models.WeightCustom:
		if m.CustomWeight == nil {
			return 0, false
		}
		return *m.CustomWeight, true
	}
	return 0, false
}
