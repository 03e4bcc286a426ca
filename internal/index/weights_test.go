package index

import (
	"math"
	"testing"

	"github.com/seenimoa/moexidx/internal/errs"
	"github.com/seenimoa/moexidx/pkg/models"
)

func f(v float64) *float64 { return &v }

func sum(w models.Weights) float64 {
	total := 0.0
	for _, v := range w {
		total += v
	}
	return total
}

func TestBuildWeightsScenarios(t *testing.T) {
	tests := []struct {
		name    string
		members []Member
		scheme  models.WeightingScheme
		want    models.Weights
	}{
		{
			name:    "equal",
			members: []Member{{SecID: "A"}, {SecID: "B"}, {SecID: "C"}, {SecID: "D"}},
			scheme:  models.WeightEqual,
			want:    models.Weights{"A": 0.25, "B": 0.25, "C": 0.25, "D": 0.25},
		},
		{
			name:    "market cap",
			members: []Member{{SecID: "A", MarketCap: 100}, {SecID: "B", MarketCap: 300}},
			scheme:  models.WeightMarketCap,
			want:    models.Weights{"A": 0.25, "B": 0.75},
		},
		{
			name: "cap free float",
			members: []Member{
				{SecID: "A", MarketCap: 100, FreeFloat: f(50)},
				{SecID: "B", MarketCap: 300, FreeFloat: f(50)},
				{SecID: "C", MarketCap: 999},
			},
			scheme: models.WeightCapFreeFloat,
			want:   models.Weights{"A": 0.25, "B": 0.75},
		},
		{
			name: "cap dividend yield drops members without yield",
			members: []Member{
				{SecID: "A", MarketCap: 100, DivYield: f(10)},
				{SecID: "B", MarketCap: 100, DivYield: f(30)},
				{SecID: "C", MarketCap: 500},
			},
			scheme: models.WeightCapDivYield,
			want:   models.Weights{"A": 0.25, "B": 0.75},
		},
		{
			name:    "custom renormalized",
			members: []Member{{SecID: "A", CustomWeight: f(2)}, {SecID: "B", CustomWeight: f(2)}},
			scheme:  models.WeightCustom,
			want:    models.Weights{"A": 0.5, "B": 0.5},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BuildWeights(tt.members, tt.scheme)
			if err != nil {
				t.Fatalf("BuildWeights: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for k, v := range tt.want {
				if math.Abs(got[k]-v) > 1e-12 {
					t.Errorf("weight[%s] = %v, want %v", k, got[k], v)
				}
			}
		})
	}
}

func TestBuildWeightsNormalized(t *testing.T) {
	members := []Member{
		{SecID: "SBER", MarketCap: 6.3e12, FreeFloat: f(48), DivYield: f(11.2), CustomWeight: f(3)},
		{SecID: "GAZP", MarketCap: 3.8e12, FreeFloat: f(46), DivYield: f(0.1), CustomWeight: f(1)},
		{SecID: "LKOH", MarketCap: 5.1e12, FreeFloat: f(54), DivYield: f(14.7), CustomWeight: f(7)},
		{SecID: "NLMK", MarketCap: 0.9e12, FreeFloat: f(21), DivYield: f(9.8), CustomWeight: f(0.3)},
	}
	for _, scheme := range models.WeightingSchemes {
		t.Run(string(scheme), func(t *testing.T) {
			w, err := BuildWeights(members, scheme)
			if err != nil {
				t.Fatalf("BuildWeights: %v", err)
			}
			if s := sum(w); math.Abs(s-1) > 1e-9 {
				t.Errorf("sum = %.15f", s)
			}
			for k, v := range w {
				if v < 0 {
					t.Errorf("weight[%s] = %v is negative", k, v)
				}
			}
		})
	}
}

func TestBuildWeightsValidation(t *testing.T) {
	tests := []struct {
		name    string
		members []Member
		scheme  models.WeightingScheme
	}{
		{"unknown scheme", []Member{{SecID: "A"}}, "fundamental"},
		{"empty selection", nil, models.WeightEqual},
		{"custom without weights", []Member{{SecID: "A"}, {SecID: "B"}}, models.WeightCustom},
		{"no free float at all", []Member{{SecID: "A", MarketCap: 1}}, models.WeightCapFreeFloat},
		{"zero total", []Member{{SecID: "A"}, {SecID: "B"}}, models.WeightMarketCap},
		{"negative custom", []Member{{SecID: "A", CustomWeight: f(-1)}, {SecID: "B", CustomWeight: f(2)}}, models.WeightCustom},
		{"duplicate secid", []Member{{SecID: "A"}, {SecID: "A"}}, models.WeightEqual},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildWeights(tt.members, tt.scheme)
			if !errs.IsValidation(err) {
				t.Fatalf("err = %v, want ValidationError", err)
			}
		})
	}
}
