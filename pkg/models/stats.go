package models

// Performance holds the standalone risk/return statistics of a series.
type Performance struct {
	YTD          float64 `json:"ytd"`
	AnnualReturn float64 `json:"annual_return"`
	AnnualVol    float64 `json:"annual_vol"`
	Sharpe       float64 `json:"sharpe"`
	MaxDrawdown  float64 `json:"mdd"`
	VaR95        float64 `json:"var_95"`
}

// Relative holds statistics of a series against its benchmark.
type Relative struct {
	Corr             float64 `json:"corr"`
	Beta             float64 `json:"beta"`
	TrackingError    float64 `json:"te"`
	InformationRatio float64 `json:"ir"`
}

// Stats is the full statistics report of an index.
type Stats struct {
	Performance Performance `json:"performance"`
	VsBenchmark Relative    `json:"vs_benchmark"`
}
