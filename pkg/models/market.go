package models

import "time"

// CapitalizationRecord is one row of the quarterly MOEX capitalization
// table. It is a frozen snapshot of its quarter.
type CapitalizationRecord struct {
	Year              int     `json:"year"`
	Quarter           int     `json:"quarter"`
	SecID             string  `json:"secid"`
	Name              string  `json:"name"`
	RegistrationID    string  `json:"registration_id"` // state registration number
	SharesOutstanding int64   `json:"shares_outstanding"`
	Price             float64 `json:"price"`
	MarketCap         float64 `json:"market_cap"`
}

// FreeFloatRecord is the free-float percentage of a security as published
// on a given day.
type FreeFloatRecord struct {
	AsOf         time.Time `json:"as_of"`
	SecID        string    `json:"secid"`
	FreeFloatPct float64   `json:"free_float_pct"`
}

// DividendYieldRecord is the dividend yield of an issuer for a year. It is
// keyed by registration id so it survives ticker renames.
type DividendYieldRecord struct {
	Year           int       `json:"year"`
	RegistrationID string    `json:"registration_id"`
	YieldPct       float64   `json:"yield_pct"`
	LoadedAt       time.Time `json:"loaded_at"`
}

// Security is a (secid, name) pair listed in a capitalization table.
type Security struct {
	SecID string `json:"secid"`
	Name  string `json:"name"`
}
