package store

import "time"

type priceRow struct {
	SecID string    `gorm:"column:secid;primaryKey;size:36"`
	Date  time.Time `gorm:"column:date;primaryKey;type:date"`
	Close float64   `gorm:"column:close;not null"`
}

func (priceRow) TableName() string { return "prices" }

type benchmarkRow struct {
	Date  time.Time `gorm:"column:date;primaryKey;type:date"`
	Close float64   `gorm:"column:close;not null"`
}

func (benchmarkRow) TableName() string { return "benchmark_prices" }

type coverageRow struct {
	SeriesID string    `gorm:"column:series_id;primaryKey;size:36"`
	DateFrom time.Time `gorm:"column:date_from;primaryKey;type:date"`
	DateTill time.Time `gorm:"column:date_till;primaryKey;type:date"`
}

func (coverageRow) TableName() string { return "series_coverage" }

type capitalizationRow struct {
	ID        int64   `gorm:"column:id;primaryKey;autoIncrement"`
	Year      int     `gorm:"column:year;uniqueIndex:ux_cap_period_secid;not null"`
	Quarter   int     `gorm:"column:quarter;uniqueIndex:ux_cap_period_secid;not null"`
	SecID     string  `gorm:"column:secid;uniqueIndex:ux_cap_period_secid;size:36;not null"`
	Name      string  `gorm:"column:name"`
	StateReg  string  `gorm:"column:state_reg;index"`
	SharesOut int64   `gorm:"column:shares_out"`
	Price     float64 `gorm:"column:price"`
	Cap       float64 `gorm:"column:cap"`
}

func (capitalizationRow) TableName() string { return "capitalizations" }

type freeFloatRow struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement"`
	Date      time.Time `gorm:"column:date;type:date;uniqueIndex:ux_ff_date_secid;not null"`
	SecID     string    `gorm:"column:secid;size:36;uniqueIndex:ux_ff_date_secid;not null"`
	FreeFloat float64   `gorm:"column:free_float"`
}

func (freeFloatRow) TableName() string { return "free_floats" }

type dividendYieldRow struct {
	ID       int64     `gorm:"column:id;primaryKey;autoIncrement"`
	Year     int       `gorm:"column:year;uniqueIndex:ux_dy_year_reg;not null"`
	StateReg string    `gorm:"column:state_reg;uniqueIndex:ux_dy_year_reg;not null"`
	DivYield float64   `gorm:"column:div_yield"`
	LoadedAt time.Time `gorm:"column:loaded_at;type:date"`
}

func (dividendYieldRow) TableName() string { return "dividend_yields" }

type indexRow struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement"`
	Name      string    `gorm:"column:name;not null"`
	BaseDate  time.Time `gorm:"column:base_date;type:date"`
	Weighting string    `gorm:"column:weighting;size:32"`
	BaseValue float64   `gorm:"column:base_value"`
}

func (indexRow) TableName() string { return "indices" }

type componentRow struct {
	ID      int64   `gorm:"column:id;primaryKey;autoIncrement"`
	IndexID int64   `gorm:"column:index_id;index;not null"`
	SecID   string  `gorm:"column:secid;size:36;not null"`
	Weight  float64 `gorm:"column:weight"`
}

func (componentRow) TableName() string { return "index_components" }
