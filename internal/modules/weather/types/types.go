package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the storage and API representation of an observation date.
const DateLayout = "2006-01-02"

// Record is one station's observation for one calendar date.
// Temperatures are in degrees Celsius, precipitation in millimeters.
type Record struct {
	Station       string              `json:"station"`
	Date          time.Time           `json:"date"`
	MaxTemp       decimal.NullDecimal `json:"max_temp"`
	MinTemp       decimal.NullDecimal `json:"min_temp"`
	Precipitation decimal.NullDecimal `json:"precipitation_amt"`
}

// Stat is one station's aggregate for one calendar year.
type Stat struct {
	Station            string              `json:"station"`
	Year               int                 `json:"year"`
	AvgMaxTemp         decimal.NullDecimal `json:"avg_max_temp"`
	AvgMinTemp         decimal.NullDecimal `json:"avg_min_temp"`
	PrecipitationTotal decimal.NullDecimal `json:"precipitation_amt"`
}

// StoredRecord is a Record as read back from the store, with its surrogate key.
type StoredRecord struct {
	ID int64 `json:"id"`
	Record
}

// StoredStat is a Stat as read back from the store, with its surrogate key.
type StoredStat struct {
	ID int64 `json:"id"`
	Stat
}
