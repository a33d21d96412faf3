package service

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"wxstats/internal/modules/weather/repository"
	"wxstats/internal/modules/weather/types"
)

type Aggregator struct {
	db   repository.DBTX
	repo repository.WeatherRepository
}

func NewAggregator(db repository.DBTX, repo repository.WeatherRepository) *Aggregator {
	return &Aggregator{db: db, repo: repo}
}

// Aggregate computes the stat of station for the calendar year from the
// stored records. It never writes.
func (a *Aggregator) Aggregate(ctx context.Context, year int, station string) (types.Stat, error) {
	records, err := a.repo.GetStationYearRecords(ctx, a.db, station, year)
	if err != nil {
		return types.Stat{}, &StorageError{Op: fmt.Sprintf("load records %s/%d", station, year), Err: err}
	}
	return ComputeStat(station, year, records), nil
}

// ComputeStat averages the temperatures and sums the precipitation of
// records. Null measurements are left out of both numerator and denominator;
// a measurement with no values at all yields null.
func ComputeStat(station string, year int, records []types.Record) types.Stat {
	var maxT, minT, precip accumulator
	for _, r := range records {
		maxT.add(r.MaxTemp)
		minT.add(r.MinTemp)
		precip.add(r.Precipitation)
	}
	return types.Stat{
		Station:            station,
		Year:               year,
		AvgMaxTemp:         maxT.mean(),
		AvgMinTemp:         minT.mean(),
		PrecipitationTotal: precip.total(),
	}
}

type accumulator struct {
	sum   decimal.Decimal
	count int64
}

func (a *accumulator) add(v decimal.NullDecimal) {
	if !v.Valid {
		return
	}
	a.sum = a.sum.Add(v.Decimal)
	a.count++
}

func (a *accumulator) mean() decimal.NullDecimal {
	if a.count == 0 {
		return decimal.NullDecimal{}
	}
	// Div keeps decimal.DivisionPrecision digits; no fixed-place rounding.
	return decimal.NewNullDecimal(a.sum.Div(decimal.NewFromInt(a.count)))
}

func (a *accumulator) total() decimal.NullDecimal {
	if a.count == 0 {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(a.sum)
}

// Years lists the distinct calendar years present in the stored records.
func (a *Aggregator) Years(ctx context.Context) ([]int, error) {
	years, err := a.repo.GetYears(ctx, a.db)
	if err != nil {
		return nil, &StorageError{Op: "list years", Err: err}
	}
	return years, nil
}

// Stations lists the distinct stations present in the stored records.
func (a *Aggregator) Stations(ctx context.Context) ([]string, error) {
	stations, err := a.repo.GetStations(ctx, a.db)
	if err != nil {
		return nil, &StorageError{Op: "list stations", Err: err}
	}
	return stations, nil
}
