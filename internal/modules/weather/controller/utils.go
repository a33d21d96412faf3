package controller

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"wxstats/internal/modules/weather/types"
)

const (
	pageSize = 10
	// noFilter is the path placeholder for an absent date or station filter.
	noFilter = "None"
)

var validate = validator.New()

type recordQuery struct {
	Page    int    `validate:"gte=0"`
	Date    string `validate:"omitempty,datetime=2006-01-02"`
	Station string `validate:"omitempty,max=64"`
}

type statsQuery struct {
	Page int `validate:"gte=0"`
}

type recordResponse struct {
	ID            int64    `json:"id"`
	Station       string   `json:"station"`
	Date          string   `json:"date"`
	MaxTemp       *float64 `json:"max_temp"`
	MinTemp       *float64 `json:"min_temp"`
	Precipitation *float64 `json:"precipitation_amt"`
}

type statResponse struct {
	ID                 int64    `json:"id"`
	Station            string   `json:"station"`
	Year               int      `json:"year"`
	AvgMaxTemp         *float64 `json:"avg_max_temp"`
	AvgMinTemp         *float64 `json:"avg_min_temp"`
	PrecipitationTotal *float64 `json:"precipitation_amt"`
}

// param reads a path value first and falls back to the query string.
func param(r *http.Request, name string) string {
	if v := r.PathValue(name); v != "" {
		return strings.TrimSpace(v)
	}
	return strings.TrimSpace(r.URL.Query().Get(name))
}

// filterParam returns "" for an absent filter or the None placeholder.
func filterParam(r *http.Request, name string) string {
	v := param(r, name)
	if v == noFilter {
		return ""
	}
	return v
}

// parsePage returns the 0-based page number, 0 when absent.
func parsePage(r *http.Request) (int, error) {
	s := param(r, "page")
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, errors.New("invalid 'page' (expected integer)")
	}
	return n, nil
}

func parseRecordQuery(r *http.Request) (recordQuery, error) {
	page, err := parsePage(r)
	if err != nil {
		return recordQuery{}, err
	}
	q := recordQuery{
		Page:    page,
		Date:    filterParam(r, "date"),
		Station: filterParam(r, "station"),
	}
	if err := validate.Struct(q); err != nil {
		return recordQuery{}, validationMessage(err)
	}
	return q, nil
}

func parseStatsQuery(r *http.Request) (statsQuery, error) {
	page, err := parsePage(r)
	if err != nil {
		return statsQuery{}, err
	}
	q := statsQuery{Page: page}
	if err := validate.Struct(q); err != nil {
		return statsQuery{}, validationMessage(err)
	}
	return q, nil
}

// validationMessage turns validator output into a client-facing message.
func validationMessage(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "gte":
		return fmt.Errorf("'%s' must be >= %s", field, fe.Param())
	case "datetime":
		return fmt.Errorf("invalid '%s' (expected YYYY-MM-DD)", field)
	case "max":
		return fmt.Errorf("'%s' must be at most %s characters", field, fe.Param())
	default:
		return fmt.Errorf("invalid '%s'", field)
	}
}

func toRecordResponses(records []types.StoredRecord) []recordResponse {
	out := make([]recordResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, recordResponse{
			ID:            rec.ID,
			Station:       rec.Station,
			Date:          rec.Date.Format(types.DateLayout),
			MaxTemp:       nullableNumber(rec.MaxTemp),
			MinTemp:       nullableNumber(rec.MinTemp),
			Precipitation: nullableNumber(rec.Precipitation),
		})
	}
	return out
}

func toStatResponses(stats []types.StoredStat) []statResponse {
	out := make([]statResponse, 0, len(stats))
	for _, s := range stats {
		out = append(out, statResponse{
			ID:                 s.ID,
			Station:            s.Station,
			Year:               s.Year,
			AvgMaxTemp:         nullableNumber(s.AvgMaxTemp),
			AvgMinTemp:         nullableNumber(s.AvgMinTemp),
			PrecipitationTotal: nullableNumber(s.PrecipitationTotal),
		})
	}
	return out
}

func nullableNumber(d decimal.NullDecimal) *float64 {
	if !d.Valid {
		return nil
	}
	f := d.Decimal.InexactFloat64()
	return &f
}
