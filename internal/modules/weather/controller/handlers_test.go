package controller

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"wxstats/internal/modules/weather/repository"
	"wxstats/internal/modules/weather/types"
)

type getRecordsCall struct {
	filter repository.RecordFilter
	limit  int
	offset int
}

type mockRepo struct {
	repository.WeatherRepository

	records    []types.StoredRecord
	recordsErr error
	stats      []types.StoredStat
	statsErr   error

	recordCalls []getRecordsCall
	statOffsets []int
}

func (m *mockRepo) GetRecords(_ context.Context, _ repository.DBTX, filter repository.RecordFilter, limit int, offset int) ([]types.StoredRecord, error) {
	m.recordCalls = append(m.recordCalls, getRecordsCall{filter: filter, limit: limit, offset: offset})
	return m.records, m.recordsErr
}

func (m *mockRepo) GetStats(_ context.Context, _ repository.DBTX, limit int, offset int) ([]types.StoredStat, error) {
	m.statOffsets = append(m.statOffsets, offset)
	return m.stats, m.statsErr
}

func newTestMux(repo *mockRepo) *http.ServeMux {
	mux := http.NewServeMux()
	NewWeatherController(nil, repo).RegisterRoutes(mux)
	return mux
}

func serve(mux *http.ServeMux, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func tenths(n int64) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.New(n, -1))
}

func Test_handleRecords(t *testing.T) {
	t.Run("defaults to first page without filters", func(t *testing.T) {
		repo := &mockRepo{}
		rec := serve(newTestMux(repo), "/api/weather")

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d; want %d", rec.Code, http.StatusOK)
		}
		if len(repo.recordCalls) != 1 {
			t.Fatalf("GetRecords calls = %d; want 1", len(repo.recordCalls))
		}
		got := repo.recordCalls[0]
		if got.filter != (repository.RecordFilter{}) || got.limit != pageSize || got.offset != 0 {
			t.Errorf("call = %+v; want empty filter, limit %d, offset 0", got, pageSize)
		}
		if body := strings.TrimSpace(rec.Body.String()); body != `{"result":[]}` {
			t.Errorf("body = %q; want empty result", body)
		}
	})

	t.Run("path parameters select page and filters", func(t *testing.T) {
		repo := &mockRepo{}
		rec := serve(newTestMux(repo), "/api/weather/2/1985-01-01/USC00110072")

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d; want %d", rec.Code, http.StatusOK)
		}
		got := repo.recordCalls[0]
		want := getRecordsCall{
			filter: repository.RecordFilter{Date: "1985-01-01", Station: "USC00110072"},
			limit:  pageSize,
			offset: 20,
		}
		if got != want {
			t.Errorf("call = %+v; want %+v", got, want)
		}
	})

	t.Run("None disables a filter", func(t *testing.T) {
		repo := &mockRepo{}
		serve(newTestMux(repo), "/api/weather/0/None/USC00110072")
		serve(newTestMux(repo), "/api/weather/0/1985-01-01/None")

		if got := repo.recordCalls[0].filter; got != (repository.RecordFilter{Station: "USC00110072"}) {
			t.Errorf("first filter = %+v", got)
		}
		if got := repo.recordCalls[1].filter; got != (repository.RecordFilter{Date: "1985-01-01"}) {
			t.Errorf("second filter = %+v", got)
		}
	})

	t.Run("query string form", func(t *testing.T) {
		repo := &mockRepo{}
		rec := serve(newTestMux(repo), "/api/weather?page=1&station=S2")

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d; want %d", rec.Code, http.StatusOK)
		}
		got := repo.recordCalls[0]
		if got.filter != (repository.RecordFilter{Station: "S2"}) || got.offset != 10 {
			t.Errorf("call = %+v", got)
		}
	})

	t.Run("renders records with nulls", func(t *testing.T) {
		repo := &mockRepo{records: []types.StoredRecord{{
			ID: 7,
			Record: types.Record{
				Station:       "S1",
				Date:          time.Date(1985, time.January, 2, 0, 0, 0, 0, time.UTC),
				MaxTemp:       tenths(-22),
				MinTemp:       tenths(-128),
				Precipitation: decimal.NullDecimal{},
			},
		}}}
		rec := serve(newTestMux(repo), "/api/weather")

		if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
			t.Errorf("Content-Type = %q", ct)
		}
		var body struct {
			Result []map[string]any `json:"result"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if len(body.Result) != 1 {
			t.Fatalf("result len = %d; want 1", len(body.Result))
		}
		got := body.Result[0]
		want := map[string]any{
			"id":                float64(7),
			"station":           "S1",
			"date":              "1985-01-02",
			"max_temp":          -2.2,
			"min_temp":          -12.8,
			"precipitation_amt": nil,
		}
		for k, v := range want {
			if got[k] != v {
				t.Errorf("%s = %v; want %v", k, got[k], v)
			}
		}
	})

	t.Run("rejects invalid parameters", func(t *testing.T) {
		cases := []struct {
			target string
			msg    string
		}{
			{"/api/weather?page=abc", "invalid 'page'"},
			{"/api/weather?page=-1", "'page' must be >= 0"},
			{"/api/weather/0/1985-13-01/None", "invalid 'date'"},
			{"/api/weather?date=yesterday", "invalid 'date'"},
			{"/api/weather?station=" + strings.Repeat("x", 65), "'station' must be at most 64"},
		}
		for _, tc := range cases {
			repo := &mockRepo{}
			rec := serve(newTestMux(repo), tc.target)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("%s: status = %d; want %d", tc.target, rec.Code, http.StatusBadRequest)
			}
			if !strings.Contains(rec.Body.String(), tc.msg) {
				t.Errorf("%s: body = %q; want %q", tc.target, rec.Body.String(), tc.msg)
			}
			if len(repo.recordCalls) != 0 {
				t.Errorf("%s: repository was called", tc.target)
			}
		}
	})

	t.Run("returns 500 on repository error", func(t *testing.T) {
		repo := &mockRepo{recordsErr: errors.New("disk I/O error")}
		rec := serve(newTestMux(repo), "/api/weather")

		if rec.Code != http.StatusInternalServerError {
			t.Errorf("status = %d; want %d", rec.Code, http.StatusInternalServerError)
		}
		if strings.Contains(rec.Body.String(), "disk I/O") {
			t.Errorf("body leaks storage error: %q", rec.Body.String())
		}
	})
}

func Test_handleStats(t *testing.T) {
	t.Run("returns stats page", func(t *testing.T) {
		repo := &mockRepo{stats: []types.StoredStat{{
			ID: 1,
			Stat: types.Stat{
				Station:            "S2",
				Year:               2023,
				AvgMaxTemp:         decimal.NewNullDecimal(decimal.RequireFromString("15")),
				PrecipitationTotal: decimal.NewNullDecimal(decimal.RequireFromString("3")),
			},
		}}}
		rec := serve(newTestMux(repo), "/api/stats/3")

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d; want %d", rec.Code, http.StatusOK)
		}
		if len(repo.statOffsets) != 1 || repo.statOffsets[0] != 30 {
			t.Errorf("offsets = %v; want [30]", repo.statOffsets)
		}
		want := `{"result":[{"id":1,"station":"S2","year":2023,"avg_max_temp":15,"avg_min_temp":null,"precipitation_amt":3}]}`
		if got := strings.TrimSpace(rec.Body.String()); got != want {
			t.Errorf("body = %s; want %s", got, want)
		}
	})

	t.Run("defaults to page 0", func(t *testing.T) {
		repo := &mockRepo{}
		serve(newTestMux(repo), "/api/stats")
		if len(repo.statOffsets) != 1 || repo.statOffsets[0] != 0 {
			t.Errorf("offsets = %v; want [0]", repo.statOffsets)
		}
	})

	t.Run("rejects negative page", func(t *testing.T) {
		rec := serve(newTestMux(&mockRepo{}), "/api/stats/-2")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d; want %d", rec.Code, http.StatusBadRequest)
		}
	})

	t.Run("returns 500 on repository error", func(t *testing.T) {
		rec := serve(newTestMux(&mockRepo{statsErr: errors.New("locked")}), "/api/stats")
		if rec.Code != http.StatusInternalServerError {
			t.Errorf("status = %d; want %d", rec.Code, http.StatusInternalServerError)
		}
	})
}
