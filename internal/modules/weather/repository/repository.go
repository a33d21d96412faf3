package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"wxstats/internal/modules/weather/types"
)

//go:embed sql/insert-record.sql
var insertRecordSQL string

//go:embed sql/insert-record-skip-existing.sql
var insertRecordSkipExistingSQL string

//go:embed sql/get-station-year-records.sql
var getStationYearRecordsSQL string

//go:embed sql/get-years.sql
var getYearsSQL string

//go:embed sql/get-stations.sql
var getStationsSQL string

//go:embed sql/get-records.sql
var getRecordsSQL string

//go:embed sql/count-records.sql
var countRecordsSQL string

//go:embed sql/find-stat.sql
var findStatSQL string

//go:embed sql/insert-stat.sql
var insertStatSQL string

//go:embed sql/update-stat.sql
var updateStatSQL string

//go:embed sql/get-stats.sql
var getStatsSQL string

var (
	// ErrConflict reports a write rejected by a uniqueness constraint.
	ErrConflict = errors.New("unique constraint conflict")
	// ErrNotFound reports a lookup that matched no row.
	ErrNotFound = errors.New("not found")
)

// DBTX is satisfied by both *sql.DB and *sql.Tx, so the caller decides the
// transaction scope of every call.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// RecordFilter narrows a record listing. Empty fields match everything.
type RecordFilter struct {
	Date    string
	Station string
}

type WeatherRepository interface {
	InsertRecords(ctx context.Context, q DBTX, records []types.Record) (int, error)
	InsertNewRecords(ctx context.Context, q DBTX, records []types.Record) (int, error)
	GetStationYearRecords(ctx context.Context, q DBTX, station string, year int) ([]types.Record, error)
	GetYears(ctx context.Context, q DBTX) ([]int, error)
	GetStations(ctx context.Context, q DBTX) ([]string, error)
	GetRecords(ctx context.Context, q DBTX, filter RecordFilter, limit int, offset int) ([]types.StoredRecord, error)
	CountRecords(ctx context.Context, q DBTX) (int, error)

	FindStat(ctx context.Context, q DBTX, station string, year int) (types.StoredStat, error)
	InsertStat(ctx context.Context, q DBTX, stat types.Stat) (int64, error)
	UpdateStat(ctx context.Context, q DBTX, id int64, stat types.Stat) error
	GetStats(ctx context.Context, q DBTX, limit int, offset int) ([]types.StoredStat, error)
}

type repositoryImpl struct {
	logger *slog.Logger
}

// NewRepository returns the SQLite repository. Cleanup failures that cannot
// be returned to the caller are logged to logger, or to the default logger
// when it is nil.
func NewRepository(logger *slog.Logger) WeatherRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &repositoryImpl{logger: logger}
}

// InsertRecords writes every record with one prepared statement. A
// uniqueness violation is reported as ErrConflict; the caller owns the
// transaction and must roll it back.
func (r *repositoryImpl) InsertRecords(ctx context.Context, q DBTX, records []types.Record) (int, error) {
	return r.insertRecords(ctx, q, insertRecordSQL, records)
}

// InsertNewRecords writes the records whose (station, date) is not yet
// stored and returns how many were inserted.
func (r *repositoryImpl) InsertNewRecords(ctx context.Context, q DBTX, records []types.Record) (int, error) {
	return r.insertRecords(ctx, q, insertRecordSkipExistingSQL, records)
}

func (r *repositoryImpl) insertRecords(ctx context.Context, q DBTX, query string, records []types.Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	stmt, err := q.PrepareContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("prepare insert record: %w", err)
	}
	defer func() {
		if err := stmt.Close(); err != nil {
			r.logger.Error("close insert record statement", "error", err)
		}
	}()

	inserted := 0
	for _, rec := range records {
		res, err := stmt.ExecContext(ctx,
			rec.Station,
			rec.Date.Format(types.DateLayout),
			nullableFloat(rec.MaxTemp),
			nullableFloat(rec.MinTemp),
			nullableFloat(rec.Precipitation),
		)
		if err != nil {
			return inserted, classify(err, fmt.Sprintf("insert record %s %s", rec.Station, rec.Date.Format(types.DateLayout)))
		}
		n, err := res.RowsAffected()
		if err != nil {
			return inserted, fmt.Errorf("rows affected: %w", err)
		}
		inserted += int(n)
	}
	return inserted, nil
}

// GetStationYearRecords returns the station's records dated within the
// calendar year, oldest first.
func (r *repositoryImpl) GetStationYearRecords(ctx context.Context, q DBTX, station string, year int) ([]types.Record, error) {
	from := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC).Format(types.DateLayout)
	to := time.Date(year+1, time.January, 1, 0, 0, 0, 0, time.UTC).Format(types.DateLayout)

	rows, err := q.QueryContext(ctx, getStationYearRecordsSQL, station, from, to)
	if err != nil {
		return nil, err
	}
	defer r.closeRows(rows, "station year records")

	var out []types.Record
	for rows.Next() {
		var rec types.Record
		var date string
		if err := rows.Scan(&rec.Station, &date, &rec.MaxTemp, &rec.MinTemp, &rec.Precipitation); err != nil {
			return nil, err
		}
		if rec.Date, err = parseDate(date); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *repositoryImpl) GetYears(ctx context.Context, q DBTX) ([]int, error) {
	rows, err := q.QueryContext(ctx, getYearsSQL)
	if err != nil {
		return nil, err
	}
	defer r.closeRows(rows, "years")

	var out []int
	for rows.Next() {
		var year int
		if err := rows.Scan(&year); err != nil {
			return nil, err
		}
		out = append(out, year)
	}
	return out, rows.Err()
}

func (r *repositoryImpl) GetStations(ctx context.Context, q DBTX) ([]string, error) {
	rows, err := q.QueryContext(ctx, getStationsSQL)
	if err != nil {
		return nil, err
	}
	defer r.closeRows(rows, "stations")

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *repositoryImpl) GetRecords(ctx context.Context, q DBTX, filter RecordFilter, limit int, offset int) ([]types.StoredRecord, error) {
	rows, err := q.QueryContext(ctx, getRecordsSQL, filter.Date, filter.Station, limit, offset)
	if err != nil {
		return nil, err
	}
	defer r.closeRows(rows, "records")

	out := []types.StoredRecord{}
	for rows.Next() {
		var rec types.StoredRecord
		var date string
		if err := rows.Scan(&rec.ID, &rec.Station, &date, &rec.MaxTemp, &rec.MinTemp, &rec.Precipitation); err != nil {
			return nil, err
		}
		if rec.Date, err = parseDate(date); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *repositoryImpl) CountRecords(ctx context.Context, q DBTX) (int, error) {
	var n int
	err := q.QueryRowContext(ctx, countRecordsSQL).Scan(&n)
	return n, err
}

// FindStat returns ErrNotFound when no stat exists for (station, year).
func (r *repositoryImpl) FindStat(ctx context.Context, q DBTX, station string, year int) (types.StoredStat, error) {
	var s types.StoredStat
	err := q.QueryRowContext(ctx, findStatSQL, station, year).
		Scan(&s.ID, &s.Station, &s.Year, &s.AvgMaxTemp, &s.AvgMinTemp, &s.PrecipitationTotal)
	if errors.Is(err, sql.ErrNoRows) {
		return types.StoredStat{}, ErrNotFound
	}
	if err != nil {
		return types.StoredStat{}, fmt.Errorf("find stat %s/%d: %w", station, year, err)
	}
	return s, nil
}

func (r *repositoryImpl) InsertStat(ctx context.Context, q DBTX, stat types.Stat) (int64, error) {
	res, err := q.ExecContext(ctx, insertStatSQL,
		stat.Station,
		stat.Year,
		nullableFloat(stat.AvgMaxTemp),
		nullableFloat(stat.AvgMinTemp),
		nullableFloat(stat.PrecipitationTotal),
	)
	if err != nil {
		return 0, classify(err, fmt.Sprintf("insert stat %s/%d", stat.Station, stat.Year))
	}
	return res.LastInsertId()
}

func (r *repositoryImpl) UpdateStat(ctx context.Context, q DBTX, id int64, stat types.Stat) error {
	res, err := q.ExecContext(ctx, updateStatSQL,
		nullableFloat(stat.AvgMaxTemp),
		nullableFloat(stat.AvgMinTemp),
		nullableFloat(stat.PrecipitationTotal),
		id,
	)
	if err != nil {
		return fmt.Errorf("update stat %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repositoryImpl) GetStats(ctx context.Context, q DBTX, limit int, offset int) ([]types.StoredStat, error) {
	rows, err := q.QueryContext(ctx, getStatsSQL, limit, offset)
	if err != nil {
		return nil, err
	}
	defer r.closeRows(rows, "stats")

	out := []types.StoredStat{}
	for rows.Next() {
		var s types.StoredStat
		if err := rows.Scan(&s.ID, &s.Station, &s.Year, &s.AvgMaxTemp, &s.AvgMinTemp, &s.PrecipitationTotal); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// IsConflict reports whether err is a SQLite uniqueness or primary key violation.
func IsConflict(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.ExtendedCode == sqlite3.ErrConstraintUnique ||
		se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

func classify(err error, op string) error {
	if IsConflict(err) {
		return fmt.Errorf("%s: %w: %w", op, ErrConflict, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func nullableFloat(d decimal.NullDecimal) any {
	if !d.Valid {
		return nil
	}
	return d.Decimal.InexactFloat64()
}

func parseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(types.DateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return t, nil
}

func (r *repositoryImpl) closeRows(rows *sql.Rows, what string) {
	if err := rows.Close(); err != nil {
		r.logger.Error("close "+what+" rows", "error", err)
	}
}
