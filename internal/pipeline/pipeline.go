// Package pipeline drives the two batch runs: ingestion of a directory of
// station files, and aggregation of the stored records into yearly stats.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"wxstats/internal/modules/weather/parser"
	"wxstats/internal/modules/weather/service"
	"wxstats/internal/modules/weather/types"
	"wxstats/internal/observability"
)

// RecordSource yields the parsed records of one station file.
type RecordSource interface {
	Records(path string) iter.Seq2[types.Record, error]
}

// BatchIngester persists one file's batch.
type BatchIngester interface {
	Ingest(ctx context.Context, station, file string, records []types.Record) (int, error)
}

// StatAggregator computes yearly stats and lists what can be aggregated.
type StatAggregator interface {
	Years(ctx context.Context) ([]int, error)
	Stations(ctx context.Context) ([]string, error)
	Aggregate(ctx context.Context, year int, station string) (types.Stat, error)
}

// StatWriter stores a stat and reports whether it replaced an existing one.
type StatWriter interface {
	Upsert(ctx context.Context, stat types.Stat) (bool, error)
}

// ConfigurationError reports an input directory that cannot be used.
type ConfigurationError struct {
	Dir    string
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("input directory %s: %s: %v", e.Dir, e.Reason, e.Err)
	}
	return fmt.Sprintf("input directory %s: %s", e.Dir, e.Reason)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// IngestSummary describes a finished ingestion run.
type IngestSummary struct {
	FilesProcessed  int           `json:"files_processed"`
	FilesSkipped    int           `json:"files_skipped"`
	RecordsInserted int           `json:"records_inserted"`
	Elapsed         time.Duration `json:"elapsed_ns"`
}

// AggregateSummary describes a finished aggregation run.
type AggregateSummary struct {
	Pairs    int           `json:"pairs"`
	Inserted int           `json:"inserted"`
	Updated  int           `json:"updated"`
	Elapsed  time.Duration `json:"elapsed_ns"`
}

type Driver struct {
	source     RecordSource
	ingester   BatchIngester
	aggregator StatAggregator
	writer     StatWriter
	clock      clockwork.Clock
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// Option customizes a Driver.
type Option func(*Driver)

func WithClock(c clockwork.Clock) Option {
	return func(d *Driver) { d.clock = c }
}

func WithMetrics(m *observability.Metrics) Option {
	return func(d *Driver) { d.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(d *Driver) { d.logger = l }
}

func New(source RecordSource, ingester BatchIngester, aggregator StatAggregator, writer StatWriter, opts ...Option) *Driver {
	d := &Driver{
		source:     source,
		ingester:   ingester,
		aggregator: aggregator,
		writer:     writer,
		clock:      clockwork.NewRealClock(),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.metrics == nil {
		d.metrics = observability.NewUnregisteredMetrics()
	}
	return d
}

// DiscoverFiles lists the regular, non-hidden files directly under dir in
// name order.
func DiscoverFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &ConfigurationError{Dir: dir, Reason: "cannot be read", Err: err}
	}

	var files []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") || !e.Type().IsRegular() {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	if len(files) == 0 {
		return nil, &ConfigurationError{Dir: dir, Reason: "contains no input files"}
	}
	sort.Strings(files)
	return files, nil
}

// RunIngestion parses and stores every file of dir, one file at a time. A
// file colliding with stored records is skipped with a warning; any other
// failure aborts the run. Files committed before the failure stay committed.
func (d *Driver) RunIngestion(ctx context.Context, dir string) (IngestSummary, error) {
	start := d.clock.Now()
	var summary IngestSummary

	files, err := DiscoverFiles(dir)
	if err != nil {
		return summary, err
	}
	d.logger.Info("ingestion started", "dir", dir, "files", len(files))

	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return summary, fmt.Errorf("ingestion interrupted: %w", err)
		}
		inserted, skipped, err := d.ingestFile(ctx, file)
		if err != nil {
			return summary, err
		}
		if skipped {
			summary.FilesSkipped++
			continue
		}
		summary.FilesProcessed++
		summary.RecordsInserted += inserted
	}

	summary.Elapsed = d.clock.Since(start)
	d.metrics.RunDuration.WithLabelValues("ingest").Observe(summary.Elapsed.Seconds())
	d.logger.Info("ingestion complete",
		"files_processed", summary.FilesProcessed,
		"files_skipped", summary.FilesSkipped,
		"inserted", summary.RecordsInserted,
		"elapsed", summary.Elapsed,
	)
	return summary, nil
}

func (d *Driver) ingestFile(ctx context.Context, file string) (inserted int, skipped bool, err error) {
	station := parser.StationID(file)

	var records []types.Record
	for rec, err := range d.source.Records(file) {
		if err != nil {
			var perr *parser.ParseError
			if errors.As(err, &perr) {
				d.metrics.ParseFailures.WithLabelValues("aborted").Inc()
			}
			return 0, false, fmt.Errorf("parse %s: %w", file, err)
		}
		records = append(records, rec)
	}

	inserted, err = d.ingester.Ingest(ctx, station, file, records)
	var dup *service.DuplicateBatchError
	if errors.As(err, &dup) {
		d.metrics.FilesProcessed.WithLabelValues("duplicate").Inc()
		d.logger.Warn("duplicate records, skipping file", "station", station, "file", file)
		return 0, true, nil
	}
	if err != nil {
		return 0, false, err
	}

	outcome := "ingested"
	if len(records) == 0 {
		outcome = "empty"
	}
	d.metrics.FilesProcessed.WithLabelValues(outcome).Inc()
	d.metrics.RecordsInserted.Add(float64(inserted))
	d.logger.Info("file ingested", "station", station, "file", file, "inserted", inserted)
	return inserted, false, nil
}

// RunAggregation recomputes the stat of every (year, station) pair found in
// the stored records, years outermost, both in ascending order.
func (d *Driver) RunAggregation(ctx context.Context) (AggregateSummary, error) {
	start := d.clock.Now()
	var summary AggregateSummary

	years, err := d.aggregator.Years(ctx)
	if err != nil {
		return summary, err
	}
	stations, err := d.aggregator.Stations(ctx)
	if err != nil {
		return summary, err
	}
	sort.Ints(years)
	sort.Strings(stations)
	d.logger.Info("aggregation started", "years", len(years), "stations", len(stations))

	for _, year := range years {
		for _, station := range stations {
			if err := ctx.Err(); err != nil {
				return summary, fmt.Errorf("aggregation interrupted: %w", err)
			}
			stat, err := d.aggregator.Aggregate(ctx, year, station)
			if err != nil {
				return summary, err
			}
			updated, err := d.writer.Upsert(ctx, stat)
			if err != nil {
				return summary, err
			}
			summary.Pairs++
			if updated {
				summary.Updated++
				d.metrics.StatsWritten.WithLabelValues("updated").Inc()
			} else {
				summary.Inserted++
				d.metrics.StatsWritten.WithLabelValues("inserted").Inc()
			}
			d.logger.Debug("stat written", "station", station, "year", year, "updated", updated)
		}
	}

	summary.Elapsed = d.clock.Since(start)
	d.metrics.RunDuration.WithLabelValues("aggregate").Observe(summary.Elapsed.Seconds())
	d.logger.Info("aggregation complete",
		"pairs", summary.Pairs,
		"inserted", summary.Inserted,
		"updated", summary.Updated,
		"elapsed", summary.Elapsed,
	)
	return summary, nil
}
