// Package parser reads station observation files.
//
// Each file holds one station's daily observations, one per line, with four
// tab separated columns: date (YYYYMMDD), max temperature, min temperature and
// precipitation. Measurements are integers in tenths of their unit (°C, mm)
// and -9999 marks a missing value. The station id is the file base name
// without its extension.
package parser

import (
	"bufio"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"wxstats/internal/modules/weather/types"
)

// MissingValue is the raw sentinel for an absent measurement.
const MissingValue = -9999

const (
	columns    = 4
	dateLayout = "20060102"
	// measurements are stored as tenths of their unit
	scaleExp = -1
)

// Policy decides what happens to a line that cannot be parsed.
type Policy string

const (
	// PolicyFail yields the ParseError to the caller, which aborts the run.
	PolicyFail Policy = "fail"
	// PolicySkip logs the ParseError and continues with the next line.
	PolicySkip Policy = "skip"
)

// ParsePolicy validates a policy name.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case PolicyFail, PolicySkip:
		return p, nil
	default:
		return "", fmt.Errorf("invalid parse error policy %q (allowed: fail, skip)", s)
	}
}

// ParseError identifies a malformed input line.
type ParseError struct {
	File   string
	Line   int
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s:%d: %s", e.File, e.Line, e.Reason)
}

// StationID derives the station identifier from a file path.
func StationID(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

type Parser struct {
	policy Policy
	logger *slog.Logger
	onSkip func(*ParseError)
}

// Option customizes a Parser.
type Option func(*Parser)

// WithSkipHandler registers fn to be called for every line skipped under
// PolicySkip.
func WithSkipHandler(fn func(*ParseError)) Option {
	return func(p *Parser) { p.onSkip = fn }
}

func New(policy Policy, logger *slog.Logger, opts ...Option) *Parser {
	if policy == "" {
		policy = PolicyFail
	}
	if logger == nil {
		logger = slog.Default()
	}
	p := &Parser{policy: policy, logger: logger}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Records returns the normalized records of the file at path. The file is
// opened each time the sequence is ranged over, so the sequence can be
// consumed more than once. Under PolicyFail the sequence stops after the first
// error it yields.
func (p *Parser) Records(path string) iter.Seq2[types.Record, error] {
	return func(yield func(types.Record, error) bool) {
		f, err := os.Open(path)
		if err != nil {
			yield(types.Record{}, fmt.Errorf("open %s: %w", path, err))
			return
		}
		defer func() {
			if err := f.Close(); err != nil {
				p.logger.Error("close input file", "file", path, "error", err)
			}
		}()

		for rec, err := range p.scan(f, path, StationID(path)) {
			if !yield(rec, err) {
				return
			}
			if err != nil {
				return
			}
		}
	}
}

// ReadAll collects every record of the file at path.
func (p *Parser) ReadAll(path string) ([]types.Record, error) {
	var out []types.Record
	for rec, err := range p.Records(path) {
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (p *Parser) scan(r io.Reader, file, station string) iter.Seq2[types.Record, error] {
	return func(yield func(types.Record, error) bool) {
		sc := bufio.NewScanner(r)
		lineNo := 0
		for sc.Scan() {
			lineNo++
			line := strings.TrimSpace(sc.Text())
			if line == "" {
				continue
			}
			rec, err := parseLine(line, station)
			if err != nil {
				perr := &ParseError{File: file, Line: lineNo, Reason: err.Error()}
				if p.policy == PolicySkip {
					p.logger.Warn("skipping malformed line",
						"station", station,
						"file", file,
						"line", lineNo,
						"error", perr.Reason,
					)
					if p.onSkip != nil {
						p.onSkip(perr)
					}
					continue
				}
				yield(types.Record{}, perr)
				return
			}
			if !yield(rec, nil) {
				return
			}
		}
		if err := sc.Err(); err != nil {
			yield(types.Record{}, fmt.Errorf("read %s: %w", file, err))
		}
	}
}

func parseLine(line, station string) (types.Record, error) {
	fields := strings.Split(line, "\t")
	if len(fields) != columns {
		return types.Record{}, fmt.Errorf("expected %d tab separated columns, got %d", columns, len(fields))
	}

	date, err := time.ParseInLocation(dateLayout, strings.TrimSpace(fields[0]), time.UTC)
	if err != nil {
		return types.Record{}, fmt.Errorf("invalid date %q", fields[0])
	}

	names := [...]string{"max_temp", "min_temp", "precipitation"}
	var values [3]decimal.NullDecimal
	for i, name := range names {
		v, err := parseMeasurement(fields[i+1])
		if err != nil {
			return types.Record{}, fmt.Errorf("invalid %s %q", name, fields[i+1])
		}
		values[i] = v
	}

	return types.Record{
		Station:       station,
		Date:          date,
		MaxTemp:       values[0],
		MinTemp:       values[1],
		Precipitation: values[2],
	}, nil
}

// parseMeasurement maps the sentinel to null and scales tenths to the
// physical unit.
func parseMeasurement(s string) (decimal.NullDecimal, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	if n == MissingValue {
		return decimal.NullDecimal{}, nil
	}
	return decimal.NewNullDecimal(decimal.New(n, scaleExp)), nil
}
