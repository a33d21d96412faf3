package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"wxstats/internal/modules/weather/repository"
	"wxstats/internal/modules/weather/types"
)

// DuplicatePolicy decides how a batch that collides with stored records is
// handled.
type DuplicatePolicy string

const (
	// DuplicateRejectFile rolls back the whole file on the first collision.
	DuplicateRejectFile DuplicatePolicy = "reject-file"
	// DuplicateSkipExisting inserts the new rows of the file and ignores the rest.
	DuplicateSkipExisting DuplicatePolicy = "skip-existing"
)

func ParseDuplicatePolicy(s string) (DuplicatePolicy, error) {
	switch p := DuplicatePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case DuplicateRejectFile, DuplicateSkipExisting:
		return p, nil
	default:
		return "", fmt.Errorf("invalid duplicate policy %q (allowed: reject-file, skip-existing)", s)
	}
}

type Ingester struct {
	db     *sql.DB
	repo   repository.WeatherRepository
	policy DuplicatePolicy
	logger *slog.Logger
}

func NewIngester(db *sql.DB, repo repository.WeatherRepository, policy DuplicatePolicy, logger *slog.Logger) *Ingester {
	if policy == "" {
		policy = DuplicateRejectFile
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingester{db: db, repo: repo, policy: policy, logger: logger}
}

// Ingest stores one file's batch in a single transaction and returns the
// number of records written. Under DuplicateRejectFile a collision with any
// stored (station, date) leaves the store untouched and yields a
// *DuplicateBatchError.
func (i *Ingester) Ingest(ctx context.Context, station, file string, records []types.Record) (int, error) {
	if len(records) == 0 {
		i.logger.Debug("empty batch", "station", station, "file", file)
		return 0, nil
	}

	var inserted int
	err := withTx(ctx, i.db, func(tx *sql.Tx) error {
		var err error
		if i.policy == DuplicateSkipExisting {
			inserted, err = i.repo.InsertNewRecords(ctx, tx, records)
		} else {
			inserted, err = i.repo.InsertRecords(ctx, tx, records)
		}
		return err
	})
	if errors.Is(err, repository.ErrConflict) {
		return 0, &DuplicateBatchError{Station: station, File: file, Err: err}
	}
	if err != nil {
		return 0, &StorageError{Op: "ingest " + file, Err: err}
	}

	i.logger.Debug("batch stored", "station", station, "file", file, "inserted", inserted)
	return inserted, nil
}
