package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"wxstats/internal/modules/weather/repository"
	"wxstats/internal/modules/weather/types"
)

type StatsUpserter struct {
	db   *sql.DB
	repo repository.WeatherRepository
}

func NewStatsUpserter(db *sql.DB, repo repository.WeatherRepository) *StatsUpserter {
	return &StatsUpserter{db: db, repo: repo}
}

// Upsert creates the stat for (station, year) or overwrites the aggregate
// fields of the existing one. updated is true when a row already existed.
func (u *StatsUpserter) Upsert(ctx context.Context, stat types.Stat) (updated bool, err error) {
	err = withTx(ctx, u.db, func(tx *sql.Tx) error {
		existing, err := u.repo.FindStat(ctx, tx, stat.Station, stat.Year)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			_, err = u.repo.InsertStat(ctx, tx, stat)
			return err
		case err != nil:
			return err
		}
		updated = true
		return u.repo.UpdateStat(ctx, tx, existing.ID, stat)
	})
	if err != nil {
		return false, &StorageError{Op: fmt.Sprintf("upsert stat %s/%d", stat.Station, stat.Year), Err: err}
	}
	return updated, nil
}
