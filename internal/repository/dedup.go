package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"sc2-custom-tracker/internal/constants"
	"sc2-custom-tracker/internal/domain"
)

// DedupRepository persists the per-date index of match ids that have already
// been stored. Rows are append-only; retention is an external concern.
type DedupRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewDedupRepository(sqlDB *sql.DB, logger zerolog.Logger) *DedupRepository {
	return &DedupRepository{db: sqlDB, logger: logger}
}

// IDsForDate returns every match id recorded under one date key.
func (r *DedupRepository) IDsForDate(ctx context.Context, dateKey string) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT match_id FROM processed_match_index WHERE date_key = ?`, dateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to query index for %s: %w", dateKey, err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan match id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// RecordBatch marks matches as stored. INSERT OR IGNORE keeps the call
// idempotent when two cycles race on the same match.
func (r *DedupRepository) RecordBatch(ctx context.Context, matches []domain.ProcessedMatch) error {
	if len(matches) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	for i := 0; i < len(matches); i += constants.DBBatchSize {
		end := i + constants.DBBatchSize
		if end > len(matches) {
			end = len(matches)
		}

		for _, m := range matches[i:end] {
			_, err := tx.ExecContext(ctx, `
				INSERT OR IGNORE INTO processed_match_index (date_key, match_id, recorded_at)
				VALUES (?, ?, ?)`,
				m.DateKey, m.MatchID, now)
			if err != nil {
				return fmt.Errorf("failed to record match %d: %w", m.MatchID, err)
			}
		}
	}

	return tx.Commit()
}

// TrackedDates returns every date key present in the index, newest first.
func (r *DedupRepository) TrackedDates(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT date_key FROM processed_match_index ORDER BY date_key DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query tracked dates: %w", err)
	}
	defer rows.Close()

	var dates []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("failed to scan date key: %w", err)
		}
		dates = append(dates, d)
	}
	return dates, rows.Err()
}

func (r *DedupRepository) TotalRecorded(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM processed_match_index`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count index: %w", err)
	}
	return count, nil
}
