package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"sc2-custom-tracker/internal/constants"
	"sc2-custom-tracker/internal/domain"
)

// MatchStoreRepository owns the durable per-date match partitions. Writes are
// append-only: INSERT OR IGNORE never rewrites an existing row.
type MatchStoreRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewMatchStoreRepository(sqlDB *sql.DB, logger zerolog.Logger) *MatchStoreRepository {
	return &MatchStoreRepository{db: sqlDB, logger: logger}
}

// AppendBatch writes one date partition's matches and their participants in
// a single transaction.
func (r *MatchStoreRepository) AppendBatch(ctx context.Context, dateKey string, matches []domain.ProcessedMatch) error {
	if len(matches) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for i := 0; i < len(matches); i += constants.DBBatchSize {
		end := i + constants.DBBatchSize
		if end > len(matches) {
			end = len(matches)
		}

		for _, m := range matches[i:end] {
			factors, err := json.Marshal(m.ConfidenceFactors)
			if err != nil {
				return fmt.Errorf("failed to encode factors for match %d: %w", m.MatchID, err)
			}

			var winnerID *int64
			if m.Outcome.Winner != nil {
				winnerID = &m.Outcome.Winner.CharacterID
			}

			_, err = tx.ExecContext(ctx, `
				INSERT OR IGNORE INTO custom_matches
					(date_key, match_id, match_date, map_name, duration_seconds,
					 outcome_kind, winner_character_id, confidence, confidence_factors,
					 processed_at, schema_version)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				dateKey, m.MatchID, m.MatchDate, m.MapName, m.DurationSeconds,
				string(m.Outcome.Kind), winnerID, string(m.Confidence), string(factors),
				m.ProcessedAt, m.SchemaVersion)
			if err != nil {
				return fmt.Errorf("failed to insert match %d: %w", m.MatchID, err)
			}

			for _, p := range m.Participants {
				_, err = tx.ExecContext(ctx, `
					INSERT OR IGNORE INTO custom_match_participants
						(date_key, match_id, character_id, battle_tag, display_name,
						 rating, is_community_member)
					VALUES (?, ?, ?, ?, ?, ?, ?)`,
					dateKey, m.MatchID, p.CharacterID, p.BattleTag, p.DisplayName,
					p.Rating, p.IsCommunityMember)
				if err != nil {
					return fmt.Errorf("failed to insert participant %d/%d: %w", m.MatchID, p.CharacterID, err)
				}
			}
		}
	}

	return tx.Commit()
}

// PartitionCount returns how many distinct date partitions exist.
func (r *MatchStoreRepository) PartitionCount(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT date_key) FROM custom_matches`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count partitions: %w", err)
	}
	return count, nil
}

// DateRange returns the earliest and latest date keys with stored matches.
// Both are empty when nothing has been stored yet.
func (r *MatchStoreRepository) DateRange(ctx context.Context) (earliest, latest string, err error) {
	var minKey, maxKey sql.NullString
	err = r.db.QueryRowContext(ctx, `
		SELECT MIN(date_key), MAX(date_key) FROM custom_matches`).Scan(&minKey, &maxKey)
	if err != nil {
		return "", "", fmt.Errorf("failed to query date range: %w", err)
	}
	return minKey.String, maxKey.String, nil
}

// RecentDates returns up to n most recent date keys with stored matches.
func (r *MatchStoreRepository) RecentDates(ctx context.Context, n int) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT date_key FROM custom_matches ORDER BY date_key DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent dates: %w", err)
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

// CountByDate returns how many matches are stored under one date key.
func (r *MatchStoreRepository) CountByDate(ctx context.Context, dateKey string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM custom_matches WHERE date_key = ?`, dateKey).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count matches for %s: %w", dateKey, err)
	}
	return count, nil
}
