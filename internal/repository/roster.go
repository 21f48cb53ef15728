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

type RosterRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewRosterRepository(sqlDB *sql.DB, logger zerolog.Logger) *RosterRepository {
	return &RosterRepository{db: sqlDB, logger: logger}
}

// UpsertBatch writes a roster snapshot in one transaction so a half-loaded
// roster never becomes visible to readers.
func (r *RosterRepository) UpsertBatch(ctx context.Context, players []domain.CommunityPlayer) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	for i := 0; i < len(players); i += constants.DBBatchSize {
		end := i + constants.DBBatchSize
		if end > len(players) {
			end = len(players)
		}

		for _, p := range players[i:end] {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO community_players (id, name, battle_tag, rating, last_played, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET
					name = excluded.name,
					battle_tag = excluded.battle_tag,
					rating = excluded.rating,
					last_played = excluded.last_played,
					updated_at = excluded.updated_at`,
				p.ID, p.Name, p.BattleTag, p.Rating, p.LastPlayed, now, now)
			if err != nil {
				return fmt.Errorf("failed to upsert player %s: %w", p.ID, err)
			}
		}
	}

	return tx.Commit()
}

// List returns the persisted roster in id order.
func (r *RosterRepository) List(ctx context.Context) ([]domain.CommunityPlayer, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, battle_tag, rating, last_played
		FROM community_players
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list players: %w", err)
	}
	defer rows.Close()

	var players []domain.CommunityPlayer
	for rows.Next() {
		var p domain.CommunityPlayer
		if err := rows.Scan(&p.ID, &p.Name, &p.BattleTag, &p.Rating, &p.LastPlayed); err != nil {
			return nil, fmt.Errorf("failed to scan player: %w", err)
		}
		players = append(players, p)
	}
	return players, rows.Err()
}

func (r *RosterRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM community_players`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count players: %w", err)
	}
	return count, nil
}
