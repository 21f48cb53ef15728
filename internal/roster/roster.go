// Package roster loads and serves the community player snapshot. The file
// format is a plain CSV (id,name,battle_tag,rating,last_played); everything
// downstream consumes only the in-memory snapshot.
package roster

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"sc2-custom-tracker/internal/config"
	"sc2-custom-tracker/internal/domain"
	"sc2-custom-tracker/internal/repository"
)

type Service struct {
	repo   *repository.RosterRepository
	path   string
	logger zerolog.Logger

	mu       sync.RWMutex
	snapshot *Snapshot
}

// Snapshot is an immutable view of the roster at load time. Ordered preserves
// file order so discovery sampling stays deterministic.
type Snapshot struct {
	byID     map[string]domain.CommunityPlayer
	ordered  []domain.CommunityPlayer
	loadedAt time.Time
}

func NewService(repo *repository.RosterRepository, cfg *config.Config, logger zerolog.Logger) *Service {
	return &Service{repo: repo, path: cfg.RosterPath, logger: logger}
}

// InitializeCommunityData loads the roster file, persists the snapshot, and
// swaps it in atomically. Callable again for a controlled refresh.
func (s *Service) InitializeCommunityData(ctx context.Context) error {
	players, err := loadFile(s.path)
	if err != nil {
		return fmt.Errorf("load roster %s: %w", s.path, err)
	}
	if len(players) == 0 {
		return fmt.Errorf("roster %s contains no players", s.path)
	}

	if err := s.repo.UpsertBatch(ctx, players); err != nil {
		return fmt.Errorf("persist roster: %w", err)
	}

	snap := &Snapshot{
		byID:     make(map[string]domain.CommunityPlayer, len(players)),
		ordered:  players,
		loadedAt: time.Now(),
	}
	for _, p := range players {
		snap.byID[p.ID] = p
	}

	s.mu.Lock()
	s.snapshot = snap
	s.mu.Unlock()

	// The persisted count can exceed the snapshot: upserts never delete
	// players removed from the file.
	persisted, err := s.repo.Count(ctx)
	if err != nil {
		return fmt.Errorf("count persisted roster: %w", err)
	}

	s.logger.Info().
		Int("players", len(players)).
		Int("persisted", persisted).
		Str("path", s.path).
		Msg("community roster loaded")
	return nil
}

// Players returns the persisted roster in id order, including players that
// were dropped from the file after an earlier load.
func (s *Service) Players(ctx context.Context) ([]domain.CommunityPlayer, error) {
	return s.repo.List(ctx)
}

// Snapshot returns the current roster view, or nil before initialization.
func (s *Service) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

type Stats struct {
	Path        string    `json:"path"`
	PlayerCount int       `json:"playerCount"`
	LoadedAt    time.Time `json:"loadedAt"`
}

func (s *Service) Stats() Stats {
	snap := s.Snapshot()
	if snap == nil {
		return Stats{Path: s.path}
	}
	return Stats{Path: s.path, PlayerCount: len(snap.ordered), LoadedAt: snap.loadedAt}
}

func (s *Snapshot) Len() int {
	return len(s.ordered)
}

// Sample returns the first n players in roster order.
func (s *Snapshot) Sample(n int) []domain.CommunityPlayer {
	if n > len(s.ordered) {
		n = len(s.ordered)
	}
	return s.ordered[:n]
}

// ByCharacterID looks a player up by their ladder character id.
func (s *Snapshot) ByCharacterID(id int64) (domain.CommunityPlayer, bool) {
	p, ok := s.byID[strconv.FormatInt(id, 10)]
	return p, ok
}

func loadFile(path string) ([]domain.CommunityPlayer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return parse(f)
}

func parse(r io.Reader) ([]domain.CommunityPlayer, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) < 3 {
		return nil, fmt.Errorf("expected at least id,name,battle_tag columns, got %d", len(header))
	}

	var players []domain.CommunityPlayer
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if len(record) < 3 || record[0] == "" {
			continue
		}

		p := domain.CommunityPlayer{
			ID:        record[0],
			Name:      record[1],
			BattleTag: record[2],
		}
		if len(record) > 3 && record[3] != "" {
			if rating, err := strconv.Atoi(record[3]); err == nil {
				p.Rating = &rating
			}
		}
		if len(record) > 4 && record[4] != "" {
			if t, err := time.Parse(time.RFC3339, record[4]); err == nil {
				p.LastPlayed = &t
			}
		}
		players = append(players, p)
	}

	return players, nil
}
