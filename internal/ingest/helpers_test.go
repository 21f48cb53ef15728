package ingest

import (
	"database/sql"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"sc2-custom-tracker/internal/config"
	"sc2-custom-tracker/internal/database"
	"sc2-custom-tracker/internal/domain"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	cfg := &config.Config{DBPath: filepath.Join(t.TempDir(), "test.db")}
	db, err := database.New(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

type stubRoster struct {
	ordered []domain.CommunityPlayer
	byID    map[int64]domain.CommunityPlayer
}

func newStubRoster(ids ...int64) *stubRoster {
	s := &stubRoster{byID: make(map[int64]domain.CommunityPlayer)}
	for _, id := range ids {
		rating := 3000 + int(id%100)
		p := domain.CommunityPlayer{
			ID:        strconv.FormatInt(id, 10),
			Name:      "Player" + strconv.FormatInt(id, 10),
			BattleTag: "Player" + strconv.FormatInt(id, 10) + "#" + strconv.FormatInt(id, 10),
			Rating:    &rating,
		}
		s.ordered = append(s.ordered, p)
		s.byID[id] = p
	}
	return s
}

func (s *stubRoster) ByCharacterID(id int64) (domain.CommunityPlayer, bool) {
	p, ok := s.byID[id]
	return p, ok
}

func (s *stubRoster) Sample(n int) []domain.CommunityPlayer {
	if n > len(s.ordered) {
		n = len(s.ordered)
	}
	return s.ordered[:n]
}

func (s *stubRoster) Len() int {
	return len(s.ordered)
}

func int64Ptr(v int64) *int64 { return &v }
func intPtr(v int) *int       { return &v }

func rawH2H(matchID int64, date time.Time, winner, loser int64) domain.RawMatch {
	return domain.RawMatch{
		MatchID:         matchID,
		Date:            date,
		Type:            domain.MatchTypeCustom,
		MapName:         "Alcyone LE",
		DurationSeconds: intPtr(300),
		Participants: []domain.RawParticipant{
			{PlayerCharacterID: int64Ptr(winner), Decision: domain.DecisionWin},
			{PlayerCharacterID: int64Ptr(loser), Decision: domain.DecisionLoss},
		},
	}
}
