package roster

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"sc2-custom-tracker/internal/config"
	"sc2-custom-tracker/internal/database"
	"sc2-custom-tracker/internal/domain"
	"sc2-custom-tracker/internal/repository"
)

func TestParseRoster(t *testing.T) {
	csv := `id,name,battle_tag,rating,last_played
101,Alpha,Alpha#101,3100,2025-05-01T12:00:00Z
202,Bravo,Bravo#202,,
303,Charlie,Charlie#303
`
	players, err := parse(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(players) != 3 {
		t.Fatalf("expected 3 players, got %d", len(players))
	}

	if players[0].ID != "101" || players[0].Name != "Alpha" || players[0].BattleTag != "Alpha#101" {
		t.Fatalf("unexpected first player: %+v", players[0])
	}
	if players[0].Rating == nil || *players[0].Rating != 3100 {
		t.Fatalf("expected rating 3100, got %v", players[0].Rating)
	}
	want := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	if players[0].LastPlayed == nil || !players[0].LastPlayed.Equal(want) {
		t.Fatalf("unexpected last played: %v", players[0].LastPlayed)
	}

	if players[1].Rating != nil || players[1].LastPlayed != nil {
		t.Fatalf("empty optional columns must stay nil: %+v", players[1])
	}
	if players[2].BattleTag != "Charlie#303" {
		t.Fatalf("short row with required columns must parse: %+v", players[2])
	}
}

func TestParseRosterSkipsBlankRows(t *testing.T) {
	csv := `id,name,battle_tag
101,Alpha,Alpha#101
,,
202,Bravo,Bravo#202
`
	players, err := parse(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(players) != 2 {
		t.Fatalf("expected blank row skipped, got %d players", len(players))
	}
}

func TestParseRosterRejectsBadHeader(t *testing.T) {
	if _, err := parse(strings.NewReader("id,name\n101,Alpha\n")); err == nil {
		t.Fatal("expected error for header missing battle_tag")
	}
}

// The persisted roster outlives file edits: reloading a smaller file keeps
// previously loaded players in the database while the snapshot shrinks.
func TestPlayersKeepsDroppedEntries(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	cfg := &config.Config{
		DBPath:     filepath.Join(dir, "test.db"),
		RosterPath: filepath.Join(dir, "roster.csv"),
	}
	db, err := database.New(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	svc := NewService(repository.NewRosterRepository(db, zerolog.Nop()), cfg, zerolog.Nop())

	write := func(csv string) {
		if err := os.WriteFile(cfg.RosterPath, []byte(csv), 0o644); err != nil {
			t.Fatalf("write roster: %v", err)
		}
	}

	write("id,name,battle_tag\n101,Alpha,Alpha#101\n202,Bravo,Bravo#202\n303,Charlie,Charlie#303\n")
	if err := svc.InitializeCommunityData(ctx); err != nil {
		t.Fatalf("first load: %v", err)
	}

	write("id,name,battle_tag\n101,Alpha,Alpha#101\n404,Delta,Delta#404\n")
	if err := svc.InitializeCommunityData(ctx); err != nil {
		t.Fatalf("second load: %v", err)
	}

	if svc.Snapshot().Len() != 2 {
		t.Fatalf("expected snapshot of 2, got %d", svc.Snapshot().Len())
	}
	players, err := svc.Players(ctx)
	if err != nil {
		t.Fatalf("players: %v", err)
	}
	if len(players) != 4 {
		t.Fatalf("expected 4 persisted players, got %d", len(players))
	}
	// id order from the repository
	if players[0].ID != "101" || players[3].ID != "404" {
		t.Fatalf("unexpected persisted order: %+v", players)
	}
}

func TestSnapshotLookupAndSample(t *testing.T) {
	csv := `id,name,battle_tag
101,Alpha,Alpha#101
202,Bravo,Bravo#202
303,Charlie,Charlie#303
`
	players, err := parse(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	byID := make(map[string]domain.CommunityPlayer, len(players))
	for _, p := range players {
		byID[p.ID] = p
	}
	snap := &Snapshot{byID: byID, ordered: players, loadedAt: time.Now()}

	if snap.Len() != 3 {
		t.Fatalf("expected 3 players, got %d", snap.Len())
	}
	if p, ok := snap.ByCharacterID(202); !ok || p.Name != "Bravo" {
		t.Fatalf("lookup by character id failed: %+v %v", p, ok)
	}
	if _, ok := snap.ByCharacterID(999); ok {
		t.Fatal("unexpected hit for unknown character id")
	}

	sample := snap.Sample(2)
	if len(sample) != 2 || sample[0].ID != "101" || sample[1].ID != "202" {
		t.Fatalf("sample must preserve file order: %+v", sample)
	}
	if got := snap.Sample(10); len(got) != 3 {
		t.Fatalf("oversized sample must clamp, got %d", len(got))
	}
}
