package ingest

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"sc2-custom-tracker/internal/api"
	"sc2-custom-tracker/internal/config"
	"sc2-custom-tracker/internal/database"
	"sc2-custom-tracker/internal/domain"
	"sc2-custom-tracker/internal/repository"
	"sc2-custom-tracker/internal/roster"
)

func writeRosterCSV(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "roster.csv")
	csv := "id,name,battle_tag,rating,last_played\n" +
		"101,Alpha,Alpha#101,3100,\n" +
		"202,Bravo,Bravo#202,3050,\n"
	if err := os.WriteFile(path, []byte(csv), 0o644); err != nil {
		t.Fatalf("write roster: %v", err)
	}
	return path
}

func newTestOrchestrator(t *testing.T, source MatchSource, minConfidence domain.ConfidenceTier) *Orchestrator {
	t.Helper()
	cfg := &config.Config{
		DBPath:        filepath.Join(t.TempDir(), "test.db"),
		RosterPath:    writeRosterCSV(t),
		CutoffDate:    time.Now().UTC().Add(-30 * 24 * time.Hour),
		MinConfidence: minConfidence,
		PollInterval:  time.Hour,
		BatchSize:     10,
	}

	db, err := database.New(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	rosterSvc := roster.NewService(repository.NewRosterRepository(db, zerolog.Nop()), cfg, zerolog.Nop())
	if err := rosterSvc.InitializeCommunityData(context.Background()); err != nil {
		t.Fatalf("initialize roster: %v", err)
	}

	return NewOrchestrator(
		cfg,
		rosterSvc,
		newTestDiscovery(source),
		NewDefaultFactorProvider(),
		NewScorer(DefaultScorerConfig()),
		NewDeduplicator(repository.NewDedupRepository(db, zerolog.Nop()), cfg.DBPath, zerolog.Nop()),
		NewStore(repository.NewMatchStoreRepository(db, zerolog.Nop()), "custom_matches", zerolog.Nop()),
		zerolog.Nop(),
	)
}

func TestManualIngestionStoresAndIsIdempotent(t *testing.T) {
	now := time.Now().UTC()
	shared := pulseMatch(9001, now, "CUSTOM", decisivePair(101, 202)...)
	source := &stubSource{
		responses: map[int64]*api.CharacterMatchesResponse{
			101: {Result: []api.CharacterMatch{shared}},
			202: {Result: []api.CharacterMatch{shared}},
		},
	}
	orch := newTestOrchestrator(t, source, domain.TierLow)

	first := orch.RunManualIngestion(context.Background())
	if len(first.Errors) != 0 {
		t.Fatalf("unexpected errors: %+v", first.Errors)
	}
	if first.MatchesDiscovered != 1 {
		t.Fatalf("expected 1 discovered, got %d", first.MatchesDiscovered)
	}
	if first.NewMatchesStored != 1 {
		t.Fatalf("expected 1 stored, got %d", first.NewMatchesStored)
	}

	second := orch.RunManualIngestion(context.Background())
	if len(second.Errors) != 0 {
		t.Fatalf("unexpected errors: %+v", second.Errors)
	}
	if second.NewMatchesStored != 0 {
		t.Fatalf("re-running must not store again, got %d", second.NewMatchesStored)
	}
	if second.DuplicatesSkipped != second.MatchesMeetingThreshold {
		t.Fatalf("expected every eligible match skipped as duplicate, got %d of %d",
			second.DuplicatesSkipped, second.MatchesMeetingThreshold)
	}
}

func TestManualIngestionConfidenceFloor(t *testing.T) {
	now := time.Now().UTC()
	// Unknown map and leaver-length duration keep the score below the high
	// threshold while discovery still accepts the match.
	shortDuration := 30
	weak := api.CharacterMatch{
		Match:        api.PulseMatch{ID: 9002, Date: now, Type: "CUSTOM", Duration: &shortDuration},
		Map:          api.PulseMap{ID: 99, Name: "Backwater Scramble"},
		Participants: decisivePair(101, 202),
	}
	source := &stubSource{
		responses: map[int64]*api.CharacterMatchesResponse{
			101: {Result: []api.CharacterMatch{weak}},
		},
	}
	orch := newTestOrchestrator(t, source, domain.TierHigh)

	result := orch.RunManualIngestion(context.Background())
	if result.MatchesDiscovered != 1 {
		t.Fatalf("expected 1 discovered, got %d", result.MatchesDiscovered)
	}
	if result.MatchesWithValidParticipants != 1 {
		t.Fatalf("expected 1 validated, got %d", result.MatchesWithValidParticipants)
	}
	if result.MatchesMeetingThreshold != 0 {
		t.Fatalf("expected 0 matches above the floor, got %d", result.MatchesMeetingThreshold)
	}
	if result.NewMatchesStored != 0 {
		t.Fatalf("expected nothing stored, got %d", result.NewMatchesStored)
	}
}

func TestManualIngestionCapturesRosterError(t *testing.T) {
	cfg := &config.Config{
		DBPath:        filepath.Join(t.TempDir(), "test.db"),
		RosterPath:    "missing.csv",
		CutoffDate:    time.Now().UTC().Add(-time.Hour),
		MinConfidence: domain.TierLow,
		PollInterval:  time.Hour,
		BatchSize:     10,
	}
	db, err := database.New(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	// Roster service without InitializeCommunityData: Snapshot() stays nil.
	rosterSvc := roster.NewService(repository.NewRosterRepository(db, zerolog.Nop()), cfg, zerolog.Nop())
	orch := NewOrchestrator(
		cfg,
		rosterSvc,
		newTestDiscovery(&stubSource{}),
		NewDefaultFactorProvider(),
		NewScorer(DefaultScorerConfig()),
		NewDeduplicator(repository.NewDedupRepository(db, zerolog.Nop()), cfg.DBPath, zerolog.Nop()),
		NewStore(repository.NewMatchStoreRepository(db, zerolog.Nop()), "custom_matches", zerolog.Nop()),
		zerolog.Nop(),
	)

	result := orch.RunManualIngestion(context.Background())
	if len(result.Errors) == 0 {
		t.Fatal("expected a captured stage error for the missing roster")
	}
	if result.Errors[0].Stage != "discovery" {
		t.Fatalf("expected discovery stage error, got %+v", result.Errors[0])
	}
	if result.NewMatchesStored != 0 {
		t.Fatalf("expected nothing stored, got %d", result.NewMatchesStored)
	}
}

func TestSchedulerLifecycle(t *testing.T) {
	orch := newTestOrchestrator(t, &stubSource{}, domain.TierLow)

	status := orch.Status()
	if status.IsRunning {
		t.Fatal("expected stopped before Start")
	}

	orch.Start()
	orch.Start() // idempotent
	status = orch.Status()
	if !status.IsRunning {
		t.Fatal("expected running after Start")
	}
	if status.Config.BatchSize != 10 || status.Config.MinConfidence != "low" {
		t.Fatalf("unexpected status config: %+v", status.Config)
	}

	orch.Stop()
	orch.Stop() // idempotent
	if orch.Status().IsRunning {
		t.Fatal("expected stopped after Stop")
	}
}

// The control surface exposes /stop, so Stop must tolerate racing callers
// without double-closing the stop channel.
func TestStopConcurrently(t *testing.T) {
	orch := newTestOrchestrator(t, &stubSource{}, domain.TierLow)
	orch.Start()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			orch.Stop()
		}()
	}
	wg.Wait()

	if orch.Status().IsRunning {
		t.Fatal("expected stopped after concurrent stops")
	}
}

func TestAggregateStats(t *testing.T) {
	now := time.Now().UTC()
	shared := pulseMatch(9003, now, "CUSTOM", decisivePair(101, 202)...)
	source := &stubSource{
		responses: map[int64]*api.CharacterMatchesResponse{
			101: {Result: []api.CharacterMatch{shared}},
		},
	}
	orch := newTestOrchestrator(t, source, domain.TierLow)
	orch.RunManualIngestion(context.Background())

	stats, err := orch.Stats(context.Background())
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Roster.PlayerCount != 2 {
		t.Fatalf("expected 2 roster players, got %d", stats.Roster.PlayerCount)
	}
	if stats.Storage.TotalPartitions != 1 {
		t.Fatalf("expected 1 storage partition, got %d", stats.Storage.TotalPartitions)
	}
	if stats.Dedup.TotalRecorded != 1 {
		t.Fatalf("expected 1 recorded match, got %d", stats.Dedup.TotalRecorded)
	}
	if stats.Scorer.HighThreshold <= stats.Scorer.MediumThreshold {
		t.Fatalf("scorer thresholds out of order: %+v", stats.Scorer)
	}
}
