package ingest

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"

	"sc2-custom-tracker/internal/config"
	"sc2-custom-tracker/internal/domain"
	"sc2-custom-tracker/internal/roster"
)

// Orchestrator wires the pipeline stages into ingestion cycles and owns the
// only mutable lifecycle state in the core: the scheduler loop. Exactly one
// cycle runs at a time on the scheduled path; a tick that fires while a
// cycle is still in flight is skipped.
type Orchestrator struct {
	cfg       *config.Config
	rosterSvc *roster.Service
	discovery *Discovery
	factors   FactorProvider
	scorer    *Scorer
	dedup     *Deduplicator
	store     *Store
	logger    zerolog.Logger

	mu        sync.Mutex
	running   bool
	startedAt time.Time
	stopCh    chan struct{}
	doneCh    chan struct{}

	inFlight atomic.Bool
}

func NewOrchestrator(
	cfg *config.Config,
	rosterSvc *roster.Service,
	discovery *Discovery,
	factors FactorProvider,
	scorer *Scorer,
	dedup *Deduplicator,
	store *Store,
	logger zerolog.Logger,
) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg,
		rosterSvc: rosterSvc,
		discovery: discovery,
		factors:   factors,
		scorer:    scorer,
		dedup:     dedup,
		store:     store,
		logger:    logger,
	}
}

// Start launches the scheduler loop. Idempotent: starting a running
// orchestrator is a no-op.
func (o *Orchestrator) Start() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running {
		return
	}
	o.running = true
	o.startedAt = time.Now()
	o.stopCh = make(chan struct{})
	o.doneCh = make(chan struct{})
	go o.loop(o.stopCh, o.doneCh)
	o.logger.Info().Dur("poll_interval", o.cfg.PollInterval).Msg("ingestion scheduler started")
}

// Stop prevents new ticks and waits for any in-flight cycle to finish. A
// running cycle is never aborted mid-write.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return
	}
	// Flip before closing so a concurrent Stop returns early instead of
	// closing the same channel twice.
	o.running = false
	stopCh, doneCh := o.stopCh, o.doneCh
	o.mu.Unlock()

	close(stopCh)
	<-doneCh
	o.logger.Info().Msg("ingestion scheduler stopped")
}

func (o *Orchestrator) loop(stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(o.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			if !o.inFlight.CompareAndSwap(false, true) {
				o.logger.Warn().Msg("previous ingestion cycle still running, skipping tick")
				continue
			}
			result := o.runCycle(context.Background())
			o.inFlight.Store(false)
			o.logger.Info().
				Str("run_id", result.RunID).
				Int("discovered", result.MatchesDiscovered).
				Int("stored", result.NewMatchesStored).
				Int("duplicates", result.DuplicatesSkipped).
				Int("errors", len(result.Errors)).
				Int64("duration_ms", result.DurationMs).
				Msg("scheduled ingestion cycle complete")
		}
	}
}

// RunManualIngestion executes one cycle outside the scheduler. Pipeline
// failures are captured in the result, never returned as errors.
func (o *Orchestrator) RunManualIngestion(ctx context.Context) domain.IngestionRunResult {
	return o.runCycle(ctx)
}

// runCycle is one full pass: discover, validate and extract outcomes, score,
// apply the confidence floor, deduplicate, store, record the stored subset.
// Each stage's failure is recorded and the remaining stages run on whatever
// partial data survived.
func (o *Orchestrator) runCycle(ctx context.Context) domain.IngestionRunResult {
	start := time.Now()
	runID, _ := gonanoid.New()
	result := domain.IngestionRunResult{
		RunID:     runID,
		Timestamp: start,
		Errors:    []domain.StageError{},
	}
	logger := o.logger.With().Str("run_id", runID).Logger()

	// Discovery
	snapshot := o.rosterSvc.Snapshot()
	var discovered []domain.RawMatch
	if snapshot == nil {
		result.Errors = append(result.Errors, domain.StageError{
			Stage: "discovery", Error: "community roster not initialized",
		})
	} else {
		var err error
		discovered, err = o.discovery.Discover(ctx, snapshot, o.cfg.CutoffDate, o.cfg.BatchSize)
		if err != nil {
			result.Errors = append(result.Errors, domain.StageError{Stage: "discovery", Error: err.Error()})
		}
	}
	result.MatchesDiscovered = len(discovered)

	// Validation, outcome extraction, scoring
	processedAt := time.Now()
	var processed []domain.ProcessedMatch
	for _, raw := range discovered {
		validated, err := ValidateParticipants(raw, snapshot)
		if err != nil {
			logger.Debug().Err(err).Int64("match_id", raw.MatchID).Msg("match dropped by validation")
			continue
		}
		outcome := ExtractOutcome(raw, validated)
		factors := o.factors.Factors(raw, validated)
		tier := o.scorer.Score(factors, outcome)

		processed = append(processed, domain.ProcessedMatch{
			MatchID:           raw.MatchID,
			MatchDate:         raw.Date,
			DateKey:           domain.DateKeyFor(raw.Date),
			MapName:           raw.MapName,
			DurationSeconds:   raw.DurationSeconds,
			Participants:      validated,
			Outcome:           outcome,
			Confidence:        tier,
			ConfidenceFactors: factors,
			ProcessedAt:       processedAt,
			SchemaVersion:     domain.SchemaVersion,
		})
	}
	result.MatchesWithValidParticipants = len(processed)

	// Confidence floor
	var eligible []domain.ProcessedMatch
	for _, m := range processed {
		if m.Confidence.AtLeast(o.cfg.MinConfidence) {
			eligible = append(eligible, m)
		}
	}
	result.MatchesMeetingThreshold = len(eligible)

	// Deduplication
	filtered, err := o.dedup.FilterDuplicates(ctx, eligible)
	if err != nil {
		result.Errors = append(result.Errors, domain.StageError{Stage: "deduplication", Error: err.Error()})
		filtered = FilterResult{}
	}
	result.DuplicatesSkipped = filtered.DuplicateCount

	// Storage
	storeResult := o.store.StoreMatches(ctx, filtered.UniqueMatches)
	for _, pe := range storeResult.Errors {
		result.Errors = append(result.Errors, domain.StageError{
			Stage: "storage", Error: pe.DateKey + ": " + pe.Error,
		})
	}
	result.NewMatchesStored = storeResult.MatchesStored

	// Record only what was durably written.
	if err := o.dedup.RecordProcessed(ctx, storeResult.Stored); err != nil {
		result.Errors = append(result.Errors, domain.StageError{Stage: "record", Error: err.Error()})
	}

	result.DurationMs = time.Since(start).Milliseconds()
	return result
}

// Status reports the lifecycle state and effective pipeline configuration.
func (o *Orchestrator) Status() domain.OrchestratorStatus {
	o.mu.Lock()
	defer o.mu.Unlock()

	status := domain.OrchestratorStatus{
		IsRunning: o.running,
		Config: domain.OrchestratorConfig{
			CutoffDate:          o.cfg.CutoffDate.Format("2006-01-02"),
			MinConfidence:       string(o.cfg.MinConfidence),
			PollIntervalSeconds: int(o.cfg.PollInterval.Seconds()),
			BatchSize:           o.cfg.BatchSize,
		},
	}
	if o.running {
		status.UptimeMs = time.Since(o.startedAt).Milliseconds()
	}
	return status
}

// AggregateStats is the single read-only observability snapshot.
type AggregateStats struct {
	Status  domain.OrchestratorStatus `json:"status"`
	Roster  roster.Stats              `json:"roster"`
	Dedup   DedupStats                `json:"deduplication"`
	Storage StorageStats              `json:"storage"`
	Scorer  ScorerConfig              `json:"scorer"`
}

func (o *Orchestrator) Stats(ctx context.Context) (AggregateStats, error) {
	dedupStats, err := o.dedup.Stats(ctx)
	if err != nil {
		return AggregateStats{}, err
	}
	storageStats, err := o.store.Stats(ctx)
	if err != nil {
		return AggregateStats{}, err
	}
	return AggregateStats{
		Status:  o.Status(),
		Roster:  o.rosterSvc.Stats(),
		Dedup:   dedupStats,
		Storage: storageStats,
		Scorer:  o.scorer.Config(),
	}, nil
}

// Cleanup releases in-memory resources without touching persisted data.
func (o *Orchestrator) Cleanup() {
	o.dedup.Cleanup()
}
