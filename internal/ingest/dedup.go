package ingest

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"sc2-custom-tracker/internal/domain"
	"sc2-custom-tracker/internal/repository"
)

// Deduplicator filters candidate batches against the persisted per-date
// index of already-stored match ids. The in-memory cache is loaded lazily
// per date key; RecordProcessed must only be called after a successful
// storage write so a crash mid-cycle re-ingests rather than loses matches.
type Deduplicator struct {
	repo     *repository.DedupRepository
	location string
	logger   zerolog.Logger

	mu    sync.Mutex
	cache map[string]map[int64]struct{}
}

func NewDeduplicator(repo *repository.DedupRepository, location string, logger zerolog.Logger) *Deduplicator {
	return &Deduplicator{
		repo:     repo,
		location: location,
		logger:   logger,
		cache:    make(map[string]map[int64]struct{}),
	}
}

// FilterResult partitions a candidate batch into new and already-seen.
type FilterResult struct {
	UniqueMatches     []domain.ProcessedMatch
	DuplicateCount    int
	DuplicateMatchIDs []int64
}

// FilterDuplicates checks each candidate against the index for its date key.
// The index itself is never mutated here.
func (d *Deduplicator) FilterDuplicates(ctx context.Context, candidates []domain.ProcessedMatch) (FilterResult, error) {
	var result FilterResult

	for _, m := range candidates {
		dup, err := d.seen(ctx, m.DateKey, m.MatchID)
		if err != nil {
			return FilterResult{}, fmt.Errorf("load index for %s: %w", m.DateKey, err)
		}
		if dup {
			result.DuplicateCount++
			result.DuplicateMatchIDs = append(result.DuplicateMatchIDs, m.MatchID)
			continue
		}
		result.UniqueMatches = append(result.UniqueMatches, m)
	}

	if result.DuplicateCount > 0 {
		d.logger.Debug().
			Int("duplicates", result.DuplicateCount).
			Int("unique", len(result.UniqueMatches)).
			Msg("filtered duplicate matches")
	}
	return result, nil
}

// RecordProcessed marks matches as stored in both the persisted index and
// the cache. Call only with matches that were durably written.
func (d *Deduplicator) RecordProcessed(ctx context.Context, matches []domain.ProcessedMatch) error {
	if len(matches) == 0 {
		return nil
	}
	if err := d.repo.RecordBatch(ctx, matches); err != nil {
		return fmt.Errorf("record processed matches: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for _, m := range matches {
		set, ok := d.cache[m.DateKey]
		if !ok {
			continue // not loaded yet; next lookup reads from the repo
		}
		set[m.MatchID] = struct{}{}
	}
	return nil
}

type DedupStats struct {
	TrackingStoreLocation string   `json:"trackingStoreLocation"`
	CacheSize             int      `json:"cacheSize"`
	CacheKeys             []string `json:"cacheKeys"`
	TrackedDates          []string `json:"trackedDates"`
	TotalRecorded         int      `json:"totalRecorded"`
}

func (d *Deduplicator) Stats(ctx context.Context) (DedupStats, error) {
	d.mu.Lock()
	keys := make([]string, 0, len(d.cache))
	size := 0
	for k, set := range d.cache {
		keys = append(keys, k)
		size += len(set)
	}
	d.mu.Unlock()
	sort.Strings(keys)

	dates, err := d.repo.TrackedDates(ctx)
	if err != nil {
		return DedupStats{}, err
	}
	total, err := d.repo.TotalRecorded(ctx)
	if err != nil {
		return DedupStats{}, err
	}

	return DedupStats{
		TrackingStoreLocation: d.location,
		CacheSize:             size,
		CacheKeys:             keys,
		TrackedDates:          dates,
		TotalRecorded:         total,
	}, nil
}

// Cleanup drops the in-memory cache. Persisted index data is untouched.
func (d *Deduplicator) Cleanup() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cache = make(map[string]map[int64]struct{})
}

// seen reports whether a match id is already recorded under a date key,
// loading the date's set from the repository on first use. The membership
// check stays under the lock so it never races with RecordProcessed writing
// the same set.
func (d *Deduplicator) seen(ctx context.Context, dateKey string, matchID int64) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	set, ok := d.cache[dateKey]
	if !ok {
		ids, err := d.repo.IDsForDate(ctx, dateKey)
		if err != nil {
			return false, err
		}
		set = make(map[int64]struct{}, len(ids))
		for _, id := range ids {
			set[id] = struct{}{}
		}
		d.cache[dateKey] = set
	}

	_, dup := set[matchID]
	return dup, nil
}
