package ingest

import (
	"context"
	"sort"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"sc2-custom-tracker/internal/constants"
	"sc2-custom-tracker/internal/domain"
	"sc2-custom-tracker/internal/repository"
)

// Store persists accepted matches grouped by date partition. A failed
// partition is reported but never blocks the others.
type Store struct {
	repo   *repository.MatchStoreRepository
	name   string
	logger zerolog.Logger
}

func NewStore(repo *repository.MatchStoreRepository, name string, logger zerolog.Logger) *Store {
	return &Store{repo: repo, name: name, logger: logger}
}

type PartitionError struct {
	DateKey string `json:"dateKey"`
	Error   string `json:"error"`
}

type StoreResult struct {
	PartitionsWritten int
	MatchesStored     int
	Stored            []domain.ProcessedMatch
	Errors            []PartitionError
}

// StoreMatches appends each date partition's matches in its own transaction.
// The returned Stored slice holds exactly the matches that were durably
// written; callers record only those as seen.
func (s *Store) StoreMatches(ctx context.Context, matches []domain.ProcessedMatch) StoreResult {
	var result StoreResult
	if len(matches) == 0 {
		return result
	}

	byDate := make(map[string][]domain.ProcessedMatch)
	for _, m := range matches {
		byDate[m.DateKey] = append(byDate[m.DateKey], m)
	}

	dateKeys := make([]string, 0, len(byDate))
	for k := range byDate {
		dateKeys = append(dateKeys, k)
	}
	sort.Strings(dateKeys)

	for _, dateKey := range dateKeys {
		batch := byDate[dateKey]
		if err := s.repo.AppendBatch(ctx, dateKey, batch); err != nil {
			s.logger.Error().Err(err).
				Str("date_key", dateKey).
				Int("matches", len(batch)).
				Msg("failed to write date partition")
			result.Errors = append(result.Errors, PartitionError{DateKey: dateKey, Error: err.Error()})
			continue
		}
		result.PartitionsWritten++
		result.MatchesStored += len(batch)
		result.Stored = append(result.Stored, batch...)
		s.logger.Debug().Str("date_key", dateKey).Int("matches", len(batch)).Msg("date partition written")
	}

	return result
}

type DateStats struct {
	DateKey string `json:"dateKey"`
	Matches int    `json:"matches"`
}

type StorageStats struct {
	PartitionName   string      `json:"partitionName"`
	TotalPartitions int         `json:"totalPartitions"`
	SampledMatches  int         `json:"sampledMatches"`
	EarliestDate    string      `json:"earliestDate"`
	LatestDate      string      `json:"latestDate"`
	RecentDateStats []DateStats `json:"recentDateStats"`
}

// Stats samples the most recent partitions rather than scanning the full
// dataset; per-date counts are fetched concurrently.
func (s *Store) Stats(ctx context.Context) (StorageStats, error) {
	stats := StorageStats{PartitionName: s.name}

	total, err := s.repo.PartitionCount(ctx)
	if err != nil {
		return StorageStats{}, err
	}
	stats.TotalPartitions = total

	earliest, latest, err := s.repo.DateRange(ctx)
	if err != nil {
		return StorageStats{}, err
	}
	stats.EarliestDate = earliest
	stats.LatestDate = latest

	recent, err := s.repo.RecentDates(ctx, constants.StorageStatsSampleDays)
	if err != nil {
		return StorageStats{}, err
	}

	perDate := make([]DateStats, len(recent))
	g, gCtx := errgroup.WithContext(ctx)
	for i, dateKey := range recent {
		i, dateKey := i, dateKey
		g.Go(func() error {
			count, err := s.repo.CountByDate(gCtx, dateKey)
			if err != nil {
				return err
			}
			perDate[i] = DateStats{DateKey: dateKey, Matches: count}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return StorageStats{}, err
	}

	for _, d := range perDate {
		stats.SampledMatches += d.Matches
	}
	stats.RecentDateStats = perDate
	return stats, nil
}
