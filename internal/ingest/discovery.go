package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"sc2-custom-tracker/internal/api"
	"sc2-custom-tracker/internal/constants"
	"sc2-custom-tracker/internal/domain"
)

// MatchSource is the upstream query Discovery depends on. *api.PulseClient
// satisfies it; tests substitute a stub.
type MatchSource interface {
	GetCharacterMatches(ctx context.Context, characterID int64, matchType string, limit int) (*api.CharacterMatchesResponse, error)
}

// MemberLookup answers roster membership questions. *roster.Snapshot
// satisfies it.
type MemberLookup interface {
	ByCharacterID(id int64) (domain.CommunityPlayer, bool)
	Sample(n int) []domain.CommunityPlayer
	Len() int
}

// Discovery queries the upstream service for a bounded sample of community
// players and filters the results down to custom head-to-head candidates.
type Discovery struct {
	source     MatchSource
	pause      time.Duration
	fetchLimit int
	logger     zerolog.Logger
}

func NewDiscovery(source MatchSource, logger zerolog.Logger) *Discovery {
	return &Discovery{
		source:     source,
		pause:      constants.DiscoveryRequestPause,
		fetchLimit: constants.DiscoveryFetchLimit,
		logger:     logger,
	}
}

// Discover fetches custom matches for at most batchSize players and returns
// the deduplicated candidate list. A per-player fetch failure is logged and
// skipped; only a missing roster aborts the stage.
func (d *Discovery) Discover(ctx context.Context, roster MemberLookup, cutoff time.Time, batchSize int) ([]domain.RawMatch, error) {
	if roster == nil || roster.Len() == 0 {
		return nil, fmt.Errorf("community roster is empty")
	}

	players := roster.Sample(batchSize)
	d.logger.Info().
		Int("players_sampled", len(players)).
		Int("roster_size", roster.Len()).
		Time("cutoff", cutoff).
		Msg("starting discovery pass")

	seen := make(map[int64]struct{})
	var discovered []domain.RawMatch

	for i, player := range players {
		if i > 0 {
			if err := sleepCtx(ctx, d.pause); err != nil {
				return discovered, err
			}
		}

		characterID, err := player.CharacterID()
		if err != nil {
			d.logger.Warn().Err(err).Str("player_id", player.ID).Msg("skipping player with invalid character id")
			continue
		}

		resp, err := d.source.GetCharacterMatches(ctx, characterID, string(domain.MatchTypeCustom), d.fetchLimit)
		if err != nil {
			d.logger.Warn().Err(err).
				Str("player_id", player.ID).
				Str("battle_tag", player.BattleTag).
				Msg("per-player match fetch failed, skipping")
			continue
		}

		for _, record := range resp.Result {
			raw := record.ToRawMatch()
			if _, dup := seen[raw.MatchID]; dup {
				continue
			}
			if !d.isCandidate(raw, roster, cutoff) {
				continue
			}
			seen[raw.MatchID] = struct{}{}
			discovered = append(discovered, raw)
		}
	}

	d.logger.Info().Int("matches_discovered", len(discovered)).Msg("discovery pass complete")
	return discovered, nil
}

// isCandidate applies the discovery filter: custom type, after the cutoff,
// exactly two decisive participants, all of them known community members.
func (d *Discovery) isCandidate(raw domain.RawMatch, roster MemberLookup, cutoff time.Time) bool {
	if raw.Type != domain.MatchTypeCustom {
		return false
	}
	if raw.Date.Before(cutoff) {
		return false
	}

	decisive := 0
	for _, p := range raw.Participants {
		if !p.Decision.Decisive() {
			continue
		}
		decisive++
		if p.PlayerCharacterID == nil {
			return false
		}
		if _, ok := roster.ByCharacterID(*p.PlayerCharacterID); !ok {
			return false
		}
	}
	return decisive == 2
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
