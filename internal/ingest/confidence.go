package ingest

import (
	"time"

	"sc2-custom-tracker/internal/config"
	"sc2-custom-tracker/internal/constants"
	"sc2-custom-tracker/internal/domain"
)

// ScorerConfig holds the per-factor point values, the outcome adjustment,
// and the tier thresholds. Injected so operators can retune without a code
// change.
type ScorerConfig struct {
	FactorPoints      FactorPoints `json:"factorPoints"`
	OutcomeAdjustment int          `json:"outcomeAdjustment"`
	MediumThreshold   int          `json:"mediumThreshold"`
	HighThreshold     int          `json:"highThreshold"`
}

type FactorPoints struct {
	HasValidCharacterIDs  int `json:"hasValidCharacterIds"`
	BothCommunityMembers  int `json:"bothCommunityMembers"`
	BothActiveRecently    int `json:"bothActiveRecently"`
	HasReasonableDuration int `json:"hasReasonableDuration"`
	RecognizedMap         int `json:"recognizedMap"`
	SimilarSkillLevel     int `json:"similarSkillLevel"`
}

func DefaultScorerConfig() ScorerConfig {
	return ScorerConfig{
		FactorPoints: FactorPoints{
			HasValidCharacterIDs:  2,
			BothCommunityMembers:  3,
			BothActiveRecently:    1,
			HasReasonableDuration: 2,
			RecognizedMap:         1,
			SimilarSkillLevel:     1,
		},
		OutcomeAdjustment: 1,
		MediumThreshold:   5,
		HighThreshold:     8,
	}
}

// ScorerConfigFrom applies the configured threshold overrides on top of the
// defaults.
func ScorerConfigFrom(cfg *config.Config) ScorerConfig {
	sc := DefaultScorerConfig()
	sc.MediumThreshold = cfg.ConfidenceMediumThreshold
	sc.HighThreshold = cfg.ConfidenceHighThreshold
	return sc
}

// Scorer maps confidence factors and an outcome onto a tier. Pure: no I/O,
// no shared state, safe to call concurrently.
type Scorer struct {
	cfg ScorerConfig
}

func NewScorer(cfg ScorerConfig) *Scorer {
	return &Scorer{cfg: cfg}
}

func (s *Scorer) Config() ScorerConfig {
	return s.cfg
}

// Score sums the configured points for each true factor, nudges the total by
// outcome decisiveness, and maps it through the thresholds. An unknown
// outcome is capped at low regardless of score: ambiguous matches must never
// look trustworthy on unrelated signals alone.
func (s *Scorer) Score(factors domain.ConfidenceFactors, outcome domain.MatchOutcome) domain.ConfidenceTier {
	score := 0
	p := s.cfg.FactorPoints
	if factors.HasValidCharacterIDs {
		score += p.HasValidCharacterIDs
	}
	if factors.BothCommunityMembers {
		score += p.BothCommunityMembers
	}
	if factors.BothActiveRecently {
		score += p.BothActiveRecently
	}
	if factors.HasReasonableDuration {
		score += p.HasReasonableDuration
	}
	if factors.RecognizedMap {
		score += p.RecognizedMap
	}
	if factors.SimilarSkillLevel {
		score += p.SimilarSkillLevel
	}

	switch outcome.Kind {
	case domain.OutcomeWinLoss:
		score += s.cfg.OutcomeAdjustment
	case domain.OutcomeUnknown:
		score -= s.cfg.OutcomeAdjustment
	}

	if outcome.Kind == domain.OutcomeUnknown {
		return domain.TierLow
	}
	switch {
	case score >= s.cfg.HighThreshold:
		return domain.TierHigh
	case score >= s.cfg.MediumThreshold:
		return domain.TierMedium
	default:
		return domain.TierLow
	}
}

// FactorProvider computes the boolean confidence signals for a match. The
// two roster-history signals (recent activity, skill proximity) are left to
// future providers; the default never sets them.
type FactorProvider interface {
	Factors(raw domain.RawMatch, validated []domain.ValidatedParticipant) domain.ConfidenceFactors
}

// DefaultFactorProvider computes the four implemented signals and pins
// BothActiveRecently and SimilarSkillLevel to false.
type DefaultFactorProvider struct {
	knownMaps map[string]struct{}
}

func NewDefaultFactorProvider() *DefaultFactorProvider {
	maps := []string{
		"Alcyone LE", "Amphion LE", "Crimson Court LE", "Dynasty LE",
		"Ghost River LE", "Goldenaura LE", "Oceanborn LE", "Post-Youth LE",
		"Site Delta LE", "Solaris LE",
	}
	known := make(map[string]struct{}, len(maps))
	for _, m := range maps {
		known[m] = struct{}{}
	}
	return &DefaultFactorProvider{knownMaps: known}
}

func (f *DefaultFactorProvider) Factors(raw domain.RawMatch, validated []domain.ValidatedParticipant) domain.ConfidenceFactors {
	factors := domain.ConfidenceFactors{}

	factors.HasValidCharacterIDs = len(validated) == 2 &&
		validated[0].CharacterID > 0 && validated[1].CharacterID > 0

	factors.BothCommunityMembers = len(validated) == 2 &&
		validated[0].IsCommunityMember && validated[1].IsCommunityMember

	if raw.DurationSeconds != nil {
		d := time.Duration(*raw.DurationSeconds) * time.Second
		factors.HasReasonableDuration = d >= constants.ReasonableDurationMin &&
			d <= constants.ReasonableDurationMax
	}

	if _, ok := f.knownMaps[raw.MapName]; ok {
		factors.RecognizedMap = true
	}

	return factors
}
