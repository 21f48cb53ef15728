package ingest

import (
	"fmt"

	"sc2-custom-tracker/internal/domain"
)

// ErrNotHeadToHead is returned when validation does not yield exactly two
// participants; such matches never reach scoring or storage.
var ErrNotHeadToHead = fmt.Errorf("match is not a head-to-head between community members")

// ValidateParticipants keeps only participants that actually played the
// game, carry a player identity, and belong to the community roster. The
// head-to-head invariant is enforced structurally: anything other than
// exactly two survivors is an error.
func ValidateParticipants(raw domain.RawMatch, roster MemberLookup) ([]domain.ValidatedParticipant, error) {
	var validated []domain.ValidatedParticipant
	for _, p := range raw.Participants {
		if !p.Decision.Competitive() {
			continue
		}
		if p.PlayerCharacterID == nil {
			continue
		}
		player, ok := roster.ByCharacterID(*p.PlayerCharacterID)
		if !ok {
			continue
		}
		validated = append(validated, domain.ValidatedParticipant{
			CharacterID:       *p.PlayerCharacterID,
			BattleTag:         player.BattleTag,
			DisplayName:       player.Name,
			Rating:            player.Rating,
			IsCommunityMember: true,
		})
	}

	if len(validated) != 2 {
		return nil, fmt.Errorf("%w: %d validated participants for match %d",
			ErrNotHeadToHead, len(validated), raw.MatchID)
	}
	return validated, nil
}

// ExtractOutcome derives the structured outcome from the raw decisions of
// the validated pair: one win and one loss makes a decisive result, two ties
// make a tie, anything else is unknown. Unknown matches are kept for audit
// but capped at low confidence by the scorer.
func ExtractOutcome(raw domain.RawMatch, validated []domain.ValidatedParticipant) domain.MatchOutcome {
	decisions := make(map[int64]domain.ParticipantDecision, len(raw.Participants))
	for _, p := range raw.Participants {
		if p.PlayerCharacterID != nil {
			decisions[*p.PlayerCharacterID] = p.Decision
		}
	}

	var winner, loser *domain.ValidatedParticipant
	wins, losses, ties := 0, 0, 0
	for i := range validated {
		switch decisions[validated[i].CharacterID] {
		case domain.DecisionWin:
			wins++
			winner = &validated[i]
		case domain.DecisionLoss:
			losses++
			loser = &validated[i]
		case domain.DecisionTie:
			ties++
		}
	}

	switch {
	case wins == 1 && losses == 1:
		return domain.MatchOutcome{
			Kind:         domain.OutcomeWinLoss,
			Winner:       winner,
			Loser:        loser,
			Participants: validated,
		}
	case ties > 0 && ties == len(validated):
		return domain.MatchOutcome{Kind: domain.OutcomeTie, Participants: validated}
	default:
		return domain.MatchOutcome{Kind: domain.OutcomeUnknown, Participants: validated}
	}
}
