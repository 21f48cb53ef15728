package ingest

import (
	"errors"
	"testing"
	"time"

	"sc2-custom-tracker/internal/domain"
)

func TestValidateParticipantsHeadToHead(t *testing.T) {
	roster := newStubRoster(101, 202)
	raw := rawH2H(9001, time.Now(), 101, 202)

	validated, err := ValidateParticipants(raw, roster)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if len(validated) != 2 {
		t.Fatalf("expected 2 validated participants, got %d", len(validated))
	}
	for _, p := range validated {
		if !p.IsCommunityMember {
			t.Fatalf("participant %d not marked as community member", p.CharacterID)
		}
		if p.BattleTag == "" || p.DisplayName == "" {
			t.Fatalf("participant %d missing roster metadata", p.CharacterID)
		}
	}
}

func TestValidateParticipantsDropsObservers(t *testing.T) {
	roster := newStubRoster(101, 202, 303)
	raw := domain.RawMatch{
		MatchID: 9002,
		Date:    time.Now(),
		Type:    domain.MatchTypeCustom,
		Participants: []domain.RawParticipant{
			{PlayerCharacterID: int64Ptr(101), Decision: domain.DecisionWin},
			{PlayerCharacterID: int64Ptr(303), Decision: domain.DecisionObserver},
		},
	}

	_, err := ValidateParticipants(raw, roster)
	if !errors.Is(err, ErrNotHeadToHead) {
		t.Fatalf("expected ErrNotHeadToHead, got %v", err)
	}
}

func TestValidateParticipantsRejectsUnknownPlayers(t *testing.T) {
	roster := newStubRoster(101)
	raw := rawH2H(9003, time.Now(), 101, 999)

	_, err := ValidateParticipants(raw, roster)
	if !errors.Is(err, ErrNotHeadToHead) {
		t.Fatalf("expected ErrNotHeadToHead, got %v", err)
	}
}

func TestValidateParticipantsRejectsMissingIdentity(t *testing.T) {
	roster := newStubRoster(101)
	raw := domain.RawMatch{
		MatchID: 9004,
		Type:    domain.MatchTypeCustom,
		Participants: []domain.RawParticipant{
			{PlayerCharacterID: int64Ptr(101), Decision: domain.DecisionWin},
			{PlayerCharacterID: nil, Decision: domain.DecisionLoss},
		},
	}

	_, err := ValidateParticipants(raw, roster)
	if !errors.Is(err, ErrNotHeadToHead) {
		t.Fatalf("expected ErrNotHeadToHead, got %v", err)
	}
}

func TestExtractOutcomeWinLoss(t *testing.T) {
	roster := newStubRoster(101, 202)
	raw := rawH2H(9005, time.Now(), 101, 202)

	validated, err := ValidateParticipants(raw, roster)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}

	outcome := ExtractOutcome(raw, validated)
	if outcome.Kind != domain.OutcomeWinLoss {
		t.Fatalf("expected win/loss outcome, got %s", outcome.Kind)
	}
	if outcome.Winner == nil || outcome.Winner.CharacterID != 101 {
		t.Fatalf("unexpected winner: %+v", outcome.Winner)
	}
	if outcome.Loser == nil || outcome.Loser.CharacterID != 202 {
		t.Fatalf("unexpected loser: %+v", outcome.Loser)
	}
}

func TestExtractOutcomeTie(t *testing.T) {
	roster := newStubRoster(101, 202)
	raw := domain.RawMatch{
		MatchID: 9006,
		Type:    domain.MatchTypeCustom,
		Participants: []domain.RawParticipant{
			{PlayerCharacterID: int64Ptr(101), Decision: domain.DecisionTie},
			{PlayerCharacterID: int64Ptr(202), Decision: domain.DecisionTie},
		},
	}

	validated, err := ValidateParticipants(raw, roster)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}

	outcome := ExtractOutcome(raw, validated)
	if outcome.Kind != domain.OutcomeTie {
		t.Fatalf("expected tie outcome, got %s", outcome.Kind)
	}
	if len(outcome.Participants) != 2 {
		t.Fatalf("expected 2 tie participants, got %d", len(outcome.Participants))
	}
}

func TestExtractOutcomeAmbiguousIsUnknown(t *testing.T) {
	roster := newStubRoster(101, 202)
	raw := domain.RawMatch{
		MatchID: 9007,
		Type:    domain.MatchTypeCustom,
		Participants: []domain.RawParticipant{
			{PlayerCharacterID: int64Ptr(101), Decision: domain.DecisionWin},
			{PlayerCharacterID: int64Ptr(202), Decision: domain.DecisionTie},
		},
	}

	validated, err := ValidateParticipants(raw, roster)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}

	outcome := ExtractOutcome(raw, validated)
	if outcome.Kind != domain.OutcomeUnknown {
		t.Fatalf("expected unknown outcome, got %s", outcome.Kind)
	}
}
