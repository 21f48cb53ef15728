package domain

import (
	"strconv"
	"time"
)

// SchemaVersion is stamped onto every processed match so stored rows can be
// migrated if the shape ever changes.
const SchemaVersion = "1"

type MatchType string

const (
	MatchTypeCustom MatchType = "CUSTOM"
	MatchTypeLadder MatchType = "LADDER"
)

type ParticipantDecision string

const (
	DecisionWin      ParticipantDecision = "WIN"
	DecisionLoss     ParticipantDecision = "LOSS"
	DecisionTie      ParticipantDecision = "TIE"
	DecisionObserver ParticipantDecision = "OBSERVER"
)

// Decisive reports whether the decision settles the game for this
// participant. Ties are competitive but not decisive; observers are neither.
func (d ParticipantDecision) Decisive() bool {
	return d == DecisionWin || d == DecisionLoss
}

// Competitive reports whether the participant actually played the game,
// as opposed to watching it.
func (d ParticipantDecision) Competitive() bool {
	return d == DecisionWin || d == DecisionLoss || d == DecisionTie
}

type CommunityPlayer struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	BattleTag  string     `json:"battleTag"`
	Rating     *int       `json:"rating,omitempty"`
	LastPlayed *time.Time `json:"lastPlayed,omitempty"`
}

// CharacterID parses the roster id as the upstream ladder character id.
func (p CommunityPlayer) CharacterID() (int64, error) {
	return strconv.ParseInt(p.ID, 10, 64)
}

type RawParticipant struct {
	PlayerCharacterID *int64
	Decision          ParticipantDecision
}

type RawMatch struct {
	MatchID         int64
	Date            time.Time
	Type            MatchType
	MapID           int64
	MapName         string
	DurationSeconds *int
	Participants    []RawParticipant
}

type ValidatedParticipant struct {
	CharacterID       int64
	BattleTag         string
	DisplayName       string
	Rating            *int
	IsCommunityMember bool
}

type OutcomeKind string

const (
	OutcomeWinLoss OutcomeKind = "WIN_LOSS"
	OutcomeTie     OutcomeKind = "TIE"
	OutcomeUnknown OutcomeKind = "UNKNOWN"
)

// MatchOutcome is a tagged union over the three outcome shapes. Winner and
// Loser are set only when Kind is OutcomeWinLoss; Participants always carries
// the validated participants the outcome was derived from.
type MatchOutcome struct {
	Kind         OutcomeKind
	Winner       *ValidatedParticipant
	Loser        *ValidatedParticipant
	Participants []ValidatedParticipant
}

type ConfidenceFactors struct {
	HasValidCharacterIDs  bool `json:"hasValidCharacterIds"`
	BothCommunityMembers  bool `json:"bothCommunityMembers"`
	BothActiveRecently    bool `json:"bothActiveRecently"`
	HasReasonableDuration bool `json:"hasReasonableDuration"`
	RecognizedMap         bool `json:"recognizedMap"`
	SimilarSkillLevel     bool `json:"similarSkillLevel"`
}

type ConfidenceTier string

const (
	TierLow    ConfidenceTier = "low"
	TierMedium ConfidenceTier = "medium"
	TierHigh   ConfidenceTier = "high"
)

func (t ConfidenceTier) rank() int {
	switch t {
	case TierHigh:
		return 2
	case TierMedium:
		return 1
	default:
		return 0
	}
}

// AtLeast reports whether t meets or exceeds floor in the
// low < medium < high order.
func (t ConfidenceTier) AtLeast(floor ConfidenceTier) bool {
	return t.rank() >= floor.rank()
}

// ParseConfidenceTier maps a config string onto a tier, defaulting unknown
// values to low.
func ParseConfidenceTier(s string) (ConfidenceTier, bool) {
	switch ConfidenceTier(s) {
	case TierLow, TierMedium, TierHigh:
		return ConfidenceTier(s), true
	}
	return TierLow, false
}

// ProcessedMatch is the unit of storage: a fully validated, scored
// head-to-head custom match between two community members.
type ProcessedMatch struct {
	MatchID           int64
	MatchDate         time.Time
	DateKey           string
	MapName           string
	DurationSeconds   *int
	Participants      []ValidatedParticipant
	Outcome           MatchOutcome
	Confidence        ConfidenceTier
	ConfidenceFactors ConfidenceFactors
	ProcessedAt       time.Time
	SchemaVersion     string
}

// DateKeyFor derives the storage partition key from a match timestamp.
// UTC truncation keeps the mapping deterministic across retries.
func DateKeyFor(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

type StageError struct {
	Stage string `json:"stage"`
	Error string `json:"error"`
}

type IngestionRunResult struct {
	RunID                        string       `json:"runId"`
	MatchesDiscovered            int          `json:"matchesDiscovered"`
	MatchesWithValidParticipants int          `json:"matchesWithValidParticipants"`
	MatchesMeetingThreshold      int          `json:"matchesMeetingThreshold"`
	NewMatchesStored             int          `json:"newMatchesStored"`
	DuplicatesSkipped            int          `json:"duplicatesSkipped"`
	Errors                       []StageError `json:"errors"`
	Timestamp                    time.Time    `json:"timestamp"`
	DurationMs                   int64        `json:"durationMs"`
}

type OrchestratorConfig struct {
	CutoffDate          string `json:"cutoffDate"`
	MinConfidence       string `json:"minConfidence"`
	PollIntervalSeconds int    `json:"pollIntervalSeconds"`
	BatchSize           int    `json:"batchSize"`
}

type OrchestratorStatus struct {
	IsRunning bool               `json:"isRunning"`
	UptimeMs  int64              `json:"uptimeMs"`
	Config    OrchestratorConfig `json:"config"`
}
