package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Variant identifies a house game that runs timed rounds
type Variant string

const (
	VariantDraw   Variant = "draw"
	VariantParity Variant = "parity"
)

// Variants lists every variant the settlement engine runs rounds for
var Variants = []Variant{VariantDraw, VariantParity}

// ParseVariant converts a path or config value into a Variant
func ParseVariant(s string) (Variant, error) {
	switch Variant(s) {
	case VariantDraw, VariantParity:
		return Variant(s), nil
	default:
		return "", fmt.Errorf("unknown game variant %q", s)
	}
}

// RoundStatus represents the lifecycle of a round.
// Transitions are one-directional: active -> processing -> completed.
type RoundStatus string

const (
	RoundStatusActive     RoundStatus = "active"
	RoundStatusProcessing RoundStatus = "processing"
	RoundStatusCompleted  RoundStatus = "completed"
)

// ParityLabel is the outcome (or pick) of a parity round
type ParityLabel string

const (
	ParityOdd  ParityLabel = "Odd"
	ParityEven ParityLabel = "Even"
	ParityBoth ParityLabel = "Both"
)

// ParityOf labels the parity of n1+n2
func ParityOf(n1, n2 int32) ParityLabel {
	if (n1+n2)%2 == 0 {
		return ParityEven
	}
	return ParityOdd
}

// Round is one timed betting cycle for a single variant
type Round struct {
	ID        uuid.UUID   `db:"id" json:"id"`
	Variant   Variant     `db:"variant" json:"variant"`
	Status    RoundStatus `db:"status" json:"status"`
	StartTime time.Time   `db:"start_time" json:"startTime"`
	EndTime   time.Time   `db:"end_time" json:"endTime"`

	// Draw rounds hold every drawn number in TargetValues and the first two in Winners.
	// Parity rounds hold [n1, n2] in TargetValues and their label in Parity.
	TargetValues []int32     `db:"target_values" json:"targetValues"`
	Winners      []int32     `db:"winners" json:"winners"`
	Parity       ParityLabel `db:"parity" json:"parity"`

	ClaimToken    *uuid.UUID `db:"claim_token" json:"-"`
	ClaimedAt     *time.Time `db:"claimed_at" json:"claimedAt,omitempty"`
	ClaimAttempts int        `db:"claim_attempts" json:"claimAttempts"`
	CompletedAt   *time.Time `db:"completed_at" json:"completedAt,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"createdAt"`
}

// IsExpired reports whether the betting window has closed (endTime <= now)
func (r *Round) IsExpired(now time.Time) bool {
	return !now.Before(r.EndTime)
}

// AcceptsBets reports whether a bet placed at now may join this round
func (r *Round) AcceptsBets(now time.Time) bool {
	return r.Status == RoundStatusActive && now.Before(r.EndTime)
}

// BroadcastState is the live, non-authoritative view of a round pushed to UI clients
type BroadcastState struct {
	GameID       string      `json:"gameId"`
	Variant      Variant     `json:"variant"`
	Status       RoundStatus `json:"status"`
	EndTime      int64       `json:"endTime"` // epoch milliseconds
	TargetValues []int32     `json:"targetValues"`
	Winners      []int32     `json:"winners"`
	Parity       ParityLabel `json:"parity,omitempty"`
}

// NewBroadcastState builds the mirror payload for a round.
// Targets are withheld while the round is still open.
func NewBroadcastState(r *Round) BroadcastState {
	state := BroadcastState{
		GameID:       r.ID.String(),
		Variant:      r.Variant,
		Status:       r.Status,
		EndTime:      r.EndTime.UnixMilli(),
		TargetValues: []int32{},
		Winners:      []int32{},
	}
	if r.Status == RoundStatusCompleted {
		state.TargetValues = r.TargetValues
		state.Winners = r.Winners
		state.Parity = r.Parity
	}
	return state
}
