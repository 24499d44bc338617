package models

import (
	"time"

	"github.com/google/uuid"
)

// BetStatus represents the settlement status of a bet.
// A bet moves from pending to exactly one terminal status.
type BetStatus string

const (
	BetStatusPending BetStatus = "pending"
	BetStatusWin     BetStatus = "win"
	BetStatusPartial BetStatus = "partial"
	BetStatusLoss    BetStatus = "loss"
)

// IsTerminal reports whether the status is a settled outcome
func (s BetStatus) IsTerminal() bool {
	return s == BetStatusWin || s == BetStatusPartial || s == BetStatusLoss
}

// Bet is one user's stake on one round
type Bet struct {
	ID         int64       `db:"id" json:"id"`
	UserID     int64       `db:"user_id" json:"userId"`
	RoundID    uuid.UUID   `db:"round_id" json:"roundId"`
	Variant    Variant     `db:"variant" json:"variant"`
	Stake      int64       `db:"stake" json:"stake"`
	Picks      []int32     `db:"picks" json:"picks,omitempty"`             // draw game: exactly two numbers
	ParityPick ParityLabel `db:"parity_pick" json:"parityPick,omitempty"` // parity game
	Status     BetStatus   `db:"status" json:"status"`
	Payout     int64       `db:"payout" json:"payout"`
	PlacedAt   time.Time   `db:"placed_at" json:"placedAt"`
	SettledAt  *time.Time  `db:"settled_at" json:"settledAt,omitempty"`
}

// BetSettlement is a staged outcome for a pending bet
type BetSettlement struct {
	BetID   int64
	UserID  int64
	RoundID uuid.UUID
	Status  BetStatus
	Payout  int64
}

// AppliedSettlement reports what happened when a staged settlement was written.
// Applied is false when the bet had already left pending.
type AppliedSettlement struct {
	BetSettlement
	Applied      bool
	BalanceAfter int64 // only meaningful when Applied and Payout > 0
}
