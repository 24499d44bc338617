package models

import (
	"time"

	"github.com/google/uuid"
)

// DuelState represents where a duel match is in its move cycle
type DuelState string

const (
	DuelStateChallenged DuelState = "challenged" // waiting for the opponent to accept; nothing escrowed
	DuelStatePicking    DuelState = "picking"
	DuelStateGuessing   DuelState = "guessing"
	DuelStateFinished   DuelState = "finished" // round cap reached or a pool ran dry; waiting for acknowledgements
)

// DuelMatch is a two-player guess-the-number match with escrowed pools.
// Every write is guarded by Version.
type DuelMatch struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	Player1ID     int64      `db:"player1_id" json:"player1Id"`
	Player2ID     int64      `db:"player2_id" json:"player2Id"`
	State         DuelState  `db:"state" json:"state"`
	StakePerRound int64      `db:"stake_per_round" json:"stakePerRound"`
	EscrowAmount  int64      `db:"escrow_amount" json:"escrowAmount"`
	Pool1         int64      `db:"pool1" json:"pool1"`
	Pool2         int64      `db:"pool2" json:"pool2"`
	Score1        int        `db:"score1" json:"score1"`
	Score2        int        `db:"score2" json:"score2"`
	Round         int        `db:"round" json:"round"`
	MaxRounds     int        `db:"max_rounds" json:"maxRounds"`
	PickerID      *int64     `db:"picker_id" json:"pickerId,omitempty"`
	HiddenPick    *int32     `db:"hidden_pick" json:"hiddenPick,omitempty"`
	MoveDeadline  *time.Time `db:"move_deadline" json:"moveDeadline,omitempty"`
	Player1Ack    bool       `db:"player1_ack" json:"player1Ack"`
	Player2Ack    bool       `db:"player2_ack" json:"player2Ack"`
	Version       int64      `db:"version" json:"version"`
	CreatedAt     time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updatedAt"`
}

// IsPlayer reports whether userID takes part in the match
func (m *DuelMatch) IsPlayer(userID int64) bool {
	return userID == m.Player1ID || userID == m.Player2ID
}

// OpponentOf returns the other player's id
func (m *DuelMatch) OpponentOf(userID int64) int64 {
	if userID == m.Player1ID {
		return m.Player2ID
	}
	return m.Player1ID
}

// Guesser returns the player who is not hiding a number this round
func (m *DuelMatch) Guesser() int64 {
	if m.PickerID == nil {
		return 0
	}
	return m.OpponentOf(*m.PickerID)
}

// Mover returns the player whose action the match is waiting on, or 0 if none
func (m *DuelMatch) Mover() int64 {
	switch m.State {
	case DuelStateChallenged:
		return m.Player2ID
	case DuelStatePicking:
		if m.PickerID != nil {
			return *m.PickerID
		}
	case DuelStateGuessing:
		return m.Guesser()
	}
	return 0
}

// PoolOf returns the escrowed pool remaining for a player
func (m *DuelMatch) PoolOf(userID int64) int64 {
	if userID == m.Player1ID {
		return m.Pool1
	}
	return m.Pool2
}

// MoveStake moves up to one round's stake from one player's pool to the other's
// and credits the receiver with a point. It returns the amount moved.
func (m *DuelMatch) MoveStake(from int64) int64 {
	amount := m.StakePerRound
	if pool := m.PoolOf(from); pool < amount {
		amount = pool
	}
	if from == m.Player1ID {
		m.Pool1 -= amount
		m.Pool2 += amount
		m.Score2++
	} else {
		m.Pool2 -= amount
		m.Pool1 += amount
		m.Score1++
	}
	return amount
}

// Acknowledge records a player's acknowledgement of the final result
func (m *DuelMatch) Acknowledge(userID int64) {
	if userID == m.Player1ID {
		m.Player1Ack = true
	} else {
		m.Player2Ack = true
	}
}

// BothAcknowledged reports whether the match can be closed out
func (m *DuelMatch) BothAcknowledged() bool {
	return m.Player1Ack && m.Player2Ack
}

// DuelMoveResult is returned from a guess or forced forfeit
type DuelMoveResult struct {
	Match       *DuelMatch
	Correct     bool
	Transferred int64
	Finished    bool
}
