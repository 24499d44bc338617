package service

import "errors"

// Wallet
var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidAmount     = errors.New("amount must be positive")
	ErrUserNotFound      = errors.New("user not found")
)

// Rounds and settlement
var (
	// ErrRoundClosed rejects a bet on a round that is settling, settled or past its end time
	ErrRoundClosed   = errors.New("round is closed")
	ErrRoundNotFound = errors.New("round not found")
	ErrInvalidPick   = errors.New("invalid pick")

	// ErrSettlementConflict means another invocation holds the round. Settle absorbs it.
	ErrSettlementConflict = errors.New("round claimed by another settlement")

	// ErrBatchCommit means payouts were rolled back; the next invocation retries
	ErrBatchCommit = errors.New("settlement batch commit failed")

	// ErrStuckRound means a round stayed in processing past the retry budget
	ErrStuckRound = errors.New("round stuck in processing")
)

// ErrStaleRound is the same condition as ErrRoundClosed
var ErrStaleRound = ErrRoundClosed

// Duels
var (
	ErrMatchNotFound     = errors.New("match not found")
	ErrNotParticipant    = errors.New("user is not part of this match")
	ErrNotYourTurn       = errors.New("not your turn")
	ErrInvalidMatchState = errors.New("match is not in a state that allows this action")
	ErrMatchConflict     = errors.New("match was modified concurrently")
	ErrInvalidDuel       = errors.New("invalid duel")
	ErrMoveTimedOut      = errors.New("move deadline has passed")
)

// Payments
var (
	ErrPaymentsDisabled         = errors.New("payments are disabled")
	ErrPaymentRequestNotFound   = errors.New("payment request not found")
	ErrPaymentRequestNotPending = errors.New("payment request is no longer pending")
	ErrPaymentRequestExpired    = errors.New("payment request has expired")
)
