package service

import (
	"context"
	"time"

	"betengine/events"
	"betengine/models"

	"github.com/google/uuid"
)

// UserRepository defines the interface for wallet data access.
// Balances only change through AddBalance and DeductBalance, which are atomic in the store.
type UserRepository interface {
	// GetByID retrieves a user, returning nil if not found
	GetByID(ctx context.Context, userID int64) (*models.User, error)

	// Create creates a new user with the initial balance
	Create(ctx context.Context, userID int64, username string, initialBalance int64) (*models.User, error)

	// AddBalance increments a balance and returns the new value
	AddBalance(ctx context.Context, userID int64, amount int64) (int64, error)

	// DeductBalance decrements a balance only if it covers amount, returning the new value.
	// Fails with ErrInsufficientFunds otherwise.
	DeductBalance(ctx context.Context, userID int64, amount int64) (int64, error)
}

// BalanceHistoryRepository defines the interface for balance history tracking
type BalanceHistoryRepository interface {
	// Record creates a new balance history entry
	Record(ctx context.Context, history *models.BalanceHistory) error

	// GetByUser returns the most recent balance history for a user
	GetByUser(ctx context.Context, userID int64, limit int) ([]*models.BalanceHistory, error)
}

// RoundRepository defines the interface for round data access.
// Status changes are conditional updates that report whether they won.
type RoundRepository interface {
	// LockVariant serialises round creation for a variant until the transaction ends
	LockVariant(ctx context.Context, variant models.Variant) error

	// Create inserts a new active round. It returns false when another open round
	// already exists for the variant.
	Create(ctx context.Context, round *models.Round) (bool, error)

	// GetByID retrieves a round, returning nil if not found
	GetByID(ctx context.Context, id uuid.UUID) (*models.Round, error)

	// GetByIDForShare retrieves a round and holds a share lock on it until the transaction ends
	GetByIDForShare(ctx context.Context, id uuid.UUID) (*models.Round, error)

	// GetOpen returns the active or processing round for a variant
	GetOpen(ctx context.Context, variant models.Variant) (*models.Round, error)

	// GetLatestCompleted returns the most recently completed round for a variant
	GetLatestCompleted(ctx context.Context, variant models.Variant) (*models.Round, error)

	// FindExpiredActive returns at most one active round with endTime <= now
	FindExpiredActive(ctx context.Context, variant models.Variant, now time.Time) (*models.Round, error)

	// FindStaleProcessing returns at most one processing round that was released
	// or claimed before staleBefore
	FindStaleProcessing(ctx context.Context, variant models.Variant, staleBefore time.Time) (*models.Round, error)

	// Claim moves an expired active round to processing under token
	Claim(ctx context.Context, id uuid.UUID, token uuid.UUID, now time.Time) (bool, error)

	// Reclaim takes over a processing round still held by previousToken (nil when released)
	Reclaim(ctx context.Context, id uuid.UUID, previousToken *uuid.UUID, token uuid.UUID, now time.Time) (bool, error)

	// HoldClaim locks a processing round for update if token still holds it
	HoldClaim(ctx context.Context, id uuid.UUID, token uuid.UUID) (bool, error)

	// ReleaseClaim clears token from a processing round so the next pass can resume it
	ReleaseClaim(ctx context.Context, id uuid.UUID, token uuid.UUID) (bool, error)

	// MarkCompleted moves a processing round held by token to completed
	MarkCompleted(ctx context.Context, id uuid.UUID, token uuid.UUID, now time.Time) (bool, error)

	// ListRecent returns the latest rounds for a variant, newest first
	ListRecent(ctx context.Context, variant models.Variant, limit int) ([]*models.Round, error)
}

// BetRepository defines the interface for bet data access
type BetRepository interface {
	// Create inserts a pending bet
	Create(ctx context.Context, bet *models.Bet) error

	// GetByID retrieves a bet, returning nil if not found
	GetByID(ctx context.Context, id int64) (*models.Bet, error)

	// GetByUser returns the most recent bets for a user
	GetByUser(ctx context.Context, userID int64, limit int) ([]*models.Bet, error)

	// GetPendingByRound returns every pending bet for a round
	GetPendingByRound(ctx context.Context, roundID uuid.UUID) ([]*models.Bet, error)

	// ApplySettlements writes staged outcomes in chunks of at most batchSize statements.
	// Each bet is only updated, and its owner only credited, if it is still pending.
	ApplySettlements(ctx context.Context, settlements []models.BetSettlement, batchSize int) ([]models.AppliedSettlement, error)
}

// DuelRepository defines the interface for duel match data access.
// Update and Delete are guarded by the match version.
type DuelRepository interface {
	Create(ctx context.Context, match *models.DuelMatch) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.DuelMatch, error)
	GetByPlayer(ctx context.Context, userID int64) ([]*models.DuelMatch, error)

	// Update persists match fields if match.Version is still current and bumps the version
	Update(ctx context.Context, match *models.DuelMatch) (bool, error)

	// Delete removes a match if match.Version is still current
	Delete(ctx context.Context, id uuid.UUID, version int64) (bool, error)

	// ListOverdue returns matches whose move or acknowledgement deadline is before now
	ListOverdue(ctx context.Context, now time.Time, limit int) ([]*models.DuelMatch, error)
}

// PaymentRequestRepository defines the interface for deposit and withdrawal requests
type PaymentRequestRepository interface {
	Create(ctx context.Context, request *models.PaymentRequest) error
	GetByID(ctx context.Context, id int64) (*models.PaymentRequest, error)
	GetByUser(ctx context.Context, userID int64, limit int) ([]*models.PaymentRequest, error)

	// Transition moves a request from one status to another, only if it is still in from
	Transition(ctx context.Context, id int64, from, to models.PaymentStatus, now time.Time) (bool, error)

	// ListExpiredPending returns pending requests whose session expired before now
	ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]*models.PaymentRequest, error)
}

// SettingsRepository defines the interface for platform-wide settings
type SettingsRepository interface {
	// Get returns the settings row, holding a share lock so a concurrent toggle waits
	Get(ctx context.Context) (*models.PlatformSettings, error)

	// SetPaymentsEnabled updates the payments switch
	SetPaymentsEnabled(ctx context.Context, enabled bool) (*models.PlatformSettings, error)
}

// EventPublisher defines the interface for publishing events
type EventPublisher interface {
	Publish(event events.Event)
}

// UserService defines the interface for wallet holder operations
type UserService interface {
	// GetOrCreateUser retrieves an existing user or creates one with the starting balance
	GetOrCreateUser(ctx context.Context, userID int64, username string) (*models.User, error)

	// GetUser retrieves a user
	GetUser(ctx context.Context, userID int64) (*models.User, error)

	// GetBalanceHistory returns recent wallet changes
	GetBalanceHistory(ctx context.Context, userID int64, limit int) ([]*models.BalanceHistory, error)
}

// PlaceBetRequest describes a stake against a round.
// Picks is used by the draw game and ParityPick by the parity game.
type PlaceBetRequest struct {
	UserID     int64
	RoundID    uuid.UUID
	Picks      []int32
	ParityPick models.ParityLabel
	Stake      int64
}

// BetService defines the bet ledger operations
type BetService interface {
	// PlaceBet debits the stake and records a pending bet in one transaction
	PlaceBet(ctx context.Context, req PlaceBetRequest) (*models.Bet, error)

	// GetCurrentRound returns the open round for a variant, or nil
	GetCurrentRound(ctx context.Context, variant models.Variant) (*models.Round, error)

	// GetRecentRounds returns the latest rounds for a variant
	GetRecentRounds(ctx context.Context, variant models.Variant, limit int) ([]*models.Round, error)

	// GetBetsByUser returns a user's latest bets
	GetBetsByUser(ctx context.Context, userID int64, limit int) ([]*models.Bet, error)
}

// SettlementService defines the settlement engine entry point
type SettlementService interface {
	// Settle runs one settlement pass for a variant. It is safe to call
	// repeatedly and concurrently.
	Settle(ctx context.Context, variant models.Variant, now time.Time) (*SettlementResult, error)
}

// DuelService defines the duel match operations
type DuelService interface {
	Challenge(ctx context.Context, challengerID, opponentID int64, stakePerRound, escrow int64) (*models.DuelMatch, error)
	Accept(ctx context.Context, matchID uuid.UUID, userID int64) (*models.DuelMatch, error)
	Decline(ctx context.Context, matchID uuid.UUID, userID int64) error
	Pick(ctx context.Context, matchID uuid.UUID, userID int64, number int32) (*models.DuelMatch, error)
	Guess(ctx context.Context, matchID uuid.UUID, userID int64, number int32) (*models.DuelMoveResult, error)
	Acknowledge(ctx context.Context, matchID uuid.UUID, userID int64) (*models.DuelMatch, error)
	GetMatch(ctx context.Context, matchID uuid.UUID, userID int64) (*models.DuelMatch, error)

	// ExpireTimedOutMoves applies forfeits for every overdue move and returns how many matches changed
	ExpireTimedOutMoves(ctx context.Context, now time.Time) (int, error)
}

// PaymentService defines deposit and withdrawal request handling
type PaymentService interface {
	RequestDeposit(ctx context.Context, userID int64, amount int64) (*models.PaymentRequest, error)
	RequestWithdrawal(ctx context.Context, userID int64, amount int64) (*models.PaymentRequest, error)
	Approve(ctx context.Context, requestID int64) (*models.PaymentRequest, error)
	Decline(ctx context.Context, requestID int64) (*models.PaymentRequest, error)
	GetRequestsByUser(ctx context.Context, userID int64, limit int) ([]*models.PaymentRequest, error)

	// ExpireStale refunds and expires pending requests older than the session window
	ExpireStale(ctx context.Context, now time.Time) (int, error)

	// SetPaymentsEnabled toggles the platform-wide payments switch
	SetPaymentsEnabled(ctx context.Context, enabled bool) (*models.PlatformSettings, error)
}

// BroadcastMirror pushes live round state to UI clients. It is never read back.
type BroadcastMirror interface {
	Push(ctx context.Context, state models.BroadcastState) error
}

// SettlementObserver receives settlement outcomes for metrics
type SettlementObserver interface {
	RoundSettled(variant models.Variant, bets int, payout int64, duration time.Duration)
	SettlementConflict(variant models.Variant)
	StuckRound(variant models.Variant)
}

// UnitOfWork manages a transaction and the repositories bound to it
type UnitOfWork interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) error

	// Commit commits the transaction and flushes staged events
	Commit() error

	// Rollback rolls back the transaction; a no-op after Commit
	Rollback() error

	// Repository getters
	UserRepository() UserRepository
	BalanceHistoryRepository() BalanceHistoryRepository
	RoundRepository() RoundRepository
	BetRepository() BetRepository
	DuelRepository() DuelRepository
	PaymentRequestRepository() PaymentRequestRepository
	SettingsRepository() SettingsRepository
	EventBus() EventPublisher
}

// UnitOfWorkFactory creates UnitOfWork instances
type UnitOfWorkFactory interface {
	Create() UnitOfWork
}
