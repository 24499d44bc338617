package service

import (
	"context"
	"time"

	"betengine/events"
	"betengine/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// MockUserRepository is a mock implementation of UserRepository
type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) GetByID(ctx context.Context, userID int64) (*models.User, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserRepository) Create(ctx context.Context, userID int64, username string, initialBalance int64) (*models.User, error) {
	args := m.Called(ctx, userID, username, initialBalance)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserRepository) AddBalance(ctx context.Context, userID int64, amount int64) (int64, error) {
	args := m.Called(ctx, userID, amount)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockUserRepository) DeductBalance(ctx context.Context, userID int64, amount int64) (int64, error) {
	args := m.Called(ctx, userID, amount)
	return args.Get(0).(int64), args.Error(1)
}

// MockBalanceHistoryRepository is a mock implementation of BalanceHistoryRepository
type MockBalanceHistoryRepository struct {
	mock.Mock
}

func (m *MockBalanceHistoryRepository) Record(ctx context.Context, history *models.BalanceHistory) error {
	args := m.Called(ctx, history)
	return args.Error(0)
}

func (m *MockBalanceHistoryRepository) GetByUser(ctx context.Context, userID int64, limit int) ([]*models.BalanceHistory, error) {
	args := m.Called(ctx, userID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.BalanceHistory), args.Error(1)
}

// MockRoundRepository is a mock implementation of RoundRepository
type MockRoundRepository struct {
	mock.Mock
}

func (m *MockRoundRepository) LockVariant(ctx context.Context, variant models.Variant) error {
	args := m.Called(ctx, variant)
	return args.Error(0)
}

func (m *MockRoundRepository) Create(ctx context.Context, round *models.Round) (bool, error) {
	args := m.Called(ctx, round)
	return args.Bool(0), args.Error(1)
}

func (m *MockRoundRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Round, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Round), args.Error(1)
}

func (m *MockRoundRepository) GetByIDForShare(ctx context.Context, id uuid.UUID) (*models.Round, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Round), args.Error(1)
}

func (m *MockRoundRepository) GetOpen(ctx context.Context, variant models.Variant) (*models.Round, error) {
	args := m.Called(ctx, variant)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Round), args.Error(1)
}

func (m *MockRoundRepository) GetLatestCompleted(ctx context.Context, variant models.Variant) (*models.Round, error) {
	args := m.Called(ctx, variant)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Round), args.Error(1)
}

func (m *MockRoundRepository) FindExpiredActive(ctx context.Context, variant models.Variant, now time.Time) (*models.Round, error) {
	args := m.Called(ctx, variant, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Round), args.Error(1)
}

func (m *MockRoundRepository) FindStaleProcessing(ctx context.Context, variant models.Variant, staleBefore time.Time) (*models.Round, error) {
	args := m.Called(ctx, variant, staleBefore)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Round), args.Error(1)
}

func (m *MockRoundRepository) Claim(ctx context.Context, id uuid.UUID, token uuid.UUID, now time.Time) (bool, error) {
	args := m.Called(ctx, id, token, now)
	return args.Bool(0), args.Error(1)
}

func (m *MockRoundRepository) Reclaim(ctx context.Context, id uuid.UUID, previousToken *uuid.UUID, token uuid.UUID, now time.Time) (bool, error) {
	args := m.Called(ctx, id, previousToken, token, now)
	return args.Bool(0), args.Error(1)
}

func (m *MockRoundRepository) HoldClaim(ctx context.Context, id uuid.UUID, token uuid.UUID) (bool, error) {
	args := m.Called(ctx, id, token)
	return args.Bool(0), args.Error(1)
}

func (m *MockRoundRepository) ReleaseClaim(ctx context.Context, id uuid.UUID, token uuid.UUID) (bool, error) {
	args := m.Called(ctx, id, token)
	return args.Bool(0), args.Error(1)
}

func (m *MockRoundRepository) MarkCompleted(ctx context.Context, id uuid.UUID, token uuid.UUID, now time.Time) (bool, error) {
	args := m.Called(ctx, id, token, now)
	return args.Bool(0), args.Error(1)
}

func (m *MockRoundRepository) ListRecent(ctx context.Context, variant models.Variant, limit int) ([]*models.Round, error) {
	args := m.Called(ctx, variant, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Round), args.Error(1)
}

// MockBetRepository is a mock implementation of BetRepository
type MockBetRepository struct {
	mock.Mock
}

func (m *MockBetRepository) Create(ctx context.Context, bet *models.Bet) error {
	args := m.Called(ctx, bet)
	return args.Error(0)
}

func (m *MockBetRepository) GetByID(ctx context.Context, id int64) (*models.Bet, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Bet), args.Error(1)
}

func (m *MockBetRepository) GetByUser(ctx context.Context, userID int64, limit int) ([]*models.Bet, error) {
	args := m.Called(ctx, userID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Bet), args.Error(1)
}

func (m *MockBetRepository) GetPendingByRound(ctx context.Context, roundID uuid.UUID) ([]*models.Bet, error) {
	args := m.Called(ctx, roundID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Bet), args.Error(1)
}

func (m *MockBetRepository) ApplySettlements(ctx context.Context, settlements []models.BetSettlement, batchSize int) ([]models.AppliedSettlement, error) {
	args := m.Called(ctx, settlements, batchSize)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.AppliedSettlement), args.Error(1)
}

// MockDuelRepository is a mock implementation of DuelRepository
type MockDuelRepository struct {
	mock.Mock
}

func (m *MockDuelRepository) Create(ctx context.Context, match *models.DuelMatch) error {
	args := m.Called(ctx, match)
	return args.Error(0)
}

func (m *MockDuelRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.DuelMatch, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.DuelMatch), args.Error(1)
}

func (m *MockDuelRepository) GetByPlayer(ctx context.Context, userID int64) ([]*models.DuelMatch, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.DuelMatch), args.Error(1)
}

func (m *MockDuelRepository) Update(ctx context.Context, match *models.DuelMatch) (bool, error) {
	args := m.Called(ctx, match)
	return args.Bool(0), args.Error(1)
}

func (m *MockDuelRepository) Delete(ctx context.Context, id uuid.UUID, version int64) (bool, error) {
	args := m.Called(ctx, id, version)
	return args.Bool(0), args.Error(1)
}

func (m *MockDuelRepository) ListOverdue(ctx context.Context, now time.Time, limit int) ([]*models.DuelMatch, error) {
	args := m.Called(ctx, now, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.DuelMatch), args.Error(1)
}

// MockPaymentRequestRepository is a mock implementation of PaymentRequestRepository
type MockPaymentRequestRepository struct {
	mock.Mock
}

func (m *MockPaymentRequestRepository) Create(ctx context.Context, request *models.PaymentRequest) error {
	args := m.Called(ctx, request)
	return args.Error(0)
}

func (m *MockPaymentRequestRepository) GetByID(ctx context.Context, id int64) (*models.PaymentRequest, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PaymentRequest), args.Error(1)
}

func (m *MockPaymentRequestRepository) GetByUser(ctx context.Context, userID int64, limit int) ([]*models.PaymentRequest, error) {
	args := m.Called(ctx, userID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.PaymentRequest), args.Error(1)
}

func (m *MockPaymentRequestRepository) Transition(ctx context.Context, id int64, from, to models.PaymentStatus, now time.Time) (bool, error) {
	args := m.Called(ctx, id, from, to, now)
	return args.Bool(0), args.Error(1)
}

func (m *MockPaymentRequestRepository) ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]*models.PaymentRequest, error) {
	args := m.Called(ctx, now, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.PaymentRequest), args.Error(1)
}

// MockSettingsRepository is a mock implementation of SettingsRepository
type MockSettingsRepository struct {
	mock.Mock
}

func (m *MockSettingsRepository) Get(ctx context.Context) (*models.PlatformSettings, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PlatformSettings), args.Error(1)
}

func (m *MockSettingsRepository) SetPaymentsEnabled(ctx context.Context, enabled bool) (*models.PlatformSettings, error) {
	args := m.Called(ctx, enabled)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PlatformSettings), args.Error(1)
}

// MockEventPublisher is a mock implementation of EventPublisher
type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) Publish(event events.Event) {
	m.Called(event)
}

// MockBroadcastMirror is a mock implementation of BroadcastMirror
type MockBroadcastMirror struct {
	mock.Mock
}

func (m *MockBroadcastMirror) Push(ctx context.Context, state models.BroadcastState) error {
	args := m.Called(ctx, state)
	return args.Error(0)
}

// MockSettlementObserver is a mock implementation of SettlementObserver
type MockSettlementObserver struct {
	mock.Mock
}

func (m *MockSettlementObserver) RoundSettled(variant models.Variant, bets int, payout int64, duration time.Duration) {
	m.Called(variant, bets, payout, duration)
}

func (m *MockSettlementObserver) SettlementConflict(variant models.Variant) {
	m.Called(variant)
}

func (m *MockSettlementObserver) StuckRound(variant models.Variant) {
	m.Called(variant)
}

// MockUnitOfWork is a mock implementation of UnitOfWork.
// Repositories are injected with the Set* helpers; events published through
// EventBus are staged unless a publisher is injected.
type MockUnitOfWork struct {
	mock.Mock

	userRepo           UserRepository
	balanceHistoryRepo BalanceHistoryRepository
	roundRepo          RoundRepository
	betRepo            BetRepository
	duelRepo           DuelRepository
	paymentRepo        PaymentRequestRepository
	settingsRepo       SettingsRepository
	eventBus           EventPublisher
	staged             *events.TransactionalBus
}

// SetRepositories injects the wallet repositories and, optionally, an event publisher
func (m *MockUnitOfWork) SetRepositories(userRepo UserRepository, balanceHistoryRepo BalanceHistoryRepository, eventBus EventPublisher) {
	m.userRepo = userRepo
	m.balanceHistoryRepo = balanceHistoryRepo
	m.eventBus = eventBus
}

func (m *MockUnitOfWork) SetRoundRepositories(roundRepo RoundRepository, betRepo BetRepository) {
	m.roundRepo = roundRepo
	m.betRepo = betRepo
}

func (m *MockUnitOfWork) SetDuelRepository(duelRepo DuelRepository) {
	m.duelRepo = duelRepo
}

func (m *MockUnitOfWork) SetPaymentRepositories(paymentRepo PaymentRequestRepository, settingsRepo SettingsRepository) {
	m.paymentRepo = paymentRepo
	m.settingsRepo = settingsRepo
}

// PublishedEvents returns events staged through the default event bus
func (m *MockUnitOfWork) PublishedEvents() []events.Event {
	if m.staged == nil {
		return nil
	}
	return m.staged.Pending()
}

func (m *MockUnitOfWork) Begin(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockUnitOfWork) Commit() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockUnitOfWork) Rollback() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockUnitOfWork) UserRepository() UserRepository                     { return m.userRepo }
func (m *MockUnitOfWork) BalanceHistoryRepository() BalanceHistoryRepository { return m.balanceHistoryRepo }
func (m *MockUnitOfWork) RoundRepository() RoundRepository                   { return m.roundRepo }
func (m *MockUnitOfWork) BetRepository() BetRepository                       { return m.betRepo }
func (m *MockUnitOfWork) DuelRepository() DuelRepository                     { return m.duelRepo }
func (m *MockUnitOfWork) PaymentRequestRepository() PaymentRequestRepository { return m.paymentRepo }
func (m *MockUnitOfWork) SettingsRepository() SettingsRepository             { return m.settingsRepo }

func (m *MockUnitOfWork) EventBus() EventPublisher {
	if m.eventBus != nil {
		return m.eventBus
	}
	if m.staged == nil {
		m.staged = events.NewTransactionalBus(events.NewBus())
	}
	return m.staged
}

// MockUnitOfWorkFactory is a mock implementation of UnitOfWorkFactory
type MockUnitOfWorkFactory struct {
	mock.Mock
}

func (m *MockUnitOfWorkFactory) Create() UnitOfWork {
	args := m.Called()
	return args.Get(0).(UnitOfWork)
}
