package api

import (
	"context"
	"time"

	"betengine/models"
	"betengine/service"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

type mockUserService struct {
	mock.Mock
}

func (m *mockUserService) GetOrCreateUser(ctx context.Context, userID int64, username string) (*models.User, error) {
	args := m.Called(ctx, userID, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *mockUserService) GetUser(ctx context.Context, userID int64) (*models.User, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *mockUserService) GetBalanceHistory(ctx context.Context, userID int64, limit int) ([]*models.BalanceHistory, error) {
	args := m.Called(ctx, userID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.BalanceHistory), args.Error(1)
}

type mockBetService struct {
	mock.Mock
}

func (m *mockBetService) PlaceBet(ctx context.Context, req service.PlaceBetRequest) (*models.Bet, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Bet), args.Error(1)
}

func (m *mockBetService) GetCurrentRound(ctx context.Context, variant models.Variant) (*models.Round, error) {
	args := m.Called(ctx, variant)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Round), args.Error(1)
}

func (m *mockBetService) GetRecentRounds(ctx context.Context, variant models.Variant, limit int) ([]*models.Round, error) {
	args := m.Called(ctx, variant, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Round), args.Error(1)
}

func (m *mockBetService) GetBetsByUser(ctx context.Context, userID int64, limit int) ([]*models.Bet, error) {
	args := m.Called(ctx, userID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Bet), args.Error(1)
}

type mockSettlementService struct {
	mock.Mock
}

func (m *mockSettlementService) Settle(ctx context.Context, variant models.Variant, now time.Time) (*service.SettlementResult, error) {
	args := m.Called(ctx, variant, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.SettlementResult), args.Error(1)
}

type mockDuelService struct {
	mock.Mock
}

func (m *mockDuelService) match(args mock.Arguments) (*models.DuelMatch, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.DuelMatch), args.Error(1)
}

func (m *mockDuelService) Challenge(ctx context.Context, challengerID, opponentID int64, stakePerRound, escrow int64) (*models.DuelMatch, error) {
	return m.match(m.Called(ctx, challengerID, opponentID, stakePerRound, escrow))
}

func (m *mockDuelService) Accept(ctx context.Context, matchID uuid.UUID, userID int64) (*models.DuelMatch, error) {
	return m.match(m.Called(ctx, matchID, userID))
}

func (m *mockDuelService) Decline(ctx context.Context, matchID uuid.UUID, userID int64) error {
	return m.Called(ctx, matchID, userID).Error(0)
}

func (m *mockDuelService) Pick(ctx context.Context, matchID uuid.UUID, userID int64, number int32) (*models.DuelMatch, error) {
	return m.match(m.Called(ctx, matchID, userID, number))
}

func (m *mockDuelService) Guess(ctx context.Context, matchID uuid.UUID, userID int64, number int32) (*models.DuelMoveResult, error) {
	args := m.Called(ctx, matchID, userID, number)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.DuelMoveResult), args.Error(1)
}

func (m *mockDuelService) Acknowledge(ctx context.Context, matchID uuid.UUID, userID int64) (*models.DuelMatch, error) {
	return m.match(m.Called(ctx, matchID, userID))
}

func (m *mockDuelService) GetMatch(ctx context.Context, matchID uuid.UUID, userID int64) (*models.DuelMatch, error) {
	return m.match(m.Called(ctx, matchID, userID))
}

func (m *mockDuelService) ExpireTimedOutMoves(ctx context.Context, now time.Time) (int, error) {
	args := m.Called(ctx, now)
	return args.Int(0), args.Error(1)
}

type mockPaymentService struct {
	mock.Mock
}

func (m *mockPaymentService) request(args mock.Arguments) (*models.PaymentRequest, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PaymentRequest), args.Error(1)
}

func (m *mockPaymentService) RequestDeposit(ctx context.Context, userID int64, amount int64) (*models.PaymentRequest, error) {
	return m.request(m.Called(ctx, userID, amount))
}

func (m *mockPaymentService) RequestWithdrawal(ctx context.Context, userID int64, amount int64) (*models.PaymentRequest, error) {
	return m.request(m.Called(ctx, userID, amount))
}

func (m *mockPaymentService) Approve(ctx context.Context, requestID int64) (*models.PaymentRequest, error) {
	return m.request(m.Called(ctx, requestID))
}

func (m *mockPaymentService) Decline(ctx context.Context, requestID int64) (*models.PaymentRequest, error) {
	return m.request(m.Called(ctx, requestID))
}

func (m *mockPaymentService) GetRequestsByUser(ctx context.Context, userID int64, limit int) ([]*models.PaymentRequest, error) {
	args := m.Called(ctx, userID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.PaymentRequest), args.Error(1)
}

func (m *mockPaymentService) ExpireStale(ctx context.Context, now time.Time) (int, error) {
	args := m.Called(ctx, now)
	return args.Int(0), args.Error(1)
}

func (m *mockPaymentService) SetPaymentsEnabled(ctx context.Context, enabled bool) (*models.PlatformSettings, error) {
	args := m.Called(ctx, enabled)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PlatformSettings), args.Error(1)
}
