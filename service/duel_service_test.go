package service

import (
	"context"
	"testing"
	"time"

	"betengine/config"
	"betengine/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type duelFixture struct {
	ctx     context.Context
	now     time.Time
	factory *MockUnitOfWorkFactory
	uow     *MockUnitOfWork
	users   *MockUserRepository
	history *MockBalanceHistoryRepository
	duels   *MockDuelRepository
	service *duelService
}

func newDuelFixture() *duelFixture {
	f := &duelFixture{
		ctx:     context.Background(),
		now:     time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		factory: new(MockUnitOfWorkFactory),
		uow:     new(MockUnitOfWork),
		users:   new(MockUserRepository),
		history: new(MockBalanceHistoryRepository),
		duels:   new(MockDuelRepository),
	}
	f.uow.SetRepositories(f.users, f.history, nil)
	f.uow.SetDuelRepository(f.duels)

	f.factory.On("Create").Return(f.uow)
	f.uow.On("Begin", f.ctx).Return(nil)
	f.uow.On("Rollback").Return(nil)

	f.service = NewDuelService(f.factory, config.NewTestConfig()).(*duelService)
	f.service.now = func() time.Time { return f.now }
	return f
}

func (f *duelFixture) match(state models.DuelState) *models.DuelMatch {
	picker := int64(1)
	deadline := f.now.Add(20 * time.Second)
	return &models.DuelMatch{
		ID:            uuid.New(),
		Player1ID:     1,
		Player2ID:     2,
		State:         state,
		StakePerRound: 100,
		EscrowAmount:  500,
		Pool1:         500,
		Pool2:         500,
		Round:         1,
		MaxRounds:     30,
		PickerID:      &picker,
		MoveDeadline:  &deadline,
		Version:       3,
	}
}

func TestDuelService_Challenge(t *testing.T) {
	f := newDuelFixture()

	f.users.On("GetByID", f.ctx, int64(1)).Return(&models.User{ID: 1}, nil)
	f.users.On("GetByID", f.ctx, int64(2)).Return(&models.User{ID: 2}, nil)
	f.duels.On("Create", f.ctx, mock.MatchedBy(func(m *models.DuelMatch) bool {
		return m.State == models.DuelStateChallenged &&
			m.Player1ID == 1 && m.Player2ID == 2 &&
			m.Pool1 == 0 && m.Pool2 == 0 &&
			m.MaxRounds == 30
	})).Return(nil)
	f.uow.On("Commit").Return(nil)

	match, err := f.service.Challenge(f.ctx, 1, 2, 100, 500)

	require.NoError(t, err)
	assert.Equal(t, models.DuelStateChallenged, match.State)
	require.NotNil(t, match.MoveDeadline)
	assert.Equal(t, f.now.Add(30*time.Second), *match.MoveDeadline)
	// Nothing is escrowed until the opponent accepts
	f.users.AssertNotCalled(t, "DeductBalance", mock.Anything, mock.Anything, mock.Anything)
}

func TestDuelService_Challenge_Invalid(t *testing.T) {
	f := newDuelFixture()

	_, err := f.service.Challenge(f.ctx, 1, 1, 100, 500)
	assert.ErrorIs(t, err, ErrInvalidDuel)

	_, err = f.service.Challenge(f.ctx, 1, 2, 0, 500)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = f.service.Challenge(f.ctx, 1, 2, 600, 500)
	assert.ErrorIs(t, err, ErrInvalidDuel)
}

func TestDuelService_Accept_EscrowsBothPools(t *testing.T) {
	f := newDuelFixture()
	match := f.match(models.DuelStateChallenged)
	match.Pool1, match.Pool2 = 0, 0
	match.PickerID = nil

	f.duels.On("GetByID", f.ctx, match.ID).Return(match, nil)
	f.users.On("DeductBalance", f.ctx, int64(1), int64(500)).Return(int64(1500), nil)
	f.users.On("DeductBalance", f.ctx, int64(2), int64(500)).Return(int64(2500), nil)
	f.history.On("Record", f.ctx, mock.MatchedBy(func(h *models.BalanceHistory) bool {
		return h.TransactionType == models.TransactionTypeDuelEscrow && h.ChangeAmount == -500
	})).Return(nil).Twice()
	f.duels.On("Update", f.ctx, match).Return(true, nil)
	f.uow.On("Commit").Return(nil)

	accepted, err := f.service.Accept(f.ctx, match.ID, 2)

	require.NoError(t, err)
	assert.Equal(t, models.DuelStatePicking, accepted.State)
	assert.Equal(t, int64(500), accepted.Pool1)
	assert.Equal(t, int64(500), accepted.Pool2)
	require.NotNil(t, accepted.PickerID)
	assert.Equal(t, int64(1), *accepted.PickerID)
	f.users.AssertExpectations(t)
	f.history.AssertExpectations(t)
}

func TestDuelService_Accept_OnlyOpponent(t *testing.T) {
	f := newDuelFixture()
	match := f.match(models.DuelStateChallenged)
	f.duels.On("GetByID", f.ctx, match.ID).Return(match, nil)

	_, err := f.service.Accept(f.ctx, match.ID, 1)
	assert.ErrorIs(t, err, ErrNotYourTurn)

	_, err = f.service.Accept(f.ctx, match.ID, 99)
	assert.ErrorIs(t, err, ErrNotParticipant)
}

func TestDuelService_Pick(t *testing.T) {
	f := newDuelFixture()
	match := f.match(models.DuelStatePicking)

	f.duels.On("GetByID", f.ctx, match.ID).Return(match, nil)
	f.duels.On("Update", f.ctx, match).Return(true, nil)
	f.uow.On("Commit").Return(nil)

	_, err := f.service.Pick(f.ctx, match.ID, 2, 4)
	assert.ErrorIs(t, err, ErrNotYourTurn)

	_, err = f.service.Pick(f.ctx, match.ID, 1, 11)
	assert.ErrorIs(t, err, ErrInvalidPick)

	picked, err := f.service.Pick(f.ctx, match.ID, 1, 4)
	require.NoError(t, err)
	assert.Equal(t, models.DuelStateGuessing, picked.State)
	require.NotNil(t, picked.HiddenPick)
	assert.Equal(t, int32(4), *picked.HiddenPick)
}

func TestDuelService_Guess_Correct(t *testing.T) {
	f := newDuelFixture()
	match := f.match(models.DuelStateGuessing)
	hidden := int32(4)
	match.HiddenPick = &hidden

	f.duels.On("GetByID", f.ctx, match.ID).Return(match, nil)
	f.duels.On("Update", f.ctx, match).Return(true, nil)
	f.uow.On("Commit").Return(nil)

	result, err := f.service.Guess(f.ctx, match.ID, 2, 4)

	require.NoError(t, err)
	assert.True(t, result.Correct)
	assert.Equal(t, int64(100), result.Transferred)
	assert.False(t, result.Finished)
	assert.Equal(t, int64(400), match.Pool1)
	assert.Equal(t, int64(600), match.Pool2)
	assert.Equal(t, 1, match.Score2)
	// Roles swap for the next round
	assert.Equal(t, 2, match.Round)
	assert.Equal(t, int64(2), *match.PickerID)
	assert.Equal(t, models.DuelStatePicking, match.State)
	assert.Nil(t, match.HiddenPick)
}

func TestDuelService_Guess_Wrong(t *testing.T) {
	f := newDuelFixture()
	match := f.match(models.DuelStateGuessing)
	hidden := int32(4)
	match.HiddenPick = &hidden

	f.duels.On("GetByID", f.ctx, match.ID).Return(match, nil)
	f.duels.On("Update", f.ctx, match).Return(true, nil)
	f.uow.On("Commit").Return(nil)

	result, err := f.service.Guess(f.ctx, match.ID, 2, 5)

	require.NoError(t, err)
	assert.False(t, result.Correct)
	assert.Equal(t, int64(0), result.Transferred)
	assert.Equal(t, int64(500), match.Pool1)
	assert.Equal(t, int64(500), match.Pool2)
}

func TestDuelService_Guess_FinishesAtRoundCap(t *testing.T) {
	f := newDuelFixture()
	match := f.match(models.DuelStateGuessing)
	match.Round = 30
	hidden := int32(4)
	match.HiddenPick = &hidden

	f.duels.On("GetByID", f.ctx, match.ID).Return(match, nil)
	f.duels.On("Update", f.ctx, match).Return(true, nil)
	f.uow.On("Commit").Return(nil)

	result, err := f.service.Guess(f.ctx, match.ID, 2, 1)

	require.NoError(t, err)
	assert.True(t, result.Finished)
	assert.Equal(t, models.DuelStateFinished, match.State)
	require.NotNil(t, match.MoveDeadline)
	assert.Equal(t, f.now.Add(30*time.Second), *match.MoveDeadline)
}

func TestDuelService_Guess_VersionConflict(t *testing.T) {
	f := newDuelFixture()
	match := f.match(models.DuelStateGuessing)
	hidden := int32(4)
	match.HiddenPick = &hidden

	f.duels.On("GetByID", f.ctx, match.ID).Return(match, nil)
	f.duels.On("Update", f.ctx, match).Return(false, nil)

	_, err := f.service.Guess(f.ctx, match.ID, 2, 4)

	assert.ErrorIs(t, err, ErrMatchConflict)
	f.uow.AssertNotCalled(t, "Commit")
}

func TestDuelService_Acknowledge_RefundsAndDeletes(t *testing.T) {
	f := newDuelFixture()
	match := f.match(models.DuelStateFinished)
	match.Pool1, match.Pool2 = 300, 700
	match.Player1Ack = true

	f.duels.On("GetByID", f.ctx, match.ID).Return(match, nil)
	f.users.On("AddBalance", f.ctx, int64(1), int64(300)).Return(int64(1300), nil)
	f.users.On("AddBalance", f.ctx, int64(2), int64(700)).Return(int64(1700), nil)
	f.history.On("Record", f.ctx, mock.MatchedBy(func(h *models.BalanceHistory) bool {
		return h.TransactionType == models.TransactionTypeDuelRefund
	})).Return(nil).Twice()
	f.duels.On("Delete", f.ctx, match.ID, int64(3)).Return(true, nil)
	f.uow.On("Commit").Return(nil)

	closed, err := f.service.Acknowledge(f.ctx, match.ID, 2)

	require.NoError(t, err)
	assert.True(t, closed.BothAcknowledged())
	f.users.AssertExpectations(t)
	f.duels.AssertExpectations(t)
}

func TestDuelService_Acknowledge_FirstPlayerOnly(t *testing.T) {
	f := newDuelFixture()
	match := f.match(models.DuelStateFinished)

	f.duels.On("GetByID", f.ctx, match.ID).Return(match, nil)
	f.duels.On("Update", f.ctx, match).Return(true, nil)
	f.uow.On("Commit").Return(nil)

	acked, err := f.service.Acknowledge(f.ctx, match.ID, 1)

	require.NoError(t, err)
	assert.True(t, acked.Player1Ack)
	assert.False(t, acked.Player2Ack)
	f.users.AssertNotCalled(t, "AddBalance", mock.Anything, mock.Anything, mock.Anything)
	f.duels.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything, mock.Anything)
}

func TestDuelService_GetMatch_HidesPickFromGuesser(t *testing.T) {
	f := newDuelFixture()
	match := f.match(models.DuelStateGuessing)
	hidden := int32(4)
	match.HiddenPick = &hidden

	f.duels.On("GetByID", f.ctx, match.ID).Return(match, nil)

	seen, err := f.service.GetMatch(f.ctx, match.ID, 2)

	require.NoError(t, err)
	assert.Nil(t, seen.HiddenPick)
}

func TestDuelService_ExpireTimedOutMoves(t *testing.T) {
	f := newDuelFixture()

	// Guesser 2 missed the deadline: one stake moves to picker 1
	overdueGuess := f.match(models.DuelStateGuessing)
	hidden := int32(4)
	overdueGuess.HiddenPick = &hidden

	// Nobody answered this challenge
	overdueChallenge := f.match(models.DuelStateChallenged)

	// A player moved after the scan
	raced := f.match(models.DuelStatePicking)

	f.duels.On("ListOverdue", f.ctx, f.now, overdueScanLimit).
		Return([]*models.DuelMatch{overdueGuess, overdueChallenge, raced}, nil)
	f.duels.On("Update", f.ctx, overdueGuess).Return(true, nil)
	f.duels.On("Delete", f.ctx, overdueChallenge.ID, overdueChallenge.Version).Return(true, nil)
	f.duels.On("Update", f.ctx, raced).Return(false, nil)
	f.uow.On("Commit").Return(nil)

	changed, err := f.service.ExpireTimedOutMoves(f.ctx, f.now)

	require.NoError(t, err)
	assert.Equal(t, 2, changed)

	assert.Equal(t, int64(600), overdueGuess.Pool1)
	assert.Equal(t, int64(400), overdueGuess.Pool2)
	assert.Equal(t, 1, overdueGuess.Score1)
	assert.Equal(t, models.DuelStatePicking, overdueGuess.State)
	assert.Equal(t, int64(2), *overdueGuess.PickerID)
	f.duels.AssertExpectations(t)
}

func TestDuelService_ExpireTimedOutMoves_ClosesUnacknowledgedMatch(t *testing.T) {
	f := newDuelFixture()
	match := f.match(models.DuelStateFinished)
	match.Pool1, match.Pool2 = 800, 200
	match.Player1Ack = true

	f.duels.On("ListOverdue", f.ctx, f.now, overdueScanLimit).Return([]*models.DuelMatch{match}, nil)
	f.users.On("AddBalance", f.ctx, int64(1), int64(800)).Return(int64(1800), nil)
	f.users.On("AddBalance", f.ctx, int64(2), int64(200)).Return(int64(1200), nil)
	f.history.On("Record", f.ctx, mock.MatchedBy(func(h *models.BalanceHistory) bool {
		return h.TransactionType == models.TransactionTypeDuelRefund
	})).Return(nil).Twice()
	f.duels.On("Delete", f.ctx, match.ID, int64(3)).Return(true, nil)
	f.uow.On("Commit").Return(nil)

	changed, err := f.service.ExpireTimedOutMoves(f.ctx, f.now)

	require.NoError(t, err)
	assert.Equal(t, 1, changed)
	f.users.AssertExpectations(t)
	f.history.AssertExpectations(t)
	f.duels.AssertExpectations(t)
}

func TestDuelService_ExpireTimedOutMoves_AcknowledgedConcurrently(t *testing.T) {
	f := newDuelFixture()
	match := f.match(models.DuelStateFinished)
	match.Pool1, match.Pool2 = 0, 1000

	f.duels.On("ListOverdue", f.ctx, f.now, overdueScanLimit).Return([]*models.DuelMatch{match}, nil)
	f.users.On("AddBalance", f.ctx, int64(2), int64(1000)).Return(int64(2000), nil)
	f.history.On("Record", f.ctx, mock.Anything).Return(nil)
	f.duels.On("Delete", f.ctx, match.ID, int64(3)).Return(false, nil)

	changed, err := f.service.ExpireTimedOutMoves(f.ctx, f.now)

	require.NoError(t, err)
	assert.Equal(t, 0, changed)
	f.users.AssertNotCalled(t, "AddBalance", f.ctx, int64(1), mock.Anything)
	f.uow.AssertNotCalled(t, "Commit")
}
