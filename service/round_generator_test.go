package service

import (
	"context"
	"testing"
	"time"

	"betengine/config"
	"betengine/events"
	"betengine/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestRoundGenerator_Generate_Draw(t *testing.T) {
	cfg := config.NewTestConfig()
	gen := NewRoundGenerator(nil, cfg)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	round, err := gen.Generate(models.VariantDraw, now)
	require.NoError(t, err)

	assert.Equal(t, models.RoundStatusActive, round.Status)
	assert.Equal(t, now, round.StartTime)
	assert.Equal(t, now.Add(cfg.RoundDuration), round.EndTime)
	require.Len(t, round.TargetValues, cfg.DrawCount)
	assert.Equal(t, round.TargetValues[:2], round.Winners)
	assert.Empty(t, round.Parity)
}

func TestRoundGenerator_Generate_Parity(t *testing.T) {
	cfg := config.NewTestConfig()
	gen := NewRoundGenerator(nil, cfg)

	for i := 0; i < 50; i++ {
		round, err := gen.Generate(models.VariantParity, time.Now())
		require.NoError(t, err)
		require.Len(t, round.TargetValues, 2)

		n1, n2 := round.TargetValues[0], round.TargetValues[1]
		assert.GreaterOrEqual(t, n1, int32(0))
		assert.LessOrEqual(t, n1, int32(cfg.ParityNumberMax))
		assert.GreaterOrEqual(t, n2, int32(0))
		assert.LessOrEqual(t, n2, int32(cfg.ParityNumberMax))
		assert.Equal(t, models.ParityOf(n1, n2), round.Parity)
	}
}

func TestRoundGenerator_Generate_UnknownVariant(t *testing.T) {
	gen := NewRoundGenerator(nil, config.NewTestConfig())
	_, err := gen.Generate("roulette", time.Now())
	assert.Error(t, err)
}

func setupGeneratorMocks(ctx context.Context) (*MockUnitOfWorkFactory, *MockUnitOfWork, *MockRoundRepository) {
	mockUoW := new(MockUnitOfWork)
	mockFactory := new(MockUnitOfWorkFactory)
	mockRoundRepo := new(MockRoundRepository)

	mockUoW.SetRoundRepositories(mockRoundRepo, nil)

	mockFactory.On("Create").Return(mockUoW)
	mockUoW.On("Begin", ctx).Return(nil)
	mockUoW.On("Rollback").Return(nil)
	mockRoundRepo.On("LockVariant", ctx, models.VariantDraw).Return(nil)

	return mockFactory, mockUoW, mockRoundRepo
}

func TestRoundGenerator_EnsureRound_OpenRoundExists(t *testing.T) {
	ctx := context.Background()
	mockFactory, mockUoW, mockRoundRepo := setupGeneratorMocks(ctx)
	gen := NewRoundGenerator(mockFactory, config.NewTestConfig())

	open := &models.Round{ID: uuid.New(), Variant: models.VariantDraw, Status: models.RoundStatusActive}
	mockRoundRepo.On("GetOpen", ctx, models.VariantDraw).Return(open, nil)

	round, created, err := gen.EnsureRound(ctx, models.VariantDraw, time.Now())

	require.NoError(t, err)
	assert.False(t, created)
	assert.Nil(t, round)
	mockRoundRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	mockUoW.AssertNotCalled(t, "Commit")
}

func TestRoundGenerator_EnsureRound_CooldownNotElapsed(t *testing.T) {
	ctx := context.Background()
	mockFactory, _, mockRoundRepo := setupGeneratorMocks(ctx)
	cfg := config.NewTestConfig()
	gen := NewRoundGenerator(mockFactory, cfg)

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	completedAt := now.Add(-cfg.RoundCooldown + time.Second)
	last := &models.Round{ID: uuid.New(), Status: models.RoundStatusCompleted, CompletedAt: &completedAt}

	mockRoundRepo.On("GetOpen", ctx, models.VariantDraw).Return(nil, nil)
	mockRoundRepo.On("GetLatestCompleted", ctx, models.VariantDraw).Return(last, nil)

	round, created, err := gen.EnsureRound(ctx, models.VariantDraw, now)

	require.NoError(t, err)
	assert.False(t, created)
	assert.Nil(t, round)
	mockRoundRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestRoundGenerator_EnsureRound_CreatesAfterCooldown(t *testing.T) {
	ctx := context.Background()
	mockFactory, mockUoW, mockRoundRepo := setupGeneratorMocks(ctx)
	cfg := config.NewTestConfig()
	gen := NewRoundGenerator(mockFactory, cfg)

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	completedAt := now.Add(-cfg.RoundCooldown)
	last := &models.Round{ID: uuid.New(), Status: models.RoundStatusCompleted, CompletedAt: &completedAt}
	newID := uuid.New()

	mockRoundRepo.On("GetOpen", ctx, models.VariantDraw).Return(nil, nil)
	mockRoundRepo.On("GetLatestCompleted", ctx, models.VariantDraw).Return(last, nil)
	mockRoundRepo.On("Create", ctx, mock.MatchedBy(func(r *models.Round) bool {
		return r.Variant == models.VariantDraw &&
			r.Status == models.RoundStatusActive &&
			r.EndTime.Equal(now.Add(cfg.RoundDuration))
	})).Return(true, nil).Run(func(args mock.Arguments) {
		args.Get(1).(*models.Round).ID = newID
	})
	mockUoW.On("Commit").Return(nil)

	round, created, err := gen.EnsureRound(ctx, models.VariantDraw, now)

	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, newID, round.ID)

	published := mockUoW.PublishedEvents()
	require.Len(t, published, 1)
	createdEvent, ok := published[0].(events.RoundCreatedEvent)
	require.True(t, ok)
	assert.Equal(t, newID.String(), createdEvent.RoundID)

	mockUoW.AssertExpectations(t)
	mockRoundRepo.AssertExpectations(t)
}

func TestRoundGenerator_EnsureRound_LostInsertRace(t *testing.T) {
	ctx := context.Background()
	mockFactory, mockUoW, mockRoundRepo := setupGeneratorMocks(ctx)
	gen := NewRoundGenerator(mockFactory, config.NewTestConfig())

	mockRoundRepo.On("GetOpen", ctx, models.VariantDraw).Return(nil, nil)
	mockRoundRepo.On("GetLatestCompleted", ctx, models.VariantDraw).Return(nil, nil)
	mockRoundRepo.On("Create", ctx, mock.AnythingOfType("*models.Round")).Return(false, nil)

	round, created, err := gen.EnsureRound(ctx, models.VariantDraw, time.Now())

	require.NoError(t, err)
	assert.False(t, created)
	assert.Nil(t, round)
	assert.Empty(t, mockUoW.PublishedEvents())
	mockUoW.AssertNotCalled(t, "Commit")
}
