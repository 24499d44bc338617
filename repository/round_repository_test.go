package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"betengine/models"
	"betengine/repository/testutil"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundRepository_OneOpenRoundPerVariant(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)
	repo := NewRoundRepository(testDB.DB)
	ctx := context.Background()
	endTime := time.Now().UTC().Add(time.Minute)

	created, err := repo.Create(ctx, testutil.CreateTestDrawRound(endTime))
	require.NoError(t, err)
	assert.True(t, created)

	t.Run("second open round for the same variant is rejected", func(t *testing.T) {
		created, err := repo.Create(ctx, testutil.CreateTestDrawRound(endTime))
		require.NoError(t, err)
		assert.False(t, created)
	})

	t.Run("other variant is independent", func(t *testing.T) {
		created, err := repo.Create(ctx, testutil.CreateTestParityRound(endTime))
		require.NoError(t, err)
		assert.True(t, created)
	})

	t.Run("open round is returned", func(t *testing.T) {
		open, err := repo.GetOpen(ctx, models.VariantDraw)
		require.NoError(t, err)
		require.NotNil(t, open)
		assert.Equal(t, []int32{3, 7, 11, 19, 25, 30}, open.TargetValues)
		assert.Equal(t, models.RoundStatusActive, open.Status)
	})
}

func TestRoundRepository_ClaimIsExclusive(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)
	repo := NewRoundRepository(testDB.DB)
	ctx := context.Background()
	now := time.Now().UTC()

	round := testutil.CreateTestDrawRound(now.Add(-time.Second))
	_, err := repo.Create(ctx, round)
	require.NoError(t, err)

	const workers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
		errs []error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			won, err := repo.Claim(ctx, round.ID, uuid.New(), now)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
			}
			if won {
				wins++
			}
		}()
	}
	wg.Wait()

	assert.Empty(t, errs)
	assert.Equal(t, 1, wins)

	claimed, err := repo.GetByID(ctx, round.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoundStatusProcessing, claimed.Status)
	assert.Equal(t, 1, claimed.ClaimAttempts)
}

func TestRoundRepository_ClaimRequiresClosedWindow(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)
	repo := NewRoundRepository(testDB.DB)
	ctx := context.Background()
	now := time.Now().UTC()

	round := testutil.CreateTestDrawRound(now.Add(time.Minute))
	_, err := repo.Create(ctx, round)
	require.NoError(t, err)

	won, err := repo.Claim(ctx, round.ID, uuid.New(), now)
	require.NoError(t, err)
	assert.False(t, won)

	expired, err := repo.FindExpiredActive(ctx, models.VariantDraw, now)
	require.NoError(t, err)
	assert.Nil(t, expired)
}

func TestRoundRepository_ClaimLifecycle(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)
	repo := NewRoundRepository(testDB.DB)
	ctx := context.Background()
	now := time.Now().UTC()

	round := testutil.CreateTestDrawRound(now.Add(-time.Second))
	_, err := repo.Create(ctx, round)
	require.NoError(t, err)

	first := uuid.New()
	won, err := repo.Claim(ctx, round.ID, first, now)
	require.NoError(t, err)
	require.True(t, won)

	t.Run("fresh claim is not stale", func(t *testing.T) {
		stale, err := repo.FindStaleProcessing(ctx, models.VariantDraw, now.Add(-time.Minute))
		require.NoError(t, err)
		assert.Nil(t, stale)
	})

	t.Run("reclaim with the wrong token fails", func(t *testing.T) {
		other := uuid.New()
		won, err := repo.Reclaim(ctx, round.ID, &other, uuid.New(), now)
		require.NoError(t, err)
		assert.False(t, won)
	})

	second := uuid.New()
	t.Run("released round is resumable", func(t *testing.T) {
		released, err := repo.ReleaseClaim(ctx, round.ID, first)
		require.NoError(t, err)
		require.True(t, released)

		stale, err := repo.FindStaleProcessing(ctx, models.VariantDraw, now.Add(-time.Minute))
		require.NoError(t, err)
		require.NotNil(t, stale)
		assert.Nil(t, stale.ClaimToken)

		won, err := repo.Reclaim(ctx, round.ID, nil, second, now)
		require.NoError(t, err)
		assert.True(t, won)
	})

	t.Run("old holder cannot complete", func(t *testing.T) {
		done, err := repo.MarkCompleted(ctx, round.ID, first, now)
		require.NoError(t, err)
		assert.False(t, done)
	})

	t.Run("current holder completes", func(t *testing.T) {
		done, err := repo.MarkCompleted(ctx, round.ID, second, now)
		require.NoError(t, err)
		assert.True(t, done)

		open, err := repo.GetOpen(ctx, models.VariantDraw)
		require.NoError(t, err)
		assert.Nil(t, open)

		latest, err := repo.GetLatestCompleted(ctx, models.VariantDraw)
		require.NoError(t, err)
		require.NotNil(t, latest)
		assert.Equal(t, round.ID, latest.ID)
		assert.Equal(t, 2, latest.ClaimAttempts)
		assert.NotNil(t, latest.CompletedAt)
	})

	t.Run("a new round can open after completion", func(t *testing.T) {
		created, err := repo.Create(ctx, testutil.CreateTestDrawRound(now.Add(time.Minute)))
		require.NoError(t, err)
		assert.True(t, created)

		recent, err := repo.ListRecent(ctx, models.VariantDraw, 10)
		require.NoError(t, err)
		assert.Len(t, recent, 2)
	})
}

func TestRoundRepository_HoldClaimLocksOutOtherHolders(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)
	repo := NewRoundRepository(testDB.DB)
	ctx := context.Background()
	now := time.Now().UTC()

	round := testutil.CreateTestDrawRound(now.Add(-time.Second))
	_, err := repo.Create(ctx, round)
	require.NoError(t, err)

	token := uuid.New()
	_, err = repo.Claim(ctx, round.ID, token, now)
	require.NoError(t, err)

	held, err := repo.HoldClaim(ctx, round.ID, uuid.New())
	require.NoError(t, err)
	assert.False(t, held)

	held, err = repo.HoldClaim(ctx, round.ID, token)
	require.NoError(t, err)
	assert.True(t, held)
}
