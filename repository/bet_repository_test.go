package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"betengine/events"
	"betengine/models"
	"betengine/repository/testutil"
	"betengine/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupSettlementData(t *testing.T, repo *BetRepository, rounds *RoundRepository, userID int64) []models.BetSettlement {
	t.Helper()
	ctx := context.Background()

	round := testutil.CreateTestDrawRound(time.Now().UTC().Add(-time.Second))
	_, err := rounds.Create(ctx, round)
	require.NoError(t, err)

	outcomes := []struct {
		status models.BetStatus
		payout int64
	}{
		{models.BetStatusWin, 130},
		{models.BetStatusLoss, 0},
		{models.BetStatusPartial, 80},
	}

	var staged []models.BetSettlement
	for _, o := range outcomes {
		bet := testutil.CreateTestDrawBet(userID, round.ID, 100, 3, 7)
		require.NoError(t, repo.Create(ctx, bet))
		staged = append(staged, models.BetSettlement{
			BetID:   bet.ID,
			UserID:  userID,
			RoundID: round.ID,
			Status:  o.status,
			Payout:  o.payout,
		})
	}
	return staged
}

func TestBetRepository_ApplySettlements(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)
	repo := NewBetRepository(testDB.DB)
	rounds := NewRoundRepository(testDB.DB)
	ctx := context.Background()

	testutil.InsertUser(t, testDB.DB, 1, 1000)
	staged := setupSettlementData(t, repo, rounds, 1)

	applied, err := repo.ApplySettlements(ctx, staged, 2)
	require.NoError(t, err)
	require.Len(t, applied, 3)
	for _, a := range applied {
		assert.True(t, a.Applied, "bet %d", a.BetID)
	}
	assert.Equal(t, int64(1130), applied[0].BalanceAfter)
	assert.Equal(t, int64(1210), applied[2].BalanceAfter)

	assert.Equal(t, int64(1210), testutil.Balance(t, testDB.DB, 1))
	assert.Equal(t, 2, testutil.CountHistory(t, testDB.DB, 1, models.TransactionTypeBetPayout))

	pending, err := repo.GetPendingByRound(ctx, staged[0].RoundID)
	require.NoError(t, err)
	assert.Empty(t, pending)

	won, err := repo.GetByID(ctx, staged[0].BetID)
	require.NoError(t, err)
	assert.Equal(t, models.BetStatusWin, won.Status)
	assert.Equal(t, int64(130), won.Payout)
	assert.NotNil(t, won.SettledAt)

	t.Run("reapplying pays nothing", func(t *testing.T) {
		again, err := repo.ApplySettlements(ctx, staged, 2)
		require.NoError(t, err)
		for _, a := range again {
			assert.False(t, a.Applied)
		}
		assert.Equal(t, int64(1210), testutil.Balance(t, testDB.DB, 1))
		assert.Equal(t, 2, testutil.CountHistory(t, testDB.DB, 1, models.TransactionTypeBetPayout))
	})
}

func TestBetRepository_ConcurrentSettlementPaysOnce(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)
	repo := NewBetRepository(testDB.DB)
	rounds := NewRoundRepository(testDB.DB)
	ctx := context.Background()

	testutil.InsertUser(t, testDB.DB, 1, 1000)
	staged := setupSettlementData(t, repo, rounds, 1)

	factory := NewUnitOfWorkFactory(testDB.DB, events.NewBus())

	const workers = 4
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		settled int
		errs    []error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := applyInTransaction(ctx, factory, staged)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			settled += n
		}()
	}
	wg.Wait()

	assert.Empty(t, errs)
	assert.Equal(t, len(staged), settled)
	assert.Equal(t, int64(1210), testutil.Balance(t, testDB.DB, 1))
}

func applyInTransaction(ctx context.Context, factory service.UnitOfWorkFactory, staged []models.BetSettlement) (int, error) {
	uow := factory.Create()
	if err := uow.Begin(ctx); err != nil {
		return 0, err
	}
	defer uow.Rollback()

	applied, err := uow.BetRepository().ApplySettlements(ctx, staged, len(staged))
	if err != nil {
		return 0, err
	}

	settled := 0
	for _, a := range applied {
		if a.Applied {
			settled++
		}
	}
	return settled, uow.Commit()
}
