package repository

import (
	"context"
	"testing"

	"betengine/models"
	"betengine/repository/testutil"
	"betengine/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserRepository_Balances(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)
	repo := NewUserRepository(testDB.DB)
	ctx := context.Background()

	user, err := repo.Create(ctx, 7, "alice", 500)
	require.NoError(t, err)
	assert.Equal(t, int64(500), user.Balance)

	t.Run("missing user", func(t *testing.T) {
		missing, err := repo.GetByID(ctx, 8)
		require.NoError(t, err)
		assert.Nil(t, missing)

		_, err = repo.DeductBalance(ctx, 8, 10)
		assert.ErrorIs(t, err, service.ErrUserNotFound)

		_, err = repo.AddBalance(ctx, 8, 10)
		assert.ErrorIs(t, err, service.ErrUserNotFound)
	})

	t.Run("add and deduct", func(t *testing.T) {
		balance, err := repo.AddBalance(ctx, 7, 250)
		require.NoError(t, err)
		assert.Equal(t, int64(750), balance)

		balance, err = repo.DeductBalance(ctx, 7, 700)
		require.NoError(t, err)
		assert.Equal(t, int64(50), balance)
	})

	t.Run("insufficient funds leaves balance untouched", func(t *testing.T) {
		_, err := repo.DeductBalance(ctx, 7, 51)
		assert.ErrorIs(t, err, service.ErrInsufficientFunds)
		assert.Equal(t, int64(50), testutil.Balance(t, testDB.DB, 7))
	})

	t.Run("non-positive amounts are rejected", func(t *testing.T) {
		_, err := repo.AddBalance(ctx, 7, 0)
		assert.ErrorIs(t, err, service.ErrInvalidAmount)
		_, err = repo.DeductBalance(ctx, 7, -5)
		assert.ErrorIs(t, err, service.ErrInvalidAmount)
	})
}

func TestBalanceHistoryRepository_RecordAndList(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)
	repo := NewBalanceHistoryRepository(testDB.DB)
	ctx := context.Background()

	testutil.InsertUser(t, testDB.DB, 7, 1000)

	betID := "42"
	related := models.RelatedTypeBet
	entry := &models.BalanceHistory{
		UserID:              7,
		BalanceBefore:       1000,
		BalanceAfter:        900,
		ChangeAmount:        -100,
		TransactionType:     models.TransactionTypeBetPlaced,
		TransactionMetadata: map[string]any{"variant": "draw"},
		RelatedID:           &betID,
		RelatedType:         &related,
	}
	require.NoError(t, repo.Record(ctx, entry))
	assert.NotZero(t, entry.ID)

	history, err := repo.GetByUser(ctx, 7, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, models.TransactionTypeBetPlaced, history[0].TransactionType)
	assert.Equal(t, "draw", history[0].TransactionMetadata["variant"])
	require.NotNil(t, history[0].RelatedID)
	assert.Equal(t, "42", *history[0].RelatedID)
	assert.Equal(t, models.RelatedTypeBet, *history[0].RelatedType)
}

func TestBalanceHistoryRepository_NewestFirstWithoutMetadata(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)
	repo := NewBalanceHistoryRepository(testDB.DB)
	ctx := context.Background()

	testutil.InsertUser(t, testDB.DB, 8, 0)

	empty, err := repo.GetByUser(ctx, 8, 10)
	require.NoError(t, err)
	assert.Empty(t, empty)

	for i, amount := range []int64{500, -200} {
		entry := &models.BalanceHistory{
			UserID:          8,
			BalanceBefore:   int64(i) * 500,
			BalanceAfter:    int64(i)*500 + amount,
			ChangeAmount:    amount,
			TransactionType: models.TransactionTypeDeposit,
		}
		require.NoError(t, repo.Record(ctx, entry))
	}

	history, err := repo.GetByUser(ctx, 8, 1)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, int64(-200), history[0].ChangeAmount)
	assert.Nil(t, history[0].TransactionMetadata)
	assert.Nil(t, history[0].RelatedID)
}
