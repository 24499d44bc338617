package testutil

import (
	"context"
	"testing"
	"time"

	"betengine/database"
	"betengine/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// InsertUser creates a wallet directly in the database
func InsertUser(t *testing.T, db *database.DB, userID int64, balance int64) {
	t.Helper()
	_, err := db.Exec(context.Background(),
		`INSERT INTO users (id, username, balance) VALUES ($1, $2, $3)`,
		userID, "user", balance)
	require.NoError(t, err)
}

// Balance reads a wallet balance directly from the database
func Balance(t *testing.T, db *database.DB, userID int64) int64 {
	t.Helper()
	var balance int64
	err := db.QueryRow(context.Background(), `SELECT balance FROM users WHERE id = $1`, userID).Scan(&balance)
	require.NoError(t, err)
	return balance
}

// CountHistory counts balance history rows of one type for a user
func CountHistory(t *testing.T, db *database.DB, userID int64, transactionType models.TransactionType) int {
	t.Helper()
	var count int
	err := db.QueryRow(context.Background(),
		`SELECT COUNT(*) FROM balance_history WHERE user_id = $1 AND transaction_type = $2`,
		userID, transactionType).Scan(&count)
	require.NoError(t, err)
	return count
}

// CreateTestDrawRound returns an active draw round that closes at endTime
func CreateTestDrawRound(endTime time.Time) *models.Round {
	return &models.Round{
		Variant:      models.VariantDraw,
		Status:       models.RoundStatusActive,
		StartTime:    endTime.Add(-30 * time.Second),
		EndTime:      endTime,
		TargetValues: []int32{3, 7, 11, 19, 25, 30},
		Winners:      []int32{3, 7},
	}
}

// CreateTestParityRound returns an active parity round that closes at endTime
func CreateTestParityRound(endTime time.Time) *models.Round {
	return &models.Round{
		Variant:      models.VariantParity,
		Status:       models.RoundStatusActive,
		StartTime:    endTime.Add(-30 * time.Second),
		EndTime:      endTime,
		TargetValues: []int32{4, 9},
		Winners:      []int32{},
		Parity:       models.ParityOdd,
	}
}

// CreateTestDrawBet returns a pending draw bet
func CreateTestDrawBet(userID int64, roundID uuid.UUID, stake int64, picks ...int32) *models.Bet {
	return &models.Bet{
		UserID:  userID,
		RoundID: roundID,
		Variant: models.VariantDraw,
		Stake:   stake,
		Picks:   picks,
		Status:  models.BetStatusPending,
	}
}

// CreateTestDuel returns a challenged match between two players
func CreateTestDuel(player1, player2 int64, deadline time.Time) *models.DuelMatch {
	return &models.DuelMatch{
		Player1ID:     player1,
		Player2ID:     player2,
		State:         models.DuelStateChallenged,
		StakePerRound: 100,
		EscrowAmount:  500,
		Round:         1,
		MaxRounds:     5,
		MoveDeadline:  &deadline,
	}
}
