package repository

import (
	"context"
	"fmt"

	"betengine/database"
	"betengine/models"

	"github.com/jackc/pgx/v5"
)

const historyColumns = `
	id, user_id, balance_before, balance_after, change_amount,
	transaction_type, transaction_metadata, related_id, related_type, created_at
`

// BalanceHistoryRepository is the append-only wallet ledger.
// Metadata is stored as JSONB and encoded by pgx.
type BalanceHistoryRepository struct {
	q queryable
}

// NewBalanceHistoryRepository creates a new balance history repository
func NewBalanceHistoryRepository(db *database.DB) *BalanceHistoryRepository {
	return &BalanceHistoryRepository{q: db.Pool}
}

// newBalanceHistoryRepositoryWithTx creates a new balance history repository with a transaction
func newBalanceHistoryRepositoryWithTx(tx queryable) *BalanceHistoryRepository {
	return &BalanceHistoryRepository{q: tx}
}

func scanBalanceHistory(row pgx.CollectableRow) (*models.BalanceHistory, error) {
	var entry models.BalanceHistory
	err := row.Scan(
		&entry.ID,
		&entry.UserID,
		&entry.BalanceBefore,
		&entry.BalanceAfter,
		&entry.ChangeAmount,
		&entry.TransactionType,
		&entry.TransactionMetadata,
		&entry.RelatedID,
		&entry.RelatedType,
		&entry.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// Record appends one ledger entry and fills in its ID and timestamp
func (r *BalanceHistoryRepository) Record(ctx context.Context, entry *models.BalanceHistory) error {
	err := r.q.QueryRow(ctx, `
		INSERT INTO balance_history (user_id, balance_before, balance_after, change_amount,
		                             transaction_type, transaction_metadata, related_id, related_type)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at`,
		entry.UserID, entry.BalanceBefore, entry.BalanceAfter, entry.ChangeAmount,
		entry.TransactionType, entry.TransactionMetadata, entry.RelatedID, entry.RelatedType,
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record %s entry for user %d: %w", entry.TransactionType, entry.UserID, err)
	}
	return nil
}

// GetByUser returns a user's newest ledger entries first
func (r *BalanceHistoryRepository) GetByUser(ctx context.Context, userID int64, limit int) ([]*models.BalanceHistory, error) {
	rows, err := r.q.Query(ctx, `SELECT `+historyColumns+`
		FROM balance_history
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger of user %d: %w", userID, err)
	}

	entries, err := pgx.CollectRows(rows, scanBalanceHistory)
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger of user %d: %w", userID, err)
	}
	return entries, nil
}
