package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"betengine/database"
	"betengine/models"

	"github.com/jackc/pgx/v5"
)

const paymentRequestColumns = `id, user_id, kind, status, amount, fee, debited_amount, expires_at, resolved_at, created_at`

// PaymentRequestRepository implements the PaymentRequestRepository interface
type PaymentRequestRepository struct {
	q queryable
}

// NewPaymentRequestRepository creates a new payment request repository
func NewPaymentRequestRepository(db *database.DB) *PaymentRequestRepository {
	return &PaymentRequestRepository{q: db.Pool}
}

// newPaymentRequestRepositoryWithTx creates a new payment request repository with a transaction
func newPaymentRequestRepositoryWithTx(tx queryable) *PaymentRequestRepository {
	return &PaymentRequestRepository{q: tx}
}

func scanPaymentRequest(row pgx.Row) (*models.PaymentRequest, error) {
	var request models.PaymentRequest
	err := row.Scan(
		&request.ID,
		&request.UserID,
		&request.Kind,
		&request.Status,
		&request.Amount,
		&request.Fee,
		&request.DebitedAmount,
		&request.ExpiresAt,
		&request.ResolvedAt,
		&request.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &request, nil
}

func (r *PaymentRequestRepository) list(ctx context.Context, query string, args ...any) ([]*models.PaymentRequest, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var requests []*models.PaymentRequest
	for rows.Next() {
		request, err := scanPaymentRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment request: %w", err)
		}
		requests = append(requests, request)
	}

	return requests, rows.Err()
}

// Create inserts a pending request
func (r *PaymentRequestRepository) Create(ctx context.Context, request *models.PaymentRequest) error {
	query := `
		INSERT INTO payment_requests (user_id, kind, status, amount, fee, debited_amount, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`

	err := r.q.QueryRow(ctx, query,
		request.UserID,
		request.Kind,
		request.Status,
		request.Amount,
		request.Fee,
		request.DebitedAmount,
		request.ExpiresAt,
	).Scan(&request.ID, &request.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create %s request for user %d: %w", request.Kind, request.UserID, err)
	}

	return nil
}

// GetByID retrieves a request by id
func (r *PaymentRequestRepository) GetByID(ctx context.Context, id int64) (*models.PaymentRequest, error) {
	request, err := scanPaymentRequest(r.q.QueryRow(ctx,
		`SELECT `+paymentRequestColumns+` FROM payment_requests WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment request %d: %w", id, err)
	}
	return request, nil
}

// GetByUser returns a user's latest requests
func (r *PaymentRequestRepository) GetByUser(ctx context.Context, userID int64, limit int) ([]*models.PaymentRequest, error) {
	requests, err := r.list(ctx,
		`SELECT `+paymentRequestColumns+` FROM payment_requests
		 WHERE user_id = $1
		 ORDER BY created_at DESC, id DESC
		 LIMIT $2`,
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get payment requests for user %d: %w", userID, err)
	}
	return requests, nil
}

// Transition moves a request between statuses if it is still in from
func (r *PaymentRequestRepository) Transition(ctx context.Context, id int64, from, to models.PaymentStatus, now time.Time) (bool, error) {
	query := `
		UPDATE payment_requests
		SET status = $3, resolved_at = $4
		WHERE id = $1 AND status = $2
	`
	result, err := r.q.Exec(ctx, query, id, from, to, now)
	if err != nil {
		return false, fmt.Errorf("failed to move payment request %d to %s: %w", id, to, err)
	}
	return result.RowsAffected() == 1, nil
}

// ListExpiredPending returns pending requests whose session ended before now
func (r *PaymentRequestRepository) ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]*models.PaymentRequest, error) {
	requests, err := r.list(ctx,
		`SELECT `+paymentRequestColumns+` FROM payment_requests
		 WHERE status = 'pending' AND expires_at < $1
		 ORDER BY expires_at
		 LIMIT $2`,
		now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired payment requests: %w", err)
	}
	return requests, nil
}
