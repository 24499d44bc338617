package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"betengine/database"
	"betengine/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const roundColumns = `
	id, variant, status, start_time, end_time, target_values, winners, parity,
	claim_token, claimed_at, claim_attempts, completed_at, created_at
`

// RoundRepository implements the RoundRepository interface.
// Every status change is a conditional UPDATE that reports whether it matched.
type RoundRepository struct {
	q queryable
}

// NewRoundRepository creates a new round repository
func NewRoundRepository(db *database.DB) *RoundRepository {
	return &RoundRepository{q: db.Pool}
}

// newRoundRepositoryWithTx creates a new round repository with a transaction
func newRoundRepositoryWithTx(tx queryable) *RoundRepository {
	return &RoundRepository{q: tx}
}

func scanRound(row pgx.Row) (*models.Round, error) {
	var round models.Round
	err := row.Scan(
		&round.ID,
		&round.Variant,
		&round.Status,
		&round.StartTime,
		&round.EndTime,
		&round.TargetValues,
		&round.Winners,
		&round.Parity,
		&round.ClaimToken,
		&round.ClaimedAt,
		&round.ClaimAttempts,
		&round.CompletedAt,
		&round.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &round, nil
}

func (r *RoundRepository) getOne(ctx context.Context, query string, args ...any) (*models.Round, error) {
	round, err := scanRound(r.q.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return round, err
}

// LockVariant takes a transaction-scoped advisory lock for the variant
func (r *RoundRepository) LockVariant(ctx context.Context, variant models.Variant) error {
	_, err := r.q.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext('round_generator:' || $1::text))`, string(variant))
	if err != nil {
		return fmt.Errorf("failed to lock round generation for %s: %w", variant, err)
	}
	return nil
}

// Create inserts a new round. The partial unique index on open rounds turns a
// second concurrent insert into a no-op, reported as false.
func (r *RoundRepository) Create(ctx context.Context, round *models.Round) (bool, error) {
	query := `
		INSERT INTO rounds (variant, status, start_time, end_time, target_values, winners, parity)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (variant) WHERE status <> 'completed' DO NOTHING
		RETURNING id, created_at
	`

	winners := round.Winners
	if winners == nil {
		winners = []int32{}
	}

	err := r.q.QueryRow(ctx, query,
		round.Variant,
		round.Status,
		round.StartTime,
		round.EndTime,
		round.TargetValues,
		winners,
		round.Parity,
	).Scan(&round.ID, &round.CreatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to create %s round: %w", round.Variant, err)
	}
	return true, nil
}

// GetByID retrieves a round by id
func (r *RoundRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Round, error) {
	round, err := r.getOne(ctx, `SELECT `+roundColumns+` FROM rounds WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get round %s: %w", id, err)
	}
	return round, nil
}

// GetByIDForShare retrieves a round and share-locks it. A concurrent Claim
// blocks until this transaction ends.
func (r *RoundRepository) GetByIDForShare(ctx context.Context, id uuid.UUID) (*models.Round, error) {
	round, err := r.getOne(ctx, `SELECT `+roundColumns+` FROM rounds WHERE id = $1 FOR SHARE`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to lock round %s: %w", id, err)
	}
	return round, nil
}

// GetOpen returns the active or processing round for a variant
func (r *RoundRepository) GetOpen(ctx context.Context, variant models.Variant) (*models.Round, error) {
	round, err := r.getOne(ctx,
		`SELECT `+roundColumns+` FROM rounds WHERE variant = $1 AND status <> 'completed' LIMIT 1`,
		variant)
	if err != nil {
		return nil, fmt.Errorf("failed to get open %s round: %w", variant, err)
	}
	return round, nil
}

// GetLatestCompleted returns the most recently completed round for a variant
func (r *RoundRepository) GetLatestCompleted(ctx context.Context, variant models.Variant) (*models.Round, error) {
	round, err := r.getOne(ctx,
		`SELECT `+roundColumns+` FROM rounds
		 WHERE variant = $1 AND status = 'completed'
		 ORDER BY completed_at DESC
		 LIMIT 1`,
		variant)
	if err != nil {
		return nil, fmt.Errorf("failed to get last completed %s round: %w", variant, err)
	}
	return round, nil
}

// FindExpiredActive returns the active round whose betting window closed at or before now
func (r *RoundRepository) FindExpiredActive(ctx context.Context, variant models.Variant, now time.Time) (*models.Round, error) {
	round, err := r.getOne(ctx,
		`SELECT `+roundColumns+` FROM rounds
		 WHERE variant = $1 AND status = 'active' AND end_time <= $2
		 ORDER BY end_time
		 LIMIT 1`,
		variant, now)
	if err != nil {
		return nil, fmt.Errorf("failed to find expired %s round: %w", variant, err)
	}
	return round, nil
}

// FindStaleProcessing returns a processing round whose claim was released or
// taken before staleBefore
func (r *RoundRepository) FindStaleProcessing(ctx context.Context, variant models.Variant, staleBefore time.Time) (*models.Round, error) {
	round, err := r.getOne(ctx,
		`SELECT `+roundColumns+` FROM rounds
		 WHERE variant = $1 AND status = 'processing'
		   AND (claim_token IS NULL OR claimed_at < $2)
		 ORDER BY claimed_at NULLS FIRST
		 LIMIT 1`,
		variant, staleBefore)
	if err != nil {
		return nil, fmt.Errorf("failed to find stale %s round: %w", variant, err)
	}
	return round, nil
}

// Claim moves an expired active round to processing under token
func (r *RoundRepository) Claim(ctx context.Context, id uuid.UUID, token uuid.UUID, now time.Time) (bool, error) {
	query := `
		UPDATE rounds
		SET status = 'processing', claim_token = $2, claimed_at = $3, claim_attempts = claim_attempts + 1
		WHERE id = $1 AND status = 'active' AND end_time <= $3
	`
	result, err := r.q.Exec(ctx, query, id, token, now)
	if err != nil {
		return false, fmt.Errorf("failed to claim round %s: %w", id, err)
	}
	return result.RowsAffected() == 1, nil
}

// Reclaim hands a processing round to a new token if previousToken still holds it
func (r *RoundRepository) Reclaim(ctx context.Context, id uuid.UUID, previousToken *uuid.UUID, token uuid.UUID, now time.Time) (bool, error) {
	query := `
		UPDATE rounds
		SET claim_token = $3, claimed_at = $4, claim_attempts = claim_attempts + 1
		WHERE id = $1 AND status = 'processing' AND claim_token IS NOT DISTINCT FROM $2::uuid
	`
	result, err := r.q.Exec(ctx, query, id, previousToken, token, now)
	if err != nil {
		return false, fmt.Errorf("failed to reclaim round %s: %w", id, err)
	}
	return result.RowsAffected() == 1, nil
}

// HoldClaim row-locks the round for the rest of the transaction if token still holds it
func (r *RoundRepository) HoldClaim(ctx context.Context, id uuid.UUID, token uuid.UUID) (bool, error) {
	query := `
		SELECT id FROM rounds
		WHERE id = $1 AND status = 'processing' AND claim_token = $2
		FOR UPDATE
	`
	var locked uuid.UUID
	err := r.q.QueryRow(ctx, query, id, token).Scan(&locked)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to lock claimed round %s: %w", id, err)
	}
	return true, nil
}

// ReleaseClaim clears token from a processing round
func (r *RoundRepository) ReleaseClaim(ctx context.Context, id uuid.UUID, token uuid.UUID) (bool, error) {
	query := `
		UPDATE rounds
		SET claim_token = NULL
		WHERE id = $1 AND status = 'processing' AND claim_token = $2
	`
	result, err := r.q.Exec(ctx, query, id, token)
	if err != nil {
		return false, fmt.Errorf("failed to release round %s: %w", id, err)
	}
	return result.RowsAffected() == 1, nil
}

// MarkCompleted moves a processing round held by token to completed
func (r *RoundRepository) MarkCompleted(ctx context.Context, id uuid.UUID, token uuid.UUID, now time.Time) (bool, error) {
	query := `
		UPDATE rounds
		SET status = 'completed', completed_at = $3, claim_token = NULL
		WHERE id = $1 AND status = 'processing' AND claim_token = $2
	`
	result, err := r.q.Exec(ctx, query, id, token, now)
	if err != nil {
		return false, fmt.Errorf("failed to complete round %s: %w", id, err)
	}
	return result.RowsAffected() == 1, nil
}

// ListRecent returns the latest rounds for a variant, newest first
func (r *RoundRepository) ListRecent(ctx context.Context, variant models.Variant, limit int) ([]*models.Round, error) {
	rows, err := r.q.Query(ctx,
		`SELECT `+roundColumns+` FROM rounds
		 WHERE variant = $1
		 ORDER BY start_time DESC
		 LIMIT $2`,
		variant, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s rounds: %w", variant, err)
	}
	defer rows.Close()

	var rounds []*models.Round
	for rows.Next() {
		round, err := scanRound(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan round: %w", err)
		}
		rounds = append(rounds, round)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rounds: %w", err)
	}

	return rounds, nil
}
