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

const duelColumns = `
	id, player1_id, player2_id, state, stake_per_round, escrow_amount,
	pool1, pool2, score1, score2, round, max_rounds, picker_id, hidden_pick,
	move_deadline, player1_ack, player2_ack, version, created_at, updated_at
`

// DuelRepository implements the DuelRepository interface.
// Writes after Create compare and bump the version column.
type DuelRepository struct {
	q queryable
}

// NewDuelRepository creates a new duel repository
func NewDuelRepository(db *database.DB) *DuelRepository {
	return &DuelRepository{q: db.Pool}
}

// newDuelRepositoryWithTx creates a new duel repository with a transaction
func newDuelRepositoryWithTx(tx queryable) *DuelRepository {
	return &DuelRepository{q: tx}
}

func scanDuel(row pgx.Row) (*models.DuelMatch, error) {
	var match models.DuelMatch
	err := row.Scan(
		&match.ID,
		&match.Player1ID,
		&match.Player2ID,
		&match.State,
		&match.StakePerRound,
		&match.EscrowAmount,
		&match.Pool1,
		&match.Pool2,
		&match.Score1,
		&match.Score2,
		&match.Round,
		&match.MaxRounds,
		&match.PickerID,
		&match.HiddenPick,
		&match.MoveDeadline,
		&match.Player1Ack,
		&match.Player2Ack,
		&match.Version,
		&match.CreatedAt,
		&match.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &match, nil
}

func (r *DuelRepository) list(ctx context.Context, query string, args ...any) ([]*models.DuelMatch, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []*models.DuelMatch
	for rows.Next() {
		match, err := scanDuel(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan duel match: %w", err)
		}
		matches = append(matches, match)
	}

	return matches, rows.Err()
}

// Create inserts a new match and fills in its id, version and timestamps
func (r *DuelRepository) Create(ctx context.Context, match *models.DuelMatch) error {
	query := `
		INSERT INTO duel_matches
		(player1_id, player2_id, state, stake_per_round, escrow_amount, pool1, pool2,
		 round, max_rounds, picker_id, move_deadline)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, version, created_at, updated_at
	`

	err := r.q.QueryRow(ctx, query,
		match.Player1ID,
		match.Player2ID,
		match.State,
		match.StakePerRound,
		match.EscrowAmount,
		match.Pool1,
		match.Pool2,
		match.Round,
		match.MaxRounds,
		match.PickerID,
		match.MoveDeadline,
	).Scan(&match.ID, &match.Version, &match.CreatedAt, &match.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create duel between %d and %d: %w", match.Player1ID, match.Player2ID, err)
	}

	return nil
}

// GetByID retrieves a match by id
func (r *DuelRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.DuelMatch, error) {
	match, err := scanDuel(r.q.QueryRow(ctx, `SELECT `+duelColumns+` FROM duel_matches WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get duel %s: %w", id, err)
	}
	return match, nil
}

// GetByPlayer returns every match a user takes part in, newest first
func (r *DuelRepository) GetByPlayer(ctx context.Context, userID int64) ([]*models.DuelMatch, error) {
	matches, err := r.list(ctx,
		`SELECT `+duelColumns+` FROM duel_matches
		 WHERE player1_id = $1 OR player2_id = $1
		 ORDER BY created_at DESC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get duels for user %d: %w", userID, err)
	}
	return matches, nil
}

// Update writes the mutable fields if match.Version is current. On success the
// struct carries the new version.
func (r *DuelRepository) Update(ctx context.Context, match *models.DuelMatch) (bool, error) {
	query := `
		UPDATE duel_matches
		SET state = $3,
		    pool1 = $4,
		    pool2 = $5,
		    score1 = $6,
		    score2 = $7,
		    round = $8,
		    picker_id = $9,
		    hidden_pick = $10,
		    move_deadline = $11,
		    player1_ack = $12,
		    player2_ack = $13,
		    version = version + 1,
		    updated_at = NOW()
		WHERE id = $1 AND version = $2
		RETURNING version, updated_at
	`

	err := r.q.QueryRow(ctx, query,
		match.ID,
		match.Version,
		match.State,
		match.Pool1,
		match.Pool2,
		match.Score1,
		match.Score2,
		match.Round,
		match.PickerID,
		match.HiddenPick,
		match.MoveDeadline,
		match.Player1Ack,
		match.Player2Ack,
	).Scan(&match.Version, &match.UpdatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to update duel %s: %w", match.ID, err)
	}
	return true, nil
}

// Delete removes a match if version is current
func (r *DuelRepository) Delete(ctx context.Context, id uuid.UUID, version int64) (bool, error) {
	result, err := r.q.Exec(ctx, `DELETE FROM duel_matches WHERE id = $1 AND version = $2`, id, version)
	if err != nil {
		return false, fmt.Errorf("failed to delete duel %s: %w", id, err)
	}
	return result.RowsAffected() == 1, nil
}

// ListOverdue returns matches waiting on a move or an acknowledgement whose deadline passed before now
func (r *DuelRepository) ListOverdue(ctx context.Context, now time.Time, limit int) ([]*models.DuelMatch, error) {
	matches, err := r.list(ctx,
		`SELECT `+duelColumns+` FROM duel_matches
		 WHERE state IN ('challenged', 'picking', 'guessing', 'finished') AND move_deadline < $1
		 ORDER BY move_deadline
		 LIMIT $2`,
		now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list overdue duels: %w", err)
	}
	return matches, nil
}
