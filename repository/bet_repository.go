package repository

import (
	"context"
	"errors"
	"fmt"

	"betengine/database"
	"betengine/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const betColumns = `id, user_id, round_id, variant, stake, picks, parity_pick, status, payout, placed_at, settled_at`

// applySettlementQuery settles one bet if it is still pending, credits the
// payout and records the history row. Nothing is written for a bet that
// already left pending.
const applySettlementQuery = `
	WITH settled AS (
		UPDATE bets
		SET status = $2, payout = $3, settled_at = NOW()
		WHERE id = $1 AND status = 'pending'
		RETURNING id, user_id, payout
	), credited AS (
		UPDATE users u
		SET balance = u.balance + s.payout, updated_at = NOW()
		FROM settled s
		WHERE u.id = s.user_id AND s.payout > 0
		RETURNING u.id, u.balance
	), recorded AS (
		INSERT INTO balance_history
		(user_id, balance_before, balance_after, change_amount, transaction_type, transaction_metadata, related_id, related_type)
		SELECT c.id, c.balance - s.payout, c.balance, s.payout, 'bet_payout',
		       jsonb_build_object('round_id', $4::text, 'outcome', $2::text),
		       s.id::text, 'bet'
		FROM credited c
		JOIN settled s ON s.user_id = c.id
	)
	SELECT (SELECT COUNT(*) FROM settled), COALESCE((SELECT balance FROM credited), 0)
`

// BetRepository implements the BetRepository interface
type BetRepository struct {
	q queryable
}

// NewBetRepository creates a new bet repository
func NewBetRepository(db *database.DB) *BetRepository {
	return &BetRepository{q: db.Pool}
}

// newBetRepositoryWithTx creates a new bet repository with a transaction
func newBetRepositoryWithTx(tx queryable) *BetRepository {
	return &BetRepository{q: tx}
}

func scanBet(row pgx.Row) (*models.Bet, error) {
	var bet models.Bet
	err := row.Scan(
		&bet.ID,
		&bet.UserID,
		&bet.RoundID,
		&bet.Variant,
		&bet.Stake,
		&bet.Picks,
		&bet.ParityPick,
		&bet.Status,
		&bet.Payout,
		&bet.PlacedAt,
		&bet.SettledAt,
	)
	if err != nil {
		return nil, err
	}
	return &bet, nil
}

func (r *BetRepository) list(ctx context.Context, query string, args ...any) ([]*models.Bet, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bets []*models.Bet
	for rows.Next() {
		bet, err := scanBet(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bet: %w", err)
		}
		bets = append(bets, bet)
	}

	return bets, rows.Err()
}

// Create inserts a pending bet and fills in its id and placement time
func (r *BetRepository) Create(ctx context.Context, bet *models.Bet) error {
	query := `
		INSERT INTO bets (user_id, round_id, variant, stake, picks, parity_pick, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, placed_at
	`

	picks := bet.Picks
	if picks == nil {
		picks = []int32{}
	}
	if bet.Status == "" {
		bet.Status = models.BetStatusPending
	}

	err := r.q.QueryRow(ctx, query,
		bet.UserID,
		bet.RoundID,
		bet.Variant,
		bet.Stake,
		picks,
		bet.ParityPick,
		bet.Status,
	).Scan(&bet.ID, &bet.PlacedAt)

	if err != nil {
		return fmt.Errorf("failed to create bet for user %d: %w", bet.UserID, err)
	}

	return nil
}

// GetByID retrieves a bet by id
func (r *BetRepository) GetByID(ctx context.Context, id int64) (*models.Bet, error) {
	bet, err := scanBet(r.q.QueryRow(ctx, `SELECT `+betColumns+` FROM bets WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get bet %d: %w", id, err)
	}
	return bet, nil
}

// GetByUser returns the most recent bets for a user
func (r *BetRepository) GetByUser(ctx context.Context, userID int64, limit int) ([]*models.Bet, error) {
	bets, err := r.list(ctx,
		`SELECT `+betColumns+` FROM bets WHERE user_id = $1 ORDER BY placed_at DESC, id DESC LIMIT $2`,
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get bets for user %d: %w", userID, err)
	}
	return bets, nil
}

// GetPendingByRound returns every pending bet for a round in placement order
func (r *BetRepository) GetPendingByRound(ctx context.Context, roundID uuid.UUID) ([]*models.Bet, error) {
	bets, err := r.list(ctx,
		`SELECT `+betColumns+` FROM bets WHERE round_id = $1 AND status = 'pending' ORDER BY id`,
		roundID)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending bets for round %s: %w", roundID, err)
	}
	return bets, nil
}

// ApplySettlements writes staged outcomes as pipelined batches of at most batchSize statements
func (r *BetRepository) ApplySettlements(ctx context.Context, settlements []models.BetSettlement, batchSize int) ([]models.AppliedSettlement, error) {
	if batchSize <= 0 {
		batchSize = len(settlements)
	}

	applied := make([]models.AppliedSettlement, 0, len(settlements))
	for start := 0; start < len(settlements); start += batchSize {
		end := min(start+batchSize, len(settlements))

		chunk, err := r.applyChunk(ctx, settlements[start:end])
		if err != nil {
			return nil, fmt.Errorf("failed to apply settlements %d-%d: %w", start, end-1, err)
		}
		applied = append(applied, chunk...)
	}

	return applied, nil
}

func (r *BetRepository) applyChunk(ctx context.Context, chunk []models.BetSettlement) ([]models.AppliedSettlement, error) {
	batch := &pgx.Batch{}
	for _, s := range chunk {
		batch.Queue(applySettlementQuery, s.BetID, s.Status, s.Payout, s.RoundID.String())
	}

	results := r.q.SendBatch(ctx, batch)
	defer results.Close()

	applied := make([]models.AppliedSettlement, 0, len(chunk))
	for _, s := range chunk {
		var count int64
		var balance int64
		if err := results.QueryRow().Scan(&count, &balance); err != nil {
			return nil, fmt.Errorf("bet %d: %w", s.BetID, err)
		}
		applied = append(applied, models.AppliedSettlement{
			BetSettlement: s,
			Applied:       count == 1,
			BalanceAfter:  balance,
		})
	}

	return applied, nil
}
