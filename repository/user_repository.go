package repository

import (
	"context"
	"errors"
	"fmt"

	"betengine/database"
	"betengine/models"
	"betengine/service"

	"github.com/jackc/pgx/v5"
)

// UserRepository implements the UserRepository interface
type UserRepository struct {
	q queryable
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{q: db.Pool}
}

// newUserRepositoryWithTx creates a new user repository with a transaction
func newUserRepositoryWithTx(tx queryable) *UserRepository {
	return &UserRepository{q: tx}
}

// GetByID retrieves a user by id
func (r *UserRepository) GetByID(ctx context.Context, userID int64) (*models.User, error) {
	query := `
		SELECT id, username, balance, created_at, updated_at
		FROM users
		WHERE id = $1
	`

	var user models.User
	err := r.q.QueryRow(ctx, query, userID).Scan(
		&user.ID,
		&user.Username,
		&user.Balance,
		&user.CreatedAt,
		&user.UpdatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user %d: %w", userID, err)
	}

	return &user, nil
}

// Create creates a new user with the initial balance
func (r *UserRepository) Create(ctx context.Context, userID int64, username string, initialBalance int64) (*models.User, error) {
	query := `
		INSERT INTO users (id, username, balance)
		VALUES ($1, $2, $3)
		RETURNING id, username, balance, created_at, updated_at
	`

	var user models.User
	err := r.q.QueryRow(ctx, query, userID, username, initialBalance).Scan(
		&user.ID,
		&user.Username,
		&user.Balance,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create user %d: %w", userID, err)
	}

	return &user, nil
}

// AddBalance adds to a user's balance atomically and returns the new balance
func (r *UserRepository) AddBalance(ctx context.Context, userID int64, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, service.ErrInvalidAmount
	}

	query := `
		UPDATE users
		SET balance = balance + $1, updated_at = NOW()
		WHERE id = $2
		RETURNING balance
	`

	var balance int64
	err := r.q.QueryRow(ctx, query, amount, userID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("user %d: %w", userID, service.ErrUserNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to add balance for user %d: %w", userID, err)
	}

	return balance, nil
}

// DeductBalance deducts from a user's balance atomically, failing if insufficient funds
func (r *UserRepository) DeductBalance(ctx context.Context, userID int64, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, service.ErrInvalidAmount
	}

	// The balance guard and the decrement are one statement, so two concurrent
	// deductions can never both pass against the same funds
	query := `
		UPDATE users
		SET balance = balance - $1, updated_at = NOW()
		WHERE id = $2 AND balance >= $1
		RETURNING balance
	`

	var balance int64
	err := r.q.QueryRow(ctx, query, amount, userID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		user, err := r.GetByID(ctx, userID)
		if err != nil {
			return 0, fmt.Errorf("failed to check user: %w", err)
		}
		if user == nil {
			return 0, fmt.Errorf("user %d: %w", userID, service.ErrUserNotFound)
		}
		return 0, fmt.Errorf("%w: have %d, need %d", service.ErrInsufficientFunds, user.Balance, amount)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to deduct balance for user %d: %w", userID, err)
	}

	return balance, nil
}
