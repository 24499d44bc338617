package repository

import (
	"context"
	"errors"
	"fmt"

	"betengine/database"
	"betengine/models"

	"github.com/jackc/pgx/v5"
)

// SettingsRepository implements the SettingsRepository interface over the
// singleton platform_settings row
type SettingsRepository struct {
	q queryable
}

// NewSettingsRepository creates a new settings repository
func NewSettingsRepository(db *database.DB) *SettingsRepository {
	return &SettingsRepository{q: db.Pool}
}

// newSettingsRepositoryWithTx creates a new settings repository with a transaction
func newSettingsRepositoryWithTx(tx queryable) *SettingsRepository {
	return &SettingsRepository{q: tx}
}

// Get returns the settings row under a share lock
func (r *SettingsRepository) Get(ctx context.Context) (*models.PlatformSettings, error) {
	var settings models.PlatformSettings
	err := r.q.QueryRow(ctx,
		`SELECT payments_enabled, updated_at FROM platform_settings WHERE id = 1 FOR SHARE`,
	).Scan(&settings.PaymentsEnabled, &settings.UpdatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get platform settings: %w", err)
	}
	return &settings, nil
}

// SetPaymentsEnabled updates the payments switch, creating the row if needed
func (r *SettingsRepository) SetPaymentsEnabled(ctx context.Context, enabled bool) (*models.PlatformSettings, error) {
	query := `
		INSERT INTO platform_settings (id, payments_enabled, updated_at)
		VALUES (1, $1, NOW())
		ON CONFLICT (id) DO UPDATE
		SET payments_enabled = EXCLUDED.payments_enabled, updated_at = EXCLUDED.updated_at
		RETURNING payments_enabled, updated_at
	`

	var settings models.PlatformSettings
	if err := r.q.QueryRow(ctx, query, enabled).Scan(&settings.PaymentsEnabled, &settings.UpdatedAt); err != nil {
		return nil, fmt.Errorf("failed to update platform settings: %w", err)
	}
	return &settings, nil
}
