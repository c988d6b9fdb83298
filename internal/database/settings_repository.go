package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dealforge/dealforge/internal/models"
)

// SettingsRepository persists the global processing switch and the
// commission selection method. The table holds exactly one row.
type SettingsRepository struct {
	db *sql.DB
}

func NewSettingsRepository(db *sql.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// Get returns the current settings; a missing row yields the defaults
// (processing enabled, priority selection).
func (r *SettingsRepository) Get(ctx context.Context) (models.ProcessingSettings, error) {
	var settings models.ProcessingSettings
	err := r.db.QueryRowContext(ctx,
		"SELECT enabled, commission_method, updated_at FROM processing_settings WHERE id = 1",
	).Scan(&settings.Enabled, &settings.CommissionMethod, &settings.UpdatedAt)
	if err == sql.ErrNoRows {
		return models.ProcessingSettings{Enabled: true, CommissionMethod: models.CommissionMethodPriority}, nil
	}
	if err != nil {
		return models.ProcessingSettings{}, fmt.Errorf("failed to load processing settings: %w", err)
	}
	return settings, nil
}

// Set replaces the settings row.
func (r *SettingsRepository) Set(ctx context.Context, settings models.ProcessingSettings) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO processing_settings (id, enabled, commission_method, updated_at)
		VALUES (1, $1, $2, NOW())
		ON CONFLICT (id) DO UPDATE SET
			enabled = EXCLUDED.enabled,
			commission_method = EXCLUDED.commission_method,
			updated_at = EXCLUDED.updated_at`,
		settings.Enabled, settings.CommissionMethod)
	if err != nil {
		return fmt.Errorf("failed to save processing settings: %w", err)
	}
	return nil
}
