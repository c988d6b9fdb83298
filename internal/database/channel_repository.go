package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dealforge/dealforge/internal/models"
)

// ChannelStateRepository persists per-bot runtime overrides (enabled flag,
// active method, API key) so admin changes survive a restart. The static
// channel definitions themselves come from the YAML config.
type ChannelStateRepository struct {
	db *sql.DB
}

func NewChannelStateRepository(db *sql.DB) *ChannelStateRepository {
	return &ChannelStateRepository{db: db}
}

// ChannelState is one persisted override row.
type ChannelState struct {
	BotID   string
	Enabled bool
	Method  models.IngestionMethod
	APIKey  string
}

// Load returns all persisted overrides keyed by bot id.
func (r *ChannelStateRepository) Load(ctx context.Context) (map[string]ChannelState, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT bot_id, enabled, method, COALESCE(api_key, '') FROM channel_state")
	if err != nil {
		return nil, fmt.Errorf("failed to load channel state: %w", err)
	}
	defer rows.Close()

	states := make(map[string]ChannelState)
	for rows.Next() {
		var state ChannelState
		if err := rows.Scan(&state.BotID, &state.Enabled, &state.Method, &state.APIKey); err != nil {
			return nil, fmt.Errorf("failed to scan channel state: %w", err)
		}
		states[state.BotID] = state
	}
	return states, rows.Err()
}

// SaveChannelState upserts the override row for one bot. It is the shape
// the ingestion registry persists through.
func (r *ChannelStateRepository) SaveChannelState(ctx context.Context, botID string, enabled bool, method models.IngestionMethod, apiKey string) error {
	return r.Save(ctx, ChannelState{BotID: botID, Enabled: enabled, Method: method, APIKey: apiKey})
}

// Save upserts the override row for one bot.
func (r *ChannelStateRepository) Save(ctx context.Context, state ChannelState) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO channel_state (bot_id, enabled, method, api_key, updated_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), NOW())
		ON CONFLICT (bot_id) DO UPDATE SET
			enabled = EXCLUDED.enabled,
			method = EXCLUDED.method,
			api_key = EXCLUDED.api_key,
			updated_at = EXCLUDED.updated_at`,
		state.BotID, state.Enabled, state.Method, state.APIKey)
	if err != nil {
		return fmt.Errorf("failed to save channel state: %w", err)
	}
	return nil
}
