package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dealforge/dealforge/internal/models"
)

// TagRepository manages affiliate tags and commission rates in PostgreSQL.
type TagRepository struct {
	db *sql.DB
}

func NewTagRepository(db *sql.DB) *TagRepository {
	return &TagRepository{db: db}
}

const selectTagColumns = `
	SELECT id, bot_name, network_name, tag_type, tag_value, priority,
	       commission_rate, is_active, last_used, created_at`

// ActiveTags returns the active tags for a bot, ordered the way the
// transformer selects them.
func (r *TagRepository) ActiveTags(ctx context.Context, botName string) ([]models.AffiliateTag, error) {
	query := selectTagColumns + `
		FROM affiliate_tags
		WHERE bot_name = $1 AND is_active = TRUE
		ORDER BY priority ASC, commission_rate DESC, id ASC`

	rows, err := r.db.QueryContext(ctx, query, botName)
	if err != nil {
		return nil, fmt.Errorf("failed to query active tags: %w", err)
	}
	defer rows.Close()

	return scanTags(rows)
}

// List returns all tags, active or not, for the admin API.
func (r *TagRepository) List(ctx context.Context) ([]models.AffiliateTag, error) {
	rows, err := r.db.QueryContext(ctx, selectTagColumns+" FROM affiliate_tags ORDER BY bot_name, priority, id")
	if err != nil {
		return nil, fmt.Errorf("failed to list tags: %w", err)
	}
	defer rows.Close()

	return scanTags(rows)
}

// Create inserts a tag and fills its generated id and created_at.
func (r *TagRepository) Create(ctx context.Context, tag *models.AffiliateTag) error {
	query := `
		INSERT INTO affiliate_tags (bot_name, network_name, tag_type, tag_value, priority, commission_rate, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`

	err := r.db.QueryRowContext(ctx, query,
		tag.BotName, tag.Network, tag.TagType, tag.TagValue,
		tag.Priority, tag.CommissionRate, tag.Active,
	).Scan(&tag.ID, &tag.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create tag: %w", err)
	}
	return nil
}

// Update rewrites a tag's mutable fields.
func (r *TagRepository) Update(ctx context.Context, tag models.AffiliateTag) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE affiliate_tags
		SET network_name = $1, tag_type = $2, tag_value = $3, priority = $4,
		    commission_rate = $5, is_active = $6
		WHERE id = $7`,
		tag.Network, tag.TagType, tag.TagValue, tag.Priority,
		tag.CommissionRate, tag.Active, tag.ID)
	if err != nil {
		return fmt.Errorf("failed to update tag: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check tag update: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("tag %d not found", tag.ID)
	}
	return nil
}

// Delete removes a tag.
func (r *TagRepository) Delete(ctx context.Context, tagID int64) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM affiliate_tags WHERE id = $1", tagID)
	if err != nil {
		return fmt.Errorf("failed to delete tag: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check tag delete: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("tag %d not found", tagID)
	}
	return nil
}

// TouchLastUsed records that a tag was just applied.
func (r *TagRepository) TouchLastUsed(ctx context.Context, tagID int64) error {
	if _, err := r.db.ExecContext(ctx,
		"UPDATE affiliate_tags SET last_used = NOW() WHERE id = $1", tagID); err != nil {
		return fmt.Errorf("failed to touch tag last_used: %w", err)
	}
	return nil
}

// BulkSetCommission replaces commission rates per network/category from an
// uploaded sheet, in one transaction.
func (r *TagRepository) BulkSetCommission(ctx context.Context, uploads []models.CommissionUpload) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin commission upload: %w", err)
	}

	for _, upload := range uploads {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO commission_rates (network_name, category, rate, updated_at)
			VALUES ($1, $2, $3, NOW())
			ON CONFLICT (network_name, category) DO UPDATE SET
				rate = EXCLUDED.rate,
				updated_at = EXCLUDED.updated_at`,
			upload.Network, upload.Category, upload.Rate)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to upsert commission rate for %s/%s: %w", upload.Network, upload.Category, err)
		}

		_, err = tx.ExecContext(ctx,
			"UPDATE affiliate_tags SET commission_rate = $1 WHERE network_name = $2",
			upload.Rate, upload.Network)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to propagate commission rate for %s: %w", upload.Network, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit commission upload: %w", err)
	}
	return nil
}

func scanTags(rows *sql.Rows) ([]models.AffiliateTag, error) {
	var tags []models.AffiliateTag
	for rows.Next() {
		var tag models.AffiliateTag
		var lastUsed sql.NullTime
		err := rows.Scan(
			&tag.ID, &tag.BotName, &tag.Network, &tag.TagType, &tag.TagValue,
			&tag.Priority, &tag.CommissionRate, &tag.Active, &lastUsed, &tag.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tag: %w", err)
		}
		if lastUsed.Valid {
			tag.LastUsed = &lastUsed.Time
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}
