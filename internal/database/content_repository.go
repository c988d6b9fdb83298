package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dealforge/dealforge/internal/models"
)

// ContentRepository persists display-ready content entries in PostgreSQL.
type ContentRepository struct {
	db *sql.DB
}

func NewContentRepository(db *sql.DB) *ContentRepository {
	return &ContentRepository{db: db}
}

// Upsert inserts the entry, or on a source_id conflict updates the existing
// row in place. Edited channel posts flow through this path so a deal is
// never duplicated.
func (r *ContentRepository) Upsert(ctx context.Context, entry *models.ContentEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	entry.UpdatedAt = now

	payloadJSON, err := json.Marshal(entry.Content)
	if err != nil {
		return fmt.Errorf("failed to marshal content payload: %w", err)
	}
	pagesJSON, err := json.Marshal(entry.DisplayPages)
	if err != nil {
		return fmt.Errorf("failed to marshal display pages: %w", err)
	}

	query := `
		INSERT INTO content_entries (
			id, source_id, title, description, image_url, affiliate_url,
			content_type, page_type, category, source_type, discount,
			display_pages, content, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (source_id) DO UPDATE SET
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			image_url = EXCLUDED.image_url,
			affiliate_url = EXCLUDED.affiliate_url,
			category = EXCLUDED.category,
			discount = EXCLUDED.discount,
			display_pages = EXCLUDED.display_pages,
			content = EXCLUDED.content,
			updated_at = EXCLUDED.updated_at
		RETURNING id, created_at
	`

	err = r.db.QueryRowContext(ctx, query,
		entry.ID, entry.SourceID, entry.Title, entry.Description,
		entry.ImageURL, entry.AffiliateURL, entry.ContentType, entry.PageType,
		entry.Category, entry.SourceType, entry.Discount,
		pagesJSON, payloadJSON, entry.CreatedAt, entry.UpdatedAt,
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert content entry: %w", err)
	}

	return nil
}

// SaveCaption stores a generated social caption on an existing entry.
func (r *ContentRepository) SaveCaption(ctx context.Context, entryID, caption string) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE content_entries SET caption = $1, updated_at = NOW() WHERE id = $2",
		caption, entryID)
	if err != nil {
		return fmt.Errorf("failed to save caption: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check caption update: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("content entry %s not found", entryID)
	}
	return nil
}

// GetBySourceID retrieves one entry by its deduplication key. Returns nil
// when no entry exists.
func (r *ContentRepository) GetBySourceID(ctx context.Context, sourceID string) (*models.ContentEntry, error) {
	row := r.db.QueryRowContext(ctx, selectEntryColumns+" FROM content_entries WHERE source_id = $1", sourceID)
	entry, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query content entry: %w", err)
	}
	return entry, nil
}

// List returns the most recent entries, optionally filtered by page slug.
func (r *ContentRepository) List(ctx context.Context, pageType string, limit int) ([]*models.ContentEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	query := selectEntryColumns + " FROM content_entries"
	args := []interface{}{}
	if pageType != "" {
		query += " WHERE page_type = $1"
		args = append(args, pageType)
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT %d", limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list content entries: %w", err)
	}
	defer rows.Close()

	var entries []*models.ContentEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan content entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

const selectEntryColumns = `
	SELECT id, source_id, title, description, image_url, affiliate_url,
	       content_type, page_type, category, source_type, discount,
	       display_pages, content, COALESCE(caption, ''), created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(row rowScanner) (*models.ContentEntry, error) {
	var entry models.ContentEntry
	var pagesJSON, payloadJSON []byte

	err := row.Scan(
		&entry.ID, &entry.SourceID, &entry.Title, &entry.Description,
		&entry.ImageURL, &entry.AffiliateURL, &entry.ContentType,
		&entry.PageType, &entry.Category, &entry.SourceType, &entry.Discount,
		&pagesJSON, &payloadJSON, &entry.Caption,
		&entry.CreatedAt, &entry.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(pagesJSON) > 0 {
		if err := json.Unmarshal(pagesJSON, &entry.DisplayPages); err != nil {
			return nil, fmt.Errorf("failed to unmarshal display pages: %w", err)
		}
	}
	if len(payloadJSON) > 0 {
		if err := json.Unmarshal(payloadJSON, &entry.Content); err != nil {
			return nil, fmt.Errorf("failed to unmarshal content payload: %w", err)
		}
	}

	return &entry, nil
}
