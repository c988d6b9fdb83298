package content

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"github.com/dealforge/dealforge/internal/models"
)

// EntryStore persists display-ready entries. Upsert keys on SourceID so an
// edited message updates its original row.
type EntryStore interface {
	Upsert(ctx context.Context, entry *models.ContentEntry) error
}

// Notifier receives every stored entry for downstream enrichment. A nil
// Notifier disables the hook.
type Notifier interface {
	EntryStored(ctx context.Context, entry *models.ContentEntry)
}

// Persister turns an extracted product into a stored ContentEntry.
type Persister struct {
	store    EntryStore
	notifier Notifier
	logger   *slog.Logger
}

func New(store EntryStore, notifier Notifier, logger *slog.Logger) *Persister {
	return &Persister{store: store, notifier: notifier, logger: logger}
}

// Persist builds the entry for one processed message and upserts it. The
// affiliate URL falls back to a placeholder so the link column is never
// empty; missing images likewise.
func (p *Persister) Persist(ctx context.Context, channel models.SourceChannel, msg models.IngestedMessage, product models.ExtractedProduct, affiliateURL string) (*models.ContentEntry, error) {
	if affiliateURL == "" {
		affiliateURL = models.PlaceholderDealURL
	}
	imageURL := product.ImageURL
	if imageURL == "" {
		imageURL = models.PlaceholderImageURL
	}

	discount := resolveDiscount(product)

	entry := &models.ContentEntry{
		SourceID:     msg.SourceID(),
		Title:        product.Title,
		Description:  product.Description,
		ImageURL:     imageURL,
		AffiliateURL: affiliateURL,
		ContentType:  "product",
		PageType:     channel.PageSlug,
		Category:     channel.Category,
		SourceType:   "telegram",
		Discount:     discount,
		DisplayPages: []string{channel.PageSlug},
		Content: models.ProductPayload{
			Price:         product.Price,
			OriginalPrice: product.OriginalPrice,
			Discount:      discount,
			Currency:      "INR",
			Description:   product.Description,
			ImageURL:      imageURL,
			AffiliateURL:  affiliateURL,
			PhotoRef:      msg.PhotoRef,
		},
	}

	if err := p.store.Upsert(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to store content entry: %w", err)
	}

	p.logger.Info("stored content entry",
		"source_id", entry.SourceID,
		"page", entry.PageType,
		"title", entry.Title,
		"edited", msg.Edited)

	if p.notifier != nil {
		p.notifier.EntryStored(ctx, entry)
	}

	return entry, nil
}

// resolveDiscount prefers the explicitly stated percentage and falls back to
// computing one from the price pair.
func resolveDiscount(product models.ExtractedProduct) int {
	if product.Discount != "" {
		if pct := parsePercent(product.Discount); pct > 0 {
			return pct
		}
	}
	price := parseAmount(product.Price)
	original := parseAmount(product.OriginalPrice)
	if price <= 0 || original <= 0 || price >= original {
		return 0
	}
	return int((original-price)/original*100 + 0.5)
}

func parsePercent(s string) int {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		} else if b.Len() > 0 {
			break
		}
	}
	if b.Len() == 0 {
		return 0
	}
	var pct int
	if _, err := fmt.Sscanf(b.String(), "%d", &pct); err != nil {
		return 0
	}
	if pct < 0 || pct > 100 {
		return 0
	}
	return pct
}

func parseAmount(formatted string) float64 {
	var b strings.Builder
	for _, r := range formatted {
		if unicode.IsDigit(r) || r == '.' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return 0
	}
	var v float64
	if _, err := fmt.Sscanf(b.String(), "%f", &v); err != nil {
		return 0
	}
	return v
}
