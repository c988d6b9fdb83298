package affiliate

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/dealforge/dealforge/internal/models"
)

// TagSource supplies the active affiliate tags for a bot and records usage.
type TagSource interface {
	ActiveTags(ctx context.Context, botName string) ([]models.AffiliateTag, error)
	TouchLastUsed(ctx context.Context, tagID int64) error
}

// Transformer rewrites product URLs into monetized affiliate links. A URL
// that cannot be transformed passes through unchanged so a deal is never
// dropped over monetization.
type Transformer struct {
	tags   TagSource
	method atomic.Value // commission method, a models.CommissionMethod* string
	logger *slog.Logger
}

func New(tags TagSource, logger *slog.Logger) *Transformer {
	t := &Transformer{tags: tags, logger: logger}
	t.method.Store(models.CommissionMethodPriority)
	return t
}

// SetCommissionMethod switches how competing tags are ranked. Unknown values
// fall back to priority ordering.
func (t *Transformer) SetCommissionMethod(method string) {
	if method != models.CommissionMethodCommission {
		method = models.CommissionMethodPriority
	}
	t.method.Store(method)
}

func (t *Transformer) commissionMethod() string {
	return t.method.Load().(string)
}

// Transform applies the best available tag for botName to rawURL. A
// parameter-type tag on an Amazon domain gets the Associates parameter
// treatment; every other combination follows the tag's own type.
func (t *Transformer) Transform(ctx context.Context, botName, rawURL string) string {
	tags, err := t.tags.ActiveTags(ctx, botName)
	if err != nil {
		t.logger.Warn("failed to load affiliate tags, passing URL through", "bot", botName, "error", err)
		return rawURL
	}

	tag, ok := SelectTag(tags, t.commissionMethod())
	if !ok {
		return rawURL
	}

	transformed, err := applyTag(tag, rawURL)
	if err != nil {
		t.logger.Warn("failed to apply affiliate tag, passing URL through",
			"bot", botName, "tag_id", tag.ID, "error", err)
		return rawURL
	}

	if err := t.tags.TouchLastUsed(ctx, tag.ID); err != nil {
		t.logger.Warn("failed to record tag usage", "tag_id", tag.ID, "error", err)
	}

	return transformed
}

// SelectTag picks the winning tag. The priority method ranks by lowest
// priority number, ties broken by higher commission rate; the commission
// method ranks by highest commission rate, ties broken by lower priority
// number. Row id breaks any remaining tie for a stable total order.
func SelectTag(tags []models.AffiliateTag, method string) (models.AffiliateTag, bool) {
	active := tags[:0:0]
	for _, tag := range tags {
		if tag.Active {
			active = append(active, tag)
		}
	}
	if len(active) == 0 {
		return models.AffiliateTag{}, false
	}

	byCommission := method == models.CommissionMethodCommission
	sort.Slice(active, func(i, j int) bool {
		if byCommission && active[i].CommissionRate != active[j].CommissionRate {
			return active[i].CommissionRate > active[j].CommissionRate
		}
		if active[i].Priority != active[j].Priority {
			return active[i].Priority < active[j].Priority
		}
		if active[i].CommissionRate != active[j].CommissionRate {
			return active[i].CommissionRate > active[j].CommissionRate
		}
		return active[i].ID < active[j].ID
	})

	return active[0], true
}

func applyTag(tag models.AffiliateTag, rawURL string) (string, error) {
	// The Associates parameter block only makes sense for a parameter-type
	// tag whose value is an associate id. A wrapper or url tag applied to an
	// Amazon link still follows its own type.
	if tag.TagType == models.TagTypeParameter && IsAmazonURL(rawURL) {
		return AmazonURL(rawURL, tag.TagValue)
	}

	switch tag.TagType {
	case models.TagTypeParameter:
		return appendParameter(rawURL, tag.TagValue)
	case models.TagTypeWrapper:
		return wrapURL(tag.TagValue, rawURL)
	case models.TagTypeURL:
		return tag.TagValue, nil
	default:
		return "", fmt.Errorf("unknown tag type %q", tag.TagType)
	}
}

// IsAmazonURL reports whether the URL belongs to an Amazon storefront or
// amzn.to shortener.
func IsAmazonURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	return host == "amzn.to" || host == "amazon.in" || host == "amazon.com" ||
		strings.HasSuffix(host, ".amazon.in") || strings.HasSuffix(host, ".amazon.com")
}

// AmazonURL strips tracking query parameters and appends the Associates
// parameter block expected by the network.
func AmazonURL(rawURL, tagValue string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid amazon URL: %w", err)
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u.String() + "?tag=" + tagValue + "&linkCode=as2&camp=1789&creative=9325", nil
}

// appendParameter adds a key=value pair, respecting an existing query string.
func appendParameter(rawURL, param string) (string, error) {
	if _, err := url.Parse(rawURL); err != nil {
		return "", fmt.Errorf("invalid URL: %w", err)
	}
	sep := "?"
	if strings.Contains(rawURL, "?") {
		sep = "&"
	}
	return rawURL + sep + param, nil
}

// wrapURL substitutes the encoded destination into a wrapper template. A
// template without the placeholder gets the encoded URL appended.
func wrapURL(template, rawURL string) (string, error) {
	encoded := url.QueryEscape(rawURL)
	if strings.Contains(template, models.WrapperURLPlaceholder) {
		return strings.ReplaceAll(template, models.WrapperURLPlaceholder, encoded), nil
	}
	return template + encoded, nil
}
