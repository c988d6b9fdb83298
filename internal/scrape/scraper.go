package scrape

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode"

	"github.com/PuerkitoBio/goquery"

	"github.com/dealforge/dealforge/internal/models"
)

const scraperUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// placeholderMarkers disqualify image URLs that are loading shims rather
// than product photos.
var placeholderMarkers = []string{
	"placeholder", "no-image", "default", "loading", "spinner", "blank",
}

// Scraper fetches a product page and recovers title, prices and image via
// per-platform selector cascades. It is the fallback when message text alone
// did not yield a usable product.
type Scraper struct {
	client    *http.Client
	selectors SelectorConfig
	logger    *slog.Logger
}

func New(timeout time.Duration, selectors SelectorConfig, logger *slog.Logger) *Scraper {
	return &Scraper{
		client:    &http.Client{Timeout: timeout},
		selectors: selectors,
		logger:    logger,
	}
}

// Scrape fetches the page at rawURL and extracts product fields. A nil
// product with nil error means the page yielded nothing usable; the pipeline
// falls back to whatever the message text produced.
func (s *Scraper) Scrape(ctx context.Context, rawURL string) (*models.ExtractedProduct, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build scrape request: %w", err)
	}
	req.Header.Set("User-Agent", scraperUserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("page returned status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse page HTML: %w", err)
	}

	platform := DetectPlatform(rawURL)
	titleSels, priceSels, originalSels, imageSels := s.selectors.cascade(platform)

	product := &models.ExtractedProduct{
		Title:         firstText(doc, titleSels),
		Price:         normalizePrice(firstText(doc, priceSels)),
		OriginalPrice: normalizePrice(firstText(doc, originalSels)),
		ImageURL:      s.firstImage(doc, imageSels, resp.Request.URL),
	}

	if product.Title == "" && product.Price == "" {
		s.logger.Debug("scrape yielded no usable fields", "url", rawURL, "platform", platform)
		return nil, nil
	}

	if product.Price != "" && product.OriginalPrice != "" {
		if pct := discountPercent(product.Price, product.OriginalPrice); pct > 0 {
			product.Discount = fmt.Sprintf("%d%%", pct)
		}
	}

	s.logger.Debug("scraped product page",
		"url", rawURL,
		"platform", platform,
		"title", product.Title != "",
		"price", product.Price != "",
		"image", product.ImageURL != "")

	return product, nil
}

// firstText returns the trimmed text of the first selector matching a
// non-empty element.
func firstText(doc *goquery.Document, selectors []string) string {
	for _, sel := range selectors {
		text := strings.TrimSpace(doc.Find(sel).First().Text())
		if text != "" {
			return text
		}
	}
	return ""
}

// firstImage resolves the first usable image source against the page origin,
// skipping placeholder assets.
func (s *Scraper) firstImage(doc *goquery.Document, selectors []string, base *url.URL) string {
	for _, sel := range selectors {
		src, ok := doc.Find(sel).First().Attr("src")
		if !ok || src == "" {
			src, ok = doc.Find(sel).First().Attr("data-src")
			if !ok || src == "" {
				continue
			}
		}
		if isPlaceholderImage(src) {
			continue
		}
		if resolved := resolveImageURL(src, base); resolved != "" {
			return resolved
		}
	}
	return ""
}

func isPlaceholderImage(src string) bool {
	lower := strings.ToLower(src)
	for _, marker := range placeholderMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func resolveImageURL(src string, base *url.URL) string {
	ref, err := url.Parse(strings.TrimSpace(src))
	if err != nil {
		return ""
	}
	if base != nil {
		ref = base.ResolveReference(ref)
	}
	if ref.Scheme != "http" && ref.Scheme != "https" {
		return ""
	}
	return ref.String()
}

// normalizePrice reduces a scraped price string to its first numeric run and
// formats it with the rupee symbol. Page text often carries currency glyphs,
// whitespace and duplicated values.
func normalizePrice(text string) string {
	if text == "" {
		return ""
	}

	var b strings.Builder
	started := false
	for _, r := range text {
		switch {
		case unicode.IsDigit(r):
			b.WriteRune(r)
			started = true
		case started && (r == ',' || r == '.'):
			b.WriteRune(r)
		case started:
			return "₹" + strings.TrimRight(b.String(), ",.")
		}
	}
	if !started {
		return ""
	}
	return "₹" + strings.TrimRight(b.String(), ",.")
}

// discountPercent computes the rounded percentage saved, or 0 when the
// inputs do not describe a real markdown.
func discountPercent(price, original string) int {
	p := parseAmount(price)
	o := parseAmount(original)
	if p <= 0 || o <= 0 || p >= o {
		return 0
	}
	return int((o-p)/o*100 + 0.5)
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
