package extract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/dealforge/dealforge/internal/models"
)

// Extractor derives structured deal data from raw promotional text. It never
// fails: fields it cannot recover stay empty and the caller decides whether
// the result is usable.
type Extractor struct{}

// New creates a text extractor.
func New() *Extractor {
	return &Extractor{}
}

// StrategyPattern identifies results produced by pure text parsing, as
// opposed to the scrape-based enrichment applied downstream.
const StrategyPattern = "pattern"

// Extract parses one message into a typed result with a confidence score.
func (e *Extractor) Extract(text string) models.ParseResult {
	product := models.ExtractedProduct{
		URLs: ExtractURLs(text),
	}

	lines := splitLines(text)
	product.Title = extractTitle(lines)

	for _, s := range priceStrategies {
		if price, original, discount, ok := s.fn(text); ok {
			product.Price = price
			product.OriginalPrice = original
			product.Discount = discount
			break
		}
	}

	if product.Discount == "" {
		if m := discountRe.FindStringSubmatch(text); m != nil {
			product.Discount = m[1] + "%"
		}
	}

	product.Description = extractDescription(lines, text)

	return models.ParseResult{
		Product:    product,
		Parsed:     product.Title != "" || len(product.URLs) > 0,
		Confidence: confidence(product),
		Strategy:   StrategyPattern,
	}
}

func confidence(p models.ExtractedProduct) float64 {
	score := 0.0
	if p.Title != "" {
		score += 0.4
	}
	if p.Price != "" {
		score += 0.3
	}
	if len(p.URLs) > 0 {
		score += 0.2
	}
	if p.OriginalPrice != "" {
		score += 0.1
	}
	return score
}

// URL extraction

var (
	knownDomainRe = regexp.MustCompile(`(?i)(?:https?://)?(?:www\.)?(?:amazon\.(?:in|com)|flipkart\.com|myntra\.com|ajio\.com|nykaa\.com|meesho\.com|snapdeal\.com)/[^\s]+`)
	genericURLRe  = regexp.MustCompile(`(?i)https?://[^\s]+`)
	shortLinkRe   = regexp.MustCompile(`(?i)(?:https?://)?(?:bit\.ly|tinyurl\.com|goo\.gl|t\.co|short\.link|amzn\.to|fkrt\.it|a\.co)/[^\s]+`)

	trailingPunctRe = regexp.MustCompile(`[.,;!?)\]]+$`)
)

// ExtractURLs applies the ordered pattern set (known domains, generic,
// shorteners), unions the matches and normalizes them.
func ExtractURLs(text string) []string {
	var raw []string
	raw = append(raw, knownDomainRe.FindAllString(text, -1)...)
	raw = append(raw, genericURLRe.FindAllString(text, -1)...)
	raw = append(raw, shortLinkRe.FindAllString(text, -1)...)

	seen := make(map[string]bool)
	var urls []string
	for _, u := range raw {
		u = trailingPunctRe.ReplaceAllString(u, "")
		if !strings.HasPrefix(strings.ToLower(u), "http") {
			u = "https://" + u
		}
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		urls = append(urls, u)
	}
	return urls
}

// Title extraction

var productKeywords = []string{
	"headphones", "mouse", "watch", "laptop", "phone", "smartphone", "tablet",
	"camera", "speaker", "earbuds", "charger", "cable", "adapter", "keyboard",
	"monitor", "tv", "television", "gaming", "wireless", "bluetooth", "smart",
	"premium", "pro", "max", "mini", "ultra", "edition", "series", "model",
	"samsung", "apple", "sony", "lg", "mi", "xiaomi", "oneplus", "realme",
	"oppo", "vivo", "nokia", "motorola", "asus", "hp", "dell", "lenovo",
	"acer", "canon", "nikon", "jbl", "boat", "bose", "bike", "electric",
	"kids", "children", "toy", "game",
}

var (
	titleAtPriceRe = regexp.MustCompile(`(?i)^(.+?)\s+at\s+₹`)
	mathOnlyRe     = regexp.MustCompile(`^[0-9\s\-+*/=()]+$`)
	hasLetterRe    = regexp.MustCompile(`[a-zA-Z]`)
)

func extractTitle(lines []string) string {
	var fallback string

	for _, line := range lines {
		clean := stripDecorations(line)
		if skipForTitle(clean) {
			continue
		}

		if m := titleAtPriceRe.FindStringSubmatch(clean); m != nil {
			return strings.TrimSpace(m[1])
		}

		lower := strings.ToLower(clean)
		hasKeyword := false
		for _, kw := range productKeywords {
			if strings.Contains(lower, kw) {
				hasKeyword = true
				break
			}
		}
		if hasKeyword {
			return clean
		}

		looksLikeName := len(clean) > 10 && len(clean) < 150 &&
			hasLetterRe.MatchString(clean) && !mathOnlyRe.MatchString(clean)
		if looksLikeName && fallback == "" {
			fallback = clean
		}
	}

	if fallback != "" {
		return fallback
	}

	// Last resort: first reasonably sized non-URL line, price suffix removed.
	for _, line := range lines {
		clean := stripDecorations(line)
		if clean == "" || strings.HasPrefix(clean, "http") ||
			strings.HasPrefix(strings.ToLower(clean), "link:") {
			continue
		}
		if len(clean) <= 5 || len(clean) >= 150 {
			continue
		}
		if before := strings.TrimSpace(splitBeforePrice(clean)); len(before) > 5 {
			return before
		}
		return clean
	}

	return ""
}

func skipForTitle(clean string) bool {
	if clean == "" || strings.HasPrefix(clean, "http") {
		return true
	}
	if strings.HasPrefix(strings.ToLower(clean), "link:") {
		return true
	}
	if strings.Contains(clean, "Deal @") || strings.Contains(clean, "Reg @") ||
		strings.Contains(clean, "Price:") || strings.Contains(clean, "MRP") {
		return true
	}
	return len(clean) < 8
}

var beforePriceRe = regexp.MustCompile(`(?i)\s+at\s+₹|\s+₹`)

func splitBeforePrice(line string) string {
	if loc := beforePriceRe.FindStringIndex(line); loc != nil {
		return line[:loc[0]]
	}
	return line
}

// Price extraction: ordered strategies, first match wins.

type priceStrategy struct {
	name string
	fn   func(text string) (price, original, discount string, ok bool)
}

var priceStrategies = []priceStrategy{
	{name: "deal-reg", fn: priceFromDealReg},
	{name: "rupee-pair", fn: priceFromRupeePair},
	{name: "discount-backfill", fn: priceFromDiscountPercent},
	{name: "mrp", fn: priceFromMRP},
	{name: "rupee-single", fn: priceFromRupeeSingle},
}

var (
	dealRegRe     = regexp.MustCompile(`(?i)deal\s*@\s*₹?\s*([\d,]+(?:\.\d+)?)(k?)[\s\S]*?reg\s*@\s*₹?\s*([\d,]+(?:\.\d+)?)(k?)`)
	rupeeAmountRe = regexp.MustCompile(`₹\s*([\d,]+(?:\.\d+)?)([kK]?)`)
	discountRe    = regexp.MustCompile(`(?i)(\d+)\s*%\s*(?:off|discount)`)
	mrpRe         = regexp.MustCompile(`(?i)MRP\s*:?\s*₹?\s*([\d,]+(?:\.\d+)?)([kK]?)`)
)

func priceFromDealReg(text string) (string, string, string, bool) {
	m := dealRegRe.FindStringSubmatch(text)
	if m == nil {
		return "", "", "", false
	}
	return "₹" + normalizeAmount(m[1], m[2]), "₹" + normalizeAmount(m[3], m[4]), "", true
}

// priceFromRupeePair takes the first two ₹ amounts as price and original
// price, in order of appearance.
func priceFromRupeePair(text string) (string, string, string, bool) {
	matches := rupeeAmountRe.FindAllStringSubmatch(text, -1)
	if len(matches) < 2 {
		return "", "", "", false
	}
	price := "₹" + normalizeAmount(matches[0][1], matches[0][2])
	original := "₹" + normalizeAmount(matches[1][1], matches[1][2])
	return price, original, "", true
}

// priceFromDiscountPercent back-computes the original price from a single
// amount plus an explicit discount percentage.
func priceFromDiscountPercent(text string) (string, string, string, bool) {
	pm := rupeeAmountRe.FindStringSubmatch(text)
	dm := discountRe.FindStringSubmatch(text)
	if pm == nil || dm == nil {
		return "", "", "", false
	}

	price := normalizeAmount(pm[1], pm[2])
	percent, err := strconv.Atoi(dm[1])
	if err != nil || percent <= 0 || percent >= 100 {
		return "", "", "", false
	}

	current, err := strconv.ParseFloat(strings.ReplaceAll(price, ",", ""), 64)
	if err != nil {
		return "", "", "", false
	}
	original := int(current/(1-float64(percent)/100) + 0.5)

	return "₹" + price, "₹" + strconv.Itoa(original), dm[1] + "%", true
}

func priceFromRupeeSingle(text string) (string, string, string, bool) {
	m := rupeeAmountRe.FindStringSubmatch(text)
	if m == nil {
		return "", "", "", false
	}
	return "₹" + normalizeAmount(m[1], m[2]), "", "", true
}

// priceFromMRP yields only an original price; the deal price is unknown.
func priceFromMRP(text string) (string, string, string, bool) {
	m := mrpRe.FindStringSubmatch(text)
	if m == nil {
		return "", "", "", false
	}
	return "", "₹" + normalizeAmount(m[1], m[2]), "", true
}

// normalizeAmount expands the "k" shorthand (₹2k -> 2000); plain amounts keep
// their original comma grouping.
func normalizeAmount(raw, suffix string) string {
	if suffix == "" {
		return raw
	}
	value, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", ""), 64)
	if err != nil {
		return raw
	}
	return strconv.FormatFloat(value*1000, 'f', -1, 64)
}

// Description

const maxDescriptionLen = 200

func extractDescription(lines []string, text string) string {
	for _, line := range lines {
		clean := stripDecorations(line)
		lower := strings.ToLower(clean)
		if strings.HasPrefix(lower, "description:") {
			return strings.TrimSpace(clean[len("description:"):])
		}
	}

	trimmed := strings.TrimSpace(text)
	runes := []rune(trimmed)
	if len(runes) <= maxDescriptionLen {
		return trimmed
	}
	return string(runes[:maxDescriptionLen]) + "..."
}

// Helpers

func splitLines(text string) []string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, strings.TrimSpace(line))
		}
	}
	return lines
}

// stripDecorations removes emoji and decorative glyphs so they do not leak
// into titles.
func stripDecorations(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 0x1F000 && r <= 0x1FAFF: // emoji blocks
		case r >= 0x2600 && r <= 0x27BF: // misc symbols and dingbats
		case r >= 0x2B00 && r <= 0x2BFF: // arrows, stars
		case r == 0xFE0F || r == 0x200D: // variation selector, joiner
		default:
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}
