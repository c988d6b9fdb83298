package scrape

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// SelectorSet lists page-element selectors per extracted field. Selectors are
// tried in order; the first non-empty match wins.
type SelectorSet struct {
	Title         []string `yaml:"title"`
	Price         []string `yaml:"price"`
	OriginalPrice []string `yaml:"original_price"`
	Image         []string `yaml:"image"`
}

// SelectorConfig is the declarative selector configuration, keyed by
// platform. The generic set is appended after the platform-specific one so
// new sites work without code changes.
type SelectorConfig struct {
	Platforms map[string]SelectorSet `yaml:"platforms"`
	Generic   SelectorSet            `yaml:"generic"`
}

// platformKeywords drive domain-based platform detection.
var platformKeywords = []string{
	"amazon", "flipkart", "myntra", "ajio", "nykaa",
	"meesho", "snapdeal", "paytm", "shopclues", "tatacliq",
}

// DetectPlatform classifies a URL by domain keyword; unknown URLs still get
// the generic selector set.
func DetectPlatform(url string) string {
	lower := strings.ToLower(url)
	for _, kw := range platformKeywords {
		if strings.Contains(lower, kw) {
			return kw
		}
	}
	return "unknown"
}

// DefaultSelectorConfig returns the built-in selector cascade.
func DefaultSelectorConfig() SelectorConfig {
	return SelectorConfig{
		Platforms: map[string]SelectorSet{
			"amazon": {
				Title:         []string{"#productTitle", ".a-size-large.product-title-word-break"},
				Price:         []string{".a-price-whole", ".a-offscreen"},
				OriginalPrice: []string{".a-price.a-text-price .a-offscreen"},
				Image:         []string{"#landingImage", ".a-dynamic-image"},
			},
			"flipkart": {
				Title:         []string{"._35KyD6", ".B_NuCI"},
				Price:         []string{"._30jeq3._16Jk6d", "._30jeq3", "._1_WHN1", ".Nx9bqj"},
				OriginalPrice: []string{"._3I9_wc._2p6lqe", "._3I9_wc", "._2p6lqe", "._1vC4OE"},
				Image:         []string{"._396cs4._2amPTt._3qGmMb img", "._2r_T1I img", "._396cs4 img", ".q6DClP img"},
			},
		},
		Generic: SelectorSet{
			Title: []string{
				"h1", ".product-title", ".product-name",
				`[data-testid="product-title"]`, ".pdp-product-name",
				".product-info h1", ".item-title",
			},
			Price: []string{
				".price", ".current-price", ".sale-price", ".offer-price",
				".price-current", ".price-now", `[data-testid="price"]`,
			},
			OriginalPrice: []string{
				".original-price", ".regular-price", ".was-price",
				".list-price", ".mrp", ".price-original",
				`[data-testid="original-price"]`,
			},
			Image: []string{
				".product-image img", ".main-image img", ".hero-image img",
				`[data-testid="product-image"]`, ".product-gallery img:first-child",
				`img[alt*="product"]`, `img[alt*="Product"]`,
			},
		},
	}
}

// LoadSelectorConfig merges optional YAML overrides over the defaults. An
// empty path yields the defaults unchanged.
func LoadSelectorConfig(path string) (SelectorConfig, error) {
	cfg := DefaultSelectorConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return SelectorConfig{}, fmt.Errorf("failed to read selector config: %w", err)
	}

	var overrides SelectorConfig
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return SelectorConfig{}, fmt.Errorf("failed to parse selector config: %w", err)
	}

	for platform, set := range overrides.Platforms {
		if cfg.Platforms == nil {
			cfg.Platforms = make(map[string]SelectorSet)
		}
		cfg.Platforms[platform] = set
	}
	if !overrides.Generic.empty() {
		cfg.Generic = overrides.Generic
	}

	return cfg, nil
}

func (s SelectorSet) empty() bool {
	return len(s.Title) == 0 && len(s.Price) == 0 &&
		len(s.OriginalPrice) == 0 && len(s.Image) == 0
}

// cascade returns the ordered selector lists for a platform: the
// platform-specific set first, then the generic fallbacks.
func (c SelectorConfig) cascade(platform string) (title, price, original, image []string) {
	if set, ok := c.Platforms[platform]; ok {
		title = append(title, set.Title...)
		price = append(price, set.Price...)
		original = append(original, set.OriginalPrice...)
		image = append(image, set.Image...)
	}
	title = append(title, c.Generic.Title...)
	price = append(price, c.Generic.Price...)
	original = append(original, c.Generic.OriginalPrice...)
	image = append(image, c.Generic.Image...)
	return title, price, original, image
}
