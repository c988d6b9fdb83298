package ingestion

import (
	"context"
	"log/slog"
	"strings"

	"github.com/dealforge/dealforge/internal/affiliate"
	"github.com/dealforge/dealforge/internal/extract"
	"github.com/dealforge/dealforge/internal/metrics"
	"github.com/dealforge/dealforge/internal/models"
)

// URLResolver expands shortened redirect links.
type URLResolver interface {
	Resolve(ctx context.Context, rawURL string) string
}

// PageScraper recovers product fields from the destination page when the
// message text alone was not enough.
type PageScraper interface {
	Scrape(ctx context.Context, rawURL string) (*models.ExtractedProduct, error)
}

// LinkTransformer monetizes the product URL.
type LinkTransformer interface {
	Transform(ctx context.Context, botName, rawURL string) string
}

// EntryPersister stores the finished entry.
type EntryPersister interface {
	Persist(ctx context.Context, channel models.SourceChannel, msg models.IngestedMessage, product models.ExtractedProduct, affiliateURL string) (*models.ContentEntry, error)
}

// Pipeline runs one message through extraction, resolution, scrape
// fallback, affiliate transformation and persistence. Stages degrade
// independently: a failed scrape or transform never drops a deal that text
// extraction already recovered.
type Pipeline struct {
	extractor   *extract.Extractor
	resolver    URLResolver
	scraper     PageScraper
	transformer LinkTransformer
	persister   EntryPersister
	collector   *metrics.Collector
	logger      *slog.Logger
}

func NewPipeline(
	extractor *extract.Extractor,
	resolver URLResolver,
	scraper PageScraper,
	transformer LinkTransformer,
	persister EntryPersister,
	collector *metrics.Collector,
	logger *slog.Logger,
) *Pipeline {
	return &Pipeline{
		extractor:   extractor,
		resolver:    resolver,
		scraper:     scraper,
		transformer: transformer,
		persister:   persister,
		collector:   collector,
		logger:      logger,
	}
}

// Process implements Processor for one ingested message.
func (p *Pipeline) Process(ctx context.Context, channel models.SourceChannel, msg models.IngestedMessage) {
	result := p.extractor.Extract(msg.Text)
	product := result.Product

	if !result.Parsed && len(product.URLs) == 0 {
		p.collector.ExtractionSkipped(channel.BotID)
		p.logger.Debug("message yielded no product, skipped",
			"bot", channel.BotID, "message_id", msg.MessageID)
		return
	}

	productURL := ""
	if len(product.URLs) > 0 {
		productURL = p.resolver.Resolve(ctx, product.URLs[0])
	}

	// A photo attached to the message beats no image at all. Scrape
	// transports hand over a direct https URL; Bot API file ids are kept
	// in the payload for later download instead.
	if product.ImageURL == "" && strings.HasPrefix(msg.PhotoRef, "https://") {
		product.ImageURL = msg.PhotoRef
	}

	if p.needsScrape(product) && productURL != "" {
		scraped, err := p.scraper.Scrape(ctx, productURL)
		if err != nil {
			p.collector.ScrapeFailed(channel.BotID)
			p.logger.Warn("page scrape failed",
				"bot", channel.BotID, "url", productURL, "error", err)
		} else if scraped != nil {
			product.Merge(*scraped)
		}
	}

	affiliateURL := ""
	if productURL != "" {
		affiliateURL = p.monetize(ctx, channel, productURL)
	}

	entry, err := p.persister.Persist(ctx, channel, msg, product, affiliateURL)
	if err != nil {
		p.logger.Error("failed to persist entry",
			"bot", channel.BotID, "message_id", msg.MessageID, "error", err)
		return
	}

	p.collector.EntryStored(channel.BotID)
	p.logger.Info("deal processed",
		"bot", channel.BotID,
		"source_id", entry.SourceID,
		"strategy", result.Strategy,
		"confidence", result.Confidence)
}

// needsScrape reports whether the page fetch fallback applies. The fetch
// costs seconds, so it fires only when text extraction found no title; a
// missing price or image alone does not justify it.
func (p *Pipeline) needsScrape(product models.ExtractedProduct) bool {
	return product.Title == ""
}

// monetize applies the channel's direct Amazon tag when configured,
// otherwise defers to the tag table.
func (p *Pipeline) monetize(ctx context.Context, channel models.SourceChannel, productURL string) string {
	if channel.AmazonTag != "" && affiliate.IsAmazonURL(productURL) {
		rewritten, err := affiliate.AmazonURL(productURL, channel.AmazonTag)
		if err == nil {
			return rewritten
		}
		p.logger.Warn("direct amazon tag failed, falling back to tag table",
			"bot", channel.BotID, "error", err)
	}
	return p.transformer.Transform(ctx, channel.BotID, productURL)
}
