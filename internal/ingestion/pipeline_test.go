package ingestion

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/dealforge/dealforge/internal/extract"
	"github.com/dealforge/dealforge/internal/models"
)

type stubResolver struct {
	resolved map[string]string
}

func (s *stubResolver) Resolve(_ context.Context, rawURL string) string {
	if final, ok := s.resolved[rawURL]; ok {
		return final
	}
	return rawURL
}

type stubScraper struct {
	product *models.ExtractedProduct
	err     error
	calls   int
}

func (s *stubScraper) Scrape(_ context.Context, _ string) (*models.ExtractedProduct, error) {
	s.calls++
	return s.product, s.err
}

type stubTransformer struct{}

func (stubTransformer) Transform(_ context.Context, _, rawURL string) string {
	return rawURL + "?aff=1"
}

type capturingPersister struct {
	channel      models.SourceChannel
	msg          models.IngestedMessage
	product      models.ExtractedProduct
	affiliateURL string
	calls        int
}

func (c *capturingPersister) Persist(_ context.Context, channel models.SourceChannel, msg models.IngestedMessage, product models.ExtractedProduct, affiliateURL string) (*models.ContentEntry, error) {
	c.calls++
	c.channel, c.msg, c.product, c.affiliateURL = channel, msg, product, affiliateURL
	return &models.ContentEntry{SourceID: msg.SourceID(), Title: product.Title}, nil
}

func newTestPipeline(t *testing.T, resolver URLResolver, scraper PageScraper, persister EntryPersister) *Pipeline {
	t.Helper()
	if resolver == nil {
		resolver = &stubResolver{}
	}
	if scraper == nil {
		scraper = &stubScraper{}
	}
	return NewPipeline(
		extract.New(), resolver, scraper, stubTransformer{}, persister,
		testCollector(t), slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
}

func TestPipelineEndToEnd(t *testing.T) {
	persister := &capturingPersister{}
	scraper := &stubScraper{}
	p := newTestPipeline(t, nil, scraper, persister)

	channel := models.SourceChannel{BotID: "prime-picks", ChannelID: -100111, PageSlug: "prime-picks"}
	msg := models.IngestedMessage{
		ChannelID: -100111,
		MessageID: 7,
		Text:      "Premium Wireless Earbuds\n₹1,999 ₹4,999\nhttps://www.amazon.in/dp/B0X",
	}

	p.Process(context.Background(), channel, msg)

	if persister.calls != 1 {
		t.Fatalf("persister calls = %d", persister.calls)
	}
	if persister.product.Title != "Premium Wireless Earbuds" {
		t.Errorf("Title = %q", persister.product.Title)
	}
	if persister.product.Price != "₹1,999" || persister.product.OriginalPrice != "₹4,999" {
		t.Errorf("prices = %q / %q", persister.product.Price, persister.product.OriginalPrice)
	}
	if scraper.calls != 0 {
		t.Errorf("scraper called %d times with a title already extracted", scraper.calls)
	}
	if persister.affiliateURL != "https://www.amazon.in/dp/B0X?aff=1" {
		t.Errorf("affiliateURL = %q", persister.affiliateURL)
	}
}

func TestPipelineScrapesWhenTitleMissing(t *testing.T) {
	persister := &capturingPersister{}
	scraper := &stubScraper{product: &models.ExtractedProduct{
		Title:    "Bluetooth Speaker",
		Price:    "₹1,499",
		ImageURL: "https://cdn.example.com/speaker.jpg",
	}}
	p := newTestPipeline(t, nil, scraper, persister)

	// A bare link has no title to extract, which is the one case worth a
	// page fetch.
	msg := models.IngestedMessage{
		ChannelID: 1, MessageID: 8,
		Text: "https://www.flipkart.com/speaker/p/s1",
	}
	p.Process(context.Background(), models.SourceChannel{BotID: "b"}, msg)

	if scraper.calls != 1 {
		t.Fatalf("scraper calls = %d, want 1", scraper.calls)
	}
	if persister.product.Title != "Bluetooth Speaker" || persister.product.Price != "₹1,499" {
		t.Errorf("merged product = %+v", persister.product)
	}
	if persister.product.ImageURL != "https://cdn.example.com/speaker.jpg" {
		t.Errorf("ImageURL = %q", persister.product.ImageURL)
	}
}

func TestPipelineSkipsUnusableMessage(t *testing.T) {
	persister := &capturingPersister{}
	p := newTestPipeline(t, nil, nil, persister)

	p.Process(context.Background(), models.SourceChannel{BotID: "b"}, models.IngestedMessage{Text: "hi"})

	if persister.calls != 0 {
		t.Errorf("persister calls = %d, want 0", persister.calls)
	}
}

func TestPipelineResolvesShortLinks(t *testing.T) {
	persister := &capturingPersister{}
	resolver := &stubResolver{resolved: map[string]string{
		"https://amzn.to/3xYz": "https://www.amazon.in/dp/B0SHORT",
	}}
	p := newTestPipeline(t, resolver, nil, persister)

	msg := models.IngestedMessage{
		ChannelID: 1, MessageID: 2,
		Text: "Steal Deal! Sony Headphones at ₹6,999\nhttps://amzn.to/3xYz",
	}
	p.Process(context.Background(), models.SourceChannel{BotID: "b"}, msg)

	if !strings.HasPrefix(persister.affiliateURL, "https://www.amazon.in/dp/B0SHORT") {
		t.Errorf("affiliateURL = %q, want resolved destination", persister.affiliateURL)
	}
}

func TestPipelineDirectAmazonTagOverride(t *testing.T) {
	persister := &capturingPersister{}
	p := newTestPipeline(t, nil, nil, persister)

	channel := models.SourceChannel{BotID: "prime-picks", AmazonTag: "primepicks-21"}
	msg := models.IngestedMessage{
		ChannelID: 1, MessageID: 3,
		Text: "Mixer Grinder Deal @ ₹1,499 Reg @ ₹3,299\nhttps://www.amazon.in/dp/B0MIX?ref=x",
	}
	p.Process(context.Background(), channel, msg)

	want := "https://www.amazon.in/dp/B0MIX?tag=primepicks-21&linkCode=as2&camp=1789&creative=9325"
	if persister.affiliateURL != want {
		t.Errorf("affiliateURL = %q, want %q", persister.affiliateURL, want)
	}
}

func TestPipelineSurvivesScrapeFailure(t *testing.T) {
	persister := &capturingPersister{}
	scraper := &stubScraper{err: errors.New("blocked")}
	p := newTestPipeline(t, nil, scraper, persister)

	msg := models.IngestedMessage{
		ChannelID: 1, MessageID: 4,
		Text: "https://www.myntra.com/shoes/99",
	}
	p.Process(context.Background(), models.SourceChannel{BotID: "b"}, msg)

	if scraper.calls != 1 {
		t.Fatalf("scraper calls = %d, want 1", scraper.calls)
	}
	if persister.calls != 1 {
		t.Fatalf("persister calls = %d, deal dropped on scrape failure", persister.calls)
	}
	if persister.affiliateURL != "https://www.myntra.com/shoes/99?aff=1" {
		t.Errorf("affiliateURL = %q", persister.affiliateURL)
	}
}

func TestPipelineSkipsScrapeWhenTitleExtracted(t *testing.T) {
	persister := &capturingPersister{}
	scraper := &stubScraper{}
	p := newTestPipeline(t, nil, scraper, persister)

	// An extracted title suppresses the page fetch even with no image in
	// the message.
	msg := models.IngestedMessage{
		ChannelID: 1, MessageID: 5,
		Text: "Premium Wireless Earbuds\nDeal @ ₹999 Reg @ ₹1,999\nhttps://www.flipkart.com/earbuds/p/x",
	}
	p.Process(context.Background(), models.SourceChannel{BotID: "b"}, msg)

	if persister.calls != 1 {
		t.Fatal("expected persist")
	}
	if scraper.calls != 0 {
		t.Errorf("scraper called %d times, want 0", scraper.calls)
	}
	if persister.product.Price != "₹999" || persister.product.OriginalPrice != "₹1,999" {
		t.Errorf("prices = %q / %q", persister.product.Price, persister.product.OriginalPrice)
	}
}

func TestPipelineUsesMessagePhoto(t *testing.T) {
	persister := &capturingPersister{}
	p := newTestPipeline(t, nil, nil, persister)

	msg := models.IngestedMessage{
		ChannelID: 1, MessageID: 6,
		PhotoRef: "https://cdn.telegram.org/file/abc.jpg",
		Text:     "Smart Watch at ₹2,499\nhttps://www.flipkart.com/watch/p/y",
	}
	p.Process(context.Background(), models.SourceChannel{BotID: "b"}, msg)

	if persister.product.ImageURL != "https://cdn.telegram.org/file/abc.jpg" {
		t.Errorf("ImageURL = %q, want message photo", persister.product.ImageURL)
	}
}
