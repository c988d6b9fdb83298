package content

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/dealforge/dealforge/internal/models"
)

type memStore struct {
	entries map[string]*models.ContentEntry
	upserts int
}

func newMemStore() *memStore {
	return &memStore{entries: make(map[string]*models.ContentEntry)}
}

func (m *memStore) Upsert(_ context.Context, entry *models.ContentEntry) error {
	m.upserts++
	m.entries[entry.SourceID] = entry
	return nil
}

type recordingNotifier struct {
	stored []*models.ContentEntry
}

func (r *recordingNotifier) EntryStored(_ context.Context, entry *models.ContentEntry) {
	r.stored = append(r.stored, entry)
}

func testChannel() models.SourceChannel {
	return models.SourceChannel{
		BotID:    "prime-picks",
		PageSlug: "prime-picks",
		Category: "electronics",
	}
}

func testPersister(store EntryStore, notifier Notifier) *Persister {
	return New(store, notifier, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestPersistBuildsEntry(t *testing.T) {
	store := newMemStore()
	notifier := &recordingNotifier{}
	p := testPersister(store, notifier)

	msg := models.IngestedMessage{ChannelID: -100123, MessageID: 42, ReceivedAt: time.Now()}
	product := models.ExtractedProduct{
		Title:         "Premium Wireless Earbuds",
		Price:         "₹999",
		OriginalPrice: "₹1,999",
		ImageURL:      "https://cdn.example.com/earbuds.jpg",
	}

	entry, err := p.Persist(context.Background(), testChannel(), msg, product, "https://www.amazon.in/dp/B0X?tag=primepicks-21&linkCode=as2&camp=1789&creative=9325")
	if err != nil {
		t.Fatalf("Persist returned error: %v", err)
	}

	if entry.SourceID != "-100123:42" {
		t.Errorf("SourceID = %q", entry.SourceID)
	}
	if entry.Discount != 50 {
		t.Errorf("Discount = %d, want 50", entry.Discount)
	}
	if entry.ContentType != "product" || entry.SourceType != "telegram" {
		t.Errorf("type fields = %q/%q", entry.ContentType, entry.SourceType)
	}
	if entry.PageType != "prime-picks" || len(entry.DisplayPages) != 1 || entry.DisplayPages[0] != "prime-picks" {
		t.Errorf("page fields = %q %v", entry.PageType, entry.DisplayPages)
	}
	if entry.Content.Currency != "INR" {
		t.Errorf("Currency = %q", entry.Content.Currency)
	}
	if len(notifier.stored) != 1 {
		t.Errorf("notifier received %d entries, want 1", len(notifier.stored))
	}
}

func TestPersistAppliesPlaceholders(t *testing.T) {
	store := newMemStore()
	p := testPersister(store, nil)

	msg := models.IngestedMessage{ChannelID: 1, MessageID: 2}
	entry, err := p.Persist(context.Background(), testChannel(), msg, models.ExtractedProduct{Title: "Mystery Box Deal"}, "")
	if err != nil {
		t.Fatalf("Persist returned error: %v", err)
	}

	if entry.AffiliateURL != models.PlaceholderDealURL {
		t.Errorf("AffiliateURL = %q", entry.AffiliateURL)
	}
	if entry.ImageURL != models.PlaceholderImageURL {
		t.Errorf("ImageURL = %q", entry.ImageURL)
	}
}

func TestPersistDeduplicatesOnSourceID(t *testing.T) {
	store := newMemStore()
	p := testPersister(store, nil)

	msg := models.IngestedMessage{ChannelID: 5, MessageID: 9}
	if _, err := p.Persist(context.Background(), testChannel(), msg, models.ExtractedProduct{Title: "First Title"}, ""); err != nil {
		t.Fatal(err)
	}

	msg.Edited = true
	if _, err := p.Persist(context.Background(), testChannel(), msg, models.ExtractedProduct{Title: "Edited Title"}, ""); err != nil {
		t.Fatal(err)
	}

	if store.upserts != 2 {
		t.Errorf("upserts = %d, want 2", store.upserts)
	}
	if len(store.entries) != 1 {
		t.Errorf("distinct entries = %d, want 1", len(store.entries))
	}
	if got := store.entries["5:9"].Title; got != "Edited Title" {
		t.Errorf("Title after edit = %q", got)
	}
}

func TestResolveDiscount(t *testing.T) {
	cases := []struct {
		name    string
		product models.ExtractedProduct
		want    int
	}{
		{"explicit percent wins", models.ExtractedProduct{Discount: "60%", Price: "₹999", OriginalPrice: "₹1,999"}, 60},
		{"computed from price pair", models.ExtractedProduct{Price: "₹999", OriginalPrice: "₹1,999"}, 50},
		{"no original price", models.ExtractedProduct{Price: "₹999"}, 0},
		{"price above original", models.ExtractedProduct{Price: "₹2,999", OriginalPrice: "₹1,999"}, 0},
		{"bogus percent ignored", models.ExtractedProduct{Discount: "900%"}, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := resolveDiscount(tc.product); got != tc.want {
				t.Errorf("resolveDiscount = %d, want %d", got, tc.want)
			}
		})
	}
}
