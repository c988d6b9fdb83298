package affiliate

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/dealforge/dealforge/internal/models"
)

type stubTagSource struct {
	tags    []models.AffiliateTag
	err     error
	touched []int64
}

func (s *stubTagSource) ActiveTags(_ context.Context, _ string) ([]models.AffiliateTag, error) {
	return s.tags, s.err
}

func (s *stubTagSource) TouchLastUsed(_ context.Context, tagID int64) error {
	s.touched = append(s.touched, tagID)
	return nil
}

func testTransformer(src *stubTagSource) *Transformer {
	return New(src, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestTransformAmazonURL(t *testing.T) {
	src := &stubTagSource{tags: []models.AffiliateTag{
		{ID: 1, BotName: "prime-picks", Network: "amazon", TagType: models.TagTypeParameter, TagValue: "primepicks-21", Priority: 1, Active: true},
	}}

	got := testTransformer(src).Transform(context.Background(), "prime-picks",
		"https://www.amazon.in/dp/B0ABC123?ref=sr_1_1&pd_rd_w=xyz")

	want := "https://www.amazon.in/dp/B0ABC123?tag=primepicks-21&linkCode=as2&camp=1789&creative=9325"
	if got != want {
		t.Errorf("Transform = %q, want %q", got, want)
	}
	if len(src.touched) != 1 || src.touched[0] != 1 {
		t.Errorf("touched = %v, want [1]", src.touched)
	}
}

func TestTransformWrapperTemplate(t *testing.T) {
	src := &stubTagSource{tags: []models.AffiliateTag{
		{ID: 7, BotName: "cue-picks", Network: "cuelinks", TagType: models.TagTypeWrapper,
			TagValue: "https://linksredirect.com/?cid=243942&source=linkkit&url={{URL_ENC}}", Priority: 1, Active: true},
	}}

	got := testTransformer(src).Transform(context.Background(), "cue-picks", "https://www.myntra.com/kurta/123")

	want := "https://linksredirect.com/?cid=243942&source=linkkit&url=https%3A%2F%2Fwww.myntra.com%2Fkurta%2F123"
	if got != want {
		t.Errorf("Transform = %q, want %q", got, want)
	}
}

func TestTransformWrapperTagOnAmazonURL(t *testing.T) {
	// A wrapper tag's value is a redirect template, not an associate id, so
	// an Amazon link still goes through the wrapper.
	src := &stubTagSource{tags: []models.AffiliateTag{
		{ID: 5, BotName: "cue-picks", Network: "cuelinks", TagType: models.TagTypeWrapper,
			TagValue: "https://linksredirect.com/?cid=243942&source=linkkit&url={{URL_ENC}}", Priority: 1, Active: true},
	}}

	got := testTransformer(src).Transform(context.Background(), "cue-picks", "https://www.amazon.in/dp/B0ABC123")

	want := "https://linksredirect.com/?cid=243942&source=linkkit&url=https%3A%2F%2Fwww.amazon.in%2Fdp%2FB0ABC123"
	if got != want {
		t.Errorf("Transform = %q, want %q", got, want)
	}
}

func TestTransformFixedURLTagOnAmazonURL(t *testing.T) {
	src := &stubTagSource{tags: []models.AffiliateTag{
		{ID: 6, TagType: models.TagTypeURL, TagValue: "https://deals.example.com/amazon", Priority: 1, Active: true},
	}}
	got := testTransformer(src).Transform(context.Background(), "b", "https://amzn.to/3xYz")
	if got != "https://deals.example.com/amazon" {
		t.Errorf("got %q", got)
	}
}

func TestTransformParameterAppend(t *testing.T) {
	src := &stubTagSource{tags: []models.AffiliateTag{
		{ID: 2, TagType: models.TagTypeParameter, TagValue: "affid=deal42", Priority: 1, Active: true},
	}}
	tr := testTransformer(src)

	if got := tr.Transform(context.Background(), "b", "https://www.flipkart.com/item/p/x"); got != "https://www.flipkart.com/item/p/x?affid=deal42" {
		t.Errorf("bare URL: got %q", got)
	}
	if got := tr.Transform(context.Background(), "b", "https://www.flipkart.com/item/p/x?pid=1"); got != "https://www.flipkart.com/item/p/x?pid=1&affid=deal42" {
		t.Errorf("URL with query: got %q", got)
	}
}

func TestTransformPassthrough(t *testing.T) {
	t.Run("no tags", func(t *testing.T) {
		got := testTransformer(&stubTagSource{}).Transform(context.Background(), "b", "https://example.com/p")
		if got != "https://example.com/p" {
			t.Errorf("got %q", got)
		}
	})

	t.Run("source error", func(t *testing.T) {
		src := &stubTagSource{err: errors.New("db down")}
		got := testTransformer(src).Transform(context.Background(), "b", "https://example.com/p")
		if got != "https://example.com/p" {
			t.Errorf("got %q", got)
		}
	})

	t.Run("only inactive tags", func(t *testing.T) {
		src := &stubTagSource{tags: []models.AffiliateTag{
			{ID: 1, TagType: models.TagTypeParameter, TagValue: "x=1", Priority: 1, Active: false},
		}}
		got := testTransformer(src).Transform(context.Background(), "b", "https://example.com/p")
		if got != "https://example.com/p" {
			t.Errorf("got %q", got)
		}
	})
}

func TestSelectTag(t *testing.T) {
	t.Run("lowest priority number wins", func(t *testing.T) {
		tag, ok := SelectTag([]models.AffiliateTag{
			{ID: 1, Priority: 2, Active: true},
			{ID: 2, Priority: 1, Active: true},
		}, models.CommissionMethodPriority)
		if !ok || tag.ID != 2 {
			t.Errorf("got id=%d ok=%v, want id=2", tag.ID, ok)
		}
	})

	t.Run("commission breaks priority ties", func(t *testing.T) {
		tag, ok := SelectTag([]models.AffiliateTag{
			{ID: 1, Priority: 1, CommissionRate: 4.0, Active: true},
			{ID: 2, Priority: 1, CommissionRate: 7.5, Active: true},
		}, models.CommissionMethodPriority)
		if !ok || tag.ID != 2 {
			t.Errorf("got id=%d ok=%v, want id=2", tag.ID, ok)
		}
	})

	t.Run("id breaks full ties", func(t *testing.T) {
		tag, ok := SelectTag([]models.AffiliateTag{
			{ID: 9, Priority: 1, CommissionRate: 5, Active: true},
			{ID: 3, Priority: 1, CommissionRate: 5, Active: true},
		}, models.CommissionMethodPriority)
		if !ok || tag.ID != 3 {
			t.Errorf("got id=%d ok=%v, want id=3", tag.ID, ok)
		}
	})

	t.Run("commission method ranks by rate first", func(t *testing.T) {
		tags := []models.AffiliateTag{
			{ID: 1, Priority: 1, CommissionRate: 4.0, Active: true},
			{ID: 2, Priority: 5, CommissionRate: 9.0, Active: true},
		}
		tag, ok := SelectTag(tags, models.CommissionMethodCommission)
		if !ok || tag.ID != 2 {
			t.Errorf("got id=%d ok=%v, want id=2 (highest rate)", tag.ID, ok)
		}

		// The same table under the priority method keeps the priority winner.
		tag, ok = SelectTag(tags, models.CommissionMethodPriority)
		if !ok || tag.ID != 1 {
			t.Errorf("got id=%d ok=%v, want id=1", tag.ID, ok)
		}
	})

	t.Run("commission method falls back to priority on equal rates", func(t *testing.T) {
		tag, ok := SelectTag([]models.AffiliateTag{
			{ID: 1, Priority: 3, CommissionRate: 5, Active: true},
			{ID: 2, Priority: 1, CommissionRate: 5, Active: true},
		}, models.CommissionMethodCommission)
		if !ok || tag.ID != 2 {
			t.Errorf("got id=%d ok=%v, want id=2", tag.ID, ok)
		}
	})
}

func TestTransformerCommissionMethodSwitch(t *testing.T) {
	src := &stubTagSource{tags: []models.AffiliateTag{
		{ID: 1, TagType: models.TagTypeParameter, TagValue: "low=1", Priority: 1, CommissionRate: 2.0, Active: true},
		{ID: 2, TagType: models.TagTypeParameter, TagValue: "high=1", Priority: 9, CommissionRate: 8.0, Active: true},
	}}
	tr := testTransformer(src)

	if got := tr.Transform(context.Background(), "b", "https://example.com/p"); got != "https://example.com/p?low=1" {
		t.Errorf("priority method: got %q", got)
	}

	tr.SetCommissionMethod(models.CommissionMethodCommission)
	if got := tr.Transform(context.Background(), "b", "https://example.com/p"); got != "https://example.com/p?high=1" {
		t.Errorf("commission method: got %q", got)
	}

	tr.SetCommissionMethod("nonsense")
	if got := tr.Transform(context.Background(), "b", "https://example.com/p"); got != "https://example.com/p?low=1" {
		t.Errorf("unknown method should fall back to priority: got %q", got)
	}
}

func TestTransformFixedURLTag(t *testing.T) {
	src := &stubTagSource{tags: []models.AffiliateTag{
		{ID: 4, TagType: models.TagTypeURL, TagValue: "https://deals.example.com/landing", Priority: 1, Active: true},
	}}
	got := testTransformer(src).Transform(context.Background(), "b", "https://www.nykaa.com/lipstick/p/9")
	if got != "https://deals.example.com/landing" {
		t.Errorf("got %q", got)
	}
}
