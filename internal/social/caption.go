package social

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/dealforge/dealforge/internal/models"
)

// CaptionStore saves generated captions onto existing entries.
type CaptionStore interface {
	SaveCaption(ctx context.Context, entryID, caption string) error
}

// CaptionGenerator writes short social captions for stored deals. It plugs
// into the persistence pipeline as a notifier; a missing API key turns the
// whole thing into a no-op.
type CaptionGenerator struct {
	client *openai.Client
	model  string
	store  CaptionStore
	logger *slog.Logger
}

func NewCaptionGenerator(apiKey, model string, store CaptionStore, logger *slog.Logger) *CaptionGenerator {
	g := &CaptionGenerator{model: model, store: store, logger: logger}
	if apiKey != "" {
		g.client = openai.NewClient(apiKey)
	}
	return g
}

// Enabled reports whether caption generation is configured.
func (g *CaptionGenerator) Enabled() bool {
	return g.client != nil
}

// EntryStored generates and saves a caption for a freshly stored entry.
// Failures are logged and swallowed: captions are decoration, not pipeline
// state.
func (g *CaptionGenerator) EntryStored(ctx context.Context, entry *models.ContentEntry) {
	if g.client == nil || entry.Title == "" {
		return
	}

	caption, err := g.generate(ctx, entry)
	if err != nil {
		g.logger.Warn("caption generation failed", "entry_id", entry.ID, "error", err)
		return
	}

	if err := g.store.SaveCaption(ctx, entry.ID, caption); err != nil {
		g.logger.Warn("failed to save caption", "entry_id", entry.ID, "error", err)
		return
	}
	entry.Caption = caption
}

func (g *CaptionGenerator) generate(ctx context.Context, entry *models.ContentEntry) (string, error) {
	apiCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	resp, err := g.client.CreateChatCompletion(apiCtx, openai.ChatCompletionRequest{
		Model:     g.model,
		MaxTokens: 120,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "You write short, punchy deal captions for Indian shopping audiences. One or two sentences, at most one emoji, no hashtags, no links.",
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: captionPrompt(entry),
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}

	caption := strings.TrimSpace(resp.Choices[0].Message.Content)
	if caption == "" {
		return "", fmt.Errorf("chat completion returned empty caption")
	}
	return caption, nil
}

func captionPrompt(entry *models.ContentEntry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Product: %s\n", entry.Title)
	if entry.Content.Price != "" {
		fmt.Fprintf(&b, "Price: %s\n", entry.Content.Price)
	}
	if entry.Content.OriginalPrice != "" {
		fmt.Fprintf(&b, "Was: %s\n", entry.Content.OriginalPrice)
	}
	if entry.Discount > 0 {
		fmt.Fprintf(&b, "Discount: %d%%\n", entry.Discount)
	}
	b.WriteString("Write the caption.")
	return b.String()
}
