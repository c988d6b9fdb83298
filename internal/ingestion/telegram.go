package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"

	"github.com/dealforge/dealforge/internal/models"
)

// TelegramTransport receives channel posts through the Bot API long-polling
// library. The bot must be a member of the channel.
type TelegramTransport struct {
	channel models.SourceChannel
	logger  *slog.Logger
}

func NewTelegramTransport(channel models.SourceChannel, logger *slog.Logger) *TelegramTransport {
	return &TelegramTransport{channel: channel, logger: logger}
}

func (t *TelegramTransport) Method() models.IngestionMethod {
	return models.MethodTelegram
}

// Check verifies the bot token against the Bot API.
func (t *TelegramTransport) Check(ctx context.Context) error {
	b, err := bot.New(t.channel.BotToken, bot.WithSkipGetMe())
	if err != nil {
		return fmt.Errorf("failed to build bot client: %w", err)
	}
	if _, err := b.GetMe(ctx); err != nil {
		return fmt.Errorf("getMe failed: %w", err)
	}
	return nil
}

// Run starts long polling and blocks until the context is cancelled.
func (t *TelegramTransport) Run(ctx context.Context, events chan<- models.IngestedMessage) error {
	handler := func(ctx context.Context, b *bot.Bot, update *tgmodels.Update) {
		t.handleUpdate(ctx, update, events)
	}

	b, err := bot.New(t.channel.BotToken, bot.WithDefaultHandler(handler))
	if err != nil {
		return fmt.Errorf("failed to connect bot: %w", err)
	}

	t.logger.Info("telegram transport started", "bot", t.channel.BotID, "channel", t.channel.ChannelID)
	b.Start(ctx)
	return ctx.Err()
}

func (t *TelegramTransport) handleUpdate(ctx context.Context, update *tgmodels.Update, events chan<- models.IngestedMessage) {
	var msg *tgmodels.Message
	edited := false

	switch {
	case update.ChannelPost != nil:
		msg = update.ChannelPost
	case update.EditedChannelPost != nil:
		msg = update.EditedChannelPost
		edited = true
	case update.Message != nil:
		// Group-relayed posts arrive as plain messages.
		msg = update.Message
	default:
		return
	}

	if msg.Chat.ID != t.channel.ChannelID {
		return
	}

	text := msg.Text
	if text == "" {
		text = msg.Caption
	}

	photoRef := ""
	if len(msg.Photo) > 0 {
		photoRef = msg.Photo[len(msg.Photo)-1].FileID
	}

	event := models.IngestedMessage{
		ChannelID:  msg.Chat.ID,
		MessageID:  msg.ID,
		Text:       text,
		PhotoRef:   photoRef,
		Edited:     edited,
		ReceivedAt: time.Now().UTC(),
	}

	select {
	case events <- event:
	case <-ctx.Done():
	}
}
