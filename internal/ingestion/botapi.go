package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/dealforge/dealforge/internal/models"
)

const apiLongPollSeconds = 25

// APITransport polls the Bot API getUpdates endpoint directly. It exists as
// the manual fallback when the library transport misbehaves, and supports a
// separate API key rotated from the admin panel.
type APITransport struct {
	channel models.SourceChannel
	client  *http.Client
	logger  *slog.Logger
	offset  int64
}

func NewAPITransport(channel models.SourceChannel, httpTimeout time.Duration, logger *slog.Logger) *APITransport {
	// The poll request itself holds for apiLongPollSeconds; the client
	// timeout must exceed it.
	timeout := httpTimeout
	if timeout < (apiLongPollSeconds+10)*time.Second {
		timeout = (apiLongPollSeconds + 10) * time.Second
	}
	return &APITransport{
		channel: channel,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

func (t *APITransport) Method() models.IngestionMethod {
	return models.MethodAPI
}

func (t *APITransport) token() string {
	if t.channel.APIKey != "" {
		return t.channel.APIKey
	}
	return t.channel.BotToken
}

type apiEnvelope struct {
	OK          bool            `json:"ok"`
	ErrorCode   int             `json:"error_code"`
	Description string          `json:"description"`
	Result      json.RawMessage `json:"result"`
}

type apiUpdate struct {
	UpdateID          int64       `json:"update_id"`
	Message           *apiMessage `json:"message"`
	ChannelPost       *apiMessage `json:"channel_post"`
	EditedChannelPost *apiMessage `json:"edited_channel_post"`
}

type apiMessage struct {
	MessageID int    `json:"message_id"`
	Text      string `json:"text"`
	Caption   string `json:"caption"`
	Chat      struct {
		ID int64 `json:"id"`
	} `json:"chat"`
	Photo []struct {
		FileID string `json:"file_id"`
	} `json:"photo"`
}

// Check calls getMe with the configured key.
func (t *APITransport) Check(ctx context.Context) error {
	var envelope apiEnvelope
	if err := t.call(ctx, "getMe", nil, &envelope); err != nil {
		return err
	}
	if !envelope.OK {
		return fmt.Errorf("getMe rejected: %s", envelope.Description)
	}
	return nil
}

// Run long-polls getUpdates until cancelled. A 409 conflict means another
// consumer holds the same token; that is surfaced as a fatal error so the
// supervisor records it instead of looping hot.
func (t *APITransport) Run(ctx context.Context, events chan<- models.IngestedMessage) error {
	t.logger.Info("api transport started", "bot", t.channel.BotID, "channel", t.channel.ChannelID)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		updates, err := t.fetchUpdates(ctx)
		if err != nil {
			return err
		}

		for _, update := range updates {
			if update.UpdateID >= t.offset {
				t.offset = update.UpdateID + 1
			}
			t.emit(ctx, update, events)
		}
	}
}

func (t *APITransport) fetchUpdates(ctx context.Context) ([]apiUpdate, error) {
	params := url.Values{}
	params.Set("timeout", strconv.Itoa(apiLongPollSeconds))
	params.Set("allowed_updates", `["message","channel_post","edited_channel_post"]`)
	if t.offset > 0 {
		params.Set("offset", strconv.FormatInt(t.offset, 10))
	}

	var envelope apiEnvelope
	if err := t.call(ctx, "getUpdates", params, &envelope); err != nil {
		return nil, err
	}
	if !envelope.OK {
		if envelope.ErrorCode == http.StatusConflict {
			return nil, fmt.Errorf("getUpdates conflict: another consumer is polling this token")
		}
		return nil, fmt.Errorf("getUpdates rejected: %s", envelope.Description)
	}

	var updates []apiUpdate
	if err := json.Unmarshal(envelope.Result, &updates); err != nil {
		return nil, fmt.Errorf("failed to decode updates: %w", err)
	}
	return updates, nil
}

func (t *APITransport) call(ctx context.Context, method string, params url.Values, out *apiEnvelope) error {
	endpoint := "https://api.telegram.org/bot" + t.token() + "/" + method
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("bot API request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return fmt.Errorf("failed to read bot API response: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode bot API response: %w", err)
	}
	return nil
}

func (t *APITransport) emit(ctx context.Context, update apiUpdate, events chan<- models.IngestedMessage) {
	msg := update.ChannelPost
	edited := false
	switch {
	case msg != nil:
	case update.EditedChannelPost != nil:
		msg = update.EditedChannelPost
		edited = true
	case update.Message != nil:
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
		MessageID:  msg.MessageID,
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
