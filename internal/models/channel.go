package models

import (
	"time"
)

// IngestionMethod selects how a channel listener receives posts.
type IngestionMethod string

const (
	MethodTelegram IngestionMethod = "telegram" // Bot API long polling via library
	MethodScraping IngestionMethod = "scraping" // public t.me/s/<channel> HTML polling
	MethodAPI      IngestionMethod = "api"      // raw Bot API getUpdates calls
)

// BotState classifies a listener's operational condition.
type BotState string

const (
	StateInitializing BotState = "initializing"
	StateActive       BotState = "active"
	StateDegraded     BotState = "degraded"
	StateCritical     BotState = "critical"
	StateOffline      BotState = "offline"
)

// Health thresholds: errorCount 0-2 active, 3-10 degraded, >10 critical.
const (
	degradedErrorThreshold = 3
	criticalErrorThreshold = 10
)

// SourceChannel maps one external channel to one affiliate network identity.
// Channels are created at configuration time and only ever disabled, never
// deleted.
type SourceChannel struct {
	BotID            string            `json:"bot_id" yaml:"bot_id"`
	ChannelID        int64             `json:"channel_id" yaml:"channel_id"`
	ChannelName      string            `json:"channel_name" yaml:"channel_name"` // public username, used by the scraping method
	Network          string            `json:"network" yaml:"network"`
	PageSlug         string            `json:"page_slug" yaml:"page_slug"`
	Category         string            `json:"category" yaml:"category"`
	Method           IngestionMethod   `json:"method" yaml:"method"`
	MethodsAvailable []IngestionMethod `json:"methods_available" yaml:"methods_available"`
	Enabled          bool              `json:"enabled" yaml:"enabled"`
	BotToken         string            `json:"-" yaml:"bot_token"`
	APIKey           string            `json:"-" yaml:"api_key"`
	AmazonTag        string            `json:"amazon_tag" yaml:"amazon_tag"` // direct associate tag, overrides the tag table for Amazon domains
}

// HasMethod reports whether the channel supports the given ingestion method.
func (c SourceChannel) HasMethod(m IngestionMethod) bool {
	for _, avail := range c.MethodsAvailable {
		if avail == m {
			return true
		}
	}
	return false
}

// BotHealth tracks a listener's runtime condition. Counters are reset only by
// an explicit restart; a method switch preserves them.
type BotHealth struct {
	BotID             string          `json:"bot_id"`
	Connected         bool            `json:"is_connected"`
	ErrorCount        int             `json:"error_count"`
	RetryCount        int             `json:"retry_count"`
	Method            IngestionMethod `json:"mode"`
	LastError         string          `json:"last_error,omitempty"`
	LastMessageAt     time.Time       `json:"last_message_time"`
	MessagesProcessed int64           `json:"messages_processed"`
}

// State derives the supervisor classification from the health counters.
// A disconnected bot is offline regardless of its error count; a bot that has
// never connected nor errored is still initializing.
func (h BotHealth) State(enabled bool) BotState {
	if !enabled {
		return StateOffline
	}
	if !h.Connected {
		if h.ErrorCount == 0 && h.MessagesProcessed == 0 {
			return StateInitializing
		}
		return StateOffline
	}
	switch {
	case h.ErrorCount > criticalErrorThreshold:
		return StateCritical
	case h.ErrorCount >= degradedErrorThreshold:
		return StateDegraded
	default:
		return StateActive
	}
}

// IngestedMessage is one channel event flowing through the pipeline. It is
// ephemeral and never persisted beyond the pipeline run.
type IngestedMessage struct {
	ChannelID  int64
	MessageID  int
	Text       string
	PhotoRef   string
	Edited     bool
	ReceivedAt time.Time
}

// SourceID is the deduplication key for content derived from this message.
func (m IngestedMessage) SourceID() string {
	return formatSourceID(m.ChannelID, m.MessageID)
}
