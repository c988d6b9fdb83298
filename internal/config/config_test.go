package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dealforge/dealforge/internal/models"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CHANNELS_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("PORT", "")
	t.Setenv("SERVER_PORT", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("LOG_FORMAT", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Pipeline.ScrapeTimeout != 15*time.Second {
		t.Errorf("expected default scrape timeout 15s, got %v", cfg.Pipeline.ScrapeTimeout)
	}
	if cfg.Pipeline.QueueSize != 64 {
		t.Errorf("expected default queue size 64, got %d", cfg.Pipeline.QueueSize)
	}
	if len(cfg.Channels) != 0 {
		t.Errorf("expected no channels for missing file, got %d", len(cfg.Channels))
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "negative timeout", key: "SCRAPE_TIMEOUT_SECONDS", value: "-5"},
		{name: "non-numeric queue", key: "EVENT_QUEUE_SIZE", value: "lots"},
		{name: "zero queue", key: "EVENT_QUEUE_SIZE", value: "0"},
		{name: "bad log level", key: "LOG_LEVEL", value: "verbose"},
		{name: "bad log format", key: "LOG_FORMAT", value: "pretty"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("CHANNELS_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
			t.Setenv(tt.key, tt.value)
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%s", tt.key, tt.value)
			}
		})
	}
}

func TestLoadChannels(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "channels.yaml")

	doc := `channels:
  - bot_id: prime-picks
    channel_id: -1002955338551
    channel_name: primepicks
    network: amazon
    page_slug: prime-picks
    category: Electronics
    enabled: true
    amazon_tag: pickntrust03-21
    methods_available: [telegram, scraping, api]
  - bot_id: cue-picks
    channel_id: -1002982344997
    network: cuelinks
    page_slug: cue-picks
    enabled: true
`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}

	channels, err := LoadChannels(path)
	if err != nil {
		t.Fatalf("LoadChannels returned error: %v", err)
	}

	if len(channels) != 2 {
		t.Fatalf("expected 2 channels, got %d", len(channels))
	}

	first := channels[0]
	if first.BotID != "prime-picks" || first.ChannelID != -1002955338551 {
		t.Errorf("unexpected first channel: %+v", first)
	}
	if !first.HasMethod(models.MethodScraping) {
		t.Error("expected prime-picks to support scraping")
	}

	// Method defaults to telegram when omitted
	second := channels[1]
	if second.Method != models.MethodTelegram {
		t.Errorf("expected default method telegram, got %s", second.Method)
	}
	if len(second.MethodsAvailable) != 1 || second.MethodsAvailable[0] != models.MethodTelegram {
		t.Errorf("unexpected methods_available: %v", second.MethodsAvailable)
	}
}

func TestLoadChannelsRejectsUnknownMethod(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "channels.yaml")

	doc := `channels:
  - bot_id: prime-picks
    channel_id: -100
    method: api
    methods_available: [telegram]
`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadChannels(path); err == nil {
		t.Fatal("expected error for method outside methods_available")
	}
}
