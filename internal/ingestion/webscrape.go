package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/dealforge/dealforge/internal/models"
)

// ScrapeTransport polls the public t.me/s/<channel> preview page. It needs
// no bot membership and works for any public channel, at the cost of
// polling latency and no edit notifications.
type ScrapeTransport struct {
	channel       models.SourceChannel
	client        *http.Client
	pollInterval  time.Duration
	logger        *slog.Logger
	lastMessageID int
}

var backgroundImageRe = regexp.MustCompile(`background-image:\s*url\('([^']+)'\)`)

func NewScrapeTransport(channel models.SourceChannel, pollInterval, httpTimeout time.Duration, logger *slog.Logger) *ScrapeTransport {
	return &ScrapeTransport{
		channel:      channel,
		client:       &http.Client{Timeout: httpTimeout},
		pollInterval: pollInterval,
		logger:       logger,
	}
}

func (t *ScrapeTransport) Method() models.IngestionMethod {
	return models.MethodScraping
}

func (t *ScrapeTransport) pageURL() string {
	return "https://t.me/s/" + t.channel.ChannelName
}

// Check fetches the preview page once to confirm the channel is public.
func (t *ScrapeTransport) Check(ctx context.Context) error {
	if t.channel.ChannelName == "" {
		return fmt.Errorf("channel %s has no public username", t.channel.BotID)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.pageURL(), nil)
	if err != nil {
		return err
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("preview page unreachable: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("preview page returned status %d", resp.StatusCode)
	}
	return nil
}

// Run polls the preview page on the configured interval. The first poll
// only establishes the high-water mark so history is not re-ingested.
func (t *ScrapeTransport) Run(ctx context.Context, events chan<- models.IngestedMessage) error {
	if err := t.poll(ctx, nil); err != nil {
		return err
	}

	ticker := time.NewTicker(t.pollInterval)
	defer ticker.Stop()

	t.logger.Info("scrape transport started", "bot", t.channel.BotID, "page", t.pageURL())

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := t.poll(ctx, events); err != nil {
				return err
			}
		}
	}
}

func (t *ScrapeTransport) poll(ctx context.Context, events chan<- models.IngestedMessage) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.pageURL(), nil)
	if err != nil {
		return err
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch preview page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("preview page returned status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to parse preview page: %w", err)
	}

	doc.Find(".tgme_widget_message").Each(func(_ int, sel *goquery.Selection) {
		post, ok := sel.Attr("data-post")
		if !ok {
			return
		}
		messageID := parsePostID(post)
		if messageID == 0 || messageID <= t.lastMessageID {
			return
		}
		t.lastMessageID = messageID

		if events == nil {
			return
		}

		text := strings.TrimSpace(sel.Find(".tgme_widget_message_text").First().Text())

		photoRef := ""
		if style, ok := sel.Find(".tgme_widget_message_photo_wrap").First().Attr("style"); ok {
			if m := backgroundImageRe.FindStringSubmatch(style); m != nil {
				photoRef = m[1]
			}
		}

		event := models.IngestedMessage{
			ChannelID:  t.channel.ChannelID,
			MessageID:  messageID,
			Text:       text,
			PhotoRef:   photoRef,
			ReceivedAt: time.Now().UTC(),
		}

		select {
		case events <- event:
		case <-ctx.Done():
		}
	})

	return nil
}

// parsePostID extracts the numeric message id from a "channel/1234"
// data-post attribute.
func parsePostID(post string) int {
	idx := strings.LastIndexByte(post, '/')
	if idx < 0 {
		return 0
	}
	id, err := strconv.Atoi(post[idx+1:])
	if err != nil {
		return 0
	}
	return id
}
