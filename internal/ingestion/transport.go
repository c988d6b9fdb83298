package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dealforge/dealforge/internal/models"
)

// Transport receives posts from one channel over one ingestion method and
// emits them on the events channel. Run blocks until the context is
// cancelled or the transport fails; the supervisor restarts failed
// transports with backoff.
type Transport interface {
	Method() models.IngestionMethod
	Check(ctx context.Context) error
	Run(ctx context.Context, events chan<- models.IngestedMessage) error
}

// TransportFactory builds a transport for a channel and method. Factories
// let the registry swap methods at runtime without knowing transport
// internals.
type TransportFactory func(channel models.SourceChannel, method models.IngestionMethod) (Transport, error)

// TransportConfig carries the tunables shared by the polling transports.
type TransportConfig struct {
	PollInterval time.Duration
	HTTPTimeout  time.Duration
}

// NewTransportFactory returns the default factory covering all three
// ingestion methods.
func NewTransportFactory(cfg TransportConfig, logger *slog.Logger) TransportFactory {
	return func(channel models.SourceChannel, method models.IngestionMethod) (Transport, error) {
		switch method {
		case models.MethodTelegram:
			return NewTelegramTransport(channel, logger), nil
		case models.MethodScraping:
			return NewScrapeTransport(channel, cfg.PollInterval, cfg.HTTPTimeout, logger), nil
		case models.MethodAPI:
			return NewAPITransport(channel, cfg.HTTPTimeout, logger), nil
		default:
			return nil, fmt.Errorf("unknown ingestion method %q", method)
		}
	}
}
