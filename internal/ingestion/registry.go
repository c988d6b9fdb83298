package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dealforge/dealforge/internal/metrics"
	"github.com/dealforge/dealforge/internal/models"
)

// Processor consumes dispatched channel events. The pipeline implements it.
type Processor interface {
	Process(ctx context.Context, channel models.SourceChannel, msg models.IngestedMessage)
}

// StateStore persists admin overrides so they survive restarts.
type StateStore interface {
	SaveChannelState(ctx context.Context, botID string, enabled bool, method models.IngestionMethod, apiKey string) error
}

// ChannelOverride is persisted runtime state applied over the static
// channel configuration at startup.
type ChannelOverride struct {
	Enabled bool
	Method  models.IngestionMethod
	APIKey  string
}

// BotStatus is one supervised listener's externally visible condition.
type BotStatus struct {
	Channel models.SourceChannel `json:"channel"`
	Health  models.BotHealth     `json:"health"`
	State   models.BotState      `json:"state"`
	Enabled bool                 `json:"enabled"`
}

// HealthSummary aggregates all listeners for the dashboard header.
type HealthSummary struct {
	Total         int     `json:"total"`
	Active        int     `json:"active"`
	Degraded      int     `json:"degraded"`
	Critical      int     `json:"critical"`
	Offline       int     `json:"offline"`
	Initializing  int     `json:"initializing"`
	HealthPercent float64 `json:"health_percent"`
}

type supervisedBot struct {
	mu      sync.Mutex
	channel models.SourceChannel
	health  models.BotHealth
	enabled bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// RegistryConfig tunes the supervisor.
type RegistryConfig struct {
	QueueSize int
	Policy    RetryPolicy
}

// Registry supervises one listener per configured channel: it starts and
// restarts transports, tracks per-bot health, and dispatches received
// events to the processor. Each listener owns a bounded queue and a
// dispatcher goroutine, so a slow pipeline run on one channel never delays
// the others.
type Registry struct {
	mu   sync.RWMutex
	bots map[string]*supervisedBot

	factory    TransportFactory
	processor  Processor
	states     StateStore
	collector  *metrics.Collector
	policy     RetryPolicy
	queueSize  int
	processing atomic.Bool
	logger     *slog.Logger

	runCtx context.Context
	wg     sync.WaitGroup
}

func NewRegistry(
	channels []models.SourceChannel,
	overrides map[string]ChannelOverride,
	factory TransportFactory,
	processor Processor,
	states StateStore,
	collector *metrics.Collector,
	cfg RegistryConfig,
	logger *slog.Logger,
) *Registry {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.Policy.InitialBackoff == 0 {
		cfg.Policy = DefaultRetryPolicy()
	}

	r := &Registry{
		bots:      make(map[string]*supervisedBot),
		factory:   factory,
		processor: processor,
		states:    states,
		collector: collector,
		policy:    cfg.Policy,
		queueSize: cfg.QueueSize,
		logger:    logger,
	}
	r.processing.Store(true)

	for _, channel := range channels {
		if override, ok := overrides[channel.BotID]; ok {
			channel.Enabled = override.Enabled
			if override.Method != "" && channel.HasMethod(override.Method) {
				channel.Method = override.Method
			}
			if override.APIKey != "" {
				channel.APIKey = override.APIKey
			}
		}
		r.bots[channel.BotID] = &supervisedBot{
			channel: channel,
			enabled: channel.Enabled,
			health:  models.BotHealth{BotID: channel.BotID, Method: channel.Method},
		}
	}

	return r
}

// SetProcessing flips the global kill switch. Events keep arriving while
// disabled but are dropped before any side effect.
func (r *Registry) SetProcessing(enabled bool) {
	r.processing.Store(enabled)
	r.logger.Info("processing switch changed", "enabled", enabled)
}

func (r *Registry) ProcessingEnabled() bool {
	return r.processing.Load()
}

// Start launches every enabled listener. It returns immediately; Stop
// blocks until everything has wound down.
func (r *Registry) Start(ctx context.Context) {
	r.runCtx = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, b := range r.bots {
		if b.enabled {
			r.startBot(b)
		}
	}
}

// Stop cancels all listeners and waits for their dispatchers to drain.
func (r *Registry) Stop() {
	r.mu.Lock()
	for _, b := range r.bots {
		if b.cancel != nil {
			b.cancel()
		}
	}
	r.mu.Unlock()
	r.wg.Wait()
}

func (r *Registry) dispatch(ctx context.Context, b *supervisedBot, events <-chan models.IngestedMessage) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-events:
			r.handleEvent(ctx, b, msg)
		}
	}
}

func (r *Registry) handleEvent(ctx context.Context, b *supervisedBot, msg models.IngestedMessage) {
	b.mu.Lock()
	botID := b.channel.BotID
	channel := b.channel
	b.mu.Unlock()

	// A dropped event leaves no trace in the counters either.
	if !r.processing.Load() {
		r.logger.Debug("processing disabled, dropping event", "bot", botID, "message_id", msg.MessageID)
		return
	}

	b.mu.Lock()
	b.health.LastMessageAt = msg.ReceivedAt
	b.health.MessagesProcessed++
	b.mu.Unlock()

	r.collector.MessageReceived(botID)
	r.processor.Process(ctx, channel, msg)
}

// startBot launches the supervision loop for one listener plus its own
// queue and dispatcher. It never touches the registry maps; the bot's own
// mutex guards its state.
func (r *Registry) startBot(b *supervisedBot) {
	parent := r.runCtx
	if parent == nil {
		parent = context.Background()
	}
	botCtx, cancel := context.WithCancel(parent)
	events := make(chan models.IngestedMessage, r.queueSize)
	b.mu.Lock()
	b.cancel = cancel
	b.done = make(chan struct{})
	done := b.done
	b.mu.Unlock()

	r.wg.Add(2)
	go func() {
		defer r.wg.Done()
		r.dispatch(botCtx, b, events)
	}()
	go func() {
		defer r.wg.Done()
		defer close(done)
		r.superviseBot(botCtx, b, events)
	}()
}

func (r *Registry) superviseBot(ctx context.Context, b *supervisedBot, events chan<- models.IngestedMessage) {
	attempt := 0
	for {
		if ctx.Err() != nil {
			r.markDisconnected(b)
			return
		}

		b.mu.Lock()
		channel := b.channel
		method := channel.Method
		b.mu.Unlock()

		transport, err := r.factory(channel, method)
		if err != nil {
			r.recordError(b, err)
			r.logger.Error("transport construction failed, listener stopped",
				"bot", channel.BotID, "method", method, "error", err)
			return
		}

		if err := transport.Check(ctx); err != nil {
			if ctx.Err() != nil {
				r.markDisconnected(b)
				return
			}
			r.recordError(b, err)
			attempt++
			if r.policy.Wait(ctx, attempt-1) != nil {
				r.markDisconnected(b)
				return
			}
			continue
		}

		b.mu.Lock()
		b.health.Connected = true
		b.mu.Unlock()
		r.logger.Info("listener connected", "bot", channel.BotID, "method", method)
		attempt = 0

		err = transport.Run(ctx, events)
		r.markDisconnected(b)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			r.recordError(b, err)
		}

		attempt++
		if r.policy.Wait(ctx, attempt-1) != nil {
			return
		}
	}
}

func (r *Registry) recordError(b *supervisedBot, err error) {
	b.mu.Lock()
	b.health.Connected = false
	b.health.ErrorCount++
	b.health.RetryCount++
	b.health.LastError = err.Error()
	botID := b.channel.BotID
	b.mu.Unlock()

	r.collector.TransportError(botID)
	r.logger.Warn("listener transport error", "bot", botID, "error", err)
}

func (r *Registry) markDisconnected(b *supervisedBot) {
	b.mu.Lock()
	b.health.Connected = false
	b.mu.Unlock()
}

func (r *Registry) bot(botID string) (*supervisedBot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.bots[botID]
	if !ok {
		return nil, fmt.Errorf("unknown bot %q", botID)
	}
	return b, nil
}

// stopBot cancels the listener and waits for its supervision loop to exit.
func (r *Registry) stopBot(b *supervisedBot) {
	b.mu.Lock()
	cancel, done := b.cancel, b.done
	b.cancel, b.done = nil, nil
	b.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		select {
		case <-done:
		case <-time.After(10 * time.Second):
			r.logger.Warn("timed out waiting for listener shutdown")
		}
	}
}

// Toggle enables or disables one listener and persists the choice.
func (r *Registry) Toggle(ctx context.Context, botID string, enabled bool) error {
	b, err := r.bot(botID)
	if err != nil {
		return err
	}

	b.mu.Lock()
	wasEnabled := b.enabled
	b.enabled = enabled
	b.channel.Enabled = enabled
	b.mu.Unlock()

	if enabled && !wasEnabled {
		r.startBot(b)
	} else if !enabled && wasEnabled {
		r.stopBot(b)
		r.markDisconnected(b)
	}

	return r.persistState(ctx, b)
}

// Restart stops the listener, resets its error counters, and starts it
// again. The lifetime message counter is preserved.
func (r *Registry) Restart(ctx context.Context, botID string) error {
	b, err := r.bot(botID)
	if err != nil {
		return err
	}

	b.mu.Lock()
	if !b.enabled {
		b.mu.Unlock()
		return fmt.Errorf("bot %q is disabled", botID)
	}
	b.mu.Unlock()

	r.stopBot(b)

	b.mu.Lock()
	b.health.ErrorCount = 0
	b.health.RetryCount = 0
	b.health.LastError = ""
	b.mu.Unlock()

	r.startBot(b)
	r.logger.Info("listener restarted", "bot", botID)
	return nil
}

// SwitchMethod moves a listener to another ingestion method. Error counters
// carry over so a flapping bot cannot launder its history by hopping
// methods.
func (r *Registry) SwitchMethod(ctx context.Context, botID string, method models.IngestionMethod) error {
	b, err := r.bot(botID)
	if err != nil {
		return err
	}

	b.mu.Lock()
	if !b.channel.HasMethod(method) {
		available := b.channel.MethodsAvailable
		b.mu.Unlock()
		return fmt.Errorf("method %q not available for bot %q (available: %v)", method, botID, available)
	}
	enabled := b.enabled
	b.channel.Method = method
	b.health.Method = method
	b.mu.Unlock()

	if enabled {
		r.stopBot(b)
		r.startBot(b)
	}

	r.logger.Info("listener method switched", "bot", botID, "method", method)
	return r.persistState(ctx, b)
}

// SetAPIKey rotates the raw Bot API key and bounces the listener so the new
// key takes effect.
func (r *Registry) SetAPIKey(ctx context.Context, botID, apiKey string) error {
	b, err := r.bot(botID)
	if err != nil {
		return err
	}

	b.mu.Lock()
	b.channel.APIKey = apiKey
	enabled := b.enabled
	b.mu.Unlock()

	if enabled {
		r.stopBot(b)
		r.startBot(b)
	}

	return r.persistState(ctx, b)
}

func (r *Registry) persistState(ctx context.Context, b *supervisedBot) error {
	if r.states == nil {
		return nil
	}
	b.mu.Lock()
	botID := b.channel.BotID
	enabled := b.enabled
	method := b.channel.Method
	apiKey := b.channel.APIKey
	b.mu.Unlock()

	if err := r.states.SaveChannelState(ctx, botID, enabled, method, apiKey); err != nil {
		return fmt.Errorf("failed to persist state for bot %q: %w", botID, err)
	}
	return nil
}

// Status returns one listener's condition.
func (r *Registry) Status(botID string) (BotStatus, error) {
	b, err := r.bot(botID)
	if err != nil {
		return BotStatus{}, err
	}
	return b.status(), nil
}

// Statuses returns all listeners sorted by bot id.
func (r *Registry) Statuses() []BotStatus {
	r.mu.RLock()
	statuses := make([]BotStatus, 0, len(r.bots))
	for _, b := range r.bots {
		statuses = append(statuses, b.status())
	}
	r.mu.RUnlock()

	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].Channel.BotID < statuses[j].Channel.BotID
	})
	return statuses
}

// Summary aggregates listener states for the dashboard.
func (r *Registry) Summary() HealthSummary {
	statuses := r.Statuses()

	summary := HealthSummary{Total: len(statuses)}
	for _, status := range statuses {
		switch status.State {
		case models.StateActive:
			summary.Active++
		case models.StateDegraded:
			summary.Degraded++
		case models.StateCritical:
			summary.Critical++
		case models.StateOffline:
			summary.Offline++
		case models.StateInitializing:
			summary.Initializing++
		}
	}
	if summary.Total > 0 {
		summary.HealthPercent = float64(summary.Active) / float64(summary.Total) * 100
	}
	return summary
}

func (b *supervisedBot) status() BotStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BotStatus{
		Channel: b.channel,
		Health:  b.health,
		State:   b.health.State(b.enabled),
		Enabled: b.enabled,
	}
}
