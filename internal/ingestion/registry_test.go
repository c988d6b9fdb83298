package ingestion

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dealforge/dealforge/internal/metrics"
	"github.com/dealforge/dealforge/internal/models"
)

type fakeTransport struct {
	method   models.IngestionMethod
	checkErr error
	runErr   error
	started  chan struct{}
	inject   chan models.IngestedMessage
}

func (f *fakeTransport) Method() models.IngestionMethod { return f.method }

func (f *fakeTransport) Check(_ context.Context) error { return f.checkErr }

func (f *fakeTransport) Run(ctx context.Context, events chan<- models.IngestedMessage) error {
	if f.started != nil {
		select {
		case f.started <- struct{}{}:
		default:
		}
	}
	if f.runErr != nil {
		return f.runErr
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-f.inject:
			select {
			case events <- msg:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

type countingProcessor struct {
	mu       sync.Mutex
	messages []models.IngestedMessage
}

func (p *countingProcessor) Process(_ context.Context, _ models.SourceChannel, msg models.IngestedMessage) {
	p.mu.Lock()
	p.messages = append(p.messages, msg)
	p.mu.Unlock()
}

func (p *countingProcessor) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.messages)
}

func testCollector(t *testing.T) *metrics.Collector {
	t.Helper()
	collector, err := metrics.NewCollector()
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}
	return collector
}

func testChannels() []models.SourceChannel {
	return []models.SourceChannel{
		{
			BotID:            "prime-picks",
			ChannelID:        -100111,
			ChannelName:      "primepicks",
			Method:           models.MethodTelegram,
			MethodsAvailable: []models.IngestionMethod{models.MethodTelegram, models.MethodScraping},
			Enabled:          true,
		},
		{
			BotID:            "cue-picks",
			ChannelID:        -100222,
			Method:           models.MethodTelegram,
			MethodsAvailable: []models.IngestionMethod{models.MethodTelegram},
			Enabled:          false,
		},
	}
}

func newTestRegistry(t *testing.T, factory TransportFactory, processor Processor) *Registry {
	t.Helper()
	if processor == nil {
		processor = &countingProcessor{}
	}
	return NewRegistry(
		testChannels(), nil, factory, processor, nil, testCollector(t),
		RegistryConfig{QueueSize: 8, Policy: RetryPolicy{InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond, BackoffFactor: 2}},
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestRegistryStateTransitions(t *testing.T) {
	health := models.BotHealth{BotID: "b"}

	if got := health.State(true); got != models.StateInitializing {
		t.Errorf("fresh bot state = %v", got)
	}

	health.Connected = true
	for _, tc := range []struct {
		errors int
		want   models.BotState
	}{
		{0, models.StateActive},
		{2, models.StateActive},
		{3, models.StateDegraded},
		{10, models.StateDegraded},
		{11, models.StateCritical},
	} {
		health.ErrorCount = tc.errors
		if got := health.State(true); got != tc.want {
			t.Errorf("errors=%d state = %v, want %v", tc.errors, got, tc.want)
		}
	}

	if got := health.State(false); got != models.StateOffline {
		t.Errorf("disabled bot state = %v", got)
	}

	health.Connected = false
	health.MessagesProcessed = 5
	if got := health.State(true); got != models.StateOffline {
		t.Errorf("disconnected bot state = %v", got)
	}
}

func TestRegistryDispatchesToProcessor(t *testing.T) {
	started := make(chan struct{}, 1)
	inject := make(chan models.IngestedMessage, 1)
	factory := func(models.SourceChannel, models.IngestionMethod) (Transport, error) {
		return &fakeTransport{method: models.MethodTelegram, started: started, inject: inject}, nil
	}
	processor := &countingProcessor{}
	r := newTestRegistry(t, factory, processor)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.Start(ctx)
	defer r.Stop()

	<-started
	inject <- models.IngestedMessage{ChannelID: -100111, MessageID: 1, Text: "deal"}

	waitFor(t, time.Second, func() bool { return processor.count() == 1 })

	status, err := r.Status("prime-picks")
	if err != nil {
		t.Fatal(err)
	}
	if status.Health.MessagesProcessed != 1 {
		t.Errorf("MessagesProcessed = %d", status.Health.MessagesProcessed)
	}
	if status.State != models.StateActive {
		t.Errorf("State = %v, want active", status.State)
	}
}

type gatedProcessor struct {
	mu      sync.Mutex
	seen    []string
	slowBot string
	release chan struct{}
}

func (p *gatedProcessor) Process(_ context.Context, channel models.SourceChannel, _ models.IngestedMessage) {
	if channel.BotID == p.slowBot {
		<-p.release
	}
	p.mu.Lock()
	p.seen = append(p.seen, channel.BotID)
	p.mu.Unlock()
}

func (p *gatedProcessor) has(botID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, id := range p.seen {
		if id == botID {
			return true
		}
	}
	return false
}

func TestRegistryBotsProcessIndependently(t *testing.T) {
	channels := testChannels()
	channels[1].Enabled = true

	injects := map[string]chan models.IngestedMessage{
		"prime-picks": make(chan models.IngestedMessage, 1),
		"cue-picks":   make(chan models.IngestedMessage, 1),
	}
	factory := func(channel models.SourceChannel, _ models.IngestionMethod) (Transport, error) {
		return &fakeTransport{method: models.MethodTelegram, inject: injects[channel.BotID]}, nil
	}
	processor := &gatedProcessor{slowBot: "prime-picks", release: make(chan struct{})}
	r := NewRegistry(
		channels, nil, factory, processor, nil, testCollector(t),
		RegistryConfig{QueueSize: 8, Policy: RetryPolicy{InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond, BackoffFactor: 2}},
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.Start(ctx)

	injects["prime-picks"] <- models.IngestedMessage{ChannelID: -100111, MessageID: 1}
	injects["cue-picks"] <- models.IngestedMessage{ChannelID: -100222, MessageID: 2}

	// The second bot's event completes while the first bot's pipeline run is
	// still blocked.
	waitFor(t, time.Second, func() bool { return processor.has("cue-picks") })
	if processor.has("prime-picks") {
		t.Error("blocked bot completed before release")
	}

	close(processor.release)
	waitFor(t, time.Second, func() bool { return processor.has("prime-picks") })
	r.Stop()
}

func TestRegistryKillSwitchDropsEvents(t *testing.T) {
	inject := make(chan models.IngestedMessage, 2)
	factory := func(models.SourceChannel, models.IngestionMethod) (Transport, error) {
		return &fakeTransport{method: models.MethodTelegram, inject: inject}, nil
	}
	processor := &countingProcessor{}
	r := newTestRegistry(t, factory, processor)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.Start(ctx)
	defer r.Stop()

	r.SetProcessing(false)
	inject <- models.IngestedMessage{ChannelID: -100111, MessageID: 2}
	time.Sleep(100 * time.Millisecond)

	// The dropped event leaves no trace: no processor call, no counters.
	if processor.count() != 0 {
		t.Errorf("processor received %d messages while disabled", processor.count())
	}
	status, _ := r.Status("prime-picks")
	if status.Health.MessagesProcessed != 0 {
		t.Errorf("MessagesProcessed = %d, want 0 for dropped event", status.Health.MessagesProcessed)
	}

	r.SetProcessing(true)
	inject <- models.IngestedMessage{ChannelID: -100111, MessageID: 3}
	waitFor(t, time.Second, func() bool { return processor.count() == 1 })

	status, _ = r.Status("prime-picks")
	if status.Health.MessagesProcessed != 1 {
		t.Errorf("MessagesProcessed = %d, want 1", status.Health.MessagesProcessed)
	}
}

func TestRegistryRecordsTransportErrors(t *testing.T) {
	factory := func(models.SourceChannel, models.IngestionMethod) (Transport, error) {
		return &fakeTransport{method: models.MethodTelegram, runErr: errors.New("boom")}, nil
	}
	r := newTestRegistry(t, factory, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.Start(ctx)
	defer r.Stop()

	waitFor(t, time.Second, func() bool {
		status, _ := r.Status("prime-picks")
		return status.Health.ErrorCount >= 3
	})

	status, _ := r.Status("prime-picks")
	if status.State != models.StateOffline && status.State != models.StateDegraded {
		t.Errorf("State = %v, want offline or degraded", status.State)
	}
	if status.Health.LastError != "boom" {
		t.Errorf("LastError = %q", status.Health.LastError)
	}
}

func TestRegistryRestartResetsCounters(t *testing.T) {
	factory := func(models.SourceChannel, models.IngestionMethod) (Transport, error) {
		return &fakeTransport{method: models.MethodTelegram}, nil
	}
	r := newTestRegistry(t, factory, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.Start(ctx)
	defer r.Stop()

	b, err := r.bot("prime-picks")
	if err != nil {
		t.Fatal(err)
	}
	b.mu.Lock()
	b.health.ErrorCount = 7
	b.health.RetryCount = 4
	b.health.LastError = "old failure"
	b.health.MessagesProcessed = 12
	b.mu.Unlock()

	if err := r.Restart(ctx, "prime-picks"); err != nil {
		t.Fatal(err)
	}

	status, _ := r.Status("prime-picks")
	if status.Health.ErrorCount != 0 || status.Health.RetryCount != 0 || status.Health.LastError != "" {
		t.Errorf("counters not reset: %+v", status.Health)
	}
	if status.Health.MessagesProcessed != 12 {
		t.Errorf("MessagesProcessed = %d, want preserved", status.Health.MessagesProcessed)
	}
}

func TestRegistrySwitchMethodPreservesCounters(t *testing.T) {
	factory := func(_ models.SourceChannel, method models.IngestionMethod) (Transport, error) {
		return &fakeTransport{method: method}, nil
	}
	r := newTestRegistry(t, factory, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.Start(ctx)
	defer r.Stop()

	b, _ := r.bot("prime-picks")
	b.mu.Lock()
	b.health.ErrorCount = 5
	b.mu.Unlock()

	if err := r.SwitchMethod(ctx, "prime-picks", models.MethodScraping); err != nil {
		t.Fatal(err)
	}

	status, _ := r.Status("prime-picks")
	if status.Health.Method != models.MethodScraping {
		t.Errorf("Method = %v", status.Health.Method)
	}
	if status.Health.ErrorCount != 5 {
		t.Errorf("ErrorCount = %d, want 5 preserved", status.Health.ErrorCount)
	}

	if err := r.SwitchMethod(ctx, "prime-picks", models.MethodAPI); err == nil {
		t.Error("expected error switching to unavailable method")
	}
}

func TestRegistryToggle(t *testing.T) {
	factory := func(models.SourceChannel, models.IngestionMethod) (Transport, error) {
		return &fakeTransport{method: models.MethodTelegram}, nil
	}
	r := newTestRegistry(t, factory, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.Start(ctx)
	defer r.Stop()

	if err := r.Toggle(ctx, "prime-picks", false); err != nil {
		t.Fatal(err)
	}
	status, _ := r.Status("prime-picks")
	if status.State != models.StateOffline {
		t.Errorf("State after disable = %v", status.State)
	}

	if err := r.Restart(ctx, "prime-picks"); err == nil {
		t.Error("expected restart of disabled bot to fail")
	}

	if err := r.Toggle(ctx, "cue-picks", true); err != nil {
		t.Fatal(err)
	}
	waitFor(t, time.Second, func() bool {
		status, _ := r.Status("cue-picks")
		return status.State == models.StateActive
	})

	if err := r.Toggle(ctx, "nope", true); err == nil {
		t.Error("expected error for unknown bot")
	}
}

func TestRegistrySummary(t *testing.T) {
	factory := func(models.SourceChannel, models.IngestionMethod) (Transport, error) {
		return &fakeTransport{method: models.MethodTelegram}, nil
	}
	r := newTestRegistry(t, factory, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.Start(ctx)
	defer r.Stop()

	waitFor(t, time.Second, func() bool {
		status, _ := r.Status("prime-picks")
		return status.State == models.StateActive
	})

	summary := r.Summary()
	if summary.Total != 2 {
		t.Errorf("Total = %d", summary.Total)
	}
	if summary.Active != 1 || summary.Offline != 1 {
		t.Errorf("Active/Offline = %d/%d, want 1/1", summary.Active, summary.Offline)
	}
	if summary.HealthPercent != 50 {
		t.Errorf("HealthPercent = %v", summary.HealthPercent)
	}
}
