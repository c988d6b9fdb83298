package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector exposes Prometheus metrics for inbound HTTP requests and the
// ingestion pipeline.
type Collector struct {
	registry        *prometheus.Registry
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec

	messagesTotal   *prometheus.CounterVec
	entriesStored   *prometheus.CounterVec
	scrapeFailures  *prometheus.CounterVec
	extractionSkips *prometheus.CounterVec
	transportErrors *prometheus.CounterVec
}

// NewCollector constructs a collector with default histograms/counters.
func NewCollector() (*Collector, error) {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "dealforge",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Latency distribution for inbound HTTP requests.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dealforge",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of inbound HTTP requests.",
	}, []string{"method", "path", "status"})

	messagesTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dealforge",
		Subsystem: "pipeline",
		Name:      "messages_total",
		Help:      "Channel messages received, by bot.",
	}, []string{"bot"})

	entriesStored := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dealforge",
		Subsystem: "pipeline",
		Name:      "entries_stored_total",
		Help:      "Content entries persisted, by bot.",
	}, []string{"bot"})

	scrapeFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dealforge",
		Subsystem: "pipeline",
		Name:      "scrape_failures_total",
		Help:      "Fallback scrapes that yielded no enrichment, by bot.",
	}, []string{"bot"})

	extractionSkips := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dealforge",
		Subsystem: "pipeline",
		Name:      "extraction_skips_total",
		Help:      "Messages skipped because no title or URL was derivable, by bot.",
	}, []string{"bot"})

	transportErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dealforge",
		Subsystem: "transport",
		Name:      "errors_total",
		Help:      "Listener transport errors, by bot.",
	}, []string{"bot"})

	collectors := []prometheus.Collector{
		requestDuration, requestTotal, messagesTotal,
		entriesStored, scrapeFailures, extractionSkips, transportErrors,
	}
	for _, c := range collectors {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}

	return &Collector{
		registry:        registry,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		messagesTotal:   messagesTotal,
		entriesStored:   entriesStored,
		scrapeFailures:  scrapeFailures,
		extractionSkips: extractionSkips,
		transportErrors: transportErrors,
	}, nil
}

// Handler returns an HTTP handler for exposing Prometheus metrics.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler to record HTTP metrics.
func (c *Collector) InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(rw.status)
		path := r.URL.Path

		c.requestTotal.WithLabelValues(r.Method, path, status).Inc()
		c.requestDuration.WithLabelValues(r.Method, path, status).Observe(duration)
	})
}

// MessageReceived counts one channel event for a bot.
func (c *Collector) MessageReceived(bot string) {
	c.messagesTotal.WithLabelValues(bot).Inc()
}

// EntryStored counts one persisted content entry for a bot.
func (c *Collector) EntryStored(bot string) {
	c.entriesStored.WithLabelValues(bot).Inc()
}

// ScrapeFailed counts one fallback scrape that produced nothing.
func (c *Collector) ScrapeFailed(bot string) {
	c.scrapeFailures.WithLabelValues(bot).Inc()
}

// ExtractionSkipped counts one message dropped for lack of usable data.
func (c *Collector) ExtractionSkipped(bot string) {
	c.extractionSkips.WithLabelValues(bot).Inc()
}

// TransportError counts one listener transport failure.
func (c *Collector) TransportError(bot string) {
	c.transportErrors.WithLabelValues(bot).Inc()
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (w *responseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
