// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	MessagesInbound    prometheus.Counter
	MessagesOutbound   prometheus.Counter
	StreamRestarts     prometheus.Counter
	StreamFailures     prometheus.Counter
	StreamDecodeErrors prometheus.Counter
	ParseErrors        prometheus.Counter

	// Chat API request outcomes, labelled by method and result.
	apiRequests *prometheus.CounterVec

	// Histograms (seconds)
	APIRequestDuration prometheus.Observer

	// Gauges
	ConnectedClients prometheus.Gauge
	StreamsActive    prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		MessagesInbound = promauto.NewCounter(prometheus.CounterOpts{Name: "campline_messages_inbound_total", Help: "Messages bridged from the chat service to IRC"})
		MessagesOutbound = promauto.NewCounter(prometheus.CounterOpts{Name: "campline_messages_outbound_total", Help: "Messages bridged from IRC to the chat service"})
		StreamRestarts = promauto.NewCounter(prometheus.CounterOpts{Name: "campline_stream_restarts_total", Help: "Streaming reads restarted after long-poll rotation"})
		StreamFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "campline_stream_failures_total", Help: "Streaming reads ended by a hard error"})
		StreamDecodeErrors = promauto.NewCounter(prometheus.CounterOpts{Name: "campline_stream_decode_errors_total", Help: "Stream records that failed to decode as JSON"})
		ParseErrors = promauto.NewCounter(prometheus.CounterOpts{Name: "campline_irc_parse_errors_total", Help: "IRC lines that did not match the message grammar"})
		apiRequests = promauto.NewCounterVec(prometheus.CounterOpts{Name: "campline_api_requests_total", Help: "Chat service API requests by method and outcome"}, []string{"method", "outcome"})
		APIRequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "campline_api_request_duration_seconds", Help: "Chat service API request duration seconds", Buckets: prometheus.DefBuckets})
		ConnectedClients = promauto.NewGauge(prometheus.GaugeOpts{Name: "campline_irc_clients", Help: "Currently connected IRC clients"})
		StreamsActive = promauto.NewGauge(prometheus.GaugeOpts{Name: "campline_streams_active", Help: "Currently open streaming reads"})
	})
}

// ObserveAPIRequest records one chat service API call.
func ObserveAPIRequest(method string, d time.Duration, ok bool) {
	if apiRequests == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	apiRequests.WithLabelValues(method, outcome).Inc()
	if APIRequestDuration != nil {
		APIRequestDuration.Observe(d.Seconds())
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding correlation id (if absent) and the id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
