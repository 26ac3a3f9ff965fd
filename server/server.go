// Package server exposes the gateway's admin HTTP surface: health, status,
// and metrics. It injects correlation IDs into request contexts for
// consistent logging and starts a tracing span per request.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/onnwee/campline/telemetry"
)

// Status is the point-in-time snapshot reported by /status. The source is a
// callback owned by the bootstrap, which is the only place that sees every
// bridge.
type Status struct {
	Uptime           string          `json:"uptime"`
	ConnectedClients int             `json:"connected_clients"`
	Channels         []ChannelStatus `json:"channels"`
}

// ChannelStatus describes one configured channel across all connections.
type ChannelStatus struct {
	Name      string `json:"name"`
	Subdomain string `json:"subdomain"`
	Room      string `json:"room"`
	// JoinedBy counts connections currently joined to this channel.
	JoinedBy int `json:"joined_by"`
}

// StatusFunc supplies the current Status snapshot.
type StatusFunc func() Status

// NewMux returns the HTTP handler with all routes.
func NewMux(status StatusFunc) http.Handler {
	h := &handlers{status: status}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", h.handleHealthz)
	mux.HandleFunc("/status", h.handleStatus)

	// Wrap with correlation ID injector and tracing middleware.
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		corr := r.Header.Get("X-Correlation-ID")
		if corr == "" {
			corr = uuid.New().String()
		}
		ctx := telemetry.WithCorrelation(r.Context(), corr)
		w.Header().Set("X-Correlation-ID", corr)

		ctx, span := telemetry.StartSpan(ctx, "http-server", r.Method+" "+r.URL.Path)
		defer span.End()

		telemetry.LoggerWithCorr(ctx).Debug("request start", slog.String("method", r.Method), slog.String("path", r.URL.Path), slog.String("component", "http"))

		wrapped := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		mux.ServeHTTP(wrapped, r.WithContext(ctx))

		telemetry.SetSpanHTTPStatus(span, wrapped.statusCode)
	})
}

// statusRecorder wraps ResponseWriter to capture status code
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

// Start runs the HTTP server and shuts down gracefully on context cancellation.
func Start(ctx context.Context, addr string, status StatusFunc) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      NewMux(status),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("admin http server started", slog.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
