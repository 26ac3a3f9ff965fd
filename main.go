// Command campline is the main entrypoint for the chat gateway.
// It:
//   - Loads configuration and initializes structured logging.
//   - Builds one authenticated lobby client per configured subdomain and
//     resolves its identity and every configured room by display name.
//   - Starts the IRC listener, constructing one bridge per accepted client.
//   - Exposes a minimal HTTP server with /healthz, /status, and /metrics.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"log/slog"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // G108: pprof endpoints enabled only when ENABLE_PPROF=1
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/onnwee/campline/bridge"
	"github.com/onnwee/campline/campfire"
	"github.com/onnwee/campline/config"
	"github.com/onnwee/campline/irc"
	"github.com/onnwee/campline/server"
	"github.com/onnwee/campline/telemetry"
)

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load(".env")

	// Configure logging (level + format). Defaults: level=info, format=text.
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
		// keep default
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	var handler slog.Handler
	if strings.ToLower(os.Getenv("LOG_FORMAT")) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))

	// Config
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	if err := cfg.ValidateBridgeReady(); err != nil {
		slog.Error("nothing to bridge", slog.Any("err", err))
		os.Exit(1)
	}

	// Metrics / telemetry init
	telemetry.Init()

	// Initialize OpenTelemetry tracing (optional; requires OTEL_EXPORTER_OTLP_ENDPOINT)
	shutdown, err := telemetry.InitTracing("campline", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// One lobby per subdomain. Resolving the lobby identity up front is
	// required: inbound routing discards the bridge's own messages by id.
	lobbies := make(map[string]*campfire.Lobby, len(cfg.Subdomains))
	for sub, token := range cfg.Subdomains {
		lobby, err := campfire.NewLobby(sub, token)
		if err != nil {
			slog.Error("lobby construction failed", slog.String("subdomain", sub), slog.Any("err", err))
			os.Exit(1)
		}
		meCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		me, err := lobby.Me(meCtx)
		cancel()
		if err != nil {
			slog.Error("identity resolution failed", slog.String("subdomain", sub), slog.Any("err", err))
			os.Exit(1)
		}
		slog.Info("lobby ready", slog.String("subdomain", sub), slog.String("me", me.Name))
		lobbies[sub] = lobby
	}

	// Resolve every configured room by display name before accepting
	// clients. An unresolvable room is a configuration error and fatal.
	rooms := make(map[string]*campfire.Room, len(cfg.Channels))
	for name, mapping := range cfg.Channels {
		resolveCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		room, err := lobbies[mapping.Subdomain].RoomByName(resolveCtx, mapping.RoomName)
		cancel()
		if err != nil {
			slog.Error("room resolution failed",
				slog.String("channel", name),
				slog.String("room", mapping.RoomName),
				slog.String("subdomain", mapping.Subdomain),
				slog.Any("err", err))
			os.Exit(1)
		}
		slog.Info("room resolved", slog.String("channel", name), slog.Int64("room_id", room.ID))
		rooms[name] = room
	}

	registry := newBridgeRegistry()
	started := time.Now()

	// IRC listener: one bridge per accepted connection, each seeded with the
	// full static channel set.
	ircServer := irc.NewServer(cfg.IRCAddr, cfg.ServerHost)
	go func() {
		err := ircServer.Serve(ctx, func(conn *irc.Conn) {
			connCtx := telemetry.WithCorrelation(ctx, uuid.New().String())
			b := bridge.New(connCtx, conn, rooms)
			registry.add(b)
			defer registry.remove(b)
			conn.Run()
		})
		if err != nil {
			slog.Error("irc server exited with error", slog.Any("err", err))
			stop()
		}
	}()

	// Enable pprof profiling endpoints in debug mode (ENABLE_PPROF=1)
	if os.Getenv("ENABLE_PPROF") == "1" {
		pprofAddr := os.Getenv("PPROF_ADDR")
		if pprofAddr == "" {
			pprofAddr = "localhost:6060"
		}
		go func() {
			slog.Info("pprof profiling enabled", slog.String("addr", pprofAddr))
			srv := &http.Server{
				Addr:              pprofAddr,
				Handler:           nil, // default mux exposes /debug/pprof
				ReadHeaderTimeout: 5 * time.Second,
				ReadTimeout:       10 * time.Second,
				WriteTimeout:      10 * time.Second,
				IdleTimeout:       60 * time.Second,
			}
			if err := srv.ListenAndServe(); err != nil {
				slog.Error("pprof server error", slog.Any("err", err))
			}
		}()
	}

	// HTTP server (health/status/metrics)
	go func() {
		status := func() server.Status {
			return registry.status(cfg, started)
		}
		if err := server.Start(ctx, cfg.HTTPAddr, status); err != nil && err != http.ErrServerClosed {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()

	// Block until shutdown signal
	<-ctx.Done()
	slog.Info("shutting down")
}

// bridgeRegistry tracks live bridges for the status surface. It is owned by
// the bootstrap; nothing inside the core packages reaches for it.
type bridgeRegistry struct {
	mu      sync.Mutex
	bridges map[*bridge.Bridge]struct{}
}

func newBridgeRegistry() *bridgeRegistry {
	return &bridgeRegistry{bridges: make(map[*bridge.Bridge]struct{})}
}

func (r *bridgeRegistry) add(b *bridge.Bridge) {
	r.mu.Lock()
	r.bridges[b] = struct{}{}
	r.mu.Unlock()
}

func (r *bridgeRegistry) remove(b *bridge.Bridge) {
	r.mu.Lock()
	delete(r.bridges, b)
	r.mu.Unlock()
}

func (r *bridgeRegistry) status(cfg *config.Config, started time.Time) server.Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	joined := make(map[string]int)
	for b := range r.bridges {
		for _, ch := range b.Channels() {
			if ch.Joined() {
				joined[ch.Name]++
			}
		}
	}

	st := server.Status{
		Uptime:           time.Since(started).Round(time.Second).String(),
		ConnectedClients: len(r.bridges),
	}
	for name, mapping := range cfg.Channels {
		st.Channels = append(st.Channels, server.ChannelStatus{
			Name:      name,
			Subdomain: mapping.Subdomain,
			Room:      mapping.RoomName,
			JoinedBy:  joined[name],
		})
	}
	sort.Slice(st.Channels, func(i, j int) bool { return st.Channels[i].Name < st.Channels[j].Name })
	return st
}
