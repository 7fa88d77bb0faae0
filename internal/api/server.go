package api

import (
	"context"
	"net"
	"net/http"
	"strconv"

	"github.com/Resinat/Paygate/internal/buildinfo"
	"github.com/Resinat/Paygate/internal/config"
	"github.com/Resinat/Paygate/internal/eventlog"
	"github.com/Resinat/Paygate/internal/metrics"
	"github.com/Resinat/Paygate/internal/model"
	"github.com/Resinat/Paygate/internal/paywall"
	"github.com/Resinat/Paygate/internal/presentation"
)

// Decider runs the presentation decision. *presentation.Pipeline implements it.
type Decider interface {
	Decide(ctx context.Context, req presentation.Request, trigger model.TriggerResult) presentation.Outcome
}

// LoaderStatsProvider exposes paywall loader counters. *paywall.Loader implements it.
type LoaderStatsProvider interface {
	Stats() paywall.LoaderStats
}

// ServerConfig wires the API server. Nil collaborators leave their routes
// unregistered.
type ServerConfig struct {
	ListenAddress   string
	Port            int
	AdminToken      string
	APIMaxBodyBytes int64

	SystemInfo  buildinfo.Info
	EnvConfig   *config.EnvConfig
	Decider     Decider
	EventRepo   *eventlog.Repo
	EventLog    *eventlog.Service
	Metrics     *metrics.Manager
	Loader      LoaderStatsProvider
	StaticStore *paywall.StaticStore
}

// Server wraps the HTTP server and mux for the Paygate API.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
}

// NewServer creates a new API server wired with all routes.
func NewServer(cfg ServerConfig) *Server {
	mux := http.NewServeMux()

	// Public (no auth)
	mux.Handle("GET /healthz", HandleHealthz(cfg.SystemInfo.Version))

	// Authenticated routes
	authed := http.NewServeMux()
	authed.Handle("GET /api/v1/system/info", HandleSystemInfo(cfg.SystemInfo))
	authed.Handle("GET /api/v1/system/config", HandleSystemConfig(cfg.EnvConfig))
	authed.Handle("POST /api/v1/parameters/sanitize", HandleSanitize())

	if cfg.Decider != nil {
		authed.Handle("POST /api/v1/presentations/decide", HandleDecide(cfg.Decider))
	}
	if cfg.EventRepo != nil {
		authed.Handle("GET /api/v1/events", HandleListEvents(cfg.EventRepo))
		authed.Handle("GET /api/v1/response-loads", HandleListResponseLoads(cfg.EventRepo))
	}
	if cfg.Metrics != nil {
		authed.Handle("GET /api/v1/metrics", HandleMetrics(cfg.Metrics, cfg.Loader, cfg.EventLog))
		authed.Handle("GET /api/v1/metrics/realtime", HandleRealtimeMetrics(cfg.Metrics))
	}
	if cfg.StaticStore != nil {
		authed.Handle("POST /api/v1/paywalls/static/actions/reload", HandleReloadStaticPaywalls(cfg.StaticStore))
	}

	limitedAuthed := RequestBodyLimitMiddleware(cfg.APIMaxBodyBytes, authed)
	mux.Handle("/api/", AuthMiddleware(cfg.AdminToken, limitedAuthed))

	srv := &http.Server{
		Addr:    net.JoinHostPort(cfg.ListenAddress, strconv.Itoa(cfg.Port)),
		Handler: mux,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
	}
}

// ListenAndServe starts the HTTP server. It blocks until the server stops.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler returns the underlying http.Handler for testing.
func (s *Server) Handler() http.Handler {
	return s.mux
}
