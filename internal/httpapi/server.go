// Package httpapi is the L10 HTTP surface (§6): REST endpoints for event
// ingest and mitigation/safelist management, a Prometheus exposition
// passthrough, and a supplemental /v1/ws realtime feed for operator UIs.
package httpapi

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/lance0/prefixd-sub000/internal/announcer"
	"github.com/lance0/prefixd-sub000/internal/config"
	"github.com/lance0/prefixd-sub000/internal/httpapi/ratelimit"
	"github.com/lance0/prefixd-sub000/internal/orchestrator"
	"github.com/lance0/prefixd-sub000/internal/repository"
	"github.com/lance0/prefixd-sub000/internal/webhook"
)

// Server is the HTTP front door onto the orchestrator and repository.
type Server struct {
	orchestrator *orchestrator.Orchestrator
	repo         repository.Repository
	announcer    announcer.Announcer
	inventory    *config.Inventory
	settings     *config.Settings
	logger       *zap.Logger

	limiter        *ratelimit.Limiter
	metricsHandler http.Handler
	hub            *hub

	httpServer *http.Server
	shutdown   atomic.Bool
}

// New wires a Server. metricsHandler is typically promhttp.Handler() from
// internal/metrics; passed in rather than constructed here so this package
// has no dependency on the concrete Prometheus registry.
func New(
	orch *orchestrator.Orchestrator,
	repo repository.Repository,
	ann announcer.Announcer,
	inventory *config.Inventory,
	settings *config.Settings,
	metricsHandler http.Handler,
	logger *zap.Logger,
) *Server {
	rl := settings.GetRateLimit()
	return &Server{
		orchestrator:   orch,
		repo:           repo,
		announcer:      ann,
		inventory:      inventory,
		settings:       settings,
		logger:         logger,
		limiter:        ratelimit.New(rl.EventsPerSecond, rl.Burst),
		metricsHandler: metricsHandler,
		hub:            newHub(logger),
	}
}

func (s *Server) isShuttingDown() bool {
	return s.shutdown.Load()
}

func (s *Server) router() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/v1/events", s.withMiddleware(s.handleIngestEvent)).Methods(http.MethodPost)
	r.HandleFunc("/v1/mitigations", s.withMiddleware(s.handleListMitigations)).Methods(http.MethodGet)
	r.HandleFunc("/v1/mitigations", s.withMiddleware(s.handleCreateMitigation)).Methods(http.MethodPost)
	r.HandleFunc("/v1/mitigations/{id}", s.withMiddleware(s.handleGetMitigation)).Methods(http.MethodGet)
	r.HandleFunc("/v1/mitigations/{id}/withdraw", s.withMiddleware(s.handleWithdrawMitigation)).Methods(http.MethodPost)
	r.HandleFunc("/v1/safelist", s.withMiddleware(s.handleSafelist)).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/v1/safelist/{prefix}", s.withMiddleware(s.handleRemoveSafelist)).Methods(http.MethodDelete)

	r.HandleFunc("/v1/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/v1/ws", s.handleWS)
	if s.metricsHandler != nil {
		r.Handle("/metrics", s.metricsHandler).Methods(http.MethodGet)
	}

	return r
}

// withMiddleware wraps a mutation handler with rate limiting, auth, and
// access logging, in that order — reject cheaply before paying for auth.
func (s *Server) withMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return s.logMiddleware(s.rateLimitMiddleware(s.authMiddleware(next)))
}

func (s *Server) rateLimitMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			secs := s.limiter.RetryAfterSeconds()
			w.Header().Set("Retry-After", fmt.Sprintf("%d", secs))
			writeJSON(w, http.StatusTooManyRequests, errorResponse{
				Error:             "rate limited",
				RetryAfterSeconds: &secs,
			})
			return
		}
		next(w, r)
	}
}

func (s *Server) authMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch s.settings.HTTP.Auth.Mode {
		case config.AuthNone:
			next(w, r)
		case config.AuthBearer:
			want := os.Getenv(s.settings.HTTP.Auth.BearerTokenEnv)
			got := r.Header.Get("Authorization")
			if want == "" || got != "Bearer "+want {
				writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
				return
			}
			next(w, r)
		case config.AuthMTLS:
			// client certificate verification happens in the TLS listener
			// (tls.Config.ClientAuth); by the time a request reaches here
			// the handshake has already enforced it.
			next(w, r)
		default:
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
		}
	}
}

func (s *Server) logMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next(w, r)
		s.logger.Debug("http request",
			zap.String("method", r.Method), zap.String("path", r.URL.Path), zap.Duration("duration", time.Since(start)))
	}
}

// Start begins serving on settings.HTTP.Listen in a background goroutine.
func (s *Server) Start() error {
	s.httpServer = &http.Server{Handler: s.router()}

	lis, err := net.Listen("tcp", s.settings.HTTP.Listen)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.settings.HTTP.Listen, err)
	}

	s.logger.Info("HTTP API listening", zap.String("listen", s.settings.HTTP.Listen))
	go func() {
		if err := s.httpServer.Serve(lis); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()
	return nil
}

// Shutdown begins rejecting new event ingests immediately, then drains
// in-flight requests for up to settings.Shutdown.DrainTimeoutSeconds.
func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdown.Store(true)

	drain := time.Duration(s.settings.Shutdown.DrainTimeoutSeconds) * time.Second
	drainCtx, cancel := context.WithTimeout(ctx, drain)
	defer cancel()

	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(drainCtx)
	}
	s.hub.closeAll()
	return err
}

// Notify implements orchestrator.Notifier/reconcile.Notifier so a single
// *Server can sit alongside internal/webhook.Dispatcher in cmd/prefixd's
// fan-out, relaying every alert to connected /v1/ws clients.
func (s *Server) Notify(alert webhook.Alert) {
	s.hub.BroadcastAlert(alert)
}
