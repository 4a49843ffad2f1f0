// Package http exposes the monitoring view, the map surface and the auth
// context over a JSON API, next to the health, readiness and metrics routes.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/couchcryptid/glacier-risk-map/internal/adapter/mapview"
	"github.com/couchcryptid/glacier-risk-map/internal/auth"
	"github.com/couchcryptid/glacier-risk-map/internal/domain"
	"github.com/couchcryptid/glacier-risk-map/internal/mapsession"
	"github.com/couchcryptid/glacier-risk-map/internal/riskmap"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MonitoringView is the part of riskmap.View the API drives.
type MonitoringView interface {
	sharedobs.ReadinessChecker
	Snapshot(ctx context.Context) riskmap.Snapshot
	Refresh(ctx context.Context) error
	SetRiskBand(band domain.RiskBand)
	SetRegion(region string)
	SetHeatmap(enabled bool)
	SetAutoRefresh(enabled bool)
	MapReady(s mapsession.Surface) bool
}

// MapSurface is a map surface the browser drives: it forwards clicks and
// pans and reads back the rendered layers.
type MapSurface interface {
	mapsession.Surface
	Click(p domain.LatLng)
	SetView(b domain.Bounds)
	Layers() mapview.Layers
}

// Server exposes the API plus health, readiness, and metrics endpoints.
type Server struct {
	httpServer *http.Server
	view       MonitoringView
	surface    MapSurface
	auth       *auth.Context
	logger     *slog.Logger
}

// NewServer wires all routes. A nil authCtx disables authentication and the
// auth routes.
func NewServer(addr string, view MonitoringView, surface MapSurface, authCtx *auth.Context, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		view:    view,
		surface: surface,
		auth:    authCtx,
		logger:  logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(view))
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.Handle("GET /api/v1/view", s.requireAuth(s.handleView))
	mux.Handle("PUT /api/v1/filters", s.requireAuth(s.handleFilters))
	mux.Handle("POST /api/v1/refresh", s.requireAuth(s.handleRefresh))
	mux.Handle("POST /api/v1/map/ready", s.requireAuth(s.handleMapReady))
	mux.Handle("GET /api/v1/map/layers", s.requireAuth(s.handleMapLayers))
	mux.Handle("POST /api/v1/map/click", s.requireAuth(s.handleMapClick))
	mux.Handle("POST /api/v1/map/view", s.requireAuth(s.handleMapView))

	mux.HandleFunc("POST /api/v1/auth/login", s.handleLogin)
	mux.Handle("POST /api/v1/auth/logout", s.requireAuth(s.handleLogout))
	mux.Handle("GET /api/v1/auth/me", s.requireAuth(s.handleMe))

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr, "auth", s.auth != nil)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	sharedobs.WriteJSON(w, status, v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
