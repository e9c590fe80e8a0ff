package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/cso-impact-service/internal/domain"
)

// ReadinessChecker reports whether the service is ready to serve traffic.
type ReadinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// FleetView is the read side of the fleet the API serves.
type FleetView interface {
	TimeSeries(since time.Time, logger *slog.Logger) []domain.SamplePoint
	ImpactedNodes(includeRecent bool, logger *slog.Logger) ([]domain.ImpactedNode, error)
	ChannelGeometry(includeRecent bool, logger *slog.Logger) ([]domain.Polyline, error)
	DischargeLog(logger *slog.Logger) ([]domain.DischargeRow, error)
}

// Server exposes health, readiness, metrics, and the read-only query API.
type Server struct {
	httpServer    *http.Server
	fleet         FleetView
	defaultWindow time.Duration
	logger        *slog.Logger
}

// NewServer creates the HTTP server. defaultWindow bounds the time-series
// query when the caller gives no since parameter.
func NewServer(addr string, ready ReadinessChecker, fleet FleetView, defaultWindow time.Duration, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		fleet:         fleet,
		defaultWindow: defaultWindow,
		logger:        logger,
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", handleReady(ready))
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /v1/timeseries", s.handleTimeSeries)
	mux.HandleFunc("GET /v1/impact", s.handleImpact)
	mux.HandleFunc("GET /v1/channels", s.handleChannels)
	mux.HandleFunc("GET /v1/discharges", s.handleDischarges)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
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

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func handleReady(checker ReadinessChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := checker.CheckReadiness(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

// handleTimeSeries serves the fleet-wide activity counts at 15-minute
// spacing. since is RFC 3339; it defaults to the configured window back.
func (s *Server) handleTimeSeries(w http.ResponseWriter, r *http.Request) {
	since := time.Now().Add(-s.defaultWindow)
	if v := r.URL.Query().Get("since"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "since must be RFC 3339"})
			return
		}
		since = parsed
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"points": s.fleet.TimeSeries(since, s.logger),
	})
}

func (s *Server) handleImpact(w http.ResponseWriter, r *http.Request) {
	nodes, err := s.fleet.ImpactedNodes(r.URL.Query().Get("recent") == "true", s.logger)
	if err != nil {
		s.writeDomainError(w, "impact query failed", err)
		return
	}
	if nodes == nil {
		nodes = []domain.ImpactedNode{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"nodes": nodes})
}

// handleChannels serves the affected channel network as a GeoJSON
// MultiLineString, matching what mapping frontends consume directly.
func (s *Server) handleChannels(w http.ResponseWriter, r *http.Request) {
	segments, err := s.fleet.ChannelGeometry(r.URL.Query().Get("recent") == "true", s.logger)
	if err != nil {
		s.writeDomainError(w, "channel query failed", err)
		return
	}
	coordinates := make([][][2]float64, 0, len(segments))
	for _, seg := range segments {
		line := make([][2]float64, len(seg))
		for i, c := range seg {
			line[i] = [2]float64{c.X, c.Y}
		}
		coordinates = append(coordinates, line)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"type":        "MultiLineString",
		"coordinates": coordinates,
	})
}

func (s *Server) handleDischarges(w http.ResponseWriter, r *http.Request) {
	rows, err := s.fleet.DischargeLog(s.logger)
	if err != nil {
		s.writeDomainError(w, "discharge query failed", err)
		return
	}
	if rows == nil {
		rows = []domain.DischargeRow{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"discharges": rows})
}

// writeDomainError maps not-yet-loaded state to 503 so load balancers retry,
// and everything else to 500.
func (s *Server) writeDomainError(w http.ResponseWriter, msg string, err error) {
	s.logger.Warn(msg, "error", err)
	status := http.StatusInternalServerError
	if errors.Is(err, domain.ErrInvalidState) {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}
