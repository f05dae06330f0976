package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/aretw0/sidecar/internal/logging"
	"github.com/aretw0/sidecar/internal/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/shirou/gopsutil/v4/host"
)

// PingResponse is the body of GET /ping.
type PingResponse struct {
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
	Status    string `json:"status"`
}

// VersionResponse is the body of GET /version.
type VersionResponse struct {
	RuntimeVersion string `json:"runtimeVersion"`
	OSVersion      string `json:"osVersion"`
	Platform       string `json:"platform"`
	Architecture   string `json:"architecture"`
}

// HostInfoFunc reports the operating system version string.
type HostInfoFunc func(ctx context.Context) (string, error)

// Config configures the worker's HTTP surface.
type Config struct {
	// AllowedOrigin is sent as Access-Control-Allow-Origin. Defaults to "*".
	AllowedOrigin string
	// Metrics, when set, counts requests and serves GET /metrics.
	Metrics *metrics.Metrics
	Logger  *slog.Logger
	Now     func() time.Time
	// HostInfo overrides the gopsutil lookup (tests).
	HostInfo HostInfoFunc
}

// Server serves the worker's two read-only endpoints.
type Server struct {
	cfg Config

	osOnce    sync.Once
	osVersion string
}

// NewHandler creates a new HTTP handler for the worker.
func NewHandler(cfg Config) http.Handler {
	if cfg.AllowedOrigin == "" {
		cfg.AllowedOrigin = "*"
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.HostInfo == nil {
		cfg.HostInfo = gopsutilOSVersion
	}
	server := &Server{cfg: cfg}

	r := chi.NewRouter()
	r.Use(server.countRequests)
	r.Get("/ping", server.Ping)
	r.Get("/version", server.Version)
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
	}

	return enableCORS(cfg.AllowedOrigin, r)
}

func enableCORS(origin string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// unmatchedRoute labels requests no route answered, keeping the path label bounded.
const unmatchedRoute = "unmatched"

// countRequests labels by route pattern, which chi only knows once routing is done.
func (s *Server) countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r)

		pattern := unmatchedRoute
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			pattern = rctx.RoutePattern()
		}
		s.cfg.Metrics.ObserveRequest(pattern)
	})
}

// Ping handles the GET /ping request.
func (s *Server) Ping(w http.ResponseWriter, r *http.Request) {
	s.cfg.Logger.Info("Ping endpoint called")
	writeJSON(w, s.cfg.Logger, PingResponse{
		Message:   "pong from Go sidecar!",
		Timestamp: s.cfg.Now().UTC().Format(time.RFC3339),
		Status:    "ok",
	})
}

// Version handles the GET /version request.
func (s *Server) Version(w http.ResponseWriter, r *http.Request) {
	s.osOnce.Do(func() {
		v, err := s.cfg.HostInfo(r.Context())
		if err != nil || v == "" {
			s.cfg.Logger.Warn("Version: host info unavailable", "error", err)
			v = "unknown"
		}
		s.osVersion = v
	})

	writeJSON(w, s.cfg.Logger, VersionResponse{
		RuntimeVersion: runtime.Version(),
		OSVersion:      s.osVersion,
		Platform:       runtime.GOOS,
		Architecture:   runtime.GOARCH,
	})
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Response encode failed", "error", err)
	}
}

func gopsutilOSVersion(ctx context.Context) (string, error) {
	info, err := host.InfoWithContext(ctx)
	if err != nil {
		return "", err
	}
	if info.PlatformVersion != "" {
		return info.Platform + " " + info.PlatformVersion, nil
	}
	return info.KernelVersion, nil
}
