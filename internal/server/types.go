package server

import (
	"context"
	"errors"
	"image"
	"net/http"
	"time"

	"github.com/MeKo-Tech/photocheck/internal/config"
	"github.com/MeKo-Tech/photocheck/internal/pipeline"
	"github.com/MeKo-Tech/photocheck/internal/printlayout"
	"github.com/MeKo-Tech/photocheck/internal/quickcheck"
	"github.com/MeKo-Tech/photocheck/internal/storage"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PhotoChecker runs the full compliance check.
type PhotoChecker interface {
	Check(ctx context.Context, img image.Image) *pipeline.Result
	CheckBytes(ctx context.Context, data []byte) *pipeline.Result
	DetectorLoaded() bool
	Close() error
}

// FaceCounter runs the fast face count.
type FaceCounter interface {
	Check(img image.Image) quickcheck.Result
}

// Dependencies are the services behind the endpoints. Checker is required;
// endpoints whose dependency is nil answer 503.
type Dependencies struct {
	Checker PhotoChecker
	Quick   FaceCounter
	Orders  *storage.OrderStore
	Layout  *printlayout.Layout
	// ModelsDir is reported by /models.
	ModelsDir string
}

// Server holds the HTTP server state and dependencies.
type Server struct {
	checker PhotoChecker
	quick   FaceCounter
	orders  *storage.OrderStore
	layout  *printlayout.Layout

	modelsDir   string
	corsOrigin  string
	maxUploadMB int64
	timeout     time.Duration
	rateLimiter *RateLimiter
}

// HealthResponse is returned by /health.
type HealthResponse struct {
	Status         string `json:"status"`
	Version        string `json:"version,omitempty"`
	Time           string `json:"time"`
	DetectorLoaded bool   `json:"detector_loaded"`
}

// ModelInfo describes one model file.
type ModelInfo struct {
	Name        string `json:"name"`
	Path        string `json:"path"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
	Present     bool   `json:"present"`
}

// ModelsResponse is returned by /models.
type ModelsResponse struct {
	Models []ModelInfo `json:"models"`
	Count  int         `json:"count"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// ValidateResponse is the full report of a photo check plus the locations of
// the stored images of an order.
type ValidateResponse struct {
	*pipeline.Result
	OrderID      string `json:"order_id,omitempty"`
	ValidatedURL string `json:"validated_url,omitempty"`
	PrintURL     string `json:"print_url,omitempty"`
}

// OrderResponse is returned when an original photo is uploaded.
type OrderResponse struct {
	Success bool   `json:"success"`
	OrderID string `json:"order_id"`
	URL     string `json:"url"`
}

// NewServer creates a server. Rate limiting is enabled by cfg.RateLimit.
func NewServer(cfg config.ServerConfig, deps Dependencies) (*Server, error) {
	if deps.Checker == nil {
		return nil, errors.New("server: photo checker is required")
	}
	s := &Server{
		checker:     deps.Checker,
		quick:       deps.Quick,
		orders:      deps.Orders,
		layout:      deps.Layout,
		modelsDir:   deps.ModelsDir,
		corsOrigin:  cfg.CORSOrigin,
		maxUploadMB: cfg.MaxUploadMB,
		timeout:     time.Duration(cfg.TimeoutSec) * time.Second,
	}
	if s.corsOrigin == "" {
		s.corsOrigin = "*"
	}
	if s.maxUploadMB <= 0 {
		s.maxUploadMB = 50
	}
	if cfg.RateLimit.Enabled {
		s.rateLimiter = NewRateLimiter(cfg.RateLimit)
	}
	return s, nil
}

// Close releases server resources.
func (s *Server) Close() error {
	return s.checker.Close()
}

// SetupRoutes configures the HTTP routes.
func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", s.wrap("health", s.healthHandler))
	mux.HandleFunc("/models", s.wrap("models", s.modelsHandler))
	mux.HandleFunc("/orders", s.wrap("orders", s.limited(s.orderUploadHandler)))
	mux.HandleFunc("/quick-check", s.wrap("quick_check", s.limited(s.quickCheckHandler)))
	mux.HandleFunc("/validate-photo", s.wrap("validate_photo", s.limited(s.validateOrderHandler)))
	mux.HandleFunc("/validate", s.wrap("validate", s.limited(s.validateUploadHandler)))
	mux.HandleFunc("/print-layout", s.wrap("print_layout", s.limited(s.printLayoutHandler)))
	mux.HandleFunc("/ws/validate", s.websocketHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/", s.wrap("not_found", s.notFoundHandler))
}

// Handler returns a mux with all routes registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.SetupRoutes(mux)
	return mux
}
