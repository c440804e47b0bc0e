package rest

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sentinel-labs/fraud-monitor/internal/metrics"
)

// RouterConfig configures cross-cutting concerns of the view API
type RouterConfig struct {
	AllowedOrigins []string
	RefreshRate    float64
	RefreshBurst   int
	RequestTimeout time.Duration
	Metrics        *metrics.Registry
	Gatherer       prometheus.Gatherer
	// Stream serves the snapshot websocket; nil disables /ws
	Stream http.HandlerFunc
}

// NewRouter wires the view API routes and middleware
func NewRouter(h *Handler, cfg RouterConfig, logger *zap.Logger) chi.Router {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(LoggerMiddleware(logger))
	router.Use(middleware.Recoverer)
	if cfg.Metrics != nil {
		router.Use(MetricsMiddleware(cfg.Metrics))
	}

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	router.Get("/health", h.Health)
	if cfg.Gatherer != nil {
		router.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}
	if cfg.Stream != nil {
		router.Get("/ws", cfg.Stream)
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	limit := rate.NewLimiter(rate.Limit(cfg.RefreshRate), cfg.RefreshBurst)

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Timeout(timeout))

		r.Get("/snapshot", h.Snapshot)
		r.Get("/alerts", h.ListAlerts)
		r.Delete("/alerts", h.ClearAlerts)
		r.Delete("/alerts/{id}", h.DismissAlert)
		r.Get("/markers", h.Markers)
		r.Get("/heatmap", h.Heatmap)
		r.With(RateLimit(limit, logger)).Post("/refresh", h.Refresh)
	})

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, ResponseEnvelope{
			Error: &ErrorResponse{Code: "ENDPOINT_NOT_FOUND", Message: "endpoint not found"},
			Meta:  meta(r),
		})
	})
	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, ResponseEnvelope{
			Error: &ErrorResponse{Code: "METHOD_NOT_ALLOWED", Message: "method not allowed"},
			Meta:  meta(r),
		})
	})

	return router
}
