package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/jbweber/homelab/policyd/internal/validation"
)

// Pinger reports whether the backing store is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options wires the API to its collaborators. Only Service is required.
type Options struct {
	Service   PolicyService
	Validator *validation.Validator // defaults to validation.DefaultRules()
	Health    Pinger                // nil reports healthy unconditionally
	Counter   PolicyCounter         // feeds the policies gauge when set
	Logger    *zap.Logger
	Registry  *prometheus.Registry // defaults to a private registry
}

// API holds the HTTP handlers and their dependencies
type API struct {
	policies *Policies
	health   Pinger
	metrics  *Metrics
	registry *prometheus.Registry
	logger   *zap.Logger
}

// NewAPI creates a new API instance
func NewAPI(opts Options) *API {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("http")

	v := opts.Validator
	if v == nil {
		v = validation.New(validation.DefaultRules())
	}

	reg := opts.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &API{
		policies: NewPolicies(opts.Service, v, logger),
		health:   opts.Health,
		metrics:  NewMetrics(reg, opts.Counter),
		registry: reg,
		logger:   logger,
	}
}

// RegisterRoutes registers all API endpoints to the given chi router.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Get("/", a.rootHandler)
	r.Get("/healthz", a.healthHandler)
	r.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))

	RegisterPolicyRoutes(r, a.policies)
}

// Router returns a chi router with the standard middleware stack and all routes
func (a *API) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(TraceMiddleware)
	r.Use(RequestLogger(a.logger))
	r.Use(middleware.Recoverer)
	r.Use(a.metrics.Middleware)

	a.RegisterRoutes(r)
	return r
}

func (a *API) rootHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	if _, err := fmt.Fprintln(w, "policyd is running"); err != nil {
		a.logger.Warn("failed to write response", zap.Error(err))
	}
}

// healthHandler handles GET /healthz
func (a *API) healthHandler(w http.ResponseWriter, r *http.Request) {
	if a.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := a.health.Ping(ctx); err != nil {
			a.logger.Warn("health check failed", zap.Error(err))
			writeJSON(a.logger, w, http.StatusServiceUnavailable, map[string]string{
				"status": "unavailable",
				"error":  err.Error(),
			})
			return
		}
	}
	writeJSON(a.logger, w, http.StatusOK, map[string]string{"status": "ok"})
}
