package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/calvinseptyanto-clone/what-i-meant/internal/platform/httpx"
)

// RouteRegistrar registers a set of routes against the provided router.
type RouteRegistrar func(r chi.Router)

type routerConfig struct {
	timeout     time.Duration
	middlewares []func(http.Handler) http.Handler
	health      *HealthHandlers

	reads      []RouteRegistrar
	generation []RouteRegistrar

	generationLimit  int
	generationWindow time.Duration
	clock            func() time.Time
}

// Option customises the router configuration before construction.
type Option func(*routerConfig)

const (
	// APIPrefix mirrors every route under /api for the web client.
	APIPrefix         = "/api"
	defaultTimeout    = 15 * time.Minute
	errorNotFoundCode = "route_not_found"
)

// generationPaths are answered with 501 when no generation registrar is configured.
var generationPaths = []string{
	"/categorize-items",
	"/generate-action-video",
	"/generate-speech",
	"/detect-object",
}

// NewRouter constructs the chi router. Every registrar is mounted at the root and again
// under APIPrefix; generation registrars additionally sit behind the per-client limiter.
func NewRouter(opts ...Option) chi.Router {
	cfg := routerConfig{timeout: defaultTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}

	r := chi.NewRouter()

	if cfg.health == nil {
		cfg.health = NewHealthHandlers()
	}

	r.Use(middleware.RequestID, middleware.RealIP)
	for _, mw := range cfg.middlewares {
		if mw != nil {
			r.Use(mw)
		}
	}
	r.Use(middleware.Timeout(cfg.timeout))

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError(errorNotFoundCode, fmt.Sprintf("no route for %s", req.URL.Path), http.StatusNotFound))
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("method_not_allowed", fmt.Sprintf("method %s not allowed on %s", req.Method, req.URL.Path), http.StatusMethodNotAllowed))
	})

	r.Get("/healthz", cfg.health.Healthz)
	r.Get("/readyz", cfg.health.Readyz)

	limiter := newFixedWindowLimiter(cfg.generationLimit, cfg.generationWindow, cfg.clock)

	mount := func(group chi.Router) {
		for _, registrar := range cfg.reads {
			if registrar != nil {
				registrar(group)
			}
		}
		group.Group(func(gen chi.Router) {
			if limiter != nil {
				gen.Use(rateLimitMiddleware(limiter))
			}
			if len(cfg.generation) == 0 {
				for _, path := range generationPaths {
					registerNotImplementedRoute(gen, path, "generation")
				}
				return
			}
			for _, registrar := range cfg.generation {
				if registrar != nil {
					registrar(gen)
				}
			}
		})
	}

	mount(r)
	r.Route(APIPrefix, func(api chi.Router) {
		mount(api)
	})

	return r
}

// WithMiddlewares appends additional global middleware to the router.
func WithMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.middlewares = append(cfg.middlewares, mw...)
	}
}

// WithHealthHandlers overrides the handlers used for /healthz and /readyz endpoints.
func WithHealthHandlers(h *HealthHandlers) Option {
	return func(cfg *routerConfig) {
		cfg.health = h
	}
}

// WithRequestTimeout bounds every request. Generation can legitimately take minutes.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(cfg *routerConfig) {
		if timeout > 0 {
			cfg.timeout = timeout
		}
	}
}

// WithReadRoutes registers endpoints that never call a generation backend.
func WithReadRoutes(regs ...RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.reads = append(cfg.reads, regs...)
	}
}

// WithGenerationRoutes registers endpoints that call paid generation backends.
func WithGenerationRoutes(regs ...RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.generation = append(cfg.generation, regs...)
	}
}

// WithGenerationRateLimit caps generation requests per client IP. A zero limit disables it.
func WithGenerationRateLimit(limit int, window time.Duration) Option {
	return func(cfg *routerConfig) {
		cfg.generationLimit = limit
		cfg.generationWindow = window
	}
}

// WithRouterClock injects the clock used by the rate limiter.
func WithRouterClock(clock func() time.Time) Option {
	return func(cfg *routerConfig) {
		cfg.clock = clock
	}
}

func registerNotImplementedRoute(r chi.Router, path string, name string) {
	handler := func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("not_implemented", fmt.Sprintf("%s routes not implemented", name), http.StatusNotImplemented))
	}
	r.HandleFunc(path, handler)
}
