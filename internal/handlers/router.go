// Package handlers exposes the storefront core to the browser as JSON over HTTP.
package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Fawaz-003/Restaurant-Frontend-sub001/internal/platform/httpx"
)

// RouteRegistrar registers a set of routes against the provided router.
type RouteRegistrar func(r chi.Router)

type routerConfig struct {
	middlewares []func(http.Handler) http.Handler
	health      *HealthHandlers
	timeout     time.Duration

	session   RouteRegistrar
	cart      RouteRegistrar
	addresses RouteRegistrar
	checkout  RouteRegistrar
	streams   RouteRegistrar

	sessionMiddleware func(http.Handler) http.Handler
}

// Option customises the router configuration before construction.
type Option func(*routerConfig)

const (
	defaultTimeout    = 60 * time.Second
	errorNotFoundCode = "route_not_found"
)

// NewRouter constructs the chi router with shared middleware and the storefront route groups.
// Streaming routes are mounted outside the request timeout.
func NewRouter(opts ...Option) chi.Router {
	cfg := routerConfig{
		middlewares: []func(http.Handler) http.Handler{
			middleware.RequestID,
			middleware.RealIP,
		},
		timeout: defaultTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.health == nil {
		cfg.health = NewHealthHandlers()
	}

	r := chi.NewRouter()
	for _, mw := range cfg.middlewares {
		if mw != nil {
			r.Use(mw)
		}
	}

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError(errorNotFoundCode, fmt.Sprintf("no route for %s", req.URL.Path), http.StatusNotFound))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("method_not_allowed", fmt.Sprintf("method %s not allowed on %s", req.Method, req.URL.Path), http.StatusMethodNotAllowed))
	})

	r.Get("/healthz", cfg.health.Healthz)

	r.Group(func(browser chi.Router) {
		if cfg.sessionMiddleware != nil {
			browser.Use(cfg.sessionMiddleware)
		}
		if cfg.streams != nil {
			cfg.streams(browser)
		}
		browser.Group(func(api chi.Router) {
			if cfg.timeout > 0 {
				api.Use(middleware.Timeout(cfg.timeout))
			}
			mount := func(path string, registrar RouteRegistrar) {
				if registrar == nil {
					return
				}
				api.Route(path, func(group chi.Router) { registrar(group) })
			}
			mount("/session", cfg.session)
			mount("/cart", cfg.cart)
			mount("/addresses", cfg.addresses)
			mount("/checkout", cfg.checkout)
		})
	})

	return r
}

// WithMiddlewares appends additional global middleware to the router.
func WithMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.middlewares = append(cfg.middlewares, mw...)
	}
}

// WithHealthHandlers overrides the handlers used for /healthz.
func WithHealthHandlers(h *HealthHandlers) Option {
	return func(cfg *routerConfig) {
		cfg.health = h
	}
}

// WithTimeout overrides the request timeout of non-streaming routes. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(cfg *routerConfig) {
		cfg.timeout = d
	}
}

// WithSessionMiddleware installs the middleware resolving the browser session for every
// storefront route.
func WithSessionMiddleware(mw func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.sessionMiddleware = mw
	}
}

// WithStorefront registers the session, cart, address and checkout groups of h.
func WithStorefront(h *StorefrontHandlers) Option {
	return func(cfg *routerConfig) {
		if h == nil {
			return
		}
		cfg.session = h.SessionRoutes
		cfg.cart = h.CartRoutes
		cfg.addresses = h.AddressRoutes
		cfg.checkout = h.CheckoutRoutes
		cfg.streams = h.StreamRoutes
	}
}
