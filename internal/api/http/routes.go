package http

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"subgraphx/internal/api/http/handlers"
	"subgraphx/internal/api/http/mw"
	"subgraphx/internal/metrics"
)

func BuildRouter(
	h *handlers.Handler,
	logMW *mw.LoggingMiddleware,
	gzipMW *mw.GzipMiddleware,
	rateLimitMW *mw.RateLimitMiddleware,
	jwtMW *mw.JWTMiddleware,
	corsMW *mw.CORSMiddleware,
) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	if logMW != nil {
		r.Use(logMW.Handler)
	}
	if gzipMW != nil {
		r.Use(gzipMW.Handler)
	}
	if corsMW != nil {
		r.Use(corsMW.Handler())
	}

	// tech endpoints, no auth
	r.Get("/healthz", h.Healthz)
	r.Get("/readiness", h.Readiness)
	r.Mount("/metrics", metrics.Handler())

	// data endpoints behind rate limit and jwt
	protected := chi.NewRouter()
	if rateLimitMW != nil {
		protected.Use(rateLimitMW.Handler)
	}
	if jwtMW != nil {
		protected.Use(jwtMW.Handler)
	}

	protected.Route("/api", func(apiR chi.Router) {
		apiR.Get("/protocol", h.Protocol)
		apiR.Route("/pools", func(pp chi.Router) {
			pp.Get("/", h.Pools)
			pp.Get("/{address}", h.PoolByAddress)
		})
		apiR.Get("/accounts/{address}", h.AccountByAddress)
		apiR.Get("/tokens/{address}/price", h.TokenPrice)
	})

	r.Mount("/", protected)
	return r
}
