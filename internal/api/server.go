// Package api exposes the aggregation engine over HTTP. Handlers only parse
// parameters, capture the active snapshot and shape the engine's results.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/sells-group/agristat/internal/cache"
	"github.com/sells-group/agristat/internal/model"
	"github.com/sells-group/agristat/internal/snapshot"
)

// Snapshots is the source of the active snapshot. *snapshot.Manager
// implements it.
type Snapshots interface {
	Current() (*snapshot.Snapshot, error)
	Reload(ctx context.Context) (*snapshot.Snapshot, error)
	UpsertFacts(facts []model.Fact) (int, error)
}

// FactWriter persists fact upserts before they are applied in memory.
type FactWriter interface {
	UpsertFacts(ctx context.Context, facts []model.Fact) (int64, error)
}

// Options configures the HTTP surface.
type Options struct {
	CORSOrigins []string
	// RateLimit is the steady request rate per second; 0 disables limiting.
	RateLimit float64
	RateBurst int

	EvolutionFrom int
	EvolutionTo   int
	TopProducts   int

	// AdminToken, when set, must be presented as a bearer token on admin routes.
	AdminToken string
	// ReloadTimeout bounds a reload started from the admin endpoint.
	ReloadTimeout time.Duration
}

// Server holds the dependencies shared by every handler.
type Server struct {
	snaps   Snapshots
	cache   cache.Cache
	writer  FactWriter
	opts    Options
	limiter *rate.Limiter
}

// NewServer creates a Server. c may be nil to disable response caching.
func NewServer(snaps Snapshots, c cache.Cache, opts Options) *Server {
	if c == nil {
		c = cache.Nop{}
	}
	if opts.EvolutionFrom == 0 {
		opts.EvolutionFrom = 2021
	}
	if opts.EvolutionTo == 0 {
		opts.EvolutionTo = 2024
	}
	if opts.ReloadTimeout == 0 {
		opts.ReloadTimeout = 2 * time.Minute
	}
	s := &Server{snaps: snaps, cache: c, opts: opts}
	if opts.RateLimit > 0 {
		burst := opts.RateBurst
		if burst <= 0 {
			burst = int(opts.RateLimit)
		}
		s.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	return s
}

// WithFactWriter makes POST /api/facts persist through w.
func (s *Server) WithFactWriter(w FactWriter) *Server {
	s.writer = w
	return s
}

// Router returns the HTTP handler for all routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logRequests)
	r.Use(middleware.Recoverer)

	origins := s.opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "If-None-Match"},
		ExposedHeaders: []string{"ETag", "X-Cache"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(instrument)
		r.Use(s.rateLimit)

		r.Get("/gis/zones", s.cached(s.zones))
		r.Get("/filters", s.cached(s.filters))
		r.Get("/map/data", s.cached(s.mapData))
		r.Get("/zone/stats", s.cached(s.zoneStats))
		r.Get("/stats/global", s.cached(s.globalStats))
		r.Get("/stats/evolution", s.cached(s.evolution))
		r.Get("/stats/comparison", s.cached(s.comparison))
		r.Get("/search", s.cached(s.search))
		r.Get("/snapshot", s.handleSnapshot)

		r.Post("/facts", s.handleUpsertFacts)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAdmin)
			r.Post("/admin/reload", s.handleReload)
		})
	})
	return r
}
