package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Wuchinator/watchtime/internal/auth"
	"github.com/Wuchinator/watchtime/internal/config"
	"github.com/Wuchinator/watchtime/internal/ingest"
	"github.com/Wuchinator/watchtime/internal/stats"
	"github.com/Wuchinator/watchtime/pkg/httpapi"
)

const (
	Name    = "watchtime"
	Version = "0.4.0"
)

// HealthChecker reports whether a backing dependency is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

type Options struct {
	Logger        *zap.Logger
	Auth          *auth.Middleware
	Ingest        *ingest.Handler
	Stats         *stats.Handler
	Database      HealthChecker
	Gatherer      prometheus.Gatherer
	RequireAuth   bool
	CORSOrigins   []string
	RateLimit     string
	RateLimitSync string
}

// New builds the HTTP surface. Database and Gatherer are optional.
func New(opts Options) (http.Handler, error) {
	limit, err := limiter(opts.RateLimit, opts.RequireAuth)
	if err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}
	syncLimit, err := limiter(opts.RateLimitSync, opts.RequireAuth)
	if err != nil {
		return nil, fmt.Errorf("sync rate limit: %w", err)
	}

	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		logRequests(opts.Logger),
		middleware.Recoverer,
		securityHeaders,
		cors.Handler(cors.Options{
			AllowedOrigins:   opts.CORSOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost},
			AllowedHeaders:   []string{"Authorization", "Content-Type", auth.HeaderUserID},
			AllowCredentials: true,
			MaxAge:           300,
		}),
		limit,
	)

	r.Get("/health", health(opts.Database, opts.RequireAuth))
	r.Get("/", root(opts.RequireAuth))
	if opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Group(func(r chi.Router) {
		r.Use(opts.Auth.Handler)
		r.With(syncLimit).Post("/sync", opts.Ingest.Sync)
		r.Get("/sync/videos", opts.Ingest.ListVideos)
		r.Get("/sync/stats/{date}", opts.Ingest.DailyStats)
		r.Route("/stats", opts.Stats.Routes)
	})

	return r, nil
}

// limiter keys by client IP, or by the user header in dev mode.
func limiter(rate string, requireAuth bool) (func(http.Handler) http.Handler, error) {
	count, window, err := config.ParseRate(rate)
	if err != nil {
		return nil, err
	}
	return httprate.Limit(count, window,
		httprate.WithKeyFuncs(rateKey(requireAuth)),
		httprate.WithLimitHandler(func(rw http.ResponseWriter, _ *http.Request) {
			httpapi.WriteDetail(rw, http.StatusTooManyRequests, "Rate limit exceeded: "+rate)
		}),
	), nil
}

func rateKey(requireAuth bool) httprate.KeyFunc {
	return func(r *http.Request) (string, error) {
		if id := r.Header.Get(auth.HeaderUserID); id != "" && !requireAuth {
			return "user:" + id, nil
		}
		return httprate.KeyByIP(r)
	}
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		h := rw.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-XSS-Protection", "1; mode=block")
		next.ServeHTTP(rw, r)
	})
}

func logRequests(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			start := time.Now()
			reqID := middleware.GetReqID(r.Context())
			rw.Header().Set(middleware.RequestIDHeader, reqID)
			ww := middleware.NewWrapResponseWriter(rw, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			logger.Info("http request",
				zap.String("request_id", reqID),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("remote_addr", r.RemoteAddr),
			)
		})
	}
}

type healthResponse struct {
	Status       string `json:"status"`
	Version      string `json:"version"`
	AuthRequired bool   `json:"auth_required"`
	Database     string `json:"database,omitempty"`
}

func health(db HealthChecker, requireAuth bool) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		resp := healthResponse{Status: "ok", Version: Version, AuthRequired: requireAuth}
		status := http.StatusOK
		if db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			resp.Database = "connected"
			if err := db.HealthCheck(ctx); err != nil {
				resp.Status = "degraded"
				resp.Database = "unavailable"
				status = http.StatusServiceUnavailable
			}
		}
		httpapi.Write(rw, status, resp)
	}
}

type rootResponse struct {
	Name      string            `json:"name"`
	Version   string            `json:"version"`
	Auth      string            `json:"auth"`
	Endpoints map[string]string `json:"endpoints"`
}

func root(requireAuth bool) http.HandlerFunc {
	mode := "Development mode (X-User-Id)"
	if requireAuth {
		mode = "Google OAuth (Bearer token)"
	}
	resp := rootResponse{
		Name:    Name,
		Version: Version,
		Auth:    mode,
		Endpoints: map[string]string{
			"sync":        "POST /sync",
			"videos":      "GET /sync/videos",
			"daily_stats": "GET /sync/stats/{date}",
			"stats":       "GET /stats/*",
		},
	}
	return func(rw http.ResponseWriter, _ *http.Request) {
		httpapi.Write(rw, http.StatusOK, resp)
	}
}
