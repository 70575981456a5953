// Package middleware contains the HTTP middleware stack: trace propagation,
// admin authentication and rate limiting.
package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/render"
	"golang.org/x/time/rate"

	"licbind/internal/config"
	apperrors "licbind/internal/errors"
	"licbind/internal/infrastructure"
)

// Trace ensures every request context carries a trace id, taking an inbound
// X-Trace-ID header when present.
func Trace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if inbound := r.Header.Get("X-Trace-ID"); inbound != "" {
			ctx = infrastructure.WithTraceID(ctx, inbound)
		} else {
			ctx = infrastructure.EnsureTraceID(ctx)
		}
		w.Header().Set("X-Trace-ID", infrastructure.GetTraceID(ctx))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// AdminAuth gates the administrative surface behind a bearer token. An empty
// configured token disables the surface entirely rather than leaving it open.
func AdminAuth(token string, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				problem := apperrors.NewProblemDetails(
					http.StatusForbidden,
					apperrors.TypeForbidden,
					"Admin Surface Disabled",
					"no admin token is configured",
					r.URL.Path,
				)
				render.Render(w, r, problem)
				return
			}

			header := r.Header.Get("Authorization")
			presented := strings.TrimPrefix(header, "Bearer ")
			if header == presented || subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
				logger.Warn("admin auth rejected",
					slog.String("remote_addr", r.RemoteAddr),
					slog.String("path", r.URL.Path))
				problem := apperrors.NewProblemDetails(
					http.StatusUnauthorized,
					apperrors.TypeUnauthorized,
					"Unauthorized",
					"missing or invalid admin credential",
					r.URL.Path,
				)
				render.Render(w, r, problem)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimit applies a global token-bucket limit across all callers.
func RateLimit(cfg config.RateLimitConfig) func(http.Handler) http.Handler {
	limiter := rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst)
	return func(next http.Handler) http.Handler {
		if !cfg.Enabled {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				problem := apperrors.NewProblemDetails(
					http.StatusTooManyRequests,
					"/errors/rate-limit",
					"Too Many Requests",
					"request rate limit exceeded",
					r.URL.Path,
				)
				render.Render(w, r, problem)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
