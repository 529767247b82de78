package ratelimit

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"

	"ecotrace/internal/platform/middleware"
)

// Middleware applies a limiter to route groups.
type Middleware struct {
	limiter *Limiter
	logger  *slog.Logger
}

func NewMiddleware(limiter *Limiter, logger *slog.Logger) *Middleware {
	return &Middleware{limiter: limiter, logger: logger}
}

// Limit enforces the class profile. The key is the authenticated wallet when
// the auth middleware ran first, the client IP otherwise. Backend errors let
// the request through.
func (m *Middleware) Limit(class Class) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := middleware.GetWallet(r.Context())
			if key == "" {
				key = clientIP(r)
			}

			result, err := m.limiter.Check(r.Context(), key, class)
			if err != nil {
				m.logger.WarnContext(r.Context(), "rate limit check failed, allowing request",
					"class", string(class),
					"error", err,
				)
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(result.Limit, 10))
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(result.Remaining, 10))
			if !result.Allowed {
				w.Header().Set("Retry-After", strconv.Itoa(int(result.RetryAfter.Seconds())))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":"rate_limited","message":"too many requests"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
