// Package httptransport is the thin HTTP layer. Handlers decode, delegate to
// the domain services, and encode; no state transition happens here.
package httptransport

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ecotrace/internal/platform/middleware"
	"ecotrace/internal/ratelimit"
	"ecotrace/pkg/domainerr"
)

// Deps bundles everything the router needs. RateLimit may be nil to disable
// limiting, as in most tests.
type Deps struct {
	Registry  RegistryService
	Devices   DeviceService
	Recycling RecyclingService
	Tokens    TokenService
	Events    EventSource
	RateLimit *ratelimit.Middleware
	Logger    *slog.Logger
}

// NewRouter wires all endpoints. Mutating routes sit behind the wallet token
// middleware; role checks stay in the services.
func NewRouter(deps Deps) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.Logger(deps.Logger))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	auth := NewAuthHandler(deps.Registry, deps.Tokens)
	devices := NewDeviceHandler(deps.Devices)
	recycling := NewRecyclingHandler(deps.Recycling)
	events := NewEventsHandler(deps.Events, deps.Logger)

	limit := limitOrNoop(deps.RateLimit)

	r.Route("/api", func(api chi.Router) {
		api.Group(func(pub chi.Router) {
			pub.Use(limit(ratelimit.ClassAuth))
			pub.Post("/auth/register", auth.handleRegister)
			pub.Post("/auth/login", auth.handleLogin)
		})

		api.Group(func(authed chi.Router) {
			authed.Use(middleware.RequireWallet(deps.Tokens, deps.Logger))
			authed.Use(limit(ratelimit.ClassMutation))

			// SSE connections outlive the request deadline, so the event
			// stream skips the timeout wrapper.
			authed.Group(func(timed chi.Router) {
				timed.Use(middleware.Timeout(requestTimeout))
				timed.Get("/auth/me", auth.handleMe)
				devices.Register(timed)
				recycling.Register(timed)
			})
			events.Register(authed)
		})
	})
	return r
}

func limitOrNoop(mw *ratelimit.Middleware) func(ratelimit.Class) func(http.Handler) http.Handler {
	if mw == nil {
		return func(ratelimit.Class) func(http.Handler) http.Handler {
			return func(next http.Handler) http.Handler { return next }
		}
	}
	return mw.Limit
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError translates a domain error into the JSON error envelope.
func writeError(w http.ResponseWriter, err error) {
	code := domainerr.CodeOf(err)
	message := "internal error"
	var derr *domainerr.Error
	if errors.As(err, &derr) {
		message = derr.Message
	}
	writeJSON(w, domainerr.ToHTTPStatus(code), map[string]string{
		"error":   string(code),
		"message": message,
	})
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, domainerr.New(domainerr.CodeBadRequest, "invalid "+name)
	}
	return id, nil
}

const (
	tokenTTL       = 24 * time.Hour
	requestTimeout = 15 * time.Second
)
