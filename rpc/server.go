package rpc

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"taskmarket/app"
	obsmw "taskmarket/observability"
	"taskmarket/observability/logging"
	taskmw "taskmarket/rpc/middleware"
)

// Server binds the wired app.Module engines to the chi-routed HTTP surface
// described in the expanded specification's RPC surface section: every
// mutating route dispatches straight into the native engines rather than
// reverse-proxying to another service, the teacher's gateway/routes split
// having one backend here instead of many.
type Server struct {
	module *app.Module
	logger *slog.Logger

	auth    *taskmw.Authenticator
	limiter *taskmw.RateLimiter
	quota   *taskmw.QuotaGuard

	idempotency *idempotencyCache
}

// Config wires the collaborators a Server needs beyond the native modules
// themselves.
type Config struct {
	Module  *app.Module
	Logger  *slog.Logger
	Auth    *taskmw.Authenticator
	Limiter *taskmw.RateLimiter
	Quota   *taskmw.QuotaGuard
}

// NewServer constructs a Server ready to be mounted with Router().
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		module:      cfg.Module,
		logger:      logger,
		auth:        cfg.Auth,
		limiter:     cfg.Limiter,
		quota:       cfg.Quota,
		idempotency: newIdempotencyCache(5 * time.Minute),
	}
}

// Router assembles the chi router for the /v1 REST surface, grounded on the
// teacher's gateway/routes/router.go composition: request-id stamping and
// the access log around every route, a healthz probe and a metrics endpoint
// exposing the Prometheus registry outside the authenticated group, and
// every other route behind bearer auth, per-caller rate limiting, the native
// quota package, and idempotency-key caching.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.accessLog)

	r.Get("/v1/healthz", s.handleHealthz)
	r.Handle("/v1/metrics", promhttp.Handler())

	r.Route("/v1", func(root chi.Router) {
		if s.auth != nil {
			root.Use(s.auth.Middleware)
		}
		if s.limiter != nil {
			root.Use(s.limiter.Middleware)
		}
		if s.quota != nil {
			root.Use(s.quota.Middleware)
		}
		root.Use(s.idempotencyMiddleware)

		root.Post("/agents", s.handleRegisterAgent)
		root.Patch("/agents/{id}/uri", s.handleSetAgentURI)
		root.Get("/agents/{id}", s.handleGetAgent)

		root.Post("/listings", s.handleCreateListing)
		root.Patch("/listings/{id}", s.handleUpdateListing)
		root.Get("/listings/{id}", s.handleGetListing)

		root.Post("/tasks", s.handlePostTask)
		root.Post("/tasks/{id}/quote", s.handleProposeQuote)
		root.Post("/tasks/{id}/accept-task", s.handleAcceptTask)
		root.Post("/tasks/{id}/seller-cancel-quote", s.handleSellerCancelQuote)
		root.Post("/tasks/{id}/cancel", s.handleCancelTask)
		root.Post("/tasks/{id}/fund-bond", s.handleFundSellerBond)
		root.Post("/tasks/{id}/fund", s.handleFundTask)
		root.Post("/tasks/{id}/accept-quote", s.handleAcceptQuote)
		root.Post("/tasks/{id}/submit", s.handleSubmitDeliverable)
		root.Post("/tasks/{id}/accept-submission", s.handleAcceptSubmission)
		root.Post("/tasks/{id}/settle-timeout", s.handleSettleAfterTimeout)
		root.Post("/tasks/{id}/dispute", s.handleDisputeSubmission)
		root.Post("/tasks/{id}/dispute/resolve", s.handleResolveDispute)
		root.Post("/tasks/{id}/settle-post-dispute-timeout", s.handleSettleAfterPostDisputeTimeout)
		root.Post("/tasks/{id}/cancel-non-delivery", s.handleCancelForNonDelivery)
		root.Get("/tasks/{id}", s.handleGetTask)
		root.Get("/tasks/{id}/dispute", s.handleGetDisputeRecord)

		root.Post("/admin/dispute-module", s.handleDisputeModuleAdmin)
		root.Post("/admin/propose", s.handleProposeAdmin)
		root.Post("/admin/accept", s.handleAcceptAdmin)
		root.Post("/admin/resolvers", s.handleSetResolver)
	})

	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// accessLog logs request completion with module, method, status, and
// latency, grounded on the teacher's gateway/middleware/observability.go
// per-request audit trail and wired to the native module metrics registry.
func (s *Server) accessLog(next http.Handler) http.Handler {
	metrics := obsmw.ModuleMetrics()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		duration := time.Since(start)
		caller := taskmw.CallerFromContext(r.Context())
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.Observe("rpc", r.URL.Path, status, duration)
		s.logger.Info("rpc request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"latency_ms", duration.Milliseconds(),
			"caller", caller,
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// newIdemKey derives the idempotency cache key from the Idempotency-Key
// header, namespaced by route and method so distinct mutations never
// collide even if a client reuses a key across endpoints. A caller that
// omits the header gets a fresh uuid stamped onto the response so it can
// retry with that value next time, but this request itself is never
// deduplicated against anything.
func newIdemKey(r *http.Request) (key string, supplied bool) {
	key = r.Header.Get("Idempotency-Key")
	if key == "" {
		return uuid.NewString(), false
	}
	return r.Method + " " + r.URL.Path + " " + key, true
}

// idempotencyMiddleware replays a cached response for a repeated
// Idempotency-Key within the cache's retention window instead of
// re-running the mutation, grounded on the teacher's escrow-gateway retry
// cache: a gateway-layer safety net, not an engine-level concept.
func (s *Server) idempotencyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			next.ServeHTTP(w, r)
			return
		}
		key, supplied := newIdemKey(r)
		if supplied {
			if cached, ok := s.idempotency.get(key); ok {
				s.logger.Debug("idempotent replay",
					logging.MaskField("idempotency_key", r.Header.Get("Idempotency-Key")),
					"path", r.URL.Path)
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Idempotency-Replayed", "true")
				w.WriteHeader(cached.status)
				_, _ = w.Write(cached.body)
				return
			}
		}
		if !supplied {
			w.Header().Set("Idempotency-Key", key)
		}
		rec := newRecorder(w)
		next.ServeHTTP(rec, r)
		if supplied {
			s.idempotency.put(key, rec.status, rec.body.Bytes())
		}
	})
}
