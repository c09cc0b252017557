package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	mw "github.com/kiranshivaraju/vidresolve/internal/api/middleware"
	"github.com/kiranshivaraju/vidresolve/internal/api/response"
	"github.com/kiranshivaraju/vidresolve/pkg/models"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth      *mw.Auth
	RateLimit *mw.RateLimit

	HealthHandler    http.HandlerFunc
	MetricsHandler   http.Handler
	CreateJobs       http.HandlerFunc
	GetJob           http.HandlerFunc
	JobStatus        http.HandlerFunc
	CancelJob        http.HandlerFunc
	RetryJobs        http.HandlerFunc
	ListRequestJobs  http.HandlerFunc
	EventsHandler    http.HandlerFunc
	CreateKeyHandler http.HandlerFunc
	ListKeysHandler  http.HandlerFunc
	RevokeKeyHandler http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	// Public health check
	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)
		r.Use(deps.RateLimit.Limit)

		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireScope(models.ScopeJobs))

			r.Post("/api/v1/jobs", orNotImplemented(deps.CreateJobs))
			r.Post("/api/v1/jobs/retry", orNotImplemented(deps.RetryJobs))
			r.Get("/api/v1/jobs/{jobID}", orNotImplemented(deps.GetJob))
			r.Get("/api/v1/jobs/{jobID}/status", orNotImplemented(deps.JobStatus))
			r.Put("/api/v1/jobs/{jobID}/cancel", orNotImplemented(deps.CancelJob))
			r.Get("/api/v1/requests/{requestID}/jobs", orNotImplemented(deps.ListRequestJobs))
			r.Post("/api/v1/events", orNotImplemented(deps.EventsHandler))
		})

		// Admin routes
		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireScope(models.ScopeAdmin))

			r.Post("/api/v1/admin/keys", orNotImplemented(deps.CreateKeyHandler))
			r.Get("/api/v1/admin/keys", orNotImplemented(deps.ListKeysHandler))
			r.Delete("/api/v1/admin/keys/{keyID}", orNotImplemented(deps.RevokeKeyHandler))
		})
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
