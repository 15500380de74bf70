package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimid "github.com/go-chi/chi/v5/middleware"
	httpSwagger "github.com/swaggo/http-swagger"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/workflow-builder/engine/internal/api/handlers"
	mw "github.com/workflow-builder/engine/internal/api/middleware"
)

type Dependencies struct {
	Authenticator    mw.Authenticator
	AllowedOrigins   []string
	RateLimitRPS     float64
	RateLimitBurst   int
	HealthChecks     map[string]handlers.Check
	AuthHandler      *handlers.AuthHandler
	UsersHandler     *handlers.UsersHandler
	WorkflowsHandler *handlers.WorkflowsHandler
	AuditHandler     *handlers.AuditHandler
}

// NewRouter builds the HTTP handler. Background work started for it, such
// as the rate limiter's sweeper, stops when ctx is done.
func NewRouter(ctx context.Context, dep Dependencies) http.Handler {
	r := chi.NewRouter()

	if dep.RateLimitRPS <= 0 {
		dep.RateLimitRPS, dep.RateLimitBurst = 10, 20
	}

	// Built-in middleware
	r.Use(mw.RequestID)
	r.Use(mw.Recovery)
	r.Use(mw.Logging)
	r.Use(mw.CORS(dep.AllowedOrigins))
	r.Use(mw.RateLimit(ctx, dep.RateLimitRPS, dep.RateLimitBurst))
	r.Use(chimid.Compress(5))

	// Health endpoints
	hh := handlers.NewHealthHandler(dep.HealthChecks)
	r.Get("/healthz", hh.Liveness)
	r.Get("/readyz", hh.Readiness)

	// Swagger documentation
	r.Get("/docs/*", httpSwagger.Handler(
		httpSwagger.URL("/docs/doc.json"),
	))

	requireAuth := mw.Auth(dep.Authenticator)

	r.Route("/api", func(api chi.Router) {
		// Auth routes (public except change-password)
		api.Route("/auth", func(ar chi.Router) {
			ar.Post("/register", dep.AuthHandler.Register)
			ar.Post("/login", dep.AuthHandler.Login)
			ar.Post("/logout", dep.AuthHandler.Logout)
			ar.Post("/refresh", dep.AuthHandler.Refresh)
			ar.Post("/request-reset", dep.AuthHandler.RequestReset)
			ar.Post("/reset", dep.AuthHandler.Reset)
			ar.With(requireAuth).Post("/change-password", dep.AuthHandler.ChangePassword)
		})

		// Protected routes
		api.Group(func(protected chi.Router) {
			protected.Use(requireAuth)

			protected.Route("/users", func(ur chi.Router) {
				ur.Get("/me", dep.UsersHandler.Me)
				ur.Patch("/me", dep.UsersHandler.UpdateMe)

				ur.Group(func(admin chi.Router) {
					admin.Use(mw.RequireAdmin)
					admin.Get("/", dep.UsersHandler.List)
					admin.Post("/", dep.UsersHandler.Create)
					admin.Patch("/{id}", dep.UsersHandler.Update)
				})
			})

			protected.Route("/workflows", func(wr chi.Router) {
				wr.Get("/", dep.WorkflowsHandler.List)
				wr.Post("/", dep.WorkflowsHandler.Create)
				wr.Post("/import", dep.WorkflowsHandler.Import)
				wr.Post("/generate", dep.WorkflowsHandler.Generate)
				wr.Get("/{id}", dep.WorkflowsHandler.Get)
				wr.Patch("/{id}", dep.WorkflowsHandler.Update)
				wr.Delete("/{id}", dep.WorkflowsHandler.Delete)
				wr.Post("/{id}/template", dep.WorkflowsHandler.SetTemplate)
				wr.Post("/{id}/duplicate", dep.WorkflowsHandler.Duplicate)
				wr.Post("/{id}/export", dep.WorkflowsHandler.Export)
				wr.Get("/{id}/versions", dep.WorkflowsHandler.Versions)
				wr.Get("/{id}/versions/{version}", dep.WorkflowsHandler.Version)
			})

			protected.With(mw.RequireAdmin).Get("/audit", dep.AuditHandler.List)
		})
	})

	return otelhttp.NewHandler(r, "http.server",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}
