package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// SetupRoutes configures all API routes.
func SetupRoutes(h *Handlers) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://app.griphq.com", "http://localhost:3000"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check (no auth required)
	r.Get("/health", h.HealthCheck)

	r.Route("/api", func(r chi.Router) {
		r.Route("/communities/{communityID}", func(r chi.Router) {
			r.Get("/", h.GetCommunity)
			r.Get("/members", h.ListMembers)
			r.Post("/sync", h.SyncCommunity)
			r.Get("/playbooks", h.ListPlaybooks)
			r.Post("/playbooks/seed", h.SeedPlaybooks)
			r.Post("/playbooks/{playbookID}/activate", h.ActivatePlaybook)
			r.Post("/playbooks/{playbookID}/deactivate", h.DeactivatePlaybook)
		})

		r.Get("/members/{memberID}", h.GetMember)

		r.Post("/playbooks/{playbookID}/enroll", h.EnrollMember)
		r.Post("/playbooks/execute", h.ExecuteSteps)

		r.Post("/risk/recalculate", h.RecalculateRisk)

		r.Get("/outreach/templates", h.ListTemplates)
		r.Post("/outreach/send", h.SendOutreach)
	})

	return r
}
