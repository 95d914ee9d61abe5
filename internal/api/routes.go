package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// SetupRoutes configures the HTTP surface. Authentication lives in the
// gateway in front of this service, so nothing here is auth-aware.
func SetupRoutes(h *Handlers, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:5173"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", h.HealthCheck)

	r.Route("/api", func(r chi.Router) {
		r.Route("/campaigns", func(r chi.Router) {
			r.Post("/", h.CreateCampaign)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetCampaign)
				r.Put("/", h.UpdateCampaign)
				r.Delete("/", h.DeleteCampaign)

				// Lifecycle commands, all idempotent.
				r.Post("/start", h.StartCampaign)
				r.Post("/pause", h.PauseCampaign)
				r.Post("/stop", h.StopCampaign)
				r.Post("/archive", h.ArchiveCampaign)

				r.Post("/contacts", h.EnrollContacts)
				r.Get("/launches", h.ListLaunches)
				r.Get("/scheduled", h.ScheduledActions)

				r.Route("/insights", func(r chi.Router) {
					r.Get("/daily", h.DailyStats)
					r.Get("/steps", h.StepPerformance)
					r.Get("/replies", h.ReplyAnalysis)
				})
				r.Get("/usage", h.RateUsage)
			})
		})

		r.Post("/leads", h.CreateLead)
	})

	return r
}
