package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hasmatt1066/drawnofwar6-sub007/internal/http/handlers"
	"github.com/hasmatt1066/drawnofwar6-sub007/internal/middleware"
)

func NewRouter(app *handlers.App) http.Handler {
	r := chi.NewRouter()

	r.Use(
		chimw.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.RequestLogger(app.Logger),
	)
	if len(app.AllowedOrigins) > 0 {
		r.Use(middleware.CORS(app.AllowedOrigins))
	}

	// Health
	r.Get("/v1/healthz", app.Health)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.UserID)

		r.Route("/generations", func(r chi.Router) {
			r.Post("/", app.GenerationsCreate)
			r.Get("/{job_id}", app.GenerationStatus)
			r.Get("/{job_id}/events", app.GenerationEvents)
			r.Get("/{job_id}/download", app.GenerationDownload)
		})
		r.Get("/dead-letters", app.DeadLettersList)
		r.Get("/stats", app.StatsSummary)
	})

	return r
}
