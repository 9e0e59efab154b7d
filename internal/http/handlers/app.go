package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/hasmatt1066/drawnofwar6-sub007/internal/admission"
	"github.com/hasmatt1066/drawnofwar6-sub007/internal/domain"
	"github.com/hasmatt1066/drawnofwar6-sub007/internal/infra"
	"github.com/hasmatt1066/drawnofwar6-sub007/internal/progress"
	"github.com/hasmatt1066/drawnofwar6-sub007/internal/submit"
)

// App carries the API's collaborators into the handlers.
type App struct {
	Submitter   *submit.Submitter
	Queue       domain.Queue
	Admission   *admission.Control
	DeadLetters domain.DeadLetterStore
	Bus         progress.Bus
	Validate    *validator.Validate
	Logger      infra.Logger

	// KeepAlive is the comment-ping interval on event streams.
	KeepAlive time.Duration
	// AllowedOrigins feeds the CORS middleware in the router.
	AllowedOrigins []string
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, status int, code, message string) {
	a.json(w, status, map[string]string{"error": code, "message": message})
}
