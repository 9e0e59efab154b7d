package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/hasmatt1066/drawnofwar6-sub007/internal/domain"
)

const defaultDeadLetterLimit = 50

type deadLetterItem struct {
	ID            string                  `json:"id"`
	JobID         string                  `json:"job_id"`
	UserID        string                  `json:"user_id"`
	CacheKey      string                  `json:"cache_key"`
	Prompt        domain.StructuredPrompt `json:"prompt"`
	FailureReason string                  `json:"failure_reason"`
	AttemptsMade  int                     `json:"attempts_made"`
	Attempts      []domain.AttemptRecord  `json:"attempts"`
	FailedAt      time.Time               `json:"failed_at"`
}

func (a *App) DeadLettersList(w http.ResponseWriter, r *http.Request) {
	limit := defaultDeadLetterLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			a.error(w, http.StatusBadRequest, "bad_request", "limit must be a positive integer")
			return
		}
		limit = n
	}
	records, err := a.DeadLetters.List(r.Context(), limit)
	if err != nil {
		a.Logger.Error().Err(err).Msg("http: dead letter listing failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load dead letters")
		return
	}
	items := make([]deadLetterItem, 0, len(records))
	for _, rec := range records {
		items = append(items, deadLetterItem{
			ID:            rec.ID,
			JobID:         rec.JobID,
			UserID:        rec.UserID,
			CacheKey:      rec.CacheKey,
			Prompt:        rec.Prompt,
			FailureReason: rec.FailureReason,
			AttemptsMade:  rec.AttemptsMade,
			Attempts:      rec.Attempts,
			FailedAt:      rec.FailedAt,
		})
	}
	a.json(w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
}
