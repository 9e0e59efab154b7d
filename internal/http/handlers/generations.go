package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/hasmatt1066/drawnofwar6-sub007/internal/domain"
	"github.com/hasmatt1066/drawnofwar6-sub007/internal/middleware"
	"github.com/hasmatt1066/drawnofwar6-sub007/internal/progress"
)

type generateRequest struct {
	Prompt domain.StructuredPrompt `json:"prompt"`
}

type generateResponse struct {
	JobID        string                   `json:"job_id,omitempty"`
	CacheKey     string                   `json:"cache_key"`
	Status       string                   `json:"status"`
	CacheHit     bool                     `json:"cache_hit,omitempty"`
	Deduplicated bool                     `json:"deduplicated,omitempty"`
	Result       *domain.GenerationResult `json:"result,omitempty"`
}

func (a *App) GenerationsCreate(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if err := a.Validate.Struct(req.Prompt); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			a.error(w, http.StatusBadRequest, "invalid_prompt", verrs.Error())
			return
		}
		a.error(w, http.StatusBadRequest, "invalid_prompt", "prompt failed validation")
		return
	}

	sub, err := a.Submitter.Submit(r.Context(), userID, req.Prompt)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidPrompt):
			a.error(w, http.StatusBadRequest, "invalid_prompt", err.Error())
		case errors.Is(err, domain.ErrUserLimitExceeded):
			w.Header().Set("Retry-After", "30")
			a.error(w, http.StatusTooManyRequests, "user_limit", err.Error())
		case errors.Is(err, domain.ErrQueueFull):
			w.Header().Set("Retry-After", "60")
			a.error(w, http.StatusTooManyRequests, "queue_full", err.Error())
		default:
			a.Logger.Error().Err(err).Str("user_id", userID).Msg("http: submit failed")
			a.error(w, http.StatusInternalServerError, "internal", "submission failed")
		}
		return
	}

	if sub.CacheHit {
		a.json(w, http.StatusOK, generateResponse{
			CacheKey: sub.CacheKey,
			Status:   "complete",
			CacheHit: true,
			Result:   sub.Result,
		})
		return
	}
	resp := generateResponse{JobID: sub.JobID, CacheKey: sub.CacheKey, Status: "queued"}
	if sub.Coalesced {
		resp.Deduplicated = true
		if st, err := a.Submitter.Status(r.Context(), sub.JobID); err == nil {
			resp.Status = st.Stage
		}
	}
	a.json(w, http.StatusAccepted, resp)
}

type statusResponse struct {
	JobID        string                   `json:"job_id"`
	State        string                   `json:"state"`
	Percent      int                      `json:"percent"`
	Stage        string                   `json:"stage,omitempty"`
	AttemptsMade int                      `json:"attempts_made"`
	MaxAttempts  int                      `json:"max_attempts"`
	Result       *domain.GenerationResult `json:"result,omitempty"`
	Error        string                   `json:"error,omitempty"`
	CreatedAt    time.Time                `json:"created_at"`
	FinishedAt   *time.Time               `json:"finished_at,omitempty"`
}

func (a *App) GenerationStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	if jobID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "job_id required")
		return
	}
	st, err := a.Submitter.Status(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "job not found")
			return
		}
		a.Logger.Error().Err(err).Str("job_id", jobID).Msg("http: status lookup failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load job")
		return
	}
	a.json(w, http.StatusOK, statusResponse{
		JobID:        st.JobID,
		State:        string(st.State),
		Percent:      st.Percent,
		Stage:        st.Stage,
		AttemptsMade: st.AttemptsMade,
		MaxAttempts:  st.MaxAttempts,
		Result:       st.Result,
		Error:        st.FailureReason,
		CreatedAt:    st.CreatedAt,
		FinishedAt:   st.FinishedAt,
	})
}

// GenerationEvents streams job progress as server-sent events: one
// snapshot event on connect, then live bus events until the job hits a
// terminal stage or the client goes away.
func (a *App) GenerationEvents(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	if jobID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "job_id required")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		a.error(w, http.StatusInternalServerError, "internal", "streaming unsupported")
		return
	}

	// Subscribe before the snapshot read; an event landing between the
	// two waits in the channel buffer instead of being missed.
	events, cancel, err := a.Bus.Subscribe(r.Context(), jobID)
	if err != nil {
		a.Logger.Error().Err(err).Str("job_id", jobID).Msg("http: event subscription failed")
		a.error(w, http.StatusInternalServerError, "internal", "subscription failed")
		return
	}
	defer cancel()

	st, err := a.Submitter.Status(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "job not found")
			return
		}
		a.Logger.Error().Err(err).Str("job_id", jobID).Msg("http: status lookup failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load job")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	writeEvent(w, progress.Event{JobID: jobID, Percent: st.Percent, Stage: st.Stage, Timestamp: time.Now().UTC()})
	flusher.Flush()
	if st.State.Terminal() {
		return
	}

	keepAlive := a.KeepAlive
	if keepAlive <= 0 {
		keepAlive = 15 * time.Second
	}
	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		case ev, open := <-events:
			if !open {
				return
			}
			writeEvent(w, ev)
			flusher.Flush()
			if terminalEvent(ev) {
				return
			}
		}
	}
}

func writeEvent(w io.Writer, ev progress.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
}

func terminalEvent(ev progress.Event) bool {
	return ev.Percent >= 100 && (ev.Stage == "complete" || ev.Stage == "failed")
}
