package handlers

import (
	"net/http"

	"github.com/hasmatt1066/drawnofwar6-sub007/internal/domain"
)

func (a *App) StatsSummary(w http.ResponseWriter, r *http.Request) {
	counts, err := a.Queue.CountByState(r.Context())
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "failed to load stats")
		return
	}
	depth, err := a.Queue.Depth(r.Context())
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "failed to load stats")
		return
	}
	a.json(w, http.StatusOK, map[string]any{
		"depth":            depth,
		"waiting":          counts[domain.JobStateWaiting],
		"active":           counts[domain.JobStateActive],
		"delayed":          counts[domain.JobStateDelayed],
		"completed":        counts[domain.JobStateCompleted],
		"failed":           counts[domain.JobStateFailed],
		"capacity_warning": a.Admission.Warning(),
	})
}
