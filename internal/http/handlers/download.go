package handlers

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hasmatt1066/drawnofwar6-sub007/internal/domain"
	"github.com/hasmatt1066/drawnofwar6-sub007/pkg/zip"
)

// GenerationDownload serves a completed generation as a zip bundle:
// every inline frame as a PNG plus the full result document. Jobs that
// are not complete yet answer 409 so callers keep polling.
func (a *App) GenerationDownload(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	if jobID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "job_id required")
		return
	}
	job, err := a.Queue.Get(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "job not found")
			return
		}
		a.Logger.Error().Err(err).Str("job_id", jobID).Msg("http: download lookup failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load job")
		return
	}
	if job.State != domain.JobStateCompleted || job.Result == nil {
		a.error(w, http.StatusConflict, "not_ready", "generation is not complete")
		return
	}

	assets, err := bundleAssets(job.Result)
	if err != nil {
		a.Logger.Error().Err(err).Str("job_id", jobID).Msg("http: bundle build failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to build bundle")
		return
	}
	archive, err := zip.Bundle(assets)
	if err != nil {
		a.Logger.Error().Err(err).Str("job_id", jobID).Msg("http: bundle write failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to build bundle")
		return
	}

	name := job.CacheKey
	if len(name) > 12 {
		name = name[:12]
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "sprite-"+name+".zip"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(archive)
}

func bundleAssets(result *domain.GenerationResult) ([]zip.Asset, error) {
	doc, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	assets := []zip.Asset{{Filename: "sprite.json", Data: doc}}
	for i, frame := range result.Frames {
		if frame.Image == "" {
			continue
		}
		raw, err := base64.StdEncoding.DecodeString(frame.Image)
		if err != nil {
			return nil, fmt.Errorf("frame %d: %w", i, err)
		}
		assets = append(assets, zip.Asset{Filename: fmt.Sprintf("frame-%d.png", i), Data: raw})
	}
	return assets, nil
}
