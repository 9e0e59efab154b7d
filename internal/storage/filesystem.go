// Package storage persists operator exports onto the local filesystem,
// for environments where an object storage service is not available.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hasmatt1066/drawnofwar6-sub007/internal/domain"
)

// ExportDir writes dead-letter records as JSON files, one file per
// record. The redrive tool exports a record before removing it from the
// dead letter table so nothing is lost if the redrive misfires.
type ExportDir struct {
	basePath string
}

// NewExportDir initializes an ExportDir rooted at basePath, creating it
// if needed.
func NewExportDir(basePath string) (*ExportDir, error) {
	basePath = strings.TrimSpace(basePath)
	if basePath == "" {
		return nil, errors.New("storage: base path is required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("storage: ensure base path: %w", err)
	}
	return &ExportDir{basePath: basePath}, nil
}

// BasePath returns the configured root directory.
func (d *ExportDir) BasePath() string {
	if d == nil {
		return ""
	}
	return d.basePath
}

// exportedDeadLetter is the on-disk document shape. It matches the API's
// dead-letter listing so exported files and endpoint output line up.
type exportedDeadLetter struct {
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

// ExportDeadLetter writes the record as indented JSON named after its
// failure time and id, returning the written path. The name is stable,
// so re-exporting the same record overwrites rather than duplicates.
func (d *ExportDir) ExportDeadLetter(ctx context.Context, rec *domain.DeadLetterJob) (string, error) {
	if d == nil {
		return "", errors.New("storage: no export directory configured")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if rec == nil {
		return "", errors.New("storage: nil record")
	}

	doc := exportedDeadLetter{
		ID:            rec.ID,
		JobID:         rec.JobID,
		UserID:        rec.UserID,
		CacheKey:      rec.CacheKey,
		Prompt:        rec.Prompt,
		FailureReason: rec.FailureReason,
		AttemptsMade:  rec.AttemptsMade,
		Attempts:      rec.Attempts,
		FailedAt:      rec.FailedAt,
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("storage: encode record: %w", err)
	}

	name := fmt.Sprintf("%s-%s.json", rec.FailedAt.UTC().Format("20060102T150405"), sanitizeName(rec.ID))
	fullPath := filepath.Join(d.basePath, name)
	if err := os.WriteFile(fullPath, data, 0o644); err != nil {
		return "", fmt.Errorf("storage: write record: %w", err)
	}
	return fullPath, nil
}

// sanitizeName strips path separators and traversal sequences so a
// record id can never name a file outside the export directory.
func sanitizeName(id string) string {
	id = strings.TrimSpace(id)
	id = strings.ReplaceAll(id, "\\", "-")
	id = strings.ReplaceAll(id, "/", "-")
	for strings.Contains(id, "..") {
		id = strings.ReplaceAll(id, "..", "-")
	}
	if id == "" {
		return "record"
	}
	return id
}
