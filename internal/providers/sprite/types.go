// Package sprite holds the generation collaborators. The worker talks to
// a Generator and never learns whether frames came from the PixelLab API
// or the synthetic renderer.
package sprite

import (
	"context"
	"fmt"

	"github.com/hasmatt1066/drawnofwar6-sub007/internal/domain"
)

// ProgressFunc receives generation progress as it happens. percent runs
// 0..100; stage is a short human-readable label. Implementations may be
// called from the generator's goroutine and must not block.
type ProgressFunc func(percent int, stage string)

// Generator is the contract implemented by all sprite providers.
type Generator interface {
	Generate(ctx context.Context, prompt domain.StructuredPrompt, onProgress ProgressFunc) (*domain.GenerationResult, error)
}

// UpstreamError is a classified failure from the generation provider.
// Status carries the provider's HTTP status, zero for transport-level
// failures. The retry layer decides retryability from it.
type UpstreamError struct {
	Status  int
	Code    string
	Message string
}

func (e *UpstreamError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("upstream status %d: %s (%s)", e.Status, e.Message, e.Code)
	}
	return fmt.Sprintf("upstream status %d: %s", e.Status, e.Message)
}
