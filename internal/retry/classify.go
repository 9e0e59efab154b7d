// Package retry applies the failure policy after a generation attempt
// breaks: classify the error, reschedule transient failures with
// exponential backoff, and dead-letter fatal or exhausted jobs.
package retry

import (
	"errors"
	"net/http"

	"github.com/hasmatt1066/drawnofwar6-sub007/internal/domain"
	"github.com/hasmatt1066/drawnofwar6-sub007/internal/providers/sprite"
)

// Classify buckets a generation error. Provider responses that indicate
// a broken request or bad credentials are fatal: retrying them would
// produce the same rejection. Timeouts, rate limits, server errors, and
// anything unrecognized count as transient.
func Classify(err error) domain.FailureKind {
	var upErr *sprite.UpstreamError
	if errors.As(err, &upErr) {
		switch upErr.Status {
		case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusUnprocessableEntity:
			return domain.FailureKindFatal
		}
	}
	return domain.FailureKindTransient
}
