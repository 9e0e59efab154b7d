package admission

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/hasmatt1066/drawnofwar6-sub007/internal/domain"
	"github.com/hasmatt1066/drawnofwar6-sub007/internal/infra"
)

// DepthReader supplies the current system queue depth. The queue
// implements it; nothing else about the queue matters here.
type DepthReader interface {
	Depth(ctx context.Context) (int, error)
}

// Control runs both admission gates. Admit must succeed before a job may
// be enqueued; a successful Admit holds one slot of the user's budget
// until Finish releases it on the job's terminal transition.
type Control struct {
	depth      DepthReader
	counter    Counter
	maxPerUser int
	hardLimit  int
	warnAt     int
	logger     infra.Logger

	warning atomic.Bool
}

func NewControl(depth DepthReader, counter Counter, maxPerUser, hardLimit, warnAt int, logger infra.Logger) *Control {
	return &Control{
		depth:      depth,
		counter:    counter,
		maxPerUser: maxPerUser,
		hardLimit:  hardLimit,
		warnAt:     warnAt,
		logger:     logger,
	}
}

// Admit checks system overflow first, then atomically takes a user slot.
// On rejection nothing is held; on success the caller owes exactly one
// Finish when the job ends.
func (c *Control) Admit(ctx context.Context, userID string) error {
	depth, err := c.depth.Depth(ctx)
	if err != nil {
		return fmt.Errorf("read queue depth: %w", err)
	}
	c.updateWarning(depth)
	if depth >= c.hardLimit {
		return fmt.Errorf("queue depth %d at hard limit %d: %w", depth, c.hardLimit, domain.ErrQueueFull)
	}

	n, err := c.counter.Incr(ctx, userID)
	if err != nil {
		return fmt.Errorf("take user slot: %w", err)
	}
	if n > int64(c.maxPerUser) {
		if _, err := c.counter.Decr(ctx, userID); err != nil {
			c.logger.Error().Err(err).Str("user_id", userID).Msg("admission: slot rollback failed")
		}
		return fmt.Errorf("user %s holds %d of %d jobs: %w", userID, n-1, c.maxPerUser, domain.ErrUserLimitExceeded)
	}
	return nil
}

// Finish releases the user's slot. Callers invoke it exactly once per
// admitted job, on whichever terminal transition ends that job.
func (c *Control) Finish(ctx context.Context, userID string) {
	if _, err := c.counter.Decr(ctx, userID); err != nil {
		c.logger.Error().Err(err).Str("user_id", userID).Msg("admission: slot release failed")
	}
}

// ActiveFor reports how many slots the user currently holds.
func (c *Control) ActiveFor(ctx context.Context, userID string) (int64, error) {
	return c.counter.Current(ctx, userID)
}

// Warning reports whether the queue depth last observed sat at or above
// the warning threshold.
func (c *Control) Warning() bool {
	return c.warning.Load()
}

func (c *Control) updateWarning(depth int) {
	if depth >= c.warnAt {
		if c.warning.CompareAndSwap(false, true) {
			c.logger.Warn().Int("depth", depth).Int("threshold", c.warnAt).Msg("admission: queue depth above warning threshold")
		}
		return
	}
	if c.warning.CompareAndSwap(true, false) {
		c.logger.Info().Int("depth", depth).Int("threshold", c.warnAt).Msg("admission: queue depth back below warning threshold")
	}
}
