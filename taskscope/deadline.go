package taskscope

import (
	"context"
	"time"
)

// deadlineController tracks a scope's optional absolute deadline and the
// remaining budget. The deadline is bound to the scope context, so every
// subtask token derived from it expires when the budget runs out; Join
// consults Expired to tell a deadline stop apart from a joiner-driven
// one.
type deadlineController struct {
	deadline time.Time
	now      func() time.Time
}

func newDeadlineController(deadline time.Time) *deadlineController {
	return &deadlineController{deadline: deadline, now: time.Now}
}

// bind applies the deadline to ctx. The returned cancel func releases the
// timer and doubles as the scope's cancellation signal.
func (dc *deadlineController) bind(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithDeadline(ctx, dc.deadline)
}

// Remaining returns the budget left before the deadline, negative once it
// has passed.
func (dc *deadlineController) Remaining() time.Duration {
	return dc.deadline.Sub(dc.now())
}

// Expired reports whether the deadline has passed.
func (dc *deadlineController) Expired() bool {
	return dc.Remaining() <= 0
}
