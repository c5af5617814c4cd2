package taskscope

import (
	"context"
	"time"
)

// Observer receives scope lifecycle hooks. Implementations must be safe
// for concurrent use: SubtaskStarted and SubtaskFinished fire from worker
// goroutines. The subtask hooks fire only for bodies that began
// executing; a subtask cancelled while still Pending reports through its
// joiner but not here.
type Observer interface {
	ScopeOpened(ctx context.Context)
	ScopeCancelled(ctx context.Context, cause error)
	ScopeJoined(ctx context.Context, wait time.Duration, err error)
	SubtaskStarted(ctx context.Context)
	SubtaskFinished(ctx context.Context, dur time.Duration, state State, err error)
}
