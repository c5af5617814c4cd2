package taskscope

import "errors"

var (
	// ErrScopeClosed is returned by Fork once a scope has begun joining or
	// has been closed. It indicates a programming error, not a runtime
	// condition.
	ErrScopeClosed = errors.New("task scope is closed")

	// ErrInvalidState is returned by subtask accessors used in the wrong
	// lifecycle state, such as Get before the subtask succeeded.
	ErrInvalidState = errors.New("subtask is not in a valid state for this call")

	// ErrScopeTimeout is returned by Join when the scope deadline expired
	// before the joiner's stop condition was met.
	ErrScopeTimeout = errors.New("task scope deadline exceeded")

	// ErrJoinerRejected marks a joiner policy's own failure condition,
	// such as a consensus that can no longer be reached.
	ErrJoinerRejected = errors.New("joiner rejected the scope outcome")

	// ErrTaskCancelled marks a subtask that honored cooperative
	// cancellation instead of completing.
	ErrTaskCancelled = errors.New("subtask cancelled")
)
