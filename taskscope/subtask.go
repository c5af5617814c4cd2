package taskscope

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// State is the lifecycle state of a Subtask.
type State int32

const (
	Pending State = iota
	Running
	Succeeded
	Failed
	Cancelled
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Running:
		return "running"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	case Cancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Terminal reports whether s is one of the terminal states.
func (s State) Terminal() bool {
	return s == Succeeded || s == Failed || s == Cancelled
}

// Subtask is one unit of work forked into a Scope. It is owned by the
// scope that forked it; callers interact with it only through the handle
// methods below. Transitions are push-based: as soon as the body returns,
// State, Get and Failure observe the terminal outcome.
type Subtask[T any] struct {
	index  int
	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	state     State
	value     T
	err       error
	cancelReq bool
	done      chan struct{}
}

func newSubtask[T any](index int, ctx context.Context, cancel context.CancelFunc) *Subtask[T] {
	return &Subtask[T]{index: index, ctx: ctx, cancel: cancel, done: make(chan struct{})}
}

// Index returns the subtask's fork-order position within its scope.
func (st *Subtask[T]) Index() int { return st.index }

// Context returns the subtask's cancellation token, the same one its body
// receives. Bodies that open a child scope should parent it on this token
// so parent cancellation and deadline propagate.
func (st *Subtask[T]) Context() context.Context { return st.ctx }

// State returns the subtask's current lifecycle state.
func (st *Subtask[T]) State() State {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.state
}

// Done is closed once the subtask reaches a terminal state.
func (st *Subtask[T]) Done() <-chan struct{} { return st.done }

// Get returns the subtask's value. It fails with ErrInvalidState unless
// the subtask has Succeeded.
func (st *Subtask[T]) Get() (T, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.state != Succeeded {
		var zero T
		return zero, fmt.Errorf("get on %s subtask: %w", st.state, ErrInvalidState)
	}
	return st.value, nil
}

// Failure returns the error the subtask's body produced. It fails with
// ErrInvalidState unless the subtask has Failed.
func (st *Subtask[T]) Failure() (error, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.state != Failed {
		return nil, fmt.Errorf("failure on %s subtask: %w", st.state, ErrInvalidState)
	}
	return st.err, nil
}

// Outcome returns the terminal value or error without the state checking
// of Get and Failure: Succeeded yields the value, Failed its error, and
// Cancelled an error wrapping ErrTaskCancelled. Joiners use it to fold
// completions. While the subtask is non-terminal it yields
// ErrInvalidState.
func (st *Subtask[T]) Outcome() (T, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	var zero T
	switch st.state {
	case Succeeded:
		return st.value, nil
	case Failed, Cancelled:
		return zero, st.err
	default:
		return zero, fmt.Errorf("outcome on %s subtask: %w", st.state, ErrInvalidState)
	}
}

// Cancel requests cooperative cancellation. It is idempotent and the
// signal is delivered at most once; the subtask transitions to Cancelled
// only after its body observes the token and unwinds, or immediately if
// the body never started.
func (st *Subtask[T]) Cancel() {
	st.mu.Lock()
	already := st.cancelReq
	st.cancelReq = true
	st.mu.Unlock()
	if !already {
		st.cancel()
	}
}

// start moves Pending to Running. It reports false when cancellation was
// delivered before the body ran; the caller then finalizes the subtask as
// Cancelled without invoking the body.
func (st *Subtask[T]) start() bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.state != Pending || st.cancelReq || st.ctx.Err() != nil {
		return false
	}
	st.state = Running
	return true
}

// finalize records the body's outcome and moves the subtask to its
// terminal state. Transitions are monotonic; a second call is a no-op.
func (st *Subtask[T]) finalize(v T, err error) State {
	st.mu.Lock()
	if st.state.Terminal() {
		s := st.state
		st.mu.Unlock()
		return s
	}
	switch {
	case err == nil:
		st.state = Succeeded
		st.value = v
	case st.honoredCancellation(err):
		st.state = Cancelled
		if errors.Is(err, ErrTaskCancelled) {
			st.err = err
		} else {
			st.err = fmt.Errorf("%w: %w", ErrTaskCancelled, err)
		}
	default:
		st.state = Failed
		st.err = err
	}
	s := st.state
	st.mu.Unlock()
	st.cancel()
	close(st.done)
	return s
}

// honoredCancellation distinguishes a body unwinding in response to a
// delivered cancellation signal from a failure of its own. Called with
// st.mu held.
func (st *Subtask[T]) honoredCancellation(err error) bool {
	if !st.cancelReq && st.ctx.Err() == nil {
		return false
	}
	return errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, ErrTaskCancelled)
}
