package taskscope

import (
	"errors"
	"fmt"
)

// Joiner decides when a scope's group of subtasks is done and what
// aggregate outcome the scope reports. The scope serializes every OnFork,
// OnComplete and Result call behind a single mutex, so implementations
// need no locking of their own. OnComplete must not block.
type Joiner[T, R any] interface {
	// OnFork is called synchronously as a subtask is forked. Returning
	// true requests immediate scope cancellation.
	OnFork(st *Subtask[T]) bool

	// OnComplete is called exactly once per subtask when it reaches a
	// terminal state, including subtasks cancelled during shutdown.
	// Returning true requests the scope to stop and begin shutdown;
	// joiners that have already stopped should ignore late completions.
	OnComplete(st *Subtask[T]) bool

	// Result produces the aggregate outcome. The scope calls it once,
	// after every subtask is terminal.
	Result() (R, error)
}

// TimeoutTolerant marks joiners whose Result is meaningful even when the
// scope deadline expired before the stop condition was met. Join then
// returns the partial aggregate instead of ErrScopeTimeout.
type TimeoutTolerant interface {
	TolerateTimeout() bool
}

// Outcome is one subtask's terminal result as reported by AwaitAll.
// Exactly one of Value and Err is meaningful, per State.
type Outcome[T any] struct {
	Value T
	Err   error
	State State
}

type allSuccessful[T any] struct {
	forked      int
	results     map[int]T
	firstErr    error
	firstCancel error
	stopped     bool
}

// NewAllSuccessful returns a joiner that succeeds only if every subtask
// does. Join yields the values in fork order; the first failure stops the
// scope and becomes the scope error, with the remaining subtasks
// cancelled.
func NewAllSuccessful[T any]() Joiner[T, []T] {
	return &allSuccessful[T]{results: make(map[int]T)}
}

func (j *allSuccessful[T]) OnFork(*Subtask[T]) bool {
	j.forked++
	return false
}

func (j *allSuccessful[T]) OnComplete(st *Subtask[T]) bool {
	if j.stopped {
		return false
	}
	switch st.State() {
	case Succeeded:
		v, _ := st.Get()
		j.results[st.Index()] = v
		return false
	case Failed:
		j.firstErr, _ = st.Failure()
		j.stopped = true
		return true
	default:
		if j.firstCancel == nil {
			_, j.firstCancel = st.Outcome()
		}
		return false
	}
}

func (j *allSuccessful[T]) Result() ([]T, error) {
	if j.firstErr != nil {
		return nil, j.firstErr
	}
	if len(j.results) != j.forked {
		cause := j.firstCancel
		if cause == nil {
			cause = ErrTaskCancelled
		}
		return nil, fmt.Errorf("%d of %d subtasks succeeded: %w", len(j.results), j.forked, cause)
	}
	out := make([]T, j.forked)
	for i := range j.forked {
		out[i] = j.results[i]
	}
	return out, nil
}

type anySuccessful[T any] struct {
	won      bool
	value    T
	failures []error
}

// NewAnySuccessful returns a joiner that reports the value of whichever
// subtask first succeeds, stopping the rest. If no subtask succeeds the
// scope error aggregates every failure.
func NewAnySuccessful[T any]() Joiner[T, T] {
	return &anySuccessful[T]{}
}

func (j *anySuccessful[T]) OnFork(*Subtask[T]) bool { return false }

func (j *anySuccessful[T]) OnComplete(st *Subtask[T]) bool {
	if j.won {
		return false
	}
	if st.State() == Succeeded {
		j.value, _ = st.Get()
		j.won = true
		return true
	}
	if _, err := st.Outcome(); err != nil {
		j.failures = append(j.failures, err)
	}
	return false
}

func (j *anySuccessful[T]) Result() (T, error) {
	if j.won {
		return j.value, nil
	}
	var zero T
	if len(j.failures) == 0 {
		return zero, errors.New("no subtask succeeded: nothing was forked")
	}
	return zero, fmt.Errorf("no subtask succeeded: %w", errors.Join(j.failures...))
}

type awaitAll[T any] struct {
	forked   int
	outcomes map[int]Outcome[T]
}

// NewAwaitAll returns a joiner that waits for every subtask and reports a
// per-subtask outcome list, failures included; Join never returns an
// error from it. It tolerates deadline expiry: entries for subtasks
// cancelled by the deadline are marked Cancelled.
func NewAwaitAll[T any]() Joiner[T, []Outcome[T]] {
	return &awaitAll[T]{outcomes: make(map[int]Outcome[T])}
}

func (j *awaitAll[T]) OnFork(*Subtask[T]) bool {
	j.forked++
	return false
}

func (j *awaitAll[T]) OnComplete(st *Subtask[T]) bool {
	v, err := st.Outcome()
	j.outcomes[st.Index()] = Outcome[T]{Value: v, Err: err, State: st.State()}
	return false
}

func (j *awaitAll[T]) TolerateTimeout() bool { return true }

func (j *awaitAll[T]) Result() ([]Outcome[T], error) {
	out := make([]Outcome[T], j.forked)
	for i := range j.forked {
		o, ok := j.outcomes[i]
		if !ok {
			o = Outcome[T]{Err: ErrTaskCancelled, State: Cancelled}
		}
		out[i] = o
	}
	return out, nil
}
