package taskscope

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ScopeState is the lifecycle state of a Scope.
type ScopeState int32

const (
	ScopeOpen ScopeState = iota
	ScopeJoining
	ScopeClosed
)

func (s ScopeState) String() string {
	switch s {
	case ScopeOpen:
		return "open"
	case ScopeJoining:
		return "joining"
	case ScopeClosed:
		return "closed"
	default:
		return fmt.Sprintf("scopestate(%d)", int32(s))
	}
}

// Option configures a Scope at Open time.
type Option func(*Options)

// Options holds scope configuration. Zero value plus defaultOptions is
// what Open starts from.
type Options struct {
	Context        context.Context
	Deadline       time.Time
	PanicAsError   bool
	Observer       Observer
	Executor       Executor
	MaxConcurrency int
}

func defaultOptions() Options { return Options{PanicAsError: true} }

// WithContext parents the scope on ctx. Cancellation of ctx propagates to
// every subtask token; a subtask body nests a child scope by passing its
// own token here.
func WithContext(ctx context.Context) Option { return func(o *Options) { o.Context = ctx } }

// WithDeadline gives the scope an absolute deadline. When it expires the
// scope cancels every outstanding subtask and Join reports
// ErrScopeTimeout unless the joiner tolerates partial completion.
func WithDeadline(d time.Time) Option { return func(o *Options) { o.Deadline = d } }

// WithTimeout is shorthand for WithDeadline(time.Now().Add(d)).
func WithTimeout(d time.Duration) Option {
	return func(o *Options) { o.Deadline = time.Now().Add(d) }
}

// WithPanicAsError converts a panicking subtask body into a Failed
// outcome instead of crashing the process. Enabled by default.
func WithPanicAsError(v bool) Option { return func(o *Options) { o.PanicAsError = v } }

// WithObserver attaches lifecycle hooks to the scope.
func WithObserver(obs Observer) Option { return func(o *Options) { o.Observer = obs } }

// WithExecutor runs subtask bodies on exec. The caller keeps ownership:
// Close will not shut exec down, so one executor may serve many scopes.
func WithExecutor(exec Executor) Option { return func(o *Options) { o.Executor = exec } }

// WithMaxConcurrency installs a scope-owned semaphore executor bounding
// how many bodies run at once. Ignored when WithExecutor is also given.
func WithMaxConcurrency(n int) Option { return func(o *Options) { o.MaxConcurrency = n } }

// Scope runs a group of subtasks as one logical operation. It is created
// by Open, fed by Fork, and finished by Join; Close is idempotent and
// safe to defer on every exit path. Once Join or Close returns, every
// subtask is in a terminal state.
type Scope[T, R any] struct {
	ctx       context.Context
	cancelCtx context.CancelFunc
	opts      Options
	obs       Observer
	exec      Executor
	ownsExec  bool
	dc        *deadlineController

	mu       sync.Mutex
	state    ScopeState
	subtasks []*Subtask[T]
	cause    error
	stopped  bool

	joinerMu  sync.Mutex
	joiner    Joiner[T, R]
	forked    int
	completed int

	stopOnce sync.Once
	stopCh   chan struct{}
	pulse    chan struct{}
	wg       sync.WaitGroup

	joinOnce  sync.Once
	closeOnce sync.Once
	result    R
	joinErr   error
}

// Open creates a scope in the Open state, bound to joiner. The type
// parameters are inferred from the joiner:
//
//	s := taskscope.Open(taskscope.NewAllSuccessful[string]())
//	defer s.Close()
func Open[T, R any](joiner Joiner[T, R], optFns ...Option) *Scope[T, R] {
	if joiner == nil {
		panic("taskscope: nil joiner")
	}
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	parent := opts.Context
	if parent == nil {
		parent = context.Background()
	}
	s := &Scope[T, R]{
		opts:   opts,
		obs:    opts.Observer,
		joiner: joiner,
		stopCh: make(chan struct{}),
		pulse:  make(chan struct{}, 1),
	}
	if !opts.Deadline.IsZero() {
		s.dc = newDeadlineController(opts.Deadline)
		s.ctx, s.cancelCtx = s.dc.bind(parent)
	} else {
		s.ctx, s.cancelCtx = context.WithCancel(parent)
	}
	switch {
	case opts.Executor != nil:
		s.exec = opts.Executor
	case opts.MaxConcurrency > 0:
		s.exec = NewSemaphoreExecutor(opts.MaxConcurrency)
		s.ownsExec = true
	default:
		s.exec = goExecutor{}
	}
	if s.obs != nil {
		s.obs.ScopeOpened(s.ctx)
	}
	return s
}

// Context returns the scope context. It is cancelled when the scope is
// cancelled, its deadline expires, or its parent context dies.
func (s *Scope[T, R]) Context() context.Context { return s.ctx }

// State returns the scope's current lifecycle state.
func (s *Scope[T, R]) State() ScopeState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Remaining reports the budget left before the scope deadline. ok is
// false when the scope has no deadline.
func (s *Scope[T, R]) Remaining() (remaining time.Duration, ok bool) {
	if s.dc == nil {
		return 0, false
	}
	return s.dc.Remaining(), true
}

// Fork registers fn as a new subtask and schedules it for concurrent
// execution. It never blocks; once Join has begun or Close has run it
// fails with ErrScopeClosed and starts no work. fn receives the subtask's
// cancellation token and must check it at its own suspension points; it
// is never force-killed.
func (s *Scope[T, R]) Fork(fn func(ctx context.Context) (T, error)) (*Subtask[T], error) {
	if fn == nil {
		return nil, fmt.Errorf("nil subtask body: %w", ErrInvalidState)
	}
	s.mu.Lock()
	if s.state != ScopeOpen {
		s.mu.Unlock()
		return nil, ErrScopeClosed
	}
	stCtx, stCancel := context.WithCancel(s.ctx)
	st := newSubtask[T](len(s.subtasks), stCtx, stCancel)
	s.subtasks = append(s.subtasks, st)
	s.wg.Add(1)
	s.mu.Unlock()

	s.joinerMu.Lock()
	s.forked++
	stopNow := s.joiner.OnFork(st)
	s.joinerMu.Unlock()
	if stopNow {
		s.Cancel(fmt.Errorf("fork of subtask %d: %w", st.Index(), ErrJoinerRejected))
	}
	s.exec.Execute(stCtx, func() { s.run(st, fn) })
	return st, nil
}

// Cancel requests an early stop with the given cause. The scope context
// is cancelled immediately so running bodies observe it; Join still waits
// for every body to unwind and reports the joiner's aggregate.
func (s *Scope[T, R]) Cancel(cause error) {
	s.mu.Lock()
	first := !s.stopped
	s.stopped = true
	if s.cause == nil && cause != nil {
		s.cause = cause
	}
	c := s.cause
	s.mu.Unlock()
	s.cancelCtx()
	if first {
		s.stopOnce.Do(func() { close(s.stopCh) })
		if s.obs != nil {
			s.obs.ScopeCancelled(s.ctx, c)
		}
	}
}

// Join blocks until the joiner signals completion, every forked subtask
// is terminal, or the deadline expires; it then cancels any remaining
// subtasks, waits for them to acknowledge, and returns the joiner's
// aggregate. Deadline expiry surfaces ErrScopeTimeout unless the joiner
// tolerates partial completion. Join is idempotent: later calls return
// the cached aggregate. If Close ran first, Join reports ErrScopeClosed.
func (s *Scope[T, R]) Join() (R, error) {
	s.joinOnce.Do(s.join)
	return s.result, s.joinErr
}

func (s *Scope[T, R]) join() {
	start := time.Now()
	s.mu.Lock()
	if s.state == ScopeClosed {
		s.mu.Unlock()
		s.joinErr = fmt.Errorf("join after close: %w", ErrScopeClosed)
		return
	}
	s.mu.Unlock()

	for {
		s.mu.Lock()
		stopped := s.stopped
		s.mu.Unlock()
		s.joinerMu.Lock()
		allDone := s.completed == s.forked
		s.joinerMu.Unlock()
		if stopped || allDone || s.ctx.Err() != nil {
			break
		}
		select {
		case <-s.stopCh:
		case <-s.pulse:
		case <-s.ctx.Done():
		}
	}

	s.shutdown(ScopeJoining)
	timedOut := s.timedOut()

	s.joinerMu.Lock()
	res, err := s.joiner.Result()
	s.joinerMu.Unlock()
	if timedOut && !toleratesTimeout(s.joiner) {
		if err != nil {
			err = fmt.Errorf("%w: %w", ErrScopeTimeout, err)
		} else {
			err = ErrScopeTimeout
		}
	}
	s.result, s.joinErr = res, err

	s.mu.Lock()
	s.state = ScopeClosed
	s.mu.Unlock()
	if s.ownsExec {
		s.exec.Shutdown()
	}
	if s.obs != nil {
		s.obs.ScopeJoined(s.ctx, time.Since(start), err)
	}
}

// Close cancels any still-active subtasks, waits for them to unwind, and
// releases scope resources. It is idempotent, safe to call after Join,
// and guarantees no subtask is left Pending or Running.
func (s *Scope[T, R]) Close() {
	s.closeOnce.Do(func() {
		s.shutdown(ScopeClosed)
		s.mu.Lock()
		s.state = ScopeClosed
		s.mu.Unlock()
		if s.ownsExec {
			s.exec.Shutdown()
		}
	})
}

// timedOut reports whether the scope deadline, rather than a caller or
// joiner stop, is what cut the group short. Called after shutdown, once
// every subtask is terminal; which event woke the join loop first is
// irrelevant here, only the evidence left behind. A group whose subtasks
// all finished on their own did not time out no matter how late Join ran.
func (s *Scope[T, R]) timedOut() bool {
	if s.dc == nil || !s.dc.Expired() {
		return false
	}
	s.mu.Lock()
	stopped := s.stopped
	tasks := make([]*Subtask[T], len(s.subtasks))
	copy(tasks, s.subtasks)
	s.mu.Unlock()
	if stopped || !errors.Is(s.ctx.Err(), context.DeadlineExceeded) {
		return false
	}
	for _, st := range tasks {
		if st.State() == Cancelled {
			return true
		}
	}
	return false
}

// shutdown delivers cancellation to every non-terminal subtask at most
// once and waits for all bodies to unwind.
func (s *Scope[T, R]) shutdown(via ScopeState) {
	s.mu.Lock()
	if s.state == ScopeOpen {
		s.state = via
	}
	tasks := make([]*Subtask[T], len(s.subtasks))
	copy(tasks, s.subtasks)
	s.mu.Unlock()
	for _, st := range tasks {
		if !st.State().Terminal() {
			st.Cancel()
		}
	}
	s.cancelCtx()
	s.wg.Wait()
}

func (s *Scope[T, R]) run(st *Subtask[T], fn func(ctx context.Context) (T, error)) {
	defer s.wg.Done()
	var (
		v   T
		err error
	)
	if !st.start() {
		st.finalize(v, ErrTaskCancelled)
		s.complete(st)
		return
	}
	if s.obs != nil {
		s.obs.SubtaskStarted(st.ctx)
	}
	start := time.Now()
	func() {
		defer func() {
			if r := recover(); r != nil {
				if !s.opts.PanicAsError {
					panic(r)
				}
				err = fmt.Errorf("subtask panic: %v", r)
			}
		}()
		v, err = fn(st.ctx)
	}()
	state := st.finalize(v, err)
	if s.obs != nil {
		_, oerr := st.Outcome()
		s.obs.SubtaskFinished(st.ctx, time.Since(start), state, oerr)
	}
	s.complete(st)
}

// complete reports a terminal subtask to the joiner, serialized behind
// joinerMu so completions from concurrent workers form a single logical
// writer over the joiner's aggregate state.
func (s *Scope[T, R]) complete(st *Subtask[T]) {
	s.joinerMu.Lock()
	stop := s.joiner.OnComplete(st)
	s.completed++
	s.joinerMu.Unlock()
	if stop {
		s.Cancel(nil)
	}
	select {
	case s.pulse <- struct{}{}:
	default:
	}
}

func toleratesTimeout[T, R any](j Joiner[T, R]) bool {
	tt, ok := any(j).(TimeoutTolerant)
	return ok && tt.TolerateTimeout()
}
