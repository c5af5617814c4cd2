// Package errgroup provides an adapter that mimics golang.org/x/sync/errgroup
// semantics on top of a task scope. It enables incremental migration of
// errgroup call sites without rewriting them against the joiner API.
package errgroup

import (
	"context"

	"github.com/NetPo4ki/go-taskscope/taskscope"
)

// Group is an errgroup-like wrapper over a Scope with an all-successful
// joiner and fail-fast cancellation.
type Group struct {
	s   *taskscope.Scope[struct{}, []struct{}]
	ctx context.Context
}

// WithContext creates a Group bound to ctx. The returned context is
// cancelled the first time a function passed to Go returns a non-nil
// error.
func WithContext(ctx context.Context) (*Group, context.Context) {
	s := taskscope.Open(taskscope.NewAllSuccessful[struct{}](), taskscope.WithContext(ctx))
	g := &Group{s: s, ctx: s.Context()}
	return g, g.ctx
}

// Go starts a function. It should return a non-nil error to signal
// failure, which cancels the group.
func (g *Group) Go(f func() error) {
	if f == nil {
		return
	}
	_, _ = g.s.Fork(func(context.Context) (struct{}, error) {
		err := f()
		if err != nil {
			g.s.Cancel(err)
		}
		return struct{}{}, err
	})
}

// Wait blocks until all functions have returned, then closes the scope.
// It returns the first non-nil error (fail-fast semantics) or nil.
func (g *Group) Wait() error {
	_, err := g.s.Join()
	g.s.Close()
	return err
}
