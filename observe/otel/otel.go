package otel

import (
	"context"
	"time"

	"github.com/NetPo4ki/go-taskscope/taskscope"
)

// Nop is a no-op implementation of the taskscope.Observer interface. It
// serves as a placeholder for an OpenTelemetry-backed observer without
// adding dependencies.
type Nop struct{}

// NewNop returns a no-op observer.
func NewNop() *Nop { return &Nop{} }

func (*Nop) ScopeOpened(context.Context)                                           {}
func (*Nop) ScopeCancelled(context.Context, error)                                 {}
func (*Nop) ScopeJoined(context.Context, time.Duration, error)                     {}
func (*Nop) SubtaskStarted(context.Context)                                        {}
func (*Nop) SubtaskFinished(context.Context, time.Duration, taskscope.State, error) {}
