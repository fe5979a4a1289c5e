// Package vu runs virtual users: the per-user action loop and the
// controller that spawns a population of them.
package vu

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/example/ecommerce/loadgen/internal/scenario"
	"github.com/example/ecommerce/loadgen/internal/selector"
)

// State is a step of the virtual user loop.
type State int32

// Loop states.
const (
	Idle State = iota
	SelectAction
	Think
	Execute
	UpdateState
	Terminated
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case SelectAction:
		return "select_action"
	case Think:
		return "think"
	case Execute:
		return "execute"
	case UpdateState:
		return "update_state"
	case Terminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Sleeper pauses for d or until ctx is done, returning ctx.Err() in the
// latter case.
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext is the default Sleeper.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// VirtualUser drives one scenario.User through its profile's tasks.
type VirtualUser struct {
	user    *scenario.User
	profile scenario.Profile
	tasks   *selector.Weighted[scenario.Task]
	sleep   Sleeper

	state      atomic.Int32
	iterations atomic.Int64
}

// Option configures a VirtualUser.
type Option func(*VirtualUser)

// WithSleeper replaces the think-time wait.
func WithSleeper(s Sleeper) Option {
	return func(v *VirtualUser) {
		v.sleep = s
	}
}

// New creates a virtual user for profile.
func New(user *scenario.User, profile scenario.Profile, opts ...Option) (*VirtualUser, error) {
	tasks, err := profile.Selector()
	if err != nil {
		return nil, err
	}
	v := &VirtualUser{
		user:    user,
		profile: profile,
		tasks:   tasks,
		sleep:   SleepContext,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Run loops select, think, execute until ctx is done. Cancellation is
// honoured between actions and during the think wait; an action that has
// started always runs to completion.
func (v *VirtualUser) Run(ctx context.Context) {
	log := v.user.Logger()
	v.setState(Idle)
	defer v.setState(Terminated)

	for ctx.Err() == nil {
		v.setState(SelectAction)
		task := v.tasks.Select(v.user.Gen.Intn).Value

		v.setState(Think)
		if err := v.sleep(ctx, v.profile.ThinkTime(v.user.Gen)); err != nil {
			return
		}

		v.setState(Execute)
		out := v.user.Execute(context.WithoutCancel(ctx), task)

		v.setState(UpdateState)
		v.iterations.Add(1)
		if ce := log.Check(zap.DebugLevel, "Action done"); ce != nil {
			ce.Write(
				zap.String("task", task.Name),
				zap.String("verdict", out.Verdict.String()),
				zap.Int("status", out.StatusCode),
			)
		}
	}
}

func (v *VirtualUser) setState(s State) {
	v.state.Store(int32(s))
}

// State returns the current loop state.
func (v *VirtualUser) State() State {
	return State(v.state.Load())
}

// Iterations returns the number of completed actions.
func (v *VirtualUser) Iterations() int64 {
	return v.iterations.Load()
}

// User returns the scenario user driven by v.
func (v *VirtualUser) User() *scenario.User {
	return v.user
}
