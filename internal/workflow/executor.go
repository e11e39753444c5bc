package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/rahul/flowdesk/internal/observability"
)

// StepDispatcher executes one step against a run's state.
type StepDispatcher interface {
	Dispatch(ctx context.Context, step StepDescriptor, state *RunState) error
}

// Executor walks a plan strictly in order, one step at a time. Steps only
// depend on each other through placeholders inside their arguments, so no
// ordering beyond the plan's own can be derived and nothing runs in
// parallel.
type Executor struct {
	Dispatcher StepDispatcher
	Logger     *observability.Logger
}

func NewExecutor(dispatcher StepDispatcher, logger *observability.Logger) *Executor {
	return &Executor{Dispatcher: dispatcher, Logger: logger}
}

// Run executes the plan with bindings seeded from seed. The first failing
// step halts the run; its error lists the bindings present at that point
// but the bindings themselves are not returned.
func (x *Executor) Run(ctx context.Context, plan Plan, identity string, seed Bindings) (Bindings, error) {
	state := newRunState(runIDFrom(ctx), identity, seed)
	if err := x.execute(ctx, plan, state); err != nil {
		return nil, err
	}
	return state.Bindings, nil
}

func (x *Executor) execute(ctx context.Context, plan Plan, state *RunState) error {
	for _, step := range plan.Steps {
		state.Cursor = step.Index
		start := time.Now()

		err := x.Dispatcher.Dispatch(ctx, step, state)
		elapsed := time.Since(start)
		observability.StepDuration.WithLabelValues(step.Capability).Observe(elapsed.Seconds())
		x.Logger.LogStep(state.ID, step.Index, step.Capability, step.Action, elapsed, err)

		if err != nil {
			observability.StepsTotal.WithLabelValues(step.Capability, "failed").Inc()
			state.Status = StatusFailed
			return haltError(err, step, state)
		}
		observability.StepsTotal.WithLabelValues(step.Capability, "succeeded").Inc()
	}
	state.Status = StatusSucceeded
	return nil
}

func haltError(err error, step StepDescriptor, state *RunState) *Error {
	var e *Error
	if !errors.As(err, &e) {
		e = newError(ErrCapabilityFailed, "step failed").withCause(err)
	}
	e.atStep(step)
	e.Bindings = state.Bindings.Keys()
	return e
}
