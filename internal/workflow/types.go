package workflow

import (
	"fmt"
	"sort"
)

// StepDescriptor is one step of a plan as emitted by the planner.
type StepDescriptor struct {
	Index      int            `json:"step"`
	Capability string         `json:"capability"`
	Action     string         `json:"action"`
	Arguments  map[string]any `json:"arguments"`
}

// Plan is an ordered, 1-indexed, contiguous list of steps.
type Plan struct {
	Steps []StepDescriptor
}

// Bindings holds the values produced by completed steps of one run, keyed
// by ResultKey or FieldKey.
type Bindings map[string]any

// ResultKey names the binding written by a completion step.
func ResultKey(step int) string {
	return fmt.Sprintf("result_step_%d", step)
}

// FieldKey names the binding written for one top-level field of a
// capability result.
func FieldKey(field string, step int) string {
	return fmt.Sprintf("%s_from_step_%d", field, step)
}

// Keys returns the binding keys in sorted order.
func (b Bindings) Keys() []string {
	keys := make([]string, 0, len(b))
	for k := range b {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a shallow copy.
func (b Bindings) Clone() Bindings {
	out := make(Bindings, len(b))
	for k, v := range b {
		out[k] = v
	}
	return out
}

// RunStatus is the terminal status of a run.
type RunStatus string

const (
	StatusPending   RunStatus = "pending"
	StatusSucceeded RunStatus = "succeeded"
	StatusFailed    RunStatus = "failed"
)

// RunState is owned by exactly one executing run and never shared.
type RunState struct {
	ID       string
	Identity string
	Bindings Bindings
	Cursor   int // index of the step being dispatched, 0 before the first
	Status   RunStatus
}

func newRunState(id, identity string, seed Bindings) *RunState {
	b := make(Bindings, len(seed))
	for k, v := range seed {
		b[k] = v
	}
	return &RunState{
		ID:       id,
		Identity: identity,
		Bindings: b,
		Status:   StatusPending,
	}
}
