package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rahul/flowdesk/internal/capability"
	"github.com/rahul/flowdesk/internal/connectors"
	"github.com/rahul/flowdesk/internal/credentials"
	"github.com/rahul/flowdesk/internal/governance"
	"github.com/rahul/flowdesk/internal/observability"
	"github.com/tidwall/gjson"
	"github.com/tmc/langchaingo/llms"
)

// OutputTextField is the field under which free-text capability results
// (and structured results that fail to parse) are bound.
const OutputTextField = "output_text"

// Dispatcher executes single plan steps and writes their bindings.
type Dispatcher struct {
	Model       llms.Model
	Manifest    *capability.Manifest
	Invoker     connectors.Invoker
	Credentials credentials.Provider
	Policy      governance.PolicyEngine
	Prompts     *PromptManager
	Logger      *observability.Logger

	// Temperature used for completion steps.
	Temperature float64
}

// Dispatch runs one step against the run's bindings. On success the step's
// bindings have been written to state; on failure nothing is written.
func (d *Dispatcher) Dispatch(ctx context.Context, step StepDescriptor, state *RunState) error {
	args, err := Resolve(step.Index, step.Arguments, state.Bindings)
	if err != nil {
		return asRunError(err).atStep(step)
	}

	if step.Capability == capability.Completion {
		return d.dispatchCompletion(ctx, step, args, state)
	}
	return d.dispatchCapability(ctx, step, args, state)
}

func (d *Dispatcher) dispatchCompletion(ctx context.Context, step StepDescriptor, args map[string]any, state *RunState) error {
	stepPrompt, err := d.Prompts.GetStepPrompt()
	if err != nil {
		return newError(ErrCompletionFailed, "step prompt unavailable").withCause(err).atStep(step)
	}
	system := fmt.Sprintf("%s\n\nAction: %s", stepPrompt, step.Action)

	input, err := json.Marshal(args)
	if err != nil {
		return newError(ErrMalformedArguments, "arguments are not serializable").withCause(err).atStep(step)
	}

	text, err := complete(ctx, d.Model, d.Logger, state.ID, purposeStep, system, string(input), d.Temperature)
	if err != nil {
		return newError(ErrCompletionFailed, "completion step failed").withCause(err).atStep(step)
	}

	state.Bindings[ResultKey(step.Index)] = text
	return nil
}

func (d *Dispatcher) dispatchCapability(ctx context.Context, step StepDescriptor, args map[string]any, state *RunState) error {
	entry, ok := d.Manifest.Resolve(step.Capability)
	if !ok {
		return newError(ErrUnknownCapability, "capability %q is not in the manifest", step.Capability).atStep(step)
	}

	argText, err := json.Marshal(args)
	if err != nil {
		return newError(ErrMalformedArguments, "arguments are not serializable").withCause(err).atStep(step)
	}

	if d.Policy != nil {
		decision, err := d.Policy.Evaluate(ctx, governance.Request{
			Capability: step.Capability,
			Action:     step.Action,
			Arguments:  args,
			Identity:   state.Identity,
		})
		if err != nil {
			return newError(ErrCapabilityDenied, "policy evaluation failed").withCause(err).atStep(step)
		}
		d.Logger.LogPolicyCheck(state.ID, step.Index, step.Capability, string(decision.Effect), decision.Reason)
		if decision.Effect == governance.EffectDeny {
			return newError(ErrCapabilityDenied, "%s", decision.Reason).atStep(step)
		}
	}

	// A fresh credential for every step; nothing is cached across steps.
	cred, err := d.Credentials.Issue(ctx, credentials.Scope{
		ConnectorID: entry.ConnectorID,
		Identity:    state.Identity,
	})
	if err != nil {
		return newError(ErrCredentialFailed, "could not obtain credential for %s", entry.ConnectorID).withCause(err).atStep(step)
	}

	desc := connectors.Descriptor{
		ConnectorID: entry.ConnectorID,
		Credential:  cred.Token,
		Identity:    state.Identity,
	}
	d.Logger.LogToolCall(state.ID, step.Index, entry.ConnectorID, step.Action, string(argText))

	res, err := d.Invoker.Invoke(ctx, desc, connectors.Payload{Action: step.Action, Arguments: args})
	if err != nil {
		runErr := newError(ErrCapabilityFailed, "invocation of %s failed", entry.ConnectorID).withCause(err).atStep(step)
		var invErr *connectors.InvocationError
		if errors.As(err, &invErr) {
			runErr.withRaw(string(invErr.Raw))
		}
		return runErr
	}
	d.Logger.LogToolResult(state.ID, step.Index, entry.ConnectorID, res.Kind.String())

	fields, ok := resultFields(res)
	if !ok {
		return newError(ErrEmptyCapabilityResult, "%s returned neither a structured result nor text", entry.ConnectorID).
			withRaw(string(res.Raw)).
			atStep(step)
	}
	for field, value := range fields {
		state.Bindings[FieldKey(field, step.Index)] = value
	}
	return nil
}

// resultFields picks the object whose top-level fields become bindings.
// Structured payloads that are not a JSON object degrade to output_text.
func resultFields(res connectors.Result) (map[string]any, bool) {
	switch res.Kind {
	case connectors.ResultStructured:
		if gjson.ValidBytes(res.Structured) {
			parsed := gjson.ParseBytes(res.Structured)
			if parsed.IsObject() {
				fields := make(map[string]any)
				parsed.ForEach(func(key, value gjson.Result) bool {
					fields[key.String()] = value.Value()
					return true
				})
				return fields, true
			}
		}
		return map[string]any{OutputTextField: string(res.Structured)}, true
	case connectors.ResultText:
		return map[string]any{OutputTextField: res.Text}, true
	default:
		return nil, false
	}
}

func asRunError(err error) *Error {
	if e, ok := err.(*Error); ok {
		return e
	}
	return newError(ErrMalformedArguments, "argument resolution failed").withCause(err)
}
