package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rahul/flowdesk/internal/capability"
	"github.com/rahul/flowdesk/internal/observability"
	"github.com/tmc/langchaingo/llms"
)

// Planner turns a request into a Plan through the completion service.
type Planner struct {
	Model    llms.Model
	Manifest *capability.Manifest
	Prompts  *PromptManager
	Logger   *observability.Logger
}

func NewPlanner(model llms.Model, manifest *capability.Manifest, prompts *PromptManager, logger *observability.Logger) *Planner {
	return &Planner{
		Model:    model,
		Manifest: manifest,
		Prompts:  prompts,
		Logger:   logger,
	}
}

// Generate asks the model for a plan at temperature 0 and parses it.
// Capability names are not checked here; the dispatcher does that right
// before each step runs.
func (p *Planner) Generate(ctx context.Context, request string) (Plan, error) {
	plannerPrompt, err := p.Prompts.GetPlannerPrompt()
	if err != nil {
		return Plan{}, newError(ErrCompletionFailed, "planner prompt unavailable").withCause(err)
	}
	system := fmt.Sprintf("%s\n\n## Available capabilities\n%s", plannerPrompt, p.Manifest.Describe())

	raw, err := complete(ctx, p.Model, p.Logger, runIDFrom(ctx), purposePlan, system, request, 0)
	if err != nil {
		return Plan{}, newError(ErrCompletionFailed, "plan generation failed").withCause(err)
	}
	return ParsePlan(raw)
}

// ParsePlan validates a planner response: it must be a JSON array of step
// objects numbered 1..n, each with a capability, an action and object
// arguments. Surrounding markdown code fences are tolerated.
func ParsePlan(raw string) (Plan, error) {
	body := stripCodeFence(raw)

	var doc any
	dec := json.NewDecoder(strings.NewReader(body))
	if err := dec.Decode(&doc); err != nil {
		return Plan{}, newError(ErrInvalidPlanSyntax, "plan is not valid JSON").withCause(err).withRaw(raw)
	}
	if dec.More() {
		return Plan{}, newError(ErrInvalidPlanSyntax, "unexpected data after plan").withRaw(raw)
	}

	items, ok := doc.([]any)
	if !ok {
		return Plan{}, newError(ErrInvalidPlanShape, "plan must be a JSON array, got %s", jsonKind(doc)).withRaw(raw)
	}
	if len(items) == 0 {
		return Plan{}, newError(ErrInvalidPlanShape, "plan has no steps").withRaw(raw)
	}

	plan := Plan{Steps: make([]StepDescriptor, 0, len(items))}
	for i, item := range items {
		step, err := parseStep(i+1, item)
		if err != nil {
			return Plan{}, err.withRaw(raw)
		}
		plan.Steps = append(plan.Steps, step)
	}
	return plan, nil
}

func parseStep(position int, item any) (StepDescriptor, *Error) {
	obj, ok := item.(map[string]any)
	if !ok {
		return StepDescriptor{}, newError(ErrInvalidPlanShape, "element %d must be an object, got %s", position, jsonKind(item))
	}

	index, ok := obj["step"].(float64)
	if !ok || index != float64(int(index)) {
		return StepDescriptor{}, newError(ErrInvalidPlanShape, "element %d has no integer step number", position)
	}
	if int(index) != position {
		return StepDescriptor{}, newError(ErrInvalidPlanShape, "element %d is numbered %d, steps must count up from 1", position, int(index))
	}

	capName, _ := obj["capability"].(string)
	if strings.TrimSpace(capName) == "" {
		return StepDescriptor{}, newError(ErrInvalidPlanShape, "step %d has no capability", position)
	}

	action, ok := obj["action"].(string)
	if !ok {
		return StepDescriptor{}, newError(ErrInvalidPlanShape, "step %d has no action", position)
	}

	var args map[string]any
	switch a := obj["arguments"].(type) {
	case nil:
		args = map[string]any{}
	case map[string]any:
		args = a
	default:
		return StepDescriptor{}, newError(ErrInvalidPlanShape, "step %d arguments must be an object, got %s", position, jsonKind(a))
	}

	return StepDescriptor{
		Index:      position,
		Capability: capName,
		Action:     action,
		Arguments:  args,
	}, nil
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		// Drop the info string, e.g. "json".
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func jsonKind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case string:
		return "string"
	case float64:
		return "number"
	case bool:
		return "boolean"
	default:
		return fmt.Sprintf("%T", v)
	}
}

type runIDKey struct{}

func withRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey{}, id)
}

func runIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}
