package workflow

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rahul/flowdesk/internal/capability"
	"github.com/rahul/flowdesk/internal/connectors"
	"github.com/rahul/flowdesk/internal/credentials"
	"github.com/rahul/flowdesk/internal/governance"
	"github.com/rahul/flowdesk/internal/observability"
	"github.com/rahul/flowdesk/internal/store"
	"github.com/tmc/langchaingo/llms"
	"go.uber.org/zap"
)

// RunRecorder keeps the outcome of finished runs.
type RunRecorder interface {
	Record(ctx context.Context, r store.RunRecord) error
}

// Deps wires an Engine to its collaborators. Policy and History are
// optional.
type Deps struct {
	Model       llms.Model
	Manifest    *capability.Manifest
	Invoker     connectors.Invoker
	Credentials credentials.Provider
	Policy      governance.PolicyEngine
	Prompts     *PromptManager
	Logger      *observability.Logger
	History     RunRecorder

	StepTemperature      float64
	PresenterTemperature float64
	Fallback             string
}

// Engine runs requests end to end: plan, execute, present.
type Engine struct {
	Planner   *Planner
	Executor  *Executor
	Presenter *Presenter
	History   RunRecorder
	Logger    *observability.Logger
}

func NewEngine(d Deps) *Engine {
	if d.Logger == nil {
		d.Logger = observability.NewNopLogger()
	}
	if d.Prompts == nil {
		d.Prompts = NewPromptManager("")
	}
	if d.Manifest == nil {
		d.Manifest = capability.DefaultManifest()
	}

	dispatcher := &Dispatcher{
		Model:       d.Model,
		Manifest:    d.Manifest,
		Invoker:     d.Invoker,
		Credentials: d.Credentials,
		Policy:      d.Policy,
		Prompts:     d.Prompts,
		Logger:      d.Logger,
		Temperature: d.StepTemperature,
	}
	return &Engine{
		Planner:  NewPlanner(d.Model, d.Manifest, d.Prompts, d.Logger),
		Executor: NewExecutor(dispatcher, d.Logger),
		Presenter: &Presenter{
			Model:       d.Model,
			Prompts:     d.Prompts,
			Logger:      d.Logger,
			Temperature: d.PresenterTemperature,
			Fallback:    d.Fallback,
		},
		History: d.History,
		Logger:  d.Logger,
	}
}

// Run handles one request for the given external identity and returns the
// formatted report. A failed run returns no report at all.
func (e *Engine) Run(ctx context.Context, request, identity string) (string, error) {
	return e.RunWithSeed(ctx, request, identity, nil)
}

// RunWithSeed is Run with caller-supplied bindings available to every step.
func (e *Engine) RunWithSeed(ctx context.Context, request, identity string, seed Bindings) (string, error) {
	runID := uuid.NewString()
	ctx = withRunID(ctx, runID)
	started := time.Now()

	plan, err := e.Planner.Generate(ctx, request)
	e.Logger.LogPlan(runID, identity, len(plan.Steps), err)
	if err != nil {
		e.finish(ctx, runID, identity, request, started, 0, "", err)
		return "", err
	}

	bindings, err := e.Executor.Run(ctx, plan, identity, seed)
	if err != nil {
		e.finish(ctx, runID, identity, request, started, len(plan.Steps), "", err)
		return "", err
	}

	report := e.Presenter.Present(ctx, bindings)
	e.finish(ctx, runID, identity, request, started, len(plan.Steps), report, nil)
	return report, nil
}

func (e *Engine) finish(ctx context.Context, runID, identity, request string, started time.Time, steps int, report string, runErr error) {
	elapsed := time.Since(started)
	status := string(StatusSucceeded)
	var errText string
	if runErr != nil {
		status = string(StatusFailed)
		errText = runErr.Error()
	}

	observability.RunsTotal.WithLabelValues(status, string(KindOf(runErr))).Inc()
	observability.RunDuration.WithLabelValues(status).Observe(elapsed.Seconds())
	e.Logger.LogRun(runID, identity, status, elapsed, runErr)

	if e.History == nil {
		return
	}
	rec := store.RunRecord{
		ID:         runID,
		Identity:   identity,
		Request:    request,
		Status:     status,
		Report:     report,
		Error:      errText,
		Steps:      steps,
		StartedAt:  started,
		FinishedAt: started.Add(elapsed),
	}
	if err := e.History.Record(ctx, rec); err != nil {
		e.Logger.Warn("failed to record run", zap.String("run_id", runID), zap.Error(err))
	}
}
