package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rahul/flowdesk/internal/capability"
	"github.com/rahul/flowdesk/internal/connectors"
	"github.com/rahul/flowdesk/internal/credentials"
	"github.com/rahul/flowdesk/internal/observability"
	"github.com/rahul/flowdesk/internal/store"
	"github.com/tmc/langchaingo/llms"
)

type modelCall struct {
	System      string
	Input       string
	Temperature float64
}

// scriptedModel answers planner, step and presenter prompts from fixed
// replies, telling them apart by their system prompt.
type scriptedModel struct {
	mu sync.Mutex

	plan      string
	planErr   error
	step      func(action, input string) (string, error)
	report    string
	reportErr error

	calls []modelCall
}

func (m *scriptedModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	var opts llms.CallOptions
	for _, o := range options {
		o(&opts)
	}
	call := modelCall{
		System:      textOf(messages[0]),
		Input:       textOf(messages[len(messages)-1]),
		Temperature: opts.Temperature,
	}

	m.mu.Lock()
	m.calls = append(m.calls, call)
	m.mu.Unlock()

	var (
		content string
		err     error
	)
	switch {
	case strings.Contains(call.System, "## Available capabilities"):
		content, err = m.plan, m.planErr
	case strings.Contains(call.System, "\nAction: "):
		action := call.System[strings.LastIndex(call.System, "Action: ")+len("Action: "):]
		if m.step == nil {
			return nil, errors.New("unexpected completion step")
		}
		content, err = m.step(action, call.Input)
	default:
		content, err = m.report, m.reportErr
	}
	if err != nil {
		return nil, err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: content}}}, nil
}

func (m *scriptedModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func (m *scriptedModel) presenterCalls() []modelCall {
	var res []modelCall
	for _, c := range m.calls {
		if !strings.Contains(c.System, "## Available capabilities") && !strings.Contains(c.System, "\nAction: ") {
			res = append(res, c)
		}
	}
	return res
}

func textOf(msg llms.MessageContent) string {
	var sb strings.Builder
	for _, p := range msg.Parts {
		if t, ok := p.(llms.TextContent); ok {
			sb.WriteString(t.Text)
		}
	}
	return sb.String()
}

type invocation struct {
	Descriptor connectors.Descriptor
	Payload    connectors.Payload
}

// fakeInvoker returns canned results per "connector/action".
type fakeInvoker struct {
	results map[string]connectors.Result
	errs    map[string]error
	calls   []invocation
}

func (f *fakeInvoker) Invoke(ctx context.Context, d connectors.Descriptor, p connectors.Payload) (connectors.Result, error) {
	f.calls = append(f.calls, invocation{Descriptor: d, Payload: p})
	key := d.ConnectorID + "/" + p.Action
	if err := f.errs[key]; err != nil {
		return connectors.Result{}, err
	}
	res, ok := f.results[key]
	if !ok {
		return connectors.Result{}, fmt.Errorf("no canned result for %s", key)
	}
	return res, nil
}

// countingCredentials issues a distinct token per call.
type countingCredentials struct {
	issued []credentials.Scope
	err    error
}

func (c *countingCredentials) Issue(ctx context.Context, scope credentials.Scope) (credentials.Credential, error) {
	if c.err != nil {
		return credentials.Credential{}, c.err
	}
	c.issued = append(c.issued, scope)
	return credentials.Credential{Token: fmt.Sprintf("token-%d", len(c.issued))}, nil
}

type memoryRecorder struct {
	records []store.RunRecord
}

func (m *memoryRecorder) Record(ctx context.Context, r store.RunRecord) error {
	m.records = append(m.records, r)
	return nil
}

func testManifest() *capability.Manifest {
	m := capability.NewManifest()
	_ = m.Register(capability.Entry{Name: "messaging", ConnectorID: "slack", Label: "Team messaging"})
	_ = m.Register(capability.Entry{Name: "crm", ConnectorID: "hubspot", Label: "CRM"})
	_ = m.Register(capability.Entry{Name: "maps", ConnectorID: "google_maps", Label: "Maps"})
	return m
}

func newTestDispatcher(model llms.Model, inv connectors.Invoker, creds credentials.Provider) *Dispatcher {
	return &Dispatcher{
		Model:       model,
		Manifest:    testManifest(),
		Invoker:     inv,
		Credentials: creds,
		Prompts:     NewPromptManager(""),
		Logger:      observability.NewNopLogger(),
	}
}
