package connectors

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Tool is an in-process connector. Input is the JSON encoded arguments of
// the step; output is free text.
type Tool interface {
	Name() string
	Description() string
	Execute(ctx context.Context, input string) (string, error)
}

// LocalInvoker serves "local:<name>" connector ids from registered tools.
type LocalInvoker struct {
	Tools map[string]Tool
}

func NewLocalInvoker() *LocalInvoker {
	return &LocalInvoker{
		Tools: make(map[string]Tool),
	}
}

func (l *LocalInvoker) Register(t Tool) {
	l.Tools[t.Name()] = t
}

func (l *LocalInvoker) Get(name string) Tool {
	return l.Tools[name]
}

func (l *LocalInvoker) Invoke(ctx context.Context, d Descriptor, p Payload) (Result, error) {
	name := strings.TrimPrefix(d.ConnectorID, LocalPrefix)
	tool := l.Get(name)
	if tool == nil {
		return Result{}, fmt.Errorf("local connector %q not registered", name)
	}

	args := p.Arguments
	if args == nil {
		args = map[string]any{}
	}
	input, err := json.Marshal(args)
	if err != nil {
		return Result{}, fmt.Errorf("encoding arguments for %s: %w", name, err)
	}

	out, err := tool.Execute(ctx, string(input))
	if err != nil {
		return Result{}, fmt.Errorf("%s %s: %w", name, p.Action, err)
	}

	raw, _ := json.Marshal(map[string]string{"output": out})
	if strings.TrimSpace(out) == "" {
		return Empty(raw), nil
	}
	return Text(out, raw), nil
}
