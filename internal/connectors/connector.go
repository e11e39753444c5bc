// Package connectors implements the capability-invocation service: the
// uniform calling convention through which plan steps reach external
// integrations (CRM, messaging, spreadsheets, web tools, ...).
package connectors

import (
	"context"
	"encoding/json"
	"fmt"
)

// Descriptor scopes one invocation to a single connector on behalf of one
// end user.
type Descriptor struct {
	ConnectorID string
	Credential  string
	Identity    string
}

// Payload is the structured call sent to the connector.
type Payload struct {
	Action    string         `json:"action"`
	Arguments map[string]any `json:"arguments"`
}

// ResultKind tags the variant held by a Result.
type ResultKind int

const (
	ResultEmpty ResultKind = iota
	ResultStructured
	ResultText
)

func (k ResultKind) String() string {
	switch k {
	case ResultStructured:
		return "structured"
	case ResultText:
		return "text"
	default:
		return "empty"
	}
}

// Result is what a connector returned: a structured payload, free text, or
// nothing at all. Raw always holds the full upstream response.
type Result struct {
	Kind       ResultKind
	Structured json.RawMessage
	Text       string
	Raw        json.RawMessage
}

// Structured builds a structured result.
func Structured(payload, raw json.RawMessage) Result {
	return Result{Kind: ResultStructured, Structured: payload, Raw: raw}
}

// Text builds a free-text result.
func Text(text string, raw json.RawMessage) Result {
	return Result{Kind: ResultText, Text: text, Raw: raw}
}

// Empty builds a result that carried nothing usable.
func Empty(raw json.RawMessage) Result {
	return Result{Kind: ResultEmpty, Raw: raw}
}

// InvocationError is a failure reported by the connector itself, as
// opposed to a transport failure. Raw holds the full upstream response.
type InvocationError struct {
	ConnectorID string
	Action      string
	Message     string
	Raw         json.RawMessage
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("%s on %q failed: %s", e.Action, e.ConnectorID, e.Message)
}

// Invoker calls a capability through a connector.
//
// Implementations must be safe for concurrent use; each call is independent.
type Invoker interface {
	Invoke(ctx context.Context, d Descriptor, p Payload) (Result, error)
}
