package connectors

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Headers carried on every remote invocation.
const (
	HeaderConnector = "X-Connector-Id"
	HeaderIdentity  = "X-External-Identity"
)

// MCPConfig describes the remote connector service.
type MCPConfig struct {
	// Endpoint is the MCP server URL. A "{connector}" segment is replaced
	// with the connector id of the invocation.
	Endpoint string `yaml:"endpoint"`

	// Transport is "streamable-http" (default) or "sse".
	Transport string `yaml:"transport"`
}

// DialFunc opens a transport scoped to one invocation descriptor.
type DialFunc func(ctx context.Context, d Descriptor) (mcp.Transport, error)

// MCPInvoker invokes capabilities as MCP tool calls: the step action is the
// tool name and the step arguments are the tool arguments. A new session is
// opened per invocation so that credentials are never reused across steps.
type MCPInvoker struct {
	dial DialFunc
}

func NewMCPInvoker(cfg MCPConfig) (*MCPInvoker, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("mcp endpoint is required")
	}
	switch cfg.Transport {
	case "", "streamable-http", "sse":
	default:
		return nil, fmt.Errorf("unsupported transport type %q", cfg.Transport)
	}
	return &MCPInvoker{dial: httpDialer(cfg)}, nil
}

// NewMCPInvokerWithDialer is used when the transport is provided by the
// caller, e.g. in-memory transports.
func NewMCPInvokerWithDialer(dial DialFunc) *MCPInvoker {
	return &MCPInvoker{dial: dial}
}

func (m *MCPInvoker) Invoke(ctx context.Context, d Descriptor, p Payload) (Result, error) {
	transport, err := m.dial(ctx, d)
	if err != nil {
		return Result{}, fmt.Errorf("creating transport for %q: %w", d.ConnectorID, err)
	}

	client := mcp.NewClient(
		&mcp.Implementation{Name: "flowdesk", Version: "1.0.0"},
		&mcp.ClientOptions{Capabilities: &mcp.ClientCapabilities{}},
	)
	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return Result{}, fmt.Errorf("connecting to connector %q: %w", d.ConnectorID, err)
	}
	defer session.Close()

	args := p.Arguments
	if args == nil {
		args = map[string]any{}
	}
	res, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name:      p.Action,
		Arguments: args,
	})
	if err != nil {
		return Result{}, fmt.Errorf("calling %s on %q: %w", p.Action, d.ConnectorID, err)
	}
	return convertResult(d.ConnectorID, p.Action, res)
}

func convertResult(connector, action string, res *mcp.CallToolResult) (Result, error) {
	raw, err := json.Marshal(res)
	if err != nil {
		return Result{}, fmt.Errorf("encoding response from %q: %w", connector, err)
	}

	text := collectText(res)
	if res.IsError {
		return Result{}, &InvocationError{ConnectorID: connector, Action: action, Message: text, Raw: raw}
	}

	if res.StructuredContent != nil {
		payload, err := json.Marshal(res.StructuredContent)
		if err != nil {
			return Result{}, fmt.Errorf("encoding structured result from %q: %w", connector, err)
		}
		return Structured(payload, raw), nil
	}
	if strings.TrimSpace(text) != "" {
		return Text(text, raw), nil
	}
	return Empty(raw), nil
}

func collectText(res *mcp.CallToolResult) string {
	var output string
	for _, content := range res.Content {
		if tc, ok := content.(*mcp.TextContent); ok {
			if output != "" {
				output += "\n"
			}
			output += tc.Text
		}
	}
	return output
}

func httpDialer(cfg MCPConfig) DialFunc {
	return func(_ context.Context, d Descriptor) (mcp.Transport, error) {
		endpoint := strings.ReplaceAll(cfg.Endpoint, "{connector}", d.ConnectorID)
		httpClient := &http.Client{
			Transport: &descriptorTransport{
				base:       http.DefaultTransport,
				descriptor: d,
			},
		}

		switch cfg.Transport {
		case "sse":
			return &mcp.SSEClientTransport{Endpoint: endpoint, HTTPClient: httpClient}, nil
		default:
			return &mcp.StreamableClientTransport{Endpoint: endpoint, HTTPClient: httpClient}, nil
		}
	}
}

// descriptorTransport stamps the invocation scope onto every request.
type descriptorTransport struct {
	base       http.RoundTripper
	descriptor Descriptor
}

func (t *descriptorTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	if t.descriptor.Credential != "" {
		req.Header.Set("Authorization", "Bearer "+t.descriptor.Credential)
	}
	req.Header.Set(HeaderConnector, t.descriptor.ConnectorID)
	if t.descriptor.Identity != "" {
		req.Header.Set(HeaderIdentity, t.descriptor.Identity)
	}
	return t.base.RoundTrip(req)
}
