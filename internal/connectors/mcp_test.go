package connectors

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// inMemoryDialer starts a fresh test server for every dial, mirroring the
// one-session-per-invocation behaviour of the HTTP dialer.
func inMemoryDialer(t *testing.T, tools map[string]mcp.ToolHandler, seen *[]Descriptor) DialFunc {
	t.Helper()
	return func(ctx context.Context, d Descriptor) (mcp.Transport, error) {
		if seen != nil {
			*seen = append(*seen, d)
		}
		server := mcp.NewServer(
			&mcp.Implementation{Name: "test-connectors", Version: "1.0.0"},
			nil,
		)
		for name, handler := range tools {
			server.AddTool(
				&mcp.Tool{
					Name:        name,
					Description: "Test tool: " + name,
					InputSchema: map[string]any{"type": "object"},
				},
				handler,
			)
		}
		serverTransport, clientTransport := mcp.NewInMemoryTransports()
		go func() {
			_ = server.Run(context.Background(), serverTransport)
		}()
		return clientTransport, nil
	}
}

func TestMCPInvoker_StructuredResult(t *testing.T) {
	var seen []Descriptor
	inv := NewMCPInvokerWithDialer(inMemoryDialer(t, map[string]mcp.ToolHandler{
		"list_locations": func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return &mcp.CallToolResult{
				Content:           []mcp.Content{&mcp.TextContent{Text: `{"locations":["Berlin","Paris"]}`}},
				StructuredContent: map[string]any{"locations": []any{"Berlin", "Paris"}},
			}, nil
		},
	}, &seen))

	d := Descriptor{ConnectorID: "hubspot", Credential: "tok", Identity: "user-1"}
	res, err := inv.Invoke(context.Background(), d, Payload{Action: "list_locations"})
	require.NoError(t, err)
	assert.Equal(t, ResultStructured, res.Kind)
	assert.JSONEq(t, `{"locations":["Berlin","Paris"]}`, string(res.Structured))
	assert.NotEmpty(t, res.Raw)

	require.Len(t, seen, 1)
	assert.Equal(t, d, seen[0])
}

func TestMCPInvoker_TextResult(t *testing.T) {
	inv := NewMCPInvokerWithDialer(inMemoryDialer(t, map[string]mcp.ToolHandler{
		"send": func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			var args map[string]any
			_ = json.Unmarshal(req.Params.Arguments, &args)
			return &mcp.CallToolResult{
				Content: []mcp.Content{&mcp.TextContent{Text: "sent to " + args["to"].(string)}},
			}, nil
		},
	}, nil))

	res, err := inv.Invoke(context.Background(), Descriptor{ConnectorID: "slack"}, Payload{
		Action:    "send",
		Arguments: map[string]any{"to": "#sales"},
	})
	require.NoError(t, err)
	assert.Equal(t, ResultText, res.Kind)
	assert.Equal(t, "sent to #sales", res.Text)
}

func TestMCPInvoker_EmptyResult(t *testing.T) {
	inv := NewMCPInvokerWithDialer(inMemoryDialer(t, map[string]mcp.ToolHandler{
		"noop": func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return &mcp.CallToolResult{Content: []mcp.Content{}}, nil
		},
	}, nil))

	res, err := inv.Invoke(context.Background(), Descriptor{ConnectorID: "slack"}, Payload{Action: "noop"})
	require.NoError(t, err)
	assert.Equal(t, ResultEmpty, res.Kind)
	assert.NotEmpty(t, res.Raw)
}

func TestMCPInvoker_ToolError(t *testing.T) {
	inv := NewMCPInvokerWithDialer(inMemoryDialer(t, map[string]mcp.ToolHandler{
		"fail": func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return &mcp.CallToolResult{
				Content: []mcp.Content{&mcp.TextContent{Text: "quota exceeded"}},
				IsError: true,
			}, nil
		},
	}, nil))

	_, err := inv.Invoke(context.Background(), Descriptor{ConnectorID: "gmail"}, Payload{Action: "fail"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")

	var ie *InvocationError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, "gmail", ie.ConnectorID)
	assert.Equal(t, "fail", ie.Action)
	assert.Contains(t, string(ie.Raw), `"isError":true`)
	assert.Contains(t, string(ie.Raw), "quota exceeded")
}

func TestNewMCPInvoker_Validation(t *testing.T) {
	_, err := NewMCPInvoker(MCPConfig{})
	assert.Error(t, err)

	_, err = NewMCPInvoker(MCPConfig{Endpoint: "http://x", Transport: "carrier-pigeon"})
	assert.Error(t, err)

	inv, err := NewMCPInvoker(MCPConfig{Endpoint: "http://x/{connector}/mcp"})
	require.NoError(t, err)
	assert.NotNil(t, inv)
}

func TestDescriptorTransport_SetsHeaders(t *testing.T) {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client := &http.Client{Transport: &descriptorTransport{
		base:       http.DefaultTransport,
		descriptor: Descriptor{ConnectorID: "zendesk", Credential: "short-lived", Identity: "tenant-9"},
	}}
	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "Bearer short-lived", got.Get("Authorization"))
	assert.Equal(t, "zendesk", got.Get(HeaderConnector))
	assert.Equal(t, "tenant-9", got.Get(HeaderIdentity))
}
