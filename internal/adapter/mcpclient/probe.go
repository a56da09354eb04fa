// Package mcpclient probes registered MCP servers over their configured
// transport: a full initialize handshake followed by tool discovery.
package mcpclient

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mcpgo "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	mcpprotocol "github.com/mark3labs/mcp-go/mcp"

	"github.com/victorgrein/magnus-ai-sub001/internal/domain/mcp"
)

// Prober runs live connectivity checks against MCP servers.
type Prober struct {
	timeout time.Duration
}

// NewProber creates a prober. Each probe is bounded by timeout end to end.
func NewProber(timeout time.Duration) *Prober {
	return &Prober{timeout: timeout}
}

// Probe performs the MCP handshake against the server definition and lists
// its tools. Connection failures are reported in the result, not as errors;
// an error return means the definition itself was unusable.
func (p *Prober) Probe(ctx context.Context, srv *mcp.Server) (*mcp.TestResult, error) {
	if err := srv.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	fail := func(format string, args ...any) *mcp.TestResult {
		return &mcp.TestResult{
			Status:     mcp.ServerStatusError,
			Error:      fmt.Sprintf(format, args...),
			DurationMS: time.Since(start).Milliseconds(),
		}
	}

	client, err := p.createClient(srv)
	if err != nil {
		return fail("create client: %v", err), nil
	}
	defer client.Close()

	initReq := mcpprotocol.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcpprotocol.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcpprotocol.Implementation{
		Name:    "magnus",
		Version: "1.0.0",
	}
	if _, err := client.Initialize(ctx, initReq); err != nil {
		return fail("initialize: %v", err), nil
	}

	result := &mcp.TestResult{Status: mcp.ServerStatusConnected}

	toolsResult, err := client.ListTools(ctx, mcpprotocol.ListToolsRequest{})
	if err != nil {
		// Handshake succeeded but discovery failed; the server is up.
		result.Error = fmt.Sprintf("tools/list: %v", err)
		result.DurationMS = time.Since(start).Milliseconds()
		return result, nil
	}

	for i := range toolsResult.Tools {
		t := toolsResult.Tools[i]
		schema, _ := json.Marshal(t.InputSchema)
		result.Tools = append(result.Tools, mcp.ServerTool{
			ServerID:    srv.ID,
			Name:        t.Name,
			Description: t.Description,
			InputSchema: schema,
		})
	}
	result.ToolCount = len(result.Tools)
	result.DurationMS = time.Since(start).Milliseconds()
	return result, nil
}

func (p *Prober) createClient(srv *mcp.Server) (mcpgo.MCPClient, error) {
	switch srv.Transport {
	case mcp.TransportStdio:
		return mcpgo.NewStdioMCPClient(srv.Command, envMapToSlice(srv.Env), srv.Args...)

	case mcp.TransportSSE:
		var opts []transport.ClientOption
		if len(srv.Headers) > 0 {
			opts = append(opts, transport.WithHeaders(srv.Headers))
		}
		return mcpgo.NewSSEMCPClient(srv.URL, opts...)

	default:
		return nil, fmt.Errorf("unsupported transport: %s", srv.Transport)
	}
}

// envMapToSlice converts a map to the KEY=VALUE slice format expected by exec.Cmd.
func envMapToSlice(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}
