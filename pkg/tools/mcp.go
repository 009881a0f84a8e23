package tools

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/herald-crm/herald/pkg/httpclient"
)

const (
	mcpProtocolVersion = "2024-11-05"

	// mcpSSETimeout bounds reading one SSE-framed JSON-RPC response.
	mcpSSETimeout = 5 * time.Minute
)

// MCPSource connects to one MCP tool server and contributes its tools to a
// Registry under "<server>_<tool>" names.
//
// Transports:
//   - stdio: subprocess via the mcp-go client
//   - streamable-http: JSON-RPC over the retrying HTTP client, with
//     SSE-framed responses and session tracking
type MCPSource struct {
	cfg MCPServerConfig

	mu         sync.Mutex
	stdio      *client.Client
	httpClient *httpclient.Client
	connected  bool

	sessionMu sync.RWMutex
	sessionID string

	requestID atomic.Int64
	filterSet map[string]bool
}

// NewMCPSource creates a source for the configured server. Connection is
// deferred to Connect.
func NewMCPSource(cfg MCPServerConfig) (*MCPSource, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var filterSet map[string]bool
	if len(cfg.Filter) > 0 {
		filterSet = make(map[string]bool, len(cfg.Filter))
		for _, name := range cfg.Filter {
			filterSet[name] = true
		}
	}

	return &MCPSource{
		cfg:       cfg,
		filterSet: filterSet,
	}, nil
}

// Name returns the configured server name.
func (s *MCPSource) Name() string {
	return s.cfg.Name
}

// Connect dials the server, discovers its tools, and registers each with
// reg. Filtered-out tools are skipped before registration.
func (s *MCPSource) Connect(ctx context.Context, reg *Registry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.connected {
		return nil
	}

	var (
		discovered []*Tool
		err        error
	)
	if s.cfg.Transport == "stdio" {
		discovered, err = s.connectStdio(ctx)
	} else {
		discovered, err = s.connectHTTP(ctx)
	}
	if err != nil {
		return fmt.Errorf("failed to connect to MCP server %q: %w", s.cfg.Name, err)
	}

	for _, t := range discovered {
		if regErr := reg.RegisterTool(t); regErr != nil {
			slog.Warn("Skipping MCP tool", "server", s.cfg.Name, "tool", t.Name, "error", regErr)
		}
	}

	s.connected = true
	slog.Info("Connected to MCP server",
		"name", s.cfg.Name,
		"transport", s.cfg.Transport,
		"tools", len(discovered),
	)
	return nil
}

func (s *MCPSource) connectStdio(ctx context.Context) ([]*Tool, error) {
	mcpClient, err := client.NewStdioMCPClient(s.cfg.Command, envSlice(s.cfg.Env), s.cfg.Args...)
	if err != nil {
		return nil, fmt.Errorf("failed to create MCP client: %w", err)
	}

	if err := mcpClient.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start MCP client: %w", err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ClientInfo = mcp.Implementation{
		Name:    "herald",
		Version: "1.0.0",
	}
	initReq.Params.ProtocolVersion = mcpProtocolVersion

	if _, err := mcpClient.Initialize(ctx, initReq); err != nil {
		mcpClient.Close()
		return nil, fmt.Errorf("failed to initialize MCP: %w", err)
	}

	listResp, err := mcpClient.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		mcpClient.Close()
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}

	var tools []*Tool
	for _, mcpTool := range listResp.Tools {
		if s.filterSet != nil && !s.filterSet[mcpTool.Name] {
			continue
		}
		rawName := mcpTool.Name
		tools = append(tools, &Tool{
			Name:        s.toolName(rawName),
			Description: mcpTool.Description,
			Schema:      stdioSchemaMap(mcpTool.InputSchema),
			Handler: func(ctx context.Context, args map[string]any) (string, error) {
				return s.callStdio(ctx, rawName, args)
			},
		})
	}

	s.stdio = mcpClient
	return tools, nil
}

func (s *MCPSource) connectHTTP(ctx context.Context) ([]*Tool, error) {
	s.httpClient = httpclient.New(
		httpclient.WithHTTPClient(&http.Client{Timeout: 30 * time.Second}),
		httpclient.WithMaxRetries(3),
		httpclient.WithBaseDelay(2*time.Second),
	)

	initResp, err := s.request(ctx, "initialize", map[string]any{
		"protocolVersion": mcpProtocolVersion,
		"clientInfo": map[string]any{
			"name":    "herald",
			"version": "1.0.0",
		},
		"capabilities": map[string]any{},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize MCP: %w", err)
	}
	if initResp.Error != nil {
		return nil, fmt.Errorf("MCP init error: %s", initResp.Error.Message)
	}

	listResp, err := s.request(ctx, "tools/list", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}
	if listResp.Error != nil {
		return nil, fmt.Errorf("MCP list error: %s", listResp.Error.Message)
	}

	resultMap, ok := listResp.Result.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("unexpected result type from tools/list")
	}
	toolsList, ok := resultMap["tools"].([]any)
	if !ok {
		return nil, fmt.Errorf("missing tools in tools/list response")
	}

	var tools []*Tool
	for _, raw := range toolsList {
		toolMap, ok := raw.(map[string]any)
		if !ok {
			continue
		}

		name, _ := toolMap["name"].(string)
		desc, _ := toolMap["description"].(string)
		if s.filterSet != nil && !s.filterSet[name] {
			continue
		}

		var schema map[string]any
		if inputSchema, ok := toolMap["inputSchema"].(map[string]any); ok {
			schema = inputSchema
		}

		rawName := name
		tools = append(tools, &Tool{
			Name:        s.toolName(rawName),
			Description: desc,
			Schema:      schema,
			Handler: func(ctx context.Context, args map[string]any) (string, error) {
				return s.callHTTP(ctx, rawName, args)
			},
		})
	}

	return tools, nil
}

// toolName namespaces a discovered tool under the server name so two servers
// exposing the same tool cannot collide.
func (s *MCPSource) toolName(raw string) string {
	return s.cfg.Name + "_" + raw
}

func (s *MCPSource) callStdio(ctx context.Context, name string, args map[string]any) (string, error) {
	s.mu.Lock()
	mcpClient := s.stdio
	s.mu.Unlock()

	if mcpClient == nil {
		return "", fmt.Errorf("MCP client not connected")
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	resp, err := mcpClient.CallTool(ctx, req)
	if err != nil {
		return "", fmt.Errorf("MCP call failed: %w", err)
	}

	var texts []string
	for _, content := range resp.Content {
		if textContent, ok := content.(mcp.TextContent); ok {
			texts = append(texts, textContent.Text)
		}
	}
	joined := strings.Join(texts, "\n")

	if resp.IsError {
		if joined == "" {
			joined = "unknown error"
		}
		return "", fmt.Errorf("%s", joined)
	}
	return joined, nil
}

func (s *MCPSource) callHTTP(ctx context.Context, name string, args map[string]any) (string, error) {
	resp, err := s.request(ctx, "tools/call", map[string]any{
		"name":      name,
		"arguments": args,
	})
	if err != nil {
		return "", fmt.Errorf("MCP call failed: %w", err)
	}
	if resp.Error != nil {
		return "", fmt.Errorf("%s", resp.Error.Message)
	}

	resultMap, ok := resp.Result.(map[string]any)
	if !ok {
		data, _ := json.Marshal(resp.Result)
		return string(data), nil
	}

	var texts []string
	if content, ok := resultMap["content"].([]any); ok {
		for _, c := range content {
			cm, ok := c.(map[string]any)
			if !ok {
				continue
			}
			if cm["type"] == "text" {
				if text, ok := cm["text"].(string); ok {
					texts = append(texts, text)
				}
			}
		}
	}
	joined := strings.Join(texts, "\n")

	if isError, _ := resultMap["isError"].(bool); isError {
		if joined == "" {
			joined = "unknown error"
		}
		return "", fmt.Errorf("%s", joined)
	}
	return joined, nil
}

type jsonRPCRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type jsonRPCResponse struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int64         `json:"id"`
	Result  any           `json:"result,omitempty"`
	Error   *jsonRPCError `json:"error,omitempty"`
}

type jsonRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// request sends one JSON-RPC call over HTTP, handling the mcp-session-id
// header and SSE-framed responses the streamable-http transport produces.
func (s *MCPSource) request(ctx context.Context, method string, params any) (*jsonRPCResponse, error) {
	req := jsonRPCRequest{
		JSONRPC: "2.0",
		ID:      s.requestID.Add(1),
		Method:  method,
		Params:  params,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.URL, strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json, text/event-stream")

	s.sessionMu.RLock()
	sessionID := s.sessionID
	s.sessionMu.RUnlock()
	if sessionID != "" {
		httpReq.Header.Set("mcp-session-id", sessionID)
	}

	httpResp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer httpResp.Body.Close()

	if newSessionID := httpResp.Header.Get("mcp-session-id"); newSessionID != "" {
		s.sessionMu.Lock()
		s.sessionID = newSessionID
		s.sessionMu.Unlock()
	}

	if httpResp.StatusCode != http.StatusOK {
		responseBody, _ := io.ReadAll(httpResp.Body)
		return nil, fmt.Errorf("HTTP error %d: %s", httpResp.StatusCode, string(responseBody))
	}

	if strings.Contains(httpResp.Header.Get("Content-Type"), "text/event-stream") {
		return s.readSSEResponse(httpResp)
	}

	responseBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var resp jsonRPCResponse
	if err := json.Unmarshal(responseBody, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &resp, nil
}

// readSSEResponse reads the first complete JSON-RPC message from an SSE
// stream. Events are data lines terminated by a blank line.
func (s *MCPSource) readSSEResponse(httpResp *http.Response) (*jsonRPCResponse, error) {
	type result struct {
		response *jsonRPCResponse
		err      error
	}
	resultChan := make(chan result, 1)

	go func() {
		reader := bufio.NewReader(httpResp.Body)
		var currentData strings.Builder

		for {
			line, err := reader.ReadBytes('\n')
			if err != nil {
				break
			}

			lineStr := strings.TrimSpace(string(line))

			if lineStr == "" {
				if currentData.Len() > 0 {
					var resp jsonRPCResponse
					if parseErr := json.Unmarshal([]byte(currentData.String()), &resp); parseErr == nil {
						resultChan <- result{response: &resp}
						return
					}
					currentData.Reset()
				}
				continue
			}

			if strings.HasPrefix(lineStr, "data:") {
				currentData.WriteString(strings.TrimSpace(strings.TrimPrefix(lineStr, "data:")))
			}
		}

		if currentData.Len() > 0 {
			var resp jsonRPCResponse
			if parseErr := json.Unmarshal([]byte(currentData.String()), &resp); parseErr == nil {
				resultChan <- result{response: &resp}
				return
			}
		}
		resultChan <- result{err: fmt.Errorf("SSE stream ended without complete message")}
	}()

	select {
	case res := <-resultChan:
		return res.response, res.err
	case <-time.After(mcpSSETimeout):
		return nil, fmt.Errorf("timeout reading SSE response after %v", mcpSSETimeout)
	}
}

// Close shuts down the server connection.
func (s *MCPSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.connected = false
	s.httpClient = nil
	if s.stdio != nil {
		err := s.stdio.Close()
		s.stdio = nil
		return err
	}
	return nil
}

func envSlice(env map[string]string) []string {
	if env == nil {
		return nil
	}
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, fmt.Sprintf("%s=%s", k, v))
	}
	return out
}

func stdioSchemaMap(schema mcp.ToolInputSchema) map[string]any {
	data, err := json.Marshal(schema)
	if err != nil {
		return nil
	}
	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		return nil
	}
	return result
}
