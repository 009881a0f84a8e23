package router

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"sync/atomic"
	"time"

	"github.com/herald-crm/herald/pkg/chat"
	"github.com/herald-crm/herald/pkg/httpclient"
)

// Endpoint is a stateless client for one OpenAI-compatible API. It is safe
// for concurrent use; the router shares one instance per configured
// endpoint across all models bound to it.
type Endpoint struct {
	cfg EndpointConfig

	// client bounds whole completion and embedding calls with the
	// configured timeout. streamClient carries no client timeout;
	// streams are bounded by the idle watchdog and the caller's context.
	client       *httpclient.Client
	streamClient *httpclient.Client

	rawClients []*http.Client
}

// NewEndpoint builds the wire client for one endpoint configuration.
func NewEndpoint(cfg EndpointConfig) *Endpoint {
	cfg.SetDefaults()

	completionHTTP := &http.Client{Timeout: cfg.Timeout}
	client := httpclient.New(
		httpclient.WithHTTPClient(completionHTTP),
		httpclient.WithMaxRetries(3),
		httpclient.WithBaseDelay(time.Second),
		httpclient.WithTLS(cfg.TLS),
	)

	// The stream client must not cap body-read time; the completion
	// timeout applies only up to the response headers.
	streamTransport := &http.Transport{}
	if cfg.TLS != nil {
		if tr, err := cfg.TLS.Transport(); err == nil {
			streamTransport = tr
		} else {
			slog.Warn("Falling back to default stream transport",
				"endpoint", cfg.ID, "error", err)
		}
	}
	streamTransport.ResponseHeaderTimeout = cfg.Timeout
	streamHTTP := &http.Client{Transport: streamTransport}
	streamClient := httpclient.New(
		httpclient.WithHTTPClient(streamHTTP),
		httpclient.WithMaxRetries(3),
		httpclient.WithBaseDelay(time.Second),
	)

	return &Endpoint{
		cfg:          cfg,
		client:       client,
		streamClient: streamClient,
		rawClients:   []*http.Client{completionHTTP, streamHTTP},
	}
}

// Close releases idle connections held by the endpoint's clients.
func (e *Endpoint) Close() {
	for _, c := range e.rawClients {
		c.CloseIdleConnections()
	}
}

// ID returns the endpoint identifier.
func (e *Endpoint) ID() string {
	return e.cfg.ID
}

// wireModel applies the endpoint's model prefix.
func (e *Endpoint) wireModel(model string) string {
	return e.cfg.ModelPrefix + model
}

// OpenAI-compatible wire types. Content is always a plain string; the
// platform has no multimodal surface.

type wireRequest struct {
	Model       string        `json:"model"`
	Messages    []wireMessage `json:"messages"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
	Stream      bool          `json:"stream"`
	Tools       []wireTool    `json:"tools,omitempty"`
	ToolChoice  string        `json:"tool_choice,omitempty"`
}

type wireMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

type wireTool struct {
	Type     string           `json:"type"`
	Function wireToolFunction `json:"function"`
}

type wireToolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type wireToolCall struct {
	Index    *int             `json:"index,omitempty"`
	ID       string           `json:"id,omitempty"`
	Type     string           `json:"type,omitempty"`
	Function wireFunctionCall `json:"function"`
}

type wireFunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type wireResponse struct {
	Choices []wireChoice `json:"choices"`
	Usage   *chat.Usage  `json:"usage,omitempty"`
	Error   *wireError   `json:"error,omitempty"`
}

type wireChoice struct {
	Message      wireMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type wireStreamResponse struct {
	Choices []wireStreamChoice `json:"choices"`
	Usage   *chat.Usage        `json:"usage,omitempty"`
	Error   *wireError         `json:"error,omitempty"`
}

type wireStreamChoice struct {
	Delta        wireDelta `json:"delta"`
	FinishReason string    `json:"finish_reason"`
}

type wireDelta struct {
	Content   string         `json:"content,omitempty"`
	ToolCalls []wireToolCall `json:"tool_calls,omitempty"`
}

type wireError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

type wireEmbeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type wireEmbeddingResponse struct {
	Data  []wireEmbedding `json:"data"`
	Usage *chat.Usage     `json:"usage,omitempty"`
	Error *wireError      `json:"error,omitempty"`
}

type wireEmbedding struct {
	Index     int       `json:"index"`
	Embedding []float64 `json:"embedding"`
}

// toWireMessages converts chat messages to the wire format. Assistant
// tool calls carry JSON-encoded arguments; execution results never go
// back on the wire from here, callers add tool-role messages themselves.
func toWireMessages(messages []chat.Message) []wireMessage {
	out := make([]wireMessage, len(messages))
	for i, m := range messages {
		wm := wireMessage{
			Role:       string(m.Role),
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		if len(m.ToolCalls) > 0 {
			wm.ToolCalls = make([]wireToolCall, len(m.ToolCalls))
			for j, tc := range m.ToolCalls {
				args, _ := json.Marshal(tc.Args)
				wm.ToolCalls[j] = wireToolCall{
					ID:   tc.ID,
					Type: "function",
					Function: wireFunctionCall{
						Name:      tc.Name,
						Arguments: string(args),
					},
				}
			}
		}
		out[i] = wm
	}
	return out
}

// parseWireToolCalls decodes accumulated wire tool calls into chat form.
// Malformed argument JSON fails the whole batch; a model that cannot emit
// valid JSON arguments cannot be trusted on any of its calls.
func parseWireToolCalls(calls []wireToolCall) ([]chat.ToolCall, error) {
	out := make([]chat.ToolCall, len(calls))
	for i, tc := range calls {
		var args map[string]any
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				return nil, fmt.Errorf("parse tool arguments for %q: %w", tc.Function.Name, err)
			}
		}
		out[i] = chat.ToolCall{
			ID:   tc.ID,
			Name: tc.Function.Name,
			Args: args,
		}
	}
	return out, nil
}

// parseWireError extracts structured error detail from an API error body.
func parseWireError(body []byte) *wireError {
	if len(body) == 0 {
		return nil
	}
	var errResp struct {
		Error wireError `json:"error"`
	}
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		return &errResp.Error
	}
	return nil
}

// post sends one JSON request through the given client and returns the
// response. Non-2xx responses become errors carrying the API detail.
func (e *Endpoint) post(ctx context.Context, client *httpclient.Client, path string, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(body)), nil
	}
	req.Header.Set("Content-Type", "application/json")
	if e.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.cfg.APIKey)
	}

	resp, err := client.Do(req)
	if resp != nil && resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		respBody, readErr := io.ReadAll(resp.Body)
		errorBody := string(respBody)
		if readErr != nil {
			errorBody = fmt.Sprintf("(failed to read error body: %v)", readErr)
		}
		if apiErr := parseWireError(respBody); apiErr != nil {
			return nil, fmt.Errorf("API request failed with status %d: %s (type: %s, code: %s)",
				resp.StatusCode, apiErr.Message, apiErr.Type, apiErr.Code)
		}
		return nil, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, errorBody)
	}
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	if resp == nil {
		return nil, fmt.Errorf("HTTP request failed: no response received")
	}
	return resp, nil
}

// Complete performs one non-streaming chat completion.
func (e *Endpoint) Complete(ctx context.Context, req wireRequest) (*wireResponse, error) {
	req.Stream = false
	resp, err := e.post(ctx, e.client, "/chat/completions", req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var out wireResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if out.Error != nil {
		return nil, fmt.Errorf("API error: %s", out.Error.Message)
	}
	if len(out.Choices) == 0 {
		return nil, fmt.Errorf("no response choices returned")
	}
	return &out, nil
}

// streamEvent is one unit of a server-sent completion stream. Exactly one
// terminal event is delivered: either Done with the accumulated state or
// Err. The channel closes after it.
type streamEvent struct {
	Content string

	Done      bool
	ToolCalls []wireToolCall
	Usage     *chat.Usage
	Err       error
}

// Stream performs a streaming chat completion and emits deltas in wire
// order. Silence longer than the endpoint's StreamIdleTimeout aborts the
// stream. The returned channel is closed after the terminal event.
func (e *Endpoint) Stream(ctx context.Context, req wireRequest) (<-chan streamEvent, error) {
	req.Stream = true
	resp, err := e.post(ctx, e.streamClient, "/chat/completions", req)
	if err != nil {
		return nil, err
	}

	events := make(chan streamEvent, 16)
	go func() {
		defer close(events)
		defer resp.Body.Close()
		e.readStream(ctx, resp.Body, events)
	}()
	return events, nil
}

// readStream consumes the SSE body. A watchdog closes the body when no
// line arrives within StreamIdleTimeout; the blocked read then fails and
// the flag distinguishes idleness from transport errors.
func (e *Endpoint) readStream(ctx context.Context, body io.ReadCloser, events chan<- streamEvent) {
	idle := e.cfg.StreamIdleTimeout
	var idleFired atomic.Bool
	watchdog := time.AfterFunc(idle, func() {
		idleFired.Store(true)
		body.Close()
	})
	defer watchdog.Stop()

	reader := bufio.NewReader(body)
	toolCalls := make(map[int]*wireToolCall)
	var usage *chat.Usage

	finish := func() {
		keys := make([]int, 0, len(toolCalls))
		for k := range toolCalls {
			keys = append(keys, k)
		}
		sort.Ints(keys)
		accumulated := make([]wireToolCall, 0, len(keys))
		for _, k := range keys {
			accumulated = append(accumulated, *toolCalls[k])
		}
		events <- streamEvent{Done: true, ToolCalls: accumulated, Usage: usage}
	}

	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			switch {
			case idleFired.Load():
				events <- streamEvent{Err: fmt.Errorf("stream idle for %s: %w", idle, context.DeadlineExceeded)}
			case ctx.Err() != nil:
				events <- streamEvent{Err: ctx.Err()}
			case err == io.EOF:
				finish()
			default:
				events <- streamEvent{Err: fmt.Errorf("read stream: %w", err)}
			}
			return
		}
		watchdog.Reset(idle)

		line = bytes.TrimSpace(line)
		if len(line) == 0 || !bytes.HasPrefix(line, []byte("data: ")) {
			continue
		}
		line = line[6:]

		if bytes.Equal(line, []byte("[DONE]")) {
			finish()
			return
		}

		var chunk wireStreamResponse
		if err := json.Unmarshal(line, &chunk); err != nil {
			continue
		}
		if chunk.Error != nil {
			events <- streamEvent{Err: fmt.Errorf("API error: %s", chunk.Error.Message)}
			return
		}
		if chunk.Usage != nil {
			u := *chunk.Usage
			usage = &u
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		choice := chunk.Choices[0]
		if choice.Delta.Content != "" {
			select {
			case events <- streamEvent{Content: choice.Delta.Content}:
			case <-ctx.Done():
				events <- streamEvent{Err: ctx.Err()}
				return
			}
		}
		accumulateToolCalls(toolCalls, choice.Delta.ToolCalls)

		if choice.FinishReason == "stop" || choice.FinishReason == "tool_calls" {
			finish()
			return
		}
	}
}

// accumulateToolCalls merges streamed tool-call fragments, keyed by the
// wire index. Fragments without an index extend the most recent call,
// which is how older gateways stream arguments.
func accumulateToolCalls(acc map[int]*wireToolCall, deltas []wireToolCall) {
	for _, d := range deltas {
		idx := len(acc) - 1
		switch {
		case d.Index != nil:
			idx = *d.Index
		case d.ID != "":
			idx = len(acc)
		}
		if idx < 0 {
			continue
		}
		tc, ok := acc[idx]
		if !ok {
			tc = &wireToolCall{}
			acc[idx] = tc
		}
		if d.ID != "" {
			tc.ID = d.ID
		}
		if d.Type != "" {
			tc.Type = d.Type
		}
		if d.Function.Name != "" {
			tc.Function.Name = d.Function.Name
		}
		tc.Function.Arguments += d.Function.Arguments
	}
}

// Embed computes embeddings for the inputs in order.
func (e *Endpoint) Embed(ctx context.Context, model string, input []string) ([][]float64, error) {
	req := wireEmbeddingRequest{Model: e.wireModel(model), Input: input}
	resp, err := e.post(ctx, e.client, "/embeddings", req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var out wireEmbeddingResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if out.Error != nil {
		return nil, fmt.Errorf("API error: %s", out.Error.Message)
	}
	if len(out.Data) != len(input) {
		return nil, fmt.Errorf("embedding count mismatch: got %d, want %d", len(out.Data), len(input))
	}

	sort.Slice(out.Data, func(i, j int) bool { return out.Data[i].Index < out.Data[j].Index })
	vectors := make([][]float64, len(out.Data))
	for i, d := range out.Data {
		vectors[i] = d.Embedding
	}
	return vectors, nil
}
