// Package tools holds the tool registry: named, schema-described handlers
// that models may invoke. The registry executes handlers with a bounded
// timeout and reports structured results; MCP servers contribute tools
// through the same registration path as builtins.
package tools

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/herald-crm/herald/pkg/observability"
	"github.com/herald-crm/herald/pkg/registry"
)

// Handler executes a tool call and returns the content handed back to the
// model. Handlers must honor ctx cancellation; the registry additionally
// abandons handlers that outlive the execution timeout.
type Handler func(ctx context.Context, args map[string]any) (string, error)

// Tool is a named handler with a JSON-schema description of its arguments.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Schema      map[string]any `json:"schema,omitempty"`
	Handler     Handler        `json:"-"`

	// Internal hides the tool from models; it stays executable by name.
	Internal bool `json:"internal,omitempty"`
}

// Result is the outcome of one tool execution. Exactly one of Content or
// Error is meaningful; Error "timeout" marks an expired execution.
type Result struct {
	Name     string        `json:"name"`
	Success  bool          `json:"success"`
	Content  string        `json:"content,omitempty"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
}

// RegistryError carries the component and action that failed.
type RegistryError struct {
	Component string
	Action    string
	Message   string
	Err       error
}

func (e *RegistryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Component, e.Action, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Component, e.Action, e.Message)
}

func (e *RegistryError) Unwrap() error {
	return e.Err
}

func newRegistryError(component, action, message string, err error) *RegistryError {
	return &RegistryError{
		Component: component,
		Action:    action,
		Message:   message,
		Err:       err,
	}
}

// Registry maps tool names to tools and executes them with a timeout.
type Registry struct {
	*registry.BaseRegistry[*Tool]
	timeout time.Duration
}

// Option configures a Registry.
type Option func(*Registry)

// WithTimeout overrides the per-execution timeout.
func WithTimeout(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// NewRegistry creates an empty registry with the default execution timeout.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		BaseRegistry: registry.NewBaseRegistry[*Tool](),
		timeout:      DefaultTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RegisterTool adds a tool, validating it has a name and a handler.
func (r *Registry) RegisterTool(t *Tool) error {
	if t == nil {
		return newRegistryError("Registry", "RegisterTool", "tool is nil", nil)
	}
	if t.Handler == nil {
		return newRegistryError("Registry", "RegisterTool",
			fmt.Sprintf("tool %q has no handler", t.Name), nil)
	}
	if err := r.Register(t.Name, t); err != nil {
		return newRegistryError("Registry", "RegisterTool", "registration failed", err)
	}
	return nil
}

// Definitions returns the tools visible to models, name-sorted.
func (r *Registry) Definitions() []*Tool {
	var visible []*Tool
	for _, t := range r.List() {
		if !t.Internal {
			visible = append(visible, t)
		}
	}
	sort.Slice(visible, func(i, j int) bool {
		return visible[i].Name < visible[j].Name
	})
	return visible
}

// Execute runs the named tool. Failures are reported inside the Result so
// that a bad tool call never aborts the completion carrying it; the Error
// field is "timeout" when the handler outlives the execution timeout.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) Result {
	start := time.Now()

	tracer := observability.Tracer("herald.tools")
	ctx, span := tracer.Start(ctx, observability.SpanToolExecution,
		trace.WithAttributes(attribute.String(observability.AttrToolName, name)))
	defer span.End()

	tool, ok := r.Get(name)
	if !ok {
		err := newRegistryError("Registry", "Execute",
			fmt.Sprintf("tool %q not found", name), nil)
		span.RecordError(err)
		span.SetStatus(codes.Error, "tool not found")
		observability.GlobalRecorder().RecordToolExecution(ctx, name, time.Since(start), err)
		return Result{Name: name, Error: err.Error(), Duration: time.Since(start)}
	}

	res := r.run(ctx, tool, args)
	res.Duration = time.Since(start)

	var recordErr error
	if res.Error != "" {
		recordErr = errors.New(res.Error)
		span.RecordError(recordErr)
		span.SetStatus(codes.Error, res.Error)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.SetAttributes(
		attribute.Bool("tool.success", res.Success),
		attribute.Int64("tool.duration_ms", res.Duration.Milliseconds()),
	)
	observability.GlobalRecorder().RecordToolExecution(ctx, name, res.Duration, recordErr)

	return res
}

// run invokes the handler on its own goroutine so a handler that ignores
// ctx still cannot hold the caller past the timeout.
func (r *Registry) run(ctx context.Context, tool *Tool, args map[string]any) Result {
	execCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	type outcome struct {
		content string
		err     error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- outcome{err: fmt.Errorf("tool panicked: %v", rec)}
			}
		}()
		content, err := tool.Handler(execCtx, args)
		done <- outcome{content: content, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			return Result{Name: tool.Name, Error: out.err.Error()}
		}
		return Result{Name: tool.Name, Success: true, Content: out.content}
	case <-execCtx.Done():
		if errors.Is(execCtx.Err(), context.DeadlineExceeded) {
			return Result{Name: tool.Name, Error: "timeout"}
		}
		return Result{Name: tool.Name, Error: execCtx.Err().Error()}
	}
}
