// Package tools defines the tools the assistant may invoke: the
// descriptor catalog bound to every model call, and the client-side
// registry that maps a tool name to how it is executed and where its
// result is shown.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/nugget/wren/internal/config"
)

// Executor runs one tool call. Executors may perform I/O and take as
// long as they need; ctx carries the turn's cancellation.
type Executor interface {
	Execute(ctx context.Context, params map[string]any) (any, error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, params map[string]any) (any, error)

// Execute calls f.
func (f ExecutorFunc) Execute(ctx context.Context, params map[string]any) (any, error) {
	return f(ctx, params)
}

// Entry is the capability record for one tool name.
type Entry struct {
	Executor Executor

	// RenderLocation is config.LocationDrawer or
	// config.LocationComponentArea. Empty means drawer.
	RenderLocation string

	// Renderer names the card that displays the result.
	Renderer string

	// Schema optionally constrains parameters. Calls that fail
	// validation never reach the executor.
	Schema map[string]any
}

type registered struct {
	Entry
	validator *jsonschema.Resolved
}

// Registry holds the client-side tool entries. Registration happens at
// startup; lookups and Execute are safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]*registered
	logger *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		tools:  make(map[string]*registered),
		logger: logger,
	}
}

// Register adds a tool. Empty or duplicate names, a nil executor, an
// unknown render location, or a schema that does not compile are
// rejected.
func (r *Registry) Register(name string, e Entry) error {
	if name == "" {
		return errors.New("tool name must not be empty")
	}
	if e.Executor == nil {
		return fmt.Errorf("tool %s: executor is required", name)
	}
	switch e.RenderLocation {
	case "":
		e.RenderLocation = config.LocationDrawer
	case config.LocationDrawer, config.LocationComponentArea:
	default:
		return fmt.Errorf("tool %s: unknown render location %q", name, e.RenderLocation)
	}

	reg := &registered{Entry: e}
	if e.Schema != nil {
		v, err := compileSchema(e.Schema)
		if err != nil {
			return fmt.Errorf("tool %s: compile schema: %w", name, err)
		}
		reg.validator = v
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %s is already registered", name)
	}
	r.tools[name] = reg
	return nil
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Execute runs the named tool. It returns *UnknownToolError for a name
// with no entry and *ToolExecutionError when validation or the executor
// fails.
func (r *Registry) Execute(ctx context.Context, name string, params map[string]any) (any, error) {
	r.mu.RLock()
	tool := r.tools[name]
	r.mu.RUnlock()

	if tool == nil {
		r.logger.Warn("unknown tool requested", "tool", name)
		return nil, &UnknownToolError{ToolName: name}
	}
	if params == nil {
		params = map[string]any{}
	}

	if tool.validator != nil {
		if err := tool.validator.Validate(params); err != nil {
			return nil, &ToolExecutionError{ToolName: name, Err: fmt.Errorf("invalid parameters: %w", err)}
		}
	}

	r.logger.Debug("executing tool", "tool", name, "call_id", CallIDFromContext(ctx))
	data, err := tool.Executor.Execute(ctx, params)
	if err != nil {
		r.logger.Warn("tool failed", "tool", name, "error", err)
		return nil, &ToolExecutionError{ToolName: name, Err: err}
	}
	return data, nil
}

// RenderLocation returns where name's results are shown; drawer for an
// unknown name.
func (r *Registry) RenderLocation(name string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if t := r.tools[name]; t != nil {
		return t.RenderLocation
	}
	return config.LocationDrawer
}

// Renderer returns the renderer name for name, or "" when the tool is
// unknown or has none.
func (r *Registry) Renderer(name string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if t := r.tools[name]; t != nil {
		return t.Renderer
	}
	return ""
}

// compileSchema compiles a raw JSON Schema map into a validator.
func compileSchema(schema map[string]any) (*jsonschema.Resolved, error) {
	data, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	var s jsonschema.Schema
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return s.Resolve(nil)
}
