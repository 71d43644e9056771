// Package tools exposes evidence operations to roles by name. Each tool
// carries a JSON Schema; the registry validates arguments, bounds execution
// time and optionally caches results.
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/miradorstack/mirador-investigator/internal/cache"
	"github.com/miradorstack/mirador-investigator/internal/metrics"
	"github.com/miradorstack/mirador-investigator/internal/models"
	"github.com/miradorstack/mirador-investigator/internal/utils"
)

var (
	// ErrUnknownTool is returned when no tool is registered under a name.
	ErrUnknownTool = errors.New("unknown tool")
	// ErrInvalidArguments is returned when arguments fail schema validation.
	ErrInvalidArguments = errors.New("invalid tool arguments")
	// ErrToolTimeout is returned when a tool exceeds the registry timeout.
	ErrToolTimeout = errors.New("tool timed out")
	// ErrToolPanic is returned when a tool panics during execution.
	ErrToolPanic = errors.New("tool panicked")
)

// Tool is the interface for executable tools.
type Tool interface {
	// Name returns the stable identifier roles use to invoke the tool.
	Name() string
	// Description returns a human-readable description for role capabilities.
	Description() string
	// Parameters returns the JSON Schema for the tool's arguments.
	Parameters() map[string]any
	// Execute runs the tool and returns a JSON-serialisable result.
	Execute(ctx context.Context, args Args) (any, error)
}

// Func adapts a plain function into a Tool.
type Func struct {
	ToolName        string
	ToolDescription string
	Schema          map[string]any
	Fn              func(ctx context.Context, args Args) (any, error)
}

func (f Func) Name() string               { return f.ToolName }
func (f Func) Description() string        { return f.ToolDescription }
func (f Func) Parameters() map[string]any { return f.Schema }
func (f Func) Execute(ctx context.Context, args Args) (any, error) {
	return f.Fn(ctx, args)
}

type registered struct {
	tool   Tool
	schema *jsonschema.Schema
}

// Registry holds the tools available to an investigation.
type Registry struct {
	mu       sync.RWMutex
	tools    map[string]registered
	timeout  time.Duration
	cache    cache.Provider
	cacheTTL time.Duration
	logger   *slog.Logger
}

// Option customises a Registry.
type Option func(*Registry)

// WithTimeout bounds each invocation. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(r *Registry) { r.timeout = d }
}

// WithCache stores successful results keyed by tool name and canonical arguments.
func WithCache(provider cache.Provider, ttl time.Duration) Option {
	return func(r *Registry) {
		r.cache = provider
		r.cacheTTL = ttl
	}
}

// WithLogger sets the registry logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) { r.logger = logger }
}

// NewRegistry creates an empty tool registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		tools:   make(map[string]registered),
		timeout: 10 * time.Second,
		cache:   cache.NoopProvider{},
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = utils.OrDefault(r.logger)
	if r.cache == nil {
		r.cache = cache.NoopProvider{}
	}
	return r
}

// Register compiles the tool's schema and adds it to the registry.
func (r *Registry) Register(tool Tool) error {
	schema, err := compileSchema(tool.Name(), tool.Parameters())
	if err != nil {
		return utils.NewAppError("tools.Register", tool.Name(), err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name()] = registered{tool: tool, schema: schema}
	return nil
}

// Get looks up a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.tools[name]
	return entry.tool, ok
}

// List returns registered tool names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definitions returns tool definitions sorted by name.
func (r *Registry) Definitions() []models.ToolDefinition {
	names := r.List()
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]models.ToolDefinition, 0, len(names))
	for _, name := range names {
		tool := r.tools[name].tool
		defs = append(defs, models.ToolDefinition{
			Name:        tool.Name(),
			Description: tool.Description(),
			Parameters:  tool.Parameters(),
		})
	}
	return defs
}

// Invoke validates args, runs the named tool under the registry timeout and
// returns its JSON-encoded result.
func (r *Registry) Invoke(ctx context.Context, name string, args map[string]any) (json.RawMessage, error) {
	r.mu.RLock()
	entry, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}
	if args == nil {
		args = map[string]any{}
	}

	canonical, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	if err := validate(entry.schema, canonical); err != nil {
		metrics.ObserveToolCall(name, metrics.ToolError, 0)
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidArguments, name, err)
	}

	key := cache.Key("tool:"+name, canonical)
	if cached, err := r.cache.Get(ctx, key); err == nil {
		metrics.ObserveToolCall(name, metrics.ToolCached, 0)
		r.logger.Debug("tool cache hit", slog.String("tool", name))
		return cached, nil
	}

	start := time.Now()
	result, err := r.run(ctx, entry.tool, args)
	duration := time.Since(start)
	if err != nil {
		metrics.ObserveToolCall(name, metrics.ToolError, duration)
		return nil, err
	}

	payload, err := json.Marshal(result)
	if err != nil {
		metrics.ObserveToolCall(name, metrics.ToolError, duration)
		return nil, fmt.Errorf("encode %s result: %w", name, err)
	}
	metrics.ObserveToolCall(name, metrics.ToolSuccess, duration)
	if err := r.cache.Set(ctx, key, payload, r.cacheTTL); err != nil {
		r.logger.Warn("tool cache store failed", slog.String("tool", name), slog.Any("error", err))
	}
	r.logger.Debug("tool invoked", slog.String("tool", name), slog.Duration("duration", duration))
	return payload, nil
}

// Execute runs a tool call and folds any failure into an error result, so a
// transcript always receives one result per call.
func (r *Registry) Execute(ctx context.Context, call models.ToolCall) models.ToolResult {
	var (
		payload json.RawMessage
		err     error
	)
	if call.ArgsError != "" {
		err = fmt.Errorf("%w: %s", ErrInvalidArguments, call.ArgsError)
	} else {
		payload, err = r.Invoke(ctx, call.Name, call.Args)
	}
	if err != nil {
		body, _ := json.Marshal(map[string]string{"error": err.Error()})
		return models.ToolResult{CallID: call.ID, Name: call.Name, Content: string(body), IsError: true}
	}
	return models.ToolResult{CallID: call.ID, Name: call.Name, Content: string(payload)}
}

func (r *Registry) run(ctx context.Context, tool Tool, args Args) (any, error) {
	if r.timeout <= 0 {
		return r.execute(ctx, tool, args)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	type outcome struct {
		result any
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := r.execute(ctx, tool, args)
		done <- outcome{result: result, err: err}
	}()

	select {
	case out := <-done:
		return out.result, out.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s after %s", ErrToolTimeout, tool.Name(), r.timeout)
		}
		return nil, ctx.Err()
	}
}

func (r *Registry) execute(ctx context.Context, tool Tool, args Args) (result any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("tool panicked", slog.String("tool", tool.Name()), slog.Any("panic", rec))
			result, err = nil, fmt.Errorf("%w: %s: %v", ErrToolPanic, tool.Name(), rec)
		}
	}()
	return tool.Execute(ctx, args)
}

func compileSchema(name string, params map[string]any) (*jsonschema.Schema, error) {
	if params == nil {
		params = map[string]any{"type": "object"}
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("encode schema: %w", err)
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode schema: %w", err)
	}

	url := "mem://tools/" + name + ".json"
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

func validate(schema *jsonschema.Schema, payload []byte) error {
	instance, err := jsonschema.UnmarshalJSON(bytes.NewReader(payload))
	if err != nil {
		return err
	}
	return schema.Validate(instance)
}
