package agentloop

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Tool is the capability interface of an executable tool. Parameters returns
// a JSON schema describing the accepted input.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]any
	Execute(ctx context.Context, input ActionInput) (ToolOutcome, error)
}

// Validatable is implemented by tools that check their input before
// execution.
type Validatable interface {
	Validate(input ActionInput) error
}

// ToolDescriptor describes a tool for the model (serializable metadata).
type ToolDescriptor struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ToolStats summarizes executions of one tool.
type ToolStats struct {
	ExecutionCount       int           `json:"execution_count"`
	FailureCount         int           `json:"failure_count"`
	TotalExecutionTime   time.Duration `json:"total_execution_time"`
	AverageExecutionTime time.Duration `json:"average_execution_time"`
}

// ToolRegistry manages tool registration, lookup and execution. It is safe
// for concurrent use and shared across runs.
type ToolRegistry struct {
	tools map[string]Tool
	stats map[string]*ToolStats
	mu    sync.RWMutex
}

// NewToolRegistry creates an empty ToolRegistry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{
		tools: make(map[string]Tool),
		stats: make(map[string]*ToolStats),
	}
}

// Register adds or replaces a tool in the registry.
func (r *ToolRegistry) Register(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name()] = tool
}

// Unregister removes a tool from the registry.
func (r *ToolRegistry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

// Has reports whether a tool is registered under name.
func (r *ToolRegistry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// Get returns a registered tool by name.
func (r *ToolRegistry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// Names returns the names of all registered tools, sorted.
func (r *ToolRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// List returns descriptors of all registered tools, sorted by name.
func (r *ToolRegistry) List() []ToolDescriptor {
	names := r.Names()
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]ToolDescriptor, 0, len(names))
	for _, name := range names {
		tool, ok := r.tools[name]
		if !ok {
			continue
		}
		defs = append(defs, describe(tool))
	}
	return defs
}

// Count returns the number of registered tools.
func (r *ToolRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Execute validates input, runs the named tool and records its statistics.
// An unknown name yields *ToolNotFoundError and rejected input yields
// *ToolValidationError; neither counts as an execution.
func (r *ToolRegistry) Execute(ctx context.Context, name string, input ActionInput) (ToolOutcome, error) {
	tool, ok := r.Get(name)
	if !ok {
		return ToolOutcome{}, &ToolNotFoundError{Name: name, Available: r.Names()}
	}

	if v, ok := tool.(Validatable); ok {
		if err := v.Validate(input); err != nil {
			return ToolOutcome{}, &ToolValidationError{Name: name, Cause: err}
		}
	}

	start := time.Now()
	outcome, err := tool.Execute(ctx, input)
	r.record(name, time.Since(start), err == nil && outcome.Success)
	if err != nil {
		return outcome, fmt.Errorf("%s: %w", name, err)
	}
	return outcome, nil
}

func (r *ToolRegistry) record(name string, elapsed time.Duration, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, exists := r.stats[name]
	if !exists {
		s = &ToolStats{}
		r.stats[name] = s
	}
	s.ExecutionCount++
	if !ok {
		s.FailureCount++
	}
	s.TotalExecutionTime += elapsed
	s.AverageExecutionTime = s.TotalExecutionTime / time.Duration(s.ExecutionCount)
}

// Stats returns a copy of the execution statistics keyed by tool name.
func (r *ToolRegistry) Stats() map[string]ToolStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]ToolStats, len(r.stats))
	for name, s := range r.stats {
		out[name] = *s
	}
	return out
}

func describe(tool Tool) ToolDescriptor {
	return ToolDescriptor{
		Name:        tool.Name(),
		Description: tool.Description(),
		Parameters:  tool.Parameters(),
	}
}

// FuncTool adapts a function into a Tool.
type FuncTool struct {
	ToolName        string
	ToolDescription string
	Schema          map[string]any
	Fn              func(ctx context.Context, input ActionInput) (ToolOutcome, error)
}

func (t *FuncTool) Name() string        { return t.ToolName }
func (t *FuncTool) Description() string { return t.ToolDescription }

func (t *FuncTool) Parameters() map[string]any {
	if t.Schema == nil {
		return map[string]any{"type": "object"}
	}
	return t.Schema
}

func (t *FuncTool) Execute(ctx context.Context, input ActionInput) (ToolOutcome, error) {
	return t.Fn(ctx, input)
}
