// Package tools provides the execution paths the live dispatcher
// routes tool calls to: an in-process native registry, an HTTP action
// endpoint client, and a long-running generation client.
package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/vango-go/vai-agent/pkg/core/types"
)

// Executor is one native tool, executed in-process without separate
// network I/O.
type Executor interface {
	Name() string
	Declaration() types.ToolDeclaration
	Execute(ctx context.Context, args map[string]any) (map[string]any, error)
}

// Registry holds native executors keyed by tool name.
type Registry struct {
	byName map[string]Executor
}

func NewRegistry(executors ...Executor) *Registry {
	registry := &Registry{byName: make(map[string]Executor, len(executors))}
	for _, ex := range executors {
		if ex == nil {
			continue
		}
		registry.byName[strings.ToLower(ex.Name())] = ex
	}
	return registry
}

func (r *Registry) Has(name string) bool {
	if r == nil {
		return false
	}
	_, ok := r.byName[strings.ToLower(strings.TrimSpace(name))]
	return ok
}

func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Declarations lists every registered tool's declaration, sorted by
// name.
func (r *Registry) Declarations() []types.ToolDeclaration {
	if r == nil {
		return nil
	}
	out := make([]types.ToolDeclaration, 0, len(r.byName))
	for _, name := range r.Names() {
		out = append(out, r.byName[name].Declaration())
	}
	return out
}

// Run executes one native call. It implements the dispatcher's
// ToolRunner.
func (r *Registry) Run(ctx context.Context, call types.ToolCallRequest) (map[string]any, error) {
	if r == nil {
		return nil, fmt.Errorf("native tool registry is not configured")
	}
	ex, ok := r.byName[strings.ToLower(strings.TrimSpace(call.Name))]
	if !ok {
		return nil, fmt.Errorf("unknown native tool %q", call.Name)
	}
	return ex.Execute(ctx, call.Args)
}

// Func adapts a plain function into an Executor.
type Func struct {
	ToolName string
	Decl     types.ToolDeclaration
	Fn       func(ctx context.Context, args map[string]any) (map[string]any, error)
}

func (f Func) Name() string                       { return f.ToolName }
func (f Func) Declaration() types.ToolDeclaration { return f.Decl }
func (f Func) Execute(ctx context.Context, args map[string]any) (map[string]any, error) {
	return f.Fn(ctx, args)
}
