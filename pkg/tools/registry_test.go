package tools

import (
	"context"
	"errors"
	"testing"

	"github.com/vango-go/vai-agent/pkg/core/types"
)

func echoTool(name string) Func {
	return Func{
		ToolName: name,
		Decl:     types.ToolDeclaration{Name: name, Description: "echoes its arguments"},
		Fn: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			return args, nil
		},
	}
}

func TestRegistryLookupIsCaseInsensitive(t *testing.T) {
	reg := NewRegistry(echoTool("Current_Time"))
	if !reg.Has("current_time") {
		t.Fatal("lookup should be case-insensitive")
	}
	if reg.Has("unknown") {
		t.Fatal("unknown tool reported as present")
	}
}

func TestRegistryRunExecutesTool(t *testing.T) {
	reg := NewRegistry(echoTool("echo"))
	out, err := reg.Run(context.Background(), types.ToolCallRequest{
		ID: "c1", Name: "echo", Args: map[string]any{"val": "x"},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out["val"] != "x" {
		t.Fatalf("got %v, want echoed args", out)
	}
}

func TestRegistryRunUnknownTool(t *testing.T) {
	reg := NewRegistry(echoTool("echo"))
	_, err := reg.Run(context.Background(), types.ToolCallRequest{ID: "c1", Name: "missing"})
	if err == nil {
		t.Fatal("expected error for unknown tool")
	}
}

func TestRegistryPropagatesToolError(t *testing.T) {
	boom := errors.New("boom")
	reg := NewRegistry(Func{
		ToolName: "failing",
		Fn: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			return nil, boom
		},
	})
	_, err := reg.Run(context.Background(), types.ToolCallRequest{ID: "c1", Name: "failing"})
	if !errors.Is(err, boom) {
		t.Fatalf("got %v, want %v", err, boom)
	}
}

func TestRegistryDeclarationsSorted(t *testing.T) {
	reg := NewRegistry(echoTool("zeta"), echoTool("alpha"))
	decls := reg.Declarations()
	if len(decls) != 2 {
		t.Fatalf("got %d declarations, want 2", len(decls))
	}
	if decls[0].Name != "alpha" || decls[1].Name != "zeta" {
		t.Fatalf("declarations not sorted: %s, %s", decls[0].Name, decls[1].Name)
	}
}

func TestNilRegistryIsSafe(t *testing.T) {
	var reg *Registry
	if reg.Has("anything") {
		t.Fatal("nil registry should report nothing")
	}
	if _, err := reg.Run(context.Background(), types.ToolCallRequest{Name: "x"}); err == nil {
		t.Fatal("nil registry Run should error")
	}
}
