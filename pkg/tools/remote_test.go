package tools

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/vango-go/vai-agent/pkg/core/types"
	"github.com/vango-go/vai-agent/pkg/live"
)

func TestRemoteRunReturnsResult(t *testing.T) {
	var gotAuth, gotPath string
	var gotBody actionRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(actionResponse{
			Result: map[string]any{"temp_c": 21.5},
		})
	}))
	defer server.Close()

	client, err := NewRemoteClient(RemoteConfig{BaseURL: server.URL, APIKey: "secret"})
	if err != nil {
		t.Fatalf("NewRemoteClient: %v", err)
	}

	res, err := client.Run(context.Background(), types.ToolCallRequest{
		ID: "c1", Name: "Lookup_Weather", Args: map[string]any{"city": "Oslo"},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Output["temp_c"] != 21.5 {
		t.Fatalf("got output %v", res.Output)
	}
	if res.Operation != nil {
		t.Fatal("sync call should have no operation")
	}
	if gotAuth != "Bearer secret" {
		t.Fatalf("got auth %q", gotAuth)
	}
	if gotPath != "/actions/lookup_weather" {
		t.Fatalf("got path %q", gotPath)
	}
	if gotBody.Tool != "Lookup_Weather" || gotBody.Args["city"] != "Oslo" {
		t.Fatalf("got body %+v", gotBody)
	}
}

func TestRemoteRunSurfacesHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "backend exploded", http.StatusInternalServerError)
	}))
	defer server.Close()

	client, _ := NewRemoteClient(RemoteConfig{BaseURL: server.URL})
	_, err := client.Run(context.Background(), types.ToolCallRequest{ID: "c1", Name: "anything"})
	if err == nil {
		t.Fatal("expected error for HTTP 500")
	}
	if !strings.Contains(err.Error(), "500") {
		t.Fatalf("error should carry status: %v", err)
	}
}

func TestRemoteRunAsyncOperationStatus(t *testing.T) {
	var statusCalls atomic.Int32
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/actions/deep_research", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(actionResponse{
			Operation: &actionOperation{ID: "op-7", StatusURL: server.URL + "/operations/op-7"},
		})
	})
	mux.HandleFunc("/operations/op-7", func(w http.ResponseWriter, r *http.Request) {
		if statusCalls.Add(1) < 3 {
			_ = json.NewEncoder(w).Encode(statusResponse{Status: "running", Message: "searching"})
			return
		}
		_ = json.NewEncoder(w).Encode(statusResponse{Status: "completed", Message: "report ready"})
	})

	client, _ := NewRemoteClient(RemoteConfig{BaseURL: server.URL})
	res, err := client.Run(context.Background(), types.ToolCallRequest{ID: "c1", Name: "deep_research"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Operation == nil || res.Operation.Name != "op-7" {
		t.Fatalf("got operation %+v, want op-7", res.Operation)
	}
	if res.Output["operation_id"] != "op-7" {
		t.Fatalf("got ack output %v", res.Output)
	}

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		done, _, err := res.Operation.Status(ctx)
		if err != nil {
			t.Fatalf("status check %d: %v", i, err)
		}
		if done {
			t.Fatalf("status check %d reported done too early", i)
		}
	}
	done, message, err := res.Operation.Status(ctx)
	if err != nil {
		t.Fatalf("final status check: %v", err)
	}
	if !done || message != "report ready" {
		t.Fatalf("got done=%v message=%q", done, message)
	}
}

func TestRemoteStatusFailureIsTerminal(t *testing.T) {
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/actions/deep_research", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(actionResponse{
			Operation: &actionOperation{ID: "op-8", StatusURL: server.URL + "/operations/op-8"},
		})
	})
	mux.HandleFunc("/operations/op-8", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(statusResponse{Status: "failed", Error: "quota exceeded"})
	})

	client, _ := NewRemoteClient(RemoteConfig{BaseURL: server.URL})
	res, err := client.Run(context.Background(), types.ToolCallRequest{ID: "c1", Name: "deep_research"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	_, _, err = res.Operation.Status(context.Background())
	var failed *live.OperationFailed
	if !errors.As(err, &failed) {
		t.Fatalf("got %v, want OperationFailed", err)
	}
	if failed.Reason != "quota exceeded" {
		t.Fatalf("got reason %q, want %q", failed.Reason, "quota exceeded")
	}
}

func TestRemoteAttachesContextForMemoryTools(t *testing.T) {
	var gotBody actionRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(actionResponse{Result: map[string]any{"saved": true}})
	}))
	defer server.Close()

	client, err := NewRemoteClient(RemoteConfig{
		BaseURL:      server.URL,
		ContextTools: []string{"save_memory"},
		Context: func() []types.Turn {
			return []types.Turn{
				{Role: types.RoleUser, Text: "my dog is called Rex", Final: true},
				{Role: types.RoleAgent, Text: "noted", Final: true},
				{Role: types.RoleAgent, Text: "still open", Final: false},
			}
		},
	})
	if err != nil {
		t.Fatalf("NewRemoteClient: %v", err)
	}

	if _, err := client.Run(context.Background(), types.ToolCallRequest{ID: "c1", Name: "save_memory"}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(gotBody.Context) != 2 {
		t.Fatalf("got %d context turns, want 2 finalized", len(gotBody.Context))
	}
	if gotBody.Context[0].Role != "user" || gotBody.Context[0].Text != "my dog is called Rex" {
		t.Fatalf("got context %+v", gotBody.Context)
	}

	gotBody = actionRequest{}
	if _, err := client.Run(context.Background(), types.ToolCallRequest{ID: "c2", Name: "lookup_weather"}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(gotBody.Context) != 0 {
		t.Fatal("non-memory tool should not carry context")
	}
}

func TestRemoteErrorFieldBecomesError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(actionResponse{Error: "tool is disabled"})
	}))
	defer server.Close()

	client, _ := NewRemoteClient(RemoteConfig{BaseURL: server.URL})
	_, err := client.Run(context.Background(), types.ToolCallRequest{ID: "c1", Name: "anything"})
	if err == nil || !strings.Contains(err.Error(), "tool is disabled") {
		t.Fatalf("got %v, want endpoint error surfaced", err)
	}
}
