package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/vango-go/vai-agent/pkg/core/types"
	"github.com/vango-go/vai-agent/pkg/live"
)

// RemoteConfig configures an action endpoint client.
type RemoteConfig struct {
	// BaseURL is the action endpoint root, e.g.
	// "https://actions.example.com". Required.
	BaseURL string

	// APIKey is sent as a bearer token when set.
	APIKey string

	// ContextTools lists the tools that need recent conversation
	// context attached to the request (memory writes, summaries).
	ContextTools []string

	// Context supplies finalized turns for context-carrying tools.
	Context func() []types.Turn

	// MaxContextTurns bounds the attached context. Defaults to 20.
	MaxContextTurns int

	HTTPClient *http.Client
}

// RemoteClient calls tools hosted behind an HTTP action endpoint. It
// implements the dispatcher's RemoteRunner.
type RemoteClient struct {
	cfg    RemoteConfig
	http   *http.Client
	carryC map[string]bool
}

func NewRemoteClient(cfg RemoteConfig) (*RemoteClient, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("remote tools: base URL is required")
	}
	if cfg.MaxContextTurns <= 0 {
		cfg.MaxContextTurns = 20
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	carry := make(map[string]bool, len(cfg.ContextTools))
	for _, name := range cfg.ContextTools {
		carry[strings.ToLower(strings.TrimSpace(name))] = true
	}
	return &RemoteClient{cfg: cfg, http: httpClient, carryC: carry}, nil
}

type actionRequest struct {
	Tool    string          `json:"tool"`
	Args    map[string]any  `json:"args,omitempty"`
	Context []actionCtxTurn `json:"context,omitempty"`
}

type actionCtxTurn struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

type actionResponse struct {
	Result    map[string]any   `json:"result,omitempty"`
	Operation *actionOperation `json:"operation,omitempty"`
	Error     string           `json:"error,omitempty"`
}

type actionOperation struct {
	ID        string `json:"id"`
	StatusURL string `json:"status_url"`
}

type statusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Run posts one tool call to the action endpoint. A response carrying
// an operation descriptor is returned as an initiated async
// operation; the dispatcher polls it to completion.
func (c *RemoteClient) Run(ctx context.Context, call types.ToolCallRequest) (*live.RemoteResult, error) {
	reqBody := actionRequest{Tool: call.Name, Args: call.Args}
	if c.carryC[strings.ToLower(call.Name)] && c.cfg.Context != nil {
		reqBody.Context = c.recentContext()
	}

	var decoded actionResponse
	if err := c.postJSON(ctx, c.actionURL(call.Name), reqBody, &decoded); err != nil {
		return nil, err
	}
	if decoded.Error != "" {
		return nil, fmt.Errorf("action %q failed: %s", call.Name, decoded.Error)
	}

	result := &live.RemoteResult{Output: decoded.Result}
	if op := decoded.Operation; op != nil {
		name := op.ID
		if name == "" {
			name = call.Name
		}
		if result.Output == nil {
			result.Output = map[string]any{"operation_id": op.ID}
		}
		result.Operation = &live.AsyncOperation{
			Name:   name,
			Status: c.statusFunc(op.StatusURL),
		}
	}
	return result, nil
}

func (c *RemoteClient) actionURL(tool string) string {
	return strings.TrimRight(c.cfg.BaseURL, "/") + "/actions/" + strings.ToLower(strings.TrimSpace(tool))
}

func (c *RemoteClient) recentContext() []actionCtxTurn {
	turns := c.cfg.Context()
	if len(turns) > c.cfg.MaxContextTurns {
		turns = turns[len(turns)-c.cfg.MaxContextTurns:]
	}
	out := make([]actionCtxTurn, 0, len(turns))
	for _, turn := range turns {
		if !turn.Final || turn.Text == "" {
			continue
		}
		out = append(out, actionCtxTurn{Role: string(turn.Role), Text: turn.Text})
	}
	return out
}

// statusFunc adapts one operation's status URL to the poller
// contract. A terminal failed or cancelled status is reported as
// *live.OperationFailed, which stops the poll loop on first
// observation; transport errors stay transient.
func (c *RemoteClient) statusFunc(statusURL string) live.StatusFunc {
	return func(ctx context.Context) (bool, string, error) {
		var decoded statusResponse
		if err := c.getJSON(ctx, statusURL, &decoded); err != nil {
			return false, "", err
		}
		switch strings.ToLower(decoded.Status) {
		case "completed", "succeeded", "done":
			return true, decoded.Message, nil
		case "failed", "cancelled":
			reason := decoded.Error
			if reason == "" {
				reason = decoded.Message
			}
			if reason == "" {
				reason = decoded.Status
			}
			return false, "", &live.OperationFailed{Reason: reason}
		default:
			return false, decoded.Message, nil
		}
	}
}

func (c *RemoteClient) postJSON(ctx context.Context, url string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *RemoteClient) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	return c.do(req, out)
}

func (c *RemoteClient) do(req *http.Request, out any) error {
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("action endpoint request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet := strings.TrimSpace(string(raw))
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		return fmt.Errorf("action endpoint returned %s: %s", resp.Status, snippet)
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
