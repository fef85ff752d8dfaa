package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/vango-go/vai-agent/pkg/core/types"
	"github.com/vango-go/vai-agent/pkg/live"
)

// GenerateConfig configures the long-running generation client.
type GenerateConfig struct {
	// BaseURL is the generation service root. Required.
	BaseURL string

	APIKey string

	// PollInterval is the delay between status checks. Defaults to 3s.
	PollInterval time.Duration

	// MaxAttempts bounds the status poll loop. Defaults to 200.
	MaxAttempts int

	Client *RemoteClient
}

// GenerateClient drives background generation jobs (video,
// presentation, image) to completion, reporting progress along the
// way. It implements the dispatcher's BackgroundRunner.
type GenerateClient struct {
	cfg  GenerateConfig
	http *RemoteClient
}

func NewGenerateClient(cfg GenerateConfig) (*GenerateClient, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("generate tools: base URL is required")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 3 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 200
	}
	client := cfg.Client
	if client == nil {
		var err error
		client, err = NewRemoteClient(RemoteConfig{BaseURL: cfg.BaseURL, APIKey: cfg.APIKey})
		if err != nil {
			return nil, err
		}
	}
	return &GenerateClient{cfg: cfg, http: client}, nil
}

type generateSubmit struct {
	Tool string         `json:"tool"`
	Args map[string]any `json:"args,omitempty"`
}

type generateAck struct {
	ID    string `json:"id"`
	Error string `json:"error,omitempty"`
}

type generateStatus struct {
	Status      string         `json:"status"`
	Progress    int            `json:"progress"`
	Message     string         `json:"message,omitempty"`
	Error       string         `json:"error,omitempty"`
	DownloadURL string         `json:"download_url,omitempty"`
	Inline      map[string]any `json:"inline,omitempty"`
}

// Run submits one generation job and blocks until it is terminal,
// forwarding progress to the caller. Cancellation of ctx abandons the
// poll loop; the job itself keeps running server side.
func (c *GenerateClient) Run(ctx context.Context, call types.ToolCallRequest, progress func(percent int, message string)) (*live.TaskResult, error) {
	if progress == nil {
		progress = func(int, string) {}
	}

	submitURL := strings.TrimRight(c.cfg.BaseURL, "/") + "/generate"
	var ack generateAck
	if err := c.http.postJSON(ctx, submitURL, generateSubmit{Tool: call.Name, Args: call.Args}, &ack); err != nil {
		return nil, err
	}
	if ack.Error != "" {
		return nil, fmt.Errorf("generation %q rejected: %s", call.Name, ack.Error)
	}
	if ack.ID == "" {
		return nil, fmt.Errorf("generation %q returned no job id", call.Name)
	}

	statusURL := submitURL + "/" + ack.ID
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for attempt := 0; attempt < c.cfg.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}

		var status generateStatus
		if err := c.http.getJSON(ctx, statusURL, &status); err != nil {
			// Transient status failures are reported as progress and
			// retried until the attempt budget runs out.
			progress(-1, "status check failed: "+err.Error())
			continue
		}
		progress(status.Progress, status.Message)

		switch strings.ToLower(status.Status) {
		case "completed", "succeeded", "done":
			return &live.TaskResult{DownloadRef: status.DownloadURL, Inline: status.Inline}, nil
		case "failed", "cancelled":
			reason := status.Error
			if reason == "" {
				reason = status.Message
			}
			if reason == "" {
				reason = status.Status
			}
			return nil, fmt.Errorf("generation %q failed: %s", call.Name, reason)
		}
	}
	return nil, fmt.Errorf("generation %q did not finish after %d checks", call.Name, c.cfg.MaxAttempts)
}
