// Command voice-agent runs a live voice conversation from the
// terminal: microphone in, model speech out, with tool calls routed
// through the local dispatcher.
//
// Usage:
//
//	go run ./cmd/voice-agent
//
// Environment variables:
//
//	GEMINI_API_KEY     - required unless -gateway is set
//	AGENT_GATEWAY_URL  - websocket gateway endpoint (enables -gateway)
//	AGENT_GATEWAY_KEY  - bearer token for the gateway
//	ACTIONS_URL        - remote action endpoint for default tools
//	ACTIONS_KEY        - bearer token for the action endpoint
//
// Controls:
//
//	/t <text>     send a typed message
//	/yes, /no     resolve the pending confirmation
//	/tasks        list background tasks
//	/dismiss <id> remove a finished background task
//	/turns        dump the conversation ledger
//	q             quit
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/vango-go/vai-agent/pkg/audio"
	"github.com/vango-go/vai-agent/pkg/core/types"
	"github.com/vango-go/vai-agent/pkg/live"
	"github.com/vango-go/vai-agent/pkg/tools"
	"github.com/vango-go/vai-agent/pkg/transport/gemini"
	"github.com/vango-go/vai-agent/pkg/transport/wslive"
)

const (
	captureSampleRate  = 16000
	playbackSampleRate = 24000
)

func main() {
	_ = godotenv.Load()

	var (
		model       = flag.String("model", "gemini-2.0-flash-live-001", "live model to connect to")
		voice       = flag.String("voice", "Puck", "prebuilt voice name")
		system      = flag.String("system", defaultSystemPrompt, "system instruction")
		useGateway  = flag.Bool("gateway", os.Getenv("AGENT_GATEWAY_URL") != "", "connect through the websocket gateway instead of Gemini directly")
		admin       = flag.Bool("admin", false, "allow restricted tools")
		metricsAddr = flag.String("metrics", "", "serve Prometheus metrics on this address (e.g. :9090)")
		maxDuration = flag.Duration("max-duration", 0, "end the session after this long (0 = unbounded)")
		logLevel    = flag.String("log-level", "info", "debug, info, warn or error")
	)
	flag.Parse()

	logger := newLogger(*logLevel)

	if !*useGateway && os.Getenv("GEMINI_API_KEY") == "" {
		logger.Error("GEMINI_API_KEY is required (or set AGENT_GATEWAY_URL)")
		os.Exit(1)
	}

	deps, metrics, err := buildDependencies(logger, *useGateway, *admin, *maxDuration)
	if err != nil {
		logger.Error("setup failed", "error", err)
		os.Exit(1)
	}

	orch, err := live.New(deps)
	if err != nil {
		logger.Error("create orchestrator", "error", err)
		os.Exit(1)
	}

	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				logger.Warn("metrics listener stopped", "error", err)
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nshutting down")
		orch.Disconnect()
		cancel()
		os.Exit(0)
	}()

	sessionCfg := live.SessionConfig{
		Model:             *model,
		Voice:             *voice,
		SystemInstruction: *system,
		Tools:             sessionTools(deps),
	}
	if err := orch.Connect(ctx, sessionCfg); err != nil {
		logger.Error("connect failed", "error", err)
		os.Exit(1)
	}
	fmt.Printf("connected to %s. Speak, or type /t <text>. q quits.\n", *model)

	runREPL(ctx, orch, logger)
	orch.Disconnect()
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
	return logger
}

const defaultSystemPrompt = "You are a helpful voice assistant. Keep replies short and " +
	"conversational; a single word is fine when it answers the question. Use your tools " +
	"when the user asks for actions or current information."

func buildDependencies(logger *slog.Logger, useGateway, admin bool, maxDuration time.Duration) (live.Dependencies, *live.Metrics, error) {
	metrics := live.NewMetrics("voice_agent")

	mic := audio.NewMicCapture(audio.CaptureConfig{SampleRate: captureSampleRate})
	speaker, err := audio.NewSpeaker(audio.PlaybackConfig{SampleRate: playbackSampleRate})
	if err != nil {
		return live.Dependencies{}, nil, fmt.Errorf("open speaker: %w", err)
	}

	var newTransport func() live.Transport
	if useGateway {
		url := os.Getenv("AGENT_GATEWAY_URL")
		key := os.Getenv("AGENT_GATEWAY_KEY")
		newTransport = func() live.Transport {
			return wslive.New(wslive.Config{URL: url, APIKey: key, Logger: logger})
		}
	} else {
		key := os.Getenv("GEMINI_API_KEY")
		newTransport = func() live.Transport {
			return gemini.New(gemini.Config{APIKey: key, Logger: logger})
		}
	}

	native := tools.NewRegistry(
		tools.Func{
			ToolName: "current_time",
			Decl: types.ToolDeclaration{
				Name:        "current_time",
				Description: "Returns the current local date and time.",
			},
			Fn: func(ctx context.Context, args map[string]any) (map[string]any, error) {
				now := time.Now()
				return map[string]any{
					"iso":   now.Format(time.RFC3339),
					"human": now.Format("Monday, January 2, 2006 at 3:04 PM"),
				}, nil
			},
		},
	)

	deps := live.Dependencies{
		NewTransport:    newTransport,
		Capture:         mic,
		Playback:        speaker,
		Native:          native,
		Admin:           admin,
		ConnectChime:    audio.ConnectChime(playbackSampleRate),
		DisconnectChime: audio.DisconnectChime(playbackSampleRate),
		Logger:          logger,
		Metrics:         metrics,
		Routes: live.Routes{
			Restricted: []string{"delete_account", "billing_admin"},
			Sensitive:  []string{"send_email", "delete_file", "post_message"},
			Native:     native.Names(),
			Background: []string{"generate_video", "generate_presentation", "generate_image"},
		},
		Config: live.Config{MaxSessionDuration: maxDuration},
	}

	if actionsURL := os.Getenv("ACTIONS_URL"); actionsURL != "" {
		remote, err := tools.NewRemoteClient(tools.RemoteConfig{
			BaseURL:      actionsURL,
			APIKey:       os.Getenv("ACTIONS_KEY"),
			ContextTools: []string{"save_memory", "summarize_conversation"},
		})
		if err != nil {
			return live.Dependencies{}, nil, err
		}
		deps.Remote = remote

		background, err := tools.NewGenerateClient(tools.GenerateConfig{
			BaseURL: actionsURL,
			APIKey:  os.Getenv("ACTIONS_KEY"),
		})
		if err != nil {
			return live.Dependencies{}, nil, err
		}
		deps.Background = background
	}

	return deps, metrics, nil
}

// sessionTools declares the callable surface advertised to the model.
// Remote tools are declared loosely; the action endpoint validates
// arguments itself.
func sessionTools(deps live.Dependencies) []types.ToolDeclaration {
	decls := []types.ToolDeclaration{}
	if reg, ok := deps.Native.(*tools.Registry); ok {
		decls = append(decls, reg.Declarations()...)
	}
	if deps.Remote != nil {
		decls = append(decls,
			types.ToolDeclaration{
				Name:        "send_email",
				Description: "Sends an email on the user's behalf. Requires confirmation.",
				Parameters: &types.JSONSchema{
					Type: "object",
					Properties: map[string]*types.JSONSchema{
						"to":      {Type: "string"},
						"subject": {Type: "string"},
						"body":    {Type: "string"},
					},
					Required: []string{"to", "body"},
				},
			},
			types.ToolDeclaration{
				Name:        "save_memory",
				Description: "Stores a fact about the user for later conversations.",
				Parameters: &types.JSONSchema{
					Type: "object",
					Properties: map[string]*types.JSONSchema{
						"fact": {Type: "string"},
					},
					Required: []string{"fact"},
				},
			},
		)
	}
	if deps.Background != nil {
		decls = append(decls, types.ToolDeclaration{
			Name:        "generate_video",
			Description: "Generates a short video in the background. Returns a task id immediately.",
			Parameters: &types.JSONSchema{
				Type: "object",
				Properties: map[string]*types.JSONSchema{
					"prompt": {Type: "string"},
				},
				Required: []string{"prompt"},
			},
		})
	}
	return decls
}

func runREPL(ctx context.Context, orch *live.Orchestrator, logger *slog.Logger) {
	scanner := bufio.NewScanner(os.Stdin)
	for {
		if ctx.Err() != nil {
			return
		}
		if pending := orch.PendingConfirmation(); pending != nil {
			fmt.Printf("confirm %s(%v)? [/yes or /no]\n", pending.Tool, pending.Args)
		}
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch {
		case line == "q" || line == "/quit":
			return
		case line == "/yes":
			if pending := orch.PendingConfirmation(); pending != nil {
				pending.Approve()
			} else {
				fmt.Println("nothing to confirm")
			}
		case line == "/no":
			if pending := orch.PendingConfirmation(); pending != nil {
				pending.Deny()
			} else {
				fmt.Println("nothing to confirm")
			}
		case line == "/tasks":
			printTasks(orch.Tasks())
		case strings.HasPrefix(line, "/dismiss "):
			id := strings.TrimSpace(strings.TrimPrefix(line, "/dismiss "))
			if orch.Tracker().Remove(id) {
				fmt.Println("dismissed")
			} else {
				fmt.Println("task not found or still running")
			}
		case line == "/turns":
			printTurns(orch.Turns())
		case strings.HasPrefix(line, "/t "):
			text := strings.TrimSpace(strings.TrimPrefix(line, "/t "))
			if err := orch.SendText(text); err != nil {
				logger.Warn("send text", "error", err)
			}
		default:
			fmt.Println("commands: /t <text>, /yes, /no, /tasks, /dismiss <id>, /turns, q")
		}
	}
}

func printTasks(tasks []live.BackgroundTask) {
	if len(tasks) == 0 {
		fmt.Println("no background tasks")
		return
	}
	for _, task := range tasks {
		fmt.Printf("%s  %-22s %-10s %3d%%  %s\n", task.ID, task.Tool, task.Status, task.Progress, task.Message)
	}
}

func printTurns(turns []types.Turn) {
	for _, turn := range turns {
		marker := " "
		if !turn.Final {
			marker = "*"
		}
		fmt.Printf("[%s]%s %s\n", turn.Role, marker, turn.Text)
		for _, cit := range turn.Citations {
			fmt.Printf("      source: %s (%s)\n", cit.Title, cit.URI)
		}
	}
}
