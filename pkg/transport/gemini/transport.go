// Package gemini implements the live transport against the Gemini
// Live API using the official genai SDK.
package gemini

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"google.golang.org/genai"

	"github.com/vango-go/vai-agent/pkg/core/types"
	"github.com/vango-go/vai-agent/pkg/live"
)

// Config configures the Gemini transport.
type Config struct {
	// APIKey authenticates against the Gemini API. Required.
	APIKey string

	// EventBuffer sizes the inbound event channel. Defaults to 64.
	EventBuffer int

	Logger *slog.Logger
}

// Transport speaks the Gemini Live bidirectional protocol. One
// Transport serves one session; create a new one per Connect.
type Transport struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	session *genai.Session

	events    chan live.TransportEvent
	closing   atomic.Bool
	closeOnce sync.Once
	done      chan struct{}
}

// New builds an unopened transport.
func New(cfg Config) *Transport {
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 64
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Transport{
		cfg:    cfg,
		logger: logger,
		events: make(chan live.TransportEvent, cfg.EventBuffer),
		done:   make(chan struct{}),
	}
}

func (t *Transport) Open(ctx context.Context, cfg live.SessionConfig) error {
	if t.cfg.APIKey == "" {
		return fmt.Errorf("gemini transport: API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  t.cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return fmt.Errorf("create gemini client: %w", err)
	}

	connectCfg := &genai.LiveConnectConfig{
		ResponseModalities:       []genai.Modality{genai.ModalityAudio},
		InputAudioTranscription:  &genai.AudioTranscriptionConfig{},
		OutputAudioTranscription: &genai.AudioTranscriptionConfig{},
		Tools:                    toGenaiTools(cfg.Tools),
	}
	if cfg.SystemInstruction != "" {
		connectCfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: cfg.SystemInstruction}},
		}
	}
	if cfg.Voice != "" {
		connectCfg.SpeechConfig = &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: cfg.Voice},
			},
		}
	}

	session, err := client.Live.Connect(ctx, cfg.Model, connectCfg)
	if err != nil {
		return fmt.Errorf("connect live session: %w", err)
	}

	t.mu.Lock()
	t.session = session
	t.mu.Unlock()

	go t.readLoop(session)
	return nil
}

// readLoop drains the server stream and translates frames into
// transport events. It owns the events channel and closes it after
// the terminal ClosedEvent.
func (t *Transport) readLoop(session *genai.Session) {
	defer close(t.events)
	for {
		msg, err := session.Receive()
		if err != nil {
			if t.closing.Load() {
				t.events <- live.ClosedEvent{}
			} else {
				t.events <- live.ClosedEvent{Err: fmt.Errorf("live stream: %w", err)}
			}
			return
		}
		t.translate(msg)
	}
}

func (t *Transport) translate(msg *genai.LiveServerMessage) {
	if msg == nil {
		return
	}
	if sc := msg.ServerContent; sc != nil {
		if tr := sc.InputTranscription; tr != nil && (tr.Text != "" || tr.Finished) {
			t.emit(live.InputTranscriptEvent{Text: tr.Text, Final: tr.Finished})
		}
		if tr := sc.OutputTranscription; tr != nil && (tr.Text != "" || tr.Finished) {
			t.emit(live.OutputTranscriptEvent{Text: tr.Text, Final: tr.Finished})
		}
		if sc.ModelTurn != nil {
			citations := toCitations(sc.GroundingMetadata)
			for _, part := range sc.ModelTurn.Parts {
				if part == nil {
					continue
				}
				if part.InlineData != nil && len(part.InlineData.Data) > 0 {
					t.emit(live.AudioChunkEvent{Data: part.InlineData.Data})
				}
				if part.Text != "" {
					t.emit(live.ContentEvent{Text: part.Text, Citations: citations})
					citations = nil
				}
			}
		}
		// Interrupted must be observed before TurnComplete so stale
		// playback is flushed before the turn is sealed.
		if sc.Interrupted {
			t.emit(live.InterruptedEvent{})
		}
		if sc.TurnComplete {
			t.emit(live.TurnCompleteEvent{})
		}
	}
	if tc := msg.ToolCall; tc != nil && len(tc.FunctionCalls) > 0 {
		calls := make([]types.ToolCallRequest, 0, len(tc.FunctionCalls))
		for _, fc := range tc.FunctionCalls {
			if fc == nil {
				continue
			}
			id := fc.ID
			if id == "" {
				id = fc.Name
			}
			calls = append(calls, types.ToolCallRequest{ID: id, Name: fc.Name, Args: fc.Args})
		}
		if len(calls) > 0 {
			t.emit(live.ToolCallEvent{Calls: calls})
		}
	}
}

// emit delivers one event to the consumer. Audio chunks may be
// dropped when the buffer is full; every other event must not be
// lost, so those block until the consumer catches up or the
// transport closes.
func (t *Transport) emit(event live.TransportEvent) {
	if _, ok := event.(live.AudioChunkEvent); ok {
		select {
		case t.events <- event:
		default:
			t.logger.Warn("gemini transport: event buffer full, dropping audio chunk")
		}
		return
	}
	select {
	case t.events <- event:
	case <-t.done:
	}
}

func (t *Transport) SendRealtimeChunk(mime string, data []byte) error {
	session, err := t.currentSession()
	if err != nil {
		return err
	}
	return session.SendRealtimeInput(genai.LiveRealtimeInput{
		Media: &genai.Blob{MIMEType: mime, Data: data},
	})
}

func (t *Transport) SendContent(parts []live.ContentPart) error {
	session, err := t.currentSession()
	if err != nil {
		return err
	}
	content := &genai.Content{Role: genai.RoleUser}
	for _, part := range parts {
		if part.Text != "" {
			content.Parts = append(content.Parts, &genai.Part{Text: part.Text})
		}
		if att := part.Attachment; att != nil && att.Ref != "" {
			content.Parts = append(content.Parts, &genai.Part{
				FileData: &genai.FileData{MIMEType: att.MIMEType, FileURI: att.Ref},
			})
		}
	}
	if len(content.Parts) == 0 {
		return nil
	}
	return session.SendClientContent(genai.LiveClientContentInput{
		Turns:        []*genai.Content{content},
		TurnComplete: genai.Ptr(true),
	})
}

func (t *Transport) SendToolResults(results []types.ToolCallResult) error {
	session, err := t.currentSession()
	if err != nil {
		return err
	}
	responses := make([]*genai.FunctionResponse, 0, len(results))
	for _, res := range results {
		payload := res.Output
		if res.Error != nil {
			payload = map[string]any{
				"error": map[string]any{
					"code":    res.Error.Code,
					"message": res.Error.Message,
				},
			}
		}
		if payload == nil {
			payload = map[string]any{}
		}
		responses = append(responses, &genai.FunctionResponse{
			ID:       res.ID,
			Name:     res.Name,
			Response: payload,
		})
	}
	return session.SendToolResponse(genai.LiveToolResponseInput{FunctionResponses: responses})
}

func (t *Transport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		t.closing.Store(true)
		close(t.done)
		t.mu.Lock()
		session := t.session
		t.mu.Unlock()
		if session != nil {
			err = session.Close()
		}
	})
	return err
}

func (t *Transport) Events() <-chan live.TransportEvent {
	return t.events
}

func (t *Transport) currentSession() (*genai.Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.session == nil {
		return nil, fmt.Errorf("gemini transport: session is not open")
	}
	return t.session, nil
}

func toGenaiTools(decls []types.ToolDeclaration) []*genai.Tool {
	if len(decls) == 0 {
		return nil
	}
	fns := make([]*genai.FunctionDeclaration, 0, len(decls))
	for _, decl := range decls {
		fns = append(fns, &genai.FunctionDeclaration{
			Name:        decl.Name,
			Description: decl.Description,
			Parameters:  toGenaiSchema(decl.Parameters),
		})
	}
	return []*genai.Tool{{FunctionDeclarations: fns}}
}

func toGenaiSchema(schema *types.JSONSchema) *genai.Schema {
	if schema == nil {
		return nil
	}
	out := &genai.Schema{
		Type:        genaiType(schema.Type),
		Description: schema.Description,
		Required:    schema.Required,
		Enum:        schema.Enum,
		Items:       toGenaiSchema(schema.Items),
	}
	if len(schema.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(schema.Properties))
		for name, prop := range schema.Properties {
			out.Properties[name] = toGenaiSchema(prop)
		}
	}
	return out
}

func genaiType(t string) genai.Type {
	switch t {
	case "object":
		return genai.TypeObject
	case "array":
		return genai.TypeArray
	case "string":
		return genai.TypeString
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	default:
		return genai.TypeUnspecified
	}
}

func toCitations(md *genai.GroundingMetadata) []types.Citation {
	if md == nil || len(md.GroundingChunks) == 0 {
		return nil
	}
	citations := make([]types.Citation, 0, len(md.GroundingChunks))
	for _, chunk := range md.GroundingChunks {
		if chunk == nil || chunk.Web == nil || chunk.Web.URI == "" {
			continue
		}
		citations = append(citations, types.Citation{Title: chunk.Web.Title, URI: chunk.Web.URI})
	}
	if len(citations) == 0 {
		return nil
	}
	return citations
}
