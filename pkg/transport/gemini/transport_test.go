package gemini

import (
	"testing"
	"time"

	"google.golang.org/genai"

	"github.com/vango-go/vai-agent/pkg/core/types"
	"github.com/vango-go/vai-agent/pkg/live"
)

func drain(tr *Transport) []live.TransportEvent {
	var out []live.TransportEvent
	for {
		select {
		case ev := <-tr.events:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestTranslateServerContent(t *testing.T) {
	tr := New(Config{})
	tr.translate(&genai.LiveServerMessage{
		ServerContent: &genai.LiveServerContent{
			InputTranscription:  &genai.Transcription{Text: "hello", Finished: true},
			OutputTranscription: &genai.Transcription{Text: "hi "},
			ModelTurn: &genai.Content{
				Parts: []*genai.Part{
					{InlineData: &genai.Blob{Data: []byte{1, 2}}},
				},
			},
			TurnComplete: true,
		},
	})

	events := drain(tr)
	if len(events) != 4 {
		t.Fatalf("got %d events %+v, want 4", len(events), events)
	}
	if ev, ok := events[0].(live.InputTranscriptEvent); !ok || ev.Text != "hello" || !ev.Final {
		t.Fatalf("got %+v, want final input transcript", events[0])
	}
	if ev, ok := events[1].(live.OutputTranscriptEvent); !ok || ev.Text != "hi " {
		t.Fatalf("got %+v, want output transcript", events[1])
	}
	if ev, ok := events[2].(live.AudioChunkEvent); !ok || len(ev.Data) != 2 {
		t.Fatalf("got %+v, want audio chunk", events[2])
	}
	if _, ok := events[3].(live.TurnCompleteEvent); !ok {
		t.Fatalf("got %+v, want turn complete", events[3])
	}
}

func TestTranslateEmitsInterruptedBeforeTurnComplete(t *testing.T) {
	tr := New(Config{})
	tr.translate(&genai.LiveServerMessage{
		ServerContent: &genai.LiveServerContent{
			Interrupted:  true,
			TurnComplete: true,
		},
	})

	events := drain(tr)
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if _, ok := events[0].(live.InterruptedEvent); !ok {
		t.Fatalf("got %+v first, want interrupted", events[0])
	}
	if _, ok := events[1].(live.TurnCompleteEvent); !ok {
		t.Fatalf("got %+v second, want turn complete", events[1])
	}
}

func TestTranslateToolCallFallsBackToNameAsID(t *testing.T) {
	tr := New(Config{})
	tr.translate(&genai.LiveServerMessage{
		ToolCall: &genai.LiveServerToolCall{
			FunctionCalls: []*genai.FunctionCall{
				{ID: "c1", Name: "lookup", Args: map[string]any{"q": "x"}},
				{Name: "no_id_tool"},
			},
		},
	})

	events := drain(tr)
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	ev, ok := events[0].(live.ToolCallEvent)
	if !ok || len(ev.Calls) != 2 {
		t.Fatalf("got %+v, want tool call event with 2 calls", events[0])
	}
	if ev.Calls[0].ID != "c1" || ev.Calls[1].ID != "no_id_tool" {
		t.Fatalf("got ids %s, %s", ev.Calls[0].ID, ev.Calls[1].ID)
	}
}

func TestTranslateAttachesGroundingCitations(t *testing.T) {
	tr := New(Config{})
	tr.translate(&genai.LiveServerMessage{
		ServerContent: &genai.LiveServerContent{
			ModelTurn: &genai.Content{
				Parts: []*genai.Part{{Text: "according to the docs"}},
			},
			GroundingMetadata: &genai.GroundingMetadata{
				GroundingChunks: []*genai.GroundingChunk{
					{Web: &genai.GroundingChunkWeb{URI: "https://a.example", Title: "A"}},
					{Web: &genai.GroundingChunkWeb{}},
				},
			},
		},
	})

	events := drain(tr)
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	ev := events[0].(live.ContentEvent)
	if len(ev.Citations) != 1 || ev.Citations[0].URI != "https://a.example" {
		t.Fatalf("got citations %+v", ev.Citations)
	}
}

func TestToGenaiSchema(t *testing.T) {
	schema := toGenaiSchema(&types.JSONSchema{
		Type: "object",
		Properties: map[string]*types.JSONSchema{
			"city":  {Type: "string", Description: "city name"},
			"count": {Type: "integer"},
			"tags":  {Type: "array", Items: &types.JSONSchema{Type: "string"}},
		},
		Required: []string{"city"},
	})

	if schema.Type != genai.TypeObject {
		t.Fatalf("got type %v, want object", schema.Type)
	}
	if schema.Properties["city"].Type != genai.TypeString {
		t.Fatalf("got city type %v", schema.Properties["city"].Type)
	}
	if schema.Properties["tags"].Items.Type != genai.TypeString {
		t.Fatalf("got items type %v", schema.Properties["tags"].Items.Type)
	}
	if len(schema.Required) != 1 || schema.Required[0] != "city" {
		t.Fatalf("got required %v", schema.Required)
	}
	if toGenaiSchema(nil) != nil {
		t.Fatal("nil schema should map to nil")
	}
}

func TestSendBeforeOpenFails(t *testing.T) {
	tr := New(Config{})
	if err := tr.SendRealtimeChunk("audio/pcm", []byte{1}); err == nil {
		t.Fatal("expected error before Open")
	}
	if err := tr.SendToolResults(nil); err == nil {
		t.Fatal("expected error before Open")
	}
}

func TestFullBufferDropsOnlyAudio(t *testing.T) {
	tr := New(Config{EventBuffer: 1})

	tr.emit(live.AudioChunkEvent{Data: []byte{1}})
	// The buffer is full now; this chunk is dropped.
	tr.emit(live.AudioChunkEvent{Data: []byte{2}})

	delivered := make(chan struct{})
	go func() {
		tr.emit(live.ToolCallEvent{Calls: []types.ToolCallRequest{{ID: "c1", Name: "current_time"}}})
		close(delivered)
	}()

	select {
	case ev := <-tr.events:
		chunk, ok := ev.(live.AudioChunkEvent)
		if !ok || chunk.Data[0] != 1 {
			t.Fatalf("got %T %+v, want the first audio chunk", ev, ev)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out draining first event")
	}

	select {
	case ev := <-tr.events:
		if _, ok := ev.(live.ToolCallEvent); !ok {
			t.Fatalf("got %T, want the tool call event", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("tool call event was lost")
	}
	select {
	case <-delivered:
	case <-time.After(time.Second):
		t.Fatal("emit did not return after delivery")
	}
}
