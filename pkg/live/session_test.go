package live

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vango-go/vai-agent/pkg/core/types"
)

type fakeTransport struct {
	mu       sync.Mutex
	opened   bool
	closed   bool
	sent     [][]byte
	mimes    []string
	contents [][]ContentPart
	results  [][]types.ToolCallResult

	events    chan TransportEvent
	closeOnce sync.Once
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{events: make(chan TransportEvent, 64)}
}

func (f *fakeTransport) Open(ctx context.Context, cfg SessionConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opened = true
	return nil
}

func (f *fakeTransport) SendRealtimeChunk(mime string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errors.New("transport closed")
	}
	f.mimes = append(f.mimes, mime)
	f.sent = append(f.sent, append([]byte(nil), data...))
	return nil
}

func (f *fakeTransport) SendContent(parts []ContentPart) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.contents = append(f.contents, parts)
	return nil
}

func (f *fakeTransport) SendToolResults(results []types.ToolCallResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results = append(f.results, results)
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	f.shutdown(nil)
	return nil
}

func (f *fakeTransport) Events() <-chan TransportEvent { return f.events }

func (f *fakeTransport) emit(ev TransportEvent) { f.events <- ev }

// fail simulates the backend dropping the stream.
func (f *fakeTransport) fail(err error) { f.shutdown(err) }

func (f *fakeTransport) shutdown(err error) {
	f.closeOnce.Do(func() {
		f.events <- ClosedEvent{Err: err}
		close(f.events)
	})
}

func (f *fakeTransport) sentChunks() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.sent))
	copy(out, f.sent)
	return out
}

func (f *fakeTransport) sentResults() [][]types.ToolCallResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]types.ToolCallResult, len(f.results))
	copy(out, f.results)
	return out
}

type fakeCapture struct {
	mu      sync.Mutex
	ch      chan []byte
	started int
	stopped int
}

func (f *fakeCapture) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ch = make(chan []byte, 16)
	f.started++
	return nil
}

func (f *fakeCapture) Chunks() <-chan []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ch
}

func (f *fakeCapture) Level() float64 { return 0 }

func (f *fakeCapture) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ch != nil {
		close(f.ch)
		f.ch = nil
	}
	f.stopped++
}

func (f *fakeCapture) push(data []byte) {
	f.mu.Lock()
	ch := f.ch
	f.mu.Unlock()
	if ch != nil {
		ch <- data
	}
}

type fakePlayback struct {
	mu  sync.Mutex
	log []string
}

func (f *fakePlayback) Enqueue(pcm []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.log = append(f.log, "enqueue:"+string(pcm))
}

func (f *fakePlayback) Flush() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.log = append(f.log, "flush")
}

func (f *fakePlayback) Level() float64 { return 0 }
func (f *fakePlayback) Close()         {}

func (f *fakePlayback) events() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.log...)
}

type orchestratorFixture struct {
	orch      *Orchestrator
	transport *fakeTransport
	capture   *fakeCapture
	playback  *fakePlayback
}

func newOrchestratorFixture(t *testing.T, mod func(*Dependencies)) *orchestratorFixture {
	t.Helper()
	fx := &orchestratorFixture{
		transport: newFakeTransport(),
		capture:   &fakeCapture{},
		playback:  &fakePlayback{},
	}
	deps := Dependencies{
		NewTransport: func() Transport { return fx.transport },
		Capture:      fx.capture,
		Playback:     fx.playback,
		Config:       Config{DisableChimes: true},
	}
	if mod != nil {
		mod(&deps)
	}
	orch, err := New(deps)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	fx.orch = orch
	return fx
}

func (fx *orchestratorFixture) connect(t *testing.T) {
	t.Helper()
	err := fx.orch.Connect(context.Background(), SessionConfig{Model: "test-model"})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
}

func TestConnectDisconnectLifecycle(t *testing.T) {
	fx := newOrchestratorFixture(t, nil)

	if fx.orch.State() != StateIdle {
		t.Fatalf("got initial state %s, want idle", fx.orch.State())
	}
	fx.connect(t)
	if !fx.orch.IsConnected() {
		t.Fatalf("got state %s, want connected", fx.orch.State())
	}
	if fx.capture.started != 1 {
		t.Fatalf("capture started %d times, want 1", fx.capture.started)
	}

	fx.orch.Disconnect()
	if fx.orch.State() != StateIdle {
		t.Fatalf("got state %s after disconnect, want idle", fx.orch.State())
	}
	if fx.orch.LastErr() != nil {
		t.Fatalf("clean disconnect left error: %v", fx.orch.LastErr())
	}
	if !fx.transport.closed {
		t.Fatal("transport not closed")
	}
	if fx.capture.stopped != 1 {
		t.Fatalf("capture stopped %d times, want 1", fx.capture.stopped)
	}
}

func TestDisconnectIsIdempotent(t *testing.T) {
	fx := newOrchestratorFixture(t, nil)
	fx.connect(t)
	fx.orch.Disconnect()
	fx.orch.Disconnect()
	fx.orch.Disconnect()
	if fx.capture.stopped != 1 {
		t.Fatalf("capture stopped %d times, want 1", fx.capture.stopped)
	}
}

func TestCapturedAudioIsForwarded(t *testing.T) {
	fx := newOrchestratorFixture(t, nil)
	fx.connect(t)
	defer fx.orch.Disconnect()

	fx.capture.push([]byte("chunk-a"))
	fx.capture.push([]byte("chunk-b"))

	waitFor(t, func() bool { return len(fx.transport.sentChunks()) >= 2 }, "chunks forwarded")
	chunks := fx.transport.sentChunks()
	if !bytes.Equal(chunks[0], []byte("chunk-a")) || !bytes.Equal(chunks[1], []byte("chunk-b")) {
		t.Fatalf("chunks arrived out of order: %q, %q", chunks[0], chunks[1])
	}
}

func TestInterruptFlushesBeforeLaterAudio(t *testing.T) {
	fx := newOrchestratorFixture(t, nil)
	fx.connect(t)
	defer fx.orch.Disconnect()

	fx.transport.emit(AudioChunkEvent{Data: []byte("stale")})
	fx.transport.emit(InterruptedEvent{})
	fx.transport.emit(AudioChunkEvent{Data: []byte("fresh")})

	waitFor(t, func() bool { return len(fx.playback.events()) >= 3 }, "playback activity")
	got := fx.playback.events()
	want := []string{"enqueue:stale", "flush", "enqueue:fresh"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("playback order: got %v, want %v", got, want)
		}
	}
}

func TestTranscriptsAssembleIntoTurns(t *testing.T) {
	fx := newOrchestratorFixture(t, nil)
	fx.connect(t)
	defer fx.orch.Disconnect()

	fx.transport.emit(InputTranscriptEvent{Text: "what is the "})
	fx.transport.emit(InputTranscriptEvent{Text: "weather", Final: true})
	fx.transport.emit(OutputTranscriptEvent{Text: "It is "})
	fx.transport.emit(OutputTranscriptEvent{Text: "sunny."})
	fx.transport.emit(TurnCompleteEvent{})

	waitFor(t, func() bool {
		turns := fx.orch.Turns()
		return len(turns) == 2 && turns[1].Final
	}, "assembled turns")

	turns := fx.orch.Turns()
	if turns[0].Role != types.RoleUser || turns[0].Text != "what is the weather" {
		t.Fatalf("user turn: %+v", turns[0])
	}
	if turns[1].Role != types.RoleAgent || turns[1].Text != "It is sunny." {
		t.Fatalf("agent turn: %+v", turns[1])
	}
}

func TestToolCallEventRoundTripsThroughDispatcher(t *testing.T) {
	native := &fakeNative{}
	fx := newOrchestratorFixture(t, func(deps *Dependencies) {
		deps.Native = native
		deps.Routes = Routes{Native: []string{"current_time"}}
	})
	fx.connect(t)
	defer fx.orch.Disconnect()

	fx.transport.emit(ToolCallEvent{Calls: []types.ToolCallRequest{
		{ID: "id1", Name: "current_time"},
	}})

	waitFor(t, func() bool { return len(fx.transport.sentResults()) == 1 }, "tool result batch")
	batches := fx.transport.sentResults()
	if len(batches[0]) != 1 || batches[0][0].ID != "id1" || batches[0][0].Error != nil {
		t.Fatalf("got batch %+v", batches[0])
	}
}

func TestSendTextRecordsFinalUserTurn(t *testing.T) {
	fx := newOrchestratorFixture(t, nil)
	fx.connect(t)
	defer fx.orch.Disconnect()

	if err := fx.orch.SendText("hello there"); err != nil {
		t.Fatalf("SendText: %v", err)
	}
	turns := fx.orch.Turns()
	if len(turns) != 1 || !turns[0].Final || turns[0].Text != "hello there" {
		t.Fatalf("got turns %+v", turns)
	}
	if len(fx.transport.contents) != 1 {
		t.Fatalf("transport got %d content messages, want 1", len(fx.transport.contents))
	}
}

func TestSendTextWhileIdleFails(t *testing.T) {
	fx := newOrchestratorFixture(t, nil)
	if err := fx.orch.SendText("hello"); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("got %v, want ErrNotConnected", err)
	}
}

func TestTransportFailureTearsDownAndRecordsError(t *testing.T) {
	fx := newOrchestratorFixture(t, nil)
	fx.connect(t)

	streamErr := errors.New("connection reset")
	fx.transport.fail(streamErr)

	waitFor(t, func() bool { return fx.orch.State() == StateIdle }, "teardown after failure")
	lastErr := fx.orch.LastErr()
	if lastErr == nil || !errors.Is(lastErr, streamErr) {
		t.Fatalf("got last error %v, want wrapped %v", lastErr, streamErr)
	}
	var transportErr *TransportError
	if !errors.As(lastErr, &transportErr) {
		t.Fatalf("got %T, want *TransportError", lastErr)
	}
}

func TestLedgerSurvivesReconnect(t *testing.T) {
	fx := newOrchestratorFixture(t, nil)
	fx.connect(t)
	fx.transport.emit(InputTranscriptEvent{Text: "remember me", Final: true})
	waitFor(t, func() bool { return len(fx.orch.Turns()) == 1 }, "first turn")
	fx.orch.Disconnect()

	fx.transport = newFakeTransport()
	fx.connect(t)
	defer fx.orch.Disconnect()

	if got := len(fx.orch.Turns()); got != 1 {
		t.Fatalf("ledger lost across sessions: got %d turns, want 1", got)
	}
}

func TestKeepAliveSendsSilenceWhenIdle(t *testing.T) {
	fx := newOrchestratorFixture(t, func(deps *Dependencies) {
		deps.Config = Config{
			DisableChimes:     true,
			KeepAliveInterval: 20 * time.Millisecond,
			SilentFrameBytes:  64,
		}
	})
	fx.connect(t)
	defer fx.orch.Disconnect()

	waitFor(t, func() bool { return len(fx.transport.sentChunks()) >= 1 }, "keep-alive frame")
	chunks := fx.transport.sentChunks()
	if len(chunks[0]) != 64 {
		t.Fatalf("got frame of %d bytes, want 64", len(chunks[0]))
	}
	for _, b := range chunks[0] {
		if b != 0 {
			t.Fatal("keep-alive frame is not silent")
		}
	}
}

func TestConnectReplacesPreviousSession(t *testing.T) {
	fx := newOrchestratorFixture(t, nil)
	fx.connect(t)
	first := fx.transport

	fx.transport = newFakeTransport()
	fx.connect(t)
	defer fx.orch.Disconnect()

	if !first.closed {
		t.Fatal("previous transport not closed on reconnect")
	}
	if fx.capture.started != 2 {
		t.Fatalf("capture started %d times, want 2", fx.capture.started)
	}
}

func TestLivenessPulseTogglesWhileConnected(t *testing.T) {
	var mu sync.Mutex
	pulses := 0
	fx := newOrchestratorFixture(t, func(deps *Dependencies) {
		deps.Config = Config{
			DisableChimes:     true,
			KeepAliveInterval: 10 * time.Millisecond,
		}
		deps.LivenessPulse = func(on bool) {
			mu.Lock()
			pulses++
			mu.Unlock()
		}
	})
	fx.connect(t)
	defer fx.orch.Disconnect()

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return pulses >= 2
	}, "liveness pulses")
}
