package live

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/vango-go/vai-agent/pkg/core/types"
)

// State is the session lifecycle state.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateDisconnecting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnecting:
		return "disconnecting"
	default:
		return "unknown"
	}
}

// ErrNotConnected is returned by operations that need a live session.
var ErrNotConnected = errors.New("no session connected")

// Dependencies wires the orchestrator's collaborators. NewTransport,
// Capture and Playback are required.
type Dependencies struct {
	// NewTransport builds a fresh transport for each session.
	NewTransport func() Transport

	Capture  CaptureSource
	Playback PlaybackSink

	// Video enables the low-rate still-frame path when set.
	Video FrameSource

	// Tool routing and execution paths.
	Routes     Routes
	Native     ToolRunner
	Remote     RemoteRunner
	Background BackgroundRunner
	Admin      bool

	// ConnectChime and DisconnectChime are PCM cues queued to the
	// playback sink on session start and end.
	ConnectChime    []byte
	DisconnectChime []byte

	// LivenessPulse drives a host-visible activity indicator while
	// connected.
	LivenessPulse func(on bool)

	Logger  *slog.Logger
	Metrics *Metrics
	Config  Config
}

// Orchestrator owns the lifecycle of one streaming conversation
// session: it multiplexes audio, transcripts and tool traffic in both
// directions, assembles the turn ledger, and dispatches tool calls.
// Exactly one session is live at a time; the turn ledger, task
// tracker and confirmation gate survive across sessions.
type Orchestrator struct {
	newTransport func() Transport
	capture      CaptureSource
	playback     PlaybackSink
	video        FrameSource
	pulse        func(on bool)
	logger       *slog.Logger
	metrics      *Metrics
	cfg          Config

	connectChime    []byte
	disconnectChime []byte

	ledger     *TurnLedger
	tasks      *TaskTracker
	gate       *ConfirmationGate
	dispatcher *Dispatcher

	mu      sync.Mutex
	sess    *session
	lastErr error

	state atomic.Int32
}

// session is the per-connection state torn down as a unit.
type session struct {
	id        string
	transport Transport
	started   time.Time

	ctx    context.Context
	cancel context.CancelFunc

	lastOutbound atomic.Int64
	closing      atomic.Bool

	keepalive *keepAlive
	sampler   *frameSampler
	wg        sync.WaitGroup
}

func New(deps Dependencies) (*Orchestrator, error) {
	if deps.NewTransport == nil {
		return nil, fmt.Errorf("transport factory is required")
	}
	if deps.Capture == nil {
		return nil, fmt.Errorf("capture source is required")
	}
	if deps.Playback == nil {
		return nil, fmt.Errorf("playback sink is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	cfg := deps.Config.withDefaults()

	ledger := NewTurnLedger()
	tasks := NewTaskTracker()
	gate := NewConfirmationGate()

	o := &Orchestrator{
		newTransport:    deps.NewTransport,
		capture:         deps.Capture,
		playback:        deps.Playback,
		video:           deps.Video,
		pulse:           deps.LivenessPulse,
		logger:          deps.Logger,
		metrics:         deps.Metrics,
		cfg:             cfg,
		connectChime:    deps.ConnectChime,
		disconnectChime: deps.DisconnectChime,
		ledger:          ledger,
		tasks:           tasks,
		gate:            gate,
	}
	o.dispatcher = NewDispatcher(DispatcherDeps{
		Routes:     deps.Routes,
		Native:     deps.Native,
		Remote:     deps.Remote,
		Background: deps.Background,
		Gate:       gate,
		Tasks:      tasks,
		Ledger:     ledger,
		Logger:     deps.Logger,
		Metrics:    deps.Metrics,
		Admin:      deps.Admin,
		Config:     cfg,
	})
	return o, nil
}

// Connect opens a new session. Any previous session is torn down
// first; there is never more than one live session. Connect returns
// once the transport is open and the audio paths are running.
func (o *Orchestrator) Connect(ctx context.Context, cfg SessionConfig) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.sess != nil {
		o.teardownLocked(nil)
	}

	o.state.Store(int32(StateConnecting))
	o.lastErr = nil

	if cfg.InputMIME == "" {
		cfg.InputMIME = o.cfg.InputMIME
	}

	transport := o.newTransport()
	if err := transport.Open(ctx, cfg); err != nil {
		o.state.Store(int32(StateIdle))
		o.lastErr = &TransportError{Op: "open", Err: err}
		o.observeSession("failed", 0)
		return o.lastErr
	}

	sessCtx, cancel := context.WithCancel(context.Background())
	sess := &session{
		id:        uuid.NewString(),
		transport: transport,
		started:   time.Now(),
		ctx:       sessCtx,
		cancel:    cancel,
	}
	sess.lastOutbound.Store(sess.started.UnixNano())

	if err := o.capture.Start(); err != nil {
		cancel()
		_ = transport.Close()
		o.state.Store(int32(StateIdle))
		o.lastErr = fmt.Errorf("start capture: %w", err)
		o.observeSession("failed", 0)
		return o.lastErr
	}

	o.sess = sess
	o.state.Store(int32(StateConnected))
	o.logger.Info("session connected", "session", sess.id, "model", cfg.Model)
	if o.metrics != nil {
		o.metrics.SessionsActive.Inc()
	}

	if !o.cfg.DisableChimes && len(o.connectChime) > 0 {
		o.playback.Enqueue(o.connectChime)
	}

	sendRealtime := func(mime string, data []byte) error {
		return o.sendRealtime(sess, mime, data)
	}

	sess.keepalive = newKeepAlive(o.cfg.KeepAliveInterval, o.cfg.SilentFrameBytes, &sess.lastOutbound,
		func(frame []byte) error {
			if err := sendRealtime(cfg.InputMIME, frame); err != nil {
				return err
			}
			if o.metrics != nil {
				o.metrics.KeepAliveFramesTotal.Inc()
			}
			return nil
		},
		o.pulse, o.logger)
	sess.keepalive.start()

	if o.video != nil {
		sess.sampler = newFrameSampler(o.video, o.cfg.VideoFrameInterval, sendRealtime, o.logger, o.metrics)
		sess.sampler.start()
	}

	sess.wg.Add(1)
	go o.capturePump(sess, cfg.InputMIME)

	sess.wg.Add(1)
	go o.finalizeLoop(sess)

	go o.eventLoop(sess)

	if o.cfg.MaxSessionDuration > 0 {
		sess.wg.Add(1)
		go func() {
			defer sess.wg.Done()
			timer := time.NewTimer(o.cfg.MaxSessionDuration)
			defer timer.Stop()
			select {
			case <-sess.ctx.Done():
			case <-timer.C:
				o.logger.Info("session duration cap reached", "session", sess.id)
				o.Disconnect()
			}
		}()
	}

	return nil
}

// Disconnect tears the current session down: transport closed, audio
// capture and playback stopped, keep-alive stopped. Calling it while
// idle is a no-op. In-flight tool executions and background tasks are
// deliberately not cancelled.
func (o *Orchestrator) Disconnect() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.teardownLocked(nil)
}

func (o *Orchestrator) teardownLocked(cause error) {
	sess := o.sess
	if sess == nil {
		return
	}
	sess.closing.Store(true)
	o.state.Store(int32(StateDisconnecting))

	sess.cancel()
	_ = sess.transport.Close()
	sess.keepalive.stop()
	sess.sampler.stop()
	o.capture.Stop()
	o.playback.Flush()

	if !o.cfg.DisableChimes && len(o.disconnectChime) > 0 {
		o.playback.Enqueue(o.disconnectChime)
	}

	o.sess = nil
	o.lastErr = cause
	o.state.Store(int32(StateIdle))

	status := "closed"
	if cause != nil {
		status = "error"
		o.logger.Warn("session closed by transport failure", "session", sess.id, "error", cause)
	} else {
		o.logger.Info("session disconnected", "session", sess.id)
	}
	if o.metrics != nil {
		o.metrics.SessionsActive.Dec()
	}
	o.observeSession(status, time.Since(sess.started))
}

func (o *Orchestrator) observeSession(status string, elapsed time.Duration) {
	if o.metrics == nil {
		return
	}
	o.metrics.SessionsTotal.WithLabelValues(status).Inc()
	if elapsed > 0 {
		o.metrics.SessionDuration.Observe(elapsed.Seconds())
	}
}

// eventLoop serializes all inbound transport traffic for one session.
// Running it on a single goroutine is what makes the interruption
// flush ordering guarantee hold: the flush completes before any chunk
// queued behind the interrupted event is looked at.
func (o *Orchestrator) eventLoop(sess *session) {
	for ev := range sess.transport.Events() {
		switch ev := ev.(type) {
		case AudioChunkEvent:
			o.playback.Enqueue(ev.Data)
			if o.metrics != nil {
				o.metrics.AudioBytesTotal.WithLabelValues("in").Add(float64(len(ev.Data)))
			}
		case InterruptedEvent:
			o.playback.Flush()
			if o.metrics != nil {
				o.metrics.InterruptsTotal.Inc()
			}
		case InputTranscriptEvent:
			o.ledger.AppendDelta(types.RoleUser, ev.Text, ev.Final, nil)
		case OutputTranscriptEvent:
			o.ledger.AppendDelta(types.RoleAgent, ev.Text, ev.Final, nil)
		case ContentEvent:
			o.ledger.AppendDelta(types.RoleAgent, ev.Text, false, ev.Citations)
		case TurnCompleteEvent:
			o.ledger.CompleteTurn()
		case ToolCallEvent:
			o.dispatcher.DispatchBatch(sess.ctx, ev.Calls, o.sendToolResults)
		case ClosedEvent:
			o.handleClosed(sess, ev.Err)
		}
	}
	// Transport gone without a ClosedEvent still tears the session
	// down.
	o.handleClosed(sess, nil)
}

func (o *Orchestrator) handleClosed(sess *session, cause error) {
	if sess.closing.Load() {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.sess != sess {
		return
	}
	if cause != nil {
		cause = &TransportError{Op: "stream", Err: cause}
	}
	o.teardownLocked(cause)
}

func (o *Orchestrator) capturePump(sess *session, mime string) {
	defer sess.wg.Done()
	for chunk := range o.capture.Chunks() {
		if sess.closing.Load() {
			return
		}
		if err := o.sendRealtime(sess, mime, chunk); err != nil {
			if !sess.closing.Load() {
				o.logger.Debug("capture chunk not sent", "error", err)
			}
		}
	}
}

func (o *Orchestrator) finalizeLoop(sess *session) {
	defer sess.wg.Done()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-sess.ctx.Done():
			return
		case <-ticker.C:
			if n := o.ledger.ForceFinalizeIdle(o.cfg.TurnFinalizeTimeout); n > 0 {
				o.logger.Warn("force-finalized stale open turns", "count", n)
			}
		}
	}
}

func (o *Orchestrator) sendRealtime(sess *session, mime string, data []byte) error {
	if sess.closing.Load() {
		return ErrNotConnected
	}
	if err := sess.transport.SendRealtimeChunk(mime, data); err != nil {
		return err
	}
	sess.lastOutbound.Store(time.Now().UnixNano())
	if o.metrics != nil {
		o.metrics.AudioBytesTotal.WithLabelValues("out").Add(float64(len(data)))
	}
	return nil
}

// sendToolResults delivers a resolved batch on whatever session is
// current. With nothing connected the results have nowhere to go; the
// per-call outcomes are already recorded in the ledger.
func (o *Orchestrator) sendToolResults(results []types.ToolCallResult) error {
	o.mu.Lock()
	sess := o.sess
	o.mu.Unlock()
	if sess == nil || sess.closing.Load() {
		return ErrNotConnected
	}
	return sess.transport.SendToolResults(results)
}

// SendText submits a typed user message on the live session.
func (o *Orchestrator) SendText(text string) error {
	o.mu.Lock()
	sess := o.sess
	o.mu.Unlock()
	if sess == nil || sess.closing.Load() {
		return ErrNotConnected
	}
	if err := sess.transport.SendContent([]ContentPart{{Text: text}}); err != nil {
		return &TransportError{Op: "send content", Err: err}
	}
	sess.lastOutbound.Store(time.Now().UnixNano())
	o.ledger.AppendDelta(types.RoleUser, text, true, nil)
	return nil
}

// State reports the current lifecycle state.
func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

// IsConnected reports whether a session is live.
func (o *Orchestrator) IsConnected() bool {
	return o.State() == StateConnected
}

// LastErr returns the error that ended the previous session, or nil
// when it closed cleanly. There is no automatic reconnect; callers
// decide whether to Connect again.
func (o *Orchestrator) LastErr() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastErr
}

// Turns returns the ordered read-only view of the conversation.
func (o *Orchestrator) Turns() []types.Turn {
	return o.ledger.Turns()
}

// Tasks returns the ordered read-only view of background tasks.
func (o *Orchestrator) Tasks() []BackgroundTask {
	return o.tasks.Tasks()
}

// Tracker exposes the background task tracker for dismissal
// operations.
func (o *Orchestrator) Tracker() *TaskTracker {
	return o.tasks
}

// PendingConfirmation returns the confirmation currently awaiting the
// user, or nil.
func (o *Orchestrator) PendingConfirmation() *PendingConfirmation {
	return o.gate.Pending()
}

// InputLevel is the current microphone volume in [0, 1].
func (o *Orchestrator) InputLevel() float64 {
	return o.capture.Level()
}

// OutputLevel is the current playback volume in [0, 1].
func (o *Orchestrator) OutputLevel() float64 {
	return o.playback.Level()
}
