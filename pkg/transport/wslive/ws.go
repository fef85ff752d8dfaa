package wslive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vango-go/vai-agent/pkg/core/types"
	"github.com/vango-go/vai-agent/pkg/live"
)

// Config configures the websocket transport.
type Config struct {
	// URL is the gateway websocket endpoint (ws:// or wss://).
	// Required.
	URL string

	// APIKey is sent as a bearer token when set.
	APIKey string

	// HandshakeTimeout bounds dialing plus the ready exchange.
	// Defaults to 15s.
	HandshakeTimeout time.Duration

	// PingInterval drives ws-level keepalive pings. Defaults to 20s.
	PingInterval time.Duration

	// EventBuffer sizes the inbound event channel. Defaults to 64.
	EventBuffer int

	Dialer *websocket.Dialer
	Logger *slog.Logger
}

// Client speaks the gateway's JSON frame protocol over one websocket
// connection. It implements the live Transport.
type Client struct {
	cfg    Config
	logger *slog.Logger

	conn      *websocket.Conn
	writeMu   sync.Mutex
	sessionID string

	events    chan live.TransportEvent
	closing   atomic.Bool
	closeOnce sync.Once
	done      chan struct{}
}

// New builds an unopened client.
func New(cfg Config) *Client {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 15 * time.Second
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 20 * time.Second
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 64
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:    cfg,
		logger: logger,
		events: make(chan live.TransportEvent, cfg.EventBuffer),
		done:   make(chan struct{}),
	}
}

// Open dials the gateway, sends the setup frame, and waits for the
// ready acknowledgement before returning.
func (c *Client) Open(ctx context.Context, cfg live.SessionConfig) error {
	if c.cfg.URL == "" {
		return fmt.Errorf("wslive: gateway URL is required")
	}
	dialer := c.cfg.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	header := http.Header{}
	if c.cfg.APIKey != "" {
		header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.HandshakeTimeout)
	defer cancel()
	conn, resp, err := dialer.DialContext(dialCtx, c.cfg.URL, header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial gateway: %w (status %s)", err, resp.Status)
		}
		return fmt.Errorf("dial gateway: %w", err)
	}
	c.conn = conn

	setup := clientFrame{
		Type: clientFrameSetup,
		Setup: &setupPayload{
			Model:             cfg.Model,
			Voice:             cfg.Voice,
			SystemInstruction: cfg.SystemInstruction,
			Tools:             cfg.Tools,
			InputMIME:         cfg.InputMIME,
		},
	}
	if err := c.writeJSON(setup); err != nil {
		conn.Close()
		return fmt.Errorf("send setup: %w", err)
	}

	// The gateway must acknowledge before any media flows.
	_ = conn.SetReadDeadline(time.Now().Add(c.cfg.HandshakeTimeout))
	var ack serverFrame
	if err := conn.ReadJSON(&ack); err != nil {
		conn.Close()
		return fmt.Errorf("read ready frame: %w", err)
	}
	switch ack.Type {
	case serverFrameReady:
		c.sessionID = ack.SessionID
	case serverFrameError:
		conn.Close()
		msg := "gateway rejected session"
		if ack.Error != nil {
			msg = ack.Error.Message
		}
		return fmt.Errorf("gateway rejected session: %s", msg)
	default:
		conn.Close()
		return fmt.Errorf("unexpected frame %q before ready", ack.Type)
	}
	// Liveness: pings go out on PingInterval and either a pong or any
	// data frame pushes the read deadline forward.
	_ = conn.SetReadDeadline(time.Now().Add(3 * c.cfg.PingInterval))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(3 * c.cfg.PingInterval))
	})

	go c.readLoop()
	go c.pingLoop()
	return nil
}

// SessionID reports the gateway-assigned session id, empty before
// Open succeeds.
func (c *Client) SessionID() string { return c.sessionID }

func (c *Client) SendRealtimeChunk(mime string, data []byte) error {
	return c.writeJSON(clientFrame{
		Type:  clientFrameAudio,
		Audio: &audioPayload{MIMEType: mime, Data: data},
	})
}

func (c *Client) SendContent(parts []live.ContentPart) error {
	payload := make([]contentPartPayload, 0, len(parts))
	for _, part := range parts {
		payload = append(payload, contentPartPayload{Text: part.Text, Attachment: part.Attachment})
	}
	return c.writeJSON(clientFrame{Type: clientFrameContent, Parts: payload})
}

func (c *Client) SendToolResults(results []types.ToolCallResult) error {
	return c.writeJSON(clientFrame{Type: clientFrameToolResults, ToolResults: results})
}

func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.closing.Store(true)
		close(c.done)
		if c.conn != nil {
			deadline := time.Now().Add(time.Second)
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
			_ = c.conn.Close()
		}
	})
	return nil
}

func (c *Client) Events() <-chan live.TransportEvent {
	return c.events
}

func (c *Client) writeJSON(frame clientFrame) error {
	if c.conn == nil {
		return errors.New("wslive: connection is not open")
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteJSON(frame)
}

func (c *Client) pingLoop() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(5 * time.Second)
			if err := c.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}

// readLoop drains inbound frames until the connection drops. It owns
// the events channel and closes it after the terminal ClosedEvent.
func (c *Client) readLoop() {
	defer close(c.events)
	for {
		var frame serverFrame
		if err := c.conn.ReadJSON(&frame); err != nil {
			if c.closing.Load() || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.events <- live.ClosedEvent{}
			} else {
				c.events <- live.ClosedEvent{Err: fmt.Errorf("gateway stream: %w", err)}
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(3 * c.cfg.PingInterval))
		c.translate(frame)
	}
}

func (c *Client) translate(frame serverFrame) {
	switch frame.Type {
	case serverFrameAudio:
		if frame.Audio != nil && len(frame.Audio.Data) > 0 {
			c.emit(live.AudioChunkEvent{Data: frame.Audio.Data})
		}
	case serverFrameInputTranscript:
		if frame.Transcript != nil {
			c.emit(live.InputTranscriptEvent{Text: frame.Transcript.Text, Final: frame.Transcript.Final})
		}
	case serverFrameOutputTranscript:
		if frame.Transcript != nil {
			c.emit(live.OutputTranscriptEvent{Text: frame.Transcript.Text, Final: frame.Transcript.Final})
		}
	case serverFrameContent:
		if frame.Content != nil {
			c.emit(live.ContentEvent{Text: frame.Content.Text, Citations: frame.Content.Citations})
		}
	case serverFrameToolCall:
		if len(frame.Calls) > 0 {
			c.emit(live.ToolCallEvent{Calls: frame.Calls})
		}
	case serverFrameTurnComplete:
		c.emit(live.TurnCompleteEvent{})
	case serverFrameInterrupted:
		c.emit(live.InterruptedEvent{})
	case serverFrameError:
		msg := "unknown gateway error"
		if frame.Error != nil {
			msg = frame.Error.Message
		}
		c.logger.Warn("gateway error frame", "message", msg)
	default:
		c.logger.Debug("ignoring unknown frame", "type", frame.Type)
	}
}

// emit delivers one event to the consumer. Audio chunks may be
// dropped when the buffer is full; every other event must not be
// lost, so those block until the consumer catches up or the client
// closes.
func (c *Client) emit(event live.TransportEvent) {
	if _, ok := event.(live.AudioChunkEvent); ok {
		select {
		case c.events <- event:
		default:
			c.logger.Warn("wslive: event buffer full, dropping audio chunk")
		}
		return
	}
	select {
	case c.events <- event:
	case <-c.done:
	}
}
