package audio

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/ebitengine/oto/v3"
)

// PlaybackConfig configures the speaker sink.
type PlaybackConfig struct {
	SampleRate int // default 24000
	Channels   int // default 1
	BufferSize int // oto buffer in bytes, default ~100ms
}

func (c PlaybackConfig) withDefaults() PlaybackConfig {
	if c.SampleRate <= 0 {
		c.SampleRate = 24000
	}
	if c.Channels <= 0 {
		c.Channels = 1
	}
	if c.BufferSize <= 0 {
		// At 24kHz mono s16le, 4800 bytes is ~100ms: low latency
		// without constant underruns.
		c.BufferSize = c.SampleRate * c.Channels * 2 / 10
	}
	return c
}

// Speaker renders queued PCM s16le through the default output device
// via oto. It implements the orchestrator's PlaybackSink: chunks play
// in arrival order and Flush discards everything unplayed
// immediately.
type Speaker struct {
	otoCtx *oto.Context

	mu      sync.Mutex
	player  *oto.Player
	buf     []byte
	playing bool
	closed  bool

	level atomic.Uint64 // float64 bits
}

func NewSpeaker(cfg PlaybackConfig) (*Speaker, error) {
	cfg = cfg.withDefaults()
	otoCtx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   cfg.SampleRate,
		ChannelCount: cfg.Channels,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   cfg.BufferSize,
	})
	if err != nil {
		return nil, fmt.Errorf("init speaker: %w", err)
	}
	<-ready
	return &Speaker{otoCtx: otoCtx}, nil
}

// Enqueue appends a chunk to the playback queue, starting the player
// lazily on first audio.
func (s *Speaker) Enqueue(pcm []byte) {
	if len(pcm) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.buf = append(s.buf, pcm...)
	if !s.playing {
		s.playing = true
		s.player = s.otoCtx.NewPlayer(s)
		s.player.Play()
	}
}

// Flush discards all unplayed queued audio. The device keeps running
// on silence so a following Enqueue starts cleanly.
func (s *Speaker) Flush() {
	s.mu.Lock()
	s.buf = s.buf[:0]
	s.mu.Unlock()
	s.level.Store(0)
}

// Read feeds oto. When the queue is empty it serves silence instead
// of blocking, so the device callback never stalls.
func (s *Speaker) Read(p []byte) (int, error) {
	s.mu.Lock()
	n := copy(p, s.buf)
	s.buf = s.buf[n:]
	s.mu.Unlock()

	if n > 0 {
		s.level.Store(math.Float64bits(Level(p[:n])))
	} else {
		s.level.Store(0)
	}
	for i := n; i < len(p); i++ {
		p[i] = 0
	}
	return len(p), nil
}

// Level is the output volume of the most recently served audio.
func (s *Speaker) Level() float64 {
	return math.Float64frombits(s.level.Load())
}

// Close stops playback and releases the player. Idempotent.
func (s *Speaker) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.buf = nil
	player := s.player
	s.player = nil
	s.mu.Unlock()

	if player != nil {
		_ = player.Close()
	}
	s.level.Store(0)
}
