package audio

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"
)

// CaptureConfig configures the microphone source.
type CaptureConfig struct {
	SampleRate int // default 16000
	Channels   int // default 1
	ChunkMS    int // chunk duration forwarded downstream, default 20ms
}

func (c CaptureConfig) withDefaults() CaptureConfig {
	if c.SampleRate <= 0 {
		c.SampleRate = 16000
	}
	if c.Channels <= 0 {
		c.Channels = 1
	}
	if c.ChunkMS <= 0 {
		c.ChunkMS = 20
	}
	return c
}

// MicCapture captures PCM s16le from the default input device via
// malgo and delivers fixed-size chunks on a channel. It implements
// the orchestrator's CaptureSource and supports repeated Start/Stop
// cycles.
type MicCapture struct {
	cfg CaptureConfig

	mu       sync.Mutex
	malgoCtx *malgo.AllocatedContext
	device   *malgo.Device
	ch       chan []byte

	// bufMu guards pending separately from mu: the device data
	// callback must never contend with Stop, which blocks on
	// callback completion while holding mu.
	bufMu   sync.Mutex
	pending []byte

	level atomic.Uint64 // float64 bits
}

func NewMicCapture(cfg CaptureConfig) *MicCapture {
	return &MicCapture{cfg: cfg.withDefaults()}
}

func (m *MicCapture) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.device != nil {
		return nil
	}

	ctxCfg := malgo.ContextConfig{}
	ctxCfg.ThreadPriority = malgo.ThreadPriorityRealtime
	malgoCtx, err := malgo.InitContext(nil, ctxCfg, nil)
	if err != nil {
		return fmt.Errorf("init audio context: %w", err)
	}

	chunkBytes := m.cfg.SampleRate * m.cfg.Channels * 2 * m.cfg.ChunkMS / 1000
	ch := make(chan []byte, 32)

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = uint32(m.cfg.Channels)
	deviceConfig.SampleRate = uint32(m.cfg.SampleRate)
	deviceConfig.PeriodSizeInMilliseconds = uint32(m.cfg.ChunkMS)

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			m.ingest(input, chunkBytes, ch)
		},
	}

	device, err := malgo.InitDevice(malgoCtx.Context, deviceConfig, callbacks)
	if err != nil {
		_ = malgoCtx.Uninit()
		return fmt.Errorf("init microphone: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		_ = malgoCtx.Uninit()
		return fmt.Errorf("start microphone: %w", err)
	}

	m.malgoCtx = malgoCtx
	m.device = device
	m.ch = ch
	m.bufMu.Lock()
	m.pending = m.pending[:0]
	m.bufMu.Unlock()
	return nil
}

func (m *MicCapture) ingest(input []byte, chunkBytes int, ch chan []byte) {
	m.level.Store(math.Float64bits(Level(input)))

	m.bufMu.Lock()
	m.pending = append(m.pending, input...)
	var chunks [][]byte
	for len(m.pending) >= chunkBytes {
		chunk := make([]byte, chunkBytes)
		copy(chunk, m.pending[:chunkBytes])
		m.pending = m.pending[chunkBytes:]
		chunks = append(chunks, chunk)
	}
	m.bufMu.Unlock()

	for _, chunk := range chunks {
		select {
		case ch <- chunk:
		default:
			// Consumer fell behind; drop rather than stall the
			// device callback.
		}
	}
}

func (m *MicCapture) Chunks() <-chan []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ch
}

func (m *MicCapture) Level() float64 {
	return math.Float64frombits(m.level.Load())
}

func (m *MicCapture) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.device == nil {
		return
	}
	_ = m.device.Stop()
	m.device.Uninit()
	m.device = nil
	_ = m.malgoCtx.Uninit()
	m.malgoCtx = nil
	close(m.ch)
	m.ch = nil
	m.level.Store(0)
}
