package live

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// keepAlive prevents two kinds of idleness while connected: it sends
// a minimal silent audio frame when no other outbound activity
// happened within the interval, so the backend does not drop the
// session, and it drives a local liveness pulse so the host runtime
// does not suspend the process during long silences.
type keepAlive struct {
	interval     time.Duration
	silentFrame  []byte
	lastOutbound *atomic.Int64

	sendSilence func(data []byte) error
	pulse       func(on bool)
	logger      *slog.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

func newKeepAlive(interval time.Duration, frameBytes int, lastOutbound *atomic.Int64, sendSilence func([]byte) error, pulse func(bool), logger *slog.Logger) *keepAlive {
	return &keepAlive{
		interval:     interval,
		silentFrame:  make([]byte, frameBytes),
		lastOutbound: lastOutbound,
		sendSilence:  sendSilence,
		pulse:        pulse,
		logger:       logger,
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}
}

func (k *keepAlive) start() {
	go k.run()
}

func (k *keepAlive) run() {
	defer close(k.doneCh)

	ticker := time.NewTicker(k.interval)
	defer ticker.Stop()

	pulseOn := false
	for {
		select {
		case <-k.stopCh:
			if k.pulse != nil && pulseOn {
				k.pulse(false)
			}
			return
		case <-ticker.C:
		}

		if k.pulse != nil {
			pulseOn = !pulseOn
			k.pulse(pulseOn)
		}

		idleSince := time.Unix(0, k.lastOutbound.Load())
		if time.Since(idleSince) < k.interval {
			continue
		}
		if err := k.sendSilence(k.silentFrame); err != nil {
			k.logger.Debug("keep-alive frame not sent", "error", err)
			continue
		}
		k.lastOutbound.Store(time.Now().UnixNano())
	}
}

// stop is idempotent and waits for the driver goroutine to exit.
func (k *keepAlive) stop() {
	if k == nil {
		return
	}
	k.stopOnce.Do(func() { close(k.stopCh) })
	<-k.doneCh
}
