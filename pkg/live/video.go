package live

import (
	"log/slog"
	"sync"
	"time"
)

// frameSampler forwards still images from a video feed at a fixed low
// rate, independent of the audio path. Encoding or transmission
// failures skip the sample and are never fatal.
type frameSampler struct {
	src      FrameSource
	interval time.Duration
	send     func(mime string, data []byte) error
	logger   *slog.Logger
	metrics  *Metrics

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

func newFrameSampler(src FrameSource, interval time.Duration, send func(string, []byte) error, logger *slog.Logger, metrics *Metrics) *frameSampler {
	return &frameSampler{
		src:      src,
		interval: interval,
		send:     send,
		logger:   logger,
		metrics:  metrics,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

func (f *frameSampler) start() {
	go f.run()
}

func (f *frameSampler) run() {
	defer close(f.doneCh)

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-f.stopCh:
			return
		case <-ticker.C:
		}

		frame, err := f.src.NextFrame()
		if err != nil {
			f.logger.Debug("video frame skipped", "error", err)
			continue
		}
		if len(frame.Data) == 0 {
			continue
		}
		mime := frame.MIMEType
		if mime == "" {
			mime = "image/jpeg"
		}
		if err := f.send(mime, frame.Data); err != nil {
			f.logger.Debug("video frame not sent", "error", err)
			continue
		}
		if f.metrics != nil {
			f.metrics.VideoFramesTotal.Inc()
		}
	}
}

func (f *frameSampler) stop() {
	if f == nil {
		return
	}
	f.stopOnce.Do(func() { close(f.stopCh) })
	<-f.doneCh
}
