package screen

import (
	"bytes"
	"context"
	"encoding/base64"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// FrameSource supplies JPEG frames.
type FrameSource interface {
	Frame(ctx context.Context) ([]byte, error)
}

// ImageSink receives base64 JPEG frames. live.Service implements it.
type ImageSink interface {
	SendImageChunk(jpegBase64 string)
}

// Pump sends at most one frame per interval while gate reports true.
// Frames identical to the previous one are skipped.
type Pump struct {
	frames   FrameSource
	sink     ImageSink
	interval time.Duration
	gate     func() bool
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewPump builds a frame pump.
func NewPump(frames FrameSource, sink ImageSink, interval time.Duration, gate func() bool, logger *slog.Logger) *Pump {
	if interval <= 0 {
		interval = time.Second
	}
	if gate == nil {
		gate = func() bool { return true }
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pump{frames: frames, sink: sink, interval: interval, gate: gate, logger: logger}
}

// Start begins sending frames. It is a no-op while running.
func (p *Pump) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	p.running = true
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.loop(runCtx, p.done)
}

// Stop halts the pump and waits for an in-flight grab to finish.
func (p *Pump) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	cancel, done := p.cancel, p.done
	p.cancel = nil
	p.mu.Unlock()

	cancel()
	<-done
}

// Running reports whether the pump is active.
func (p *Pump) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *Pump) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	limiter := rate.NewLimiter(rate.Every(p.interval), 1)
	var (
		last     []byte
		failures int
	)
	for {
		if err := limiter.Wait(ctx); err != nil {
			return
		}
		if !p.gate() {
			continue
		}

		frame, err := p.frames.Frame(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			failures++
			if failures == 1 {
				p.logger.Warn("screen frame capture failed", "error", err.Error())
			} else {
				p.logger.Debug("screen frame capture failed", "error", err.Error(), "failures", failures)
			}
			continue
		}
		failures = 0
		if bytes.Equal(frame, last) {
			continue
		}
		last = frame

		// The gate may have closed during the grab.
		if !p.gate() {
			continue
		}
		p.sink.SendImageChunk(base64.StdEncoding.EncodeToString(frame))
	}
}
