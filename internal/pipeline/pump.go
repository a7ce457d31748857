// Package pipeline forwards captured audio to the live session.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/rbright/clonely/internal/audio"
	"github.com/rbright/clonely/internal/config"
)

// AudioSink receives PCM chunks. live.Service implements it.
type AudioSink interface {
	SendAudioChunk(pcm []byte)
}

type openFunc func(ctx context.Context) (audio.Source, string, error)

// Pump owns one capture -> sink pipeline instance per live session.
type Pump struct {
	cfg    config.Config
	logger *slog.Logger
	sink   AudioSink
	gate   func() bool
	open   openFunc

	// OnError is called when capture ends without Stop being called.
	OnError func(error)

	mu      sync.Mutex
	running bool
	source  audio.Source
	cancel  context.CancelFunc
	done    chan struct{}
	dump    []byte
}

// NewPump builds a pump. gate is checked before every chunk is forwarded.
func NewPump(cfg config.Config, sink AudioSink, gate func() bool, logger *slog.Logger) *Pump {
	if logger == nil {
		logger = slog.Default()
	}
	if gate == nil {
		gate = func() bool { return true }
	}
	p := &Pump{cfg: cfg, logger: logger, sink: sink, gate: gate}
	p.open = p.openPulse
	return p
}

// Start selects devices and begins forwarding. It is a no-op while running.
func (p *Pump) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	source, device, err := p.open(runCtx)
	if err != nil {
		cancel()
		return err
	}

	p.running = true
	p.source = source
	p.cancel = cancel
	p.done = make(chan struct{})
	p.dump = nil
	p.logger.Info("audio pump started", "device", device, "loopback", strings.TrimSpace(p.cfg.Audio.Loopback))

	go p.loop(source, p.done)
	return nil
}

// Stop ends capture, waits for the forwarding loop and writes the debug dump.
func (p *Pump) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	source, cancel, done := p.source, p.cancel, p.done
	p.source, p.cancel = nil, nil
	p.mu.Unlock()

	_ = source.Stop()
	cancel()
	<-done

	p.mu.Lock()
	pcm := p.dump
	p.dump = nil
	p.mu.Unlock()
	if p.cfg.Debug.EnableAudioDump && len(pcm) > 0 {
		path, err := writeDebugWAV(pcm)
		if err != nil {
			p.logger.Warn("unable to write debug audio dump", "error", err.Error())
			return
		}
		p.logger.Info("debug audio dump written", "path", path, "bytes", len(pcm))
	}
}

// Running reports whether capture is active.
func (p *Pump) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *Pump) loop(source audio.Source, done chan struct{}) {
	defer close(done)

	var forwarded, gated int
	for chunk := range source.Chunks() {
		if len(chunk) == 0 {
			continue
		}
		if !p.gate() {
			gated++
			continue
		}
		p.sink.SendAudioChunk(chunk)
		forwarded++
		if p.cfg.Debug.EnableAudioDump {
			p.mu.Lock()
			p.dump = append(p.dump, chunk...)
			p.mu.Unlock()
		}
	}
	p.logger.Debug("audio pump drained", "forwarded", forwarded, "gated", gated)

	p.mu.Lock()
	stopped := !p.running || p.source != source
	p.mu.Unlock()
	if stopped {
		return
	}
	if p.OnError != nil {
		p.OnError(errors.New("audio capture ended unexpectedly"))
	}
}

func (p *Pump) openPulse(ctx context.Context) (audio.Source, string, error) {
	selection, err := audio.SelectDevice(ctx, p.cfg.Audio.Input, p.cfg.Audio.Fallback)
	if err != nil {
		return nil, "", err
	}
	if selection.Warning != "" {
		p.logger.Warn(selection.Warning)
	}

	mic, err := audio.StartCapture(ctx, selection.Device)
	if err != nil {
		return nil, "", err
	}
	device := describeDevice(selection.Device)

	loopDevice, ok, err := audio.SelectLoopback(ctx, p.cfg.Audio.Loopback)
	if err != nil {
		p.logger.Warn("system audio unavailable; capturing microphone only", "error", err.Error())
		return mic, device, nil
	}
	if !ok {
		return mic, device, nil
	}
	loop, err := audio.StartCapture(ctx, loopDevice)
	if err != nil {
		p.logger.Warn("system audio capture failed; capturing microphone only", "error", err.Error())
		return mic, device, nil
	}
	return audio.NewMixer(mic, loop), fmt.Sprintf("%s + %s", device, describeDevice(loopDevice)), nil
}

// describeDevice formats device metadata for logs.
func describeDevice(device audio.Device) string {
	description := strings.TrimSpace(device.Description)
	id := strings.TrimSpace(device.ID)
	if description == "" {
		return id
	}
	if id == "" {
		return description
	}
	return fmt.Sprintf("%s (%s)", description, id)
}
