// Package screen grabs JPEG screen frames and paces them into the live session.
package screen

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/rbright/clonely/internal/config"
	"github.com/rbright/clonely/internal/hypr"
)

const grabTimeout = 3 * time.Second

var jpegMagic = []byte{0xff, 0xd8}

// ErrNoGrabber is returned when screen.capture_cmd is empty.
var ErrNoGrabber = errors.New("screen capture command is not configured")

// Grabber runs screen.capture_cmd and returns its stdout as one JPEG frame.
type Grabber struct {
	argv    []string
	logger  *slog.Logger
	focused func(ctx context.Context) (string, error)
	run     func(ctx context.Context, argv []string) ([]byte, error)
}

// NewGrabber builds a grabber from the screen config.
func NewGrabber(cfg config.ScreenConfig, logger *slog.Logger) *Grabber {
	if logger == nil {
		logger = slog.Default()
	}
	g := &Grabber{argv: cfg.Capture.Argv, logger: logger, run: runCapture}
	if hypr.Available() {
		g.focused = hypr.FocusedMonitor
	}
	return g
}

// Frame captures the screen now.
func (g *Grabber) Frame(ctx context.Context) ([]byte, error) {
	if len(g.argv) == 0 {
		return nil, ErrNoGrabber
	}

	grabCtx, cancel := context.WithTimeout(ctx, grabTimeout)
	defer cancel()

	frame, err := g.run(grabCtx, g.command(grabCtx))
	if err != nil {
		return nil, err
	}
	if !bytes.HasPrefix(frame, jpegMagic) {
		return nil, fmt.Errorf("%s did not produce a jpeg frame (%d bytes)", g.argv[0], len(frame))
	}
	return frame, nil
}

// command pins grim to the focused Hyprland monitor unless -o was given.
func (g *Grabber) command(ctx context.Context) []string {
	if g.focused == nil || filepath.Base(g.argv[0]) != "grim" || slices.Contains(g.argv, "-o") {
		return g.argv
	}
	name, err := g.focused(ctx)
	if err != nil || strings.TrimSpace(name) == "" {
		if err != nil {
			g.logger.Debug("focused monitor unavailable; grabbing all outputs", "error", err.Error())
		}
		return g.argv
	}

	argv := make([]string, 0, len(g.argv)+2)
	argv = append(argv, g.argv[0], "-o", name)
	return append(argv, g.argv[1:]...)
}

func runCapture(ctx context.Context, argv []string) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return nil, fmt.Errorf("run %s: %w", argv[0], err)
		}
		return nil, fmt.Errorf("run %s: %w: %s", argv[0], err, msg)
	}
	return stdout.Bytes(), nil
}
