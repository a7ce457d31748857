// Package indicator surfaces session state as notifications and audio cues.
package indicator

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/rbright/clonely/internal/config"
	"github.com/rbright/clonely/internal/hypr"
)

// Controller is the overlay-facing indicator contract.
type Controller interface {
	ShowConnecting(context.Context)
	ShowListening(context.Context)
	ShowThinking(context.Context)
	ShowError(context.Context, string)
	CueStop(context.Context)
	CueAnswer(context.Context)
	CueCancel(context.Context)
	Hide(context.Context)
}

const persistent = 5 * time.Minute

// Notifier routes notifications via Hyprland or desktop DBus based on config backend.
type Notifier struct {
	cfg      config.IndicatorConfig
	logger   *slog.Logger
	messages messages
	play     func(cueKind) error

	mu                    sync.Mutex
	desktopNotificationID uint32
	soundMu               sync.Mutex
}

// New creates an indicator controller from config.
func New(cfg config.IndicatorConfig, logger *slog.Logger) *Notifier {
	return &Notifier{
		cfg:      cfg,
		logger:   logger,
		messages: indicatorMessagesFromEnv(),
		play:     emitCue,
	}
}

// ShowConnecting signals that both live legs are being opened.
func (n *Notifier) ShowConnecting(ctx context.Context) {
	n.show(ctx, 1, persistent, "rgb(f9e2af)", n.messages.connecting)
}

// ShowListening signals an active live session and emits the start cue.
func (n *Notifier) ShowListening(ctx context.Context) {
	n.playCue(cueStart)
	n.show(ctx, 1, persistent, "rgb(89b4fa)", n.messages.listening)
}

// ShowThinking signals an in-flight chat request.
func (n *Notifier) ShowThinking(ctx context.Context) {
	n.show(ctx, 1, persistent, "rgb(cba6f7)", n.messages.thinking)
}

// ShowError displays an error-state indicator message.
func (n *Notifier) ShowError(ctx context.Context, text string) {
	if text == "" {
		text = n.messages.errorText
	}
	timeout := time.Duration(n.cfg.ErrorTimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = 1200 * time.Millisecond
	}
	n.playCue(cueCancel)
	n.show(ctx, 3, timeout, "rgb(f38ba8)", text)
}

// CueStop emits the end-of-live-session cue.
func (n *Notifier) CueStop(context.Context) { n.playCue(cueStop) }

// CueAnswer emits the answer-complete cue.
func (n *Notifier) CueAnswer(context.Context) { n.playCue(cueAnswer) }

// CueCancel emits the cancel cue.
func (n *Notifier) CueCancel(context.Context) { n.playCue(cueCancel) }

// Hide dismisses the active indicator surface.
func (n *Notifier) Hide(ctx context.Context) {
	if !n.cfg.Enable {
		return
	}
	n.run(ctx, n.dismiss)
}

func (n *Notifier) show(ctx context.Context, icon int, timeout time.Duration, color string, text string) {
	if !n.cfg.Enable {
		return
	}
	n.run(ctx, func(ctx context.Context) error {
		if n.desktopBackend() {
			return n.notifyDesktop(ctx, timeout, text)
		}
		// hyprctl notifications stack; replace the previous one.
		_ = hypr.DismissNotify(ctx)
		return hypr.Notify(ctx, hypr.Notification{Icon: icon, Timeout: timeout, Color: color, Text: text})
	})
}

func (n *Notifier) desktopBackend() bool {
	return strings.EqualFold(strings.TrimSpace(n.cfg.Backend), "desktop")
}

func (n *Notifier) dismiss(ctx context.Context) error {
	if n.desktopBackend() {
		return n.dismissDesktop(ctx)
	}
	return hypr.DismissNotify(ctx)
}

// notifyDesktop sends a replaceable desktop notification and stores its ID.
func (n *Notifier) notifyDesktop(ctx context.Context, timeout time.Duration, text string) error {
	n.mu.Lock()
	replaceID := n.desktopNotificationID
	n.mu.Unlock()

	appName := strings.TrimSpace(n.cfg.DesktopAppName)
	if appName == "" {
		appName = "clonely"
	}

	id, err := desktopNotify(ctx, appName, replaceID, text, int(timeout.Milliseconds()))
	if err != nil {
		return err
	}

	n.mu.Lock()
	n.desktopNotificationID = id
	n.mu.Unlock()
	return nil
}

func (n *Notifier) dismissDesktop(ctx context.Context) error {
	n.mu.Lock()
	id := n.desktopNotificationID
	n.desktopNotificationID = 0
	n.mu.Unlock()

	if id == 0 {
		return nil
	}
	return desktopDismiss(ctx, id)
}

// run executes an indicator operation with a bounded timeout.
func (n *Notifier) run(ctx context.Context, fn func(context.Context) error) {
	runCtx, cancel := context.WithTimeout(ctx, 400*time.Millisecond)
	defer cancel()
	if err := fn(runCtx); err != nil {
		n.log("indicator dispatch failed", err)
	}
}

// playCue serializes cue playback and emits audio asynchronously.
func (n *Notifier) playCue(kind cueKind) {
	if !n.cfg.SoundEnable {
		return
	}
	go func() {
		n.soundMu.Lock()
		defer n.soundMu.Unlock()
		if err := n.play(kind); err != nil {
			n.log("indicator audio cue failed", err)
		}
	}()
}

func (n *Notifier) log(message string, err error) {
	if n.logger == nil || err == nil {
		return
	}
	n.logger.Debug(message, "error", err.Error())
}
