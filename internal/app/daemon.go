package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/rbright/clonely/internal/bridge"
	"github.com/rbright/clonely/internal/config"
	"github.com/rbright/clonely/internal/deepgram"
	"github.com/rbright/clonely/internal/fsm"
	"github.com/rbright/clonely/internal/gemini"
	"github.com/rbright/clonely/internal/indicator"
	"github.com/rbright/clonely/internal/ipc"
	"github.com/rbright/clonely/internal/live"
	"github.com/rbright/clonely/internal/output"
	"github.com/rbright/clonely/internal/overlay"
	"github.com/rbright/clonely/internal/pipeline"
	"github.com/rbright/clonely/internal/screen"
	"github.com/rbright/clonely/internal/session"
	"github.com/rbright/clonely/internal/transcript"
)

// daemon is one wired overlay process.
type daemon struct {
	logger    *slog.Logger
	machine   *session.Machine
	live      *live.Service
	overlay   *overlay.Overlay
	indicator indicator.Controller
	audio     *pipeline.Pump
	frames    *screen.Pump
	bridge    *bridge.Bridge
}

func (r Runner) commandRun(ctx context.Context, cfg config.Config, logger *slog.Logger) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	listener, err := ipc.Acquire(ctx, socketPath, 180*time.Millisecond, 8, nil)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	defer func() {
		_ = listener.Close()
		_ = os.Remove(socketPath)
	}()

	secrets, err := config.LoadSecrets()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	runCtx, quit := context.WithCancel(ctx)
	defer quit()

	d := newDaemon(runCtx, cfg, secrets, quit, logger)
	logger.Info("daemon started", "socket", socketPath)

	serverErr := ipc.Serve(runCtx, listener, d.bridge)
	d.close()
	logger.Info("daemon stopped")

	if serverErr != nil {
		fmt.Fprintf(r.Stderr, "error: ipc server failed: %v\n", serverErr)
		return 1
	}
	return 0
}

func newDaemon(ctx context.Context, cfg config.Config, secrets config.Secrets, quit func(), logger *slog.Logger) *daemon {
	client, err := gemini.NewClient(ctx, secrets.GeminiAPIKey)
	if err != nil {
		logger.Warn("gemini unavailable; chat and live sessions will fail", "error", err.Error())
	}

	grabber := screen.NewGrabber(cfg.Screen, logger)
	var frames gemini.FrameSource
	if cfg.Screen.Enable {
		frames = grabber
	}

	chat := gemini.NewChat(client, gemini.ChatConfig{
		Model:        cfg.Gemini.ChatModel,
		SystemPrompt: gemini.ChatSystemPrompt,
		AttachScreen: cfg.Gemini.AttachScreen,
	}, frames, logger)
	conversation := gemini.NewLiveDialer(client, gemini.LiveConfig{
		Model:        cfg.Gemini.LiveModel,
		SystemPrompt: gemini.LivePrompt(cfg.Live.NoneMarker, cfg.Live.AppendMarker),
	}, logger)
	transcription := deepgram.NewDialer(deepgramConfig(cfg, secrets, logger), logger)
	liveSvc := live.NewService(logger, conversation, transcription, cfg.Live.MuteConversation)

	ind := indicator.New(cfg.Indicator, logger)
	d := &daemon{logger: logger, live: liveSvc, indicator: ind}
	d.overlay = overlay.New(overlay.Options{
		NoneMarker:        cfg.Live.NoneMarker,
		AppendMarker:      cfg.Live.AppendMarker,
		WideWordThreshold: cfg.Live.WideWordThreshold,
		Transcript:        transcript.Options{CapitalizeSentences: !cfg.Deepgram.SmartFormat},
		Indicator:         ind,
		Logger:            logger,
	})

	d.machine = session.NewMachine(logger, chat, liveSvc, d.overlay, session.Options{
		Cooldown: time.Duration(cfg.Live.CooldownMS) * time.Millisecond,
		Hooks:    []func(prev, next session.Snapshot){d.media},
	})

	d.audio = pipeline.NewPump(cfg, liveSvc, d.machine.IsStreaming, logger)
	d.audio.OnError = func(err error) { go d.machine.FailLive(err) }
	if cfg.Screen.Enable {
		interval := time.Duration(cfg.Screen.IntervalMS) * time.Millisecond
		d.frames = screen.NewPump(grabber, liveSvc, interval, d.machine.IsStreaming, logger)
	}

	d.bridge = bridge.New(d.machine, liveSvc, d.overlay, output.NewClipboard(cfg.Clipboard, logger), quit, logger)
	return d
}

func deepgramConfig(cfg config.Config, secrets config.Secrets, logger *slog.Logger) deepgram.Config {
	phrases, warnings, err := config.BuildSpeechPhrases(cfg)
	if err != nil {
		logger.Warn("vocabulary disabled", "error", err.Error())
	}
	for _, w := range warnings {
		logger.Warn("vocabulary warning", "message", w.Message)
	}

	keywords := make([]deepgram.Keyword, 0, len(phrases))
	for _, phrase := range phrases {
		keywords = append(keywords, deepgram.Keyword{Phrase: phrase.Phrase, Boost: phrase.Boost})
	}
	return deepgram.Config{
		APIKey:      secrets.DeepgramAPIKey,
		BaseURL:     cfg.Deepgram.BaseURL,
		Model:       cfg.Deepgram.Model,
		Language:    cfg.Deepgram.Language,
		SmartFormat: cfg.Deepgram.SmartFormat,
		Keywords:    keywords,
	}
}

// media starts capture when the session starts streaming and stops it when
// the machine leaves live mode. It runs with the dispatch lock held.
func (d *daemon) media(prev, next session.Snapshot) {
	if next.State == fsm.StateLiveStreaming && prev.State != fsm.StateLiveStreaming {
		if err := d.audio.Start(context.Background()); err != nil {
			d.logger.Error("audio capture start failed", "error", err.Error())
			go d.machine.FailLive(fmt.Errorf("audio capture: %w", err))
			return
		}
		if d.frames != nil {
			d.frames.Start(context.Background())
		}
		return
	}
	if prev.State.Mode() == fsm.ModeLive && next.State.Mode() != fsm.ModeLive {
		d.stopMedia()
	}
}

func (d *daemon) stopMedia() {
	d.audio.Stop()
	if d.frames != nil {
		d.frames.Stop()
	}
}

func (d *daemon) close() {
	d.machine.Close()
	d.stopMedia()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	d.indicator.Hide(ctx)
}
