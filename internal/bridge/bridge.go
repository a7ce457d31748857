// Package bridge maps shortcut commands received over IPC onto the session
// machine and the live orchestrator.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/rbright/clonely/internal/fsm"
	"github.com/rbright/clonely/internal/ipc"
	"github.com/rbright/clonely/internal/output"
	"github.com/rbright/clonely/internal/session"
)

// Commands accepted by Handle.
const (
	CommandStatus     = "status"
	CommandChat       = "chat"
	CommandSubmit     = "submit"
	CommandEsc        = "esc"
	CommandMic        = "mic"
	CommandMicStart   = "mic-start"
	CommandMicStop    = "mic-stop"
	CommandDone       = "done"
	CommandMute       = "mute"
	CommandUnmute     = "unmute"
	CommandAnswer     = "answer"
	CommandTranscript = "transcript"
	CommandCopy       = "copy"
	CommandQuit       = "quit"
)

// Machine is the session surface the bridge drives.
type Machine interface {
	Dispatch(event fsm.Event) (session.Snapshot, bool)
	Snapshot() session.Snapshot
}

// Live is the orchestrator surface the bridge drives directly.
type Live interface {
	FinishTurn()
	ToggleGeminiAudio(mute bool)
	Muted() bool
}

// Answers exposes what the overlay currently shows.
type Answers interface {
	Answer() string
	Wide() bool
	TranscriptLines() []string
}

// Copier puts text on the clipboard.
type Copier interface {
	Copy(ctx context.Context, text string) error
}

// Bridge implements ipc.Handler.
type Bridge struct {
	machine Machine
	live    Live
	answers Answers
	copier  Copier
	quit    func()
	logger  *slog.Logger
}

// New builds a bridge. quit is called once for the quit command.
func New(machine Machine, live Live, answers Answers, copier Copier, quit func(), logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	if quit == nil {
		quit = func() {}
	}
	return &Bridge{machine: machine, live: live, answers: answers, copier: copier, quit: quit, logger: logger}
}

// Handle executes one command and reports the resulting state.
func (b *Bridge) Handle(ctx context.Context, req ipc.Request) ipc.Response {
	command := strings.ToLower(strings.TrimSpace(req.Command))
	b.logger.Debug("bridge command", "command", command)

	switch command {
	case CommandStatus:
		return b.respond(b.machine.Snapshot(), "")
	case CommandChat:
		return b.dispatch(fsm.Event{Type: fsm.EventOpenChat})
	case CommandSubmit:
		return b.dispatch(fsm.Event{Type: fsm.EventSubmit, Value: req.Value})
	case CommandEsc:
		return b.dispatch(fsm.Event{Type: fsm.EventEsc})
	case CommandMic:
		if b.machine.Snapshot().State.Mode() == fsm.ModeLive {
			return b.dispatch(fsm.Event{Type: fsm.EventMicStop})
		}
		return b.dispatch(fsm.Event{Type: fsm.EventMicStart})
	case CommandMicStart:
		return b.dispatch(fsm.Event{Type: fsm.EventMicStart})
	case CommandMicStop:
		return b.dispatch(fsm.Event{Type: fsm.EventMicStop})
	case CommandDone:
		b.live.FinishTurn()
		return b.respond(b.machine.Snapshot(), "turn finished")
	case CommandMute, CommandUnmute:
		b.live.ToggleGeminiAudio(command == CommandMute)
		return b.respond(b.machine.Snapshot(), "")
	case CommandAnswer:
		resp := b.respond(b.machine.Snapshot(), "")
		resp.Answer = b.answers.Answer()
		resp.Wide = b.answers.Wide()
		return resp
	case CommandTranscript:
		resp := b.respond(b.machine.Snapshot(), "")
		resp.Transcript = b.answers.TranscriptLines()
		return resp
	case CommandCopy:
		return b.copyAnswer(ctx)
	case CommandQuit:
		b.quit()
		return b.respond(b.machine.Snapshot(), "stopping")
	case "":
		return ipc.Response{OK: false, Error: "missing command"}
	default:
		return ipc.Response{OK: false, Error: fmt.Sprintf("unknown command %q", req.Command)}
	}
}

func (b *Bridge) dispatch(event fsm.Event) ipc.Response {
	snap, handled := b.machine.Dispatch(event)
	if handled {
		return b.respond(snap, "")
	}
	return b.respond(snap, ignoredMessage(snap, event))
}

func (b *Bridge) copyAnswer(ctx context.Context) ipc.Response {
	err := b.copier.Copy(ctx, b.answers.Answer())
	switch {
	case errors.Is(err, output.ErrNothingToCopy):
		return b.respond(b.machine.Snapshot(), "nothing to copy")
	case err != nil:
		b.logger.Warn("copy answer failed", "error", err.Error())
		return ipc.Response{OK: false, Error: err.Error()}
	}
	return b.respond(b.machine.Snapshot(), "copied")
}

func (b *Bridge) respond(snap session.Snapshot, message string) ipc.Response {
	if message == "" {
		message = snap.Context.Error
	}
	return ipc.Response{
		OK:       true,
		State:    string(snap.State),
		Message:  message,
		Cooldown: snap.Context.MicCooldown,
		Muted:    b.live.Muted(),
	}
}

func ignoredMessage(snap session.Snapshot, event fsm.Event) string {
	if event.Type == fsm.EventMicStart && snap.Context.MicCooldown {
		return "microphone cooling down"
	}
	return fmt.Sprintf("%s ignored in %s", strings.ToLower(string(event.Type)), snap.State)
}
