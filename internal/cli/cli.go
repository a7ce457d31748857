package cli

import (
	"errors"
	"fmt"
	"strings"
)

type Command string

const (
	CommandRun        Command = "run"
	CommandStatus     Command = "status"
	CommandChat       Command = "chat"
	CommandSubmit     Command = "submit"
	CommandEsc        Command = "esc"
	CommandMic        Command = "mic"
	CommandMicStart   Command = "mic-start"
	CommandMicStop    Command = "mic-stop"
	CommandDone       Command = "done"
	CommandMute       Command = "mute"
	CommandUnmute     Command = "unmute"
	CommandAnswer     Command = "answer"
	CommandTranscript Command = "transcript"
	CommandCopy       Command = "copy"
	CommandQuit       Command = "quit"
	CommandDevices    Command = "devices"
	CommandDoctor     Command = "doctor"
	CommandVersion    Command = "version"
	CommandHelp       Command = "help"
)

var validCommands = map[Command]struct{}{
	CommandRun:        {},
	CommandStatus:     {},
	CommandChat:       {},
	CommandSubmit:     {},
	CommandEsc:        {},
	CommandMic:        {},
	CommandMicStart:   {},
	CommandMicStop:    {},
	CommandDone:       {},
	CommandMute:       {},
	CommandUnmute:     {},
	CommandAnswer:     {},
	CommandTranscript: {},
	CommandCopy:       {},
	CommandQuit:       {},
	CommandDevices:    {},
	CommandDoctor:     {},
	CommandVersion:    {},
	CommandHelp:       {},
}

// Forwarded reports whether the command is handled by the running daemon.
func (c Command) Forwarded() bool {
	switch c {
	case CommandRun, CommandDevices, CommandDoctor, CommandVersion, CommandHelp:
		return false
	}
	_, ok := validCommands[c]
	return ok
}

type Parsed struct {
	Command    Command
	ConfigPath string
	ShowHelp   bool
	// Text is the joined argument list of submit.
	Text string
	// Raw disables markdown rendering for answer.
	Raw bool
}

func Parse(args []string) (Parsed, error) {
	parsed := Parsed{Command: CommandHelp, ShowHelp: true}

	for i := 0; i < len(args); i++ {
		arg := args[i]

		switch arg {
		case "-h", "--help":
			parsed.ShowHelp = true
			parsed.Command = CommandHelp
		case "--version":
			parsed.ShowHelp = false
			parsed.Command = CommandVersion
		case "--raw":
			parsed.Raw = true
		case "--config":
			i++
			if i >= len(args) {
				return Parsed{}, errors.New("--config requires a path")
			}
			parsed.ConfigPath = args[i]
		default:
			if strings.HasPrefix(arg, "-") {
				return Parsed{}, fmt.Errorf("unknown flag: %s", arg)
			}

			cmd := Command(arg)
			if _, ok := validCommands[cmd]; !ok {
				return Parsed{}, fmt.Errorf("unknown command: %s", arg)
			}

			parsed.Command = cmd
			parsed.ShowHelp = cmd == CommandHelp
			rest := args[i+1:]
			if cmd == CommandSubmit {
				parsed.Text = strings.TrimSpace(strings.Join(rest, " "))
				if parsed.Text == "" {
					return Parsed{}, errors.New("submit requires text")
				}
				return parsed, nil
			}
			if len(rest) != 0 {
				return Parsed{}, fmt.Errorf("unexpected arguments after command %q", arg)
			}
		}
	}

	return parsed, nil
}

func HelpText(binaryName string) string {
	return fmt.Sprintf(`Usage:
  %[1]s [--config PATH] <command>

Daemon:
  run          Start the overlay daemon (blocks until quit or signal)
  quit         Stop the running daemon
  status       Print state, cooldown, mute and error

Session:
  chat         Open the chat overlay
  submit TEXT  Ask a chat question, or type into a live session
  esc          Dismiss the current overlay state
  mic          Toggle the live session
  mic-start    Start the live session
  mic-stop     Stop the live session
  done         Finish the current spoken turn
  mute         Stop sending microphone audio to the assistant
  unmute       Resume sending microphone audio to the assistant

Output:
  answer       Print the current answer (markdown rendered on a terminal)
  transcript   Print the live transcript
  copy         Copy the current answer to the clipboard

Local:
  devices      List audio sources
  doctor       Run configuration and environment checks
  version      Print version information
  help         Show this help

Flags:
  --config PATH   Config file path (default: $XDG_CONFIG_HOME/clonely/config.jsonc)
  --raw           Print answer without markdown rendering
  -h, --help      Show help
  --version       Show version
`, binaryName)
}
