package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/glamour"
	"golang.org/x/term"

	"github.com/rbright/clonely/internal/cli"
	"github.com/rbright/clonely/internal/ipc"
)

const (
	forwardTimeout = 2 * time.Second
	copyTimeout    = 4 * time.Second
	narrowWrap     = 80
)

// commandForward sends a bridge command to the running daemon.
func (r Runner) commandForward(ctx context.Context, parsed cli.Parsed) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	req := ipc.Request{Command: string(parsed.Command), Value: parsed.Text}
	resp, handled, err := tryForward(ctx, socketPath, req)
	if !handled {
		if parsed.Command == cli.CommandStatus {
			fmt.Fprintln(r.Stdout, "idle")
			return 0
		}
		fmt.Fprintln(r.Stderr, "error: clonely daemon is not running (start it with `clonely run`)")
		return 1
	}
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	switch parsed.Command {
	case cli.CommandStatus:
		r.printStatus(resp)
	case cli.CommandAnswer:
		r.printAnswer(resp, parsed.Raw)
	case cli.CommandTranscript:
		for _, line := range resp.Transcript {
			fmt.Fprintln(r.Stdout, line)
		}
	default:
		if resp.Message != "" {
			fmt.Fprintln(r.Stdout, resp.Message)
		}
	}
	return 0
}

func (r Runner) printStatus(resp ipc.Response) {
	state := resp.State
	if state == "" {
		state = "idle"
	}
	var flags []string
	if resp.Cooldown {
		flags = append(flags, "cooldown")
	}
	if resp.Muted {
		flags = append(flags, "muted")
	}
	if len(flags) > 0 {
		state += " (" + strings.Join(flags, ", ") + ")"
	}
	fmt.Fprintln(r.Stdout, state)
	if resp.Message != "" {
		fmt.Fprintf(r.Stdout, "error: %s\n", resp.Message)
	}
}

// printAnswer renders markdown on a terminal and prints raw text otherwise.
func (r Runner) printAnswer(resp ipc.Response, raw bool) {
	answer := strings.TrimSpace(resp.Answer)
	if answer == "" {
		return
	}
	width, tty := terminalWidth(r.Stdout)
	if raw || !tty {
		fmt.Fprintln(r.Stdout, answer)
		return
	}

	rendered, err := renderMarkdown(answer, wrapWidth(width, resp.Wide))
	if err != nil {
		fmt.Fprintln(r.Stdout, answer)
		return
	}
	fmt.Fprint(r.Stdout, rendered)
}

func renderMarkdown(text string, wrap int) (string, error) {
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(wrap),
	)
	if err != nil {
		return "", err
	}
	return renderer.Render(text)
}

// wrapWidth keeps narrow answers readable and lets wide ones use the terminal.
func wrapWidth(termWidth int, wide bool) int {
	if termWidth <= 0 {
		termWidth = narrowWrap
	}
	if wide || termWidth < narrowWrap {
		return termWidth
	}
	return narrowWrap
}

func terminalWidth(w io.Writer) (int, bool) {
	file, ok := w.(*os.File)
	if !ok {
		return 0, false
	}
	fd := int(file.Fd())
	if !term.IsTerminal(fd) {
		return 0, false
	}
	width, _, err := term.GetSize(fd)
	if err != nil {
		return 0, true
	}
	return width, true
}

func tryForward(ctx context.Context, socketPath string, req ipc.Request) (ipc.Response, bool, error) {
	timeout := forwardTimeout
	if req.Command == string(cli.CommandCopy) {
		timeout = copyTimeout
	}
	resp, err := ipc.Send(ctx, socketPath, req, timeout)
	if err == nil {
		if resp.OK {
			return resp, true, nil
		}
		return resp, true, errors.New(resp.Error)
	}

	if isSocketMissing(err) {
		return ipc.Response{}, false, nil
	}
	if isConnectionRefused(err) {
		return ipc.Response{}, false, nil
	}

	return ipc.Response{}, true, fmt.Errorf("forward command %q: %w", req.Command, err)
}

func isSocketMissing(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, os.ErrNotExist) ||
		strings.Contains(err.Error(), "no such file or directory")
}

func isConnectionRefused(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, syscall.ECONNREFUSED)
}
