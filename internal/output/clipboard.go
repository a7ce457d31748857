// Package output puts answers on the clipboard.
package output

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/atotto/clipboard"

	"github.com/rbright/clonely/internal/config"
)

// ErrNothingToCopy is returned for empty or whitespace-only text.
var ErrNothingToCopy = errors.New("nothing to copy")

// Clipboard writes text through clipboard_cmd and falls back to the system
// clipboard when the command is unset or fails.
type Clipboard struct {
	argv     []string
	logger   *slog.Logger
	fallback func(string) error
}

// NewClipboard constructs a clipboard writer from runtime config.
func NewClipboard(cfg config.CommandConfig, logger *slog.Logger) *Clipboard {
	return &Clipboard{argv: cfg.Argv, logger: logger, fallback: clipboard.WriteAll}
}

// Copy writes text to the clipboard.
func (c *Clipboard) Copy(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrNothingToCopy
	}

	if len(c.argv) > 0 {
		cmdCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		err := runCommandWithInput(cmdCtx, c.argv, text)
		if err == nil {
			return nil
		}
		c.logFallback(err)
	}

	if err := c.fallback(text); err != nil {
		return fmt.Errorf("set clipboard: %w", err)
	}
	return nil
}

// runCommandWithInput executes argv and optionally writes input to stdin.
func runCommandWithInput(ctx context.Context, argv []string, input string) error {
	if len(argv) == 0 {
		return fmt.Errorf("command argv cannot be empty")
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("open stdin for %s: %w", argv[0], err)
	}

	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		return fmt.Errorf("start command %s: %w", argv[0], err)
	}

	if input != "" {
		if _, err := stdin.Write([]byte(input)); err != nil {
			_ = stdin.Close()
			_ = cmd.Wait()
			return fmt.Errorf("write stdin for %s: %w", argv[0], err)
		}
	}
	_ = stdin.Close()

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("wait for %s: %w", argv[0], err)
	}
	return nil
}

func (c *Clipboard) logFallback(err error) {
	if c.logger == nil || err == nil {
		return
	}
	c.logger.Warn("clipboard command failed; using system clipboard", "error", err.Error())
}
