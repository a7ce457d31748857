// Package doctor runs readiness diagnostics for config, credentials, tools and audio.
package doctor

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/rbright/clonely/internal/audio"
	"github.com/rbright/clonely/internal/config"
)

// Check is one doctor assertion result.
type Check struct {
	Name    string
	Pass    bool
	Message string
}

// Report is the full doctor output contract.
type Report struct {
	Checks []Check
}

// OK returns true when all checks pass.
func (r Report) OK() bool {
	for _, check := range r.Checks {
		if !check.Pass {
			return false
		}
	}
	return true
}

// String renders the report as user-facing text output.
func (r Report) String() string {
	var b strings.Builder
	for _, check := range r.Checks {
		status := "OK"
		if !check.Pass {
			status = "FAIL"
		}
		b.WriteString(fmt.Sprintf("[%s] %s: %s\n", status, check.Name, check.Message))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Run executes environment/config/runtime checks for a loaded config.
func Run(cfg config.Loaded, secrets config.Secrets) Report {
	checks := []Check{}

	checks = append(checks, Check{
		Name:    "config",
		Pass:    true,
		Message: fmt.Sprintf("loaded %q", cfg.Path),
	})

	checks = append(checks, checkEnv("XDG_SESSION_TYPE", func(v string) bool {
		return strings.EqualFold(strings.TrimSpace(v), "wayland")
	}, "session type is wayland", "expected XDG_SESSION_TYPE=wayland"))

	checks = append(checks, checkSecret(config.GeminiAPIKeyEnv, secrets.GeminiAPIKey))
	checks = append(checks, checkSecret(config.DeepgramAPIKeyEnv, secrets.DeepgramAPIKey))

	if cfg.Config.Indicator.Enable && strings.EqualFold(cfg.Config.Indicator.Backend, "hypr") {
		checks = append(checks, checkEnv("HYPRLAND_INSTANCE_SIGNATURE", func(v string) bool {
			return strings.TrimSpace(v) != ""
		}, "Hyprland session detected", "HYPRLAND_INSTANCE_SIGNATURE is empty"))
		checks = append(checks, checkBinary("hyprctl", "hypr indicator backend requires hyprctl"))
	}

	if cfg.Config.Screen.Enable {
		checks = append(checks, checkCommand(cfg.Config.Screen.Capture.Argv, "screen.capture_cmd"))
	}

	if len(cfg.Config.Clipboard.Argv) > 0 {
		checks = append(checks, checkCommand(cfg.Config.Clipboard.Argv, "clipboard_cmd"))
	} else {
		checks = append(checks, Check{Name: "clipboard_cmd", Pass: true, Message: "unset; using the system clipboard"})
	}

	checks = append(checks, checkAudioSelection(cfg.Config))
	if strings.TrimSpace(cfg.Config.Audio.Loopback) != "" {
		checks = append(checks, checkLoopback(cfg.Config))
	}
	if secrets.DeepgramAPIKey != "" {
		checks = append(checks, checkDeepgram(cfg.Config, secrets.DeepgramAPIKey))
	}

	return Report{Checks: checks}
}

// checkEnv validates an environment variable through a caller-supplied predicate.
func checkEnv(name string, predicate func(string) bool, okMsg, failMsg string) Check {
	value := os.Getenv(name)
	if predicate(value) {
		return Check{Name: name, Pass: true, Message: okMsg}
	}
	return Check{Name: name, Pass: false, Message: failMsg}
}

func checkSecret(name, value string) Check {
	if strings.TrimSpace(value) == "" {
		return Check{Name: name, Pass: false, Message: "not set (environment or .env)"}
	}
	return Check{Name: name, Pass: true, Message: "set"}
}

// checkCommand validates that argv contains a runnable command.
func checkCommand(argv []string, name string) Check {
	if len(argv) == 0 {
		return Check{Name: name, Pass: false, Message: "command is empty"}
	}
	return checkBinary(argv[0], fmt.Sprintf("%s command is available", name))
}

// checkBinary validates that a binary exists in PATH.
func checkBinary(bin string, okMsg string) Check {
	path, err := exec.LookPath(bin)
	if err != nil {
		return Check{Name: bin, Pass: false, Message: fmt.Sprintf("binary not found in PATH: %s", bin)}
	}
	return Check{Name: bin, Pass: true, Message: fmt.Sprintf("found at %s (%s)", path, okMsg)}
}

// checkAudioSelection runs live device selection to surface selection/fallback issues.
func checkAudioSelection(cfg config.Config) Check {
	selection, err := audio.SelectDevice(context.Background(), cfg.Audio.Input, cfg.Audio.Fallback)
	if err != nil {
		return Check{Name: "audio.device", Pass: false, Message: err.Error()}
	}
	message := fmt.Sprintf("selected %q", selection.Device.ID)
	if selection.Warning != "" {
		message = message + " (" + selection.Warning + ")"
	}
	return Check{Name: "audio.device", Pass: true, Message: message}
}

func checkLoopback(cfg config.Config) Check {
	device, _, err := audio.SelectLoopback(context.Background(), cfg.Audio.Loopback)
	if err != nil {
		return Check{Name: "audio.loopback", Pass: false, Message: err.Error()}
	}
	return Check{Name: "audio.loopback", Pass: true, Message: fmt.Sprintf("selected %q", device.ID)}
}

// checkDeepgram authenticates against the projects endpoint of deepgram.base_url.
func checkDeepgram(cfg config.Config, apiKey string) Check {
	url := httpBase(cfg.Deepgram.BaseURL) + "/projects"
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return Check{Name: "deepgram", Pass: false, Message: err.Error()}
	}
	req.Header.Set("Authorization", "Token "+apiKey)

	client := http.Client{Timeout: 3 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return Check{Name: "deepgram", Pass: false, Message: fmt.Sprintf("request failed: %v", err)}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return Check{Name: "deepgram", Pass: false, Message: fmt.Sprintf("HTTP %d: %s rejected", resp.StatusCode, config.DeepgramAPIKeyEnv)}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return Check{Name: "deepgram", Pass: false, Message: fmt.Sprintf("HTTP %d from %s", resp.StatusCode, url)}
	}
	return Check{Name: "deepgram", Pass: true, Message: fmt.Sprintf("authenticated at %s", url)}
}

func httpBase(base string) string {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	switch {
	case strings.HasPrefix(base, "wss://"):
		return "https://" + strings.TrimPrefix(base, "wss://")
	case strings.HasPrefix(base, "ws://"):
		return "http://" + strings.TrimPrefix(base, "ws://")
	}
	return base
}
