package hypr

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Monitor is one output reported by `hyprctl -j monitors`.
type Monitor struct {
	Name    string `json:"name"`
	Focused bool   `json:"focused"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
}

// Monitors lists the connected outputs.
func Monitors(ctx context.Context) ([]Monitor, error) {
	output, err := runHyprctlOutput(ctx, "-j", "monitors")
	if err != nil {
		return nil, err
	}

	var monitors []Monitor
	if err := json.Unmarshal(output, &monitors); err != nil {
		return nil, fmt.Errorf("decode hyprctl monitors json: %w", err)
	}
	for i := range monitors {
		monitors[i].Name = strings.TrimSpace(monitors[i].Name)
	}
	return monitors, nil
}

// FocusedMonitor returns the focused monitor name (or the first monitor fallback).
func FocusedMonitor(ctx context.Context) (string, error) {
	monitors, err := Monitors(ctx)
	if err != nil {
		return "", err
	}
	for _, mon := range monitors {
		if mon.Focused {
			return mon.Name, nil
		}
	}
	if len(monitors) == 0 {
		return "", fmt.Errorf("hyprctl monitors returned no outputs")
	}
	return monitors[0].Name, nil
}

// Notification is a Hyprland on-screen notification.
type Notification struct {
	Icon    int
	Timeout time.Duration
	Color   string
	Text    string
}

// Notify shows n, replacing nothing; callers dismiss first when needed.
func Notify(ctx context.Context, n Notification) error {
	color := strings.TrimSpace(n.Color)
	if color == "" {
		color = "rgb(89b4fa)"
	}
	return runHyprctl(
		ctx,
		"--quiet",
		"dispatch",
		"notify",
		strconv.Itoa(n.Icon),
		strconv.FormatInt(n.Timeout.Milliseconds(), 10),
		color,
		n.Text,
	)
}

// DismissNotify dismisses active Hyprland notifications.
func DismissNotify(ctx context.Context) error {
	return runHyprctl(ctx, "--quiet", "dispatch", "dismissnotify")
}
