// Package hypr wraps the hyprctl calls used for on-screen status.
package hypr

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Notify sends a Hyprland notification payload. color accepts either
// Hyprland's rgb(rrggbb) form or a CSS #rrggbb hex.
func Notify(ctx context.Context, icon int, timeoutMS int, color string, text string) error {
	return runHyprctl(
		ctx,
		"--quiet",
		"dispatch",
		"notify",
		strconv.Itoa(icon),
		strconv.Itoa(timeoutMS),
		Color(color),
		text,
	)
}

// DismissNotify dismisses active Hyprland notifications.
func DismissNotify(ctx context.Context) error {
	return runHyprctl(ctx, "--quiet", "dispatch", "dismissnotify")
}

// Color normalizes a status color into hyprctl's rgb(rrggbb) syntax.
func Color(raw string) string {
	raw = strings.TrimSpace(raw)
	switch {
	case raw == "":
		return "rgb(89b4fa)"
	case strings.HasPrefix(raw, "#") && len(raw) == 7:
		return "rgb(" + strings.ToLower(raw[1:]) + ")"
	default:
		return raw
	}
}

func runHyprctl(ctx context.Context, args ...string) error {
	_, err := runHyprctlOutput(ctx, args...)
	return err
}

func runHyprctlOutput(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "hyprctl", args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		trimmed := strings.TrimSpace(string(out))
		if trimmed == "" {
			return nil, fmt.Errorf("hyprctl %v failed: %w", args, err)
		}
		return nil, fmt.Errorf("hyprctl %v failed: %w (%s)", args, err, trimmed)
	}
	return out, nil
}
