package indicator

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

const (
	notifyDest  = "org.freedesktop.Notifications"
	notifyPath  = "/org/freedesktop/Notifications"
	urgencyLow  = 0
	urgencyCrit = 2
)

// desktopNotification is one org.freedesktop.Notifications.Notify call.
type desktopNotification struct {
	appName   string
	replaceID uint32
	summary   string
	critical  bool
	timeoutMS int
}

// busctlArgs renders the call in busctl's positional signature syntax.
// Hints carry a single urgency byte.
func (n desktopNotification) busctlArgs() []string {
	urgency := urgencyLow
	if n.critical {
		urgency = urgencyCrit
	}
	return []string{
		"--user", "call", notifyDest, notifyPath, notifyDest,
		"Notify", "susssasa{sv}i",
		n.appName,
		strconv.FormatUint(uint64(n.replaceID), 10),
		"camera-web",
		n.summary,
		"",
		"0",
		"1", "urgency", "y", strconv.Itoa(urgency),
		strconv.Itoa(n.timeoutMS),
	}
}

// send delivers the notification and returns the server-assigned ID.
func (n desktopNotification) send(ctx context.Context) (uint32, error) {
	out, err := busctl(ctx, n.busctlArgs()...)
	if err != nil {
		return 0, fmt.Errorf("desktop notify: %w", err)
	}

	// Reply is "u <id>".
	kind, raw, ok := strings.Cut(out, " ")
	if !ok || kind != "u" {
		return 0, fmt.Errorf("desktop notify: invalid response %q", out)
	}
	id, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("desktop notify: parse id %q: %w", raw, err)
	}
	return uint32(id), nil
}

func closeDesktopNotification(ctx context.Context, id uint32) error {
	_, err := busctl(ctx, "--user", "call", notifyDest, notifyPath, notifyDest,
		"CloseNotification", "u", strconv.FormatUint(uint64(id), 10))
	if err != nil {
		return fmt.Errorf("desktop dismiss: %w", err)
	}
	return nil
}

func busctl(ctx context.Context, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, "busctl", args...).CombinedOutput()
	text := strings.TrimSpace(string(out))
	if err != nil {
		if text == "" {
			return "", err
		}
		return "", fmt.Errorf("%w (%s)", err, text)
	}
	return text, nil
}
