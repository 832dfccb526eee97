// Package doctor runs readiness diagnostics for config, camera, classifier and surfaces.
package doctor

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/rbright/wwld/internal/camera"
	"github.com/rbright/wwld/internal/classify"
	"github.com/rbright/wwld/internal/config"
	"github.com/rbright/wwld/internal/hypr"
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
// open is used to probe the camera; nil skips the probe.
func Run(ctx context.Context, cfg config.Loaded, open camera.Opener) Report {
	checks := []Check{{
		Name:    "config",
		Pass:    true,
		Message: fmt.Sprintf("loaded %q", cfg.Path),
	}}

	checks = append(checks, checkCamera(cfg.Config.Camera.Device, open))
	checks = append(checks, checkClassifier(ctx, cfg.Config.Classifier))
	checks = append(checks, checkMedia(cfg.Config.Surface.OverrideMedia))

	if cfg.Config.Surface.UsesCommand() {
		checks = append(checks, checkCommand(cfg.Config.Surface.PlayerCmd.Argv, "player_cmd"))
	} else {
		checks = append(checks, checkListen(cfg.Config.Surface.Listen))
	}

	if cfg.Config.Indicator.Enable {
		if cfg.Config.Indicator.UsesDesktop() {
			checks = append(checks, checkBinary("busctl", "desktop notifications use busctl"))
		} else {
			checks = append(checks, checkEnv("HYPRLAND_INSTANCE_SIGNATURE", func(v string) bool {
				return strings.TrimSpace(v) != ""
			}, "Hyprland session detected", "HYPRLAND_INSTANCE_SIGNATURE is empty"))
			checks = append(checks, checkHyprland(ctx))
		}
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

// checkCamera opens the device, reads one frame, and releases it.
func checkCamera(device string, open camera.Opener) Check {
	if open == nil {
		return Check{Name: "camera.device", Pass: true, Message: "probe skipped"}
	}
	source, err := open(device)
	if err != nil {
		return Check{Name: "camera.device", Pass: false, Message: fmt.Sprintf("open %q: %v", device, err)}
	}
	defer func() { _ = source.Close() }()

	_, width, height, err := source.ReadJPEG(50)
	if err != nil {
		return Check{Name: "camera.device", Pass: false, Message: fmt.Sprintf("read %q: %v", device, err)}
	}
	return Check{Name: "camera.device", Pass: true, Message: fmt.Sprintf("%q readable at %dx%d", device, width, height)}
}

// checkClassifier probes the classifier health URL when one is configured.
func checkClassifier(ctx context.Context, cfg config.ClassifierConfig) Check {
	if strings.TrimSpace(cfg.HealthURL) == "" {
		return Check{Name: "classifier", Pass: true, Message: fmt.Sprintf("health_url not set; posting to %s", cfg.URL)}
	}

	probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	client := classify.New(classify.Options{URL: cfg.URL, HealthURL: cfg.HealthURL, Timeout: 2 * time.Second})
	if err := client.Health(probeCtx); err != nil {
		return Check{Name: "classifier", Pass: false, Message: err.Error()}
	}
	return Check{Name: "classifier", Pass: true, Message: fmt.Sprintf("healthy at %s", cfg.HealthURL)}
}

// checkMedia validates the override media file exists.
func checkMedia(raw string) Check {
	path := config.ExpandUserPath(raw)
	info, err := os.Stat(path)
	if err != nil {
		return Check{Name: "surface.override_media", Pass: false, Message: fmt.Sprintf("cannot stat %q: %v", path, err)}
	}
	if info.IsDir() {
		return Check{Name: "surface.override_media", Pass: false, Message: fmt.Sprintf("%q is a directory", path)}
	}
	return Check{Name: "surface.override_media", Pass: true, Message: fmt.Sprintf("%q (%d bytes)", path, info.Size())}
}

// checkListen validates the web surface can bind its address.
func checkListen(addr string) Check {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return Check{Name: "surface.listen", Pass: false, Message: fmt.Sprintf("cannot bind %s: %v", addr, err)}
	}
	_ = ln.Close()
	return Check{Name: "surface.listen", Pass: true, Message: fmt.Sprintf("%s available", addr)}
}

// checkHyprland confirms hyprctl can reach the compositor.
func checkHyprland(ctx context.Context) Check {
	probeCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	monitor, err := hypr.QueryFocusedMonitor(probeCtx)
	if err != nil {
		return Check{Name: "hyprctl", Pass: false, Message: err.Error()}
	}
	return Check{Name: "hyprctl", Pass: true, Message: fmt.Sprintf("focused monitor %s", monitor)}
}
