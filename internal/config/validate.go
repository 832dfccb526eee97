package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Validate enforces config invariants and returns non-fatal warnings.
func Validate(cfg Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	if strings.TrimSpace(cfg.Camera.Device) == "" {
		return nil, fmt.Errorf("camera.device must not be empty")
	}
	if cfg.Camera.JPEGQuality < 1 || cfg.Camera.JPEGQuality > 100 {
		return nil, fmt.Errorf("camera.jpeg_quality must be between 1 and 100")
	}
	if cfg.Camera.PreviewFPS < 0 {
		return nil, fmt.Errorf("camera.preview_fps must be >= 0")
	}
	if cfg.Capture.IntervalMS <= 0 {
		return nil, fmt.Errorf("capture.interval_ms must be > 0")
	}

	if err := validateHTTPURL("classifier.url", cfg.Classifier.URL); err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.Classifier.HealthURL) != "" {
		if err := validateHTTPURL("classifier.health_url", cfg.Classifier.HealthURL); err != nil {
			return nil, err
		}
	}
	if cfg.Classifier.TimeoutMS <= 0 {
		return nil, fmt.Errorf("classifier.timeout_ms must be > 0")
	}
	if cfg.Classifier.RetryCount < 0 {
		return nil, fmt.Errorf("classifier.retry_count must be >= 0")
	}
	if cfg.Classifier.RetryWaitMS < 0 {
		return nil, fmt.Errorf("classifier.retry_wait_ms must be >= 0")
	}
	if cfg.Classifier.TimeoutMS > cfg.Capture.IntervalMS {
		warnings = append(warnings, Warning{Message: fmt.Sprintf(
			"classifier.timeout_ms=%d exceeds capture.interval_ms=%d; slow cycles will cause skipped ticks",
			cfg.Classifier.TimeoutMS, cfg.Capture.IntervalMS,
		)})
	}

	if cfg.Transition.FadeOutMS < 0 {
		return nil, fmt.Errorf("transition.fade_out_ms must be >= 0")
	}
	if cfg.Transition.FadeInDelayMS < 0 {
		return nil, fmt.Errorf("transition.fade_in_delay_ms must be >= 0")
	}
	if cfg.Transition.StallTimeoutMS <= 0 {
		return nil, fmt.Errorf("transition.stall_timeout_ms must be > 0")
	}
	if cfg.Transition.MaxOverrideMS < 0 {
		return nil, fmt.Errorf("transition.max_override_ms must be >= 0")
	}

	backend := strings.ToLower(strings.TrimSpace(cfg.Surface.Backend))
	switch backend {
	case "web":
		if strings.TrimSpace(cfg.Surface.Listen) == "" {
			return nil, fmt.Errorf("surface.listen must not be empty when surface.backend=web")
		}
	case "command":
		if len(cfg.Surface.PlayerCmd.Argv) == 0 {
			return nil, fmt.Errorf("surface.player_cmd must not be empty when surface.backend=command")
		}
	case "":
		return nil, fmt.Errorf("surface.backend must not be empty")
	default:
		return nil, fmt.Errorf("surface.backend must be one of: web, command")
	}
	if strings.TrimSpace(cfg.Surface.OverrideMedia) == "" {
		return nil, fmt.Errorf("surface.override_media must not be empty")
	}

	indicatorBackend := strings.ToLower(strings.TrimSpace(cfg.Indicator.Backend))
	if indicatorBackend != "hypr" && indicatorBackend != "desktop" {
		return nil, fmt.Errorf("indicator.backend must be one of: hypr, desktop")
	}
	if indicatorBackend == "desktop" && strings.TrimSpace(cfg.Indicator.DesktopAppName) == "" {
		return nil, fmt.Errorf("indicator.desktop_app_name must not be empty when indicator.backend=desktop")
	}
	if cfg.Indicator.ErrorTimeoutMS < 0 {
		return nil, fmt.Errorf("indicator.error_timeout_ms must be >= 0")
	}

	if strings.TrimSpace(cfg.Events.MQTTBroker) != "" {
		if strings.TrimSpace(cfg.Events.Topic) == "" {
			return nil, fmt.Errorf("events.topic must not be empty when events.mqtt_broker is set")
		}
		if strings.TrimSpace(cfg.Events.ClientID) == "" {
			return nil, fmt.Errorf("events.client_id must not be empty when events.mqtt_broker is set")
		}
	}

	return warnings, nil
}

func validateHTTPURL(key string, raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fmt.Errorf("%s must not be empty", key)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s is not a valid URL: %w", key, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must use http or https", key)
	}
	if u.Host == "" {
		return fmt.Errorf("%s must include a host", key)
	}
	return nil
}
