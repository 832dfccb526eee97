package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

type jsoncConfig struct {
	Camera     *jsoncCamera     `json:"camera"`
	Capture    *jsoncCapture    `json:"capture"`
	Classifier *jsoncClassifier `json:"classifier"`
	Transition *jsoncTransition `json:"transition"`
	Surface    *jsoncSurface    `json:"surface"`
	Indicator  *jsoncIndicator  `json:"indicator"`
	Events     *jsoncEvents     `json:"events"`
}

type jsoncCamera struct {
	Device      *jsoncDevice `json:"device"`
	JPEGQuality *int         `json:"jpeg_quality"`
	PreviewFPS  *int         `json:"preview_fps"`
}

type jsoncCapture struct {
	IntervalMS *int `json:"interval_ms"`
}

type jsoncClassifier struct {
	URL         *string `json:"url"`
	HealthURL   *string `json:"health_url"`
	TimeoutMS   *int    `json:"timeout_ms"`
	RetryCount  *int    `json:"retry_count"`
	RetryWaitMS *int    `json:"retry_wait_ms"`
}

type jsoncTransition struct {
	FadeOutMS      *int `json:"fade_out_ms"`
	FadeInDelayMS  *int `json:"fade_in_delay_ms"`
	StallTimeoutMS *int `json:"stall_timeout_ms"`
	MaxOverrideMS  *int `json:"max_override_ms"`
}

type jsoncSurface struct {
	Backend       *string `json:"backend"`
	Listen        *string `json:"listen"`
	OverrideMedia *string `json:"override_media"`
	PlayerCmd     *string `json:"player_cmd"`
}

type jsoncIndicator struct {
	Enable         *bool   `json:"enable"`
	Backend        *string `json:"backend"`
	DesktopAppName *string `json:"desktop_app_name"`
	SoundEnable    *bool   `json:"sound_enable"`
	ErrorTimeoutMS *int    `json:"error_timeout_ms"`
}

type jsoncEvents struct {
	MQTTBroker *string `json:"mqtt_broker"`
	Topic      *string `json:"topic"`
	ClientID   *string `json:"client_id"`
}

// jsoncDevice accepts either a bare index (0) or a string ("0", "/dev/video2").
type jsoncDevice string

func (d *jsoncDevice) UnmarshalJSON(data []byte) error {
	var index int
	if err := json.Unmarshal(data, &index); err == nil {
		*d = jsoncDevice(fmt.Sprintf("%d", index))
		return nil
	}

	var raw string
	if err := json.Unmarshal(data, &raw); err == nil {
		*d = jsoncDevice(strings.TrimSpace(raw))
		return nil
	}

	return fmt.Errorf("expected device index or path string")
}

func parseJSONC(content string, base Config) (Config, []Warning, error) {
	normalized, err := normalizeJSONC(content)
	if err != nil {
		return Config{}, nil, err
	}

	decoder := json.NewDecoder(strings.NewReader(normalized))
	decoder.DisallowUnknownFields()

	var payload jsoncConfig
	if err := decoder.Decode(&payload); err != nil {
		return Config{}, nil, wrapJSONDecodeError(normalized, err)
	}
	if err := ensureSingleJSONValue(decoder); err != nil {
		return Config{}, nil, wrapJSONDecodeError(normalized, err)
	}

	cfg := base
	if err := payload.applyTo(&cfg); err != nil {
		return Config{}, nil, err
	}

	warnings, err := Validate(cfg)
	if err != nil {
		return Config{}, nil, err
	}
	return cfg, warnings, nil
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = strings.TrimSpace(*src)
	}
}

// setBackend stores backend selectors in their canonical lowercase form.
func setBackend(dst *string, src *string) {
	if src != nil {
		*dst = strings.ToLower(strings.TrimSpace(*src))
	}
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

func setBool(dst *bool, src *bool) {
	if src != nil {
		*dst = *src
	}
}

func (payload jsoncConfig) applyTo(cfg *Config) error {
	if p := payload.Camera; p != nil {
		if p.Device != nil {
			cfg.Camera.Device = string(*p.Device)
		}
		setInt(&cfg.Camera.JPEGQuality, p.JPEGQuality)
		setInt(&cfg.Camera.PreviewFPS, p.PreviewFPS)
	}

	if p := payload.Capture; p != nil {
		setInt(&cfg.Capture.IntervalMS, p.IntervalMS)
	}

	if p := payload.Classifier; p != nil {
		setString(&cfg.Classifier.URL, p.URL)
		setString(&cfg.Classifier.HealthURL, p.HealthURL)
		setInt(&cfg.Classifier.TimeoutMS, p.TimeoutMS)
		setInt(&cfg.Classifier.RetryCount, p.RetryCount)
		setInt(&cfg.Classifier.RetryWaitMS, p.RetryWaitMS)
	}

	if p := payload.Transition; p != nil {
		setInt(&cfg.Transition.FadeOutMS, p.FadeOutMS)
		setInt(&cfg.Transition.FadeInDelayMS, p.FadeInDelayMS)
		setInt(&cfg.Transition.StallTimeoutMS, p.StallTimeoutMS)
		setInt(&cfg.Transition.MaxOverrideMS, p.MaxOverrideMS)
	}

	if p := payload.Surface; p != nil {
		setBackend(&cfg.Surface.Backend, p.Backend)
		setString(&cfg.Surface.Listen, p.Listen)
		setString(&cfg.Surface.OverrideMedia, p.OverrideMedia)
		if p.PlayerCmd != nil {
			raw := *p.PlayerCmd
			argv, err := parseArgv(raw)
			if err != nil {
				return fmt.Errorf("invalid surface.player_cmd: %w", err)
			}
			cfg.Surface.PlayerCmd = CommandConfig{Raw: raw, Argv: argv}
		}
	}

	if p := payload.Indicator; p != nil {
		setBool(&cfg.Indicator.Enable, p.Enable)
		setBackend(&cfg.Indicator.Backend, p.Backend)
		setString(&cfg.Indicator.DesktopAppName, p.DesktopAppName)
		setBool(&cfg.Indicator.SoundEnable, p.SoundEnable)
		setInt(&cfg.Indicator.ErrorTimeoutMS, p.ErrorTimeoutMS)
	}

	if p := payload.Events; p != nil {
		setString(&cfg.Events.MQTTBroker, p.MQTTBroker)
		setString(&cfg.Events.Topic, p.Topic)
		setString(&cfg.Events.ClientID, p.ClientID)
	}

	return nil
}

// normalizeJSONC blanks out comments and drops trailing commas so the
// result decodes as strict JSON with byte offsets preserved.
func normalizeJSONC(content string) (string, error) {
	withoutComments, err := stripJSONCComments(content)
	if err != nil {
		return "", err
	}
	return stripJSONCTrailingCommas(withoutComments), nil
}

// jsonScanner tracks whether the cursor sits inside a string literal.
type jsonScanner struct {
	inString bool
	escape   bool
}

// step consumes one byte and reports whether it belongs to a string literal.
func (s *jsonScanner) step(ch byte) bool {
	if s.inString {
		switch {
		case s.escape:
			s.escape = false
		case ch == '\\':
			s.escape = true
		case ch == '"':
			s.inString = false
		}
		return true
	}
	if ch == '"' {
		s.inString = true
		return true
	}
	return false
}

func stripJSONCComments(content string) (string, error) {
	out := []byte(content)
	var scan jsonScanner

	for i := 0; i < len(out); i++ {
		if scan.step(out[i]) || out[i] != '/' || i+1 >= len(out) {
			continue
		}

		switch out[i+1] {
		case '/':
			for i < len(out) && out[i] != '\n' && out[i] != '\r' {
				out[i] = ' '
				i++
			}
		case '*':
			closed := false
			out[i], out[i+1] = ' ', ' '
			for i += 2; i < len(out); i++ {
				if out[i] == '*' && i+1 < len(out) && out[i+1] == '/' {
					out[i], out[i+1] = ' ', ' '
					i++
					closed = true
					break
				}
				if out[i] != '\n' && out[i] != '\r' && out[i] != '\t' {
					out[i] = ' '
				}
			}
			if !closed {
				return "", fmt.Errorf("unterminated block comment in JSONC")
			}
		}
	}

	return string(out), nil
}

func stripJSONCTrailingCommas(content string) string {
	var out strings.Builder
	out.Grow(len(content))
	var scan jsonScanner

	for i := 0; i < len(content); i++ {
		ch := content[i]
		if !scan.step(ch) && ch == ',' {
			next := strings.TrimLeft(content[i+1:], " \n\r\t")
			if next != "" && (next[0] == '}' || next[0] == ']') {
				continue
			}
		}
		out.WriteByte(ch)
	}

	return out.String()
}

func ensureSingleJSONValue(decoder *json.Decoder) error {
	var extra struct{}
	err := decoder.Decode(&extra)
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err == nil {
		return fmt.Errorf("multiple JSON values are not allowed")
	}
	return err
}

func wrapJSONDecodeError(content string, err error) error {
	var offset int64 = -1

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &syntaxErr):
		offset = syntaxErr.Offset
	case errors.As(err, &typeErr):
		offset = typeErr.Offset
	}
	if offset < 0 {
		return err
	}

	line, col := offsetToLineCol(content, offset)
	return fmt.Errorf("line %d column %d: %w", line, col, err)
}

func offsetToLineCol(content string, offset int64) (int, int) {
	if offset <= 0 {
		return 1, 1
	}

	limit := min(int(offset), len(content))
	prefix := content[:max(limit-1, 0)]
	line := strings.Count(prefix, "\n") + 1
	col := len(prefix) - strings.LastIndex(prefix, "\n")
	return line, col
}
