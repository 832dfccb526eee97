package config

// Default returns the canonical runtime configuration used when no file is present.
func Default() Config {
	player := "mpv --fs --really-quiet"

	return Config{
		Camera: CameraConfig{
			Device:      "0",
			JPEGQuality: 92,
			PreviewFPS:  10,
		},
		Capture: CaptureConfig{IntervalMS: 1000},
		Classifier: ClassifierConfig{
			URL:         "http://127.0.0.1:8000/process_frame",
			TimeoutMS:   1000,
			RetryCount:  0,
			RetryWaitMS: 250,
		},
		Transition: TransitionConfig{
			FadeOutMS:      300,
			FadeInDelayMS:  50,
			StallTimeoutMS: 3000,
			MaxOverrideMS:  300000,
		},
		Surface: SurfaceConfig{
			Backend:       "web",
			Listen:        "127.0.0.1:8080",
			OverrideMedia: "~/Videos/motivation.mp4",
			PlayerCmd:     CommandConfig{Raw: player, Argv: mustParseArgv(player)},
		},
		Indicator: IndicatorConfig{
			Enable:         true,
			Backend:        "hypr",
			DesktopAppName: "wwld",
			SoundEnable:    true,
			ErrorTimeoutMS: 4000,
		},
		Events: EventsConfig{
			Topic:    "wwld/transition",
			ClientID: "wwld",
		},
	}
}
