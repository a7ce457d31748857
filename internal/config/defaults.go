package config

// Default returns the canonical runtime configuration used when no file is present.
func Default() Config {
	clipboard := "wl-copy --trim-newline"
	capture := "grim -t jpeg -q 60 -"

	return Config{
		Gemini: GeminiConfig{
			ChatModel:    "gemini-2.5-flash",
			LiveModel:    "gemini-live-2.5-flash-preview",
			AttachScreen: true,
		},
		Deepgram: DeepgramConfig{
			BaseURL:     "https://api.deepgram.com/v1",
			Model:       "nova-2",
			Language:    "en-US",
			SmartFormat: true,
		},
		Audio: AudioConfig{
			Input:    "default",
			Fallback: "default",
		},
		Screen: ScreenConfig{
			Enable:     true,
			IntervalMS: 1000,
			Capture:    CommandConfig{Raw: capture, Argv: mustParseArgv(capture)},
		},
		Live: LiveConfig{
			CooldownMS:        1200,
			NoneMarker:        "<NONE/>",
			AppendMarker:      "<APPEND/>",
			WideWordThreshold: 60,
		},
		Indicator: IndicatorConfig{
			Enable:         true,
			Backend:        "hypr",
			DesktopAppName: "clonely",
			SoundEnable:    true,
			Height:         28,
			ErrorTimeoutMS: 1600,
		},
		Clipboard: CommandConfig{Raw: clipboard, Argv: mustParseArgv(clipboard)},
		Vocab: VocabConfig{
			GlobalSets: nil,
			Sets:       map[string]VocabSet{},
			MaxPhrases: 1024,
		},
		Debug: DebugConfig{},
	}
}
