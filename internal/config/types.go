// Package config resolves, parses, validates, and defaults clonely configuration.
package config

// Config is the fully materialized runtime configuration used by clonely.
type Config struct {
	Gemini    GeminiConfig
	Deepgram  DeepgramConfig
	Audio     AudioConfig
	Screen    ScreenConfig
	Live      LiveConfig
	Indicator IndicatorConfig
	Clipboard CommandConfig
	Vocab     VocabConfig
	Debug     DebugConfig
}

// GeminiConfig selects the chat and live models.
type GeminiConfig struct {
	ChatModel    string
	LiveModel    string
	AttachScreen bool
}

// DeepgramConfig controls the transcription leg.
type DeepgramConfig struct {
	BaseURL     string
	Model       string
	Language    string
	SmartFormat bool
}

// AudioConfig controls preferred and fallback input-source selection.
// Loopback names an optional monitor source mixed into the microphone.
type AudioConfig struct {
	Input    string
	Fallback string
	Loopback string
}

// ScreenConfig controls periodic screen frames.
type ScreenConfig struct {
	Enable     bool
	IntervalMS int
	Capture    CommandConfig
}

// LiveConfig controls live-session behavior and answer reassembly.
type LiveConfig struct {
	CooldownMS        int
	MuteConversation  bool
	NoneMarker        string
	AppendMarker      string
	WideWordThreshold int
}

// IndicatorConfig controls visual indicator and audio cue behavior.
type IndicatorConfig struct {
	Enable         bool
	Backend        string
	DesktopAppName string
	SoundEnable    bool
	Height         int
	ErrorTimeoutMS int
}

// CommandConfig stores a raw command string and its parsed argv form.
type CommandConfig struct {
	Raw  string
	Argv []string
}

// VocabConfig controls enabled keyword sets and dedupe limits.
type VocabConfig struct {
	GlobalSets []string
	Sets       map[string]VocabSet
	MaxPhrases int
}

// VocabSet is one named phrase group with a shared boost value.
type VocabSet struct {
	Name    string
	Boost   float64
	Phrases []string
}

// DebugConfig controls optional debug artifact output.
type DebugConfig struct {
	EnableAudioDump bool
}

// Warning is a non-fatal parse/validation message.
type Warning struct {
	Line    int
	Message string
}

// SpeechPhrase is a normalized keyword hint for the transcription leg.
type SpeechPhrase struct {
	Phrase string
	Boost  float32
}
