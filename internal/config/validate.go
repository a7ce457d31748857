package config

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// Validate enforces config invariants and returns non-fatal warnings.
func Validate(cfg Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	if strings.TrimSpace(cfg.Gemini.ChatModel) == "" {
		return nil, fmt.Errorf("gemini.chat_model must not be empty")
	}
	if strings.TrimSpace(cfg.Gemini.LiveModel) == "" {
		return nil, fmt.Errorf("gemini.live_model must not be empty")
	}
	baseURL, err := url.Parse(strings.TrimSpace(cfg.Deepgram.BaseURL))
	if err != nil || baseURL.Host == "" {
		return nil, fmt.Errorf("deepgram.base_url must be an absolute URL")
	}
	switch baseURL.Scheme {
	case "http", "https", "ws", "wss":
	default:
		return nil, fmt.Errorf("deepgram.base_url scheme must be one of: http, https, ws, wss")
	}
	if strings.TrimSpace(cfg.Deepgram.Language) == "" {
		return nil, fmt.Errorf("deepgram.language must not be empty")
	}

	if cfg.Screen.Enable {
		if cfg.Screen.IntervalMS < 100 {
			return nil, fmt.Errorf("screen.interval_ms must be >= 100")
		}
		if len(cfg.Screen.Capture.Argv) == 0 {
			return nil, fmt.Errorf("screen.capture_cmd must not be empty when screen.enable=true")
		}
	}

	if cfg.Live.CooldownMS < 0 {
		return nil, fmt.Errorf("live.cooldown_ms must be >= 0")
	}
	if cfg.Live.NoneMarker == "" || cfg.Live.AppendMarker == "" {
		return nil, fmt.Errorf("live.none_marker and live.append_marker must not be empty")
	}
	if cfg.Live.NoneMarker == cfg.Live.AppendMarker {
		return nil, fmt.Errorf("live.none_marker and live.append_marker must differ")
	}
	if strings.HasPrefix(cfg.Live.NoneMarker, cfg.Live.AppendMarker) || strings.HasPrefix(cfg.Live.AppendMarker, cfg.Live.NoneMarker) {
		warnings = append(warnings, Warning{Message: "live markers share a prefix; the shorter marker wins when both match"})
	}
	if cfg.Live.WideWordThreshold <= 0 {
		return nil, fmt.Errorf("live.wide_word_threshold must be > 0")
	}

	backend := strings.ToLower(strings.TrimSpace(cfg.Indicator.Backend))
	if backend == "" {
		return nil, fmt.Errorf("indicator.backend must not be empty")
	}
	if backend != "hypr" && backend != "desktop" {
		return nil, fmt.Errorf("indicator.backend must be one of: hypr, desktop")
	}
	if backend == "desktop" && strings.TrimSpace(cfg.Indicator.DesktopAppName) == "" {
		return nil, fmt.Errorf("indicator.desktop_app_name must not be empty when indicator.backend=desktop")
	}
	if cfg.Indicator.Height <= 0 {
		return nil, fmt.Errorf("indicator.height must be > 0")
	}
	if cfg.Indicator.ErrorTimeoutMS < 0 {
		return nil, fmt.Errorf("indicator.error_timeout_ms must be >= 0")
	}
	if cfg.Vocab.MaxPhrases <= 0 {
		return nil, fmt.Errorf("vocab.max_phrases must be > 0")
	}
	if cfg.Clipboard.Raw != "" && len(cfg.Clipboard.Argv) == 0 {
		warnings = append(warnings, Warning{Message: "clipboard_cmd is commented out; falling back to the system clipboard"})
	}

	_, vocabWarnings, err := BuildSpeechPhrases(cfg)
	if err != nil {
		return nil, err
	}
	warnings = append(warnings, vocabWarnings...)

	return warnings, nil
}

// BuildSpeechPhrases merges enabled vocab sets into deterministic keyword hints.
func BuildSpeechPhrases(cfg Config) ([]SpeechPhrase, []Warning, error) {
	enabledSets := cfg.Vocab.GlobalSets
	if len(enabledSets) == 0 {
		return nil, nil, nil
	}

	type candidate struct {
		boost float64
		from  string
	}

	warnings := make([]Warning, 0)
	selected := make(map[string]candidate)

	for _, name := range enabledSets {
		set, ok := cfg.Vocab.Sets[name]
		if !ok {
			return nil, nil, fmt.Errorf("vocab.global references unknown set %q", name)
		}
		for _, phrase := range set.Phrases {
			phrase = strings.TrimSpace(phrase)
			if phrase == "" {
				continue
			}
			if existing, exists := selected[phrase]; exists {
				if set.Boost > existing.boost {
					warnings = append(warnings, Warning{Message: fmt.Sprintf("phrase %q present in %q and %q; using higher boost %.2f", phrase, existing.from, name, set.Boost)})
					selected[phrase] = candidate{boost: set.Boost, from: name}
				}
				continue
			}
			selected[phrase] = candidate{boost: set.Boost, from: name}
		}
	}

	if len(selected) > cfg.Vocab.MaxPhrases {
		return nil, nil, fmt.Errorf("vocabulary phrase count %d exceeds vocab.max_phrases=%d", len(selected), cfg.Vocab.MaxPhrases)
	}

	phrases := make([]SpeechPhrase, 0, len(selected))
	for phrase, c := range selected {
		phrases = append(phrases, SpeechPhrase{Phrase: phrase, Boost: float32(c.boost)})
	}

	sort.Slice(phrases, func(i, j int) bool {
		if phrases[i].Phrase == phrases[j].Phrase {
			return phrases[i].Boost < phrases[j].Boost
		}
		return phrases[i].Phrase < phrases[j].Phrase
	})

	return phrases, warnings, nil
}
