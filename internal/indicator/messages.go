package indicator

import (
	"os"
	"strings"
)

type locale string

const (
	localeEnglish locale = "en"
	localeGerman  locale = "de"
)

type messages struct {
	connecting string
	listening  string
	thinking   string
	errorText  string
}

func indicatorMessagesFromEnv() messages {
	return indicatorMessages(resolveLocale(os.Getenv("LANG")))
}

func resolveLocale(raw string) locale {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if strings.HasPrefix(raw, "de") {
		return localeGerman
	}
	return localeEnglish
}

func indicatorMessages(tag locale) messages {
	switch tag {
	case localeGerman:
		return messages{
			connecting: "Verbinde…",
			listening:  "Höre zu…",
			thinking:   "Denke nach…",
			errorText:  "Ein unbekannter Fehler ist aufgetreten.",
		}
	default:
		return messages{
			connecting: "Connecting…",
			listening:  "Listening…",
			thinking:   "Thinking…",
			errorText:  "An unknown error occurred.",
		}
	}
}
