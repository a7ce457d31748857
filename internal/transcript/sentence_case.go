package transcript

import (
	"strings"
	"unicode"
)

// nonTerminalAbbreviations rarely end a sentence in spoken questions.
var nonTerminalAbbreviations = map[string]struct{}{
	"cf": {}, "dr": {}, "e.g": {}, "fig": {}, "i.e": {}, "jr": {},
	"mr": {}, "mrs": {}, "ms": {}, "prof": {}, "sr": {}, "st": {}, "vs": {},
}

// lowercaseAbbreviations stay lowercase even at sentence starts.
var lowercaseAbbreviations = map[string]struct{}{
	"e.g": {}, "etc": {}, "i.e": {}, "vs": {},
}

func capitalizeSentenceStarts(text string) string {
	runes := []rune(text)

	var out strings.Builder
	out.Grow(len(text))

	capitalizeNext := true
	for i, r := range runes {
		if capitalizeNext && unicode.IsLetter(r) {
			if !isLowercaseAbbreviation(wordAt(runes, i)) {
				r = unicode.ToUpper(r)
			}
			capitalizeNext = false
		} else if capitalizeNext && unicode.IsDigit(r) {
			capitalizeNext = false
		}

		out.WriteRune(r)

		switch r {
		case '!', '?':
			capitalizeNext = true
		case '.':
			if isSentenceBoundaryPeriod(runes, i) {
				capitalizeNext = true
			}
		}
	}
	return out.String()
}

func isSentenceBoundaryPeriod(runes []rune, idx int) bool {
	next := idx + 1
	if next < len(runes) && !unicode.IsSpace(runes[next]) && !isClosingRune(runes[next]) {
		// 3.14, example.com, e.g
		return false
	}

	token := strings.ToLower(tokenBefore(runes, idx))
	if _, ok := nonTerminalAbbreviations[token]; ok {
		return false
	}
	return true
}

func tokenBefore(runes []rune, idx int) string {
	start := idx
	for start > 0 {
		r := runes[start-1]
		if unicode.IsLetter(r) || r == '.' {
			start--
			continue
		}
		break
	}
	return strings.Trim(string(runes[start:idx]), ".")
}

func wordAt(runes []rune, idx int) string {
	end := idx
	for end < len(runes) && (unicode.IsLetter(runes[end]) || runes[end] == '.') {
		end++
	}
	return strings.ToLower(strings.Trim(string(runes[idx:end]), "."))
}

func isLowercaseAbbreviation(token string) bool {
	_, ok := lowercaseAbbreviations[token]
	return ok
}

func isClosingRune(r rune) bool {
	switch r {
	case ')', ']', '}', '\'', '"', '’', '”':
		return true
	default:
		return false
	}
}
