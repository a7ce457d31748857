// Package transcript keeps the final transcript lines of a live session.
package transcript

import (
	"strings"
	"sync"
)

// Options controls line normalization.
type Options struct {
	// CapitalizeSentences is for transcription output without smart formatting.
	CapitalizeSentences bool
	// MaxLines caps the retained history; zero keeps everything.
	MaxLines int
}

// Normalize collapses whitespace and applies configured casing.
func Normalize(segment string, opts Options) string {
	normalized := strings.Join(strings.Fields(segment), " ")
	if normalized == "" {
		return ""
	}
	if opts.CapitalizeSentences {
		normalized = capitalizeSentences(normalized)
	}
	return normalized
}

// Assemble joins lines into one paragraph.
func Assemble(lines []string, opts Options) string {
	return Normalize(strings.Join(lines, " "), opts)
}

// Log is a concurrency-safe list of transcript lines.
type Log struct {
	opts Options

	mu    sync.Mutex
	lines []string
}

// NewLog returns an empty log.
func NewLog(opts Options) *Log {
	return &Log{opts: opts}
}

// Add normalizes segment and appends it. Blank segments are dropped and
// reported as "".
func (l *Log) Add(segment string) string {
	line := Normalize(segment, l.opts)
	if line == "" {
		return ""
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, line)
	if l.opts.MaxLines > 0 && len(l.lines) > l.opts.MaxLines {
		l.lines = append([]string(nil), l.lines[len(l.lines)-l.opts.MaxLines:]...)
	}
	return line
}

// Lines returns a copy of the retained lines.
func (l *Log) Lines() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.lines...)
}

// Text returns the retained lines as one paragraph.
func (l *Log) Text() string {
	return Assemble(l.Lines(), Options{})
}

// Reset drops every line.
func (l *Log) Reset() {
	l.mu.Lock()
	l.lines = nil
	l.mu.Unlock()
}

func capitalizeSentences(text string) string {
	text = capitalizeSentenceStarts(text)
	text = pronounIContractionPattern.ReplaceAllStringFunc(text, func(match string) string {
		return "I" + match[1:]
	})
	return capitalizeStandalonePronounI(text)
}
