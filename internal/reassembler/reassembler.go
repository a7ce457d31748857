// Package reassembler turns live conversation chunks into one visible answer.
package reassembler

import (
	"strings"
	"sync"
)

// Default control markers understood at the start of a turn.
const (
	DefaultNoneMarker   = "<NONE/>"
	DefaultAppendMarker = "<APPEND/>"
)

const (
	defaultWideWordThreshold = 60
	codeFence                = "```"
)

// Chunk is one conversation event. Reset marks the start of a new turn.
type Chunk struct {
	Text  string
	Reset bool
}

// Options configures marker literals and the width heuristic.
type Options struct {
	NoneMarker        string
	AppendMarker      string
	WideWordThreshold int
	// OnWidth is called after every change to the visible answer.
	OnWidth func(wide bool)
}

type decision int

const (
	undecided decision = iota
	decidedNew
	decidedAppend
	decidedSkip
)

// Reassembler is safe for concurrent use.
type Reassembler struct {
	mu      sync.Mutex
	opts    Options
	answer  strings.Builder
	pending strings.Builder
	turn    decision
	wide    bool
}

func New(opts Options) *Reassembler {
	if opts.NoneMarker == "" {
		opts.NoneMarker = DefaultNoneMarker
	}
	if opts.AppendMarker == "" {
		opts.AppendMarker = DefaultAppendMarker
	}
	if opts.WideWordThreshold <= 0 {
		opts.WideWordThreshold = defaultWideWordThreshold
	}
	return &Reassembler{opts: opts}
}

// Push applies one chunk. Reset is processed before Text.
func (r *Reassembler) Push(chunk Chunk) {
	r.mu.Lock()
	changed := false
	if chunk.Reset {
		changed = r.flushPending()
		r.turn = undecided
	}
	if chunk.Text != "" && r.pushText(chunk.Text) {
		changed = true
	}
	wide, notify := r.wide, changed
	r.mu.Unlock()

	if notify && r.opts.OnWidth != nil {
		r.opts.OnWidth(wide)
	}
}

func (r *Reassembler) pushText(text string) bool {
	switch r.turn {
	case decidedSkip:
		return false
	case decidedNew, decidedAppend:
		r.answer.WriteString(text)
		r.refreshWidth()
		return true
	}

	r.pending.WriteString(text)
	buffered := r.pending.String()

	switch {
	case strings.HasPrefix(buffered, r.opts.NoneMarker):
		r.turn = decidedSkip
		r.pending.Reset()
		return false
	case strings.HasPrefix(buffered, r.opts.AppendMarker):
		r.turn = decidedAppend
		r.pending.Reset()
		rest := strings.TrimPrefix(buffered, r.opts.AppendMarker)
		if rest == "" {
			return false
		}
		r.answer.WriteString(rest)
		r.refreshWidth()
		return true
	case r.couldBeMarker(buffered):
		return false
	}

	r.turn = decidedNew
	r.pending.Reset()
	r.answer.Reset()
	r.answer.WriteString(buffered)
	r.refreshWidth()
	return true
}

// flushPending resolves a turn that ended while still looking like a marker
// prefix: the buffered text becomes a new answer.
func (r *Reassembler) flushPending() bool {
	if r.turn != undecided || r.pending.Len() == 0 {
		return false
	}
	buffered := r.pending.String()
	r.pending.Reset()
	r.answer.Reset()
	r.answer.WriteString(buffered)
	r.refreshWidth()
	return true
}

// couldBeMarker reports whether more text might still complete a marker.
func (r *Reassembler) couldBeMarker(buffered string) bool {
	if strings.Contains(buffered, ">") {
		return false
	}
	return strings.HasPrefix(r.opts.NoneMarker, buffered) ||
		strings.HasPrefix(r.opts.AppendMarker, buffered)
}

func (r *Reassembler) refreshWidth() {
	text := r.answer.String()
	r.wide = strings.Contains(text, codeFence) || len(strings.Fields(text)) > r.opts.WideWordThreshold
}

// Replace starts a new answer outside of a live turn, as chat replies do.
func (r *Reassembler) Replace(text string) {
	r.mu.Lock()
	r.turn = decidedNew
	r.pending.Reset()
	r.answer.Reset()
	r.answer.WriteString(text)
	r.refreshWidth()
	wide := r.wide
	r.mu.Unlock()

	if r.opts.OnWidth != nil {
		r.opts.OnWidth(wide)
	}
}

// Append adds text to the visible answer without marker handling.
func (r *Reassembler) Append(text string) {
	if text == "" {
		return
	}
	r.mu.Lock()
	r.answer.WriteString(text)
	r.refreshWidth()
	wide := r.wide
	r.mu.Unlock()

	if r.opts.OnWidth != nil {
		r.opts.OnWidth(wide)
	}
}

// Answer returns the visible answer.
func (r *Reassembler) Answer() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.answer.String()
}

// Wide reports the last width decision.
func (r *Reassembler) Wide() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.wide
}
