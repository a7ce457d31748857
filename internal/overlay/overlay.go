// Package overlay is the UI-side subscriber of the session machine. It owns
// the visible answer, the transcript log, and the indicator.
package overlay

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rbright/clonely/internal/fsm"
	"github.com/rbright/clonely/internal/indicator"
	"github.com/rbright/clonely/internal/live"
	"github.com/rbright/clonely/internal/reassembler"
	"github.com/rbright/clonely/internal/session"
	"github.com/rbright/clonely/internal/transcript"
)

// Options configures an Overlay. Zero values select defaults.
type Options struct {
	NoneMarker        string
	AppendMarker      string
	WideWordThreshold int
	Transcript        transcript.Options
	Indicator         indicator.Controller
	Logger            *slog.Logger
}

// Overlay implements session.View.
type Overlay struct {
	logger    *slog.Logger
	indicator indicator.Controller
	answer    *reassembler.Reassembler
	lines     *transcript.Log

	mu          sync.Mutex
	chatRequest string
	wide        bool
	last        session.Snapshot
}

var _ session.View = (*Overlay)(nil)

// New builds an overlay with an empty answer.
func New(opts Options) *Overlay {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Indicator == nil {
		opts.Indicator = noopIndicator{}
	}

	o := &Overlay{
		logger:    opts.Logger,
		indicator: opts.Indicator,
		lines:     transcript.NewLog(opts.Transcript),
		last:      session.Snapshot{State: fsm.StateIdle},
	}
	o.answer = reassembler.New(reassembler.Options{
		NoneMarker:        opts.NoneMarker,
		AppendMarker:      opts.AppendMarker,
		WideWordThreshold: opts.WideWordThreshold,
		OnWidth:           o.setWide,
	})
	return o
}

// Render reacts to a committed machine change.
func (o *Overlay) Render(prev, next session.Snapshot) {
	o.mu.Lock()
	o.last = next
	o.mu.Unlock()

	if prev.State == next.State && prev.Context.Error == next.Context.Error {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if prev.State.Mode() == fsm.ModeLive && next.State.Mode() != fsm.ModeLive {
		o.indicator.CueStop(ctx)
	}

	switch next.State {
	case fsm.StateIdle:
		if prev.State == fsm.StateChatLoading {
			o.indicator.CueCancel(ctx)
		}
		o.clear()
		o.indicator.Hide(ctx)
	case fsm.StateChatIdle:
		if prev.State == fsm.StateChatLoading {
			o.indicator.CueAnswer(ctx)
		}
		o.indicator.Hide(ctx)
	case fsm.StateChatLoading:
		o.indicator.ShowThinking(ctx)
	case fsm.StateLiveLoading:
		o.clear()
		o.indicator.ShowConnecting(ctx)
	case fsm.StateLiveStreaming:
		o.indicator.ShowListening(ctx)
	case fsm.StateChatError, fsm.StateLiveError:
		o.indicator.ShowError(ctx, next.Context.Error)
	}
}

// ChatChunk streams a chat reply. The first chunk of a request replaces the answer.
func (o *Overlay) ChatChunk(requestID, text string) {
	o.mu.Lock()
	fresh := requestID != o.chatRequest
	o.chatRequest = requestID
	o.mu.Unlock()

	if fresh {
		o.answer.Replace(text)
		return
	}
	o.answer.Append(text)
}

// ConversationChunk feeds the live answer through marker handling.
func (o *Overlay) ConversationChunk(chunk live.Chunk) {
	o.answer.Push(reassembler.Chunk{Text: chunk.Text, Reset: chunk.Reset})
}

// Transcript records one final transcription segment.
func (o *Overlay) Transcript(text string) {
	if line := o.lines.Add(text); line != "" {
		o.logger.Debug("transcript segment", "chars", len(line))
	}
}

// Answer returns the visible answer.
func (o *Overlay) Answer() string { return o.answer.Answer() }

// Wide reports whether the answer needs the wide layout.
func (o *Overlay) Wide() bool { return o.answer.Wide() }

// TranscriptLines returns the transcript of the current live session.
func (o *Overlay) TranscriptLines() []string { return o.lines.Lines() }

// Last returns the most recently rendered snapshot.
func (o *Overlay) Last() session.Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.last
}

func (o *Overlay) clear() {
	o.mu.Lock()
	o.chatRequest = ""
	o.mu.Unlock()
	o.answer.Replace("")
	o.lines.Reset()
}

func (o *Overlay) setWide(wide bool) {
	o.mu.Lock()
	changed := o.wide != wide
	o.wide = wide
	o.mu.Unlock()
	if changed {
		o.logger.Debug("overlay width changed", "wide", wide)
	}
}

type noopIndicator struct{}

func (noopIndicator) ShowConnecting(context.Context)    {}
func (noopIndicator) ShowListening(context.Context)     {}
func (noopIndicator) ShowThinking(context.Context)      {}
func (noopIndicator) ShowError(context.Context, string) {}
func (noopIndicator) CueStop(context.Context)           {}
func (noopIndicator) CueAnswer(context.Context)         {}
func (noopIndicator) CueCancel(context.Context)         {}
func (noopIndicator) Hide(context.Context)              {}
