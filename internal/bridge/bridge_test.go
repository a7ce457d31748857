package bridge

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rbright/clonely/internal/fsm"
	"github.com/rbright/clonely/internal/ipc"
	"github.com/rbright/clonely/internal/output"
	"github.com/rbright/clonely/internal/session"
)

// fakeMachine runs the pure transition function without side effects.
type fakeMachine struct {
	mu     sync.Mutex
	state  fsm.State
	ctx    fsm.Context
	events []fsm.Event
}

func newFakeMachine() *fakeMachine { return &fakeMachine{state: fsm.StateIdle} }

func (m *fakeMachine) Dispatch(event fsm.Event) (session.Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if event.Type == fsm.EventSubmit || event.Type == fsm.EventMicStart {
		event.RequestID = "req"
	}
	m.events = append(m.events, event)
	res, err := fsm.Transition(m.state, m.ctx, event)
	if err != nil {
		return session.Snapshot{State: m.state, Context: m.ctx}, false
	}
	m.state, m.ctx = res.State, res.Context
	return session.Snapshot{State: m.state, Context: m.ctx, Event: event.Type}, true
}

func (m *fakeMachine) Snapshot() session.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return session.Snapshot{State: m.state, Context: m.ctx}
}

func (m *fakeMachine) eventTypes() []fsm.EventType {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]fsm.EventType, 0, len(m.events))
	for _, e := range m.events {
		out = append(out, e.Type)
	}
	return out
}

type fakeLive struct {
	finished int
	muted    bool
}

func (l *fakeLive) FinishTurn()                 { l.finished++ }
func (l *fakeLive) ToggleGeminiAudio(mute bool) { l.muted = mute }
func (l *fakeLive) Muted() bool                 { return l.muted }

type fakeAnswers struct {
	answer string
	wide   bool
	lines  []string
}

func (a fakeAnswers) Answer() string            { return a.answer }
func (a fakeAnswers) Wide() bool                { return a.wide }
func (a fakeAnswers) TranscriptLines() []string { return a.lines }

type fakeCopier struct {
	copied []string
	err    error
}

func (c *fakeCopier) Copy(_ context.Context, text string) error {
	if c.err != nil {
		return c.err
	}
	if text == "" {
		return output.ErrNothingToCopy
	}
	c.copied = append(c.copied, text)
	return nil
}

type fixture struct {
	machine *fakeMachine
	live    *fakeLive
	copier  *fakeCopier
	quits   int
	bridge  *Bridge
}

func newFixture(answers fakeAnswers) *fixture {
	f := &fixture{machine: newFakeMachine(), live: &fakeLive{}, copier: &fakeCopier{}}
	f.bridge = New(f.machine, f.live, answers, f.copier, func() { f.quits++ }, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return f
}

func (f *fixture) do(command, value string) ipc.Response {
	return f.bridge.Handle(context.Background(), ipc.Request{Command: command, Value: value})
}

func TestChatSubmitAndEscape(t *testing.T) {
	f := newFixture(fakeAnswers{})

	resp := f.do(CommandChat, "")
	require.True(t, resp.OK)
	require.Equal(t, string(fsm.StateChatIdle), resp.State)

	resp = f.do(CommandSubmit, "what is on my screen?")
	require.Equal(t, string(fsm.StateChatLoading), resp.State)
	require.Equal(t, "req", f.machine.Snapshot().Context.PendingRequestID)

	resp = f.do(CommandEsc, "")
	require.Equal(t, string(fsm.StateIdle), resp.State)
	require.Empty(t, resp.Message)
}

func TestIgnoredEventReportsMessage(t *testing.T) {
	f := newFixture(fakeAnswers{})

	resp := f.do(CommandSubmit, "hello")
	require.True(t, resp.OK)
	require.Equal(t, string(fsm.StateIdle), resp.State)
	require.Equal(t, "submit ignored in idle", resp.Message)
}

func TestMicTogglesBetweenStartAndStop(t *testing.T) {
	f := newFixture(fakeAnswers{})

	resp := f.do(CommandMic, "")
	require.Equal(t, string(fsm.StateLiveLoading), resp.State)
	require.True(t, resp.Cooldown)

	resp = f.do(CommandMic, "")
	require.Equal(t, string(fsm.StateChatIdle), resp.State)

	resp = f.do(CommandMicStart, "")
	require.Equal(t, string(fsm.StateChatIdle), resp.State)
	require.Equal(t, "microphone cooling down", resp.Message)

	require.Equal(t, []fsm.EventType{fsm.EventMicStart, fsm.EventMicStop, fsm.EventMicStart}, f.machine.eventTypes())
}

func TestMicStopOutsideLiveIsIgnored(t *testing.T) {
	f := newFixture(fakeAnswers{})

	resp := f.do(CommandMicStop, "")
	require.True(t, resp.OK)
	require.Equal(t, "mic_stop ignored in idle", resp.Message)
}

func TestDoneAndMuteReachOrchestrator(t *testing.T) {
	f := newFixture(fakeAnswers{})

	require.Equal(t, "turn finished", f.do(CommandDone, "").Message)
	require.Equal(t, 1, f.live.finished)

	require.True(t, f.do(CommandMute, "").Muted)
	require.True(t, f.live.muted)
	require.False(t, f.do(CommandUnmute, "").Muted)
	require.False(t, f.do(CommandStatus, "").Muted)
}

func TestAnswerTranscriptAndCopy(t *testing.T) {
	f := newFixture(fakeAnswers{answer: "Use a hash map.", wide: true, lines: []string{"How do I do this?"}})

	resp := f.do(CommandAnswer, "")
	require.Equal(t, "Use a hash map.", resp.Answer)
	require.True(t, resp.Wide)

	resp = f.do(CommandTranscript, "")
	require.Equal(t, []string{"How do I do this?"}, resp.Transcript)

	resp = f.do(CommandCopy, "")
	require.True(t, resp.OK)
	require.Equal(t, "copied", resp.Message)
	require.Equal(t, []string{"Use a hash map."}, f.copier.copied)
}

func TestCopyWithoutAnswerAndCopyFailure(t *testing.T) {
	f := newFixture(fakeAnswers{})
	require.Equal(t, "nothing to copy", f.do(CommandCopy, "").Message)

	f = newFixture(fakeAnswers{answer: "x"})
	f.copier.err = errors.New("wl-copy missing")
	resp := f.do(CommandCopy, "")
	require.False(t, resp.OK)
	require.Equal(t, "wl-copy missing", resp.Error)
}

func TestStatusCarriesMachineError(t *testing.T) {
	f := newFixture(fakeAnswers{})
	f.do(CommandChat, "")
	f.do(CommandSubmit, "hi")
	f.machine.Dispatch(fsm.Event{Type: fsm.EventAPIError, RequestID: "req", Error: "429 rate limited"})

	resp := f.do(CommandStatus, "")
	require.Equal(t, string(fsm.StateChatError), resp.State)
	require.Equal(t, "429 rate limited", resp.Message)
}

func TestQuitAndUnknownCommands(t *testing.T) {
	f := newFixture(fakeAnswers{})

	resp := f.do(" QUIT ", "")
	require.True(t, resp.OK)
	require.Equal(t, "stopping", resp.Message)
	require.Equal(t, 1, f.quits)

	resp = f.do("toggle", "")
	require.False(t, resp.OK)
	require.Contains(t, resp.Error, "unknown command")

	resp = f.do("", "")
	require.False(t, resp.OK)
	require.Equal(t, "missing command", resp.Error)
}
