// Package session runs the session state machine and executes its side effects.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/rbright/clonely/internal/fsm"
	"github.com/rbright/clonely/internal/live"
)

// DefaultCooldown is how long MIC_START stays blocked after entering live mode.
const DefaultCooldown = 1200 * time.Millisecond

// ChatClient streams one chat reply. Send must return ctx.Err() when cancelled.
type ChatClient interface {
	Send(ctx context.Context, prompt string, onChunk func(string)) error
	Reset()
}

// LiveService is the session-facing subset of live.Service.
type LiveService interface {
	Start(ctx context.Context, cb live.Callbacks) error
	Stop()
	SendTextInput(text string)
}

// View receives every UI-visible output of the machine.
type View interface {
	Render(prev, next Snapshot)
	ChatChunk(requestID, text string)
	ConversationChunk(chunk live.Chunk)
	Transcript(text string)
}

// Snapshot is an immutable copy of the machine state.
type Snapshot struct {
	State   fsm.State
	Context fsm.Context
	Event   fsm.EventType
}

type noopChat struct{}

func (noopChat) Send(context.Context, string, func(string)) error {
	return errors.New("chat is not configured")
}
func (noopChat) Reset() {}

type noopLive struct{}

func (noopLive) Start(context.Context, live.Callbacks) error {
	return errors.New("live session is not configured")
}
func (noopLive) Stop()                {}
func (noopLive) SendTextInput(string) {}

type noopView struct{}

func (noopView) Render(Snapshot, Snapshot)    {}
func (noopView) ChatChunk(string, string)     {}
func (noopView) ConversationChunk(live.Chunk) {}
func (noopView) Transcript(string)            {}

// Options tunes a Machine. Zero values select defaults.
type Options struct {
	Cooldown time.Duration
	NewID    func() string
	// Hooks run after View.Render for every committed change.
	Hooks []func(prev, next Snapshot)
}

// Machine owns the session state and context. Dispatch is serialized;
// asynchronous results re-enter through Dispatch as new events.
type Machine struct {
	logger   *slog.Logger
	chat     ChatClient
	live     LiveService
	view     View
	cooldown time.Duration
	newID    func() string
	hooks    []func(prev, next Snapshot)

	lifetime context.Context
	shutdown context.CancelFunc
	wg       sync.WaitGroup

	dispatchMu    sync.Mutex
	cooldownTimer *time.Timer
	chatCancels   map[string]context.CancelFunc

	mu    sync.RWMutex
	state fsm.State
	ctx   fsm.Context
}

// NewMachine constructs a machine in Idle with safe fallbacks for nil collaborators.
func NewMachine(logger *slog.Logger, chat ChatClient, liveSvc LiveService, view View, opts Options) *Machine {
	if logger == nil {
		logger = slog.Default()
	}
	if chat == nil {
		chat = noopChat{}
	}
	if liveSvc == nil {
		liveSvc = noopLive{}
	}
	if view == nil {
		view = noopView{}
	}
	if opts.Cooldown <= 0 {
		opts.Cooldown = DefaultCooldown
	}
	if opts.NewID == nil {
		opts.NewID = func() string { return ulid.Make().String() }
	}

	lifetime, shutdown := context.WithCancel(context.Background())
	return &Machine{
		logger:      logger,
		chat:        chat,
		live:        liveSvc,
		view:        view,
		cooldown:    opts.Cooldown,
		newID:       opts.NewID,
		hooks:       opts.Hooks,
		lifetime:    lifetime,
		shutdown:    shutdown,
		chatCancels: make(map[string]context.CancelFunc),
		state:       fsm.StateIdle,
	}
}

// Snapshot returns the current state and context.
func (m *Machine) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Snapshot{State: m.state, Context: m.ctx}
}

// State returns the current leaf state.
func (m *Machine) State() fsm.State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// IsStreaming reports whether media should currently be forwarded.
func (m *Machine) IsStreaming() bool {
	return m.State() == fsm.StateLiveStreaming
}

// Dispatch processes one event to completion. It reports whether the event
// was handled; ignored events leave the machine untouched.
func (m *Machine) Dispatch(event fsm.Event) (Snapshot, bool) {
	m.dispatchMu.Lock()
	defer m.dispatchMu.Unlock()

	if m.lifetime.Err() != nil {
		return m.Snapshot(), false
	}

	if event.RequestID == "" && (event.Type == fsm.EventSubmit || event.Type == fsm.EventMicStart) {
		event.RequestID = m.newID()
	}

	m.mu.Lock()
	prev := Snapshot{State: m.state, Context: m.ctx}
	res, err := fsm.Transition(m.state, m.ctx, event)
	if err != nil {
		m.mu.Unlock()
		m.ignored(prev, event, err)
		return prev, false
	}
	m.state, m.ctx = res.State, res.Context
	next := Snapshot{State: res.State, Context: res.Context, Event: event.Type}
	m.mu.Unlock()

	if prev.State != next.State {
		m.logger.Debug("state transition",
			"from", string(prev.State),
			"to", string(next.State),
			"event", string(event.Type),
		)
	}

	for _, action := range res.Actions {
		m.execute(action)
	}

	m.view.Render(prev, next)
	for _, hook := range m.hooks {
		hook(prev, next)
	}
	return next, true
}

func (m *Machine) ignored(prev Snapshot, event fsm.Event, err error) {
	if !errors.Is(err, fsm.ErrUnhandled) {
		m.logger.Error("state transition failed", "state", string(prev.State), "event", string(event.Type), "error", err.Error())
		return
	}

	switch event.Type {
	case fsm.EventAPISuccess, fsm.EventAPIError:
		m.logger.Debug("dropping stale chat response", "request_id", event.RequestID, "state", string(prev.State))
	case fsm.EventLiveReady:
		if prev.State.Mode() != fsm.ModeLive {
			m.logger.Info("live session became ready after leaving live mode; stopping it", "attempt", event.RequestID)
			m.live.Stop()
		}
	default:
		m.logger.Debug("event ignored", "state", string(prev.State), "event", string(event.Type))
	}
}

func (m *Machine) execute(action fsm.Action) {
	switch action.Kind {
	case fsm.ActionStartLive:
		m.startLive(action.RequestID)
	case fsm.ActionStopLive:
		m.live.Stop()
	case fsm.ActionSendChat:
		m.sendChat(action.RequestID, action.Text)
	case fsm.ActionCancelChat:
		m.cancelChat(action.RequestID)
	case fsm.ActionResetChat:
		m.chat.Reset()
	case fsm.ActionSendLiveText:
		m.live.SendTextInput(action.Text)
	case fsm.ActionScheduleCooldown:
		m.scheduleCooldownClear(action.CooldownSeq)
	default:
		m.logger.Warn("unknown action", "action", string(action.Kind))
	}
}

func (m *Machine) startLive(attempt string) {
	cb := live.Callbacks{
		OnConversationChunk: m.view.ConversationChunk,
		OnTranscript:        m.view.Transcript,
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if err := m.live.Start(m.lifetime, cb); err != nil {
			m.logger.Error("live session start failed", "attempt", attempt, "error", err.Error())
			m.Dispatch(fsm.Event{Type: fsm.EventLiveError, Error: err.Error(), RequestID: attempt})
			return
		}
		m.Dispatch(fsm.Event{Type: fsm.EventLiveReady, RequestID: attempt})
	}()
}

// sendChat gives every request its own cancel func so cancelling one can
// never resolve another.
func (m *Machine) sendChat(requestID, prompt string) {
	reqCtx, cancel := context.WithCancel(m.lifetime)
	m.chatCancels[requestID] = cancel

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		err := m.chat.Send(reqCtx, prompt, func(chunk string) {
			m.deliverChatChunk(requestID, chunk)
		})
		cancelled := reqCtx.Err() != nil
		cancel()

		if cancelled {
			m.logger.Debug("chat request cancelled", "request_id", requestID)
			return
		}
		m.dispatchMu.Lock()
		delete(m.chatCancels, requestID)
		m.dispatchMu.Unlock()

		if err != nil {
			m.logger.Warn("chat request failed", "request_id", requestID, "error", err.Error())
			m.Dispatch(fsm.Event{Type: fsm.EventAPIError, Error: err.Error(), RequestID: requestID})
			return
		}
		m.Dispatch(fsm.Event{Type: fsm.EventAPISuccess, RequestID: requestID})
	}()
}

// cancelChat must be called with dispatchMu held.
func (m *Machine) cancelChat(requestID string) {
	cancel, ok := m.chatCancels[requestID]
	if !ok {
		return
	}
	delete(m.chatCancels, requestID)
	cancel()
}

// deliverChatChunk holds the state lock while the view consumes the chunk,
// so a transition away from the request cannot interleave with it.
func (m *Machine) deliverChatChunk(requestID, chunk string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state != fsm.StateChatLoading || m.ctx.PendingRequestID != requestID {
		return
	}
	m.view.ChatChunk(requestID, chunk)
}

// scheduleCooldownClear must be called with dispatchMu held.
func (m *Machine) scheduleCooldownClear(seq uint64) {
	if m.cooldownTimer != nil {
		m.cooldownTimer.Stop()
	}
	m.cooldownTimer = time.AfterFunc(m.cooldown, func() {
		m.Dispatch(fsm.Event{Type: fsm.EventClearCooldown, CooldownSeq: seq})
	})
}

// FailLive reports a failure of the running live session, such as a
// capture device error, as LIVE_ERROR for the current attempt.
func (m *Machine) FailLive(err error) {
	if err == nil {
		return
	}
	snap := m.Snapshot()
	if snap.State.Mode() != fsm.ModeLive {
		return
	}
	m.Dispatch(fsm.Event{Type: fsm.EventLiveError, Error: err.Error(), RequestID: snap.Context.LiveAttemptID})
}

// Close cancels pending work and stops any live session. The machine
// ignores all events afterwards.
func (m *Machine) Close() {
	m.shutdown()

	m.dispatchMu.Lock()
	if m.cooldownTimer != nil {
		m.cooldownTimer.Stop()
		m.cooldownTimer = nil
	}
	for id, cancel := range m.chatCancels {
		cancel()
		delete(m.chatCancels, id)
	}
	m.dispatchMu.Unlock()

	m.live.Stop()
	m.wg.Wait()
}
