package fsm

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func step(t *testing.T, state State, ctx Context, event Event) Result {
	t.Helper()
	res, err := Transition(state, ctx, event)
	require.NoError(t, err)
	return res
}

func actionKinds(actions []Action) []ActionKind {
	kinds := make([]ActionKind, 0, len(actions))
	for _, action := range actions {
		kinds = append(kinds, action.Kind)
	}
	return kinds
}

func TestTransitionChatRetryScenario(t *testing.T) {
	state, ctx := StateIdle, Context{}
	trace := []State{state}

	res := step(t, state, ctx, Event{Type: EventOpenChat})
	state, ctx = res.State, res.Context
	trace = append(trace, state)

	res = step(t, state, ctx, Event{Type: EventSubmit, Value: "hello", RequestID: "r1"})
	state, ctx = res.State, res.Context
	trace = append(trace, state)
	require.Equal(t, []Action{{Kind: ActionSendChat, Text: "hello", RequestID: "r1"}}, res.Actions)

	res = step(t, state, ctx, Event{Type: EventAPIError, Error: "rate limited", RequestID: "r1"})
	state, ctx = res.State, res.Context
	trace = append(trace, state)
	require.Equal(t, "rate limited", ctx.Error)

	res = step(t, state, ctx, Event{Type: EventSubmit, Value: "retry", RequestID: "r2"})
	state, ctx = res.State, res.Context
	trace = append(trace, state)
	require.Empty(t, ctx.Error)

	res = step(t, state, ctx, Event{Type: EventAPISuccess, RequestID: "r2"})
	state, ctx = res.State, res.Context
	trace = append(trace, state)

	require.Equal(t, []State{
		StateIdle, StateChatIdle, StateChatLoading, StateChatError, StateChatLoading, StateChatIdle,
	}, trace)
	require.False(t, ctx.HasError())
	require.Empty(t, ctx.PendingRequestID)
}

func TestTransitionEscCancelsAndIgnoresLateResponse(t *testing.T) {
	res := step(t, StateChatLoading, Context{PendingRequestID: "r1"}, Event{Type: EventEsc})
	require.Equal(t, StateIdle, res.State)
	require.Equal(t, []Action{
		{Kind: ActionCancelChat, RequestID: "r1"},
		{Kind: ActionResetChat},
	}, res.Actions)
	require.Empty(t, res.Context.PendingRequestID)

	for _, late := range []Event{
		{Type: EventAPISuccess, RequestID: "r1"},
		{Type: EventAPIError, Error: "boom", RequestID: "r1"},
	} {
		_, err := Transition(res.State, res.Context, late)
		require.ErrorIs(t, err, ErrUnhandled)
	}
}

func TestTransitionStaleResponseAfterNewRequest(t *testing.T) {
	state, ctx := StateChatLoading, Context{PendingRequestID: "r2"}

	_, err := Transition(state, ctx, Event{Type: EventAPISuccess, RequestID: "r1"})
	require.ErrorIs(t, err, ErrUnhandled)

	_, err = Transition(state, ctx, Event{Type: EventAPIError, Error: "old", RequestID: "r1"})
	require.ErrorIs(t, err, ErrUnhandled)
}

func TestTransitionMicCooldownGuard(t *testing.T) {
	res := step(t, StateIdle, Context{}, Event{Type: EventMicStart, RequestID: "m1"})
	require.Equal(t, StateLiveLoading, res.State)
	require.True(t, res.Context.MicCooldown)
	require.Equal(t, "m1", res.Context.LiveAttemptID)
	require.Equal(t, []ActionKind{ActionStartLive, ActionScheduleCooldown}, actionKinds(res.Actions))
	seq := res.Actions[1].CooldownSeq
	require.Equal(t, res.Context.CooldownSeq, seq)

	res = step(t, res.State, res.Context, Event{Type: EventMicStop})
	require.Equal(t, StateChatIdle, res.State)
	require.Equal(t, []ActionKind{ActionStopLive}, actionKinds(res.Actions))
	require.True(t, res.Context.MicCooldown)

	_, err := Transition(res.State, res.Context, Event{Type: EventMicStart, RequestID: "m2"})
	require.ErrorIs(t, err, ErrUnhandled)

	cleared := step(t, res.State, res.Context, Event{Type: EventClearCooldown, CooldownSeq: seq})
	require.Equal(t, StateChatIdle, cleared.State)
	require.False(t, cleared.Context.MicCooldown)

	again := step(t, cleared.State, cleared.Context, Event{Type: EventMicStart, RequestID: "m2"})
	require.Equal(t, StateLiveLoading, again.State)
	require.Equal(t, seq+1, again.Context.CooldownSeq)
}

func TestTransitionStaleCooldownClearIgnored(t *testing.T) {
	ctx := Context{MicCooldown: true, CooldownSeq: 3}

	_, err := Transition(StateLiveLoading, ctx, Event{Type: EventClearCooldown, CooldownSeq: 2})
	require.ErrorIs(t, err, ErrUnhandled)

	res := step(t, StateLiveLoading, ctx, Event{Type: EventClearCooldown})
	require.False(t, res.Context.MicCooldown)
}

func TestTransitionLiveLifecycle(t *testing.T) {
	res := step(t, StateChatError, Context{Error: "old"}, Event{Type: EventMicStart, RequestID: "m1"})
	require.Equal(t, StateLiveLoading, res.State)
	require.Empty(t, res.Context.Error)

	_, err := Transition(res.State, res.Context, Event{Type: EventLiveReady, RequestID: "stale"})
	require.ErrorIs(t, err, ErrUnhandled)

	streaming := step(t, res.State, res.Context, Event{Type: EventLiveReady, RequestID: "m1"})
	require.Equal(t, StateLiveStreaming, streaming.State)
	require.Empty(t, streaming.Actions)

	typed := step(t, streaming.State, streaming.Context, Event{Type: EventSubmit, Value: "  what now? "})
	require.Equal(t, StateLiveStreaming, typed.State)
	require.Equal(t, []Action{{Kind: ActionSendLiveText, Text: "what now?"}}, typed.Actions)

	failed := step(t, streaming.State, streaming.Context, Event{Type: EventLiveError, Error: "socket closed", RequestID: "m1"})
	require.Equal(t, StateLiveError, failed.State)
	require.Equal(t, "socket closed", failed.Context.Error)

	stopped := step(t, failed.State, failed.Context, Event{Type: EventEsc})
	require.Equal(t, StateChatIdle, stopped.State)
	require.Equal(t, []Action{{Kind: ActionStopLive, RequestID: "m1"}}, stopped.Actions)
	require.Empty(t, stopped.Context.Error)
	require.Empty(t, stopped.Context.LiveAttemptID)
}

func TestTransitionEmptyErrorGetsFallbackMessage(t *testing.T) {
	res := step(t, StateLiveLoading, Context{LiveAttemptID: "m1"}, Event{Type: EventLiveError, RequestID: "m1"})
	require.Equal(t, unknownError, res.Context.Error)
}

func TestTransitionIgnoredEvents(t *testing.T) {
	tests := []struct {
		name  string
		state State
		ctx   Context
		event Event
	}{
		{name: "idle submit", state: StateIdle, event: Event{Type: EventSubmit, Value: "hi"}},
		{name: "idle esc", state: StateIdle, event: Event{Type: EventEsc}},
		{name: "idle mic during cooldown", state: StateIdle, ctx: Context{MicCooldown: true}, event: Event{Type: EventMicStart}},
		{name: "chat idle blank submit", state: StateChatIdle, event: Event{Type: EventSubmit, Value: "   "}},
		{name: "chat error blank submit", state: StateChatError, event: Event{Type: EventSubmit}},
		{name: "chat idle mic stop", state: StateChatIdle, event: Event{Type: EventMicStop}},
		{name: "chat loading submit", state: StateChatLoading, event: Event{Type: EventSubmit, Value: "again"}},
		{name: "chat loading mic start", state: StateChatLoading, event: Event{Type: EventMicStart}},
		{name: "live loading submit", state: StateLiveLoading, event: Event{Type: EventSubmit, Value: "hi"}},
		{name: "live streaming ready", state: StateLiveStreaming, event: Event{Type: EventLiveReady}},
		{name: "live error repeated error", state: StateLiveError, event: Event{Type: EventLiveError}},
		{name: "live open chat", state: StateLiveStreaming, event: Event{Type: EventOpenChat}},
		{name: "idle api success", state: StateIdle, event: Event{Type: EventAPISuccess}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Transition(tc.state, tc.ctx, tc.event)
			require.True(t, errors.Is(err, ErrUnhandled), "got %v", err)
		})
	}
}

func TestTransitionUnknownState(t *testing.T) {
	_, err := Transition(State("bogus"), Context{}, Event{Type: EventEsc})
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrUnhandled)
}

func TestStateMode(t *testing.T) {
	require.Equal(t, ModeIdle, StateIdle.Mode())
	require.Equal(t, ModeChat, StateChatLoading.Mode())
	require.Equal(t, ModeLive, StateLiveStreaming.Mode())
	require.True(t, StateLiveError.IsError())
	require.False(t, StateChatIdle.IsError())
	require.True(t, StateChatIdle.Valid())
	require.False(t, State("live").Valid())
}
