// Package fsm holds the pure session transition table.
//
// Transition never performs side effects. It returns the next leaf state,
// the updated context, and the ordered actions a runtime must execute.
package fsm

import (
	"errors"
	"fmt"
	"strings"
)

// State is a leaf state. Nested states are written as "<mode>.<substate>".
type State string

const (
	StateIdle          State = "idle"
	StateChatIdle      State = "chat.idle"
	StateChatLoading   State = "chat.loading"
	StateChatError     State = "chat.error"
	StateLiveLoading   State = "live.loading"
	StateLiveStreaming State = "live.streaming"
	StateLiveError     State = "live.error"
)

// Mode is the top-level part of a State.
type Mode string

const (
	ModeIdle Mode = "idle"
	ModeChat Mode = "chat"
	ModeLive Mode = "live"
)

// Mode returns the top-level mode of s.
func (s State) Mode() Mode {
	mode, _, _ := strings.Cut(string(s), ".")
	return Mode(mode)
}

// IsError reports whether s is one of the error substates.
func (s State) IsError() bool {
	return s == StateChatError || s == StateLiveError
}

// Valid reports whether s is a known leaf state.
func (s State) Valid() bool {
	switch s {
	case StateIdle, StateChatIdle, StateChatLoading, StateChatError,
		StateLiveLoading, StateLiveStreaming, StateLiveError:
		return true
	default:
		return false
	}
}

type EventType string

const (
	EventOpenChat      EventType = "OPEN_CHAT"
	EventSubmit        EventType = "SUBMIT"
	EventEsc           EventType = "ESC"
	EventMicStart      EventType = "MIC_START"
	EventMicStop       EventType = "MIC_STOP"
	EventAPISuccess    EventType = "API_SUCCESS"
	EventAPIError      EventType = "API_ERROR"
	EventLiveReady     EventType = "LIVE_READY"
	EventLiveError     EventType = "LIVE_ERROR"
	EventClearCooldown EventType = "CLEAR_COOLDOWN"
)

// Event is one input to the machine.
//
// RequestID correlates SUBMIT with API_* and MIC_START with LIVE_*.
// CooldownSeq identifies which scheduled clear a CLEAR_COOLDOWN belongs to;
// zero clears unconditionally.
type Event struct {
	Type        EventType
	Value       string
	Error       string
	RequestID   string
	CooldownSeq uint64
}

const unknownError = "An unknown error occurred."

// Context is the mutable record carried alongside the state.
type Context struct {
	MicCooldown      bool
	CooldownSeq      uint64
	Error            string
	PendingRequestID string
	LiveAttemptID    string
}

// HasError reports whether an error message is set.
func (c Context) HasError() bool { return c.Error != "" }

type ActionKind string

const (
	ActionStartLive        ActionKind = "start_live"
	ActionStopLive         ActionKind = "stop_live"
	ActionSendChat         ActionKind = "send_chat"
	ActionCancelChat       ActionKind = "cancel_chat"
	ActionResetChat        ActionKind = "reset_chat"
	ActionSendLiveText     ActionKind = "send_live_text"
	ActionScheduleCooldown ActionKind = "schedule_cooldown_clear"
)

// Action is a side effect requested by a transition.
type Action struct {
	Kind        ActionKind
	Text        string
	RequestID   string
	CooldownSeq uint64
}

// Result is the outcome of a handled event.
type Result struct {
	State   State
	Context Context
	Actions []Action
}

// ErrUnhandled marks an event the current state does not react to.
// Callers drop such events silently.
var ErrUnhandled = errors.New("unhandled event")

// Transition applies event to (current, ctx).
func Transition(current State, ctx Context, event Event) (Result, error) {
	if event.Type == EventClearCooldown {
		if event.CooldownSeq != 0 && event.CooldownSeq != ctx.CooldownSeq {
			return Result{}, unhandled(current, event)
		}
		ctx.MicCooldown = false
		return Result{State: current, Context: ctx}, nil
	}

	switch current {
	case StateIdle:
		switch event.Type {
		case EventOpenChat:
			return enter(current, StateChatIdle, ctx, event)
		case EventMicStart:
			if ctx.MicCooldown {
				return Result{}, unhandled(current, event)
			}
			return enter(current, StateLiveLoading, ctx, event)
		}
	case StateChatIdle, StateChatError:
		switch event.Type {
		case EventSubmit:
			if strings.TrimSpace(event.Value) == "" {
				return Result{}, unhandled(current, event)
			}
			return enter(current, StateChatLoading, ctx, event)
		case EventMicStart:
			if ctx.MicCooldown {
				return Result{}, unhandled(current, event)
			}
			return enter(current, StateLiveLoading, ctx, event)
		case EventEsc:
			return enter(current, StateIdle, ctx, event)
		}
	case StateChatLoading:
		switch event.Type {
		case EventAPISuccess:
			if event.RequestID != ctx.PendingRequestID {
				return Result{}, unhandled(current, event)
			}
			return enter(current, StateChatIdle, ctx, event)
		case EventAPIError:
			if event.RequestID != ctx.PendingRequestID {
				return Result{}, unhandled(current, event)
			}
			ctx.Error = errorText(event.Error)
			return enter(current, StateChatError, ctx, event)
		case EventEsc:
			return enter(current, StateIdle, ctx, event)
		}
	case StateLiveLoading, StateLiveStreaming, StateLiveError:
		switch event.Type {
		case EventMicStop, EventEsc:
			return enter(current, StateChatIdle, ctx, event)
		case EventLiveReady:
			if current != StateLiveLoading || event.RequestID != ctx.LiveAttemptID {
				return Result{}, unhandled(current, event)
			}
			return enter(current, StateLiveStreaming, ctx, event)
		case EventLiveError:
			if current == StateLiveError || event.RequestID != ctx.LiveAttemptID {
				return Result{}, unhandled(current, event)
			}
			ctx.Error = errorText(event.Error)
			return enter(current, StateLiveError, ctx, event)
		case EventSubmit:
			if current != StateLiveStreaming || strings.TrimSpace(event.Value) == "" {
				return Result{}, unhandled(current, event)
			}
			return Result{
				State:   current,
				Context: ctx,
				Actions: []Action{{Kind: ActionSendLiveText, Text: strings.TrimSpace(event.Value)}},
			}, nil
		}
	default:
		return Result{}, fmt.Errorf("unknown state %q", current)
	}

	return Result{}, unhandled(current, event)
}

// enter runs exit actions for from and entry actions for to.
func enter(from, to State, ctx Context, event Event) (Result, error) {
	actions := make([]Action, 0, 3)

	if from == StateChatLoading && to != StateChatLoading {
		if event.Type == EventEsc {
			actions = append(actions, Action{Kind: ActionCancelChat, RequestID: ctx.PendingRequestID})
		}
		ctx.PendingRequestID = ""
	}
	if from.Mode() == ModeLive && to.Mode() != ModeLive {
		actions = append(actions, Action{Kind: ActionStopLive, RequestID: ctx.LiveAttemptID})
		ctx.LiveAttemptID = ""
	}

	if !to.IsError() {
		ctx.Error = ""
	}

	switch to {
	case StateIdle:
		actions = append(actions, Action{Kind: ActionResetChat})
	case StateChatLoading:
		ctx.PendingRequestID = event.RequestID
		actions = append(actions, Action{
			Kind:      ActionSendChat,
			Text:      strings.TrimSpace(event.Value),
			RequestID: event.RequestID,
		})
	case StateLiveLoading:
		ctx.MicCooldown = true
		ctx.CooldownSeq++
		ctx.LiveAttemptID = event.RequestID
		actions = append(actions,
			Action{Kind: ActionStartLive, RequestID: event.RequestID},
			Action{Kind: ActionScheduleCooldown, CooldownSeq: ctx.CooldownSeq},
		)
	}

	return Result{State: to, Context: ctx, Actions: actions}, nil
}

func errorText(message string) string {
	if strings.TrimSpace(message) == "" {
		return unknownError
	}
	return message
}

func unhandled(state State, event Event) error {
	return fmt.Errorf("%w: %s --(%s)--> ?", ErrUnhandled, state, event.Type)
}
