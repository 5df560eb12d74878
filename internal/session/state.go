// Package session implements the connection lifecycle and the transfer of
// envelopes over the single active data channel.
//
// All state changes go through Step, a pure function from (state, event) to
// (next state, effects). Manager applies it under one lock, so transport
// callbacks are handled one at a time and each runs to completion before the
// next is dispatched.
package session

import (
	"fmt"

	"github.com/1ureka/p2pdrop/internal/identity"
	"github.com/1ureka/p2pdrop/internal/journal"
)

// State is the lifecycle state of the session's connection.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosed
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// EventKind enumerates the inputs of the state machine.
type EventKind int

const (
	// EventInitiate: the user asks to dial a remote identity.
	EventInitiate EventKind = iota + 1
	// EventAccept: the transport surfaced an inbound connection attempt.
	EventAccept
	// EventOpened: the data channel is ready.
	EventOpened
	// EventClosed: the peer closed or the link went away.
	EventClosed
	// EventFailed: the transport reported a fault; Err holds the reason.
	EventFailed
	// EventRelease: the local side gives the connection up.
	EventRelease
)

func (k EventKind) String() string {
	switch k {
	case EventInitiate:
		return "initiate"
	case EventAccept:
		return "accept"
	case EventOpened:
		return "opened"
	case EventClosed:
		return "closed"
	case EventFailed:
		return "failed"
	case EventRelease:
		return "release"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is one input to Step.
type Event struct {
	Kind   EventKind
	Remote identity.SessionIdentity
	Err    error
}

// Effect is a side effect requested by Step. The Manager executes them in order.
type Effect interface{ isEffect() }

// LogEffect appends a System entry to the session log.
type LogEffect struct{ Content string }

// TeardownEffect releases the current data channel.
type TeardownEffect struct{}

// DialEffect asks the transport for a data channel to Remote.
type DialEffect struct{ Remote identity.SessionIdentity }

func (LogEffect) isEffect()      {}
func (TeardownEffect) isEffect() {}
func (DialEffect) isEffect()     {}

// System log texts.
const (
	MsgConnected = "Connected to peer."
	MsgClosed    = "Connection closed."
)

// Step returns the next state and the effects of applying ev in state s.
// Pairs not listed below leave the state unchanged and produce no effects:
//
//	any         --initiate--> connecting   [teardown if not idle] dial
//	any         --accept-->   connecting   [teardown if not idle]
//	connecting  --opened-->   open         log "Connected to peer."
//	connecting|open --closed--> closed     log "Connection closed.", teardown
//	connecting|open --failed--> error      log error, teardown
//	connecting|open --release-> closed     teardown
//	other       --release-->  unchanged    teardown
func Step(s State, ev Event) (State, []Effect) {
	switch ev.Kind {
	case EventInitiate, EventAccept:
		var effects []Effect
		if s != StateIdle {
			effects = append(effects, TeardownEffect{})
		}
		if ev.Kind == EventInitiate {
			effects = append(effects, DialEffect{Remote: ev.Remote})
		}
		return StateConnecting, effects

	case EventOpened:
		if s != StateConnecting {
			return s, nil
		}
		return StateOpen, []Effect{LogEffect{Content: MsgConnected}}

	case EventClosed:
		if s != StateConnecting && s != StateOpen {
			return s, nil
		}
		return StateClosed, []Effect{LogEffect{Content: MsgClosed}, TeardownEffect{}}

	case EventFailed:
		if s != StateConnecting && s != StateOpen {
			return s, nil
		}
		return StateError, []Effect{LogEffect{Content: errorText(ev.Err)}, TeardownEffect{}}

	case EventRelease:
		if s == StateConnecting || s == StateOpen {
			return StateClosed, []Effect{TeardownEffect{}}
		}
		return s, []Effect{TeardownEffect{}}
	}
	return s, nil
}

func errorText(err error) string {
	if err == nil {
		return "Connection error occurred."
	}
	return fmt.Sprintf("Connection error occurred: %v", err)
}

// systemEntry converts a LogEffect into a journal entry.
func systemEntry(fx LogEffect) journal.Entry {
	return journal.Entry{Sender: journal.System, Content: fx.Content}
}
