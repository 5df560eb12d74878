package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/1ureka/p2pdrop/internal/assets"
	"github.com/1ureka/p2pdrop/internal/identity"
	"github.com/1ureka/p2pdrop/internal/journal"
	"github.com/1ureka/p2pdrop/internal/protocol"
	"github.com/1ureka/p2pdrop/internal/util"
)

// DataChannel is the peer-to-peer link the manager drives. Callbacks may be
// invoked from any goroutine; the manager serializes them.
type DataChannel interface {
	Remote() identity.SessionIdentity
	Send(data []byte) error
	OnOpen(func())
	OnMessage(func([]byte))
	OnClose(func())
	OnError(func(error))
	Close() error
}

// DialFunc requests a new data channel to remote.
type DialFunc func(ctx context.Context, remote identity.SessionIdentity) (DataChannel, error)

// Options configure a Manager. Log and Assets are created when nil.
type Options struct {
	Log    *journal.Log
	Assets *assets.Store
	Dial   DialFunc

	// MaxEnvelopeSize bounds the encoded size of outbound envelopes.
	// Zero disables the check.
	MaxEnvelopeSize int
}

// Manager owns the session: the single active data channel, its lifecycle
// state, the session log and the received/sent file assets.
type Manager struct {
	log     *journal.Log
	assets  *assets.Store
	dial    DialFunc
	maxSize int

	// serial orders inbound handling: each transport callback runs to
	// completion before the next one starts.
	serial sync.Mutex

	mu     sync.Mutex
	state  State
	remote identity.SessionIdentity
	ch     DataChannel
	gen    uint64 // bumped whenever ch is replaced or released
}

// NewManager returns a Manager in the idle state.
func NewManager(opts Options) *Manager {
	m := &Manager{
		log:     opts.Log,
		assets:  opts.Assets,
		dial:    opts.Dial,
		maxSize: opts.MaxEnvelopeSize,
	}
	if m.log == nil {
		m.log = journal.New()
	}
	if m.assets == nil {
		m.assets = assets.NewStore()
	}
	return m
}

// Log returns the session log.
func (m *Manager) Log() *journal.Log { return m.log }

// Assets returns the file assets sent or received during the session.
func (m *Manager) Assets() *assets.Store { return m.assets }

// State reports the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Remote reports the identity of the current or last peer.
func (m *Manager) Remote() identity.SessionIdentity {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.remote
}

// ──────────────────────────────────────────────────────────────────────────────
// Transitions
// ──────────────────────────────────────────────────────────────────────────────

// outcome collects the work a transition leaves for after the lock is dropped.
type outcome struct {
	gen     uint64
	entries []journal.Entry
	stale   DataChannel
	dial    *DialEffect

	closeErr error // from closing stale
}

// apply runs Step for ev under the state lock. Events tagged with a
// generation other than the current one come from a released channel and are
// ignored. gen 0 means "not tied to a channel".
func (m *Manager) apply(gen uint64, ev Event, next DataChannel) outcome {
	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != 0 && gen != m.gen {
		util.LogDebug("Ignoring %s from a released channel", ev.Kind)
		return outcome{}
	}

	prev := m.state
	state, effects := Step(m.state, ev)
	var out outcome

	for _, fx := range effects {
		switch fx := fx.(type) {
		case LogEffect:
			out.entries = append(out.entries, systemEntry(fx))
		case TeardownEffect:
			if m.ch != nil {
				out.stale = m.ch
				m.ch = nil
			}
			m.gen++
		case DialEffect:
			d := fx
			out.dial = &d
		}
	}

	if ev.Kind == EventInitiate || ev.Kind == EventAccept {
		m.gen++
		m.remote = ev.Remote
		m.ch = next
	}
	m.state = state
	out.gen = m.gen

	if prev != state {
		util.LogDebug("Session %s -> %s (%s)", prev, state, ev.Kind)
		switch {
		case state == StateOpen:
			util.Stats.AddConn()
		case prev == StateOpen:
			util.Stats.RemoveConn()
		}
	}
	return out
}

// transition applies ev and performs its deferred effects. It is the single
// entry point for lifecycle events.
func (m *Manager) transition(gen uint64, ev Event, next DataChannel) outcome {
	m.serial.Lock()
	out := m.apply(gen, ev, next)
	for _, e := range out.entries {
		m.log.Append(e)
	}
	m.serial.Unlock()

	// Close runs without any lock held: channels may report the close
	// synchronously from inside Close.
	if out.stale != nil {
		if err := out.stale.Close(); err != nil {
			util.LogDebug("Closing released channel: %v", err)
			out.closeErr = err
		}
	}
	return out
}

// dispatch handles a lifecycle event reported by the channel of generation gen.
func (m *Manager) dispatch(gen uint64, ev Event) {
	m.transition(gen, ev, nil)
}

// attach subscribes the manager to ch's callbacks under generation gen.
// OnMessage goes first: a channel that is already open may deliver as soon
// as OnOpen is registered.
func (m *Manager) attach(gen uint64, ch DataChannel) {
	ch.OnMessage(func(data []byte) { m.receive(gen, data) })
	ch.OnOpen(func() { m.dispatch(gen, Event{Kind: EventOpened}) })
	ch.OnClose(func() { m.dispatch(gen, Event{Kind: EventClosed}) })
	ch.OnError(func(err error) {
		m.dispatch(gen, Event{Kind: EventFailed, Err: &TransportError{Op: "channel", Err: err}})
	})
}

// current returns the active channel if gen is still current.
func (m *Manager) current(gen uint64) (DataChannel, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen || m.ch == nil {
		return nil, false
	}
	return m.ch, true
}

// ──────────────────────────────────────────────────────────────────────────────
// Public operations
// ──────────────────────────────────────────────────────────────────────────────

// Initiate replaces any existing connection with a new one dialed to remote.
// A dial failure moves the session to the error state and is also returned.
// The session stays connecting until the channel reports it is open; there is
// no timeout other than ctx.
func (m *Manager) Initiate(ctx context.Context, remote identity.SessionIdentity) error {
	if m.dial == nil {
		return ErrNoTransport
	}
	m.log.System(fmt.Sprintf("Connecting to: %s...", remote.Short()))

	out := m.transition(0, Event{Kind: EventInitiate, Remote: remote}, nil)
	if out.dial == nil {
		return nil
	}

	ch, err := m.dial(ctx, out.dial.Remote)
	if err != nil {
		terr := &TransportError{Op: "dial", Err: err}
		m.dispatch(out.gen, Event{Kind: EventFailed, Err: terr})
		return terr
	}

	m.mu.Lock()
	superseded := m.gen != out.gen
	if !superseded {
		m.ch = ch
	}
	m.mu.Unlock()

	if superseded {
		util.LogDebug("Dial to %s superseded, closing", remote.Short())
		_ = ch.Close()
		return nil
	}
	m.attach(out.gen, ch)
	return nil
}

// Accept makes ch, an inbound connection attempt, the session's connection,
// replacing any existing one.
func (m *Manager) Accept(ch DataChannel) {
	out := m.transition(0, Event{Kind: EventAccept, Remote: ch.Remote()}, ch)

	util.LogInfo("Accepted connection from %s", ch.Remote().Short())
	m.attach(out.gen, ch)
}

// Serve accepts every channel arriving on incoming until ctx is done or
// incoming is closed.
func Serve[C DataChannel](ctx context.Context, m *Manager, incoming <-chan C) {
	for {
		select {
		case ch, ok := <-incoming:
			if !ok {
				return
			}
			m.Accept(ch)
		case <-ctx.Done():
			return
		}
	}
}

// Close releases the current connection unconditionally. The session log and
// assets are kept.
func (m *Manager) Close() error {
	out := m.transition(0, Event{Kind: EventRelease}, nil)
	if out.closeErr != nil {
		return &TransportError{Op: "close", Err: out.closeErr}
	}
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Inbound
// ──────────────────────────────────────────────────────────────────────────────

// receive decodes one inbound message and records it. Delivery implies an
// active channel, so it is not gated on the open state.
func (m *Manager) receive(gen uint64, data []byte) {
	m.serial.Lock()
	defer m.serial.Unlock()

	if _, ok := m.current(gen); !ok {
		util.LogDebug("Dropping %d bytes from a released channel", len(data))
		return
	}
	util.Stats.AddRecv(len(data))

	env, err := protocol.Decode(data)
	if err != nil {
		util.LogWarning("Dropped inbound envelope: %v", err)
		m.log.System("Dropped malformed envelope")
		return
	}

	switch env := env.(type) {
	case protocol.Chat:
		m.log.Append(journal.Entry{Sender: journal.Remote, Content: env.Content})
	case protocol.File:
		m.receiveFile(env)
	case protocol.Unknown:
		util.LogWarning("Unknown envelope type %q, treating it as a file", env.Type)
		m.receiveFile(env.File)
	}
}

func (m *Manager) receiveFile(f protocol.File) {
	a := m.assets.Add(assets.Asset{
		ID:       f.ID,
		Name:     f.Name,
		MIMEType: f.MIMEType,
		Size:     int64(len(f.Data)),
		Data:     f.Data,
	})
	m.log.Append(journal.Entry{
		Sender:  journal.Remote,
		Content: fmt.Sprintf("Received file: %s", a.Name),
		File:    &journal.FileRef{ID: a.ID, Name: a.Name, Size: a.Size},
	})
}
