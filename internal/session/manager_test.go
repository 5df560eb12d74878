package session

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/1ureka/p2pdrop/internal/identity"
	"github.com/1ureka/p2pdrop/internal/journal"
	"github.com/1ureka/p2pdrop/internal/protocol"
)

func TestSendOutsideOpenFails(t *testing.T) {
	remote := identity.Generate()

	testCases := []struct {
		name  string
		setup func(m *Manager, ch *mockChannel)
		want  State
	}{
		{"idle", func(*Manager, *mockChannel) {}, StateIdle},
		{"connecting", func(m *Manager, ch *mockChannel) {
			_ = m.Initiate(context.Background(), remote)
		}, StateConnecting},
		{"closed", func(m *Manager, ch *mockChannel) {
			_ = m.Initiate(context.Background(), remote)
			ch.fireOpen()
			ch.fireClose()
		}, StateClosed},
		{"error", func(m *Manager, ch *mockChannel) {
			_ = m.Initiate(context.Background(), remote)
			ch.fireOpen()
			ch.fireError(errors.New("link lost"))
		}, StateError},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ch := newMockChannel(remote)
			m := NewManager(Options{Dial: dialTo(ch)})
			tc.setup(m, ch)
			if got := m.State(); got != tc.want {
				t.Fatalf("state = %s, want %s", got, tc.want)
			}

			before := m.Log().Len()

			if err := m.Send(protocol.Chat{Content: "x"}); !errors.Is(err, ErrNotConnected) {
				t.Errorf("Send err = %v, want ErrNotConnected", err)
			}
			if err := m.SendChat("hello"); !errors.Is(err, ErrNotConnected) {
				t.Errorf("SendChat err = %v, want ErrNotConnected", err)
			}
			if got := m.Log().Len(); got != before {
				t.Errorf("log grew from %d to %d", before, got)
			}
			if n := ch.sentCount(); n != 0 {
				t.Errorf("channel received %d messages", n)
			}
		})
	}
}

func TestConnectionErrorAfterOpen(t *testing.T) {
	ch := newMockChannel(identity.Generate())
	m := openManager(t, ch, Options{})

	before := m.Log().Len()
	ch.fireError(errors.New("dtls: alert"))

	if got := m.State(); got != StateError {
		t.Fatalf("state = %s, want error", got)
	}
	if got := m.Log().Len(); got != before+1 {
		t.Fatalf("log grew by %d entries, want 1", got-before)
	}
	e := lastEntry(t, m.Log())
	if e.Sender != journal.System || !strings.Contains(e.Content, "dtls: alert") {
		t.Errorf("entry = %+v", e)
	}
	if err := m.SendChat("still there?"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("SendChat err = %v, want ErrNotConnected", err)
	}
	if ch.closeCount() != 1 {
		t.Errorf("channel closed %d times, want 1", ch.closeCount())
	}

	// A second report from the same channel changes nothing.
	ch.fireError(errors.New("again"))
	ch.fireClose()
	if got := m.Log().Len(); got != before+1 {
		t.Errorf("late callbacks appended %d entries", got-before-1)
	}
}

func TestOpenAndCloseLogged(t *testing.T) {
	ch := newMockChannel(identity.Generate())
	m := openManager(t, ch, Options{})

	var got []string
	for _, e := range entries(m.Log()) {
		got = append(got, e.Content)
	}
	if len(got) != 2 || !strings.HasPrefix(got[0], "Connecting to: ") || got[1] != MsgConnected {
		t.Fatalf("log = %q", got)
	}
	if !strings.HasSuffix(got[0], ch.Remote().Short()+"...") {
		t.Errorf("connecting entry %q does not name %s", got[0], ch.Remote().Short())
	}

	ch.fireClose()
	if m.State() != StateClosed {
		t.Errorf("state = %s, want closed", m.State())
	}
	if e := lastEntry(t, m.Log()); e.Content != MsgClosed {
		t.Errorf("last entry = %q", e.Content)
	}
}

func TestInitiateReplacesConnection(t *testing.T) {
	first := newMockChannel(identity.Generate())
	second := newMockChannel(identity.Generate())
	next := []*mockChannel{first, second}

	m := NewManager(Options{Dial: func(context.Context, identity.SessionIdentity) (DataChannel, error) {
		ch := next[0]
		next = next[1:]
		return ch, nil
	}})

	if err := m.Initiate(context.Background(), first.Remote()); err != nil {
		t.Fatal(err)
	}
	first.fireOpen()

	if err := m.Initiate(context.Background(), second.Remote()); err != nil {
		t.Fatal(err)
	}
	if first.closeCount() != 1 {
		t.Errorf("replaced channel closed %d times, want 1", first.closeCount())
	}
	if m.State() != StateConnecting || m.Remote() != second.Remote() {
		t.Fatalf("state = %s remote = %s", m.State(), m.Remote())
	}

	// Callbacks from the replaced channel are ignored.
	before := m.Log().Len()
	first.fireClose()
	first.fireError(errors.New("stale"))
	first.deliver([]byte(`{"type":"message","content":"ghost"}`))
	if m.State() != StateConnecting || m.Log().Len() != before {
		t.Errorf("stale callbacks changed the session: state %s, %d new entries", m.State(), m.Log().Len()-before)
	}

	second.fireOpen()
	if m.State() != StateOpen {
		t.Errorf("state = %s, want open", m.State())
	}
}

func TestDialFailure(t *testing.T) {
	refused := errors.New("peer unavailable")
	m := NewManager(Options{Dial: func(context.Context, identity.SessionIdentity) (DataChannel, error) {
		return nil, refused
	}})

	err := m.Initiate(context.Background(), identity.Generate())
	var terr *TransportError
	if !errors.As(err, &terr) || terr.Op != "dial" || !errors.Is(err, refused) {
		t.Fatalf("err = %v, want dial TransportError wrapping %v", err, refused)
	}
	if m.State() != StateError {
		t.Errorf("state = %s, want error", m.State())
	}
	if e := lastEntry(t, m.Log()); !strings.Contains(e.Content, "peer unavailable") {
		t.Errorf("last entry = %q", e.Content)
	}
}

func TestInitiateWithoutTransport(t *testing.T) {
	m := NewManager(Options{})
	if err := m.Initiate(context.Background(), identity.Generate()); !errors.Is(err, ErrNoTransport) {
		t.Errorf("err = %v, want ErrNoTransport", err)
	}
	if m.State() != StateIdle || m.Log().Len() != 0 {
		t.Errorf("state = %s, log = %d", m.State(), m.Log().Len())
	}
}

func TestSupersededDialIsClosed(t *testing.T) {
	ch := newMockChannel(identity.Generate())
	started := make(chan struct{})
	release := make(chan struct{})

	m := NewManager(Options{Dial: func(context.Context, identity.SessionIdentity) (DataChannel, error) {
		close(started)
		<-release
		return ch, nil
	}})

	done := make(chan error, 1)
	go func() { done <- m.Initiate(context.Background(), ch.Remote()) }()

	<-started
	if err := m.Close(); err != nil {
		t.Fatal(err)
	}
	close(release)

	if err := <-done; err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	if ch.closeCount() != 1 {
		t.Errorf("late channel closed %d times, want 1", ch.closeCount())
	}
	if m.State() != StateClosed {
		t.Errorf("state = %s, want closed", m.State())
	}
}

func TestAcceptReplacesAndServes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := NewManager(Options{})
	incoming := make(chan *mockChannel, 2)
	done := make(chan struct{})
	go func() {
		Serve(ctx, m, incoming)
		close(done)
	}()

	first := newMockChannel(identity.Generate())
	incoming <- first
	waitFor(t, "first accept", first.attached)
	first.fireOpen()
	if m.State() != StateOpen {
		t.Fatalf("state = %s, want open", m.State())
	}

	second := newMockChannel(identity.Generate())
	incoming <- second
	waitFor(t, "second accept", second.attached)

	if first.closeCount() != 1 {
		t.Errorf("first channel closed %d times, want 1", first.closeCount())
	}
	if m.State() != StateConnecting || m.Remote() != second.Remote() {
		t.Errorf("state = %s remote = %s, want connecting to second", m.State(), m.Remote())
	}

	close(incoming)
	<-done
}

func TestCloseReleasesChannel(t *testing.T) {
	ch := newMockChannel(identity.Generate())
	m := openManager(t, ch, Options{})

	if err := m.Close(); err != nil {
		t.Fatal(err)
	}
	if ch.closeCount() != 1 {
		t.Errorf("channel closed %d times, want 1", ch.closeCount())
	}
	if m.State() != StateClosed {
		t.Errorf("state = %s, want closed", m.State())
	}
	if err := m.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if err := m.SendChat("bye"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("SendChat err = %v", err)
	}
}

// readyChannel is already open when the manager attaches, and its peer sends
// right away.
type readyChannel struct {
	*mockChannel
	pending []byte
}

func (c *readyChannel) OnOpen(fn func()) {
	c.mockChannel.OnOpen(fn)
	fn()
	c.deliver(c.pending)
}

func TestAcceptReadyChannelKeepsFirstMessage(t *testing.T) {
	data, err := protocol.Encode(protocol.Chat{Content: "sent on open"})
	if err != nil {
		t.Fatal(err)
	}
	ch := &readyChannel{mockChannel: newMockChannel(identity.Generate()), pending: data}

	m := NewManager(Options{})
	m.Accept(ch)

	if m.State() != StateOpen {
		t.Fatalf("state = %s, want open", m.State())
	}
	last := lastEntry(t, m.Log())
	if last.Sender != journal.Remote || last.Content != "sent on open" {
		t.Errorf("last entry = %+v", last)
	}
}

func TestCloseGoesThroughStep(t *testing.T) {
	t.Run("after error", func(t *testing.T) {
		ch := newMockChannel(identity.Generate())
		m := openManager(t, ch, Options{})
		ch.fireError(errors.New("dtls alert"))

		if err := m.Close(); err != nil {
			t.Fatal(err)
		}
		if m.State() != StateError {
			t.Errorf("state = %s, want error to stand", m.State())
		}
		if ch.closeCount() != 1 {
			t.Errorf("channel closed %d times, want 1", ch.closeCount())
		}
	})

	t.Run("close failure", func(t *testing.T) {
		ch := &failingClose{mockChannel: newMockChannel(identity.Generate())}
		m := NewManager(Options{})
		m.Accept(ch)

		err := m.Close()
		var terr *TransportError
		if !errors.As(err, &terr) || terr.Op != "close" {
			t.Fatalf("Close = %v, want TransportError{close}", err)
		}
		if m.State() != StateClosed {
			t.Errorf("state = %s, want closed", m.State())
		}
		if n := m.Log().Len(); n != 0 {
			t.Errorf("Close logged %d entries", n)
		}
	})
}

type failingClose struct{ *mockChannel }

func (c *failingClose) Close() error {
	c.mockChannel.Close()
	return errors.New("already torn down")
}
