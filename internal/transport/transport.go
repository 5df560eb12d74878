// Package transport provides peer-to-peer data channels over WebRTC,
// negotiated through a signaling relay.
package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/1ureka/p2pdrop/internal/identity"
	"github.com/1ureka/p2pdrop/internal/signaling"
	"github.com/1ureka/p2pdrop/internal/util"
)

// ErrUnavailable is returned when the transport can no longer reach the
// signaling relay or has been closed.
var ErrUnavailable = errors.New("transport unavailable")

// ErrUnreachable is reported on a Conn whose remote peer the relay does not know.
var ErrUnreachable = errors.New("could not connect to peer")

const incomingBufferSize = 4

// Signaler carries signaling messages to and from other peers.
// *signaling.Client implements it.
type Signaler interface {
	Send(msg signaling.Message) error
	Messages() <-chan signaling.Message
}

// Options configure a WebRTC transport.
type Options struct {
	// ICEServers lists STUN/TURN URLs. Nil means DefaultICEServers; an empty,
	// non-nil slice means host candidates only.
	ICEServers []string
}

// WebRTC hands out one Conn per remote peer, dialed with Dial or accepted
// from Incoming. A second connection with the same remote replaces the first.
type WebRTC struct {
	sig        Signaler
	iceServers []string

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	conns    map[identity.SessionIdentity]*Conn
	incoming chan *Conn
	done     chan struct{}
}

// New starts a transport that negotiates through sig until ctx is cancelled,
// Close is called, or sig's message stream ends.
func New(ctx context.Context, sig Signaler, opts Options) *WebRTC {
	ice := opts.ICEServers
	if ice == nil {
		ice = DefaultICEServers
	}

	tCtx, tCancel := context.WithCancel(ctx)
	t := &WebRTC{
		sig:        sig,
		iceServers: ice,
		ctx:        tCtx,
		cancel:     tCancel,
		conns:      make(map[identity.SessionIdentity]*Conn),
		incoming:   make(chan *Conn, incomingBufferSize),
		done:       make(chan struct{}),
	}
	go t.route()
	return t
}

// Incoming delivers connections offered by remote peers. It is closed when
// the transport stops.
func (t *WebRTC) Incoming() <-chan *Conn { return t.incoming }

// Done is closed once the transport has stopped.
func (t *WebRTC) Done() <-chan struct{} { return t.done }

// Dial creates a connection to remote and sends it an offer. The returned
// Conn is not open yet; it reports readiness through OnOpen.
func (t *WebRTC) Dial(ctx context.Context, remote identity.SessionIdentity) (*Conn, error) {
	select {
	case <-t.ctx.Done():
		return nil, ErrUnavailable
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	c, err := t.newConn(remote)
	if err != nil {
		return nil, err
	}
	if err := c.offer(); err != nil {
		c.Close()
		return nil, fmt.Errorf("offer to %s: %w", remote.Short(), err)
	}
	util.LogDebug("Sent offer to %s", remote.Short())
	return c, nil
}

// Close shuts down every connection and stops handling signaling messages.
func (t *WebRTC) Close() error {
	t.cancel()

	t.mu.Lock()
	conns := make([]*Conn, 0, len(t.conns))
	for _, c := range t.conns {
		conns = append(conns, c)
	}
	t.conns = make(map[identity.SessionIdentity]*Conn)
	t.mu.Unlock()

	var errs []error
	for _, c := range conns {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// newConn creates a Conn to remote and records it, closing any previous one.
func (t *WebRTC) newConn(remote identity.SessionIdentity) (*Conn, error) {
	c, err := newConn(t.ctx, remote, t.sig, t.iceServers)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	if t.ctx.Err() != nil {
		t.mu.Unlock()
		c.Close()
		return nil, ErrUnavailable
	}
	prev := t.conns[remote]
	t.conns[remote] = c
	t.mu.Unlock()

	if prev != nil {
		util.LogDebug("Replacing connection to %s", remote.Short())
		prev.Close()
	}

	// Release the PeerConnection however the Conn ends.
	go func() {
		<-c.Done()
		c.Close()
		t.mu.Lock()
		if t.conns[remote] == c {
			delete(t.conns, remote)
		}
		t.mu.Unlock()
	}()
	return c, nil
}

func (t *WebRTC) lookup(remote identity.SessionIdentity) (*Conn, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.conns[remote]
	return c, ok
}

// ---------------------------------------------------------------------------
// Signaling
// ---------------------------------------------------------------------------

// route handles signaling messages one at a time until the transport stops.
func (t *WebRTC) route() {
	defer close(t.done)
	defer close(t.incoming)

	for {
		select {
		case msg, ok := <-t.sig.Messages():
			if !ok {
				util.LogWarning("Signaling relay connection ended")
				t.cancel()
				return
			}
			if err := t.handle(msg); err != nil {
				util.LogWarning("Signaling %s from %s: %v", msg.Type, shortID(msg.Src), err)
			}

		case <-t.ctx.Done():
			return
		}
	}
}

func (t *WebRTC) handle(msg signaling.Message) error {
	remote := identity.SessionIdentity(msg.Src)

	switch msg.Type {
	case signaling.MsgTypeOffer:
		c, err := t.newConn(remote)
		if err != nil {
			return err
		}
		if err := c.answer(msg.SDP); err != nil {
			c.Close()
			return err
		}
		util.LogDebug("Answered offer from %s", remote.Short())

		select {
		case t.incoming <- c:
		case <-t.ctx.Done():
			c.Close()
		}
		return nil

	case signaling.MsgTypeAnswer:
		c, ok := t.lookup(remote)
		if !ok {
			return errors.New("no pending offer")
		}
		return c.acceptAnswer(msg.SDP)

	case signaling.MsgTypeCandidate:
		c, ok := t.lookup(remote)
		if !ok {
			return errors.New("no connection for candidate")
		}
		return c.addCandidate(msg.Candidate)

	case signaling.MsgTypeError:
		// The relay reports about the peer we tried to reach in Src.
		if c, ok := t.lookup(remote); ok {
			c.fail(fmt.Errorf("%w: %s", ErrUnreachable, msg.Error))
		}
		return nil

	case signaling.MsgTypeLeave:
		if c, ok := t.lookup(remote); ok {
			c.markClosed()
		}
		return nil
	}

	return fmt.Errorf("unknown message type %q", msg.Type)
}

func shortID(id string) string {
	return identity.SessionIdentity(id).Short()
}
