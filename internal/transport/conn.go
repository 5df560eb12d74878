package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"

	json "github.com/goccy/go-json"
	"github.com/pion/webrtc/v4"

	"github.com/1ureka/p2pdrop/internal/identity"
	"github.com/1ureka/p2pdrop/internal/signaling"
	"github.com/1ureka/p2pdrop/internal/util"
)

// ErrConnectionFailed is reported when ICE or DTLS gives up on the peer.
var ErrConnectionFailed = errors.New("peer connection failed")

// Conn is one PeerConnection + DataChannel pair to a single remote peer.
//
// Its lifecycle is governed by the DataChannel: OnOpen fires once it is
// usable, OnClose once it is gone. A PeerConnection failure is reported
// through OnError. Handlers registered after the fact are invoked right away,
// so a channel that opened before anyone listened is not missed.
type Conn struct {
	remote identity.SessionIdentity
	sig    Signaler

	pc     *webrtc.PeerConnection
	dc     *webrtc.DataChannel
	sender *sender

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	onOpen    func()
	onMessage func([]byte)
	onClose   func()
	onError   func(error)
	opened    bool
	closed    bool // close reported
	failed    error
	closing   bool     // Close called
	early     [][]byte // messages that arrived before OnMessage

	// ICE candidates are held back until the SDP they belong to has gone
	// out (local) or has been applied (remote).
	signaled      bool
	localPending  []webrtc.ICECandidateInit
	remoteSet     bool
	remotePending []webrtc.ICECandidateInit
}

func newConn(ctx context.Context, remote identity.SessionIdentity, sig Signaler, iceServers []string) (*Conn, error) {
	pc, err := newPeerConnection(iceServers)
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	dc, err := newDataChannel(pc)
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("create data channel: %w", err)
	}

	cCtx, cCancel := context.WithCancel(ctx)
	c := &Conn{
		remote: remote,
		sig:    sig,
		pc:     pc,
		dc:     dc,
		sender: newSender(dc),
		ctx:    cCtx,
		cancel: cCancel,
	}

	dc.OnOpen(c.markOpen)
	dc.OnClose(func() {
		util.LogDebug("DataChannel to %s closed", remote.Short())
		c.markClosed()
	})
	dc.OnError(func(err error) { c.fail(err) })
	dc.OnMessage(func(msg webrtc.DataChannelMessage) { c.deliver(msg.Data) })

	pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			return
		}
		c.sendCandidate(cand.ToJSON())
	})
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		util.LogDebug("PeerConnection to %s: %s", remote.Short(), state)
		switch state {
		case webrtc.PeerConnectionStateFailed:
			c.fail(ErrConnectionFailed)
		case webrtc.PeerConnectionStateClosed:
			c.markClosed()
		}
	})

	return c, nil
}

// ---------------------------------------------------------------------------
// session.DataChannel
// ---------------------------------------------------------------------------

// Remote returns the identity of the peer at the other end.
func (c *Conn) Remote() identity.SessionIdentity { return c.remote }

// Send writes one message, blocking while the channel's buffer is above its
// high water mark.
func (c *Conn) Send(data []byte) error {
	c.mu.Lock()
	opened, closed := c.opened, c.closed || c.closing
	c.mu.Unlock()
	if closed || !opened {
		return fmt.Errorf("data channel to %s is not open", c.remote.Short())
	}
	return c.sender.send(c.ctx, data)
}

func (c *Conn) OnOpen(fn func()) {
	c.mu.Lock()
	c.onOpen = fn
	fire := c.opened
	c.mu.Unlock()
	if fire && fn != nil {
		fn()
	}
}

// OnMessage sets the message handler and hands it any messages received
// while none was set.
func (c *Conn) OnMessage(fn func([]byte)) {
	c.mu.Lock()
	c.onMessage = fn
	var early [][]byte
	if fn != nil {
		early, c.early = c.early, nil
	}
	c.mu.Unlock()

	for _, data := range early {
		fn(data)
	}
}

func (c *Conn) OnClose(fn func()) {
	c.mu.Lock()
	c.onClose = fn
	fire := c.closed
	c.mu.Unlock()
	if fire && fn != nil {
		fn()
	}
}

func (c *Conn) OnError(fn func(error)) {
	c.mu.Lock()
	c.onError = fn
	err := c.failed
	c.mu.Unlock()
	if err != nil && fn != nil {
		fn(err)
	}
}

// Close tells the remote peer we are leaving, then shuts down the
// DataChannel and PeerConnection. Safe to call more than once.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		return nil
	}
	c.closing = true
	announce := !c.closed
	c.mu.Unlock()

	if announce {
		if err := c.signal(signaling.Message{Type: signaling.MsgTypeLeave}); err != nil {
			util.LogDebug("Leave to %s: %v", c.remote.Short(), err)
		}
	}

	c.cancel()
	return errors.Join(c.dc.Close(), c.pc.Close())
}

// Done is closed once the connection is closed locally or by the peer.
func (c *Conn) Done() <-chan struct{} { return c.ctx.Done() }

// deliver passes one inbound message to the handler, or holds it until a
// handler is set. An accepted Conn can open and receive before the session
// attaches to it.
func (c *Conn) deliver(data []byte) {
	c.mu.Lock()
	fn := c.onMessage
	if fn == nil {
		c.early = append(c.early, data)
	}
	c.mu.Unlock()

	if fn != nil {
		fn(data)
	}
}

// ---------------------------------------------------------------------------
// Lifecycle reports
// ---------------------------------------------------------------------------

func (c *Conn) markOpen() {
	c.mu.Lock()
	if c.opened {
		c.mu.Unlock()
		return
	}
	c.opened = true
	fn := c.onOpen
	c.mu.Unlock()

	util.LogDebug("DataChannel to %s open", c.remote.Short())
	if fn != nil {
		fn()
	}
}

func (c *Conn) markClosed() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	fn := c.onClose
	c.mu.Unlock()

	c.cancel()
	if fn != nil {
		fn()
	}
}

func (c *Conn) fail(err error) {
	c.mu.Lock()
	if c.failed != nil || c.closing {
		c.mu.Unlock()
		return
	}
	c.failed = err
	fn := c.onError
	c.mu.Unlock()

	util.LogWarning("Connection to %s failed: %v", c.remote.Short(), err)
	if fn != nil {
		fn(err)
	}
}

// ---------------------------------------------------------------------------
// Signaling
// ---------------------------------------------------------------------------

// signal sends msg to the remote peer through the relay.
func (c *Conn) signal(msg signaling.Message) error {
	msg.Dst = c.remote.String()
	return c.sig.Send(msg)
}

// sendDescription applies sdp locally, sends it, then releases any local
// candidates gathered in the meantime.
func (c *Conn) sendDescription(sdp webrtc.SessionDescription) error {
	if err := c.pc.SetLocalDescription(sdp); err != nil {
		return fmt.Errorf("SetLocalDescription: %w", err)
	}

	typ := signaling.MsgTypeOffer
	if sdp.Type == webrtc.SDPTypeAnswer {
		typ = signaling.MsgTypeAnswer
	}
	if err := c.signal(signaling.Message{Type: typ, SDP: sdp.SDP}); err != nil {
		return err
	}

	c.mu.Lock()
	c.signaled = true
	pending := c.localPending
	c.localPending = nil
	c.mu.Unlock()

	for _, cand := range pending {
		c.sendCandidate(cand)
	}
	return nil
}

// offer starts negotiation from this side.
func (c *Conn) offer() error {
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("CreateOffer: %w", err)
	}
	return c.sendDescription(offer)
}

// answer applies a remote offer and replies to it.
func (c *Conn) answer(sdp string) error {
	if err := c.setRemote(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp}); err != nil {
		return err
	}
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return fmt.Errorf("CreateAnswer: %w", err)
	}
	return c.sendDescription(answer)
}

// acceptAnswer applies the remote answer to our offer.
func (c *Conn) acceptAnswer(sdp string) error {
	return c.setRemote(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp})
}

// setRemote applies the remote description and the candidates that arrived
// before it.
func (c *Conn) setRemote(sdp webrtc.SessionDescription) error {
	if err := c.pc.SetRemoteDescription(sdp); err != nil {
		return fmt.Errorf("SetRemoteDescription: %w", err)
	}

	c.mu.Lock()
	c.remoteSet = true
	pending := c.remotePending
	c.remotePending = nil
	c.mu.Unlock()

	for _, cand := range pending {
		if err := c.pc.AddICECandidate(cand); err != nil {
			util.LogDebug("AddICECandidate from %s: %v", c.remote.Short(), err)
		}
	}
	return nil
}

// addCandidate applies a remote candidate, holding it back until the remote
// description is known.
func (c *Conn) addCandidate(raw string) error {
	var init webrtc.ICECandidateInit
	if err := json.Unmarshal([]byte(raw), &init); err != nil {
		return fmt.Errorf("parse ICE candidate: %w", err)
	}

	c.mu.Lock()
	if !c.remoteSet {
		c.remotePending = append(c.remotePending, init)
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	return c.pc.AddICECandidate(init)
}

// sendCandidate trickles a local candidate, holding it back until our SDP
// has been sent.
func (c *Conn) sendCandidate(init webrtc.ICECandidateInit) {
	c.mu.Lock()
	if !c.signaled {
		c.localPending = append(c.localPending, init)
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	data, err := json.Marshal(init)
	if err != nil {
		util.LogError("Marshal ICE candidate: %v", err)
		return
	}
	// Best effort.
	if err := c.signal(signaling.Message{Type: signaling.MsgTypeCandidate, Candidate: string(data)}); err != nil {
		util.LogDebug("Candidate to %s: %v", c.remote.Short(), err)
	}
}
