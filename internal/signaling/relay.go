package signaling

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/1ureka/p2pdrop/internal/identity"
	"github.com/1ureka/p2pdrop/internal/util"
)

const peerSendBufferSize = 256 // outgoing messages queued per peer

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Relay forwards signaling messages between connected peers by identity.
type Relay struct {
	peers    *registry
	presence Presence
	engine   *gin.Engine
}

// NewRelay builds a relay recording presence in p (in memory when nil).
//
// Routes:
//
//	GET /ws?id=<identity>   signaling WebSocket
//	GET /health             liveness
//	GET /api/peers/:id      presence lookup
func NewRelay(p Presence) *Relay {
	if p == nil {
		p = NewMemoryPresence()
	}
	r := &Relay{peers: newRegistry(), presence: p}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger())

	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "peers": r.peers.len()})
	})
	engine.GET("/api/peers/:id", r.handlePeer)
	engine.GET("/ws", r.handleWS)

	r.engine = engine
	return r
}

// Handler exposes the relay's HTTP routes.
func (r *Relay) Handler() http.Handler { return r.engine }

// Run serves the relay on addr until ctx is cancelled.
func (r *Relay) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: r.engine}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	util.LogSuccess("Signaling relay listening on %s", addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return r.presence.Close()
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		util.LogDebug("%s %s %d (%s)", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}

func (r *Relay) handlePeer(c *gin.Context) {
	id := c.Param("id")
	if !identity.Valid(id) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	online, err := r.presence.Online(c.Request.Context(), id)
	if err != nil {
		util.LogError("Presence lookup for %s: %v", id, err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "presence unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "online": online})
}

func (r *Relay) handleWS(c *gin.Context) {
	id := c.Query("id")
	if !identity.Valid(id) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	p := &peer{
		id:       id,
		send:     make(chan []byte, peerSendBufferSize),
		contacts: make(map[string]struct{}),
	}
	// Reserve the id before the handshake completes, so a peer is routable
	// as soon as its Connect returns.
	if !r.peers.register(p) {
		c.JSON(http.StatusConflict, gin.H{"error": ErrTextIDTaken})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		util.LogWarning("Failed to upgrade connection: %v", err)
		r.peers.unregister(p)
		return
	}
	p.conn = conn

	if err := r.presence.Add(c.Request.Context(), id); err != nil {
		util.LogWarning("Presence add for %s: %v", id, err)
	}
	util.LogInfo("Peer %s connected", identity.SessionIdentity(id).Short())

	go p.writePump(r)
	go p.readPump(r)
}

// forward delivers msg to its destination, answering the sender with an
// error message when nobody holds that id.
func (r *Relay) forward(from *peer, msg Message) {
	to, ok := r.peers.route(msg.Dst)
	if !ok {
		from.enqueue(Message{Type: MsgTypeError, Dst: from.id, Src: msg.Dst, Error: ErrTextUnknownPeer})
		return
	}
	from.addContact(to.id)
	to.addContact(from.id)
	to.enqueue(msg)
}

// ──────────────────────────────────────────────────────────────────────────────
// peer
// ──────────────────────────────────────────────────────────────────────────────

// peer is one WebSocket connection held by the relay.
type peer struct {
	id   string
	conn *websocket.Conn
	send chan []byte

	mu       sync.Mutex
	contacts map[string]struct{} // peers this one exchanged messages with
	closed   bool
}

func (p *peer) addContact(id string) {
	p.mu.Lock()
	p.contacts[id] = struct{}{}
	p.mu.Unlock()
}

// enqueue marshals msg onto the peer's send buffer, dropping it when the
// buffer is full or the peer is gone.
func (p *peer) enqueue(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		util.LogError("Failed to marshal message: %v", err)
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	select {
	case p.send <- data:
	default:
		util.LogWarning("Send buffer full for peer %s, dropping %s", p.id, msg.Type)
	}
}

// shutdown stops the write pump and returns the peer's contacts.
func (p *peer) shutdown() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	close(p.send)

	contacts := make([]string, 0, len(p.contacts))
	for id := range p.contacts {
		contacts = append(contacts, id)
	}
	return contacts
}

func (p *peer) readPump(r *Relay) {
	defer func() {
		r.peers.unregister(p)
		p.conn.Close()

		if err := r.presence.Remove(context.Background(), p.id); err != nil {
			util.LogWarning("Presence remove for %s: %v", p.id, err)
		}
		for _, id := range p.shutdown() {
			if to, ok := r.peers.route(id); ok {
				to.enqueue(Message{Type: MsgTypeLeave, Src: p.id, Dst: id})
			}
		}
		util.LogInfo("Peer %s disconnected", identity.SessionIdentity(p.id).Short())
	}()

	p.conn.SetReadDeadline(time.Now().Add(pongWait))
	p.conn.SetPongHandler(func(string) error {
		return p.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				util.LogWarning("WebSocket error from %s: %v", p.id, err)
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			util.LogDebug("Failed to parse message from %s: %v", p.id, err)
			continue
		}
		msg.Src = p.id

		switch msg.Type {
		case MsgTypeOffer, MsgTypeAnswer, MsgTypeCandidate, MsgTypeLeave:
			r.forward(p, msg)
		default:
			util.LogDebug("Unknown message type from %s: %s", p.id, msg.Type)
		}
	}
}

func (p *peer) writePump(r *Relay) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		p.conn.Close()
	}()

	for {
		select {
		case data, ok := <-p.send:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				p.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := p.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				util.LogDebug("Failed to write to %s: %v", p.id, err)
				return
			}

		case <-ticker.C:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
			// Keep the presence key alive while the peer is connected.
			if err := r.presence.Add(context.Background(), p.id); err != nil {
				util.LogDebug("Presence refresh for %s: %v", p.id, err)
			}
		}
	}
}
