package signaling

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/1ureka/p2pdrop/internal/identity"
	"github.com/1ureka/p2pdrop/internal/util"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	clientInboxCap = 64
)

// ErrIDTaken is returned by Connect when another peer holds the identity.
var ErrIDTaken = errors.New("signaling: " + ErrTextIDTaken)

// ErrClosed is returned by Send after the client is closed.
var ErrClosed = errors.New("signaling: client closed")

// Client is one peer's connection to the relay.
type Client struct {
	id   identity.SessionIdentity
	conn *websocket.Conn

	inbox chan Message
	done  chan struct{}
	once  sync.Once

	mu sync.Mutex // serializes writes
}

// Connect dials the relay's WebSocket endpoint and registers id, e.g.:
//
//	ws://localhost:8080/ws?id=0b6b4a52-9f0c-4d54-8d1e-2a7c3e9f1b20
func Connect(ctx context.Context, relayURL string, id identity.SessionIdentity) (*Client, error) {
	u, err := url.Parse(relayURL)
	if err != nil {
		return nil, fmt.Errorf("relay url: %w", err)
	}
	q := u.Query()
	q.Set("id", id.String())
	u.RawQuery = q.Encode()

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusConflict {
			return nil, ErrIDTaken
		}
		return nil, fmt.Errorf("failed to connect to relay: %w", err)
	}

	c := &Client{
		id:    id,
		conn:  conn,
		inbox: make(chan Message, clientInboxCap),
		done:  make(chan struct{}),
	}
	go c.readPump()
	go c.pingPump()
	return c, nil
}

// ID returns the identity the client registered with.
func (c *Client) ID() identity.SessionIdentity { return c.id }

// Messages returns the messages relayed to this peer. It is closed when the
// connection to the relay ends.
func (c *Client) Messages() <-chan Message { return c.inbox }

// Done is closed when the client is closed.
func (c *Client) Done() <-chan struct{} { return c.done }

// Send writes msg to the relay with Src set to the client's identity.
func (c *Client) Send(msg Message) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	msg.Src = c.id.String()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("write %s to relay: %w", msg.Type, err)
	}
	return nil
}

// Close sends a close frame and tears the connection down.
func (c *Client) Close() error {
	var err error
	c.once.Do(func() {
		close(c.done)
		c.mu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		c.mu.Unlock()
		err = c.conn.Close()
	})
	return err
}

func (c *Client) readPump() {
	defer close(c.inbox)
	defer c.Close()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				util.LogWarning("Relay connection lost: %v", err)
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			util.LogDebug("Ignoring malformed relay message: %v", err)
			continue
		}

		select {
		case c.inbox <- msg:
		case <-c.done:
			return
		}
	}
}

func (c *Client) pingPump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.mu.Lock()
			err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			c.mu.Unlock()
			if err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}
