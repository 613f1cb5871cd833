package ws

import (
	"context"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/KovalDenys1/boardly/internal/bus"
	"github.com/KovalDenys1/boardly/internal/models"
)

// connState is the per-connection finite state machine.
type connState int

const (
	stateConnecting connState = iota
	stateAuthenticating
	stateAuthenticated
	stateInLobby
	stateClosing
	stateClosed
)

// outQueueSize bounds the per-connection outbound buffer; overflow marks the
// connection a slow consumer.
const outQueueSize = 64

// Conn is one live transport connection with its bound principal, FSM state,
// joined rooms, and outbound event queue. It implements bus.Subscriber.
type Conn struct {
	id   uuid.UUID
	sock *websocket.Conn

	mu        sync.Mutex
	state     connState
	principal *models.Principal
	joined    map[string]bool

	out     chan bus.Event
	limiter *tokenBucket
	cancel  context.CancelFunc

	adapter *Adapter

	closeOnce sync.Once
}

func (c *Conn) setState(s connState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Conn) getState() connState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Principal returns the bound principal, nil before authentication.
func (c *Conn) Principal() *models.Principal {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.principal
}

func (c *Conn) joinedLobbies() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	codes := make([]string, 0, len(c.joined))
	for code := range c.joined {
		codes = append(codes, code)
	}
	return codes
}

// Enqueue pushes one event without blocking; false flags a slow consumer.
func (c *Conn) Enqueue(ev bus.Event) bool {
	select {
	case c.out <- ev:
		return true
	default:
		return false
	}
}

// DropSlow closes the connection with the slow_consumer reason. The client
// reconnects and catches up via replay.
func (c *Conn) DropSlow(room string) {
	c.closeWith(CloseSlowConsumer, "slow_consumer")
}

// send enqueues a connection-local event (acks, errors, snapshots). These
// carry no room sequence id.
func (c *Conn) send(evType string, payload interface{}) {
	c.Enqueue(bus.Event{Type: evType, Payload: payload, Timestamp: time.Now()})
}

func (c *Conn) sendError(code, message string) {
	c.send("server-error", errorPayload(code, message))
}

func (c *Conn) closeWith(code websocket.StatusCode, reason string) {
	c.closeOnce.Do(func() {
		c.setState(stateClosing)
		c.sock.Close(code, reason)
		if c.cancel != nil {
			c.cancel()
		}
	})
}
