// Package ws is the transport adapter: it upgrades connections, walks each
// socket through the Authenticating -> Authenticated -> InLobby state
// machine, enforces per-socket rate limits, and bridges room subscriptions
// onto the event bus.
package ws

import (
	"context"
	"encoding/json"
	"html"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/KovalDenys1/boardly/internal/bus"
	"github.com/KovalDenys1/boardly/internal/identity"
	"github.com/KovalDenys1/boardly/internal/lobby"
	"github.com/KovalDenys1/boardly/internal/match"
	"github.com/KovalDenys1/boardly/internal/models"
	"github.com/KovalDenys1/boardly/internal/presence"
	"github.com/KovalDenys1/boardly/internal/telemetry"
)

// Subprotocol clients must negotiate.
const Subprotocol = "boardly"

// authDeadline is the hard handshake timeout, generous enough for cold
// starts.
const authDeadline = 3 * time.Minute

// rateLimit is the default per-socket ops budget.
const (
	rateLimitPerSec = 10.0
	rateLimitBurst  = 10.0
)

// maxChatLen bounds chat messages after HTML escaping.
const maxChatLen = 500

// clientMessage is the envelope for everything a client sends.
type clientMessage struct {
	Type string `json:"type"`

	// auth
	Token      string `json:"token,omitempty"`
	GuestToken string `json:"guestToken,omitempty"`

	// join-lobby / leave-lobby
	Code               string `json:"code,omitempty"`
	LastSeenSequenceID uint64 `json:"lastSeenSequenceId,omitempty"`

	// game-action
	LobbyCode string          `json:"lobbyCode,omitempty"`
	Action    string          `json:"action,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`

	// send-chat-message
	Message string `json:"message,omitempty"`
}

// movePayload is the state-change payload inside a game-action.
type movePayload struct {
	Move struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data,omitempty"`
	} `json:"move"`
}

// Adapter owns every live connection.
type Adapter struct {
	resolver *identity.Resolver
	lobbies  *lobby.Registry
	runtime  *match.Runtime
	presence *presence.Manager
	events   *bus.Bus
	sink     telemetry.Sink
	logger   *logrus.Logger

	hub *hub
}

// NewAdapter wires the adapter and hands its liveness check to the
// disconnect-sync manager.
func NewAdapter(resolver *identity.Resolver, lobbies *lobby.Registry, runtime *match.Runtime, pres *presence.Manager, events *bus.Bus, sink telemetry.Sink, logger *logrus.Logger) *Adapter {
	if sink == nil {
		sink = telemetry.NopSink{}
	}
	a := &Adapter{
		resolver: resolver,
		lobbies:  lobbies,
		runtime:  runtime,
		presence: pres,
		events:   events,
		sink:     sink,
		logger:   logger,
		hub:      newHub(),
	}
	pres.SetConnectedFunc(a.hub.Connected)
	return a
}

// Handler upgrades the HTTP request and runs the connection to completion.
func (a *Adapter) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sock, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{Subprotocol},
			OriginPatterns: []string{"*"},
		})
		if err != nil {
			a.logger.Warnf("websocket accept error: %v", err)
			return
		}
		if sock.Subprotocol() != Subprotocol {
			sock.Close(CloseBadSubprotocol, "client must speak the boardly subprotocol")
			return
		}

		ctx, cancel := context.WithCancel(r.Context())
		c := &Conn{
			id:      uuid.New(),
			sock:    sock,
			state:   stateConnecting,
			joined:  make(map[string]bool),
			out:     make(chan bus.Event, outQueueSize),
			limiter: newTokenBucket(rateLimitPerSec, rateLimitBurst),
			cancel:  cancel,
			adapter: a,
		}
		c.setState(stateAuthenticating)

		// Cookie fallback: an auth_token cookie authenticates without an
		// explicit auth message.
		if cookie, err := r.Cookie("auth_token"); err == nil && cookie.Value != "" {
			if p, err := a.resolver.Resolve(ctx, identity.Credential{SessionToken: cookie.Value}); err == nil {
				a.bindPrincipal(c, p)
			}
		}

		// Hard handshake deadline for connections that never authenticate.
		authTimer := time.AfterFunc(authDeadline, func() {
			if c.getState() == stateAuthenticating {
				c.sendError(CodeAuthRequired, "authentication timed out")
				c.closeWith(CloseAuthTimeout, "auth timeout")
			}
		})
		defer authTimer.Stop()

		go a.writePump(ctx, c)
		a.readPump(ctx, c)
	}
}

func (a *Adapter) bindPrincipal(c *Conn, p *models.Principal) {
	c.mu.Lock()
	c.principal = p
	c.state = stateAuthenticated
	c.mu.Unlock()
	c.send("auth-ok", map[string]interface{}{
		"playerId":    p.ID,
		"displayName": p.DisplayName,
		"isGuest":     p.IsGuest,
	})
	a.logger.WithFields(logrus.Fields{"playerId": p.ID, "conn": c.id}).Info("connection authenticated")
}

// readPump consumes client messages until the socket dies, then runs the
// disconnect path.
func (a *Adapter) readPump(ctx context.Context, c *Conn) {
	defer a.teardown(c)

	c.sock.SetReadLimit(1 << 16)
	for {
		typ, data, err := c.sock.Read(ctx)
		if err != nil {
			return
		}
		if typ != websocket.MessageText {
			continue
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.sendError(CodeInternalError, "malformed message")
			continue
		}
		a.dispatch(ctx, c, &msg)
	}
}

// teardown runs once per connection on socket close: unsubscribe every room
// and hand the principal to the disconnect-sync manager.
func (a *Adapter) teardown(c *Conn) {
	p := c.Principal()
	for _, code := range c.joinedLobbies() {
		a.events.Unsubscribe(code, c)
		if p != nil {
			a.hub.unregister(code, p.ID, c)
			a.presence.OnDisconnect(code, p.ID)
		}
	}
	c.setState(stateClosed)
	if c.cancel != nil {
		c.cancel()
	}
	if p != nil {
		a.logger.WithFields(logrus.Fields{"playerId": p.ID, "conn": c.id}).Info("connection closed")
	}
}

// writePump drains the outbound queue in FIFO order.
func (a *Adapter) writePump(ctx context.Context, c *Conn) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-c.out:
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err = c.sock.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

func (a *Adapter) dispatch(ctx context.Context, c *Conn, msg *clientMessage) {
	switch msg.Type {
	case "auth":
		a.handleAuth(ctx, c, msg)
	case "join-lobby":
		a.handleJoinLobby(ctx, c, msg)
	case "leave-lobby":
		a.handleLeaveLobby(ctx, c, msg)
	case "game-action":
		a.handleGameAction(ctx, c, msg)
	case "send-chat-message":
		a.handleChat(c, msg)
	case "sync-state":
		a.handleSyncState(c, msg)
	case "telemetry":
		a.handleClientTelemetry(c, msg)
	default:
		c.sendError(CodeInternalError, "unknown message type")
	}
}

// handleAuth accepts identity material exactly once.
func (a *Adapter) handleAuth(ctx context.Context, c *Conn, msg *clientMessage) {
	if c.getState() != stateAuthenticating {
		c.sendError(CodeAuthInvalid, "already authenticated")
		return
	}
	p, err := a.resolver.Resolve(ctx, identity.Credential{
		RealtimeToken: msg.Token,
		GuestToken:    msg.GuestToken,
	})
	if err != nil {
		code := CodeAuthInvalid
		if err == identity.ErrAuthRequired {
			code = CodeAuthRequired
		}
		c.sendError(code, "authentication failed")
		c.closeWith(CloseAuthFailed, "auth failed")
		return
	}
	a.bindPrincipal(c, p)
}

// handleJoinLobby subscribes the socket to a room it is a member of.
// Membership is a strict precondition: unknown principals get
// LOBBY_ACCESS_DENIED and are not added to the room.
func (a *Adapter) handleJoinLobby(ctx context.Context, c *Conn, msg *clientMessage) {
	state := c.getState()
	if state != stateAuthenticated && state != stateInLobby {
		c.sendError(CodeAuthRequired, "authenticate before joining a lobby")
		return
	}
	p := c.Principal()
	code := msg.Code

	if err := lobby.ValidateCode(code); err != nil {
		c.sendError(CodeInvalidLobbyCode, "invalid lobby code")
		return
	}

	c.mu.Lock()
	already := c.joined[code]
	c.mu.Unlock()
	if already {
		c.sendError(CodeJoinLobbyError, "already joined this lobby")
		return
	}

	if _, ok := a.lobbies.Member(code, p.ID); !ok {
		c.sendError(CodeLobbyAccessDenied, "join the lobby before connecting to its room")
		a.sink.EmitTelemetry("lobby_join_denied", telemetry.Fields{"lobby": code, "playerId": p.ID})
		return
	}

	// Reconnect path: cancel any pending abrupt-disconnect job before any
	// membership mutation.
	a.presence.ClearPendingAbruptDisconnect(code, p.ID)
	a.lobbies.MarkConnected(code, p.ID, true)
	a.hub.register(code, p.ID, c)

	c.mu.Lock()
	c.joined[code] = true
	c.state = stateInLobby
	c.mu.Unlock()

	// The ack is enqueued before the room subscription, so it precedes every
	// room event on this connection.
	c.send("joined-lobby", map[string]interface{}{
		"lobbyCode": code,
		"success":   true,
	})
	highWater := a.events.Subscribe(code, c)

	if msg.LastSeenSequenceID > 0 {
		a.events.ReplaySince(code, c, msg.LastSeenSequenceID)
	}

	a.resolver.Touch(p.ID)
	a.sink.EmitTelemetry("lobby_joined", telemetry.Fields{
		"lobby": code, "playerId": p.ID, "highWater": highWater,
	})
}

func (a *Adapter) handleLeaveLobby(ctx context.Context, c *Conn, msg *clientMessage) {
	p := c.Principal()
	if p == nil {
		return
	}
	code := msg.Code

	c.mu.Lock()
	wasJoined := c.joined[code]
	delete(c.joined, code)
	c.mu.Unlock()
	if !wasJoined {
		return
	}

	a.events.Unsubscribe(code, c)
	a.hub.unregister(code, p.ID, c)
	if err := a.lobbies.Leave(ctx, code, p.ID); err != nil {
		a.logger.WithFields(logrus.Fields{"lobby": code, "playerId": p.ID}).Warnf("leave failed: %v", err)
	}
}

func (a *Adapter) handleGameAction(ctx context.Context, c *Conn, msg *clientMessage) {
	if c.getState() != stateInLobby {
		c.sendError(CodeJoinLobbyError, "join a lobby first")
		return
	}
	if !c.limiter.Allow() {
		c.sendError(CodeRateLimitExceeded, "slow down")
		return
	}
	p := c.Principal()
	code := msg.LobbyCode

	c.mu.Lock()
	joined := c.joined[code]
	c.mu.Unlock()
	if !joined {
		c.sendError(CodeLobbyAccessDenied, "not in this lobby")
		return
	}

	switch msg.Action {
	case "state-change":
		a.submitMove(ctx, c, code, p, msg.Payload)
	case "chat-message":
		var body struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(msg.Payload, &body); err == nil {
			a.publishChat(c, code, p, body.Message)
		}
	case "typing":
		a.events.Publish(code, "typing", map[string]interface{}{"playerId": p.ID})
	default:
		c.sendError(CodeInvalidMove, "unknown game action")
	}
}

// submitMove re-validates and authors the canonical event; the client's
// playerId is ignored in favor of the socket's bound principal.
func (a *Adapter) submitMove(ctx context.Context, c *Conn, code string, p *models.Principal, payload json.RawMessage) {
	var mp movePayload
	if err := json.Unmarshal(payload, &mp); err != nil || mp.Move.Type == "" {
		c.sendError(CodeInvalidMove, "malformed move payload")
		return
	}

	gameID, ok := a.runtime.GameByLobby(code)
	if !ok {
		c.sendError(CodeGameNotPlaying, "no active game in this lobby")
		return
	}

	move := models.Move{
		PlayerID:  p.ID,
		Type:      mp.Move.Type,
		Data:      mp.Move.Data,
		Timestamp: time.Now(),
	}
	res, err := a.runtime.SubmitMove(ctx, gameID, move)
	if err != nil {
		c.sendError(CodeInternalError, "move could not be processed")
		return
	}
	if !res.Accepted {
		c.sendError(res.Violation.Code, res.Violation.Reason)
		return
	}
	a.resolver.Touch(p.ID)
}

func (a *Adapter) handleChat(c *Conn, msg *clientMessage) {
	if c.getState() != stateInLobby {
		return
	}
	if !c.limiter.Allow() {
		c.sendError(CodeRateLimitExceeded, "slow down")
		return
	}
	p := c.Principal()
	code := msg.LobbyCode
	if code == "" {
		code = msg.Code
	}

	c.mu.Lock()
	joined := c.joined[code]
	c.mu.Unlock()
	if !joined {
		c.sendError(CodeLobbyAccessDenied, "not in this lobby")
		return
	}
	a.publishChat(c, code, p, msg.Message)
}

func (a *Adapter) publishChat(c *Conn, code string, p *models.Principal, message string) {
	escaped := html.EscapeString(message)
	if escaped == "" {
		return
	}
	if len(escaped) > maxChatLen {
		escaped = escaped[:maxChatLen]
	}
	a.events.Publish(code, "chat-message", map[string]interface{}{
		"playerId":    p.ID,
		"displayName": p.DisplayName,
		"message":     escaped,
	})
}

// clientTelemetryEvents are the only client-reported event names accepted;
// they cover the client-owned join-retry protocol.
var clientTelemetryEvents = map[string]bool{
	"lobby_join_retry": true,
	"rejoin_timeout":   true,
}

// handleClientTelemetry forwards whitelisted client-side telemetry (retry
// counters the server cannot observe directly) into the sink.
func (a *Adapter) handleClientTelemetry(c *Conn, msg *clientMessage) {
	p := c.Principal()
	if p == nil || !c.limiter.Allow() {
		return
	}
	var body struct {
		Event string `json:"event"`
	}
	if err := json.Unmarshal(msg.Payload, &body); err != nil || !clientTelemetryEvents[body.Event] {
		return
	}
	a.sink.EmitTelemetry(body.Event, telemetry.Fields{
		"playerId": p.ID,
		"lobby":    msg.LobbyCode,
	})
}

// handleSyncState replies with the authoritative game snapshot, used by
// reconnecting clients before (or instead of) sequence replay.
func (a *Adapter) handleSyncState(c *Conn, msg *clientMessage) {
	if c.getState() != stateInLobby {
		c.sendError(CodeJoinLobbyError, "join a lobby first")
		return
	}
	code := msg.LobbyCode
	if code == "" {
		code = msg.Code
	}

	gameID, ok := a.runtime.GameByLobby(code)
	if !ok {
		c.send("sync-state", map[string]interface{}{"lobbyCode": code, "game": nil})
		return
	}
	model, seats, ok := a.runtime.Snapshot(gameID)
	if !ok {
		c.send("sync-state", map[string]interface{}{"lobbyCode": code, "game": nil})
		return
	}
	c.send("sync-state", map[string]interface{}{
		"lobbyCode": code,
		"game": map[string]interface{}{
			"id":                 model.ID,
			"status":             string(model.Status),
			"gameType":           string(model.GameType),
			"currentPlayerIndex": model.CurrentPlayerIndex,
			"state":              json.RawMessage(model.State),
			"updatedAt":          model.UpdatedAt,
		},
		"seats":      seats,
		"sequenceId": a.events.Sequence(code),
	})
}
