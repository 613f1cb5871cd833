// Package presence debounces abrupt disconnects: a player who drops is given
// a grace window to reconnect before the room is told they left and their
// turn is advanced.
package presence

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/KovalDenys1/boardly/internal/bus"
	"github.com/KovalDenys1/boardly/internal/lobby"
	"github.com/KovalDenys1/boardly/internal/match"
	"github.com/KovalDenys1/boardly/internal/telemetry"
)

// DefaultGrace is the reconnect window before a disconnect becomes visible.
const DefaultGrace = 10 * time.Second

type key struct {
	code      string
	principal string
}

// Manager schedules at most one abrupt-disconnect job per (lobby, principal).
// It never mutates game state directly; turn advancement goes through the
// match runtime.
type Manager struct {
	mu      sync.Mutex
	pending map[key]*time.Timer

	grace   time.Duration
	lobbies *lobby.Registry
	runtime *match.Runtime
	events  *bus.Bus
	sink    telemetry.Sink

	// connected reports whether any live socket for the principal remains in
	// the room; wired by the transport hub.
	connected func(lobbyCode, principalID string) bool
}

// NewManager builds a Manager with the default grace window.
func NewManager(lobbies *lobby.Registry, runtime *match.Runtime, events *bus.Bus, sink telemetry.Sink) *Manager {
	if sink == nil {
		sink = telemetry.NopSink{}
	}
	return &Manager{
		pending: make(map[key]*time.Timer),
		grace:   DefaultGrace,
		lobbies: lobbies,
		runtime: runtime,
		events:  events,
		sink:    sink,
	}
}

// SetGrace overrides the grace window (tests, configuration).
func (m *Manager) SetGrace(d time.Duration) { m.grace = d }

// SetConnectedFunc wires the transport's liveness check.
func (m *Manager) SetConnectedFunc(fn func(lobbyCode, principalID string) bool) {
	m.connected = fn
}

func (m *Manager) stillConnected(code, principalID string) bool {
	return m.connected != nil && m.connected(code, principalID)
}

// OnDisconnect schedules the abrupt-disconnect job unless another socket for
// the principal is still in the room. Re-scheduling coalesces onto the
// pending job.
func (m *Manager) OnDisconnect(code, principalID string) {
	if m.stillConnected(code, principalID) {
		return
	}

	k := key{code, principalID}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, scheduled := m.pending[k]; scheduled {
		return
	}
	m.pending[k] = time.AfterFunc(m.grace, func() {
		m.expire(code, principalID)
	})
}

// ClearPendingAbruptDisconnect cancels the job on reconnect. It must run
// before any membership mutation for the reconnecting principal.
func (m *Manager) ClearPendingAbruptDisconnect(code, principalID string) {
	k := key{code, principalID}
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.pending[k]; ok {
		t.Stop()
		delete(m.pending, k)
	}
}

// HasPending reports whether a job is in flight (tests, introspection).
func (m *Manager) HasPending(code, principalID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.pending[key{code, principalID}]
	return ok
}

// expire runs when the grace window lapses without a reconnect.
func (m *Manager) expire(code, principalID string) {
	k := key{code, principalID}
	m.mu.Lock()
	delete(m.pending, k)
	m.mu.Unlock()

	if m.stillConnected(code, principalID) {
		return
	}

	m.lobbies.MarkConnected(code, principalID, false)
	m.events.Publish(code, "player-left", map[string]interface{}{
		"playerId": principalID,
		"reason":   "disconnected",
	})
	m.sink.Log(logrus.InfoLevel, "abrupt disconnect expired", telemetry.Fields{
		"lobby": code, "playerId": principalID,
	})
	m.sink.EmitTelemetry("abrupt_disconnect", telemetry.Fields{"lobby": code, "playerId": principalID})

	if gameID, ok := m.runtime.GameByLobby(code); ok {
		m.runtime.AdvanceTurnIfCurrent(context.Background(), gameID, principalID)
	}
}
