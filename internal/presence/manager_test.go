package presence

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KovalDenys1/boardly/internal/auth"
	"github.com/KovalDenys1/boardly/internal/bus"
	"github.com/KovalDenys1/boardly/internal/identity"
	"github.com/KovalDenys1/boardly/internal/lobby"
	"github.com/KovalDenys1/boardly/internal/match"
	"github.com/KovalDenys1/boardly/internal/models"
	"github.com/KovalDenys1/boardly/internal/rules"
	"github.com/KovalDenys1/boardly/internal/rules/tictactoe"
)

type roomRecorder struct {
	mu     sync.Mutex
	events []bus.Event
}

func (r *roomRecorder) Enqueue(ev bus.Event) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return true
}

func (r *roomRecorder) DropSlow(string) {}

func (r *roomRecorder) count(evType string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Type == evType {
			n++
		}
	}
	return n
}

type fixture struct {
	ctx      context.Context
	manager  *Manager
	lobbies  *lobby.Registry
	runtime  *match.Runtime
	events   *bus.Bus
	recorder *roomRecorder
	lobbyObj *lobby.Lobby
	px, po   *models.Principal

	connMu    sync.Mutex
	connected map[string]bool
}

func (f *fixture) setConnected(principalID string, up bool) {
	f.connMu.Lock()
	defer f.connMu.Unlock()
	f.connected[principalID] = up
}

func newFixture(t *testing.T) (*fixture, *match.LiveGame) {
	t.Helper()
	ctx := context.Background()
	tokens, err := auth.NewTokenService("test-secret")
	require.NoError(t, err)
	resolver := identity.NewResolver(tokens, nil, nil)
	events := bus.New()
	lobbies := lobby.NewRegistry(nil, events, resolver, nil)

	registry := rules.NewRegistry()
	registry.Register(tictactoe.New())
	tictactoe.RegisterStrategies(registry, rand.New(rand.NewSource(1)))
	runtime := match.NewRuntime(registry, lobbies, resolver, nil, events, nil)

	f := &fixture{
		ctx:       ctx,
		lobbies:   lobbies,
		runtime:   runtime,
		events:    events,
		recorder:  &roomRecorder{},
		connected: map[string]bool{},
	}
	f.manager = NewManager(lobbies, runtime, events, nil)
	f.manager.SetGrace(30 * time.Millisecond)
	f.manager.SetConnectedFunc(func(code, principalID string) bool {
		f.connMu.Lock()
		defer f.connMu.Unlock()
		return f.connected[principalID]
	})

	mkPrincipal := func(id, name string) *models.Principal {
		token, err := tokens.CreateGuestToken(id, name, time.Hour)
		require.NoError(t, err)
		p, err := resolver.Resolve(ctx, identity.Credential{GuestToken: token})
		require.NoError(t, err)
		return p
	}
	f.px = mkPrincipal("guest-px0001", "PlayerX")
	f.po = mkPrincipal("guest-po0001", "PlayerO")

	l, err := lobbies.Create(ctx, f.px, lobby.CreateParams{GameType: models.GameTicTacToe, MaxPlayers: 2})
	require.NoError(t, err)
	f.lobbyObj = l
	_, _, err = lobbies.JoinByCode(ctx, l.Model.Code, f.po, "")
	require.NoError(t, err)

	g, err := runtime.CreateGame(ctx, l)
	require.NoError(t, err)
	events.Subscribe(l.Model.Code, f.recorder)
	require.NoError(t, runtime.StartGame(ctx, g.Model.ID, f.px.ID))
	return f, g
}

func TestGraceExpiryAdvancesTurn(t *testing.T) {
	f, g := newFixture(t)
	defer f.runtime.Drop(g.Model.ID)
	code := f.lobbyObj.Model.Code

	// PlayerX (current) drops and never comes back.
	f.setConnected(f.px.ID, false)
	f.manager.OnDisconnect(code, f.px.ID)
	require.True(t, f.manager.HasPending(code, f.px.ID))

	require.Eventually(t, func() bool {
		return f.recorder.count("player-left") == 1
	}, time.Second, 5*time.Millisecond)

	// Membership flagged, fallback move submitted, turn advanced.
	_, members := f.lobbyObj.Snapshot()
	for _, m := range members {
		if m.PrincipalID == f.px.ID {
			assert.False(t, m.IsConnected)
		}
	}
	require.Eventually(t, func() bool {
		model, _, ok := f.runtime.Snapshot(g.Model.ID)
		return ok && model.CurrentPlayerIndex == 1
	}, time.Second, 5*time.Millisecond)
	assert.False(t, f.manager.HasPending(code, f.px.ID))
}

func TestReconnectWithinGraceCancelsJob(t *testing.T) {
	f, g := newFixture(t)
	defer f.runtime.Drop(g.Model.ID)
	code := f.lobbyObj.Model.Code

	f.setConnected(f.px.ID, false)
	f.manager.OnDisconnect(code, f.px.ID)
	require.True(t, f.manager.HasPending(code, f.px.ID))

	// Reconnect inside the window: the job is cancelled before any
	// membership mutation fires.
	f.setConnected(f.px.ID, true)
	f.manager.ClearPendingAbruptDisconnect(code, f.px.ID)
	assert.False(t, f.manager.HasPending(code, f.px.ID))

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 0, f.recorder.count("player-left"), "no player-left after reconnect")

	model, _, ok := f.runtime.Snapshot(g.Model.ID)
	require.True(t, ok)
	assert.Equal(t, 0, model.CurrentPlayerIndex, "turn not advanced")
}

func TestOtherSocketKeepsMembershipAlive(t *testing.T) {
	f, g := newFixture(t)
	defer f.runtime.Drop(g.Model.ID)
	code := f.lobbyObj.Model.Code

	// Another socket for the same principal is still in the room: no job.
	f.setConnected(f.px.ID, true)
	f.manager.OnDisconnect(code, f.px.ID)
	assert.False(t, f.manager.HasPending(code, f.px.ID))
}

func TestReschedulingCoalesces(t *testing.T) {
	f, g := newFixture(t)
	defer f.runtime.Drop(g.Model.ID)
	code := f.lobbyObj.Model.Code

	f.setConnected(f.po.ID, false)
	f.manager.OnDisconnect(code, f.po.ID)
	f.manager.OnDisconnect(code, f.po.ID)
	f.manager.OnDisconnect(code, f.po.ID)

	require.Eventually(t, func() bool {
		return f.recorder.count("player-left") >= 1
	}, time.Second, 5*time.Millisecond)
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 1, f.recorder.count("player-left"), "one job per (lobby, principal)")

	// PlayerO was not current: the turn stays with PlayerX.
	model, _, ok := f.runtime.Snapshot(g.Model.ID)
	require.True(t, ok)
	assert.Equal(t, 0, model.CurrentPlayerIndex)
}
