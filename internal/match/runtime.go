// Package match implements the authoritative game loop: turn order, move
// validation, atomic state transitions, multi-round matches, and the turn
// timer that advances stalled human turns.
//
// All writes to one game serialize behind its mutex, and event publication
// happens inside that writer, so emission order equals causal order.
package match

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/KovalDenys1/boardly/internal/bus"
	"github.com/KovalDenys1/boardly/internal/identity"
	"github.com/KovalDenys1/boardly/internal/lobby"
	"github.com/KovalDenys1/boardly/internal/models"
	"github.com/KovalDenys1/boardly/internal/rules"
	"github.com/KovalDenys1/boardly/internal/telemetry"
)

// Runtime errors beyond rules violations.
var (
	ErrGameNotFound = errors.New("game not found")
	ErrNotCreator   = errors.New("only the lobby creator may start the game")
	ErrNotSeated    = errors.New("player is not seated in this game")
	ErrTooFew       = errors.New("not enough players")
)

// DefaultApplyTarget is the end-to-end move apply latency SLO.
const DefaultApplyTarget = 500 * time.Millisecond

// persistAttempts bounds retries before a game is abandoned.
const persistAttempts = 3

// fallbackBurst bounds how many fallback moves a single timeout or
// advance-turn request may chain (a Yahtzee fallback rolls, then scores).
const fallbackBurst = 8

// Repo is the slice of the persistence layer the runtime writes through.
// A nil Repo keeps games purely in memory.
type Repo interface {
	InsertGame(ctx context.Context, g *models.Game) error
	UpdateGame(ctx context.Context, g *models.Game) error
	UpsertPlayer(ctx context.Context, gameID uuid.UUID, m *models.Membership) error
}

// Recorder receives timing samples for the reliability evaluator.
type Recorder interface {
	Record(sample string, value float64)
}

// LiveGame is one in-memory game under its single-writer lock.
type LiveGame struct {
	mu    sync.Mutex
	Model models.Game
	State rules.State
	Seats []rules.Seat
	// TurnID increments on every accepted move; timers capture it to detect
	// stale deadlines.
	TurnID int
}

// Result is the outcome of a submitted move.
type Result struct {
	Accepted  bool
	Violation *rules.Violation
	State     rules.State
	Terminal  rules.Terminal
	Sequence  uint64
}

// Runtime owns every live game.
type Runtime struct {
	mu      sync.Mutex
	games   map[uuid.UUID]*LiveGame
	byLobby map[string]uuid.UUID

	engines  *rules.Registry
	lobbies  *lobby.Registry
	resolver *identity.Resolver
	repo     Repo
	events   *bus.Bus
	sink     telemetry.Sink
	recorder Recorder
	timers   *timerManager

	applyTarget time.Duration

	// onTurn is invoked (outside all locks) after any state change that
	// leaves the game playing; the bot executor hangs off it.
	onTurn func(gameID uuid.UUID)
}

// NewRuntime wires the runtime and registers its game-status lookup with the
// lobby registry. repo and recorder may be nil.
func NewRuntime(engines *rules.Registry, lobbies *lobby.Registry, resolver *identity.Resolver, repo Repo, events *bus.Bus, sink telemetry.Sink) *Runtime {
	if sink == nil {
		sink = telemetry.NopSink{}
	}
	rt := &Runtime{
		games:       make(map[uuid.UUID]*LiveGame),
		byLobby:     make(map[string]uuid.UUID),
		engines:     engines,
		lobbies:     lobbies,
		resolver:    resolver,
		repo:        repo,
		events:      events,
		sink:        sink,
		timers:      newTimerManager(),
		applyTarget: DefaultApplyTarget,
	}
	lobbies.SetGameStatusFunc(rt.StatusByLobby)
	return rt
}

// SetTurnHook registers the bot executor's turn callback.
func (rt *Runtime) SetTurnHook(fn func(gameID uuid.UUID)) { rt.onTurn = fn }

// SetRecorder registers the reliability evaluator's sample recorder.
func (rt *Runtime) SetRecorder(rec Recorder) { rt.recorder = rec }

// SetApplyTarget overrides the move-apply latency SLO.
func (rt *Runtime) SetApplyTarget(d time.Duration) { rt.applyTarget = d }

// CreateGame materializes a waiting game for the lobby's current roster.
func (rt *Runtime) CreateGame(ctx context.Context, l *lobby.Lobby) (*LiveGame, error) {
	model, members := l.Snapshot()
	engine, ok := rt.engines.Engine(model.GameType)
	if !ok {
		return nil, fmt.Errorf("no engine for game type %q", model.GameType)
	}

	seats := rt.seatsFor(members)
	now := time.Now()
	g := &LiveGame{
		Model: models.Game{
			ID:        uuid.New(),
			LobbyCode: model.Code,
			GameType:  model.GameType,
			Status:    models.StatusWaiting,
			CreatedAt: now,
			UpdatedAt: now,
		},
		Seats: seats,
	}

	if len(seats) >= engine.MinPlayers() {
		state, err := engine.InitialState(seats, rt.configFor(model))
		if err != nil {
			return nil, err
		}
		g.State = state
		if blob, err := engine.Serialize(state); err == nil {
			g.Model.State = blob
		}
	}

	rt.mu.Lock()
	rt.games[g.Model.ID] = g
	rt.byLobby[model.Code] = g.Model.ID
	rt.mu.Unlock()
	rt.lobbies.SetActiveGame(model.Code, g.Model.ID)

	if rt.repo != nil {
		if err := rt.repo.InsertGame(ctx, &g.Model); err != nil {
			rt.sink.Log(logrus.WarnLevel, "failed to persist new game", telemetry.Fields{"gameId": g.Model.ID, "error": err.Error()})
		}
	}
	return g, nil
}

func (rt *Runtime) configFor(model models.Lobby) rules.Config {
	return rules.Config{TurnTimerSeconds: model.TurnTimerSeconds}
}

func (rt *Runtime) seatsFor(members []models.Membership) []rules.Seat {
	seats := make([]rules.Seat, 0, len(members))
	for _, m := range members {
		seat := rules.Seat{PlayerID: m.PrincipalID, DisplayName: m.PrincipalID}
		if p, ok := rt.resolver.Get(m.PrincipalID); ok {
			seat.DisplayName = p.DisplayName
			seat.IsBot = p.IsBot
		}
		seats = append(seats, seat)
	}
	return seats
}

// Get returns a live game by id.
func (rt *Runtime) Get(gameID uuid.UUID) (*LiveGame, bool) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	g, ok := rt.games[gameID]
	return g, ok
}

// GameByLobby returns the lobby's active game id.
func (rt *Runtime) GameByLobby(code string) (uuid.UUID, bool) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	id, ok := rt.byLobby[code]
	return id, ok
}

// StatusByLobby reports the lobby's active game status.
func (rt *Runtime) StatusByLobby(code string) (models.GameStatus, bool) {
	id, ok := rt.GameByLobby(code)
	if !ok {
		return "", false
	}
	g, ok := rt.Get(id)
	if !ok {
		return "", false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.Model.Status, true
}

// StartGame transitions waiting -> playing, re-materializing state for the
// final roster, and publishes game-started.
func (rt *Runtime) StartGame(ctx context.Context, gameID uuid.UUID, requesterID string) error {
	g, ok := rt.Get(gameID)
	if !ok {
		return ErrGameNotFound
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	l, ok := rt.lobbies.Get(g.Model.LobbyCode)
	if !ok {
		return lobby.ErrLobbyNotFound
	}
	model, members := l.Snapshot()
	if model.CreatorID != requesterID {
		return ErrNotCreator
	}
	if g.Model.Status != models.StatusWaiting {
		return rules.NotPlaying()
	}
	engine := rt.engines.MustEngine(g.Model.GameType)
	if len(members) < engine.MinPlayers() {
		return fmt.Errorf("%w: need at least %d", ErrTooFew, engine.MinPlayers())
	}

	seats := rt.seatsFor(members)
	state, err := engine.InitialState(seats, rt.configFor(model))
	if err != nil {
		return err
	}
	g.Seats = seats
	g.State = state
	g.Model.Status = models.StatusPlaying
	g.Model.CurrentPlayerIndex = state.CurrentPlayerIndex()
	rt.touchLocked(g)
	if blob, serr := engine.Serialize(state); serr == nil {
		g.Model.State = blob
	}
	rt.persistLocked(ctx, g)
	rt.persistSeatsLocked(ctx, g, members)

	first := seats[state.CurrentPlayerIndex()]
	rt.events.Publish(g.Model.LobbyCode, "game-started", map[string]interface{}{
		"gameId":          g.Model.ID,
		"gameType":        string(g.Model.GameType),
		"firstPlayerName": first.DisplayName,
		"firstPlayerId":   first.PlayerID,
	})
	rt.publishUpdateLocked(g, nil, rules.Terminal{})
	rt.scheduleNextLocked(g)

	go rt.notifyTurn(g.Model.ID)
	return nil
}

// SubmitMove validates and applies one move atomically, persists, publishes,
// and reports the outcome. Rejections mutate nothing.
func (rt *Runtime) SubmitMove(ctx context.Context, gameID uuid.UUID, move models.Move) (res *Result, err error) {
	started := time.Now()
	g, ok := rt.Get(gameID)
	if !ok {
		return nil, ErrGameNotFound
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	// A rules-module panic is a bug, never a crash: reject the move, mark
	// nothing, and record the incident.
	defer func() {
		if r := recover(); r != nil {
			rt.sink.Log(logrus.ErrorLevel, "rules module panic", telemetry.Fields{
				"gameId": gameID, "moveType": move.Type, "panic": fmt.Sprint(r),
			})
			rt.sink.EmitTelemetry("rules_panic", telemetry.Fields{"gameId": gameID.String()})
			res = &Result{Accepted: false, Violation: rules.Invalid("internal rules error")}
			err = nil
		}
	}()

	if g.Model.Status != models.StatusPlaying {
		return &Result{Accepted: false, Violation: rules.NotPlaying()}, nil
	}
	engine := rt.engines.MustEngine(g.Model.GameType)

	if verr := engine.ValidateMove(g.State, move); verr != nil {
		v, ok := rules.AsViolation(verr)
		if !ok {
			return nil, verr
		}
		return &Result{Accepted: false, Violation: v}, nil
	}

	next, emitted, aerr := engine.ApplyMove(g.State, move)
	if aerr != nil {
		if v, ok := rules.AsViolation(aerr); ok {
			return &Result{Accepted: false, Violation: v}, nil
		}
		return nil, aerr
	}

	g.State = next
	g.TurnID++
	g.Model.CurrentPlayerIndex = next.CurrentPlayerIndex()
	rt.touchLocked(g)

	terminal := engine.IsTerminal(next)
	if terminal.Finished {
		g.Model.Status = models.StatusFinished
		rt.timers.Cancel(g.Model.ID)
	}

	if blob, serr := engine.Serialize(next); serr == nil {
		g.Model.State = blob
	} else {
		rt.sink.Log(logrus.ErrorLevel, "state serialize failed", telemetry.Fields{"gameId": gameID, "error": serr.Error()})
	}

	if !rt.persistLocked(ctx, g) {
		rt.abandonLocked(g, "persistence failure")
		return nil, errors.New("game abandoned: persistence failure")
	}

	for _, ev := range emitted {
		rt.events.Publish(g.Model.LobbyCode, ev.Type, ev.Payload)
	}
	seq := rt.publishUpdateLocked(g, &move, terminal)

	if terminal.Finished {
		rt.awardLocked(g, terminal)
	} else {
		rt.scheduleNextLocked(g)
	}

	latency := time.Since(started)
	rt.observeLatency(gameID, move.Type, latency)

	if !terminal.Finished {
		go rt.notifyTurn(g.Model.ID)
	}
	return &Result{Accepted: true, State: next, Terminal: terminal, Sequence: seq}, nil
}

func (rt *Runtime) observeLatency(gameID uuid.UUID, moveType string, latency time.Duration) {
	ms := float64(latency.Microseconds()) / 1000.0
	if rt.recorder != nil {
		rt.recorder.Record("move_apply_ms", ms)
	}
	rt.sink.EmitTelemetry("move_applied", telemetry.Fields{
		"gameId": gameID.String(), "moveType": moveType, "latencyMs": ms,
	})
	if latency > rt.applyTarget {
		rt.sink.EmitTelemetry("move_apply_timeout", telemetry.Fields{
			"gameId": gameID.String(), "moveType": moveType, "latencyMs": ms,
			"targetMs": float64(rt.applyTarget.Milliseconds()),
		})
		if rt.recorder != nil {
			rt.recorder.Record("move_apply_timeout", 1)
		}
	}
}

// touchLocked advances UpdatedAt, keeping it strictly monotonic.
func (rt *Runtime) touchLocked(g *LiveGame) {
	now := time.Now()
	if !now.After(g.Model.UpdatedAt) {
		now = g.Model.UpdatedAt.Add(time.Nanosecond)
	}
	g.Model.UpdatedAt = now
}

// persistLocked writes the game row with bounded retries. Returns false when
// every attempt failed.
func (rt *Runtime) persistLocked(ctx context.Context, g *LiveGame) bool {
	if rt.repo == nil {
		return true
	}
	var lastErr error
	for attempt := 1; attempt <= persistAttempts; attempt++ {
		if lastErr = rt.repo.UpdateGame(ctx, &g.Model); lastErr == nil {
			return true
		}
		time.Sleep(time.Duration(attempt) * 50 * time.Millisecond)
	}
	rt.sink.Log(logrus.ErrorLevel, "game persistence exhausted retries", telemetry.Fields{
		"gameId": g.Model.ID, "error": lastErr.Error(),
	})
	return false
}

func (rt *Runtime) persistSeatsLocked(ctx context.Context, g *LiveGame, members []models.Membership) {
	if rt.repo == nil {
		return
	}
	for i := range members {
		if err := rt.repo.UpsertPlayer(ctx, g.Model.ID, &members[i]); err != nil {
			rt.sink.Log(logrus.WarnLevel, "failed to persist seat", telemetry.Fields{
				"gameId": g.Model.ID, "playerId": members[i].PrincipalID, "error": err.Error(),
			})
		}
	}
}

func (rt *Runtime) abandonLocked(g *LiveGame, reason string) {
	g.Model.Status = models.StatusAbandoned
	rt.timers.Cancel(g.Model.ID)
	rt.events.Publish(g.Model.LobbyCode, "game-abandoned", map[string]interface{}{
		"gameId": g.Model.ID,
		"reason": reason,
	})
	rt.sink.EmitTelemetry("game_abandoned", telemetry.Fields{"gameId": g.Model.ID.String(), "reason": reason})
}

// publishUpdateLocked emits the authoritative game-update and returns its
// sequence id.
func (rt *Runtime) publishUpdateLocked(g *LiveGame, lastMove *models.Move, terminal rules.Terminal) uint64 {
	payload := map[string]interface{}{
		"gameId":             g.Model.ID,
		"status":             string(g.Model.Status),
		"currentPlayerIndex": g.Model.CurrentPlayerIndex,
		"state":              json.RawMessage(g.Model.State),
		"updatedAt":          g.Model.UpdatedAt,
	}
	if lastMove != nil {
		payload["lastMove"] = map[string]interface{}{
			"playerId": lastMove.PlayerID,
			"type":     lastMove.Type,
		}
	}
	if terminal.Finished {
		payload["terminal"] = map[string]interface{}{
			"winner": terminal.Winner,
			"draw":   terminal.Draw,
			"detail": terminal.Detail,
		}
	}
	ev := rt.events.Publish(g.Model.LobbyCode, "game-update", payload)
	return ev.SequenceID
}

func (rt *Runtime) awardLocked(g *LiveGame, terminal rules.Terminal) {
	if len(terminal.Points) > 0 {
		rt.lobbies.AddScores(g.Model.LobbyCode, terminal.Points)
	}
}

// scheduleNextLocked arms the turn timer when the next player is human.
// Bots are driven synchronously by the executor instead.
func (rt *Runtime) scheduleNextLocked(g *LiveGame) {
	if g.Model.Status != models.StatusPlaying || g.State == nil {
		return
	}
	idx := g.State.CurrentPlayerIndex()
	if idx < 0 || idx >= len(g.Seats) || g.Seats[idx].IsBot {
		rt.timers.Cancel(g.Model.ID)
		return
	}

	l, ok := rt.lobbies.Get(g.Model.LobbyCode)
	if !ok {
		return
	}
	model, _ := l.Snapshot()
	budget := time.Duration(model.TurnTimerSeconds) * time.Second

	gameID := g.Model.ID
	turnID := g.TurnID
	rt.timers.Arm(gameID, budget, func() {
		rt.handleTimeout(gameID, turnID)
	})
}

// handleTimeout fires the fallback path if the captured turn is still live.
func (rt *Runtime) handleTimeout(gameID uuid.UUID, turnID int) {
	g, ok := rt.Get(gameID)
	if !ok {
		return
	}
	g.mu.Lock()
	stale := g.Model.Status != models.StatusPlaying || g.TurnID != turnID
	var playerID string
	if !stale {
		playerID = g.Seats[g.State.CurrentPlayerIndex()].PlayerID
	}
	g.mu.Unlock()
	if stale {
		return
	}

	rt.sink.EmitTelemetry("turn_timeout", telemetry.Fields{"gameId": gameID.String(), "playerId": playerID})
	rt.AdvanceTurnIfCurrent(context.Background(), gameID, playerID)
}

// AdvanceTurnIfCurrent submits fallback moves on behalf of playerID until the
// turn passes to someone else or the round ends. Used by the turn timer and
// the disconnect-sync manager.
func (rt *Runtime) AdvanceTurnIfCurrent(ctx context.Context, gameID uuid.UUID, playerID string) {
	for i := 0; i < fallbackBurst; i++ {
		g, ok := rt.Get(gameID)
		if !ok {
			return
		}

		g.mu.Lock()
		if g.Model.Status != models.StatusPlaying || g.State == nil {
			g.mu.Unlock()
			return
		}
		idx := g.State.CurrentPlayerIndex()
		if idx < 0 || idx >= len(g.Seats) || g.Seats[idx].PlayerID != playerID {
			g.mu.Unlock()
			return
		}
		engine := rt.engines.MustEngine(g.Model.GameType)
		move, err := engine.FallbackMove(g.State, playerID)
		g.mu.Unlock()
		if err != nil {
			rt.sink.Log(logrus.WarnLevel, "no fallback move available", telemetry.Fields{
				"gameId": gameID, "playerId": playerID, "error": err.Error(),
			})
			return
		}

		if _, err := rt.SubmitMove(ctx, gameID, move); err != nil {
			return
		}
	}
}

// NextRound starts the following round of a finished game. Any seated player
// may request it.
func (rt *Runtime) NextRound(ctx context.Context, gameID uuid.UUID, requesterID string) error {
	g, ok := rt.Get(gameID)
	if !ok {
		return ErrGameNotFound
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if rules.SeatIndex(g.Seats, requesterID) < 0 {
		return ErrNotSeated
	}
	if g.Model.Status != models.StatusFinished {
		return rules.Invalid("round is still in progress")
	}
	engine := rt.engines.MustEngine(g.Model.GameType)
	next, err := engine.NextRound(g.State)
	if err != nil {
		return err
	}

	g.State = next
	g.TurnID++
	g.Model.Status = models.StatusPlaying
	g.Model.CurrentPlayerIndex = next.CurrentPlayerIndex()
	rt.touchLocked(g)
	if blob, serr := engine.Serialize(next); serr == nil {
		g.Model.State = blob
	}
	rt.persistLocked(ctx, g)

	rt.events.Publish(g.Model.LobbyCode, "round-started", map[string]interface{}{
		"gameId":        g.Model.ID,
		"currentPlayer": g.Seats[next.CurrentPlayerIndex()].PlayerID,
	})
	rt.publishUpdateLocked(g, nil, rules.Terminal{})
	rt.scheduleNextLocked(g)

	go rt.notifyTurn(g.Model.ID)
	return nil
}

// Snapshot returns a copy of the game model plus its serialized state, for
// the state-sync RPC and the HTTP snapshot endpoint.
func (rt *Runtime) Snapshot(gameID uuid.UUID) (models.Game, []rules.Seat, bool) {
	g, ok := rt.Get(gameID)
	if !ok {
		return models.Game{}, nil, false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	model := g.Model
	model.State = append([]byte(nil), g.Model.State...)
	seats := append([]rules.Seat(nil), g.Seats...)
	return model, seats, true
}

// CurrentPlayer reports the live current seat, for the bot executor.
func (rt *Runtime) CurrentPlayer(gameID uuid.UUID) (rules.Seat, models.GameStatus, bool) {
	g, ok := rt.Get(gameID)
	if !ok {
		return rules.Seat{}, "", false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.State == nil {
		return rules.Seat{}, g.Model.Status, false
	}
	idx := g.State.CurrentPlayerIndex()
	if idx < 0 || idx >= len(g.Seats) {
		return rules.Seat{}, g.Model.Status, false
	}
	return g.Seats[idx], g.Model.Status, true
}

// LiveState returns the live rules state for read-only strategy decisions.
func (rt *Runtime) LiveState(gameID uuid.UUID) (rules.State, bool) {
	g, ok := rt.Get(gameID)
	if !ok {
		return nil, false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.State, g.State != nil
}

// Drop removes a live game (lobby closed).
func (rt *Runtime) Drop(gameID uuid.UUID) {
	rt.timers.Cancel(gameID)
	rt.mu.Lock()
	if g, ok := rt.games[gameID]; ok {
		delete(rt.byLobby, g.Model.LobbyCode)
		delete(rt.games, gameID)
	}
	rt.mu.Unlock()
}

func (rt *Runtime) notifyTurn(gameID uuid.UUID) {
	if rt.onTurn != nil {
		rt.onTurn(gameID)
	}
}
