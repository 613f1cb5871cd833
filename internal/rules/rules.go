// Package rules defines the capability contract every game module implements
// and the registry the match runtime resolves engines and bot strategies from.
//
// Engines are pure over their state values: ApplyMove returns a new state and
// never mutates its input, so the runtime can treat validation failures as
// total no-ops and rely on Serialize/Restore round-tripping.
package rules

import (
	"fmt"
	"sync"

	"github.com/KovalDenys1/boardly/internal/models"
)

// Seat is one occupied position in a game, in seat-index order.
type Seat struct {
	PlayerID    string `json:"playerId"`
	DisplayName string `json:"displayName"`
	IsBot       bool   `json:"isBot"`
}

// SeatIndex returns the index of playerID in seats, or -1.
func SeatIndex(seats []Seat, playerID string) int {
	for i, s := range seats {
		if s.PlayerID == playerID {
			return i
		}
	}
	return -1
}

// Config carries the per-lobby rule knobs an engine needs at init.
type Config struct {
	TurnTimerSeconds int `json:"turnTimerSeconds"`
	// TargetRounds bounds multi-round matches; 0 means unlimited.
	TargetRounds int `json:"targetRounds"`
	// BestOf is the throw-round count for games played best-of-N (3 or 5).
	BestOf int `json:"bestOf,omitempty"`
}

// Event is a game-authored notification emitted alongside a state change,
// fanned out to the room by the runtime.
type Event struct {
	Type    string                 `json:"type"`
	Payload map[string]interface{} `json:"payload,omitempty"`
}

// Terminal describes whether a state has reached the end of the current round.
type Terminal struct {
	Finished bool
	// Winner is the winning principal id; empty on a draw or when unfinished.
	Winner string
	Draw   bool
	// Points are the score deltas the runtime credits to memberships when the
	// round finishes. Nil credits nothing, so engines that award a winner
	// point set it here explicitly.
	Points map[string]int
	// Detail carries game-specific result data (winning line, final tallies).
	Detail map[string]interface{}
}

// State is the opaque, game-specific value the engine operates over.
type State interface {
	// CurrentPlayerIndex is the seat index whose move is awaited. Games with
	// simultaneous phases report the first seat that still owes an action.
	CurrentPlayerIndex() int
	Seats() []Seat
	// RoundOver reports whether the current round has ended (terminal reached,
	// awaiting next-round or match end).
	RoundOver() bool
}

// Engine is the capability suite of one game module.
type Engine interface {
	Type() models.GameType
	MinPlayers() int
	MaxPlayers() int

	InitialState(seats []Seat, cfg Config) (State, error)
	// ValidateMove returns nil when the move is acceptable, or a *Violation.
	ValidateMove(s State, m models.Move) error
	// ApplyMove assumes ValidateMove passed. It is pure: the returned state is
	// a new value and the input is unchanged.
	ApplyMove(s State, m models.Move) (State, []Event, error)
	IsTerminal(s State) Terminal
	// FallbackMove is the deterministic move submitted on behalf of a
	// timed-out player. It must pass ValidateMove for that player.
	FallbackMove(s State, playerID string) (models.Move, error)
	// NextRound resets ephemeral round state, keeps accumulated scores, and
	// rotates the starting player.
	NextRound(s State) (State, error)

	Serialize(s State) ([]byte, error)
	Restore(data []byte) (State, error)
}

// Strategy decides a bot's next move. The note is a short human-readable
// label ("thinking", "roll", "score") surfaced as bot-action telemetry.
type Strategy interface {
	NextMove(s State, botID string) (models.Move, string, error)
}

type strategyKey struct {
	gameType   models.GameType
	difficulty models.BotDifficulty
}

// Registry maps game types to engines and (type, difficulty) to strategies.
type Registry struct {
	mu         sync.RWMutex
	engines    map[models.GameType]Engine
	strategies map[strategyKey]Strategy
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		engines:    make(map[models.GameType]Engine),
		strategies: make(map[strategyKey]Strategy),
	}
}

// Register adds an engine, replacing any previous registration for its type.
func (r *Registry) Register(e Engine) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.engines[e.Type()] = e
}

// Engine resolves the engine for a game type.
func (r *Registry) Engine(t models.GameType) (Engine, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.engines[t]
	return e, ok
}

// RegisterStrategy adds a bot strategy for (game type, difficulty).
func (r *Registry) RegisterStrategy(t models.GameType, d models.BotDifficulty, s Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[strategyKey{t, d}] = s
}

// Strategy resolves a bot strategy, falling back to easy when the requested
// difficulty has no registration.
func (r *Registry) Strategy(t models.GameType, d models.BotDifficulty) (Strategy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s, ok := r.strategies[strategyKey{t, d}]; ok {
		return s, true
	}
	s, ok := r.strategies[strategyKey{t, models.BotEasy}]
	return s, ok
}

// MustEngine is Engine for callers that registered the type at startup.
func (r *Registry) MustEngine(t models.GameType) Engine {
	e, ok := r.Engine(t)
	if !ok {
		panic(fmt.Sprintf("rules: no engine registered for game type %q", t))
	}
	return e
}
