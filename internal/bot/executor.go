// Package bot drives bot turns: whenever a state change leaves a bot as the
// current player, the executor resolves the game's strategy for that bot's
// difficulty, emits bot-action telemetry, and submits the chosen move
// through the match runtime like any other player.
package bot

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/KovalDenys1/boardly/internal/bus"
	"github.com/KovalDenys1/boardly/internal/match"
	"github.com/KovalDenys1/boardly/internal/models"
	"github.com/KovalDenys1/boardly/internal/rules"
	"github.com/KovalDenys1/boardly/internal/telemetry"
)

// maxActionsPerWake bounds one bot-turn burst (a Yahtzee turn takes up to
// four moves; chained bot seats multiply that).
const maxActionsPerWake = 64

// DefaultStepDelay paces bot actions so clients can render them.
const DefaultStepDelay = 600 * time.Millisecond

// Executor serializes bot play per game: one acting goroutine at a time, and
// the bot only ever moves while it is actually the current player.
type Executor struct {
	runtime  *match.Runtime
	registry *rules.Registry
	events   *bus.Bus
	sink     telemetry.Sink

	mu           sync.Mutex
	difficulties map[string]models.BotDifficulty
	acting       map[uuid.UUID]bool

	stepDelay time.Duration
}

// NewExecutor wires the executor onto the runtime's turn hook.
func NewExecutor(runtime *match.Runtime, registry *rules.Registry, events *bus.Bus, sink telemetry.Sink) *Executor {
	if sink == nil {
		sink = telemetry.NopSink{}
	}
	e := &Executor{
		runtime:      runtime,
		registry:     registry,
		events:       events,
		sink:         sink,
		difficulties: make(map[string]models.BotDifficulty),
		acting:       make(map[uuid.UUID]bool),
		stepDelay:    DefaultStepDelay,
	}
	runtime.SetTurnHook(e.OnTurn)
	return e
}

// SetStepDelay overrides the pacing delay (tests use zero).
func (e *Executor) SetStepDelay(d time.Duration) { e.stepDelay = d }

// RegisterBot records a bot's difficulty tier.
func (e *Executor) RegisterBot(botID string, difficulty models.BotDifficulty) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.difficulties[botID] = difficulty
}

func (e *Executor) difficulty(botID string) models.BotDifficulty {
	e.mu.Lock()
	defer e.mu.Unlock()
	if d, ok := e.difficulties[botID]; ok {
		return d
	}
	return models.BotEasy
}

// OnTurn wakes the executor for a game. Repeated wakes while a bot is
// already acting coalesce.
func (e *Executor) OnTurn(gameID uuid.UUID) {
	e.mu.Lock()
	if e.acting[gameID] {
		e.mu.Unlock()
		return
	}
	e.acting[gameID] = true
	e.mu.Unlock()

	go func() {
		defer func() {
			e.mu.Lock()
			delete(e.acting, gameID)
			e.mu.Unlock()
		}()
		e.run(gameID)
	}()
}

func (e *Executor) run(gameID uuid.UUID) {
	ctx := context.Background()
	for i := 0; i < maxActionsPerWake; i++ {
		seat, status, ok := e.runtime.CurrentPlayer(gameID)
		if !ok || status != models.StatusPlaying || !seat.IsBot {
			return
		}

		model, _, ok := e.runtime.Snapshot(gameID)
		if !ok {
			return
		}
		state, ok := e.runtime.LiveState(gameID)
		if !ok {
			return
		}

		difficulty := e.difficulty(seat.PlayerID)
		strategy, ok := e.registry.Strategy(model.GameType, difficulty)
		if !ok {
			e.sink.Log(logrus.ErrorLevel, "no bot strategy registered", telemetry.Fields{
				"gameType": string(model.GameType), "difficulty": string(difficulty),
			})
			return
		}

		move, note, err := strategy.NextMove(state, seat.PlayerID)
		if err != nil {
			e.sink.Log(logrus.WarnLevel, "bot strategy failed", telemetry.Fields{
				"gameId": gameID, "botId": seat.PlayerID, "error": err.Error(),
			})
			return
		}

		e.events.Publish(model.LobbyCode, "bot-action", map[string]interface{}{
			"botId":  seat.PlayerID,
			"name":   seat.DisplayName,
			"action": note,
			"move":   move.Type,
		})
		e.sink.EmitTelemetry("bot_action", telemetry.Fields{
			"gameId": gameID.String(), "botId": seat.PlayerID,
			"action": note, "move": move.Type, "difficulty": string(difficulty),
		})

		if e.stepDelay > 0 {
			time.Sleep(e.stepDelay)
		}

		res, err := e.runtime.SubmitMove(ctx, gameID, move)
		if err != nil {
			e.sink.Log(logrus.ErrorLevel, "bot move submission failed", telemetry.Fields{
				"gameId": gameID, "botId": seat.PlayerID, "error": err.Error(),
			})
			return
		}
		if !res.Accepted {
			// A rejected strategy move is a bug in the strategy; stop rather
			// than spin.
			e.sink.Log(logrus.ErrorLevel, "bot move rejected", telemetry.Fields{
				"gameId": gameID, "botId": seat.PlayerID, "code": res.Violation.Code, "reason": res.Violation.Reason,
			})
			return
		}
		if res.Terminal.Finished {
			return
		}
	}
}
