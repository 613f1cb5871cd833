// Package rps implements the Rock-Paper-Scissors rules module: simultaneous
// submission followed by a reveal, best-of-N with N in {3, 5}. Tied
// throw-rounds do not count toward N.
package rps

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/KovalDenys1/boardly/internal/models"
	"github.com/KovalDenys1/boardly/internal/rules"
)

// MoveTypeThrow submits one player's hidden choice for the current throw-round.
const MoveTypeThrow = "throw"

// Choices.
const (
	Rock     = "rock"
	Paper    = "paper"
	Scissors = "scissors"
)

// beats maps each choice to the choice it defeats.
var beats = map[string]string{
	Rock:     Scissors,
	Paper:    Rock,
	Scissors: Paper,
}

type matchAggregate struct {
	TargetRounds int            `json:"targetRounds"`
	RoundsPlayed int            `json:"roundsPlayed"`
	WinsByPlayer map[string]int `json:"winsByPlayer"`
	Draws        int            `json:"draws"`
}

type state struct {
	SeatList []rules.Seat      `json:"seats"`
	BestOf   int               `json:"bestOf"`
	Throws   map[string]string `json:"throws"`
	Wins     map[string]int    `json:"wins"`
	Ties     int               `json:"ties"`
	// History counts each player's past revealed choices, for bot heuristics.
	History  map[string]map[string]int `json:"history"`
	LastWin  map[string]string         `json:"lastWin,omitempty"`
	Over     bool                      `json:"over"`
	WinnerID string                    `json:"winnerId,omitempty"`
	Match    matchAggregate            `json:"match"`
}

// CurrentPlayerIndex reports the first seat that still owes a throw, since
// submission is simultaneous.
func (s *state) CurrentPlayerIndex() int {
	for i, seat := range s.SeatList {
		if _, thrown := s.Throws[seat.PlayerID]; !thrown {
			return i
		}
	}
	return 0
}

func (s *state) Seats() []rules.Seat { return s.SeatList }
func (s *state) RoundOver() bool     { return s.Over }

func (s *state) clone() *state {
	out := *s
	out.SeatList = append([]rules.Seat(nil), s.SeatList...)
	out.Throws = copyStrMap(s.Throws)
	out.LastWin = copyStrMap(s.LastWin)
	out.Wins = make(map[string]int, len(s.Wins))
	for k, v := range s.Wins {
		out.Wins[k] = v
	}
	out.Match.WinsByPlayer = make(map[string]int, len(s.Match.WinsByPlayer))
	for k, v := range s.Match.WinsByPlayer {
		out.Match.WinsByPlayer[k] = v
	}
	out.History = make(map[string]map[string]int, len(s.History))
	for pid, counts := range s.History {
		cp := make(map[string]int, len(counts))
		for c, n := range counts {
			cp[c] = n
		}
		out.History[pid] = cp
	}
	return &out
}

func copyStrMap(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

type throwData struct {
	Choice string `json:"choice"`
}

// Engine implements rules.Engine for Rock-Paper-Scissors.
type Engine struct{}

// New returns the RPS engine.
func New() *Engine { return &Engine{} }

func (e *Engine) Type() models.GameType { return models.GameRPS }
func (e *Engine) MinPlayers() int       { return 2 }
func (e *Engine) MaxPlayers() int       { return 2 }

func (e *Engine) InitialState(seats []rules.Seat, cfg rules.Config) (rules.State, error) {
	if len(seats) != 2 {
		return nil, fmt.Errorf("rps requires exactly 2 players, got %d", len(seats))
	}
	bestOf := cfg.BestOf
	if bestOf == 0 {
		bestOf = 3
	}
	if bestOf != 3 && bestOf != 5 {
		return nil, fmt.Errorf("rps best-of must be 3 or 5, got %d", bestOf)
	}
	s := &state{
		SeatList: append([]rules.Seat(nil), seats...),
		BestOf:   bestOf,
		Throws:   map[string]string{},
		Wins:     map[string]int{},
		History:  map[string]map[string]int{},
		Match: matchAggregate{
			TargetRounds: cfg.TargetRounds,
			WinsByPlayer: map[string]int{},
		},
	}
	for _, seat := range seats {
		s.History[seat.PlayerID] = map[string]int{}
	}
	return s, nil
}

func (e *Engine) ValidateMove(st rules.State, m models.Move) error {
	s, ok := st.(*state)
	if !ok {
		return fmt.Errorf("rps: unexpected state type %T", st)
	}
	if s.Over {
		return rules.NotPlaying()
	}
	if rules.SeatIndex(s.SeatList, m.PlayerID) < 0 {
		return rules.Invalid("player is not seated in this game")
	}
	if m.Type != MoveTypeThrow {
		return rules.Invalid(fmt.Sprintf("unknown move type %q", m.Type))
	}
	if _, thrown := s.Throws[m.PlayerID]; thrown {
		return rules.Invalid("already submitted this round")
	}
	var d throwData
	if err := json.Unmarshal(m.Data, &d); err != nil {
		return rules.Invalid("malformed move data")
	}
	if _, ok := beats[d.Choice]; !ok {
		return rules.Invalid(fmt.Sprintf("unknown choice %q", d.Choice))
	}
	return nil
}

func (e *Engine) ApplyMove(st rules.State, m models.Move) (rules.State, []rules.Event, error) {
	s := st.(*state).clone()

	var d throwData
	if err := json.Unmarshal(m.Data, &d); err != nil {
		return nil, nil, rules.Invalid("malformed move data")
	}
	s.Throws[m.PlayerID] = d.Choice

	events := []rules.Event{{
		Type:    "throw-submitted",
		Payload: map[string]interface{}{"playerId": m.PlayerID},
	}}

	if len(s.Throws) < len(s.SeatList) {
		return s, events, nil
	}

	// Reveal phase: both choices are in.
	a, b := s.SeatList[0].PlayerID, s.SeatList[1].PlayerID
	ca, cb := s.Throws[a], s.Throws[b]
	s.History[a][ca]++
	s.History[b][cb]++
	reveal := map[string]interface{}{a: ca, b: cb}

	switch {
	case ca == cb:
		s.Ties++
		events = append(events, rules.Event{
			Type:    "round-tied",
			Payload: map[string]interface{}{"throws": reveal},
		})
	default:
		winner := a
		if beats[cb] == ca {
			winner = b
		}
		s.Wins[winner]++
		s.LastWin = map[string]string{winner: s.Throws[winner]}
		events = append(events, rules.Event{
			Type:    "round-revealed",
			Payload: map[string]interface{}{"throws": reveal, "winner": winner},
		})
		need := s.BestOf/2 + 1
		if s.Wins[winner] >= need {
			s.Over = true
			s.WinnerID = winner
			s.Match.WinsByPlayer[winner]++
			s.Match.RoundsPlayed++
			events = append(events, rules.Event{
				Type:    "round-finished",
				Payload: map[string]interface{}{"winner": winner, "wins": s.Wins},
			})
		}
	}
	s.Throws = map[string]string{}
	return s, events, nil
}

func (e *Engine) IsTerminal(st rules.State) rules.Terminal {
	s := st.(*state)
	if !s.Over {
		return rules.Terminal{}
	}
	t := rules.Terminal{
		Finished: true,
		Winner:   s.WinnerID,
		Detail: map[string]interface{}{
			"wins":         s.Wins,
			"ties":         s.Ties,
			"winsByPlayer": s.Match.WinsByPlayer,
			"roundsPlayed": s.Match.RoundsPlayed,
		},
	}
	if s.WinnerID != "" {
		t.Points = map[string]int{s.WinnerID: 1}
	}
	return t
}

// FallbackMove always throws rock, so the timed-out choice is predictable.
func (e *Engine) FallbackMove(st rules.State, playerID string) (models.Move, error) {
	s := st.(*state)
	if s.Over {
		return models.Move{}, rules.NotPlaying()
	}
	if _, thrown := s.Throws[playerID]; thrown {
		return models.Move{}, rules.Invalid("already submitted this round")
	}
	return throwMove(playerID, Rock), nil
}

func throwMove(playerID, choice string) models.Move {
	data, _ := json.Marshal(throwData{Choice: choice})
	return models.Move{PlayerID: playerID, Type: MoveTypeThrow, Data: data, Timestamp: time.Now()}
}

func (e *Engine) NextRound(st rules.State) (rules.State, error) {
	s := st.(*state)
	if !s.Over {
		return nil, rules.Invalid("round is still in progress")
	}
	if s.Match.TargetRounds > 0 && s.Match.RoundsPlayed >= s.Match.TargetRounds {
		return nil, rules.Invalid("round limit reached")
	}
	next := s.clone()
	next.Throws = map[string]string{}
	next.Wins = map[string]int{}
	next.Ties = 0
	next.LastWin = nil
	next.Over = false
	next.WinnerID = ""
	return next, nil
}

func (e *Engine) Serialize(st rules.State) ([]byte, error) {
	return rules.MarshalEnvelope(models.GameRPS, st.(*state))
}

func (e *Engine) Restore(data []byte) (rules.State, error) {
	t, raw, err := rules.UnmarshalEnvelope(data)
	if err != nil {
		return nil, err
	}
	if t != models.GameRPS {
		return nil, fmt.Errorf("expected rps state, got %q", t)
	}
	var s state
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	if s.Throws == nil {
		s.Throws = map[string]string{}
	}
	if s.Wins == nil {
		s.Wins = map[string]int{}
	}
	if s.History == nil {
		s.History = map[string]map[string]int{}
	}
	if s.Match.WinsByPlayer == nil {
		s.Match.WinsByPlayer = map[string]int{}
	}
	return &s, nil
}
