// Package tictactoe implements the 3x3 Tic-Tac-Toe rules module.
//
// Seat 0 always owns X and seat 1 owns O. X starts the first round; the
// starting symbol alternates every round. Win detection scans rows, then
// columns, then the main diagonal, then the anti-diagonal, and reports the
// first matching triple.
package tictactoe

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/KovalDenys1/boardly/internal/models"
	"github.com/KovalDenys1/boardly/internal/rules"
)

const (
	symbolX = "X"
	symbolO = "O"

	// MoveTypePlace is the only in-round move: claim an empty cell.
	MoveTypePlace = "place"
)

type matchAggregate struct {
	TargetRounds int            `json:"targetRounds"`
	RoundsPlayed int            `json:"roundsPlayed"`
	WinsBySymbol map[string]int `json:"winsBySymbol"`
	Draws        int            `json:"draws"`
}

type state struct {
	SeatList    []rules.Seat      `json:"seats"`
	Board       [3][3]string      `json:"board"`
	Symbols     map[string]string `json:"symbols"`
	Current     int               `json:"current"`
	MoveCount   int               `json:"moveCount"`
	Over        bool              `json:"over"`
	WinnerID    string            `json:"winnerId,omitempty"`
	IsDraw      bool              `json:"isDraw"`
	WinningLine [][2]int          `json:"winningLine,omitempty"`
	StartSymbol string            `json:"startSymbol"`
	Match       matchAggregate    `json:"match"`
}

func (s *state) CurrentPlayerIndex() int { return s.Current }
func (s *state) Seats() []rules.Seat     { return s.SeatList }
func (s *state) RoundOver() bool         { return s.Over }

func (s *state) clone() *state {
	out := *s
	out.SeatList = append([]rules.Seat(nil), s.SeatList...)
	out.Symbols = make(map[string]string, len(s.Symbols))
	for k, v := range s.Symbols {
		out.Symbols[k] = v
	}
	out.Match.WinsBySymbol = make(map[string]int, len(s.Match.WinsBySymbol))
	for k, v := range s.Match.WinsBySymbol {
		out.Match.WinsBySymbol[k] = v
	}
	if s.WinningLine != nil {
		out.WinningLine = append([][2]int(nil), s.WinningLine...)
	}
	return &out
}

func (s *state) seatBySymbol(sym string) int {
	for i, seat := range s.SeatList {
		if s.Symbols[seat.PlayerID] == sym {
			return i
		}
	}
	return -1
}

// placeData is the payload of a "place" move.
type placeData struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// Engine implements rules.Engine for Tic-Tac-Toe.
type Engine struct{}

// New returns the Tic-Tac-Toe engine.
func New() *Engine { return &Engine{} }

func (e *Engine) Type() models.GameType { return models.GameTicTacToe }
func (e *Engine) MinPlayers() int       { return 2 }
func (e *Engine) MaxPlayers() int       { return 2 }

func (e *Engine) InitialState(seats []rules.Seat, cfg rules.Config) (rules.State, error) {
	if len(seats) != 2 {
		return nil, fmt.Errorf("tictactoe requires exactly 2 players, got %d", len(seats))
	}
	s := &state{
		SeatList: append([]rules.Seat(nil), seats...),
		Symbols: map[string]string{
			seats[0].PlayerID: symbolX,
			seats[1].PlayerID: symbolO,
		},
		StartSymbol: symbolX,
		Match: matchAggregate{
			TargetRounds: cfg.TargetRounds,
			WinsBySymbol: map[string]int{},
		},
	}
	s.Current = s.seatBySymbol(s.StartSymbol)
	return s, nil
}

func (e *Engine) ValidateMove(st rules.State, m models.Move) error {
	s, ok := st.(*state)
	if !ok {
		return fmt.Errorf("tictactoe: unexpected state type %T", st)
	}
	if s.Over {
		return rules.NotPlaying()
	}
	idx := rules.SeatIndex(s.SeatList, m.PlayerID)
	if idx < 0 {
		return rules.Invalid("player is not seated in this game")
	}
	if m.Type != MoveTypePlace {
		return rules.Invalid(fmt.Sprintf("unknown move type %q", m.Type))
	}
	if idx != s.Current {
		return rules.NotYourTurn()
	}
	var d placeData
	if err := json.Unmarshal(m.Data, &d); err != nil {
		return rules.Invalid("malformed move data")
	}
	if d.Row < 0 || d.Row > 2 || d.Col < 0 || d.Col > 2 {
		return rules.Invalid("cell out of bounds")
	}
	if s.Board[d.Row][d.Col] != "" {
		return rules.Invalid("cell already taken")
	}
	return nil
}

func (e *Engine) ApplyMove(st rules.State, m models.Move) (rules.State, []rules.Event, error) {
	s := st.(*state).clone()

	var d placeData
	if err := json.Unmarshal(m.Data, &d); err != nil {
		return nil, nil, rules.Invalid("malformed move data")
	}
	sym := s.Symbols[m.PlayerID]
	s.Board[d.Row][d.Col] = sym
	s.MoveCount++

	var events []rules.Event
	if line := winningLine(s.Board, sym); line != nil {
		s.Over = true
		s.WinnerID = m.PlayerID
		s.WinningLine = line
		s.Match.WinsBySymbol[sym]++
		s.Match.RoundsPlayed++
		events = append(events, rules.Event{
			Type: "round-finished",
			Payload: map[string]interface{}{
				"winner":      m.PlayerID,
				"symbol":      sym,
				"winningLine": line,
			},
		})
	} else if s.MoveCount == 9 {
		s.Over = true
		s.IsDraw = true
		s.Match.Draws++
		s.Match.RoundsPlayed++
		events = append(events, rules.Event{
			Type:    "round-finished",
			Payload: map[string]interface{}{"draw": true},
		})
	} else {
		s.Current = 1 - s.Current
	}
	return s, events, nil
}

// winningLine returns the first completed triple for sym, scanning rows,
// columns, main diagonal, anti-diagonal, in that order.
func winningLine(b [3][3]string, sym string) [][2]int {
	for r := 0; r < 3; r++ {
		if b[r][0] == sym && b[r][1] == sym && b[r][2] == sym {
			return [][2]int{{r, 0}, {r, 1}, {r, 2}}
		}
	}
	for c := 0; c < 3; c++ {
		if b[0][c] == sym && b[1][c] == sym && b[2][c] == sym {
			return [][2]int{{0, c}, {1, c}, {2, c}}
		}
	}
	if b[0][0] == sym && b[1][1] == sym && b[2][2] == sym {
		return [][2]int{{0, 0}, {1, 1}, {2, 2}}
	}
	if b[0][2] == sym && b[1][1] == sym && b[2][0] == sym {
		return [][2]int{{0, 2}, {1, 1}, {2, 0}}
	}
	return nil
}

func (e *Engine) IsTerminal(st rules.State) rules.Terminal {
	s := st.(*state)
	if !s.Over {
		return rules.Terminal{}
	}
	t := rules.Terminal{
		Finished: true,
		Winner:   s.WinnerID,
		Draw:     s.IsDraw,
		Detail: map[string]interface{}{
			"moveCount":    s.MoveCount,
			"winsBySymbol": s.Match.WinsBySymbol,
			"draws":        s.Match.Draws,
			"roundsPlayed": s.Match.RoundsPlayed,
		},
	}
	if s.WinningLine != nil {
		t.Detail["winningLine"] = s.WinningLine
	}
	if s.WinnerID != "" {
		t.Points = map[string]int{s.WinnerID: 1}
	}
	return t
}

// FallbackMove picks the first empty cell in row-major order.
func (e *Engine) FallbackMove(st rules.State, playerID string) (models.Move, error) {
	s := st.(*state)
	if s.Over {
		return models.Move{}, rules.NotPlaying()
	}
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			if s.Board[r][c] == "" {
				return placeMove(playerID, r, c), nil
			}
		}
	}
	return models.Move{}, rules.Invalid("no empty cells")
}

func placeMove(playerID string, row, col int) models.Move {
	data, _ := json.Marshal(placeData{Row: row, Col: col})
	return models.Move{
		PlayerID:  playerID,
		Type:      MoveTypePlace,
		Data:      data,
		Timestamp: time.Now(),
	}
}

// NextRound clears the board, flips the starting symbol, and keeps the match
// aggregate.
func (e *Engine) NextRound(st rules.State) (rules.State, error) {
	s := st.(*state)
	if !s.Over {
		return nil, rules.Invalid("round is still in progress")
	}
	if s.Match.TargetRounds > 0 && s.Match.RoundsPlayed >= s.Match.TargetRounds {
		return nil, rules.Invalid("round limit reached")
	}
	next := s.clone()
	next.Board = [3][3]string{}
	next.MoveCount = 0
	next.Over = false
	next.WinnerID = ""
	next.IsDraw = false
	next.WinningLine = nil
	if s.StartSymbol == symbolX {
		next.StartSymbol = symbolO
	} else {
		next.StartSymbol = symbolX
	}
	next.Current = next.seatBySymbol(next.StartSymbol)
	return next, nil
}

func (e *Engine) Serialize(st rules.State) ([]byte, error) {
	return rules.MarshalEnvelope(models.GameTicTacToe, st.(*state))
}

func (e *Engine) Restore(data []byte) (rules.State, error) {
	t, raw, err := rules.UnmarshalEnvelope(data)
	if err != nil {
		return nil, err
	}
	if t != models.GameTicTacToe {
		return nil, fmt.Errorf("expected tictactoe state, got %q", t)
	}
	var s state
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	if s.Symbols == nil {
		s.Symbols = map[string]string{}
	}
	if s.Match.WinsBySymbol == nil {
		s.Match.WinsBySymbol = map[string]int{}
	}
	return &s, nil
}
