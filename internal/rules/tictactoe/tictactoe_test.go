package tictactoe

import (
	"encoding/json"
	"math/rand"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KovalDenys1/boardly/internal/models"
	"github.com/KovalDenys1/boardly/internal/rules"
)

func twoSeats() []rules.Seat {
	return []rules.Seat{
		{PlayerID: "x", DisplayName: "PlayerX"},
		{PlayerID: "o", DisplayName: "PlayerO"},
	}
}

func mustApply(t *testing.T, e *Engine, s rules.State, playerID string, row, col int) rules.State {
	t.Helper()
	m := placeMove(playerID, row, col)
	require.NoError(t, e.ValidateMove(s, m))
	next, _, err := e.ApplyMove(s, m)
	require.NoError(t, err)
	return next
}

func TestHorizontalWin(t *testing.T) {
	e := New()
	s, err := e.InitialState(twoSeats(), rules.Config{})
	require.NoError(t, err)

	// X(0,0) O(1,0) X(0,1) O(1,1) X(0,2)
	s = mustApply(t, e, s, "x", 0, 0)
	s = mustApply(t, e, s, "o", 1, 0)
	s = mustApply(t, e, s, "x", 0, 1)
	s = mustApply(t, e, s, "o", 1, 1)
	s = mustApply(t, e, s, "x", 0, 2)

	term := e.IsTerminal(s)
	require.True(t, term.Finished)
	assert.Equal(t, "x", term.Winner)
	assert.False(t, term.Draw)
	assert.Equal(t, [][2]int{{0, 0}, {0, 1}, {0, 2}}, term.Detail["winningLine"])

	gs := s.(*state)
	assert.Equal(t, 1, gs.Match.WinsBySymbol["X"])
	assert.Equal(t, 0, gs.Match.TargetRounds)
	assert.Equal(t, 1, gs.Match.RoundsPlayed)

	// The next round starts with the opposite symbol: O goes first.
	next, err := e.NextRound(s)
	require.NoError(t, err)
	ns := next.(*state)
	assert.Equal(t, "O", ns.StartSymbol)
	assert.Equal(t, "o", ns.SeatList[next.CurrentPlayerIndex()].PlayerID)
	assert.Equal(t, 1, ns.Match.WinsBySymbol["X"], "match aggregate survives the reset")
	assert.Equal(t, 0, ns.MoveCount)
}

func TestDraw(t *testing.T) {
	e := New()
	s, err := e.InitialState(twoSeats(), rules.Config{})
	require.NoError(t, err)

	moves := []struct {
		player   string
		row, col int
	}{
		{"x", 0, 0}, {"o", 0, 1}, {"x", 0, 2},
		{"o", 1, 0}, {"x", 1, 2}, {"o", 1, 1},
		{"x", 2, 0}, {"o", 2, 2}, {"x", 2, 1},
	}
	for _, mv := range moves {
		s = mustApply(t, e, s, mv.player, mv.row, mv.col)
	}

	term := e.IsTerminal(s)
	require.True(t, term.Finished)
	assert.True(t, term.Draw)
	assert.Empty(t, term.Winner)
	assert.Equal(t, 9, term.Detail["moveCount"])

	gs := s.(*state)
	assert.Nil(t, winningLine(gs.Board, "X"))
	assert.Nil(t, winningLine(gs.Board, "O"))
	assert.Equal(t, 1, gs.Match.Draws)
}

func TestValidateRejections(t *testing.T) {
	e := New()
	s, err := e.InitialState(twoSeats(), rules.Config{})
	require.NoError(t, err)

	// Out of turn.
	err = e.ValidateMove(s, placeMove("o", 0, 0))
	v, ok := rules.AsViolation(err)
	require.True(t, ok)
	assert.Equal(t, rules.CodeNotYourTurn, v.Code)

	// Out of bounds.
	err = e.ValidateMove(s, placeMove("x", 3, 0))
	v, _ = rules.AsViolation(err)
	assert.Equal(t, rules.CodeInvalidMove, v.Code)

	// Occupied cell.
	s = mustApply(t, e, s, "x", 1, 1)
	err = e.ValidateMove(s, placeMove("o", 1, 1))
	v, _ = rules.AsViolation(err)
	assert.Equal(t, rules.CodeInvalidMove, v.Code)

	// Unknown move type.
	err = e.ValidateMove(s, models.Move{PlayerID: "o", Type: "flip-table", Timestamp: time.Now()})
	v, _ = rules.AsViolation(err)
	assert.Equal(t, rules.CodeInvalidMove, v.Code)

	// Not seated.
	err = e.ValidateMove(s, placeMove("eve", 0, 0))
	v, _ = rules.AsViolation(err)
	assert.Equal(t, rules.CodeInvalidMove, v.Code)
}

func TestApplyDoesNotMutateInput(t *testing.T) {
	e := New()
	s, err := e.InitialState(twoSeats(), rules.Config{})
	require.NoError(t, err)

	before := s.(*state)
	_ = mustApply(t, e, s, "x", 0, 0)
	assert.Equal(t, "", before.Board[0][0])
	assert.Equal(t, 0, before.MoveCount)
}

func TestFallbackMoveRowMajor(t *testing.T) {
	e := New()
	s, err := e.InitialState(twoSeats(), rules.Config{})
	require.NoError(t, err)

	s = mustApply(t, e, s, "x", 0, 0)

	m, err := e.FallbackMove(s, "o")
	require.NoError(t, err)
	require.NoError(t, e.ValidateMove(s, m))

	var d placeData
	require.NoError(t, json.Unmarshal(m.Data, &d))
	assert.Equal(t, 0, d.Row)
	assert.Equal(t, 1, d.Col)
}

func TestSerializeRoundTrip(t *testing.T) {
	e := New()
	s, err := e.InitialState(twoSeats(), rules.Config{TargetRounds: 3})
	require.NoError(t, err)
	s = mustApply(t, e, s, "x", 1, 1)
	s = mustApply(t, e, s, "o", 0, 0)

	blob, err := e.Serialize(s)
	require.NoError(t, err)
	restored, err := e.Restore(blob)
	require.NoError(t, err)
	assert.True(t, reflect.DeepEqual(s, restored))
}

func TestRoundLimit(t *testing.T) {
	e := New()
	s, err := e.InitialState(twoSeats(), rules.Config{TargetRounds: 1})
	require.NoError(t, err)

	s = mustApply(t, e, s, "x", 0, 0)
	s = mustApply(t, e, s, "o", 1, 0)
	s = mustApply(t, e, s, "x", 0, 1)
	s = mustApply(t, e, s, "o", 1, 1)
	s = mustApply(t, e, s, "x", 0, 2)
	require.True(t, e.IsTerminal(s).Finished)

	_, err = e.NextRound(s)
	v, ok := rules.AsViolation(err)
	require.True(t, ok)
	assert.Contains(t, v.Reason, "round limit")
}

func TestMediumBotBlocksWin(t *testing.T) {
	e := New()
	s, err := e.InitialState(twoSeats(), rules.Config{})
	require.NoError(t, err)

	s = mustApply(t, e, s, "x", 0, 0)
	s = mustApply(t, e, s, "o", 1, 1)
	s = mustApply(t, e, s, "x", 0, 1)
	// X threatens (0,2); medium O must block.

	strat := &heuristicStrategy{}
	m, _, err := strat.NextMove(s, "o")
	require.NoError(t, err)
	var d placeData
	require.NoError(t, json.Unmarshal(m.Data, &d))
	assert.Equal(t, [2]int{0, 2}, [2]int{d.Row, d.Col})
}

func TestMinimaxPrefersCenterAndWins(t *testing.T) {
	e := New()
	s, err := e.InitialState(twoSeats(), rules.Config{})
	require.NoError(t, err)

	strat := &minimaxStrategy{}

	// Opening: center by tie-break.
	m, _, err := strat.NextMove(s, "x")
	require.NoError(t, err)
	var d placeData
	require.NoError(t, json.Unmarshal(m.Data, &d))
	assert.Equal(t, [2]int{1, 1}, [2]int{d.Row, d.Col})

	// Immediate win is taken when available.
	s = mustApply(t, e, s, "x", 0, 0)
	s = mustApply(t, e, s, "o", 1, 0)
	s = mustApply(t, e, s, "x", 0, 1)
	s = mustApply(t, e, s, "o", 1, 1)
	// X to move with (0,2) winning.
	m, _, err = strat.NextMove(s, "x")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(m.Data, &d))
	assert.Equal(t, [2]int{0, 2}, [2]int{d.Row, d.Col})
}

func TestRandomBotPlaysLegalMoves(t *testing.T) {
	e := New()
	s, err := e.InitialState(twoSeats(), rules.Config{})
	require.NoError(t, err)

	strat := &randomStrategy{rng: rand.New(rand.NewSource(7))}
	for i := 0; i < 20; i++ {
		m, _, err := strat.NextMove(s, "x")
		require.NoError(t, err)
		require.NoError(t, e.ValidateMove(s, m))
	}
}
