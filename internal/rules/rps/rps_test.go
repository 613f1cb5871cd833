package rps

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KovalDenys1/boardly/internal/rules"
)

func rpsSeats() []rules.Seat {
	return []rules.Seat{
		{PlayerID: "a", DisplayName: "Ann"},
		{PlayerID: "b", DisplayName: "Ben"},
	}
}

func apply(t *testing.T, e *Engine, s rules.State, playerID, choice string) (rules.State, []rules.Event) {
	t.Helper()
	m := throwMove(playerID, choice)
	require.NoError(t, e.ValidateMove(s, m))
	next, events, err := e.ApplyMove(s, m)
	require.NoError(t, err)
	return next, events
}

func TestBestOfThree(t *testing.T) {
	e := New()
	s, err := e.InitialState(rpsSeats(), rules.Config{})
	require.NoError(t, err)

	// Round 1: a wins (rock beats scissors).
	s, _ = apply(t, e, s, "a", Rock)
	s, events := apply(t, e, s, "b", Scissors)
	last := events[len(events)-1]
	assert.Equal(t, "round-revealed", last.Type)
	assert.Equal(t, "a", last.Payload["winner"])
	assert.False(t, s.RoundOver())

	// Round 2: tie does not count toward N.
	s, events = apply(t, e, s, "a", Paper)
	s, events = apply(t, e, s, "b", Paper)
	assert.Equal(t, "round-tied", events[len(events)-1].Type)
	gs := s.(*state)
	assert.Equal(t, 1, gs.Ties)
	assert.Equal(t, 1, gs.Wins["a"])

	// Round 3: a reaches 2 of 3.
	s, _ = apply(t, e, s, "a", Scissors)
	s, events = apply(t, e, s, "b", Paper)
	assert.Equal(t, "round-finished", events[len(events)-1].Type)

	term := e.IsTerminal(s)
	require.True(t, term.Finished)
	assert.Equal(t, "a", term.Winner)
	assert.Equal(t, map[string]int{"a": 1}, term.Points)
}

func TestSimultaneousSubmissionRules(t *testing.T) {
	e := New()
	s, err := e.InitialState(rpsSeats(), rules.Config{})
	require.NoError(t, err)

	s, _ = apply(t, e, s, "a", Rock)

	// Double submission is rejected.
	err = e.ValidateMove(s, throwMove("a", Paper))
	v, ok := rules.AsViolation(err)
	require.True(t, ok)
	assert.Equal(t, rules.CodeInvalidMove, v.Code)

	// The pending seat is the one that still owes a throw.
	assert.Equal(t, 1, s.CurrentPlayerIndex())

	// Unknown choice is rejected.
	err = e.ValidateMove(s, throwMove("b", "lizard"))
	v, _ = rules.AsViolation(err)
	assert.Equal(t, rules.CodeInvalidMove, v.Code)
}

func TestBestOfValidation(t *testing.T) {
	e := New()
	_, err := e.InitialState(rpsSeats(), rules.Config{BestOf: 4})
	assert.Error(t, err)

	s, err := e.InitialState(rpsSeats(), rules.Config{BestOf: 5})
	require.NoError(t, err)
	assert.Equal(t, 5, s.(*state).BestOf)
}

func TestFallbackThrowsRock(t *testing.T) {
	e := New()
	s, err := e.InitialState(rpsSeats(), rules.Config{})
	require.NoError(t, err)

	m, err := e.FallbackMove(s, "b")
	require.NoError(t, err)
	require.NoError(t, e.ValidateMove(s, m))

	next, _, err := e.ApplyMove(s, m)
	require.NoError(t, err)
	_, thrown := next.(*state).Throws["b"]
	assert.True(t, thrown)
}

func TestNextRoundKeepsMatchAggregate(t *testing.T) {
	e := New()
	s, err := e.InitialState(rpsSeats(), rules.Config{})
	require.NoError(t, err)

	s, _ = apply(t, e, s, "a", Rock)
	s, _ = apply(t, e, s, "b", Scissors)
	s, _ = apply(t, e, s, "a", Rock)
	s, _ = apply(t, e, s, "b", Scissors)
	require.True(t, s.RoundOver())

	next, err := e.NextRound(s)
	require.NoError(t, err)
	ns := next.(*state)
	assert.False(t, ns.Over)
	assert.Empty(t, ns.Wins)
	assert.Equal(t, 1, ns.Match.WinsByPlayer["a"])
	assert.Equal(t, 1, ns.Match.RoundsPlayed)
}

func TestSerializeRoundTrip(t *testing.T) {
	e := New()
	s, err := e.InitialState(rpsSeats(), rules.Config{})
	require.NoError(t, err)
	s, _ = apply(t, e, s, "a", Paper)

	blob, err := e.Serialize(s)
	require.NoError(t, err)
	restored, err := e.Restore(blob)
	require.NoError(t, err)
	assert.True(t, reflect.DeepEqual(s, restored))
}

func TestHardBotCountersRepeat(t *testing.T) {
	e := New()
	s, err := e.InitialState(rpsSeats(), rules.Config{})
	require.NoError(t, err)

	// a wins round 1 with rock; the hard bot (b) expects a repeat and plays
	// paper.
	s, _ = apply(t, e, s, "a", Rock)
	s, _ = apply(t, e, s, "b", Scissors)

	strat := &counterStrategy{}
	m, _, err := strat.NextMove(s, "b")
	require.NoError(t, err)
	var d throwData
	require.NoError(t, json.Unmarshal(m.Data, &d))
	assert.Equal(t, Paper, d.Choice)
}
