package yahtzee

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KovalDenys1/boardly/internal/rules"
)

func yahtzeeSeats() []rules.Seat {
	return []rules.Seat{
		{PlayerID: "alice", DisplayName: "Alice"},
		{PlayerID: "bob", DisplayName: "Bob"},
	}
}

func TestScoreCategory(t *testing.T) {
	cases := []struct {
		category string
		dice     [5]int
		want     int
	}{
		{"ones", [5]int{1, 1, 3, 4, 1}, 3},
		{"sixes", [5]int{6, 6, 2, 3, 4}, 12},
		{"three_of_a_kind", [5]int{3, 3, 3, 2, 1}, 12},
		{"three_of_a_kind", [5]int{3, 3, 2, 2, 1}, 0},
		{"four_of_a_kind", [5]int{5, 5, 5, 5, 2}, 22},
		{"full_house", [5]int{2, 2, 3, 3, 3}, 25},
		{"full_house", [5]int{2, 2, 2, 2, 3}, 0},
		{"small_straight", [5]int{1, 2, 3, 4, 6}, 30},
		{"small_straight", [5]int{2, 2, 3, 4, 5}, 30},
		{"small_straight", [5]int{1, 2, 3, 5, 6}, 0},
		{"large_straight", [5]int{2, 3, 4, 5, 6}, 40},
		{"large_straight", [5]int{1, 2, 3, 4, 6}, 0},
		{"yahtzee", [5]int{4, 4, 4, 4, 4}, 50},
		{"yahtzee", [5]int{4, 4, 4, 4, 5}, 0},
		{"chance", [5]int{1, 2, 3, 4, 5}, 15},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ScoreCategory(tc.category, tc.dice), "%s %v", tc.category, tc.dice)
	}
}

func TestUpperBonus(t *testing.T) {
	card := map[string]int{
		"ones": 3, "twos": 6, "threes": 9, "fours": 12, "fives": 15, "sixes": 18,
	}
	// Upper total is exactly 63: bonus applies.
	assert.Equal(t, 63+35, PlayerTotal(card))

	card["sixes"] = 12
	assert.Equal(t, 57, PlayerTotal(card), "no bonus below 63")
}

func TestFullHouseIsNotFourOfAKind(t *testing.T) {
	assert.Equal(t, 0, ScoreCategory("full_house", [5]int{4, 4, 4, 4, 1}))
}

func TestRollAndScoreFlow(t *testing.T) {
	e := New()
	st, err := e.InitialState(yahtzeeSeats(), rules.Config{})
	require.NoError(t, err)
	s := st.(*state)
	require.Equal(t, rollsPerTurn, s.RollsLeft)

	// Scoring before rolling is rejected.
	err = e.ValidateMove(st, scoreMove("alice", "chance"))
	v, ok := rules.AsViolation(err)
	require.True(t, ok)
	assert.Equal(t, rules.CodeInvalidMove, v.Code)

	// Holding dice before the first roll is rejected.
	err = e.ValidateMove(st, rollMove("alice", [5]bool{true}))
	v, _ = rules.AsViolation(err)
	assert.Equal(t, rules.CodeInvalidMove, v.Code)

	// First roll.
	roll := rollMove("alice", [5]bool{})
	require.NoError(t, e.ValidateMove(st, roll))
	next, events, err := e.ApplyMove(st, roll)
	require.NoError(t, err)
	ns := next.(*state)
	assert.Equal(t, rollsPerTurn-1, ns.RollsLeft)
	require.Len(t, events, 1)
	assert.Equal(t, "dice-rolled", events[0].Type)
	for _, d := range ns.Dice {
		assert.GreaterOrEqual(t, d, 1)
		assert.LessOrEqual(t, d, 6)
	}

	// Held dice survive the second roll.
	held := [5]bool{true, false, true, false, false}
	kept0, kept2 := ns.Dice[0], ns.Dice[2]
	again, _, err := e.ApplyMove(next, rollMove("alice", held))
	require.NoError(t, err)
	as := again.(*state)
	assert.Equal(t, kept0, as.Dice[0])
	assert.Equal(t, kept2, as.Dice[2])

	// Scoring fills the category and passes the turn.
	scored, _, err := e.ApplyMove(again, scoreMove("alice", "chance"))
	require.NoError(t, err)
	ss := scored.(*state)
	_, filled := ss.Cards["alice"]["chance"]
	assert.True(t, filled)
	assert.Equal(t, 1, scored.CurrentPlayerIndex())
	assert.Equal(t, rollsPerTurn, ss.RollsLeft)

	// Bob, now on turn, cannot score before his first roll.
	err = e.ValidateMove(scored, scoreMove("bob", "chance"))
	v, _ = rules.AsViolation(err)
	assert.Equal(t, rules.CodeInvalidMove, v.Code, "bob must roll first")
}

func TestFallbackRollsThenScoresBest(t *testing.T) {
	e := New()
	st, err := e.InitialState(yahtzeeSeats(), rules.Config{})
	require.NoError(t, err)

	// Fresh turn: the fallback rolls first.
	m, err := e.FallbackMove(st, "alice")
	require.NoError(t, err)
	assert.Equal(t, MoveTypeRoll, m.Type)
	require.NoError(t, e.ValidateMove(st, m))

	rolled, _, err := e.ApplyMove(st, m)
	require.NoError(t, err)

	// After a roll the fallback scores the best-available category.
	m, err = e.FallbackMove(rolled, "alice")
	require.NoError(t, err)
	assert.Equal(t, MoveTypeScore, m.Type)
	require.NoError(t, e.ValidateMove(rolled, m))

	var d scoreData
	require.NoError(t, json.Unmarshal(m.Data, &d))
	rs := rolled.(*state)
	best, ok := BestCategory(rs.Cards["alice"], rs.Dice)
	require.True(t, ok)
	assert.Equal(t, best, d.Category)

	scored, _, err := e.ApplyMove(rolled, m)
	require.NoError(t, err)
	assert.Equal(t, 1, scored.CurrentPlayerIndex(), "turn advanced after fallback scoring")
}

func TestGameEndsWhenAllCardsComplete(t *testing.T) {
	e := New()
	st, err := e.InitialState(yahtzeeSeats(), rules.Config{})
	require.NoError(t, err)
	s := st.(*state)

	// Hand-fill both scorecards except alice's last category, then score it
	// through the engine to trigger the finish path.
	for _, cat := range Categories {
		s.Cards["bob"][cat] = 5
	}
	for _, cat := range Categories[:len(Categories)-1] {
		s.Cards["alice"][cat] = 10
	}
	s.Current = 0
	s.RollsLeft = 1
	s.Dice = [5]int{6, 6, 6, 2, 1}

	final, events, err := e.ApplyMove(st, scoreMove("alice", Categories[len(Categories)-1]))
	require.NoError(t, err)
	term := e.IsTerminal(final)
	require.True(t, term.Finished)
	assert.Equal(t, "alice", term.Winner)
	assert.Equal(t, map[string]int{"alice": 1}, term.Points)

	last := events[len(events)-1]
	assert.Equal(t, "round-finished", last.Type)
}

func TestNextRoundRotatesStarter(t *testing.T) {
	e := New()
	st, err := e.InitialState(yahtzeeSeats(), rules.Config{})
	require.NoError(t, err)
	s := st.(*state)
	for _, cat := range Categories {
		s.Cards["alice"][cat] = 10
		s.Cards["bob"][cat] = 5
	}
	e.finishRound(s)
	require.True(t, s.Over)

	next, err := e.NextRound(st)
	require.NoError(t, err)
	ns := next.(*state)
	assert.Equal(t, 1, ns.Current, "starting seat rotates")
	assert.Empty(t, ns.Cards["alice"])
	assert.Equal(t, 1, ns.Match.WinsByPlayer["alice"])
}

func TestSerializeRoundTrip(t *testing.T) {
	e := New()
	st, err := e.InitialState(yahtzeeSeats(), rules.Config{})
	require.NoError(t, err)
	rolled, _, err := e.ApplyMove(st, rollMove("alice", [5]bool{}))
	require.NoError(t, err)

	blob, err := e.Serialize(rolled)
	require.NoError(t, err)
	restored, err := e.Restore(blob)
	require.NoError(t, err)
	assert.True(t, reflect.DeepEqual(rolled, restored))
}
