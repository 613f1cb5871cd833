package spy

import (
	"encoding/json"
	"fmt"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KovalDenys1/boardly/internal/rules"
)

func spySeats() []rules.Seat {
	return []rules.Seat{
		{PlayerID: "a", DisplayName: "Ann"},
		{PlayerID: "b", DisplayName: "Ben"},
		{PlayerID: "c", DisplayName: "Cat"},
	}
}

func applyMove(t *testing.T, e *Engine, s rules.State, playerID, moveType string, data interface{}) rules.State {
	t.Helper()
	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		require.NoError(t, err)
		raw = b
	}
	m := spyMove(playerID, moveType, raw)
	require.NoError(t, e.ValidateMove(s, m), "move %s by %s", moveType, playerID)
	next, _, err := e.ApplyMove(s, m)
	require.NoError(t, err)
	return next
}

// runQuestioning drives role_reveal and questioning to the voting phase.
func runQuestioning(t *testing.T, e *Engine, s rules.State) rules.State {
	t.Helper()
	for _, seat := range s.Seats() {
		s = applyMove(t, e, s, seat.PlayerID, MoveTypeAckRole, nil)
	}
	require.Equal(t, PhaseQuestioning, s.(*state).Phase)

	for i := 0; i < len(s.Seats()); i++ {
		gs := s.(*state)
		asker := gs.SeatList[gs.AskerIdx].PlayerID
		target := gs.SeatList[(gs.AskerIdx+1)%len(gs.SeatList)].PlayerID
		s = applyMove(t, e, s, asker, MoveTypeAsk, askData{TargetID: target, Question: fmt.Sprintf("q%d", i)})
		s = applyMove(t, e, s, target, MoveTypeAnswer, answerData{Answer: fmt.Sprintf("a%d", i)})
	}
	require.Equal(t, PhaseVoting, s.(*state).Phase)
	return s
}

func TestPhaseMachine(t *testing.T) {
	e := New()
	s, err := e.InitialState(spySeats(), rules.Config{})
	require.NoError(t, err)

	gs := s.(*state)
	assert.Equal(t, PhaseRoleReveal, gs.Phase)
	assert.Equal(t, DefaultRounds, gs.Match.TargetRounds)
	assert.NotEmpty(t, gs.SpyID)
	assert.NotEmpty(t, gs.Location)

	// Asking during role reveal is rejected.
	b, _ := json.Marshal(askData{TargetID: "b", Question: "early?"})
	err = e.ValidateMove(s, spyMove("a", MoveTypeAsk, b))
	v, ok := rules.AsViolation(err)
	require.True(t, ok)
	assert.Equal(t, rules.CodeInvalidMove, v.Code)

	s = runQuestioning(t, e, s)

	// Simultaneous voting: everyone votes for the player after them.
	gs = s.(*state)
	for _, seat := range gs.SeatList {
		idx := rules.SeatIndex(gs.SeatList, seat.PlayerID)
		target := gs.SeatList[(idx+1)%len(gs.SeatList)].PlayerID
		s = applyMove(t, e, s, seat.PlayerID, MoveTypeVote, voteData{TargetID: target})
	}

	final := s.(*state)
	assert.Equal(t, PhaseResults, final.Phase)
	assert.True(t, final.Over)

	// Everyone got one vote; the earliest-voted target ("b", voted first by
	// "a") is eliminated.
	assert.Equal(t, "b", final.Eliminated)

	term := e.IsTerminal(s)
	require.True(t, term.Finished)
	if final.SpyCaught {
		assert.Empty(t, term.Winner)
		for _, seat := range final.SeatList {
			if seat.PlayerID != final.SpyID {
				assert.Equal(t, 1, term.Points[seat.PlayerID])
			}
		}
	} else {
		assert.Equal(t, final.SpyID, term.Winner)
		assert.Equal(t, 2, term.Points[final.SpyID])
	}
}

func TestVoteTally(t *testing.T) {
	e := New()
	s, err := e.InitialState(spySeats(), rules.Config{})
	require.NoError(t, err)
	s = runQuestioning(t, e, s)

	// Two votes against "c" beat one against "a".
	s = applyMove(t, e, s, "a", MoveTypeVote, voteData{TargetID: "c"})
	s = applyMove(t, e, s, "b", MoveTypeVote, voteData{TargetID: "c"})
	s = applyMove(t, e, s, "c", MoveTypeVote, voteData{TargetID: "a"})

	final := s.(*state)
	assert.Equal(t, "c", final.Eliminated)
	if final.SpyID == "c" {
		assert.True(t, final.SpyCaught)
		assert.Equal(t, 1, final.Points["a"])
		assert.Equal(t, 1, final.Points["b"])
	} else {
		assert.False(t, final.SpyCaught)
		assert.Equal(t, 2, final.Points[final.SpyID])
	}
}

func TestVotingRejections(t *testing.T) {
	e := New()
	s, err := e.InitialState(spySeats(), rules.Config{})
	require.NoError(t, err)
	s = runQuestioning(t, e, s)

	// Self-vote is rejected.
	b, _ := json.Marshal(voteData{TargetID: "a"})
	err = e.ValidateMove(s, spyMove("a", MoveTypeVote, b))
	v, ok := rules.AsViolation(err)
	require.True(t, ok)
	assert.Equal(t, rules.CodeInvalidMove, v.Code)

	// Double vote is rejected.
	s = applyMove(t, e, s, "a", MoveTypeVote, voteData{TargetID: "b"})
	b, _ = json.Marshal(voteData{TargetID: "c"})
	err = e.ValidateMove(s, spyMove("a", MoveTypeVote, b))
	v, _ = rules.AsViolation(err)
	assert.Equal(t, rules.CodeInvalidMove, v.Code)
}

func TestFallbackCoversEveryPhase(t *testing.T) {
	e := New()
	s, err := e.InitialState(spySeats(), rules.Config{})
	require.NoError(t, err)

	// role_reveal: acks for everyone.
	for _, seat := range s.Seats() {
		m, err := e.FallbackMove(s, seat.PlayerID)
		require.NoError(t, err)
		require.NoError(t, e.ValidateMove(s, m))
		next, _, err := e.ApplyMove(s, m)
		require.NoError(t, err)
		s = next
	}
	require.Equal(t, PhaseQuestioning, s.(*state).Phase)

	// questioning and voting: the owed player always has a valid fallback.
	for i := 0; i < 50 && !s.RoundOver(); i++ {
		owed := s.Seats()[s.CurrentPlayerIndex()].PlayerID
		m, err := e.FallbackMove(s, owed)
		require.NoError(t, err)
		require.NoError(t, e.ValidateMove(s, m))
		next, _, err := e.ApplyMove(s, m)
		require.NoError(t, err)
		s = next
	}
	assert.True(t, s.RoundOver(), "fallback play alone finishes the round")
}

func TestNextRoundKeepsPoints(t *testing.T) {
	e := New()
	s, err := e.InitialState(spySeats(), rules.Config{})
	require.NoError(t, err)
	s = runQuestioning(t, e, s)
	s = applyMove(t, e, s, "a", MoveTypeVote, voteData{TargetID: "b"})
	s = applyMove(t, e, s, "b", MoveTypeVote, voteData{TargetID: "c"})
	s = applyMove(t, e, s, "c", MoveTypeVote, voteData{TargetID: "b"})
	require.True(t, s.RoundOver())

	points := s.(*state).Points
	next, err := e.NextRound(s)
	require.NoError(t, err)
	ns := next.(*state)
	assert.Equal(t, PhaseRoleReveal, ns.Phase)
	assert.Equal(t, 2, ns.Round)
	assert.Equal(t, points, ns.Points, "cumulative points survive the re-deal")
	assert.Empty(t, ns.Votes)
	assert.False(t, ns.Over)
}

func TestSerializeRoundTrip(t *testing.T) {
	e := New()
	s, err := e.InitialState(spySeats(), rules.Config{})
	require.NoError(t, err)
	s = applyMove(t, e, s, "a", MoveTypeAckRole, nil)

	blob, err := e.Serialize(s)
	require.NoError(t, err)
	restored, err := e.Restore(blob)
	require.NoError(t, err)
	assert.True(t, reflect.DeepEqual(s, restored))
}
