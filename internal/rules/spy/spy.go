// Package spy implements the "Guess the Spy" rules module.
//
// Each round runs the phase machine role_reveal -> questioning -> voting ->
// results. One player is secretly the spy; everyone else shares a location.
// Questioning is round-robin, voting is simultaneous, and vote ties break by
// earliest vote. If the eliminated player is the spy each non-spy gains one
// point, otherwise the spy gains two.
package spy

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/KovalDenys1/boardly/internal/models"
	"github.com/KovalDenys1/boardly/internal/rules"
)

// Phases of one round.
const (
	PhaseRoleReveal  = "role_reveal"
	PhaseQuestioning = "questioning"
	PhaseVoting      = "voting"
	PhaseResults     = "results"
)

// Move types.
const (
	MoveTypeAckRole = "ack-role"
	MoveTypeAsk     = "ask"
	MoveTypeAnswer  = "answer"
	MoveTypeVote    = "vote"
)

// DefaultRounds is the round count when the lobby does not configure one.
const DefaultRounds = 3

// locations is the shared-location deck. Selection is seeded per game.
var locations = []string{
	"airport", "bank", "beach", "casino", "cinema", "hospital",
	"hotel", "museum", "restaurant", "school", "space station",
	"submarine", "supermarket", "theater", "train station", "zoo",
}

type vote struct {
	Voter  string `json:"voter"`
	Target string `json:"target"`
	Order  int    `json:"order"`
}

type qaEntry struct {
	Asker    string `json:"asker"`
	Target   string `json:"target"`
	Question string `json:"question"`
	Answer   string `json:"answer,omitempty"`
}

type matchAggregate struct {
	TargetRounds int `json:"targetRounds"`
	RoundsPlayed int `json:"roundsPlayed"`
}

type state struct {
	SeatList []rules.Seat    `json:"seats"`
	Phase    string          `json:"phase"`
	SpyID    string          `json:"spyId"`
	Location string          `json:"location"`
	Acked    map[string]bool `json:"acked"`
	AskerIdx int             `json:"askerIdx"`
	AsksDone int             `json:"asksDone"`
	// AnswerOwed is the player who must answer the open question, if any.
	AnswerOwed  string         `json:"answerOwed,omitempty"`
	QuestionLog []qaEntry      `json:"questionLog"`
	Votes       []vote         `json:"votes"`
	Points      map[string]int `json:"points"`
	Round       int            `json:"round"`
	Over        bool           `json:"over"`
	Eliminated  string         `json:"eliminated,omitempty"`
	SpyCaught   bool           `json:"spyCaught"`
	RNGSeed     int64          `json:"rngSeed"`
	Match       matchAggregate `json:"match"`
}

func (s *state) Seats() []rules.Seat { return s.SeatList }
func (s *state) RoundOver() bool     { return s.Over }

// CurrentPlayerIndex is the seat that owes the next action for the current
// phase: the first un-acked player, the open question's target or the asker,
// or the first player who has not voted.
func (s *state) CurrentPlayerIndex() int {
	switch s.Phase {
	case PhaseRoleReveal:
		for i, seat := range s.SeatList {
			if !s.Acked[seat.PlayerID] {
				return i
			}
		}
	case PhaseQuestioning:
		if s.AnswerOwed != "" {
			return rules.SeatIndex(s.SeatList, s.AnswerOwed)
		}
		return s.AskerIdx
	case PhaseVoting:
		for i, seat := range s.SeatList {
			if !s.hasVoted(seat.PlayerID) {
				return i
			}
		}
	}
	return s.AskerIdx
}

func (s *state) hasVoted(playerID string) bool {
	for _, v := range s.Votes {
		if v.Voter == playerID {
			return true
		}
	}
	return false
}

func (s *state) clone() *state {
	out := *s
	out.SeatList = append([]rules.Seat(nil), s.SeatList...)
	out.Acked = make(map[string]bool, len(s.Acked))
	for k, v := range s.Acked {
		out.Acked[k] = v
	}
	out.Points = make(map[string]int, len(s.Points))
	for k, v := range s.Points {
		out.Points[k] = v
	}
	out.QuestionLog = append([]qaEntry(nil), s.QuestionLog...)
	out.Votes = append([]vote(nil), s.Votes...)
	return &out
}

type askData struct {
	TargetID string `json:"targetId"`
	Question string `json:"question"`
}

type answerData struct {
	Answer string `json:"answer"`
}

type voteData struct {
	TargetID string `json:"targetId"`
}

// Engine implements rules.Engine for Guess the Spy.
type Engine struct{}

// New returns the Guess the Spy engine.
func New() *Engine { return &Engine{} }

func (e *Engine) Type() models.GameType { return models.GameSpy }
func (e *Engine) MinPlayers() int       { return 3 }
func (e *Engine) MaxPlayers() int       { return 8 }

func (e *Engine) InitialState(seats []rules.Seat, cfg rules.Config) (rules.State, error) {
	if len(seats) < e.MinPlayers() || len(seats) > e.MaxPlayers() {
		return nil, fmt.Errorf("spy requires 3-8 players, got %d", len(seats))
	}
	rounds := cfg.TargetRounds
	if rounds == 0 {
		rounds = DefaultRounds
	}
	s := &state{
		SeatList: append([]rules.Seat(nil), seats...),
		Acked:    map[string]bool{},
		Points:   map[string]int{},
		Round:    1,
		RNGSeed:  time.Now().UnixNano(),
		Match:    matchAggregate{TargetRounds: rounds},
	}
	s.assignRoles()
	return s, nil
}

// assignRoles picks the spy and the shared location from the seeded rng,
// varying by round so re-deals differ deterministically after a restore.
func (s *state) assignRoles() {
	rng := rand.New(rand.NewSource(s.RNGSeed + int64(s.Round)*0x9E3779B9))
	s.SpyID = s.SeatList[rng.Intn(len(s.SeatList))].PlayerID
	s.Location = locations[rng.Intn(len(locations))]
	s.Phase = PhaseRoleReveal
	s.AskerIdx = (s.Round - 1) % len(s.SeatList)
}

func (e *Engine) ValidateMove(st rules.State, m models.Move) error {
	s, ok := st.(*state)
	if !ok {
		return fmt.Errorf("spy: unexpected state type %T", st)
	}
	if s.Over {
		return rules.NotPlaying()
	}
	if rules.SeatIndex(s.SeatList, m.PlayerID) < 0 {
		return rules.Invalid("player is not seated in this game")
	}

	switch m.Type {
	case MoveTypeAckRole:
		if s.Phase != PhaseRoleReveal {
			return rules.Invalid("role reveal is over")
		}
		if s.Acked[m.PlayerID] {
			return rules.Invalid("role already acknowledged")
		}
		return nil

	case MoveTypeAsk:
		if s.Phase != PhaseQuestioning {
			return rules.Invalid("questioning is not open")
		}
		if s.AnswerOwed != "" {
			return rules.Invalid("an answer is still pending")
		}
		if rules.SeatIndex(s.SeatList, m.PlayerID) != s.AskerIdx {
			return rules.NotYourTurn()
		}
		var d askData
		if err := json.Unmarshal(m.Data, &d); err != nil {
			return rules.Invalid("malformed move data")
		}
		if d.Question == "" {
			return rules.Invalid("question must not be empty")
		}
		if d.TargetID == m.PlayerID {
			return rules.Invalid("cannot question yourself")
		}
		if rules.SeatIndex(s.SeatList, d.TargetID) < 0 {
			return rules.Invalid("target is not seated in this game")
		}
		return nil

	case MoveTypeAnswer:
		if s.Phase != PhaseQuestioning {
			return rules.Invalid("questioning is not open")
		}
		if s.AnswerOwed == "" {
			return rules.Invalid("no question is pending")
		}
		if m.PlayerID != s.AnswerOwed {
			return rules.NotYourTurn()
		}
		var d answerData
		if err := json.Unmarshal(m.Data, &d); err != nil {
			return rules.Invalid("malformed move data")
		}
		if d.Answer == "" {
			return rules.Invalid("answer must not be empty")
		}
		return nil

	case MoveTypeVote:
		if s.Phase != PhaseVoting {
			return rules.Invalid("voting is not open")
		}
		if s.hasVoted(m.PlayerID) {
			return rules.Invalid("already voted")
		}
		var d voteData
		if err := json.Unmarshal(m.Data, &d); err != nil {
			return rules.Invalid("malformed move data")
		}
		if d.TargetID == m.PlayerID {
			return rules.Invalid("cannot vote for yourself")
		}
		if rules.SeatIndex(s.SeatList, d.TargetID) < 0 {
			return rules.Invalid("target is not seated in this game")
		}
		return nil
	}
	return rules.Invalid(fmt.Sprintf("unknown move type %q", m.Type))
}

func (e *Engine) ApplyMove(st rules.State, m models.Move) (rules.State, []rules.Event, error) {
	s := st.(*state).clone()
	var events []rules.Event

	switch m.Type {
	case MoveTypeAckRole:
		s.Acked[m.PlayerID] = true
		if len(s.Acked) == len(s.SeatList) {
			s.Phase = PhaseQuestioning
			events = append(events, rules.Event{
				Type:    "phase-changed",
				Payload: map[string]interface{}{"phase": PhaseQuestioning, "asker": s.SeatList[s.AskerIdx].PlayerID},
			})
		}

	case MoveTypeAsk:
		var d askData
		if err := json.Unmarshal(m.Data, &d); err != nil {
			return nil, nil, rules.Invalid("malformed move data")
		}
		s.AnswerOwed = d.TargetID
		s.QuestionLog = append(s.QuestionLog, qaEntry{
			Asker: m.PlayerID, Target: d.TargetID, Question: d.Question,
		})
		events = append(events, rules.Event{
			Type: "question-asked",
			Payload: map[string]interface{}{
				"asker": m.PlayerID, "target": d.TargetID, "question": d.Question,
			},
		})

	case MoveTypeAnswer:
		var d answerData
		if err := json.Unmarshal(m.Data, &d); err != nil {
			return nil, nil, rules.Invalid("malformed move data")
		}
		s.QuestionLog[len(s.QuestionLog)-1].Answer = d.Answer
		s.AnswerOwed = ""
		s.AsksDone++
		events = append(events, rules.Event{
			Type:    "question-answered",
			Payload: map[string]interface{}{"target": m.PlayerID, "answer": d.Answer},
		})
		if s.AsksDone >= len(s.SeatList) {
			s.Phase = PhaseVoting
			events = append(events, rules.Event{
				Type:    "phase-changed",
				Payload: map[string]interface{}{"phase": PhaseVoting},
			})
		} else {
			s.AskerIdx = (s.AskerIdx + 1) % len(s.SeatList)
			events = append(events, rules.Event{
				Type:    "asker-changed",
				Payload: map[string]interface{}{"asker": s.SeatList[s.AskerIdx].PlayerID},
			})
		}

	case MoveTypeVote:
		var d voteData
		if err := json.Unmarshal(m.Data, &d); err != nil {
			return nil, nil, rules.Invalid("malformed move data")
		}
		s.Votes = append(s.Votes, vote{Voter: m.PlayerID, Target: d.TargetID, Order: len(s.Votes)})
		events = append(events, rules.Event{
			Type:    "vote-cast",
			Payload: map[string]interface{}{"voter": m.PlayerID},
		})
		if len(s.Votes) == len(s.SeatList) {
			events = append(events, e.resolveVotes(s)...)
		}
	}
	return s, events, nil
}

// resolveVotes tallies the simultaneous votes, eliminates the leader (ties
// broken by earliest vote against them), and applies round scoring.
func (e *Engine) resolveVotes(s *state) []rules.Event {
	tally := map[string]int{}
	earliest := map[string]int{}
	for _, v := range s.Votes {
		tally[v.Target]++
		if _, seen := earliest[v.Target]; !seen {
			earliest[v.Target] = v.Order
		}
	}

	eliminated, bestVotes, bestOrder := "", -1, 0
	for _, seat := range s.SeatList {
		target := seat.PlayerID
		n, voted := tally[target]
		if !voted {
			continue
		}
		if n > bestVotes || (n == bestVotes && earliest[target] < bestOrder) {
			eliminated, bestVotes, bestOrder = target, n, earliest[target]
		}
	}

	s.Eliminated = eliminated
	s.SpyCaught = eliminated == s.SpyID
	if s.SpyCaught {
		for _, seat := range s.SeatList {
			if seat.PlayerID != s.SpyID {
				s.Points[seat.PlayerID]++
			}
		}
	} else {
		s.Points[s.SpyID] += 2
	}

	s.Phase = PhaseResults
	s.Over = true
	s.Match.RoundsPlayed++

	return []rules.Event{{
		Type: "round-finished",
		Payload: map[string]interface{}{
			"eliminated": eliminated,
			"spyCaught":  s.SpyCaught,
			"spy":        s.SpyID,
			"location":   s.Location,
			"points":     s.Points,
		},
	}}
}

func (e *Engine) IsTerminal(st rules.State) rules.Terminal {
	s := st.(*state)
	if !s.Over {
		return rules.Terminal{}
	}
	points := make(map[string]int, len(s.SeatList))
	if s.SpyCaught {
		for _, seat := range s.SeatList {
			if seat.PlayerID != s.SpyID {
				points[seat.PlayerID] = 1
			}
		}
	} else {
		points[s.SpyID] = 2
	}
	winner := s.SpyID
	if s.SpyCaught {
		winner = ""
	}
	return rules.Terminal{
		Finished: true,
		Winner:   winner,
		Points:   points,
		Detail: map[string]interface{}{
			"spy":        s.SpyID,
			"spyCaught":  s.SpyCaught,
			"eliminated": s.Eliminated,
			"location":   s.Location,
			"points":     s.Points,
			"round":      s.Round,
		},
	}
}

// FallbackMove advances whatever the player currently owes: an ack, a canned
// question to the next seat, a canned answer, or a vote for the next seat.
func (e *Engine) FallbackMove(st rules.State, playerID string) (models.Move, error) {
	s := st.(*state)
	if s.Over {
		return models.Move{}, rules.NotPlaying()
	}
	idx := rules.SeatIndex(s.SeatList, playerID)
	if idx < 0 {
		return models.Move{}, rules.Invalid("player is not seated in this game")
	}

	switch s.Phase {
	case PhaseRoleReveal:
		if !s.Acked[playerID] {
			return spyMove(playerID, MoveTypeAckRole, nil), nil
		}
	case PhaseQuestioning:
		if s.AnswerOwed == playerID {
			data, _ := json.Marshal(answerData{Answer: "I'd rather not say."})
			return spyMove(playerID, MoveTypeAnswer, data), nil
		}
		if idx == s.AskerIdx && s.AnswerOwed == "" {
			target := s.SeatList[(idx+1)%len(s.SeatList)].PlayerID
			data, _ := json.Marshal(askData{TargetID: target, Question: "What do you like most about this place?"})
			return spyMove(playerID, MoveTypeAsk, data), nil
		}
	case PhaseVoting:
		if !s.hasVoted(playerID) {
			target := s.SeatList[(idx+1)%len(s.SeatList)].PlayerID
			data, _ := json.Marshal(voteData{TargetID: target})
			return spyMove(playerID, MoveTypeVote, data), nil
		}
	}
	return models.Move{}, rules.Invalid("no action owed")
}

func spyMove(playerID, moveType string, data json.RawMessage) models.Move {
	return models.Move{PlayerID: playerID, Type: moveType, Data: data, Timestamp: time.Now()}
}

// NextRound re-deals roles for the next round, keeping cumulative points.
func (e *Engine) NextRound(st rules.State) (rules.State, error) {
	s := st.(*state)
	if !s.Over {
		return nil, rules.Invalid("round is still in progress")
	}
	if s.Match.TargetRounds > 0 && s.Match.RoundsPlayed >= s.Match.TargetRounds {
		return nil, rules.Invalid("round limit reached")
	}
	next := s.clone()
	next.Round++
	next.Acked = map[string]bool{}
	next.AsksDone = 0
	next.AnswerOwed = ""
	next.QuestionLog = nil
	next.Votes = nil
	next.Over = false
	next.Eliminated = ""
	next.SpyCaught = false
	next.assignRoles()
	return next, nil
}

func (e *Engine) Serialize(st rules.State) ([]byte, error) {
	return rules.MarshalEnvelope(models.GameSpy, st.(*state))
}

func (e *Engine) Restore(data []byte) (rules.State, error) {
	t, raw, err := rules.UnmarshalEnvelope(data)
	if err != nil {
		return nil, err
	}
	if t != models.GameSpy {
		return nil, fmt.Errorf("expected spy state, got %q", t)
	}
	var s state
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	if s.Acked == nil {
		s.Acked = map[string]bool{}
	}
	if s.Points == nil {
		s.Points = map[string]int{}
	}
	return &s, nil
}
