// Package yahtzee implements the Yahtzee rules module: 13 categories scored
// once each, up to 3 rolls per turn with held dice, and a +35 upper-section
// bonus at 63 or more.
//
// Dice are derived from a per-game seed and a monotonically increasing roll
// index, so ApplyMove stays pure and a restored state replays identically.
package yahtzee

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/KovalDenys1/boardly/internal/models"
	"github.com/KovalDenys1/boardly/internal/rules"
)

// Move types.
const (
	MoveTypeRoll  = "roll"
	MoveTypeScore = "score"
)

// Categories in canonical order. The order is the tie-break for "best
// available" decisions, so it must stay stable.
var Categories = []string{
	"ones", "twos", "threes", "fours", "fives", "sixes",
	"three_of_a_kind", "four_of_a_kind", "full_house",
	"small_straight", "large_straight", "yahtzee", "chance",
}

var upperCategories = map[string]int{
	"ones": 1, "twos": 2, "threes": 3, "fours": 4, "fives": 5, "sixes": 6,
}

const (
	upperBonusThreshold = 63
	upperBonusPoints    = 35
	rollsPerTurn        = 3
)

type matchAggregate struct {
	TargetRounds int            `json:"targetRounds"`
	RoundsPlayed int            `json:"roundsPlayed"`
	WinsByPlayer map[string]int `json:"winsByPlayer"`
	Draws        int            `json:"draws"`
	RoundStarter int            `json:"roundStarter"`
}

type state struct {
	SeatList  []rules.Seat              `json:"seats"`
	Current   int                       `json:"current"`
	Dice      [5]int                    `json:"dice"`
	Held      [5]bool                   `json:"held"`
	RollsLeft int                       `json:"rollsLeft"`
	Cards     map[string]map[string]int `json:"scorecards"`
	Over      bool                      `json:"over"`
	WinnerID  string                    `json:"winnerId,omitempty"`
	IsDraw    bool                      `json:"isDraw"`
	RNGSeed   int64                     `json:"rngSeed"`
	RollIndex int                       `json:"rollIndex"`
	Match     matchAggregate            `json:"match"`
}

func (s *state) CurrentPlayerIndex() int { return s.Current }
func (s *state) Seats() []rules.Seat     { return s.SeatList }
func (s *state) RoundOver() bool         { return s.Over }

func (s *state) clone() *state {
	out := *s
	out.SeatList = append([]rules.Seat(nil), s.SeatList...)
	out.Cards = make(map[string]map[string]int, len(s.Cards))
	for pid, card := range s.Cards {
		cp := make(map[string]int, len(card))
		for cat, v := range card {
			cp[cat] = v
		}
		out.Cards[pid] = cp
	}
	out.Match.WinsByPlayer = make(map[string]int, len(s.Match.WinsByPlayer))
	for k, v := range s.Match.WinsByPlayer {
		out.Match.WinsByPlayer[k] = v
	}
	return &out
}

type rollData struct {
	Hold [5]bool `json:"hold"`
}

type scoreData struct {
	Category string `json:"category"`
}

// Engine implements rules.Engine for Yahtzee.
type Engine struct{}

// New returns the Yahtzee engine.
func New() *Engine { return &Engine{} }

func (e *Engine) Type() models.GameType { return models.GameYahtzee }
func (e *Engine) MinPlayers() int       { return 2 }
func (e *Engine) MaxPlayers() int       { return 8 }

func (e *Engine) InitialState(seats []rules.Seat, cfg rules.Config) (rules.State, error) {
	if len(seats) < e.MinPlayers() || len(seats) > e.MaxPlayers() {
		return nil, fmt.Errorf("yahtzee requires 2-8 players, got %d", len(seats))
	}
	s := &state{
		SeatList:  append([]rules.Seat(nil), seats...),
		RollsLeft: rollsPerTurn,
		Cards:     make(map[string]map[string]int, len(seats)),
		RNGSeed:   time.Now().UnixNano(),
		Match: matchAggregate{
			TargetRounds: cfg.TargetRounds,
			WinsByPlayer: map[string]int{},
		},
	}
	for _, seat := range seats {
		s.Cards[seat.PlayerID] = map[string]int{}
	}
	return s, nil
}

func (e *Engine) ValidateMove(st rules.State, m models.Move) error {
	s, ok := st.(*state)
	if !ok {
		return fmt.Errorf("yahtzee: unexpected state type %T", st)
	}
	if s.Over {
		return rules.NotPlaying()
	}
	idx := rules.SeatIndex(s.SeatList, m.PlayerID)
	if idx < 0 {
		return rules.Invalid("player is not seated in this game")
	}
	if idx != s.Current {
		return rules.NotYourTurn()
	}

	switch m.Type {
	case MoveTypeRoll:
		if s.RollsLeft <= 0 {
			return rules.Invalid("no rolls left this turn")
		}
		var d rollData
		if len(m.Data) > 0 {
			if err := json.Unmarshal(m.Data, &d); err != nil {
				return rules.Invalid("malformed move data")
			}
		}
		if s.RollsLeft == rollsPerTurn {
			for _, held := range d.Hold {
				if held {
					return rules.Invalid("cannot hold dice before the first roll")
				}
			}
		}
		return nil
	case MoveTypeScore:
		if s.RollsLeft == rollsPerTurn {
			return rules.Invalid("must roll before scoring")
		}
		var d scoreData
		if err := json.Unmarshal(m.Data, &d); err != nil {
			return rules.Invalid("malformed move data")
		}
		if !knownCategory(d.Category) {
			return rules.Invalid(fmt.Sprintf("unknown category %q", d.Category))
		}
		if _, filled := s.Cards[m.PlayerID][d.Category]; filled {
			return rules.Invalid(fmt.Sprintf("category %q already scored", d.Category))
		}
		return nil
	default:
		return rules.Invalid(fmt.Sprintf("unknown move type %q", m.Type))
	}
}

func (e *Engine) ApplyMove(st rules.State, m models.Move) (rules.State, []rules.Event, error) {
	s := st.(*state).clone()

	switch m.Type {
	case MoveTypeRoll:
		var d rollData
		if len(m.Data) > 0 {
			if err := json.Unmarshal(m.Data, &d); err != nil {
				return nil, nil, rules.Invalid("malformed move data")
			}
		}
		s.Held = d.Hold
		rng := rand.New(rand.NewSource(s.RNGSeed + int64(s.RollIndex)*0x9E3779B9))
		for i := range s.Dice {
			if !s.Held[i] || s.RollsLeft == rollsPerTurn {
				s.Dice[i] = rng.Intn(6) + 1
			}
		}
		s.RollIndex++
		s.RollsLeft--
		ev := rules.Event{
			Type: "dice-rolled",
			Payload: map[string]interface{}{
				"playerId":  m.PlayerID,
				"dice":      s.Dice,
				"held":      s.Held,
				"rollsLeft": s.RollsLeft,
			},
		}
		return s, []rules.Event{ev}, nil

	case MoveTypeScore:
		var d scoreData
		if err := json.Unmarshal(m.Data, &d); err != nil {
			return nil, nil, rules.Invalid("malformed move data")
		}
		points := ScoreCategory(d.Category, s.Dice)
		s.Cards[m.PlayerID][d.Category] = points

		events := []rules.Event{{
			Type: "category-scored",
			Payload: map[string]interface{}{
				"playerId": m.PlayerID,
				"category": d.Category,
				"points":   points,
				"total":    PlayerTotal(s.Cards[m.PlayerID]),
			},
		}}

		if e.allCardsComplete(s) {
			e.finishRound(s)
			events = append(events, rules.Event{
				Type:    "round-finished",
				Payload: map[string]interface{}{"winner": s.WinnerID, "draw": s.IsDraw},
			})
		} else {
			s.Current = (s.Current + 1) % len(s.SeatList)
			s.RollsLeft = rollsPerTurn
			s.Held = [5]bool{}
		}
		return s, events, nil
	}
	return nil, nil, rules.Invalid(fmt.Sprintf("unknown move type %q", m.Type))
}

func (e *Engine) allCardsComplete(s *state) bool {
	for _, card := range s.Cards {
		if len(card) < len(Categories) {
			return false
		}
	}
	return true
}

func (e *Engine) finishRound(s *state) {
	s.Over = true
	best, bestTotal, tied := "", -1, false
	for pid, card := range s.Cards {
		total := PlayerTotal(card)
		switch {
		case total > bestTotal:
			best, bestTotal, tied = pid, total, false
		case total == bestTotal:
			tied = true
		}
	}
	if tied {
		s.IsDraw = true
		s.Match.Draws++
	} else {
		s.WinnerID = best
		s.Match.WinsByPlayer[best]++
	}
	s.Match.RoundsPlayed++
}

func (e *Engine) IsTerminal(st rules.State) rules.Terminal {
	s := st.(*state)
	if !s.Over {
		return rules.Terminal{}
	}
	totals := map[string]interface{}{}
	for pid, card := range s.Cards {
		totals[pid] = PlayerTotal(card)
	}
	t := rules.Terminal{
		Finished: true,
		Winner:   s.WinnerID,
		Draw:     s.IsDraw,
		Detail: map[string]interface{}{
			"totals":       totals,
			"roundsPlayed": s.Match.RoundsPlayed,
			"winsByPlayer": s.Match.WinsByPlayer,
		},
	}
	if s.WinnerID != "" {
		t.Points = map[string]int{s.WinnerID: 1}
	}
	return t
}

// FallbackMove rolls once if the player has not rolled this turn, otherwise
// scores the best-available empty category.
func (e *Engine) FallbackMove(st rules.State, playerID string) (models.Move, error) {
	s := st.(*state)
	if s.Over {
		return models.Move{}, rules.NotPlaying()
	}
	if s.RollsLeft == rollsPerTurn {
		data, _ := json.Marshal(rollData{})
		return models.Move{PlayerID: playerID, Type: MoveTypeRoll, Data: data, Timestamp: time.Now()}, nil
	}
	cat, ok := BestCategory(s.Cards[playerID], s.Dice)
	if !ok {
		return models.Move{}, rules.Invalid("no open categories")
	}
	data, _ := json.Marshal(scoreData{Category: cat})
	return models.Move{PlayerID: playerID, Type: MoveTypeScore, Data: data, Timestamp: time.Now()}, nil
}

// BestCategory picks the open category scoring the most with dice, ties
// broken by canonical category order.
func BestCategory(card map[string]int, dice [5]int) (string, bool) {
	best, bestPoints, found := "", -1, false
	for _, cat := range Categories {
		if _, filled := card[cat]; filled {
			continue
		}
		if p := ScoreCategory(cat, dice); p > bestPoints {
			best, bestPoints, found = cat, p, true
		}
	}
	return best, found
}

// NextRound starts a fresh set of scorecards with the starting seat rotated.
func (e *Engine) NextRound(st rules.State) (rules.State, error) {
	s := st.(*state)
	if !s.Over {
		return nil, rules.Invalid("round is still in progress")
	}
	if s.Match.TargetRounds > 0 && s.Match.RoundsPlayed >= s.Match.TargetRounds {
		return nil, rules.Invalid("round limit reached")
	}
	next := s.clone()
	for pid := range next.Cards {
		next.Cards[pid] = map[string]int{}
	}
	next.Match.RoundStarter = (s.Match.RoundStarter + 1) % len(s.SeatList)
	next.Current = next.Match.RoundStarter
	next.Dice = [5]int{}
	next.Held = [5]bool{}
	next.RollsLeft = rollsPerTurn
	next.Over = false
	next.WinnerID = ""
	next.IsDraw = false
	return next, nil
}

func (e *Engine) Serialize(st rules.State) ([]byte, error) {
	return rules.MarshalEnvelope(models.GameYahtzee, st.(*state))
}

func (e *Engine) Restore(data []byte) (rules.State, error) {
	t, raw, err := rules.UnmarshalEnvelope(data)
	if err != nil {
		return nil, err
	}
	if t != models.GameYahtzee {
		return nil, fmt.Errorf("expected yahtzee state, got %q", t)
	}
	var s state
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	if s.Cards == nil {
		s.Cards = map[string]map[string]int{}
	}
	if s.Match.WinsByPlayer == nil {
		s.Match.WinsByPlayer = map[string]int{}
	}
	return &s, nil
}

func knownCategory(cat string) bool {
	for _, c := range Categories {
		if c == cat {
			return true
		}
	}
	return false
}

// ScoreCategory computes the points dice earn in cat.
func ScoreCategory(cat string, dice [5]int) int {
	counts := [7]int{}
	sum := 0
	for _, d := range dice {
		counts[d]++
		sum += d
	}

	if face, ok := upperCategories[cat]; ok {
		return counts[face] * face
	}

	switch cat {
	case "three_of_a_kind":
		for f := 1; f <= 6; f++ {
			if counts[f] >= 3 {
				return sum
			}
		}
		return 0
	case "four_of_a_kind":
		for f := 1; f <= 6; f++ {
			if counts[f] >= 4 {
				return sum
			}
		}
		return 0
	case "full_house":
		hasThree, hasPair := false, false
		for f := 1; f <= 6; f++ {
			if counts[f] >= 3 && !hasThree {
				hasThree = true
			} else if counts[f] >= 2 {
				hasPair = true
			}
		}
		if hasThree && hasPair {
			return 25
		}
		return 0
	case "small_straight":
		if hasRun(counts, 4) {
			return 30
		}
		return 0
	case "large_straight":
		if hasRun(counts, 5) {
			return 40
		}
		return 0
	case "yahtzee":
		for f := 1; f <= 6; f++ {
			if counts[f] == 5 {
				return 50
			}
		}
		return 0
	case "chance":
		return sum
	}
	return 0
}

func hasRun(counts [7]int, length int) bool {
	run := 0
	for f := 1; f <= 6; f++ {
		if counts[f] > 0 {
			run++
			if run >= length {
				return true
			}
		} else {
			run = 0
		}
	}
	return false
}

// PlayerTotal sums a scorecard including the upper-section bonus.
func PlayerTotal(card map[string]int) int {
	total, upper := 0, 0
	for cat, points := range card {
		total += points
		if _, ok := upperCategories[cat]; ok {
			upper += points
		}
	}
	if upper >= upperBonusThreshold {
		total += upperBonusPoints
	}
	return total
}
