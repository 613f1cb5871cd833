package rps

import (
	"math/rand"
	"sync"

	"github.com/KovalDenys1/boardly/internal/models"
	"github.com/KovalDenys1/boardly/internal/rules"
)

// RegisterStrategies wires the three difficulty tiers into the registry.
func RegisterStrategies(r *rules.Registry, rng *rand.Rand) {
	r.RegisterStrategy(models.GameRPS, models.BotEasy, &randomStrategy{rng: rng})
	r.RegisterStrategy(models.GameRPS, models.BotMedium, &frequencyStrategy{})
	r.RegisterStrategy(models.GameRPS, models.BotHard, &counterStrategy{})
}

var choices = []string{Rock, Paper, Scissors}

// counterTo maps a choice to the choice that defeats it.
var counterTo = map[string]string{
	Rock:     Paper,
	Paper:    Scissors,
	Scissors: Rock,
}

func opponentOf(s *state, botID string) string {
	for _, seat := range s.SeatList {
		if seat.PlayerID != botID {
			return seat.PlayerID
		}
	}
	return ""
}

// randomStrategy throws uniformly at random.
type randomStrategy struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func (s *randomStrategy) NextMove(st rules.State, botID string) (models.Move, string, error) {
	s.mu.Lock()
	choice := choices[s.rng.Intn(len(choices))]
	s.mu.Unlock()
	return throwMove(botID, choice), "thinking", nil
}

// frequencyStrategy counters the opponent's historically most frequent choice.
// With no history it opens with paper (rock is the most common human opener).
type frequencyStrategy struct{}

func (s *frequencyStrategy) NextMove(st rules.State, botID string) (models.Move, string, error) {
	gs := st.(*state)
	opp := opponentOf(gs, botID)

	best, bestCount := "", -1
	for _, c := range choices {
		if n := gs.History[opp][c]; n > bestCount {
			best, bestCount = c, n
		}
	}
	if bestCount <= 0 {
		return throwMove(botID, Paper), "thinking", nil
	}
	return throwMove(botID, counterTo[best]), "thinking", nil
}

// counterStrategy models win-stay/lose-shift: winners tend to repeat, losers
// tend to rotate to the throw that would have beaten their loss. It predicts
// accordingly and counters the prediction.
type counterStrategy struct{}

func (s *counterStrategy) NextMove(st rules.State, botID string) (models.Move, string, error) {
	gs := st.(*state)
	opp := opponentOf(gs, botID)

	if winChoice, oppWonLast := gs.LastWin[opp]; oppWonLast {
		// Opponent won with winChoice; expect a repeat.
		return throwMove(botID, counterTo[winChoice]), "thinking", nil
	}
	if len(gs.LastWin) > 0 {
		// Opponent lost last round; expect a shift to what would have won.
		for _, myWin := range gs.LastWin {
			predicted := counterTo[myWin]
			return throwMove(botID, counterTo[predicted]), "thinking", nil
		}
	}
	// No signal yet: fall back to frequency counting.
	return (&frequencyStrategy{}).NextMove(st, botID)
}
