package yahtzee

import (
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"github.com/KovalDenys1/boardly/internal/models"
	"github.com/KovalDenys1/boardly/internal/rules"
)

// RegisterStrategies wires the three difficulty tiers into the registry.
func RegisterStrategies(r *rules.Registry, rng *rand.Rand) {
	r.RegisterStrategy(models.GameYahtzee, models.BotEasy, &randomStrategy{rng: rng})
	r.RegisterStrategy(models.GameYahtzee, models.BotMedium, &heuristicStrategy{maxRolls: 2})
	r.RegisterStrategy(models.GameYahtzee, models.BotHard, &heuristicStrategy{maxRolls: 3, bonusAware: true})
}

func rollMove(botID string, hold [5]bool) models.Move {
	data, _ := json.Marshal(rollData{Hold: hold})
	return models.Move{PlayerID: botID, Type: MoveTypeRoll, Data: data, Timestamp: time.Now()}
}

func scoreMove(botID, category string) models.Move {
	data, _ := json.Marshal(scoreData{Category: category})
	return models.Move{PlayerID: botID, Type: MoveTypeScore, Data: data, Timestamp: time.Now()}
}

// randomStrategy rolls once, then scores a uniformly random open category.
type randomStrategy struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func (s *randomStrategy) NextMove(st rules.State, botID string) (models.Move, string, error) {
	gs := st.(*state)
	if gs.RollsLeft == rollsPerTurn {
		return rollMove(botID, [5]bool{}), "roll", nil
	}
	var open []string
	for _, cat := range Categories {
		if _, filled := gs.Cards[botID][cat]; !filled {
			open = append(open, cat)
		}
	}
	if len(open) == 0 {
		return models.Move{}, "", rules.Invalid("no open categories")
	}
	s.mu.Lock()
	cat := open[s.rng.Intn(len(open))]
	s.mu.Unlock()
	return scoreMove(botID, cat), "score", nil
}

// heuristicStrategy keeps the most frequent face, re-rolls the rest up to
// maxRolls times, then scores the best-available category. The bonus-aware
// variant nudges toward the upper section while the +35 is still reachable.
type heuristicStrategy struct {
	maxRolls   int
	bonusAware bool
}

func (s *heuristicStrategy) NextMove(st rules.State, botID string) (models.Move, string, error) {
	gs := st.(*state)

	if gs.RollsLeft == rollsPerTurn {
		return rollMove(botID, [5]bool{}), "roll", nil
	}

	rollsUsed := rollsPerTurn - gs.RollsLeft
	if gs.RollsLeft > 0 && rollsUsed < s.maxRolls {
		hold := s.holdMask(gs, botID)
		allHeld := true
		for _, h := range hold {
			if !h {
				allHeld = false
				break
			}
		}
		if !allHeld {
			return rollMove(botID, hold), "roll", nil
		}
	}

	cat, ok := s.pickCategory(gs, botID)
	if !ok {
		return models.Move{}, "", rules.Invalid("no open categories")
	}
	return scoreMove(botID, cat), "score", nil
}

// holdMask keeps every die showing the most frequent face.
func (s *heuristicStrategy) holdMask(gs *state, botID string) [5]bool {
	counts := [7]int{}
	for _, d := range gs.Dice {
		counts[d]++
	}
	bestFace, bestCount := 0, 0
	for f := 1; f <= 6; f++ {
		if counts[f] > bestCount || (counts[f] == bestCount && s.preferFace(gs, botID, f, bestFace)) {
			bestFace, bestCount = f, counts[f]
		}
	}
	var hold [5]bool
	for i, d := range gs.Dice {
		hold[i] = d == bestFace
	}
	return hold
}

// preferFace breaks count ties: the bonus-aware tier prefers faces whose
// upper category is still open, otherwise the higher face wins.
func (s *heuristicStrategy) preferFace(gs *state, botID string, candidate, current int) bool {
	if s.bonusAware {
		candOpen := s.upperOpen(gs, botID, candidate)
		curOpen := s.upperOpen(gs, botID, current)
		if candOpen != curOpen {
			return candOpen
		}
	}
	return candidate > current
}

func (s *heuristicStrategy) upperOpen(gs *state, botID string, face int) bool {
	for cat, f := range upperCategories {
		if f == face {
			_, filled := gs.Cards[botID][cat]
			return !filled
		}
	}
	return false
}

func (s *heuristicStrategy) pickCategory(gs *state, botID string) (string, bool) {
	if !s.bonusAware {
		return BestCategory(gs.Cards[botID], gs.Dice)
	}

	// Weight upper-section scores while the bonus is still in reach.
	card := gs.Cards[botID]
	upper := 0
	for cat := range upperCategories {
		if v, ok := card[cat]; ok {
			upper += v
		}
	}
	best, bestWeight, found := "", -1.0, false
	for _, cat := range Categories {
		if _, filled := card[cat]; filled {
			continue
		}
		weight := float64(ScoreCategory(cat, gs.Dice))
		if _, isUpper := upperCategories[cat]; isUpper && upper < upperBonusThreshold {
			weight *= 1.25
		}
		if weight > bestWeight {
			best, bestWeight, found = cat, weight, true
		}
	}
	return best, found
}
