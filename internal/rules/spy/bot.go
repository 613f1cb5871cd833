package spy

import (
	"encoding/json"
	"math/rand"
	"sync"

	"github.com/KovalDenys1/boardly/internal/models"
	"github.com/KovalDenys1/boardly/internal/rules"
)

// RegisterStrategies wires the three difficulty tiers into the registry.
func RegisterStrategies(r *rules.Registry, rng *rand.Rand) {
	r.RegisterStrategy(models.GameSpy, models.BotEasy, &botStrategy{rng: rng})
	r.RegisterStrategy(models.GameSpy, models.BotMedium, &botStrategy{rng: rng, suspicious: true})
	r.RegisterStrategy(models.GameSpy, models.BotHard, &botStrategy{rng: rng, suspicious: true, deflect: true})
}

var questions = []string{
	"How often do you come here?",
	"What's the first thing you notice when you arrive?",
	"Would you bring your family here?",
	"What do people usually wear here?",
	"How long do you normally stay?",
}

var vagueAnswers = []string{
	"Often enough.",
	"Depends on the day, really.",
	"It has its moments.",
	"About as long as anyone else.",
}

// botStrategy plays all phases. The suspicious tier votes for the player
// whose answers were shortest; the deflecting tier additionally avoids
// questioning the player questioning it when it is the spy.
type botStrategy struct {
	mu         sync.Mutex
	rng        *rand.Rand
	suspicious bool
	deflect    bool
}

func (b *botStrategy) NextMove(st rules.State, botID string) (models.Move, string, error) {
	gs := st.(*state)
	idx := rules.SeatIndex(gs.SeatList, botID)
	if idx < 0 {
		return models.Move{}, "", rules.Invalid("bot is not seated in this game")
	}

	switch gs.Phase {
	case PhaseRoleReveal:
		return spyMove(botID, MoveTypeAckRole, nil), "thinking", nil

	case PhaseQuestioning:
		if gs.AnswerOwed == botID {
			return b.answer(gs, botID)
		}
		return b.ask(gs, botID, idx)

	case PhaseVoting:
		return b.vote(gs, botID, idx)
	}
	return models.Move{}, "", rules.Invalid("no action owed")
}

func (b *botStrategy) answer(gs *state, botID string) (models.Move, string, error) {
	var answer string
	if gs.SpyID == botID {
		b.mu.Lock()
		answer = vagueAnswers[b.rng.Intn(len(vagueAnswers))]
		b.mu.Unlock()
	} else {
		answer = "The " + gs.Location + " is nicer than people say."
	}
	data, _ := json.Marshal(answerData{Answer: answer})
	return spyMove(botID, MoveTypeAnswer, data), "answer", nil
}

func (b *botStrategy) ask(gs *state, botID string, idx int) (models.Move, string, error) {
	// Pick the least-questioned other player; the deflecting spy also skips
	// whoever asked it last.
	asked := map[string]int{}
	lastAsker := ""
	for _, qa := range gs.QuestionLog {
		asked[qa.Target]++
		if qa.Target == botID {
			lastAsker = qa.Asker
		}
	}
	target, targetCount := "", 1<<30
	for _, seat := range gs.SeatList {
		pid := seat.PlayerID
		if pid == botID {
			continue
		}
		if b.deflect && gs.SpyID == botID && pid == lastAsker && len(gs.SeatList) > 3 {
			continue
		}
		if asked[pid] < targetCount {
			target, targetCount = pid, asked[pid]
		}
	}

	b.mu.Lock()
	question := questions[b.rng.Intn(len(questions))]
	b.mu.Unlock()
	data, _ := json.Marshal(askData{TargetID: target, Question: question})
	return spyMove(botID, MoveTypeAsk, data), "ask", nil
}

func (b *botStrategy) vote(gs *state, botID string, idx int) (models.Move, string, error) {
	target := ""
	if b.suspicious && gs.SpyID != botID {
		// Vote for the seated player with the shortest total answer text.
		shortest := 1 << 30
		for _, seat := range gs.SeatList {
			pid := seat.PlayerID
			if pid == botID {
				continue
			}
			total := 0
			answered := false
			for _, qa := range gs.QuestionLog {
				if qa.Target == pid && qa.Answer != "" {
					total += len(qa.Answer)
					answered = true
				}
			}
			if answered && total < shortest {
				target, shortest = pid, total
			}
		}
	}
	if target == "" {
		// The spy (or the easy tier) votes for a random other player.
		others := make([]string, 0, len(gs.SeatList)-1)
		for _, seat := range gs.SeatList {
			if seat.PlayerID != botID {
				others = append(others, seat.PlayerID)
			}
		}
		b.mu.Lock()
		target = others[b.rng.Intn(len(others))]
		b.mu.Unlock()
	}
	data, _ := json.Marshal(voteData{TargetID: target})
	return spyMove(botID, MoveTypeVote, data), "vote", nil
}
