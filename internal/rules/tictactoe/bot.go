package tictactoe

import (
	"math/rand"
	"sync"

	"github.com/KovalDenys1/boardly/internal/models"
	"github.com/KovalDenys1/boardly/internal/rules"
)

// cellPreference orders cells center > corners > edges, used for deterministic
// tie-breaking by the medium and hard strategies.
var cellPreference = [][2]int{
	{1, 1},
	{0, 0}, {0, 2}, {2, 0}, {2, 2},
	{0, 1}, {1, 0}, {1, 2}, {2, 1},
}

// RegisterStrategies wires the three difficulty tiers into the registry.
func RegisterStrategies(r *rules.Registry, rng *rand.Rand) {
	r.RegisterStrategy(models.GameTicTacToe, models.BotEasy, &randomStrategy{rng: rng})
	r.RegisterStrategy(models.GameTicTacToe, models.BotMedium, &heuristicStrategy{})
	r.RegisterStrategy(models.GameTicTacToe, models.BotHard, &minimaxStrategy{})
}

// randomStrategy plays a uniform-random legal move.
type randomStrategy struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func (s *randomStrategy) NextMove(st rules.State, botID string) (models.Move, string, error) {
	gs := st.(*state)
	var empty [][2]int
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			if gs.Board[r][c] == "" {
				empty = append(empty, [2]int{r, c})
			}
		}
	}
	if len(empty) == 0 {
		return models.Move{}, "", rules.Invalid("no legal moves")
	}
	s.mu.Lock()
	pick := empty[s.rng.Intn(len(empty))]
	s.mu.Unlock()
	return placeMove(botID, pick[0], pick[1]), "thinking", nil
}

// heuristicStrategy is a one-ply lookahead: win now, else block the opponent,
// else take the most preferred open cell.
type heuristicStrategy struct{}

func (s *heuristicStrategy) NextMove(st rules.State, botID string) (models.Move, string, error) {
	gs := st.(*state)
	mySym := gs.Symbols[botID]
	oppSym := symbolX
	if mySym == symbolX {
		oppSym = symbolO
	}

	if cell, ok := completingCell(gs.Board, mySym); ok {
		return placeMove(botID, cell[0], cell[1]), "thinking", nil
	}
	if cell, ok := completingCell(gs.Board, oppSym); ok {
		return placeMove(botID, cell[0], cell[1]), "thinking", nil
	}
	for _, cell := range cellPreference {
		if gs.Board[cell[0]][cell[1]] == "" {
			return placeMove(botID, cell[0], cell[1]), "thinking", nil
		}
	}
	return models.Move{}, "", rules.Invalid("no legal moves")
}

// completingCell finds a cell that completes a triple for sym, scanning in
// preference order so the choice is stable.
func completingCell(b [3][3]string, sym string) ([2]int, bool) {
	for _, cell := range cellPreference {
		r, c := cell[0], cell[1]
		if b[r][c] != "" {
			continue
		}
		b[r][c] = sym
		won := winningLine(b, sym) != nil
		b[r][c] = ""
		if won {
			return cell, true
		}
	}
	return [2]int{}, false
}

// minimaxStrategy plays the game-theoretic optimum via minimax with
// alpha-beta pruning. Ties favour center, then corners, then edges.
type minimaxStrategy struct{}

func (s *minimaxStrategy) NextMove(st rules.State, botID string) (models.Move, string, error) {
	gs := st.(*state)
	mySym := gs.Symbols[botID]
	oppSym := symbolX
	if mySym == symbolX {
		oppSym = symbolO
	}

	bestScore := -1000
	var best [2]int
	found := false
	board := gs.Board
	for _, cell := range cellPreference {
		r, c := cell[0], cell[1]
		if board[r][c] != "" {
			continue
		}
		board[r][c] = mySym
		score := minimax(&board, mySym, oppSym, false, -1000, 1000, 0)
		board[r][c] = ""
		if !found || score > bestScore {
			bestScore = score
			best = cell
			found = true
		}
	}
	if !found {
		return models.Move{}, "", rules.Invalid("no legal moves")
	}
	return placeMove(botID, best[0], best[1]), "thinking", nil
}

// minimax scores the position for mySym. Depth is subtracted from win scores
// so faster wins (and slower losses) are preferred.
func minimax(b *[3][3]string, mySym, oppSym string, myTurn bool, alpha, beta, depth int) int {
	if winningLine(*b, mySym) != nil {
		return 10 - depth
	}
	if winningLine(*b, oppSym) != nil {
		return depth - 10
	}
	if boardFull(*b) {
		return 0
	}

	sym := oppSym
	if myTurn {
		sym = mySym
	}
	best := 1000
	if myTurn {
		best = -1000
	}
	for _, cell := range cellPreference {
		r, c := cell[0], cell[1]
		if b[r][c] != "" {
			continue
		}
		b[r][c] = sym
		score := minimax(b, mySym, oppSym, !myTurn, alpha, beta, depth+1)
		b[r][c] = ""
		if myTurn {
			if score > best {
				best = score
			}
			if best > alpha {
				alpha = best
			}
		} else {
			if score < best {
				best = score
			}
			if best < beta {
				beta = best
			}
		}
		if alpha >= beta {
			break
		}
	}
	return best
}

func boardFull(b [3][3]string) bool {
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			if b[r][c] == "" {
				return false
			}
		}
	}
	return true
}
