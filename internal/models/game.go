package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// GameType identifies one of the supported rule sets.
type GameType string

const (
	GameTicTacToe GameType = "tictactoe"
	GameYahtzee   GameType = "yahtzee"
	GameRPS       GameType = "rps"
	GameSpy       GameType = "spy"
)

// KnownGameType reports whether t names a supported rule set.
func KnownGameType(t GameType) bool {
	switch t {
	case GameTicTacToe, GameYahtzee, GameRPS, GameSpy:
		return true
	}
	return false
}

// PlayerBounds returns the allowed roster size for a game type. The zero
// return means the type is unknown.
func PlayerBounds(t GameType) (min, max int) {
	switch t {
	case GameTicTacToe, GameRPS:
		return 2, 2
	case GameYahtzee:
		return 2, 8
	case GameSpy:
		return 3, 8
	}
	return 0, 0
}

// GameStatus is the lifecycle state of a game. Transitions are one-way:
// waiting -> playing -> finished | abandoned.
type GameStatus string

const (
	StatusWaiting   GameStatus = "waiting"
	StatusPlaying   GameStatus = "playing"
	StatusFinished  GameStatus = "finished"
	StatusAbandoned GameStatus = "abandoned"
)

// Game is one persisted instance of play. State holds the serialized,
// self-describing rules-module blob; the live deserialized state is owned by
// the match runtime.
type Game struct {
	ID                 uuid.UUID  `json:"id"`
	LobbyCode          string     `json:"lobbyCode"`
	GameType           GameType   `json:"gameType"`
	Status             GameStatus `json:"status"`
	State              []byte     `json:"-"`
	CurrentPlayerIndex int        `json:"currentPlayerIndex"`
	CreatedAt          time.Time  `json:"createdAt"`
	UpdatedAt          time.Time  `json:"updatedAt"`
}

// Move is the envelope for a single game mutation. PlayerID is always the
// principal bound to the submitting connection; client-supplied ids are
// ignored upstream.
type Move struct {
	PlayerID  string          `json:"playerId"`
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}
