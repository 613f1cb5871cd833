package models

import "time"

// Principal is an authenticated identity bound to a connection: a registered
// user, a guest, or a server-controlled bot. Principals are immutable for the
// lifetime of a connection; mutable presence data lives in Membership.
type Principal struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	IsGuest     bool   `json:"isGuest"`
	IsBot       bool   `json:"isBot"`

	// LastActiveAt drives guest garbage collection. The resolver refreshes it
	// for users and guests alike; only guests are swept.
	LastActiveAt time.Time `json:"-"`
}

// BotDifficulty selects a bot strategy tier.
type BotDifficulty string

const (
	BotEasy   BotDifficulty = "easy"
	BotMedium BotDifficulty = "medium"
	BotHard   BotDifficulty = "hard"
)

// Bot links a bot principal to its difficulty and the game type it plays.
type Bot struct {
	UserID     string        `json:"userId"`
	Difficulty BotDifficulty `json:"difficulty"`
	BotType    string        `json:"botType"`
}
