package models

import "time"

// AlertState is the persisted state machine of one reliability rule.
// Invariant: IsOpen implies LastTriggeredAt >= LastResolvedAt.
type AlertState struct {
	AlertKey        string    `json:"alertKey"`
	IsOpen          bool      `json:"isOpen"`
	LastValue       float64   `json:"lastValue"`
	LastTriggeredAt time.Time `json:"lastTriggeredAt"`
	LastNotifiedAt  time.Time `json:"lastNotifiedAt"`
	LastResolvedAt  time.Time `json:"lastResolvedAt"`
}
