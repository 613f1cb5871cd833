package match

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// timerManager tracks the single pending turn deadline per game. Arming a
// game replaces any previous deadline; cancellation is idempotent.
type timerManager struct {
	mu     sync.Mutex
	timers map[uuid.UUID]*time.Timer
}

func newTimerManager() *timerManager {
	return &timerManager{timers: make(map[uuid.UUID]*time.Timer)}
}

// Arm schedules fire after d, replacing any pending deadline for gameID.
func (t *timerManager) Arm(gameID uuid.UUID, d time.Duration, fire func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if existing, ok := t.timers[gameID]; ok {
		existing.Stop()
	}
	t.timers[gameID] = time.AfterFunc(d, fire)
}

// Cancel stops the pending deadline for gameID, if any.
func (t *timerManager) Cancel(gameID uuid.UUID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if existing, ok := t.timers[gameID]; ok {
		existing.Stop()
		delete(t.timers, gameID)
	}
}

// CancelAll stops every pending deadline (shutdown path).
func (t *timerManager) CancelAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, timer := range t.timers {
		timer.Stop()
		delete(t.timers, id)
	}
}
