// Package lobby implements the lobby registry: the mapping from shareable
// codes to rooms, their membership rosters, and the authorization rules
// around creator-only actions.
package lobby

import (
	"sync"

	"github.com/google/uuid"

	"github.com/KovalDenys1/boardly/internal/models"
)

// Lobby is one active room plus its roster. All mutation goes through the
// Registry, which owns the locking discipline.
type Lobby struct {
	mu      sync.Mutex
	Model   models.Lobby
	Members []*models.Membership

	// GameID references the lobby's single waiting-or-playing game.
	GameID uuid.UUID
}

// Snapshot returns a copy of the lobby model and roster for read-only use.
func (l *Lobby) Snapshot() (models.Lobby, []models.Membership) {
	l.mu.Lock()
	defer l.mu.Unlock()
	members := make([]models.Membership, len(l.Members))
	for i, m := range l.Members {
		members[i] = *m
	}
	return l.Model, members
}

// ActiveGameID returns the current game id.
func (l *Lobby) ActiveGameID() uuid.UUID {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.GameID
}

func (l *Lobby) member(principalID string) *models.Membership {
	for _, m := range l.Members {
		if m.PrincipalID == principalID {
			return m
		}
	}
	return nil
}

// reseat restores the dense 0..n-1 seat index invariant after a removal.
func (l *Lobby) reseat() {
	for i, m := range l.Members {
		m.SeatIndex = i
	}
}
