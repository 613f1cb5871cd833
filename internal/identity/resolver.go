// Package identity turns opaque bearer credentials into stable principals and
// owns the ephemeral guest registry, including its 24h garbage collection.
package identity

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/KovalDenys1/boardly/internal/auth"
	"github.com/KovalDenys1/boardly/internal/models"
	"github.com/KovalDenys1/boardly/internal/telemetry"
)

var (
	// ErrAuthRequired means no usable credential was presented.
	ErrAuthRequired = errors.New("authentication required")
	// ErrAuthInvalid means a credential was presented but failed verification.
	ErrAuthInvalid = errors.New("authentication invalid")
)

// GuestTTL is how long a guest principal survives after its last activity.
const GuestTTL = 24 * time.Hour

// sweepInterval is how often the guest GC runs.
const sweepInterval = 10 * time.Minute

// Credential is the material a connection presents during the handshake.
// Exactly one of the fields is normally set; SessionToken is the cookie
// fallback for authenticated users.
type Credential struct {
	RealtimeToken string
	GuestToken    string
	SessionToken  string
}

// UserStore is the slice of the persistence layer the resolver needs.
type UserStore interface {
	GetUser(ctx context.Context, id string) (*models.Principal, error)
	UpsertUser(ctx context.Context, p *models.Principal) error
	DeleteInactiveGuests(ctx context.Context, cutoff time.Time) (int64, error)
}

// Resolver resolves credentials to principals and tracks guests in memory.
// A nil store is tolerated: principals then live only in process.
type Resolver struct {
	tokens *auth.TokenService
	store  UserStore
	sink   telemetry.Sink

	mu         sync.Mutex
	principals map[string]*models.Principal
}

// NewResolver builds a Resolver. store may be nil.
func NewResolver(tokens *auth.TokenService, store UserStore, sink telemetry.Sink) *Resolver {
	if sink == nil {
		sink = telemetry.NopSink{}
	}
	return &Resolver{
		tokens:     tokens,
		store:      store,
		sink:       sink,
		principals: make(map[string]*models.Principal),
	}
}

// Resolve verifies cred and returns the bound principal.
func (r *Resolver) Resolve(ctx context.Context, cred Credential) (*models.Principal, error) {
	switch {
	case cred.RealtimeToken != "":
		return r.resolveUser(ctx, cred.RealtimeToken)
	case cred.GuestToken != "":
		claims, err := r.tokens.AuthenticateGuest(cred.GuestToken)
		if err != nil {
			r.sink.EmitTelemetry("auth_refresh_failure", telemetry.Fields{"kind": "guest"})
			return nil, ErrAuthInvalid
		}
		return r.ensureGuest(ctx, claims), nil
	case cred.SessionToken != "":
		return r.resolveUser(ctx, cred.SessionToken)
	default:
		return nil, ErrAuthRequired
	}
}

func (r *Resolver) resolveUser(ctx context.Context, token string) (*models.Principal, error) {
	userID, err := r.tokens.AuthenticateRealtime(token)
	if err != nil {
		r.sink.EmitTelemetry("auth_refresh_failure", telemetry.Fields{"kind": "user"})
		return nil, ErrAuthInvalid
	}

	r.mu.Lock()
	if p, ok := r.principals[userID]; ok {
		p.LastActiveAt = time.Now()
		r.mu.Unlock()
		return p, nil
	}
	r.mu.Unlock()

	p := &models.Principal{ID: userID, DisplayName: shortName(userID), LastActiveAt: time.Now()}
	if r.store != nil {
		if stored, err := r.store.GetUser(ctx, userID); err == nil {
			p = stored
			p.LastActiveAt = time.Now()
		}
	}

	r.mu.Lock()
	r.principals[p.ID] = p
	r.mu.Unlock()
	return p, nil
}

// ensureGuest provisions an unknown guest from its verified claims.
func (r *Resolver) ensureGuest(ctx context.Context, claims *auth.GuestClaims) *models.Principal {
	r.mu.Lock()
	if p, ok := r.principals[claims.GuestID]; ok {
		p.LastActiveAt = time.Now()
		r.mu.Unlock()
		return p
	}
	name := claims.GuestName
	if name == "" {
		name = shortName(claims.GuestID)
	}
	p := &models.Principal{
		ID:           claims.GuestID,
		DisplayName:  name,
		IsGuest:      true,
		LastActiveAt: time.Now(),
	}
	r.principals[p.ID] = p
	r.mu.Unlock()

	if r.store != nil {
		if err := r.store.UpsertUser(ctx, p); err != nil {
			r.sink.Log(logrus.WarnLevel, "failed to persist guest", telemetry.Fields{"guestId": p.ID, "error": err.Error()})
		}
	}
	return p
}

// RegisterBot places a bot principal into the registry so display-name
// lookups work for bot seats.
func (r *Resolver) RegisterBot(p *models.Principal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.principals[p.ID] = p
}

// Get returns a known principal by id.
func (r *Resolver) Get(id string) (*models.Principal, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.principals[id]
	return p, ok
}

// Touch refreshes a principal's activity clock.
func (r *Resolver) Touch(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.principals[id]; ok {
		p.LastActiveAt = time.Now()
	}
}

// Sweep drops guests idle past GuestTTL, in memory and in the store.
func (r *Resolver) Sweep(ctx context.Context) {
	cutoff := time.Now().Add(-GuestTTL)

	r.mu.Lock()
	for id, p := range r.principals {
		if p.IsGuest && p.LastActiveAt.Before(cutoff) {
			delete(r.principals, id)
		}
	}
	r.mu.Unlock()

	if r.store != nil {
		if n, err := r.store.DeleteInactiveGuests(ctx, cutoff); err != nil {
			r.sink.Log(logrus.WarnLevel, "guest sweep failed", telemetry.Fields{"error": err.Error()})
		} else if n > 0 {
			r.sink.Log(logrus.InfoLevel, "swept inactive guests", telemetry.Fields{"count": n})
		}
	}
}

// Run sweeps periodically until ctx is done.
func (r *Resolver) Run(ctx context.Context) error {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// DisambiguateName appends a deterministic 6-char tag derived from ownerID,
// used when a display name collides inside a lobby.
func DisambiguateName(name, ownerID string) string {
	h := fnv.New32a()
	h.Write([]byte(ownerID))
	return fmt.Sprintf("%s-%06x", name, h.Sum32()&0xFFFFFF)
}

// NewGuestID mints a guest id in the canonical guest-<rand> shape from a
// random source string (typically a UUID).
func NewGuestID(random string) string {
	return "guest-" + strings.ReplaceAll(random, "-", "")[:12]
}

func shortName(id string) string {
	if len(id) > 8 {
		return "player-" + id[:8]
	}
	return "player-" + id
}
