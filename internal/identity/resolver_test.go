package identity

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KovalDenys1/boardly/internal/auth"
)

func newTestResolver(t *testing.T) (*Resolver, *auth.TokenService) {
	t.Helper()
	tokens, err := auth.NewTokenService("test-secret")
	require.NoError(t, err)
	return NewResolver(tokens, nil, nil), tokens
}

func TestResolveRealtimeToken(t *testing.T) {
	r, tokens := newTestResolver(t)
	token, err := tokens.CreateRealtimeToken("user-1", time.Minute)
	require.NoError(t, err)

	p, err := r.Resolve(context.Background(), Credential{RealtimeToken: token})
	require.NoError(t, err)
	assert.Equal(t, "user-1", p.ID)
	assert.False(t, p.IsGuest)
	assert.False(t, p.IsBot)

	// Resolving again returns the same principal.
	again, err := r.Resolve(context.Background(), Credential{RealtimeToken: token})
	require.NoError(t, err)
	assert.Same(t, p, again)
}

func TestResolveGuestProvisioning(t *testing.T) {
	r, tokens := newTestResolver(t)
	token, err := tokens.CreateGuestToken("guest-abc123def", "Denys", time.Hour)
	require.NoError(t, err)

	p, err := r.Resolve(context.Background(), Credential{GuestToken: token})
	require.NoError(t, err)
	assert.Equal(t, "guest-abc123def", p.ID)
	assert.Equal(t, "Denys", p.DisplayName)
	assert.True(t, p.IsGuest)

	stored, ok := r.Get("guest-abc123def")
	require.True(t, ok)
	assert.Same(t, p, stored)
}

func TestResolveFailures(t *testing.T) {
	r, _ := newTestResolver(t)

	_, err := r.Resolve(context.Background(), Credential{})
	assert.ErrorIs(t, err, ErrAuthRequired)

	_, err = r.Resolve(context.Background(), Credential{RealtimeToken: "garbage"})
	assert.ErrorIs(t, err, ErrAuthInvalid)

	_, err = r.Resolve(context.Background(), Credential{GuestToken: "garbage"})
	assert.ErrorIs(t, err, ErrAuthInvalid)
}

func TestSweepDropsIdleGuests(t *testing.T) {
	r, tokens := newTestResolver(t)
	token, _ := tokens.CreateGuestToken("guest-idle00", "Idle", time.Hour)
	p, err := r.Resolve(context.Background(), Credential{GuestToken: token})
	require.NoError(t, err)

	p.LastActiveAt = time.Now().Add(-GuestTTL - time.Minute)
	r.Sweep(context.Background())

	_, ok := r.Get("guest-idle00")
	assert.False(t, ok)
}

func TestSweepKeepsActiveGuests(t *testing.T) {
	r, tokens := newTestResolver(t)
	token, _ := tokens.CreateGuestToken("guest-busy00", "Busy", time.Hour)
	_, err := r.Resolve(context.Background(), Credential{GuestToken: token})
	require.NoError(t, err)

	r.Touch("guest-busy00")
	r.Sweep(context.Background())

	_, ok := r.Get("guest-busy00")
	assert.True(t, ok)
}

func TestDisambiguateNameIsDeterministic(t *testing.T) {
	a := DisambiguateName("Denys", "guest-one")
	b := DisambiguateName("Denys", "guest-one")
	c := DisambiguateName("Denys", "guest-two")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	// Base name plus a dash and a 6-char tag.
	assert.Len(t, a, len("Denys")+7)
}

func TestNewGuestIDShape(t *testing.T) {
	id := NewGuestID("0a1b2c3d-4e5f-6071-8293-a4b5c6d7e8f9")
	assert.Regexp(t, `^guest-[0-9a-f]{12}$`, id)
}
