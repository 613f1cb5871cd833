package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRealtimeTokenRoundTrip(t *testing.T) {
	svc, err := NewTokenService("test-secret")
	require.NoError(t, err)

	token, err := svc.CreateRealtimeToken("user-123", time.Minute)
	require.NoError(t, err)

	userID, err := svc.AuthenticateRealtime(token)
	require.NoError(t, err)
	assert.Equal(t, "user-123", userID)
}

func TestGuestTokenRoundTrip(t *testing.T) {
	svc, err := NewTokenService("test-secret")
	require.NoError(t, err)

	token, err := svc.CreateGuestToken("guest-abc123", "Denys", time.Hour)
	require.NoError(t, err)

	claims, err := svc.AuthenticateGuest(token)
	require.NoError(t, err)
	assert.Equal(t, "guest-abc123", claims.GuestID)
	assert.Equal(t, "Denys", claims.GuestName)
}

func TestTokenKindsAreNotInterchangeable(t *testing.T) {
	svc, _ := NewTokenService("test-secret")

	guest, _ := svc.CreateGuestToken("guest-abc123", "Denys", time.Hour)
	_, err := svc.AuthenticateRealtime(guest)
	assert.ErrorIs(t, err, ErrTokenInvalid)

	realtime, _ := svc.CreateRealtimeToken("user-123", time.Minute)
	_, err = svc.AuthenticateGuest(realtime)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestWrongSecretIsRejected(t *testing.T) {
	issuer, _ := NewTokenService("secret-a")
	verifier, _ := NewTokenService("secret-b")

	token, _ := issuer.CreateRealtimeToken("user-123", time.Minute)
	_, err := verifier.AuthenticateRealtime(token)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestExpiredTokenIsRejected(t *testing.T) {
	svc, _ := NewTokenService("test-secret")
	token, _ := svc.CreateRealtimeToken("user-123", -time.Minute)
	_, err := svc.AuthenticateRealtime(token)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestEmptySecretIsRefused(t *testing.T) {
	_, err := NewTokenService("")
	assert.Error(t, err)
}

func TestLobbyPasswordHashing(t *testing.T) {
	hash, err := HashLobbyPassword("hunter2")
	require.NoError(t, err)
	assert.Contains(t, hash, "$argon2id$")

	ok, err := VerifyLobbyPassword("hunter2", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifyLobbyPassword("wrong", hash)
	require.NoError(t, err)
	assert.False(t, ok)

	// Two hashes of the same password differ by salt.
	hash2, err := HashLobbyPassword("hunter2")
	require.NoError(t, err)
	assert.NotEqual(t, hash, hash2)
}

func TestMalformedHashIsRejected(t *testing.T) {
	_, err := VerifyLobbyPassword("x", "not-a-hash")
	assert.ErrorIs(t, err, ErrMalformedHash)
}
