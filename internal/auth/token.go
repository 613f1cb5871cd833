package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token kinds carried in the "kind" claim. Realtime tokens authenticate
// registered users opening the realtime transport; guest tokens carry an
// ephemeral identity issued without an account.
const (
	KindRealtime = "realtime"
	KindGuest    = "guest"
)

// DefaultRealtimeTokenTTL bounds how long a socket token stays usable.
// Tokens are only consumed during the connection handshake, so short is fine.
const DefaultRealtimeTokenTTL = 5 * time.Minute

// DefaultGuestTokenTTL matches the guest principal lifetime.
const DefaultGuestTokenTTL = 24 * time.Hour

var (
	// ErrTokenInvalid is returned for malformed, expired, or mis-signed tokens.
	ErrTokenInvalid = errors.New("invalid token")
)

// GuestClaims is the decoded payload of a guest token.
type GuestClaims struct {
	GuestID   string
	GuestName string
}

// TokenService signs and verifies the HS256 tokens used on the realtime
// transport. The secret comes from configuration; there is no key rotation.
type TokenService struct {
	secret []byte
}

// NewTokenService builds a TokenService from the shared signing secret.
func NewTokenService(secret string) (*TokenService, error) {
	if secret == "" {
		return nil, errors.New("realtime token secret must not be empty")
	}
	return &TokenService{secret: []byte(secret)}, nil
}

// CreateRealtimeToken issues a short-lived token with "sub" = userID. A zero
// ttl selects DefaultRealtimeTokenTTL; a negative ttl yields an expired token.
func (t *TokenService) CreateRealtimeToken(userID string, ttl time.Duration) (string, error) {
	if ttl == 0 {
		ttl = DefaultRealtimeTokenTTL
	}
	claims := jwt.MapClaims{
		"sub":  userID,
		"kind": KindRealtime,
		"exp":  time.Now().Add(ttl).Unix(),
		"iat":  time.Now().Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.secret)
}

// CreateGuestToken issues a signed guest identity.
func (t *TokenService) CreateGuestToken(guestID, guestName string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = DefaultGuestTokenTTL
	}
	claims := jwt.MapClaims{
		"sub":  guestID,
		"name": guestName,
		"kind": KindGuest,
		"exp":  time.Now().Add(ttl).Unix(),
		"iat":  time.Now().Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.secret)
}

// parse verifies the signature and returns the claims.
func (t *TokenService) parse(tokenString string) (jwt.MapClaims, error) {
	parsed, err := jwt.Parse(tokenString, func(tok *jwt.Token) (interface{}, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", tok.Header["alg"])
		}
		return t.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, ErrTokenInvalid
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// AuthenticateRealtime verifies a realtime token and returns the user id.
func (t *TokenService) AuthenticateRealtime(tokenString string) (string, error) {
	claims, err := t.parse(tokenString)
	if err != nil {
		return "", err
	}
	if kind, _ := claims["kind"].(string); kind != KindRealtime {
		return "", ErrTokenInvalid
	}
	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", ErrTokenInvalid
	}
	return sub, nil
}

// AuthenticateGuest verifies a guest token and returns its claims.
func (t *TokenService) AuthenticateGuest(tokenString string) (*GuestClaims, error) {
	claims, err := t.parse(tokenString)
	if err != nil {
		return nil, err
	}
	if kind, _ := claims["kind"].(string); kind != KindGuest {
		return nil, ErrTokenInvalid
	}
	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return nil, ErrTokenInvalid
	}
	name, _ := claims["name"].(string)
	return &GuestClaims{GuestID: sub, GuestName: name}, nil
}
