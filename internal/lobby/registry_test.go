package lobby

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KovalDenys1/boardly/internal/auth"
	"github.com/KovalDenys1/boardly/internal/bus"
	"github.com/KovalDenys1/boardly/internal/identity"
	"github.com/KovalDenys1/boardly/internal/models"
)

func newTestRegistry(t *testing.T) (*Registry, *identity.Resolver, *auth.TokenService) {
	t.Helper()
	tokens, err := auth.NewTokenService("test-secret")
	require.NoError(t, err)
	resolver := identity.NewResolver(tokens, nil, nil)
	return NewRegistry(nil, bus.New(), resolver, nil), resolver, tokens
}

func guestPrincipal(t *testing.T, resolver *identity.Resolver, tokens *auth.TokenService, id, name string) *models.Principal {
	t.Helper()
	token, err := tokens.CreateGuestToken(id, name, time.Hour)
	require.NoError(t, err)
	p, err := resolver.Resolve(context.Background(), identity.Credential{GuestToken: token})
	require.NoError(t, err)
	return p
}

func TestCreateSeatsCreator(t *testing.T) {
	r, resolver, tokens := newTestRegistry(t)
	creator := guestPrincipal(t, resolver, tokens, "guest-host01", "Host")

	l, err := r.Create(context.Background(), creator, CreateParams{
		GameType:   models.GameTicTacToe,
		MaxPlayers: 2,
	})
	require.NoError(t, err)

	model, members := l.Snapshot()
	assert.Len(t, model.Code, 6)
	assert.Equal(t, creator.ID, model.CreatorID)
	assert.True(t, model.IsActive)
	assert.Equal(t, 60, model.TurnTimerSeconds, "default turn budget")
	require.Len(t, members, 1)
	assert.Equal(t, 0, members[0].SeatIndex)
}

func TestCreateValidation(t *testing.T) {
	r, resolver, tokens := newTestRegistry(t)
	creator := guestPrincipal(t, resolver, tokens, "guest-host02", "Host")
	ctx := context.Background()

	_, err := r.Create(ctx, creator, CreateParams{GameType: models.GameTicTacToe, MaxPlayers: 1})
	assert.Error(t, err)

	_, err = r.Create(ctx, creator, CreateParams{GameType: "chess", MaxPlayers: 2})
	assert.Error(t, err)

	_, err = r.Create(ctx, creator, CreateParams{GameType: models.GameTicTacToe, MaxPlayers: 2, TurnTimerSeconds: 10})
	assert.Error(t, err, "turn timer below the floor")
}

func TestJoinFlow(t *testing.T) {
	r, resolver, tokens := newTestRegistry(t)
	ctx := context.Background()
	creator := guestPrincipal(t, resolver, tokens, "guest-host03", "Host")
	joiner := guestPrincipal(t, resolver, tokens, "guest-join01", "Joiner")
	third := guestPrincipal(t, resolver, tokens, "guest-join02", "Third")

	l, err := r.Create(ctx, creator, CreateParams{GameType: models.GameTicTacToe, MaxPlayers: 2})
	require.NoError(t, err)
	code := l.Model.Code

	_, m, err := r.JoinByCode(ctx, code, joiner, "")
	require.NoError(t, err)
	assert.Equal(t, 1, m.SeatIndex)

	// Joining again is idempotent.
	_, m2, err := r.JoinByCode(ctx, code, joiner, "")
	require.NoError(t, err)
	assert.Equal(t, m.SeatIndex, m2.SeatIndex)

	// Full lobby rejects a third player.
	_, _, err = r.JoinByCode(ctx, code, third, "")
	assert.ErrorIs(t, err, ErrLobbyFull)

	// Unknown code.
	_, _, err = r.JoinByCode(ctx, "ZZZZZZ", third, "")
	assert.ErrorIs(t, err, ErrLobbyNotFound)

	// Malformed code.
	_, _, err = r.JoinByCode(ctx, "ab", third, "")
	assert.ErrorIs(t, err, ErrInvalidCode)
}

func TestJoinPassword(t *testing.T) {
	r, resolver, tokens := newTestRegistry(t)
	ctx := context.Background()
	creator := guestPrincipal(t, resolver, tokens, "guest-host04", "Host")
	joiner := guestPrincipal(t, resolver, tokens, "guest-join03", "Joiner")

	l, err := r.Create(ctx, creator, CreateParams{
		GameType: models.GameYahtzee, MaxPlayers: 4, Password: "sekret",
	})
	require.NoError(t, err)

	_, _, err = r.JoinByCode(ctx, l.Model.Code, joiner, "wrong")
	assert.ErrorIs(t, err, ErrAccessDenied)

	_, _, err = r.JoinByCode(ctx, l.Model.Code, joiner, "sekret")
	assert.NoError(t, err)
}

func TestGuestNameCollisionGetsSuffix(t *testing.T) {
	r, resolver, tokens := newTestRegistry(t)
	ctx := context.Background()
	creator := guestPrincipal(t, resolver, tokens, "guest-host05", "Denys")
	twin := guestPrincipal(t, resolver, tokens, "guest-twin01", "Denys")

	l, err := r.Create(ctx, creator, CreateParams{GameType: models.GameYahtzee, MaxPlayers: 4})
	require.NoError(t, err)

	_, _, err = r.JoinByCode(ctx, l.Model.Code, twin, "")
	require.NoError(t, err)
	assert.NotEqual(t, "Denys", twin.DisplayName)
	assert.Contains(t, twin.DisplayName, "Denys-")
}

func TestLeaveTransfersCreatorAndCloses(t *testing.T) {
	r, resolver, tokens := newTestRegistry(t)
	ctx := context.Background()
	creator := guestPrincipal(t, resolver, tokens, "guest-host06", "Host")
	joiner := guestPrincipal(t, resolver, tokens, "guest-join04", "Joiner")

	l, err := r.Create(ctx, creator, CreateParams{GameType: models.GameYahtzee, MaxPlayers: 4})
	require.NoError(t, err)
	code := l.Model.Code
	_, _, err = r.JoinByCode(ctx, code, joiner, "")
	require.NoError(t, err)

	// Creator leaves: role transfers, seats stay dense.
	require.NoError(t, r.Leave(ctx, code, creator.ID))
	model, members := l.Snapshot()
	assert.Equal(t, joiner.ID, model.CreatorID)
	require.Len(t, members, 1)
	assert.Equal(t, 0, members[0].SeatIndex)

	// Last member leaves: lobby closes and the code is freed.
	require.NoError(t, r.Leave(ctx, code, joiner.ID))
	_, ok := r.Get(code)
	assert.False(t, ok)
}

func TestAddBotRules(t *testing.T) {
	r, resolver, tokens := newTestRegistry(t)
	ctx := context.Background()
	creator := guestPrincipal(t, resolver, tokens, "guest-host07", "Host")
	joiner := guestPrincipal(t, resolver, tokens, "guest-join05", "Joiner")

	l, err := r.Create(ctx, creator, CreateParams{GameType: models.GameTicTacToe, MaxPlayers: 2})
	require.NoError(t, err)
	code := l.Model.Code

	// Only the creator may add bots.
	_, _, err = r.AddBot(ctx, code, joiner.ID, models.BotHard)
	assert.ErrorIs(t, err, ErrNotCreator)

	botP, m, err := r.AddBot(ctx, code, creator.ID, models.BotHard)
	require.NoError(t, err)
	assert.True(t, botP.IsBot)
	assert.Equal(t, 1, m.SeatIndex)

	// Bots cannot be added once the game is past waiting.
	r.SetGameStatusFunc(func(string) (models.GameStatus, bool) {
		return models.StatusPlaying, true
	})
	full, err2 := r.Create(ctx, joiner, CreateParams{GameType: models.GameTicTacToe, MaxPlayers: 2})
	require.NoError(t, err2)
	_, _, err = r.AddBot(ctx, full.Model.Code, joiner.ID, models.BotEasy)
	assert.ErrorIs(t, err, ErrGameNotWaiting)
}

func TestListActiveFilters(t *testing.T) {
	r, resolver, tokens := newTestRegistry(t)
	ctx := context.Background()
	creator := guestPrincipal(t, resolver, tokens, "guest-host08", "Host")

	_, err := r.Create(ctx, creator, CreateParams{GameType: models.GameTicTacToe, MaxPlayers: 2})
	require.NoError(t, err)
	_, err = r.Create(ctx, creator, CreateParams{GameType: models.GameYahtzee, MaxPlayers: 4})
	require.NoError(t, err)

	assert.Len(t, r.ListActive(""), 2)
	assert.Len(t, r.ListActive(models.GameYahtzee), 1)
}

func TestSetPassword(t *testing.T) {
	r, resolver, tokens := newTestRegistry(t)
	ctx := context.Background()
	creator := guestPrincipal(t, resolver, tokens, "guest-host09", "Host")
	other := guestPrincipal(t, resolver, tokens, "guest-join06", "Other")

	l, err := r.Create(ctx, creator, CreateParams{GameType: models.GameYahtzee, MaxPlayers: 4})
	require.NoError(t, err)

	assert.ErrorIs(t, r.SetPassword(ctx, l.Model.Code, other.ID, "pw"), ErrNotCreator)
	require.NoError(t, r.SetPassword(ctx, l.Model.Code, creator.ID, "pw"))

	_, _, err = r.JoinByCode(ctx, l.Model.Code, other, "")
	assert.ErrorIs(t, err, ErrAccessDenied)
	_, _, err = r.JoinByCode(ctx, l.Model.Code, other, "pw")
	assert.NoError(t, err)
}
