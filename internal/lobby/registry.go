package lobby

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/KovalDenys1/boardly/internal/auth"
	"github.com/KovalDenys1/boardly/internal/bus"
	"github.com/KovalDenys1/boardly/internal/identity"
	"github.com/KovalDenys1/boardly/internal/models"
	"github.com/KovalDenys1/boardly/internal/telemetry"
)

// Registry errors, mapped to stable client codes by the transport layers.
var (
	ErrInvalidCode    = errors.New("invalid lobby code")
	ErrLobbyNotFound  = errors.New("lobby not found")
	ErrAccessDenied   = errors.New("lobby access denied")
	ErrLobbyFull      = errors.New("lobby is full")
	ErrNotCreator     = errors.New("only the lobby creator may do that")
	ErrNotMember      = errors.New("not a member of this lobby")
	ErrGameNotWaiting = errors.New("game already started")
	ErrAlreadyMember  = errors.New("already a member of this lobby")
)

const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// Store is the slice of the persistence layer the registry writes through.
// A nil Store keeps lobbies purely in memory.
type Store interface {
	InsertLobby(ctx context.Context, lobby *models.Lobby) error
	CloseLobby(ctx context.Context, code string) error
	UpdateLobbyPassword(ctx context.Context, code, passwordHash string) error
}

// CreateParams are the client-supplied knobs for a new lobby.
type CreateParams struct {
	Name             string
	GameType         models.GameType
	Password         string
	MaxPlayers       int
	TurnTimerSeconds int
}

// Registry is the process-wide lobby map. It enforces capacity, password and
// creator rules on every mutation and publishes roster changes on the bus.
type Registry struct {
	mu      sync.Mutex
	lobbies map[string]*Lobby

	store    Store
	events   *bus.Bus
	resolver *identity.Resolver
	sink     telemetry.Sink

	rngMu sync.Mutex
	rng   *rand.Rand

	// gameStatus reports the lobby's active game status, wired in by the
	// match runtime. Nil means "no game yet", treated as waiting.
	gameStatus func(lobbyCode string) (models.GameStatus, bool)
}

// NewRegistry builds a Registry. store may be nil.
func NewRegistry(store Store, events *bus.Bus, resolver *identity.Resolver, sink telemetry.Sink) *Registry {
	if sink == nil {
		sink = telemetry.NopSink{}
	}
	return &Registry{
		lobbies:  make(map[string]*Lobby),
		store:    store,
		events:   events,
		resolver: resolver,
		sink:     sink,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SetGameStatusFunc wires the runtime's game-status lookup.
func (r *Registry) SetGameStatusFunc(fn func(lobbyCode string) (models.GameStatus, bool)) {
	r.gameStatus = fn
}

// Create validates params, mints a unique code, seats the creator at index 0,
// and persists the lobby.
func (r *Registry) Create(ctx context.Context, creator *models.Principal, params CreateParams) (*Lobby, error) {
	if params.Name == "" {
		params.Name = creator.DisplayName + "'s lobby"
	}
	if !models.KnownGameType(params.GameType) {
		return nil, fmt.Errorf("%w: unknown game type %q", ErrInvalidCode, params.GameType)
	}
	minPlayers, maxPlayers := models.PlayerBounds(params.GameType)
	if params.MaxPlayers == 0 {
		params.MaxPlayers = maxPlayers
	}
	if params.MaxPlayers < minPlayers || params.MaxPlayers > maxPlayers {
		return nil, fmt.Errorf("%w: maxPlayers must be %d-%d for %s",
			ErrInvalidCode, minPlayers, maxPlayers, params.GameType)
	}
	if params.TurnTimerSeconds == 0 {
		params.TurnTimerSeconds = 60
	}
	if params.TurnTimerSeconds < models.TurnTimerMinSeconds || params.TurnTimerSeconds > models.TurnTimerMaxSeconds {
		return nil, fmt.Errorf("%w: turn timer must be %d-%d seconds",
			ErrInvalidCode, models.TurnTimerMinSeconds, models.TurnTimerMaxSeconds)
	}

	passwordHash := ""
	if params.Password != "" {
		var err error
		passwordHash, err = auth.HashLobbyPassword(params.Password)
		if err != nil {
			return nil, err
		}
	}

	r.mu.Lock()
	code := r.newCodeLocked()
	l := &Lobby{
		Model: models.Lobby{
			Code:             code,
			GameType:         params.GameType,
			Name:             params.Name,
			PasswordHash:     passwordHash,
			MaxPlayers:       params.MaxPlayers,
			CreatorID:        creator.ID,
			TurnTimerSeconds: params.TurnTimerSeconds,
			IsActive:         true,
			CreatedAt:        time.Now(),
		},
		Members: []*models.Membership{{
			LobbyCode:   code,
			PrincipalID: creator.ID,
			SeatIndex:   0,
			IsConnected: true,
		}},
	}
	r.lobbies[code] = l
	r.mu.Unlock()

	if r.store != nil {
		if err := r.store.InsertLobby(ctx, &l.Model); err != nil {
			r.sink.Log(logrus.WarnLevel, "failed to persist lobby", telemetry.Fields{"code": code, "error": err.Error()})
		}
	}
	r.sink.Log(logrus.InfoLevel, "lobby created", telemetry.Fields{
		"code": code, "gameType": string(params.GameType), "creator": creator.ID,
	})
	return l, nil
}

// newCodeLocked mints a 6-char code unique among active lobbies.
func (r *Registry) newCodeLocked() string {
	r.rngMu.Lock()
	defer r.rngMu.Unlock()
	for {
		var b strings.Builder
		for i := 0; i < 6; i++ {
			b.WriteByte(codeAlphabet[r.rng.Intn(len(codeAlphabet))])
		}
		code := b.String()
		if _, taken := r.lobbies[code]; !taken {
			return code
		}
	}
}

// Get returns an active lobby by code.
func (r *Registry) Get(code string) (*Lobby, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.lobbies[code]
	return l, ok
}

// ValidateCode bounds-checks a client-supplied lobby code.
func ValidateCode(code string) error {
	if len(code) < models.LobbyCodeMinLen || len(code) > models.LobbyCodeMaxLen {
		return ErrInvalidCode
	}
	return nil
}

// JoinByCode seats principal in the lobby, checking password and capacity.
// Guests with a colliding display name get a deterministic suffix.
func (r *Registry) JoinByCode(ctx context.Context, code string, principal *models.Principal, password string) (*Lobby, *models.Membership, error) {
	if err := ValidateCode(code); err != nil {
		return nil, nil, err
	}
	l, ok := r.Get(code)
	if !ok {
		return nil, nil, ErrLobbyNotFound
	}

	// Game status is read before taking the lobby lock: the runtime holds its
	// game lock while touching lobbies, never the other way around.
	status, hasGame := r.activeGameStatus(code)

	l.mu.Lock()
	defer l.mu.Unlock()

	if m := l.member(principal.ID); m != nil {
		m.IsConnected = true
		return l, m, nil
	}
	if l.Model.HasPassword() {
		ok, err := auth.VerifyLobbyPassword(password, l.Model.PasswordHash)
		if err != nil || !ok {
			return nil, nil, ErrAccessDenied
		}
	}
	if len(l.Members) >= l.Model.MaxPlayers {
		return nil, nil, ErrLobbyFull
	}
	if hasGame && status == models.StatusPlaying {
		return nil, nil, ErrGameNotWaiting
	}

	displayName := principal.DisplayName
	if principal.IsGuest && r.nameTakenLocked(l, displayName) {
		displayName = identity.DisambiguateName(displayName, principal.ID)
		principal.DisplayName = displayName
	}

	m := &models.Membership{
		LobbyCode:   code,
		PrincipalID: principal.ID,
		SeatIndex:   len(l.Members),
		IsConnected: true,
	}
	l.Members = append(l.Members, m)

	r.events.Publish(code, "player-joined", map[string]interface{}{
		"playerId":    principal.ID,
		"displayName": displayName,
		"seatIndex":   m.SeatIndex,
		"isBot":       principal.IsBot,
	})
	r.publishLobbyUpdate(l)
	return l, m, nil
}

func (r *Registry) nameTakenLocked(l *Lobby, name string) bool {
	for _, m := range l.Members {
		if p, ok := r.resolver.Get(m.PrincipalID); ok && p.DisplayName == name {
			return true
		}
	}
	return false
}

func (r *Registry) activeGameStatus(code string) (models.GameStatus, bool) {
	if r.gameStatus == nil {
		return models.StatusWaiting, false
	}
	return r.gameStatus(code)
}

// Leave removes principal's seat. The creator role transfers to the next
// seat; an emptied lobby closes.
func (r *Registry) Leave(ctx context.Context, code, principalID string) error {
	l, ok := r.Get(code)
	if !ok {
		return ErrLobbyNotFound
	}

	l.mu.Lock()
	m := l.member(principalID)
	if m == nil {
		l.mu.Unlock()
		return ErrNotMember
	}
	for i, member := range l.Members {
		if member.PrincipalID == principalID {
			l.Members = append(l.Members[:i], l.Members[i+1:]...)
			break
		}
	}
	l.reseat()

	empty := len(l.Members) == 0
	if !empty && l.Model.CreatorID == principalID {
		l.Model.CreatorID = l.Members[0].PrincipalID
	}
	l.mu.Unlock()

	r.events.Publish(code, "player-left", map[string]interface{}{"playerId": principalID})
	if empty {
		return r.Close(ctx, code)
	}
	r.publishLobbyUpdateOutside(l)
	return nil
}

// AddBot provisions a bot principal and seats it. Creator-only, and only
// while the active game is still waiting.
func (r *Registry) AddBot(ctx context.Context, code, requesterID string, difficulty models.BotDifficulty) (*models.Principal, *models.Membership, error) {
	l, ok := r.Get(code)
	if !ok {
		return nil, nil, ErrLobbyNotFound
	}

	l.mu.Lock()
	if l.Model.CreatorID != requesterID {
		l.mu.Unlock()
		return nil, nil, ErrNotCreator
	}
	if len(l.Members) >= l.Model.MaxPlayers {
		l.mu.Unlock()
		return nil, nil, ErrLobbyFull
	}
	gameType := l.Model.GameType
	seat := len(l.Members)
	l.mu.Unlock()

	if status, exists := r.activeGameStatus(code); exists && status != models.StatusWaiting {
		return nil, nil, ErrGameNotWaiting
	}

	botID := "bot-" + uuid.NewString()[:8]
	label := string(difficulty)
	if label != "" {
		label = strings.ToUpper(label[:1]) + label[1:]
	}
	bot := &models.Principal{
		ID:          botID,
		DisplayName: fmt.Sprintf("%s Bot %d", label, seat+1),
		IsBot:       true,
	}
	r.resolver.RegisterBot(bot)

	l.mu.Lock()
	m := &models.Membership{
		LobbyCode:   code,
		PrincipalID: botID,
		SeatIndex:   len(l.Members),
		IsConnected: true,
	}
	l.Members = append(l.Members, m)
	l.mu.Unlock()

	r.events.Publish(code, "player-joined", map[string]interface{}{
		"playerId":    botID,
		"displayName": bot.DisplayName,
		"seatIndex":   m.SeatIndex,
		"isBot":       true,
		"difficulty":  string(difficulty),
		"gameType":    string(gameType),
	})
	r.publishLobbyUpdateOutside(l)
	return bot, m, nil
}

// SetPassword replaces the lobby password. Creator-only; empty clears it.
func (r *Registry) SetPassword(ctx context.Context, code, requesterID, password string) error {
	l, ok := r.Get(code)
	if !ok {
		return ErrLobbyNotFound
	}

	hash := ""
	if password != "" {
		var err error
		hash, err = auth.HashLobbyPassword(password)
		if err != nil {
			return err
		}
	}

	l.mu.Lock()
	if l.Model.CreatorID != requesterID {
		l.mu.Unlock()
		return ErrNotCreator
	}
	l.Model.PasswordHash = hash
	l.mu.Unlock()

	if r.store != nil {
		if err := r.store.UpdateLobbyPassword(ctx, code, hash); err != nil {
			r.sink.Log(logrus.WarnLevel, "failed to persist lobby password", telemetry.Fields{"code": code, "error": err.Error()})
		}
	}
	return nil
}

// ListActive returns summaries of active lobbies, optionally filtered by
// game type. Password-protected lobbies are included; their hash is not.
func (r *Registry) ListActive(gameType models.GameType) []models.Lobby {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Lobby, 0, len(r.lobbies))
	for _, l := range r.lobbies {
		model, _ := l.Snapshot()
		if gameType != "" && model.GameType != gameType {
			continue
		}
		out = append(out, model)
	}
	return out
}

// Member returns principal's membership in the lobby, used as the
// authorization gate for transport room subscription.
func (r *Registry) Member(code, principalID string) (*models.Membership, bool) {
	l, ok := r.Get(code)
	if !ok {
		return nil, false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	m := l.member(principalID)
	if m == nil {
		return nil, false
	}
	copy := *m
	return &copy, true
}

// MarkConnected flips a member's connection flag.
func (r *Registry) MarkConnected(code, principalID string, connected bool) {
	l, ok := r.Get(code)
	if !ok {
		return
	}
	l.mu.Lock()
	if m := l.member(principalID); m != nil {
		m.IsConnected = connected
	}
	l.mu.Unlock()
}

// AddScores credits round points onto memberships.
func (r *Registry) AddScores(code string, points map[string]int) {
	l, ok := r.Get(code)
	if !ok {
		return
	}
	l.mu.Lock()
	for _, m := range l.Members {
		if pts, ok := points[m.PrincipalID]; ok {
			m.Score += pts
		}
	}
	l.mu.Unlock()
	r.publishLobbyUpdateOutside(l)
}

// Close deactivates the lobby, drops its room, and frees the code.
func (r *Registry) Close(ctx context.Context, code string) error {
	r.mu.Lock()
	l, ok := r.lobbies[code]
	if ok {
		delete(r.lobbies, code)
	}
	r.mu.Unlock()
	if !ok {
		return ErrLobbyNotFound
	}

	l.mu.Lock()
	l.Model.IsActive = false
	l.mu.Unlock()

	r.events.CloseRoom(code)
	if r.store != nil {
		if err := r.store.CloseLobby(ctx, code); err != nil {
			r.sink.Log(logrus.WarnLevel, "failed to persist lobby close", telemetry.Fields{"code": code, "error": err.Error()})
		}
	}
	r.sink.Log(logrus.InfoLevel, "lobby closed", telemetry.Fields{"code": code})
	return nil
}

// SetActiveGame records the lobby's current game id.
func (r *Registry) SetActiveGame(code string, gameID uuid.UUID) {
	if l, ok := r.Get(code); ok {
		l.mu.Lock()
		l.GameID = gameID
		l.mu.Unlock()
	}
}

// publishLobbyUpdate pushes the roster snapshot; caller holds l.mu.
func (r *Registry) publishLobbyUpdate(l *Lobby) {
	r.events.Publish(l.Model.Code, "lobby-update", r.rosterPayloadLocked(l))
}

func (r *Registry) publishLobbyUpdateOutside(l *Lobby) {
	l.mu.Lock()
	payload := r.rosterPayloadLocked(l)
	code := l.Model.Code
	l.mu.Unlock()
	r.events.Publish(code, "lobby-update", payload)
}

func (r *Registry) rosterPayloadLocked(l *Lobby) map[string]interface{} {
	roster := make([]map[string]interface{}, 0, len(l.Members))
	for _, m := range l.Members {
		name := m.PrincipalID
		isBot := false
		if p, ok := r.resolver.Get(m.PrincipalID); ok {
			name = p.DisplayName
			isBot = p.IsBot
		}
		roster = append(roster, map[string]interface{}{
			"playerId":    m.PrincipalID,
			"displayName": name,
			"seatIndex":   m.SeatIndex,
			"isConnected": m.IsConnected,
			"score":       m.Score,
			"isBot":       isBot,
		})
	}
	return map[string]interface{}{
		"code":       l.Model.Code,
		"name":       l.Model.Name,
		"gameType":   string(l.Model.GameType),
		"maxPlayers": l.Model.MaxPlayers,
		"creatorId":  l.Model.CreatorID,
		"roster":     roster,
	}
}
