package database

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/KovalDenys1/boardly/internal/models"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("not found")

// InsertLobby creates a new lobby row.
func (s *Store) InsertLobby(ctx context.Context, lobby *models.Lobby) error {
	q := `
	INSERT INTO lobbies (code, game_type, name, creator_id, max_players, turn_timer_seconds, password_hash, is_active, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, $9)
	`
	_, err := s.Pool.Exec(ctx, q,
		lobby.Code,
		string(lobby.GameType),
		lobby.Name,
		lobby.CreatorID,
		lobby.MaxPlayers,
		lobby.TurnTimerSeconds,
		lobby.PasswordHash,
		lobby.IsActive,
		lobby.CreatedAt,
	)
	return err
}

// GetLobbyByCode fetches an active lobby by its code.
func (s *Store) GetLobbyByCode(ctx context.Context, code string) (*models.Lobby, error) {
	var l models.Lobby
	var gameType string
	q := `
	SELECT code, game_type, name, creator_id, max_players, turn_timer_seconds, COALESCE(password_hash, ''), is_active, created_at
	FROM lobbies
	WHERE code = $1 AND is_active
	`
	err := s.Pool.QueryRow(ctx, q, code).Scan(
		&l.Code, &gameType, &l.Name, &l.CreatorID, &l.MaxPlayers,
		&l.TurnTimerSeconds, &l.PasswordHash, &l.IsActive, &l.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	l.GameType = models.GameType(gameType)
	return &l, nil
}

// CloseLobby flips is_active off, freeing the code for reuse.
func (s *Store) CloseLobby(ctx context.Context, code string) error {
	_, err := s.Pool.Exec(ctx, `UPDATE lobbies SET is_active = false WHERE code = $1`, code)
	return err
}

// UpdateLobbyPassword replaces the stored password hash; empty clears it.
func (s *Store) UpdateLobbyPassword(ctx context.Context, code, passwordHash string) error {
	_, err := s.Pool.Exec(ctx,
		`UPDATE lobbies SET password_hash = NULLIF($2, '') WHERE code = $1`, code, passwordHash)
	return err
}
