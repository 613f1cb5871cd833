package database

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/KovalDenys1/boardly/internal/models"
)

// InsertGame creates a new game row.
func (s *Store) InsertGame(ctx context.Context, g *models.Game) error {
	q := `
	INSERT INTO games (id, lobby_code, game_type, status, state, current_player_index, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.Pool.Exec(ctx, q,
		g.ID, g.LobbyCode, string(g.GameType), string(g.Status),
		g.State, g.CurrentPlayerIndex, g.CreatedAt, g.UpdatedAt,
	)
	return err
}

// UpdateGame persists the mutable game columns after an applied move or a
// status transition.
func (s *Store) UpdateGame(ctx context.Context, g *models.Game) error {
	q := `
	UPDATE games
	SET status = $2, state = $3, current_player_index = $4, updated_at = $5
	WHERE id = $1
	`
	_, err := s.Pool.Exec(ctx, q,
		g.ID, string(g.Status), g.State, g.CurrentPlayerIndex, g.UpdatedAt,
	)
	return err
}

// GetGame fetches a game row by id.
func (s *Store) GetGame(ctx context.Context, id uuid.UUID) (*models.Game, error) {
	var g models.Game
	var gameType, status string
	q := `
	SELECT id, lobby_code, game_type, status, state, current_player_index, created_at, updated_at
	FROM games
	WHERE id = $1
	`
	err := s.Pool.QueryRow(ctx, q, id).Scan(
		&g.ID, &g.LobbyCode, &gameType, &status,
		&g.State, &g.CurrentPlayerIndex, &g.CreatedAt, &g.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	g.GameType = models.GameType(gameType)
	g.Status = models.GameStatus(status)
	return &g, nil
}
