package database

import (
	"context"

	"github.com/google/uuid"

	"github.com/KovalDenys1/boardly/internal/models"
)

// UpsertPlayer records a seat in a game, updating score and seat on conflict.
func (s *Store) UpsertPlayer(ctx context.Context, gameID uuid.UUID, m *models.Membership) error {
	q := `
	INSERT INTO players (game_id, user_id, seat_index, score, is_connected)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (game_id, user_id)
	DO UPDATE SET seat_index = EXCLUDED.seat_index, score = EXCLUDED.score, is_connected = EXCLUDED.is_connected
	`
	_, err := s.Pool.Exec(ctx, q, gameID, m.PrincipalID, m.SeatIndex, m.Score, m.IsConnected)
	return err
}

// DeletePlayer removes a seat row.
func (s *Store) DeletePlayer(ctx context.Context, gameID uuid.UUID, userID string) error {
	_, err := s.Pool.Exec(ctx,
		`DELETE FROM players WHERE game_id = $1 AND user_id = $2`, gameID, userID)
	return err
}

// ListPlayers returns a game's seats in seat order.
func (s *Store) ListPlayers(ctx context.Context, gameID uuid.UUID) ([]*models.Membership, error) {
	q := `
	SELECT user_id, seat_index, score, is_connected
	FROM players
	WHERE game_id = $1
	ORDER BY seat_index
	`
	rows, err := s.Pool.Query(ctx, q, gameID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []*models.Membership
	for rows.Next() {
		var m models.Membership
		if err := rows.Scan(&m.PrincipalID, &m.SeatIndex, &m.Score, &m.IsConnected); err != nil {
			return nil, err
		}
		members = append(members, &m)
	}
	return members, rows.Err()
}
