package database

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/KovalDenys1/boardly/internal/models"
)

// UpsertUser records a principal, refreshing display name and activity time.
func (s *Store) UpsertUser(ctx context.Context, p *models.Principal) error {
	q := `
	INSERT INTO users (id, username, is_guest, last_active_at)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (id)
	DO UPDATE SET username = EXCLUDED.username, last_active_at = EXCLUDED.last_active_at
	`
	_, err := s.Pool.Exec(ctx, q, p.ID, p.DisplayName, p.IsGuest, time.Now())
	return err
}

// GetUser fetches a principal row by id.
func (s *Store) GetUser(ctx context.Context, id string) (*models.Principal, error) {
	var p models.Principal
	q := `SELECT id, username, is_guest, last_active_at FROM users WHERE id = $1`
	err := s.Pool.QueryRow(ctx, q, id).Scan(&p.ID, &p.DisplayName, &p.IsGuest, &p.LastActiveAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// DeleteInactiveGuests removes guest rows idle since before cutoff and
// returns how many were swept.
func (s *Store) DeleteInactiveGuests(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.Pool.Exec(ctx,
		`DELETE FROM users WHERE is_guest AND last_active_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// InsertBot records a bot user plus its bots row in one transaction.
func (s *Store) InsertBot(ctx context.Context, p *models.Principal, bot *models.Bot) error {
	return pgx.BeginTxFunc(ctx, s.Pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO users (id, username, is_guest, last_active_at)
			VALUES ($1, $2, false, $3)
			ON CONFLICT (id) DO NOTHING`,
			p.ID, p.DisplayName, time.Now()); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO bots (user_id, difficulty, bot_type)
			VALUES ($1, $2, $3)
			ON CONFLICT (user_id)
			DO UPDATE SET difficulty = EXCLUDED.difficulty, bot_type = EXCLUDED.bot_type`,
			bot.UserID, string(bot.Difficulty), bot.BotType)
		return err
	})
}

// GetBot fetches a bots row by user id.
func (s *Store) GetBot(ctx context.Context, userID string) (*models.Bot, error) {
	var b models.Bot
	var difficulty string
	q := `SELECT user_id, difficulty, bot_type FROM bots WHERE user_id = $1`
	err := s.Pool.QueryRow(ctx, q, userID).Scan(&b.UserID, &difficulty, &b.BotType)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	b.Difficulty = models.BotDifficulty(difficulty)
	return &b, nil
}
