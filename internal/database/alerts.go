package database

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/KovalDenys1/boardly/internal/models"
)

// HasAlertTable feature-detects operational_alert_states, which deployments
// are allowed to omit. The evaluator runs stateless when it is absent.
func (s *Store) HasAlertTable(ctx context.Context) bool {
	var exists bool
	err := s.Pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = 'operational_alert_states')`,
	).Scan(&exists)
	return err == nil && exists
}

// GetAlertState fetches one rule's persisted state.
func (s *Store) GetAlertState(ctx context.Context, alertKey string) (*models.AlertState, error) {
	var a models.AlertState
	q := `
	SELECT alert_key, is_open, last_value, last_triggered_at, last_notified_at, last_resolved_at
	FROM operational_alert_states
	WHERE alert_key = $1
	`
	err := s.Pool.QueryRow(ctx, q, alertKey).Scan(
		&a.AlertKey, &a.IsOpen, &a.LastValue,
		&a.LastTriggeredAt, &a.LastNotifiedAt, &a.LastResolvedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// UpsertAlertState writes one rule's state inside a transaction, keeping each
// rule update atomic.
func (s *Store) UpsertAlertState(ctx context.Context, a *models.AlertState) error {
	return pgx.BeginTxFunc(ctx, s.Pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO operational_alert_states (alert_key, is_open, last_value, last_triggered_at, last_notified_at, last_resolved_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (alert_key)
			DO UPDATE SET is_open = EXCLUDED.is_open,
			              last_value = EXCLUDED.last_value,
			              last_triggered_at = EXCLUDED.last_triggered_at,
			              last_notified_at = EXCLUDED.last_notified_at,
			              last_resolved_at = EXCLUDED.last_resolved_at`,
			a.AlertKey, a.IsOpen, a.LastValue,
			a.LastTriggeredAt, a.LastNotifiedAt, a.LastResolvedAt)
		return err
	})
}
