package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/NordCoder/Renewly/internal/domain/notification"
	"github.com/google/uuid"
)

var _ notification.Repo = (*DeliveryRepoImpl)(nil)

type DeliveryRepoImpl struct{ db *DB }

func NewDeliveryRepo(db *DB) *DeliveryRepoImpl { return &DeliveryRepoImpl{db: db} }

const (
	qDeliveryInsert = `
INSERT INTO push_deliveries (run_id, user_id, endpoint, status, success, pruned, error, payload, sent_at)
VALUES ($1, $2::uuid, $3, $4, $5, $6, NULLIF($7, ''), $8, COALESCE($9, now()))
RETURNING id, sent_at;
`
	qDeliveriesByUser = `
SELECT id, run_id, user_id::text, endpoint, status, success, pruned, COALESCE(error, ''), payload, sent_at
FROM push_deliveries
WHERE user_id = $1::uuid
ORDER BY sent_at DESC, id DESC
LIMIT $2;
`
)

func (r *DeliveryRepoImpl) Create(ctx context.Context, d *notification.Delivery) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	eq := r.db.execQueryer(ctx)
	if err := eq.QueryRow(ctx, qDeliveryInsert,
		d.RunID,
		d.UserID,
		d.Endpoint,
		d.Status,
		d.Success,
		d.Pruned,
		d.Error,
		d.Payload,
		nullTime(d.SentAt),
	).Scan(&d.ID, &d.SentAt); err != nil {
		return fmt.Errorf("insert delivery: %w", err)
	}
	return nil
}

func (r *DeliveryRepoImpl) ListByUser(ctx context.Context, userID string, limit int) ([]*notification.Delivery, error) {
	if limit <= 0 {
		limit = 50
	}
	if _, err := uuid.Parse(userID); err != nil {
		return nil, fmt.Errorf("user id %q: %w", userID, err)
	}

	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.Pool.Query(ctx, qDeliveriesByUser, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query deliveries: %w", err)
	}
	defer rows.Close()

	out := make([]*notification.Delivery, 0, limit)
	for rows.Next() {
		var d notification.Delivery
		if err := rows.Scan(&d.ID, &d.RunID, &d.UserID, &d.Endpoint, &d.Status, &d.Success, &d.Pruned, &d.Error, &d.Payload, &d.SentAt); err != nil {
			return nil, fmt.Errorf("scan delivery: %w", err)
		}
		dc := d
		out = append(out, &dc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
