package postgres

import (
	"context"
	"fmt"

	"github.com/NordCoder/Renewly/internal/domain/subscription"
	"github.com/google/uuid"
)

var _ subscription.Repo = (*SubscriptionRepoImpl)(nil)

type SubscriptionRepoImpl struct{ db *DB }

func NewSubscriptionRepo(db *DB) *SubscriptionRepoImpl { return &SubscriptionRepoImpl{db: db} }

const (
	qSubsByUsers = `
SELECT id, user_id::text, endpoint, p256dh, auth, created_at
FROM push_subscriptions
WHERE user_id = ANY($1::uuid[])
ORDER BY user_id, id;
`
	qSubDeleteByEndpoint = `DELETE FROM push_subscriptions WHERE endpoint = $1;`
)

func (r *SubscriptionRepoImpl) ListByUsers(ctx context.Context, userIDs []string) ([]*subscription.Subscription, error) {
	userIDs = validUUIDs(userIDs)
	if len(userIDs) == 0 {
		return nil, nil
	}
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.Pool.Query(ctx, qSubsByUsers, userIDs)
	if err != nil {
		return nil, fmt.Errorf("query subscriptions: %w", err)
	}
	defer rows.Close()

	var out []*subscription.Subscription
	for rows.Next() {
		var s subscription.Subscription
		if err := rows.Scan(&s.ID, &s.UserID, &s.Endpoint, &s.P256dh, &s.Auth, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		out = append(out, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

func (r *SubscriptionRepoImpl) DeleteByEndpoint(ctx context.Context, endpoint string) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	eq := r.db.execQueryer(ctx)
	if _, err := eq.Exec(ctx, qSubDeleteByEndpoint, endpoint); err != nil {
		return fmt.Errorf("delete subscription: %w", err)
	}
	return nil
}

// validUUIDs drops ids that can never match a uuid column, so one bad id
// does not fail the whole ::uuid[] cast.
func validUUIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, err := uuid.Parse(id); err == nil {
			out = append(out, id)
		}
	}
	return out
}
