package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/NordCoder/Renewly/internal/domain/client"
)

var _ client.Repo = (*ClientRepoImpl)(nil)

type ClientRepoImpl struct{ db *DB }

func NewClientRepo(db *DB) *ClientRepoImpl { return &ClientRepoImpl{db: db} }

// plan_price is numeric(10,2); cents keep sums exact.
const qClientsExpiringOn = `
SELECT id::text, name, COALESCE(phone, ''), expiration_date, seller_id::text,
       (ROUND(plan_price * 100))::bigint
FROM clients
WHERE expiration_date = $1::date
ORDER BY seller_id, name;
`

const dateLayout = "2006-01-02"

func (r *ClientRepoImpl) ListExpiringOn(ctx context.Context, day time.Time) ([]*client.Expiration, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.Pool.Query(ctx, qClientsExpiringOn, day.Format(dateLayout))
	if err != nil {
		return nil, fmt.Errorf("query clients expiring on %s: %w", day.Format(dateLayout), err)
	}
	defer rows.Close()

	var out []*client.Expiration
	for rows.Next() {
		var c client.Expiration
		if err := rows.Scan(&c.ID, &c.Name, &c.Phone, &c.ExpirationDate, &c.SellerID, &c.PriceCents); err != nil {
			return nil, fmt.Errorf("scan client: %w", err)
		}
		out = append(out, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}
