package notification

import (
	"context"
	"time"

	"github.com/NordCoder/Renewly/internal/domain/subscription"
)

type Repo interface {
	Create(ctx context.Context, d *Delivery) error
	ListByUser(ctx context.Context, userID string, limit int) ([]*Delivery, error)
}

// Pusher delivers one payload to one subscription. The returned status is
// zero when no HTTP response was received.
type Pusher interface {
	Push(ctx context.Context, sub *subscription.Subscription, payload []byte) (int, error)
}

type Clock interface {
	Now() time.Time
}
