package repo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/NordCoder/Renewly/internal/domain/notification"
	"github.com/NordCoder/Renewly/internal/domain/outbox"
	"github.com/NordCoder/Renewly/internal/domain/subscription"
)

type Transactor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Ledger writes the delivery record, the prune delete and the optional
// outbox event in one transaction.
type Ledger struct {
	Tx         Transactor
	Subs       subscription.Repo
	Deliveries notification.Repo
	// Outbox is nil when event streaming is disabled.
	Outbox outbox.Enqueuer
}

func (l Ledger) Settle(ctx context.Context, d *notification.Delivery) error {
	return l.Tx.WithTx(ctx, func(ctx context.Context) error {
		if d.Pruned {
			if err := l.Subs.DeleteByEndpoint(ctx, d.Endpoint); err != nil {
				return fmt.Errorf("prune subscription: %w", err)
			}
		}
		if err := l.Deliveries.Create(ctx, d); err != nil {
			return fmt.Errorf("record delivery: %w", err)
		}
		if l.Outbox == nil {
			return nil
		}
		data, err := json.Marshal(d.Event())
		if err != nil {
			return fmt.Errorf("marshal delivery event: %w", err)
		}
		key := fmt.Sprintf("delivery:%d", d.ID)
		if err := l.Outbox.Enqueue(ctx, key, outbox.KindDeliveryRecorded, data); err != nil {
			return fmt.Errorf("enqueue delivery event: %w", err)
		}
		return nil
	})
}
