package kafka

import (
	"context"

	"github.com/NordCoder/Renewly/internal/domain/notification"
)

type DeliveryEvents interface {
	PublishDeliveryRecorded(ctx context.Context, ev notification.DeliveryEvent) error
}
