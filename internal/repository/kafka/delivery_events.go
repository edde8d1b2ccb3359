package kafka

import (
	"context"

	"github.com/NordCoder/Renewly/internal/domain/kafka"
	"github.com/NordCoder/Renewly/internal/domain/notification"
)

const EventDeliveryRecorded = "delivery.recorded"

// DeliveryEventsKafka publishes delivery events keyed by seller so one
// seller's events stay ordered within a partition.
type DeliveryEventsKafka struct {
	p *Producer
}

func NewDeliveryEventsKafka(p *Producer) *DeliveryEventsKafka { return &DeliveryEventsKafka{p: p} }

var _ kafka.DeliveryEvents = (*DeliveryEventsKafka)(nil)

func (e *DeliveryEventsKafka) PublishDeliveryRecorded(ctx context.Context, ev notification.DeliveryEvent) error {
	return e.p.Publish(ctx, []byte(ev.UserID), EventDeliveryRecorded, ev)
}
