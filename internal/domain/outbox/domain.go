package outbox

import (
	"context"
	"time"
)

// Status tracks a message through CREATED -> IN_PROGRESS -> SUCCESS.
// IN_PROGRESS rows older than the claim TTL are picked again. FAILED is
// terminal and marks messages whose handler can never succeed.
type Status string

const (
	StatusCreated    Status = "CREATED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusSuccess    Status = "SUCCESS"
	StatusFailed     Status = "FAILED"
)

type Kind int

const (
	KindDeliveryRecorded Kind = 1
)

func (k Kind) String() string {
	switch k {
	case KindDeliveryRecorded:
		return "delivery_recorded"
	default:
		return "unknown"
	}
}

type Message struct {
	IdempotencyKey string
	Kind           Kind
	Data           []byte
	Status         Status
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Tracestate     string
	Traceparent    string
	Baggage        string
}

// Enqueuer is the write side used inside business transactions.
type Enqueuer interface {
	Enqueue(ctx context.Context, key string, kind Kind, data []byte) error
}

type Repository interface {
	Enqueuer

	PickBatch(ctx context.Context, batch int, inProgressTTL time.Duration) ([]Message, error)

	MarkSuccess(ctx context.Context, keys []string) error

	MarkFailed(ctx context.Context, keys []string) error

	// Purge deletes finished (SUCCESS or FAILED) messages last touched
	// before the cutoff.
	Purge(ctx context.Context, before time.Time) (int64, error)
}

type KindHandler func(ctx context.Context, data []byte) error

type GlobalHandler func(kind Kind) (KindHandler, error)
