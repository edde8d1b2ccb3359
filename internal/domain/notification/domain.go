package notification

import (
	"errors"
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/NordCoder/Renewly/internal/domain/client"
)

var ErrSubscriptionGone = errors.New("push subscription gone")

// StatusError is a non-2xx answer from a push service.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("push service responded %d", e.Code)
	}
	return fmt.Sprintf("push service responded %d: %s", e.Code, e.Body)
}

// Is reports 404 and 410 as ErrSubscriptionGone.
func (e *StatusError) Is(target error) bool {
	return target == ErrSubscriptionGone && (e.Code == http.StatusNotFound || e.Code == http.StatusGone)
}

// Batch groups one seller's expiring clients for a single dispatch run.
// It is never persisted.
type Batch struct {
	SellerID   string
	Clients    []*client.Expiration
	Days       map[int]struct{}
	TotalCents int64
	MostUrgent int
}

func NewBatch(sellerID string) *Batch {
	return &Batch{SellerID: sellerID, Days: make(map[int]struct{}), MostUrgent: -1}
}

// Add records c as triggered by offset. A client already in the batch only
// contributes the offset.
func (b *Batch) Add(c *client.Expiration, offset int) {
	b.Days[offset] = struct{}{}
	if b.MostUrgent < 0 || offset < b.MostUrgent {
		b.MostUrgent = offset
	}
	for _, have := range b.Clients {
		if have.ID == c.ID {
			return
		}
	}
	b.Clients = append(b.Clients, c)
	b.TotalCents += c.Cents()
}

func (b *Batch) Size() int { return len(b.Clients) }

func (b *Batch) SortedDays() []int {
	out := make([]int, 0, len(b.Days))
	for d := range b.Days {
		out = append(out, d)
	}
	slices.Sort(out)
	return out
}

// MaxPayloadSize is the largest plaintext that fits one aes128gcm record of
// 4096 bytes: 86 header bytes, a 16-byte tag and the padding delimiter.
const MaxPayloadSize = 4096 - 86 - 16 - 1

// Payload is the JSON document delivered to the browser service worker.
type Payload struct {
	Title              string      `json:"title"`
	Body               string      `json:"body"`
	Icon               string      `json:"icon,omitempty"`
	Badge              string      `json:"badge,omitempty"`
	Tag                string      `json:"tag,omitempty"`
	RequireInteraction bool        `json:"requireInteraction"`
	Data               PayloadData `json:"data"`
}

type PayloadData struct {
	URL         string          `json:"url"`
	Type        string          `json:"type"`
	MostUrgent  int             `json:"mostUrgent"`
	Days        []int           `json:"days,omitempty"`
	TotalAmount float64         `json:"totalAmount"`
	// ClientCount is the batch size; Clients may hold fewer entries when
	// the full list does not fit in one push message.
	ClientCount int             `json:"clientCount,omitempty"`
	Clients     []PayloadClient `json:"clients,omitempty"`
}

type PayloadClient struct {
	ID    string   `json:"id"`
	Name  string   `json:"name"`
	Phone string   `json:"phone"`
	Price *float64 `json:"price"`
}

// Delivery is the audit record of one push attempt.
type Delivery struct {
	ID       int64     `json:"id"`
	RunID    string    `json:"run_id"`
	UserID   string    `json:"user_id"`
	Endpoint string    `json:"endpoint"`
	Status   int       `json:"status"`
	Success  bool      `json:"success"`
	Pruned   bool      `json:"pruned"`
	Error    string    `json:"error,omitempty"`
	Payload  []byte    `json:"payload"`
	SentAt   time.Time `json:"sent_at"`
}

// DeliveryEvent is the stream representation of a recorded Delivery.
type DeliveryEvent struct {
	DeliveryID int64     `json:"delivery_id"`
	RunID      string    `json:"run_id"`
	UserID     string    `json:"user_id"`
	Endpoint   string    `json:"endpoint"`
	Status     int       `json:"status"`
	Success    bool      `json:"success"`
	Pruned     bool      `json:"pruned"`
	Error      string    `json:"error,omitempty"`
	SentAt     time.Time `json:"sent_at"`
}

func (d *Delivery) Event() DeliveryEvent {
	return DeliveryEvent{
		DeliveryID: d.ID,
		RunID:      d.RunID,
		UserID:     d.UserID,
		Endpoint:   d.Endpoint,
		Status:     d.Status,
		Success:    d.Success,
		Pruned:     d.Pruned,
		Error:      d.Error,
		SentAt:     d.SentAt,
	}
}
