package dispatcher

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/NordCoder/Renewly/internal/domain/client"
	"github.com/NordCoder/Renewly/internal/domain/notification"
	"github.com/NordCoder/Renewly/internal/domain/preference"
	"github.com/NordCoder/Renewly/internal/domain/subscription"
)

type fakePrefs struct {
	list []*preference.Preference
	err  error
}

func (f *fakePrefs) ListEnabled(context.Context) ([]*preference.Preference, error) {
	return f.list, f.err
}

type fakeClients struct {
	mu     sync.Mutex
	byDate map[string][]*client.Expiration
	fail   map[string]error
	asked  []string
}

func (f *fakeClients) add(c *client.Expiration) {
	if f.byDate == nil {
		f.byDate = map[string][]*client.Expiration{}
	}
	day := c.ExpirationDate.Format(time.DateOnly)
	f.byDate[day] = append(f.byDate[day], c)
}

func (f *fakeClients) ListExpiringOn(_ context.Context, day time.Time) ([]*client.Expiration, error) {
	key := day.Format(time.DateOnly)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.asked = append(f.asked, key)
	if err := f.fail[key]; err != nil {
		return nil, err
	}
	return f.byDate[key], nil
}

func (f *fakeClients) askedDates() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := slices.Clone(f.asked)
	slices.Sort(out)
	return out
}

type fakeSubs struct {
	mu      sync.Mutex
	subs    []*subscription.Subscription
	deleted []string
	listErr error
	delErr  error
}

func (f *fakeSubs) ListByUsers(_ context.Context, ids []string) ([]*subscription.Subscription, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*subscription.Subscription
	for _, s := range f.subs {
		if slices.Contains(ids, s.UserID) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeSubs) DeleteByEndpoint(_ context.Context, endpoint string) error {
	if f.delErr != nil {
		return f.delErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, endpoint)
	f.subs = slices.DeleteFunc(f.subs, func(s *subscription.Subscription) bool { return s.Endpoint == endpoint })
	return nil
}

func (f *fakeSubs) remaining() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.subs))
	for _, s := range f.subs {
		out = append(out, s.Endpoint)
	}
	return out
}

// fakePusher answers 201 unless a status is configured for the endpoint.
type fakePusher struct {
	mu       sync.Mutex
	status   map[string]int
	err      map[string]error
	payloads map[string][]byte
}

func (f *fakePusher) Push(_ context.Context, sub *subscription.Subscription, payload []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.payloads == nil {
		f.payloads = map[string][]byte{}
	}
	f.payloads[sub.Endpoint] = payload
	if err := f.err[sub.Endpoint]; err != nil {
		return 0, err
	}
	code, ok := f.status[sub.Endpoint]
	if !ok {
		code = http.StatusCreated
	}
	if code >= 200 && code < 300 {
		return code, nil
	}
	return code, &notification.StatusError{Code: code}
}

func (f *fakePusher) payload(endpoint string) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.payloads[endpoint]
}

type fakeLedger struct {
	mu      sync.Mutex
	records []*notification.Delivery
	err     error
}

func (f *fakeLedger) Settle(_ context.Context, d *notification.Delivery) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, d)
	return nil
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

var errBoom = errors.New("boom")

func cents(v int64) *int64 { return &v }
