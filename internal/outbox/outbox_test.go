package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/NordCoder/Renewly/internal/domain/notification"
	"github.com/NordCoder/Renewly/internal/domain/outbox"
	"github.com/NordCoder/Renewly/internal/obs/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memRepo struct {
	mu       sync.Mutex
	batch    []outbox.Message
	marked   []string
	failed   []string
	purgedAt []time.Time
}

func (r *memRepo) Enqueue(context.Context, string, outbox.Kind, []byte) error { return nil }

func (r *memRepo) PickBatch(context.Context, int, time.Duration) ([]outbox.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.batch
	r.batch = nil
	return out, nil
}

func (r *memRepo) MarkSuccess(_ context.Context, keys []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.marked = append(r.marked, keys...)
	return nil
}

func (r *memRepo) MarkFailed(_ context.Context, keys []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed = append(r.failed, keys...)
	return nil
}

func (r *memRepo) Purge(_ context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.purgedAt = append(r.purgedAt, before)
	return 3, nil
}

type flakyPublisher struct {
	mu       sync.Mutex
	failures int
	calls    int
	got      []notification.DeliveryEvent
}

func (p *flakyPublisher) PublishDeliveryRecorded(_ context.Context, ev notification.DeliveryEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.calls <= p.failures {
		return errors.New("broker unavailable")
	}
	p.got = append(p.got, ev)
	return nil
}

func fastPolicy(attempts int) retry.Policy {
	return retry.Policy{Attempts: attempts, Backoff: retry.ExpoJitter{Base: time.Millisecond, Max: 2 * time.Millisecond}}
}

func event(t *testing.T, user string) []byte {
	t.Helper()
	raw, err := json.Marshal(notification.DeliveryEvent{UserID: user, Status: 201, Success: true})
	require.NoError(t, err)
	return raw
}

func TestGlobalHandler_RetriesThenPublishes(t *testing.T) {
	pub := &flakyPublisher{failures: 2}
	h, err := MakeGlobalOutboxHandler(pub, fastPolicy(3))(outbox.KindDeliveryRecorded)
	require.NoError(t, err)

	require.NoError(t, h(context.Background(), event(t, "seller-1")))
	assert.Equal(t, 3, pub.calls)
	require.Len(t, pub.got, 1)
	assert.Equal(t, "seller-1", pub.got[0].UserID)
}

func TestGlobalHandler_UnknownKind(t *testing.T) {
	_, err := MakeGlobalOutboxHandler(&flakyPublisher{}, fastPolicy(1))(outbox.Kind(99))
	require.Error(t, err)
	assert.True(t, retry.IsPermanent(err))
}

func TestGlobalHandler_UndecodableEventIsPermanent(t *testing.T) {
	pub := &flakyPublisher{}
	h, err := MakeGlobalOutboxHandler(pub, fastPolicy(3))(outbox.KindDeliveryRecorded)
	require.NoError(t, err)

	err = h(context.Background(), []byte(`broken`))
	require.Error(t, err)
	assert.True(t, retry.IsPermanent(err))
	assert.Zero(t, pub.calls)
}

func TestRunnerTick_MarksOnlyPublished(t *testing.T) {
	repo := &memRepo{batch: []outbox.Message{
		{IdempotencyKey: "delivery:1", Kind: outbox.KindDeliveryRecorded, Data: []byte(`{"user_id":"a"}`)},
		{IdempotencyKey: "delivery:2", Kind: outbox.KindDeliveryRecorded, Data: []byte(`broken`)},
		{IdempotencyKey: "other:3", Kind: outbox.Kind(42), Data: []byte(`{}`)},
	}}
	pub := &flakyPublisher{}
	r := NewOutboxRunner(nil, repo, MakeGlobalOutboxHandler(pub, fastPolicy(1)), Config{})

	r.tick(context.Background())

	assert.Equal(t, []string{"delivery:1"}, repo.marked)
	assert.Equal(t, []string{"delivery:2", "other:3"}, repo.failed)
	require.Len(t, pub.got, 1)
}

func TestRunnerTick_TransientErrorStaysInProgress(t *testing.T) {
	repo := &memRepo{batch: []outbox.Message{
		{IdempotencyKey: "delivery:1", Kind: outbox.KindDeliveryRecorded, Data: []byte(`{"user_id":"a"}`)},
	}}
	pub := &flakyPublisher{failures: 5}
	r := NewOutboxRunner(nil, repo, MakeGlobalOutboxHandler(pub, fastPolicy(2)), Config{})

	r.tick(context.Background())

	assert.Equal(t, 2, pub.calls)
	assert.Empty(t, repo.marked)
	assert.Empty(t, repo.failed)
}

func TestRunnerTick_PoisonMessageIsNotRetried(t *testing.T) {
	repo := &memRepo{}
	pub := &flakyPublisher{}
	r := NewOutboxRunner(nil, repo, MakeGlobalOutboxHandler(pub, fastPolicy(3)), Config{})

	poison := outbox.Message{IdempotencyKey: "delivery:9", Kind: outbox.KindDeliveryRecorded, Data: []byte(`{`)}
	repo.batch = []outbox.Message{poison}
	r.tick(context.Background())

	assert.Equal(t, []string{"delivery:9"}, repo.failed)
	assert.Empty(t, repo.marked)
	assert.Zero(t, pub.calls)
}

func TestRunner_StartAndWait(t *testing.T) {
	repo := &memRepo{batch: []outbox.Message{
		{IdempotencyKey: "delivery:1", Kind: outbox.KindDeliveryRecorded, Data: []byte(`{"user_id":"a"}`)},
	}}
	r := NewOutboxRunner(nil, repo, MakeGlobalOutboxHandler(&flakyPublisher{}, fastPolicy(1)),
		Config{Workers: 2, WaitTime: 5 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	r.Start(ctx)
	require.Eventually(t, func() bool {
		repo.mu.Lock()
		defer repo.mu.Unlock()
		return len(repo.marked) == 1
	}, time.Second, 5*time.Millisecond)
	cancel()
	r.Wait()
}

func TestRunner_PurgeUsesRetentionCutoff(t *testing.T) {
	repo := &memRepo{}
	r := NewOutboxRunner(nil, repo, nil, Config{Retention: 48 * time.Hour})
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	r.purge(context.Background(), now)

	require.Len(t, repo.purgedAt, 1)
	assert.Equal(t, now.Add(-48*time.Hour), repo.purgedAt[0])
}

func TestRunner_JanitorRunsOnStart(t *testing.T) {
	repo := &memRepo{}
	r := NewOutboxRunner(nil, repo, nil, Config{Retention: time.Hour, WaitTime: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	r.Start(ctx)

	assert.Eventually(t, func() bool {
		repo.mu.Lock()
		defer repo.mu.Unlock()
		return len(repo.purgedAt) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	r.Wait()
}
