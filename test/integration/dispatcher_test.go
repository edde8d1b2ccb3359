//go:build integration

package integration

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/NordCoder/Renewly/internal/domain/outbox"
	"github.com/NordCoder/Renewly/internal/push"
	pg "github.com/NordCoder/Renewly/internal/repository/postgres"
	"github.com/NordCoder/Renewly/internal/services/dispatcher"
	"github.com/NordCoder/Renewly/internal/services/dispatcher/repo"
	"github.com/NordCoder/Renewly/internal/vapid"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDispatcher_PostgresRoundTrip(t *testing.T) {
	cfg := LoadCfg()
	sqlDB := OpenDB(t, cfg.DBDSN)

	ctx := context.Background()
	db, err := pg.NewDB(ctx, pg.Config{DSN: cfg.DBDSN, QueryTimeout: 5 * time.Second})
	require.NoError(t, err)
	defer db.Close()

	pushSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/gone" {
			w.WriteHeader(http.StatusGone)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer pushSrv.Close()

	loc := time.UTC
	today := time.Now().In(loc)
	seller := uuid.NewString()
	quiet := uuid.NewString()
	okEndpoint := pushSrv.URL + "/ok/" + seller
	goneEndpoint := pushSrv.URL + "/gone"

	Exec(t, sqlDB, `DELETE FROM push_subscriptions WHERE endpoint = $1`, goneEndpoint)
	Exec(t, sqlDB, `INSERT INTO notification_preferences (user_id, is_enabled, days_before) VALUES ($1, true, '{3}')`, seller)
	Exec(t, sqlDB, `INSERT INTO notification_preferences (user_id, is_enabled, days_before) VALUES ($1, false, '{3}')`, quiet)
	Exec(t, sqlDB, `INSERT INTO clients (seller_id, name, phone, expiration_date, plan_price) VALUES ($1, 'Carla', '+5511', $2::date, 49.90)`,
		seller, today.AddDate(0, 0, 3).Format(time.DateOnly))
	// disabled preference falls back to {1,3,7}; 2 days out is not notified
	Exec(t, sqlDB, `INSERT INTO clients (seller_id, name, expiration_date) VALUES ($1, 'Quieto', $2::date)`,
		quiet, today.AddDate(0, 0, 2).Format(time.DateOnly))

	for _, ep := range []string{okEndpoint, goneEndpoint} {
		p256dh, auth := BrowserKeys(t)
		Exec(t, sqlDB, `INSERT INTO push_subscriptions (user_id, endpoint, p256dh, auth) VALUES ($1, $2, $3, $4)`,
			seller, ep, p256dh, auth)
	}
	p256dh, auth := BrowserKeys(t)
	Exec(t, sqlDB, `INSERT INTO push_subscriptions (user_id, endpoint, p256dh, auth) VALUES ($1, $2, $3, $4)`,
		quiet, pushSrv.URL+"/ok/"+quiet, p256dh, auth)

	keys, err := vapid.Generate()
	require.NoError(t, err)
	log := zap.NewNop()
	subs := pg.NewSubscriptionRepo(db)
	outboxRepo := pg.NewOutboxRepo(db)

	uc := dispatcher.NewUC(dispatcher.Deps{
		Prefs:   pg.NewPreferenceRepo(db),
		Clients: pg.NewClientRepo(db),
		Subs:    subs,
		Pusher:  push.NewSender(keys, push.Config{Subscriber: "ops@renewly.test", TTL: time.Hour}, log),
		Ledger: repo.Ledger{
			Tx:         pg.NewTransactor(db, log),
			Subs:       subs,
			Deliveries: pg.NewDeliveryRepo(db),
			Outbox:     outboxRepo,
		},
		Log: log,
	}, dispatcher.Options{Location: loc})

	sum, err := uc.Run(ctx)
	require.NoError(t, err)

	var mine []dispatcher.Result
	for _, r := range sum.Results {
		assert.NotEqual(t, quiet, r.UserID)
		if r.UserID == seller {
			mine = append(mine, r)
		}
	}
	require.Len(t, mine, 2)
	for _, r := range mine {
		assert.True(t, r.Success)
	}

	assert.Equal(t, 1, Count(t, sqlDB, `SELECT count(*) FROM push_subscriptions WHERE user_id = $1`, seller))
	assert.Zero(t, Count(t, sqlDB, `SELECT count(*) FROM push_subscriptions WHERE endpoint = $1`, goneEndpoint))
	assert.Equal(t, 2, Count(t, sqlDB, `SELECT count(*) FROM push_deliveries WHERE user_id = $1 AND run_id = $2`, seller, sum.RunID))
	assert.Equal(t, 1, Count(t, sqlDB, `SELECT count(*) FROM push_deliveries WHERE user_id = $1 AND pruned`, seller))

	body := ""
	require.NoError(t, sqlDB.QueryRow(
		`SELECT payload->>'body' FROM push_deliveries WHERE user_id = $1 AND run_id = $2 LIMIT 1`, seller, sum.RunID,
	).Scan(&body))
	assert.Contains(t, body, "Carla")
	assert.Contains(t, body, "49,90")

	deliveries, err := pg.NewDeliveryRepo(db).ListByUser(ctx, seller, 10)
	require.NoError(t, err)
	assert.Len(t, deliveries, 2)
	_, err = pg.NewDeliveryRepo(db).ListByUser(ctx, "not-a-uuid", 10)
	assert.Error(t, err)

	left, err := subs.ListByUsers(ctx, []string{seller, "not-a-uuid"})
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, okEndpoint, left[0].Endpoint)
	assert.Equal(t, seller, left[0].UserID)

	msgs, err := outboxRepo.PickBatch(ctx, 100, time.Minute)
	require.NoError(t, err)
	var keysPicked []string
	for _, m := range msgs {
		if m.Kind == outbox.KindDeliveryRecorded {
			keysPicked = append(keysPicked, m.IdempotencyKey)
		}
	}
	assert.GreaterOrEqual(t, len(keysPicked), 2)
	require.NoError(t, outboxRepo.MarkSuccess(ctx, keysPicked))

	poison := "delivery:poison:" + seller
	require.NoError(t, outboxRepo.Enqueue(ctx, poison, outbox.KindDeliveryRecorded, []byte(`{`)))
	msgs, err = outboxRepo.PickBatch(ctx, 100, time.Minute)
	require.NoError(t, err)
	assert.Contains(t, outboxKeys(msgs), poison)
	require.NoError(t, outboxRepo.MarkFailed(ctx, []string{poison}))
	assert.Equal(t, 1, Count(t, sqlDB, `SELECT count(*) FROM outbox WHERE idempotency_key = $1 AND status = 'FAILED'`, poison))

	msgs, err = outboxRepo.PickBatch(ctx, 100, 0)
	require.NoError(t, err)
	assert.NotContains(t, outboxKeys(msgs), poison)

	_, err = outboxRepo.Purge(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, Count(t, sqlDB, `SELECT count(*) FROM outbox WHERE idempotency_key = $1`, poison))
}

func outboxKeys(msgs []outbox.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.IdempotencyKey)
	}
	return out
}
