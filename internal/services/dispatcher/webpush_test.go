package dispatcher

import (
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/NordCoder/Renewly/internal/domain/preference"
	"github.com/NordCoder/Renewly/internal/domain/subscription"
	"github.com/NordCoder/Renewly/internal/push"
	"github.com/NordCoder/Renewly/internal/vapid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func browserSub(t *testing.T, id int64, user, endpoint string) *subscription.Subscription {
	t.Helper()
	k, err := ecdh.P256().GenerateKey(rand.Reader)
	require.NoError(t, err)
	auth := make([]byte, 16)
	_, err = rand.Read(auth)
	require.NoError(t, err)
	return &subscription.Subscription{
		ID:       id,
		UserID:   user,
		Endpoint: endpoint,
		P256dh:   base64.RawURLEncoding.EncodeToString(k.PublicKey().Bytes()),
		Auth:     base64.RawURLEncoding.EncodeToString(auth),
	}
}

func TestRun_WebPushEndToEnd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/gone":
			w.WriteHeader(http.StatusGone)
		case "/busy":
			w.WriteHeader(http.StatusTooManyRequests)
		default:
			w.WriteHeader(http.StatusCreated)
		}
	}))
	defer srv.Close()

	keys, err := vapid.Generate()
	require.NoError(t, err)
	sender := push.NewSender(keys, push.Config{
		Subscriber: "ops@renewly.test",
		Timeout:    5 * time.Second,
		TTL:        24 * time.Hour,
	}, nil)

	e := newEnv()
	e.prefs.list = []*preference.Preference{{UserID: "S", IsEnabled: true, DaysBefore: []int{3}}}
	e.clients.add(expiring("C", "S", "Carla", 3, cents(4990)))
	e.subs.subs = []*subscription.Subscription{
		browserSub(t, 1, "S", srv.URL+"/ok"),
		browserSub(t, 2, "S", srv.URL+"/gone"),
		browserSub(t, 3, "S", srv.URL+"/busy"),
	}

	uc := NewUC(Deps{
		Prefs: e.prefs, Clients: e.clients, Subs: e.subs, Pusher: sender,
		Clock: fixedClock{t: today},
	}, Options{})

	sum, err := uc.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, sum.Results, 3)
	assert.Equal(t, 1, sum.Sent)

	assert.Equal(t, []string{srv.URL + "/gone"}, e.subs.deleted)
	assert.ElementsMatch(t, []string{srv.URL + "/ok", srv.URL + "/busy"}, e.subs.remaining())
}

func TestRun_WebPushLargeBatchDelivers(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	keys, err := vapid.Generate()
	require.NoError(t, err)
	sender := push.NewSender(keys, push.Config{
		Subscriber: "ops@renewly.test",
		Timeout:    5 * time.Second,
		TTL:        24 * time.Hour,
	}, nil)

	e := newEnv()
	e.prefs.list = []*preference.Preference{{UserID: "S", IsEnabled: true, DaysBefore: []int{0}}}
	for _, c := range largeBatch("S", 60).Clients {
		e.clients.add(c)
	}
	e.subs.subs = []*subscription.Subscription{browserSub(t, 1, "S", srv.URL+"/ok")}

	uc := NewUC(Deps{
		Prefs: e.prefs, Clients: e.clients, Subs: e.subs, Pusher: sender,
		Clock: fixedClock{t: today},
	}, Options{})

	sum, err := uc.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, sum.Results, 1)
	assert.True(t, sum.Results[0].Success, sum.Results[0].Error)
	assert.Equal(t, http.StatusCreated, sum.Results[0].Status)
	assert.Equal(t, 1, sum.Sent)
	assert.Equal(t, int32(1), hits.Load())
}
