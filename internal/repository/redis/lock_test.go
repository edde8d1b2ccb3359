//go:build integration

package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunLock_Exclusive(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	client := NewClient(Config{Addr: addr})
	defer client.Close()

	ctx := context.Background()
	require.NoError(t, Ping(ctx, client))

	key := "renewly:test:" + uuid.NewString()
	a := NewRunLock(client, key, 5*time.Second, nil)
	b := NewRunLock(client, key, 5*time.Second, nil)

	unlock, ok, err := a.TryLock(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = b.TryLock(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, unlock(ctx))

	unlockB, ok, err := b.TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, unlockB(ctx))
}

func TestRunLock_ReleaseDoesNotStealForeignLease(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	client := NewClient(Config{Addr: addr})
	defer client.Close()

	ctx := context.Background()
	key := "renewly:test:" + uuid.NewString()
	l := NewRunLock(client, key, 5*time.Second, nil)

	unlock, ok, err := l.TryLock(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	// the lease expired and someone else took it
	require.NoError(t, client.Set(ctx, key, "other", 5*time.Second).Err())
	require.NoError(t, unlock(ctx))

	v, err := client.Get(ctx, key).Result()
	require.NoError(t, err)
	assert.Equal(t, "other", v)
	require.NoError(t, client.Del(ctx, key).Err())
}
