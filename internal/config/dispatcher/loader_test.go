package dispatcher_config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("VAPID_PRIVATE_KEY", "dGVzdA")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "renewly-dispatcher", cfg.App.Name)
	assert.Equal(t, []int{1, 3, 7}, cfg.Dispatch.DefaultDays)
	assert.Equal(t, 5*time.Minute, cfg.Dispatch.Tick)
	assert.Equal(t, 60*time.Second, cfg.Dispatch.RunDeadline)
	assert.Equal(t, 10*time.Second, cfg.Push.Timeout)
	assert.Equal(t, 24*time.Hour, cfg.Push.TTL)
	assert.Equal(t, "high", cfg.Push.Urgency)
	assert.Equal(t, "dGVzdA", cfg.VAPID.PrivateKey)
	assert.Equal(t, 5*time.Second, cfg.DB.QueryTimeout)
	assert.False(t, cfg.Events.Enable)
	assert.Equal(t, 7*24*time.Hour, cfg.Events.Retention)
	assert.False(t, cfg.Lock.Enable)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("VAPID_PRIVATE_KEY", "dGVzdA")
	t.Setenv("DISPATCH_TIMEZONE", "America/Sao_Paulo")
	t.Setenv("PUSH_WORKERS", "3")
	t.Setenv("DISPATCH_TICK", "90s")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "America/Sao_Paulo", cfg.Dispatch.Timezone)
	assert.Equal(t, 3, cfg.Push.Workers)
	assert.Equal(t, 90*time.Second, cfg.Dispatch.Tick)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "America/Sao_Paulo", loc.String())
}

func TestLoad_File(t *testing.T) {
	t.Setenv("VAPID_PRIVATE_KEY", "dGVzdA")
	path := filepath.Join(t.TempDir(), "dispatcher.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
dispatch:
  default_days: [2, 5]
vapid:
  subscriber: ops@renewly.app
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 5}, cfg.Dispatch.DefaultDays)
	assert.Equal(t, "ops@renewly.app", cfg.VAPID.Subscriber)
}

func TestLoad_Invalid(t *testing.T) {
	t.Run("missing vapid key", func(t *testing.T) {
		t.Setenv("VAPID_PRIVATE_KEY", "")
		_, err := Load("")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "PrivateKey")
	})
	t.Run("bad urgency", func(t *testing.T) {
		t.Setenv("VAPID_PRIVATE_KEY", "dGVzdA")
		t.Setenv("PUSH_URGENCY", "urgent")
		_, err := Load("")
		require.Error(t, err)
	})
	t.Run("bad timezone", func(t *testing.T) {
		t.Setenv("VAPID_PRIVATE_KEY", "dGVzdA")
		t.Setenv("DISPATCH_TIMEZONE", "Mars/Olympus")
		_, err := Load("")
		require.Error(t, err)
	})
	t.Run("events without topic", func(t *testing.T) {
		t.Setenv("VAPID_PRIVATE_KEY", "dGVzdA")
		path := filepath.Join(t.TempDir(), "dispatcher.yaml")
		require.NoError(t, os.WriteFile(path, []byte("events:\n  enable: true\n  topic: \"\"\n"), 0o600))
		_, err := Load(path)
		require.Error(t, err)
	})
}
