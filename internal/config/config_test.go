package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	t.Setenv("MONGODB_URI", "mongodb://localhost:27017/testdb")
	t.Setenv("MONGODB_DATABASE", "collabdocs_test")
	t.Setenv("REDIS_HOST", "localhost")
	t.Setenv("REDIS_PORT", "6379")
	t.Setenv("JWT_SECRET", "testsecret123456789012345678901234")
	t.Setenv("PRESENCE_BACKEND", "Redis")
	t.Setenv("COLLAB_PING_SECONDS", "10")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, "mongodb://localhost:27017/testdb", cfg.MongoDB.URI)
	require.Equal(t, "localhost:6379", cfg.Redis.Addr())
	require.Equal(t, "redis", cfg.Collab.PresenceBackend)
	require.True(t, cfg.Collab.EnforceAccess)
	require.Equal(t, 10*time.Second, cfg.Collab.PingPeriod)
	require.Equal(t, 15*time.Second, cfg.Collab.PongWait)
	require.Equal(t, 10*time.Second, cfg.Collab.StoreTimeout)
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("REDIS_HOST", "")
	t.Setenv("PRESENCE_BACKEND", "")
	t.Setenv("COLLAB_ENFORCE_ACCESS", "false")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, "5000", cfg.Server.Port)
	require.Equal(t, "", cfg.Redis.Addr())
	require.Equal(t, "memory", cfg.Collab.PresenceBackend)
	require.False(t, cfg.Collab.EnforceAccess)
	require.Equal(t, 256, cfg.Collab.SendQueue)
}

func TestValidate(t *testing.T) {
	cfg := &Config{Collab: CollabConfig{PresenceBackend: "redis", SendQueue: 1}}
	require.Error(t, cfg.Validate())

	cfg.Collab.PresenceBackend = "etcd"
	require.Error(t, cfg.Validate())

	cfg.Collab.PresenceBackend = "memory"
	cfg.Collab.BusEnabled = true
	require.Error(t, cfg.Validate())

	cfg.Redis.Host = "localhost"
	require.NoError(t, cfg.Validate())
}
