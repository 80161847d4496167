package config

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func load(t *testing.T, yaml string) (*Config, error) {
	t.Helper()
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)
	require.NoError(t, v.ReadConfig(strings.NewReader(yaml)))
	return decode(v)
}

func TestDecode_Defaults(t *testing.T) {
	cfg, err := load(t, "")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 2, cfg.Rooms.DefaultMaxParticipants)
	assert.Equal(t, time.Hour, cfg.Rooms.DefaultTTL)
	assert.Equal(t, "memory", cfg.Storage.Driver)
	assert.Equal(t, "memory", cfg.Tokens.Backend)
	assert.Equal(t, 54*time.Second, cfg.PingPeriod)
	assert.False(t, cfg.Signal.NotifyUnavailablePeer)
	assert.Equal(t, "kick", cfg.Signal.Backpressure)
	assert.Equal(t, 5, cfg.Signal.CloseRetries)
	assert.Equal(t, 200*time.Millisecond, cfg.Signal.CloseBackoff)
	assert.Empty(t, cfg.ICEServers)
}

func TestDecode_FileValues(t *testing.T) {
	cfg, err := load(t, `
port: 9000
rooms:
  default_max_participants: 4
  default_ttl: 15m
tokens:
  backend: redis
signal:
  notify_unavailable_peer: true
  backpressure: drop
  close_backoff: 1s
ice_servers: '[{"urls": "stun:stun.example.com:3478"}]'
projects:
  - id: p1
    user_id: u1
    api_key: bz_k
    plan: growth
    allowed_origins: ["https://a.example.com"]
`)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, 4, cfg.Rooms.DefaultMaxParticipants)
	assert.Equal(t, 15*time.Minute, cfg.Rooms.DefaultTTL)
	assert.Equal(t, "redis", cfg.Tokens.Backend)
	assert.True(t, cfg.Signal.NotifyUnavailablePeer)
	assert.Equal(t, "drop", cfg.Signal.Backpressure)
	assert.Equal(t, time.Second, cfg.Signal.CloseBackoff)
	require.Len(t, cfg.ICEServers, 1)
	require.Len(t, cfg.Projects, 1)
	assert.Equal(t, "bz_k", cfg.Projects[0].APIKey)
	assert.Equal(t, []string{"https://a.example.com"}, cfg.Projects[0].AllowedOrigins)
}

func TestDecode_Invalid(t *testing.T) {
	_, err := load(t, "storage:\n  driver: mysql\n")
	assert.ErrorContains(t, err, "storage.dsn")

	_, err = load(t, "storage:\n  driver: postgres\n")
	assert.Error(t, err)

	_, err = load(t, "tokens:\n  backend: etcd\n")
	assert.Error(t, err)

	_, err = load(t, "rooms:\n  default_max_participants: 0\n")
	assert.Error(t, err)

	_, err = load(t, "signal:\n  backpressure: block\n")
	assert.ErrorContains(t, err, "signal.backpressure")

	_, err = load(t, "signal:\n  close_retries: 0\n")
	assert.Error(t, err)

	_, err = load(t, "ice_servers: 'nope'\n")
	assert.Error(t, err)
}
