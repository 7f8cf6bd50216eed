package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
env: dev
http:
  address: ":9090"
  allowed_origins: [" http://a ", ""]
relay:
  max_room_members: 3
  chat_history: 10
  chat_replay: 40
  room_grace: 2s
  rate_limits:
    chat-message: 2
webrtc:
  turn_servers: ["turn:turn.example.com:3478"]
  max_mesh_peers: 4
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "dev", cfg.Env)
	assert.Equal(t, ":9090", cfg.HTTP.Address)
	assert.Equal(t, []string{"http://a"}, cfg.HTTP.AllowedOrigins)
	assert.Equal(t, 3, cfg.Relay.MaxRoomMembers)
	assert.Equal(t, 10, cfg.Relay.ChatReplay, "replay never exceeds history")
	assert.Equal(t, 2*time.Second, cfg.Relay.RoomGrace)
	assert.Equal(t, map[string]int{"chat-message": 2}, cfg.Relay.RateLimits)
	assert.Equal(t, []string{"turn:turn.example.com:3478"}, cfg.WebRTC.TURNServers)
	assert.Equal(t, 4, cfg.WebRTC.MaxMeshPeers)
	assert.NotEmpty(t, cfg.WebRTC.STUNServers)
}

func TestLoadFallsBackToEnv(t *testing.T) {
	t.Setenv("HTTP_ADDRESS", ":7070")
	t.Setenv("ALLOWED_ORIGINS", "http://a,http://b")
	t.Setenv("MAX_CHAT_LENGTH", "42")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.HTTP.Address)
	assert.Equal(t, []string{"http://a", "http://b"}, cfg.HTTP.AllowedOrigins)
	assert.Equal(t, 42, cfg.Relay.MaxChatLength)
	assert.Equal(t, DefaultRateLimits, cfg.Relay.RateLimits)
	assert.Equal(t, 5*time.Minute, cfg.Relay.RoomGrace)
	assert.Equal(t, 5*time.Second, cfg.WebRTC.DisconnectGrace)
}

func TestDefaultsDoNotAliasRateLimits(t *testing.T) {
	var cfg Config
	cfg.setDefaults()
	cfg.Relay.RateLimits["chat-message"] = 1000

	assert.Equal(t, 5, DefaultRateLimits["chat-message"])
}
