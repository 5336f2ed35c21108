package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "ws://127.0.0.1:3000/", cfg.RelayURL())
}

func TestRelayURL(t *testing.T) {
	cfg := Default()
	cfg.RelayHost = "relay.example.com"
	cfg.RelayPort = 8443
	cfg.RelayPath = "signal"
	cfg.RelaySecure = true
	assert.Equal(t, "wss://relay.example.com:8443/signal", cfg.RelayURL())

	cfg.RelayHost = "::1"
	cfg.RelaySecure = false
	cfg.RelayPath = "/"
	assert.Equal(t, "ws://[::1]:8443/", cfg.RelayURL())
}

func TestFromEnv(t *testing.T) {
	t.Setenv(envRelayHost, "10.0.0.7")
	t.Setenv(envRelayPort, "4000")
	t.Setenv(envICEServers, "stun:a.example:3478, stun:b.example:3478")
	t.Setenv(envPingInterval, "0s")
	t.Setenv(envNegotiationTimeout, "5s")
	t.Setenv(envDebug, "true")

	cfg, err := FromEnv(Default(), filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "10.0.0.7", cfg.RelayHost)
	assert.Equal(t, 4000, cfg.RelayPort)
	assert.Equal(t, []string{"stun:a.example:3478", "stun:b.example:3478"}, cfg.ICEServers)
	assert.Equal(t, time.Duration(0), cfg.PingInterval)
	assert.Equal(t, 5*time.Second, cfg.NegotiationTimeout)
	assert.True(t, cfg.Debug)
	assert.NoError(t, cfg.Validate())
}

func TestFromEnvDotenvFile(t *testing.T) {
	os.Unsetenv(envSendQueueSize)
	t.Cleanup(func() { os.Unsetenv(envSendQueueSize) })

	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte(envSendQueueSize+"=128\n"), 0o600))

	cfg, err := FromEnv(Default(), path)
	require.NoError(t, err)
	assert.Equal(t, 128, cfg.SendQueueSize)
}

func TestFromEnvInvalid(t *testing.T) {
	t.Setenv(envRelayPort, "three-thousand")

	_, err := FromEnv(Default(), filepath.Join(t.TempDir(), "missing.env"))
	assert.ErrorContains(t, err, envRelayPort)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty host", func(c *Config) { c.RelayHost = "" }},
		{"port zero", func(c *Config) { c.RelayPort = 0 }},
		{"port too large", func(c *Config) { c.RelayPort = 70000 }},
		{"queue size", func(c *Config) { c.SendQueueSize = 0 }},
		{"negative ping", func(c *Config) { c.PingInterval = -time.Second }},
		{"turn server", func(c *Config) { c.ICEServers = []string{"turn:turn.example"} }},
		{"unknown role", func(c *Config) { c.Role = "host" }},
		{"relay listen", func(c *Config) { c.Role = RoleRelay; c.ListenAddr = "3000" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
