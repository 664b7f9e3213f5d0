package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWhenMissing(t *testing.T) {
	t.Parallel()

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultHookBaseURL, cfg.Hook.BaseURL)
	assert.Equal(t, "127.0.0.1:18889", cfg.Server.Addr)
	assert.Equal(t, DefaultWeChatVersion, cfg.Hook.Version)
	assert.Equal(t, PathModeAuto, cfg.WeChat.PathMode)
	assert.Equal(t, 120*time.Second, cfg.Pipeline.FileTimeout())
	assert.Equal(t, 120*time.Second, cfg.Pipeline.DedupTTL())
	assert.Equal(t, 200, cfg.Pipeline.DedupCapacity)
	assert.Equal(t, 1800*time.Second, cfg.Pipeline.RefreshInterval())
	assert.Equal(t, 10*time.Second, cfg.WeChat.QRCodeInterval())
	assert.Equal(t, 24*time.Hour, cfg.Commands.TokenDuration())
}

func TestLoadFromFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[wechat]
dir = "/mnt/c/Users/me/Documents/WeChat Files"
path_mode = "WSL"

[pipeline]
file_timeout_seconds = 30
dedup_capacity = 0

[commands]
secret = "s3cret"
token_ttl = "1h"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/mnt/c/Users/me/Documents/WeChat Files/", cfg.WeChat.Dir)
	assert.Equal(t, PathModeWSL, cfg.WeChat.PathMode)
	assert.Equal(t, 30*time.Second, cfg.Pipeline.FileTimeout())
	assert.Equal(t, DefaultDedupCapacity, cfg.Pipeline.DedupCapacity)
	assert.Equal(t, "s3cret", cfg.Commands.Secret)
	assert.Equal(t, time.Hour, cfg.Commands.TokenDuration())
}

func TestLoadRejectsUnknownPathMode(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[wechat]\npath_mode = \"cygwin\"\n"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRequiresRelaySecretOffLoopback(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		content string
		wantErr bool
	}{
		{name: "all interfaces", content: "[server]\naddr = \":18889\"\n", wantErr: true},
		{name: "lan address", content: "[server]\naddr = \"192.168.1.10:18889\"\n", wantErr: true},
		{name: "all interfaces with secret", content: "[server]\naddr = \"0.0.0.0:18889\"\n[relay]\nsecret = \"x\"\n"},
		{name: "localhost", content: "[server]\naddr = \"localhost:9000\"\n"},
		{name: "ipv6 loopback", content: "[server]\naddr = \"[::1]:9000\"\n"},
		{name: "empty falls back", content: "[server]\naddr = \"\"\n"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			path := filepath.Join(t.TempDir(), "config.toml")
			require.NoError(t, os.WriteFile(path, []byte(tc.content), 0o600))
			cfg, err := Load(path)
			if tc.wantErr {
				assert.ErrorContains(t, err, "relay.secret is required")
				return
			}
			require.NoError(t, err)
			assert.True(t, IsLoopbackAddr(cfg.Server.Addr) || cfg.Relay.Secret != "")
		})
	}
}

func TestTokenDurationFallback(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 24*time.Hour, CommandsConfig{TokenTTL: "nope"}.TokenDuration())
	assert.Equal(t, 720*time.Hour, RelayConfig{TokenTTL: "-5m"}.TokenDuration())
}
