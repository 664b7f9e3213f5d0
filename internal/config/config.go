package config

import (
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	DefaultConfigPath      = "config.toml"
	DefaultHTTPAddr        = "127.0.0.1:18889"
	DefaultHookBaseURL     = "http://127.0.0.1:18888/api/"
	DefaultCallbackURL     = "http://127.0.0.1:18889/hook/events"
	DefaultWeChatVersion   = "3.9.12.55"
	DefaultHookTimeout     = 30
	DefaultQRCodeTimeout   = 10
	DefaultFileTimeout     = 120
	DefaultDedupTTL        = 120
	DefaultDedupCapacity   = 200
	DefaultRefreshInterval = 1800
	DefaultCommandTokenTTL = "24h"
	DefaultRelayTokenTTL   = "720h"
	PathModeAuto           = "auto"
	PathModeNative         = "native"
	PathModeWSL            = "wsl"
)

type Config struct {
	Log      LogConfig      `toml:"log"`
	Server   ServerConfig   `toml:"server"`
	Hook     HookConfig     `toml:"hook"`
	WeChat   WeChatConfig   `toml:"wechat"`
	Pipeline PipelineConfig `toml:"pipeline"`
	Commands CommandsConfig `toml:"commands"`
	Relay    RelayConfig    `toml:"relay"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
}

type HookConfig struct {
	BaseURL        string `toml:"base_url"`
	CallbackURL    string `toml:"callback_url"`
	Version        string `toml:"version"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

type WeChatConfig struct {
	// Dir is the local view of the WeChat files directory. Always ends with a slash after Load.
	Dir           string `toml:"dir"`
	BasePath      string `toml:"base_path"`
	PathMode      string `toml:"path_mode"`
	QRCodeTimeout int    `toml:"qrcode_timeout"`
}

type PipelineConfig struct {
	FileTimeoutSeconds     int  `toml:"file_timeout_seconds"`
	DedupTTLSeconds        int  `toml:"dedup_ttl_seconds"`
	DedupCapacity          int  `toml:"dedup_capacity"`
	RefreshIntervalSeconds int  `toml:"refresh_interval_seconds"`
	CardAddFriend          bool `toml:"card_add_friend"`
}

type CommandsConfig struct {
	Secret   string `toml:"secret"`
	TokenTTL string `toml:"token_ttl"`
}

type RelayConfig struct {
	Secret   string `toml:"secret"`
	TokenTTL string `toml:"token_ttl"`
}

func (c HookConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c WeChatConfig) QRCodeInterval() time.Duration {
	return time.Duration(c.QRCodeTimeout) * time.Second
}

func (c PipelineConfig) FileTimeout() time.Duration {
	return time.Duration(c.FileTimeoutSeconds) * time.Second
}

func (c PipelineConfig) DedupTTL() time.Duration {
	return time.Duration(c.DedupTTLSeconds) * time.Second
}

func (c PipelineConfig) RefreshInterval() time.Duration {
	return time.Duration(c.RefreshIntervalSeconds) * time.Second
}

// TokenDuration parses TokenTTL, falling back to DefaultCommandTokenTTL.
func (c CommandsConfig) TokenDuration() time.Duration {
	return parseDuration(c.TokenTTL, DefaultCommandTokenTTL)
}

func (c RelayConfig) TokenDuration() time.Duration {
	return parseDuration(c.TokenTTL, DefaultRelayTokenTTL)
}

func parseDuration(raw, fallback string) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil || d <= 0 {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func Load(path string) (Config, error) {
	cfg := Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: DefaultHTTPAddr,
		},
		Hook: HookConfig{
			BaseURL:        DefaultHookBaseURL,
			CallbackURL:    DefaultCallbackURL,
			Version:        DefaultWeChatVersion,
			TimeoutSeconds: DefaultHookTimeout,
		},
		WeChat: WeChatConfig{
			PathMode:      PathModeAuto,
			QRCodeTimeout: DefaultQRCodeTimeout,
		},
		Pipeline: PipelineConfig{
			FileTimeoutSeconds:     DefaultFileTimeout,
			DedupTTLSeconds:        DefaultDedupTTL,
			DedupCapacity:          DefaultDedupCapacity,
			RefreshIntervalSeconds: DefaultRefreshInterval,
		},
		Commands: CommandsConfig{
			TokenTTL: DefaultCommandTokenTTL,
		},
		Relay: RelayConfig{
			TokenTTL: DefaultRelayTokenTTL,
		},
	}

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			err = cfg.normalize()
			return cfg, err
		}
		return cfg, err
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}

	if err := cfg.normalize(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) normalize() error {
	if c.WeChat.Dir != "" && !strings.HasSuffix(c.WeChat.Dir, "/") {
		c.WeChat.Dir += "/"
	}
	switch strings.ToLower(strings.TrimSpace(c.WeChat.PathMode)) {
	case "", PathModeAuto:
		c.WeChat.PathMode = PathModeAuto
	case PathModeNative, PathModeWSL:
		c.WeChat.PathMode = strings.ToLower(strings.TrimSpace(c.WeChat.PathMode))
	default:
		return fmt.Errorf("invalid wechat.path_mode: %q", c.WeChat.PathMode)
	}
	if c.Pipeline.FileTimeoutSeconds <= 0 {
		c.Pipeline.FileTimeoutSeconds = DefaultFileTimeout
	}
	if c.Pipeline.DedupTTLSeconds <= 0 {
		c.Pipeline.DedupTTLSeconds = DefaultDedupTTL
	}
	if c.Pipeline.DedupCapacity <= 0 {
		c.Pipeline.DedupCapacity = DefaultDedupCapacity
	}
	if c.Pipeline.RefreshIntervalSeconds <= 0 {
		c.Pipeline.RefreshIntervalSeconds = DefaultRefreshInterval
	}
	if c.WeChat.QRCodeTimeout <= 0 {
		c.WeChat.QRCodeTimeout = DefaultQRCodeTimeout
	}
	if c.Hook.TimeoutSeconds <= 0 {
		c.Hook.TimeoutSeconds = DefaultHookTimeout
	}
	if strings.TrimSpace(c.Server.Addr) == "" {
		c.Server.Addr = DefaultHTTPAddr
	}
	// The hook callback never carries a token, so anything beyond loopback
	// must at least guard the relay.
	if !IsLoopbackAddr(c.Server.Addr) && strings.TrimSpace(c.Relay.Secret) == "" {
		return fmt.Errorf("server.addr %q is not a loopback address; relay.secret is required", c.Server.Addr)
	}
	return nil
}

// IsLoopbackAddr reports whether a host:port listen address binds loopback only.
func IsLoopbackAddr(addr string) bool {
	host, _, err := net.SplitHostPort(strings.TrimSpace(addr))
	if err != nil {
		return false
	}
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
