// Package comwechat relays a desktop WeChat account, driven through the
// ComWeChat hook, to the messaging middleware.
package comwechat

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/honus/comwechat/internal/channel"
	"github.com/honus/comwechat/internal/config"
	"github.com/honus/comwechat/internal/hook"
)

// Type is the registered channel type for ComWeChat.
const Type channel.ChannelType = "honus.comwechat"

// ErrNotConnected is returned for events and sends that arrive before the account is logged in.
var ErrNotConnected = errors.New("comwechat: not connected")

// ErrMalformedEvent wraps events that fail validation or parsing.
var ErrMalformedEvent = errors.New("comwechat: malformed event")

// Options configures the adapter.
type Options struct {
	// Dir is the local view of the WeChat files directory, ending with a slash.
	Dir string
	// BasePath is the same directory as seen by the hook. Empty uses the hook's own report.
	BasePath        string
	PathMode        string
	Version         string
	CallbackURL     string
	QRCodeInterval  time.Duration
	FileTimeout     time.Duration
	DedupTTL        time.Duration
	DedupCapacity   int
	RefreshInterval time.Duration
	CardAddFriend   bool
	CommandSecret   string
	CommandTokenTTL time.Duration
}

// OptionsFromConfig maps the TOML configuration onto adapter options.
func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		Dir:             cfg.WeChat.Dir,
		BasePath:        cfg.WeChat.BasePath,
		PathMode:        cfg.WeChat.PathMode,
		Version:         cfg.Hook.Version,
		CallbackURL:     cfg.Hook.CallbackURL,
		QRCodeInterval:  cfg.WeChat.QRCodeInterval(),
		FileTimeout:     cfg.Pipeline.FileTimeout(),
		DedupTTL:        cfg.Pipeline.DedupTTL(),
		DedupCapacity:   cfg.Pipeline.DedupCapacity,
		RefreshInterval: cfg.Pipeline.RefreshInterval(),
		CardAddFriend:   cfg.Pipeline.CardAddFriend,
		CommandSecret:   cfg.Commands.Secret,
		CommandTokenTTL: cfg.Commands.TokenDuration(),
	}
}

// Adapter implements channel.Adapter, channel.Sender, channel.Receiver,
// channel.ChatLister and channel.CommandInvoker for ComWeChat.
type Adapter struct {
	logger *slog.Logger
	opts   Options
	client hook.Client

	directory  *Directory
	normalizer *Normalizer
	dedup      *Dedup
	pending    *PendingFiles
	reaper     *Reaper
	transcoder Transcoder
	translator PathTranslator
	wsl        bool

	pollInterval time.Duration
	now          func() time.Time

	mu       sync.RWMutex
	self     hook.SelfInfo
	basePath string
	coord    channel.Coordinator
}

// NewAdapter creates a ComWeChat adapter talking to the hook through client.
func NewAdapter(log *slog.Logger, client hook.Client, opts Options) (*Adapter, error) {
	if log == nil {
		log = slog.Default()
	}
	if client == nil {
		return nil, errors.New("hook client is required")
	}
	if strings.TrimSpace(opts.Dir) == "" {
		return nil, errors.New("wechat dir is required")
	}
	if !strings.HasSuffix(opts.Dir, "/") {
		opts.Dir += "/"
	}
	if opts.QRCodeInterval <= 0 {
		opts.QRCodeInterval = 10 * time.Second
	}
	if opts.CommandTokenTTL <= 0 {
		opts.CommandTokenTTL = 24 * time.Hour
	}
	logger := log.With(slog.String("adapter", "comwechat"))
	if strings.TrimSpace(opts.CommandSecret) == "" {
		opts.CommandSecret = uuid.NewString()
		logger.Warn("commands secret not configured, command buttons will not survive a restart")
	}

	dedup, err := NewDedup(opts.DedupCapacity, opts.DedupTTL)
	if err != nil {
		return nil, err
	}
	a := &Adapter{
		logger:       logger,
		opts:         opts,
		client:       client,
		directory:    NewDirectory(logger, client),
		dedup:        dedup,
		reaper:       NewReaper(logger, opts.FileTimeout),
		transcoder:   FFmpegTranscoder{},
		pollInterval: time.Second,
		now:          time.Now,
	}
	switch opts.PathMode {
	case config.PathModeWSL:
		a.wsl = true
	case config.PathModeNative:
		a.wsl = false
	default:
		a.wsl = DetectWSL()
	}
	a.normalizer = NewNormalizer(a.directory, a.selfID)
	a.pending = NewPendingFiles(logger, opts.FileTimeout, a.fetchVoice, a.deliverPending)
	return a, nil
}

// Type returns the ComWeChat channel type.
func (a *Adapter) Type() channel.ChannelType {
	return Type
}

// Descriptor returns the ComWeChat channel metadata.
func (a *Adapter) Descriptor() channel.Descriptor {
	return channel.Descriptor{
		Type:        Type,
		DisplayName: "ComWechatChannel",
		Emoji:       "💻",
		Capabilities: channel.ChannelCapabilities{
			MessageTypes: []channel.MessageType{
				channel.MessageText,
				channel.MessageSticker,
				channel.MessageImage,
				channel.MessageLink,
				channel.MessageFile,
				channel.MessageVideo,
				channel.MessageAnimation,
				channel.MessageVoice,
			},
			Reply:    true,
			Commands: true,
		},
	}
}

// Directory exposes the contact cache.
func (a *Adapter) Directory() *Directory {
	return a.directory
}

// Pending returns the number of messages waiting for their payload.
func (a *Adapter) Pending() int {
	return a.pending.Len()
}

// StagedFiles returns the number of outbound files waiting for cleanup.
func (a *Adapter) StagedFiles() int {
	return a.reaper.Len()
}

// LoggedIn asks the hook whether the account is logged in.
func (a *Adapter) LoggedIn(ctx context.Context) (bool, error) {
	return a.client.IsLogin(ctx)
}

func (a *Adapter) selfID() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.self.Wxid
}

func (a *Adapter) coordinator() channel.Coordinator {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.coord
}

// Connect waits for the account to log in, prepares the hook and starts the
// background workers. The returned connection stops them.
func (a *Adapter) Connect(ctx context.Context, coord channel.Coordinator) (channel.Connection, error) {
	if coord == nil {
		return nil, errors.New("coordinator is required")
	}
	if err := a.waitForLogin(ctx); err != nil {
		return nil, err
	}
	info, err := a.client.SelfInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("get self info: %w", err)
	}
	basePath := strings.TrimSpace(a.opts.BasePath)
	if basePath == "" {
		basePath = info.FilePath
	}
	a.mu.Lock()
	a.self = info
	a.basePath = basePath
	a.coord = coord
	a.mu.Unlock()

	a.bootstrap(ctx)
	if err := a.directory.Refresh(ctx); err != nil {
		a.logger.Warn("initial directory refresh failed", slog.Any("error", err))
	}

	connCtx, cancel := context.WithCancel(ctx)
	stopRefresh, err := a.directory.Schedule(connCtx, a.opts.RefreshInterval)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("schedule refresh: %w", err)
	}
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		a.pending.Run(connCtx, a.pollInterval)
	}()
	go func() {
		defer wg.Done()
		a.reaper.Run(connCtx, a.pollInterval)
	}()
	a.logger.Info("connected", slog.String("wxid", info.Wxid), slog.String("nickname", info.Nickname), slog.Bool("wsl", a.wsl))

	return channel.NewConnection(Type, func(stopCtx context.Context) error {
		cancel()
		stopRefresh()
		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-stopCtx.Done():
			return stopCtx.Err()
		}
		a.mu.Lock()
		a.coord = nil
		a.mu.Unlock()
		return nil
	}), nil
}

// waitForLogin polls the hook until the account is logged in, saving the
// login QR code to a temporary file whenever one is offered.
func (a *Adapter) waitForLogin(ctx context.Context) error {
	qrPath := filepath.Join(os.TempDir(), "comwechat-qrcode.png")
	for {
		loggedIn, err := a.client.IsLogin(ctx)
		switch {
		case err != nil:
			a.logger.Error("login check failed", slog.Any("error", err))
		case loggedIn:
			a.logger.Info("login ok")
			return nil
		default:
			img, err := a.client.QRCode(ctx)
			if err != nil {
				a.logger.Error("get qrcode failed", slog.Any("error", err))
				break
			}
			if img == nil {
				a.logger.Info("already logged in")
				return nil
			}
			if err := os.WriteFile(qrPath, img, 0o600); err != nil {
				a.logger.Error("save qrcode failed", slog.Any("error", err))
				break
			}
			a.logger.Info("scan the qrcode to log in", slog.String("path", qrPath))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(a.opts.QRCodeInterval):
		}
	}
}

// bootstrap pins the client version, points the hook's save paths at the
// shared directory under WSL, and registers our callback. Failures are logged only.
func (a *Adapter) bootstrap(ctx context.Context) {
	if v := strings.TrimSpace(a.opts.Version); v != "" {
		res, err := a.client.SetVersion(ctx, v)
		if err != nil || res.Failed() {
			a.logger.Error("set wechat version failed", slog.String("version", v), slog.Any("error", err))
		} else {
			a.logger.Info("wechat version set", slog.String("version", v))
		}
	}
	if a.wsl {
		winPath := WSLPathTranslator{}.Translate(ctx, strings.TrimRight(a.opts.Dir, "/"), "", "")
		for _, api := range []hook.APIType{hook.APIImageSavePath, hook.APIVoiceSavePath} {
			res, err := a.client.SetSavePath(ctx, api, winPath)
			if err != nil || !res.Succeeded() {
				a.logger.Error("set hook save path failed", slog.Int("type", int(api)), slog.String("path", winPath), slog.Any("error", err))
			}
		}
	}
	if cb := strings.TrimSpace(a.opts.CallbackURL); cb != "" {
		res, err := a.client.StartHook(ctx, cb)
		if err != nil || res.Failed() {
			a.logger.Error("start message hook failed", slog.String("callback", cb), slog.Any("error", err))
		}
	}
}

func (a *Adapter) pathTranslator() PathTranslator {
	if a.translator != nil {
		return a.translator
	}
	if a.wsl {
		return WSLPathTranslator{}
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	return BasePathTranslator{BasePath: a.basePath}
}

func (a *Adapter) fetchVoice(ctx context.Context, msgid string) ([]byte, bool, error) {
	blob, ok, err := hook.VoiceBlob(ctx, a.client, msgid)
	if err != nil || !ok {
		return nil, false, err
	}
	data, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return nil, false, fmt.Errorf("decode voice blob: %w", err)
	}
	return data, true, nil
}

// Chats lists friends and groups, loading the directory on first use.
func (a *Adapter) Chats(ctx context.Context) ([]channel.Chat, error) {
	if !a.directory.Loaded() {
		if err := a.directory.Refresh(ctx); err != nil {
			return nil, err
		}
	}
	return a.directory.Chats(), nil
}

// Chat returns a single friend or group by id.
func (a *Adapter) Chat(ctx context.Context, id string) (channel.Chat, error) {
	chats, err := a.Chats(ctx)
	if err != nil {
		return channel.Chat{}, err
	}
	group := strings.Contains(id, "@chatroom")
	for _, c := range chats {
		if c.ID == id && (c.Type == channel.ConversationGroup) == group {
			return c, nil
		}
	}
	return channel.Chat{}, channel.ErrChatNotFound
}
