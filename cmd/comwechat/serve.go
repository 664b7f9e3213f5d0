package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/honus/comwechat/internal/channel"
	"github.com/honus/comwechat/internal/channel/adapters/comwechat"
	"github.com/honus/comwechat/internal/config"
	"github.com/honus/comwechat/internal/handlers"
	channelchecker "github.com/honus/comwechat/internal/healthcheck/checkers/channel"
	hookchecker "github.com/honus/comwechat/internal/healthcheck/checkers/hook"
	relaychecker "github.com/honus/comwechat/internal/healthcheck/checkers/relay"
	"github.com/honus/comwechat/internal/hook"
	"github.com/honus/comwechat/internal/logger"
	"github.com/honus/comwechat/internal/relay"
	"github.com/honus/comwechat/internal/server"
)

func runServe() {
	fx.New(
		fx.Provide(
			provideConfig,
			provideLogger,
			provideHookClient,
			provideAdapter,
			provideRelayHub,
			provideChannelRegistry,
			provideChannelManager,
			provideServerHandler(handlers.NewPingHandler),
			provideServerHandler(provideHookHandler),
			provideServerHandler(provideRelayHandler),
			provideServerHandler(provideChatsHandler),
			provideServerHandler(provideChannelsHandler),
			provideServerHandler(provideHealthHandler),
			provideServer,
		),
		fx.Invoke(
			startChannelManager,
			startServer,
		),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
		}),
	).Run()
}

func provideServerHandler(fn any) any {
	return fx.Annotate(
		fn,
		fx.As(new(server.Handler)),
		fx.ResultTags(`group:"server_handlers"`),
	)
}

func provideConfig() (config.Config, error) {
	cfgPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func provideHookClient(log *slog.Logger, cfg config.Config) hook.Client {
	return hook.NewHTTPClient(log, cfg.Hook.BaseURL, cfg.Hook.Timeout())
}

func provideAdapter(log *slog.Logger, client hook.Client, cfg config.Config) (*comwechat.Adapter, error) {
	return comwechat.NewAdapter(log, client, comwechat.OptionsFromConfig(cfg))
}

func provideRelayHub(log *slog.Logger) *relay.Hub {
	return relay.NewHub(log, nil, relay.Options{DefaultChannel: comwechat.Type})
}

func provideChannelRegistry(adapter *comwechat.Adapter) (*channel.Registry, error) {
	registry := channel.NewRegistry()
	if err := registry.Register(adapter); err != nil {
		return nil, fmt.Errorf("register comwechat adapter: %w", err)
	}
	return registry, nil
}

// provideChannelManager closes the loop between the hub and the manager:
// the hub is the manager's coordinator and the manager dispatches hub requests.
func provideChannelManager(log *slog.Logger, registry *channel.Registry, hub *relay.Hub) *channel.Manager {
	manager := channel.NewManager(log, registry, hub)
	hub.SetDispatcher(manager)
	return manager
}

func provideHookHandler(log *slog.Logger, adapter *comwechat.Adapter) *handlers.HookHandler {
	return handlers.NewHookHandler(log, adapter)
}

func provideRelayHandler(log *slog.Logger, hub *relay.Hub) *handlers.RelayHandler {
	return handlers.NewRelayHandler(log, hub)
}

func provideChatsHandler(adapter *comwechat.Adapter) *handlers.ChatsHandler {
	return handlers.NewChatsHandler(adapter)
}

func provideChannelsHandler(manager *channel.Manager) *handlers.ChannelsHandler {
	return handlers.NewChannelsHandler(manager.Registry())
}

func provideHealthHandler(log *slog.Logger, adapter *comwechat.Adapter, manager *channel.Manager, hub *relay.Hub) *handlers.HealthHandler {
	return handlers.NewHealthHandler(
		hookchecker.NewChecker(log, adapter, 0),
		channelchecker.NewChecker(log, manager),
		relaychecker.NewChecker(hub),
	)
}

type serverParams struct {
	fx.In
	Logger         *slog.Logger
	Config         config.Config
	ServerHandlers []server.Handler `group:"server_handlers"`
}

func provideServer(params serverParams) *server.Server {
	return server.NewServer(params.Logger, params.Config.Server.Addr, params.Config.Relay.Secret, params.ServerHandlers...)
}

func startChannelManager(lc fx.Lifecycle, channelManager *channel.Manager) {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error { channelManager.Start(ctx); return nil },
		OnStop:  func(stopCtx context.Context) error { cancel(); return channelManager.Shutdown(stopCtx) },
	})
}

func startServer(lc fx.Lifecycle, logger *slog.Logger, srv *server.Server, shutdowner fx.Shutdowner) {
	fmt.Printf("Starting comwechat %s\n", version)
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Stop(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server stop: %w", err)
			}
			return nil
		},
	})
}
