package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/honus/comwechat/internal/auth"
)

// RelayServer serves a middleware websocket client.
type RelayServer interface {
	ServeHTTP(ctx context.Context, w http.ResponseWriter, r *http.Request, name string) error
}

type RelayHandler struct {
	logger *slog.Logger
	hub    RelayServer
}

func NewRelayHandler(log *slog.Logger, hub RelayServer) *RelayHandler {
	if log == nil {
		log = slog.Default()
	}
	return &RelayHandler{
		logger: log.With(slog.String("handler", "relay")),
		hub:    hub,
	}
}

func (h *RelayHandler) Register(e *echo.Echo) {
	e.GET("/relay", h.Connect)
}

// Connect upgrades to a websocket and blocks until the client leaves.
// Without a relay secret the client is anonymous.
func (h *RelayHandler) Connect(c echo.Context) error {
	name := "anonymous"
	if c.Get("user") != nil {
		subject, err := auth.SubjectFromContext(c)
		if err != nil {
			return err
		}
		name = subject
	}
	if err := h.hub.ServeHTTP(c.Request().Context(), c.Response(), c.Request(), name); err != nil {
		h.logger.Warn("relay connect failed", slog.String("client", name), slog.Any("error", err))
		return nil
	}
	return nil
}
