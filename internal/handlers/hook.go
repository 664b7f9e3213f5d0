package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/honus/comwechat/internal/channel/adapters/comwechat"
	"github.com/honus/comwechat/internal/hook"
)

// EventSink consumes raw hook events.
type EventSink interface {
	HandleEvent(ctx context.Context, raw hook.Event) error
}

// HookHandler receives the message callbacks the hook posts after StartHook.
type HookHandler struct {
	logger *slog.Logger
	sink   EventSink
}

func NewHookHandler(log *slog.Logger, sink EventSink) *HookHandler {
	if log == nil {
		log = slog.Default()
	}
	return &HookHandler{
		logger: log.With(slog.String("handler", "hook")),
		sink:   sink,
	}
}

func (h *HookHandler) Register(e *echo.Echo) {
	e.POST("/hook/events", h.Receive)
}

// Receive accepts one event record. Malformed records are rejected with 400
// so they show up in the hook's own log; events arriving before login get 503.
func (h *HookHandler) Receive(c echo.Context) error {
	var raw hook.Event
	if err := c.Bind(&raw); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	// The hook does not wait for the relay, so delivery is detached from the request.
	ctx := context.WithoutCancel(c.Request().Context())
	if err := h.sink.HandleEvent(ctx, raw); err != nil {
		switch {
		case errors.Is(err, comwechat.ErrMalformedEvent):
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		case errors.Is(err, comwechat.ErrNotConnected):
			return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
		default:
			h.logger.Error("deliver hook event failed", slog.String("msgid", string(raw.MsgID)), slog.Any("error", err))
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
