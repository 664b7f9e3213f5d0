package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/honus/comwechat/internal/channel"
)

// ChatDirectory lists the chats of the relayed account.
type ChatDirectory interface {
	Chats(ctx context.Context) ([]channel.Chat, error)
	Chat(ctx context.Context, id string) (channel.Chat, error)
}

type ChatsHandler struct {
	directory ChatDirectory
}

func NewChatsHandler(directory ChatDirectory) *ChatsHandler {
	return &ChatsHandler{directory: directory}
}

func (h *ChatsHandler) Register(e *echo.Echo) {
	group := e.Group("/chats")
	group.GET("", h.List)
	group.GET("/:id", h.Get)
}

// List returns friends and groups, optionally filtered by ?type=private|group.
func (h *ChatsHandler) List(c echo.Context) error {
	chats, err := h.directory.Chats(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	kind := strings.TrimSpace(c.QueryParam("type"))
	if kind == "" {
		return c.JSON(http.StatusOK, chats)
	}
	filtered := make([]channel.Chat, 0, len(chats))
	for _, chat := range chats {
		if string(chat.Type) == kind {
			filtered = append(filtered, chat)
		}
	}
	return c.JSON(http.StatusOK, filtered)
}

func (h *ChatsHandler) Get(c echo.Context) error {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "chat id is required")
	}
	chat, err := h.directory.Chat(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, channel.ErrChatNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return c.JSON(http.StatusOK, chat)
}
