package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/honus/comwechat/internal/channel"
)

// ChannelCatalog exposes the registered channel adapters.
type ChannelCatalog interface {
	ListDescriptors() []channel.Descriptor
	ParseChannelType(raw string) (channel.ChannelType, error)
	Get(channelType channel.ChannelType) (channel.Adapter, bool)
}

type ChannelsHandler struct {
	catalog ChannelCatalog
}

func NewChannelsHandler(catalog ChannelCatalog) *ChannelsHandler {
	return &ChannelsHandler{catalog: catalog}
}

func (h *ChannelsHandler) Register(e *echo.Echo) {
	group := e.Group("/channels")
	group.GET("", h.List)
	group.GET("/:type", h.Get)
}

// List returns the descriptor of every registered channel, so clients can
// check which message types a channel accepts before sending.
func (h *ChannelsHandler) List(c echo.Context) error {
	return c.JSON(http.StatusOK, h.catalog.ListDescriptors())
}

func (h *ChannelsHandler) Get(c echo.Context) error {
	ct, err := h.catalog.ParseChannelType(c.Param("type"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	adapter, ok := h.catalog.Get(ct)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "unsupported channel type: "+ct.String())
	}
	return c.JSON(http.StatusOK, adapter.Descriptor())
}
