package ginserver

import (
	"log/slog"
	"net/http"

	gin "github.com/gin-gonic/gin"
)

// RoomHandler quotes the full cost of booking a room. Quotes are public.
type RoomHandler struct {
	Service LifecycleService
	Logger  *slog.Logger
}

func (h RoomHandler) Quote(c *gin.Context) {
	quote, err := h.Service.QuoteRoom(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, quote)
}

var _ RoomHTTP = RoomHandler{}
