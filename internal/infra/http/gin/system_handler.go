package ginserver

import (
	"log/slog"
	"net/http"

	gin "github.com/gin-gonic/gin"

	"roomies/internal/domain/shared/actor"
)

// SystemHandler exposes the operations the platform triggers itself: completion after the
// contract period and settlement bookkeeping.
type SystemHandler struct {
	Service LifecycleService
	Logger  *slog.Logger
}

func (h SystemHandler) Complete(c *gin.Context) {
	if _, ok := requireRole(c, actor.System); !ok {
		return
	}
	view, err := h.Service.MarkCompleted(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h SystemHandler) CommissionPaid(c *gin.Context) {
	if _, ok := requireRole(c, actor.System); !ok {
		return
	}
	view, err := h.Service.MarkCommissionPaid(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h SystemHandler) RefundProcessed(c *gin.Context) {
	if _, ok := requireRole(c, actor.System); !ok {
		return
	}
	view, err := h.Service.MarkRefundProcessed(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

var _ SystemHTTP = SystemHandler{}
