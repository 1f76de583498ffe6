package ginserver

import (
	"log/slog"
	"net/http"
	"strings"

	gin "github.com/gin-gonic/gin"

	"roomies/internal/domain/shared/actor"
)

type OwnerHandler struct {
	Service LifecycleService
	Logger  *slog.Logger
}

type decisionRequest struct {
	Approve *bool  `json:"approve" binding:"required"`
	Reason  string `json:"reason"`
}

func (h OwnerHandler) List(c *gin.Context) {
	owner, ok := requireRole(c, actor.Owner)
	if !ok {
		return
	}
	list, err := h.Service.ListOwnerBookings(c.Request.Context(), owner.ID, strings.TrimSpace(c.Query("state")))
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h OwnerHandler) Decide(c *gin.Context) {
	owner, ok := requireRole(c, actor.Owner)
	if !ok {
		return
	}
	var req decisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	view, err := h.Service.OwnerDecide(c.Request.Context(), c.Param("id"), owner, *req.Approve, strings.TrimSpace(req.Reason), idempotencyKey(c))
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

var _ OwnerHTTP = OwnerHandler{}
