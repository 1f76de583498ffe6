package ginserver

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	gin "github.com/gin-gonic/gin"

	"roomies/internal/app/lifecycle"
	"roomies/internal/domain/shared/actor"
	"roomies/internal/domain/shared/money"
)

// BookingHandler serves the renter side of the lifecycle and the shared booking reads.
type BookingHandler struct {
	Service  LifecycleService
	Currency string
	Logger   *slog.Logger
}

type createBookingRequest struct {
	RoomID                 string `json:"room_id" binding:"required"`
	MoveInDate             string `json:"move_in_date"`
	ContractDurationMonths int    `json:"contract_duration_months"`
}

type paymentRequest struct {
	Amount json.Number `json:"amount"`
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func (h BookingHandler) Create(c *gin.Context) {
	user, ok := requireRole(c, actor.Renter)
	if !ok {
		return
	}
	var req createBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	moveIn, err := parseDate(req.MoveInDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	view, err := h.Service.CreateBooking(c.Request.Context(), lifecycle.CreateBookingInput{
		RenterID:               user.ID,
		RoomID:                 strings.TrimSpace(req.RoomID),
		MoveInDate:             moveIn,
		ContractDurationMonths: req.ContractDurationMonths,
		IdempotencyKey:         idempotencyKey(c),
	})
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusCreated, view)
}

func (h BookingHandler) Get(c *gin.Context) {
	user, ok := requireRole(c)
	if !ok {
		return
	}
	view, err := h.Service.GetBooking(c.Request.Context(), c.Param("id"), user)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h BookingHandler) Mine(c *gin.Context) {
	user, ok := requireRole(c, actor.Renter)
	if !ok {
		return
	}
	list, err := h.Service.ListRenterBookings(c.Request.Context(), user.ID)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h BookingHandler) PayBookingFee(c *gin.Context) {
	user, ok := requireRole(c, actor.Renter)
	if !ok {
		return
	}
	view, err := h.Service.PayBookingFee(c.Request.Context(), c.Param("id"), user, idempotencyKey(c))
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h BookingHandler) PayRemaining(c *gin.Context) {
	user, ok := requireRole(c, actor.Renter)
	if !ok {
		return
	}
	var req paymentRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	var amount *money.Money
	if req.Amount != "" {
		m, err := money.ParseMajor(req.Amount.String(), h.currency())
		if err != nil {
			respondError(c, h.Logger, err)
			return
		}
		amount = &m
	}
	view, err := h.Service.PayRemaining(c.Request.Context(), c.Param("id"), user, idempotencyKey(c), amount)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h BookingHandler) Cancel(c *gin.Context) {
	user, ok := requireRole(c, actor.Renter, actor.Owner, actor.System)
	if !ok {
		return
	}
	var req cancelRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	result, err := h.Service.Cancel(c.Request.Context(), c.Param("id"), user, strings.TrimSpace(req.Reason), idempotencyKey(c))
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h BookingHandler) SignContract(c *gin.Context) {
	user, ok := requireRole(c, actor.Renter)
	if !ok {
		return
	}
	view, err := h.Service.SignContract(c.Request.Context(), c.Param("id"), user)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h BookingHandler) Settlement(c *gin.Context) {
	user, ok := requireRole(c)
	if !ok {
		return
	}
	view, err := h.Service.Settlement(c.Request.Context(), c.Param("id"), user)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h BookingHandler) currency() string {
	if h.Currency == "" {
		return money.DefaultCurrency
	}
	return h.Currency
}

func idempotencyKey(c *gin.Context) string {
	return strings.TrimSpace(c.GetHeader("Idempotency-Key"))
}

func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("move_in_date must be YYYY-MM-DD: %q", raw)
	}
	return t, nil
}

var _ BookingHTTP = BookingHandler{}
