package ginserver

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	gin "github.com/gin-gonic/gin"

	"roomies/internal/app/dto"
	"roomies/internal/app/lifecycle"
	"roomies/internal/domain/shared/actor"
	"roomies/internal/domain/shared/money"
	"roomies/internal/infra/config"
	"roomies/internal/infra/obs"
)

// LifecycleService is the slice of lifecycle.Service the HTTP layer drives.
type LifecycleService interface {
	CreateBooking(ctx context.Context, in lifecycle.CreateBookingInput) (dto.BookingView, error)
	PayBookingFee(ctx context.Context, bookingID string, by actor.Actor, idempotencyKey string) (dto.BookingView, error)
	OwnerDecide(ctx context.Context, bookingID string, by actor.Actor, approve bool, reason, idempotencyKey string) (dto.BookingView, error)
	PayRemaining(ctx context.Context, bookingID string, by actor.Actor, idempotencyKey string, amount *money.Money) (dto.BookingView, error)
	Cancel(ctx context.Context, bookingID string, by actor.Actor, reason, idempotencyKey string) (dto.CancellationView, error)
	MarkCompleted(ctx context.Context, bookingID string) (dto.BookingView, error)
	SignContract(ctx context.Context, bookingID string, by actor.Actor) (dto.BookingView, error)
	MarkCommissionPaid(ctx context.Context, bookingID string) (dto.CommissionView, error)
	MarkRefundProcessed(ctx context.Context, bookingID string) (dto.RefundView, error)
	GetBooking(ctx context.Context, bookingID string, by actor.Actor) (dto.BookingView, error)
	ListRenterBookings(ctx context.Context, renterID string) (dto.BookingCollection, error)
	ListOwnerBookings(ctx context.Context, ownerID, state string) (dto.BookingCollection, error)
	QuoteRoom(ctx context.Context, roomID string) (dto.QuoteView, error)
	Settlement(ctx context.Context, bookingID string, by actor.Actor) (dto.SettlementView, error)
}

type BookingHTTP interface {
	Create(c *gin.Context)
	Get(c *gin.Context)
	Mine(c *gin.Context)
	PayBookingFee(c *gin.Context)
	PayRemaining(c *gin.Context)
	Cancel(c *gin.Context)
	SignContract(c *gin.Context)
	Settlement(c *gin.Context)
}

type OwnerHTTP interface {
	List(c *gin.Context)
	Decide(c *gin.Context)
}

type RoomHTTP interface {
	Quote(c *gin.Context)
}

type SystemHTTP interface {
	Complete(c *gin.Context)
	CommissionPaid(c *gin.Context)
	RefundProcessed(c *gin.Context)
}

type Handlers struct {
	Booking BookingHTTP
	Owner   OwnerHTTP
	Room    RoomHTTP
	System  SystemHTTP
}

// HandlersFor builds every route handler over one service.
func HandlersFor(svc LifecycleService, currency string, obsMW obs.Middleware) Handlers {
	return Handlers{
		Booking: BookingHandler{Service: svc, Currency: currency, Logger: obsMW.Logger},
		Owner:   OwnerHandler{Service: svc, Logger: obsMW.Logger},
		Room:    RoomHandler{Service: svc, Logger: obsMW.Logger},
		System:  SystemHandler{Service: svc, Logger: obsMW.Logger},
	}
}

func NewServer(cfg config.Config, obsMW obs.Middleware, health obs.HealthHandlers, h Handlers) *http.Server {
	mode := configureGinMode(cfg.Env)
	if obsMW.Logger != nil {
		obsMW.Logger.Info("gin initialized", "mode", mode)
	}
	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           NewRouter(obsMW, health, h),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func NewRouter(obsMW obs.Middleware, health obs.HealthHandlers, h Handlers) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(obsMW.RequestID())
	router.Use(obsMW.LoggerMiddleware())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Idempotency-Key", headerUserID, headerUserRole},
		ExposeHeaders: []string{
			"Content-Length",
			"Content-Type",
			"X-Request-ID",
		},
		MaxAge: 12 * time.Hour,
	}))
	router.Use(GatewayIdentity())

	router.GET("/livez", health.Livez)
	router.GET("/readyz", health.Readyz)

	api := router.Group("/api/v1")
	if h.Booking != nil {
		api.POST("/bookings", h.Booking.Create)
		api.GET("/bookings/:id", h.Booking.Get)
		api.GET("/bookings/:id/settlement", h.Booking.Settlement)
		api.POST("/bookings/:id/booking-fee", h.Booking.PayBookingFee)
		api.POST("/bookings/:id/payment", h.Booking.PayRemaining)
		api.POST("/bookings/:id/cancel", h.Booking.Cancel)
		api.POST("/bookings/:id/contract/sign", h.Booking.SignContract)
		api.GET("/me/bookings", h.Booking.Mine)
	}
	if h.Owner != nil {
		ownerGroup := api.Group("/owner/bookings")
		ownerGroup.GET("", h.Owner.List)
		ownerGroup.POST("/:id/decision", h.Owner.Decide)
	}
	if h.Room != nil {
		api.GET("/rooms/:id/quote", h.Room.Quote)
	}
	if h.System != nil {
		systemGroup := api.Group("/system/bookings")
		systemGroup.POST("/:id/complete", h.System.Complete)
		systemGroup.POST("/:id/commission/paid", h.System.CommissionPaid)
		systemGroup.POST("/:id/refund/processed", h.System.RefundProcessed)
	}
	return router
}

func configureGinMode(env string) string {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "debug", "dev", "local":
		gin.SetMode(gin.DebugMode)
		return gin.DebugMode
	case "test", "testing":
		gin.SetMode(gin.TestMode)
		return gin.TestMode
	default:
		gin.SetMode(gin.ReleaseMode)
		return gin.ReleaseMode
	}
}

var _ LifecycleService = (*lifecycle.Service)(nil)
