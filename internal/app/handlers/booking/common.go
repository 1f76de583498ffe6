package booking

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"roomies/internal/app/dto"
	"roomies/internal/app/outbox"
	"roomies/internal/app/uow"
	domainbooking "roomies/internal/domain/booking"
	"roomies/internal/domain/shared/clock"
)

var (
	ErrBookingIDRequired = errors.New("booking id required")
	ErrActorRequired     = errors.New("actor required")
	ErrRoomIDRequired    = errors.New("room id required")
)

// Deps is shared by every booking handler.
type Deps struct {
	UoWFactory uow.UoWFactory
	Clock      clock.Clock
	Encoder    outbox.EventEncoder
	NewID      func() string
	Logger     *slog.Logger
}

func (d Deps) now() time.Time {
	if d.Clock == nil {
		return time.Now().UTC()
	}
	return d.Clock.Now().UTC()
}

func (d Deps) newID() string {
	if d.NewID != nil {
		return d.NewID()
	}
	return uuid.NewString()
}

func (d Deps) encoder() outbox.EventEncoder {
	if d.Encoder != nil {
		return d.Encoder
	}
	return outbox.JSONEventEncoder{}
}

func (d Deps) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// persist saves the booking and queues its events in the same unit.
func (d Deps) persist(ctx context.Context, unit uow.UnitOfWork, b *domainbooking.Booking) error {
	if err := unit.Bookings().Save(ctx, b); err != nil {
		return err
	}
	return outbox.RecordDomainEvents(ctx, unit.Outbox(), d.encoder(), b.DrainEvents())
}

func load(ctx context.Context, unit uow.UnitOfWork, id string) (*domainbooking.Booking, error) {
	return unit.Bookings().ByID(ctx, domainbooking.BookingID(id))
}

func view(b *domainbooking.Booking) *dto.BookingView {
	v := dto.MapBooking(b)
	return &v
}

func bookingLock(id string) string { return "booking:" + id }
