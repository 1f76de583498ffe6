package booking

import (
	"context"

	"roomies/internal/app/commands"
	"roomies/internal/app/dto"
	"roomies/internal/app/handlers/support"
	"roomies/internal/app/uow"
	"roomies/internal/domain/shared/actor"
)

const CompleteBookingKey = "booking.complete"

// CompleteBookingCommand is issued by the completion sweep or an operator once the contract ran
// out.
type CompleteBookingCommand struct {
	BookingID string `json:"booking_id"`
}

func (c CompleteBookingCommand) Key() string        { return CompleteBookingKey }
func (c CompleteBookingCommand) LockKeys() []string { return []string{bookingLock(c.BookingID)} }

func (c CompleteBookingCommand) Validate() error {
	if c.BookingID == "" {
		return ErrBookingIDRequired
	}
	return nil
}

type CompleteBookingHandler struct {
	Deps
}

func (h *CompleteBookingHandler) Handle(ctx context.Context, cmd CompleteBookingCommand) (*dto.BookingView, error) {
	return support.WithinUnit(ctx, h.UoWFactory, uow.TxOptions{}, func(ctx context.Context, unit uow.UnitOfWork) (*dto.BookingView, error) {
		b, err := load(ctx, unit, cmd.BookingID)
		if err != nil {
			return nil, err
		}
		slots := unit.Slots()
		release := func() error {
			return slots.Release(ctx, b.RoomID, string(b.ID))
		}
		if err := b.Complete(actor.NewSystem(), release, h.now()); err != nil {
			return nil, err
		}
		if err := h.persist(ctx, unit, b); err != nil {
			return nil, err
		}
		return view(b), nil
	})
}

var _ commands.Handler[CompleteBookingCommand, *dto.BookingView] = (*CompleteBookingHandler)(nil)
