package booking

import (
	"context"

	"roomies/internal/app/commands"
	"roomies/internal/app/dto"
	"roomies/internal/app/handlers/support"
	"roomies/internal/app/middleware"
	"roomies/internal/app/uow"
	domainbooking "roomies/internal/domain/booking"
	"roomies/internal/domain/shared/actor"
)

const PayBookingFeeKey = "booking.pay_fee"

type PayBookingFeeCommand struct {
	BookingID       string      `json:"booking_id"`
	Actor           actor.Actor `json:"actor"`
	IdempotencyKeyV string      `json:"-"`
}

func (c PayBookingFeeCommand) Key() string              { return PayBookingFeeKey }
func (c PayBookingFeeCommand) IdempotencyKey() string   { return c.IdempotencyKeyV }
func (c PayBookingFeeCommand) IdempotencyScope() string { return c.BookingID }
func (c PayBookingFeeCommand) ResultPrototype() any     { return &dto.BookingView{} }
func (c PayBookingFeeCommand) LockKeys() []string       { return []string{bookingLock(c.BookingID)} }

func (c PayBookingFeeCommand) Validate() error {
	return validateTarget(c.BookingID, c.Actor)
}

type PayBookingFeeHandler struct {
	Deps
}

// Handle charges the booking fee once. A retry carrying the key of the applied payment returns
// the booking as it is now.
func (h *PayBookingFeeHandler) Handle(ctx context.Context, cmd PayBookingFeeCommand) (*dto.BookingView, error) {
	return support.WithinUnit(ctx, h.UoWFactory, uow.TxOptions{}, func(ctx context.Context, unit uow.UnitOfWork) (*dto.BookingView, error) {
		b, err := load(ctx, unit, cmd.BookingID)
		if err != nil {
			return nil, err
		}
		if _, done := b.AppliedWith(domainbooking.EventPayBookingFee, cmd.IdempotencyKeyV); done {
			if err := b.AuthorizeReplay(domainbooking.EventPayBookingFee, cmd.Actor); err != nil {
				return nil, err
			}
			return view(b), nil
		}
		if err := b.CanApply(domainbooking.EventPayBookingFee, cmd.Actor); err != nil {
			return nil, err
		}
		room, err := unit.Rooms().ByID(ctx, b.RoomID)
		if err != nil {
			return nil, err
		}
		if err := b.PayBookingFee(cmd.Actor, room.HasFreeSlot(), cmd.IdempotencyKeyV, h.now()); err != nil {
			return nil, err
		}
		if err := h.persist(ctx, unit, b); err != nil {
			return nil, err
		}
		return view(b), nil
	})
}

func validateTarget(bookingID string, by actor.Actor) error {
	if bookingID == "" {
		return ErrBookingIDRequired
	}
	if by.Role == "" || (by.Role != actor.System && by.ID == "") {
		return ErrActorRequired
	}
	return nil
}

var _ commands.Handler[PayBookingFeeCommand, *dto.BookingView] = (*PayBookingFeeHandler)(nil)
var _ middleware.IdempotentCommand = PayBookingFeeCommand{}
