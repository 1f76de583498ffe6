package booking

import (
	"context"
	"errors"

	"roomies/internal/app/commands"
	"roomies/internal/app/dto"
	"roomies/internal/app/handlers/support"
	"roomies/internal/app/middleware"
	"roomies/internal/app/uow"
	domainrefunds "roomies/internal/domain/refunds"
	"roomies/internal/domain/shared/actor"
)

const CancelBookingKey = "booking.cancel"

type CancelBookingCommand struct {
	BookingID       string      `json:"booking_id"`
	Actor           actor.Actor `json:"actor"`
	Reason          string      `json:"reason,omitempty"`
	IdempotencyKeyV string      `json:"-"`
}

func (c CancelBookingCommand) Key() string              { return CancelBookingKey }
func (c CancelBookingCommand) IdempotencyKey() string   { return c.IdempotencyKeyV }
func (c CancelBookingCommand) IdempotencyScope() string { return c.BookingID }
func (c CancelBookingCommand) ResultPrototype() any     { return &dto.CancellationView{} }
func (c CancelBookingCommand) LockKeys() []string       { return []string{bookingLock(c.BookingID)} }

func (c CancelBookingCommand) Validate() error {
	return validateTarget(c.BookingID, c.Actor)
}

type CancelBookingHandler struct {
	Deps
}

func (h *CancelBookingHandler) Handle(ctx context.Context, cmd CancelBookingCommand) (*dto.CancellationView, error) {
	return support.WithinUnit(ctx, h.UoWFactory, uow.TxOptions{}, func(ctx context.Context, unit uow.UnitOfWork) (*dto.CancellationView, error) {
		b, err := load(ctx, unit, cmd.BookingID)
		if err != nil {
			return nil, err
		}
		slots := unit.Slots()
		release := func() error {
			return slots.Release(ctx, b.RoomID, string(b.ID))
		}
		now := h.now()
		refund, err := b.Cancel(cmd.Actor, cmd.Reason, release, now)
		if errors.Is(err, domainrefunds.ErrRefundExceedsPaid) {
			h.logger().ErrorContext(ctx, "refund exceeds amount paid",
				"alert", true,
				"booking_id", b.ID,
				"state", b.State,
				"initiator", cmd.Actor.Role,
				"total_paid", b.TotalPaid.String(),
				"err", err,
			)
			return nil, err
		}
		if err != nil {
			return nil, err
		}
		rec := &domainrefunds.Record{
			ID:        h.newID(),
			BookingID: string(b.ID),
			Amount:    refund,
			Reason:    cmd.Reason,
			Initiator: cmd.Actor.Role,
			CreatedAt: now,
		}
		if err := unit.Refunds().Save(ctx, rec); err != nil {
			return nil, err
		}
		if err := h.persist(ctx, unit, b); err != nil {
			return nil, err
		}
		return &dto.CancellationView{Booking: dto.MapBooking(b), Refund: dto.MapRefund(rec)}, nil
	})
}

var _ commands.Handler[CancelBookingCommand, *dto.CancellationView] = (*CancelBookingHandler)(nil)
var _ middleware.IdempotentCommand = CancelBookingCommand{}
