package booking

import (
	"context"
	"errors"

	"roomies/internal/app/commands"
	"roomies/internal/app/dto"
	"roomies/internal/app/handlers/support"
	"roomies/internal/app/middleware"
	"roomies/internal/app/uow"
	domainbooking "roomies/internal/domain/booking"
	domaincommissions "roomies/internal/domain/commissions"
	domainrooms "roomies/internal/domain/rooms"
	"roomies/internal/domain/shared/actor"
	"roomies/internal/domain/shared/money"
)

const PayRemainingKey = "booking.pay_remaining"

type PayRemainingCommand struct {
	BookingID string      `json:"booking_id"`
	Actor     actor.Actor `json:"actor"`
	// Amount is the confirmed payment. Nil settles exactly the outstanding balance.
	Amount          *money.Money `json:"amount,omitempty"`
	IdempotencyKeyV string       `json:"-"`
}

func (c PayRemainingCommand) Key() string              { return PayRemainingKey }
func (c PayRemainingCommand) IdempotencyKey() string   { return c.IdempotencyKeyV }
func (c PayRemainingCommand) IdempotencyScope() string { return c.BookingID }
func (c PayRemainingCommand) ResultPrototype() any     { return &dto.BookingView{} }
func (c PayRemainingCommand) LockKeys() []string       { return []string{bookingLock(c.BookingID)} }

func (c PayRemainingCommand) Validate() error {
	if c.Amount != nil && c.Amount.IsNegative() {
		return money.ErrInvalidAmount
	}
	return validateTarget(c.BookingID, c.Actor)
}

type PayRemainingHandler struct {
	Deps
	Tiers domaincommissions.OwnerTiers
}

// Handle settles the balance, claims a room slot and opens the commission. When the room is
// full the booking is saved as activation-blocked and the error is returned after commit.
func (h *PayRemainingHandler) Handle(ctx context.Context, cmd PayRemainingCommand) (*dto.BookingView, error) {
	return support.WithinUnit(ctx, h.UoWFactory, uow.TxOptions{}, func(ctx context.Context, unit uow.UnitOfWork) (*dto.BookingView, error) {
		b, err := load(ctx, unit, cmd.BookingID)
		if err != nil {
			return nil, err
		}
		if _, done := b.AppliedWith(domainbooking.EventPayRemaining, cmd.IdempotencyKeyV); done {
			if err := b.AuthorizeReplay(domainbooking.EventPayRemaining, cmd.Actor); err != nil {
				return nil, err
			}
			return view(b), nil
		}
		payment := b.Remaining()
		if cmd.Amount != nil {
			payment = *cmd.Amount
		}
		slots := unit.Slots()
		reserve := func() error {
			return slots.TryReserve(ctx, b.RoomID, string(b.ID))
		}
		now := h.now()
		err = b.PayRemaining(cmd.Actor, payment, cmd.IdempotencyKeyV, reserve, now)
		if errors.Is(err, domainrooms.ErrNoSlotsAvailable) {
			h.logger().WarnContext(ctx, "activation blocked, room full", "booking_id", b.ID, "room_id", b.RoomID)
			if perr := h.persist(ctx, unit, b); perr != nil {
				return nil, perr
			}
			return view(b), uow.CommitAnyway(err)
		}
		if err != nil {
			return nil, err
		}
		if err := h.openCommission(ctx, unit, b); err != nil {
			return nil, err
		}
		if err := h.persist(ctx, unit, b); err != nil {
			return nil, err
		}
		return view(b), nil
	})
}

func (h *PayRemainingHandler) openCommission(ctx context.Context, unit uow.UnitOfWork, b *domainbooking.Booking) error {
	tier := domaincommissions.DefaultTier(b.OwnerID)
	if h.Tiers != nil {
		t, err := h.Tiers.CommissionRate(ctx, b.OwnerID)
		if err != nil {
			return err
		}
		tier = t
	}
	c, err := domaincommissions.New(h.newID(), string(b.ID), b.MonthlyRent, tier, h.now())
	if err != nil {
		return err
	}
	return unit.Commissions().Save(ctx, c)
}

var _ commands.Handler[PayRemainingCommand, *dto.BookingView] = (*PayRemainingHandler)(nil)
var _ middleware.IdempotentCommand = PayRemainingCommand{}
