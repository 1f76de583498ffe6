package booking

import (
	"context"

	"roomies/internal/app/commands"
	"roomies/internal/app/dto"
	"roomies/internal/app/handlers/support"
	"roomies/internal/app/middleware"
	"roomies/internal/app/uow"
	domainrefunds "roomies/internal/domain/refunds"
	"roomies/internal/domain/shared/actor"
)

const OwnerDecisionKey = "booking.owner_decision"

type OwnerDecisionCommand struct {
	BookingID       string      `json:"booking_id"`
	Actor           actor.Actor `json:"actor"`
	Approve         bool        `json:"approve"`
	Reason          string      `json:"reason,omitempty"`
	IdempotencyKeyV string      `json:"-"`
}

func (c OwnerDecisionCommand) Key() string              { return OwnerDecisionKey }
func (c OwnerDecisionCommand) IdempotencyKey() string   { return c.IdempotencyKeyV }
func (c OwnerDecisionCommand) IdempotencyScope() string { return c.BookingID }
func (c OwnerDecisionCommand) ResultPrototype() any     { return &dto.BookingView{} }
func (c OwnerDecisionCommand) LockKeys() []string       { return []string{bookingLock(c.BookingID)} }

func (c OwnerDecisionCommand) Validate() error {
	return validateTarget(c.BookingID, c.Actor)
}

type OwnerDecisionHandler struct {
	Deps
}

// Handle approves or rejects a request awaiting the owner. A rejection refunds the booking fee
// and stores the refund record in the same unit.
func (h *OwnerDecisionHandler) Handle(ctx context.Context, cmd OwnerDecisionCommand) (*dto.BookingView, error) {
	return support.WithinUnit(ctx, h.UoWFactory, uow.TxOptions{}, func(ctx context.Context, unit uow.UnitOfWork) (*dto.BookingView, error) {
		b, err := load(ctx, unit, cmd.BookingID)
		if err != nil {
			return nil, err
		}
		now := h.now()
		if cmd.Approve {
			if err := b.Approve(cmd.Actor, now); err != nil {
				return nil, err
			}
		} else {
			refund, err := b.Reject(cmd.Actor, cmd.Reason, now)
			if err != nil {
				return nil, err
			}
			rec := &domainrefunds.Record{
				ID:        h.newID(),
				BookingID: string(b.ID),
				Amount:    refund,
				Reason:    rejectionReason(cmd.Reason),
				Initiator: cmd.Actor.Role,
				CreatedAt: now,
			}
			if err := unit.Refunds().Save(ctx, rec); err != nil {
				return nil, err
			}
		}
		if err := h.persist(ctx, unit, b); err != nil {
			return nil, err
		}
		return view(b), nil
	})
}

func rejectionReason(reason string) string {
	if reason == "" {
		return "rejected by owner"
	}
	return reason
}

var _ commands.Handler[OwnerDecisionCommand, *dto.BookingView] = (*OwnerDecisionHandler)(nil)
var _ middleware.IdempotentCommand = OwnerDecisionCommand{}
