package booking

import (
	"context"

	"roomies/internal/app/commands"
	"roomies/internal/app/dto"
	"roomies/internal/app/handlers/support"
	"roomies/internal/app/uow"
	"roomies/internal/domain/shared/actor"
)

const SignContractKey = "booking.sign_contract"

type SignContractCommand struct {
	BookingID string      `json:"booking_id"`
	Actor     actor.Actor `json:"actor"`
}

func (c SignContractCommand) Key() string        { return SignContractKey }
func (c SignContractCommand) LockKeys() []string { return []string{bookingLock(c.BookingID)} }
func (c SignContractCommand) Validate() error    { return validateTarget(c.BookingID, c.Actor) }

type SignContractHandler struct {
	Deps
}

func (h *SignContractHandler) Handle(ctx context.Context, cmd SignContractCommand) (*dto.BookingView, error) {
	return support.WithinUnit(ctx, h.UoWFactory, uow.TxOptions{}, func(ctx context.Context, unit uow.UnitOfWork) (*dto.BookingView, error) {
		b, err := load(ctx, unit, cmd.BookingID)
		if err != nil {
			return nil, err
		}
		if err := b.SignContract(cmd.Actor, h.now()); err != nil {
			return nil, err
		}
		if len(b.PendingEvents()) == 0 {
			return view(b), nil
		}
		if err := h.persist(ctx, unit, b); err != nil {
			return nil, err
		}
		return view(b), nil
	})
}

var _ commands.Handler[SignContractCommand, *dto.BookingView] = (*SignContractHandler)(nil)
