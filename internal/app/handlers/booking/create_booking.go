package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"roomies/internal/app/commands"
	"roomies/internal/app/dto"
	"roomies/internal/app/handlers/support"
	"roomies/internal/app/middleware"
	"roomies/internal/app/uow"
	domainbooking "roomies/internal/domain/booking"
	domainrooms "roomies/internal/domain/rooms"
	"roomies/internal/domain/shared/money"
)

const CreateBookingKey = "booking.create"

type CreateBookingCommand struct {
	RenterID               string    `json:"renter_id"`
	RoomID                 string    `json:"room_id"`
	MoveInDate             time.Time `json:"move_in_date,omitempty"`
	ContractDurationMonths int       `json:"contract_duration_months,omitempty"`
	IdempotencyKeyV        string    `json:"-"`
}

func (c CreateBookingCommand) Key() string { return CreateBookingKey }

func (c CreateBookingCommand) IdempotencyKey() string { return c.IdempotencyKeyV }

func (c CreateBookingCommand) IdempotencyScope() string { return c.RenterID }

func (c CreateBookingCommand) ResultPrototype() any { return &dto.BookingView{} }

// LockKeys serializes creates of the same renter and room so only one open booking survives.
func (c CreateBookingCommand) LockKeys() []string {
	return []string{"open:" + c.RenterID + ":" + c.RoomID}
}

func (c CreateBookingCommand) Validate() error {
	switch {
	case c.RenterID == "":
		return domainbooking.ErrRenterRequired
	case c.RoomID == "":
		return ErrRoomIDRequired
	case c.ContractDurationMonths < 0:
		return domainbooking.ErrInvalidDuration
	}
	return nil
}

type CreateBookingHandler struct {
	Deps
	BookingFee money.Money
}

func (h *CreateBookingHandler) Handle(ctx context.Context, cmd CreateBookingCommand) (*dto.BookingView, error) {
	return support.WithinUnit(ctx, h.UoWFactory, uow.TxOptions{}, func(ctx context.Context, unit uow.UnitOfWork) (*dto.BookingView, error) {
		room, err := unit.Rooms().ByID(ctx, domainrooms.RoomID(cmd.RoomID))
		if err != nil {
			return nil, err
		}
		existing, err := unit.Bookings().FindOpen(ctx, cmd.RenterID, room.ID)
		switch {
		case err == nil:
			return nil, fmt.Errorf("%w: %s", domainbooking.ErrDuplicateActiveBooking, existing.ID)
		case !errors.Is(err, domainbooking.ErrBookingNotFound):
			return nil, err
		}
		b, err := domainbooking.New(domainbooking.CreateParams{
			ID:                     domainbooking.BookingID(h.newID()),
			RenterID:               cmd.RenterID,
			Room:                   *room,
			BookingAmount:          h.BookingFee,
			MoveInDate:             cmd.MoveInDate,
			ContractDurationMonths: cmd.ContractDurationMonths,
			CreatedAt:              h.now(),
		})
		if err != nil {
			return nil, err
		}
		if err := h.persist(ctx, unit, b); err != nil {
			return nil, err
		}
		return view(b), nil
	})
}

var _ commands.Handler[CreateBookingCommand, *dto.BookingView] = (*CreateBookingHandler)(nil)
var _ middleware.IdempotentCommand = CreateBookingCommand{}
