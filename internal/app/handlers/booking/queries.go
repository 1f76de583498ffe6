package booking

import (
	"context"
	"errors"
	"fmt"

	"roomies/internal/app/dto"
	"roomies/internal/app/handlers/support"
	"roomies/internal/app/queries"
	"roomies/internal/app/uow"
	domainbooking "roomies/internal/domain/booking"
	domaincommissions "roomies/internal/domain/commissions"
	"roomies/internal/domain/fees"
	domainrefunds "roomies/internal/domain/refunds"
	domainrooms "roomies/internal/domain/rooms"
	"roomies/internal/domain/shared/actor"
	"roomies/internal/domain/shared/money"
)

const (
	GetBookingKey         = "booking.get"
	ListRenterBookingsKey = "booking.list_renter"
	ListOwnerBookingsKey  = "booking.list_owner"
	QuoteRoomKey          = "room.quote"
	GetSettlementKey      = "booking.settlement"
)

var readOnly = uow.TxOptions{ReadOnly: true}

type GetBookingQuery struct {
	BookingID string
	Actor     actor.Actor
}

func (q GetBookingQuery) Key() string { return GetBookingKey }

type GetBookingHandler struct {
	Deps
}

func (h *GetBookingHandler) Handle(ctx context.Context, q GetBookingQuery) (dto.BookingView, error) {
	return support.WithinUnit(ctx, h.UoWFactory, readOnly, func(ctx context.Context, unit uow.UnitOfWork) (dto.BookingView, error) {
		b, err := visibleBooking(ctx, unit, q.BookingID, q.Actor)
		if err != nil {
			return dto.BookingView{}, err
		}
		return dto.MapBooking(b), nil
	})
}

// visibleBooking loads a booking the actor is party to. System actors see everything.
func visibleBooking(ctx context.Context, unit uow.UnitOfWork, id string, by actor.Actor) (*domainbooking.Booking, error) {
	b, err := load(ctx, unit, id)
	if err != nil {
		return nil, err
	}
	switch {
	case by.Role == actor.System:
	case by.Role == actor.Renter && by.ID == b.RenterID:
	case by.Role == actor.Owner && by.ID == string(b.OwnerID):
	default:
		return nil, fmt.Errorf("%w: booking %s not visible to %s %q", domainbooking.ErrUnauthorized, id, by.Role, by.ID)
	}
	return b, nil
}

type ListRenterBookingsQuery struct {
	RenterID string
}

func (q ListRenterBookingsQuery) Key() string { return ListRenterBookingsKey }

type ListRenterBookingsHandler struct {
	Deps
}

func (h *ListRenterBookingsHandler) Handle(ctx context.Context, q ListRenterBookingsQuery) (dto.BookingCollection, error) {
	return support.WithinUnit(ctx, h.UoWFactory, readOnly, func(ctx context.Context, unit uow.UnitOfWork) (dto.BookingCollection, error) {
		list, err := unit.Bookings().ListByRenter(ctx, q.RenterID)
		if err != nil {
			return dto.BookingCollection{}, err
		}
		return dto.MapBookings(list), nil
	})
}

type ListOwnerBookingsQuery struct {
	OwnerID string
	// State filters when set.
	State string
}

func (q ListOwnerBookingsQuery) Key() string { return ListOwnerBookingsKey }

func (q ListOwnerBookingsQuery) Validate() error {
	if q.State == "" {
		return nil
	}
	_, err := domainbooking.ParseState(q.State)
	return err
}

type ListOwnerBookingsHandler struct {
	Deps
}

func (h *ListOwnerBookingsHandler) Handle(ctx context.Context, q ListOwnerBookingsQuery) (dto.BookingCollection, error) {
	return support.WithinUnit(ctx, h.UoWFactory, readOnly, func(ctx context.Context, unit uow.UnitOfWork) (dto.BookingCollection, error) {
		list, err := unit.Bookings().ListByOwner(ctx, domainrooms.OwnerID(q.OwnerID), domainbooking.State(q.State))
		if err != nil {
			return dto.BookingCollection{}, err
		}
		return dto.MapBookings(list), nil
	})
}

type QuoteRoomQuery struct {
	RoomID string
}

func (q QuoteRoomQuery) Key() string { return QuoteRoomKey }

type QuoteRoomHandler struct {
	Deps
	BookingFee money.Money
}

func (h *QuoteRoomHandler) Handle(ctx context.Context, q QuoteRoomQuery) (dto.QuoteView, error) {
	return support.WithinUnit(ctx, h.UoWFactory, readOnly, func(ctx context.Context, unit uow.UnitOfWork) (dto.QuoteView, error) {
		room, err := unit.Rooms().ByID(ctx, domainrooms.RoomID(q.RoomID))
		if err != nil {
			return dto.QuoteView{}, err
		}
		quote, err := fees.Quote(room.MonthlyRent, h.BookingFee)
		if err != nil {
			return dto.QuoteView{}, err
		}
		return dto.MapQuote(string(room.ID), quote, room.AvailableSlots()), nil
	})
}

type GetSettlementQuery struct {
	BookingID string
	Actor     actor.Actor
}

func (q GetSettlementQuery) Key() string { return GetSettlementKey }

type GetSettlementHandler struct {
	Deps
}

func (h *GetSettlementHandler) Handle(ctx context.Context, q GetSettlementQuery) (dto.SettlementView, error) {
	return support.WithinUnit(ctx, h.UoWFactory, readOnly, func(ctx context.Context, unit uow.UnitOfWork) (dto.SettlementView, error) {
		b, err := visibleBooking(ctx, unit, q.BookingID, q.Actor)
		if err != nil {
			return dto.SettlementView{}, err
		}
		out := dto.SettlementView{Booking: dto.MapBooking(b)}
		c, err := unit.Commissions().ByBooking(ctx, q.BookingID)
		switch {
		case err == nil:
			cv := dto.MapCommission(c)
			out.Commission = &cv
		case !isNotFound(err):
			return dto.SettlementView{}, err
		}
		r, err := unit.Refunds().ByBooking(ctx, q.BookingID)
		switch {
		case err == nil:
			rv := dto.MapRefund(r)
			out.Refund = &rv
		case !isNotFound(err):
			return dto.SettlementView{}, err
		}
		return out, nil
	})
}

func isNotFound(err error) bool {
	return errors.Is(err, domaincommissions.ErrCommissionNotFound) || errors.Is(err, domainrefunds.ErrRefundNotFound)
}

var (
	_ queries.Handler[GetBookingQuery, dto.BookingView]               = (*GetBookingHandler)(nil)
	_ queries.Handler[ListRenterBookingsQuery, dto.BookingCollection] = (*ListRenterBookingsHandler)(nil)
	_ queries.Handler[ListOwnerBookingsQuery, dto.BookingCollection]  = (*ListOwnerBookingsHandler)(nil)
	_ queries.Handler[QuoteRoomQuery, dto.QuoteView]                  = (*QuoteRoomHandler)(nil)
	_ queries.Handler[GetSettlementQuery, dto.SettlementView]         = (*GetSettlementHandler)(nil)
)
