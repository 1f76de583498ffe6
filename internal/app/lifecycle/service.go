// Package lifecycle is the entry point callers use to drive a booking from request to
// completion. Every mutating call goes through the command bus and its middleware.
package lifecycle

import (
	"context"
	"time"

	"roomies/internal/app/commands"
	"roomies/internal/app/dto"
	bookinghandlers "roomies/internal/app/handlers/booking"
	"roomies/internal/app/handlers/settlement"
	"roomies/internal/app/queries"
	"roomies/internal/domain/shared/actor"
	"roomies/internal/domain/shared/money"
)

type Service struct {
	commands commands.Bus
	queries  queries.Bus
}

func NewService(cmds commands.Bus, qs queries.Bus) *Service {
	return &Service{commands: cmds, queries: qs}
}

type CreateBookingInput struct {
	RenterID               string
	RoomID                 string
	MoveInDate             time.Time
	ContractDurationMonths int
	IdempotencyKey         string
}

func (s *Service) CreateBooking(ctx context.Context, in CreateBookingInput) (dto.BookingView, error) {
	return deref(commands.Dispatch[bookinghandlers.CreateBookingCommand, *dto.BookingView](ctx, s.commands, bookinghandlers.CreateBookingCommand{
		RenterID:               in.RenterID,
		RoomID:                 in.RoomID,
		MoveInDate:             in.MoveInDate,
		ContractDurationMonths: in.ContractDurationMonths,
		IdempotencyKeyV:        in.IdempotencyKey,
	}))
}

func (s *Service) PayBookingFee(ctx context.Context, bookingID string, by actor.Actor, idempotencyKey string) (dto.BookingView, error) {
	return deref(commands.Dispatch[bookinghandlers.PayBookingFeeCommand, *dto.BookingView](ctx, s.commands, bookinghandlers.PayBookingFeeCommand{
		BookingID:       bookingID,
		Actor:           by,
		IdempotencyKeyV: idempotencyKey,
	}))
}

func (s *Service) OwnerDecide(ctx context.Context, bookingID string, by actor.Actor, approve bool, reason, idempotencyKey string) (dto.BookingView, error) {
	return deref(commands.Dispatch[bookinghandlers.OwnerDecisionCommand, *dto.BookingView](ctx, s.commands, bookinghandlers.OwnerDecisionCommand{
		BookingID:       bookingID,
		Actor:           by,
		Approve:         approve,
		Reason:          reason,
		IdempotencyKeyV: idempotencyKey,
	}))
}

// PayRemaining confirms the balance payment. amount may be nil to settle exactly what is due.
func (s *Service) PayRemaining(ctx context.Context, bookingID string, by actor.Actor, idempotencyKey string, amount *money.Money) (dto.BookingView, error) {
	return deref(commands.Dispatch[bookinghandlers.PayRemainingCommand, *dto.BookingView](ctx, s.commands, bookinghandlers.PayRemainingCommand{
		BookingID:       bookingID,
		Actor:           by,
		Amount:          amount,
		IdempotencyKeyV: idempotencyKey,
	}))
}

func (s *Service) Cancel(ctx context.Context, bookingID string, by actor.Actor, reason, idempotencyKey string) (dto.CancellationView, error) {
	return deref(commands.Dispatch[bookinghandlers.CancelBookingCommand, *dto.CancellationView](ctx, s.commands, bookinghandlers.CancelBookingCommand{
		BookingID:       bookingID,
		Actor:           by,
		Reason:          reason,
		IdempotencyKeyV: idempotencyKey,
	}))
}

func (s *Service) MarkCompleted(ctx context.Context, bookingID string) (dto.BookingView, error) {
	return deref(commands.Dispatch[bookinghandlers.CompleteBookingCommand, *dto.BookingView](ctx, s.commands, bookinghandlers.CompleteBookingCommand{
		BookingID: bookingID,
	}))
}

func (s *Service) SignContract(ctx context.Context, bookingID string, by actor.Actor) (dto.BookingView, error) {
	return deref(commands.Dispatch[bookinghandlers.SignContractCommand, *dto.BookingView](ctx, s.commands, bookinghandlers.SignContractCommand{
		BookingID: bookingID,
		Actor:     by,
	}))
}

func (s *Service) MarkCommissionPaid(ctx context.Context, bookingID string) (dto.CommissionView, error) {
	return deref(commands.Dispatch[settlement.MarkCommissionPaidCommand, *dto.CommissionView](ctx, s.commands, settlement.MarkCommissionPaidCommand{
		BookingID: bookingID,
	}))
}

func (s *Service) MarkRefundProcessed(ctx context.Context, bookingID string) (dto.RefundView, error) {
	return deref(commands.Dispatch[settlement.MarkRefundProcessedCommand, *dto.RefundView](ctx, s.commands, settlement.MarkRefundProcessedCommand{
		BookingID: bookingID,
	}))
}

func (s *Service) GetBooking(ctx context.Context, bookingID string, by actor.Actor) (dto.BookingView, error) {
	return queries.Ask[bookinghandlers.GetBookingQuery, dto.BookingView](ctx, s.queries, bookinghandlers.GetBookingQuery{
		BookingID: bookingID,
		Actor:     by,
	})
}

func (s *Service) ListRenterBookings(ctx context.Context, renterID string) (dto.BookingCollection, error) {
	return queries.Ask[bookinghandlers.ListRenterBookingsQuery, dto.BookingCollection](ctx, s.queries, bookinghandlers.ListRenterBookingsQuery{
		RenterID: renterID,
	})
}

// ListOwnerBookings returns the owner's bookings, newest first, optionally in one state.
func (s *Service) ListOwnerBookings(ctx context.Context, ownerID, state string) (dto.BookingCollection, error) {
	return queries.Ask[bookinghandlers.ListOwnerBookingsQuery, dto.BookingCollection](ctx, s.queries, bookinghandlers.ListOwnerBookingsQuery{
		OwnerID: ownerID,
		State:   state,
	})
}

func (s *Service) QuoteRoom(ctx context.Context, roomID string) (dto.QuoteView, error) {
	return queries.Ask[bookinghandlers.QuoteRoomQuery, dto.QuoteView](ctx, s.queries, bookinghandlers.QuoteRoomQuery{RoomID: roomID})
}

func (s *Service) Settlement(ctx context.Context, bookingID string, by actor.Actor) (dto.SettlementView, error) {
	return queries.Ask[bookinghandlers.GetSettlementQuery, dto.SettlementView](ctx, s.queries, bookinghandlers.GetSettlementQuery{
		BookingID: bookingID,
		Actor:     by,
	})
}

func deref[T any](v *T, err error) (T, error) {
	var zero T
	if err != nil {
		return zero, err
	}
	if v == nil {
		return zero, nil
	}
	return *v, nil
}
