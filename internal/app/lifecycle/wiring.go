package lifecycle

import (
	"log/slog"

	"roomies/internal/app/commands"
	"roomies/internal/app/dto"
	bookinghandlers "roomies/internal/app/handlers/booking"
	"roomies/internal/app/handlers/settlement"
	"roomies/internal/app/outbox"
	"roomies/internal/app/queries"
	"roomies/internal/app/uow"
	domaincommissions "roomies/internal/domain/commissions"
	"roomies/internal/domain/shared/clock"
	"roomies/internal/domain/shared/money"
)

// Deps carries what the booking handlers need.
type Deps struct {
	UoW        uow.UoWFactory
	Clock      clock.Clock
	Tiers      domaincommissions.OwnerTiers
	BookingFee money.Money
	Encoder    outbox.EventEncoder
	NewID      func() string
	Logger     *slog.Logger
}

// Register binds every lifecycle command and query handler.
func Register(cmds *commands.InMemoryBus, qs *queries.InMemoryBus, d Deps) {
	base := bookinghandlers.Deps{
		UoWFactory: d.UoW,
		Clock:      d.Clock,
		Encoder:    d.Encoder,
		NewID:      d.NewID,
		Logger:     d.Logger,
	}

	commands.RegisterHandler[bookinghandlers.CreateBookingCommand, *dto.BookingView](cmds, bookinghandlers.CreateBookingKey,
		&bookinghandlers.CreateBookingHandler{Deps: base, BookingFee: d.BookingFee})
	commands.RegisterHandler[bookinghandlers.PayBookingFeeCommand, *dto.BookingView](cmds, bookinghandlers.PayBookingFeeKey,
		&bookinghandlers.PayBookingFeeHandler{Deps: base})
	commands.RegisterHandler[bookinghandlers.OwnerDecisionCommand, *dto.BookingView](cmds, bookinghandlers.OwnerDecisionKey,
		&bookinghandlers.OwnerDecisionHandler{Deps: base})
	commands.RegisterHandler[bookinghandlers.PayRemainingCommand, *dto.BookingView](cmds, bookinghandlers.PayRemainingKey,
		&bookinghandlers.PayRemainingHandler{Deps: base, Tiers: d.Tiers})
	commands.RegisterHandler[bookinghandlers.CancelBookingCommand, *dto.CancellationView](cmds, bookinghandlers.CancelBookingKey,
		&bookinghandlers.CancelBookingHandler{Deps: base})
	commands.RegisterHandler[bookinghandlers.CompleteBookingCommand, *dto.BookingView](cmds, bookinghandlers.CompleteBookingKey,
		&bookinghandlers.CompleteBookingHandler{Deps: base})
	commands.RegisterHandler[bookinghandlers.SignContractCommand, *dto.BookingView](cmds, bookinghandlers.SignContractKey,
		&bookinghandlers.SignContractHandler{Deps: base})
	commands.RegisterHandler[settlement.MarkCommissionPaidCommand, *dto.CommissionView](cmds, settlement.MarkCommissionPaidKey,
		&settlement.MarkCommissionPaidHandler{UoWFactory: d.UoW, Clock: d.Clock})
	commands.RegisterHandler[settlement.MarkRefundProcessedCommand, *dto.RefundView](cmds, settlement.MarkRefundProcessedKey,
		&settlement.MarkRefundProcessedHandler{UoWFactory: d.UoW, Clock: d.Clock})

	queries.RegisterHandler[bookinghandlers.GetBookingQuery, dto.BookingView](qs, bookinghandlers.GetBookingKey,
		&bookinghandlers.GetBookingHandler{Deps: base})
	queries.RegisterHandler[bookinghandlers.ListRenterBookingsQuery, dto.BookingCollection](qs, bookinghandlers.ListRenterBookingsKey,
		&bookinghandlers.ListRenterBookingsHandler{Deps: base})
	queries.RegisterHandler[bookinghandlers.ListOwnerBookingsQuery, dto.BookingCollection](qs, bookinghandlers.ListOwnerBookingsKey,
		&bookinghandlers.ListOwnerBookingsHandler{Deps: base})
	queries.RegisterHandler[bookinghandlers.QuoteRoomQuery, dto.QuoteView](qs, bookinghandlers.QuoteRoomKey,
		&bookinghandlers.QuoteRoomHandler{Deps: base, BookingFee: d.BookingFee})
	queries.RegisterHandler[bookinghandlers.GetSettlementQuery, dto.SettlementView](qs, bookinghandlers.GetSettlementKey,
		&bookinghandlers.GetSettlementHandler{Deps: base})
}
