package uow

import (
	"context"

	"roomies/internal/app/outbox"
	domainbooking "roomies/internal/domain/booking"
	domaincommissions "roomies/internal/domain/commissions"
	domainrefunds "roomies/internal/domain/refunds"
	domainrooms "roomies/internal/domain/rooms"
)

// UnitOfWork coordinates repositories inside a transaction boundary. Booking state, money
// records, slot counters and outbox records written through one unit commit together.
type UnitOfWork interface {
	Bookings() domainbooking.Repository
	Rooms() domainrooms.Repository
	Slots() domainrooms.SlotStore
	Commissions() domaincommissions.Repository
	Refunds() domainrefunds.Repository
	Outbox() outbox.Outbox

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// UoWFactory starts unit of work instances.
type UoWFactory interface {
	Begin(ctx context.Context, opts TxOptions) (UnitOfWork, error)
}

// TxOptions configure transaction boundaries.
type TxOptions struct {
	ReadOnly bool
}

// ContextInjector is implemented by units that carry a driver session in the context.
type ContextInjector interface {
	InjectContext(ctx context.Context) context.Context
}

// Bind stores the unit in ctx, letting the unit add its own session first.
func Bind(ctx context.Context, unit UnitOfWork) context.Context {
	if injector, ok := unit.(ContextInjector); ok {
		ctx = injector.InjectContext(ctx)
	}
	return ContextWithUnitOfWork(ctx, unit)
}
