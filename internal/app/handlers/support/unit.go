package support

import (
	"context"

	"roomies/internal/app/uow"
)

// WithinUnit runs fn in the unit bound to ctx by the transaction middleware. Called outside the
// bus it begins its own unit, committing it unless fn failed with an error that forbids it.
// Read-only units are always rolled back.
func WithinUnit[R any](ctx context.Context, factory uow.UoWFactory, opts uow.TxOptions, fn func(ctx context.Context, unit uow.UnitOfWork) (R, error)) (R, error) {
	if unit, ok := uow.FromContext(ctx); ok {
		return fn(ctx, unit)
	}
	var zero R
	if factory == nil {
		return zero, uow.ErrUnitOfWorkMissing
	}
	unit, err := factory.Begin(ctx, opts)
	if err != nil {
		return zero, err
	}
	execCtx := uow.Bind(ctx, unit)
	res, err := fn(execCtx, unit)
	if opts.ReadOnly || !uow.ShouldCommit(err) {
		_ = unit.Rollback(execCtx)
		return res, err
	}
	if cerr := unit.Commit(execCtx); cerr != nil {
		_ = unit.Rollback(execCtx)
		return zero, cerr
	}
	return res, err
}
