package middleware

import (
	"context"

	"roomies/internal/app/commands"
	"roomies/internal/app/uow"
)

// TxOptionsProvider picks the unit options for one command, e.g. read-only for audits.
type TxOptionsProvider func(cmd commands.Command) uow.TxOptions

// Transaction runs the handler inside a unit of work. Errors wrapped with uow.CommitAnyway are
// returned to the caller after the unit committed; every other error rolls back.
func Transaction(factory uow.UoWFactory, optsProvider TxOptionsProvider) CommandMiddleware {
	if factory == nil {
		panic("middleware: uow factory required")
	}
	if optsProvider == nil {
		optsProvider = func(commands.Command) uow.TxOptions { return uow.TxOptions{} }
	}
	return func(next commands.Bus) commands.Bus {
		handle := wrapCommand(next)
		return commandFunc(func(ctx context.Context, cmd commands.Command) (any, error) {
			unit, err := factory.Begin(ctx, optsProvider(cmd))
			if err != nil {
				return nil, err
			}
			return runInUnit(uow.Bind(ctx, unit), unit, func(txCtx context.Context) (any, error) {
				return handle(txCtx, cmd)
			})
		})
	}
}

func runInUnit(ctx context.Context, unit uow.UnitOfWork, fn func(context.Context) (any, error)) (res any, err error) {
	res, err = fn(ctx)
	if !uow.ShouldCommit(err) {
		_ = unit.Rollback(ctx)
		return nil, err
	}
	if cerr := unit.Commit(ctx); cerr != nil {
		_ = unit.Rollback(ctx)
		return nil, cerr
	}
	return res, err
}
