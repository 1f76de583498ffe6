package middleware

import (
	"context"

	"roomies/internal/app/commands"
	"roomies/internal/app/locks"
)

// LockedCommand names the keys that must be held while the command runs.
type LockedCommand interface {
	LockKeys() []string
}

// Serialize runs commands sharing a lock key one at a time within this process.
func Serialize(keyed *locks.Keyed) CommandMiddleware {
	if keyed == nil {
		panic("middleware: keyed locks required")
	}
	return func(next commands.Bus) commands.Bus {
		nextFn := wrapCommand(next)
		return commandFunc(func(ctx context.Context, cmd commands.Command) (any, error) {
			lc, ok := cmd.(LockedCommand)
			if !ok {
				return nextFn(ctx, cmd)
			}
			release, err := keyed.Acquire(ctx, lc.LockKeys()...)
			if err != nil {
				return nil, err
			}
			defer release()
			return nextFn(ctx, cmd)
		})
	}
}
