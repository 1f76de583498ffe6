package memory

import (
	"context"
	"log/slog"
	"sync"
	"time"

	appoutbox "roomies/internal/app/outbox"
)

// unitOutbox stages records until the unit commits.
type unitOutbox struct {
	unit *Unit
}

func (o unitOutbox) Add(_ context.Context, record appoutbox.EventRecord) error {
	if err := o.unit.writable(); err != nil {
		return err
	}
	o.unit.records = append(o.unit.records, record)
	return nil
}

func (o unitOutbox) Flush(context.Context) error { return nil }

const defaultRelayRetry = time.Second

// Relay hands committed records to a handler in-process. The command stack calls Flush after
// every successful command; Flush only wakes Run, so handlers never run under the command's
// locks. Records whose handler failed are kept and retried every RetryInterval.
type Relay struct {
	Store         *Store
	Handler       appoutbox.Handler
	RetryInterval time.Duration
	Logger        *slog.Logger

	mu       sync.Mutex
	kickOnce sync.Once
	kick     chan struct{}
}

// Add bypasses the unit and queues a record directly.
func (r *Relay) Add(_ context.Context, record appoutbox.EventRecord) error {
	r.Store.mu.Lock()
	r.Store.pending = append(r.Store.pending, record)
	r.Store.mu.Unlock()
	r.wake()
	return nil
}

// Flush signals Run that records are waiting and returns at once.
func (r *Relay) Flush(context.Context) error {
	r.wake()
	return nil
}

func (r *Relay) wake() {
	select {
	case r.signal() <- struct{}{}:
	default:
	}
}

func (r *Relay) signal() chan struct{} {
	r.kickOnce.Do(func() { r.kick = make(chan struct{}, 1) })
	return r.kick
}

// Run delivers records as they are flushed until ctx is done.
func (r *Relay) Run(ctx context.Context) error {
	interval := r.RetryInterval
	if interval <= 0 {
		interval = defaultRelayRetry
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-r.signal():
		case <-ticker.C:
		}
		_ = r.Drain(ctx)
	}
}

// Drain delivers every pending record now and returns the first handler error.
func (r *Relay) Drain(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.Store.mu.Lock()
	batch := r.Store.pending
	r.Store.pending = nil
	r.Store.mu.Unlock()

	if r.Handler == nil || len(batch) == 0 {
		return nil
	}
	var failed []appoutbox.EventRecord
	var firstErr error
	for _, rec := range batch {
		if err := r.Handler.Handle(ctx, rec); err != nil {
			failed = append(failed, rec)
			if firstErr == nil {
				firstErr = err
			}
			if r.Logger != nil {
				r.Logger.Warn("outbox relay failed", "event", rec.Name, "id", rec.ID, "err", err)
			}
		}
	}
	if len(failed) > 0 {
		r.Store.mu.Lock()
		r.Store.pending = append(failed, r.Store.pending...)
		r.Store.mu.Unlock()
	}
	return firstErr
}

// Pending reports how many committed records wait for relay.
func (r *Relay) Pending() int {
	r.Store.mu.Lock()
	defer r.Store.mu.Unlock()
	return len(r.Store.pending)
}

var (
	_ appoutbox.Outbox = unitOutbox{}
	_ appoutbox.Outbox = (*Relay)(nil)
)
