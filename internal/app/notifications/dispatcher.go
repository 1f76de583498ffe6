package notifications

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"roomies/internal/app/outbox"
	"roomies/internal/app/policies"
)

const sendTimeout = 10 * time.Second

// AsyncDispatcher queues notifications for a fixed pool of workers. Dispatch never blocks: when
// the queue is full the notification is dropped and counted.
type AsyncDispatcher struct {
	notifier policies.Notifier
	logger   *slog.Logger
	workers  int

	mu      sync.RWMutex
	closed  bool
	queue   chan Notification
	wg      sync.WaitGroup
	dropped atomic.Int64
	sent    atomic.Int64
}

func NewAsyncDispatcher(notifier policies.Notifier, queueSize, workers int, logger *slog.Logger) *AsyncDispatcher {
	if queueSize <= 0 {
		queueSize = 256
	}
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AsyncDispatcher{
		notifier: notifier,
		logger:   logger,
		workers:  workers,
		queue:    make(chan Notification, queueSize),
	}
}

// Start launches the workers. They stop after Close drained the queue.
func (d *AsyncDispatcher) Start(ctx context.Context) {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.work(context.WithoutCancel(ctx))
	}
}

func (d *AsyncDispatcher) Dispatch(n Notification) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.dropped.Add(1)
		return false
	}
	select {
	case d.queue <- n:
		return true
	default:
		d.dropped.Add(1)
		d.logger.Warn("notification dropped, queue full", "kind", n.Kind, "booking_id", n.BookingID)
		return false
	}
}

// Close stops accepting notifications and waits for queued ones to be sent.
func (d *AsyncDispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *AsyncDispatcher) Dropped() int64 { return d.dropped.Load() }

func (d *AsyncDispatcher) Sent() int64 { return d.sent.Load() }

func (d *AsyncDispatcher) work(ctx context.Context) {
	defer d.wg.Done()
	for n := range d.queue {
		sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
		err := d.notifier.Send(sendCtx, n.RecipientID, string(n.Kind), n)
		cancel()
		if err != nil {
			d.logger.Warn("notification delivery failed", "kind", n.Kind, "booking_id", n.BookingID, "err", err)
			continue
		}
		d.sent.Add(1)
	}
}

// EventHandler feeds relayed booking events into a dispatcher.
type EventHandler struct {
	Dispatcher interface{ Dispatch(Notification) bool }
	Logger     *slog.Logger
}

func (h EventHandler) Handle(ctx context.Context, rec outbox.EventRecord) error {
	planned, err := Plan(rec)
	if err != nil {
		return err
	}
	for _, n := range planned {
		h.Dispatcher.Dispatch(n)
	}
	if len(planned) > 0 && h.Logger != nil {
		h.Logger.DebugContext(ctx, "notifications planned", "event", rec.Name, "count", len(planned))
	}
	return nil
}

var _ outbox.Handler = EventHandler{}
