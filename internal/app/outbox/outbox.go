package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"roomies/internal/domain/shared/events"
)

type EventRecord struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Payload    []byte            `json:"payload"`
	OccurredAt time.Time         `json:"occurred_at"`
	Aggregate  string            `json:"aggregate"`
	Headers    map[string]string `json:"headers,omitempty"`
}

// Outbox accepts records inside a unit of work. Flush is called once the unit committed and
// hands pending records to the relay; stores drained by a background worker may no-op.
type Outbox interface {
	Add(ctx context.Context, record EventRecord) error
	Flush(ctx context.Context) error
}

// Handler consumes relayed records. The same handlers run behind the in-process relay and the
// Kafka consumer.
type Handler interface {
	Handle(ctx context.Context, record EventRecord) error
}

type HandlerFunc func(ctx context.Context, record EventRecord) error

func (f HandlerFunc) Handle(ctx context.Context, record EventRecord) error {
	return f(ctx, record)
}

// Deliveries remembers which route already handled which record. Seen marks key as taken and
// reports whether it was taken before; Forget releases it after a failed attempt.
type Deliveries interface {
	Seen(ctx context.Context, key string) (bool, error)
	Forget(ctx context.Context, key string) error
}

// Route is one named consumer of relayed records.
type Route struct {
	Name    string
	Handler Handler
}

// Fanout delivers each record to every route at most once. When a route fails the record is
// reported as failed so the transport redelivers it, and on redelivery only the routes that
// have not succeeded yet run again.
type Fanout struct {
	Routes     []Route
	Deliveries Deliveries
}

// NewFanout returns a fanout tracking deliveries in deliveries, or in an in-process ledger when
// deliveries is nil.
func NewFanout(deliveries Deliveries) *Fanout {
	if deliveries == nil {
		deliveries = NewDeliveryLedger(0)
	}
	return &Fanout{Deliveries: deliveries}
}

func (f *Fanout) Add(name string, h Handler) *Fanout {
	if h != nil {
		f.Routes = append(f.Routes, Route{Name: name, Handler: h})
	}
	return f
}

func (f *Fanout) Handle(ctx context.Context, record EventRecord) error {
	var errs []error
	for _, route := range f.Routes {
		if err := f.deliver(ctx, route, record); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", route.Name, err))
		}
	}
	return errors.Join(errs...)
}

func (f *Fanout) deliver(ctx context.Context, route Route, record EventRecord) error {
	if f.Deliveries == nil || record.ID == "" {
		return route.Handler.Handle(ctx, record)
	}
	key := record.ID + "|" + route.Name
	seen, err := f.Deliveries.Seen(ctx, key)
	if err != nil {
		return err
	}
	if seen {
		return nil
	}
	if err := route.Handler.Handle(ctx, record); err != nil {
		if ferr := f.Deliveries.Forget(ctx, key); ferr != nil {
			return errors.Join(err, ferr)
		}
		return err
	}
	return nil
}

const defaultLedgerSize = 100_000

// DeliveryLedger is an in-process Deliveries. It keeps the most recent size keys and forgets
// the oldest ones first.
type DeliveryLedger struct {
	mu    sync.Mutex
	size  int
	keys  map[string]struct{}
	order []string
}

func NewDeliveryLedger(size int) *DeliveryLedger {
	if size <= 0 {
		size = defaultLedgerSize
	}
	return &DeliveryLedger{size: size, keys: make(map[string]struct{})}
}

func (l *DeliveryLedger) Seen(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.keys[key]; ok {
		return true, nil
	}
	l.keys[key] = struct{}{}
	l.order = append(l.order, key)
	for len(l.order) > l.size {
		delete(l.keys, l.order[0])
		l.order = l.order[1:]
	}
	return false, nil
}

func (l *DeliveryLedger) Forget(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.keys, key)
	return nil
}

type EventEncoder interface {
	Encode(ev events.DomainEvent) (EventRecord, error)
}

type JSONEventEncoder struct {
	IDGenerator func() string
}

func (e JSONEventEncoder) Encode(ev events.DomainEvent) (EventRecord, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return EventRecord{}, err
	}
	idGen := e.IDGenerator
	if idGen == nil {
		idGen = uuid.NewString
	}
	return EventRecord{
		ID:         idGen(),
		Name:       ev.EventName(),
		Payload:    payload,
		OccurredAt: ev.OccurredAt(),
		Aggregate:  ev.AggregateID(),
		Headers:    map[string]string{},
	}, nil
}

func RecordDomainEvents(ctx context.Context, box Outbox, encoder EventEncoder, evs []events.DomainEvent) error {
	if box == nil || len(evs) == 0 {
		return nil
	}
	if encoder == nil {
		encoder = JSONEventEncoder{}
	}
	for _, ev := range evs {
		rec, err := encoder.Encode(ev)
		if err != nil {
			return err
		}
		if err := box.Add(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}
