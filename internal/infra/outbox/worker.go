// Package outbox publishes committed outbox records to the broker.
package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	appoutbox "roomies/internal/app/outbox"
)

var ErrWorkerNotConfigured = errors.New("outbox: worker missing dependencies")

// Claimed is one record leased to a worker together with its failed attempt count.
type Claimed struct {
	Record   appoutbox.EventRecord
	Attempts int
}

// ClaimStore is the durable side of the outbox. Claim returns nil when nothing is due.
type ClaimStore interface {
	Claim(ctx context.Context, workerID string) (*Claimed, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, next time.Time, errMsg string) error
}

type Producer interface {
	Publish(ctx context.Context, topic string, key string, payload []byte, headers map[string]string) error
}

// Worker drains a ClaimStore into a Producer. Records are wrapped in a CloudEvents envelope
// and keyed by aggregate id so one booking's events stay ordered within a partition.
type Worker struct {
	Store       ClaimStore
	Producer    Producer
	Interval    time.Duration
	BatchSize   int
	TopicPrefix string
	Source      string
	ID          string
	Backoff     []time.Duration
	Logger      *slog.Logger
	Now         func() time.Time
}

func (w *Worker) Run(ctx context.Context) error {
	if w.Store == nil || w.Producer == nil {
		return ErrWorkerNotConfigured
	}
	ticker := time.NewTicker(w.interval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := w.Drain(ctx); err != nil && ctx.Err() == nil {
				w.logger().Error("outbox drain failed", "error", err)
			}
		}
	}
}

// Drain publishes up to BatchSize due records and returns how many were sent.
func (w *Worker) Drain(ctx context.Context) (int, error) {
	if w.Store == nil || w.Producer == nil {
		return 0, ErrWorkerNotConfigured
	}
	sent := 0
	for i := 0; i < w.batchSize(); i++ {
		ok, err := w.processOnce(ctx)
		if err != nil {
			return sent, err
		}
		if !ok {
			break
		}
		sent++
	}
	return sent, nil
}

// processOnce reports false when nothing was claimed.
func (w *Worker) processOnce(ctx context.Context) (bool, error) {
	claimed, err := w.Store.Claim(ctx, w.workerID())
	if err != nil || claimed == nil {
		return false, err
	}
	rec := claimed.Record
	payload, headers, err := Envelope(rec, w.source())
	if err == nil {
		err = w.Producer.Publish(ctx, TopicFor(w.TopicPrefix, rec.Name), rec.Aggregate, payload, headers)
	}
	if err != nil {
		w.logger().Warn("outbox publish failed", "event_id", rec.ID, "event", rec.Name, "attempts", claimed.Attempts+1, "error", err)
		return true, w.Store.MarkFailed(ctx, rec.ID, w.nextRetry(claimed.Attempts), err.Error())
	}
	return true, w.Store.MarkSent(ctx, rec.ID)
}

// Envelope wraps rec in a CloudEvents 1.0 JSON document. The event id is the outbox record id
// so consumers can deduplicate redeliveries.
func Envelope(rec appoutbox.EventRecord, source string) ([]byte, map[string]string, error) {
	data := map[string]any{}
	if len(rec.Payload) > 0 {
		if err := json.Unmarshal(rec.Payload, &data); err != nil {
			return nil, nil, err
		}
	}
	evt := map[string]any{
		"specversion":     "1.0",
		"id":              rec.ID,
		"type":            rec.Name + ".v1",
		"source":          source,
		"subject":         rec.Aggregate,
		"time":            rec.OccurredAt,
		"datacontenttype": "application/json",
		"data":            data,
	}
	if trace, ok := rec.Headers["traceparent"]; ok {
		evt["traceparent"] = trace
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return nil, nil, err
	}
	headers := map[string]string{
		"content-type": "application/cloudevents+json",
	}
	for k, v := range rec.Headers {
		headers[k] = v
	}
	return payload, headers, nil
}

// TopicFor maps booking.cancelled to <prefix>booking.events.v1.
func TopicFor(prefix, name string) string {
	base := name
	if idx := strings.IndexRune(name, '.'); idx > 0 {
		base = name[:idx]
	}
	return prefix + base + ".events.v1"
}

// HandlerProducer delivers published envelopes straight to in-process handlers. It replaces
// the broker when none is configured.
type HandlerProducer struct {
	Handler appoutbox.Handler
}

func (p HandlerProducer) Publish(ctx context.Context, _ string, _ string, payload []byte, _ map[string]string) error {
	rec, err := DecodeEnvelope(payload)
	if err != nil {
		return err
	}
	return p.Handler.Handle(ctx, rec)
}

type envelope struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Subject string          `json:"subject"`
	Time    time.Time       `json:"time"`
	Data    json.RawMessage `json:"data"`
}

// DecodeEnvelope turns a CloudEvents document produced by Envelope back into a record.
func DecodeEnvelope(payload []byte) (appoutbox.EventRecord, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return appoutbox.EventRecord{}, err
	}
	if env.ID == "" || env.Type == "" {
		return appoutbox.EventRecord{}, errors.New("outbox: envelope missing id or type")
	}
	return appoutbox.EventRecord{
		ID:         env.ID,
		Name:       strings.TrimSuffix(env.Type, ".v1"),
		Payload:    []byte(env.Data),
		OccurredAt: env.Time,
		Aggregate:  env.Subject,
		Headers:    map[string]string{},
	}, nil
}

func (w *Worker) workerID() string {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	return w.ID
}

func (w *Worker) interval() time.Duration {
	if w.Interval <= 0 {
		return 500 * time.Millisecond
	}
	return w.Interval
}

func (w *Worker) batchSize() int {
	if w.BatchSize <= 0 {
		return 50
	}
	return w.BatchSize
}

func (w *Worker) now() time.Time {
	if w.Now != nil {
		return w.Now()
	}
	return time.Now()
}

func (w *Worker) nextRetry(attempts int) time.Time {
	if attempts < len(w.Backoff) {
		return w.now().Add(w.Backoff[attempts])
	}
	if len(w.Backoff) > 0 {
		return w.now().Add(w.Backoff[len(w.Backoff)-1])
	}
	return w.now().Add(5 * time.Second)
}

func (w *Worker) source() string {
	if w.Source != "" {
		return w.Source
	}
	return "app://roomies"
}

func (w *Worker) logger() *slog.Logger {
	if w.Logger != nil {
		return w.Logger
	}
	return slog.Default()
}
