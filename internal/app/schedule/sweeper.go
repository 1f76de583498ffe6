// Package schedule runs the periodic jobs of the settlement engine.
package schedule

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"roomies/internal/app/dto"
	"roomies/internal/app/handlers/support"
	"roomies/internal/app/uow"
	domainbooking "roomies/internal/domain/booking"
	"roomies/internal/domain/shared/clock"
)

const (
	defaultSweepInterval = time.Hour
	defaultSweepBatch    = 100
	maxRetryBackoff      = 24 * time.Hour
)

var ErrSweeperNotConfigured = errors.New("schedule: completion sweeper missing dependencies")

// Completer marks one booking completed. lifecycle.Service satisfies it.
type Completer interface {
	MarkCompleted(ctx context.Context, bookingID string) (dto.BookingView, error)
}

// CompletionSweeper completes active bookings whose contract period has elapsed.
type CompletionSweeper struct {
	UoW       uow.UoWFactory
	Completer Completer
	Clock     clock.Clock
	Interval  time.Duration
	BatchSize int
	Logger    *slog.Logger

	mu      sync.Mutex
	backoff map[string]retry
}

// retry defers a booking whose completion failed until at.
type retry struct {
	attempts int
	at       time.Time
}

func (s *CompletionSweeper) Run(ctx context.Context) error {
	if s.UoW == nil || s.Completer == nil {
		return ErrSweeperNotConfigured
	}
	ticker := time.NewTicker(s.interval())
	defer ticker.Stop()
	for {
		if _, err := s.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger().Error("completion sweep failed", "err", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce completes one batch of elapsed bookings and returns how many were completed. Bookings
// that moved on since they were listed are skipped. A booking whose completion fails is retried
// with growing backoff, and the listing reaches past it so it never starves later bookings.
func (s *CompletionSweeper) RunOnce(ctx context.Context) (int, error) {
	if s.UoW == nil || s.Completer == nil {
		return 0, ErrSweeperNotConfigured
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	limit := s.batch() + s.waiting(now)
	due, err := support.WithinUnit(ctx, s.UoW, uow.TxOptions{ReadOnly: true}, func(ctx context.Context, unit uow.UnitOfWork) ([]string, error) {
		list, err := unit.Bookings().ListActiveEndingBefore(ctx, now, limit)
		if err != nil {
			return nil, err
		}
		ids := make([]string, 0, len(list))
		for _, b := range list {
			ids = append(ids, string(b.ID))
		}
		return ids, nil
	})
	if err != nil {
		return 0, err
	}

	attempted, completed := 0, 0
	for _, id := range due {
		if attempted == s.batch() {
			break
		}
		if r, ok := s.backoff[id]; ok && now.Before(r.at) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return completed, err
		}
		attempted++
		if _, err := s.Completer.MarkCompleted(ctx, id); err != nil {
			if errors.Is(err, domainbooking.ErrInvalidTransition) {
				delete(s.backoff, id)
				continue
			}
			r := s.deferLocked(id, now)
			s.logger().Warn("booking completion failed", "booking_id", id, "attempts", r.attempts, "retry_at", r.at, "err", err)
			continue
		}
		delete(s.backoff, id)
		completed++
	}
	if completed > 0 {
		s.logger().Info("completed elapsed bookings", "count", completed)
	}
	return completed, nil
}

// waiting counts bookings still inside their backoff window.
func (s *CompletionSweeper) waiting(now time.Time) int {
	n := 0
	for _, r := range s.backoff {
		if now.Before(r.at) {
			n++
		}
	}
	return n
}

func (s *CompletionSweeper) deferLocked(id string, now time.Time) retry {
	if s.backoff == nil {
		s.backoff = make(map[string]retry)
	}
	r := s.backoff[id]
	r.attempts++
	wait := s.interval() << min(r.attempts-1, 16)
	if wait <= 0 || wait > maxRetryBackoff {
		wait = maxRetryBackoff
	}
	r.at = now.Add(wait)
	s.backoff[id] = r
	return r
}

func (s *CompletionSweeper) now() time.Time {
	if s.Clock == nil {
		return time.Now().UTC()
	}
	return s.Clock.Now()
}

func (s *CompletionSweeper) interval() time.Duration {
	if s.Interval <= 0 {
		return defaultSweepInterval
	}
	return s.Interval
}

func (s *CompletionSweeper) batch() int {
	if s.BatchSize <= 0 {
		return defaultSweepBatch
	}
	return s.BatchSize
}

func (s *CompletionSweeper) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}
