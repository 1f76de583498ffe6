package sqlstore

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	appoutbox "roomies/internal/app/outbox"
	infraoutbox "roomies/internal/infra/outbox"
)

const (
	outboxNew     = "NEW"
	outboxClaimed = "CLAIMED"
	outboxSent    = "SENT"
	outboxFailed  = "FAILED"
)

const claimTimeout = time.Minute

type unitOutbox struct {
	db *gorm.DB
}

func (o unitOutbox) Add(ctx context.Context, rec appoutbox.EventRecord) error {
	now := time.Now().UTC()
	row := outboxRow{
		ID:            rec.ID,
		Name:          rec.Name,
		Payload:       rec.Payload,
		OccurredAt:    rec.OccurredAt.UTC(),
		Aggregate:     rec.Aggregate,
		Headers:       rec.Headers,
		State:         outboxNew,
		NextAttemptAt: now,
		CreatedAt:     now,
	}
	return o.db.WithContext(ctx).Create(&row).Error
}

func (o unitOutbox) Flush(context.Context) error { return nil }

// OutboxStore leases committed outbox rows to the publishing worker.
type OutboxStore struct {
	DB  *gorm.DB
	Now func() time.Time
}

func (s OutboxStore) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// Claim picks the oldest due row and takes it with a conditional update, so two workers never
// publish the same row at once.
func (s OutboxStore) Claim(ctx context.Context, workerID string) (*infraoutbox.Claimed, error) {
	now := s.now()
	db := s.DB.WithContext(ctx)
	for attempt := 0; attempt < 3; attempt++ {
		var row outboxRow
		err := db.Where("(state IN ? AND next_attempt_at <= ?) OR (state = ? AND claimed_at <= ?)",
			[]string{outboxNew, outboxFailed}, now, outboxClaimed, now.Add(-claimTimeout)).
			Order("created_at ASC").
			Take(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		res := db.Model(&outboxRow{}).
			Where("id = ? AND state = ? AND attempts = ?", row.ID, row.State, row.Attempts).
			Updates(map[string]any{"state": outboxClaimed, "claimed_by": workerID, "claimed_at": now})
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 1 {
			return &infraoutbox.Claimed{
				Record: appoutbox.EventRecord{
					ID:         row.ID,
					Name:       row.Name,
					Payload:    row.Payload,
					OccurredAt: utc(row.OccurredAt),
					Aggregate:  row.Aggregate,
					Headers:    row.Headers,
				},
				Attempts: row.Attempts,
			}, nil
		}
	}
	return nil, nil
}

func (s OutboxStore) MarkSent(ctx context.Context, id string) error {
	return s.DB.WithContext(ctx).Model(&outboxRow{}).Where("id = ?", id).
		Updates(map[string]any{"state": outboxSent, "sent_at": s.now()}).Error
}

func (s OutboxStore) MarkFailed(ctx context.Context, id string, next time.Time, errMsg string) error {
	return s.DB.WithContext(ctx).Model(&outboxRow{}).Where("id = ?", id).
		Updates(map[string]any{
			"state":           outboxFailed,
			"next_attempt_at": next.UTC(),
			"last_error":      errMsg,
			"attempts":        gorm.Expr("attempts + 1"),
		}).Error
}

var _ infraoutbox.ClaimStore = OutboxStore{}
