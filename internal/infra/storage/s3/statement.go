package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"roomies/internal/app/dto"
	"roomies/internal/app/outbox"
	domainbooking "roomies/internal/domain/booking"
	"roomies/internal/domain/shared/actor"
)

const statementContentType = "text/plain; charset=utf-8"

// SettlementSource loads the money picture of a booking.
type SettlementSource interface {
	Settlement(ctx context.Context, bookingID string, by actor.Actor) (dto.SettlementView, error)
}

// StatementArchiver renders a settlement statement whenever a booking reaches a terminal state
// and stores it under <prefix>/<booking id>/<event>.txt.
type StatementArchiver struct {
	Source   SettlementSource
	Uploader Uploader
	Prefix   string
	Logger   *slog.Logger
}

func (a StatementArchiver) Handle(ctx context.Context, rec outbox.EventRecord) error {
	switch rec.Name {
	case domainbooking.EventNameCompleted, domainbooking.EventNameCancelled, domainbooking.EventNameRejected:
	default:
		return nil
	}
	if rec.Aggregate == "" {
		return fmt.Errorf("s3: %s record %s has no booking id", rec.Name, rec.ID)
	}

	view, err := a.Source.Settlement(ctx, rec.Aggregate, actor.NewSystem())
	if err != nil {
		return fmt.Errorf("s3: load settlement %s: %w", rec.Aggregate, err)
	}
	var buf bytes.Buffer
	if err := RenderStatement(&buf, view); err != nil {
		return err
	}

	key := StatementKey(a.Prefix, rec.Aggregate, rec.Name)
	location, err := a.Uploader.Upload(ctx, key, bytes.NewReader(buf.Bytes()), int64(buf.Len()), statementContentType)
	if err != nil {
		return err
	}
	if a.Logger != nil {
		a.Logger.InfoContext(ctx, "settlement statement archived", "booking_id", rec.Aggregate, "event", rec.Name, "location", location)
	}
	return nil
}

// StatementKey builds the object key for a booking event, e.g. statements/b-1/cancelled.txt.
func StatementKey(prefix, bookingID, eventName string) string {
	if prefix == "" {
		prefix = "statements"
	}
	name := strings.TrimPrefix(eventName, "booking.")
	return path.Join(prefix, bookingID, name+".txt")
}

// RenderStatement writes a plain text statement of the booking's charges, refund, commission
// and transition history.
func RenderStatement(w io.Writer, v dto.SettlementView) error {
	sw := &statementWriter{w: w}
	b := v.Booking

	sw.printf("Settlement statement\n")
	sw.field("Booking", b.ID)
	sw.field("Room", b.RoomID)
	sw.field("Renter", b.RenterID)
	sw.field("Owner", b.OwnerID)
	sw.field("State", fmt.Sprintf("%s (payment %s)", b.State, b.PaymentState))
	if b.ContractStart != nil && b.ContractEnd != nil {
		sw.field("Contract", fmt.Sprintf("%s to %s, %d months", day(*b.ContractStart), day(*b.ContractEnd), b.ContractDurationMonths))
	} else {
		sw.field("Contract", fmt.Sprintf("not started, %d months", b.ContractDurationMonths))
	}
	if b.CancelledBy != "" {
		reason := b.CancellationReason
		if reason == "" {
			reason = "no reason given"
		}
		sw.field("Cancelled", fmt.Sprintf("by %s: %s", b.CancelledBy, reason))
	}

	sw.printf("\nCharges\n")
	sw.field("Monthly rent", b.MonthlyRent.Display)
	sw.field("Booking fee", b.BookingAmount.Display)
	sw.field("Security deposit", b.SecurityDeposit.Display)
	sw.field("Platform fee", b.PlatformFee.Display)
	sw.field("Total due", b.TotalDue.Display)
	sw.field("Total paid", b.TotalPaid.Display)

	sw.printf("\nRefund\n")
	if r := v.Refund; r != nil {
		sw.field("Amount", r.Amount.Display)
		sw.field("Initiator", r.Initiator)
		sw.field("Processed", yesNo(r.Processed))
	} else {
		sw.printf("  none\n")
	}

	sw.printf("\nCommission\n")
	if c := v.Commission; c != nil {
		sw.field("Base", c.BaseAmount.Display)
		sw.field("Rate", fmt.Sprintf("%.2f%%", c.Rate))
		sw.field("Discount", c.Discount.Display)
		sw.field("Payable", c.FinalAmount.Display)
		sw.field("Paid", yesNo(c.Paid))
	} else {
		sw.printf("  none\n")
	}

	sw.printf("\nHistory\n")
	for _, t := range b.Transitions {
		from := t.From
		if from == "" {
			from = "-"
		}
		by := t.ActorRole
		if t.ActorID != "" {
			by += ":" + t.ActorID
		}
		sw.printf("  %s  %-18s %s -> %s by %s\n", t.At.UTC().Format(time.RFC3339), t.Event, from, t.To, by)
	}
	return sw.err
}

type statementWriter struct {
	w   io.Writer
	err error
}

func (s *statementWriter) printf(format string, args ...any) {
	if s.err != nil {
		return
	}
	_, s.err = fmt.Fprintf(s.w, format, args...)
}

func (s *statementWriter) field(label, value string) {
	s.printf("  %-18s%s\n", label, value)
}

func day(t time.Time) string { return t.UTC().Format(time.DateOnly) }

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

var _ outbox.Handler = StatementArchiver{}
