package refunds

import (
	"errors"
	"fmt"
	"time"

	"roomies/internal/domain/shared/actor"
	"roomies/internal/domain/shared/money"
)

var (
	// ErrRefundExceedsPaid is a bookkeeping failure, never a user error. Callers must not commit
	// and must raise an alert.
	ErrRefundExceedsPaid = errors.New("refunds: refund exceeds amount paid")
	ErrUnknownStage      = errors.New("refunds: unknown lifecycle stage")
	ErrAlreadyProcessed  = errors.New("refunds: already processed")
)

// Stage is the part of the lifecycle a booking was in when it was cancelled.
type Stage string

const (
	// StageAwaitingApproval covers pending and payment_initiated bookings.
	StageAwaitingApproval Stage = "awaiting_approval"
	// StageApproved is an owner-approved booking that is not fully paid.
	StageApproved Stage = "approved"
	// StageTenancy is an active tenancy.
	StageTenancy Stage = "tenancy"
)

// Input carries the amounts the policy needs.
type Input struct {
	Stage           Stage
	Initiator       actor.Role
	TotalPaid       money.Money
	SecurityDeposit money.Money
	MonthlyRent     money.Money
}

// Compute returns the refund owed for a cancellation.
//
// Before tenancy everything paid so far is returned. During tenancy the renter forfeits one
// month of rent and the spent booking fee and platform fee; a cancellation caused by the owner
// (or the platform) also returns that month.
func Compute(in Input) (money.Money, error) {
	var refund money.Money
	switch in.Stage {
	case StageAwaitingApproval, StageApproved:
		refund = in.TotalPaid
	case StageTenancy:
		if in.Initiator == actor.Renter {
			refund = in.SecurityDeposit
			break
		}
		sum, err := in.SecurityDeposit.Add(in.MonthlyRent)
		if err != nil {
			return money.Money{}, err
		}
		refund = sum
	default:
		return money.Money{}, fmt.Errorf("%w: %q", ErrUnknownStage, in.Stage)
	}
	cmp, err := refund.Cmp(in.TotalPaid)
	if err != nil {
		return money.Money{}, err
	}
	if cmp > 0 {
		return money.Money{}, fmt.Errorf("%w: refund %s, paid %s", ErrRefundExceedsPaid, refund, in.TotalPaid)
	}
	return refund, nil
}

// Record is the refund produced by a cancellation or an owner rejection.
type Record struct {
	ID          string
	BookingID   string
	Amount      money.Money
	Reason      string
	Initiator   actor.Role
	Processed   bool
	ProcessedAt time.Time
	CreatedAt   time.Time
}

// MarkProcessed flips the processed flag exactly once.
func (r *Record) MarkProcessed(now time.Time) error {
	if r.Processed {
		return ErrAlreadyProcessed
	}
	r.Processed = true
	r.ProcessedAt = now.UTC()
	return nil
}
