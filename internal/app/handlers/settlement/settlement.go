// Package settlement flips the paid flags of money records once the finance side confirms them.
package settlement

import (
	"context"
	"errors"
	"time"

	"roomies/internal/app/commands"
	"roomies/internal/app/dto"
	"roomies/internal/app/handlers/support"
	"roomies/internal/app/uow"
	domainbooking "roomies/internal/domain/booking"
	"roomies/internal/domain/shared/clock"
)

const (
	MarkCommissionPaidKey  = "settlement.commission_paid"
	MarkRefundProcessedKey = "settlement.refund_processed"
)

var ErrBookingIDRequired = errors.New("booking id required")

type MarkCommissionPaidCommand struct {
	BookingID string `json:"booking_id"`
}

func (c MarkCommissionPaidCommand) Key() string        { return MarkCommissionPaidKey }
func (c MarkCommissionPaidCommand) LockKeys() []string { return []string{"booking:" + c.BookingID} }

func (c MarkCommissionPaidCommand) Validate() error {
	if c.BookingID == "" {
		return ErrBookingIDRequired
	}
	return nil
}

type MarkCommissionPaidHandler struct {
	UoWFactory uow.UoWFactory
	Clock      clock.Clock
}

func (h *MarkCommissionPaidHandler) Handle(ctx context.Context, cmd MarkCommissionPaidCommand) (*dto.CommissionView, error) {
	return support.WithinUnit(ctx, h.UoWFactory, uow.TxOptions{}, func(ctx context.Context, unit uow.UnitOfWork) (*dto.CommissionView, error) {
		c, err := unit.Commissions().ByBooking(ctx, cmd.BookingID)
		if err != nil {
			return nil, err
		}
		if err := c.MarkPaid(now(h.Clock)); err != nil {
			return nil, err
		}
		if err := unit.Commissions().Save(ctx, c); err != nil {
			return nil, err
		}
		v := dto.MapCommission(c)
		return &v, nil
	})
}

type MarkRefundProcessedCommand struct {
	BookingID string `json:"booking_id"`
}

func (c MarkRefundProcessedCommand) Key() string        { return MarkRefundProcessedKey }
func (c MarkRefundProcessedCommand) LockKeys() []string { return []string{"booking:" + c.BookingID} }

func (c MarkRefundProcessedCommand) Validate() error {
	if c.BookingID == "" {
		return ErrBookingIDRequired
	}
	return nil
}

type MarkRefundProcessedHandler struct {
	UoWFactory uow.UoWFactory
	Clock      clock.Clock
}

// Handle marks the refund paid out. A positive refund also moves the booking's payment state
// to refunded.
func (h *MarkRefundProcessedHandler) Handle(ctx context.Context, cmd MarkRefundProcessedCommand) (*dto.RefundView, error) {
	return support.WithinUnit(ctx, h.UoWFactory, uow.TxOptions{}, func(ctx context.Context, unit uow.UnitOfWork) (*dto.RefundView, error) {
		rec, err := unit.Refunds().ByBooking(ctx, cmd.BookingID)
		if err != nil {
			return nil, err
		}
		at := now(h.Clock)
		if err := rec.MarkProcessed(at); err != nil {
			return nil, err
		}
		if !rec.Amount.IsZero() {
			b, err := unit.Bookings().ByID(ctx, domainbooking.BookingID(cmd.BookingID))
			if err != nil {
				return nil, err
			}
			if err := b.MarkRefunded(at); err != nil {
				return nil, err
			}
			if err := unit.Bookings().Save(ctx, b); err != nil {
				return nil, err
			}
		}
		if err := unit.Refunds().Save(ctx, rec); err != nil {
			return nil, err
		}
		v := dto.MapRefund(rec)
		return &v, nil
	})
}

func now(c clock.Clock) time.Time {
	if c == nil {
		return time.Now().UTC()
	}
	return c.Now().UTC()
}

var (
	_ commands.Handler[MarkCommissionPaidCommand, *dto.CommissionView] = (*MarkCommissionPaidHandler)(nil)
	_ commands.Handler[MarkRefundProcessedCommand, *dto.RefundView]    = (*MarkRefundProcessedHandler)(nil)
)
