package refunds

import (
	"context"
	"errors"
)

var ErrRefundNotFound = errors.New("refunds: not found")

type Repository interface {
	ByBooking(ctx context.Context, bookingID string) (*Record, error)
	Save(ctx context.Context, r *Record) error
}
