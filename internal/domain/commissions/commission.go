package commissions

import (
	"context"
	"errors"
	"time"

	"roomies/internal/domain/fees"
	"roomies/internal/domain/rooms"
	"roomies/internal/domain/shared/money"
)

var (
	ErrCommissionNotFound = errors.New("commissions: not found")
	ErrAlreadyPaid        = errors.New("commissions: already paid")
)

// Standard tier numbers the platform applies when an owner has no tier on record.
const (
	DefaultRate            = 25.0
	PremiumDiscountPercent = 10.0
)

// Tier is the commission arrangement of one owner.
type Tier struct {
	OwnerID      rooms.OwnerID
	Name         string
	Rate         float64
	DiscountRate float64
}

// DefaultTier is the free tier.
func DefaultTier(owner rooms.OwnerID) Tier {
	return Tier{OwnerID: owner, Name: "free", Rate: DefaultRate}
}

// OwnerTiers resolves the commission rate and subscription discount of an owner.
type OwnerTiers interface {
	CommissionRate(ctx context.Context, owner rooms.OwnerID) (Tier, error)
}

// Commission is the platform's cut of the first month of rent. Created once per activated
// booking; only the paid flag moves afterwards.
type Commission struct {
	ID          string
	BookingID   string
	OwnerID     rooms.OwnerID
	BaseAmount  money.Money
	Rate        float64
	Amount      money.Money
	Discount    money.Money
	FinalAmount money.Money
	Paid        bool
	PaidAt      time.Time
	CreatedAt   time.Time
}

// New derives a commission from the booking rent and the owner's tier.
func New(id, bookingID string, rent money.Money, tier Tier, now time.Time) (*Commission, error) {
	amount, final, err := fees.Commission(rent, tier.Rate, tier.DiscountRate)
	if err != nil {
		return nil, err
	}
	discount, err := amount.Sub(final)
	if err != nil {
		return nil, err
	}
	return &Commission{
		ID:          id,
		BookingID:   bookingID,
		OwnerID:     tier.OwnerID,
		BaseAmount:  rent,
		Rate:        tier.Rate,
		Amount:      amount,
		Discount:    discount,
		FinalAmount: final,
		CreatedAt:   now.UTC(),
	}, nil
}

// MarkPaid flips the paid flag exactly once.
func (c *Commission) MarkPaid(now time.Time) error {
	if c.Paid {
		return ErrAlreadyPaid
	}
	c.Paid = true
	c.PaidAt = now.UTC()
	return nil
}

type Repository interface {
	ByBooking(ctx context.Context, bookingID string) (*Commission, error)
	Save(ctx context.Context, c *Commission) error
}
