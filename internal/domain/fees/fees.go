// Package fees computes every amount a booking owes. All functions are pure; callers persist
// the results.
package fees

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"roomies/internal/domain/shared/money"
)

// ErrInvalidAmount is shared with the money package so malformed float input and malformed
// calculator input are matched the same way.
var ErrInvalidAmount = money.ErrInvalidAmount

var (
	depositMultiplier = int64(2)
	platformFeeRate   = decimal.NewFromInt(2)
)

// Breakdown is the full set of amounts due for one booking.
type Breakdown struct {
	MonthlyRent     money.Money `json:"monthly_rent"`
	BookingAmount   money.Money `json:"booking_amount"`
	SecurityDeposit money.Money `json:"security_deposit"`
	PlatformFee     money.Money `json:"platform_fee"`
	TotalDue        money.Money `json:"total_due"`
}

// Deposit is two months of rent.
func Deposit(monthlyRent money.Money) (money.Money, error) {
	if err := validate(monthlyRent); err != nil {
		return money.Money{}, err
	}
	return monthlyRent.Multiply(depositMultiplier)
}

// PlatformFee is 2% of the first month of rent, rounded to two decimals.
func PlatformFee(monthlyRent money.Money) (money.Money, error) {
	if err := validate(monthlyRent); err != nil {
		return money.Money{}, err
	}
	return monthlyRent.Percent(platformFeeRate)
}

// TotalDue sums the booking fee, deposit, first month of rent and platform fee.
func TotalDue(bookingAmount, deposit, monthlyRent, platformFee money.Money) (money.Money, error) {
	total := money.Zero(monthlyRent.Currency)
	for _, part := range []money.Money{bookingAmount, deposit, monthlyRent, platformFee} {
		if err := validate(part); err != nil {
			return money.Money{}, err
		}
		sum, err := total.Add(part)
		if err != nil {
			return money.Money{}, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
		}
		total = sum
	}
	return total, nil
}

// Quote derives the whole breakdown from the rent and the booking fee.
func Quote(monthlyRent, bookingAmount money.Money) (Breakdown, error) {
	deposit, err := Deposit(monthlyRent)
	if err != nil {
		return Breakdown{}, err
	}
	fee, err := PlatformFee(monthlyRent)
	if err != nil {
		return Breakdown{}, err
	}
	total, err := TotalDue(bookingAmount, deposit, monthlyRent, fee)
	if err != nil {
		return Breakdown{}, err
	}
	return Breakdown{
		MonthlyRent:     monthlyRent,
		BookingAmount:   bookingAmount,
		SecurityDeposit: deposit,
		PlatformFee:     fee,
		TotalDue:        total,
	}, nil
}

// Commission returns the platform's cut of one month of rent. base is rent × ownerRate/100 and
// final subtracts rent × discountRate/100, floored at zero.
func Commission(monthlyRent money.Money, ownerRate, discountRate float64) (base, final money.Money, err error) {
	if err := validate(monthlyRent); err != nil {
		return money.Money{}, money.Money{}, err
	}
	rate, err := percent(ownerRate)
	if err != nil {
		return money.Money{}, money.Money{}, err
	}
	discount, err := percent(discountRate)
	if err != nil {
		return money.Money{}, money.Money{}, err
	}
	if base, err = monthlyRent.Percent(rate); err != nil {
		return money.Money{}, money.Money{}, err
	}
	off, err := monthlyRent.Percent(discount)
	if err != nil {
		return money.Money{}, money.Money{}, err
	}
	final, err = base.Sub(off)
	if err != nil {
		return money.Money{}, money.Money{}, err
	}
	if final.IsNegative() {
		final = money.Zero(monthlyRent.Currency)
	}
	return base, final, nil
}

func validate(m money.Money) error {
	if m.Currency == "" {
		return fmt.Errorf("%w: currency unset", ErrInvalidAmount)
	}
	if m.IsNegative() {
		return fmt.Errorf("%w: negative amount %s", ErrInvalidAmount, m)
	}
	if !m.InRange() {
		return fmt.Errorf("%w: %d minor units out of range", ErrInvalidAmount, m.Amount)
	}
	return nil
}

func percent(rate float64) (decimal.Decimal, error) {
	if math.IsNaN(rate) || math.IsInf(rate, 0) || rate < 0 {
		return decimal.Decimal{}, fmt.Errorf("%w: rate %v", ErrInvalidAmount, rate)
	}
	return decimal.NewFromFloat(rate), nil
}
