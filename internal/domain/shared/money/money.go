package money

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultCurrency is the only currency the settlement engine books in.
const DefaultCurrency = "INR"

const minorPlaces = 2

// MaxAmount bounds every amount in minor units (10^16 rupees). Sums of a few bounded
// amounts stay far from int64 overflow.
const MaxAmount int64 = 1_000_000_000_000_000

var (
	ErrInvalidCurrency  = errors.New("money: invalid currency code")
	ErrCurrencyMismatch = errors.New("money: currency mismatch")
	ErrInvalidAmount    = errors.New("money: invalid amount")
)

var (
	hundred    = decimal.NewFromInt(100)
	maxDecimal = decimal.NewFromInt(MaxAmount)
)

// Money keeps amounts in integer minor units (paise) so repeated recomputation never drifts.
type Money struct {
	Amount   int64  `json:"amount" bson:"amount"`
	Currency string `json:"currency" bson:"currency"`
}

// New constructs Money from minor units validating the currency code.
func New(amount int64, currency string) (Money, error) {
	if len(currency) != 3 {
		return Money{}, ErrInvalidCurrency
	}
	if !inRange(amount) {
		return Money{}, fmt.Errorf("%w: %d minor units out of range", ErrInvalidAmount, amount)
	}
	return Money{Amount: amount, Currency: strings.ToUpper(currency)}, nil
}

// Must creates Money and panics if validation fails; useful in tests and fixtures.
func Must(amount int64, currency string) Money {
	m, err := New(amount, currency)
	if err != nil {
		panic(err)
	}
	return m
}

// Zero returns a zero amount in the given currency.
func Zero(currency string) Money {
	return Money{Currency: strings.ToUpper(currency)}
}

// FromMajor converts a major-unit float (rupees) into Money, rounding half away from zero
// to two decimals. NaN, infinities and negative values are rejected.
func FromMajor(value float64, currency string) (Money, error) {
	if math.IsNaN(value) || math.IsInf(value, 0) || value < 0 {
		return Money{}, fmt.Errorf("%w: %v", ErrInvalidAmount, value)
	}
	return FromDecimal(decimal.NewFromFloat(value), currency)
}

// MustMajor is FromMajor in the default currency that panics on error.
func MustMajor(value float64) Money {
	m, err := FromMajor(value, DefaultCurrency)
	if err != nil {
		panic(err)
	}
	return m
}

// FromDecimal converts a major-unit decimal into Money rounded to minor units.
func FromDecimal(value decimal.Decimal, currency string) (Money, error) {
	if len(currency) != 3 {
		return Money{}, ErrInvalidCurrency
	}
	minor := value.Round(minorPlaces).Mul(hundred)
	if minor.Abs().GreaterThan(maxDecimal) {
		return Money{}, fmt.Errorf("%w: %s out of range", ErrInvalidAmount, value)
	}
	return Money{Amount: minor.IntPart(), Currency: strings.ToUpper(currency)}, nil
}

// ParseMajor reads a major-unit decimal string such as "999" or "12345.67".
func ParseMajor(raw, currency string) (Money, error) {
	value, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return Money{}, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}
	if value.IsNegative() {
		return Money{}, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}
	return FromDecimal(value, currency)
}

// Decimal returns the amount in major units.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Amount, -minorPlaces)
}

// Major returns the amount in major units as a float, for display and JSON views only.
func (m Money) Major() float64 {
	f, _ := m.Decimal().Float64()
	return f
}

// Add adds two money values ensuring currencies match.
func (m Money) Add(other Money) (Money, error) {
	if err := m.ensureSameCurrency(other); err != nil {
		return Money{}, err
	}
	return m.sum(m.Amount, other.Amount)
}

// Sub subtracts other from the receiver.
func (m Money) Sub(other Money) (Money, error) {
	if err := m.ensureSameCurrency(other); err != nil {
		return Money{}, err
	}
	if !inRange(other.Amount) {
		return Money{}, fmt.Errorf("%w: %d minor units out of range", ErrInvalidAmount, other.Amount)
	}
	return m.sum(m.Amount, -other.Amount)
}

// Multiply multiplies the amount by an integer factor.
func (m Money) Multiply(times int64) (Money, error) {
	v := decimal.NewFromInt(m.Amount).Mul(decimal.NewFromInt(times))
	return m.fromMinor(v)
}

// Percent returns rate percent of the amount rounded half away from zero to minor units.
func (m Money) Percent(rate decimal.Decimal) (Money, error) {
	v := decimal.NewFromInt(m.Amount).Mul(rate).Div(hundred).Round(0)
	return m.fromMinor(v)
}

// InRange reports whether the amount is within MaxAmount either side of zero.
func (m Money) InRange() bool {
	return inRange(m.Amount)
}

func (m Money) fromMinor(v decimal.Decimal) (Money, error) {
	if v.Abs().GreaterThan(maxDecimal) {
		return Money{}, fmt.Errorf("%w: %s minor units out of range", ErrInvalidAmount, v)
	}
	return Money{Amount: v.IntPart(), Currency: m.Currency}, nil
}

// sum adds two bounded amounts; their sum cannot wrap int64, only leave the bound.
func (m Money) sum(a, b int64) (Money, error) {
	if !inRange(a) || !inRange(b) || !inRange(a+b) {
		return Money{}, fmt.Errorf("%w: %d %+d out of range", ErrInvalidAmount, a, b)
	}
	return Money{Amount: a + b, Currency: m.Currency}, nil
}

func inRange(amount int64) bool {
	return amount >= -MaxAmount && amount <= MaxAmount
}

// Cmp compares two amounts of the same currency: -1, 0 or +1.
func (m Money) Cmp(other Money) (int, error) {
	if err := m.ensureSameCurrency(other); err != nil {
		return 0, err
	}
	switch {
	case m.Amount < other.Amount:
		return -1, nil
	case m.Amount > other.Amount:
		return 1, nil
	}
	return 0, nil
}

// IsZero returns true if the amount equals zero.
func (m Money) IsZero() bool {
	return m.Amount == 0
}

// IsNegative reports whether the amount is below zero.
func (m Money) IsNegative() bool {
	return m.Amount < 0
}

func (m Money) String() string {
	return m.Decimal().StringFixed(minorPlaces) + " " + m.Currency
}

func (m Money) ensureSameCurrency(other Money) error {
	if m.Currency == "" || other.Currency == "" {
		return ErrInvalidCurrency
	}
	if m.Currency != other.Currency {
		return ErrCurrencyMismatch
	}
	return nil
}
