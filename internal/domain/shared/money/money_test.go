package money

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromMajor_RoundsHalfAwayFromZero(t *testing.T) {
	m, err := FromMajor(160.005, DefaultCurrency)
	require.NoError(t, err)
	assert.Equal(t, int64(16001), m.Amount)
	assert.Equal(t, "INR", m.Currency)

	m, err = FromMajor(8000, "inr")
	require.NoError(t, err)
	assert.Equal(t, int64(800000), m.Amount)
	assert.Equal(t, "INR", m.Currency)
}

func TestFromMajor_RejectsMalformedInput(t *testing.T) {
	for _, v := range []float64{-1, math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, err := FromMajor(v, DefaultCurrency)
		assert.ErrorIs(t, err, ErrInvalidAmount, "value %v", v)
	}
	_, err := FromMajor(10, "RUPEE")
	assert.ErrorIs(t, err, ErrInvalidCurrency)
}

func TestPercent(t *testing.T) {
	rent := MustMajor(8000)
	fee, err := rent.Percent(decimal.NewFromInt(2))
	require.NoError(t, err)
	assert.Equal(t, MustMajor(160), fee)

	odd := Must(33333, DefaultCurrency) // 333.33
	fee, err = odd.Percent(decimal.NewFromInt(2))
	require.NoError(t, err)
	assert.Equal(t, int64(667), fee.Amount)
}

func TestAmountsAreBounded(t *testing.T) {
	_, err := FromMajor(1e17, DefaultCurrency)
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = ParseMajor("92233720368547758.07", DefaultCurrency)
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = New(MaxAmount+1, DefaultCurrency)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	top := Must(MaxAmount, DefaultCurrency)
	_, err = top.Multiply(2)
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = top.Add(Must(1, DefaultCurrency))
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = top.Percent(decimal.NewFromInt(1000))
	assert.ErrorIs(t, err, ErrInvalidAmount)

	wrapped := Money{Amount: math.MaxInt64, Currency: DefaultCurrency}
	_, err = wrapped.Add(Must(1, DefaultCurrency))
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = Must(0, DefaultCurrency).Sub(Money{Amount: math.MinInt64, Currency: DefaultCurrency})
	assert.ErrorIs(t, err, ErrInvalidAmount)

	double, err := MustMajor(8000).Multiply(2)
	require.NoError(t, err)
	assert.Equal(t, MustMajor(16000), double)
}

func TestArithmeticChecksCurrency(t *testing.T) {
	a := MustMajor(10)
	b := Must(100, "USD")
	_, err := a.Add(b)
	assert.ErrorIs(t, err, ErrCurrencyMismatch)
	_, err = a.Cmp(Money{Amount: 1})
	assert.ErrorIs(t, err, ErrInvalidCurrency)

	sum, err := a.Add(MustMajor(0.5))
	require.NoError(t, err)
	assert.Equal(t, "10.50 INR", sum.String())
	assert.InDelta(t, 10.5, sum.Major(), 1e-9)
}

func TestParseMajor(t *testing.T) {
	m, err := ParseMajor(" 12345.675 ", "inr")
	require.NoError(t, err)
	assert.Equal(t, Must(1234568, DefaultCurrency), m)

	_, err = ParseMajor("-1", DefaultCurrency)
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = ParseMajor("nine", DefaultCurrency)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}
