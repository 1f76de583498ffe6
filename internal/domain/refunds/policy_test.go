package refunds

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roomies/internal/domain/shared/actor"
	"roomies/internal/domain/shared/money"
)

// tenancyInput describes a fully paid booking with rent 10000 and booking fee 999.
func tenancyInput(initiator actor.Role) Input {
	return Input{
		Stage:           StageTenancy,
		Initiator:       initiator,
		TotalPaid:       money.MustMajor(999 + 20000 + 10000 + 200),
		SecurityDeposit: money.MustMajor(20000),
		MonthlyRent:     money.MustMajor(10000),
	}
}

func TestCompute_TenancyRenterForfeitsOneMonth(t *testing.T) {
	refund, err := Compute(tenancyInput(actor.Renter))
	require.NoError(t, err)
	assert.Equal(t, money.MustMajor(20000), refund)
}

func TestCompute_TenancyOwnerReturnsRentToo(t *testing.T) {
	refund, err := Compute(tenancyInput(actor.Owner))
	require.NoError(t, err)
	assert.Equal(t, money.MustMajor(30000), refund)

	refund, err = Compute(tenancyInput(actor.System))
	require.NoError(t, err)
	assert.Equal(t, money.MustMajor(30000), refund)
}

func TestCompute_BeforeTenancyReturnsEverythingPaid(t *testing.T) {
	for _, stage := range []Stage{StageAwaitingApproval, StageApproved} {
		for _, who := range []actor.Role{actor.Renter, actor.Owner} {
			refund, err := Compute(Input{
				Stage:           stage,
				Initiator:       who,
				TotalPaid:       money.MustMajor(999),
				SecurityDeposit: money.MustMajor(16000),
				MonthlyRent:     money.MustMajor(8000),
			})
			require.NoError(t, err)
			assert.Equal(t, money.MustMajor(999), refund, "stage %s initiator %s", stage, who)
		}
	}

	refund, err := Compute(Input{
		Stage:           StageAwaitingApproval,
		Initiator:       actor.Renter,
		TotalPaid:       money.Zero(money.DefaultCurrency),
		SecurityDeposit: money.MustMajor(16000),
		MonthlyRent:     money.MustMajor(8000),
	})
	require.NoError(t, err)
	assert.True(t, refund.IsZero())
}

func TestCompute_RefundExceedingPaidIsAnInvariantFailure(t *testing.T) {
	in := tenancyInput(actor.Owner)
	in.TotalPaid = money.MustMajor(999)

	_, err := Compute(in)
	assert.ErrorIs(t, err, ErrRefundExceedsPaid)
}

func TestCompute_UnknownStage(t *testing.T) {
	_, err := Compute(Input{Stage: "closed", TotalPaid: money.MustMajor(1)})
	assert.ErrorIs(t, err, ErrUnknownStage)
}

func TestRecord_MarkProcessedOnce(t *testing.T) {
	r := &Record{Amount: money.MustMajor(10)}
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, r.MarkProcessed(now))
	assert.True(t, r.Processed)
	assert.Equal(t, now, r.ProcessedAt)
	assert.ErrorIs(t, r.MarkProcessed(now.Add(time.Hour)), ErrAlreadyProcessed)
	assert.Equal(t, now, r.ProcessedAt)
}
