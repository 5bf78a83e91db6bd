package fees

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pct(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestCalculate(t *testing.T) {
	standard := Policy{Enabled: true, Percentage: pct("2"), MinFee: 5, MaxFee: 50}

	tests := []struct {
		name    string
		amount  int64
		policy  Policy
		wantFee int64
		wantNet int64
	}{
		{name: "zero amount", amount: 0, policy: standard, wantFee: 0, wantNet: 0},
		{name: "negative amount", amount: -10, policy: standard, wantFee: 0, wantNet: -10},
		{name: "disabled policy", amount: 1_000, policy: Policy{Percentage: pct("2"), MinFee: 5}, wantFee: 0, wantNet: 1_000},
		{name: "percentage within bounds", amount: 300, policy: standard, wantFee: 6, wantNet: 294},
		{name: "clamped to min", amount: 100, policy: standard, wantFee: 5, wantNet: 95},
		{name: "clamped to max", amount: 10_000, policy: standard, wantFee: 50, wantNet: 9_950},
		{name: "fixed component", amount: 1_000, policy: Policy{Enabled: true, Percentage: pct("1"), Fixed: 25}, wantFee: 35, wantNet: 965},
		{name: "uncapped when max is zero", amount: 100_000, policy: Policy{Enabled: true, Percentage: pct("1.5")}, wantFee: 1_500, wantNet: 98_500},
		{name: "rounds half away from zero", amount: 125, policy: Policy{Enabled: true, Percentage: pct("2")}, wantFee: 3, wantNet: 122},
		{name: "never exceeds amount", amount: 3, policy: standard, wantFee: 3, wantNet: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Calculate(tt.amount, tt.policy)
			assert.Equal(t, tt.wantFee, got.Fee)
			assert.Equal(t, tt.wantNet, got.Net)
		})
	}
}

func TestCalculateInvariants(t *testing.T) {
	policies := []Policy{
		{Enabled: true, Percentage: pct("2"), MinFee: 5, MaxFee: 50},
		{Enabled: true, Percentage: pct("0.75"), Fixed: 10},
		{Enabled: true, Percentage: pct("3.3"), MinFee: 100, MaxFee: 100},
	}
	for _, p := range policies {
		prev := int64(-1)
		for amount := int64(1); amount <= 5_000; amount += 7 {
			r := Calculate(amount, p)
			require.GreaterOrEqual(t, r.Fee, int64(0))
			require.LessOrEqual(t, r.Net, amount)
			require.Equal(t, amount, r.Fee+r.Net)
			if r.Fee < amount {
				require.GreaterOrEqual(t, r.Fee, p.MinFee)
			}
			if p.MaxFee > 0 {
				require.LessOrEqual(t, r.Fee, p.MaxFee)
			}
			require.GreaterOrEqual(t, r.Fee, prev, "fee must be monotonic in amount")
			prev = r.Fee
		}
	}
}

func TestPolicyCovers(t *testing.T) {
	standard := Policy{Enabled: true, Percentage: pct("2"), MinFee: 5, MaxFee: 50}

	assert.False(t, standard.Covers(3), "below min fee")
	assert.False(t, standard.Covers(0))
	assert.True(t, standard.Covers(5), "exactly min fee")
	assert.True(t, standard.Covers(10_000))
	assert.True(t, Policy{MinFee: 5}.Covers(1), "disabled policy charges nothing")
	assert.False(t, Policy{Enabled: true, Fixed: 10}.Covers(9))

	for _, amount := range []int64{5, 6, 100, 2_500, 10_000} {
		got := Calculate(amount, standard)
		assert.GreaterOrEqual(t, got.Fee, standard.MinFee, "amount %d", amount)
		assert.LessOrEqual(t, got.Fee, standard.MaxFee, "amount %d", amount)
	}
}

func TestPolicyValidate(t *testing.T) {
	assert.NoError(t, Policy{Enabled: true, Percentage: pct("2"), MinFee: 5, MaxFee: 50}.Validate())
	assert.Error(t, Policy{Percentage: pct("-1")}.Validate())
	assert.Error(t, Policy{Percentage: pct("101")}.Validate())
	assert.Error(t, Policy{Fixed: -1}.Validate())
	assert.Error(t, Policy{MinFee: 10, MaxFee: 5}.Validate())
}

func TestScheduleFor(t *testing.T) {
	s := Schedule{
		Version:    3,
		Deposit:    Policy{Enabled: true, Fixed: 1},
		Withdrawal: Policy{Enabled: true, Fixed: 2},
		Transfer:   Policy{Enabled: true, Fixed: 3},
	}
	assert.Equal(t, int64(1), s.For(OperationDeposit).Fixed)
	assert.Equal(t, int64(2), s.For(OperationWithdrawal).Fixed)
	assert.Equal(t, int64(3), s.For(OperationTransfer).Fixed)
	assert.False(t, s.For("refund").Enabled)
	assert.NoError(t, s.Validate())

	s.Transfer.MinFee, s.Transfer.MaxFee = 9, 1
	assert.Error(t, s.Validate())
}
