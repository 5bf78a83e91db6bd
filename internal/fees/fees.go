// Package fees computes operation fees. Everything here is pure: no I/O, no clock.
package fees

import (
	"fmt"

	"github.com/shopspring/decimal"
)

var oneHundred = decimal.NewFromInt(100)

// Operation identifies which policy applies.
type Operation string

const (
	OperationDeposit    Operation = "deposit"
	OperationWithdrawal Operation = "withdrawal"
	OperationTransfer   Operation = "transfer"
)

// Policy describes how a fee is derived from an amount. A zero MaxFee means
// the fee is uncapped.
type Policy struct {
	Enabled    bool            `mapstructure:"enabled" json:"enabled"`
	Percentage decimal.Decimal `mapstructure:"percentage" json:"percentage"`
	Fixed      int64           `mapstructure:"fixed" json:"fixed"`
	MinFee     int64           `mapstructure:"min_fee" json:"min_fee"`
	MaxFee     int64           `mapstructure:"max_fee" json:"max_fee"`
}

// Result is the outcome of Calculate.
type Result struct {
	Fee int64
	Net int64
}

// Calculate returns the fee and the net amount for amount under p.
//
// fee = clamp(round(amount * percentage / 100) + fixed, [min, max]), then capped
// at amount so the net never goes negative. Rounding is half away from zero to
// the minor unit.
func Calculate(amount int64, p Policy) Result {
	if amount <= 0 || !p.Enabled {
		return Result{Fee: 0, Net: amount}
	}

	fee := p.clamped(amount)
	if fee > amount {
		fee = amount
	}
	return Result{Fee: fee, Net: amount - fee}
}

// Covers reports whether amount can carry its full fee under p. Amounts that
// cannot would be charged less than min_fee, so entry points refuse them.
func (p Policy) Covers(amount int64) bool {
	if amount <= 0 {
		return false
	}
	return !p.Enabled || p.clamped(amount) <= amount
}

func (p Policy) clamped(amount int64) int64 {
	fee := decimal.NewFromInt(amount).Mul(p.Percentage).Div(oneHundred).Round(0).IntPart() + p.Fixed
	if fee < p.MinFee {
		fee = p.MinFee
	}
	if p.MaxFee > 0 && fee > p.MaxFee {
		fee = p.MaxFee
	}
	if fee < 0 {
		fee = 0
	}
	return fee
}

// Validate rejects policies whose components are negative or whose bounds are inverted.
func (p Policy) Validate() error {
	if p.Percentage.IsNegative() || p.Percentage.GreaterThan(oneHundred) {
		return fmt.Errorf("percentage must be within [0, 100], got %s", p.Percentage)
	}
	if p.Fixed < 0 || p.MinFee < 0 || p.MaxFee < 0 {
		return fmt.Errorf("fee components must not be negative")
	}
	if p.MaxFee > 0 && p.MaxFee < p.MinFee {
		return fmt.Errorf("max_fee %d is below min_fee %d", p.MaxFee, p.MinFee)
	}
	return nil
}

// Schedule holds one policy per operation type.
type Schedule struct {
	Version    int    `mapstructure:"version" json:"version"`
	Deposit    Policy `mapstructure:"deposit" json:"deposit"`
	Withdrawal Policy `mapstructure:"withdrawal" json:"withdrawal"`
	Transfer   Policy `mapstructure:"transfer" json:"transfer"`
}

// For returns the policy for op. Unknown operations get a disabled policy.
func (s Schedule) For(op Operation) Policy {
	switch op {
	case OperationDeposit:
		return s.Deposit
	case OperationWithdrawal:
		return s.Withdrawal
	case OperationTransfer:
		return s.Transfer
	default:
		return Policy{}
	}
}

// Validate checks every policy of the schedule.
func (s Schedule) Validate() error {
	for _, op := range []Operation{OperationDeposit, OperationWithdrawal, OperationTransfer} {
		if err := s.For(op).Validate(); err != nil {
			return fmt.Errorf("%s fee policy: %w", op, err)
		}
	}
	return nil
}
