package funding

import "time"

// Direction tells whether funds enter or leave the wallet.
type Direction string

const (
	DirectionDeposit    Direction = "deposit"
	DirectionWithdrawal Direction = "withdrawal"
)

// Method is the off-platform channel the funds travel through.
type Method string

const (
	MethodBankTransfer Method = "bank_transfer"
	MethodMobileMoney  Method = "mobile_money"
	MethodCardDelivery Method = "card_delivery"
	MethodCashAgent    Method = "cash_agent"
)

// Status is the lifecycle state of a request. Pending is the only state that
// can change; approved and rejected are terminal.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Decision is the resolver's verdict.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

func (d Direction) valid() bool {
	return d == DirectionDeposit || d == DirectionWithdrawal
}

func (m Method) valid() bool {
	switch m {
	case MethodBankTransfer, MethodMobileMoney, MethodCardDelivery, MethodCashAgent:
		return true
	}
	return false
}

// Request is a user-initiated deposit or withdrawal awaiting manual verification.
type Request struct {
	ID              string
	OwnerID         string
	WalletID        string
	Direction       Direction
	Method          Method
	Amount          int64
	Fee             int64
	Net             int64
	EvidenceRef     string
	Status          Status
	ResolverID      string
	ResolutionNotes string
	ResolvedAt      *time.Time
	LedgerGroupID   string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
