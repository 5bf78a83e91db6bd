// Package audit records privileged state transitions and completed transfers.
// The log is append-only: entries are never updated or removed.
package audit

import (
	"context"
	"time"

	"github.com/congo-pay/settlement/internal/apperr"
	"github.com/congo-pay/settlement/internal/ledger"
)

// SubjectType names the kind of entity an entry is about.
type SubjectType string

const (
	SubjectFundingRequest SubjectType = "funding_request"
	SubjectTransfer       SubjectType = "transfer"
)

const (
	ActionFundingApproved   = "funding.approved"
	ActionFundingRejected   = "funding.rejected"
	ActionTransferCompleted = "transfer.completed"
	ActionTransferReversed  = "transfer.reversed"
)

// ErrInvalidEntry rejects entries without actor, action or subject.
var ErrInvalidEntry = apperr.New(apperr.KindValidation, "invalid_audit_entry", "invalid audit entry")

// Entry is one immutable audit record.
type Entry struct {
	ID           string
	ActorID      string
	ActorRole    string
	Action       string
	SubjectType  SubjectType
	SubjectID    string
	BeforeStatus string
	AfterStatus  string
	Notes        string
	Metadata     map[string]string
	CreatedAt    time.Time
}

// Log is the append-only audit store.
type Log interface {
	Append(ctx context.Context, entry Entry) (Entry, error)
	ListBySubject(ctx context.Context, subjectType SubjectType, subjectID string) ([]Entry, error)
	List(ctx context.Context, page ledger.Page) ([]Entry, error)
}

func (e Entry) validate() error {
	if e.ActorID == "" || e.Action == "" || e.SubjectID == "" {
		return ErrInvalidEntry
	}
	switch e.SubjectType {
	case SubjectFundingRequest, SubjectTransfer:
		return nil
	}
	return ErrInvalidEntry
}
