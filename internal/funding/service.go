package funding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/congo-pay/settlement/internal/apperr"
	"github.com/congo-pay/settlement/internal/audit"
	"github.com/congo-pay/settlement/internal/fees"
	"github.com/congo-pay/settlement/internal/identity"
	"github.com/congo-pay/settlement/internal/ledger"
	"github.com/congo-pay/settlement/internal/notification"
	"github.com/congo-pay/settlement/internal/wallet"
)

const referencePrefix = "funding:"

var (
	ErrNotFound            = apperr.New(apperr.KindNotFound, "funding_request_not_found", "funding request not found")
	ErrForbidden           = apperr.New(apperr.KindForbidden, "forbidden", "resolver is not authorized")
	ErrAlreadyResolved     = apperr.New(apperr.KindState, "already_resolved", "funding request already resolved")
	ErrReasonRequired      = apperr.New(apperr.KindValidation, "reason_required", "rejection requires notes")
	ErrInsufficientBalance = apperr.New(apperr.KindResource, "insufficient_balance", "insufficient balance")
	ErrConflict            = apperr.New(apperr.KindState, "funding_conflict", "ledger busy, retry later")
	ErrBusy                = apperr.New(apperr.KindState, "request_busy", "funding request is being resolved")
	ErrInvalidAmount       = apperr.New(apperr.KindValidation, "invalid_amount", "amount must be positive")
	ErrAmountBelowFee      = apperr.New(apperr.KindValidation, "amount_below_fee", "amount does not cover the minimum fee")
	ErrInvalidDirection    = apperr.New(apperr.KindValidation, "invalid_direction", "unknown direction")
	ErrInvalidMethod       = apperr.New(apperr.KindValidation, "invalid_method", "unknown method")
	ErrInvalidDecision     = apperr.New(apperr.KindValidation, "invalid_decision", "unknown decision")
	ErrEvidenceRequired    = apperr.New(apperr.KindValidation, "evidence_required", "deposit requires evidence")
	ErrInvalidEvidence     = apperr.New(apperr.KindValidation, "invalid_evidence", "invalid evidence reference")
)

// Config carries the fee settings applied on approval.
type Config struct {
	Fees           fees.Schedule
	FeeSinkAccount string
}

// Deps groups the collaborators of the workflow.
type Deps struct {
	Repo     Repository
	Ledger   ledger.Store
	Wallets  *wallet.Service
	Audit    audit.Log
	Notifier *notification.Dispatcher
	Locker   Locker
	Evidence EvidenceStore
	Config   Config
	Logger   *slog.Logger
}

// Service runs the manual deposit and withdrawal reconciliation workflow.
// A request only touches the ledger when an admin approves it.
type Service struct {
	repo     Repository
	ledger   ledger.Store
	wallets  *wallet.Service
	audit    audit.Log
	notifier *notification.Dispatcher
	locker   Locker
	evidence EvidenceStore
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time
}

// NewService prepares a funding service ensuring the fee sink account exists.
func NewService(ctx context.Context, d Deps) (*Service, error) {
	if d.Wallets == nil || d.Ledger == nil || d.Repo == nil {
		return nil, fmt.Errorf("funding: repository, ledger and wallet service are required")
	}
	if d.Locker == nil {
		d.Locker = NewLocalLocker(5 * time.Second)
	}
	if d.Evidence == nil {
		d.Evidence = StaticEvidenceStore{}
	}
	if d.Audit == nil {
		d.Audit = audit.NewMemoryLog()
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Config.FeeSinkAccount != "" {
		if err := d.Ledger.EnsureAccount(ctx, d.Config.FeeSinkAccount, ""); err != nil {
			return nil, err
		}
	}
	return &Service{
		repo:     d.Repo,
		ledger:   d.Ledger,
		wallets:  d.Wallets,
		audit:    d.Audit,
		notifier: d.Notifier,
		locker:   d.Locker,
		evidence: d.Evidence,
		cfg:      d.Config,
		logger:   d.Logger,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// CreateInput captures a user's funding request.
type CreateInput struct {
	OwnerID     string
	Direction   Direction
	Method      Method
	Amount      int64
	EvidenceRef string
}

// Create records a pending request. No balance changes until approval.
func (s *Service) Create(ctx context.Context, input CreateInput) (Request, error) {
	if input.Amount <= 0 {
		return Request{}, ErrInvalidAmount
	}
	if !input.Direction.valid() {
		return Request{}, ErrInvalidDirection
	}
	if !input.Method.valid() {
		return Request{}, ErrInvalidMethod
	}
	ref := strings.TrimSpace(input.EvidenceRef)
	if ref == "" && input.Direction == DirectionDeposit {
		return Request{}, ErrEvidenceRequired
	}
	if ref != "" {
		if err := s.evidence.Check(ctx, input.Method, ref); err != nil {
			return Request{}, err
		}
	}

	if s.cfg.FeeSinkAccount != "" && !s.policy(input.Direction).Covers(input.Amount) {
		return Request{}, ErrAmountBelowFee
	}

	w, err := s.wallets.GetByOwner(ctx, input.OwnerID)
	if err != nil {
		return Request{}, err
	}

	quote := s.charge(input.Direction, input.Amount)
	now := s.now()
	req := Request{
		ID:          uuid.NewString(),
		OwnerID:     input.OwnerID,
		WalletID:    w.ID,
		Direction:   input.Direction,
		Method:      input.Method,
		Amount:      input.Amount,
		Fee:         quote.Fee,
		Net:         quote.Net,
		EvidenceRef: ref,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Create(ctx, req); err != nil {
		return Request{}, err
	}
	return req, nil
}

// ResolveInput carries an admin's decision.
type ResolveInput struct {
	RequestID string
	Resolver  identity.Principal
	Decision  Decision
	Notes     string
}

// Resolve approves or rejects a pending request. Approval applies the ledger
// group under the idempotency key funding:<id>, so a retry after a crash
// between the ledger commit and the status update heals instead of applying
// twice. A rejection of a request whose group is already committed completes
// the approval instead. Ledger failures leave the request pending.
func (s *Service) Resolve(ctx context.Context, input ResolveInput) (Request, error) {
	if !input.Resolver.IsAdmin() {
		return Request{}, ErrForbidden
	}
	if input.Decision != DecisionApprove && input.Decision != DecisionReject {
		return Request{}, ErrInvalidDecision
	}
	notes := strings.TrimSpace(input.Notes)
	if input.Decision == DecisionReject && notes == "" {
		return Request{}, ErrReasonRequired
	}

	unlock, err := s.locker.Lock(ctx, input.RequestID)
	if err != nil {
		return Request{}, err
	}
	defer unlock()

	req, err := s.repo.Get(ctx, input.RequestID)
	if err != nil {
		return Request{}, err
	}
	if req.Status != StatusPending {
		return Request{}, ErrAlreadyResolved
	}

	before := req.Status
	now := s.now()
	resolved := req
	resolved.ResolverID = input.Resolver.UserID
	resolved.ResolutionNotes = notes
	resolved.ResolvedAt = &now
	resolved.UpdatedAt = now

	switch input.Decision {
	case DecisionApprove:
		groupID, charge, err := s.apply(ctx, req)
		if err != nil {
			return Request{}, err
		}
		resolved.Status = StatusApproved
		resolved.LedgerGroupID = groupID
		resolved.Fee = charge.Fee
		resolved.Net = charge.Net
	case DecisionReject:
		// A committed funding group means an earlier approval crashed before
		// its status update; the request can only finish as approved.
		group, err := s.ledger.GroupByKey(ctx, referencePrefix+req.ID)
		switch {
		case err == nil:
			s.logger.Warn("funding ledger group already committed, completing approval instead of rejection", "request_id", req.ID, "group_id", group.ID)
			resolved.Status = StatusApproved
			resolved.LedgerGroupID = group.ID
			charge := committedFee(group, req.Amount)
			resolved.Fee = charge.Fee
			resolved.Net = charge.Net
		case errors.Is(err, ledger.ErrGroupNotFound):
			resolved.Status = StatusRejected
		default:
			return Request{}, err
		}
	}

	if err := s.repo.Resolve(ctx, resolved); err != nil {
		return Request{}, err
	}

	s.record(ctx, input.Resolver, before, resolved)
	s.notifier.Dispatch(ctx, notification.Message{
		Kind:        notification.KindFundingResolved,
		Destination: resolved.OwnerID,
		Body:        fmt.Sprintf("Your %s of %d was %s", resolved.Direction, resolved.Amount, resolved.Status),
		Data:        map[string]string{"request_id": resolved.ID, "status": string(resolved.Status)},
	})
	return resolved, nil
}

// apply commits the balance effect of an approved request and returns the
// ledger group identifier with the fee actually charged.
func (s *Service) apply(ctx context.Context, req Request) (string, fees.Result, error) {
	w, err := s.wallets.Get(ctx, req.WalletID)
	if err != nil {
		return "", fees.Result{}, err
	}
	charge := s.charge(req.Direction, req.Amount)

	var entries []ledger.Entry
	switch req.Direction {
	case DirectionDeposit:
		if charge.Net > 0 {
			entries = append(entries, ledger.Entry{AccountCode: w.AccountCode, Delta: charge.Net, Kind: ledger.KindDepositCredit})
		}
	case DirectionWithdrawal:
		entries = append(entries, ledger.Entry{AccountCode: w.AccountCode, Delta: -req.Amount, Kind: ledger.KindWithdrawalDebit})
	}
	if charge.Fee > 0 {
		entries = append(entries, ledger.Entry{AccountCode: s.cfg.FeeSinkAccount, Delta: charge.Fee, Kind: ledger.KindFee})
	}

	receipt, err := s.ledger.ApplyEntries(ctx, ledger.Group{
		Reference:      referencePrefix + req.ID,
		IdempotencyKey: referencePrefix + req.ID,
		Entries:        entries,
	})
	switch {
	case err == nil:
		return receipt.GroupID, charge, nil
	case errors.Is(err, ledger.ErrDuplicateTransaction):
		s.logger.Warn("funding ledger group already committed, completing resolution", "request_id", req.ID, "group_id", receipt.GroupID)
		committed, err := s.committedCharge(ctx, receipt.GroupID, req.Amount)
		if err != nil {
			return "", fees.Result{}, err
		}
		return receipt.GroupID, committed, nil
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return "", fees.Result{}, ErrInsufficientBalance
	case errors.Is(err, ledger.ErrConflict):
		return "", fees.Result{}, ErrConflict
	default:
		return "", fees.Result{}, err
	}
}

// committedCharge reads the fee that was charged by an already committed group.
func (s *Service) committedCharge(ctx context.Context, groupID string, amount int64) (fees.Result, error) {
	group, err := s.ledger.Group(ctx, groupID)
	if err != nil {
		return fees.Result{}, err
	}
	return committedFee(group, amount), nil
}

func committedFee(group ledger.Group, amount int64) fees.Result {
	var fee int64
	for _, e := range group.Entries {
		if e.Kind == ledger.KindFee {
			fee += e.Delta
		}
	}
	return fees.Result{Fee: fee, Net: amount - fee}
}

func (s *Service) charge(direction Direction, amount int64) fees.Result {
	if s.cfg.FeeSinkAccount == "" {
		return fees.Result{Fee: 0, Net: amount}
	}
	return fees.Calculate(amount, s.policy(direction))
}

func (s *Service) policy(direction Direction) fees.Policy {
	if direction == DirectionWithdrawal {
		return s.cfg.Fees.For(fees.OperationWithdrawal)
	}
	return s.cfg.Fees.For(fees.OperationDeposit)
}

func (s *Service) record(ctx context.Context, resolver identity.Principal, before Status, req Request) {
	action := audit.ActionFundingApproved
	if req.Status == StatusRejected {
		action = audit.ActionFundingRejected
	}
	_, err := s.audit.Append(context.WithoutCancel(ctx), audit.Entry{
		ActorID:      resolver.UserID,
		ActorRole:    resolver.Role,
		Action:       action,
		SubjectType:  audit.SubjectFundingRequest,
		SubjectID:    req.ID,
		BeforeStatus: string(before),
		AfterStatus:  string(req.Status),
		Notes:        req.ResolutionNotes,
		Metadata: map[string]string{
			"direction":       string(req.Direction),
			"amount":          strconv.FormatInt(req.Amount, 10),
			"fee":             strconv.FormatInt(req.Fee, 10),
			"ledger_group_id": req.LedgerGroupID,
		},
	})
	if err != nil {
		s.logger.Error("audit funding resolution", "request_id", req.ID, "error", err)
	}
}

// Get returns a request by identifier.
func (s *Service) Get(ctx context.Context, id string) (Request, error) {
	return s.repo.Get(ctx, id)
}

// ListByOwner returns the owner's requests newest first.
func (s *Service) ListByOwner(ctx context.Context, ownerID string, page ledger.Page) ([]Request, error) {
	return s.repo.ListByOwner(ctx, ownerID, page)
}

// ListPending returns the admin review queue, oldest first.
func (s *Service) ListPending(ctx context.Context, page ledger.Page) ([]Request, error) {
	return s.repo.ListByStatus(ctx, StatusPending, page)
}

// Trail returns the audit entries recorded for a request.
func (s *Service) Trail(ctx context.Context, id string) ([]audit.Entry, error) {
	return s.audit.ListBySubject(ctx, audit.SubjectFundingRequest, id)
}
