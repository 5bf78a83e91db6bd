package funding

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/settlement/internal/request"
)

// Handler exposes HTTP endpoints for the funding workflow.
type Handler struct {
	service *Service
}

// NewHandler constructs a funding handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type createRequest struct {
	Direction   string `json:"direction" validate:"required,oneof=deposit withdrawal"`
	Method      string `json:"method" validate:"required,oneof=bank_transfer mobile_money card_delivery cash_agent"`
	Amount      int64  `json:"amount" validate:"gt=0"`
	EvidenceRef string `json:"evidence_ref" validate:"max=512"`
}

type resolveRequest struct {
	Decision string `json:"decision" validate:"required,oneof=approve reject"`
	Notes    string `json:"notes" validate:"max=1000"`
}

type requestResponse struct {
	ID              string     `json:"id"`
	WalletID        string     `json:"wallet_id"`
	Direction       Direction  `json:"direction"`
	Method          Method     `json:"method"`
	Amount          int64      `json:"amount"`
	Fee             int64      `json:"fee"`
	Net             int64      `json:"net"`
	EvidenceRef     string     `json:"evidence_ref,omitempty"`
	Status          Status     `json:"status"`
	ResolverID      string     `json:"resolver_id,omitempty"`
	ResolutionNotes string     `json:"resolution_notes,omitempty"`
	ResolvedAt      *time.Time `json:"resolved_at,omitempty"`
	LedgerGroupID   string     `json:"ledger_group_id,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

func toResponse(req Request) requestResponse {
	return requestResponse{
		ID:              req.ID,
		WalletID:        req.WalletID,
		Direction:       req.Direction,
		Method:          req.Method,
		Amount:          req.Amount,
		Fee:             req.Fee,
		Net:             req.Net,
		EvidenceRef:     req.EvidenceRef,
		Status:          req.Status,
		ResolverID:      req.ResolverID,
		ResolutionNotes: req.ResolutionNotes,
		ResolvedAt:      req.ResolvedAt,
		LedgerGroupID:   req.LedgerGroupID,
		CreatedAt:       req.CreatedAt,
	}
}

func toResponses(reqs []Request) []requestResponse {
	out := make([]requestResponse, 0, len(reqs))
	for _, r := range reqs {
		out = append(out, toResponse(r))
	}
	return out
}

// Create submits a deposit or withdrawal request for the caller's wallet.
func (h *Handler) Create(c *fiber.Ctx) error {
	p, err := request.Principal(c)
	if err != nil {
		return err
	}
	var body createRequest
	if err := request.Bind(c, &body); err != nil {
		return err
	}
	req, err := h.service.Create(c.UserContext(), CreateInput{
		OwnerID:     p.UserID,
		Direction:   Direction(body.Direction),
		Method:      Method(body.Method),
		Amount:      body.Amount,
		EvidenceRef: body.EvidenceRef,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(toResponse(req))
}

// Mine lists the caller's requests.
func (h *Handler) Mine(c *fiber.Ctx) error {
	p, err := request.Principal(c)
	if err != nil {
		return err
	}
	reqs, err := h.service.ListByOwner(c.UserContext(), p.UserID, request.Page(c))
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"requests": toResponses(reqs)})
}

// Get returns one of the caller's requests.
func (h *Handler) Get(c *fiber.Ctx) error {
	p, err := request.Principal(c)
	if err != nil {
		return err
	}
	req, err := h.service.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	if req.OwnerID != p.UserID {
		return ErrNotFound
	}
	return c.Status(http.StatusOK).JSON(toResponse(req))
}

type trailResponse struct {
	Action       string    `json:"action"`
	ActorID      string    `json:"actor_id"`
	BeforeStatus string    `json:"before_status"`
	AfterStatus  string    `json:"after_status"`
	Notes        string    `json:"notes,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Review returns any request with its audit trail, for resolvers.
func (h *Handler) Review(c *fiber.Ctx) error {
	req, err := h.service.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	entries, err := h.service.Trail(c.UserContext(), req.ID)
	if err != nil {
		return err
	}
	trail := make([]trailResponse, 0, len(entries))
	for _, e := range entries {
		trail = append(trail, trailResponse{
			Action:       e.Action,
			ActorID:      e.ActorID,
			BeforeStatus: e.BeforeStatus,
			AfterStatus:  e.AfterStatus,
			Notes:        e.Notes,
			CreatedAt:    e.CreatedAt,
		})
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"request": toResponse(req), "trail": trail})
}

// Pending lists the admin review queue.
func (h *Handler) Pending(c *fiber.Ctx) error {
	reqs, err := h.service.ListPending(c.UserContext(), request.Page(c))
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"requests": toResponses(reqs)})
}

// Resolve approves or rejects a pending request.
func (h *Handler) Resolve(c *fiber.Ctx) error {
	p, err := request.Principal(c)
	if err != nil {
		return err
	}
	var body resolveRequest
	if err := request.Bind(c, &body); err != nil {
		return err
	}
	req, err := h.service.Resolve(c.UserContext(), ResolveInput{
		RequestID: c.Params("id"),
		Resolver:  p,
		Decision:  Decision(body.Decision),
		Notes:     body.Notes,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(toResponse(req))
}
