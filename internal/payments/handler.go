package payments

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/settlement/internal/ledger"
	"github.com/congo-pay/settlement/internal/request"
)

const idempotencyKeyHeader = "Idempotency-Key"

// Handler exposes payment endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a payment handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type transferRequest struct {
	RecipientPhone string `json:"recipient_phone" validate:"required"`
	Amount         int64  `json:"amount" validate:"gt=0"`
	Note           string `json:"note" validate:"max=140"`
	IdempotencyKey string `json:"idempotency_key"`
}

// Transfer sends funds from the caller's wallet to the wallet registered under a phone number.
func (h *Handler) Transfer(c *fiber.Ctx) error {
	p, err := request.Principal(c)
	if err != nil {
		return err
	}
	var req transferRequest
	if err := request.Bind(c, &req); err != nil {
		return err
	}
	key := c.Get(idempotencyKeyHeader)
	if key == "" {
		key = req.IdempotencyKey
	}

	res, err := h.service.Transfer(c.UserContext(), TransferInput{
		SenderID:       p.UserID,
		RecipientPhone: req.RecipientPhone,
		Amount:         req.Amount,
		Note:           req.Note,
		IdempotencyKey: key,
	})
	if err != nil {
		return err
	}

	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	return c.Status(status).JSON(fiber.Map{
		"transaction_id":     res.TransactionID,
		"transaction_number": res.TransactionNumber,
		"amount":             res.Amount,
		"fee":                res.Fee,
		"net":                res.Net,
		"sender_balance":     res.SenderBalance,
		"completed_at":       res.CompletedAt,
		"replayed":           res.Replayed,
	})
}

type entryResponse struct {
	ID           string           `json:"id"`
	TransferID   string           `json:"transaction_id"`
	Kind         ledger.EntryKind `json:"kind"`
	Delta        int64            `json:"delta"`
	BalanceAfter int64            `json:"balance_after"`
	Note         string           `json:"note,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
}

// History lists the caller's transfer legs oldest first.
func (h *Handler) History(c *fiber.Ctx) error {
	p, err := request.Principal(c)
	if err != nil {
		return err
	}
	page := request.Page(c)
	entries, err := h.service.History(c.UserContext(), p.UserID, page)
	if err != nil {
		return err
	}
	out := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, entryResponse{
			ID:           e.ID,
			TransferID:   e.GroupID,
			Kind:         e.Kind,
			Delta:        e.Delta,
			BalanceAfter: e.BalanceAfter,
			Note:         e.Note,
			CreatedAt:    e.CreatedAt,
		})
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"transfers": out, "limit": page.Limit, "offset": page.Offset})
}

type reverseRequest struct {
	Reason string `json:"reason" validate:"required,max=140"`
}

// Reverse undoes a completed transfer. Admin only.
func (h *Handler) Reverse(c *fiber.Ctx) error {
	p, err := request.Principal(c)
	if err != nil {
		return err
	}
	var req reverseRequest
	if err := request.Bind(c, &req); err != nil {
		return err
	}
	res, err := h.service.Reverse(c.UserContext(), ReverseInput{
		TransactionID: c.Params("id"),
		Resolver:      p,
		Reason:        req.Reason,
	})
	if err != nil {
		return err
	}
	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	return c.Status(status).JSON(fiber.Map{
		"reversal_id":    res.ReversalID,
		"transaction_id": res.TransactionID,
		"completed_at":   res.CompletedAt,
		"replayed":       res.Replayed,
	})
}
