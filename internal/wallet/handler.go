package wallet

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"

	"github.com/congo-pay/settlement/internal/events"
	"github.com/congo-pay/settlement/internal/ledger"
	"github.com/congo-pay/settlement/internal/request"
)

const streamKeepAlive = 15 * time.Second

// Handler exposes wallet HTTP endpoints.
type Handler struct {
	service *Service
	updates *events.Broadcaster
}

// NewHandler builds a wallet HTTP handler. updates may be nil, in which case
// the balance stream is unavailable.
func NewHandler(service *Service, updates *events.Broadcaster) *Handler {
	return &Handler{service: service, updates: updates}
}

type walletResponse struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"owner_id"`
	AccountCode string    `json:"account_code"`
	Currency    string    `json:"currency"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

type entryResponse struct {
	ID           string           `json:"id"`
	GroupID      string           `json:"group_id"`
	Kind         ledger.EntryKind `json:"kind"`
	Delta        int64            `json:"delta"`
	BalanceAfter int64            `json:"balance_after"`
	Reference    string           `json:"reference"`
	Note         string           `json:"note,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
}

// Me returns the caller's wallet with its current balance.
func (h *Handler) Me(c *fiber.Ctx) error {
	p, err := request.Principal(c)
	if err != nil {
		return err
	}
	w, err := h.service.GetByOwner(c.UserContext(), p.UserID)
	if err != nil {
		return err
	}
	bal, err := h.service.Balance(c.UserContext(), w.ID)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"wallet": walletResponse{
			ID:          w.ID,
			OwnerID:     w.OwnerID,
			AccountCode: w.AccountCode,
			Currency:    w.Currency,
			Status:      w.Status,
			CreatedAt:   w.CreatedAt,
		},
		"balance": bal.Amount,
		"as_of":   bal.AsOf,
	})
}

// Balance returns the caller's wallet balance.
func (h *Handler) Balance(c *fiber.Ctx) error {
	p, err := request.Principal(c)
	if err != nil {
		return err
	}
	w, err := h.service.GetByOwner(c.UserContext(), p.UserID)
	if err != nil {
		return err
	}
	balance, err := h.service.Balance(c.UserContext(), w.ID)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"wallet_id": balance.WalletID,
		"balance":   balance.Amount,
		"currency":  balance.Currency,
		"version":   balance.Version,
		"timestamp": balance.AsOf,
	})
}

// Entries lists the caller's journal entries oldest first.
func (h *Handler) Entries(c *fiber.Ctx) error {
	p, err := request.Principal(c)
	if err != nil {
		return err
	}
	w, err := h.service.GetByOwner(c.UserContext(), p.UserID)
	if err != nil {
		return err
	}
	stmt, err := h.service.Entries(c.UserContext(), w.ID, request.Page(c))
	if err != nil {
		return err
	}
	out := make([]entryResponse, 0, len(stmt.Entries))
	for _, e := range stmt.Entries {
		out = append(out, entryResponse{
			ID:           e.ID,
			GroupID:      e.GroupID,
			Kind:         e.Kind,
			Delta:        e.Delta,
			BalanceAfter: e.BalanceAfter,
			Reference:    e.Reference,
			Note:         e.Note,
			CreatedAt:    e.CreatedAt,
		})
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"wallet_id": stmt.WalletID,
		"entries":   out,
		"limit":     stmt.Page.Limit,
		"offset":    stmt.Page.Offset,
	})
}

// Stream pushes the caller's balance changes as server-sent events.
func (h *Handler) Stream(c *fiber.Ctx) error {
	if h.updates == nil {
		return fiber.NewError(http.StatusNotFound, "balance stream disabled")
	}
	p, err := request.Principal(c)
	if err != nil {
		return err
	}
	w, err := h.service.GetByOwner(c.UserContext(), p.UserID)
	if err != nil {
		return err
	}

	ch, cancel := h.updates.Subscribe(w.AccountCode)
	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(bw *bufio.Writer) {
		defer cancel()
		ticker := time.NewTicker(streamKeepAlive)
		defer ticker.Stop()
		for {
			select {
			case ev, ok := <-ch:
				if !ok {
					return
				}
				data, err := json.Marshal(fiber.Map{
					"balance":    ev.Balance,
					"delta":      ev.Delta,
					"version":    ev.Version,
					"group_id":   ev.GroupID,
					"reference":  ev.Reference,
					"updated_at": ev.OccurredAt,
				})
				if err != nil {
					return
				}
				fmt.Fprintf(bw, "event: balance\ndata: %s\n\n", data)
			case <-ticker.C:
				fmt.Fprint(bw, ": keep-alive\n\n")
			}
			if err := bw.Flush(); err != nil {
				return
			}
		}
	}))
	return nil
}
