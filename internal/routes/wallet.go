package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/settlement/internal/wallet"
)

// RegisterWalletRoutes wires the caller's wallet endpoints.
func RegisterWalletRoutes(r fiber.Router, h *wallet.Handler) {
	r.Get("/wallet", h.Me)
	r.Get("/wallet/balance", h.Balance)
	r.Get("/wallet/entries", h.Entries)
	r.Get("/wallet/stream", h.Stream)
}
