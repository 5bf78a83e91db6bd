package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/settlement/internal/audit"
	"github.com/congo-pay/settlement/internal/funding"
	"github.com/congo-pay/settlement/internal/middleware"
	"github.com/congo-pay/settlement/internal/payments"
)

// RegisterFundingRoutes wires the owner side of the funding workflow.
func RegisterFundingRoutes(r fiber.Router, h *funding.Handler, idempotency fiber.Handler) {
	r.Post("/funding-requests", idempotency, h.Create)
	r.Get("/funding-requests", h.Mine)
	r.Get("/funding-requests/:id", h.Get)
}

// RegisterAdminRoutes wires the resolver queue, transfer reversal and the audit trail.
func RegisterAdminRoutes(r fiber.Router, h *funding.Handler, transfers *payments.Handler, trail *audit.Handler, idempotency fiber.Handler) {
	admin := r.Group("/admin", middleware.RequireAdmin())
	admin.Get("/funding-requests", h.Pending)
	admin.Get("/funding-requests/:id", h.Review)
	admin.Post("/funding-requests/:id/resolve", idempotency, h.Resolve)
	admin.Post("/transfers/:id/reverse", idempotency, transfers.Reverse)
	admin.Get("/audit", trail.List)
}
