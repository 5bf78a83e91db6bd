package routes

import (
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/settlement/internal/identity"
	"github.com/congo-pay/settlement/internal/request"
	"github.com/congo-pay/settlement/internal/wallet"
)

type credentialsRequest struct {
	Phone    string `json:"phone" validate:"required"`
	PIN      string `json:"pin" validate:"required,min=4,max=12"`
	DeviceID string `json:"device_id" validate:"max=128"`
}

// RegisterIdentityRoutes wires identity endpoints and provisions a wallet on registration.
func RegisterIdentityRoutes(r fiber.Router, ids *identity.Service, wallets *wallet.Service, logger *slog.Logger) {
	r.Post("/identity/register", func(c *fiber.Ctx) error {
		var req credentialsRequest
		if err := request.Bind(c, &req); err != nil {
			return err
		}
		user, err := ids.Register(c.UserContext(), identity.Credentials{Phone: req.Phone, PIN: req.PIN, DeviceID: req.DeviceID})
		if err != nil {
			return err
		}
		w, err := wallets.Create(c.UserContext(), wallet.CreateInput{OwnerID: user.ID})
		if err != nil {
			return err
		}
		logger.Info("identity.register completed",
			slog.String("user_id", user.ID),
			slog.String("wallet_id", w.ID),
		)
		return c.Status(http.StatusCreated).JSON(fiber.Map{
			"user_id":   user.ID,
			"phone":     user.Phone,
			"tier":      user.Tier,
			"role":      user.Role,
			"device_id": user.DeviceID,
			"wallet_id": w.ID,
		})
	})

	r.Post("/identity/authenticate", func(c *fiber.Ctx) error {
		var req credentialsRequest
		if err := request.Bind(c, &req); err != nil {
			return err
		}
		user, err := ids.Authenticate(c.UserContext(), identity.Credentials{Phone: req.Phone, PIN: req.PIN, DeviceID: req.DeviceID})
		if err != nil {
			return fiber.NewError(http.StatusUnauthorized, err.Error())
		}
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"user_id":   user.ID,
			"phone":     user.Phone,
			"tier":      user.Tier,
			"device_id": user.DeviceID,
		})
	})
}
