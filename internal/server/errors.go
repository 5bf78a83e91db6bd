package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/settlement/internal/apperr"
	"github.com/congo-pay/settlement/internal/middleware"
)

type errorBody struct {
	Kind    string `json:"kind"`
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

// ErrorHandler renders categorized errors as {"error": {...}} with the status
// their kind maps to. Internal failures are logged and never echo their cause.
func ErrorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return c.Status(fe.Code).JSON(fiber.Map{"error": errorBody{
				Kind:    kindForStatus(fe.Code),
				Code:    codeForStatus(fe.Code),
				Message: fe.Message,
			}})
		}

		kind := apperr.KindOf(err)
		body := errorBody{Kind: kind.String(), Code: apperr.CodeOf(err)}
		if kind == apperr.KindInternal {
			logger.Error("request failed",
				slog.String("method", c.Method()),
				slog.String("path", c.Path()),
				slog.String("request_id", middleware.RequestIDFrom(c)),
				slog.String("error", err.Error()),
			)
		} else {
			body.Message = err.Error()
		}
		return c.Status(kind.HTTPStatus()).JSON(fiber.Map{"error": body})
	}
}

func kindForStatus(status int) string {
	switch {
	case status == http.StatusForbidden:
		return apperr.KindForbidden.String()
	case status == http.StatusNotFound:
		return apperr.KindNotFound.String()
	case status == http.StatusConflict:
		return apperr.KindState.String()
	case status >= 500:
		return apperr.KindInternal.String()
	default:
		return apperr.KindValidation.String()
	}
}

func codeForStatus(status int) string {
	text := http.StatusText(status)
	if text == "" {
		return "error"
	}
	return strings.ReplaceAll(strings.ToLower(text), " ", "_")
}
