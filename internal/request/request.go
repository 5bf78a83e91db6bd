// Package request decodes and validates HTTP request bodies and query strings.
package request

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/settlement/internal/apperr"
	"github.com/congo-pay/settlement/internal/identity"
	"github.com/congo-pay/settlement/internal/ledger"
)

var (
	// ErrMalformedBody is returned when the body cannot be decoded.
	ErrMalformedBody = apperr.New(apperr.KindValidation, "malformed_body", "malformed request body")
	// ErrUnauthenticated is returned when no principal is attached to the request.
	ErrUnauthenticated = errors.New("unauthenticated")
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// InvalidFieldError reports the first field that failed validation.
type InvalidFieldError struct {
	Field string
	Tag   string
}

func (e *InvalidFieldError) Error() string {
	return "invalid field " + e.Field + " (" + e.Tag + ")"
}

// Unwrap lets callers classify the error as a validation failure.
func (e *InvalidFieldError) Unwrap() error {
	return errInvalidField
}

var errInvalidField = apperr.New(apperr.KindValidation, "invalid_field", "invalid field")

// Bind decodes the JSON body into dst and validates its struct tags.
func Bind(c *fiber.Ctx, dst any) error {
	if err := c.BodyParser(dst); err != nil {
		return ErrMalformedBody
	}
	return Validate(dst)
}

// Validate checks dst's `validate` tags.
func Validate(dst any) error {
	err := validate.Struct(dst)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return &InvalidFieldError{Field: strings.ToLower(verrs[0].Field()), Tag: verrs[0].Tag()}
	}
	return err
}

// Page reads limit and offset from the query string.
func Page(c *fiber.Ctx) ledger.Page {
	return ledger.Page{
		Limit:  c.QueryInt("limit", 0),
		Offset: c.QueryInt("offset", 0),
	}.Normalize()
}

// Principal returns the authenticated caller or a 401 error.
func Principal(c *fiber.Ctx) (identity.Principal, error) {
	p, ok := identity.PrincipalFrom(c.UserContext())
	if !ok {
		return identity.Principal{}, fiber.NewError(fiber.StatusUnauthorized, ErrUnauthenticated.Error())
	}
	return p, nil
}
