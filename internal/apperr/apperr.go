package apperr

import (
	"errors"
	"net/http"
)

// Kind is the closed set of error categories surfaced by the settlement core.
type Kind int

const (
	// KindInternal covers unexpected failures (store unavailable, encoding bugs).
	KindInternal Kind = iota
	// KindValidation means the input was rejected before any state was touched.
	KindValidation
	// KindState means the current state does not allow the operation; re-read and retry.
	KindState
	// KindResource means the account lacks the funds required.
	KindResource
	// KindNotFound means a referenced entity does not exist.
	KindNotFound
	// KindForbidden means the caller is not authorized for the operation.
	KindForbidden
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindState:
		return "state"
	case KindResource:
		return "resource"
	case KindNotFound:
		return "not_found"
	case KindForbidden:
		return "forbidden"
	default:
		return "internal"
	}
}

// HTTPStatus maps the kind onto a transport status code.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindState:
		return http.StatusConflict
	case KindResource:
		return http.StatusUnprocessableEntity
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// Error is a categorized error with a stable machine code. The UI layer maps
// Code to localized text; the core never carries presentation strings.
type Error struct {
	Kind Kind
	Code string
	msg  string
}

// New declares a categorized error.
func New(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, msg: msg}
}

func (e *Error) Error() string {
	return e.msg
}

// KindOf reports the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// CodeOf reports the code of the first *Error in err's chain, or "internal".
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return "internal"
}
