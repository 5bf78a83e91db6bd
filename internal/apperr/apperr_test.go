package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindAndCodeSurviveWrapping(t *testing.T) {
	base := New(KindResource, "insufficient_balance", "insufficient balance")
	wrapped := fmt.Errorf("apply transfer: %w", base)

	assert.Equal(t, KindResource, KindOf(wrapped))
	assert.Equal(t, "insufficient_balance", CodeOf(wrapped))
	assert.True(t, errors.Is(wrapped, base))
	assert.Equal(t, "insufficient balance", base.Error())
}

func TestUncategorizedIsInternal(t *testing.T) {
	err := errors.New("boom")
	assert.Equal(t, KindInternal, KindOf(err))
	assert.Equal(t, "internal", CodeOf(err))
	assert.Equal(t, KindInternal, KindOf(nil))
}

func TestHTTPStatus(t *testing.T) {
	tests := map[Kind]int{
		KindValidation: http.StatusBadRequest,
		KindState:      http.StatusConflict,
		KindResource:   http.StatusUnprocessableEntity,
		KindNotFound:   http.StatusNotFound,
		KindForbidden:  http.StatusForbidden,
		KindInternal:   http.StatusInternalServerError,
	}
	for kind, want := range tests {
		t.Run(kind.String(), func(t *testing.T) {
			assert.Equal(t, want, kind.HTTPStatus())
		})
	}
}
