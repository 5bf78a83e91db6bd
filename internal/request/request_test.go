package request

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/settlement/internal/apperr"
)

type sample struct {
	Phone  string `validate:"required"`
	Amount int64  `validate:"gt=0"`
}

func TestValidate(t *testing.T) {
	require.NoError(t, Validate(&sample{Phone: "+237650000000", Amount: 10}))

	err := Validate(&sample{Phone: "+237650000000"})
	var fieldErr *InvalidFieldError
	require.True(t, errors.As(err, &fieldErr))
	assert.Equal(t, "amount", fieldErr.Field)
	assert.Equal(t, "gt", fieldErr.Tag)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	assert.Equal(t, "invalid_field", apperr.CodeOf(err))
}
