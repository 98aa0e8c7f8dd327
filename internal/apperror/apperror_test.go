package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindStatus(t *testing.T) {
	tests := []struct {
		kind Kind
		want int
	}{
		{KindInvalidInput, http.StatusBadRequest},
		{KindUnauthorized, http.StatusUnauthorized},
		{KindForbidden, http.StatusForbidden},
		{KindNotFound, http.StatusNotFound},
		{KindConflict, http.StatusBadRequest},
		{KindServerError, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.kind.Status())
		})
	}
}

func TestFrom_WrappedAppError(t *testing.T) {
	base := NotFound("Station not found with id of 42")
	wrapped := fmt.Errorf("get station: %w", base)

	got := From(wrapped)
	assert.Same(t, base, got)
	assert.True(t, IsKind(wrapped, KindNotFound))
	assert.False(t, IsKind(wrapped, KindForbidden))
}

func TestFrom_PlainErrorHidesDetails(t *testing.T) {
	cause := errors.New("dial tcp 10.0.0.1:3306: connection refused")

	got := From(cause)
	assert.Equal(t, KindServerError, got.Kind)
	assert.Equal(t, "Server Error", got.Message)
	assert.ErrorIs(t, got, cause)
}
