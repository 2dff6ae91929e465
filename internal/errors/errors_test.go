package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCategorize(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCat    ErrorCategory
	}{
		{
			name:       "wrapped not found sentinel",
			err:        fmt.Errorf("latest analysis for 0xabc: %w", ErrNotFound),
			wantStatus: http.StatusNotFound,
			wantCat:    CategoryNotFound,
		},
		{
			name:       "categorized error passes through wrapping",
			err:        fmt.Errorf("handler: %w", NewInvalidParameterError("limit", "must be positive")),
			wantStatus: http.StatusBadRequest,
			wantCat:    CategoryValidation,
		},
		{
			name:       "deadline exceeded",
			err:        context.DeadlineExceeded,
			wantStatus: http.StatusGatewayTimeout,
			wantCat:    CategoryProvider,
		},
		{
			name:       "plain error",
			err:        stderrors.New("boom"),
			wantStatus: http.StatusInternalServerError,
			wantCat:    CategorySystem,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Categorize(tt.err)
			assert.Equal(t, tt.wantStatus, got.StatusCode)
			assert.Equal(t, tt.wantCat, got.Category)
			assert.Equal(t, tt.wantStatus, GetHTTPStatusCode(tt.err))
		})
	}

	assert.Nil(t, Categorize(nil))
}

func TestNotFoundError(t *testing.T) {
	err := NewNotFoundError("analysis", "0xabc")

	assert.True(t, stderrors.Is(err, ErrNotFound))
	assert.True(t, IsNotFound(err))
	assert.Equal(t, "0xabc", err.ToServiceError().Details["id"])
	assert.False(t, IsNotFound(NewInternalError("x", nil)))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(NewProviderError("ethereum", stderrors.New("eof"))))
	assert.True(t, IsRetryable(NewProviderTimeoutError("ethereum")))
	assert.True(t, IsRetryable(NewServiceUnavailableError("redis")))
	assert.False(t, IsRetryable(NewInvalidAddressError("0x1")))
	assert.False(t, IsRetryable(nil))
}
