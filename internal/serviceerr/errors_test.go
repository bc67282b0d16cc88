package serviceerr_test

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/openkcm/session-client/internal/serviceerr"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name        string
		err         *serviceerr.Error
		expectedMsg string
	}{
		{
			name:        "Error with description",
			err:         &serviceerr.Error{Err: serviceerr.CodeNotFound, Description: "resource not found"},
			expectedMsg: "not_found: resource not found",
		},
		{
			name:        "Error without description",
			err:         &serviceerr.Error{Err: serviceerr.CodeValidation},
			expectedMsg: "validation",
		},
		{
			name:        "Predefined error - ErrRenewalFailed",
			err:         serviceerr.ErrRenewalFailed,
			expectedMsg: "renewal_failed: credential renewal failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expectedMsg, tt.err.Error())
		})
	}
}

func TestError_Is(t *testing.T) {
	wrapped := fmt.Errorf("renewing: %w", serviceerr.ErrRenewalFailed)

	assert.ErrorIs(t, wrapped, serviceerr.ErrRenewalFailed)
	assert.ErrorIs(t, &serviceerr.Error{Err: serviceerr.CodeRenewalFailed, Description: "other"}, serviceerr.ErrRenewalFailed)
	assert.NotErrorIs(t, wrapped, serviceerr.ErrRenewalUnavailable)
	assert.NotErrorIs(t, errors.New("renewal_failed"), serviceerr.ErrRenewalFailed)
}

func TestError_HTTPStatus(t *testing.T) {
	tests := []struct {
		name               string
		err                serviceerr.Error
		expectedHTTPStatus int
	}{
		{name: "CodeAuth returns Unauthorized", err: serviceerr.Error{Err: serviceerr.CodeAuth}, expectedHTTPStatus: http.StatusUnauthorized},
		{name: "CodeRenewalFailed returns Unauthorized", err: serviceerr.Error{Err: serviceerr.CodeRenewalFailed}, expectedHTTPStatus: http.StatusUnauthorized},
		{name: "CodePermission returns Forbidden", err: serviceerr.Error{Err: serviceerr.CodePermission}, expectedHTTPStatus: http.StatusForbidden},
		{name: "CodeValidation returns BadRequest", err: serviceerr.Error{Err: serviceerr.CodeValidation}, expectedHTTPStatus: http.StatusBadRequest},
		{name: "CodeNotFound returns NotFound", err: serviceerr.Error{Err: serviceerr.CodeNotFound}, expectedHTTPStatus: http.StatusNotFound},
		{name: "CodeConflict returns Conflict", err: serviceerr.Error{Err: serviceerr.CodeConflict}, expectedHTTPStatus: http.StatusConflict},
		{name: "CodeQueueFull returns TooManyRequests", err: serviceerr.Error{Err: serviceerr.CodeQueueFull}, expectedHTTPStatus: http.StatusTooManyRequests},
		{name: "CodeNetwork returns BadGateway", err: serviceerr.Error{Err: serviceerr.CodeNetwork}, expectedHTTPStatus: http.StatusBadGateway},
		{name: "Explicit status wins", err: serviceerr.Error{Err: serviceerr.CodeServer, Status: http.StatusServiceUnavailable}, expectedHTTPStatus: http.StatusServiceUnavailable},
		{name: "Unknown code returns InternalServerError", err: serviceerr.Error{Err: serviceerr.Code("unknown_code")}, expectedHTTPStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expectedHTTPStatus, tt.err.HTTPStatus())
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		status int
		err    error
		want   serviceerr.Code
	}{
		{name: "unauthorized", status: http.StatusUnauthorized, want: serviceerr.CodeAuth},
		{name: "forbidden", status: http.StatusForbidden, want: serviceerr.CodePermission},
		{name: "bad request", status: http.StatusBadRequest, want: serviceerr.CodeValidation},
		{name: "unprocessable", status: http.StatusUnprocessableEntity, want: serviceerr.CodeValidation},
		{name: "not found", status: http.StatusNotFound, want: serviceerr.CodeNotFound},
		{name: "conflict", status: http.StatusConflict, want: serviceerr.CodeConflict},
		{name: "too many requests", status: http.StatusTooManyRequests, want: serviceerr.CodeRateLimited},
		{name: "bad gateway", status: http.StatusBadGateway, want: serviceerr.CodeServer},
		{name: "teapot", status: http.StatusTeapot, want: serviceerr.CodeUnknown},
		{name: "dial error", err: &net.OpError{Op: "dial", Err: errors.New("refused")}, want: serviceerr.CodeNetwork},
		{name: "deadline", err: context.DeadlineExceeded, want: serviceerr.CodeNetwork},
		{name: "queue full", err: serviceerr.ErrQueueFull, want: serviceerr.CodeRateLimited},
		{name: "renewal failed", err: fmt.Errorf("wrapped: %w", serviceerr.ErrRenewalFailed), want: serviceerr.CodeAuth},
		{name: "plain error", err: errors.New("boom"), want: serviceerr.CodeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var resp *http.Response
			if tt.status != 0 {
				resp = &http.Response{StatusCode: tt.status}
			}
			assert.Equal(t, tt.want, serviceerr.Classify(resp, tt.err))
		})
	}
}

func TestFromResponse(t *testing.T) {
	t.Run("reads nested error message", func(t *testing.T) {
		err := serviceerr.FromResponse(http.StatusForbidden, []byte(`{"success":false,"error":{"code":"FORBIDDEN","message":"no access to vouchers"}}`))

		assert.Equal(t, serviceerr.CodePermission, err.Err)
		assert.Equal(t, "no access to vouchers", err.Description)
		assert.Equal(t, http.StatusForbidden, err.HTTPStatus())
	})

	t.Run("reads flat message", func(t *testing.T) {
		err := serviceerr.FromResponse(http.StatusConflict, []byte(`{"message":"duplicate order"}`))

		assert.Equal(t, "duplicate order", err.Description)
	})

	t.Run("falls back to status text", func(t *testing.T) {
		err := serviceerr.FromResponse(http.StatusBadGateway, []byte("<html>"))

		assert.Equal(t, serviceerr.CodeServer, err.Err)
		assert.Equal(t, http.StatusText(http.StatusBadGateway), err.Description)
	})
}
