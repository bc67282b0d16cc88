package serviceerr

import (
	"errors"
	"net/http"
)

type Code string

// Request categories. These are the coarse classes business code maps to
// user-visible messages.
const (
	CodeNetwork     Code = "network"
	CodeAuth        Code = "auth"
	CodePermission  Code = "permission"
	CodeValidation  Code = "validation"
	CodeNotFound    Code = "not_found"
	CodeConflict    Code = "conflict"
	CodeRateLimited Code = "rate_limited"
	CodeServer      Code = "server"
	CodeUnknown     Code = "unknown"
)

// Pipeline codes.
const (
	CodeMalformedCredential  Code = "malformed_credential"
	CodeRenewalUnavailable   Code = "renewal_unavailable"
	CodeRenewalFailed        Code = "renewal_failed"
	CodeAuthFailureRetried   Code = "auth_failure_retried"
	CodeQueueRejected        Code = "queue_rejected"
	CodeQueueFull            Code = "queue_full"
	CodeNoRenewalInProgress  Code = "no_renewal_in_progress"
	CodeSessionEnded         Code = "session_ended"
	CodeInvalidConfiguration Code = "invalid_configuration"
)

// Error is a coded error. Two errors match under errors.Is when their codes match.
type Error struct {
	Err         Code
	Description string
	Status      int
}

var (
	ErrUnknown      = &Error{Err: CodeUnknown, Description: "unknown error"}
	ErrNotFound     = &Error{Err: CodeNotFound, Description: "not found"}
	ErrConflict     = &Error{Err: CodeConflict, Description: "already exists"}
	ErrUnauthorized = &Error{Err: CodeAuth, Description: "authentication required"}

	ErrMalformedCredential = &Error{Err: CodeMalformedCredential, Description: "credential could not be decoded"}
	ErrRenewalUnavailable  = &Error{Err: CodeRenewalUnavailable, Description: "no session to renew"}
	ErrRenewalFailed       = &Error{Err: CodeRenewalFailed, Description: "credential renewal failed"}
	ErrAuthFailureRetried  = &Error{Err: CodeAuthFailureRetried, Description: "request failed authentication after renewal"}
	ErrQueueRejected       = &Error{Err: CodeQueueRejected, Description: "queued request rejected, renewal failed"}
	ErrQueueFull           = &Error{Err: CodeQueueFull, Description: "too many requests waiting for renewal"}
	ErrNoRenewalInProgress = &Error{Err: CodeNoRenewalInProgress, Description: "no renewal in progress"}
	ErrSessionEnded        = &Error{Err: CodeSessionEnded, Description: "session ended"}
	ErrInvalidConfig       = &Error{Err: CodeInvalidConfiguration}
)

func (e *Error) Error() string {
	if e.Description == "" {
		return string(e.Err)
	}

	return string(e.Err) + ": " + e.Description
}

func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}

	return t.Err == e.Err
}

// HTTPStatus returns the status the error was built from, or the canonical
// status for its code.
func (e *Error) HTTPStatus() int {
	if e.Status != 0 {
		return e.Status
	}

	switch e.Err {
	case CodeAuth, CodeRenewalUnavailable, CodeRenewalFailed, CodeAuthFailureRetried,
		CodeQueueRejected, CodeSessionEnded, CodeMalformedCredential:
		return http.StatusUnauthorized
	case CodePermission:
		return http.StatusForbidden
	case CodeValidation:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeRateLimited, CodeQueueFull:
		return http.StatusTooManyRequests
	case CodeNetwork:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Category returns the coarse category an error belongs to.
func (e *Error) Category() Code {
	switch e.Err {
	case CodeNetwork, CodeAuth, CodePermission, CodeValidation, CodeNotFound,
		CodeConflict, CodeRateLimited, CodeServer, CodeUnknown:
		return e.Err
	case CodeRenewalUnavailable, CodeRenewalFailed, CodeAuthFailureRetried,
		CodeQueueRejected, CodeSessionEnded, CodeMalformedCredential:
		return CodeAuth
	case CodeQueueFull:
		return CodeRateLimited
	default:
		return CodeUnknown
	}
}
