package serviceerr

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
)

// Classify maps the outcome of a round trip to a request category.
func Classify(resp *http.Response, err error) Code {
	if err != nil {
		var e *Error
		if errors.As(err, &e) {
			return e.Category()
		}

		var netErr net.Error
		if errors.As(err, &netErr) ||
			errors.Is(err, context.DeadlineExceeded) ||
			errors.Is(err, context.Canceled) {
			return CodeNetwork
		}

		return CodeUnknown
	}

	if resp == nil {
		return CodeUnknown
	}

	return CodeForStatus(resp.StatusCode)
}

func CodeForStatus(status int) Code {
	switch {
	case status == http.StatusUnauthorized:
		return CodeAuth
	case status == http.StatusForbidden:
		return CodePermission
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		return CodeValidation
	case status == http.StatusNotFound:
		return CodeNotFound
	case status == http.StatusConflict:
		return CodeConflict
	case status == http.StatusTooManyRequests:
		return CodeRateLimited
	case status >= http.StatusInternalServerError:
		return CodeServer
	default:
		return CodeUnknown
	}
}

type errorEnvelope struct {
	Message string `json:"message"`
	Error   struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// FromResponse builds an error for a non-2xx response. The description is taken
// from the API error envelope when the body carries one.
func FromResponse(status int, body []byte) *Error {
	e := &Error{Err: CodeForStatus(status), Status: status}

	var env errorEnvelope
	if len(body) > 0 && json.Unmarshal(body, &env) == nil {
		switch {
		case env.Error.Message != "":
			e.Description = env.Error.Message
		case env.Message != "":
			e.Description = env.Message
		}
	}

	if e.Description == "" {
		e.Description = http.StatusText(status)
	}

	return e
}
