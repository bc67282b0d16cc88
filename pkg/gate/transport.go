package gate

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"

	slogctx "github.com/veqryn/slog-context"
)

// Transport sends requests through the outbound and inbound gates. A request
// rejected for authentication is replayed at most once, with the renewed
// credential. When recovery fails the rejected response is returned as is.
type Transport struct {
	Base          http.RoundTripper
	Outbound      *Outbound
	Inbound       *Inbound
	Exempt        ExemptFunc
	IsAuthFailure func(*http.Response) bool
}

var _ http.RoundTripper = (*Transport)(nil)

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.Exempt != nil && t.Exempt(req) {
		return t.base().RoundTrip(req)
	}

	req, err := replayable(req)
	if err != nil {
		return nil, err
	}

	ctx := req.Context()
	out, sentWith := t.Outbound.PreSend(req)

	resp, err := t.base().RoundTrip(out)
	if err != nil || !t.isAuthFailure(resp) {
		return resp, err
	}

	if IsRetried(ctx) {
		slogctx.Warn(ctx, "Request failed authentication after renewal",
			"method", req.Method, "path", req.URL.Path)
		t.Inbound.metrics.recovery(ctx, outcomeRetried)

		return resp, nil
	}

	cred, err := t.Inbound.Recover(ctx, sentWith)
	if err != nil {
		if ctx.Err() != nil {
			closeBody(resp)
			return nil, ctx.Err()
		}

		slogctx.Info(ctx, "Authentication could not be recovered",
			"method", req.Method, "path", req.URL.Path, "error", err)

		return resp, nil
	}

	retry := req.Clone(WithRetried(ctx))
	if req.GetBody != nil {
		body, bodyErr := req.GetBody()
		if bodyErr != nil {
			slogctx.Warn(ctx, "Request body cannot be replayed", "error", bodyErr)
			return resp, nil
		}
		retry.Body = body
	}

	closeBody(resp)

	slogctx.Debug(ctx, "Replaying request with renewed credential",
		"method", req.Method, "path", req.URL.Path)

	return t.base().RoundTrip(t.Outbound.WithCredential(retry, cred))
}

func (t *Transport) base() http.RoundTripper {
	if t.Base == nil {
		return http.DefaultTransport
	}
	return t.Base
}

func (t *Transport) isAuthFailure(resp *http.Response) bool {
	if t.IsAuthFailure == nil {
		return IsUnauthorized(resp)
	}
	return t.IsAuthFailure(resp)
}

// replayable returns req with a body that can be read again for a replay.
func replayable(req *http.Request) (*http.Request, error) {
	if req.Body == nil || req.Body == http.NoBody || req.GetBody != nil {
		return req, nil
	}

	data, err := io.ReadAll(req.Body)
	closeErr := req.Body.Close()
	if err = errors.Join(err, closeErr); err != nil {
		return nil, fmt.Errorf("buffering request body: %w", err)
	}

	out := req.Clone(req.Context())
	out.Body = io.NopCloser(bytes.NewReader(data))
	out.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	out.ContentLength = int64(len(data))

	return out, nil
}

func closeBody(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}
