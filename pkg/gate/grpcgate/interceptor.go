// Package grpcgate applies the request gates to gRPC unary calls.
package grpcgate

import (
	"context"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/session-client/pkg/credential"
	"github.com/openkcm/session-client/pkg/gate"
)

type Option func(*interceptor)

// WithExemptMethods exempts full method names such as
// "/erp.auth.v1.AuthService/Login" from both gates.
func WithExemptMethods(methods ...string) Option {
	return func(i *interceptor) {
		for _, m := range methods {
			i.exempt[m] = struct{}{}
		}
	}
}

type interceptor struct {
	outbound *gate.Outbound
	inbound  *gate.Inbound
	exempt   map[string]struct{}
}

// UnaryClientInterceptor attaches the session credential to every call and
// replays a call failing with codes.Unauthenticated once after renewal.
func UnaryClientInterceptor(outbound *gate.Outbound, inbound *gate.Inbound, opts ...Option) grpc.UnaryClientInterceptor {
	i := &interceptor{
		outbound: outbound,
		inbound:  inbound,
		exempt:   make(map[string]struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(i)
		}
	}

	return i.intercept
}

func (i *interceptor) intercept(
	ctx context.Context,
	method string,
	req, reply any,
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {
	if _, ok := i.exempt[method]; ok {
		return invoker(ctx, method, req, reply, cc, opts...)
	}

	sentWith := i.outbound.Credential(ctx)
	err := invoker(i.outgoing(ctx, sentWith), method, req, reply, cc, opts...)
	if status.Code(err) != codes.Unauthenticated || gate.IsRetried(ctx) {
		return err
	}

	cred, recoverErr := i.inbound.Recover(ctx, sentWith)
	if recoverErr != nil {
		slogctx.Info(ctx, "Authentication could not be recovered", "method", method, "error", recoverErr)
		return err
	}

	retryCtx := gate.WithRetried(ctx)
	return invoker(i.outgoing(retryCtx, cred), method, req, reply, cc, opts...)
}

func (i *interceptor) outgoing(ctx context.Context, cred credential.Credential) context.Context {
	h := i.outbound.Headers(ctx, cred)

	kv := make([]string, 0, 2*len(h))
	for k, values := range h {
		for _, v := range values {
			kv = append(kv, strings.ToLower(k), v)
		}
	}

	return metadata.AppendToOutgoingContext(ctx, kv...)
}
