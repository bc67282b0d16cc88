package gate

import (
	"context"
	"net/http"
	"strings"
)

// ExemptFunc reports whether a request bypasses both gates.
type ExemptFunc func(*http.Request) bool

// ExemptPaths exempts requests whose URL path is one of paths. Trailing
// slashes are ignored.
func ExemptPaths(paths ...string) ExemptFunc {
	set := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		set[normalisePath(p)] = struct{}{}
	}

	return func(req *http.Request) bool {
		if req == nil || req.URL == nil {
			return false
		}
		_, ok := set[normalisePath(req.URL.Path)]
		return ok
	}
}

func normalisePath(p string) string {
	if p == "/" {
		return p
	}
	return strings.TrimSuffix(p, "/")
}

type retriedKey struct{}

// WithRetried marks ctx as carrying a request that was already replayed
// after an auth failure.
func WithRetried(ctx context.Context) context.Context {
	return context.WithValue(ctx, retriedKey{}, true)
}

func IsRetried(ctx context.Context) bool {
	v, _ := ctx.Value(retriedKey{}).(bool)
	return v
}

// IsUnauthorized is the default auth failure signal.
func IsUnauthorized(resp *http.Response) bool {
	return resp != nil && resp.StatusCode == http.StatusUnauthorized
}
