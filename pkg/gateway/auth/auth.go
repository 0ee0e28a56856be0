// Package auth carries the authenticated gateway caller through request
// contexts.
package auth

import (
	"context"
	"net/http"
	"strings"
)

// Principal is a caller that presented a known API key.
type Principal struct {
	APIKey string
}

type ctxKey struct{}

func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

func PrincipalFrom(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(ctxKey{}).(*Principal)
	return p, ok && p != nil
}

// Token returns the API key presented on r. With allowQuery set, the
// "token" query parameter is accepted when no Authorization header is sent;
// browsers cannot set headers on a WebSocket handshake.
func Token(r *http.Request, allowQuery bool) (string, bool) {
	if token, ok := ParseBearer(r); ok {
		return token, true
	}
	if !allowQuery {
		return "", false
	}
	token := strings.TrimSpace(r.URL.Query().Get("token"))
	return token, token != ""
}

// ParseBearer reads "Authorization: Bearer <token>". The scheme is matched
// case-insensitively.
func ParseBearer(r *http.Request) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
