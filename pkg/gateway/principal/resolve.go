// Package principal decides whose budget a request spends: the API key when
// one was authenticated, otherwise the client address.
package principal

import (
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/vango-go/zenith/pkg/gateway/auth"
	"github.com/vango-go/zenith/pkg/gateway/config"
	"github.com/vango-go/zenith/pkg/gateway/ratelimit"
)

type Kind string

const (
	KindAPIKey Kind = "api_key"
	KindIP     Kind = "ip"
	KindAnon   Kind = "anonymous"
)

var anonymous = Resolved{Kind: KindAnon, Key: "anonymous"}

type Resolved struct {
	Kind Kind
	// Raw is the API key or IP. Never log it.
	Raw string
	// Key is the hashed identifier used for limiter buckets.
	Key string
}

// LogValue omits Raw.
func (p Resolved) LogValue() slog.Value {
	return slog.GroupValue(slog.String("kind", string(p.Kind)), slog.String("key", p.Key))
}

func Resolve(r *http.Request, cfg config.Config) Resolved {
	if r == nil {
		return anonymous
	}
	if p, ok := auth.PrincipalFrom(r.Context()); ok && strings.TrimSpace(p.APIKey) != "" {
		return Resolved{Kind: KindAPIKey, Raw: p.APIKey, Key: ratelimit.PrincipalKeyFromAPIKey(p.APIKey)}
	}
	if ip := ClientIP(r, cfg.TrustProxyHeaders); ip != "" {
		return Resolved{Kind: KindIP, Raw: ip, Key: ratelimit.PrincipalKeyFromIP(ip)}
	}
	return anonymous
}

// proxyHeaders are consulted in order when the gateway sits behind a
// trusted load balancer.
var proxyHeaders = []string{"CF-Connecting-IP", "X-Real-IP", "X-Forwarded-For"}

// ClientIP returns the caller's address. Proxy headers are honored only
// when trustProxy is set; X-Forwarded-For contributes its left-most entry.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		for _, h := range proxyHeaders {
			v, _, _ := strings.Cut(r.Header.Get(h), ",")
			if ip := normalizeIP(v); ip != "" {
				return ip
			}
		}
	}
	return normalizeIP(r.RemoteAddr)
}

// normalizeIP accepts "ip" or "ip:port" and returns the canonical IP text.
func normalizeIP(s string) string {
	s = strings.TrimSpace(s)
	if host, _, err := net.SplitHostPort(s); err == nil {
		s = host
	}
	if ip := net.ParseIP(s); ip != nil {
		return ip.String()
	}
	return ""
}
