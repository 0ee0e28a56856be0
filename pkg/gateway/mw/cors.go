package mw

import (
	"net/http"
	"strings"

	"github.com/vango-go/zenith/pkg/core"
	"github.com/vango-go/zenith/pkg/gateway/config"
)

// corsHeaders are fixed for every deployment; only the origin list varies.
var corsHeaders = struct {
	methods, allow, expose string
}{
	methods: "GET, POST, OPTIONS",
	allow:   "Accept, Authorization, Content-Type, X-Request-ID",
	expose:  "X-Request-ID, Retry-After",
}

const corsPreflightMaxAge = "600"

// CORS answers preflights and decorates responses for allowed origins.
// The web console calls the agent endpoint cross-origin, so deployments
// usually set ZENITH_CORS_ORIGINS=*.
func CORS(cfg config.Config, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := strings.TrimSpace(r.Header.Get("Origin"))
		allowed := cfg.CORSOriginAllowed(origin)

		if isPreflight(r) {
			if !allowed {
				reqID, _ := RequestIDFrom(r.Context())
				writeJSONError(w, http.StatusForbidden, &core.Error{
					Type:      core.ErrPermission,
					Message:   "origin is not allowed to call this gateway",
					Code:      "cors_origin_denied",
					RequestID: reqID,
				})
				return
			}
			h := w.Header()
			allowOrigin(h, cfg.CORSAllowAll, origin)
			h.Set("Access-Control-Allow-Methods", corsHeaders.methods)
			h.Set("Access-Control-Allow-Headers", corsHeaders.allow)
			h.Set("Access-Control-Max-Age", corsPreflightMaxAge)
			w.WriteHeader(http.StatusNoContent)
			return
		}

		if allowed {
			allowOrigin(w.Header(), cfg.CORSAllowAll, origin)
			w.Header().Set("Access-Control-Expose-Headers", corsHeaders.expose)
		}
		next.ServeHTTP(w, r)
	})
}

func isPreflight(r *http.Request) bool {
	return r.Method == http.MethodOptions && strings.TrimSpace(r.Header.Get("Access-Control-Request-Method")) != ""
}

func allowOrigin(h http.Header, allowAll bool, origin string) {
	if allowAll {
		h.Set("Access-Control-Allow-Origin", "*")
		return
	}
	h.Set("Access-Control-Allow-Origin", origin)
	h.Add("Vary", "Origin")
}
