package mw

import (
	"net/http"
	"strconv"
	"time"

	"github.com/vango-go/zenith/pkg/core"
	"github.com/vango-go/zenith/pkg/gateway/config"
	"github.com/vango-go/zenith/pkg/gateway/metrics"
	"github.com/vango-go/zenith/pkg/gateway/principal"
	"github.com/vango-go/zenith/pkg/gateway/ratelimit"
)

var rateLimitMessages = map[string]string{
	ratelimit.ReasonRate:        "rate limit exceeded",
	ratelimit.ReasonConcurrency: "too many requests in flight",
}

// RateLimit applies the per-principal token bucket and concurrency cap.
// Anonymous callers are bucketed by client IP. Live upgrades hold their own
// session permit and are not counted against the request cap.
func RateLimit(cfg config.Config, limiter *ratelimit.Limiter, m *metrics.Metrics, next http.Handler) http.Handler {
	if limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || isHealthPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		dec := limiter.AcquireRequest(principal.Resolve(r, cfg).Key, time.Now())
		if !dec.Allowed {
			m.RecordRateLimitHit(dec.Reason)
			writeRateLimited(w, r, dec)
			return
		}
		if isWebSocketUpgrade(r) {
			dec.Permit.Release()
		} else {
			defer dec.Permit.Release()
		}
		next.ServeHTTP(w, r)
	})
}

func writeRateLimited(w http.ResponseWriter, r *http.Request, dec ratelimit.Decision) {
	reqID, _ := RequestIDFrom(r.Context())
	msg, ok := rateLimitMessages[dec.Reason]
	if !ok {
		msg = "rate limit exceeded"
	}
	apiErr := &core.Error{
		Type:      core.ErrRateLimit,
		Message:   msg,
		Code:      dec.Reason,
		RequestID: reqID,
	}
	if dec.RetryAfter > 0 {
		retry := dec.RetryAfter
		apiErr.RetryAfter = &retry
		w.Header().Set("Retry-After", strconv.Itoa(retry))
	}
	writeJSONError(w, http.StatusTooManyRequests, apiErr)
}
