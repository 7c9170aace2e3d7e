package api

import (
	"crypto/subtle"
	"net"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/time/rate"

	"streamqueue/internal/config"
)

// AdminAuth guards the dashboard endpoints with the shared operator key and
// per-client rate limiting. The key is accepted in a header or the `key`
// query parameter so the overlay dashboard can be opened from a plain URL.
type AdminAuth struct {
	cfg      config.AuthConfig
	limiters sync.Map // map[string]*rate.Limiter
}

func NewAdminAuth(cfg config.AuthConfig) *AdminAuth {
	if cfg.HeaderKey == "" {
		cfg.HeaderKey = "x-admin-key"
	}
	return &AdminAuth{cfg: cfg}
}

func (a *AdminAuth) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimSpace(r.Header.Get(a.cfg.HeaderKey))
		if key == "" {
			key = strings.TrimSpace(r.URL.Query().Get("key"))
		}
		if key == "" {
			writeError(w, http.StatusUnauthorized, "missing admin key")
			return
		}
		if subtle.ConstantTimeCompare([]byte(key), []byte(a.cfg.AdminKey)) != 1 {
			writeError(w, http.StatusUnauthorized, "invalid admin key")
			return
		}

		if !a.allow(clientKey(r)) {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (a *AdminAuth) allow(key string) bool {
	if a.cfg.RateLimit.RPS <= 0 {
		return true
	}
	return a.getLimiter(key).Allow()
}

func (a *AdminAuth) getLimiter(key string) *rate.Limiter {
	if v, ok := a.limiters.Load(key); ok {
		return v.(*rate.Limiter)
	}

	burst := a.cfg.RateLimit.Burst
	if burst <= 0 {
		burst = 5
	}

	lim := rate.NewLimiter(rate.Limit(a.cfg.RateLimit.RPS), burst)
	actual, loaded := a.limiters.LoadOrStore(key, lim)
	if loaded {
		return actual.(*rate.Limiter)
	}
	return lim
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return "unknown"
}
