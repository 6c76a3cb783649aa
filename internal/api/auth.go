package api

import (
	"crypto/subtle"
	"net/http"
	"sync"

	"golang.org/x/time/rate"

	"sartarosh/internal/config"
)

type apiClient struct {
	key   string
	extra string
	name  string
}

// HTTPAuth checks the API key headers and applies a per-key rate limit.
// Key comparison is constant time.
type HTTPAuth struct {
	cfg      config.APIAuthConfig
	clients  map[string]apiClient
	limiters sync.Map
	rps      rate.Limit
	burst    int
}

func NewHTTPAuth(cfg config.APIConfig) *HTTPAuth {
	clients := make(map[string]apiClient, len(cfg.Auth.APIKeys))
	for _, k := range cfg.Auth.APIKeys {
		clients[k.Key] = apiClient{key: k.Key, extra: k.Extra, name: k.Name}
	}

	rps := rate.Limit(cfg.RateLimit.RPS)
	if rps <= 0 {
		rps = rate.Inf
	}
	burst := cfg.RateLimit.Burst
	if burst <= 0 {
		burst = 5
	}

	return &HTTPAuth{cfg: cfg.Auth, clients: clients, rps: rps, burst: burst}
}

func (a *HTTPAuth) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.cfg.Enabled {
			next.ServeHTTP(w, r)
			return
		}

		key := r.Header.Get(a.cfg.HeaderAPIKey)
		extra := r.Header.Get(a.cfg.HeaderExtra)
		client, ok := a.checkAuth(key, extra)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		if !a.limiter(client.key).Allow() {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (a *HTTPAuth) checkAuth(key, extra string) (apiClient, bool) {
	client, ok := a.clients[key]
	if !ok {
		return apiClient{}, false
	}
	if subtle.ConstantTimeCompare([]byte(client.key), []byte(key)) != 1 {
		return apiClient{}, false
	}
	if client.extra != "" && subtle.ConstantTimeCompare([]byte(client.extra), []byte(extra)) != 1 {
		return apiClient{}, false
	}
	return client, true
}

func (a *HTTPAuth) limiter(key string) *rate.Limiter {
	if v, ok := a.limiters.Load(key); ok {
		return v.(*rate.Limiter)
	}
	v, _ := a.limiters.LoadOrStore(key, rate.NewLimiter(a.rps, a.burst))
	return v.(*rate.Limiter)
}
