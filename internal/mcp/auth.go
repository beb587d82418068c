package mcp

import (
	"crypto/subtle"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

const (
	defaultTransportBodyLimit int64 = 1 << 20 // 1MiB
	clientIdleEviction              = 10 * time.Minute
)

type HTTPHandlerConfig struct {
	AuthToken       string
	RateLimitPerMin int
	MaxBodyBytes    int64
}

// transportGuard fronts the streamable HTTP transport with bearer auth, a
// per-client request budget, and a request body cap, in that order.
type transportGuard struct {
	next    http.Handler
	token   string
	budget  *requestBudget
	maxBody int64
}

func guardTransport(next http.Handler, cfg HTTPHandlerConfig) http.Handler {
	limit := cfg.MaxBodyBytes
	if limit <= 0 {
		limit = defaultTransportBodyLimit
	}
	return &transportGuard{
		next:    next,
		token:   cfg.AuthToken,
		budget:  newRequestBudget(cfg.RateLimitPerMin),
		maxBody: limit,
	}
}

func (g *transportGuard) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	presented, ok := bearerToken(r)
	if !ok {
		deny(w, http.StatusUnauthorized, "missing bearer token")
		return
	}
	if g.token == "" || presented == "" ||
		subtle.ConstantTimeCompare([]byte(presented), []byte(g.token)) != 1 {
		deny(w, http.StatusForbidden, "invalid bearer token")
		return
	}
	if !g.budget.take(clientKey(r)) {
		deny(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}
	if r.Body != nil {
		r.Body = http.MaxBytesReader(w, r.Body, g.maxBody)
	}
	g.next.ServeHTTP(w, r)
}

func bearerToken(r *http.Request) (string, bool) {
	authz := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(authz, "Bearer ") {
		return "", false
	}
	return strings.TrimSpace(strings.TrimPrefix(authz, "Bearer ")), true
}

// clientKey buckets requests by token and source host, so a leaked token
// replayed from another address draws on its own budget.
func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	if host == "" {
		host = "unknown"
	}
	tok, _ := bearerToken(r)
	if tok == "" {
		return host
	}
	return tok + "|" + host
}

// requestBudget caps requests per client key within a fixed one-minute
// window. Idle keys are swept so the map stays bounded.
type requestBudget struct {
	mu      sync.Mutex
	cap     int
	windows map[string]*budgetWindow
	swept   time.Time
}

type budgetWindow struct {
	count int
	start time.Time
}

func newRequestBudget(perMin int) *requestBudget {
	if perMin <= 0 {
		perMin = 60
	}
	return &requestBudget{
		cap:     perMin,
		windows: make(map[string]*budgetWindow),
		swept:   time.Now(),
	}
}

func (b *requestBudget) take(key string) bool {
	if b == nil {
		return true
	}
	if key == "" {
		key = "anonymous"
	}

	now := time.Now()
	b.mu.Lock()
	defer b.mu.Unlock()

	if now.Sub(b.swept) >= clientIdleEviction {
		for k, w := range b.windows {
			if now.Sub(w.start) >= clientIdleEviction {
				delete(b.windows, k)
			}
		}
		b.swept = now
	}

	w, ok := b.windows[key]
	if !ok || now.Sub(w.start) >= time.Minute {
		b.windows[key] = &budgetWindow{count: 1, start: now}
		return true
	}
	if w.count >= b.cap {
		return false
	}
	w.count++
	return true
}

func deny(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
