package httpapi

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ClientLimiter is a token bucket per client IP.
type ClientLimiter struct {
	mu      sync.Mutex
	clients map[string]*client
	limit   rate.Limit
	burst   int
	idle    time.Duration
	pruned  time.Time
	now     func() time.Time
}

type client struct {
	lim  *rate.Limiter
	seen time.Time
}

// NewClientLimiter allows rps requests per second per IP with the given burst.
// Buckets unused for idle are dropped, checked at most once per idle period.
func NewClientLimiter(rps float64, burst int, idle time.Duration) *ClientLimiter {
	return &ClientLimiter{
		clients: map[string]*client{},
		limit:   rate.Limit(rps),
		burst:   burst,
		idle:    idle,
		now:     time.Now,
	}
}

// Allow takes one token from ip's bucket.
func (l *ClientLimiter) Allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if now.Sub(l.pruned) >= l.idle {
		l.prune(now)
	}
	c, ok := l.clients[ip]
	if !ok {
		c = &client{lim: rate.NewLimiter(l.limit, l.burst)}
		l.clients[ip] = c
	}
	c.seen = now
	return c.lim.AllowN(now, 1)
}

// Len reports how many client buckets are tracked.
func (l *ClientLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

func (l *ClientLimiter) prune(now time.Time) {
	cutoff := now.Add(-l.idle)
	for ip, c := range l.clients {
		if c.seen.Before(cutoff) {
			delete(l.clients, ip)
		}
	}
	l.pruned = now
}

// Middleware answers 429 once a client's bucket is empty. Runs after RealIP.
func (l *ClientLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow(remoteIP(r)) {
			w.Header().Set("Retry-After", "1")
			fail(w, http.StatusTooManyRequests, "Too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}
