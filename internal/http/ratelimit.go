package http

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// loginRateLimit allows 10 credential attempts per minute per client IP.
const (
	loginRate  = rate.Limit(10.0 / 60.0)
	loginBurst = 10
)

type clientLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// rateLimiter throttles the credential endpoints per client IP. Entries
// unused for ten minutes are dropped on the next lookup sweep.
type rateLimiter struct {
	mu       sync.Mutex
	clients  map[string]*clientLimiter
	lastSwep time.Time
	metrics  *metrics
}

func newRateLimiter(m *metrics) *rateLimiter {
	return &rateLimiter{
		clients:  make(map[string]*clientLimiter),
		lastSwep: time.Now(),
		metrics:  m,
	}
}

func (rl *rateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	if now.Sub(rl.lastSwep) > 10*time.Minute {
		for key, cl := range rl.clients {
			if now.Sub(cl.lastAccess) > 10*time.Minute {
				delete(rl.clients, key)
			}
		}
		rl.lastSwep = now
	}

	cl, ok := rl.clients[ip]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(loginRate, loginBurst)}
		rl.clients[ip] = cl
	}
	cl.lastAccess = now
	return cl.limiter.Allow()
}

func (rl *rateLimiter) middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				ip = r.RemoteAddr
			}

			if !rl.allow(ip) {
				if rl.metrics != nil {
					rl.metrics.recordRateLimitHit(r.URL.Path)
				}
				w.Header().Set("Retry-After", "6")
				writeError(w, http.StatusTooManyRequests, "too many attempts, please try again later")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
