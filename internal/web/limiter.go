package web

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// loginLimiter is a per-client token bucket. perMin <= 0 disables it.
type loginLimiter struct {
	mu      sync.Mutex
	perMin  int
	clients map[string]*clientBucket
	now     func() time.Time
}

type clientBucket struct {
	lim  *rate.Limiter
	seen time.Time
}

const limiterIdle = 10 * time.Minute

func newLoginLimiter(perMin int) *loginLimiter {
	return &loginLimiter{perMin: perMin, clients: map[string]*clientBucket{}, now: time.Now}
}

func (l *loginLimiter) allow(ip string) bool {
	if l == nil || l.perMin <= 0 {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if len(l.clients) > 1024 {
		for k, b := range l.clients {
			if now.Sub(b.seen) > limiterIdle {
				delete(l.clients, k)
			}
		}
	}
	b, ok := l.clients[ip]
	if !ok {
		b = &clientBucket{lim: rate.NewLimiter(rate.Every(time.Minute/time.Duration(l.perMin)), l.perMin)}
		l.clients[ip] = b
	}
	b.seen = now
	return b.lim.AllowN(now, 1)
}
