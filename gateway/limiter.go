package gateway

import (
	"sync"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// limiterPool hands out one token bucket per user, shared by all of the
// user's connections.
type limiterPool struct {
	mu    sync.Mutex
	m     map[uuid.UUID]*rate.Limiter
	rps   float64
	burst int
}

func newLimiterPool(rps float64, burst int) *limiterPool {
	if rps <= 0 {
		rps = 10
	}
	if burst <= 0 {
		burst = 20
	}
	return &limiterPool{
		m:     make(map[uuid.UUID]*rate.Limiter),
		rps:   rps,
		burst: burst,
	}
}

func (p *limiterPool) get(key uuid.UUID) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	if l, ok := p.m[key]; ok {
		return l
	}
	l := rate.NewLimiter(rate.Limit(p.rps), p.burst)
	p.m[key] = l
	return l
}

func (p *limiterPool) Allow(key uuid.UUID) bool {
	return p.get(key).Allow()
}

// Forget drops the bucket of a user with no remaining connections.
func (p *limiterPool) Forget(key uuid.UUID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.m, key)
}
