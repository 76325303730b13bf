package resilience

import "sync"

// DialGuard keeps one [CircuitBreaker] per sink address. Sink addresses come
// from operator commands and form a small, stable set in practice, so
// breakers are kept for the life of the process.
type DialGuard struct {
	cfg CircuitBreakerConfig

	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
}

// NewDialGuard creates a guard whose per-address breakers use cfg. The
// config's Name field is ignored; each breaker is named after its address.
func NewDialGuard(cfg CircuitBreakerConfig) *DialGuard {
	return &DialGuard{
		cfg:      cfg,
		breakers: make(map[string]*CircuitBreaker),
	}
}

// Execute runs fn through the breaker for addr, creating the breaker on
// first use. Returns [ErrCircuitOpen] without calling fn when the address
// has tripped its breaker.
func (g *DialGuard) Execute(addr string, fn func() error) error {
	return g.breaker(addr).Execute(fn)
}

// State returns the breaker state for addr. An address never dialed reports
// [StateClosed].
func (g *DialGuard) State(addr string) State {
	return g.breaker(addr).State()
}

func (g *DialGuard) breaker(addr string) *CircuitBreaker {
	g.mu.Lock()
	defer g.mu.Unlock()
	cb, ok := g.breakers[addr]
	if !ok {
		cfg := g.cfg
		cfg.Name = addr
		cb = NewCircuitBreaker(cfg)
		g.breakers[addr] = cb
	}
	return cb
}
