package collection

import (
	"sync"
	"time"
)

// CircuitState represents the state of a domain circuit.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig configures the per-domain circuit breaker.
type BreakerConfig struct {
	// FailureThreshold failures inside Window open the circuit.
	FailureThreshold int
	Window           time.Duration
	// Cooldown is how long an open circuit rejects before allowing a probe.
	Cooldown time.Duration
}

// DefaultBreakerConfig returns the defaults used for capture domains.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{FailureThreshold: 3, Window: 5 * time.Minute, Cooldown: 10 * time.Minute}
}

type domainCircuit struct {
	state    CircuitState
	failures []time.Time
	openedAt time.Time
	probing  bool
}

// DomainBreaker keeps one circuit per target domain.
//
// Thread Safety: Safe for concurrent use.
type DomainBreaker struct {
	config BreakerConfig
	now    func() time.Time

	mu       sync.Mutex
	circuits map[string]*domainCircuit
}

// NewDomainBreaker creates a breaker with all circuits closed.
func NewDomainBreaker(config BreakerConfig) *DomainBreaker {
	def := DefaultBreakerConfig()
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = def.FailureThreshold
	}
	if config.Window <= 0 {
		config.Window = def.Window
	}
	if config.Cooldown <= 0 {
		config.Cooldown = def.Cooldown
	}
	return &DomainBreaker{config: config, now: time.Now, circuits: map[string]*domainCircuit{}}
}

// Allow reports whether a capture for domain may proceed. An open circuit
// lets a single probe through once the cooldown has elapsed.
func (b *DomainBreaker) Allow(domain string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	c := b.circuit(domain)
	switch c.state {
	case CircuitClosed:
		return true
	case CircuitOpen:
		if b.now().Sub(c.openedAt) >= b.config.Cooldown {
			c.state = CircuitHalfOpen
			c.probing = true
			return true
		}
		return false
	case CircuitHalfOpen:
		if c.probing {
			return false
		}
		c.probing = true
		return true
	default:
		return false
	}
}

// RecordSuccess closes the circuit of domain.
func (b *DomainBreaker) RecordSuccess(domain string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c := b.circuit(domain)
	c.state = CircuitClosed
	c.failures = c.failures[:0]
	c.probing = false
}

// RecordFailure counts a failure and opens the circuit when the threshold
// is reached inside the window. A failed probe reopens immediately.
func (b *DomainBreaker) RecordFailure(domain string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	c := b.circuit(domain)

	if c.state == CircuitHalfOpen {
		c.state = CircuitOpen
		c.openedAt = now
		c.probing = false
		return
	}

	cutoff := now.Add(-b.config.Window)
	kept := c.failures[:0]
	for _, at := range c.failures {
		if at.After(cutoff) {
			kept = append(kept, at)
		}
	}
	c.failures = append(kept, now)

	if c.state == CircuitClosed && len(c.failures) >= b.config.FailureThreshold {
		c.state = CircuitOpen
		c.openedAt = now
	}
}

// State returns the current state of domain.
func (b *DomainBreaker) State(domain string) CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.circuit(domain).state
}

func (b *DomainBreaker) circuit(domain string) *domainCircuit {
	c, ok := b.circuits[domain]
	if !ok {
		c = &domainCircuit{}
		b.circuits[domain] = c
	}
	return c
}
