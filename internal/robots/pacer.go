package robots

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// Pacer enforces each host's minimum delay between consecutive requests.
//
// The per-host limiters are created once during the policy phase and the
// map is never written afterward, so reads during the inspection phase need
// no lock: the phase ordering provides the happens-before edge.
//
// Design decision: rate.Limiter rather than scattered sleeps, so the pacing
// contract is explicit state that tests can probe with synthetic timestamps
// instead of wall-clock waits.
type Pacer struct {
	limiters map[string]*rate.Limiter
}

// NewPacer creates an empty pacer.
func NewPacer() *Pacer {
	return &Pacer{limiters: make(map[string]*rate.Limiter)}
}

// Admit registers a host with its enforced delay. Must only be called
// during the policy phase, before any Wait on that host.
func (p *Pacer) Admit(host string, delay time.Duration) {
	if delay <= 0 {
		delay = DefaultDelay
	}
	p.limiters[host] = rate.NewLimiter(rate.Every(delay), 1)
}

// Admitted reports whether a host passed the policy phase.
func (p *Pacer) Admitted(host string) bool {
	_, ok := p.limiters[host]
	return ok
}

// Delay returns the enforced delay for a host, or zero if unknown.
func (p *Pacer) Delay(host string) time.Duration {
	limiter, ok := p.limiters[host]
	if !ok {
		return 0
	}
	interval := 1 / float64(limiter.Limit())
	return time.Duration(interval * float64(time.Second))
}

// Wait blocks until the host's next request may be sent.
// Waiting on a host that never passed the policy phase is a programming
// error and returns an error rather than silently skipping the delay.
func (p *Pacer) Wait(ctx context.Context, host string) error {
	limiter, ok := p.limiters[host]
	if !ok {
		return fmt.Errorf("the robots.txt of %s has not been vetted", host)
	}
	return limiter.Wait(ctx)
}
