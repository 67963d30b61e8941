// Copyright 2024-2026 Aiku AI

package conversation

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"
)

// Throttle is a Notifier that rate limits deliveries to the wrapped notifier,
// both overall and per address.
type Throttle struct {
	next   Notifier
	global *rate.Limiter

	mu        sync.Mutex
	perAddr   map[string]*rate.Limiter
	addrRPS   float64
	addrBurst int
}

// NewThrottle wraps next so that at most rps deliveries per second go out,
// with bursts up to burst. A non-positive rps returns next unchanged.
func NewThrottle(next Notifier, rps float64, burst int) Notifier {
	if rps <= 0 {
		return next
	}
	if burst <= 0 {
		burst = 1
	}
	return &Throttle{
		next:    next,
		global:  rate.NewLimiter(rate.Limit(rps), burst),
		perAddr: make(map[string]*rate.Limiter),
	}
}

// WithPerAddress additionally limits deliveries to any single address.
func (t *Throttle) WithPerAddress(rps float64, burst int) *Throttle {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.addrRPS = rps
	t.addrBurst = max(burst, 1)
	return t
}

func (t *Throttle) addressLimiter(address string) *rate.Limiter {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.addrRPS <= 0 {
		return nil
	}
	if l, ok := t.perAddr[address]; ok {
		return l
	}
	l := rate.NewLimiter(rate.Limit(t.addrRPS), t.addrBurst)
	t.perAddr[address] = l
	return l
}

func (t *Throttle) Send(ctx context.Context, address, subject, body string, isHTML bool) error {
	if l := t.addressLimiter(address); l != nil {
		if err := l.Wait(ctx); err != nil {
			return fmt.Errorf("failed to wait for address rate limit: %w", err)
		}
	}
	if err := t.global.Wait(ctx); err != nil {
		return fmt.Errorf("failed to wait for rate limit: %w", err)
	}
	return t.next.Send(ctx, address, subject, body, isHTML)
}
