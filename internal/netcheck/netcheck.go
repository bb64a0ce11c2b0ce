// Package netcheck answers whether the device can currently reach the sync
// server, so that a sync pass can give up before touching the network.
package netcheck

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Probe reports connectivity.
type Probe interface {
	Online(ctx context.Context) bool
}

// Func adapts a function to a Probe.
type Func func(ctx context.Context) bool

// Online implements Probe.
func (f Func) Online(ctx context.Context) bool {
	return f(ctx)
}

// Static is a Probe with a fixed answer.
type Static bool

// Online implements Probe.
func (s Static) Online(context.Context) bool {
	return bool(s)
}

// Pinger is anything that can check reachability of a remote host.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingProbe reports online when a Pinger succeeds within Timeout.
// A positive answer is cached for TTL to avoid a HEAD request in front of
// every pass run by the daemon; negative answers are never cached.
type PingProbe struct {
	pinger  Pinger
	timeout time.Duration
	ttl     time.Duration
	logger  *zap.Logger
	now     func() time.Time

	mu       sync.Mutex
	onlineAt time.Time
}

// NewPingProbe creates a probe around p. A nil logger discards output.
func NewPingProbe(p Pinger, timeout, ttl time.Duration, logger *zap.Logger) *PingProbe {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PingProbe{
		pinger:  p,
		timeout: timeout,
		ttl:     ttl,
		logger:  logger,
		now:     time.Now,
	}
}

// Online implements Probe.
func (p *PingProbe) Online(ctx context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ttl > 0 && !p.onlineAt.IsZero() && p.now().Sub(p.onlineAt) < p.ttl {
		return true
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.pinger.Ping(ctx); err != nil {
		p.onlineAt = time.Time{}
		p.logger.Debug("connectivity probe failed", zap.Error(err))
		return false
	}

	p.onlineAt = p.now()
	return true
}
