package connectivity

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Checker reports whether the remote store answers.
type Checker interface {
	Health(ctx context.Context) error
}

// Prober feeds a Signal from periodic health checks. While paused it keeps
// ticking but reports nothing, so a state forced by the user sticks.
type Prober struct {
	Signal   *Signal
	Check    Checker
	Interval time.Duration
	Timeout  time.Duration
	Log      *zap.Logger

	mu     sync.Mutex
	paused bool
}

// Run probes once immediately and then every Interval until ctx is done.
func (p *Prober) Run(ctx context.Context) {
	interval := p.Interval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.ProbeOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.ProbeOnce(ctx)
		}
	}
}

// ProbeOnce runs a single health check and reports the result unless the
// prober is paused.
func (p *Prober) ProbeOnce(ctx context.Context) {
	if p.Paused() {
		return
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	err := p.Check.Health(checkCtx)
	cancel()
	if ctx.Err() != nil || p.Paused() {
		return
	}

	if err != nil && p.Signal.IsOnline() && p.Log != nil {
		p.Log.Debug("health check failed", zap.Error(err))
	}
	p.Signal.Set(err == nil)
}

// Pause stops reporting until Resume.
func (p *Prober) Pause() {
	p.mu.Lock()
	p.paused = true
	p.mu.Unlock()
}

func (p *Prober) Resume() {
	p.mu.Lock()
	p.paused = false
	p.mu.Unlock()
}

func (p *Prober) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}
