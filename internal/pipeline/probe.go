package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/heimdex/reeldraft/internal/logging"
)

const defaultProbeTTL = 5 * time.Minute

// Capabilities reports which external tools are usable.
type Capabilities struct {
	FFmpeg   bool      `json:"ffmpeg"`
	Version  string    `json:"version,omitempty"`
	ProbedAt time.Time `json:"probed_at"`
}

type Prober interface {
	Probe(ctx context.Context) (*Capabilities, error)
}

// CachedProbe wraps a Prober so health checks do not spawn ffmpeg on every
// request.
type CachedProbe struct {
	prober Prober
	ttl    time.Duration
	logger *slog.Logger

	mu     sync.RWMutex
	cached *Capabilities
}

func NewCachedProbe(prober Prober, logger *slog.Logger) *CachedProbe {
	if logger == nil {
		logger = logging.Discard()
	}
	return &CachedProbe{
		prober: prober,
		ttl:    defaultProbeTTL,
		logger: logger,
	}
}

// Get returns cached capabilities if fresh, otherwise re-probes.
func (p *CachedProbe) Get(ctx context.Context) (*Capabilities, error) {
	p.mu.RLock()
	if p.cached != nil && time.Since(p.cached.ProbedAt) < p.ttl {
		caps := p.cached
		p.mu.RUnlock()
		return caps, nil
	}
	p.mu.RUnlock()

	return p.Refresh(ctx)
}

func (p *CachedProbe) Peek() *Capabilities {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cached
}

// Refresh probes unconditionally. A failed probe is cached as unavailable.
func (p *CachedProbe) Refresh(ctx context.Context) (*Capabilities, error) {
	caps, err := p.prober.Probe(ctx)
	if err != nil {
		p.logger.Warn("ffmpeg probe failed", "error", err)
		caps = &Capabilities{FFmpeg: false, ProbedAt: time.Now()}
	}

	p.mu.Lock()
	p.cached = caps
	p.mu.Unlock()
	return caps, err
}

func (p *CachedProbe) Invalidate() {
	p.mu.Lock()
	p.cached = nil
	p.mu.Unlock()
}
