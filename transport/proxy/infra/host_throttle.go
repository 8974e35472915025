package infra

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"proxy-transport/transport/proxy/domain"
)

const (
	DefaultHostIdleTTL    = 15 * time.Minute
	DefaultHostSweepEvery = 2 * time.Minute
)

// HostThrottle dá a cada host de destino um orçamento de envios
// (golang.org/x/time/rate) e conta o que foi liberado e negado por host.
//
// Take reserva um token; se o token só estaria disponível no futuro a
// reserva é devolvida e a negação informa a espera exata até lá.
type HostThrottle struct {
	rps   rate.Limit
	burst int
	now   func() time.Time

	idleTTL    time.Duration
	sweepEvery time.Duration

	mu    sync.Mutex
	hosts map[domain.Key]*hostBudget
}

type hostBudget struct {
	bucket   *rate.Limiter
	lastTake time.Time
	allowed  int64
	denied   int64
}

// HostUsage é o retrato de um host em Usage.
type HostUsage struct {
	Host     domain.Key
	Allowed  int64
	Denied   int64
	LastTake time.Time
}

type HostThrottleOption func(*HostThrottle)

// WithIdleTTL define após quanto tempo sem envios o host é esquecido.
func WithIdleTTL(d time.Duration) HostThrottleOption {
	return func(h *HostThrottle) { h.idleTTL = d }
}

// WithSweepEvery define o intervalo do sweeper (<= 0 desliga).
func WithSweepEvery(d time.Duration) HostThrottleOption {
	return func(h *HostThrottle) { h.sweepEvery = d }
}

func WithThrottleClock(now func() time.Time) HostThrottleOption {
	return func(h *HostThrottle) {
		if now != nil {
			h.now = now
		}
	}
}

func NewHostThrottle(rps float64, burst int, opts ...HostThrottleOption) *HostThrottle {
	h := &HostThrottle{
		rps:        rate.Limit(rps),
		burst:      burst,
		now:        time.Now,
		idleTTL:    DefaultHostIdleTTL,
		sweepEvery: DefaultHostSweepEvery,
		hosts:      make(map[domain.Key]*hostBudget),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *HostThrottle) Rate() (rps float64, burst int) { return float64(h.rps), h.burst }

// Take implementa domain.HostBudget.
func (h *HostThrottle) Take(host domain.Key) domain.Decision {
	now := h.now()

	h.mu.Lock()
	defer h.mu.Unlock()

	b, ok := h.hosts[host]
	if !ok {
		b = &hostBudget{bucket: rate.NewLimiter(h.rps, h.burst)}
		h.hosts[host] = b
	}
	b.lastTake = now

	r := b.bucket.ReserveN(now, 1)
	if !r.OK() {
		b.denied++
		return domain.Decision{}
	}
	if wait := r.DelayFrom(now); wait > 0 {
		r.CancelAt(now)
		b.denied++
		return domain.Decision{RetryAfter: wait}
	}
	b.allowed++
	return domain.Decision{Allowed: true}
}

// Usage lista os hosts conhecidos, ordenados por nome.
func (h *HostThrottle) Usage() []HostUsage {
	h.mu.Lock()
	out := make([]HostUsage, 0, len(h.hosts))
	for host, b := range h.hosts {
		out = append(out, HostUsage{Host: host, Allowed: b.allowed, Denied: b.denied, LastTake: b.lastTake})
	}
	h.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Host < out[j].Host })
	return out
}

func (h *HostThrottle) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.hosts)
}

// Sweep esquece os hosts sem envio há mais de idleTTL e retorna quantos saíram.
func (h *HostThrottle) Sweep() int {
	cutoff := h.now().Add(-h.idleTTL)

	h.mu.Lock()
	defer h.mu.Unlock()

	n := 0
	for host, b := range h.hosts {
		if b.lastTake.Before(cutoff) {
			delete(h.hosts, host)
			n++
		}
	}
	return n
}

// StartSweeper roda Sweep a cada sweepEvery até ctx encerrar.
func (h *HostThrottle) StartSweeper(ctx context.Context) {
	if h.sweepEvery <= 0 {
		return
	}

	tick := time.NewTicker(h.sweepEvery)
	go func() {
		defer tick.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-tick.C:
				h.Sweep()
			}
		}
	}()
}
