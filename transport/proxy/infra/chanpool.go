package infra

import (
	"context"
	"sync"

	"proxy-transport/transport/proxy/domain"
)

type chanPool struct {
	sem chan struct{}
}

// NewChanPool cria um pool simples baseado em channel com capacidade `max`.
func NewChanPool(max int) domain.SlotPool {
	if max < 0 {
		max = 0
	}
	return &chanPool{sem: make(chan struct{}, max)}
}

func (p *chanPool) TryAcquire() (func(), bool) {
	select {
	case p.sem <- struct{}{}:
		return p.releaser(), true
	default:
		return nil, false
	}
}

func (p *chanPool) Acquire(ctx context.Context) (func(), bool) {
	select {
	case p.sem <- struct{}{}:
		return p.releaser(), true
	case <-ctx.Done():
		return nil, false
	}
}

func (p *chanPool) InFlight() int { return len(p.sem) }
func (p *chanPool) Capacity() int { return cap(p.sem) }

// releaser garante uma única devolução por aquisição, mesmo se chamado duas vezes.
func (p *chanPool) releaser() func() {
	var once sync.Once
	return func() {
		once.Do(func() { <-p.sem })
	}
}
