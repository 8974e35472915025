package application

import (
	"context"
	"time"

	"proxy-transport/transport/proxy/domain"
)

// ConcurrencyService concentra a regra de aquisição/liberação de vagas,
// sem saber nada sobre o canal de invocação.
type ConcurrencyService struct {
	Pool           domain.SlotPool
	AcquireTimeout time.Duration
}

// Acquire tenta adquirir uma vaga.
// - Se `AcquireTimeout <= 0`, não espera: sem vaga livre retorna ok=false na hora.
// - Se `AcquireTimeout > 0`, espera até o timeout (ou até ctx cancelar).
// Retorna (release, ok). Se ok=false, nenhuma vaga foi adquirida.
func (s ConcurrencyService) Acquire(ctx context.Context) (func(), bool) {
	if s.Pool == nil {
		return func() {}, true
	}

	if s.AcquireTimeout <= 0 {
		return s.Pool.TryAcquire()
	}

	acqCtx, cancel := context.WithTimeout(ctx, s.AcquireTimeout)
	defer cancel()
	return s.Pool.Acquire(acqCtx)
}

func (s ConcurrencyService) Capacity() int {
	if s.Pool == nil {
		return 0
	}
	return s.Pool.Capacity()
}

func (s ConcurrencyService) InFlight() int {
	if s.Pool == nil {
		return 0
	}
	return s.Pool.InFlight()
}
