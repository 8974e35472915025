package domain

import "context"

// SlotPool representa um recurso com capacidade finita (dispatches em voo).
//
// TryAcquire nunca bloqueia: retorna ok=false quando não há vaga.
// Acquire bloqueia até conseguir uma vaga ou até o ctx encerrar.
// Ao adquirir, retorna uma função de release que deve ser chamada exatamente uma vez.
type SlotPool interface {
	TryAcquire() (release func(), ok bool)
	Acquire(ctx context.Context) (release func(), ok bool)
	InFlight() int
	Capacity() int
}
