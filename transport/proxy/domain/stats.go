package domain

import (
	"context"
	"time"
)

// Resultados registrados em StatsEvent.Result.
const (
	ResultSuccess        = "success"
	ResultRateLimited    = "rate_limited"
	ResultError          = "error"
	ResultTransportError = "transport_error"
	ResultLocked         = "locked"
	ResultBufferFull     = "buffer_full"
	ResultThrottled      = "throttled"
)

// StatsEvent representa o resultado de uma tentativa de envio.
//
// Observação: cuidado com cardinalidade de Target (use host, não URL completa,
// em bases como Redis/Prometheus).
type StatsEvent struct {
	Target     string
	Result     string
	StatusCode int

	At time.Time
}

// StatsStore é a estratégia de persistência para estatísticas de envio.
//
// O transporte trata erro como best-effort (não derruba o envio).
type StatsStore interface {
	Record(ctx context.Context, ev StatsEvent) error
}
