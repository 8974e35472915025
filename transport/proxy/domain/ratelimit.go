package domain

// Contratos de rate limit: o gate de cooldown (sinal do remoto) e o
// throttle local (orçamento por host).

import "time"

// Gate bloqueia todos os envios durante a janela de cooldown.
//
// Lock nunca move o fim da janela para trás; não existe unlock explícito,
// a janela expira sozinha.
type Gate interface {
	IsLocked() bool
	Until() time.Time
	Lock(d time.Duration)
}

type Key string

// HostBudget responde, por host de destino, se um envio cabe agora.
// Quando não cabe, Decision.RetryAfter diz quanto falta (0 se desconhecido).
// Uma negação não consome orçamento.
type HostBudget interface {
	Take(host Key) Decision
}

type Decision struct {
	Allowed bool
	// RetryAfter é a recomendação de espera quando bloquear.
	// Se 0, não há recomendação.
	RetryAfter time.Duration
}
