package application

import (
	"time"

	"proxy-transport/transport/proxy/domain"
)

// DefaultThrottleRetryAfter é o piso do retry-after de uma negação local.
const DefaultThrottleRetryAfter = time.Second

// ThrottleService aplica o orçamento local por host. Não conhece HTTP.
//
// RetryAfter é o piso da espera sugerida: a negação informa o maior valor
// entre ele e a espera calculada pelo orçamento.
type ThrottleService struct {
	Budget     domain.HostBudget
	RetryAfter time.Duration
}

func (s ThrottleService) Decide(host domain.Key) domain.Decision {
	if s.Budget == nil {
		return domain.Decision{Allowed: true}
	}

	dec := s.Budget.Take(host)
	if dec.Allowed {
		return domain.Decision{Allowed: true}
	}

	floor := s.RetryAfter
	if floor <= 0 {
		floor = DefaultThrottleRetryAfter
	}
	return domain.Decision{RetryAfter: max(dec.RetryAfter, floor)}
}
