package domain

import "time"

// OutcomeKind classifica o resultado de uma tentativa de envio.
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeRateLimited
	OutcomeGenericError
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeRateLimited:
		return "rate_limited"
	case OutcomeGenericError:
		return "error"
	default:
		return "unknown"
	}
}

// Outcome é o resultado terminal de um envio. Não é guardado depois que o
// chamador recebe o resultado.
type Outcome struct {
	Kind       OutcomeKind
	StatusCode int

	// RetryAfter só é preenchido quando Kind == OutcomeRateLimited.
	RetryAfter time.Duration

	// Message descreve o erro quando Kind == OutcomeGenericError.
	Message string

	// RateLimits é o valor bruto de x-sentry-rate-limits (primeiro elemento),
	// repassado ao produtor sem interpretação.
	RateLimits string
}

func (o Outcome) Success() bool { return o.Kind == OutcomeSuccess }
