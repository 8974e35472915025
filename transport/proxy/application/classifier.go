package application

import (
	"fmt"
	"time"

	"proxy-transport/transport/proxy/domain"
)

// Headers lidos na resposta do proxy (nomes em minúsculas).
const (
	HeaderRetryAfter  = "retry-after"
	HeaderSentryError = "x-sentry-error"
	HeaderRateLimits  = "x-sentry-rate-limits"
)

const (
	statusTooManyRequests = 429
	statusInternalError   = 500
)

// Classifier traduz a resposta do proxy em Outcome.
//
// É uma função pura da resposta (e do relógio, só para HTTP-date): chamar
// duas vezes com a mesma resposta retorna o mesmo Outcome.
type Classifier struct {
	DefaultBackoff time.Duration
	Now            func() time.Time
}

func (c Classifier) Classify(resp domain.DispatchResponse) domain.Outcome {
	status := resp.StatusCode
	if status <= 0 {
		status = statusInternalError
	}

	out := domain.Outcome{
		StatusCode: status,
		RateLimits: resp.Headers.Get(HeaderRateLimits),
	}

	switch {
	case status >= 200 && status <= 299:
		out.Kind = domain.OutcomeSuccess
	case status == statusTooManyRequests:
		out.Kind = domain.OutcomeRateLimited
		out.RetryAfter = ParseRetryAfter(resp.Headers.Get(HeaderRetryAfter), c.now(), c.backoff())
	default:
		out.Kind = domain.OutcomeGenericError
		out.Message = errorMessage(status, resp.Headers.Get(HeaderSentryError))
	}
	return out
}

func errorMessage(status int, detail string) string {
	if detail == "" {
		return fmt.Sprintf("remote responded with status %d", status)
	}
	return fmt.Sprintf("remote responded with status %d: %s", status, detail)
}

func (c Classifier) backoff() time.Duration {
	if c.DefaultBackoff <= 0 {
		return DefaultBackoff
	}
	return c.DefaultBackoff
}

func (c Classifier) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}
