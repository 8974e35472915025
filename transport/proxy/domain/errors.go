package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrLocked     = errors.New("transport locked by rate limit cooldown")
	ErrBufferFull = errors.New("dispatch buffer is full")
	ErrThrottled  = errors.New("dispatch throttled locally")
)

// LockedError: envio tentado enquanto o gate de cooldown está ativo.
type LockedError struct {
	Until time.Time
}

func (e *LockedError) Error() string {
	if e == nil || e.Until.IsZero() {
		return ErrLocked.Error()
	}
	return fmt.Sprintf("%s until %s", ErrLocked, e.Until.UTC().Format(time.RFC3339))
}

func (e *LockedError) Is(target error) bool { return target == ErrLocked }

// BufferFullError: todas as vagas do limitador estão ocupadas.
type BufferFullError struct {
	Capacity int
}

func (e *BufferFullError) Error() string {
	if e == nil {
		return ErrBufferFull.Error()
	}
	return fmt.Sprintf("%s (capacity %d)", ErrBufferFull, e.Capacity)
}

func (e *BufferFullError) Is(target error) bool { return target == ErrBufferFull }

// ThrottledError: o token bucket local negou o envio.
type ThrottledError struct {
	RetryAfter time.Duration
}

func (e *ThrottledError) Error() string {
	if e == nil || e.RetryAfter <= 0 {
		return ErrThrottled.Error()
	}
	return fmt.Sprintf("%s, retry after %s", ErrThrottled, e.RetryAfter)
}

func (e *ThrottledError) Is(target error) bool { return target == ErrThrottled }

// TransportError: a chamada ao canal de invocação falhou (rede/canal).
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	if e == nil || e.Err == nil {
		return "transport error"
	}
	return "transport error: " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// MaxRawFragment limita o trecho da resposta guardado em MalformedResponseError.
const MaxRawFragment = 256

// MalformedResponseError: a resposta do proxy não tem o formato esperado.
// Raw nunca deve conter credenciais.
type MalformedResponseError struct {
	Raw string
	Err error
}

// NewMalformedResponseError trunca raw em MaxRawFragment bytes.
func NewMalformedResponseError(raw []byte, err error) *MalformedResponseError {
	s := string(raw)
	if len(s) > MaxRawFragment {
		s = s[:MaxRawFragment] + "..."
	}
	return &MalformedResponseError{Raw: s, Err: err}
}

func (e *MalformedResponseError) Error() string {
	if e == nil {
		return "malformed proxy response"
	}
	if e.Err != nil {
		return fmt.Sprintf("malformed proxy response: %v: %q", e.Err, e.Raw)
	}
	return fmt.Sprintf("malformed proxy response: %q", e.Raw)
}

func (e *MalformedResponseError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// RemoteError: o endpoint remoto respondeu com status de erro (inclui 429).
type RemoteError struct {
	StatusCode  int
	Detail      string
	RateLimited bool
	RetryAfter  time.Duration
	Message     string
}

// NewRemoteError monta o erro a partir de um Outcome não-sucesso.
func NewRemoteError(o Outcome, detail string) *RemoteError {
	return &RemoteError{
		StatusCode:  o.StatusCode,
		Detail:      detail,
		RateLimited: o.Kind == OutcomeRateLimited,
		RetryAfter:  o.RetryAfter,
		Message:     o.Message,
	}
}

func (e *RemoteError) Error() string {
	if e == nil {
		return "remote error"
	}
	if e.RateLimited {
		return fmt.Sprintf("rate limited by remote (status %d), retry after %s", e.StatusCode, e.RetryAfter)
	}
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("remote responded with status %d", e.StatusCode)
}
