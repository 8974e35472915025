package infra

import (
	"sync"
	"time"
)

// Cooldown implementa domain.Gate com um único instante "desabilitado até".
//
// Começa destravado (until = agora). Lock só estende a janela; não existe
// unlock, a janela expira pelo relógio.
type Cooldown struct {
	mu    sync.Mutex
	until time.Time
	now   func() time.Time
}

type CooldownOption func(*Cooldown)

// WithClock troca o relógio (útil em testes).
func WithClock(now func() time.Time) CooldownOption {
	return func(c *Cooldown) {
		if now != nil {
			c.now = now
		}
	}
}

func NewCooldown(opts ...CooldownOption) *Cooldown {
	c := &Cooldown{now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	c.until = c.now()
	return c
}

func (c *Cooldown) IsLocked() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now().Before(c.until)
}

func (c *Cooldown) Until() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.until
}

// Lock trava por d a partir de agora. d negativo vira 0.
func (c *Cooldown) Lock(d time.Duration) {
	if d < 0 {
		d = 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if until := c.now().Add(d); until.After(c.until) {
		c.until = until
	}
}

// Remaining retorna quanto falta para destravar (0 se destravado).
func (c *Cooldown) Remaining() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d := c.until.Sub(c.now()); d > 0 {
		return d
	}
	return 0
}
