package proxy

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"proxy-transport/transport/proxy/application"
	"proxy-transport/transport/proxy/domain"
	"proxy-transport/transport/proxy/infra"
)

const (
	DefaultCapacity = 30

	// CompressionNone desliga o encoder.
	CompressionNone = "none"
)

type Options struct {
	// Invoker é o canal de invocação (obrigatório).
	Invoker domain.Invoker

	// Headers estáticos enviados em toda requisição (ex: x-sentry-auth).
	Headers map[string]string
	// Timeout por invocação (0 = sem timeout).
	Timeout time.Duration

	// Capacity é o máximo de envios em voo (0 = DefaultCapacity).
	Capacity int
	// AcquireTimeout > 0 espera por uma vaga em vez de falhar na hora.
	AcquireTimeout time.Duration

	// DefaultBackoff é o cooldown usado quando o 429 não traz retry-after válido.
	DefaultBackoff time.Duration

	// Compression: "gzip" (padrão), "deflate" ou "none".
	Compression string
	// CompressThreshold em bytes (0 = 32 KiB).
	CompressThreshold int

	// URLPolicy (nil = KeepURL).
	URLPolicy URLPolicy

	// Throttle local por host de destino. Desligado quando RateRPS <= 0.
	RateRPS   float64
	RateBurst int
	// ThrottleRetryAfter é o piso do retry-after de uma negação local (0 = 1s).
	ThrottleRetryAfter time.Duration

	// Stats recebe um evento por envio, gravado fora do caminho do envio.
	Stats domain.StatsStore
	// StatsTimeout limita cada gravação (0 = 2s).
	StatsTimeout time.Duration
	// StatsMaxPending limita gravações simultâneas; o excedente é descartado.
	StatsMaxPending int

	Logger *zap.Logger
	Hook   domain.Hook

	// Clock substitui time.Now (testes).
	Clock func() time.Time
}

// Result é entregue no canal retornado por Send.
type Result struct {
	Outcome domain.Outcome
	Err     error
}

// Transport envia requisições pelo canal de invocação respeitando o cooldown
// do remoto e o limite de concorrência. Seguro para uso concorrente.
type Transport struct {
	svc      *application.DispatchService
	gate     *infra.Cooldown
	pool     domain.SlotPool
	throttle *infra.HostThrottle
	stats    *application.StatsRecorder
}

func New(opts Options) (*Transport, error) {
	if opts.Invoker == nil {
		return nil, errors.New("proxy: invoker is required")
	}
	if opts.Capacity < 0 {
		return nil, fmt.Errorf("proxy: capacity must be >= 0, got %d", opts.Capacity)
	}
	if opts.Capacity == 0 {
		opts.Capacity = DefaultCapacity
	}
	if opts.DefaultBackoff <= 0 {
		opts.DefaultBackoff = application.DefaultBackoff
	}
	if opts.URLPolicy == nil {
		opts.URLPolicy = KeepURL
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	var encoder domain.Encoder
	if mode := strings.ToLower(strings.TrimSpace(opts.Compression)); mode != CompressionNone {
		encOpts := []infra.EncoderOption{}
		if mode != "" {
			encOpts = append(encOpts, infra.WithEncoding(mode))
		}
		if opts.CompressThreshold != 0 {
			encOpts = append(encOpts, infra.WithThreshold(opts.CompressThreshold))
		}
		enc, err := infra.NewPayloadEncoder(encOpts...)
		if err != nil {
			return nil, fmt.Errorf("proxy: %w", err)
		}
		encoder = enc
	}

	t := &Transport{
		gate: infra.NewCooldown(infra.WithClock(opts.Clock)),
		pool: infra.NewChanPool(opts.Capacity),
	}
	if opts.Stats != nil {
		t.stats = &application.StatsRecorder{
			Store:      opts.Stats,
			Timeout:    opts.StatsTimeout,
			MaxPending: opts.StatsMaxPending,
			Logger:     opts.Logger,
		}
	}

	throttle := application.ThrottleService{RetryAfter: opts.ThrottleRetryAfter}
	if opts.RateRPS > 0 {
		burst := opts.RateBurst
		if burst <= 0 {
			burst = 1
		}
		t.throttle = infra.NewHostThrottle(opts.RateRPS, burst, infra.WithThrottleClock(opts.Clock))
		throttle.Budget = t.throttle
	}

	t.svc = &application.DispatchService{
		Gate: t.gate,
		Concurrency: application.ConcurrencyService{
			Pool:           t.pool,
			AcquireTimeout: opts.AcquireTimeout,
		},
		Throttle: throttle,
		Encoder:  encoder,
		Invoker:  opts.Invoker,
		Classifier: application.Classifier{
			DefaultBackoff: opts.DefaultBackoff,
			Now:            opts.Clock,
		},
		Stats:     t.stats,
		Headers:   opts.Headers,
		Timeout:   opts.Timeout,
		URLPolicy: opts.URLPolicy,
		Hook:      opts.Hook,
		Logger:    opts.Logger,
		Now:       opts.Clock,
	}
	return t, nil
}

// Send inicia um envio e retorna um canal que recebe exatamente um Result.
//
// Gate, throttle e vaga são verificados antes de retornar: se algum rejeitar,
// o canal já vem resolvido e o canal de invocação não é chamado. A vaga é
// liberada antes do Result ser entregue.
func (t *Transport) Send(ctx context.Context, req domain.OutboundRequest) <-chan Result {
	ch := make(chan Result, 1)

	release, err := t.svc.Admit(ctx, req.URL)
	if err != nil {
		ch <- Result{Err: err}
		close(ch)
		return ch
	}

	go func() {
		defer close(ch)
		ch <- t.execute(ctx, req, release)
	}()
	return ch
}

func (t *Transport) execute(ctx context.Context, req domain.OutboundRequest, release func()) Result {
	defer release()
	out, err := t.svc.Execute(ctx, req)
	return Result{Outcome: out, Err: err}
}

// Do é a forma bloqueante de Send.
func (t *Transport) Do(ctx context.Context, req domain.OutboundRequest) (domain.Outcome, error) {
	res := <-t.Send(ctx, req)
	return res.Outcome, res.Err
}

// Flush espera até não haver envio em voo nem gravação de stats pendente,
// ou até ctx encerrar.
func (t *Transport) Flush(ctx context.Context) error {
	if t.pool.InFlight() == 0 {
		return t.stats.Wait(ctx)
	}

	tick := time.NewTicker(5 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
			if t.pool.InFlight() == 0 {
				return t.stats.Wait(ctx)
			}
		}
	}
}

func (t *Transport) IsLocked() bool { return t.gate.IsLocked() }

// CooldownRemaining retorna quanto falta para o gate destravar.
func (t *Transport) CooldownRemaining() time.Duration { return t.gate.Remaining() }

func (t *Transport) InFlight() int { return t.pool.InFlight() }

// StatsDropped conta eventos de stats descartados por excesso de gravações pendentes.
func (t *Transport) StatsDropped() int64 { return t.stats.Dropped() }
func (t *Transport) Capacity() int { return t.pool.Capacity() }

// State tem a assinatura de infra.StateFunc (gauges do Prometheus).
func (t *Transport) State() (inFlight, capacity int, cooldownSeconds float64) {
	return t.InFlight(), t.Capacity(), t.CooldownRemaining().Seconds()
}

// ThrottleRate retorna (rps, burst) do throttle local; ok=false se desligado.
func (t *Transport) ThrottleRate() (rps float64, burst int, ok bool) {
	if t.throttle == nil {
		return 0, 0, false
	}
	rps, burst = t.throttle.Rate()
	return rps, burst, true
}

// ThrottleUsage retorna liberados/negados por host do throttle local (nil se desligado).
func (t *Transport) ThrottleUsage() []infra.HostUsage {
	if t.throttle == nil {
		return nil
	}
	return t.throttle.Usage()
}

// StartJanitor esquece periodicamente os hosts ociosos do throttle local.
// Pare cancelando o contexto.
func (t *Transport) StartJanitor(ctx context.Context) {
	if t.throttle != nil {
		t.throttle.StartSweeper(ctx)
	}
}
