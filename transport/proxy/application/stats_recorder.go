package application

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"proxy-transport/transport/proxy/domain"
)

const (
	DefaultStatsTimeout    = 2 * time.Second
	DefaultStatsMaxPending = 64
)

// StatsRecorder grava eventos fora do caminho do envio.
//
// Cada Record roda em goroutine própria com timeout, limitado a MaxPending
// gravações simultâneas; acima disso o evento é descartado e contado em
// Dropped. Um store lento nunca segura vaga do limitador.
type StatsRecorder struct {
	Store      domain.StatsStore
	Timeout    time.Duration
	MaxPending int
	Logger     *zap.Logger

	once    sync.Once
	sem     chan struct{}
	pending sync.WaitGroup
	dropped atomic.Int64
}

func (r *StatsRecorder) init() {
	r.once.Do(func() {
		n := r.MaxPending
		if n <= 0 {
			n = DefaultStatsMaxPending
		}
		r.sem = make(chan struct{}, n)
	})
}

// Record agenda a gravação e retorna na hora.
func (r *StatsRecorder) Record(ctx context.Context, ev domain.StatsEvent) {
	if r == nil || r.Store == nil {
		return
	}
	r.init()

	select {
	case r.sem <- struct{}{}:
	default:
		r.dropped.Add(1)
		r.logger().Debug("stats dropped, too many pending writes", zap.String("result", ev.Result))
		return
	}

	r.pending.Add(1)
	go func() {
		defer r.pending.Done()
		defer func() { <-r.sem }()

		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout())
		defer cancel()
		if err := r.Store.Record(wctx, ev); err != nil {
			r.logger().Debug("stats record failed", zap.String("result", ev.Result), zap.Error(err))
		}
	}()
}

// Wait espera as gravações pendentes terminarem, ou ctx encerrar.
func (r *StatsRecorder) Wait(ctx context.Context) error {
	if r == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		r.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dropped retorna quantos eventos foram descartados por excesso de pendências.
func (r *StatsRecorder) Dropped() int64 {
	if r == nil {
		return 0
	}
	return r.dropped.Load()
}

func (r *StatsRecorder) timeout() time.Duration {
	if r.Timeout <= 0 {
		return DefaultStatsTimeout
	}
	return r.Timeout
}

func (r *StatsRecorder) logger() *zap.Logger {
	if r.Logger == nil {
		return zap.NewNop()
	}
	return r.Logger
}
