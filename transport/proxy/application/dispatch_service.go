package application

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"proxy-transport/transport/proxy/domain"
)

// DispatchService é o motor de envio:
//
//	gate -> throttle -> vaga -> encoder -> invocação -> classificação -> gate
//
// Gate e Pool são compartilhados por todos os envios concorrentes da mesma
// instância; as implementações precisam ser seguras para uso concorrente.
type DispatchService struct {
	Gate        domain.Gate
	Concurrency ConcurrencyService
	Throttle    ThrottleService
	Encoder     domain.Encoder
	Invoker     domain.Invoker
	Classifier  Classifier
	Stats       *StatsRecorder

	// Headers estáticos mesclados em toda requisição.
	Headers map[string]string
	// Timeout por chamada ao canal de invocação (0 = sem timeout).
	Timeout time.Duration
	// URLPolicy normaliza a URL de destino antes do envio (nil = mantém).
	URLPolicy func(string) (string, error)

	Hook   domain.Hook
	Logger *zap.Logger
	Now    func() time.Time
}

// Dispatch faz uma tentativa completa de envio. A vaga é liberada em todos
// os caminhos de saída.
func (s *DispatchService) Dispatch(ctx context.Context, req domain.OutboundRequest) (domain.Outcome, error) {
	release, err := s.Admit(ctx, req.URL)
	if err != nil {
		return domain.Outcome{}, err
	}
	defer release()

	return s.Execute(ctx, req)
}

// Admit faz as verificações locais (gate, throttle, vaga) sem chamar o canal.
// Em caso de sucesso, o chamador deve chamar release exatamente uma vez.
func (s *DispatchService) Admit(ctx context.Context, target string) (func(), error) {
	key := targetKey(target)

	if s.Gate != nil && s.Gate.IsLocked() {
		s.record(ctx, key, domain.ResultLocked, 0)
		return nil, &domain.LockedError{Until: s.Gate.Until()}
	}

	if dec := s.Throttle.Decide(domain.Key(key)); !dec.Allowed {
		s.record(ctx, key, domain.ResultThrottled, 0)
		return nil, &domain.ThrottledError{RetryAfter: dec.RetryAfter}
	}

	release, ok := s.Concurrency.Acquire(ctx)
	if !ok {
		s.record(ctx, key, domain.ResultBufferFull, 0)
		return nil, &domain.BufferFullError{Capacity: s.Concurrency.Capacity()}
	}
	return release, nil
}

// Execute envia uma requisição já admitida (não adquire nem libera vaga).
func (s *DispatchService) Execute(ctx context.Context, req domain.OutboundRequest) (domain.Outcome, error) {
	if s.Invoker == nil {
		return domain.Outcome{}, errors.New("dispatch: no invoker configured")
	}
	log := s.logger()

	target := req.URL
	if s.URLPolicy != nil {
		normalized, err := s.URLPolicy(target)
		if err != nil {
			return domain.Outcome{}, fmt.Errorf("invalid target url: %w", err)
		}
		target = normalized
	}
	key := targetKey(target)

	body, overrides := req.Body, map[string]string(nil)
	if s.Encoder != nil {
		var err error
		body, overrides, err = s.Encoder.Encode(req.Body)
		if err != nil {
			return domain.Outcome{}, fmt.Errorf("encode payload: %w", err)
		}
	}

	dreq := domain.DispatchRequest{
		URL:     target,
		Method:  domain.MethodPost,
		Headers: mergeHeaders(s.Headers, req.Headers, overrides),
		Body:    body,
		Timeout: s.Timeout,
	}

	callCtx := ctx
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	resp, err := s.Invoker.Invoke(callCtx, dreq)
	if s.Hook != nil {
		s.Hook(domain.Breadcrumb{Request: dreq, Response: resp, Err: err})
	}
	if err != nil {
		err = asTransportError(err)
		log.Warn("dispatch failed",
			zap.String("target", key),
			zap.Int("body_bytes", len(body)),
			zap.Error(err),
		)
		s.record(ctx, key, domain.ResultTransportError, 0)
		return domain.Outcome{}, err
	}

	out := s.Classifier.Classify(resp)
	switch out.Kind {
	case domain.OutcomeSuccess:
		log.Debug("dispatch delivered",
			zap.String("target", key),
			zap.Int("status", out.StatusCode),
			zap.Int("body_bytes", len(body)),
			zap.Int("in_flight", s.Concurrency.InFlight()),
		)
		s.record(ctx, key, domain.ResultSuccess, out.StatusCode)
		return out, nil

	case domain.OutcomeRateLimited:
		if s.Gate != nil {
			s.Gate.Lock(out.RetryAfter)
		}
		log.Warn("dispatch rate limited, cooling down",
			zap.String("target", key),
			zap.Int("status", out.StatusCode),
			zap.Duration("retry_after", out.RetryAfter),
		)
		s.record(ctx, key, domain.ResultRateLimited, out.StatusCode)
		return out, domain.NewRemoteError(out, resp.Headers.Get(HeaderSentryError))

	default:
		log.Warn("dispatch rejected by remote",
			zap.String("target", key),
			zap.Int("status", out.StatusCode),
			zap.String("message", out.Message),
		)
		s.record(ctx, key, domain.ResultError, out.StatusCode)
		return out, domain.NewRemoteError(out, resp.Headers.Get(HeaderSentryError))
	}
}

// record não bloqueia: a gravação roda no StatsRecorder.
func (s *DispatchService) record(ctx context.Context, key, result string, status int) {
	s.Stats.Record(ctx, domain.StatsEvent{Target: key, Result: result, StatusCode: status, At: s.now()})
}

func (s *DispatchService) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

func (s *DispatchService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func asTransportError(err error) error {
	var malformed *domain.MalformedResponseError
	if errors.As(err, &malformed) {
		return err
	}
	var te *domain.TransportError
	if errors.As(err, &te) {
		return err
	}
	return &domain.TransportError{Err: err}
}

// mergeHeaders aplica em ordem: estáticos < requisição < encoder.
// Nomes são normalizados para minúsculas.
func mergeHeaders(layers ...map[string]string) map[string]string {
	out := make(map[string]string)
	for _, layer := range layers {
		for k, v := range layer {
			out[strings.ToLower(strings.TrimSpace(k))] = v
		}
	}
	return out
}

// targetKey reduz a URL ao host para stats/throttle (cardinalidade baixa).
func targetKey(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err == nil && u.Host != "" {
		return u.Host
	}
	if raw == "" {
		return "unknown"
	}
	return raw
}
