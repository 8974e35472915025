package proxy

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"proxy-transport/transport/proxy/domain"
)

const (
	DefaultTargetHeader = "X-Target-URL"
	DefaultMaxBodyBytes = 20 << 20
)

// headers da requisição recebida que seguem para o destino.
var defaultForwardHeaders = []string{"Content-Type", "X-Sentry-Auth", "User-Agent"}

type HandlerOptions struct {
	// DefaultTarget é usado quando a requisição não traz o header de destino.
	DefaultTarget string
	TargetHeader  string
	TargetFn      TargetFunc

	ForwardHeaders []string
	MaxBodyBytes   int64

	// AddStateHeaders expõe em voo/capacidade/cooldown nas respostas.
	AddStateHeaders bool

	Logger *zap.Logger
}

// Handler recebe eventos via POST e os encaminha pelo Transport, traduzindo
// o resultado para status/headers:
//
//	sucesso              -> 202
//	LockedError          -> 429 + Retry-After (cooldown restante)
//	ThrottledError       -> 429 + Retry-After
//	BufferFullError      -> 503
//	RemoteError          -> status do remoto (429 + Retry-After se rate limited)
//	TransportError/outro -> 502
func Handler(t *Transport, opts HandlerOptions) http.Handler {
	if opts.TargetHeader == "" {
		opts.TargetHeader = DefaultTargetHeader
	}
	if opts.TargetFn == nil {
		opts.TargetFn = DefaultTargetFunc(opts.TargetHeader, opts.DefaultTarget)
	}
	if opts.ForwardHeaders == nil {
		opts.ForwardHeaders = defaultForwardHeaders
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
			return
		}

		target := opts.TargetFn(r)
		if target == "" {
			http.Error(w, "missing target url", http.StatusBadRequest)
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, opts.MaxBodyBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				http.Error(w, http.StatusText(http.StatusRequestEntityTooLarge), http.StatusRequestEntityTooLarge)
				return
			}
			http.Error(w, "failed to read body", http.StatusBadRequest)
			return
		}

		headers := make(map[string]string, len(opts.ForwardHeaders))
		for _, name := range opts.ForwardHeaders {
			if v := r.Header.Get(name); v != "" {
				headers[strings.ToLower(name)] = v
			}
		}

		out, err := t.Do(r.Context(), domain.OutboundRequest{URL: target, Body: body, Headers: headers})

		if opts.AddStateHeaders {
			w.Header().Set("X-Relay-In-Flight", formatInt(t.InFlight()))
			w.Header().Set("X-Relay-Capacity", formatInt(t.Capacity()))
			w.Header().Set("X-Relay-Cooldown", formatFloat(t.CooldownRemaining().Seconds()))
		}
		if out.RateLimits != "" {
			w.Header().Set("X-Sentry-Rate-Limits", out.RateLimits)
		}

		writeResult(w, t, err, opts.Logger)
	})
}

func writeResult(w http.ResponseWriter, t *Transport, err error, log *zap.Logger) {
	var (
		locked    *domain.LockedError
		throttled *domain.ThrottledError
		full      *domain.BufferFullError
		remote    *domain.RemoteError
	)

	switch {
	case err == nil:
		w.WriteHeader(http.StatusAccepted)

	case errors.As(err, &locked):
		w.Header().Set("Retry-After", retryAfterSeconds(t.CooldownRemaining()))
		http.Error(w, err.Error(), http.StatusTooManyRequests)

	case errors.As(err, &throttled):
		w.Header().Set("Retry-After", retryAfterSeconds(throttled.RetryAfter))
		http.Error(w, err.Error(), http.StatusTooManyRequests)

	case errors.As(err, &full):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)

	case errors.As(err, &remote):
		if remote.RateLimited {
			w.Header().Set("Retry-After", retryAfterSeconds(remote.RetryAfter))
			http.Error(w, err.Error(), http.StatusTooManyRequests)
			return
		}
		status := remote.StatusCode
		if status < 200 || status > 599 {
			status = http.StatusBadGateway
		}
		http.Error(w, err.Error(), status)

	default:
		log.Warn("relay failed", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
	}
}
