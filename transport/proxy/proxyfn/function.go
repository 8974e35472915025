package proxyfn

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"proxy-transport/transport/proxy/domain"
	"proxy-transport/transport/proxy/wire"
)

var (
	ErrMissingURL       = errors.New("missing url")
	ErrMethodNotAllowed = errors.New("only POST is relayed")
	ErrUnknownFunction  = errors.New("unknown function")
)

// Function executa as requisições recebidas pelo canal de invocação.
type Function struct {
	// Name, se definido, exige que InvokeArgs.Function seja igual (ou vazio).
	Name string
	// StripQuery remove a query string antes do POST (evita chave de
	// autenticação duplicada quando ela já vai em header).
	StripQuery bool

	Client *http.Client
	Logger *zap.Logger
}

// Invoke executa uma invocação. Também é o handler do serviço gRPC.
func (f *Function) Invoke(ctx context.Context, args *wire.InvokeArgs) (*wire.InvokeReply, error) {
	if args == nil || strings.TrimSpace(args.URL) == "" {
		return nil, ErrMissingURL
	}
	if f.Name != "" && args.Function != "" && args.Function != f.Name {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFunction, args.Function)
	}

	method := strings.ToUpper(strings.TrimSpace(args.Method))
	if method == "" {
		method = domain.MethodPost
	}
	if method != domain.MethodPost {
		return nil, fmt.Errorf("%w: %s", ErrMethodNotAllowed, method)
	}

	target := args.URL
	if f.StripQuery {
		stripped, err := stripQuery(target)
		if err != nil {
			return nil, err
		}
		target = stripped
	}

	if args.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(args.Timeout)*time.Millisecond)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(args.Data))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, v := range args.Headers {
		req.Header.Set(k, v)
	}

	resp, err := f.client().Do(req)
	if err != nil {
		f.logger().Warn("relay failed", zap.String("url", redact(target)), zap.Error(err))
		return nil, fmt.Errorf("relay: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
		_ = resp.Body.Close()
	}()

	f.logger().Debug("relayed",
		zap.String("url", redact(target)),
		zap.Int("status", resp.StatusCode),
		zap.Int("body_bytes", len(args.Data)),
	)

	return &wire.InvokeReply{
		Status:  wire.StatusValue(resp.StatusCode),
		Headers: wire.FromHTTPHeader(resp.Header),
	}, nil
}

func (f *Function) client() *http.Client {
	if f.Client != nil {
		return f.Client
	}
	return http.DefaultClient
}

func (f *Function) logger() *zap.Logger {
	if f.Logger != nil {
		return f.Logger
	}
	return zap.NewNop()
}

func stripQuery(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	u.RawQuery = ""
	u.ForceQuery = false
	return u.String(), nil
}

// redact tira query e credenciais da URL para log.
func redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "invalid-url"
	}
	u.User = nil
	u.RawQuery = ""
	return u.String()
}
