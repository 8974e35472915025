package infra

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"proxy-transport/transport/proxy/domain"
	"proxy-transport/transport/proxy/wire"
)

// HTTPInvoker faz o POST direto no destino, sem função intermediária.
type HTTPInvoker struct {
	client *http.Client
}

// NewHTTPInvoker usa client; nil cria um client com timeout de 30s.
func NewHTTPInvoker(client *http.Client) *HTTPInvoker {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPInvoker{client: client}
}

func (i *HTTPInvoker) Invoke(ctx context.Context, req domain.DispatchRequest) (domain.DispatchResponse, error) {
	method := req.Method
	if method == "" {
		method = domain.MethodPost
	}

	hreq, err := http.NewRequestWithContext(ctx, method, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		return domain.DispatchResponse{}, &domain.TransportError{Err: err}
	}
	for k, v := range req.Headers {
		hreq.Header.Set(k, v)
	}

	resp, err := i.client.Do(hreq)
	if err != nil {
		return domain.DispatchResponse{}, &domain.TransportError{Err: err}
	}
	defer cleanlyCloseBody(resp.Body)

	return domain.DispatchResponse{
		StatusCode: resp.StatusCode,
		Headers:    wire.FromHTTPHeader(resp.Header),
	}, nil
}

// cleanlyCloseBody drena e fecha o corpo para permitir reuso da conexão.
func cleanlyCloseBody(body io.ReadCloser) {
	if body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 1<<20))
	_ = body.Close()
}
