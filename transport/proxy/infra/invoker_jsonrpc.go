package infra

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"proxy-transport/transport/proxy/domain"
	"proxy-transport/transport/proxy/wire"

	"github.com/gorilla/rpc/v2/json2"
)

// maxReplyBytes limita a leitura da resposta da função proxy.
const maxReplyBytes = 1 << 20

// JSONRPCInvoker chama a função proxy via JSON-RPC 2.0 sobre HTTP
// (método "Proxy.Invoke"). A função executa o POST real e devolve
// status + headers.
type JSONRPCInvoker struct {
	endpoint string
	function string
	client   *http.Client
	headers  http.Header
}

type JSONRPCOption func(*JSONRPCInvoker)

func WithRPCClient(c *http.Client) JSONRPCOption {
	return func(i *JSONRPCInvoker) {
		if c != nil {
			i.client = c
		}
	}
}

// WithRPCHeader adiciona um header na chamada ao endpoint da função
// (ex: autenticação do gateway), não na requisição repassada.
func WithRPCHeader(name, value string) JSONRPCOption {
	return func(i *JSONRPCInvoker) { i.headers.Set(name, value) }
}

func NewJSONRPCInvoker(endpoint, function string, opts ...JSONRPCOption) *JSONRPCInvoker {
	i := &JSONRPCInvoker{
		endpoint: endpoint,
		function: function,
		client:   &http.Client{Timeout: 30 * time.Second},
		headers:  http.Header{},
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

func (i *JSONRPCInvoker) Invoke(ctx context.Context, req domain.DispatchRequest) (domain.DispatchResponse, error) {
	payload, err := json2.EncodeClientRequest(wire.RPCMethod, wire.NewInvokeArgs(i.function, req))
	if err != nil {
		return domain.DispatchResponse{}, fmt.Errorf("failed to encode client params: %w", err)
	}

	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, i.endpoint, bytes.NewReader(payload))
	if err != nil {
		return domain.DispatchResponse{}, &domain.TransportError{Err: err}
	}
	for k, vs := range i.headers {
		hreq.Header[k] = append([]string(nil), vs...)
	}
	hreq.Header.Set("Content-Type", "application/json")

	resp, err := i.client.Do(hreq)
	if err != nil {
		return domain.DispatchResponse{}, &domain.TransportError{Err: err}
	}
	defer cleanlyCloseBody(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return domain.DispatchResponse{}, &domain.TransportError{
			Err: fmt.Errorf("proxy endpoint responded with status %d", resp.StatusCode),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
	if err != nil {
		return domain.DispatchResponse{}, &domain.TransportError{Err: err}
	}

	var result json.RawMessage
	if err := json2.DecodeClientResponse(bytes.NewReader(body), &result); err != nil {
		var rpcErr *json2.Error
		if errors.As(err, &rpcErr) {
			// a função executou e falhou (ex: destino inacessível)
			return domain.DispatchResponse{}, &domain.TransportError{Err: fmt.Errorf("proxy function: %w", err)}
		}
		return domain.DispatchResponse{}, domain.NewMalformedResponseError(body, err)
	}

	return wire.DecodeReply(result)
}
