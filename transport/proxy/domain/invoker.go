package domain

import "context"

// Invoker é o canal de invocação opaco: requisição entra, resposta ou erro sai.
// Pode ser HTTP direto ou indireção via função serverless (JSON-RPC, gRPC).
type Invoker interface {
	Invoke(ctx context.Context, req DispatchRequest) (DispatchResponse, error)
}

// InvokerFunc adapta uma função comum para Invoker.
type InvokerFunc func(ctx context.Context, req DispatchRequest) (DispatchResponse, error)

func (f InvokerFunc) Invoke(ctx context.Context, req DispatchRequest) (DispatchResponse, error) {
	return f(ctx, req)
}

// Encoder prepara o corpo final e eventuais headers a sobrescrever
// (ex: content-encoding).
type Encoder interface {
	Encode(body []byte) ([]byte, map[string]string, error)
}

// Breadcrumb é entregue ao Hook a cada invocação (sucesso ou falha).
type Breadcrumb struct {
	Request  DispatchRequest
	Response DispatchResponse
	Err      error
}

// Hook é o ponto de observabilidade repassado ao chamador.
type Hook func(Breadcrumb)
