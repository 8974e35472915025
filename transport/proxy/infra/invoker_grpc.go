package infra

import (
	"context"
	"encoding/json"

	"proxy-transport/transport/proxy/domain"
	"proxy-transport/transport/proxy/wire"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// GRPCInvoker chama a função proxy via gRPC (/proxy.Proxy/Invoke) usando o
// codec JSON de wire, com os mesmos argumentos do JSON-RPC.
type GRPCInvoker struct {
	conn     grpc.ClientConnInterface
	function string
}

func NewGRPCInvoker(conn grpc.ClientConnInterface, function string) *GRPCInvoker {
	return &GRPCInvoker{conn: conn, function: function}
}

// DialGRPC cria a conexão (sem TLS por padrão; passe credenciais em opts).
func DialGRPC(target string, opts ...grpc.DialOption) (*grpc.ClientConn, error) {
	base := []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	return grpc.NewClient(target, append(base, opts...)...)
}

func (i *GRPCInvoker) Invoke(ctx context.Context, req domain.DispatchRequest) (domain.DispatchResponse, error) {
	args := wire.NewInvokeArgs(i.function, req)

	var result json.RawMessage
	if err := i.conn.Invoke(ctx, wire.GRPCMethod, &args, &result, grpc.ForceCodec(wire.JSONCodec{})); err != nil {
		return domain.DispatchResponse{}, &domain.TransportError{Err: err}
	}
	return wire.DecodeReply(result)
}
