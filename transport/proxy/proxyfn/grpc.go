package proxyfn

import (
	"context"

	"proxy-transport/transport/proxy/wire"

	"google.golang.org/grpc"
)

type invokeServer interface {
	Invoke(ctx context.Context, args *wire.InvokeArgs) (*wire.InvokeReply, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: wire.GRPCService,
	HandlerType: (*invokeServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Invoke", Handler: invokeHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "proxy.json",
}

func invokeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	args := new(wire.InvokeArgs)
	if err := dec(args); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(invokeServer).Invoke(ctx, args)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: wire.GRPCMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(invokeServer).Invoke(ctx, req.(*wire.InvokeArgs))
	}
	return interceptor(ctx, args, info, handler)
}

// NewGRPCServer cria um servidor já configurado com o codec JSON.
func NewGRPCServer(opts ...grpc.ServerOption) *grpc.Server {
	base := []grpc.ServerOption{grpc.ForceServerCodec(wire.JSONCodec{})}
	return grpc.NewServer(append(base, opts...)...)
}

// RegisterGRPC registra fn no servidor. O servidor precisa usar o codec JSON
// (veja NewGRPCServer).
func RegisterGRPC(s grpc.ServiceRegistrar, fn *Function) {
	s.RegisterService(&serviceDesc, fn)
}
