package proxyfn

import (
	"net/http"

	"proxy-transport/transport/proxy/wire"

	"github.com/gorilla/rpc/v2"
	"github.com/gorilla/rpc/v2/json2"
)

// RPCService expõe Function como serviço JSON-RPC ("Proxy.Invoke").
type RPCService struct {
	fn *Function
}

func (s *RPCService) Invoke(r *http.Request, args *wire.InvokeArgs, reply *wire.InvokeReply) error {
	out, err := s.fn.Invoke(r.Context(), args)
	if err != nil {
		return err
	}
	*reply = *out
	return nil
}

// NewRPCHandler monta o servidor JSON-RPC 2.0 para fn.
func NewRPCHandler(fn *Function) (http.Handler, error) {
	s := rpc.NewServer()
	s.RegisterCodec(json2.NewCodec(), "application/json")
	if err := s.RegisterService(&RPCService{fn: fn}, wire.ServiceName); err != nil {
		return nil, err
	}
	return s, nil
}
