package wire

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"proxy-transport/transport/proxy/domain"
)

const (
	// ServiceName é o nome do serviço JSON-RPC; o método fica "Proxy.Invoke".
	ServiceName = "Proxy"
	RPCMethod   = ServiceName + ".Invoke"

	GRPCService = "proxy.Proxy"
	GRPCMethod  = "/" + GRPCService + "/Invoke"
)

// InvokeArgs é a requisição HTTP que a função proxy deve executar.
// Data trafega em base64 no JSON (corpo pode estar comprimido).
type InvokeArgs struct {
	Function string            `json:"function,omitempty"`
	URL      string            `json:"url"`
	Method   string            `json:"method"`
	Headers  map[string]string `json:"headers,omitempty"`
	Data     []byte            `json:"data"`
	// Timeout em milissegundos (0 = sem timeout).
	Timeout int64 `json:"timeout,omitempty"`
}

// NewInvokeArgs monta os argumentos a partir da requisição de dispatch.
func NewInvokeArgs(function string, req domain.DispatchRequest) InvokeArgs {
	method := req.Method
	if method == "" {
		method = domain.MethodPost
	}
	return InvokeArgs{
		Function: function,
		URL:      req.URL,
		Method:   method,
		Headers:  req.Headers,
		Data:     req.Body,
		Timeout:  req.TimeoutMillis(),
	}
}

// InvokeReply é a resposta da função proxy. Status pode vir como número ou
// string numérica; ausente significa desconhecido.
type InvokeReply struct {
	Status  json.RawMessage `json:"status,omitempty"`
	Headers domain.Header   `json:"headers,omitempty"`
}

// StatusValue codifica um status HTTP para InvokeReply.Status.
func StatusValue(code int) json.RawMessage {
	return json.RawMessage(strconv.Itoa(code))
}

var errNotObject = errors.New("reply is not a JSON object")

// ParseStatus lê o status bruto. Vazio ou null retorna 0 (ausente).
func ParseStatus(raw json.RawMessage) (int, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, nil
	}

	var n json.Number
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, err
		}
		n = json.Number(strings.TrimSpace(s))
	} else {
		n = json.Number(raw)
	}

	code, err := strconv.Atoi(n.String())
	if err != nil {
		f, ferr := n.Float64()
		if ferr != nil || f != float64(int(f)) {
			return 0, fmt.Errorf("invalid status %s", raw)
		}
		code = int(f)
	}
	return code, nil
}

// DecodeReply converte o resultado bruto da função em DispatchResponse.
// Qualquer formato inesperado vira MalformedResponseError com o trecho bruto.
func DecodeReply(raw []byte) (domain.DispatchResponse, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return domain.DispatchResponse{}, domain.NewMalformedResponseError(raw, errNotObject)
	}

	var reply InvokeReply
	if err := json.Unmarshal(trimmed, &reply); err != nil {
		return domain.DispatchResponse{}, domain.NewMalformedResponseError(raw, err)
	}

	status, err := ParseStatus(reply.Status)
	if err != nil {
		return domain.DispatchResponse{}, domain.NewMalformedResponseError(raw, err)
	}

	return domain.DispatchResponse{StatusCode: status, Headers: reply.Headers}, nil
}

// FromHTTPHeader copia headers de net/http com nomes em minúsculas.
func FromHTTPHeader(h http.Header) domain.Header {
	out := make(domain.Header, len(h))
	for k, vs := range h {
		out[strings.ToLower(k)] = append([]string(nil), vs...)
	}
	return out
}

// JSONCodec é o codec do gRPC para InvokeArgs/InvokeReply (sem protobuf).
type JSONCodec struct{}

func (JSONCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (JSONCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (JSONCodec) Name() string                       { return "json" }
