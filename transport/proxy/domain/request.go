package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// MethodPost é o único método usado pelo transporte.
const MethodPost = "POST"

// OutboundRequest é o que o produtor entrega: URL e corpo já serializados.
// O transporte não conhece o conteúdo do evento.
type OutboundRequest struct {
	URL     string
	Body    []byte
	Headers map[string]string
}

// DispatchRequest é a requisição em formato HTTP enviada pelo canal de invocação.
// É construída do zero a cada envio e não deve ser alterada depois.
type DispatchRequest struct {
	URL     string
	Method  string
	Headers map[string]string
	Body    []byte
	Timeout time.Duration
}

// TimeoutMillis retorna o timeout em milissegundos (0 = sem timeout).
func (r DispatchRequest) TimeoutMillis() int64 {
	return r.Timeout.Milliseconds()
}

// DispatchResponse é a resposta do canal de invocação interpretada como HTTP.
// StatusCode <= 0 significa ausente/ilegível.
type DispatchResponse struct {
	StatusCode int
	Headers    Header
}

// Header guarda headers com nome em minúsculas. Cada header pode ter um ou
// mais valores (o proxy pode devolver string ou lista).
type Header map[string][]string

// Get retorna o primeiro valor do header, ou "" se ausente.
func (h Header) Get(name string) string {
	vs := h.Values(name)
	if len(vs) == 0 {
		return ""
	}
	return vs[0]
}

func (h Header) Values(name string) []string {
	if h == nil {
		return nil
	}
	return h[strings.ToLower(name)]
}

// Set substitui os valores do header.
func (h Header) Set(name string, values ...string) {
	h[strings.ToLower(name)] = values
}

// UnmarshalJSON aceita valores string, lista de strings, null ou escalares
// (convertidos para texto).
func (h *Header) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	out := make(Header, len(raw))
	for name, v := range raw {
		values, err := headerValues(v)
		if err != nil {
			return fmt.Errorf("header %q: %w", name, err)
		}
		if len(values) == 0 {
			continue
		}
		out[strings.ToLower(name)] = values
	}
	*h = out
	return nil
}

func headerValues(v json.RawMessage) ([]string, error) {
	var decoded interface{}
	if err := json.Unmarshal(v, &decoded); err != nil {
		return nil, err
	}

	switch x := decoded.(type) {
	case nil:
		return nil, nil
	case string:
		return []string{x}, nil
	case []interface{}:
		out := make([]string, 0, len(x))
		for _, item := range x {
			if item == nil {
				continue
			}
			if s, ok := item.(string); ok {
				out = append(out, s)
				continue
			}
			out = append(out, fmt.Sprint(item))
		}
		return out, nil
	case map[string]interface{}:
		return nil, fmt.Errorf("unexpected object value")
	default:
		return []string{fmt.Sprint(x)}, nil
	}
}
