package proxy

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
)

// URLPolicy normaliza a URL de destino antes de cada envio.
type URLPolicy func(raw string) (string, error)

// KeepURL envia a URL exatamente como recebida. É a política padrão.
func KeepURL(raw string) (string, error) { return raw, nil }

// StripQuery remove a query string (ex: chave de autenticação repetida quando
// ela já vai no header x-sentry-auth).
func StripQuery(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", errors.New("url must be absolute")
	}
	u.RawQuery = ""
	u.ForceQuery = false
	return u.String(), nil
}

// PolicyByName resolve o nome usado na configuração ("keep" ou "strip-query").
func PolicyByName(name string) (URLPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "keep":
		return KeepURL, nil
	case "strip-query", "strip_query":
		return StripQuery, nil
	default:
		return nil, errors.New("unknown url policy: " + name)
	}
}

// TargetFunc extrai a URL de destino de uma requisição recebida pelo relay.
type TargetFunc func(r *http.Request) string

// DefaultTargetFunc usa o header, se presente, senão o destino padrão.
func DefaultTargetFunc(header, fallback string) TargetFunc {
	return func(r *http.Request) string {
		if header != "" {
			if v := strings.TrimSpace(r.Header.Get(header)); v != "" {
				return v
			}
		}
		return fallback
	}
}
