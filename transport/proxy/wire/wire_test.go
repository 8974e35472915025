package wire

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"proxy-transport/transport/proxy/domain"
)

func TestParseStatus(t *testing.T) {
	cases := map[string]int{
		``:        0,
		`null`:    0,
		`200`:     200,
		`"429"`:   429,
		`" 503 "`: 503,
		`201.0`:   201,
	}
	for raw, want := range cases {
		got, err := ParseStatus(json.RawMessage(raw))
		require.NoError(t, err, "raw %q", raw)
		assert.Equal(t, want, got, "raw %q", raw)
	}

	for _, raw := range []string{`"ok"`, `true`, `12.5`, `{}`} {
		_, err := ParseStatus(json.RawMessage(raw))
		assert.Error(t, err, "raw %q", raw)
	}
}

func TestDecodeReply(t *testing.T) {
	resp, err := DecodeReply([]byte(`{"status":429,"headers":{"Retry-After":"2","x-sentry-rate-limits":["60::org","x"],"x-null":null}}`))
	require.NoError(t, err)
	assert.Equal(t, 429, resp.StatusCode)
	assert.Equal(t, "2", resp.Headers.Get("retry-after"))
	assert.Equal(t, "60::org", resp.Headers.Get("X-Sentry-Rate-Limits"))
	assert.Empty(t, resp.Headers.Values("x-null"))
}

func TestDecodeReply_MissingStatusIsZero(t *testing.T) {
	resp, err := DecodeReply([]byte(`{"headers":{}}`))
	require.NoError(t, err)
	assert.Equal(t, 0, resp.StatusCode)
}

func TestDecodeReply_Malformed(t *testing.T) {
	for _, raw := range []string{`"just a string"`, `[1,2]`, `null`, `{"status":"teapot"}`, `{"status":`} {
		_, err := DecodeReply([]byte(raw))
		var malformed *domain.MalformedResponseError
		require.True(t, errors.As(err, &malformed), "raw %q", raw)
		assert.Contains(t, malformed.Error(), "malformed proxy response")
	}
}

func TestNewInvokeArgs(t *testing.T) {
	args := NewInvokeArgs("sentry-proxy", domain.DispatchRequest{
		URL:     "https://x/",
		Headers: map[string]string{"content-encoding": "gzip"},
		Body:    []byte{0x1f, 0x8b},
	})
	assert.Equal(t, domain.MethodPost, args.Method)
	assert.Equal(t, "sentry-proxy", args.Function)
	assert.Equal(t, int64(0), args.Timeout)

	data, err := JSONCodec{}.Marshal(args)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"data":"H4s="`)
}

func TestFromHTTPHeader(t *testing.T) {
	h := http.Header{}
	h.Set("Retry-After", "10")
	h.Add("X-Sentry-Rate-Limits", "a")
	h.Add("X-Sentry-Rate-Limits", "b")

	out := FromHTTPHeader(h)
	assert.Equal(t, []string{"10"}, out["retry-after"])
	assert.Equal(t, []string{"a", "b"}, out["x-sentry-rate-limits"])
}
