package infra

import (
	"bytes"
	"io"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func body(n int) []byte {
	return bytes.Repeat([]byte(`{"event_id":"abc","level":"error"}`), n/34+1)[:n]
}

func TestPayloadEncoder_CompressesAboveThreshold(t *testing.T) {
	enc, err := NewPayloadEncoder()
	require.NoError(t, err)

	in := body(40000)
	out, headers, err := enc.Encode(in)
	require.NoError(t, err)
	assert.Equal(t, EncodingGzip, headers[HeaderContentEncoding])
	assert.Less(t, len(out), len(in))

	r, err := gzip.NewReader(bytes.NewReader(out))
	require.NoError(t, err)
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, in, got)
}

func TestPayloadEncoder_PassesSmallBodiesThrough(t *testing.T) {
	enc, err := NewPayloadEncoder()
	require.NoError(t, err)

	in := body(100)
	out, headers, err := enc.Encode(in)
	require.NoError(t, err)
	assert.Equal(t, in, out)
	assert.Empty(t, headers)
}

func TestPayloadEncoder_ThresholdIsExclusive(t *testing.T) {
	enc, err := NewPayloadEncoder(WithThreshold(10))
	require.NoError(t, err)

	_, headers, err := enc.Encode(body(10))
	require.NoError(t, err)
	assert.Empty(t, headers)

	_, headers, err = enc.Encode(body(11))
	require.NoError(t, err)
	assert.Equal(t, EncodingGzip, headers[HeaderContentEncoding])
}

func TestPayloadEncoder_Deflate(t *testing.T) {
	enc, err := NewPayloadEncoder(WithEncoding("Deflate"), WithThreshold(0))
	require.NoError(t, err)

	in := body(500)
	out, headers, err := enc.Encode(in)
	require.NoError(t, err)
	assert.Equal(t, EncodingDeflate, headers[HeaderContentEncoding])

	r, err := zlib.NewReader(bytes.NewReader(out))
	require.NoError(t, err)
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, in, got)
}

func TestPayloadEncoder_RejectsBadConfig(t *testing.T) {
	_, err := NewPayloadEncoder(WithEncoding("br"))
	assert.Error(t, err)

	_, err = NewPayloadEncoder(WithThreshold(-1))
	assert.Error(t, err)
}
