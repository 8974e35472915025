package infra

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
)

// DefaultCompressThreshold é o tamanho estimado de um evento avulso razoável.
const DefaultCompressThreshold = 32 * 1024

const (
	EncodingGzip    = "gzip"
	EncodingDeflate = "deflate"

	HeaderContentEncoding = "content-encoding"
)

// PayloadEncoder comprime corpos acima do limite antes do envio.
//
// A decisão usa o tamanho sem compressão e não é revista depois de comprimir.
// O stream é drenado inteiro para memória: o canal de invocação exige um
// payload contíguo.
type PayloadEncoder struct {
	threshold int
	encoding  string
	level     int
}

type EncoderOption func(*PayloadEncoder)

func WithThreshold(n int) EncoderOption {
	return func(e *PayloadEncoder) { e.threshold = n }
}

func WithEncoding(name string) EncoderOption {
	return func(e *PayloadEncoder) { e.encoding = strings.ToLower(strings.TrimSpace(name)) }
}

func WithLevel(level int) EncoderOption {
	return func(e *PayloadEncoder) { e.level = level }
}

func NewPayloadEncoder(opts ...EncoderOption) (*PayloadEncoder, error) {
	e := &PayloadEncoder{
		threshold: DefaultCompressThreshold,
		encoding:  EncodingGzip,
		level:     gzip.DefaultCompression,
	}
	for _, opt := range opts {
		opt(e)
	}

	switch e.encoding {
	case EncodingGzip, EncodingDeflate:
	default:
		return nil, fmt.Errorf("unsupported content encoding: %q", e.encoding)
	}
	if e.threshold < 0 {
		return nil, fmt.Errorf("compress threshold must be >= 0, got %d", e.threshold)
	}
	return e, nil
}

func (e *PayloadEncoder) Threshold() int  { return e.threshold }
func (e *PayloadEncoder) Encoding() string { return e.encoding }

// Encode implementa domain.Encoder.
func (e *PayloadEncoder) Encode(body []byte) ([]byte, map[string]string, error) {
	if len(body) <= e.threshold {
		return body, nil, nil
	}

	var buf bytes.Buffer
	buf.Grow(len(body) / 2)

	w, err := e.newWriter(&buf)
	if err != nil {
		return nil, nil, err
	}
	if _, err := w.Write(body); err != nil {
		_ = w.Close()
		return nil, nil, fmt.Errorf("%s: %w", e.encoding, err)
	}
	if err := w.Close(); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", e.encoding, err)
	}

	return buf.Bytes(), map[string]string{HeaderContentEncoding: e.encoding}, nil
}

func (e *PayloadEncoder) newWriter(w io.Writer) (io.WriteCloser, error) {
	switch e.encoding {
	case EncodingDeflate:
		return zlib.NewWriterLevel(w, e.level)
	default:
		return gzip.NewWriterLevel(w, e.level)
	}
}
