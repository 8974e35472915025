package application

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// DefaultBackoff é usado quando retry-after está ausente ou ilegível.
const DefaultBackoff = 60 * time.Second

// formatos aceitos para HTTP-date (RFC 7231, 7.1.1.1)
var httpDateLayouts = []string{
	"Mon, 02 Jan 2006 15:04:05 GMT",
	time.RFC850,
	time.ANSIC,
}

// ParseRetryAfter interpreta o valor de retry-after como segundos ou HTTP-date.
//
// Valor vazio, ilegível ou com segundos negativos retorna def.
// Datas no passado retornam 0.
func ParseRetryAfter(value string, now time.Time, def time.Duration) time.Duration {
	v := strings.TrimSpace(value)
	if v == "" {
		return def
	}

	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		if math.IsNaN(secs) || math.IsInf(secs, 0) || secs < 0 {
			return def
		}
		if secs > float64(math.MaxInt64)/float64(time.Second) {
			return def
		}
		return time.Duration(secs * float64(time.Second))
	}

	for _, layout := range httpDateLayouts {
		t, err := time.Parse(layout, v)
		if err != nil {
			continue
		}
		if d := t.Sub(now); d > 0 {
			return d
		}
		return 0
	}

	return def
}
