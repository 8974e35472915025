// ingest-stub simula o endpoint de ingestão para validação manual do relay.
//
// Responde em ciclo com os status configurados (ex: STUB_STATUSES=200,429,200)
// e manda Retry-After nas respostas 429.
package main

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func main() {
	v := viper.New()

	cmd := &cobra.Command{
		Use:          "ingest-stub",
		Short:        "Endpoint de ingestão falso com status roteirizados",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			statuses, err := parseStatuses(v.GetString("statuses"))
			if err != nil {
				return err
			}

			logger, err := zap.NewDevelopment()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			addr := v.GetString("listen-addr")
			http.Handle("/", newStub(statuses, v.GetString("retry-after"), logger))
			logger.Info("ingest stub listening", zap.String("addr", addr), zap.Ints("statuses", statuses))
			return http.ListenAndServe(addr, nil)
		},
	}

	f := cmd.Flags()
	f.String("listen-addr", ":8082", "endereço HTTP")
	f.String("statuses", "200", "status em ciclo, separados por vírgula")
	f.String("retry-after", "5", "valor do Retry-After nas respostas 429")

	_ = v.BindPFlags(f)
	v.SetEnvPrefix("STUB")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func parseStatuses(raw string) ([]int, error) {
	var out []int
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		code, err := strconv.Atoi(part)
		if err != nil || code < 100 || code > 599 {
			return nil, fmt.Errorf("invalid status %q", part)
		}
		out = append(out, code)
	}
	if len(out) == 0 {
		return nil, errors.New("statuses must not be empty")
	}
	return out, nil
}

type stub struct {
	statuses   []int
	retryAfter string
	log        *zap.Logger
	n          atomic.Uint64
}

func newStub(statuses []int, retryAfter string, log *zap.Logger) *stub {
	return &stub{statuses: statuses, retryAfter: retryAfter, log: log}
}

func (s *stub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	n := s.n.Add(1) - 1
	status := s.statuses[n%uint64(len(s.statuses))]

	size, _ := io.Copy(io.Discard, r.Body)

	if status == http.StatusTooManyRequests {
		w.Header().Set("Retry-After", s.retryAfter)
		w.Header().Set("X-Sentry-Rate-Limits", s.retryAfter+"::organization")
	}
	if status >= 400 && status != http.StatusTooManyRequests {
		w.Header().Set("X-Sentry-Error", "scripted failure")
	}
	w.WriteHeader(status)

	s.log.Info("request",
		zap.Uint64("seq", n),
		zap.String("path", r.URL.Path),
		zap.String("content_encoding", r.Header.Get("Content-Encoding")),
		zap.Int64("bytes", size),
		zap.Int("status", status),
	)
}
