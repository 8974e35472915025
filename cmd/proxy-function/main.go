package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"proxy-transport/transport/proxy/proxyfn"
)

func main() {
	cmd, _ := newRootCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() (*cobra.Command, *viper.Viper) {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "proxy-function",
		Short: "Função proxy: recebe invocações e executa o POST real",
		Long: `proxy-function atende o método Proxy.Invoke via JSON-RPC 2.0 (HTTP, em /rpc)
e via gRPC (/proxy.Proxy/Invoke, codec JSON), executando a requisição recebida
e devolvendo status e headers da resposta.

Variáveis de ambiente usam o prefixo PROXYFN_ (ex: PROXYFN_GRPC_ADDR).`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := readConfig(v)
			if err != nil {
				return fmt.Errorf("config error: %w", err)
			}
			return run(cmd.Context(), cfg)
		},
	}

	f := cmd.Flags()
	f.String("listen-addr", ":8081", "endereço HTTP do JSON-RPC")
	f.String("grpc-addr", ":9091", "endereço gRPC (vazio = desligado)")
	f.String("function-name", "relay", "nome aceito em InvokeArgs.function (vazio aceita qualquer um)")
	f.Bool("strip-query", false, "remove a query string antes do POST")
	f.Duration("client-timeout", 30*time.Second, "timeout máximo de cada POST")
	f.BoolP("verbose", "v", false, "log em nível debug")

	_ = v.BindPFlags(f)
	v.SetEnvPrefix("PROXYFN")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	return cmd, v
}

type config struct {
	listenAddr    string
	grpcAddr      string
	functionName  string
	stripQuery    bool
	clientTimeout time.Duration
	verbose       bool
}

func readConfig(v *viper.Viper) (config, error) {
	cfg := config{
		listenAddr:    strings.TrimSpace(v.GetString("listen-addr")),
		grpcAddr:      strings.TrimSpace(v.GetString("grpc-addr")),
		functionName:  strings.TrimSpace(v.GetString("function-name")),
		stripQuery:    v.GetBool("strip-query"),
		clientTimeout: v.GetDuration("client-timeout"),
		verbose:       v.GetBool("verbose"),
	}
	if cfg.listenAddr == "" && cfg.grpcAddr == "" {
		return config{}, errors.New("at least one of listen-addr or grpc-addr is required")
	}
	if cfg.clientTimeout < 0 {
		return config{}, errors.New("client-timeout must be >= 0")
	}
	return cfg, nil
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(parent context.Context, cfg config) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var httpLis, grpcLis net.Listener
	if cfg.listenAddr != "" {
		lis, err := net.Listen("tcp", cfg.listenAddr)
		if err != nil {
			return fmt.Errorf("json-rpc listen: %w", err)
		}
		httpLis = lis
	}
	if cfg.grpcAddr != "" {
		lis, err := net.Listen("tcp", cfg.grpcAddr)
		if err != nil {
			if httpLis != nil {
				_ = httpLis.Close()
			}
			return fmt.Errorf("grpc listen: %w", err)
		}
		grpcLis = lis
	}
	return serve(ctx, cfg, httpLis, grpcLis)
}

// serve atende nos listeners não nulos até ctx encerrar ou um servidor
// falhar, e só retorna depois que ambos terminaram as chamadas em andamento.
func serve(ctx context.Context, cfg config, httpLis, grpcLis net.Listener) error {
	for _, lis := range []net.Listener{httpLis, grpcLis} {
		lis := lis
		if lis != nil {
			defer func() { _ = lis.Close() }()
		}
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	logger, err := newLogger(cfg.verbose)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	fn := &proxyfn.Function{
		Name:       cfg.functionName,
		StripQuery: cfg.stripQuery,
		Client:     &http.Client{Timeout: cfg.clientTimeout},
		Logger:     logger,
	}

	var srv *http.Server
	if httpLis != nil {
		rpcHandler, err := proxyfn.NewRPCHandler(fn)
		if err != nil {
			return fmt.Errorf("rpc handler: %w", err)
		}

		mux := http.NewServeMux()
		mux.Handle("/rpc", rpcHandler)
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok\n"))
		})

		srv = &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      cfg.clientTimeout + 10*time.Second,
			IdleTimeout:       90 * time.Second,
		}
	}

	var (
		wg    sync.WaitGroup
		errCh = make(chan error, 2)
	)

	if grpcLis != nil {
		gs := proxyfn.NewGRPCServer()
		proxyfn.RegisterGRPC(gs, fn)

		wg.Add(1)
		go func() {
			defer wg.Done()
			<-ctx.Done()
			gs.GracefulStop()
		}()
		go func() { errCh <- gs.Serve(grpcLis) }()
		logger.Info("grpc listening", zap.String("addr", grpcLis.Addr().String()))
	}

	if srv != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.clientTimeout+5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("json-rpc shutdown interrupted", zap.Error(err))
			}
		}()
		go func() {
			if err := srv.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
				return
			}
			errCh <- nil
		}()
		logger.Info("json-rpc listening", zap.String("addr", httpLis.Addr().String()), zap.String("path", "/rpc"))
	}

	logger.Info("proxy function ready",
		zap.String("function", cfg.functionName),
		zap.Bool("strip_query", cfg.stripQuery),
		zap.Duration("client_timeout", cfg.clientTimeout),
	)

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}
	cancel()
	wg.Wait()

	if serveErr != nil {
		return fmt.Errorf("server error: %w", serveErr)
	}
	logger.Info("proxy function stopped")
	return nil
}
