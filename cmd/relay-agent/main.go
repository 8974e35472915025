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
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"proxy-transport/transport/proxy"
	"proxy-transport/transport/proxy/domain"
	"proxy-transport/transport/proxy/infra"
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
		Use:   "relay-agent",
		Short: "Recebe eventos via HTTP e encaminha pela função proxy",
		Long: `relay-agent aceita eventos (POST) e os envia através do canal de invocação
configurado, respeitando o cooldown de rate limit do remoto e o limite de envios em voo.

Toda flag também pode ser definida por variável de ambiente com prefixo RELAY_
(ex: --proxy-endpoint vira RELAY_PROXY_ENDPOINT).`,
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
	f.String("listen-addr", ":8080", "endereço HTTP do relay")
	f.String("target-url", "", "URL de destino padrão (sobrescrita pelo header X-Target-URL)")
	f.String("invoker", "jsonrpc", "canal de invocação: http, jsonrpc ou grpc")
	f.String("proxy-endpoint", "", "endpoint da função proxy (jsonrpc: URL, grpc: host:porta)")
	f.String("function-name", "relay", "nome da função proxy")
	f.Duration("timeout", 0, "timeout por invocação (0 = sem timeout)")
	f.Int("capacity", proxy.DefaultCapacity, "máximo de envios em voo")
	f.Duration("acquire-timeout", 0, "espera por vaga antes de rejeitar (0 = rejeita na hora)")
	f.Duration("default-backoff", 60*time.Second, "cooldown quando o 429 não traz retry-after válido")
	f.String("compression", "gzip", "gzip, deflate ou none")
	f.Int("compress-threshold", infra.DefaultCompressThreshold, "comprime corpos acima deste tamanho (bytes)")
	f.String("url-policy", "keep", "keep ou strip-query")
	f.StringToString("header", nil, "header estático k=v (repetível; env em JSON)")
	f.Int64("max-body-bytes", proxy.DefaultMaxBodyBytes, "tamanho máximo do evento recebido")
	f.Bool("add-state-headers", false, "expõe em voo/capacidade/cooldown nas respostas")
	f.Float64("rate-rps", 0, "throttle local por destino (0 = desligado)")
	f.Int("rate-burst", 1, "rajada do throttle local")
	f.Duration("throttle-retry-after", time.Second, "Retry-After sugerido quando o throttle nega")
	f.String("stats-redis-addr", "", "Redis para contadores de envio (vazio = desligado)")
	f.String("stats-redis-password", "", "senha do Redis")
	f.Int("stats-redis-db", 0, "db do Redis")
	f.String("stats-prefix", "proxytransport:stats", "prefixo das chaves de stats")
	f.Duration("stats-ttl", 24*time.Hour, "TTL das chaves por minuto/destino")
	f.String("stats-bucket", "minute", "minute ou none")
	f.Bool("stats-track-targets", false, "conta também por destino")
	f.Bool("metrics", true, "expõe /metrics (Prometheus)")
	f.BoolP("verbose", "v", false, "log em nível debug")

	_ = v.BindPFlags(f)
	v.SetEnvPrefix("RELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	// nome injetado pelo runtime da função vale quando RELAY_FUNCTION_NAME não vier
	_ = v.BindEnv("function-name", "RELAY_FUNCTION_NAME", "LAMBDA_FUNCTION_NAME")

	return cmd, v
}

type config struct {
	listenAddr      string
	targetURL       string
	invoker         string
	proxyEndpoint   string
	functionName    string
	timeout         time.Duration
	capacity        int
	acquireTimeout  time.Duration
	defaultBackoff  time.Duration
	compression     string
	compressThresh  int
	urlPolicy       proxy.URLPolicy
	urlPolicyName   string
	headers         map[string]string
	maxBodyBytes    int64
	addStateHeaders bool
	rateRPS         float64
	rateBurst       int
	throttleRetry   time.Duration
	metrics         bool
	verbose         bool

	statsRedisAddr     string
	statsRedisPassword string
	statsRedisDB       int
	statsPrefix        string
	statsTTL           time.Duration
	statsBucket        string
	statsTrackTargets  bool
}

func readConfig(v *viper.Viper) (config, error) {
	cfg := config{
		listenAddr:      v.GetString("listen-addr"),
		targetURL:       strings.TrimSpace(v.GetString("target-url")),
		invoker:         strings.ToLower(strings.TrimSpace(v.GetString("invoker"))),
		proxyEndpoint:   strings.TrimSpace(v.GetString("proxy-endpoint")),
		functionName:    v.GetString("function-name"),
		timeout:         v.GetDuration("timeout"),
		capacity:        v.GetInt("capacity"),
		acquireTimeout:  v.GetDuration("acquire-timeout"),
		defaultBackoff:  v.GetDuration("default-backoff"),
		compression:     strings.ToLower(strings.TrimSpace(v.GetString("compression"))),
		compressThresh:  v.GetInt("compress-threshold"),
		urlPolicyName:   v.GetString("url-policy"),
		headers:         v.GetStringMapString("header"),
		maxBodyBytes:    v.GetInt64("max-body-bytes"),
		addStateHeaders: v.GetBool("add-state-headers"),
		rateRPS:         v.GetFloat64("rate-rps"),
		rateBurst:       v.GetInt("rate-burst"),
		throttleRetry:   v.GetDuration("throttle-retry-after"),
		metrics:         v.GetBool("metrics"),
		verbose:         v.GetBool("verbose"),

		statsRedisAddr:     strings.TrimSpace(v.GetString("stats-redis-addr")),
		statsRedisPassword: v.GetString("stats-redis-password"),
		statsRedisDB:       v.GetInt("stats-redis-db"),
		statsPrefix:        v.GetString("stats-prefix"),
		statsTTL:           v.GetDuration("stats-ttl"),
		statsBucket:        strings.ToLower(strings.TrimSpace(v.GetString("stats-bucket"))),
		statsTrackTargets:  v.GetBool("stats-track-targets"),
	}

	switch cfg.invoker {
	case "http":
	case "jsonrpc", "grpc":
		if cfg.proxyEndpoint == "" {
			return config{}, fmt.Errorf("proxy-endpoint is required when invoker=%s", cfg.invoker)
		}
	default:
		return config{}, fmt.Errorf("invoker must be http, jsonrpc or grpc, got %q", cfg.invoker)
	}

	policy, err := proxy.PolicyByName(cfg.urlPolicyName)
	if err != nil {
		return config{}, fmt.Errorf("url-policy: %w", err)
	}
	cfg.urlPolicy = policy

	if cfg.capacity <= 0 {
		return config{}, errors.New("capacity must be > 0")
	}
	if cfg.compressThresh < 0 {
		return config{}, errors.New("compress-threshold must be >= 0")
	}
	if cfg.rateRPS < 0 {
		return config{}, errors.New("rate-rps must be >= 0")
	}
	if cfg.rateRPS > 0 && cfg.rateBurst <= 0 {
		return config{}, errors.New("rate-burst must be > 0 when rate-rps is set")
	}
	if cfg.statsBucket != "minute" && cfg.statsBucket != "none" {
		return config{}, fmt.Errorf("stats-bucket must be minute or none, got %q", cfg.statsBucket)
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

	lis, err := net.Listen("tcp", cfg.listenAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.listenAddr, err)
	}
	return serve(ctx, cfg, lis)
}

// serve atende em lis até ctx encerrar e só retorna depois que o servidor
// parou e os envios em voo foram drenados.
func serve(ctx context.Context, cfg config, lis net.Listener) error {
	defer func() { _ = lis.Close() }()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	logger, err := newLogger(cfg.verbose)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	invoker, closeInvoker, err := newInvoker(cfg)
	if err != nil {
		return err
	}
	defer closeInvoker()

	var (
		stats domain.StatsStore
		reg   *prometheus.Registry
		multi infra.MultiStats
	)
	if cfg.statsRedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.statsRedisAddr,
			Password: cfg.statsRedisPassword,
			DB:       cfg.statsRedisDB,
		})
		defer func() { _ = rdb.Close() }()

		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		_, err := rdb.Ping(pingCtx).Result()
		cancel()
		if err != nil {
			return fmt.Errorf("redis stats ping error: %w", err)
		}

		multi = append(multi, infra.NewRedisStatsStore(
			rdb,
			infra.WithStatsPrefix(cfg.statsPrefix),
			infra.WithStatsTTL(cfg.statsTTL),
			infra.WithStatsBucket(cfg.statsBucket),
			infra.WithStatsTrackTargets(cfg.statsTrackTargets),
		))
	}
	if cfg.metrics {
		reg = prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		prom, err := infra.NewPrometheusStatsStore(reg, "relay")
		if err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
		multi = append(multi, prom)
	}
	if len(multi) > 0 {
		stats = multi
	}

	tr, err := proxy.New(proxy.Options{
		Invoker:            invoker,
		Headers:            cfg.headers,
		Timeout:            cfg.timeout,
		Capacity:           cfg.capacity,
		AcquireTimeout:     cfg.acquireTimeout,
		DefaultBackoff:     cfg.defaultBackoff,
		Compression:        cfg.compression,
		CompressThreshold:  cfg.compressThresh,
		URLPolicy:          cfg.urlPolicy,
		RateRPS:            cfg.rateRPS,
		RateBurst:          cfg.rateBurst,
		ThrottleRetryAfter: cfg.throttleRetry,
		Stats:              stats,
		Logger:             logger,
	})
	if err != nil {
		return err
	}
	tr.StartJanitor(ctx)

	mux := http.NewServeMux()
	mux.Handle("/", proxy.Handler(tr, proxy.HandlerOptions{
		DefaultTarget:   cfg.targetURL,
		MaxBodyBytes:    cfg.maxBodyBytes,
		AddStateHeaders: cfg.addStateHeaders,
		Logger:          logger,
	}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	if reg != nil {
		reg.MustRegister(infra.NewStateCollector("relay", tr.State))
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	}

	srv := &http.Server{
		Addr:              cfg.listenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	drained := make(chan struct{})
	go func() {
		defer close(drained)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("shutdown interrupted", zap.Error(err))
		}
		if err := tr.Flush(shutdownCtx); err != nil {
			logger.Warn("flush interrupted", zap.Int("in_flight", tr.InFlight()), zap.Error(err))
		}
		for _, u := range tr.ThrottleUsage() {
			logger.Info("throttle usage",
				zap.String("host", string(u.Host)),
				zap.Int64("allowed", u.Allowed),
				zap.Int64("denied", u.Denied),
			)
		}
		if n := tr.StatsDropped(); n > 0 {
			logger.Warn("stats events dropped", zap.Int64("dropped", n))
		}
	}()

	logger.Info("relay listening",
		zap.String("addr", lis.Addr().String()),
		zap.String("invoker", cfg.invoker),
		zap.String("proxy_endpoint", cfg.proxyEndpoint),
		zap.String("target", cfg.targetURL),
		zap.Int("capacity", cfg.capacity),
		zap.Duration("acquire_timeout", cfg.acquireTimeout),
		zap.Duration("default_backoff", cfg.defaultBackoff),
		zap.String("compression", cfg.compression),
		zap.String("url_policy", cfg.urlPolicyName),
		zap.Float64("rate_rps", cfg.rateRPS),
		zap.Bool("redis_stats", cfg.statsRedisAddr != ""),
		zap.Bool("metrics", cfg.metrics),
	)

	err = srv.Serve(lis)
	cancel()
	<-drained
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	logger.Info("relay stopped")
	return nil
}

func newInvoker(cfg config) (domain.Invoker, func(), error) {
	noop := func() {}

	switch cfg.invoker {
	case "http":
		return infra.NewHTTPInvoker(nil), noop, nil
	case "jsonrpc":
		return infra.NewJSONRPCInvoker(cfg.proxyEndpoint, cfg.functionName), noop, nil
	case "grpc":
		conn, err := infra.DialGRPC(cfg.proxyEndpoint)
		if err != nil {
			return nil, noop, fmt.Errorf("grpc dial: %w", err)
		}
		return infra.NewGRPCInvoker(conn, cfg.functionName), func() { _ = conn.Close() }, nil
	default:
		return nil, noop, fmt.Errorf("unknown invoker %q", cfg.invoker)
	}
}
