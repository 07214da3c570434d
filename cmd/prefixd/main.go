// Command prefixd is the control-plane daemon: it ingests attack
// observations, turns them into BGP FlowSpec mitigations via playbooks and
// guardrails, announces them through a BGP speaker, and reconciles the
// announced set against the desired one on a timer.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/lance0/prefixd-sub000/internal/announcer"
	"github.com/lance0/prefixd-sub000/internal/config"
	"github.com/lance0/prefixd-sub000/internal/httpapi"
	"github.com/lance0/prefixd-sub000/internal/metrics"
	"github.com/lance0/prefixd-sub000/internal/orchestrator"
	"github.com/lance0/prefixd-sub000/internal/policy"
	"github.com/lance0/prefixd-sub000/internal/reconcile"
	"github.com/lance0/prefixd-sub000/internal/repository"
	"github.com/lance0/prefixd-sub000/internal/repository/cache"
	"github.com/lance0/prefixd-sub000/internal/repository/sqlrepo"
	"github.com/lance0/prefixd-sub000/internal/webhook"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	var (
		configDir = flag.String("config", "/etc/prefixd", "Path to config directory (prefixd.yaml, inventory.yaml, playbooks.yaml)")
		listen    = flag.String("listen", "", "Override HTTP API listen address")
		logLevel  = flag.String("log-level", "", "Override log level (debug/info/warn/error)")
		showVer   = flag.Bool("version", false, "Show version and exit")
	)
	flag.Parse()

	if *showVer {
		fmt.Printf("prefixd %s (built %s)\n", version, buildTime)
		os.Exit(0)
	}

	settings, inventory, playbooks, err := loadConfig(*configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if *listen != "" {
		settings.HTTP.Listen = *listen
	}
	if *logLevel != "" {
		settings.Observability.LogLevel = *logLevel
	}

	log, err := newLogger(settings.Observability.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("prefixd starting",
		zap.String("version", version),
		zap.String("pop", settings.POP),
		zap.String("mode", string(settings.Mode)),
		zap.String("http_listen", settings.HTTP.Listen),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, closeRepo, err := buildRepository(ctx, settings, log)
	if err != nil {
		log.Fatal("failed to initialize storage", zap.Error(err))
	}
	defer closeRepo()

	for _, prefix := range settings.Safelist.Prefixes {
		if err := repo.InsertSafelist(ctx, prefix, "config", strPtr("preloaded from prefixd.yaml")); err != nil {
			log.Warn("failed to preload safelist prefix", zap.String("prefix", prefix), zap.Error(err))
		}
	}

	ann, closeAnnouncer, err := buildAnnouncer(settings, log)
	if err != nil {
		log.Fatal("failed to initialize BGP announcer", zap.Error(err))
	}
	defer closeAnnouncer()

	promReg := prometheus.NewRegistry()
	reg := metrics.NewRegistry(promReg)

	engine := policy.NewEngine(playbooks, settings.POP, settings.Timers.DefaultTTLSeconds)
	guardrails := policy.NewGuardrails(settings.Guardrails, settings.Quotas)
	correlator := policy.NewEventCorrelator(settings.Timers.CorrelationWindowSeconds)
	escalator := policy.NewEscalationEvaluator(settings.Escalation)

	dispatcher := webhook.NewDispatcher(settings.Alerting, log, reg)

	orch := orchestrator.New(repo, ann, inventory, engine, guardrails, correlator, dispatcher, settings, log)

	apiServer := httpapi.New(orch, repo, ann, inventory, settings, nil, log)
	notifier := fanoutNotifier{dispatcher: dispatcher, ws: apiServer}

	reconciler := reconcile.New(repo, ann, escalator, inventory, notifier, settings, reg, log)
	go reconciler.Run(ctx)

	if err := apiServer.Start(); err != nil {
		log.Fatal("failed to start HTTP API", zap.Error(err))
	}

	metricsServer := startMetricsServer(settings.Observability.MetricsListen, promReg, log)

	<-ctx.Done()
	log.Info("shutdown signal received, beginning graceful shutdown",
		zap.Uint32("drain_timeout_seconds", settings.Shutdown.DrainTimeoutSeconds),
		zap.Bool("preserve_announcements", settings.Shutdown.PreserveAnnouncements),
	)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(settings.Shutdown.DrainTimeoutSeconds+5)*time.Second)
	defer cancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		log.Error("error during HTTP shutdown", zap.Error(err))
	}
	if metricsServer != nil {
		_ = metricsServer.Shutdown(shutdownCtx)
	}

	active, _ := repo.CountActiveGlobal(shutdownCtx)
	log.Info("graceful shutdown complete", zap.Uint32("active_mitigations", active))
}

func loadConfig(dir string) (*config.Settings, *config.Inventory, *config.Playbooks, error) {
	settings, err := config.LoadSettings(filepath.Join(dir, "prefixd.yaml"))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("loading settings: %w", err)
	}
	inventory, err := config.LoadInventory(filepath.Join(dir, "inventory.yaml"))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("loading inventory: %w", err)
	}
	playbooks, err := config.LoadPlaybooks(filepath.Join(dir, "playbooks.yaml"))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("loading playbooks: %w", err)
	}
	return settings, inventory, playbooks, nil
}

// buildRepository selects the Repository driver by settings.Storage.Driver,
// wrapping it in a SafelistCache when Redis is configured. The close func
// is always safe to call even when nothing needs closing.
func buildRepository(ctx context.Context, settings *config.Settings, log *zap.Logger) (repository.Repository, func(), error) {
	var repo repository.Repository
	var closeFn func()

	switch settings.Storage.Driver {
	case config.StoragePostgres:
		log.Info("initializing database", zap.String("driver", "postgres"))
		sqlRepo, err := sqlrepo.Open(ctx, settings.Storage.DSN)
		if err != nil {
			return nil, nil, err
		}
		repo = sqlRepo
		closeFn = func() { _ = sqlRepo.Close() }
	default:
		log.Info("initializing database", zap.String("driver", "memory"))
		repo = repository.NewMock()
		closeFn = func() {}
	}

	if settings.Redis.Addr != "" {
		client, err := cache.NewRedisAdapter(settings.Redis.Addr, settings.Redis.Password, settings.Redis.DB)
		if err != nil {
			log.Warn("redis unavailable, running without safelist cache", zap.Error(err))
			return repo, closeFn, nil
		}
		prevClose := closeFn
		closeFn = func() {
			_ = client.Close()
			prevClose()
		}
		repo = cache.New(repo, client, time.Duration(settings.Redis.TTLSeconds)*time.Second, log)
	}

	return repo, closeFn, nil
}

func buildAnnouncer(settings *config.Settings, log *zap.Logger) (announcer.Announcer, func(), error) {
	switch settings.BGP.Mode {
	case config.BGPModeSidecar:
		log.Info("using GoBGP sidecar", zap.String("endpoint", settings.BGP.GRPCAddr))
		drv, err := announcer.Dial(settings.BGP.GRPCAddr)
		if err != nil {
			return nil, nil, err
		}
		return drv, func() { _ = drv.Close() }, nil
	default:
		log.Info("using mock BGP announcer")
		return announcer.NewMock(), func() {}, nil
	}
}

func startMetricsServer(listen string, reg *prometheus.Registry, log *zap.Logger) *http.Server {
	if listen == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: listen, Handler: mux}
	go func() {
		log.Info("metrics listening", zap.String("listen", listen))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server error", zap.Error(err))
		}
	}()
	return srv
}

// fanoutNotifier relays an alert to both the webhook dispatcher and any
// operators connected to the HTTP API's realtime feed.
type fanoutNotifier struct {
	dispatcher *webhook.Dispatcher
	ws         *httpapi.Server
}

func (n fanoutNotifier) Notify(alert webhook.Alert) {
	n.dispatcher.Notify(alert)
	n.ws.Notify(alert)
}

func strPtr(s string) *string { return &s }

func newLogger(level string) (*zap.Logger, error) {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.Config{
		Level:       zap.NewAtomicLevelAt(zapLevel),
		Development: false,
		Encoding:    "json",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "ts",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.LowercaseLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.SecondsDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	return cfg.Build()
}
