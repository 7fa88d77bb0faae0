package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Resinat/Paygate/internal/api"
	"github.com/Resinat/Paygate/internal/buildinfo"
	"github.com/Resinat/Paygate/internal/config"
	"github.com/Resinat/Paygate/internal/eventlog"
	"github.com/Resinat/Paygate/internal/metrics"
	"github.com/Resinat/Paygate/internal/otel"
	"github.com/Resinat/Paygate/internal/paywall"
	"github.com/Resinat/Paygate/internal/presentation"
	"github.com/Resinat/Paygate/internal/tracking"
)

type paygateApp struct {
	envCfg *config.EnvConfig

	otelShutdown func(context.Context) error
	eventDB      interface{ Close() error }
	eventlogSvc  *eventlog.Service
	redisClient  *redis.Client
	staticStore  *paywall.StaticStore
	loader       *paywall.Loader
	metricsMgr   *metrics.Manager
	apiSrv       *api.Server
}

func run() error {
	envCfg, err := config.LoadEnvConfig()
	if err != nil {
		return err
	}
	installLogger(envCfg.LogLevel)
	if envCfg.AdminToken != "" && config.IsWeakToken(envCfg.AdminToken) {
		log.Println("WARNING: PAYGATE_ADMIN_TOKEN is weak; use a longer random token")
	}

	app := &paygateApp{envCfg: envCfg}
	if err := app.init(context.Background()); err != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		app.shutdown(shutdownCtx)
		return err
	}

	serverErrCh := app.startServer()
	runtimeErr := waitForShutdown(serverErrCh)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	app.shutdown(ctx)

	if runtimeErr != nil {
		return fmt.Errorf("runtime server error: %w", runtimeErr)
	}
	return nil
}

// installLogger routes slog (and the std logger through it) to stderr at
// the configured level.
func installLogger(level string) {
	lvl := slog.LevelInfo
	if level == "debug" {
		lvl = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}

func (a *paygateApp) init(ctx context.Context) error {
	startedAt := time.Now().UTC()

	otelShutdown, err := otel.Setup(ctx, otel.Config{
		Enabled:        a.envCfg.OTelEnabled,
		Endpoint:       a.envCfg.OTelEndpoint,
		ServiceVersion: buildinfo.Version,
	})
	if err != nil {
		return fmt.Errorf("otel setup: %w", err)
	}
	a.otelShutdown = otelShutdown

	// Event log: durable sink and response load recorder.
	db, err := eventlog.Open(a.envCfg.StateDir)
	if err != nil {
		return fmt.Errorf("event log: %w", err)
	}
	a.eventDB = db
	eventRepo := eventlog.NewRepo(db)
	a.eventlogSvc = eventlog.NewService(eventlog.ServiceConfig{
		Repo:          eventRepo,
		QueueSize:     a.envCfg.EventLogQueueSize,
		FlushBatch:    a.envCfg.EventLogFlushBatchSize,
		FlushInterval: a.envCfg.EventLogFlushInterval,
		Retention:     a.envCfg.EventLogRetention,
	})
	a.eventlogSvc.Start()
	log.Printf("Event log started (%s)", a.envCfg.StateDir)

	sinks := []tracking.Sink{a.eventlogSvc}
	if a.envCfg.RedisAddr != "" {
		a.redisClient = redis.NewClient(&redis.Options{
			Addr:     a.envCfg.RedisAddr,
			Password: a.envCfg.RedisPassword,
			DB:       a.envCfg.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := a.redisClient.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			return fmt.Errorf("redis ping %s: %w", a.envCfg.RedisAddr, err)
		}
		sinks = append(sinks, tracking.NewRedisStreamSink(a.redisClient, a.envCfg.RedisStream, 0))
		log.Printf("Redis stream sink enabled (stream=%s)", a.envCfg.RedisStream)
	}
	tracker := tracking.NewCoordinator(tracking.CoordinatorConfig{
		Sinks:       sinks,
		Recorder:    a.eventlogSvc,
		SinkTimeout: a.envCfg.TrackingSinkTimeout,
	})

	a.staticStore = paywall.NewStaticStore(paywall.StaticStoreConfig{
		Path:           a.envCfg.StaticPaywallsFile,
		ReloadSchedule: a.envCfg.StaticPaywallsReloadSchedule,
	})
	if err := a.staticStore.Start(); err != nil {
		return fmt.Errorf("static paywalls: %w", err)
	}
	log.Printf("Static paywall store started (%d paywalls)", a.staticStore.Len())

	client := paywall.NewHTTPClient(
		a.envCfg.PaywallAPIURL,
		a.envCfg.PaywallAPIKey,
		a.envCfg.PaywallFetchTimeout,
		buildinfo.UserAgent(),
	)
	a.loader = paywall.NewLoader(paywall.LoaderConfig{
		Client:       client,
		Static:       a.staticStore,
		Tracker:      tracker,
		CacheSize:    a.envCfg.ResponseCacheSize,
		CacheTTL:     a.envCfg.ResponseCacheTTL,
		CancelPolicy: a.envCfg.InflightCancelPolicy,
	})

	loader := a.loader
	a.metricsMgr = metrics.NewManager(metrics.ManagerConfig{
		LatencyBinMs:      a.envCfg.MetricLatencyBinWidthMS,
		LatencyOverflowMs: a.envCfg.MetricLatencyBinOverflowMS,
		RealtimeCapacity:  a.envCfg.MetricRealtimeCapacity,
		InFlight:          metrics.InFlightFunc(func() int { return loader.Stats().InFlight }),
	})
	a.metricsMgr.Start()
	log.Println("Metrics manager started")

	pipeline := presentation.NewPipeline(presentation.PipelineConfig{
		Resolver: a.loader,
		Observer: a.metricsMgr,
	})

	a.apiSrv = api.NewServer(api.ServerConfig{
		ListenAddress:   a.envCfg.ListenAddress,
		Port:            a.envCfg.Port,
		AdminToken:      a.envCfg.AdminToken,
		APIMaxBodyBytes: int64(a.envCfg.APIMaxBodyBytes),
		SystemInfo:      buildinfo.Current(startedAt),
		EnvConfig:       a.envCfg,
		Decider:         pipeline,
		EventRepo:       eventRepo,
		EventLog:        a.eventlogSvc,
		Metrics:         a.metricsMgr,
		Loader:          a.loader,
		StaticStore:     a.staticStore,
	})
	return nil
}

func (a *paygateApp) startServer() <-chan error {
	serverErrCh := make(chan error, 1)
	go func() {
		log.Printf("Paygate server starting on %s", formatListenURL(a.envCfg.ListenAddress, a.envCfg.Port))
		if err := a.apiSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- fmt.Errorf("paygate server: %w", err)
		}
	}()
	return serverErrCh
}

func waitForShutdown(serverErrCh <-chan error) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		log.Printf("Received signal %s, shutting down...", sig)
		return nil
	case err := <-serverErrCh:
		log.Printf("Received server runtime error (%v), shutting down...", err)
		return err
	}
}

func formatListenURL(listenAddress string, port int) string {
	return "http://" + net.JoinHostPort(listenAddress, strconv.Itoa(port))
}

// shutdown stops components in reverse start order. Safe on a partially
// initialized app.
func (a *paygateApp) shutdown(ctx context.Context) {
	if a.apiSrv != nil {
		if err := a.apiSrv.Shutdown(ctx); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
		log.Println("Paygate server stopped")
	}

	// Event sources first, then sinks, then persistence.
	if a.metricsMgr != nil {
		a.metricsMgr.Stop()
		log.Println("Metrics manager stopped")
	}
	if a.loader != nil {
		a.loader.Close()
		log.Println("Paywall loader closed")
	}
	if a.staticStore != nil {
		a.staticStore.Stop()
		log.Println("Static paywall store stopped")
	}
	if a.eventlogSvc != nil {
		a.eventlogSvc.Stop()
		log.Println("Event log stopped")
	}
	if a.eventDB != nil {
		if err := a.eventDB.Close(); err != nil {
			log.Printf("Event log DB close error: %v", err)
		}
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			log.Printf("Redis close error: %v", err)
		}
	}
	if a.otelShutdown != nil {
		if err := a.otelShutdown(ctx); err != nil {
			log.Printf("OTel shutdown error: %v", err)
		}
	}
	log.Println("Server stopped")
}
