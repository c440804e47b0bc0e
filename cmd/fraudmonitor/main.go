package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sentinel-labs/fraud-monitor/internal/api/rest"
	"github.com/sentinel-labs/fraud-monitor/internal/api/websocket"
	"github.com/sentinel-labs/fraud-monitor/internal/infrastructure/backend"
	"github.com/sentinel-labs/fraud-monitor/internal/infrastructure/config"
	"github.com/sentinel-labs/fraud-monitor/internal/infrastructure/events"
	"github.com/sentinel-labs/fraud-monitor/internal/infrastructure/telemetry"
	"github.com/sentinel-labs/fraud-monitor/internal/metrics"
	"github.com/sentinel-labs/fraud-monitor/internal/service/dashboard"
	"github.com/sentinel-labs/fraud-monitor/internal/service/heatmap"
	"github.com/sentinel-labs/fraud-monitor/internal/service/simulator"
)

const usage = `Usage:
  fraudmonitor [-config path]            run the dashboard view service
  fraudmonitor submit [-n N] [-interval d] [-config path]
                                         send demo transactions to the backend
`

func main() {
	args := os.Args[1:]
	if len(args) > 0 && args[0] == "submit" {
		os.Exit(runSubmit(args[1:]))
	}
	os.Exit(runServe(args))
}

func runServe(args []string) int {
	fs := flag.NewFlagSet("fraudmonitor", flag.ContinueOnError)
	fs.Usage = func() { fmt.Fprint(fs.Output(), usage) }
	configPath := fs.String("config", "", "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, logger, err := setup(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fraudmonitor: %v\n", err)
		return 1
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx, cfg, logger); err != nil {
		logger.Error("fraud monitor stopped with error", zap.Error(err))
		return 1
	}
	logger.Info("fraud monitor stopped")
	return 0
}

func setup(configPath string) (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	logger, err := telemetry.NewLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, logger.With(zap.String("environment", cfg.Environment)), nil
}

func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	tracing, err := telemetry.InitializeTracing(ctx, telemetry.Config{
		ServiceName:    "fraud-monitor",
		ServiceVersion: cfg.Version,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		Enabled:        cfg.Telemetry.Enabled,
		SamplingRate:   cfg.Telemetry.SamplingRate,
		ExportTimeout:  cfg.Telemetry.ExportTimeout,
		BatchTimeout:   cfg.Telemetry.BatchTimeout,
		MetricInterval: cfg.Telemetry.MetricInterval,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracing.Shutdown(shutdownCtx); err != nil {
			logger.Warn("failed to flush telemetry", zap.Error(err))
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewRegistry(registry)

	client, err := backend.NewClient(cfg.Backend.BaseURL, cfg.Backend.Timeout, logger)
	if err != nil {
		return err
	}

	liveURL, err := cfg.LiveURL()
	if err != nil {
		return err
	}
	liveCfg := events.DefaultLiveConfig(liveURL)
	liveCfg.HandshakeTimeout = cfg.Live.HandshakeTimeout
	liveCfg.MaxBackoff = cfg.Live.MaxBackoff

	dash := dashboard.NewOrchestrator(client, logger,
		dashboard.WithRefreshInterval(cfg.Dashboard.RefreshInterval),
		dashboard.WithMetrics(m))
	heat := heatmap.NewView(client, logger,
		heatmap.WithInterval(cfg.Heatmap.RefreshInterval),
		heatmap.WithMetrics(m))
	live := events.NewLiveChannel(liveCfg, logger, m)
	hub := websocket.NewSnapshotHub(dash, logger, m)

	api := rest.NewHandler(dash, heat, live, hub.ClientCount, cfg.Version, logger)
	router := rest.NewRouter(api, rest.RouterConfig{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RefreshRate:    cfg.Server.RefreshRate,
		RefreshBurst:   cfg.Server.RefreshBurst,
		RequestTimeout: cfg.Server.WriteTimeout,
		Metrics:        m,
		Gatherer:       registry,
		Stream:         websocket.NewHandler(hub, cfg.Server.AllowedOrigins, logger).HandleSnapshots,
	}, logger)
	server := rest.NewServer(rest.ServerConfig{
		Addr:            cfg.Addr(),
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, router, logger)

	g, ctx := errgroup.WithContext(ctx)

	dash.Start(ctx)
	heat.Start(ctx)
	if err := live.Start(ctx, dash.HandleEvent); err != nil {
		return err
	}

	logger.Info("fraud monitor started",
		zap.String("backend", cfg.Backend.BaseURL),
		zap.String("live", liveURL),
		zap.String("addr", cfg.Addr()))

	g.Go(func() error {
		hub.Run(ctx)
		return nil
	})
	g.Go(func() error {
		return server.Run(ctx)
	})
	g.Go(func() error {
		<-ctx.Done()
		// stop producers before the state they feed
		live.Close()
		heat.Close()
		dash.Close()
		hub.Stop()
		return nil
	})

	return g.Wait()
}

func runSubmit(args []string) int {
	fs := flag.NewFlagSet("submit", flag.ContinueOnError)
	fs.Usage = func() { fmt.Fprint(fs.Output(), usage) }
	configPath := fs.String("config", "", "Path to configuration file")
	n := fs.Int("n", 10, "Number of transactions to submit")
	interval := fs.Duration("interval", 2*time.Second, "Delay between submissions")
	seed := fs.Uint64("seed", uint64(time.Now().UnixNano()), "Random seed")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *n < 1 {
		fmt.Fprintln(os.Stderr, "submit: -n must be at least 1")
		return 2
	}

	cfg, logger, err := setup(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fraudmonitor: %v\n", err)
		return 1
	}
	defer logger.Sync()

	client, err := backend.NewClient(cfg.Backend.BaseURL, cfg.Backend.Timeout, logger)
	if err != nil {
		logger.Error("invalid backend", zap.Error(err))
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := simulator.Run(ctx, simulator.NewGenerator(*seed), client, *n, *interval, logger)
	logger.Info("submission finished",
		zap.Int("submitted", res.Submitted),
		zap.Int("failed", res.Failed),
		zap.Int("flagged", res.Flagged),
		zap.Int("blocked", res.Blocked))
	if err != nil || res.Submitted == 0 {
		return 1
	}
	return 0
}
