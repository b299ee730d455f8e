// Command geoloc pre-generates geolocation caches for a YAML job list.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/signalsfoundry/geoloc/internal/batch"
	"github.com/signalsfoundry/geoloc/internal/config"
	"github.com/signalsfoundry/geoloc/internal/geoloc"
	"github.com/signalsfoundry/geoloc/internal/logging"
	"github.com/signalsfoundry/geoloc/internal/observability"
	"github.com/signalsfoundry/geoloc/kb"
)

func main() {
	configPath := flag.String("config", "", "Path to a YAML configuration file")
	jobsPath := flag.String("jobs", "", "Path to a YAML job list")
	metricsAddr := flag.String("metrics-addr", "", "HTTP address for Prometheus /metrics (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "geoloc: %v\n", err)
		os.Exit(2)
	}
	if *metricsAddr != "" {
		cfg.MetricsAddr = *metricsAddr
	}
	if *jobsPath == "" {
		fmt.Fprintln(os.Stderr, "geoloc: -jobs is required")
		os.Exit(2)
	}

	log := logging.NewFromEnv(cfg.LoggingConfig())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *jobsPath, log, nil); err != nil {
		log.Error(ctx, "geoloc failed", logging.Err(err))
		os.Exit(1)
	}
}

// run loads the jobs and processes them. reg receives the metrics; nil
// means the default Prometheus registry.
func run(ctx context.Context, cfg config.Config, jobsPath string, log logging.Logger, reg prometheus.Registerer) error {
	shutdownTracing, err := observability.InitTracing(ctx, cfg.Tracing, log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	collector, err := observability.NewCacheCollector(reg)
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}
	metricsSrv := serveMetrics(cfg.MetricsAddr, collector, log)
	defer func() {
		if metricsSrv == nil {
			return
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}()

	jobs, err := batch.LoadJobsFile(kb.DefaultRegistry(), jobsPath)
	if err != nil {
		return err
	}
	svc, err := geoloc.NewService(cfg, log, geoloc.WithMetrics(collector))
	if err != nil {
		return err
	}

	log.Info(ctx, "starting batch",
		logging.Int("jobs", len(jobs)),
		logging.String("cache_root", cfg.Cache.Root),
		logging.String("backend", string(cfg.BackendKind())),
	)
	runner := batch.NewRunner(svc, log, batch.WithRunnerMetrics(collector))
	sum, err := runner.Run(ctx, jobs)
	if err != nil {
		return err
	}
	return sum.Err()
}

func serveMetrics(addr string, collector *observability.CacheCollector, log logging.Logger) *http.Server {
	if addr == "" || collector == nil {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn(context.Background(), "metrics server exited", logging.Err(err))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}
