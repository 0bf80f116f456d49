package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hookline/eventrouter/internal/config"
	"github.com/hookline/eventrouter/internal/httpclient"
	"github.com/hookline/eventrouter/internal/logging"
	"github.com/hookline/eventrouter/internal/memdlq"
	"github.com/hookline/eventrouter/internal/memstore"
	"github.com/hookline/eventrouter/internal/metrics"
	"github.com/hookline/eventrouter/internal/plugin"
	"github.com/hookline/eventrouter/internal/router"
)

func main() {
	var configFile string
	flag.StringVar(&configFile, "config", "", "The router will load its configuration from this file.")
	flag.Parse()

	logger := logging.SetupLogger("info", "json")
	setupLog := logging.NewLogger(logger, "setup")

	cfg, err := config.Load(configFile)
	if err != nil {
		setupLog.Error(err, "unable to load configuration")
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		setupLog.Error(err, "invalid configuration")
		os.Exit(1)
	}

	recorder, err := metrics.NewRecorder(prometheus.DefaultRegisterer)
	if err != nil {
		setupLog.Error(err, "unable to register metrics")
		os.Exit(1)
	}

	httpCap := httpclient.New(logging.NewLogger(logger, "http"), 10*time.Second)

	manager := plugin.NewManager(logging.NewLogger(logger, "plugin-manager"),
		plugin.WithHTTPCapability(httpCap),
		plugin.WithMetricsRecorder(recorder),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := manager.Init(ctx); err != nil {
		setupLog.Error(err, "unable to initialize plugin manager")
		os.Exit(1)
	}
	defer manager.Destroy(ctx)

	store := memstore.New(logging.NewLogger(logger, "store"))
	dlq := memdlq.New(logging.NewLogger(logger, "dlq"))

	r := router.New(manager, store, dlq, logging.NewLogger(logger, "router"), cfg.Router)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	setupLog.Info("Router started, waiting for batches")

	// A real deployment wires batches in from a queue adapter; that
	// ingestion entry point is out of scope here. This smoke call proves
	// the dependency graph wires together into a runnable process.
	if err := r.ProcessBatch(ctx, nil); err != nil {
		setupLog.Error(err, "startup smoke batch failed")
	}

	<-sigCh
	setupLog.Info("Shutting down")
}
