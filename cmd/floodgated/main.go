// Command floodgated evaluates the database gate periodically and serves
// readiness endpoints and metrics over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"

	"github.com/kylerisse/floodgate/pkg/check"
	"github.com/kylerisse/floodgate/pkg/config"
	"github.com/kylerisse/floodgate/pkg/gate"
	"github.com/kylerisse/floodgate/pkg/logging"
	"github.com/kylerisse/floodgate/pkg/metrics"
	"github.com/kylerisse/floodgate/pkg/server"
)

const shutdownTimeout = 10 * time.Second

func main() {
	fs := pflag.NewFlagSet("floodgated", pflag.ContinueOnError)
	configFile := fs.String("config", "", "path to a YAML config file")

	loader := config.NewLoader()
	if err := loader.RegisterFlags(fs); err != nil {
		fmt.Fprintf(os.Stderr, "floodgated: %v\n", err)
		os.Exit(2)
	}
	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		os.Exit(2)
	}

	cfg, err := loader.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "floodgated: %v\n", err)
		os.Exit(2)
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "floodgated: %v\n", err)
		os.Exit(2)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	clock := clockwork.NewRealClock()
	status := check.NewStatus()

	g, err := gate.Build(gate.DefaultRegistry(), cfg.Target(), cfg.Policy(), cfg.Settings(),
		gate.WithClock(clock),
		gate.WithLogger(logger),
		gate.WithObserver(server.StatusObserver(status, clock)),
		gate.WithObserver(m),
	)
	if err != nil {
		logger.Fatalf("Failed to build gate: %v", err)
	}

	srv, err := server.New(g, status,
		server.WithAddr(cfg.HTTP.Addr),
		server.WithInterval(cfg.HTTP.CheckInterval),
		server.WithClock(clock),
		server.WithLogger(logger),
		server.WithGatherer(reg),
	)
	if err != nil {
		logger.Fatalf("Failed to create server: %v", err)
	}

	if err := srv.Start(); err != nil {
		logger.Fatalf("Failed to start server: %v", err)
	}

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	logger.Info("Server is running. Press Ctrl+C to stop.")
	<-stop
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Stop(ctx); err != nil {
		logger.Errorf("Shutdown did not complete cleanly: %v", err)
	}
	logger.Info("Server stopped.")
}
