// Command floodgate waits until the configured database accepts
// connections, optionally provisions the flood-damage model database, and
// exits 0 when the database is ready or 1 when it is not.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/kylerisse/floodgate/pkg/config"
	"github.com/kylerisse/floodgate/pkg/gate"
	"github.com/kylerisse/floodgate/pkg/logging"
	"github.com/kylerisse/floodgate/pkg/provision"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg, err := loadConfig(args)
	if errors.Is(err, pflag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "floodgate: %v\n", err)
		return 2
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "floodgate: %v\n", err)
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, err := gate.Build(gate.DefaultRegistry(), cfg.Target(), cfg.Policy(), cfg.Settings(),
		gate.WithLogger(logger),
	)
	if err != nil {
		logger.Errorf("Failed to build gate: %v", err)
		return 2
	}

	logger.WithFields(logrus.Fields{
		"host":   cfg.Postgres.Host,
		"port":   cfg.Postgres.Port,
		"stages": g.Stages(),
	}).Info("Waiting for database")

	if !g.WaitUntilReady(ctx) {
		logger.Error("Database is not ready")
		return 1
	}

	if !cfg.Provision.Enabled {
		return 0
	}

	p, err := provision.New(cfg.Target(), cfg.Provision.Database,
		provision.WithSSLMode(cfg.Postgres.SSLMode),
		provision.WithLogger(logger),
	)
	if err != nil {
		logger.Errorf("Failed to configure provisioning: %v", err)
		return 1
	}
	report, err := p.Create(ctx)
	if err != nil {
		logger.Errorf("Provisioning failed: %v", err)
		return 1
	}

	logger.WithFields(logrus.Fields{
		"database":         report.Database,
		"database_created": report.DatabaseCreated,
		"roles_created":    report.RolesCreated,
	}).Info("Created system for flood damage model")
	return 0
}

func loadConfig(args []string) (*config.Config, error) {
	fs := pflag.NewFlagSet("floodgate", pflag.ContinueOnError)
	configFile := fs.String("config", "", "path to a YAML config file")

	loader := config.NewLoader()
	if err := loader.RegisterFlags(fs); err != nil {
		return nil, err
	}
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	return loader.Load(*configFile)
}
