// Command appserver runs one application server (V) principal, validating
// service tickets and authenticators against its own long-term key.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kerb4/kerb4/internal/epoch"
	"github.com/kerb4/kerb4/internal/krbcrypto"
	"github.com/kerb4/kerb4/internal/logger"
	"github.com/kerb4/kerb4/pkg/appserver"
	"github.com/kerb4/kerb4/pkg/config"
	"github.com/kerb4/kerb4/pkg/metrics"
	"github.com/kerb4/kerb4/pkg/principal"
)

var (
	configFile       string
	initialWallClock int64
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "appserver",
		Short:        "Run one application server principal",
		SilenceUsage: true,
		RunE:         run,
	}
	rootCmd.Flags().StringVar(&configFile, "config", "", "path to a YAML config file")
	rootCmd.Flags().Int64Var(&initialWallClock, "initial-wall-clock", 0, "override epoch.txt with a literal UNIX-seconds origin")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "appserver:", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configFile, config.DefaultAppServerConfig(), func(v *viper.Viper) {
		if cmd.Flags().Changed("initial-wall-clock") {
			v.Set("initial_wall_clock", initialWallClock)
		}
	})
	if err != nil {
		return fmt.Errorf("configuration_failure: %w", err)
	}
	logger.SetLevel(cfg.Logging.Level)
	logger.SetFormat(cfg.Logging.Format)

	clock, err := resolveClock(cfg.CommonConfig)
	if err != nil {
		return fmt.Errorf("configuration_failure: %w", err)
	}

	etypeID, err := resolveEType(cfg.CryptoSuite)
	if err != nil {
		return fmt.Errorf("configuration_failure: %w", err)
	}

	store, err := openStore(cfg.PrincipalDBPath)
	if err != nil {
		return fmt.Errorf("configuration_failure: %w", err)
	}

	ctx := context.Background()
	svc, err := store.GetService(ctx, cfg.Name)
	if err != nil {
		if cfg.Secret == "" {
			return fmt.Errorf("configuration_failure: unknown service %q and no secret configured to create it: %w", cfg.Name, err)
		}
		svc = principal.Principal{
			Name:    principal.Name{Primary: cfg.Name, Realm: cfg.Realm},
			Kind:    principal.KindService,
			Secret:  cfg.Secret,
			Address: cfg.Addr,
		}
		if err := store.Put(ctx, svc); err != nil {
			return fmt.Errorf("configuration_failure: seed service principal: %w", err)
		}
	}
	key, err := svc.Key(etypeID)
	if err != nil {
		return fmt.Errorf("configuration_failure: derive service key: %w", err)
	}

	server := appserver.New(cfg.Addr, cfg.Name, key, clock, etypeID)

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 2)
	go func() { errCh <- server.Serve() }()

	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		server.SetMetrics(metrics.NewRequests(reg))
		metricsSrv := metrics.NewServer(cfg.Metrics.Addr, reg)
		go func() { errCh <- metricsSrv.Serve(sigCtx) }()
	}

	logger.Info("appserver listening", "addr", cfg.Addr, logger.IDv(cfg.Name))

	select {
	case <-sigCtx.Done():
		logger.Info("appserver shutting down")
		return server.Stop()
	case err := <-errCh:
		return err
	}
}

func resolveClock(cfg config.CommonConfig) (epoch.Clock, error) {
	if cfg.InitialWallClock != nil && *cfg.InitialWallClock != 0 {
		return epoch.NewClock(*cfg.InitialWallClock), nil
	}
	return epoch.Load(cfg.EpochFile)
}

func openStore(dbPath string) (principal.Store, error) {
	if dbPath == "" {
		return principal.NewMemStore(), nil
	}
	return principal.OpenSQLStore(dbPath)
}

func resolveEType(suite string) (int32, error) {
	if suite == "" {
		return krbcrypto.DefaultEType, nil
	}
	return krbcrypto.ParseEType(suite)
}
