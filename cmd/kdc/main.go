// Command kdc runs the Authentication Server and Ticket-Granting Server
// concurrently in one process.
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
	"github.com/kerb4/kerb4/pkg/config"
	"github.com/kerb4/kerb4/pkg/kdc"
	"github.com/kerb4/kerb4/pkg/metrics"
	"github.com/kerb4/kerb4/pkg/principal"
)

var (
	configFile       string
	initialWallClock int64
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "kdc",
		Short:        "Run the Authentication Server and Ticket-Granting Server",
		SilenceUsage: true,
		RunE:         run,
	}
	rootCmd.Flags().StringVar(&configFile, "config", "", "path to a YAML config file")
	rootCmd.Flags().Int64Var(&initialWallClock, "initial-wall-clock", 0, "override epoch.txt with a literal UNIX-seconds origin")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "kdc:", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configFile, config.DefaultKDCConfig(), func(v *viper.Viper) {
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

	store, err := openStore(cfg.PrincipalDBPath)
	if err != nil {
		return fmt.Errorf("configuration_failure: %w", err)
	}

	etypeID, err := resolveEType(cfg.CryptoSuite)
	if err != nil {
		return fmt.Errorf("configuration_failure: %w", err)
	}

	// The serving path reads the TGS record (key, lifetimes) through the
	// store; the config lifetimes only seed a record that kadmin has not
	// provisioned yet.
	ctx := context.Background()
	tgsPrincipal, err := store.GetTGS(ctx, cfg.TGSName)
	if err != nil {
		if cfg.TGSSecret == "" {
			return fmt.Errorf("configuration_failure: unknown TGS %q and no tgs_secret configured to create it: %w", cfg.TGSName, err)
		}
		tgsPrincipal = principal.Principal{
			Name:                      principal.Name{Primary: cfg.TGSName, Realm: cfg.Realm},
			Kind:                      principal.KindTGS,
			Secret:                    cfg.TGSSecret,
			DefaultTGTLifetimeMinutes: int(cfg.DefaultTGTLifetime),
			DefaultSTLifetimeMinutes:  int(cfg.DefaultSTLifetime),
		}
		if err := store.Put(ctx, tgsPrincipal); err != nil {
			return fmt.Errorf("configuration_failure: seed TGS principal: %w", err)
		}
	}
	tgsKey, err := tgsPrincipal.Key(etypeID)
	if err != nil {
		return fmt.Errorf("configuration_failure: derive TGS key: %w", err)
	}

	tgs := kdc.TGSRecord{IDtgs: cfg.TGSName, Key: tgsKey}

	server := kdc.New(cfg.ASAddr, cfg.TGSAddr, store, clock, tgs, etypeID)

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 3)
	go func() { errCh <- server.ServeAS() }()
	go func() { errCh <- server.ServeTGS() }()

	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		server.SetMetrics(metrics.NewRequests(reg))
		metricsSrv := metrics.NewServer(cfg.Metrics.Addr, reg)
		go func() { errCh <- metricsSrv.Serve(sigCtx) }()
	}

	logger.Info("kdc listening", "as_addr", cfg.ASAddr, "tgs_addr", cfg.TGSAddr, logger.IDtgs(cfg.TGSName))

	select {
	case <-sigCtx.Done():
		logger.Info("kdc shutting down")
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
