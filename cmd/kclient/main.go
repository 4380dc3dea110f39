// Command kclient runs one client-side application call: obtain a TGT
// (reusing the cache if possible), exchange it for a service ticket,
// and call the target application server. With --repeat it places a second
// call to the same service, proving within-process service-ticket reuse.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kerb4/kerb4/internal/epoch"
	"github.com/kerb4/kerb4/internal/krbcrypto"
	"github.com/kerb4/kerb4/internal/logger"
	"github.com/kerb4/kerb4/pkg/client"
	"github.com/kerb4/kerb4/pkg/config"
	"github.com/kerb4/kerb4/pkg/ticketcache"
)

var (
	configFile       string
	initialWallClock int64
	message          string
	repeat           bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "kclient",
		Short:        "Place an authenticated application call",
		SilenceUsage: true,
		RunE:         run,
	}
	rootCmd.Flags().StringVar(&configFile, "config", "", "path to a YAML config file")
	rootCmd.Flags().Int64Var(&initialWallClock, "initial-wall-clock", 0, "override epoch.txt with a literal UNIX-seconds origin")
	rootCmd.Flags().StringVar(&message, "message", "hi", "application message to send")
	rootCmd.Flags().BoolVar(&repeat, "repeat", false, "place a second call to show service-ticket reuse")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "kclient:", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configFile, config.DefaultClientConfig(), func(v *viper.Viper) {
		if cmd.Flags().Changed("initial-wall-clock") {
			v.Set("initial_wall_clock", initialWallClock)
		}
		if cmd.Flags().Changed("repeat") {
			v.Set("repeat", repeat)
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

	cache, err := ticketcache.Open(cfg.CacheDir)
	if err != nil {
		return fmt.Errorf("configuration_failure: %w", err)
	}
	defer cache.Close()

	c, err := client.New(cfg.IDc, cfg.Password, cfg.IDtgs, cfg.ADc, cfg.ASAddr, cfg.TGSAddr, etypeID, clock, cache, cfg.RequestTimeout)
	if err != nil {
		return fmt.Errorf("configuration_failure: %w", err)
	}

	ctx := context.Background()
	ack, err := c.Call(ctx, cfg.Target, cfg.TargetAddr, message)
	if err != nil {
		return err
	}
	fmt.Println(ack)

	if cfg.Repeat {
		ack, err = c.Call(ctx, cfg.Target, cfg.TargetAddr, message+" (second call)")
		if err != nil {
			return err
		}
		fmt.Println(ack)
	}
	return nil
}

func resolveClock(cfg config.CommonConfig) (epoch.Clock, error) {
	if cfg.InitialWallClock != nil && *cfg.InitialWallClock != 0 {
		return epoch.NewClock(*cfg.InitialWallClock), nil
	}
	return epoch.Load(cfg.EpochFile)
}

func resolveEType(suite string) (int32, error) {
	if suite == "" {
		return krbcrypto.DefaultEType, nil
	}
	return krbcrypto.ParseEType(suite)
}
