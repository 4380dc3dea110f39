// Package commands implements kadmin's cobra command tree: client/service/
// tgs provisioning and config file initialization.
package commands

import (
	"github.com/spf13/cobra"
)

var dbPath string

var rootCmd = &cobra.Command{
	Use:           "kadmin",
	Short:         "Offline principal-database setup tool",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "kerb4.sqlite", "path to the principal database")
	rootCmd.AddCommand(clientCmd)
	rootCmd.AddCommand(serviceCmd)
	rootCmd.AddCommand(tgsCmd)
	rootCmd.AddCommand(configCmd)
}
