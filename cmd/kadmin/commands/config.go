package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kerb4/kerb4/pkg/config"
)

var configKind string

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage sample configuration files",
}

var configInitCmd = &cobra.Command{
	Use:   "init <path>",
	Short: "Write a sample configuration file",
	Long: `Write a sample configuration file for one binary ("kdc", "appserver" or
"kclient") at path, populated with built-in defaults.`,
	Args: cobra.ExactArgs(1),
	RunE: runConfigInit,
}

func init() {
	configInitCmd.Flags().StringVar(&configKind, "kind", "kdc", "which binary's config to write: kdc|appserver|kclient")
	configCmd.AddCommand(configInitCmd)
}

func runConfigInit(_ *cobra.Command, args []string) error {
	path := args[0]

	var def any
	switch configKind {
	case "kdc":
		def = config.DefaultKDCConfig()
	case "appserver":
		def = config.DefaultAppServerConfig()
	case "kclient":
		def = config.DefaultClientConfig()
	default:
		return fmt.Errorf("unknown config kind %q, want kdc|appserver|kclient", configKind)
	}

	if err := config.SaveConfig(path, def); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}

	fmt.Printf("sample %s config written to %s\n", configKind, path)
	return nil
}
