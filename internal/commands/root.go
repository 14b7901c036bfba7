// Package commands holds the siteprobe command line
package commands

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/siteprobe/siteprobe/internal/config"
)

// NewRootCmd creates the siteprobe root command with every subcommand attached
func NewRootCmd(version string) *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "siteprobe",
		Short:         "Authenticated status probe for a managed site",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the configuration file")

	load := func() (*config.Config, error) {
		if v := os.Getenv("SITEPROBE_CONFIG"); v != "" && !root.PersistentFlags().Changed("config") {
			return config.Load(v)
		}
		return config.Load(configPath)
	}

	root.AddCommand(NewServeCmd(load, version))
	root.AddCommand(NewSelfTestCmd(load))
	root.AddCommand(NewMigrateCmd(load))
	root.AddCommand(NewSettingsCmd(load))
	root.AddCommand(NewConfigCmd())
	return root
}

// loader reads the configuration selected by the root flags
type loader func() (*config.Config, error)
