package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/siteprobe/siteprobe/internal/database"
)

// NewMigrateCmd creates the migrate command
func NewMigrateCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the platform tables the probe reads (development databases)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			pool, err := database.InitDB(cmd.Context(), cfg.Database)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := database.RunMigrations(pool); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Migrations applied")
			return nil
		},
	}
}
