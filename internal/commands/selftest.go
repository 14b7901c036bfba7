package commands

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/siteprobe/siteprobe/internal/rpc"
)

// NewSelfTestCmd creates the selftest command
func NewSelfTestCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "selftest",
		Short: "Probe the site through its own public endpoint",
		Long: `Issue a probe call against the configured base URL using the probe key
stored in the site's probe.settings, and print the raw result.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			p, err := openPlatform(ctx, load)
			if err != nil {
				return err
			}
			defer p.Close()

			result, err := newSelfTest(p.cfg, p.queries).Run(ctx)
			var fault *rpc.Fault
			switch {
			case errors.As(err, &fault):
				result = rpc.Response{Fault: fault}
			case err != nil:
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(result); err != nil {
				return fmt.Errorf("failed to print result: %w", err)
			}
			return err
		},
	}
}
