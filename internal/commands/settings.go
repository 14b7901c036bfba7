package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"

	"github.com/siteprobe/siteprobe/internal/probe"
	"github.com/siteprobe/siteprobe/internal/store"
)

var validate = validator.New()

// settingsInput is what "settings set" may change
type settingsInput struct {
	Key       *string
	IPs       []string `validate:"omitempty,dive,ip"`
	Whitelist []string `validate:"omitempty,dive,required"`
	setIPs    bool
	setList   bool
}

// apply validates in and merges it into the current settings object
func (in settingsInput) apply(current probe.ConfigObject) (probe.ConfigObject, error) {
	if err := validate.Struct(in); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}

	next := probe.ConfigObject{}
	for k, v := range current {
		next[k] = v
	}
	if in.Key != nil {
		next[probe.KeyProbeKey] = strings.TrimSpace(*in.Key)
	}
	if in.setIPs {
		next[probe.KeyAllowedIPs] = strings.Join(in.IPs, "\n")
	}
	if in.setList {
		list := make([]any, 0, len(in.Whitelist))
		for _, name := range in.Whitelist {
			list = append(list, name)
		}
		next[probe.KeyVariablesWhitelist] = list
	}
	return next, nil
}

// NewSettingsCmd creates the settings command
func NewSettingsCmd(load loader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change the probe key and IP allow-list",
	}
	cmd.AddCommand(newSettingsShowCmd(load), newSettingsSetCmd(load))
	return cmd
}

func newSettingsShowCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the probe settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := openPlatform(cmd.Context(), load)
			if err != nil {
				return err
			}
			defer p.Close()

			settings, err := p.queries.Config(cmd.Context(), probe.SettingsConfig)
			if err != nil {
				return err
			}
			return printSettings(cmd.OutOrStdout(), settings)
		},
	}
}

func newSettingsSetCmd(load loader) *cobra.Command {
	var key string
	var in settingsInput

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Change the probe settings",
		Long: `Change the probe settings. Only the flags given are changed.

Examples:
  siteprobe settings set --key "$(openssl rand -hex 16)"
  siteprobe settings set --ips 10.0.0.5 --ips 10.0.0.6
  siteprobe settings set --whitelist system.cron_last,install_time`,
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			if flags.Changed("key") {
				in.Key = &key
			}
			in.setIPs = flags.Changed("ips")
			in.setList = flags.Changed("whitelist")
			if in.Key == nil && !in.setIPs && !in.setList {
				return fmt.Errorf("nothing to change: pass --key, --ips or --whitelist")
			}

			ctx := cmd.Context()
			p, err := openPlatform(ctx, load)
			if err != nil {
				return err
			}
			defer p.Close()

			saved, err := saveSettings(ctx, p, in)
			if err != nil {
				return err
			}
			p.logger.Info("Probe settings saved")
			return printSettings(cmd.OutOrStdout(), saved)
		},
	}
	cmd.Flags().StringVar(&key, "key", "", "probe key; an empty value disables key access")
	cmd.Flags().StringSliceVar(&in.IPs, "ips", nil, "client addresses allowed to probe without a key")
	cmd.Flags().StringSliceVar(&in.Whitelist, "whitelist", nil, "variable names the probe may report")
	return cmd
}

func saveSettings(ctx context.Context, p *platform, in settingsInput) (probe.ConfigObject, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	q := store.New(p.pool).WithTx(tx)
	current, err := q.Config(ctx, probe.SettingsConfig)
	if err != nil {
		return nil, err
	}
	next, err := in.apply(current)
	if err != nil {
		return nil, err
	}
	if err := q.SaveConfig(ctx, probe.SettingsConfig, next); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit settings: %w", err)
	}
	return next, nil
}

func printSettings(w io.Writer, settings probe.ConfigObject) error {
	out := map[string]any{
		probe.KeyProbeKey:           settings.String(probe.KeyProbeKey),
		probe.KeyAllowedIPs:         probe.AllowedIPs(settings.String(probe.KeyAllowedIPs)),
		probe.KeyVariablesWhitelist: settings.Strings(probe.KeyVariablesWhitelist),
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
