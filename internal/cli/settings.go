package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/lockguard/lockguard/internal/engine"
)

const (
	settingTreeCountdown = "tree-countdown"
	settingSearchHide    = "search-hide"
)

func (a *app) settingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings <command>",
		Short: "Show or change engine settings",
		Long: `Show or change the settings stored with the locks.

Available keys:
  tree-countdown  - show countdown badges for trust and timer locks (true, false)
  search-hide     - hide locked documents from search results (true, false)`,
		DisableFlagsInUseLine: true,
	}
	cmd.AddCommand(a.settingsShowCmd(), a.settingsSetCmd())
	return cmd
}

func (a *app) settingsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show current settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.open(cmd)
			if err != nil {
				return err
			}
			defer client.Close(cmd.Context())

			s := client.Settings()
			if a.jsonOutput() {
				return outputJSON(cmd, map[string]any{
					settingTreeCountdown: s.TreeCountdownEnabled,
					settingSearchHide:    s.SearchHideLockedEnabled,
					"common_secrets":     len(s.CommonSecrets),
				})
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: %v\n", settingTreeCountdown, s.TreeCountdownEnabled)
			fmt.Fprintf(out, "%s: %v\n", settingSearchHide, s.SearchHideLockedEnabled)
			fmt.Fprintf(out, "common secrets: %d\n", len(s.CommonSecrets))
			return nil
		},
	}
}

func (a *app) settingsSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a setting",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			on, err := strconv.ParseBool(args[1])
			if err != nil {
				return fmt.Errorf("%s wants true or false, got %q", args[0], args[1])
			}
			var upd engine.SettingsUpdate
			switch args[0] {
			case settingTreeCountdown:
				upd.TreeCountdownEnabled = &on
			case settingSearchHide:
				upd.SearchHideLockedEnabled = &on
			default:
				return fmt.Errorf("unknown setting %q", args[0])
			}

			client, err := a.open(cmd)
			if err != nil {
				return err
			}
			defer client.Close(cmd.Context())

			if _, err := client.UpdateSettings(cmd.Context(), upd); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %v\n", args[0], on)
			return nil
		},
	}
}
