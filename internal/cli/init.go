package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lockguard/lockguard/internal/workspace"
	"github.com/lockguard/lockguard/pkg/color"
	"github.com/lockguard/lockguard/pkg/config"
)

func (a *app) initCmd() *cobra.Command {
	var (
		storeBackend string
		blocksPath   string
	)
	cmd := &cobra.Command{
		Use:   "init [dir]",
		Short: "Initialize a lockguard workspace",
		Long: `Initialize a lockguard workspace in dir (default: --dir).

This creates:
  - .lockguard/ state directory with format_version and workspace_id
  - .lockguard/config.yaml with default settings
  - .lockguard/store/ for the locks and settings blobs

Running init on an existing workspace leaves it untouched.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := a.v.GetString("dir")
			if len(args) == 1 {
				dir = args[0]
			}
			ws, err := workspace.Init(dir)
			if err != nil {
				return fmt.Errorf("initialize workspace: %w", err)
			}

			if storeBackend != "" || blocksPath != "" {
				cfg, err := config.Load(ws.Root)
				if err != nil {
					return err
				}
				if storeBackend != "" {
					cfg.Store.Backend = storeBackend
					if storeBackend == config.BackendSQLite {
						cfg.Store.Path = "store.db"
					}
				}
				if blocksPath != "" {
					cfg.Directory.Backend = config.BackendSQLite
					cfg.Directory.Path = blocksPath
				}
				if err := cfg.Validate(); err != nil {
					return err
				}
				if err := config.Save(ws.Root, cfg); err != nil {
					return err
				}
			}

			if a.jsonOutput() {
				return outputJSON(cmd, map[string]any{
					"root":           ws.Root,
					"format_version": ws.FormatVersion,
					"workspace_id":   ws.ID,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Initialized lockguard workspace in %s\n", color.Success(ws.Root))
			fmt.Fprintf(cmd.OutOrStdout(), "  Workspace ID: %s\n", color.Dim(ws.ID))
			return nil
		},
	}
	cmd.Flags().StringVar(&storeBackend, "store", "", "store backend (file, sqlite, memory)")
	cmd.Flags().StringVar(&blocksPath, "blocks-db", "", "host blocks database used for notebook and ancestor lookups")
	return cmd
}
