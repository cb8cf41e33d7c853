package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/lockguard/lockguard/pkg/color"
	"github.com/lockguard/lockguard/pkg/model"
)

func (a *app) secretCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secret",
		Short: "Manage common secrets shared by many locks",
	}
	cmd.AddCommand(a.secretAddCmd(), a.secretListCmd(), a.secretRemoveCmd())
	return cmd
}

func (a *app) secretAddCmd() *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Create a common secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			secretText, err := a.readSecret(cmd, "Secret: ")
			if err != nil {
				return err
			}
			client, err := a.open(cmd)
			if err != nil {
				return err
			}
			defer client.Close(cmd.Context())

			cs, err := client.CreateCommonSecret(cmd.Context(), args[0], model.ParseSecretKind(kind), secretText)
			if err != nil {
				return err
			}
			if a.jsonOutput() {
				return outputJSON(cmd, map[string]any{"id": cs.ID, "name": cs.Name, "kind": cs.SecretKind})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created common secret %s (%s)\n", color.Info(cs.Name), cs.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&kind, "kind", string(model.SecretPassword), "secret kind (password, pattern)")
	return cmd
}

func (a *app) secretListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List common secrets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.open(cmd)
			if err != nil {
				return err
			}
			defer client.Close(cmd.Context())

			secrets := client.CommonSecrets()
			if a.jsonOutput() {
				out := make([]map[string]any, 0, len(secrets))
				for _, cs := range secrets {
					out = append(out, map[string]any{
						"id":         cs.ID,
						"name":       cs.Name,
						"kind":       cs.SecretKind,
						"created_at": time.UnixMilli(cs.CreatedAt).UTC(),
					})
				}
				return outputJSON(cmd, out)
			}
			if len(secrets) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No common secrets.")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tKIND\tCREATED")
			for _, cs := range secrets {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", cs.ID, cs.Name, cs.SecretKind,
					time.UnixMilli(cs.CreatedAt).Format(time.RFC3339))
			}
			return tw.Flush()
		},
	}
}

func (a *app) secretRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Delete a common secret after verifying it",
		Long: `Delete a common secret after verifying it. Locks created from the
secret keep their own copy and still open with it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			secretText, err := a.readSecret(cmd, "Secret: ")
			if err != nil {
				return err
			}
			client, err := a.open(cmd)
			if err != nil {
				return err
			}
			defer client.Close(cmd.Context())

			if err := client.RemoveCommonSecret(cmd.Context(), args[0], secretText); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed common secret %s\n", args[0])
			return nil
		},
	}
}
