package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/lockguard/lockguard/pkg/color"
)

func (a *app) auditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the lock event log",
	}
	cmd.AddCommand(a.auditVerifyCmd(), a.auditLogCmd())
	return cmd
}

func (a *app) auditVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check the audit log hash chain",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.open(cmd)
			if err != nil {
				return err
			}
			defer client.Close(cmd.Context())

			n, err := client.VerifyAudit()
			if a.jsonOutput() {
				res := map[string]any{"records": n, "ok": err == nil}
				if err != nil {
					res["error"] = err.Error()
				}
				if jerr := outputJSON(cmd, res); jerr != nil {
					return jerr
				}
				return err
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Audit chain %s (%d records)\n", color.Success("OK"), n)
			return nil
		},
	}
}

func (a *app) auditLogCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Print recent audit records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.open(cmd)
			if err != nil {
				return err
			}
			defer client.Close(cmd.Context())

			records, err := client.AuditRecords()
			if err != nil {
				return err
			}
			if limit > 0 && len(records) > limit {
				records = records[len(records)-limit:]
			}
			if a.jsonOutput() {
				return outputJSON(cmd, records)
			}
			for _, r := range records {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %-14s %s\n",
					color.Dim(r.Timestamp.Local().Format(time.DateTime)), r.EventType, r.LockKey)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of records to show (0 for all)")
	return cmd
}
