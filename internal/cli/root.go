package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/lockguard/lockguard/pkg/color"
)

// app carries the flag and environment state shared by every command of
// one root command tree.
type app struct {
	v *viper.Viper
}

// NewRootCmd builds the lockguard command tree. Flags can also be set
// through LOCKGUARD_* environment variables (LOCKGUARD_DIR,
// LOCKGUARD_SECRET, LOCKGUARD_LOG_LEVEL, ...).
func NewRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:   "lockguard",
		Short: "lockguard - note lock policies and expiry",
		Long: `lockguard decides whether documents and notebooks are locked and drives
their time-based transitions: trust windows that close on their own and
timer budgets that count down while a note is open.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			color.Init(a.v.GetBool("no-color"))
		},
	}

	pf := root.PersistentFlags()
	pf.String("dir", ".", "workspace directory")
	pf.String("config", "", "config file (default <workspace>/.lockguard/config.yaml)")
	pf.String("log-level", "warn", "log level (debug, info, warn, error)")
	pf.String("log-format", "", "log format (json, text)")
	pf.Bool("json", false, "output in JSON format")
	pf.Bool("no-color", false, "disable colored output")
	pf.String("secret", "", "secret for commands that need one; prompted for when empty")

	a.v.SetEnvPrefix("LOCKGUARD")
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()
	_ = a.v.BindPFlags(pf)

	root.AddCommand(
		a.initCmd(),
		a.lockCmd(),
		a.secretCmd(),
		a.settingsCmd(),
		a.auditCmd(),
		a.watchCmd(),
		completionCmd(),
	)
	return root
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmtErr("%v", err)
		os.Exit(1)
	}
}

func (a *app) jsonOutput() bool {
	return a.v.GetBool("json")
}

// outputJSON prints v as indented JSON to the command's output.
func outputJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func fmtErr(format string, args ...any) {
	prefix := "lockguard: "
	if color.Enabled() {
		prefix = color.Error("lockguard:") + " "
	}
	fmt.Fprintf(os.Stderr, prefix+format+"\n", args...)
}
