package cli

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/lockguard/lockguard/internal/engine"
	"github.com/lockguard/lockguard/pkg/color"
	"github.com/lockguard/lockguard/pkg/countdown"
	"github.com/lockguard/lockguard/pkg/errclass"
	"github.com/lockguard/lockguard/pkg/model"
)

type lockView struct {
	Kind      model.EntityKind `json:"kind"`
	ID        string           `json:"id"`
	Title     string           `json:"title"`
	Policy    model.Policy     `json:"policy"`
	Locked    bool             `json:"locked"`
	Remaining string           `json:"remaining,omitempty"`
	Info      string           `json:"info"`
}

func toLockView(st engine.LockStatus) lockView {
	v := lockView{
		Kind:   st.Record.Kind,
		ID:     st.Record.ID,
		Title:  st.Record.DisplayTitle(),
		Policy: st.Record.Policy,
		Locked: st.Locked,
		Info:   st.Info,
	}
	if st.Remaining > 0 {
		v.Remaining = countdown.Format(st.Remaining)
	}
	return v
}

func (a *app) lockCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lock",
		Short: "Manage document and notebook locks",
	}
	cmd.AddCommand(
		a.lockAddCmd(),
		a.lockListCmd(),
		a.lockStatusCmd(),
		a.lockUnlockCmd(),
		a.lockRelockCmd(),
		a.lockRemoveCmd(),
	)
	return cmd
}

func (a *app) lockAddCmd() *cobra.Command {
	var (
		kind         string
		policy       string
		minutes      int
		title        string
		hint         string
		commonSecret string
		secretKind   string
		yes          bool
	)
	cmd := &cobra.Command{
		Use:   "add <id>",
		Short: "Lock a document or notebook",
		Long: `Lock a document or notebook.

Policies:
  always  - locked until unlocked, unlocks last for this session only
  trust   - an unlock opens a window of --minutes, persisted across restarts
  timer   - locked until the --minutes budget is used up, then the lock is
            deleted; cannot be removed before that (needs --yes)

Examples:
  lockguard lock add 20240101010101-abcdefg --policy trust --minutes 10
  lockguard lock add 20231212121212-notebk1 --kind notebook --common-secret <id>`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := parseKind(kind)
			if err != nil {
				return err
			}
			p, err := parsePolicy(policy)
			if err != nil {
				return err
			}
			req := model.LockRequest{
				Kind:           k,
				ID:             args[0],
				Title:          title,
				SecretKind:     model.ParseSecretKind(secretKind),
				CommonSecretID: commonSecret,
				Hint:           hint,
				Policy:         p,
				Confirmed:      yes,
			}
			switch p {
			case model.PolicyTrust:
				req.TrustMinutes = minutes
			case model.PolicyTimer:
				req.TimerMinutes = minutes
				if !req.Confirmed {
					req.Confirmed = confirm(cmd, "Timer locks cannot be removed until the budget runs out. Continue?")
				}
			}
			if commonSecret == "" {
				if req.Secret, err = a.readSecret(cmd, "Secret: "); err != nil {
					return err
				}
			}

			client, err := a.open(cmd)
			if err != nil {
				return err
			}
			defer client.Close(cmd.Context())

			rec, err := client.CreateLock(cmd.Context(), req)
			if errors.Is(err, errclass.ErrConfirmRequired) {
				return fmt.Errorf("%w (pass --yes to confirm)", err)
			}
			if err != nil {
				return err
			}
			if a.jsonOutput() {
				return outputJSON(cmd, rec)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Locked %s %s (%s)\n", rec.Kind, color.Info(rec.ID), color.Policy(rec.Policy))
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&kind, "kind", string(model.KindDocument), "entity kind (doc, notebook)")
	f.StringVar(&policy, "policy", string(model.PolicyAlways), "unlock policy (always, trust, timer)")
	f.IntVar(&minutes, "minutes", 0, "trust window or timer budget in minutes (default from config)")
	f.StringVar(&title, "title", "", "display title (default from the blocks database)")
	f.StringVar(&hint, "hint", "", "hint shown on the unlock prompt")
	f.StringVar(&commonSecret, "common-secret", "", "protect with a common secret id instead of a new secret")
	f.StringVar(&secretKind, "secret-kind", string(model.SecretPassword), "secret kind (password, pattern)")
	f.BoolVarP(&yes, "yes", "y", false, "confirm creating a timer lock")
	return cmd
}

func (a *app) lockListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List locks and their state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.open(cmd)
			if err != nil {
				return err
			}
			defer client.Close(cmd.Context())

			var views []lockView
			for _, st := range client.Status() {
				views = append(views, toLockView(st))
			}
			if a.jsonOutput() {
				if views == nil {
					views = []lockView{}
				}
				return outputJSON(cmd, views)
			}
			if len(views) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No locks.")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, color.Header("KIND\tID\tPOLICY\tSTATE\tINFO\tTITLE"))
			for _, v := range views {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
					v.Kind, v.ID, v.Policy, color.State(v.Locked), v.Info, v.Title)
			}
			return tw.Flush()
		},
	}
}

func (a *app) lockStatusCmd() *cobra.Command {
	var (
		source         string
		notebookHint   string
		preferNotebook bool
	)
	cmd := &cobra.Command{
		Use:   "status <doc-id>",
		Short: "Resolve the effective lock state of a document",
		Long: `Resolve whether a document is locked by its own lock, an ancestor
document or its notebook.

--source selects the precedence: tree puts a locked notebook first,
search and history take the nearest record, editor (and the default)
checks doc, ancestors, then notebook.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := parseSource(source)
			if err != nil {
				return err
			}
			client, err := a.open(cmd)
			if err != nil {
				return err
			}
			defer client.Close(cmd.Context())

			st := client.ResolveLockState(cmd.Context(), args[0], model.ResolveOptions{
				Source:         src,
				NotebookID:     notebookHint,
				PreferNotebook: preferNotebook,
			})
			if a.jsonOutput() {
				return outputJSON(cmd, st)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Document: %s\n", args[0])
			fmt.Fprintf(out, "State: %s\n", color.State(st.Locked))
			switch st.Reason {
			case model.ReasonDoc:
				fmt.Fprintln(out, "  Decided by: its own lock")
			case model.ReasonAncestor:
				fmt.Fprintf(out, "  Decided by: ancestor %s %s\n", st.AncestorID, color.Dim(st.AncestorTitle))
			case model.ReasonNotebook:
				fmt.Fprintf(out, "  Decided by: notebook %s %s\n", st.NotebookID, color.Dim(st.NotebookTitle))
			default:
				fmt.Fprintln(out, "  No lock applies.")
			}
			if st.Lock != nil {
				fmt.Fprintf(out, "  Policy: %s\n", color.Policy(st.Lock.Policy))
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&source, "source", "", "calling surface (editor, tree, search, history)")
	f.StringVar(&notebookHint, "notebook", "", "notebook id hint, skips the lookup")
	f.BoolVar(&preferNotebook, "prefer-notebook", false, "check the notebook before the document")
	return cmd
}

func (a *app) lockUnlockCmd() *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "unlock <id>",
		Short: "Unlock a document or notebook",
		Long: `Unlock a document or notebook with its secret.

Trust locks open for their window and stay open across restarts. Always
locks open for the running session only, so this is mostly useful
together with "lockguard watch" or the library API.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := parseKind(kind)
			if err != nil {
				return err
			}
			client, err := a.open(cmd)
			if err != nil {
				return err
			}
			defer client.Close(cmd.Context())

			rec, ok := client.Get(k, args[0])
			if !ok {
				return errclass.ErrLockNotFound.WithMessagef("no lock on %s %s", k, args[0])
			}
			if rec.Policy == model.PolicyTimer {
				if left := client.TimerRemaining(k, rec.ID); left > 0 {
					return errclass.ErrTimerActive.WithMessagef("timer lock has %s left", countdown.Format(left))
				}
			}
			secretText, err := a.readSecret(cmd, "Secret: ")
			if err != nil {
				return err
			}
			if !client.Unlock(cmd.Context(), k, rec.ID, secretText) {
				return errclass.ErrVerifyFailed.WithMessage("wrong secret")
			}
			out := cmd.OutOrStdout()
			if left := client.TrustRemaining(k, rec.ID); left > 0 {
				fmt.Fprintf(out, "Unlocked %s, trusted until %s\n",
					color.Info(rec.ID), time.Now().Add(left).Format("15:04:05"))
				return nil
			}
			fmt.Fprintf(out, "Unlocked %s\n", color.Info(rec.ID))
			return nil
		},
	}
	cmd.Flags().StringVar(&kind, "kind", string(model.KindDocument), "entity kind (doc, notebook)")
	return cmd
}

func (a *app) lockRelockCmd() *cobra.Command {
	var (
		kind string
		all  bool
	)
	cmd := &cobra.Command{
		Use:   "relock [id]",
		Short: "Close an open trust window or session unlock",
		Long: `Relock one entity, or every always and trust lock with --all.
Timer locks are not affected.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if all == (len(args) == 1) {
				return fmt.Errorf("give either an id or --all")
			}
			client, err := a.open(cmd)
			if err != nil {
				return err
			}
			defer client.Close(cmd.Context())

			out := cmd.OutOrStdout()
			if all {
				n := client.RelockAll(cmd.Context())
				fmt.Fprintf(out, "Relocked %d lock(s)\n", n)
				return nil
			}
			k, err := parseKind(kind)
			if err != nil {
				return err
			}
			if _, ok := client.Get(k, args[0]); !ok {
				return errclass.ErrLockNotFound.WithMessagef("no lock on %s %s", k, args[0])
			}
			if client.Relock(cmd.Context(), k, args[0]) {
				fmt.Fprintf(out, "Relocked %s\n", color.Info(args[0]))
			} else {
				fmt.Fprintf(out, "%s was not open\n", args[0])
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&kind, "kind", string(model.KindDocument), "entity kind (doc, notebook)")
	cmd.Flags().BoolVar(&all, "all", false, "relock every always and trust lock")
	return cmd
}

func (a *app) lockRemoveCmd() *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove a lock after verifying its secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := parseKind(kind)
			if err != nil {
				return err
			}
			secretText, err := a.readSecret(cmd, "Secret: ")
			if err != nil {
				return err
			}
			client, err := a.open(cmd)
			if err != nil {
				return err
			}
			defer client.Close(cmd.Context())

			if err := client.RemoveLock(cmd.Context(), k, args[0], secretText); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed lock on %s\n", color.Info(args[0]))
			return nil
		},
	}
	cmd.Flags().StringVar(&kind, "kind", string(model.KindDocument), "entity kind (doc, notebook)")
	return cmd
}
