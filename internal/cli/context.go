package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/lockguard/lockguard/internal/workspace"
	"github.com/lockguard/lockguard/pkg/config"
	"github.com/lockguard/lockguard/pkg/errclass"
	"github.com/lockguard/lockguard/pkg/lockguard"
	"github.com/lockguard/lockguard/pkg/logging"
	"github.com/lockguard/lockguard/pkg/model"
)

// loadConfig finds the workspace from --dir and reads its config, or the
// file named by --config.
func (a *app) loadConfig() (*workspace.Workspace, *config.Config, error) {
	ws, err := workspace.Discover(a.v.GetString("dir"))
	if err != nil {
		return nil, nil, err
	}
	var cfg *config.Config
	if path := a.v.GetString("config"); path != "" {
		cfg, err = config.LoadFile(path)
	} else {
		cfg, err = config.Load(ws.Root)
	}
	if err != nil {
		return nil, nil, err
	}
	return ws, cfg, nil
}

// open loads the workspace engine. Callers must Close the client so timer
// progress is flushed.
func (a *app) open(cmd *cobra.Command) (*lockguard.Client, error) {
	ws, cfg, err := a.loadConfig()
	if err != nil {
		return nil, err
	}
	format := cfg.Logging.Format
	if f := a.v.GetString("log-format"); f != "" {
		format = f
	}
	log := logging.New(a.v.GetString("log-level"), format)
	log.SetOutput(cmd.ErrOrStderr())

	return lockguard.Open(cmd.Context(), ws.Root, lockguard.Options{Config: cfg, Logger: log})
}

// readSecret returns --secret / LOCKGUARD_SECRET when set. Otherwise it
// prompts without echo on a terminal, or reads one line from stdin.
func (a *app) readSecret(cmd *cobra.Command, prompt string) (string, error) {
	if s := a.v.GetString("secret"); s != "" {
		return s, nil
	}
	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(cmd.ErrOrStderr(), prompt)
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", fmt.Errorf("read secret: %w", err)
		}
		return string(b), nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read secret: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// confirm asks a yes/no question on a terminal. Non-interactive input
// never confirms.
func confirm(cmd *cobra.Command, question string) bool {
	f, ok := cmd.InOrStdin().(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return false
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "%s [y/N] ", question)
	line, _ := bufio.NewReader(f).ReadString('\n')
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

func parseKind(s string) (model.EntityKind, error) {
	k := model.EntityKind(strings.ToLower(s))
	if !k.Valid() {
		return "", errclass.ErrKindInvalid.WithMessagef("unknown kind %q (want doc or notebook)", s)
	}
	return k, nil
}

func parsePolicy(s string) (model.Policy, error) {
	switch p := model.Policy(strings.ToLower(s)); p {
	case model.PolicyAlways, model.PolicyTrust, model.PolicyTimer:
		return p, nil
	default:
		return "", fmt.Errorf("unknown policy %q (want always, trust or timer)", s)
	}
}

func parseSource(s string) (model.Source, error) {
	switch src := model.Source(strings.ToLower(s)); src {
	case model.SourceDefault, model.SourceEditor, model.SourceTree, model.SourceSearch, model.SourceHistory:
		return src, nil
	default:
		return "", fmt.Errorf("unknown source %q (want editor, tree, search or history)", s)
	}
}
