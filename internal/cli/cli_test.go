package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lockguard/lockguard/internal/workspace"
	"github.com/lockguard/lockguard/pkg/config"
	"github.com/lockguard/lockguard/pkg/errclass"
	"github.com/lockguard/lockguard/pkg/model"
)

const (
	testDoc    = "20240101010101-abcdefg"
	testSecret = "hunter22"
)

// execute runs one lockguard invocation against dir with stdin as input.
func execute(t *testing.T, dir, stdin string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(append([]string{"--dir", dir, "--no-color"}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func mustExecute(t *testing.T, dir string, args ...string) string {
	t.Helper()
	out, err := execute(t, dir, "", args...)
	require.NoError(t, err, "lockguard %s", strings.Join(args, " "))
	return out
}

func setupWorkspace(t *testing.T) string {
	dir := t.TempDir()
	mustExecute(t, dir, "init")
	return dir
}

func TestRootCommand_Help(t *testing.T) {
	out := mustExecute(t, t.TempDir(), "--help")
	assert.Contains(t, out, "trust windows")
}

func TestLockAdd_HelpDescribesTimer(t *testing.T) {
	out := mustExecute(t, t.TempDir(), "lock", "add", "--help")
	assert.Contains(t, out, "locked until the --minutes budget is used up")
	assert.NotContains(t, out, "stays open")
}

func TestCommands_WorkspaceInUse(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("advisory locks are not enforced on windows")
	}
	dir := setupWorkspace(t)
	ws, err := workspace.Discover(dir)
	require.NoError(t, err)
	held, err := ws.LockEngine()
	require.NoError(t, err)

	_, err = execute(t, dir, "", "lock", "add", testDoc, "--secret", testSecret)
	assert.ErrorIs(t, err, errclass.ErrStoreUnavailable)

	require.NoError(t, held.Close())
	mustExecute(t, dir, "lock", "add", testDoc, "--secret", testSecret)
}

func TestInitCommand(t *testing.T) {
	dir := t.TempDir()
	out := mustExecute(t, dir, "init")
	assert.Contains(t, out, "Initialized lockguard workspace")

	out = mustExecute(t, dir, "--json", "init")
	var res map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.NotEmpty(t, res["workspace_id"])
	assert.EqualValues(t, 1, res["format_version"])
}

func TestInitCommand_SQLiteStore(t *testing.T) {
	dir := t.TempDir()
	mustExecute(t, dir, "init", "--store", "sqlite")

	cfg, err := config.Load(dir)
	require.NoError(t, err)
	assert.Equal(t, config.BackendSQLite, cfg.Store.Backend)

	mustExecute(t, dir, "lock", "add", testDoc, "--secret", testSecret)
	assert.Contains(t, mustExecute(t, dir, "lock", "list"), testDoc)
}

func TestInitCommand_UnknownStore(t *testing.T) {
	_, err := execute(t, t.TempDir(), "", "init", "--store", "etcd")
	assert.ErrorIs(t, err, errclass.ErrConfigInvalid)
}

func TestCommands_OutsideWorkspace(t *testing.T) {
	_, err := execute(t, t.TempDir(), "", "lock", "list")
	assert.ErrorIs(t, err, errclass.ErrWorkspaceNotFound)
}

func TestLockAdd_ReadsSecretFromStdin(t *testing.T) {
	dir := setupWorkspace(t)
	out, err := execute(t, dir, testSecret+"\n", "lock", "add", testDoc, "--title", "Diary")
	require.NoError(t, err)
	assert.Contains(t, out, "Locked doc "+testDoc)

	out = mustExecute(t, dir, "lock", "list")
	assert.Contains(t, out, "Diary")
	assert.Contains(t, out, "locked")

	_, err = execute(t, dir, "", "lock", "unlock", testDoc, "--secret", "nope")
	assert.ErrorIs(t, err, errclass.ErrVerifyFailed)
}

func TestLockAdd_Validation(t *testing.T) {
	dir := setupWorkspace(t)

	_, err := execute(t, dir, "", "lock", "add", testDoc, "--kind", "folder", "--secret", testSecret)
	assert.ErrorIs(t, err, errclass.ErrKindInvalid)

	_, err = execute(t, dir, "", "lock", "add", "not-an-id", "--secret", testSecret)
	assert.ErrorIs(t, err, errclass.ErrIDInvalid)

	_, err = execute(t, dir, "", "lock", "add", testDoc, "--policy", "forever", "--secret", testSecret)
	assert.Error(t, err)
}

func TestLockList_JSON(t *testing.T) {
	dir := setupWorkspace(t)
	assert.Contains(t, mustExecute(t, dir, "lock", "list"), "No locks.")

	mustExecute(t, dir, "lock", "add", testDoc, "--policy", "trust", "--minutes", "5", "--secret", testSecret)
	out := mustExecute(t, dir, "--json", "lock", "list")

	var views []lockView
	require.NoError(t, json.Unmarshal([]byte(out), &views))
	require.Len(t, views, 1)
	assert.Equal(t, model.PolicyTrust, views[0].Policy)
	assert.True(t, views[0].Locked)
}

func TestTrustUnlockAndRelock(t *testing.T) {
	dir := setupWorkspace(t)
	mustExecute(t, dir, "lock", "add", testDoc, "--policy", "trust", "--secret", testSecret)

	out := mustExecute(t, dir, "lock", "unlock", testDoc, "--secret", testSecret)
	assert.Contains(t, out, "trusted until")

	out = mustExecute(t, dir, "lock", "list")
	assert.Contains(t, out, "unlocked")

	out = mustExecute(t, dir, "lock", "relock", testDoc)
	assert.Contains(t, out, "Relocked "+testDoc)

	out = mustExecute(t, dir, "lock", "relock", testDoc)
	assert.Contains(t, out, "was not open")
}

func TestRelock_All(t *testing.T) {
	dir := setupWorkspace(t)
	mustExecute(t, dir, "lock", "add", testDoc, "--policy", "trust", "--secret", testSecret)
	mustExecute(t, dir, "lock", "unlock", testDoc, "--secret", testSecret)

	out := mustExecute(t, dir, "lock", "relock", "--all")
	assert.Contains(t, out, "Relocked 1 lock(s)")

	_, err := execute(t, dir, "", "lock", "relock")
	assert.Error(t, err)
}

func TestUnlock_MissingLock(t *testing.T) {
	dir := setupWorkspace(t)
	_, err := execute(t, dir, "", "lock", "unlock", testDoc, "--secret", testSecret)
	assert.ErrorIs(t, err, errclass.ErrLockNotFound)
}

func TestTimerLock_NeedsConfirmation(t *testing.T) {
	dir := setupWorkspace(t)

	_, err := execute(t, dir, "", "lock", "add", testDoc, "--policy", "timer", "--secret", testSecret)
	assert.ErrorIs(t, err, errclass.ErrConfirmRequired)

	mustExecute(t, dir, "lock", "add", testDoc, "--policy", "timer", "--minutes", "5", "--yes", "--secret", testSecret)

	_, err = execute(t, dir, "", "lock", "unlock", testDoc, "--secret", testSecret)
	assert.ErrorIs(t, err, errclass.ErrTimerActive)

	_, err = execute(t, dir, "", "lock", "remove", testDoc, "--secret", testSecret)
	assert.ErrorIs(t, err, errclass.ErrTimerActive)

	assert.Contains(t, mustExecute(t, dir, "lock", "list"), "left")
}

func TestLockRemove(t *testing.T) {
	dir := setupWorkspace(t)
	mustExecute(t, dir, "lock", "add", testDoc, "--secret", testSecret)

	_, err := execute(t, dir, "", "lock", "remove", testDoc, "--secret", "wrong")
	assert.ErrorIs(t, err, errclass.ErrVerifyFailed)

	out := mustExecute(t, dir, "lock", "remove", testDoc, "--secret", testSecret)
	assert.Contains(t, out, "Removed lock")
	assert.Contains(t, mustExecute(t, dir, "lock", "list"), "No locks.")
}

func TestLockStatus(t *testing.T) {
	dir := setupWorkspace(t)
	out := mustExecute(t, dir, "lock", "status", testDoc)
	assert.Contains(t, out, "No lock applies.")

	mustExecute(t, dir, "lock", "add", testDoc, "--secret", testSecret)
	out = mustExecute(t, dir, "lock", "status", testDoc, "--source", "search")
	assert.Contains(t, out, "State: locked")
	assert.Contains(t, out, "its own lock")

	out = mustExecute(t, dir, "--json", "lock", "status", testDoc)
	var st model.LockState
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	assert.True(t, st.Locked)
	assert.Equal(t, model.ReasonDoc, st.Reason)

	_, err := execute(t, dir, "", "lock", "status", testDoc, "--source", "sidebar")
	assert.Error(t, err)
}

func TestCommonSecrets(t *testing.T) {
	dir := setupWorkspace(t)
	out := mustExecute(t, dir, "--json", "secret", "add", "household", "--secret", testSecret)
	var created map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &created))
	id, _ := created["id"].(string)
	require.NotEmpty(t, id)

	assert.Contains(t, mustExecute(t, dir, "secret", "list"), "household")

	mustExecute(t, dir, "lock", "add", testDoc, "--common-secret", id)
	mustExecute(t, dir, "secret", "remove", id, "--secret", testSecret)
	assert.Contains(t, mustExecute(t, dir, "secret", "list"), "No common secrets.")

	out = mustExecute(t, dir, "lock", "unlock", testDoc, "--secret", testSecret)
	assert.Contains(t, out, "Unlocked", "the lock copied the secret")
}

func TestSettings(t *testing.T) {
	dir := setupWorkspace(t)
	out := mustExecute(t, dir, "settings", "show")
	assert.Contains(t, out, "tree-countdown: true")
	assert.Contains(t, out, "search-hide: false")

	mustExecute(t, dir, "settings", "set", "search-hide", "true")
	assert.Contains(t, mustExecute(t, dir, "settings", "show"), "search-hide: true")

	_, err := execute(t, dir, "", "settings", "set", "theme", "true")
	assert.Error(t, err)
	_, err = execute(t, dir, "", "settings", "set", "search-hide", "maybe")
	assert.Error(t, err)
}

func TestAuditCommands(t *testing.T) {
	dir := setupWorkspace(t)
	mustExecute(t, dir, "lock", "add", testDoc, "--secret", testSecret)
	mustExecute(t, dir, "lock", "unlock", testDoc, "--secret", testSecret)

	assert.Contains(t, mustExecute(t, dir, "audit", "verify"), "(2 records)")

	out := mustExecute(t, dir, "audit", "log")
	assert.Contains(t, out, string(model.EventTypeLockCreate))
	assert.Contains(t, out, string(model.EventTypeUnlock))
}

func TestCompletion(t *testing.T) {
	out := mustExecute(t, t.TempDir(), "completion", "bash")
	assert.Contains(t, out, "lockguard")

	_, err := execute(t, t.TempDir(), "", "completion", "tcsh")
	assert.Error(t, err)
}

func TestFormatEvent(t *testing.T) {
	at := time.Date(2024, 1, 1, 10, 0, 0, 0, time.Local)
	line := formatEvent(at, model.Event{
		Type:      model.EventCountdownTick,
		Key:       model.MakeKey(model.KindDocument, testDoc),
		Remaining: 90 * time.Second,
	})
	assert.Contains(t, line, "10:00:00")
	assert.Contains(t, line, "countdown.tick")
	assert.Contains(t, line, "1m 30s")

	line = formatEvent(at, model.Event{Type: model.EventTrustExpired})
	assert.Contains(t, line, "expired")
}

func TestParseHelpers(t *testing.T) {
	k, err := parseKind("Notebook")
	require.NoError(t, err)
	assert.Equal(t, model.KindNotebook, k)

	p, err := parsePolicy("TIMER")
	require.NoError(t, err)
	assert.Equal(t, model.PolicyTimer, p)

	src, err := parseSource("")
	require.NoError(t, err)
	assert.Equal(t, model.SourceDefault, src)
}
