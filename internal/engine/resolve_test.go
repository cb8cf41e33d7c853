package engine_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lockguard/lockguard/internal/engine"
	"github.com/lockguard/lockguard/pkg/model"
)

func treeHarness(t *testing.T) *harness {
	h := newHarness(t)
	h.dir.Notebooks = map[string]string{
		docID:   notebookID,
		nbDocID: notebookID,
	}
	h.dir.Paths = map[string]string{
		docID: "/" + grandID + "/" + parentID + "/" + docID + ".sy",
	}
	h.dir.Titles = map[string]string{notebookID: "Journal"}
	h.open()
	return h
}

func TestResolve_NotebookScenario(t *testing.T) {
	h := treeHarness(t)
	h.lock(model.KindNotebook, notebookID, model.PolicyAlways)

	st := h.eng.ResolveLockState(h.ctx, nbDocID, model.ResolveOptions{Source: model.SourceTree})
	assert.True(t, st.Locked)
	assert.Equal(t, model.ReasonNotebook, st.Reason)
	assert.Equal(t, notebookID, st.NotebookID)
	assert.Equal(t, "Journal", st.NotebookTitle)

	require.True(t, h.eng.Unlock(h.ctx, model.KindNotebook, notebookID, password))
	st = h.eng.ResolveLockState(h.ctx, nbDocID, model.ResolveOptions{Source: model.SourceTree})
	assert.False(t, st.Locked)
	assert.Equal(t, model.ReasonNotebook, st.Reason, "fallback still names the record")
}

func TestResolve_TreePrefersLockedNotebook(t *testing.T) {
	h := treeHarness(t)
	h.lock(model.KindNotebook, notebookID, model.PolicyAlways)
	h.lock(model.KindDocument, docID, model.PolicyAlways)

	st := h.eng.ResolveLockState(h.ctx, docID, model.ResolveOptions{Source: model.SourceTree})
	assert.True(t, st.Locked)
	assert.Equal(t, model.ReasonNotebook, st.Reason)
	require.NotNil(t, st.DocLock)
	assert.Equal(t, docID, st.DocLock.ID)

	st = h.eng.ResolveLockState(h.ctx, docID, model.ResolveOptions{Source: model.SourceEditor})
	assert.True(t, st.Locked)
	assert.Equal(t, model.ReasonDoc, st.Reason, "the document wins off the tree")

	st = h.eng.ResolveLockState(h.ctx, docID, model.ResolveOptions{Source: model.SourceEditor, PreferNotebook: true})
	assert.Equal(t, model.ReasonNotebook, st.Reason)
}

func TestResolve_TreeUnlockedDocInLockedNotebook(t *testing.T) {
	h := treeHarness(t)
	h.lock(model.KindNotebook, notebookID, model.PolicyAlways)
	h.lock(model.KindDocument, docID, model.PolicyAlways)
	require.True(t, h.eng.Unlock(h.ctx, model.KindDocument, docID, password))

	st := h.eng.ResolveLockState(h.ctx, docID, model.ResolveOptions{Source: model.SourceTree})
	assert.True(t, st.Locked)
	assert.Equal(t, model.ReasonNotebook, st.Reason)
}

func TestResolve_NearestAncestor(t *testing.T) {
	h := treeHarness(t)
	h.lock(model.KindDocument, grandID, model.PolicyAlways)

	st := h.eng.ResolveLockState(h.ctx, docID, model.ResolveOptions{Source: model.SourceSearch})
	assert.True(t, st.Locked)
	assert.Equal(t, model.ReasonAncestor, st.Reason)
	assert.Equal(t, grandID, st.AncestorID)
	assert.Nil(t, st.DocLock)
}

func TestResolve_NearestRecordDecidesEvenWhenOpen(t *testing.T) {
	h := treeHarness(t)
	h.lock(model.KindDocument, grandID, model.PolicyAlways)
	h.lock(model.KindDocument, parentID, model.PolicyAlways)
	require.True(t, h.eng.Unlock(h.ctx, model.KindDocument, parentID, password))

	st := h.eng.ResolveLockState(h.ctx, docID, model.ResolveOptions{Source: model.SourceHistory})
	assert.False(t, st.Locked)
	assert.Equal(t, model.ReasonAncestor, st.Reason)
	assert.Equal(t, parentID, st.AncestorID)

	st = h.eng.ResolveLockState(h.ctx, docID, model.ResolveOptions{Source: model.SourceEditor})
	assert.True(t, st.Locked, "editor looks past the open parent")
	assert.Equal(t, grandID, st.AncestorID)
}

func TestResolve_NearestOwnRecordShadowsAncestors(t *testing.T) {
	h := treeHarness(t)
	h.lock(model.KindDocument, grandID, model.PolicyAlways)
	h.lock(model.KindDocument, docID, model.PolicyAlways)
	require.True(t, h.eng.Unlock(h.ctx, model.KindDocument, docID, password))
	calls := h.dir.Calls()

	st := h.eng.ResolveLockState(h.ctx, docID, model.ResolveOptions{Source: model.SourceSearch})
	assert.False(t, st.Locked)
	assert.Equal(t, model.ReasonDoc, st.Reason)
	assert.Equal(t, calls, h.dir.Calls(), "ancestors are not consulted")

	st = h.eng.ResolveLockState(h.ctx, docID, model.ResolveOptions{})
	assert.True(t, st.Locked)
	assert.Equal(t, model.ReasonAncestor, st.Reason)
}

func TestResolve_NearestFallsBackToNotebook(t *testing.T) {
	h := treeHarness(t)
	h.lock(model.KindNotebook, notebookID, model.PolicyTrust)

	st := h.eng.ResolveLockState(h.ctx, docID, model.ResolveOptions{Source: model.SourceSearch})
	assert.True(t, st.Locked)
	assert.Equal(t, model.ReasonNotebook, st.Reason)
}

func TestResolve_DefaultOrder(t *testing.T) {
	h := treeHarness(t)
	h.lock(model.KindNotebook, notebookID, model.PolicyAlways)

	st := h.eng.ResolveLockState(h.ctx, docID, model.ResolveOptions{})
	assert.True(t, st.Locked)
	assert.Equal(t, model.ReasonNotebook, st.Reason)

	h.lock(model.KindDocument, parentID, model.PolicyAlways)
	st = h.eng.ResolveLockState(h.ctx, docID, model.ResolveOptions{})
	assert.Equal(t, model.ReasonAncestor, st.Reason)
	assert.Equal(t, parentID, st.AncestorID)
}

func TestResolve_FallbackUnlocked(t *testing.T) {
	h := treeHarness(t)
	h.lock(model.KindDocument, docID, model.PolicyAlways)
	h.lock(model.KindDocument, parentID, model.PolicyAlways)
	require.True(t, h.eng.Unlock(h.ctx, model.KindDocument, docID, password))
	require.True(t, h.eng.Unlock(h.ctx, model.KindDocument, parentID, password))

	st := h.eng.ResolveLockState(h.ctx, docID, model.ResolveOptions{})
	assert.False(t, st.Locked)
	assert.Equal(t, model.ReasonDoc, st.Reason)
	require.NotNil(t, st.Lock)
	assert.Equal(t, docID, st.Lock.ID)
	assert.Equal(t, parentID, st.AncestorID)
}

func TestResolve_NoLocks(t *testing.T) {
	h := treeHarness(t)
	st := h.eng.ResolveLockState(h.ctx, docID, model.ResolveOptions{Source: model.SourceTree})
	assert.Equal(t, model.LockState{}, st)
	assert.Zero(t, h.dir.Calls(), "no lookups without records")
}

func TestResolve_InvalidID(t *testing.T) {
	h := treeHarness(t)
	h.lock(model.KindNotebook, notebookID, model.PolicyAlways)
	st := h.eng.ResolveLockState(h.ctx, "not-an-id", model.ResolveOptions{Source: model.SourceTree})
	assert.False(t, st.Locked)
	assert.Nil(t, st.Lock)
}

func TestResolve_NotebookHintSkipsLookup(t *testing.T) {
	h := newHarness(t)
	h.open()
	h.lock(model.KindNotebook, notebookID, model.PolicyAlways)

	st := h.eng.ResolveLockState(h.ctx, docID, model.ResolveOptions{Source: model.SourceTree, NotebookID: notebookID})
	assert.True(t, st.Locked)
	assert.Zero(t, h.dir.Calls())

	st = h.eng.ResolveLockState(h.ctx, docID, model.ResolveOptions{Source: model.SourceTree})
	assert.True(t, st.Locked, "hint was cached")
	assert.Zero(t, h.dir.Calls())
}

func TestResolve_LookupFailureMeansNoRelationship(t *testing.T) {
	h := newHarness(t)
	h.dir.Err = errors.New("database is locked")
	h.open()
	h.lock(model.KindNotebook, notebookID, model.PolicyAlways)
	h.lock(model.KindDocument, parentID, model.PolicyAlways)

	st := h.eng.ResolveLockState(h.ctx, docID, model.ResolveOptions{Source: model.SourceTree})
	assert.False(t, st.Locked)
	assert.Empty(t, st.NotebookID)
}

func TestResolve_ExpiredTimerAncestorIsIgnored(t *testing.T) {
	h := treeHarness(t)
	h.lock(model.KindDocument, parentID, model.PolicyTimer)
	h.clk.Advance(61 * time.Second)

	st := h.eng.ResolveLockState(h.ctx, docID, model.ResolveOptions{Source: model.SourceSearch})
	assert.False(t, st.Locked)
	assert.Equal(t, model.ReasonNone, st.Reason)
	assert.Empty(t, h.eng.Locks())
}

func TestHiddenInSearch(t *testing.T) {
	h := treeHarness(t)
	h.lock(model.KindDocument, grandID, model.PolicyAlways)
	assert.False(t, h.eng.HiddenInSearch(h.ctx, docID, ""), "setting off by default")

	on := true
	_, err := h.eng.UpdateSettings(h.ctx, engine.SettingsUpdate{SearchHideLockedEnabled: &on})
	require.NoError(t, err)
	assert.True(t, h.eng.HiddenInSearch(h.ctx, docID, ""))

	require.True(t, h.eng.Unlock(h.ctx, model.KindDocument, grandID, password))
	assert.False(t, h.eng.HiddenInSearch(h.ctx, docID, ""))
}
