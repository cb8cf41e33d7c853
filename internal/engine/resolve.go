package engine

import (
	"context"

	"github.com/lockguard/lockguard/pkg/entityid"
	"github.com/lockguard/lockguard/pkg/model"
)

// ResolveLockState decides whether the document docID is locked, taking
// its own record, its ancestors' records and its notebook's record into
// account. The precedence depends on the surface asking:
//
//   - tree, or PreferNotebook: a locked notebook wins, then the document,
//     then the nearest locked ancestor.
//   - search and history: the nearest record decides, locked or not:
//     the document's own, else the nearest ancestor's, else the notebook's.
//   - everything else: the document, then the nearest locked ancestor,
//     then the notebook.
//
// Directory lookups run without the engine lock held; their failures
// read as "no relationship".
func (e *Engine) ResolveLockState(ctx context.Context, docID string, opts model.ResolveOptions) model.LockState {
	if !entityid.Valid(docID) {
		return model.LockState{}
	}
	docID = entityid.Normalize(docID)
	preferNotebook := opts.PreferNotebook || opts.Source == model.SourceTree
	nearest := opts.Source.Nearest()

	e.mu.Lock()
	hasDocLocks := e.reg.HasKind(model.KindDocument)
	hasNotebookLocks := e.reg.HasKind(model.KindNotebook)
	peekDirect := e.reg.Get(model.KindDocument, docID)
	needAncestors := hasDocLocks &&
		((nearest && peekDirect == nil) || (!nearest && !e.peekLockedLocked(peekDirect)))
	e.mu.Unlock()

	var ancestorIDs []string
	if needAncestors {
		ancestorIDs = e.dir.AncestorIDs(ctx, docID)
	}
	notebookID := ""
	if hasNotebookLocks {
		if entityid.Valid(opts.NotebookID) {
			notebookID = entityid.Normalize(opts.NotebookID)
			e.dir.SeedNotebook(docID, notebookID)
		} else {
			notebookID = e.dir.NotebookID(ctx, docID)
		}
	}

	fx := &effects{}
	e.mu.Lock()
	state := e.resolveLocked(docID, ancestorIDs, notebookID, nearest, preferNotebook, fx)
	e.mu.Unlock()
	_ = e.finish(ctx, fx)
	return state
}

func (e *Engine) resolveLocked(docID string, ancestorIDs []string, notebookID string, nearest, preferNotebook bool, fx *effects) model.LockState {
	direct := e.reg.Get(model.KindDocument, docID)
	directLocked := e.isLockedLocked(direct, fx)
	if direct != nil && e.reg.Get(model.KindDocument, docID) == nil {
		// An exhausted timer was just deleted.
		direct = nil
	}

	var ancestor, ancestorLocked *model.LockRecord
	for i := len(ancestorIDs) - 1; i >= 0; i-- {
		rec := e.reg.Get(model.KindDocument, ancestorIDs[i])
		if rec == nil {
			continue
		}
		locked := e.isLockedLocked(rec, fx)
		if e.reg.GetByKey(rec.Key()) == nil {
			continue
		}
		if ancestor == nil {
			ancestor = rec
		}
		if locked {
			ancestorLocked = rec
			break
		}
	}

	var notebook *model.LockRecord
	if entityid.Valid(notebookID) {
		notebook = e.reg.Get(model.KindNotebook, notebookID)
	}

	state := model.LockState{
		DocLock:      copyRecord(direct),
		NotebookLock: copyRecord(notebook),
	}
	state.NotebookID = notebookID
	if notebook != nil {
		state.NotebookTitle = notebook.DisplayTitle()
	}
	setAncestor := func(rec *model.LockRecord) {
		if rec != nil {
			state.AncestorID = rec.ID
			state.AncestorTitle = rec.DisplayTitle()
		}
	}
	decide := func(locked bool, rec *model.LockRecord, reason model.Reason) model.LockState {
		state.Locked = locked
		state.Lock = copyRecord(rec)
		state.Reason = reason
		return state
	}

	if nearest {
		switch {
		case direct != nil:
			return decide(directLocked, direct, model.ReasonDoc)
		case ancestor != nil:
			setAncestor(ancestor)
			return decide(e.isLockedLocked(ancestor, fx), ancestor, model.ReasonAncestor)
		case notebook != nil:
			return decide(e.isLockedLocked(notebook, fx), notebook, model.ReasonNotebook)
		}
		return decide(false, nil, model.ReasonNone)
	}

	notebookLocked := func() bool { return notebook != nil && e.isLockedLocked(notebook, fx) }
	if preferNotebook && notebookLocked() {
		return decide(true, notebook, model.ReasonNotebook)
	}
	if directLocked {
		return decide(true, direct, model.ReasonDoc)
	}
	if ancestorLocked != nil {
		setAncestor(ancestorLocked)
		return decide(true, ancestorLocked, model.ReasonAncestor)
	}
	if notebookLocked() {
		return decide(true, notebook, model.ReasonNotebook)
	}

	setAncestor(ancestor)
	switch {
	case direct != nil:
		return decide(false, direct, model.ReasonDoc)
	case ancestor != nil:
		return decide(false, ancestor, model.ReasonAncestor)
	case notebook != nil:
		return decide(false, notebook, model.ReasonNotebook)
	}
	return decide(false, nil, model.ReasonNone)
}

// HiddenInSearch reports whether docID should be left out of search
// results: the search-hide setting is on and the nearest record locks it.
func (e *Engine) HiddenInSearch(ctx context.Context, docID, notebookHint string) bool {
	e.mu.Lock()
	enabled := e.settings.SearchHideLockedEnabled
	e.mu.Unlock()
	if !enabled {
		return false
	}
	return e.ResolveLockState(ctx, docID, model.ResolveOptions{
		Source:     model.SourceSearch,
		NotebookID: notebookHint,
	}).Locked
}

func copyRecord(rec *model.LockRecord) *model.LockRecord {
	if rec == nil {
		return nil
	}
	c := *rec
	return &c
}
