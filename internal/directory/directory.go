// Package directory answers document-to-notebook and document-to-ancestor
// questions for lock resolution. Lookups are best-effort: a failure reads
// as "no relationship".
package directory

import (
	"context"
	"sync"

	"github.com/lockguard/lockguard/pkg/entityid"
	"github.com/lockguard/lockguard/pkg/logging"
)

// Directory is the host lookup port.
type Directory interface {
	// NotebookID returns the notebook owning docID, or "" when unknown.
	NotebookID(ctx context.Context, docID string) (string, error)
	// AncestorIDs returns the ancestor documents of docID, nearest last.
	AncestorIDs(ctx context.Context, docID string) ([]string, error)
}

// Titler is implemented by directories that can name a document.
type Titler interface {
	Title(ctx context.Context, id string) (string, error)
}

// None knows no relationships.
type None struct{}

// NotebookID implements Directory.
func (None) NotebookID(context.Context, string) (string, error) { return "", nil }

// AncestorIDs implements Directory.
func (None) AncestorIDs(context.Context, string) ([]string, error) { return nil, nil }

// Cached memoizes a Directory for the process lifetime. Notebook lookups
// are cached only when they succeed; ancestor lookups are cached whatever
// the outcome. Document placement does not change within a session.
type Cached struct {
	dir Directory
	log *logging.Logger

	mu        sync.Mutex
	notebooks map[string]string
	ancestors map[string][]string
}

// NewCached wraps dir. A nil dir behaves like None.
func NewCached(dir Directory, log *logging.Logger) *Cached {
	if dir == nil {
		dir = None{}
	}
	if log == nil {
		log = logging.Global()
	}
	return &Cached{
		dir:       dir,
		log:       log,
		notebooks: make(map[string]string),
		ancestors: make(map[string][]string),
	}
}

// NotebookID returns the notebook owning docID, or "".
func (c *Cached) NotebookID(ctx context.Context, docID string) string {
	if !entityid.Valid(docID) {
		return ""
	}
	docID = entityid.Normalize(docID)

	c.mu.Lock()
	nb, ok := c.notebooks[docID]
	c.mu.Unlock()
	if ok {
		return nb
	}

	nb, err := c.dir.NotebookID(ctx, docID)
	if err != nil {
		c.log.Warn("notebook lookup failed", map[string]any{"doc_id": docID, "error": err.Error()})
		return ""
	}
	if !entityid.Valid(nb) {
		return ""
	}
	nb = entityid.Normalize(nb)
	c.SeedNotebook(docID, nb)
	return nb
}

// SeedNotebook records a known placement, e.g. from a UI hint.
func (c *Cached) SeedNotebook(docID, notebookID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notebooks[docID] = notebookID
}

// AncestorIDs returns the ancestors of docID, nearest last.
func (c *Cached) AncestorIDs(ctx context.Context, docID string) []string {
	if !entityid.Valid(docID) {
		return nil
	}
	docID = entityid.Normalize(docID)

	c.mu.Lock()
	ids, ok := c.ancestors[docID]
	c.mu.Unlock()
	if ok {
		return ids
	}

	ids, err := c.dir.AncestorIDs(ctx, docID)
	if err != nil {
		c.log.Warn("ancestor lookup failed", map[string]any{"doc_id": docID, "error": err.Error()})
		ids = nil
	}
	ids = filterAncestors(ids, docID)

	c.mu.Lock()
	c.ancestors[docID] = ids
	c.mu.Unlock()
	return ids
}

// Title returns the document title when the underlying directory can
// provide one.
func (c *Cached) Title(ctx context.Context, id string) string {
	t, ok := c.dir.(Titler)
	if !ok {
		return ""
	}
	title, err := t.Title(ctx, id)
	if err != nil {
		c.log.Warn("title lookup failed", map[string]any{"id": id, "error": err.Error()})
		return ""
	}
	return title
}

func filterAncestors(ids []string, docID string) []string {
	var out []string
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = entityid.Normalize(id)
		if id == docID || !entityid.Valid(id) {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// Static is a fixed in-memory directory. Paths takes precedence over
// Ancestors when both name a document.
type Static struct {
	Notebooks map[string]string   // doc id -> notebook id
	Ancestors map[string][]string // doc id -> ancestors, nearest last
	Paths     map[string]string   // doc id -> storage path
	Titles    map[string]string
	Err       error // returned by every lookup when set

	mu    sync.Mutex
	calls int
}

// NotebookID implements Directory.
func (s *Static) NotebookID(_ context.Context, docID string) (string, error) {
	s.count()
	if s.Err != nil {
		return "", s.Err
	}
	return s.Notebooks[docID], nil
}

// AncestorIDs implements Directory.
func (s *Static) AncestorIDs(_ context.Context, docID string) ([]string, error) {
	s.count()
	if s.Err != nil {
		return nil, s.Err
	}
	if p, ok := s.Paths[docID]; ok {
		return entityid.AncestorsFromPath(p, docID), nil
	}
	return s.Ancestors[docID], nil
}

// Title implements Titler.
func (s *Static) Title(_ context.Context, id string) (string, error) {
	if s.Err != nil {
		return "", s.Err
	}
	return s.Titles[id], nil
}

// Calls returns how many lookups reached the directory.
func (s *Static) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *Static) count() {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
}

var (
	_ Directory = None{}
	_ Directory = (*Static)(nil)
	_ Titler    = (*Static)(nil)
)
