package directory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/lockguard/lockguard/pkg/entityid"
	"github.com/lockguard/lockguard/pkg/errclass"
)

// Blocks reads the host's "blocks" table (id, box, path, content) from its
// SQLite database, read-only.
type Blocks struct {
	db *sql.DB
}

// OpenBlocks opens the host database at path in read-only mode.
func OpenBlocks(path string) (*Blocks, error) {
	dsn := "file:" + path + "?mode=ro&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errclass.ErrDirectoryNotFound.WithMessagef("open %s: %v", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errclass.ErrDirectoryNotFound.WithMessagef("open %s: %v", path, err)
	}
	return &Blocks{db: db}, nil
}

// Close closes the database.
func (b *Blocks) Close() error { return b.db.Close() }

func (b *Blocks) column(ctx context.Context, column, id string) (string, error) {
	if !entityid.Valid(id) {
		return "", nil
	}
	var v sql.NullString
	// column is one of a fixed set of names, never user input.
	q := fmt.Sprintf("SELECT %s FROM blocks WHERE id = ? LIMIT 1", column)
	err := b.db.QueryRowContext(ctx, q, entityid.Normalize(id)).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("query %s of %s: %w", column, id, err)
	}
	return v.String, nil
}

// NotebookID implements Directory.
func (b *Blocks) NotebookID(ctx context.Context, docID string) (string, error) {
	box, err := b.column(ctx, "box", docID)
	if err != nil || !entityid.Valid(box) {
		return "", err
	}
	return box, nil
}

// AncestorIDs implements Directory.
func (b *Blocks) AncestorIDs(ctx context.Context, docID string) ([]string, error) {
	path, err := b.column(ctx, "path", docID)
	if err != nil {
		return nil, err
	}
	return entityid.AncestorsFromPath(path, docID), nil
}

// Title implements Titler.
func (b *Blocks) Title(ctx context.Context, id string) (string, error) {
	return b.column(ctx, "content", id)
}

var (
	_ Directory = (*Blocks)(nil)
	_ Titler    = (*Blocks)(nil)
)
