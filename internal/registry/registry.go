// Package registry is the in-memory index over persisted lock records.
//
// A Registry is not goroutine-safe; the engine guards it with its own lock.
package registry

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/lockguard/lockguard/pkg/errclass"
	"github.com/lockguard/lockguard/pkg/model"
)

// Registry holds at most one record per (kind, id), in insertion order.
type Registry struct {
	order   []model.LockKey
	records map[model.LockKey]*model.LockRecord
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{records: make(map[model.LockKey]*model.LockRecord)}
}

// DecodeResult reports what Decode had to discard.
type DecodeResult struct {
	Loaded     int
	Dropped    int // entries with invalid ids or of a non-object shape
	Duplicates int // earlier entries replaced by a later one for the same key
}

// Decode builds a registry from a "locks" blob, normalizing every entry.
// A blob that is not a JSON array yields an empty registry and
// ErrBlobCorrupt; the registry is still usable.
func Decode(data []byte, now time.Time) (*Registry, DecodeResult, error) {
	r := New()
	var res DecodeResult
	if len(data) == 0 {
		return r, res, nil
	}
	items, ok := decodeList(data)
	if !ok {
		return r, res, errclass.ErrBlobCorrupt.WithMessage("locks blob is not a list")
	}
	for _, m := range items {
		if m == nil {
			res.Dropped++
			continue
		}
		rec, ok := normalizeRecord(m, now)
		if !ok {
			res.Dropped++
			continue
		}
		if r.Upsert(rec) {
			res.Duplicates++
		}
	}
	res.Loaded = r.Len()
	return r, res, nil
}

// Encode serializes every record in order as a JSON array.
func (r *Registry) Encode() ([]byte, error) {
	list := r.All()
	if list == nil {
		list = []model.LockRecord{}
	}
	data, err := json.Marshal(list)
	if err != nil {
		return nil, fmt.Errorf("encode locks: %w", err)
	}
	return data, nil
}

// Get returns the live record for (kind, id). Callers holding the engine
// lock may mutate it in place.
func (r *Registry) Get(kind model.EntityKind, id string) *model.LockRecord {
	return r.records[model.MakeKey(kind, id)]
}

// GetByKey returns the live record for a composite key.
func (r *Registry) GetByKey(key model.LockKey) *model.LockRecord {
	return r.records[key]
}

// Upsert stores a copy of rec, replacing any record with the same key.
// It reports whether a record was replaced.
func (r *Registry) Upsert(rec model.LockRecord) bool {
	key := rec.Key()
	stored := rec
	if _, exists := r.records[key]; exists {
		r.records[key] = &stored
		return true
	}
	r.records[key] = &stored
	r.order = append(r.order, key)
	return false
}

// Remove deletes (kind, id) and returns the removed record.
func (r *Registry) Remove(kind model.EntityKind, id string) (model.LockRecord, bool) {
	key := model.MakeKey(kind, id)
	rec, ok := r.records[key]
	if !ok {
		return model.LockRecord{}, false
	}
	delete(r.records, key)
	for i, k := range r.order {
		if k == key {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return *rec, true
}

// All returns copies of every record in insertion order.
func (r *Registry) All() []model.LockRecord {
	if len(r.order) == 0 {
		return nil
	}
	out := make([]model.LockRecord, 0, len(r.order))
	for _, k := range r.order {
		out = append(out, *r.records[k])
	}
	return out
}

// Keys returns the composite keys in insertion order.
func (r *Registry) Keys() []model.LockKey {
	return append([]model.LockKey(nil), r.order...)
}

// Len returns the number of records.
func (r *Registry) Len() int {
	return len(r.order)
}

// HasKind reports whether any record of kind exists.
func (r *Registry) HasKind(kind model.EntityKind) bool {
	for _, k := range r.order {
		if r.records[k].Kind == kind {
			return true
		}
	}
	return false
}

// WithPolicy returns the live records using policy p.
func (r *Registry) WithPolicy(p model.Policy) []*model.LockRecord {
	var out []*model.LockRecord
	for _, k := range r.order {
		if rec := r.records[k]; rec.Policy == p {
			out = append(out, rec)
		}
	}
	return out
}

// Counts returns the number of records per policy.
func (r *Registry) Counts() map[model.Policy]int {
	out := make(map[model.Policy]int, 3)
	for _, rec := range r.records {
		out[rec.Policy]++
	}
	return out
}
