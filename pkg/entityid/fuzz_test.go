package entityid_test

import (
	"testing"

	"github.com/lockguard/lockguard/pkg/entityid"
)

// Run with: go test -fuzz=FuzzValidate -fuzztime=30s ./pkg/entityid/
func FuzzValidate(f *testing.F) {
	f.Add("20240101010101-abcdefg")
	f.Add(" 20240101010101-ABCDEFG ")
	f.Add("")
	f.Add("2024-abc")
	f.Add("20240101010101-abc\x00defg")
	f.Add("２０２４０１０１０１０１０１-abcdefg")

	f.Fuzz(func(t *testing.T, id string) {
		norm, err := entityid.Validate(id)
		if err != nil {
			if entityid.Valid(id) {
				t.Errorf("Validate rejected %q but Valid accepted it", id)
			}
			return
		}
		if !entityid.Valid(norm) {
			t.Errorf("normalized id %q is not valid", norm)
		}
		if entityid.Normalize(norm) != norm {
			t.Errorf("Normalize is not idempotent for %q", norm)
		}
	})
}

func FuzzAncestorsFromPath(f *testing.F) {
	f.Add("/20240101010101-grand00/20240101010101-parent0/20240101010101-abcdefg.sy", "20240101010101-abcdefg")
	f.Add("", "")
	f.Add("////", "20240101010101-abcdefg")
	f.Add("/a/b/c.sy", "c")

	f.Fuzz(func(t *testing.T, path, docID string) {
		seen := make(map[string]bool)
		for _, id := range entityid.AncestorsFromPath(path, docID) {
			if !entityid.Valid(id) {
				t.Errorf("ancestor %q is not a valid id", id)
			}
			if seen[id] {
				t.Errorf("ancestor %q listed twice", id)
			}
			if id == entityid.Normalize(docID) {
				t.Errorf("document %q listed as its own ancestor", id)
			}
			seen[id] = true
		}
	})
}
