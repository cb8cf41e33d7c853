// Package entityid validates and extracts host entity identifiers.
//
// Host ids are a 14-digit creation timestamp, a dash and a lowercase
// alphanumeric suffix, e.g. 20240101010101-abcdefg.
package entityid

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/lockguard/lockguard/pkg/errclass"
)

var (
	idRegex      = regexp.MustCompile(`(?i)^\d{14}-[a-z0-9]{7,}$`)
	embeddedID   = regexp.MustCompile(`(?i)\d{14}-[a-z0-9]{7,}`)
	docFileRegex = regexp.MustCompile(`(?i)(?:^|[\\/])(\d{14}-[a-z0-9]{7,})\.(?:syx|sy)$`)
)

// Normalize NFC-normalizes and trims an id.
func Normalize(id string) string {
	return strings.TrimSpace(norm.NFC.String(id))
}

// Valid reports whether id (after normalization) is a well-formed host id.
func Valid(id string) bool {
	return idRegex.MatchString(Normalize(id))
}

// Validate returns the normalized id or ErrIDInvalid.
func Validate(id string) (string, error) {
	n := Normalize(id)
	if n == "" {
		return "", errclass.ErrIDInvalid.WithMessage("id must not be empty")
	}
	if !idRegex.MatchString(n) {
		return "", errclass.ErrIDInvalid.WithMessagef("malformed id: %q", n)
	}
	return n, nil
}

// AncestorsFromPath returns the ids embedded in a storage path, in path
// order (outermost first, nearest last), deduplicated and without docID.
func AncestorsFromPath(path, docID string) []string {
	if path == "" {
		return nil
	}
	current := ""
	if Valid(docID) {
		current = Normalize(docID)
	}
	seen := make(map[string]struct{})
	var out []string
	for _, m := range embeddedID.FindAllString(path, -1) {
		if m == current {
			continue
		}
		if _, dup := seen[m]; dup {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out
}

// DocIDFromPath returns the document id of a "<id>.sy" storage path, or "".
func DocIDFromPath(path string) string {
	m := docFileRegex.FindStringSubmatch(strings.TrimSpace(path))
	if m == nil {
		return ""
	}
	return m[1]
}
