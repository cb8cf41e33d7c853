// Package secret hashes and verifies lock secrets and keeps the common
// secret list tidy. The format is salt||utf8(secret) through SHA-256, both
// base64, which is what the host's persisted blobs already contain.
package secret

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lockguard/lockguard/pkg/errclass"
	"github.com/lockguard/lockguard/pkg/model"
)

// SaltSize is the length of a freshly generated salt.
const SaltSize = 16

// Verifier produces and checks secret hashes.
type Verifier interface {
	// Hash hashes secret with the base64 salt, or a fresh one when salt is "".
	Hash(secret, salt string) (saltOut, hash string, err error)
	// Verify reports whether secret matches the stored salt and hash.
	Verify(secret, salt, hash string) bool
}

// Hasher is the SHA-256 Verifier.
type Hasher struct {
	rand io.Reader
}

// NewHasher returns a Hasher drawing salts from crypto/rand.
func NewHasher() *Hasher {
	return &Hasher{rand: rand.Reader}
}

// NewHasherWithRand uses r for salts; tests pass a deterministic reader.
func NewHasherWithRand(r io.Reader) *Hasher {
	return &Hasher{rand: r}
}

// Hash implements Verifier.
func (h *Hasher) Hash(secret, salt string) (string, string, error) {
	var saltBytes []byte
	if salt == "" {
		saltBytes = make([]byte, SaltSize)
		if _, err := io.ReadFull(h.rand, saltBytes); err != nil {
			return "", "", fmt.Errorf("generate salt: %w", err)
		}
	} else {
		b, err := base64.StdEncoding.DecodeString(salt)
		if err != nil {
			return "", "", errclass.ErrSecretInvalid.WithMessagef("salt is not base64: %v", err)
		}
		saltBytes = b
	}

	sum := sha256.New()
	sum.Write(saltBytes)
	sum.Write([]byte(secret))
	return base64.StdEncoding.EncodeToString(saltBytes), base64.StdEncoding.EncodeToString(sum.Sum(nil)), nil
}

// Verify implements Verifier.
func (h *Hasher) Verify(secret, salt, hash string) bool {
	if salt == "" || hash == "" {
		return false
	}
	_, got, err := h.Hash(secret, salt)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(hash)) == 1
}

var patternRegex = regexp.MustCompile(`^[0-8](-[0-8])*$`)

// Validate checks that secret is usable for kind. Passwords only need to be
// non-empty; patterns are dash-joined indexes into the 3x3 pad.
func Validate(kind model.SecretKind, secret string) error {
	if secret == "" {
		return errclass.ErrSecretInvalid.WithMessage("secret must not be empty")
	}
	if kind == model.SecretPattern && !patternRegex.MatchString(secret) {
		return errclass.ErrSecretInvalid.WithMessage("pattern must be dash-separated pad indexes 0-8")
	}
	return nil
}

// NewCommonSecretID returns a fresh common secret id.
func NewCommonSecretID() string {
	return "cs_" + uuid.NewString()
}

// NormalizeCommonSecrets trims names and ids, drops entries missing an id,
// name, salt or hash, keeps the first entry of each id and orders the list
// by creation time. Missing timestamps take now.
func NormalizeCommonSecrets(list []model.CommonSecret, now time.Time) []model.CommonSecret {
	nowMs := now.UnixMilli()
	seen := make(map[string]struct{}, len(list))
	out := make([]model.CommonSecret, 0, len(list))
	for _, cs := range list {
		cs.ID = strings.TrimSpace(cs.ID)
		cs.Name = strings.TrimSpace(cs.Name)
		cs.SecretKind = model.ParseSecretKind(string(cs.SecretKind))
		if cs.ID == "" || cs.Name == "" || cs.Salt == "" || cs.Hash == "" {
			continue
		}
		if _, dup := seen[cs.ID]; dup {
			continue
		}
		seen[cs.ID] = struct{}{}
		if cs.CreatedAt <= 0 {
			cs.CreatedAt = nowMs
		}
		if cs.UpdatedAt <= 0 {
			cs.UpdatedAt = nowMs
		}
		out = append(out, cs)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt < out[j].CreatedAt })
	return out
}
