package secret_test

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lockguard/lockguard/internal/secret"
	"github.com/lockguard/lockguard/pkg/errclass"
	"github.com/lockguard/lockguard/pkg/model"
)

func TestHasher_FormatMatchesStoredBlobs(t *testing.T) {
	saltBytes := bytes.Repeat([]byte{0x01}, secret.SaltSize)
	h := secret.NewHasherWithRand(bytes.NewReader(saltBytes))

	salt, hash, err := h.Hash("hunter2", "")
	require.NoError(t, err)
	assert.Equal(t, base64.StdEncoding.EncodeToString(saltBytes), salt)

	sum := sha256.Sum256(append(append([]byte{}, saltBytes...), []byte("hunter2")...))
	assert.Equal(t, base64.StdEncoding.EncodeToString(sum[:]), hash)
}

func TestHasher_Verify(t *testing.T) {
	h := secret.NewHasher()
	salt, hash, err := h.Hash("пароль", "")
	require.NoError(t, err)

	assert.True(t, h.Verify("пароль", salt, hash))
	assert.False(t, h.Verify("wrong", salt, hash))
	assert.False(t, h.Verify("пароль", "", hash))
	assert.False(t, h.Verify("пароль", "%%%", hash))
	assert.False(t, h.Verify("пароль", salt, ""))
}

func TestHasher_ReusesSalt(t *testing.T) {
	h := secret.NewHasher()
	salt, hash, err := h.Hash("x", "")
	require.NoError(t, err)
	salt2, hash2, err := h.Hash("x", salt)
	require.NoError(t, err)
	assert.Equal(t, salt, salt2)
	assert.Equal(t, hash, hash2)

	_, _, err = h.Hash("x", "not base64!")
	require.ErrorIs(t, err, errclass.ErrSecretInvalid)
}

func TestValidate(t *testing.T) {
	assert.NoError(t, secret.Validate(model.SecretPassword, "a"))
	assert.ErrorIs(t, secret.Validate(model.SecretPassword, ""), errclass.ErrSecretInvalid)
	assert.NoError(t, secret.Validate(model.SecretPattern, "0-4-8"))
	assert.ErrorIs(t, secret.Validate(model.SecretPattern, "0-9"), errclass.ErrSecretInvalid)
	assert.ErrorIs(t, secret.Validate(model.SecretPattern, "abc"), errclass.ErrSecretInvalid)
}

func TestNewCommonSecretID(t *testing.T) {
	a, b := secret.NewCommonSecretID(), secret.NewCommonSecretID()
	assert.True(t, strings.HasPrefix(a, "cs_"))
	assert.NotEqual(t, a, b)
}

func TestNormalizeCommonSecrets(t *testing.T) {
	now := time.UnixMilli(5000)
	in := []model.CommonSecret{
		{ID: "b", Name: "Work", Salt: "s", Hash: "h", CreatedAt: 300},
		{ID: " a ", Name: " Home ", Salt: "s", Hash: "h", CreatedAt: 100, SecretKind: "weird"},
		{ID: "b", Name: "Duplicate", Salt: "s", Hash: "h", CreatedAt: 50},
		{ID: "c", Name: "", Salt: "s", Hash: "h"},
		{ID: "d", Name: "NoHash", Salt: "s"},
		{ID: "e", Name: "Fresh", Salt: "s", Hash: "h"},
	}
	out := secret.NormalizeCommonSecrets(in, now)
	require.Len(t, out, 3)
	assert.Equal(t, "a", out[0].ID)
	assert.Equal(t, "Home", out[0].Name)
	assert.Equal(t, model.SecretPassword, out[0].SecretKind)
	assert.Equal(t, "b", out[1].ID)
	assert.Equal(t, "Work", out[1].Name, "first entry of an id wins")
	assert.Equal(t, "e", out[2].ID)
	assert.Equal(t, int64(5000), out[2].CreatedAt)
}
