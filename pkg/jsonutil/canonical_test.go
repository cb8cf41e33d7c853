package jsonutil_test

import (
	"testing"

	"github.com/lockguard/lockguard/pkg/jsonutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalMarshal_SortedKeys(t *testing.T) {
	out, err := jsonutil.CanonicalMarshal(map[string]any{"zebra": 1, "alpha": 2, "mid": 3})
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":2,"mid":3,"zebra":1}`, string(out))
}

func TestCanonicalMarshal_Nested(t *testing.T) {
	out, err := jsonutil.CanonicalMarshal(map[string]any{
		"b": map[string]any{"z": 1, "a": []any{true, nil}},
		"a": 0,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"a":0,"b":{"a":[true,null],"z":1}}`, string(out))
}

func TestCanonicalMarshal_LargeIntegersKeepPrecision(t *testing.T) {
	type rec struct {
		TrustUntil int64 `json:"trustUntil"`
	}
	out, err := jsonutil.CanonicalMarshal(rec{TrustUntil: 1704070861123456789})
	require.NoError(t, err)
	assert.Equal(t, `{"trustUntil":1704070861123456789}`, string(out))
}

func TestCanonicalMarshal_StructSortsFields(t *testing.T) {
	type sample struct {
		Zebra int    `json:"zebra"`
		Alpha string `json:"alpha"`
	}
	out, err := jsonutil.CanonicalMarshal(sample{Zebra: 1, Alpha: "a"})
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":"a","zebra":1}`, string(out))
}

func TestCanonicalMarshal_Unsupported(t *testing.T) {
	_, err := jsonutil.CanonicalMarshal(map[string]any{"ch": make(chan int)})
	assert.Error(t, err)
}

func TestDigest_StableAcrossKeyOrder(t *testing.T) {
	a, err := jsonutil.Digest(map[string]any{"x": 1, "y": "two"})
	require.NoError(t, err)
	b, err := jsonutil.Digest(map[string]any{"y": "two", "x": 1})
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)

	c, err := jsonutil.Digest(map[string]any{"x": 2, "y": "two"})
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}
