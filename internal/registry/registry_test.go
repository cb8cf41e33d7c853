package registry_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lockguard/lockguard/internal/registry"
	"github.com/lockguard/lockguard/pkg/errclass"
	"github.com/lockguard/lockguard/pkg/model"
)

const (
	docID      = "20240101010101-abcdefg"
	notebookID = "20240101010101-notebook1"
)

var now = time.UnixMilli(1_700_000_000_000)

func TestDecode_Normalizes(t *testing.T) {
	blob := `[{
		"id": " 20240101010101-abcdefg ",
		"type": "folder",
		"lockType": "rune",
		"policy": "sometimes",
		"trustMinutes": 99999,
		"timerMinutes": "15",
		"timerElapsedMs": -4,
		"salt": "c2FsdA==",
		"hash": "aGFzaA=="
	}]`

	r, res, err := registry.Decode([]byte(blob), now)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Loaded)

	rec := r.Get(model.KindDocument, docID)
	require.NotNil(t, rec)
	assert.Equal(t, model.KindDocument, rec.Kind)
	assert.Equal(t, model.SecretPassword, rec.SecretKind)
	assert.Equal(t, model.PolicyAlways, rec.Policy)
	assert.Equal(t, 1440, rec.TrustMinutes)
	assert.Equal(t, 15, rec.TimerMinutes)
	assert.Equal(t, int64(0), rec.TimerElapsedMs)
	assert.Equal(t, now.UnixMilli(), rec.CreatedAt, "missing timestamps default to now")
	assert.Equal(t, "", rec.Hint)
}

func TestDecode_MissingMinutesUseDefaults(t *testing.T) {
	r, _, err := registry.Decode([]byte(`[{"id":"20240101010101-abcdefg","policy":"trust","trustMinutes":0}]`), now)
	require.NoError(t, err)
	rec := r.Get(model.KindDocument, docID)
	require.NotNil(t, rec)
	assert.Equal(t, 1, rec.TrustMinutes, "present but too small clamps up")
	assert.Equal(t, model.DefaultTimerMinutes, rec.TimerMinutes, "absent takes the default")
}

func TestDecode_ClampsElapsedToBudget(t *testing.T) {
	r, _, err := registry.Decode([]byte(`[{"id":"20240101010101-abcdefg","policy":"timer","timerMinutes":1,"timerElapsedMs":90000.7}]`), now)
	require.NoError(t, err)
	assert.Equal(t, int64(60000), r.Get(model.KindDocument, docID).TimerElapsedMs)
}

func TestDecode_DropsInvalid(t *testing.T) {
	blob := `[
		{"id":"bad"},
		{"id": 20240101010101},
		"junk",
		{"id":"20240101010101-notebook1","type":"notebook"}
	]`
	r, res, err := registry.Decode([]byte(blob), now)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Loaded)
	assert.Equal(t, 3, res.Dropped)
	assert.NotNil(t, r.Get(model.KindNotebook, notebookID))
}

func TestDecode_DuplicatesKeepLast(t *testing.T) {
	blob := `[
		{"id":"20240101010101-abcdefg","title":"first"},
		{"id":"20240101010101-abcdefg","type":"notebook","title":"nb"},
		{"id":"20240101010101-abcdefg","title":"second"}
	]`
	r, res, err := registry.Decode([]byte(blob), now)
	require.NoError(t, err)
	assert.Equal(t, 2, r.Len(), "doc and notebook with the same id are distinct")
	assert.Equal(t, 1, res.Duplicates)
	assert.Equal(t, "second", r.Get(model.KindDocument, docID).Title)
}

func TestDecode_NotAList(t *testing.T) {
	r, _, err := registry.Decode([]byte(`{"locks":[]}`), now)
	require.ErrorIs(t, err, errclass.ErrBlobCorrupt)
	require.NotNil(t, r)
	assert.Equal(t, 0, r.Len())

	r, _, err = registry.Decode(nil, now)
	require.NoError(t, err)
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_UpsertRemove(t *testing.T) {
	r := registry.New()
	assert.False(t, r.Upsert(model.LockRecord{ID: docID, Kind: model.KindDocument, Title: "a"}))
	assert.True(t, r.Upsert(model.LockRecord{ID: docID, Kind: model.KindDocument, Title: "b"}))
	assert.Equal(t, 1, r.Len())
	assert.Equal(t, "b", r.GetByKey(model.MakeKey(model.KindDocument, docID)).Title)

	assert.True(t, r.HasKind(model.KindDocument))
	assert.False(t, r.HasKind(model.KindNotebook))

	removed, ok := r.Remove(model.KindDocument, docID)
	require.True(t, ok)
	assert.Equal(t, "b", removed.Title)
	_, ok = r.Remove(model.KindDocument, docID)
	assert.False(t, ok)
	assert.Nil(t, r.All())
}

func TestRegistry_AllReturnsCopies(t *testing.T) {
	r := registry.New()
	r.Upsert(model.LockRecord{ID: docID, Kind: model.KindDocument, Title: "a"})
	all := r.All()
	all[0].Title = "mutated"
	assert.Equal(t, "a", r.Get(model.KindDocument, docID).Title)
}

func TestRegistry_EncodeRoundTrip(t *testing.T) {
	r := registry.New()
	data, err := r.Encode()
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))

	r.Upsert(model.LockRecord{ID: docID, Kind: model.KindDocument, SecretKind: model.SecretPassword, Policy: model.PolicyTimer, TimerMinutes: 5, TimerElapsedMs: 5000, TrustMinutes: 30, CreatedAt: 1, UpdatedAt: 2})
	r.Upsert(model.LockRecord{ID: notebookID, Kind: model.KindNotebook, SecretKind: model.SecretPassword, Policy: model.PolicyAlways, TrustMinutes: 30, TimerMinutes: 60, CreatedAt: 1, UpdatedAt: 2})
	data, err = r.Encode()
	require.NoError(t, err)

	var raw []map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	require.Len(t, raw, 2)
	assert.Equal(t, "doc", raw[0]["type"])
	assert.Equal(t, "timer", raw[0]["policy"])
	assert.Equal(t, float64(5000), raw[0]["timerElapsedMs"])

	back, _, err := registry.Decode(data, now)
	require.NoError(t, err)
	assert.Equal(t, r.All(), back.All())
	assert.Equal(t, map[model.Policy]int{model.PolicyTimer: 1, model.PolicyAlways: 1}, back.Counts())
	assert.Len(t, back.WithPolicy(model.PolicyTimer), 1)
}
