package webhook_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lockguard/lockguard/pkg/model"
	"github.com/lockguard/lockguard/pkg/webhook"
)

type recorder struct {
	mu       sync.Mutex
	payloads []webhook.Payload
	sigs     []string
	fail     int
}

func (r *recorder) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	body, _ := io.ReadAll(req.Body)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail > 0 {
		r.fail--
		http.Error(w, "try later", http.StatusServiceUnavailable)
		return
	}
	var p webhook.Payload
	_ = json.Unmarshal(body, &p)
	r.payloads = append(r.payloads, p)
	r.sigs = append(r.sigs, req.Header.Get("X-Lockguard-Signature"))
	w.WriteHeader(http.StatusNoContent)
}

func (r *recorder) received() []webhook.Payload {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]webhook.Payload(nil), r.payloads...)
}

var docKey = model.MakeKey(model.KindDocument, "20240101010101-abcdefg")

func TestSender_DeliversMatchingEvents(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(rec)
	defer srv.Close()

	s := webhook.New(webhook.Config{
		Hooks: []webhook.Hook{{URL: srv.URL, Enabled: true, Events: []model.EventType{model.EventUnlocked}}},
	}, nil)

	s.Notify("ws-1", model.Event{Type: model.EventUnlocked, Key: docKey})
	s.Notify("ws-1", model.Event{Type: model.EventRelocked, Key: docKey})
	require.NoError(t, s.Close())

	got := rec.received()
	require.Len(t, got, 1)
	assert.Equal(t, model.EventUnlocked, got[0].Event)
	assert.Equal(t, model.KindDocument, got[0].Kind)
	assert.Equal(t, "20240101010101-abcdefg", got[0].ID)
	assert.Equal(t, "ws-1", got[0].WorkspaceID)
}

func TestSender_WildcardSkipsTicks(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(rec)
	defer srv.Close()

	s := webhook.New(webhook.Config{
		Hooks: []webhook.Hook{
			{URL: srv.URL, Enabled: true, Events: []model.EventType{"*"}},
			{URL: srv.URL, Enabled: false, Events: []model.EventType{"*"}},
		},
	}, nil)

	s.Notify("", model.Event{Type: model.EventCountdownTick, Key: docKey, Remaining: time.Minute})
	s.Notify("", model.Event{Type: model.EventTimerExpired, Key: docKey})
	require.NoError(t, s.Close())

	got := rec.received()
	require.Len(t, got, 1)
	assert.Equal(t, model.EventTimerExpired, got[0].Event)
}

func TestSender_SignsAndRetries(t *testing.T) {
	rec := &recorder{fail: 1}
	srv := httptest.NewServer(rec)
	defer srv.Close()

	s := webhook.New(webhook.Config{
		Hooks:      []webhook.Hook{{URL: srv.URL, Secret: "s3cret", Enabled: true, Events: []model.EventType{model.EventTimerTick}}},
		MaxRetries: 2,
		RetryDelay: time.Millisecond,
	}, nil)

	s.Notify("", model.Event{Type: model.EventTimerTick, Key: docKey, Remaining: 1500 * time.Millisecond})
	require.NoError(t, s.Close())

	got := rec.received()
	require.Len(t, got, 1)
	assert.Equal(t, int64(1500), got[0].RemainingMs)

	body, err := json.Marshal(got[0])
	require.NoError(t, err)
	assert.Equal(t, webhook.Sign(body, "s3cret"), rec.sigs[0])
}

func TestSender_NotifyAfterCloseIsDropped(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(rec)
	defer srv.Close()

	s := webhook.New(webhook.Config{
		Hooks: []webhook.Hook{{URL: srv.URL, Enabled: true, Events: []model.EventType{"*"}}},
	}, nil)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	s.Notify("", model.Event{Type: model.EventUnlocked, Key: docKey})
	assert.Empty(t, rec.received())
}
