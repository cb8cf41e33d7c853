package registry_test

import (
	"testing"
	"time"

	"github.com/lockguard/lockguard/internal/registry"
	"github.com/lockguard/lockguard/pkg/model"
)

// Run with: go test -fuzz=FuzzDecode -fuzztime=30s ./internal/registry/
func FuzzDecode(f *testing.F) {
	f.Add([]byte(`[{"id":"20240101010101-abcdefg","type":"doc","salt":"s","hash":"h","policy":"trust","trustMinutes":"15"}]`))
	f.Add([]byte(`[]`))
	f.Add([]byte(`{}`))
	f.Add([]byte(`[{"id":1e400}]`))
	f.Add([]byte(`[{"timerMinutes":-5,"timerElapsedMs":"NaN"}]`))
	now := time.UnixMilli(1_700_000_000_000)

	f.Fuzz(func(t *testing.T, data []byte) {
		reg, _, err := registry.Decode(data, now)
		if err != nil {
			return
		}
		for _, rec := range reg.All() {
			if rec.TrustMinutes < model.MinMinutes || rec.TrustMinutes > model.MaxMinutes {
				t.Errorf("trust minutes %d out of range", rec.TrustMinutes)
			}
			if rec.TimerMinutes < model.MinMinutes || rec.TimerMinutes > model.MaxMinutes {
				t.Errorf("timer minutes %d out of range", rec.TimerMinutes)
			}
			if rec.TimerElapsedMs < 0 || rec.TimerElapsedMs > rec.TimerTotalMs() {
				t.Errorf("elapsed %d outside [0, %d]", rec.TimerElapsedMs, rec.TimerTotalMs())
			}
		}
		out, err := reg.Encode()
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		again, _, err := registry.Decode(out, now)
		if err != nil {
			t.Fatalf("re-decode: %v", err)
		}
		if again.Len() != reg.Len() {
			t.Errorf("re-decode kept %d of %d records", again.Len(), reg.Len())
		}
	})
}
