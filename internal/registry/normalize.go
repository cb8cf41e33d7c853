package registry

import (
	"bytes"
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/lockguard/lockguard/pkg/entityid"
	"github.com/lockguard/lockguard/pkg/model"
)

// maxSafeInt bounds persisted integers to what the host's JSON layer
// can represent exactly.
const maxSafeInt = 1<<53 - 1

var leadingInt = regexp.MustCompile(`^[+-]?\d+`)

// decodeList parses a "locks" blob into generic objects. Entries that are
// not objects are returned as nil so the caller can count them as dropped.
func decodeList(data []byte) ([]map[string]any, bool) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw []any
	if err := dec.Decode(&raw); err != nil {
		return nil, false
	}
	out := make([]map[string]any, len(raw))
	for i, item := range raw {
		if m, ok := item.(map[string]any); ok {
			out[i] = m
		}
	}
	return out, true
}

// normalizeRecord coerces one persisted object into a record. ok is false
// when the id fails validation.
func normalizeRecord(m map[string]any, now time.Time) (model.LockRecord, bool) {
	nowMs := now.UnixMilli()
	rec := model.LockRecord{
		ID:             entityid.Normalize(str(m, "id")),
		Kind:           model.ParseEntityKind(str(m, "type")),
		Title:          str(m, "title"),
		SecretKind:     model.ParseSecretKind(str(m, "lockType")),
		Hint:           str(m, "hint"),
		Salt:           str(m, "salt"),
		Hash:           str(m, "hash"),
		CommonSecretID: strings.TrimSpace(str(m, "commonSecretId")),
		Policy:         model.ParsePolicy(str(m, "policy")),
		TrustMinutes:   int(clampInt(m["trustMinutes"], model.MinMinutes, model.MaxMinutes, model.DefaultTrustMinutes)),
		TrustUntil:     clampInt(m["trustUntil"], 0, maxSafeInt, 0),
		TimerMinutes:   int(clampInt(m["timerMinutes"], model.MinMinutes, model.MaxMinutes, model.DefaultTimerMinutes)),
		TimerElapsedMs: clampInt(m["timerElapsedMs"], 0, maxSafeInt, 0),
		CreatedAt:      clampInt(m["createdAt"], 0, maxSafeInt, nowMs),
		UpdatedAt:      clampInt(m["updatedAt"], 0, maxSafeInt, nowMs),
	}
	if total := rec.TimerTotalMs(); rec.TimerElapsedMs > total {
		rec.TimerElapsedMs = total
	}
	if !entityid.Valid(rec.ID) {
		return model.LockRecord{}, false
	}
	return rec, true
}

func str(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

// clampInt parses v leniently (numbers, numeric strings, a leading integer
// prefix) and clamps it to [lo, hi]. Unparseable or missing values take
// fallback.
func clampInt(v any, lo, hi, fallback int64) int64 {
	n, ok := parseIntLoose(v)
	if !ok {
		return fallback
	}
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}

func parseIntLoose(v any) (int64, bool) {
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i, true
		}
		return floatToInt(x.String())
	case float64:
		return truncate(x)
	case string:
		s := strings.TrimSpace(x)
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i, true
		}
		if p := leadingInt.FindString(s); p != "" {
			i, err := strconv.ParseInt(p, 10, 64)
			return i, err == nil
		}
	}
	return 0, false
}

func floatToInt(s string) (int64, bool) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return truncate(f)
}

func truncate(f float64) (int64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	if f >= math.MaxInt64 {
		return math.MaxInt64, true
	}
	if f <= math.MinInt64 {
		return math.MinInt64, true
	}
	return int64(f), true
}
