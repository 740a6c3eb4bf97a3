package schedule

import (
	"encoding/json"
	"errors"
)

// ErrNotObject is returned by DecodeRecord for input that is not a JSON object.
var ErrNotObject = errors.New("job record is not a JSON object")

// DecodeRecord decodes a persisted job one field at a time. A field with the
// wrong type or an unparseable value (an empty time, "2" for a count) is left
// at its zero value for Normalize to fill; a bad list element is dropped. The
// second result reports whether anything was discarded. Only input that is
// not a JSON object fails.
func DecodeRecord(raw []byte) (Job, bool, error) {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil || m == nil {
		return Job{}, false, ErrNotObject
	}

	var j Job
	ok := true
	ok = field(m, "id", &j.ID) && ok
	ok = field(m, "content", &j.Content) && ok
	ok = list(m, "targets", &j.Targets) && ok
	ok = field(m, "scheduled_at", &j.ScheduledAt) && ok
	ok = field(m, "trigger_time", &j.TriggerTime) && ok
	ok = field(m, "repeat_policy", &j.Repeat) && ok
	ok = field(m, "repeat_limit", &j.RepeatLimit) && ok
	ok = field(m, "executed_count", &j.ExecutedCount) && ok
	ok = field(m, "status", &j.Status) && ok
	ok = field(m, "created_at", &j.CreatedAt) && ok
	ok = field(m, "last_executed_at", &j.LastExecutedAt) && ok
	ok = field(m, "last_error", &j.LastError) && ok
	ok = list(m, "execution_history", &j.History) && ok
	return j, !ok, nil
}

// field decodes m[name] into dst, leaving dst untouched on failure.
func field[T any](m map[string]json.RawMessage, name string, dst *T) bool {
	raw, found := m[name]
	if !found || string(raw) == "null" {
		return true
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return false
	}
	*dst = v
	return true
}

// list decodes a JSON array element by element, keeping the good ones.
func list[T any](m map[string]json.RawMessage, name string, dst *[]T) bool {
	raw, found := m[name]
	if !found || string(raw) == "null" {
		return true
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return false
	}
	ok := true
	out := make([]T, 0, len(items))
	for _, it := range items {
		var v T
		if err := json.Unmarshal(it, &v); err != nil {
			ok = false
			continue
		}
		out = append(out, v)
	}
	*dst = out
	return ok
}
