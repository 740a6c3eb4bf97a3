package schedule

import (
	"time"

	"github.com/google/uuid"
)

// NewID returns a fresh job id.
func NewID() string { return uuid.NewString() }

// Normalize back-fills fields a persisted record may be missing so that a
// structurally valid but incomplete record still loads. It never rejects a
// record. It reports whether anything was changed.
func Normalize(j *Job, now time.Time) bool {
	changed := false
	set := func(cond bool, fn func()) {
		if cond {
			fn()
			changed = true
		}
	}

	set(j.ID == "", func() { j.ID = NewID() })
	set(j.CreatedAt.IsZero(), func() {
		switch {
		case !j.ScheduledAt.IsZero():
			j.CreatedAt = j.ScheduledAt
		case !j.TriggerTime.IsZero():
			j.CreatedAt = j.TriggerTime
		default:
			j.CreatedAt = now
		}
	})
	set(j.TriggerTime.IsZero(), func() {
		if !j.ScheduledAt.IsZero() {
			j.TriggerTime = j.ScheduledAt
		} else {
			j.TriggerTime = j.CreatedAt
		}
	})
	set(j.ScheduledAt.IsZero(), func() { j.ScheduledAt = j.TriggerTime })
	set(!j.Status.Valid(), func() { j.Status = StatusPending })
	set(!j.Repeat.Valid(), func() { j.Repeat = RepeatNone })
	set(j.RepeatLimit < 1, func() { j.RepeatLimit = 1 })
	set(j.ExecutedCount < 0, func() { j.ExecutedCount = 0 })
	set(j.History == nil, func() { j.History = []DispatchResult{} })
	set(j.Targets == nil, func() { j.Targets = []Target{} })
	if dedup := uniqueTargets(j.Targets); len(dedup) != len(j.Targets) {
		j.Targets = dedup
		changed = true
	}
	return changed
}

// uniqueTargets keeps the first occurrence of every target id. Outcomes are
// keyed by id, so a repeated id would be counted twice but reported once.
func uniqueTargets(ts []Target) []Target {
	seen := make(map[string]struct{}, len(ts))
	out := make([]Target, 0, len(ts))
	for _, t := range ts {
		if _, dup := seen[t.ID]; dup {
			continue
		}
		seen[t.ID] = struct{}{}
		out = append(out, t)
	}
	return out
}
