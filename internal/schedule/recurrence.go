package schedule

import "time"

// Advance computes the trigger instant following the job's current
// TriggerTime. It is called after ExecutedCount was incremented for the
// execution that just finished; retire is true when the job should complete.
//
// The next instant is always exactly one period after the previous one, even
// when it is still in the past after downtime. The dispatcher runs a job at
// most once per tick, so missed occurrences are replayed one tick at a time.
func Advance(j Job) (next time.Time, retire bool) {
	if j.ExecutedCount >= j.RepeatLimit {
		return time.Time{}, true
	}
	prev := j.TriggerTime
	switch j.Repeat {
	case RepeatDaily:
		return prev.AddDate(0, 0, 1), false
	case RepeatWeekly:
		return prev.AddDate(0, 0, 7), false
	case RepeatMonthly:
		anchor := prev.Day()
		if !j.ScheduledAt.IsZero() {
			anchor = j.ScheduledAt.In(prev.Location()).Day()
		}
		return nextMonthClamped(prev, anchor), false
	default:
		return time.Time{}, true
	}
}

// nextMonthClamped returns t moved into the following calendar month on day
// anchor, clamped to that month's last day. Wall clock and location are kept.
func nextMonthClamped(t time.Time, anchor int) time.Time {
	y, m, _ := t.Date()
	first := time.Date(y, m+1, 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	day := min(anchor, daysIn(first.Year(), first.Month()))
	return time.Date(first.Year(), first.Month(), day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func daysIn(y int, m time.Month) int {
	return time.Date(y, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
