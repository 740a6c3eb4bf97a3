package notifier

import (
	"fmt"
	"slices"
	"strconv"
	"time"

	"castbot/internal/eventbus"
	"castbot/internal/schedule"
	"castbot/pkg/tgui"
)

const timeLayout = "2006-01-02 15:04 MST"

// Render builds the owner report for a job event. ok is false for event
// types that are not reported.
func Render(evType string, ev eventbus.JobEvent, loc *time.Location) (text string, ok bool) {
	if loc == nil {
		loc = time.UTC
	}
	c := tgui.NewCard()
	switch evType {
	case eventbus.JobCompleted:
		c.Title("✅", "Broadcast completed")
	case eventbus.JobExecuted:
		c.Title("📤", "Broadcast sent")
	case eventbus.JobFailed:
		c.Title("❌", "Broadcast failed")
	default:
		return "", false
	}

	sum := ev.Summary
	c.KV("Job", tgui.Code(sum.ID))
	c.KV("Run", tgui.Esc(runLabel(sum)))

	if r := ev.Result; r != nil {
		c.KV("Executed", tgui.Esc(r.ExecutedAt.In(loc).Format(timeLayout)))
		c.KV("Targets", tgui.Esc(fmt.Sprintf("%d sent, %d failed of %d", r.SuccessCount, r.FailureCount, r.TargetCount)))
	}
	if sum.Status == schedule.StatusPending {
		c.KV("Next", tgui.Esc(sum.TriggerTime.In(loc).Format(timeLayout)))
	}
	if ev.Err != "" {
		c.KV("Error", tgui.Esc(tgui.TruncRunes(ev.Err, 300)))
	}

	if r := ev.Result; r != nil && r.FailureCount > 0 {
		ids := make([]string, 0, len(r.Outcomes))
		for id, o := range r.Outcomes {
			if !o.Success {
				ids = append(ids, id)
			}
		}
		slices.Sort(ids)
		c.Blank().Raw(tgui.B("Failed targets"))
		for i, id := range ids {
			if i == maxFailuresListed {
				c.Line("… and " + strconv.Itoa(len(ids)-i) + " more")
				break
			}
			c.Bullet(tgui.JoinH(": ", tgui.Code(id), tgui.Esc(tgui.TruncRunes(r.Outcomes[id].Error, 200))))
		}
	}
	return c.String(), true
}

func runLabel(s schedule.JobSummary) string {
	if s.Repeat == schedule.RepeatNone || s.Repeat == "" {
		return "one-off"
	}
	return fmt.Sprintf("%d/%d, %s", s.ExecutedCount, s.RepeatLimit, s.Repeat)
}
