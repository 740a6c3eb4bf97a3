package eventbus

import "castbot/internal/schedule"

// Job lifecycle event types published by the dispatcher.
const (
	JobScheduled = "job.scheduled"
	JobExecuted  = "job.executed"
	JobCompleted = "job.completed"
	JobFailed    = "job.failed"
	JobCancelled = "job.cancelled"
)

// JobEvent is the Data payload of every job.* event.
type JobEvent struct {
	Summary schedule.JobSummary
	// Result is the attempt that produced the event; nil for scheduled and
	// cancelled events.
	Result *schedule.DispatchResult
	Err    string
}
