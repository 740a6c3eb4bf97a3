package schedule

import (
	"encoding/json"
	"fmt"
	"maps"
	"strings"
	"time"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusExecuting Status = "executing"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Statuses lists every known status in lifecycle order.
var Statuses = []Status{StatusPending, StatusExecuting, StatusCompleted, StatusFailed, StatusCancelled}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusExecuting, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether the job will never run again.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", fmt.Errorf("unknown status %q", s)
	}
	return st, nil
}

type RepeatPolicy string

const (
	RepeatNone    RepeatPolicy = "none"
	RepeatDaily   RepeatPolicy = "daily"
	RepeatWeekly  RepeatPolicy = "weekly"
	RepeatMonthly RepeatPolicy = "monthly"
)

func (r RepeatPolicy) Valid() bool {
	switch r {
	case RepeatNone, RepeatDaily, RepeatWeekly, RepeatMonthly:
		return true
	}
	return false
}

// ParseRepeat accepts the policy names case-insensitively; "" and "once" mean none.
func ParseRepeat(s string) (RepeatPolicy, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	if v == "" || v == "once" {
		return RepeatNone, nil
	}
	r := RepeatPolicy(v)
	if !r.Valid() {
		return "", fmt.Errorf("unknown repeat policy %q", s)
	}
	return r, nil
}

// Target is one delivery endpoint. ID is opaque to the core (for Telegram it is
// a chat id or @username); Label is for humans.
type Target struct {
	ID    string `json:"id"`
	Label string `json:"label,omitempty"`
}

func (t Target) String() string {
	if t.Label == "" {
		return t.ID
	}
	return t.Label + " (" + t.ID + ")"
}

type TargetOutcome struct {
	Success     bool      `json:"success"`
	Error       string    `json:"error,omitempty"`
	RespondedAt time.Time `json:"responded_at"`
}

// DispatchResult summarizes one execution attempt of a job.
// SuccessCount + FailureCount always equals TargetCount.
type DispatchResult struct {
	ExecutedAt   time.Time                `json:"executed_at"`
	TriggerTime  time.Time                `json:"trigger_time"`
	TargetCount  int                      `json:"target_count"`
	SuccessCount int                      `json:"success_count"`
	FailureCount int                      `json:"failure_count"`
	Outcomes     map[string]TargetOutcome `json:"per_target_outcomes"`
	Error        string                   `json:"error,omitempty"`
}

func (r DispatchResult) clone() DispatchResult {
	r.Outcomes = maps.Clone(r.Outcomes)
	return r
}

type Job struct {
	ID             string           `json:"id"`
	Content        json.RawMessage  `json:"content"`
	Targets        []Target         `json:"targets"`
	ScheduledAt    time.Time        `json:"scheduled_at"`
	TriggerTime    time.Time        `json:"trigger_time"`
	Repeat         RepeatPolicy     `json:"repeat_policy"`
	RepeatLimit    int              `json:"repeat_limit"`
	ExecutedCount  int              `json:"executed_count"`
	Status         Status           `json:"status"`
	CreatedAt      time.Time        `json:"created_at"`
	LastExecutedAt *time.Time       `json:"last_executed_at,omitempty"`
	LastError      string           `json:"last_error,omitempty"`
	History        []DispatchResult `json:"execution_history"`
}

// Clone returns a deep copy; stores hand out clones so callers never alias
// stored state.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	cp := *j
	cp.Content = append(json.RawMessage(nil), j.Content...)
	cp.Targets = append([]Target(nil), j.Targets...)
	if j.LastExecutedAt != nil {
		t := *j.LastExecutedAt
		cp.LastExecutedAt = &t
	}
	cp.History = make([]DispatchResult, len(j.History))
	for i, r := range j.History {
		cp.History[i] = r.clone()
	}
	return &cp
}

func (j *Job) Summary() JobSummary {
	return JobSummary{
		ID:            j.ID,
		TriggerTime:   j.TriggerTime,
		Status:        j.Status,
		TargetCount:   len(j.Targets),
		Repeat:        j.Repeat,
		ExecutedCount: j.ExecutedCount,
		RepeatLimit:   j.RepeatLimit,
	}
}

// Due reports whether the dispatcher should pick the job up at now.
func (j *Job) Due(now time.Time) bool {
	return j.Status == StatusPending && !j.TriggerTime.After(now)
}

type JobSummary struct {
	ID            string       `json:"id"`
	TriggerTime   time.Time    `json:"trigger_time"`
	Status        Status       `json:"status"`
	TargetCount   int          `json:"target_count"`
	Repeat        RepeatPolicy `json:"repeat_policy"`
	ExecutedCount int          `json:"executed_count"`
	RepeatLimit   int          `json:"repeat_limit"`
}

type Stats struct {
	Total           int  `json:"total"`
	Pending         int  `json:"pending"`
	Executing       int  `json:"executing"`
	Completed       int  `json:"completed"`
	Failed          int  `json:"failed"`
	Cancelled       int  `json:"cancelled"`
	TotalExecutions int  `json:"total_executions"`
	Upcoming24h     int  `json:"upcoming_24h"`
	Running         bool `json:"running"`
}
