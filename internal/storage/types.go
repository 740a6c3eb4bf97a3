package storage

import (
	"context"
	"errors"
	"slices"
	"sort"
	"time"

	"castbot/internal/schedule"
)

var (
	ErrNotFound = errors.New("job not found")
	ErrExists   = errors.New("job already exists")
	ErrClosed   = errors.New("store closed")
)

// Config configures storage.
//
// Driver values: "file" (default) and "sqlite".
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Filter narrows List. An empty Statuses slice matches every job.
type Filter struct {
	Statuses []schedule.Status
	// DueBefore, when set, keeps only jobs whose trigger time is <= DueBefore.
	DueBefore time.Time
}

func (f Filter) match(j *schedule.Job) bool {
	if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, j.Status) {
		return false
	}
	if !f.DueBefore.IsZero() && j.TriggerTime.After(f.DueBefore) {
		return false
	}
	return true
}

// Store is the persistence API used by the dispatcher and the CLI.
//
// Every mutating call persists before it returns nil. Returned jobs are
// copies owned by the caller.
type Store interface {
	Create(ctx context.Context, j *schedule.Job) (string, error)
	Get(ctx context.Context, id string) (*schedule.Job, error)
	// List returns matching jobs ordered by trigger time, then creation time.
	List(ctx context.Context, f Filter) ([]*schedule.Job, error)
	// Update replaces the stored record with j (matched by j.ID).
	Update(ctx context.Context, j *schedule.Job) error
	Delete(ctx context.Context, id string) (bool, error)
	// Cancel moves a pending job to cancelled. It returns false, without
	// error, when the job is missing or not pending.
	Cancel(ctx context.Context, id string) (bool, error)
	Close() error
}

func sortJobs(jobs []*schedule.Job) {
	sort.SliceStable(jobs, func(a, b int) bool {
		ja, jb := jobs[a], jobs[b]
		if !ja.TriggerTime.Equal(jb.TriggerTime) {
			return ja.TriggerTime.Before(jb.TriggerTime)
		}
		if !ja.CreatedAt.Equal(jb.CreatedAt) {
			return ja.CreatedAt.Before(jb.CreatedAt)
		}
		return ja.ID < jb.ID
	})
}
