package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"castbot/internal/eventbus"
	"castbot/internal/schedule"
	"castbot/internal/storage"
	"castbot/pkg/logx"
)

// Schedule validates req, stores a new pending job and returns its id.
func (s *Service) Schedule(ctx context.Context, req Request) (string, error) {
	cfg := s.config()
	if err := validateRequest(cfg, &req); err != nil {
		return "", err
	}
	s.createMu.Lock()
	defer s.createMu.Unlock()
	if cfg.MaxPendingJobs > 0 {
		pending, err := s.deps.Store.List(ctx, storage.Filter{Statuses: []schedule.Status{schedule.StatusPending}})
		if err != nil {
			return "", err
		}
		if len(pending) >= cfg.MaxPendingJobs {
			return "", fmt.Errorf("%w (%d)", ErrLimitReached, cfg.MaxPendingJobs)
		}
	}

	now := s.now()
	job := &schedule.Job{
		ID:          schedule.NewID(),
		Content:     append(json.RawMessage(nil), req.Content...),
		Targets:     append([]schedule.Target(nil), req.Targets...),
		ScheduledAt: req.TriggerTime,
		TriggerTime: req.TriggerTime,
		Repeat:      req.Repeat,
		RepeatLimit: req.RepeatLimit,
		Status:      schedule.StatusPending,
		CreatedAt:   now,
		History:     []schedule.DispatchResult{},
	}
	id, err := s.deps.Store.Create(ctx, job)
	if err != nil {
		return "", fmt.Errorf("store job: %w", err)
	}
	job.ID = id

	s.log.Info("job scheduled",
		logx.String("job", id),
		logx.Time("trigger_time", job.TriggerTime),
		logx.String("repeat", string(job.Repeat)),
		logx.Int("limit", job.RepeatLimit),
		logx.Int("targets", len(job.Targets)),
	)
	s.deps.Bus.Publish(eventbus.Event{Type: eventbus.JobScheduled, Data: eventbus.JobEvent{Summary: job.Summary()}})
	return id, nil
}

func validateRequest(cfg Config, req *Request) error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
	}
	if len(req.Content) == 0 || !json.Valid(req.Content) {
		return invalid("content must be a JSON value")
	}
	if len(req.Targets) == 0 {
		return invalid("at least one target is required")
	}
	if cfg.MaxTargetsPerJob > 0 && len(req.Targets) > cfg.MaxTargetsPerJob {
		return invalid("%d targets exceed the limit of %d", len(req.Targets), cfg.MaxTargetsPerJob)
	}
	seen := make(map[string]struct{}, len(req.Targets))
	for _, t := range req.Targets {
		if t.ID == "" {
			return invalid("target id is empty")
		}
		if _, dup := seen[t.ID]; dup {
			return invalid("duplicate target %s", t.ID)
		}
		seen[t.ID] = struct{}{}
	}
	if req.TriggerTime.IsZero() {
		return invalid("trigger time is required")
	}
	if req.Repeat == "" {
		req.Repeat = schedule.RepeatNone
	}
	if !req.Repeat.Valid() {
		return invalid("unknown repeat policy %q", req.Repeat)
	}
	switch {
	case req.RepeatLimit == 0:
		req.RepeatLimit = 1
	case req.RepeatLimit < 0:
		return invalid("repeat limit must be >= 1")
	}
	return nil
}

// Cancel cancels a pending job. It returns false when the job is missing,
// executing or already terminal.
func (s *Service) Cancel(ctx context.Context, id string) (bool, error) {
	s.claimMu.Lock()
	ok, err := s.deps.Store.Cancel(ctx, id)
	s.claimMu.Unlock()
	if err != nil || !ok {
		return ok, err
	}
	s.log.Info("job cancelled", logx.String("job", id))
	if job, err := s.deps.Store.Get(ctx, id); err == nil {
		s.deps.Bus.Publish(eventbus.Event{Type: eventbus.JobCancelled, Data: eventbus.JobEvent{Summary: job.Summary()}})
	}
	return true, nil
}

// List returns summaries ordered by trigger time; no statuses means all.
func (s *Service) List(ctx context.Context, statuses ...schedule.Status) ([]schedule.JobSummary, error) {
	jobs, err := s.deps.Store.List(ctx, storage.Filter{Statuses: statuses})
	if err != nil {
		return nil, err
	}
	return summaries(jobs), nil
}

func (s *Service) Get(ctx context.Context, id string) (*schedule.Job, error) {
	return s.deps.Store.Get(ctx, id)
}

// Upcoming lists pending jobs due between now and now+within.
func (s *Service) Upcoming(ctx context.Context, within time.Duration) ([]schedule.JobSummary, error) {
	now := s.now()
	jobs, err := s.deps.Store.List(ctx, storage.Filter{
		Statuses:  []schedule.Status{schedule.StatusPending},
		DueBefore: now.Add(within),
	})
	if err != nil {
		return nil, err
	}
	out := jobs[:0]
	for _, j := range jobs {
		if !j.TriggerTime.Before(now) {
			out = append(out, j)
		}
	}
	return summaries(out), nil
}

func (s *Service) Stats(ctx context.Context) (schedule.Stats, error) {
	jobs, err := s.deps.Store.List(ctx, storage.Filter{})
	if err != nil {
		return schedule.Stats{}, err
	}
	now := s.now()
	horizon := now.Add(24 * time.Hour)
	st := schedule.Stats{Total: len(jobs), Running: s.Running()}
	for _, j := range jobs {
		st.TotalExecutions += j.ExecutedCount
		switch j.Status {
		case schedule.StatusPending:
			st.Pending++
			if !j.TriggerTime.Before(now) && !j.TriggerTime.After(horizon) {
				st.Upcoming24h++
			}
		case schedule.StatusExecuting:
			st.Executing++
		case schedule.StatusCompleted:
			st.Completed++
		case schedule.StatusFailed:
			st.Failed++
		case schedule.StatusCancelled:
			st.Cancelled++
		}
	}
	return st, nil
}

// Reschedule moves a pending job to a new trigger time. ScheduledAt keeps the
// original time and stays the anchor for monthly recurrence. It returns false
// unless the job is pending.
func (s *Service) Reschedule(ctx context.Context, id string, at time.Time) (bool, error) {
	if at.IsZero() {
		return false, fmt.Errorf("%w: trigger time is required", ErrInvalidRequest)
	}
	s.claimMu.Lock()
	defer s.claimMu.Unlock()

	job, err := s.deps.Store.Get(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if job.Status != schedule.StatusPending {
		return false, nil
	}
	job.TriggerTime = at
	if err := s.deps.Store.Update(ctx, job); err != nil {
		return false, err
	}
	s.log.Info("job rescheduled", logx.String("job", id), logx.Time("trigger_time", at))
	return true, nil
}

// Cleanup deletes completed and failed jobs created more than olderThan ago
// and returns how many were removed. Cancelled jobs are kept. Nothing calls
// it implicitly.
func (s *Service) Cleanup(ctx context.Context, olderThan time.Duration) (int, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("%w: retention must be > 0", ErrInvalidRequest)
	}
	cutoff := s.now().Add(-olderThan)
	jobs, err := s.deps.Store.List(ctx, storage.Filter{
		Statuses: []schedule.Status{schedule.StatusCompleted, schedule.StatusFailed},
	})
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, j := range jobs {
		if !j.CreatedAt.Before(cutoff) {
			continue
		}
		ok, err := s.deps.Store.Delete(ctx, j.ID)
		if err != nil {
			return removed, fmt.Errorf("delete %s: %w", j.ID, err)
		}
		if ok {
			removed++
		}
	}
	if removed > 0 {
		s.log.Info("old jobs cleaned up", logx.Int("removed", removed), logx.Time("cutoff", cutoff))
	}
	return removed, nil
}

// ExportDocument is the JSON document written by Export.
type ExportDocument struct {
	ExportedAt time.Time       `json:"exported_at"`
	Stats      schedule.Stats  `json:"stats"`
	Jobs       []*schedule.Job `json:"jobs"`
}

// Export writes every job, history included, as indented JSON.
func (s *Service) Export(ctx context.Context, w io.Writer) error {
	jobs, err := s.deps.Store.List(ctx, storage.Filter{})
	if err != nil {
		return err
	}
	st, err := s.Stats(ctx)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(ExportDocument{ExportedAt: s.now(), Stats: st, Jobs: jobs})
}

func summaries(jobs []*schedule.Job) []schedule.JobSummary {
	out := make([]schedule.JobSummary, len(jobs))
	for i, j := range jobs {
		out[i] = j.Summary()
	}
	return out
}
