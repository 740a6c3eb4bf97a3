package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"castbot/internal/eventbus"
	"castbot/internal/runtime/supervisor"
	"castbot/internal/schedule"
	"castbot/internal/storage"
	"castbot/pkg/logx"
)

type Service struct {
	mu  sync.Mutex
	cfg Config
	sup *supervisor.Supervisor

	deps    Deps
	log     logx.Logger
	now     func() time.Time
	running atomic.Bool
	// kick wakes the loop so a new check interval takes effect.
	kick chan struct{}

	// tickMu keeps ticks from overlapping; it also guards unsaved.
	tickMu sync.Mutex
	// unsaved holds finished jobs whose final persist failed; retried first
	// thing on every tick.
	unsaved map[string]*schedule.Job

	// claimMu orders the pending->executing claim against Cancel and
	// Reschedule.
	claimMu sync.Mutex
	// createMu makes the pending-limit check and the insert one step.
	createMu sync.Mutex
}

func New(cfg Config, deps Deps) *Service {
	if deps.Log.IsZero() {
		deps.Log = logx.Nop()
	}
	if deps.Bus == nil {
		deps.Bus = eventbus.New()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		cfg:     normalizeConfig(cfg),
		deps:    deps,
		log:     deps.Log.With(logx.String("comp", "scheduler")),
		now:     now,
		kick:    make(chan struct{}, 1),
		unsaved: map[string]*schedule.Job{},
	}
}

func normalizeConfig(cfg Config) Config {
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = DefaultCheckInterval
	}
	return cfg
}

func (s *Service) Apply(cfg Config) {
	cfg = normalizeConfig(cfg)
	s.mu.Lock()
	changed := cfg.CheckInterval != s.cfg.CheckInterval
	s.cfg = cfg
	s.mu.Unlock()
	if changed {
		select {
		case s.kick <- struct{}{}:
		default:
		}
	}
}

func (s *Service) config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Running reports whether the poll loop is active.
func (s *Service) Running() bool { return s.running.Load() }

// Start recovers jobs left executing by a previous process and launches the
// poll loop. The first tick runs immediately.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sup != nil {
		return nil
	}
	if s.deps.Fanout == nil || s.deps.Sender == nil {
		return ErrNoSender
	}
	if err := s.recoverStuck(ctx); err != nil {
		return fmt.Errorf("recover executing jobs: %w", err)
	}

	sup := supervisor.New(ctx, supervisor.WithLogger(s.log))
	s.sup = sup
	s.running.Store(true)
	sup.Go0("scheduler.loop", s.loop)
	s.log.Info("scheduler started", logx.Duration("check_interval", s.cfg.CheckInterval))
	return nil
}

// Stop ends the poll loop. An in-flight tick runs to completion; Stop waits
// for it until ctx ends.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	sup := s.sup
	s.sup = nil
	s.mu.Unlock()
	if sup == nil {
		return nil
	}
	start := s.now()
	err := sup.Stop(ctx)
	s.running.Store(false)
	s.log.Info("scheduler stopped", logx.Duration("took", s.now().Sub(start)))
	return err
}

func (s *Service) loop(ctx context.Context) {
	interval := s.config().CheckInterval
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.safeTick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.kick:
			if iv := s.config().CheckInterval; iv != interval {
				interval = iv
				ticker.Reset(interval)
				s.log.Info("check interval changed", logx.Duration("check_interval", interval))
			}
		case <-ticker.C:
			s.safeTick(ctx)
		}
	}
}

func (s *Service) safeTick(ctx context.Context) {
	// Sends are not interrupted by Stop; per-send timeouts still bound them.
	if _, err := s.tick(context.WithoutCancel(ctx), ctx, s.now()); err != nil {
		s.log.Warn("tick failed; retrying next interval", logx.Err(err))
	}
}

// Tick processes every job due at now and returns how many it executed.
// The returned error only reports a failure to query the store; per-job
// failures are logged and isolated.
func (s *Service) Tick(ctx context.Context, now time.Time) (int, error) {
	return s.tick(ctx, ctx, now)
}

// tick sends with ctx but checks stop between jobs: on shutdown the job in
// flight finishes and the remaining due jobs stay pending for the next run.
func (s *Service) tick(ctx, stop context.Context, now time.Time) (int, error) {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	start := s.now()
	s.flushUnsaved(ctx)

	due, err := s.deps.Store.List(ctx, storage.Filter{
		Statuses:  []schedule.Status{schedule.StatusPending},
		DueBefore: now,
	})
	if err != nil {
		return 0, fmt.Errorf("list due jobs: %w", err)
	}
	if len(due) > 0 {
		s.log.Debug("due jobs found", logx.Int("count", len(due)))
	}

	executed := 0
	for i, j := range due {
		if stop.Err() != nil {
			s.log.Info("shutdown requested; leaving remaining due jobs pending", logx.Int("skipped", len(due)-i))
			break
		}
		if s.runJob(ctx, j.ID, now) {
			executed++
		}
	}
	if s.deps.Recorder != nil {
		s.deps.Recorder.TickFinished(s.now().Sub(start), len(due))
	}
	return executed, nil
}

// runJob drives one job through execution. It reports whether a fan-out ran.
// Panics are contained so the remaining due jobs still run.
func (s *Service) runJob(ctx context.Context, id string, now time.Time) (ran bool) {
	log := s.log.With(logx.String("job", id))
	var claimed *schedule.Job
	defer func() {
		if r := recover(); r != nil {
			log.Error("job processing panicked", logx.Any("panic", r), logx.Stack(string(debug.Stack())))
			if claimed != nil {
				s.failClaimed(ctx, claimed, fmt.Errorf("panic: %v", r))
			}
		}
	}()

	job, err := s.claim(ctx, id, now)
	if err != nil {
		log.Error("claim failed; job stays pending", logx.Err(err))
		return false
	}
	if job == nil {
		return false
	}
	claimed = job

	res, ferr := s.deps.Fanout.Dispatch(ctx, job.Content, job.Targets, s.deps.Sender)
	res.TriggerTime = job.TriggerTime
	finishedAt := s.now()
	job.LastExecutedAt = &finishedAt

	if ferr != nil {
		if res.Error == "" {
			res.Error = ferr.Error()
		}
		job.History = append(job.History, res)
		job.LastError = ferr.Error()
		_ = job.Transition(schedule.StatusFailed)
		log.Error("job failed", logx.Err(ferr), logx.Int("ok", res.SuccessCount), logx.Int("failed", res.FailureCount))
	} else {
		job.History = append(job.History, res)
		job.ExecutedCount++
		job.LastError = ""
		next, retire := schedule.Advance(*job)
		if retire {
			_ = job.Transition(schedule.StatusCompleted)
		} else {
			job.TriggerTime = next
			_ = job.Transition(schedule.StatusPending)
		}
		log.Info("job executed",
			logx.Int("run", job.ExecutedCount),
			logx.Int("limit", job.RepeatLimit),
			logx.Int("ok", res.SuccessCount),
			logx.Int("failed", res.FailureCount),
			logx.String("status", string(job.Status)),
			logx.Time("next", job.TriggerTime),
		)
	}
	claimed = nil

	s.save(ctx, job)
	s.publish(job, &res, ferr)
	if s.deps.Recorder != nil {
		s.deps.Recorder.JobFinished(job.Status)
	}
	return true
}

// claim re-reads the job and moves it to executing. It returns nil, nil when
// the job is no longer due (cancelled or rescheduled since the listing).
func (s *Service) claim(ctx context.Context, id string, now time.Time) (*schedule.Job, error) {
	s.claimMu.Lock()
	defer s.claimMu.Unlock()

	job, err := s.deps.Store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if !job.Due(now) {
		return nil, nil
	}
	if err := job.Transition(schedule.StatusExecuting); err != nil {
		return nil, err
	}
	if err := s.deps.Store.Update(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

func (s *Service) failClaimed(ctx context.Context, job *schedule.Job, cause error) {
	job.LastError = cause.Error()
	if job.Status == schedule.StatusExecuting {
		_ = job.Transition(schedule.StatusFailed)
	}
	s.save(ctx, job)
	s.publish(job, nil, cause)
}

// save persists job or parks it in the unsaved buffer. Callers hold tickMu.
func (s *Service) save(ctx context.Context, job *schedule.Job) {
	if err := s.deps.Store.Update(ctx, job); err != nil {
		s.unsaved[job.ID] = job
		s.log.Error("persist failed; will retry next tick", logx.String("job", job.ID), logx.Err(err))
		return
	}
	delete(s.unsaved, job.ID)
}

func (s *Service) flushUnsaved(ctx context.Context) {
	for id, job := range s.unsaved {
		if err := s.deps.Store.Update(ctx, job); err != nil {
			s.log.Warn("persist retry failed", logx.String("job", id), logx.Err(err))
			continue
		}
		delete(s.unsaved, id)
		s.log.Info("persist retry succeeded", logx.String("job", id))
	}
}

// recoverStuck returns jobs left executing by a crashed process to pending
// so they run on the next tick.
func (s *Service) recoverStuck(ctx context.Context) error {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()
	s.flushUnsaved(ctx)

	stuck, err := s.deps.Store.List(ctx, storage.Filter{Statuses: []schedule.Status{schedule.StatusExecuting}})
	if err != nil {
		return err
	}
	for _, j := range stuck {
		if err := j.Transition(schedule.StatusPending); err != nil {
			return err
		}
		if err := s.deps.Store.Update(ctx, j); err != nil {
			return err
		}
		s.log.Warn("job was left executing; returned to pending", logx.String("job", j.ID), logx.Time("trigger_time", j.TriggerTime))
	}
	return nil
}

func (s *Service) publish(job *schedule.Job, res *schedule.DispatchResult, err error) {
	ev := eventbus.JobEvent{Summary: job.Summary(), Result: res}
	if err != nil {
		ev.Err = err.Error()
	}
	switch job.Status {
	case schedule.StatusFailed:
		s.deps.Bus.Publish(eventbus.Event{Type: eventbus.JobFailed, Data: ev})
	case schedule.StatusCompleted:
		s.deps.Bus.Publish(eventbus.Event{Type: eventbus.JobCompleted, Data: ev})
	default:
		s.deps.Bus.Publish(eventbus.Event{Type: eventbus.JobExecuted, Data: ev})
	}
}
