package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"castbot/internal/schedule"
	"castbot/pkg/logx"
)

type Engine struct {
	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter

	log      logx.Logger
	observer Observer
	now      func() time.Time
	wait     func(ctx context.Context, d time.Duration) error
}

type Option func(*Engine)

func WithObserver(o Observer) Option { return func(e *Engine) { e.observer = o } }

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

func New(cfg Config, log logx.Logger, opts ...Option) *Engine {
	if log.IsZero() {
		log = logx.Nop()
	}
	e := &Engine{log: log, now: time.Now, wait: sleepCtx}
	for _, o := range opts {
		o(e)
	}
	e.Apply(cfg)
	return e
}

// Apply swaps pacing and retry settings. A dispatch already running keeps the
// settings it started with.
func (e *Engine) Apply(cfg Config) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	e.cfg = cfg
	e.limiter = nil
	if cfg.RatePerSec > 0 {
		burst := max(1, int(cfg.RatePerSec))
		e.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), burst)
	}
}

func (e *Engine) Config() Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

// Dispatch sends content to every target in list order. A failing target is
// recorded and the next one is tried; the returned result always satisfies
// SuccessCount+FailureCount == TargetCount.
//
// A non-nil error is a job-level failure: the sender reported
// ErrUnrecoverable or ctx ended. Targets that were not attempted are then
// recorded as failed.
func (e *Engine) Dispatch(ctx context.Context, content json.RawMessage, targets []schedule.Target, sender Sender) (schedule.DispatchResult, error) {
	res := schedule.DispatchResult{
		ExecutedAt:  e.now(),
		TargetCount: len(targets),
		Outcomes:    make(map[string]schedule.TargetOutcome, len(targets)),
	}
	if len(targets) == 0 {
		return res, ErrNoTargets
	}
	if sender == nil {
		err := Unrecoverable(errors.New("no sender configured"))
		e.abort(&res, targets, err)
		return res, err
	}

	e.mu.Lock()
	cfg := e.cfg
	lim := e.limiter
	e.mu.Unlock()

	start := e.now()
	for i, t := range targets {
		if i > 0 && cfg.Delay > 0 {
			if err := e.wait(ctx, cfg.Delay); err != nil {
				e.abort(&res, targets[i:], err)
				return res, fmt.Errorf("dispatch interrupted: %w", err)
			}
		}
		if lim != nil {
			if err := lim.Wait(ctx); err != nil {
				e.abort(&res, targets[i:], err)
				return res, fmt.Errorf("dispatch interrupted: %w", err)
			}
		}

		err := e.sendOne(ctx, cfg, sender, content, t)
		e.record(&res, t, err)
		if err == nil {
			continue
		}
		if errors.Is(err, ErrUnrecoverable) || ctx.Err() != nil {
			cause := err
			if ctx.Err() != nil {
				cause = ctx.Err()
			}
			e.abort(&res, targets[i+1:], cause)
			e.log.Error("dispatch aborted",
				logx.String("target", t.ID),
				logx.Int("sent", res.SuccessCount),
				logx.Int("remaining", len(targets)-i-1),
				logx.Err(err),
			)
			return res, fmt.Errorf("dispatch aborted at target %s: %w", t.ID, err)
		}
	}

	fields := []logx.Field{
		logx.Int("total", res.TargetCount),
		logx.Int("ok", res.SuccessCount),
		logx.Int("failed", res.FailureCount),
		logx.Duration("dur", e.now().Sub(start)),
	}
	if res.FailureCount > 0 {
		e.log.Warn("dispatch finished with failures", fields...)
	} else {
		e.log.Info("dispatch finished", fields...)
	}
	return res, nil
}

func (e *Engine) sendOne(ctx context.Context, cfg Config, sender Sender, content json.RawMessage, t schedule.Target) error {
	var last error
	for attempt := 0; attempt <= cfg.RetryMax; attempt++ {
		if attempt > 0 {
			e.log.Debug("send retry scheduled",
				logx.String("target", t.ID),
				logx.Int("attempt", attempt+1),
				logx.Duration("delay", cfg.RetryDelay),
				logx.Err(last),
			)
			if err := e.wait(ctx, cfg.RetryDelay); err != nil {
				return err
			}
		}
		last = e.sendAttempt(ctx, cfg, sender, content, t)
		if last == nil || errors.Is(last, ErrUnrecoverable) || IsPermanent(last) || ctx.Err() != nil {
			break
		}
	}
	if last != nil {
		e.log.Warn("send failed", logx.String("target", t.ID), logx.String("label", t.Label), logx.Err(last))
	}
	return last
}

func (e *Engine) sendAttempt(ctx context.Context, cfg Config, sender Sender, content json.RawMessage, t schedule.Target) (err error) {
	sctx := ctx
	if cfg.SendTimeout > 0 {
		var cancel context.CancelFunc
		sctx, cancel = context.WithTimeout(ctx, cfg.SendTimeout)
		defer cancel()
	}
	start := e.now()
	defer func() {
		// A panicking sender fails only its own target.
		if r := recover(); r != nil {
			err = fmt.Errorf("sender panic: %v", r)
		}
		if e.observer != nil {
			e.observer.ObserveSend(t, err, e.now().Sub(start))
		}
	}()
	return sender.Send(sctx, content, t)
}

func (e *Engine) record(res *schedule.DispatchResult, t schedule.Target, err error) {
	out := schedule.TargetOutcome{Success: err == nil, RespondedAt: e.now()}
	if err != nil {
		out.Error = err.Error()
		res.FailureCount++
	} else {
		res.SuccessCount++
	}
	res.Outcomes[t.ID] = out
}

// abort records every target in rest as failed with cause.
func (e *Engine) abort(res *schedule.DispatchResult, rest []schedule.Target, cause error) {
	now := e.now()
	for _, t := range rest {
		res.Outcomes[t.ID] = schedule.TargetOutcome{Error: "not attempted: " + cause.Error(), RespondedAt: now}
		res.FailureCount++
	}
	res.Error = cause.Error()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	tmr := time.NewTimer(d)
	defer tmr.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-tmr.C:
		return nil
	}
}
