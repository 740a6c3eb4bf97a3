package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"castbot/internal/broadcast"
	"castbot/internal/config"
	"castbot/internal/eventbus"
	"castbot/internal/maintenance"
	"castbot/internal/notifier"
	"castbot/internal/observability/metrics"
	"castbot/internal/observability/ops"
	"castbot/internal/runtime/supervisor"
	"castbot/internal/scheduler"
	"castbot/internal/storage"
	"castbot/internal/transport"
	"castbot/internal/transport/telegram"
	"castbot/pkg/logx"
	"castbot/pkg/systemd"
)

type Options struct {
	// Adapter replaces the Telegram adapter built from config.
	Adapter transport.Adapter
}

// App is the long-running daemon: dispatcher, fan-out engine, owner
// notifier, maintenance cron and the ops listener, all following one config.
type App struct {
	cfgm *config.Manager
	log  logx.Logger
	logs *logx.Service

	core    *Core
	adapter transport.Adapter
	engine  *broadcast.Engine
	metrics *metrics.Metrics
	notif   *notifier.Service
	maint   *maintenance.Service
	ops     *ops.Server

	sup *supervisor.Supervisor
}

func New(cfgm *config.Manager, opts Options) (*App, error) {
	cfg := cfgm.Get()
	if cfg == nil {
		var err error
		if cfg, err = cfgm.Load(); err != nil {
			return nil, err
		}
	}

	logSvc, log := logx.New(mapLogging(cfg))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))
	loc := location(cfg)

	ad := opts.Adapter
	if ad == nil {
		tg, err := telegram.New(mapTelegram(cfg), log.With(logx.String("comp", "telegram")))
		if err != nil {
			return nil, fmt.Errorf("telegram: %w", err)
		}
		ad = tg
	}

	m := metrics.New()
	eng := broadcast.New(mapBroadcast(cfg), log.With(logx.String("comp", "broadcast")), broadcast.WithObserver(m))
	core, err := openCore(cfg, log, scheduler.Deps{
		Fanout:   eng,
		Sender:   telegram.NewChannelSender(ad, cfg.Telegram.ParseMode),
		Bus:      eventbus.New(),
		Recorder: m,
	})
	if err != nil {
		return nil, err
	}

	a := &App{
		cfgm:    cfgm,
		log:     log.With(logx.String("comp", "app")),
		logs:    logSvc,
		core:    core,
		adapter: ad,
		engine:  eng,
		metrics: m,
		notif:   notifier.New(mapNotifier(cfg, loc), ad, core.Bus, log),
		maint:   core.Maintenance,
	}
	if cfg.Ops.Enabled {
		a.ops = ops.New(mapOps(cfg), ops.Deps{
			Metrics: m.Handler(),
			Healthy: a.healthy,
			Stats: func(ctx context.Context) (any, error) {
				return core.Scheduler.Stats(ctx)
			},
		}, log)
	}
	return a, nil
}

func (a *App) Scheduler() *scheduler.Service { return a.core.Scheduler }

// Done is closed when the app context ends (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) healthy(ctx context.Context) error {
	if !a.core.Scheduler.Running() {
		return errors.New("scheduler not running")
	}
	if _, err := a.core.Store.Get(ctx, "healthz"); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("store: %w", err)
	}
	return nil
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	c := a.sup.Context()

	a.notif.Start(c)
	if err := a.core.Scheduler.Start(c); err != nil {
		return err
	}
	if err := a.maint.Start(c); err != nil {
		return fmt.Errorf("maintenance: %w", err)
	}
	if a.ops != nil {
		if err := a.ops.Start(c); err != nil {
			return fmt.Errorf("ops: %w", err)
		}
	}

	events, unsub := a.core.Bus.Subscribe(128)
	a.sup.Go0("events.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				if je, ok := e.Data.(eventbus.JobEvent); ok {
					a.log.Debug("event", logx.String("type", e.Type), logx.String("job_id", je.Summary.ID), logx.String("status", string(je.Summary.Status)))
				}
			}
		}
	})

	sub := a.cfgm.Subscribe(4)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
	})
	a.sup.Go("config.watch", a.cfgm.Watch)
	a.sup.Go0("systemd.watchdog", func(c context.Context) {
		systemd.Watchdog(c, a.core.Scheduler.Running)
	})

	if sent, err := systemd.Ready(); err != nil {
		a.log.Warn("sd_notify ready failed", logx.Err(err))
	} else if sent {
		a.log.Debug("sd_notify ready sent")
	}
	a.log.Info("castbot started", logx.String("config", a.cfgm.Path()))
	return nil
}

func (a *App) reloadLoop(ctx context.Context, sub <-chan *config.Config) {
	last := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case next, ok := <-sub:
			if !ok {
				return
			}
			a.apply(last, next)
			last = next
		}
	}
}

// apply pushes a reloaded config into every component that supports it.
func (a *App) apply(prev, next *config.Config) {
	changed, attrs := config.SummarizeChange(prev, next)
	if len(changed) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	loc := location(next)
	a.logs.Apply(mapLogging(next))
	a.engine.Apply(mapBroadcast(next))
	a.core.Scheduler.Apply(mapScheduler(next))
	a.notif.Apply(mapNotifier(next, loc))
	if err := a.maint.Apply(mapMaintenance(next, loc)); err != nil {
		a.log.Warn("maintenance config rejected; keeping previous", logx.Err(err))
	}
	if restart := config.RestartRequired(changed); len(restart) > 0 {
		a.log.Warn("restart required for some changes", logx.String("sections", strings.Join(restart, ",")))
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(changed, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

// Stop shuts components down in dependency order. The dispatcher goes
// first so an in-flight broadcast finishes and its report still reaches
// the notifier.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		err := a.core.Close()
		_ = a.logs.Close()
		return err
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	if _, err := systemd.Stopping(); err != nil {
		a.log.Debug("sd_notify stopping failed", logx.Err(err))
	}

	var errs []error
	step := func(name string, fn func(context.Context) error) {
		start := time.Now()
		if err := fn(ctx); err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	}

	step("scheduler", a.core.Scheduler.Stop)
	step("maintenance", func(c context.Context) error { a.maint.Stop(c); return nil })
	step("notifier", func(c context.Context) error { a.notif.Stop(c); return nil })
	if a.ops != nil {
		step("ops", func(c context.Context) error { a.ops.Stop(c); return nil })
	}
	step("supervisor", func(c context.Context) error {
		if err := a.sup.Stop(c); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	step("store", func(context.Context) error { return a.core.Close() })

	a.log.Info("stopped")
	_ = a.logs.Close()
	return errors.Join(errs...)
}
