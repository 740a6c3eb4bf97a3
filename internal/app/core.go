package app

import (
	"time"

	"castbot/internal/config"
	"castbot/internal/eventbus"
	"castbot/internal/maintenance"
	"castbot/internal/scheduler"
	"castbot/internal/storage"
	"castbot/pkg/logx"
)

// Core is the job store plus a scheduler that can create, inspect and
// mutate jobs but has no sender. The CLI uses it for offline commands;
// the daemon builds on top of it.
type Core struct {
	Store     storage.Store
	Scheduler *scheduler.Service
	// Maintenance runs cleanup and backups against Scheduler. Its cron is
	// only started by the daemon.
	Maintenance *maintenance.Service
	Bus         eventbus.Bus
	Location    *time.Location
}

func OpenCore(cfg *config.Config, log logx.Logger) (*Core, error) {
	return openCore(cfg, log, scheduler.Deps{})
}

func openCore(cfg *config.Config, log logx.Logger, deps scheduler.Deps) (*Core, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	sc := mapStorage(cfg)
	st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}
	bus := deps.Bus
	if bus == nil {
		bus = eventbus.New()
	}
	deps.Store = st
	deps.Bus = bus
	deps.Log = log
	loc := location(cfg)
	sched := scheduler.New(mapScheduler(cfg), deps)
	return &Core{
		Store:       st,
		Scheduler:   sched,
		Maintenance: maintenance.New(mapMaintenance(cfg, loc), sched, sched, log.With(logx.String("comp", "maintenance"))),
		Bus:         bus,
		Location:    loc,
	}, nil
}

func (c *Core) Close() error {
	if c == nil || c.Store == nil {
		return nil
	}
	return c.Store.Close()
}
