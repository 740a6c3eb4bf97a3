package notifier

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"castbot/internal/eventbus"
	"castbot/internal/runtime/supervisor"
	"castbot/internal/transport"
	"castbot/pkg/logx"
)

var ErrDisabled = errors.New("notifier disabled")

// Service turns job events into owner reports. It is safe for concurrent use.
type Service struct {
	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter

	adapter transport.Adapter
	bus     eventbus.Bus
	log     logx.Logger

	sup   *supervisor.Supervisor
	unsub func()
}

func New(cfg Config, adapter transport.Adapter, bus eventbus.Bus, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{adapter: adapter, bus: bus, log: log.With(logx.String("comp", "notifier"))}
	s.applyLocked(cfg)
	return s
}

func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = defaultRatePerSec
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultRetryDelay
	}
	cfg.OwnerIDs = append([]int64(nil), cfg.OwnerIDs...)
	s.cfg = cfg
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), max(1, int(cfg.RatePerSec)))
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled && len(s.cfg.OwnerIDs) > 0 && s.adapter != nil
}

// Start subscribes to the bus. It is idempotent; a disabled notifier still
// subscribes so a later Apply can enable it without a restart.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sup != nil || s.bus == nil {
		return
	}
	ch, unsub := s.bus.Subscribe(64)
	s.unsub = unsub
	s.sup = supervisor.New(ctx, supervisor.WithLogger(s.log))
	s.sup.Go0("notifier.events", func(ctx context.Context) {
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-ch:
				if !ok {
					return
				}
				s.handle(ctx, ev)
			}
		}
	})
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	sup, unsub := s.sup, s.unsub
	s.sup, s.unsub = nil, nil
	s.mu.Unlock()
	if sup == nil {
		return
	}
	unsub()
	if err := sup.Stop(ctx); err != nil && !errors.Is(err, context.Canceled) {
		s.log.Warn("notifier stop", logx.Err(err))
	}
}

func (s *Service) handle(ctx context.Context, ev eventbus.Event) {
	je, ok := ev.Data.(eventbus.JobEvent)
	if !ok {
		return
	}
	s.mu.Lock()
	loc := s.cfg.Location
	s.mu.Unlock()
	text, ok := Render(ev.Type, je, loc)
	if !ok {
		return
	}
	if err := s.NotifyOwners(ctx, text); err != nil && !errors.Is(err, ErrDisabled) {
		s.log.Warn("owner report failed", logx.String("job_id", je.Summary.ID), logx.String("event", ev.Type), logx.Err(err))
	}
}

// NotifyOwners sends an HTML message to every owner chat. It returns the
// last error; one owner failing does not skip the others.
func (s *Service) NotifyOwners(ctx context.Context, html string) error {
	s.mu.Lock()
	cfg, lim := s.cfg, s.limiter
	s.mu.Unlock()
	if !cfg.Enabled || len(cfg.OwnerIDs) == 0 || s.adapter == nil {
		return ErrDisabled
	}
	var lastErr error
	for _, id := range cfg.OwnerIDs {
		if err := s.sendWithRetry(ctx, cfg, lim, transport.ChatTarget{ChatID: id}, html); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

func (s *Service) sendWithRetry(ctx context.Context, cfg Config, lim *rate.Limiter, to transport.ChatTarget, text string) error {
	opt := &transport.SendOptions{ParseMode: "HTML", DisablePreview: true}
	var err error
	for attempt := 0; attempt <= cfg.RetryMax; attempt++ {
		if attempt > 0 {
			t := time.NewTimer(cfg.RetryDelay)
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
		}
		if werr := lim.Wait(ctx); werr != nil {
			return werr
		}
		cctx, cancel := context.WithTimeout(ctx, sendTimeout)
		_, err = s.adapter.SendText(cctx, to, text, opt)
		cancel()
		if err == nil {
			return nil
		}
		s.log.Debug("owner send failed", logx.Int64("chat_id", to.ChatID), logx.Int("attempt", attempt+1), logx.Err(err))
	}
	return err
}
