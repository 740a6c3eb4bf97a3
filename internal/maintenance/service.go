package maintenance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"castbot/pkg/logx"
)

// Service owns a cron instance with up to two entries (cleanup and
// backup). Apply rebuilds the entries; it never runs a job itself.
type Service struct {
	mu       sync.Mutex
	cfg      Config
	parser   cron.Parser
	c        *cron.Cron
	cleaner  Cleaner
	exporter Exporter
	log      logx.Logger
	now      func() time.Time
	ctx      context.Context
}

func New(cfg Config, cleaner Cleaner, exporter Exporter, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:      normalize(cfg),
		parser:   cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		cleaner:  cleaner,
		exporter: exporter,
		log:      log.With(logx.String("comp", "maintenance")),
		now:      time.Now,
	}
}

func normalize(cfg Config) Config {
	if strings.TrimSpace(cfg.CleanupSpec) == "" {
		cfg.CleanupSpec = defaultCleanupSpec
	}
	if strings.TrimSpace(cfg.BackupSpec) == "" {
		cfg.BackupSpec = defaultBackupSpec
	}
	if cfg.Retention <= 0 {
		cfg.Retention = defaultRetention
	}
	if cfg.Compression == "" {
		cfg.Compression = CompressionGzip
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return cfg
}

// Validate parses the cron specs of the enabled jobs.
func (s *Service) Validate(cfg Config) error {
	cfg = normalize(cfg)
	var errs []error
	if cfg.CleanupEnabled {
		if _, err := s.parser.Parse(cfg.CleanupSpec); err != nil {
			errs = append(errs, fmt.Errorf("cleanup_spec %q: %w", cfg.CleanupSpec, err))
		}
	}
	if cfg.BackupEnabled {
		if _, err := s.parser.Parse(cfg.BackupSpec); err != nil {
			errs = append(errs, fmt.Errorf("backup_spec %q: %w", cfg.BackupSpec, err))
		}
		if strings.TrimSpace(cfg.BackupDir) == "" {
			errs = append(errs, ErrNoBackupDir)
		}
	}
	switch cfg.Compression {
	case CompressionGzip, CompressionZstd:
	default:
		errs = append(errs, fmt.Errorf("unknown compression %q", cfg.Compression))
	}
	return errors.Join(errs...)
}

func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}
	if err := s.Validate(s.cfg); err != nil {
		return err
	}
	s.ctx = ctx
	return s.startLocked()
}

func (s *Service) startLocked() error {
	cfg := s.cfg
	c := cron.New(
		cron.WithParser(s.parser),
		cron.WithLocation(cfg.Location),
		cron.WithChain(cron.Recover(cronLogger{s.log}), cron.SkipIfStillRunning(cronLogger{s.log})),
	)
	if cfg.CleanupEnabled {
		if _, err := c.AddFunc(cfg.CleanupSpec, func() { _, _ = s.RunCleanup(s.ctx) }); err != nil {
			return err
		}
	}
	if cfg.BackupEnabled {
		if _, err := c.AddFunc(cfg.BackupSpec, func() { _, _ = s.RunBackup(s.ctx) }); err != nil {
			return err
		}
	}
	c.Start()
	s.c = c
	s.log.Info("maintenance started",
		logx.Bool("cleanup", cfg.CleanupEnabled), logx.String("cleanup_spec", cfg.CleanupSpec),
		logx.Bool("backup", cfg.BackupEnabled), logx.String("backup_spec", cfg.BackupSpec))
	return nil
}

// Stop stops the cron and waits for a running job until ctx ends.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
		s.log.Warn("maintenance stop timed out")
	}
}

// Apply swaps the config. A running cron is rebuilt with the new entries.
func (s *Service) Apply(cfg Config) error {
	cfg = normalize(cfg)
	if err := s.Validate(cfg); err != nil {
		return err
	}
	s.mu.Lock()
	s.cfg = cfg
	old := s.c
	s.c = nil
	s.mu.Unlock()
	if old == nil {
		return nil
	}
	// Running jobs read the config under mu, so wait outside of it.
	<-old.Stop().Done()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}
	return s.startLocked()
}

func (s *Service) config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// RunCleanup deletes finished jobs older than the configured retention.
func (s *Service) RunCleanup(ctx context.Context) (int, error) {
	cfg := s.config()
	if s.cleaner == nil {
		return 0, errors.New("no cleaner")
	}
	n, err := s.cleaner.Cleanup(ctx, cfg.Retention)
	if err != nil {
		s.log.Error("cleanup failed", logx.Err(err))
		return n, err
	}
	s.log.Info("cleanup done", logx.Int("removed", n), logx.Duration("retention", cfg.Retention))
	return n, nil
}

// RunBackup writes one backup and prunes old ones.
func (s *Service) RunBackup(ctx context.Context) (string, error) {
	cfg := s.config()
	if s.exporter == nil {
		return "", errors.New("no exporter")
	}
	path, err := WriteBackup(ctx, s.exporter, cfg.BackupDir, cfg.Compression, s.now())
	if err != nil {
		s.log.Error("backup failed", logx.Err(err))
		return "", err
	}
	removed, err := PruneBackups(cfg.BackupDir, cfg.BackupKeep)
	if err != nil {
		s.log.Warn("backup prune failed", logx.Err(err))
	}
	s.log.Info("backup written", logx.String("path", path), logx.Int("pruned", removed))
	return path, nil
}

// cronLogger routes cron's own messages (recovered panics, skips) to logx.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, kv ...any) {
	l.log.Debug("cron: "+msg, logx.Any("kv", kv))
}

func (l cronLogger) Error(err error, msg string, kv ...any) {
	l.log.Error("cron: "+msg, logx.Err(err), logx.Any("kv", kv))
}
