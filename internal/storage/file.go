package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"castbot/internal/schedule"
	"castbot/pkg/logx"
)

const snapshotVersion = 1

// fileStore keeps every job in memory and rewrites one JSON snapshot on each
// mutation. A mutation is applied to a copy of the job map and only becomes
// visible once the snapshot was written, so a failed persist leaves memory
// untouched.
type fileStore struct {
	log  logx.Logger
	path string
	now  func() time.Time

	mu     sync.Mutex
	jobs   map[string]*schedule.Job
	closed bool
}

type snapshot struct {
	Version int                        `json:"version"`
	SavedAt time.Time                  `json:"saved_at"`
	Jobs    map[string]json.RawMessage `json:"jobs"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	s := &fileStore{log: log, path: path, now: time.Now, jobs: map[string]*schedule.Job{}}
	fixed, err := s.load()
	if err != nil {
		return nil, err
	}
	if fixed > 0 {
		log.Warn("back-filled incomplete job records", logx.Int("count", fixed), logx.String("path", path))
		if err := s.persist(s.jobs); err != nil {
			// Memory already holds the repaired records; the next mutation retries.
			log.Warn("rewrite after back-fill failed", logx.Err(err))
		}
	}
	log.Debug("file store opened", logx.String("path", path), logx.Int("jobs", len(s.jobs)))
	return s, nil
}

func (s *fileStore) load() (fixed int, err error) {
	b, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if len(strings.TrimSpace(string(b))) == 0 {
		return 0, nil
	}

	var snap snapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return 0, fmt.Errorf("decode %s: %w", s.path, err)
	}
	now := s.now()
	for key, raw := range snap.Jobs {
		j, lossy, err := schedule.DecodeRecord(raw)
		if err != nil {
			s.log.Warn("skipping job record", logx.String("id", key), logx.Err(err))
			continue
		}
		if lossy {
			s.log.Warn("job record had unreadable fields; using defaults", logx.String("id", key))
		}
		if j.ID == "" {
			j.ID = key
		}
		if schedule.Normalize(&j, now) || lossy || j.ID != key {
			fixed++
		}
		s.jobs[j.ID] = &j
	}
	return fixed, nil
}

// persist writes jobs as the new snapshot. Callers hold s.mu.
func (s *fileStore) persist(jobs map[string]*schedule.Job) error {
	snap := snapshot{Version: snapshotVersion, SavedAt: s.now(), Jobs: make(map[string]json.RawMessage, len(jobs))}
	for id, j := range jobs {
		raw, err := json.Marshal(j)
		if err != nil {
			return fmt.Errorf("encode job %s: %w", id, err)
		}
		snap.Jobs[id] = raw
	}
	b, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// commit persists next and, on success, swaps it in. Callers hold s.mu.
func (s *fileStore) commit(next map[string]*schedule.Job) error {
	if err := s.persist(next); err != nil {
		return fmt.Errorf("persist %s: %w", s.path, err)
	}
	s.jobs = next
	return nil
}

func (s *fileStore) Create(ctx context.Context, j *schedule.Job) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if j == nil {
		return "", errors.New("nil job")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", ErrClosed
	}

	cp := j.Clone()
	if cp.ID == "" {
		cp.ID = schedule.NewID()
	}
	if _, ok := s.jobs[cp.ID]; ok {
		return "", fmt.Errorf("%w: %s", ErrExists, cp.ID)
	}
	schedule.Normalize(cp, s.now())

	next := maps.Clone(s.jobs)
	next[cp.ID] = cp
	if err := s.commit(next); err != nil {
		return "", err
	}
	return cp.ID, nil
}

func (s *fileStore) Get(ctx context.Context, id string) (*schedule.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	j, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return j.Clone(), nil
}

func (s *fileStore) List(ctx context.Context, f Filter) ([]*schedule.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	out := make([]*schedule.Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		if f.match(j) {
			out = append(out, j.Clone())
		}
	}
	sortJobs(out)
	return out, nil
}

func (s *fileStore) Update(ctx context.Context, j *schedule.Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if j == nil || j.ID == "" {
		return errors.New("update requires a job with an id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if _, ok := s.jobs[j.ID]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, j.ID)
	}
	next := maps.Clone(s.jobs)
	next[j.ID] = j.Clone()
	return s.commit(next)
}

func (s *fileStore) Delete(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrClosed
	}
	if _, ok := s.jobs[id]; !ok {
		return false, nil
	}
	next := maps.Clone(s.jobs)
	delete(next, id)
	if err := s.commit(next); err != nil {
		return false, err
	}
	return true, nil
}

func (s *fileStore) Cancel(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrClosed
	}
	cur, ok := s.jobs[id]
	if !ok || cur.Status != schedule.StatusPending {
		return false, nil
	}
	cp := cur.Clone()
	if err := cp.Transition(schedule.StatusCancelled); err != nil {
		return false, err
	}
	next := maps.Clone(s.jobs)
	next[id] = cp
	if err := s.commit(next); err != nil {
		return false, err
	}
	return true, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
