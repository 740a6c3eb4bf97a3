package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"castbot/internal/schedule"
	"castbot/pkg/logx"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS jobs (
	id           TEXT PRIMARY KEY,
	status       TEXT NOT NULL,
	trigger_time INTEGER NOT NULL,
	created_at   INTEGER NOT NULL,
	data         TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS jobs_status_trigger ON jobs(status, trigger_time);
`

// sqliteStore keeps one row per job. The JSON data column is authoritative;
// status and trigger_time are copies used for filtering and ordering.
type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
	now func() time.Time

	// writes are serialized so read-modify-write (Cancel) stays atomic.
	mu sync.Mutex
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()))
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = FULL")

	st := &sqliteStore{db: db, log: log, now: time.Now}
	ctx := context.Background()
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if err := st.backfill(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

// backfill rewrites rows whose records are missing fields.
func (s *sqliteStore) backfill(ctx context.Context) error {
	jobs, err := s.query(ctx, `SELECT id, data FROM jobs`)
	if err != nil {
		return err
	}
	fixed := 0
	for _, lj := range jobs {
		if !lj.fixed {
			continue
		}
		if lj.job.ID != lj.rowID {
			if _, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, lj.rowID); err != nil {
				return err
			}
		}
		if err := s.upsert(ctx, s.db, lj.job); err != nil {
			return fmt.Errorf("back-fill %s: %w", lj.rowID, err)
		}
		fixed++
	}
	if fixed > 0 {
		s.log.Warn("back-filled incomplete job records", logx.Int("count", fixed))
	}
	return nil
}

type loadedJob struct {
	rowID string
	job   *schedule.Job
	fixed bool
}

func (s *sqliteStore) query(ctx context.Context, q string, args ...any) ([]loadedJob, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	now := s.now()
	var out []loadedJob
	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, err
		}
		j, lossy, err := schedule.DecodeRecord([]byte(data))
		if err != nil {
			s.log.Warn("skipping job record", logx.String("id", id), logx.Err(err))
			continue
		}
		if lossy {
			s.log.Warn("job record had unreadable fields; using defaults", logx.String("id", id))
		}
		if j.ID == "" {
			j.ID = id
		}
		fixed := schedule.Normalize(&j, now) || lossy || j.ID != id
		out = append(out, loadedJob{rowID: id, job: &j, fixed: fixed})
	}
	return out, rows.Err()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *sqliteStore) upsert(ctx context.Context, db execer, j *schedule.Job) error {
	data, err := json.Marshal(j)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx,
		`INSERT INTO jobs(id, status, trigger_time, created_at, data) VALUES(?,?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET status=excluded.status, trigger_time=excluded.trigger_time,
		 created_at=excluded.created_at, data=excluded.data`,
		j.ID, string(j.Status), j.TriggerTime.UnixMilli(), j.CreatedAt.UnixMilli(), string(data),
	)
	return err
}

func (s *sqliteStore) Create(ctx context.Context, j *schedule.Job) (string, error) {
	if j == nil {
		return "", errors.New("nil job")
	}
	cp := j.Clone()
	if cp.ID == "" {
		cp.ID = schedule.NewID()
	}
	schedule.Normalize(cp, s.now())
	data, err := json.Marshal(cp)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO jobs(id, status, trigger_time, created_at, data) VALUES(?,?,?,?,?)`,
		cp.ID, string(cp.Status), cp.TriggerTime.UnixMilli(), cp.CreatedAt.UnixMilli(), string(data),
	)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "unique") {
			return "", fmt.Errorf("%w: %s", ErrExists, cp.ID)
		}
		return "", err
	}
	return cp.ID, nil
}

func (s *sqliteStore) Get(ctx context.Context, id string) (*schedule.Job, error) {
	jobs, err := s.query(ctx, `SELECT id, data FROM jobs WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return jobs[0].job, nil
}

func (s *sqliteStore) List(ctx context.Context, f Filter) ([]*schedule.Job, error) {
	var (
		where []string
		args  []any
	)
	if len(f.Statuses) > 0 {
		ph := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			ph[i] = "?"
			args = append(args, string(st))
		}
		where = append(where, "status IN ("+strings.Join(ph, ",")+")")
	}
	if !f.DueBefore.IsZero() {
		where = append(where, "trigger_time <= ?")
		args = append(args, f.DueBefore.UnixMilli())
	}
	q := `SELECT id, data FROM jobs`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += ` ORDER BY trigger_time, created_at, id`

	loaded, err := s.query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	out := make([]*schedule.Job, 0, len(loaded))
	for _, lj := range loaded {
		// Columns are millisecond copies; re-check against the record itself.
		if f.match(lj.job) {
			out = append(out, lj.job)
		}
	}
	sortJobs(out)
	return out, nil
}

func (s *sqliteStore) Update(ctx context.Context, j *schedule.Job) error {
	if j == nil || j.ID == "" {
		return errors.New("update requires a job with an id")
	}
	data, err := json.Marshal(j)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, trigger_time = ?, created_at = ?, data = ? WHERE id = ?`,
		string(j.Status), j.TriggerTime.UnixMilli(), j.CreatedAt.UnixMilli(), string(data), j.ID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, j.ID)
	}
	return nil
}

func (s *sqliteStore) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *sqliteStore) Cancel(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	var data string
	err = tx.QueryRowContext(ctx, `SELECT data FROM jobs WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	j, _, err := schedule.DecodeRecord([]byte(data))
	if err != nil {
		return false, fmt.Errorf("decode job %s: %w", id, err)
	}
	if j.ID == "" {
		j.ID = id
	}
	schedule.Normalize(&j, s.now())
	if j.Status != schedule.StatusPending {
		return false, nil
	}
	if err := j.Transition(schedule.StatusCancelled); err != nil {
		return false, err
	}
	if err := s.upsert(ctx, tx, &j); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
