package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"castbot/internal/broadcast"
	"castbot/internal/eventbus"
	"castbot/internal/schedule"
	"castbot/internal/storage"
	"castbot/pkg/logx"
)

var (
	ErrInvalidRequest = errors.New("invalid schedule request")
	ErrLimitReached   = errors.New("pending job limit reached")
	ErrNoSender       = errors.New("scheduler has no fanout or sender")
)

const (
	DefaultCheckInterval    = 30 * time.Second
	DefaultMaxTargetsPerJob = 50
	DefaultMaxPendingJobs   = 100
)

type Config struct {
	CheckInterval time.Duration
	// MaxTargetsPerJob and MaxPendingJobs bound Schedule; <= 0 means no limit.
	MaxTargetsPerJob int
	MaxPendingJobs   int
}

// Fanout executes one job's content against its targets.
// *broadcast.Engine implements it.
type Fanout interface {
	Dispatch(ctx context.Context, content json.RawMessage, targets []schedule.Target, sender broadcast.Sender) (schedule.DispatchResult, error)
}

// Recorder receives loop-level measurements. All methods must be cheap.
type Recorder interface {
	TickFinished(took time.Duration, due int)
	JobFinished(status schedule.Status)
}

type Deps struct {
	Store  storage.Store
	Fanout Fanout
	Sender broadcast.Sender

	Bus      eventbus.Bus
	Log      logx.Logger
	Recorder Recorder
	// Now overrides the clock (tests).
	Now func() time.Time
}

// Request describes a new job. Targets are copied; later changes to the
// caller's slice do not affect the job.
type Request struct {
	Content     json.RawMessage
	Targets     []schedule.Target
	TriggerTime time.Time
	Repeat      schedule.RepeatPolicy
	RepeatLimit int
}
