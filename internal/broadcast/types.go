package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"castbot/internal/schedule"
)

var (
	// ErrUnrecoverable marks a sender error that makes every remaining send
	// pointless (bad credentials, undecodable content). Dispatch aborts and
	// reports a job-level failure.
	ErrUnrecoverable = errors.New("unrecoverable send error")

	ErrNoTargets = errors.New("no targets")
)

// Sender delivers content to one target. It is the only I/O boundary of the
// engine.
type Sender interface {
	Send(ctx context.Context, content json.RawMessage, t schedule.Target) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, content json.RawMessage, t schedule.Target) error

func (f SenderFunc) Send(ctx context.Context, content json.RawMessage, t schedule.Target) error {
	return f(ctx, content, t)
}

// Unrecoverable wraps err so that errors.Is(err, ErrUnrecoverable) holds.
func Unrecoverable(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrUnrecoverable, err)
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks a per-target error that retrying will not fix
// (chat not found, bot kicked). It still only fails that one target.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

type Config struct {
	// Delay is the fixed pause between two consecutive sends.
	Delay time.Duration
	// SendTimeout bounds a single Send call. 0 means no per-send timeout.
	SendTimeout time.Duration
	RetryMax    int
	RetryDelay  time.Duration
	// RatePerSec caps sends per second on top of Delay. 0 disables it.
	RatePerSec float64
}

// Observer receives one call per send attempt. Used for metrics.
type Observer interface {
	ObserveSend(t schedule.Target, err error, took time.Duration)
}
