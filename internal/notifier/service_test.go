package notifier

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"castbot/internal/eventbus"
	"castbot/internal/schedule"
	"castbot/internal/transport"
	"castbot/pkg/logx"
)

type sent struct {
	to   int64
	text string
	opt  transport.SendOptions
}

type fakeAdapter struct {
	mu       sync.Mutex
	sent     []sent
	failures int
}

func (f *fakeAdapter) SendText(_ context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		return transport.MessageRef{}, errors.New("telegram: internal error (500)")
	}
	f.sent = append(f.sent, sent{to: to.ChatID, text: text, opt: *opt})
	return transport.MessageRef{ChatID: to.ChatID, MessageID: len(f.sent)}, nil
}

func (f *fakeAdapter) SendPost(context.Context, transport.ChatTarget, transport.Post) (transport.MessageRef, error) {
	return transport.MessageRef{}, errors.New("not used")
}

func (f *fakeAdapter) snapshot() []sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sent(nil), f.sent...)
}

var t0 = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func completedEvent() eventbus.JobEvent {
	return eventbus.JobEvent{
		Summary: schedule.JobSummary{ID: "job-1", Status: schedule.StatusCompleted, TargetCount: 2, Repeat: schedule.RepeatWeekly, ExecutedCount: 3, RepeatLimit: 3},
		Result: &schedule.DispatchResult{
			ExecutedAt: t0, TriggerTime: t0, TargetCount: 2, SuccessCount: 1, FailureCount: 1,
			Outcomes: map[string]schedule.TargetOutcome{
				"-100a": {Success: true, RespondedAt: t0},
				"-100b": {Success: false, Error: "chat <not> found", RespondedAt: t0},
			},
		},
	}
}

func TestRenderCompleted(t *testing.T) {
	t.Parallel()
	text, ok := Render(eventbus.JobCompleted, completedEvent(), nil)
	require.True(t, ok)
	assert.Contains(t, text, "<b>Broadcast completed</b>")
	assert.Contains(t, text, "<code>job-1</code>")
	assert.Contains(t, text, "3/3, weekly")
	assert.Contains(t, text, "1 sent, 1 failed of 2")
	assert.Contains(t, text, "<code>-100b</code>: chat &lt;not&gt; found")
	assert.NotContains(t, text, "-100a")
	assert.NotContains(t, text, "Next")
}

func TestRenderExecutedShowsNextRun(t *testing.T) {
	t.Parallel()
	ev := completedEvent()
	ev.Summary.Status = schedule.StatusPending
	ev.Summary.TriggerTime = t0.AddDate(0, 0, 7)
	loc := time.FixedZone("WIB", 7*3600)
	text, ok := Render(eventbus.JobExecuted, ev, loc)
	require.True(t, ok)
	assert.Contains(t, text, "Next</b>: 2025-03-17 16:00 WIB")
}

func TestRenderSkipsOtherEvents(t *testing.T) {
	t.Parallel()
	_, ok := Render(eventbus.JobScheduled, completedEvent(), nil)
	assert.False(t, ok)
}

func TestNotifierReportsToEveryOwner(t *testing.T) {
	t.Parallel()
	fa := &fakeAdapter{}
	bus := eventbus.New()
	n := New(Config{Enabled: true, OwnerIDs: []int64{11, 22}, RatePerSec: 100}, fa, bus, logx.Nop())
	n.Start(context.Background())
	t.Cleanup(func() { n.Stop(context.Background()) })

	bus.Publish(eventbus.Event{Type: eventbus.JobCompleted, Data: completedEvent()})
	bus.Publish(eventbus.Event{Type: eventbus.JobScheduled, Data: completedEvent()})

	require.Eventually(t, func() bool { return len(fa.snapshot()) == 2 }, 2*time.Second, 10*time.Millisecond)
	got := fa.snapshot()
	assert.Equal(t, int64(11), got[0].to)
	assert.Equal(t, int64(22), got[1].to)
	assert.Equal(t, "HTML", got[0].opt.ParseMode)
	assert.True(t, got[0].opt.DisablePreview)
}

func TestNotifyOwnersRetries(t *testing.T) {
	t.Parallel()
	fa := &fakeAdapter{failures: 2}
	n := New(Config{Enabled: true, OwnerIDs: []int64{1}, RatePerSec: 100, RetryMax: 2, RetryDelay: time.Millisecond}, fa, nil, logx.Nop())
	require.NoError(t, n.NotifyOwners(context.Background(), "hi"))
	assert.Len(t, fa.snapshot(), 1)
}

func TestNotifyOwnersGivesUp(t *testing.T) {
	t.Parallel()
	fa := &fakeAdapter{failures: 5}
	n := New(Config{Enabled: true, OwnerIDs: []int64{1}, RatePerSec: 100, RetryMax: 1, RetryDelay: time.Millisecond}, fa, nil, logx.Nop())
	require.Error(t, n.NotifyOwners(context.Background(), "hi"))
	assert.Empty(t, fa.snapshot())
}

func TestDisabledNotifier(t *testing.T) {
	t.Parallel()
	fa := &fakeAdapter{}
	n := New(Config{Enabled: false, OwnerIDs: []int64{1}}, fa, nil, logx.Nop())
	assert.False(t, n.Enabled())
	assert.ErrorIs(t, n.NotifyOwners(context.Background(), "x"), ErrDisabled)

	n.Apply(Config{Enabled: true})
	assert.False(t, n.Enabled(), "no owners")
	n.Apply(Config{Enabled: true, OwnerIDs: []int64{1}})
	assert.True(t, n.Enabled())
}
