package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"castbot/internal/broadcast"
	"castbot/internal/schedule"
	"castbot/internal/transport"
)

type fakeAdapter struct {
	mu    sync.Mutex
	posts map[string]transport.Post
	err   error
}

func (f *fakeAdapter) SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error) {
	return f.SendPost(ctx, to, transport.Post{Text: text})
}

func (f *fakeAdapter) SendPost(_ context.Context, to transport.ChatTarget, p transport.Post) (transport.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return transport.MessageRef{}, f.err
	}
	if f.posts == nil {
		f.posts = map[string]transport.Post{}
	}
	f.posts[to.String()] = p
	return transport.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: 1}, nil
}

func mustPost(t *testing.T, p transport.Post) json.RawMessage {
	t.Helper()
	raw, err := transport.EncodePost(p)
	require.NoError(t, err)
	return raw
}

func TestChannelSenderDelivers(t *testing.T) {
	t.Parallel()
	fa := &fakeAdapter{}
	s := NewChannelSender(fa, "")
	content := mustPost(t, transport.Post{Text: "weekly digest", ParseMode: "MarkdownV2"})

	require.NoError(t, s.Send(context.Background(), content, schedule.Target{ID: "-1001234"}))
	require.NoError(t, s.Send(context.Background(), content, schedule.Target{ID: "@news/7"}))

	assert.Equal(t, "weekly digest", fa.posts["-1001234"].Text)
	assert.Equal(t, "MarkdownV2", fa.posts["@news/7"].ParseMode)
}

func TestChannelSenderDefaultParseMode(t *testing.T) {
	t.Parallel()
	fa := &fakeAdapter{}
	s := NewChannelSender(fa, "HTML")
	require.NoError(t, s.Send(context.Background(), mustPost(t, transport.Post{Text: "<b>hi</b>"}), schedule.Target{ID: "5"}))
	assert.Equal(t, "HTML", fa.posts["5"].ParseMode)
}

func TestChannelSenderBadContentIsUnrecoverable(t *testing.T) {
	t.Parallel()
	s := NewChannelSender(&fakeAdapter{}, "")
	err := s.Send(context.Background(), json.RawMessage(`{"text":""}`), schedule.Target{ID: "-1"})
	require.ErrorIs(t, err, broadcast.ErrUnrecoverable)
	require.ErrorIs(t, err, transport.ErrInvalidPost)
}

func TestChannelSenderBadTargetIsPermanent(t *testing.T) {
	t.Parallel()
	s := NewChannelSender(&fakeAdapter{}, "")
	err := s.Send(context.Background(), mustPost(t, transport.Post{Text: "x"}), schedule.Target{ID: "not-a-chat"})
	require.Error(t, err)
	assert.True(t, broadcast.IsPermanent(err))
}

func TestChannelSenderClassifiesAdapterErrors(t *testing.T) {
	t.Parallel()
	fa := &fakeAdapter{err: errors.New("telegram: Forbidden: bot was blocked by the user (403)")}
	s := NewChannelSender(fa, "")
	err := s.Send(context.Background(), mustPost(t, transport.Post{Text: "x"}), schedule.Target{ID: "42"})
	assert.True(t, broadcast.IsPermanent(err))
}

func TestChannelSenderNilAdapter(t *testing.T) {
	t.Parallel()
	var s *ChannelSender
	err := s.Send(context.Background(), json.RawMessage(`{}`), schedule.Target{ID: "1"})
	assert.ErrorIs(t, err, broadcast.ErrUnrecoverable)
}

func TestChannelSenderSanitizesHTML(t *testing.T) {
	t.Parallel()
	fa := &fakeAdapter{}
	s := NewChannelSender(fa, "HTML")
	text := `<div><b>deal</b></div><script>alert(1)</script> <a href="https://example.com/x">link</a> <a href="javascript:alert(1)">bad</a>`
	require.NoError(t, s.Send(context.Background(), mustPost(t, transport.Post{Text: text}), schedule.Target{ID: "7"}))

	got := fa.posts["7"].Text
	assert.Contains(t, got, "<b>deal</b>")
	assert.Contains(t, got, `<a href="https://example.com/x">link</a>`)
	assert.NotContains(t, got, "div")
	assert.NotContains(t, got, "script")
	assert.NotContains(t, got, "javascript")
}

func TestChannelSenderLeavesMarkdownAlone(t *testing.T) {
	t.Parallel()
	fa := &fakeAdapter{}
	s := NewChannelSender(fa, "HTML")
	text := "*bold* <not a tag>"
	require.NoError(t, s.Send(context.Background(), mustPost(t, transport.Post{Text: text, ParseMode: "Markdown"}), schedule.Target{ID: "8"}))
	assert.Equal(t, text, fa.posts["8"].Text)
}
