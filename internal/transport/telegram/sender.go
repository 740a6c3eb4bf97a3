package telegram

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/microcosm-cc/bluemonday"

	"castbot/internal/broadcast"
	"castbot/internal/schedule"
	"castbot/internal/transport"
)

// ChannelSender delivers job content (an encoded transport.Post) to one
// target through an Adapter. Posts without a parse mode get parseMode; HTML
// text is reduced to the tags Telegram accepts.
type ChannelSender struct {
	adapter   transport.Adapter
	parseMode string
	policy    *bluemonday.Policy
}

var _ broadcast.Sender = (*ChannelSender)(nil)

func NewChannelSender(a transport.Adapter, parseMode string) *ChannelSender {
	return &ChannelSender{adapter: a, parseMode: parseMode, policy: newHTMLPolicy()}
}

func (s *ChannelSender) Send(ctx context.Context, content json.RawMessage, t schedule.Target) error {
	if s == nil || s.adapter == nil {
		return broadcast.Unrecoverable(errors.New("telegram sender not configured"))
	}
	post, err := transport.DecodePost(content)
	if err != nil {
		// Same payload for every target: stop here.
		return broadcast.Unrecoverable(err)
	}
	if post.ParseMode == "" {
		post.ParseMode = s.parseMode
	}
	if isHTML(post.ParseMode) && s.policy != nil {
		post.Text = s.policy.Sanitize(post.Text)
	}
	to, err := transport.ParseTarget(t.ID)
	if err != nil {
		return broadcast.Permanent(err)
	}
	_, err = s.adapter.SendPost(ctx, to, post)
	return Classify(err)
}
