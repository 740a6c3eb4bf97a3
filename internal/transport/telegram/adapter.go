package telegram

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"castbot/internal/transport"
	"castbot/pkg/logx"
)

type Config struct {
	Token string
	// APIURL overrides the Bot API endpoint (self-hosted bot API servers).
	APIURL         string
	RequestTimeout time.Duration
}

type Adapter struct {
	cfg Config
	log logx.Logger
	bot *tele.Bot
}

var _ transport.Adapter = (*Adapter)(nil)

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		URL:    cfg.APIURL,
		Client: &http.Client{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	log.Info("telegram bot ready", logx.String("username", b.Me.Username))
	return &Adapter{cfg: cfg, log: log, bot: b}, nil
}

// usernameRecipient addresses a public chat by its @handle.
type usernameRecipient string

func (u usernameRecipient) Recipient() string { return "@" + string(u) }

func recipient(to transport.ChatTarget) tele.Recipient {
	if to.Username != "" {
		return usernameRecipient(to.Username)
	}
	return &tele.Chat{ID: to.ChatID}
}

func sendOptions(to transport.ChatTarget, parseMode string, disablePreview, silent bool) *tele.SendOptions {
	return &tele.SendOptions{
		ParseMode:             parseMode,
		DisableWebPagePreview: disablePreview,
		DisableNotification:   silent,
		ThreadID:              to.ThreadID,
	}
}

func refOf(to transport.ChatTarget, msg *tele.Message) transport.MessageRef {
	ref := transport.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID}
	if msg != nil {
		ref.MessageID = msg.ID
		if msg.Chat != nil {
			ref.ChatID = msg.Chat.ID
		}
	}
	return ref
}

// SendText sends text, split into several messages when it exceeds
// Telegram's limit. The returned ref points at the first message.
func (a *Adapter) SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error) {
	if opt == nil {
		opt = &transport.SendOptions{}
	}
	var first transport.MessageRef
	for i, chunk := range splitText(text, textLimit, opt.ParseMode) {
		if err := ctx.Err(); err != nil {
			return first, err
		}
		msg, err := a.bot.Send(recipient(to), chunk, sendOptions(to, opt.ParseMode, opt.DisablePreview, opt.Silent))
		if err != nil {
			return first, err
		}
		if i == 0 {
			first = refOf(to, msg)
		}
	}
	return first, nil
}

// SendPost delivers a post: text only, a single media item with caption, or
// an album. Link buttons go on the message that carries the text; albums
// cannot carry buttons, so a follow-up text message holds them.
func (a *Adapter) SendPost(ctx context.Context, to transport.ChatTarget, p transport.Post) (transport.MessageRef, error) {
	if err := p.Validate(); err != nil {
		return transport.MessageRef{}, err
	}
	if err := ctx.Err(); err != nil {
		return transport.MessageRef{}, err
	}
	opts := sendOptions(to, p.ParseMode, p.DisablePreview, p.Silent)
	markup := buttonsMarkup(p.Buttons)

	switch {
	case len(p.Media) == 0:
		if markup != nil {
			opts.ReplyMarkup = markup
		}
		msg, err := a.bot.Send(recipient(to), p.Text, opts)
		if err != nil {
			return transport.MessageRef{}, err
		}
		return refOf(to, msg), nil

	case len(p.Media) == 1 && runeLen(p.Text) <= captionLimit:
		if markup != nil {
			opts.ReplyMarkup = markup
		}
		msg, err := a.bot.Send(recipient(to), mediaItem(p.Media[0], p.Text), opts)
		if err != nil {
			return transport.MessageRef{}, err
		}
		return refOf(to, msg), nil

	default:
		caption := p.Text
		if runeLen(caption) > captionLimit {
			caption = ""
		}
		album := make(tele.Album, 0, len(p.Media))
		for i, m := range p.Media {
			c := ""
			if i == 0 {
				c = caption
			}
			album = append(album, mediaItem(m, c))
		}
		msgs, err := a.bot.SendAlbum(recipient(to), album, opts)
		if err != nil {
			return transport.MessageRef{}, err
		}
		var ref transport.MessageRef
		if len(msgs) > 0 {
			ref = refOf(to, &msgs[0])
		}
		text := ""
		if caption == "" {
			text = p.Text
		}
		if strings.TrimSpace(text) == "" && markup == nil {
			return ref, nil
		}
		if strings.TrimSpace(text) == "" {
			text = "⬆️"
		}
		follow := sendOptions(to, p.ParseMode, p.DisablePreview, p.Silent)
		if markup != nil {
			follow.ReplyMarkup = markup
		}
		if _, err := a.bot.Send(recipient(to), text, follow); err != nil {
			return ref, err
		}
		return ref, nil
	}
}

func mediaItem(m transport.Media, caption string) tele.Inputtable {
	file := tele.File{FileID: m.FileID}
	if m.FileID == "" {
		file = tele.FromURL(m.URL)
	}
	switch m.Kind {
	case transport.MediaVideo:
		return &tele.Video{File: file, Caption: caption}
	case transport.MediaDocument:
		return &tele.Document{File: file, Caption: caption}
	default:
		return &tele.Photo{File: file, Caption: caption}
	}
}

func buttonsMarkup(rows [][]transport.Button) *tele.ReplyMarkup {
	if len(rows) == 0 {
		return nil
	}
	rm := &tele.ReplyMarkup{}
	out := make([]tele.Row, 0, len(rows))
	for _, row := range rows {
		btns := make([]tele.Btn, 0, len(row))
		for _, b := range row {
			btns = append(btns, tele.Btn{Text: b.Text, URL: b.URL})
		}
		if len(btns) > 0 {
			out = append(out, rm.Row(btns...))
		}
	}
	if len(out) == 0 {
		return nil
	}
	rm.Inline(out...)
	return rm
}
