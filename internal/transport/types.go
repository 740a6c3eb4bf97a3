package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ChatTarget addresses one chat. Either ChatID or Username is set.
type ChatTarget struct {
	ChatID   int64
	Username string // public channel handle without '@'
	ThreadID int    // forum topic thread id (0 if none)
}

func (t ChatTarget) String() string {
	var s string
	if t.Username != "" {
		s = "@" + t.Username
	} else {
		s = strconv.FormatInt(t.ChatID, 10)
	}
	if t.ThreadID != 0 {
		s += "/" + strconv.Itoa(t.ThreadID)
	}
	return s
}

// ParseTarget parses a target id: "-1001234567890", "@channel", with an
// optional "/<thread>" suffix for forum topics.
func ParseTarget(id string) (ChatTarget, error) {
	s := strings.TrimSpace(id)
	var t ChatTarget
	if i := strings.LastIndex(s, "/"); i > 0 {
		th, err := strconv.Atoi(s[i+1:])
		if err != nil || th <= 0 {
			return ChatTarget{}, fmt.Errorf("invalid thread in target %q", id)
		}
		t.ThreadID = th
		s = s[:i]
	}
	if strings.HasPrefix(s, "@") {
		name := strings.TrimPrefix(s, "@")
		if name == "" || strings.ContainsAny(name, " @") {
			return ChatTarget{}, fmt.Errorf("invalid username in target %q", id)
		}
		t.Username = name
		return t, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n == 0 {
		return ChatTarget{}, fmt.Errorf("invalid chat id in target %q", id)
	}
	t.ChatID = n
	return t, nil
}

type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
	Silent         bool
}

type MediaKind string

const (
	MediaPhoto    MediaKind = "photo"
	MediaVideo    MediaKind = "video"
	MediaDocument MediaKind = "document"
)

// Media references a file by Telegram file id or by URL.
type Media struct {
	Kind   MediaKind `json:"kind"`
	FileID string    `json:"file_id,omitempty"`
	URL    string    `json:"url,omitempty"`
}

type Button struct {
	Text string `json:"text"`
	URL  string `json:"url"`
}

// Post is the content payload scheduled jobs carry. The scheduler treats it
// as opaque JSON; only the channel sender decodes it.
type Post struct {
	Text           string     `json:"text,omitempty"`
	ParseMode      string     `json:"parse_mode,omitempty"`
	DisablePreview bool       `json:"disable_preview,omitempty"`
	Silent         bool       `json:"silent,omitempty"`
	Media          []Media    `json:"media,omitempty"`
	Buttons        [][]Button `json:"buttons,omitempty"`
}

var ErrInvalidPost = errors.New("invalid post")

const maxAlbumSize = 10

func (p Post) Validate() error {
	if strings.TrimSpace(p.Text) == "" && len(p.Media) == 0 {
		return fmt.Errorf("%w: text or media required", ErrInvalidPost)
	}
	if len(p.Media) > maxAlbumSize {
		return fmt.Errorf("%w: at most %d media items", ErrInvalidPost, maxAlbumSize)
	}
	for i, m := range p.Media {
		switch m.Kind {
		case MediaPhoto, MediaVideo, MediaDocument:
		default:
			return fmt.Errorf("%w: media[%d]: unknown kind %q", ErrInvalidPost, i, m.Kind)
		}
		if m.FileID == "" && m.URL == "" {
			return fmt.Errorf("%w: media[%d]: file_id or url required", ErrInvalidPost, i)
		}
	}
	for _, row := range p.Buttons {
		for _, b := range row {
			if b.Text == "" || b.URL == "" {
				return fmt.Errorf("%w: buttons need text and url", ErrInvalidPost)
			}
		}
	}
	return nil
}

func DecodePost(raw json.RawMessage) (Post, error) {
	var p Post
	if err := json.Unmarshal(raw, &p); err != nil {
		return Post{}, fmt.Errorf("%w: %v", ErrInvalidPost, err)
	}
	if err := p.Validate(); err != nil {
		return Post{}, err
	}
	return p, nil
}

// EncodePost validates p and returns it as job content.
func EncodePost(p Post) (json.RawMessage, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(p)
}

// Adapter is the outbound side of a chat platform.
type Adapter interface {
	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
	SendPost(ctx context.Context, to ChatTarget, p Post) (MessageRef, error)
}
