package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"castbot/internal/schedule"
	"castbot/internal/scheduler"
	"castbot/internal/transport"
)

type scheduleOptions struct {
	targets   []string
	text      string
	textFile  string
	parseMode string
	at        string
	repeat    string
	limit     int
	photos    []string
	videos    []string
	documents []string
	buttons   []string
	silent    bool
	noPreview bool
}

func newScheduleCmd(o *rootOptions) *cobra.Command {
	so := &scheduleOptions{}
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Create a broadcast job",
		Long: `Create a job that posts the same content to every target.

Targets are chat ids or @usernames with an optional /thread suffix and an
optional :label, e.g. -1001234567890/7:support or @news:public.

--at accepts RFC3339 or "2006-01-02 15:04" in scheduler.timezone. Media
values containing "://" are sent by URL, anything else as a Telegram file id.
Each --button adds one row: "Text|https://example.com".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			core, err := o.openCore(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = core.Close() }()

			req, err := so.request(cmd.InOrStdin(), core.Location)
			if err != nil {
				return err
			}
			id, err := core.Scheduler.Schedule(cmd.Context(), req)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%d targets\n", id, req.TriggerTime.In(core.Location).Format(time.RFC3339), len(req.Targets))
			return nil
		},
	}
	f := cmd.Flags()
	f.StringArrayVarP(&so.targets, "target", "t", nil, "target id[:label] (repeatable)")
	f.StringVar(&so.text, "text", "", "post text")
	f.StringVar(&so.textFile, "text-file", "", "read post text from file (- for stdin)")
	f.StringVar(&so.parseMode, "parse-mode", "", "HTML, Markdown or MarkdownV2 (default from telegram.parse_mode)")
	f.StringVar(&so.at, "at", "", "trigger time")
	f.StringVar(&so.repeat, "repeat", "none", "none, daily, weekly or monthly")
	f.IntVar(&so.limit, "limit", 1, "total executions for repeating jobs")
	f.StringArrayVar(&so.photos, "photo", nil, "photo file id or URL (repeatable)")
	f.StringArrayVar(&so.videos, "video", nil, "video file id or URL (repeatable)")
	f.StringArrayVar(&so.documents, "document", nil, "document file id or URL (repeatable)")
	f.StringArrayVar(&so.buttons, "button", nil, `URL button "Text|URL" (repeatable, one per row)`)
	f.BoolVar(&so.silent, "silent", false, "send without notification")
	f.BoolVar(&so.noPreview, "no-preview", false, "disable link previews")
	_ = cmd.MarkFlagRequired("target")
	_ = cmd.MarkFlagRequired("at")
	return cmd
}

func (so *scheduleOptions) request(stdin io.Reader, loc *time.Location) (scheduler.Request, error) {
	targets, err := parseTargets(so.targets)
	if err != nil {
		return scheduler.Request{}, err
	}
	at, err := parseTime(so.at, loc)
	if err != nil {
		return scheduler.Request{}, err
	}
	repeat, err := schedule.ParseRepeat(so.repeat)
	if err != nil {
		return scheduler.Request{}, err
	}
	post, err := so.post(stdin)
	if err != nil {
		return scheduler.Request{}, err
	}
	content, err := transport.EncodePost(post)
	if err != nil {
		return scheduler.Request{}, err
	}
	return scheduler.Request{
		Content:     content,
		Targets:     targets,
		TriggerTime: at,
		Repeat:      repeat,
		RepeatLimit: so.limit,
	}, nil
}

func (so *scheduleOptions) post(stdin io.Reader) (transport.Post, error) {
	text := so.text
	switch so.textFile {
	case "":
	case "-":
		b, err := io.ReadAll(stdin)
		if err != nil {
			return transport.Post{}, fmt.Errorf("read stdin: %w", err)
		}
		text = string(b)
	default:
		b, err := os.ReadFile(so.textFile)
		if err != nil {
			return transport.Post{}, err
		}
		text = string(b)
	}

	p := transport.Post{
		Text:           strings.TrimRight(text, "\n"),
		ParseMode:      so.parseMode,
		Silent:         so.silent,
		DisablePreview: so.noPreview,
	}
	add := func(kind transport.MediaKind, refs []string) {
		for _, ref := range refs {
			m := transport.Media{Kind: kind}
			if strings.Contains(ref, "://") {
				m.URL = ref
			} else {
				m.FileID = ref
			}
			p.Media = append(p.Media, m)
		}
	}
	add(transport.MediaPhoto, so.photos)
	add(transport.MediaVideo, so.videos)
	add(transport.MediaDocument, so.documents)

	for _, raw := range so.buttons {
		text, url, ok := strings.Cut(raw, "|")
		if !ok || strings.TrimSpace(text) == "" || strings.TrimSpace(url) == "" {
			return transport.Post{}, fmt.Errorf("invalid button %q, want \"Text|URL\"", raw)
		}
		p.Buttons = append(p.Buttons, []transport.Button{{Text: strings.TrimSpace(text), URL: strings.TrimSpace(url)}})
	}
	return p, nil
}

// parseTargets splits "id[:label]" values and checks each id is addressable.
func parseTargets(raw []string) ([]schedule.Target, error) {
	out := make([]schedule.Target, 0, len(raw))
	for _, r := range raw {
		id, label, _ := strings.Cut(r, ":")
		id = strings.TrimSpace(id)
		if _, err := transport.ParseTarget(id); err != nil {
			return nil, err
		}
		out = append(out, schedule.Target{ID: id, Label: strings.TrimSpace(label)})
	}
	return out, nil
}

var timeLayouts = []string{
	"2006-01-02 15:04",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02T15:04:05",
}

// parseTime accepts RFC3339 or a local wall-clock time in loc.
func parseTime(raw string, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid time %q, want RFC3339 or \"2006-01-02 15:04\"", raw)
}
