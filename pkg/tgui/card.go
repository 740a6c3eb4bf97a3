package tgui

import "strings"

// Card accumulates HTML lines. Plain strings passed to its methods are
// escaped; H values are taken as-is.
type Card struct {
	lines []string
}

func NewCard() *Card { return &Card{} }

func (c *Card) Title(emoji, title string) *Card {
	t := strings.TrimSpace(title)
	if t == "" {
		return c
	}
	line := B(t).String()
	if e := strings.TrimSpace(emoji); e != "" {
		line = Esc(e).String() + " " + line
	}
	c.lines = append(c.lines, line)
	return c
}

func (c *Card) Line(s string) *Card {
	c.lines = append(c.lines, Esc(s).String())
	return c
}

func (c *Card) Raw(h H) *Card {
	c.lines = append(c.lines, h.String())
	return c
}

func (c *Card) Blank() *Card {
	c.lines = append(c.lines, "")
	return c
}

// KV adds "key: value" with a bold key. Empty values are skipped.
func (c *Card) KV(key string, value H) *Card {
	if strings.TrimSpace(key) == "" || strings.TrimSpace(value.String()) == "" {
		return c
	}
	c.lines = append(c.lines, B(key).String()+": "+value.String())
	return c
}

func (c *Card) Bullet(h H) *Card {
	c.lines = append(c.lines, "• "+h.String())
	return c
}

func (c *Card) String() string {
	return strings.TrimRight(strings.Join(c.lines, "\n"), "\n")
}
