package tgui

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEscAndTags(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "a &lt;b&gt; &amp; c", Esc("a <b> & c").String())
	assert.Equal(t, "<b>x&lt;y</b>", B("x<y").String())
	assert.Equal(t, "<code>id</code>", Code("id").String())
	assert.Equal(t, `<a href="https://e.x/?a=1&amp;b=2">go</a>`, Link("go", "https://e.x/?a=1&b=2").String())
	assert.Equal(t, "a, b", JoinH(", ", "a", "b").String())
}

func TestTruncRunes(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "", TruncRunes("abc", 0))
	assert.Equal(t, "abc", TruncRunes("abc", 3))
	assert.Equal(t, "ab…", TruncRunes("abcdef", 3))
	assert.Equal(t, "éé…", TruncRunes("éééé", 3))
}

func TestCard(t *testing.T) {
	t.Parallel()
	got := NewCard().
		Title("✅", "Job <done>").
		KV("ID", Code("j1")).
		KV("Skipped", "").
		Blank().
		Bullet(Esc("a & b")).
		Line("tail").
		String()
	want := "✅ <b>Job &lt;done&gt;</b>\n<b>ID</b>: <code>j1</code>\n\n• a &amp; b\ntail"
	assert.Equal(t, want, got)
}
