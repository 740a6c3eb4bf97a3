package telegram

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitTextShortIsSingleChunk(t *testing.T) {
	t.Parallel()
	require.Equal(t, []string{"hello"}, splitText("hello", 10, ""))
}

func TestSplitTextPrefersNewline(t *testing.T) {
	t.Parallel()
	s := strings.Repeat("a", 6) + "\n" + strings.Repeat("b", 6)
	got := splitText(s, 10, "")
	require.Equal(t, []string{"aaaaaa", "bbbbbb"}, got)
}

func TestSplitTextHardCut(t *testing.T) {
	t.Parallel()
	got := splitText(strings.Repeat("x", 25), 10, "")
	require.Len(t, got, 3)
	for _, c := range got {
		assert.LessOrEqual(t, runeLen(c), 10)
	}
	assert.Equal(t, strings.Repeat("x", 25), strings.Join(got, ""))
}

func TestSplitTextKeepsHTMLTagsWhole(t *testing.T) {
	t.Parallel()
	s := "abcdef<b>bold</b>"
	got := splitText(s, 8, "HTML")
	require.NotEmpty(t, got)
	assert.Equal(t, "abcdef", got[0])
	assert.Equal(t, s, strings.Join(got, ""))
}

func TestSplitTextCountsRunes(t *testing.T) {
	t.Parallel()
	s := strings.Repeat("é", 10)
	require.Equal(t, []string{s}, splitText(s, 10, ""))
}
