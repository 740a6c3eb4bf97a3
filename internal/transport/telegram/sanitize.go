package telegram

import (
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var codeClass = regexp.MustCompile(`^language-[\w+#-]+$`)

// newHTMLPolicy keeps the tag set Telegram's HTML parse mode accepts and
// drops everything else, so one stray <div> cannot fail a whole broadcast.
func newHTMLPolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowStandardURLs()
	p.AllowRelativeURLs(false)
	p.RequireNoFollowOnLinks(false)
	p.AllowURLSchemes("tg")

	p.AllowElements("b", "strong", "i", "em", "u", "ins", "s", "strike", "del",
		"code", "pre", "blockquote", "tg-spoiler")
	p.AllowAttrs("href").OnElements("a")
	p.AllowAttrs("class").Matching(regexp.MustCompile(`^tg-spoiler$`)).OnElements("span")
	p.AllowAttrs("class").Matching(codeClass).OnElements("code")
	return p
}

func isHTML(parseMode string) bool {
	return strings.EqualFold(strings.TrimSpace(parseMode), "html")
}
