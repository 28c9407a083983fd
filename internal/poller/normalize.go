package poller

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
)

// itemURLPrefix is the canonical item page prefix; the item id is appended.
const itemURLPrefix = "https://www.bilibili.com/video/"

// ItemURL returns the canonical page URL for an item id.
func ItemURL(itemID string) string {
	return itemURLPrefix + itemID
}

// StripTags removes inline markup from s, decodes entities and collapses
// whitespace. Search results wrap highlighted words in tags such as
// <em class="keyword">.
func StripTags(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return collapseSpace(s)
	}

	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(s))
	for {
		switch z.Next() {
		case html.ErrorToken:
			// io.EOF is the only error a strings.Reader produces; a stray
			// '<' leaves the rest of the input unconsumed in Raw
			b.Write(z.Raw())
			return collapseSpace(b.String())
		case html.TextToken:
			b.Write(z.Text())
		case html.CommentToken:
			// an unterminated comment runs to the end of input; keep it as text
			if raw := z.Raw(); !bytes.HasSuffix(raw, []byte(">")) {
				b.Write(raw)
			}
		case html.StartTagToken, html.EndTagToken, html.SelfClosingTagToken:
			// tags separate words only when they are block-ish; inline
			// highlight tags must not split a word
			name, _ := z.TagName()
			if string(name) == "br" || string(name) == "p" {
				b.WriteByte(' ')
			}
		}
	}
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
