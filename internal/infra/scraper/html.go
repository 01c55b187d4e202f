package scraper

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"market-xbot/internal/utils/text"
)

// HTMLToText returns the visible text of an HTML fragment with whitespace
// collapsed. Plain text is returned squashed. Unparseable markup falls back
// to the raw input.
func HTMLToText(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return text.Squash(s)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return text.Squash(s)
	}
	doc.Find("script, style").Remove()
	return text.Squash(doc.Text())
}
