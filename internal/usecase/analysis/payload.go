package analysis

import (
	"fmt"
	"strings"

	"market-xbot/internal/domain/entity"
	"market-xbot/internal/utils/text"
)

// PayloadLimits bounds the text sent to the backend. All limits are in runes.
type PayloadLimits struct {
	// MaxItemsPerSource is how many items of each source are rendered.
	MaxItemsPerSource int
	// MaxExcerptRunes caps each item's body excerpt.
	MaxExcerptRunes int
	// MaxTotalRunes caps the whole payload.
	MaxTotalRunes int
}

// DefaultPayloadLimits returns 10 items per source, 200-rune excerpts and an
// 8000-rune payload.
func DefaultPayloadLimits() PayloadLimits {
	return PayloadLimits{
		MaxItemsPerSource: 10,
		MaxExcerptRunes:   200,
		MaxTotalRunes:     8000,
	}
}

// normalized fills non-positive limits from the defaults.
func (l PayloadLimits) normalized() PayloadLimits {
	def := DefaultPayloadLimits()
	if l.MaxItemsPerSource <= 0 {
		l.MaxItemsPerSource = def.MaxItemsPerSource
	}
	if l.MaxExcerptRunes <= 0 {
		l.MaxExcerptRunes = def.MaxExcerptRunes
	}
	if l.MaxTotalRunes <= 0 {
		l.MaxTotalRunes = def.MaxTotalRunes
	}
	return l
}

const (
	newsHeading  = "## ニュース (NEWS)"
	forumHeading = "## フォーラム注目投稿 (FORUM)"
)

// BuildPayload renders news and forum items into one text block.
//
// Only the first MaxItemsPerSource items of each source are read, so the
// work done is bounded no matter how long the input slices are. Lines are
// appended until MaxTotalRunes is reached and the result is cut there.
//
// Example output:
//
//	## ニュース (NEWS)
//	- [NVDA] X rallies
//	  excerpt...
//
//	## フォーラム注目投稿 (FORUM)
//	- [r/stocks] Earnings thread (score: 412)
func BuildPayload(news, forum []entity.ContentItem, limits PayloadLimits) string {
	limits = limits.normalized()
	w := &boundedWriter{max: limits.MaxTotalRunes}

	if len(news) > 0 {
		w.line(newsHeading)
		for _, item := range head(news, limits.MaxItemsPerSource) {
			w.line(fmt.Sprintf("- [%s] %s", item.TopicTag, w.clip(item.Title)))
			w.excerpt(item.BodyExcerpt, limits.MaxExcerptRunes)
		}
	}

	if len(forum) > 0 {
		if w.n > 0 {
			w.line("")
		}
		w.line(forumHeading)
		for _, item := range head(forum, limits.MaxItemsPerSource) {
			entry := fmt.Sprintf("- [r/%s] %s", item.TopicTag, w.clip(item.Title))
			if item.RankHint != nil {
				entry += fmt.Sprintf(" (score: %.0f)", *item.RankHint)
			}
			w.line(entry)
			w.excerpt(item.BodyExcerpt, limits.MaxExcerptRunes)
		}
	}

	return w.String()
}

func head(items []entity.ContentItem, n int) []entity.ContentItem {
	if len(items) > n {
		return items[:n]
	}
	return items
}

// boundedWriter joins lines with "\n" and stops accepting input at max runes.
type boundedWriter struct {
	b    strings.Builder
	n    int
	max  int
	full bool
}

func (w *boundedWriter) line(s string) {
	if w.full {
		return
	}
	if w.b.Len() > 0 {
		s = "\n" + s
	}
	remaining := w.max - w.n
	if c := text.CountRunes(s); c > remaining {
		s = text.TruncateRunes(s, remaining)
		w.full = true
	}
	w.b.WriteString(s)
	w.n += text.CountRunes(s)
}

// clip squashes s after cutting it to the writer's budget, so an oversized
// field never costs more than max runes of work.
func (w *boundedWriter) clip(s string) string {
	return text.Squash(text.TruncateRunes(s, w.max))
}

func (w *boundedWriter) excerpt(body string, max int) {
	body = text.Squash(text.TruncateRunes(body, max))
	if body == "" {
		return
	}
	w.line("  " + body)
}

func (w *boundedWriter) String() string {
	return w.b.String()
}
