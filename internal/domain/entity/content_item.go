// Package entity defines the core domain entities of the market pipeline.
// It contains the uniform ContentItem shape produced by every source adapter,
// the AnalysisResult returned by the generative backend, and the ProcessedIdSet
// that carries deduplication state across runs.
package entity

import (
	"fmt"
	"strings"
)

// SourceKind identifies which connector produced a ContentItem.
type SourceKind string

const (
	// SourceNews is a finance news article (RSS).
	SourceNews SourceKind = "NEWS"
	// SourceForum is a forum post (subreddit listing).
	SourceForum SourceKind = "FORUM"
)

// SourceOrder is the fixed precedence used when concatenating new items.
var SourceOrder = []SourceKind{SourceNews, SourceForum}

// String returns the wire name of the source.
func (k SourceKind) String() string {
	return string(k)
}

// Valid reports whether k is one of the known sources.
func (k SourceKind) Valid() bool {
	return k == SourceNews || k == SourceForum
}

// MaxExcerptRunes bounds ContentItem.BodyExcerpt. Adapters truncate at ingestion.
const MaxExcerptRunes = 500

// ContentItem is one unit of ingested text.
// ID is the only deduplication key; TopicTag and RankHint are provenance only.
type ContentItem struct {
	ID          string
	Source      SourceKind
	TopicTag    string // ticker symbol or subreddit name
	Title       string
	BodyExcerpt string
	URL         string
	RankHint    *float64
}

// Validate checks the fields a connector must always supply.
func (c ContentItem) Validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return &ValidationError{Field: "id", Message: "id is required"}
	}
	if !c.Source.Valid() {
		return &ValidationError{Field: "source", Message: fmt.Sprintf("unknown source %q", c.Source)}
	}
	return nil
}

// Rank returns the rank hint or 0 when absent.
func (c ContentItem) Rank() float64 {
	if c.RankHint == nil {
		return 0
	}
	return *c.RankHint
}

// Float64Ptr is a small helper for building RankHint values.
func Float64Ptr(v float64) *float64 {
	return &v
}
