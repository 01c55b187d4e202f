package analyzer

import (
	"context"
)

// Static returns a fixed reply. It backs ANALYZER_TYPE=static for local dry
// runs where no API key is available.
type Static struct {
	reply string
}

// DefaultStaticReply is a well-formed reply for a neutral dry run.
const DefaultStaticReply = `{"post_text":"$MKT 🐻 ドライランの投稿文です。実際の市場分析ではありません。","sentiment":"BEARISH","reason":"ドライラン用の固定応答。"}`

// NewStatic creates a Static backend. An empty reply uses DefaultStaticReply.
func NewStatic(reply string) *Static {
	if reply == "" {
		reply = DefaultStaticReply
	}
	return &Static{reply: reply}
}

// Name implements analysis.Backend.
func (s *Static) Name() string { return TypeStatic }

// Generate implements analysis.Backend.
func (s *Static) Generate(ctx context.Context, _, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return s.reply, nil
}
