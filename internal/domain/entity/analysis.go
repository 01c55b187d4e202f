package entity

import "fmt"

// Sentiment is the market direction reported by the analysis backend.
type Sentiment string

const (
	SentimentBullish Sentiment = "BULLISH"
	SentimentBearish Sentiment = "BEARISH"
)

// MaxPostRunes is the hard ceiling for AnalysisResult.PostText.
const MaxPostRunes = 280

// ParseSentiment accepts exactly BULLISH or BEARISH. Anything else, including
// different casing, is rejected.
func ParseSentiment(raw string) (Sentiment, error) {
	switch Sentiment(raw) {
	case SentimentBullish, SentimentBearish:
		return Sentiment(raw), nil
	default:
		return "", &ValidationError{Field: "sentiment", Message: fmt.Sprintf("unsupported value %q", raw)}
	}
}

// Emoji returns the marker used in reports.
func (s Sentiment) Emoji() string {
	if s == SentimentBullish {
		return "\U0001F402"
	}
	return "\U0001F43B"
}

// AnalysisResult is the validated output of one analysis call.
type AnalysisResult struct {
	PostText  string
	Sentiment Sentiment
	Reason    string
	// Truncated is set when PostText was cut down to MaxPostRunes.
	Truncated bool
}
