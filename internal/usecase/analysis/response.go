package analysis

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"market-xbot/internal/domain/entity"
	"market-xbot/internal/utils/text"
)

// Response keys. All three are required.
const (
	keyPostText  = "post_text"
	keySentiment = "sentiment"
	keyReason    = "reason"
)

var requiredKeys = []string{keyPostText, keySentiment, keyReason}

// ParseResponse validates raw backend output and converts it to an
// AnalysisResult.
//
// raw must be exactly one JSON object (surrounding whitespace allowed, no
// markdown fence, no trailing data). post_text, sentiment and reason must be
// non-blank strings; unknown keys are ignored. sentiment must be exactly
// BULLISH or BEARISH. A post_text longer than entity.MaxPostRunes is cut to
// its first MaxPostRunes runes and Truncated is set.
func ParseResponse(raw string) (entity.AnalysisResult, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return entity.AnalysisResult{}, fmt.Errorf("%w: empty response", ErrMalformedResponse)
	}
	if strings.HasPrefix(trimmed, "```") {
		return entity.AnalysisResult{}, fmt.Errorf("%w: markdown fence around JSON", ErrMalformedResponse)
	}
	if trimmed[0] != '{' {
		return entity.AnalysisResult{}, fmt.Errorf("%w: expected a JSON object", ErrMalformedResponse)
	}

	dec := json.NewDecoder(strings.NewReader(trimmed))
	var obj map[string]json.RawMessage
	if err := dec.Decode(&obj); err != nil {
		return entity.AnalysisResult{}, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return entity.AnalysisResult{}, fmt.Errorf("%w: trailing data after JSON object", ErrMalformedResponse)
	}

	values := make(map[string]string, len(requiredKeys))
	for _, key := range requiredKeys {
		v, err := stringField(obj, key)
		if err != nil {
			return entity.AnalysisResult{}, err
		}
		values[key] = v
	}

	sentiment, err := entity.ParseSentiment(values[keySentiment])
	if err != nil {
		return entity.AnalysisResult{}, fmt.Errorf("%w: %q", ErrInvalidSentiment, values[keySentiment])
	}

	result := entity.AnalysisResult{
		PostText:  values[keyPostText],
		Sentiment: sentiment,
		Reason:    values[keyReason],
	}
	if text.CountRunes(result.PostText) > entity.MaxPostRunes {
		result.PostText = text.TruncateRunes(result.PostText, entity.MaxPostRunes)
		result.Truncated = true
	}
	return result, nil
}

func stringField(obj map[string]json.RawMessage, key string) (string, error) {
	raw, ok := obj[key]
	if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return "", fmt.Errorf("%w: %s", ErrMissingField, key)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("%w: %s is not a string", ErrMalformedResponse, key)
	}
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("%w: %s is blank", ErrMissingField, key)
	}
	return s, nil
}
