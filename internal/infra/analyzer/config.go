// Package analyzer implements analysis.Backend on top of the Claude and
// OpenAI chat APIs. Each backend makes one request per Generate call behind
// a circuit breaker; retries belong to the caller.
package analyzer

import (
	"errors"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	openai "github.com/sashabaranov/go-openai"
)

// Backend type names accepted by ANALYZER_TYPE.
const (
	TypeClaude = "claude"
	TypeOpenAI = "openai"
	TypeStatic = "static"
)

// Config holds the request parameters shared by both backends.
type Config struct {
	// Model is the provider model identifier.
	Model string

	// MaxTokens bounds the reply. The JSON object is small; 1024 is plenty.
	MaxTokens int

	// Temperature is passed through unchanged (0-1).
	Temperature float64

	// Timeout bounds a single request.
	Timeout time.Duration

	// BaseURL overrides the provider endpoint. Empty uses the SDK default.
	BaseURL string
}

// DefaultClaudeConfig returns the Claude defaults.
func DefaultClaudeConfig() Config {
	return Config{
		Model:       string(anthropic.ModelClaudeSonnet4_5_20250929),
		MaxTokens:   1024,
		Temperature: 0.7,
		Timeout:     60 * time.Second,
	}
}

// DefaultOpenAIConfig returns the OpenAI defaults.
func DefaultOpenAIConfig() Config {
	return Config{
		Model:       openai.GPT4oMini,
		MaxTokens:   1024,
		Temperature: 0.7,
		Timeout:     60 * time.Second,
	}
}

// Validate checks every field and reports all problems at once.
func (c Config) Validate() error {
	var errs []error
	if c.Model == "" {
		errs = append(errs, errors.New("model cannot be empty"))
	}
	if c.MaxTokens <= 0 {
		errs = append(errs, fmt.Errorf("max tokens must be positive, got %d", c.MaxTokens))
	}
	if c.Temperature < 0 || c.Temperature > 1 {
		errs = append(errs, fmt.Errorf("temperature must be within 0-1, got %v", c.Temperature))
	}
	if c.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("timeout must be positive, got %v", c.Timeout))
	}
	return errors.Join(errs...)
}
