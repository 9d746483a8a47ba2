// Package llm defines the text-generation capability consumed by the
// cognitive runtime.
//
// Every component that talks to a language model (reflection, planning,
// deliberation, the conversational turn itself) depends only on the Provider
// interface defined here, never on a concrete vendor client. Providers may be
// slow or unavailable; callers are expected to bound each call with a context
// timeout and to carry a deterministic local fallback.
package llm

import "context"

// Provider is the text-generation capability.
//
// Implementations live in subpackages (openai, ollama). They must be safe for
// concurrent use: several turns, reflections, and deliberations can be in
// flight at once.
type Provider interface {
	// Generate produces text for a single user prompt.
	Generate(ctx context.Context, prompt string, opts ...GenerateOption) (string, error)

	// GenerateWithMessages produces text for a full conversation, including
	// system, user, and assistant messages.
	GenerateWithMessages(ctx context.Context, messages []Message, opts ...GenerateOption) (string, error)

	// Close releases provider resources.
	Close() error
}

// Message is one entry of a conversation passed to a Provider.
type Message struct {
	// Role is "system", "user", or "assistant".
	Role string `json:"role"`

	// Content is the message text.
	Content string `json:"content"`
}

// GenerateOptions holds tunable generation parameters.
type GenerateOptions struct {
	// Temperature controls randomness (0.0-2.0).
	Temperature float64

	// MaxTokens caps the response length.
	MaxTokens int

	// TopP controls nucleus sampling (0.0-1.0).
	TopP float64

	// Stop lists sequences that end generation early.
	Stop []string
}

// GenerateOption configures a single generation call.
type GenerateOption func(*GenerateOptions)

// WithTemperature sets the sampling temperature.
func WithTemperature(temp float64) GenerateOption {
	return func(opts *GenerateOptions) {
		opts.Temperature = temp
	}
}

// WithMaxTokens caps the number of tokens in the response.
func WithMaxTokens(max int) GenerateOption {
	return func(opts *GenerateOptions) {
		opts.MaxTokens = max
	}
}

// WithTopP sets the nucleus-sampling parameter.
func WithTopP(topP float64) GenerateOption {
	return func(opts *GenerateOptions) {
		opts.TopP = topP
	}
}

// WithStop sets stop sequences for the call.
func WithStop(stop ...string) GenerateOption {
	return func(opts *GenerateOptions) {
		opts.Stop = stop
	}
}

// ApplyGenerateOptions folds a slice of options over the defaults
// (Temperature 0.7, MaxTokens 1000, TopP 1.0). Used by provider
// implementations.
func ApplyGenerateOptions(opts []GenerateOption) *GenerateOptions {
	options := &GenerateOptions{
		Temperature: 0.7,
		MaxTokens:   1000,
		TopP:        1.0,
	}
	for _, opt := range opts {
		opt(options)
	}
	return options
}
