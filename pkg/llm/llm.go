// Package llm abstracts the completion backend used for product
// identification, so the pipeline depends on a prompt-in/text-out surface
// rather than a vendor SDK.
package llm

import (
	"context"
)

// LLM produces a single completion for a prompt. Implementations own their
// transport, retries, and authentication.
type LLM interface {
	Generate(ctx context.Context, prompt string, opts ...Option) (string, error)
}

// Option overrides a per-call generation setting.
type Option func(*Options)

// Options collects per-call generation settings. Zero values mean "use the
// client's configured default".
type Options struct {
	Temperature float64
	MaxTokens   int
	Model       string
}

// WithTemperature overrides sampling temperature for one call. Identifier
// lookups want this low; the output is parsed, not read.
func WithTemperature(temp float64) Option {
	return func(o *Options) {
		o.Temperature = temp
	}
}

// WithMaxTokens bounds the completion length for one call.
func WithMaxTokens(tokens int) Option {
	return func(o *Options) {
		o.MaxTokens = tokens
	}
}

// WithModel overrides the model for one call.
func WithModel(model string) Option {
	return func(o *Options) {
		o.Model = model
	}
}
