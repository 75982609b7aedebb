package domain

import "context"

// Completer sends a single prompt to a language model and returns its text reply.
type Completer interface {
	Name() string
	Complete(ctx context.Context, prompt string) (string, error)
}

// Oracle is the natural-language service used for summaries and signal extraction.
type Oracle interface {
	// Summarize returns "" when there is nothing to say.
	Summarize(ctx context.Context, text string) (string, error)
	// Extract returns the raw model reply, expected to contain one JSON object.
	Extract(ctx context.Context, text string) (string, error)
}
