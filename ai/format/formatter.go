// Package format enforces the presentation rules of coach answers: at most three
// list items unless more were asked for, no storage vocabulary, and sleep
// durations in hours and minutes.
package format

import (
	"context"
	"time"
)

// Formatter rewrites an answer so it follows the presentation rules.
type Formatter interface {
	Format(ctx context.Context, req *FormatRequest) (*FormatResponse, error)
}

type FormatRequest struct {
	Question string // the question as sent to the model
	Answer   string // candidate answer
}

type FormatResponse struct {
	Formatted string
	Changed   bool
	Source    string // "llm" | "passthrough"
	Latency   time.Duration
}
