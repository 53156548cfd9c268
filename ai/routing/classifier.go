// Package routing decides whether a chat message needs the user's fitness data.
package routing

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hrygo/fitcoach/ai/core/llm"
	"github.com/hrygo/fitcoach/ai/prompts"
)

// Decision is the routing outcome of one message.
type Decision string

const (
	// Direct answers from general knowledge.
	Direct Decision = "direct"
	// NeedsData answers through the query agent.
	NeedsData Decision = "needs_data"
)

// Classification mode: deterministic and short.
const (
	classifyTemperature = 0
	classifyMaxTokens   = 5
)

// Classify maps the raw classifier output to a Decision. Any output containing
// "data" (case-insensitive) needs data; everything else, including empty or
// ambiguous output, is Direct.
func Classify(raw string) Decision {
	if strings.Contains(strings.ToLower(raw), "data") {
		return NeedsData
	}
	return Direct
}

// Classifier asks the model whether a question needs user data.
type Classifier struct {
	llm    llm.Service
	prompt prompts.ChatPrompt
	logger *slog.Logger
}

func NewClassifier(llmSvc llm.Service, prompt prompts.ChatPrompt) *Classifier {
	return &Classifier{llm: llmSvc, prompt: prompt, logger: slog.Default()}
}

// Classify runs one constrained model call. Model errors are returned as-is
// wrapped; they are not mapped to a Decision.
func (c *Classifier) Classify(ctx context.Context, question string, history []llm.Message) (Decision, error) {
	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.SystemPrompt(c.prompt.System))
	messages = append(messages, history...)
	messages = append(messages, llm.UserMessage(prompts.Render(c.prompt.Human, map[string]string{"question": question})))

	raw, _, err := c.llm.Chat(ctx, messages,
		llm.WithTemperature(classifyTemperature),
		llm.WithMaxTokens(classifyMaxTokens),
	)
	if err != nil {
		return Direct, fmt.Errorf("classify: %w", err)
	}

	decision := Classify(raw)
	c.logger.DebugContext(ctx, "routing: message classified",
		"raw", strings.TrimSpace(raw),
		"decision", decision,
		"history_len", len(history),
	)
	return decision, nil
}
