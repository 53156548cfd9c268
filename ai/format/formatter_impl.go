package format

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hrygo/fitcoach/ai/core/llm"
	"github.com/hrygo/fitcoach/ai/prompts"
)

// Judge is the LLM-backed Formatter. Answers the Checker already finds
// compliant pass through unchanged, byte for byte.
type Judge struct {
	llm     llm.Service
	prompt  prompts.ChatPrompt
	checker *Checker
	timeout time.Duration
	logger  *slog.Logger
}

func NewJudge(llmSvc llm.Service, prompt prompts.ChatPrompt, checker *Checker) *Judge {
	if checker == nil {
		checker = NewChecker(nil)
	}
	return &Judge{
		llm:     llmSvc,
		prompt:  prompt,
		checker: checker,
		timeout: 60 * time.Second,
		logger:  slog.Default(),
	}
}

func (j *Judge) Format(ctx context.Context, req *FormatRequest) (*FormatResponse, error) {
	start := time.Now()

	report := j.checker.Check(req.Question, req.Answer)
	if report.Compliant() {
		return passthrough(req.Answer, start), nil
	}
	j.logger.DebugContext(ctx, "judge: answer breaks presentation rules",
		"list_items", report.ListItems,
		"list_limit", report.ListLimit,
		"storage_terms", report.StorageTerms,
		"raw_minutes", report.RawMinutes,
	)

	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	messages := []llm.Message{
		llm.SystemPrompt(j.prompt.System),
		llm.UserMessage(prompts.Render(j.prompt.Human, map[string]string{
			"question": req.Question,
			"answer":   req.Answer,
		})),
	}
	content, _, err := j.llm.Chat(ctx, messages, llm.WithTemperature(0))
	if err != nil {
		return nil, fmt.Errorf("judge: %w", err)
	}

	formatted := parseFormattedContent(content)
	if formatted == "" {
		return passthrough(req.Answer, start), nil
	}
	return &FormatResponse{
		Formatted: formatted,
		Changed:   formatted != req.Answer,
		Source:    "llm",
		Latency:   time.Since(start),
	}, nil
}

func passthrough(answer string, start time.Time) *FormatResponse {
	return &FormatResponse{
		Formatted: answer,
		Changed:   false,
		Source:    "passthrough",
		Latency:   time.Since(start),
	}
}

func parseFormattedContent(content string) string {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```markdown")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	return strings.TrimSpace(content)
}
