// Package ai holds coach-level helpers shared by the API handlers.
package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hrygo/fitcoach/ai/core/llm"
	"github.com/hrygo/fitcoach/ai/internal/strutil"
	"github.com/hrygo/fitcoach/ai/prompts"
)

// LLM parameters for title generation
const (
	titleTimeout      = 15 * time.Second
	titleMaxTokens    = 30
	titleTemperature  = 0.1
	titleMaxLen       = 500
	titleMaxRuneCount = 80
)

// TitleGenerator names new conversations from their first exchange.
type TitleGenerator struct {
	llm      llm.Service
	template string
	logger   *slog.Logger
}

// NewTitleGenerator creates a title generator using the title template of the prompt set.
func NewTitleGenerator(llmSvc llm.Service, template string) *TitleGenerator {
	return &TitleGenerator{llm: llmSvc, template: template, logger: slog.Default()}
}

// Generate returns a short single-line title for the exchange.
func (tg *TitleGenerator) Generate(ctx context.Context, userMessage, aiResponse string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, titleTimeout)
	defer cancel()

	prompt := prompts.Render(tg.template, map[string]string{
		"user_message": strutil.Truncate(userMessage, titleMaxLen),
		"ai_response":  strutil.Truncate(aiResponse, titleMaxLen),
	})

	start := time.Now()
	content, stats, err := tg.llm.Chat(ctx, []llm.Message{llm.UserMessage(prompt)},
		llm.WithTemperature(titleTemperature),
		llm.WithMaxTokens(titleMaxTokens),
	)
	latency := time.Since(start)
	if err != nil {
		tg.logger.Error("title_generation_failed",
			"model", tg.llm.Model(),
			"error", err,
			"latency_ms", latency.Milliseconds())
		return "", fmt.Errorf("LLM request failed: %w", err)
	}

	title := CleanTitle(content)
	if title == "" {
		return "", errors.New("empty title in response")
	}

	attrs := []any{"model", tg.llm.Model(), "title", title, "latency_ms", latency.Milliseconds()}
	if stats != nil {
		attrs = append(attrs, "tokens_total", stats.TotalTokens)
	}
	tg.logger.Debug("title_generation_success", attrs...)
	return title, nil
}

// CleanTitle keeps the first non-empty line, drops a "Title:" label, markdown
// emphasis and surrounding quotes, and truncates to the maximum rune count.
func CleanTitle(raw string) string {
	var title string
	for _, line := range strings.Split(raw, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			title = line
			break
		}
	}
	if len(title) >= 6 && strings.EqualFold(title[:6], "title:") {
		title = strings.TrimSpace(title[6:])
	}
	title = strings.Trim(title, "\"'`*# ")

	runes := []rune(title)
	if len(runes) > titleMaxRuneCount {
		title = strings.TrimSpace(string(runes[:titleMaxRuneCount]))
	}
	return title
}
