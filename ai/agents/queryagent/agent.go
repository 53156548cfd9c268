// Package queryagent answers questions about the user's fitness data with a
// ReAct loop over the SQL tools.
//
// Per-user isolation and read-only access are requested in the operating
// context only. The agent does not rewrite or reject the statements the model
// produces.
package queryagent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	agent "github.com/hrygo/fitcoach/ai/agents"
	"github.com/hrygo/fitcoach/ai/core/llm"
)

const (
	// DefaultStepLimit is the step ceiling: one step per model call and one per tool round.
	DefaultStepLimit = 35

	// FallbackAnswer is returned when the step limit is hit and nothing usable was produced.
	FallbackAnswer = "Sorry, I couldn't finish looking into your data this time. Could you try asking again, maybe a bit more specifically?"

	defaultFinalAnswerPrompt = "You have reached the maximum number of tool calls. Do not call any more tools. " +
		"Answer the user's question now using only the information gathered above."
)

// Request is one agent invocation.
type Request struct {
	Context string        // operating context, sent as the system message
	History []llm.Message // prior turns, may be empty
	Message string
}

// Result is the outcome of Run. Answer is never empty.
type Result struct {
	Messages         []llm.Message
	Answer           string
	Iterations       int
	ToolCalls        int
	StepLimitReached bool
	Stats            agent.RunStats
}

type Config struct {
	StepLimit         int
	FinalAnswerPrompt string
	Logger            *slog.Logger
}

// Agent runs the tool-calling loop.
type Agent struct {
	llm         llm.Service
	tools       []agent.ToolWithSchema
	descriptors []llm.ToolDescriptor
	config      Config
	logger      *slog.Logger
}

func New(llmSvc llm.Service, tools []agent.ToolWithSchema, config Config) (*Agent, error) {
	if llmSvc == nil {
		return nil, errors.New("llm service is required")
	}
	if config.StepLimit <= 0 {
		config.StepLimit = DefaultStepLimit
	}
	if config.FinalAnswerPrompt == "" {
		config.FinalAnswerPrompt = defaultFinalAnswerPrompt
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	descriptors, err := agent.Descriptors(tools)
	if err != nil {
		return nil, err
	}
	return &Agent{
		llm:         llmSvc,
		tools:       tools,
		descriptors: descriptors,
		config:      config,
		logger:      logger,
	}, nil
}

// MaxIterations converts a step ceiling into model iterations.
func MaxIterations(steps int) int {
	return max((steps-1)/2, 1)
}

// Run executes the loop until the model answers without tool calls or the
// step ceiling is reached. Model errors abort the run; tool errors are fed back
// to the model.
func (a *Agent) Run(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	maxIterations := MaxIterations(a.config.StepLimit)

	messages := make([]llm.Message, 0, len(req.History)+2)
	if req.Context != "" {
		messages = append(messages, llm.SystemPrompt(req.Context))
	}
	messages = append(messages, req.History...)
	messages = append(messages, llm.UserMessage(req.Message))

	result := &Result{}
	var lastAssistant string

	for iteration := 0; iteration < maxIterations; iteration++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		response, stats, err := a.llm.ChatWithTools(ctx, messages, a.descriptors)
		if err != nil {
			return nil, fmt.Errorf("query agent: LLM chat with tools failed: %w", err)
		}
		result.Stats.AddLLMCall(stats)
		result.Iterations++

		if response.Content != "" {
			messages = append(messages, llm.AssistantMessage(response.Content))
			lastAssistant = response.Content
		}

		if len(response.ToolCalls) == 0 {
			result.Messages = messages
			result.Answer = response.Content
			if strings.TrimSpace(result.Answer) == "" {
				result.Answer = fallback(lastAssistant)
			}
			a.logger.InfoContext(ctx, "react: final answer",
				"iterations", result.Iterations,
				"tool_calls", result.ToolCalls,
				"duration_ms", time.Since(start).Milliseconds(),
			)
			return result, nil
		}

		for _, tc := range response.ToolCalls {
			toolStart := time.Now()
			output, toolErr := agent.Invoke(ctx, a.tools, tc.Function.Name, tc.Function.Arguments)
			status := "success"
			if toolErr != nil {
				status = "error"
				output = fmt.Sprintf("Error: %v", toolErr)
			}
			result.ToolCalls++
			result.Stats.AddToolCall(toolErr)

			a.logger.DebugContext(ctx, "react: tool execution completed",
				"tool", tc.Function.Name,
				"status", status,
				"iteration", iteration+1,
				"duration_ms", time.Since(toolStart).Milliseconds(),
			)
			messages = append(messages,
				llm.Message{Role: "user", Content: fmt.Sprintf("[Result from %s]: %s", tc.Function.Name, output)},
			)
		}
	}

	result.StepLimitReached = true
	a.logger.WarnContext(ctx, "react: step limit reached",
		"step_limit", a.config.StepLimit,
		"iterations", result.Iterations,
		"tool_calls", result.ToolCalls,
	)

	answer, err := a.forceFinalAnswer(ctx, messages, &result.Stats)
	if err != nil || strings.TrimSpace(answer) == "" {
		if err != nil {
			a.logger.WarnContext(ctx, "react: final answer call failed", "error", err)
		}
		answer = fallback(lastAssistant)
	} else {
		messages = append(messages, llm.AssistantMessage(answer))
	}

	result.Messages = messages
	result.Answer = answer
	return result, nil
}

// forceFinalAnswer asks for an answer without offering tools.
func (a *Agent) forceFinalAnswer(ctx context.Context, messages []llm.Message, stats *agent.RunStats) (string, error) {
	final := make([]llm.Message, 0, len(messages)+1)
	final = append(final, messages...)
	final = append(final, llm.UserMessage(a.config.FinalAnswerPrompt))

	content, callStats, err := a.llm.Chat(ctx, final)
	if err != nil {
		return "", err
	}
	stats.AddLLMCall(callStats)
	return strings.TrimSpace(content), nil
}

func fallback(lastAssistant string) string {
	if strings.TrimSpace(lastAssistant) != "" {
		return lastAssistant
	}
	return FallbackAnswer
}
