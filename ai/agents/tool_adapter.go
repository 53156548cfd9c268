// Package agent holds the tool contract shared by the query agent and its tools.
package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hrygo/fitcoach/ai/core/llm"
)

// Tool is a capability the model can invoke by name with a JSON input.
type Tool interface {
	Name() string
	Description() string
	Run(ctx context.Context, input string) (string, error)
}

// ToolWithSchema is a Tool that also describes its input as JSON Schema.
type ToolWithSchema interface {
	Tool
	Parameters() map[string]any
}

// Descriptors converts tools to the descriptors sent with a tool-calling request.
func Descriptors(tools []ToolWithSchema) ([]llm.ToolDescriptor, error) {
	out := make([]llm.ToolDescriptor, 0, len(tools))
	for _, t := range tools {
		params := t.Parameters()
		if params == nil {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		raw, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("tool %s: marshal parameters: %w", t.Name(), err)
		}
		out = append(out, llm.ToolDescriptor{Name: t.Name(), Description: t.Description(), Parameters: string(raw)})
	}
	return out, nil
}

// Invoke runs the tool called name. An unknown name is an error the caller
// feeds back to the model.
func Invoke(ctx context.Context, tools []ToolWithSchema, name, input string) (string, error) {
	for _, t := range tools {
		if t != nil && t.Name() == name {
			return t.Run(ctx, input)
		}
	}
	return "", fmt.Errorf("unknown tool %q", name)
}

// RunStats counts model calls, tokens and tool calls over one agent run.
// It is not safe for concurrent use.
type RunStats struct {
	LLMCalls         int
	PromptTokens     int
	CompletionTokens int
	ToolCalls        int
	ToolErrors       int
}

func (s *RunStats) AddLLMCall(stats *llm.LLMCallStats) {
	s.LLMCalls++
	if stats != nil {
		s.PromptTokens += stats.PromptTokens
		s.CompletionTokens += stats.CompletionTokens
	}
}

func (s *RunStats) AddToolCall(err error) {
	s.ToolCalls++
	if err != nil {
		s.ToolErrors++
	}
}
