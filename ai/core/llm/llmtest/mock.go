// Package llmtest provides a scripted llm.Service for tests.
package llmtest

import (
	"context"
	"sync"

	"github.com/hrygo/fitcoach/ai/core/llm"
)

// Call records one Chat or ChatWithTools invocation.
type Call struct {
	Messages []llm.Message
	Settings llm.CallSettings
	Tools    []llm.ToolDescriptor
}

// MockLLM is a test double for llm.Service. Unset funcs return fixed defaults.
type MockLLM struct {
	ChatFunc          func(ctx context.Context, messages []llm.Message, settings llm.CallSettings) (string, error)
	ChatWithToolsFunc func(ctx context.Context, messages []llm.Message, tools []llm.ToolDescriptor) (*llm.ChatResponse, error)

	mu            sync.Mutex
	chatCalls     []Call
	withToolCalls []Call
}

func (m *MockLLM) Chat(ctx context.Context, messages []llm.Message, opts ...llm.CallOption) (string, *llm.LLMCallStats, error) {
	settings := llm.ResolveCallOptions(opts...)
	m.mu.Lock()
	m.chatCalls = append(m.chatCalls, Call{Messages: append([]llm.Message(nil), messages...), Settings: settings})
	m.mu.Unlock()

	if m.ChatFunc != nil {
		content, err := m.ChatFunc(ctx, messages, settings)
		if err != nil {
			return "", nil, err
		}
		return content, &llm.LLMCallStats{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}, nil
	}
	return "test response", &llm.LLMCallStats{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}, nil
}

func (m *MockLLM) ChatWithTools(ctx context.Context, messages []llm.Message, tools []llm.ToolDescriptor) (*llm.ChatResponse, *llm.LLMCallStats, error) {
	m.mu.Lock()
	m.withToolCalls = append(m.withToolCalls, Call{Messages: append([]llm.Message(nil), messages...), Tools: tools})
	m.mu.Unlock()

	if m.ChatWithToolsFunc != nil {
		resp, err := m.ChatWithToolsFunc(ctx, messages, tools)
		if err != nil {
			return nil, nil, err
		}
		return resp, &llm.LLMCallStats{PromptTokens: 20, CompletionTokens: 10, TotalTokens: 30}, nil
	}
	return &llm.ChatResponse{Content: "test response"}, &llm.LLMCallStats{PromptTokens: 20, CompletionTokens: 10, TotalTokens: 30}, nil
}

// Warmup is a no-op for the mock.
func (m *MockLLM) Warmup(context.Context) {}

func (m *MockLLM) Model() string { return "mock-model" }

// ChatCalls returns the recorded Chat invocations.
func (m *MockLLM) ChatCalls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.chatCalls...)
}

// ToolCalls returns the recorded ChatWithTools invocations.
func (m *MockLLM) ToolCalls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.withToolCalls...)
}
