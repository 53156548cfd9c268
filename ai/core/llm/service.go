package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"
)

// Message represents a chat message.
type Message struct {
	Role    string // system, user, assistant
	Content string
}

// LLMCallStats represents statistics for a single LLM call.
type LLMCallStats struct {
	PromptTokens     int   `json:"prompt_tokens"`
	CompletionTokens int   `json:"completion_tokens"`
	TotalTokens      int   `json:"total_tokens"`
	CacheReadTokens  int   `json:"cache_read_tokens,omitempty"`
	TotalDurationMs  int64 `json:"total_duration_ms"`
}

// Service is the LLM service interface.
type Service interface {
	// Chat performs synchronous chat. Options narrow the request, e.g. the
	// constrained mode used for classification.
	Chat(ctx context.Context, messages []Message, opts ...CallOption) (string, *LLMCallStats, error)

	// ChatWithTools performs chat with function calling support.
	ChatWithTools(ctx context.Context, messages []Message, tools []ToolDescriptor) (*ChatResponse, *LLMCallStats, error)

	// Warmup sends a lightweight ping request to establish the LLM connection.
	Warmup(ctx context.Context)

	// Model returns the configured model name.
	Model() string
}

// ToolDescriptor represents a function/tool available to the LLM.
type ToolDescriptor struct {
	Name        string
	Description string
	Parameters  string // JSON Schema string
}

// ChatResponse represents the LLM response including potential tool calls.
type ChatResponse struct {
	Content   string
	ToolCalls []ToolCall
}

// ToolCall represents a request to call a tool.
type ToolCall struct {
	ID       string
	Type     string
	Function FunctionCall
}

// FunctionCall represents the function details.
type FunctionCall struct {
	Name      string
	Arguments string
}

// Config represents LLM service configuration.
type Config struct {
	Provider    string // openai, deepseek, siliconflow, openrouter, ollama
	Model       string // gpt-4o-mini, deepseek-chat
	APIKey      string
	BaseURL     string
	MaxTokens   int     // default: 2048
	Temperature float32 // default: 0.3
	Timeout     int     // Request timeout in seconds (default: 120)
}

// CallOption adjusts a single Chat request.
type CallOption func(*CallSettings)

// CallSettings is the resolved form of a set of CallOptions.
type CallSettings struct {
	Temperature *float32
	MaxTokens   int
	Stop        []string
}

// ResolveCallOptions applies opts in order.
func ResolveCallOptions(opts ...CallOption) CallSettings {
	var o CallSettings
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithTemperature overrides the sampling temperature for one call.
func WithTemperature(t float32) CallOption {
	return func(o *CallSettings) { o.Temperature = &t }
}

// WithMaxTokens caps the completion length for one call.
func WithMaxTokens(n int) CallOption {
	return func(o *CallSettings) { o.MaxTokens = n }
}

// WithStop sets stop sequences for one call.
func WithStop(stop ...string) CallOption {
	return func(o *CallSettings) { o.Stop = stop }
}

var providerBaseURLs = map[string]string{
	"openai":      "",
	"deepseek":    "https://api.deepseek.com",
	"siliconflow": "https://api.siliconflow.cn/v1",
	"openrouter":  "https://openrouter.ai/api/v1",
	"ollama":      "http://localhost:11434/v1",
}

type service struct {
	client      *openai.Client
	model       string
	provider    string
	maxTokens   int
	temperature float32
	timeout     int
}

// NewService creates a new LLM Service.
func NewService(cfg *Config) (Service, error) {
	if cfg == nil {
		return nil, fmt.Errorf("llm config is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("llm model is required")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.HTTPClient = newHTTPClient()

	baseURL := cfg.BaseURL
	if baseURL == "" {
		defaultURL, ok := providerBaseURLs[cfg.Provider]
		if !ok {
			return nil, fmt.Errorf("unsupported llm provider %q without base url", cfg.Provider)
		}
		baseURL = defaultURL
	}
	if baseURL != "" {
		clientConfig.BaseURL = baseURL
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 2048
	}

	return &service{
		client:      openai.NewClientWithConfig(clientConfig),
		model:       cfg.Model,
		provider:    cfg.Provider,
		maxTokens:   maxTokens,
		temperature: cfg.Temperature,
		timeout:     timeout,
	}, nil
}

func (s *service) Model() string {
	return s.model
}

func (s *service) Chat(ctx context.Context, messages []Message, opts ...CallOption) (string, *LLMCallStats, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Duration(s.timeout)*time.Second)
	defer cancel()

	req := s.buildRequest(messages, opts)

	slog.Debug("LLM: Chat request",
		"model", s.model,
		"messages_count", len(messages),
		"max_tokens", req.MaxTokens,
	)

	startTime := time.Now()
	resp, err := s.client.CreateChatCompletion(ctx, req)
	if err != nil {
		slog.Error("LLM: Chat request failed", "error", err)
		return "", nil, fmt.Errorf("LLM chat failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		slog.Warn("LLM: Empty response from LLM")
		return "", nil, fmt.Errorf("empty response from LLM")
	}

	stats := usageStats(resp.Usage, time.Since(startTime))

	slog.Debug("LLM: Chat response received",
		"content_length", len(resp.Choices[0].Message.Content),
		"total_tokens", stats.TotalTokens,
		"duration_ms", stats.TotalDurationMs,
	)

	return resp.Choices[0].Message.Content, stats, nil
}

func (s *service) ChatWithTools(ctx context.Context, messages []Message, tools []ToolDescriptor) (*ChatResponse, *LLMCallStats, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Duration(s.timeout)*time.Second)
	defer cancel()

	openaiTools := make([]openai.Tool, len(tools))
	for i, t := range tools {
		openaiTools[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  json.RawMessage(t.Parameters),
			},
		}
	}

	// Lower temperature keeps query generation stable across iterations.
	toolCallTemperature := float32(0.1)
	if s.temperature < 0.1 {
		toolCallTemperature = max(s.temperature, math.SmallestNonzeroFloat32)
	}

	req := openai.ChatCompletionRequest{
		Model:       s.model,
		MaxTokens:   s.maxTokens,
		Temperature: toolCallTemperature,
		Messages:    convertMessages(messages),
		Tools:       openaiTools,
	}

	startTime := time.Now()
	resp, err := s.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, nil, fmt.Errorf("LLM chat with tools failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, nil, fmt.Errorf("empty response from LLM")
	}

	stats := usageStats(resp.Usage, time.Since(startTime))

	choice := resp.Choices[0]
	response := &ChatResponse{
		Content: choice.Message.Content,
	}
	if len(choice.Message.ToolCalls) > 0 {
		response.ToolCalls = make([]ToolCall, len(choice.Message.ToolCalls))
		for i, tc := range choice.Message.ToolCalls {
			response.ToolCalls[i] = ToolCall{
				ID:   tc.ID,
				Type: string(tc.Type),
				Function: FunctionCall{
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				},
			}
		}
	}

	return response, stats, nil
}

func (s *service) Warmup(ctx context.Context) {
	warmupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	startTime := time.Now()
	_, err := s.client.CreateChatCompletion(warmupCtx, openai.ChatCompletionRequest{
		Model:     s.model,
		MaxTokens: 1,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: "Hi"},
		},
	})
	duration := time.Since(startTime)

	if err != nil {
		slog.Warn("LLM: warmup ping failed (service will still work, first request may be slower)",
			"provider", s.provider,
			"model", s.model,
			"error", err,
			"duration_ms", duration.Milliseconds(),
		)
		return
	}

	slog.Info("LLM: connection warmed up",
		"provider", s.provider,
		"model", s.model,
		"duration_ms", duration.Milliseconds(),
	)
}

func (s *service) buildRequest(messages []Message, opts []CallOption) openai.ChatCompletionRequest {
	o := ResolveCallOptions(opts...)

	req := openai.ChatCompletionRequest{
		Model:       s.model,
		MaxTokens:   s.maxTokens,
		Temperature: s.temperature,
		Messages:    convertMessages(messages),
		Stop:        o.Stop,
	}
	if o.MaxTokens > 0 {
		req.MaxTokens = o.MaxTokens
	}
	if o.Temperature != nil {
		req.Temperature = *o.Temperature
	}
	// go-openai omits a zero temperature; the smallest float keeps the request deterministic.
	if req.Temperature == 0 {
		req.Temperature = math.SmallestNonzeroFloat32
	}
	return req
}

func usageStats(usage openai.Usage, elapsed time.Duration) *LLMCallStats {
	stats := &LLMCallStats{
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
		TotalTokens:      usage.TotalTokens,
		TotalDurationMs:  elapsed.Milliseconds(),
	}
	if usage.PromptTokensDetails != nil && usage.PromptTokensDetails.CachedTokens > 0 {
		stats.CacheReadTokens = usage.PromptTokensDetails.CachedTokens
	}
	return stats
}

func convertMessages(messages []Message) []openai.ChatCompletionMessage {
	llmMessages := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		role := openai.ChatMessageRoleUser
		switch m.Role {
		case "system":
			role = openai.ChatMessageRoleSystem
		case "assistant":
			role = openai.ChatMessageRoleAssistant
		}
		llmMessages[i] = openai.ChatCompletionMessage{
			Role:    role,
			Content: m.Content,
		}
	}
	return llmMessages
}

func newHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 180 * time.Second,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
}

// SystemPrompt creates a system message.
func SystemPrompt(content string) Message {
	return Message{Role: "system", Content: content}
}

// UserMessage creates a user message.
func UserMessage(content string) Message {
	return Message{Role: "user", Content: content}
}

// AssistantMessage creates an assistant message.
func AssistantMessage(content string) Message {
	return Message{Role: "assistant", Content: content}
}

// FormatMessages assembles system prompt, history and the latest user content.
func FormatMessages(systemPrompt string, userContent string, history []Message) []Message {
	messages := make([]Message, 0, len(history)+2)
	if systemPrompt != "" {
		messages = append(messages, SystemPrompt(systemPrompt))
	}
	messages = append(messages, history...)
	messages = append(messages, UserMessage(userContent))
	return messages
}
