package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hrygo/fitcoach/ai/agents/queryagent"
	"github.com/hrygo/fitcoach/ai/core/llm"
	"github.com/hrygo/fitcoach/ai/metrics"
	"github.com/hrygo/fitcoach/ai/routing"
	"github.com/hrygo/fitcoach/store"
)

// HistoryReader returns the messages of a conversation in append order.
type HistoryReader interface {
	ReadHistory(ctx context.Context, conversationID string) ([]*store.ConversationMessage, error)
}

// MessageClassifier decides whether a question needs the user's data.
type MessageClassifier interface {
	Classify(ctx context.Context, question string, history []llm.Message) (routing.Decision, error)
}

// AgentRunner runs the query agent.
type AgentRunner interface {
	Run(ctx context.Context, req queryagent.Request) (*queryagent.Result, error)
}

// ChatConfig wires the conversational pipeline.
type ChatConfig struct {
	LLM        llm.Service
	Classifier MessageClassifier
	Agent      AgentRunner
	Validator  *Validator
	History    HistoryReader
	// Templates prefixes the message of a turn carrying a task marker.
	Templates TemplateSource
	// OperatingContext returns the system prompt given to the model: policy,
	// today's date and the schema description.
	OperatingContext func() string
	Metrics          *metrics.PrometheusExporter
	Logger           *slog.Logger
}

// ChatPipeline answers one conversational turn:
// LoadHistory -> Classify -> DirectAnswer | ToolAgentAnswer -> Validate -> Done.
type ChatPipeline struct {
	config ChatConfig
	logger *slog.Logger
	table  map[StateType]transition[ChatTurnState]
}

func NewChatPipeline(config ChatConfig) (*ChatPipeline, error) {
	switch {
	case config.LLM == nil:
		return nil, errors.New("chat pipeline: llm service is required")
	case config.Classifier == nil:
		return nil, errors.New("chat pipeline: classifier is required")
	case config.Agent == nil:
		return nil, errors.New("chat pipeline: query agent is required")
	case config.Validator == nil:
		return nil, errors.New("chat pipeline: validator is required")
	case config.History == nil:
		return nil, errors.New("chat pipeline: history reader is required")
	}
	if config.OperatingContext == nil {
		config.OperatingContext = func() string { return "" }
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	p := &ChatPipeline{config: config, logger: logger}
	p.table = map[StateType]transition[ChatTurnState]{
		StateLoadHistory:     p.loadHistory,
		StateClassify:        p.classify,
		StateDirectAnswer:    p.directAnswer,
		StateToolAgentAnswer: p.toolAgentAnswer,
		StateValidate:        p.validate,
	}
	return p, nil
}

// Run executes the turn synchronously and fills state.Answer. Model failures
// abort the turn and are returned.
func (p *ChatPipeline) Run(ctx context.Context, state *ChatTurnState) error {
	start := time.Now()
	done := p.config.Metrics.PipelineStarted()
	defer done()

	err := runMachine(ctx, p.table, StateLoadHistory, state, &state.Trace)

	route := string(routing.Direct)
	if state.RequiresData {
		route = string(routing.NeedsData)
	}
	p.config.Metrics.RecordPipeline("chat", route, time.Since(start), err == nil)
	if err != nil {
		p.logger.WarnContext(ctx, "pipeline: chat turn failed",
			"conversation_id", state.ConversationID,
			"trace", state.Trace,
			"error", err,
		)
		return err
	}

	p.logger.InfoContext(ctx, "pipeline: chat turn completed",
		"conversation_id", state.ConversationID,
		"requires_data", state.RequiresData,
		"history_len", len(state.ChatHistory),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

func (p *ChatPipeline) loadHistory(ctx context.Context, state *ChatTurnState) (StateType, error) {
	messages, err := p.config.History.ReadHistory(ctx, state.ConversationID)
	if err != nil {
		return "", fmt.Errorf("read history: %w", err)
	}
	state.ChatHistory = HistoryMessages(messages)
	return StateClassify, nil
}

func (p *ChatPipeline) classify(ctx context.Context, state *ChatTurnState) (StateType, error) {
	decision, err := p.config.Classifier.Classify(ctx, state.RawMessage, state.ChatHistory)
	if err != nil {
		return "", err
	}
	p.config.Metrics.RecordClassification(string(decision))

	state.RequiresData = decision == routing.NeedsData
	if state.RequiresData {
		return StateToolAgentAnswer, nil
	}
	return StateDirectAnswer, nil
}

func (p *ChatPipeline) directAnswer(ctx context.Context, state *ChatTurnState) (StateType, error) {
	messages := llm.FormatMessages(p.config.OperatingContext(), state.RawMessage, state.ChatHistory)
	answer, stats, err := p.config.LLM.Chat(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("direct answer: %w", err)
	}
	if stats != nil {
		p.config.Metrics.RecordLLMTokens(p.config.LLM.Model(), "prompt", stats.PromptTokens)
		p.config.Metrics.RecordLLMTokens(p.config.LLM.Model(), "completion", stats.CompletionTokens)
	}
	state.Answer = answer
	return StateValidate, nil
}

func (p *ChatPipeline) toolAgentAnswer(ctx context.Context, state *ChatTurnState) (StateType, error) {
	req := queryagent.Request{
		Context: p.config.OperatingContext(),
		Message: state.RawMessage,
	}
	switch {
	case state.TaskType == "":
		req.History = state.ChatHistory
	case p.config.Templates != nil:
		req.Message = p.config.Templates.TaskTemplate(string(state.TaskType), "") + " " + state.RawMessage
	}

	result, err := p.config.Agent.Run(ctx, req)
	if err != nil {
		return "", err
	}
	recordAgentRun(p.config.Metrics, p.config.LLM.Model(), result)

	state.TaskType = ""
	state.Answer = result.Answer
	return StateValidate, nil
}

func (p *ChatPipeline) validate(ctx context.Context, state *ChatTurnState) (StateType, error) {
	answer, err := p.config.Validator.Validate(ctx, state.RawMessage, state.Answer)
	if err != nil {
		return "", err
	}
	state.Answer = answer
	return StateDone, nil
}

// HistoryMessages converts stored messages into model messages.
func HistoryMessages(messages []*store.ConversationMessage) []llm.Message {
	history := make([]llm.Message, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case store.RoleUser:
			history = append(history, llm.UserMessage(m.Message))
		case store.RoleAssistant:
			history = append(history, llm.AssistantMessage(m.Message))
		}
	}
	return history
}

func recordAgentRun(exporter *metrics.PrometheusExporter, model string, result *queryagent.Result) {
	exporter.RecordAgentRun(result.ToolCalls, result.Stats.ToolErrors, result.StepLimitReached)
	exporter.RecordLLMTokens(model, "prompt", result.Stats.PromptTokens)
	exporter.RecordLLMTokens(model, "completion", result.Stats.CompletionTokens)
}
