package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hrygo/fitcoach/ai/agents/queryagent"
	"github.com/hrygo/fitcoach/ai/metrics"
)

// TemplateSource returns the template of a structured task.
type TemplateSource interface {
	TaskTemplate(taskType, subtype string) string
}

// TaskConfig wires the structured-output pipeline.
type TaskConfig struct {
	Templates        TemplateSource
	Agent            AgentRunner
	OperatingContext func() string
	// Model labels token metrics.
	Model   string
	Metrics *metrics.PrometheusExporter
	Logger  *slog.Logger
}

// TaskPipeline produces structured answers:
// SelectTemplate -> ToolAgentAnswer -> Done. The answer is not validated;
// callers parse it.
type TaskPipeline struct {
	config TaskConfig
	logger *slog.Logger
	table  map[StateType]transition[TaskState]
}

func NewTaskPipeline(config TaskConfig) (*TaskPipeline, error) {
	if config.Templates == nil {
		return nil, errors.New("task pipeline: templates are required")
	}
	if config.Agent == nil {
		return nil, errors.New("task pipeline: query agent is required")
	}
	if config.OperatingContext == nil {
		config.OperatingContext = func() string { return "" }
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	p := &TaskPipeline{config: config, logger: logger}
	p.table = map[StateType]transition[TaskState]{
		StateSelectTemplate:  p.selectTemplate,
		StateToolAgentAnswer: p.toolAgentAnswer,
	}
	return p, nil
}

// Run executes the task synchronously and fills state.Answer.
func (p *TaskPipeline) Run(ctx context.Context, state *TaskState) error {
	start := time.Now()
	done := p.config.Metrics.PipelineStarted()
	defer done()

	err := runMachine(ctx, p.table, StateSelectTemplate, state, &state.Trace)
	p.config.Metrics.RecordPipeline("task", string(state.TaskType), time.Since(start), err == nil)
	if err != nil {
		p.logger.WarnContext(ctx, "pipeline: task failed",
			"task_type", state.TaskType,
			"error", err,
		)
		return err
	}

	p.logger.InfoContext(ctx, "pipeline: task completed",
		"task_type", state.TaskType,
		"detail_subtype", state.DetailSubtype,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// selectTemplate never fails: unknown task types get the generic template.
func (p *TaskPipeline) selectTemplate(_ context.Context, state *TaskState) (StateType, error) {
	state.SelectedTemplate = p.config.Templates.TaskTemplate(string(state.TaskType), string(state.DetailSubtype))
	return StateToolAgentAnswer, nil
}

func (p *TaskPipeline) toolAgentAnswer(ctx context.Context, state *TaskState) (StateType, error) {
	result, err := p.config.Agent.Run(ctx, queryagent.Request{
		Context: p.config.OperatingContext(),
		Message: state.SelectedTemplate + " " + state.Message,
	})
	if err != nil {
		return "", err
	}
	recordAgentRun(p.config.Metrics, p.config.Model, result)

	state.Answer = result.Answer
	return StateDone, nil
}
