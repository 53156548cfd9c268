// Package metrics provides Prometheus metrics export for the coach pipelines.
package metrics

import (
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace = "fitcoach"
	subsystem = "coach"
)

// PrometheusExporter exports coach metrics in Prometheus format.
// All Record methods are no-ops on a nil exporter.
type PrometheusExporter struct {
	registry *prometheus.Registry

	// Pipeline metrics
	pipelineRequests *prometheus.CounterVec
	pipelineLatency  *prometheus.HistogramVec
	pipelineActive   prometheus.Gauge

	// Routing and validation
	classifications *prometheus.CounterVec
	judgeResults    *prometheus.CounterVec

	// Query agent
	agentToolCalls *prometheus.CounterVec
	agentStepLimit prometheus.Counter

	// LLM token metrics
	llmTokensUsed *prometheus.CounterVec

	// Background persistence
	persistTasks *prometheus.CounterVec
	queueDepth   prometheus.Gauge
}

// Config configures the Prometheus exporter.
type Config struct {
	// Registry to use (if nil, creates a new one)
	Registry *prometheus.Registry

	// Buckets for latency histograms (in seconds)
	LatencyBuckets []float64
}

// DefaultConfig returns default Prometheus configuration.
func DefaultConfig() Config {
	return Config{
		LatencyBuckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
	}
}

// NewPrometheusExporter creates a new Prometheus metrics exporter.
func NewPrometheusExporter(cfg Config) *PrometheusExporter {
	if len(cfg.LatencyBuckets) == 0 {
		cfg.LatencyBuckets = DefaultConfig().LatencyBuckets
	}

	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	e := &PrometheusExporter{registry: registry}

	e.pipelineRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "pipeline_requests_total",
			Help:      "Total number of pipeline runs",
		},
		[]string{"pipeline", "route", "status"},
	)

	e.pipelineLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "pipeline_latency_seconds",
			Help:      "Pipeline latency in seconds",
			Buckets:   cfg.LatencyBuckets,
		},
		[]string{"pipeline"},
	)

	e.pipelineActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "pipeline_active",
			Help:      "Number of pipelines currently running",
		},
	)

	e.classifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "classifications_total",
			Help:      "Chat messages by routing decision",
		},
		[]string{"decision"},
	)

	e.judgeResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "judge_results_total",
			Help:      "Validated answers by outcome",
		},
		[]string{"source", "changed"},
	)

	e.agentToolCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "agent_tool_calls_total",
			Help:      "Tool calls made by the query agent",
		},
		[]string{"status"},
	)

	e.agentStepLimit = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "agent_step_limit_total",
			Help:      "Query agent runs stopped by the step limit",
		},
	)

	e.llmTokensUsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "llm_tokens_total",
			Help:      "Total LLM tokens consumed",
		},
		[]string{"model", "token_type"},
	)

	e.persistTasks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "persist_tasks_total",
			Help:      "Background persistence tasks by outcome",
		},
		[]string{"kind", "status"},
	)

	e.queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "persist_queue_depth",
			Help:      "Tasks waiting in the persistence queue",
		},
	)

	registry.MustRegister(
		e.pipelineRequests,
		e.pipelineLatency,
		e.pipelineActive,
		e.classifications,
		e.judgeResults,
		e.agentToolCalls,
		e.agentStepLimit,
		e.llmTokensUsed,
		e.persistTasks,
		e.queueDepth,
	)

	return e
}

// PipelineStarted increments the active gauge; call the returned func when done.
func (e *PrometheusExporter) PipelineStarted() func() {
	if e == nil {
		return func() {}
	}
	e.pipelineActive.Inc()
	return e.pipelineActive.Dec
}

// RecordPipeline records one pipeline run.
func (e *PrometheusExporter) RecordPipeline(pipeline, route string, latency time.Duration, success bool) {
	if e == nil {
		return
	}
	status := "success"
	if !success {
		status = "error"
	}
	e.pipelineRequests.WithLabelValues(pipeline, route, status).Inc()
	e.pipelineLatency.WithLabelValues(pipeline).Observe(latency.Seconds())
}

// RecordClassification records a routing decision.
func (e *PrometheusExporter) RecordClassification(decision string) {
	if e == nil {
		return
	}
	e.classifications.WithLabelValues(decision).Inc()
}

// RecordJudge records the outcome of answer validation.
func (e *PrometheusExporter) RecordJudge(source string, changed bool) {
	if e == nil {
		return
	}
	e.judgeResults.WithLabelValues(source, strconv.FormatBool(changed)).Inc()
}

// RecordAgentRun records the tool usage of one query agent run.
func (e *PrometheusExporter) RecordAgentRun(toolCalls, toolErrors int, stepLimitReached bool) {
	if e == nil {
		return
	}
	e.agentToolCalls.WithLabelValues("success").Add(float64(toolCalls - toolErrors))
	e.agentToolCalls.WithLabelValues("error").Add(float64(toolErrors))
	if stepLimitReached {
		e.agentStepLimit.Inc()
	}
}

// RecordLLMTokens records LLM token usage.
func (e *PrometheusExporter) RecordLLMTokens(model, tokenType string, count int) {
	if e == nil || count <= 0 {
		return
	}
	e.llmTokensUsed.WithLabelValues(model, tokenType).Add(float64(count))
}

// RecordPersist records a background task outcome: done, failed or dropped.
func (e *PrometheusExporter) RecordPersist(kind, status string) {
	if e == nil {
		return
	}
	e.persistTasks.WithLabelValues(kind, status).Inc()
}

// SetQueueDepth sets the number of queued persistence tasks.
func (e *PrometheusExporter) SetQueueDepth(depth int) {
	if e == nil {
		return
	}
	e.queueDepth.Set(float64(depth))
}

// Handler returns the HTTP handler for the metrics endpoint.
func (e *PrometheusExporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

// GetRegistry returns the Prometheus registry.
func (e *PrometheusExporter) GetRegistry() *prometheus.Registry {
	return e.registry
}

// ExportText exports counters and gauges in Prometheus text format, sorted by
// label set. Histograms are summarized by sample count.
func (e *PrometheusExporter) ExportText() (string, error) {
	families, err := e.registry.Gather()
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, mf := range families {
		sb.WriteString("# TYPE ")
		sb.WriteString(mf.GetName())
		sb.WriteString(" ")
		sb.WriteString(strings.ToLower(mf.GetType().String()))
		sb.WriteString("\n")

		lines := make([]string, 0, len(mf.GetMetric()))
		for _, m := range mf.GetMetric() {
			var value float64
			switch {
			case m.GetCounter() != nil:
				value = m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				value = m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				value = float64(m.GetHistogram().GetSampleCount())
			default:
				continue
			}

			labels := make([]string, 0, len(m.GetLabel()))
			for _, label := range m.GetLabel() {
				labels = append(labels, label.GetName()+"=\""+label.GetValue()+"\"")
			}
			sort.Strings(labels)

			line := mf.GetName()
			if len(labels) > 0 {
				line += "{" + strings.Join(labels, ",") + "}"
			}
			lines = append(lines, line+" "+strconv.FormatFloat(value, 'f', -1, 64))
		}
		sort.Strings(lines)
		for _, line := range lines {
			sb.WriteString(line)
			sb.WriteString("\n")
		}
	}
	return sb.String(), nil
}
