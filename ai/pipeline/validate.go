package pipeline

import (
	"context"

	"github.com/hrygo/fitcoach/ai/format"
	"github.com/hrygo/fitcoach/ai/metrics"
)

// Validator runs candidate answers through the presentation judge.
type Validator struct {
	formatter format.Formatter
	metrics   *metrics.PrometheusExporter
}

func NewValidator(formatter format.Formatter, exporter *metrics.PrometheusExporter) *Validator {
	return &Validator{formatter: formatter, metrics: exporter}
}

// Validate returns the corrected answer. The judge sees only the question and
// the candidate, never the history.
func (v *Validator) Validate(ctx context.Context, question, answer string) (string, error) {
	resp, err := v.formatter.Format(ctx, &format.FormatRequest{Question: question, Answer: answer})
	if err != nil {
		return "", err
	}
	v.metrics.RecordJudge(resp.Source, resp.Changed)
	if resp.Formatted == "" {
		return answer, nil
	}
	return resp.Formatted, nil
}
