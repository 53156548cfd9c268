package prompts

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	set := Default()

	assert.Contains(t, set.Classifier.System, "requires user-specific fitness data")
	assert.Contains(t, set.Classifier.Human, "{question}")
	assert.Contains(t, set.Judge.System, "strict evaluator")
	assert.Contains(t, set.Judge.Human, "{answer}")
}

func TestPolicyPrompt(t *testing.T) {
	out := Default().PolicyPrompt("daily_data: id, date, totalsteps", "2016-04-14")

	assert.Contains(t, out, "daily_data: id, date, totalsteps")
	assert.Contains(t, out, "Today's date is 2016-04-14")
	assert.NotContains(t, out, "{schema}")
	assert.NotContains(t, out, "{today}")
}

func TestTaskTemplate(t *testing.T) {
	set := Default()

	tests := []struct {
		name     string
		taskType string
		subtype  string
		contains []string
	}{
		{"goal", "goal", "", []string{`"justification"`}},
		{"recommendations", "recommendations", "", []string{`"recommendation"`, `"benefit"`}},
		{"suggested questions", "suggested_questions", "", []string{"3 suggested questions"}},
		{"detail insight", "detail", "insight", []string{`"type": "insight"`, "meaningful relationship"}},
		{"detail question", "detail", "question", []string{`"type": "question"`, "thought-provoking question"}},
		{"detail advice", "detail", "advice", []string{`"type": "advice"`, "actionable suggestions"}},
		{"detail unknown subtype", "detail", "trivia", []string{`"type": "trivia"`, "Provide an interesting detail about the data."}},
		{"unknown task", "horoscope", "", []string{"Provide a fitness-related response."}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := set.TaskTemplate(tt.taskType, tt.subtype)
			for _, s := range tt.contains {
				assert.Contains(t, out, s)
			}
			assert.NotContains(t, out, "{clarification}")
		})
	}

	assert.Equal(t, "Provide a fitness-related response.", set.TaskTemplate("horoscope", ""))
}

func TestRenderKeepsUnknownPlaceholders(t *testing.T) {
	assert.Equal(t, "a 1 {b}", Render("a {a} {b}", map[string]string{"a": "1"}))
	assert.Equal(t, "{x}", Render("{x}", nil))
}

func TestLoadOverride(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "coach.yaml"),
		[]byte("tasks:\n  goal: custom goal template\n"), 0o644))

	set, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "custom goal template", set.TaskTemplate("goal", ""))
	assert.Contains(t, set.TaskTemplate("recommendations", ""), `"recommendation"`)
}

func TestLoadRejectsEmptyKeys(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "coach.yaml"), []byte("policy: \"\"\n"), 0o644))

	_, err := Load(dir)
	assert.ErrorContains(t, err, "policy")
}
