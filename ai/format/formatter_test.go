package format

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/fitcoach/ai/core/llm"
	"github.com/hrygo/fitcoach/ai/core/llm/llmtest"
	"github.com/hrygo/fitcoach/ai/prompts"
)

func TestCheck(t *testing.T) {
	checker := NewChecker([]string{"daily_activity", "sleep_data", "id", "date", "totalsteps", "goal"})

	tests := []struct {
		name      string
		question  string
		answer    string
		compliant bool
	}{
		{"plain answer", "How did I sleep?", "You slept **7h 2m** last night. 😴", true},
		{"three bullets", "Tips?", "- walk\n- stretch\n- sleep early", true},
		{"four bullets", "Tips?", "- walk\n- stretch\n- sleep early\n- hydrate", false},
		{"numbered list over limit", "Ideas?", "1. a\n2. b\n3. c\n4. d", false},
		{"five requested", "Give me 5 tips for better sleep", "- a\n- b\n- c\n- d\n- e", true},
		{"five requested in words", "Give me five quick ideas", "- a\n- b\n- c\n- d\n- e", true},
		{"storage word", "Steps?", "I ran a query and you walked 10,000 steps.", false},
		{"table name", "Steps?", "Your daily_activity shows 10,000 steps.", false},
		{"raw minutes", "How did I sleep?", "You slept 650 minutes.", false},
		{"short minutes ok", "Active?", "You were active for 45 minutes.", true},
		{"minutes requested", "How long did I sleep in minutes?", "You slept 650 minutes.", true},
		{"markdown table ok", "Steps?", "| date | steps |\n|---|---|\n| 2016-04-14 | 10250 |", true},
		{"column name", "Steps?", "Your totalsteps value was 6500.", false},
		{"camel case identifier", "Active?", "VeryActiveMinutes was 25 on that day.", false},
		{"snake case identifier", "Steps?", "For user_id 1503960366 you walked 6500 steps.", false},
		{"bare id", "Who am I?", "Your id is 1503960366.", false},
		{"plain word column ok", "Goal?", "Your step goal for today is 10,000.", true},
		{"inline enumeration over limit", "Ideas?", "Try these: 1) walk 2) stretch 3) hydrate 4) sleep early 5) eat well.", false},
		{"inline enumeration within limit", "Ideas?", "Try these: 1) walk 2) stretch 3) hydrate.", true},
		{"decimals are not items", "Sleep?", "You slept 7.5 hours, up from 6.5 hours.", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := checker.Check(tt.question, tt.answer)
			assert.Equal(t, tt.compliant, report.Compliant(), "%+v", report)
		})
	}
}

func TestCheckNestedListItems(t *testing.T) {
	report := NewChecker(nil).Check("Tips?", "- walk\n  - after dinner\n- sleep")
	assert.Equal(t, 3, report.ListItems)
}

func TestCheckInlineItems(t *testing.T) {
	report := NewChecker(nil).Check("Ideas?", "1) walk 2) stretch 3) hydrate 4) sleep early")
	assert.Equal(t, 4, report.ListItems)
}

func TestJudgeAuditsLeakedColumns(t *testing.T) {
	mock := &llmtest.MockLLM{
		ChatFunc: func(context.Context, []llm.Message, llm.CallSettings) (string, error) {
			return "You took 6,500 steps and had 25 very active minutes.", nil
		},
	}
	judge := NewJudge(mock, prompts.Default().Judge, NewChecker([]string{"daily_data", "sleep_data"}))

	answer := "Your TotalSteps value for user_id 1503960366 was 6500 and VeryActiveMinutes was 25."
	resp, err := judge.Format(context.Background(), &FormatRequest{Question: "How active was I?", Answer: answer})
	require.NoError(t, err)
	assert.Equal(t, "llm", resp.Source)
	assert.True(t, resp.Changed)
	assert.Len(t, mock.ChatCalls(), 1)
}

func TestJudgeCompliantAnswerUnchanged(t *testing.T) {
	mock := &llmtest.MockLLM{
		ChatFunc: func(context.Context, []llm.Message, llm.CallSettings) (string, error) {
			return "rewritten anyway", nil
		},
	}
	judge := NewJudge(mock, prompts.Default().Judge, nil)

	answer := "Great job! 🎉 You walked **10,460 steps** today.\n\n- Keep it up\n- Stretch"
	resp, err := judge.Format(context.Background(), &FormatRequest{Question: "How many steps?", Answer: answer})
	require.NoError(t, err)
	assert.Equal(t, answer, resp.Formatted)
	assert.False(t, resp.Changed)
	assert.Equal(t, "passthrough", resp.Source)
	assert.Empty(t, mock.ChatCalls())
}

func TestJudgeRewritesViolations(t *testing.T) {
	mock := &llmtest.MockLLM{
		ChatFunc: func(_ context.Context, messages []llm.Message, settings llm.CallSettings) (string, error) {
			return "```\nYou slept 10h 50m.\n```", nil
		},
	}
	judge := NewJudge(mock, prompts.Default().Judge, nil)

	resp, err := judge.Format(context.Background(), &FormatRequest{Question: "How did I sleep?", Answer: "You slept 650 minutes."})
	require.NoError(t, err)
	assert.Equal(t, "You slept 10h 50m.", resp.Formatted)
	assert.True(t, resp.Changed)
	assert.Equal(t, "llm", resp.Source)

	calls := mock.ChatCalls()
	require.Len(t, calls, 1)
	require.NotNil(t, calls[0].Settings.Temperature)
	assert.Zero(t, *calls[0].Settings.Temperature)
	require.Len(t, calls[0].Messages, 2)
	assert.Equal(t, "system", calls[0].Messages[0].Role)
	assert.Contains(t, calls[0].Messages[1].Content, "How did I sleep?")
	assert.Contains(t, calls[0].Messages[1].Content, "You slept 650 minutes.")
}

func TestJudgeEmptyOutputKeepsCandidate(t *testing.T) {
	mock := &llmtest.MockLLM{
		ChatFunc: func(context.Context, []llm.Message, llm.CallSettings) (string, error) { return "  ", nil },
	}
	resp, err := NewJudge(mock, prompts.Default().Judge, nil).
		Format(context.Background(), &FormatRequest{Question: "q", Answer: "You slept 650 minutes."})
	require.NoError(t, err)
	assert.Equal(t, "You slept 650 minutes.", resp.Formatted)
	assert.Equal(t, "passthrough", resp.Source)
}

func TestJudgeError(t *testing.T) {
	mock := &llmtest.MockLLM{
		ChatFunc: func(context.Context, []llm.Message, llm.CallSettings) (string, error) {
			return "", errors.New("upstream down")
		},
	}
	_, err := NewJudge(mock, prompts.Default().Judge, nil).
		Format(context.Background(), &FormatRequest{Question: "q", Answer: "You slept 650 minutes."})
	assert.ErrorContains(t, err, "upstream down")
}
