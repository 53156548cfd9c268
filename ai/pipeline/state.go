// Package pipeline runs the two coach workflows as explicit state machines:
// the conversational turn and the structured task.
package pipeline

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/hrygo/fitcoach/ai/core/llm"
)

// StateType names a pipeline state.
type StateType string

const (
	StateLoadHistory     StateType = "load_history"
	StateClassify        StateType = "classify"
	StateDirectAnswer    StateType = "direct_answer"
	StateToolAgentAnswer StateType = "tool_agent_answer"
	StateValidate        StateType = "validate"
	StateSelectTemplate  StateType = "select_template"
	StateDone            StateType = "done"
)

// TaskType selects the template of a structured task.
type TaskType string

const (
	TaskGoal               TaskType = "goal"
	TaskRecommendations    TaskType = "recommendations"
	TaskSuggestedQuestions TaskType = "suggested_questions"
	TaskDetail             TaskType = "detail"
)

// DetailSubtype is the kind of content a detail task asks for.
type DetailSubtype string

const (
	DetailInsight  DetailSubtype = "insight"
	DetailQuestion DetailSubtype = "question"
	DetailAdvice   DetailSubtype = "advice"
)

// DetailSubtypes lists the subtypes a detail request picks from.
var DetailSubtypes = []DetailSubtype{DetailInsight, DetailQuestion, DetailAdvice}

// RandomDetailSubtype picks a detail subtype uniformly.
func RandomDetailSubtype() DetailSubtype {
	return DetailSubtypes[rand.IntN(len(DetailSubtypes))]
}

// ChatTurnState is the transient state of one conversational turn.
type ChatTurnState struct {
	UserID         string
	RawMessage     string
	ConversationID string
	ChatHistory    []llm.Message
	RequiresData   bool
	Answer         string

	// TaskType marks a templated run of the query agent; cleared before return.
	TaskType TaskType
	Trace    []StateType
}

// TaskState is the transient state of one structured task.
type TaskState struct {
	Message          string
	TaskType         TaskType
	DetailSubtype    DetailSubtype
	SelectedTemplate string
	Answer           string
	Trace            []StateType
}

type transition[S any] func(ctx context.Context, state *S) (StateType, error)

// runMachine follows transitions from start until StateDone and records every
// visited state in trace.
func runMachine[S any](ctx context.Context, table map[StateType]transition[S], start StateType, state *S, trace *[]StateType) error {
	current := start
	for steps := 0; current != StateDone; steps++ {
		if steps > len(table) {
			return fmt.Errorf("pipeline: no terminal state after %d transitions", steps)
		}
		fn, ok := table[current]
		if !ok {
			return fmt.Errorf("pipeline: no transition for state %q", current)
		}
		*trace = append(*trace, current)

		next, err := fn(ctx, state)
		if err != nil {
			return fmt.Errorf("%s: %w", current, err)
		}
		current = next
	}
	*trace = append(*trace, StateDone)
	return nil
}
