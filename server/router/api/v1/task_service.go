package v1

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/fitcoach/ai/pipeline"
	"github.com/hrygo/fitcoach/store"
)

// taskQuery holds the parameters shared by the structured task endpoints.
type taskQuery struct {
	Date    string
	UserID  string
	Profile *store.UserProfile
}

// bindTaskQuery reads date and user_id and resolves the profile. The profile
// is checked before any model or store call.
func (s *APIV1Service) bindTaskQuery(c echo.Context) (*taskQuery, error) {
	q := &taskQuery{
		Date:   strings.TrimSpace(c.QueryParam("date")),
		UserID: strings.TrimSpace(c.QueryParam("user_id")),
	}
	if q.Date == "" || q.UserID == "" {
		return nil, errorJSON(http.StatusBadRequest, "date and user_id are required")
	}
	p, err := s.lookupProfile(q.UserID)
	if err != nil {
		return nil, err
	}
	q.Profile = p
	return q, nil
}

func (s *APIV1Service) getRecommendations(c echo.Context) error {
	q, err := s.bindTaskQuery(c)
	if err != nil {
		return err
	}
	return s.runTask(c, &pipeline.TaskState{
		TaskType: pipeline.TaskRecommendations,
		Message:  recommendationsQuestion(q.Date, q.Profile),
	}, "recommendations")
}

func (s *APIV1Service) getNewGoal(c echo.Context) error {
	q, err := s.bindTaskQuery(c)
	if err != nil {
		return err
	}
	metric := strings.TrimSpace(c.QueryParam("metric"))
	if metric == "" {
		return errorJSON(http.StatusBadRequest, "metric is required")
	}
	currentGoal, err := strconv.Atoi(c.QueryParam("current_goal"))
	if err != nil {
		return errorJSON(http.StatusBadRequest, "current_goal must be an integer")
	}
	average, err := strconv.ParseFloat(c.QueryParam("average"), 64)
	if err != nil {
		return errorJSON(http.StatusBadRequest, "average must be a number")
	}

	return s.runTask(c, &pipeline.TaskState{
		TaskType: pipeline.TaskGoal,
		Message:  newGoalQuestion(q.Date, q.Profile, metric, currentGoal, average),
	}, "suggestion")
}

func (s *APIV1Service) getSuggestedQuestions(c echo.Context) error {
	q, err := s.bindTaskQuery(c)
	if err != nil {
		return err
	}
	return s.runTask(c, &pipeline.TaskState{
		TaskType: pipeline.TaskSuggestedQuestions,
		Message:  suggestedQuestionsQuestion(q.Date, q.Profile),
	}, "questions")
}

func (s *APIV1Service) getDetail(c echo.Context) error {
	q, err := s.bindTaskQuery(c)
	if err != nil {
		return err
	}
	metric := strings.TrimSpace(c.QueryParam("metric"))
	if metric == "" {
		return errorJSON(http.StatusBadRequest, "metric is required")
	}

	subtype := s.pickDetailSubtype()
	return s.runTask(c, &pipeline.TaskState{
		TaskType:      pipeline.TaskDetail,
		DetailSubtype: subtype,
		Message:       detailQuestion(q.Date, q.Profile, metric, subtype),
	}, "output")
}

// runTask runs the task pipeline and wraps the parsed answer in envelope.
// An unusable answer yields 200 with an error body; a failed run yields 502.
func (s *APIV1Service) runTask(c echo.Context, state *pipeline.TaskState, envelope string) error {
	if s.Tasks == nil {
		return errorJSON(http.StatusServiceUnavailable, "AI features are disabled")
	}
	ctx, cancel := s.requestContext(c)
	defer cancel()
	release, err := s.acquirePipeline(ctx)
	if err != nil {
		return err
	}
	defer release()

	if err := s.Tasks.Run(ctx, state); err != nil {
		s.logger.ErrorContext(ctx, "task: pipeline failed",
			"task_type", state.TaskType,
			"trace", state.Trace,
			"error", err)
		return errorJSON(http.StatusBadGateway, taskFailureMessage)
	}

	data, ok := parseStructured(state.Answer)
	if !ok {
		s.logger.WarnContext(ctx, "task: unparseable answer",
			"task_type", state.TaskType,
			"length", len(state.Answer))
		return c.JSON(http.StatusOK, map[string]string{"error": taskFailureMessage})
	}
	return c.JSON(http.StatusOK, map[string]any{envelope: data})
}
