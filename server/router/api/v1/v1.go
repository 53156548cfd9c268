package v1

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/sync/semaphore"

	"github.com/hrygo/fitcoach/ai/pipeline"
	"github.com/hrygo/fitcoach/ai/services/persist"
	"github.com/hrygo/fitcoach/internal/profile"
	"github.com/hrygo/fitcoach/store"
	"github.com/hrygo/fitcoach/store/csvlog"
)

// ChatRunner runs one conversational turn.
type ChatRunner interface {
	Run(ctx context.Context, state *pipeline.ChatTurnState) error
}

// TaskRunner runs one structured task.
type TaskRunner interface {
	Run(ctx context.Context, state *pipeline.TaskState) error
}

// TitleGenerator names new conversations.
type TitleGenerator interface {
	Generate(ctx context.Context, userMessage, aiResponse string) (string, error)
}

// ProfileLookup finds user profiles by id.
type ProfileLookup interface {
	Get(id string) (*store.UserProfile, bool)
}

// ConversationStore is the conversation log as seen by the handlers.
type ConversationStore interface {
	AppendMessage(ctx context.Context, msg *store.ConversationMessage) error
	AppendSubject(ctx context.Context, subject *store.ConversationSubject) error
	ListSubjects(find *store.FindConversationSubject) ([]*store.ConversationSubject, int, error)
	ListMessages(conversationID string) ([]*store.ConversationMessage, error)
}

// TaskQueue accepts background writes.
type TaskQueue interface {
	Enqueue(task *persist.Task) (string, bool)
}

// APIV1Service serves the /chat and /data routes.
type APIV1Service struct {
	Profile       *profile.Profile
	Store         *store.Store
	Conversations ConversationStore
	Profiles      ProfileLookup
	Clicks        *csvlog.ClickLog
	Queue         TaskQueue

	// AI components; nil when no LLM is configured.
	Chat   ChatRunner
	Tasks  TaskRunner
	Titles TitleGenerator

	pipelineSemaphore *semaphore.Weighted
	pickDetailSubtype func() pipeline.DetailSubtype
	now               func() time.Time
	logger            *slog.Logger
}

func NewAPIV1Service(instanceProfile *profile.Profile, dataStore *store.Store) *APIV1Service {
	limit := int64(instanceProfile.MaxConcurrentPipelines)
	if limit <= 0 {
		limit = profile.DefaultMaxConcurrentPipelines
	}
	return &APIV1Service{
		Profile:           instanceProfile,
		Store:             dataStore,
		pipelineSemaphore: semaphore.NewWeighted(limit),
		pickDetailSubtype: pipeline.RandomDetailSubtype,
		now:               time.Now,
		logger:            slog.Default(),
	}
}

// SetLogger replaces the default logger.
func (s *APIV1Service) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// RegisterGateway registers the HTTP routes. chatMiddleware wraps the chat
// group, e.g. with a rate limiter.
func (s *APIV1Service) RegisterGateway(_ context.Context, echoServer *echo.Echo, chatMiddleware ...echo.MiddlewareFunc) {
	data := echoServer.Group("/data")
	data.GET("", s.dataRoot)
	data.GET("/", s.dataRoot)
	data.POST("/log-click", s.logClick)
	data.GET("/heartrate/minute", s.getHeartRateByDate)
	data.GET("/daily_data/sleep-week-back", s.getSleepWeekBack)
	data.GET("/goals/:user_id", s.listGoals)
	data.GET("/goals/:user_id/:metric", s.getGoal)
	data.POST("/goals/:user_id/:metric", s.upsertGoal)
	data.POST("/weight_log/update_weight/:user_id", s.updateWeight)
	data.GET("/conversation_subjects/:user_id", s.listConversationSubjects)
	data.GET("/conversation_messages/:conversation_id", s.listConversationMessages)
	data.GET("/:dataset", s.getDataset)
	data.GET("/:dataset/by-date", s.getDatasetByDate)
	data.GET("/:dataset/week-back", s.getDatasetWeekBack)

	chat := echoServer.Group("/chat", chatMiddleware...)
	chat.GET("", s.chatRoot)
	chat.GET("/", s.chatRoot)
	chat.POST("/chat", s.chat)
	chat.GET("/recommendations", s.getRecommendations)
	chat.GET("/new_goal", s.getNewGoal)
	chat.GET("/suggested_questions", s.getSuggestedQuestions)
	chat.GET("/detail", s.getDetail)
}

// acquirePipeline bounds concurrent pipeline runs. The returned func releases the slot.
func (s *APIV1Service) acquirePipeline(ctx context.Context) (func(), error) {
	if err := s.pipelineSemaphore.Acquire(ctx, 1); err != nil {
		return nil, echo.NewHTTPError(http.StatusServiceUnavailable, "server is busy, please try again")
	}
	return func() { s.pipelineSemaphore.Release(1) }, nil
}

func (s *APIV1Service) lookupProfile(userID string) (*store.UserProfile, error) {
	if s.Profiles == nil {
		return nil, errorJSON(http.StatusNotFound, "User not found")
	}
	p, ok := s.Profiles.Get(userID)
	if !ok {
		return nil, errorJSON(http.StatusNotFound, "User not found")
	}
	return p, nil
}

func errorJSON(code int, message string) *echo.HTTPError {
	return echo.NewHTTPError(code, map[string]string{"error": message})
}

func messageJSON(code int, message string) *echo.HTTPError {
	return echo.NewHTTPError(code, map[string]string{"message": message})
}

func detailJSON(code int, detail string) *echo.HTTPError {
	return echo.NewHTTPError(code, map[string]string{"detail": detail})
}
