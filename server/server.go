package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/hrygo/fitcoach/ai"
	agent "github.com/hrygo/fitcoach/ai/agents"
	"github.com/hrygo/fitcoach/ai/agents/queryagent"
	"github.com/hrygo/fitcoach/ai/agents/tools"
	"github.com/hrygo/fitcoach/ai/core/llm"
	"github.com/hrygo/fitcoach/ai/format"
	"github.com/hrygo/fitcoach/ai/metrics"
	"github.com/hrygo/fitcoach/ai/pipeline"
	"github.com/hrygo/fitcoach/ai/prompts"
	"github.com/hrygo/fitcoach/ai/routing"
	"github.com/hrygo/fitcoach/ai/services/persist"
	"github.com/hrygo/fitcoach/internal/profile"
	"github.com/hrygo/fitcoach/server/middleware"
	apiv1 "github.com/hrygo/fitcoach/server/router/api/v1"
	"github.com/hrygo/fitcoach/store"
	"github.com/hrygo/fitcoach/store/csvlog"
)

const (
	shutdownTimeout      = 10 * time.Second
	queueDrainTimeout    = 30 * time.Second
	toolCacheEntries     = 100
	gzipCompressionLevel = 5
)

type Server struct {
	Profile *profile.Profile
	Store   *store.Store

	echoServer *echo.Echo
	metrics    *metrics.PrometheusExporter
	queue      *persist.Queue
	llm        llm.Service
	logger     *slog.Logger
}

func NewServer(ctx context.Context, profile *profile.Profile, store *store.Store) (*Server, error) {
	s := &Server{
		Profile: profile,
		Store:   store,
		metrics: metrics.NewPrometheusExporter(metrics.DefaultConfig()),
		logger:  slog.Default(),
	}

	echoServer := echo.New()
	echoServer.Debug = profile.IsDev()
	echoServer.HideBanner = true
	echoServer.HidePort = true
	echoServer.Use(echomiddleware.Recover())
	echoServer.Use(echomiddleware.RequestIDWithConfig(echomiddleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	echoServer.Use(echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomiddleware.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency_ms", v.Latency.Milliseconds(),
				"request_id", v.RequestID,
			}
			if v.Error != nil {
				s.logger.WarnContext(c.Request().Context(), "http: request failed", append(attrs, "error", v.Error)...)
				return nil
			}
			s.logger.DebugContext(c.Request().Context(), "http: request", attrs...)
			return nil
		},
	}))
	// The mobile client and its web preview call from any origin.
	echoServer.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"*"},
	}))
	echoServer.Use(echomiddleware.GzipWithConfig(echomiddleware.GzipConfig{
		Level: gzipCompressionLevel,
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/metrics"
		},
	}))
	if profile.RequestTimeout > 0 {
		echoServer.Use(echomiddleware.ContextTimeoutWithConfig(echomiddleware.ContextTimeoutConfig{
			Timeout: time.Duration(profile.RequestTimeout) * time.Second,
		}))
	}
	s.echoServer = echoServer

	echoServer.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok", "version": profile.Version})
	})
	echoServer.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))

	apiV1Service, err := s.newAPIV1Service(ctx)
	if err != nil {
		return nil, err
	}
	apiV1Service.RegisterGateway(ctx, echoServer, middleware.RateLimit(profile.RateLimitPerMinute))

	return s, nil
}

// newAPIV1Service builds the conversation log, the profile table, the persist
// queue and, when a model is configured, both pipelines.
func (s *Server) newAPIV1Service(ctx context.Context) (*apiv1.APIV1Service, error) {
	conversations := csvlog.NewConversationLog(s.Profile.MessagesPath(), s.Profile.SubjectsPath(), s.logger)
	if err := conversations.Load(); err != nil {
		return nil, errors.Wrap(err, "failed to load conversation log")
	}
	profiles := csvlog.NewProfileTable(s.Profile.ProfilesPath(), s.logger)
	if err := profiles.Reload(); err != nil {
		return nil, errors.Wrap(err, "failed to load user profiles")
	}
	s.queue = persist.NewQueue(persist.Config{
		Size:        s.Profile.QueueSize,
		Workers:     s.Profile.QueueWorkers,
		TaskTimeout: time.Duration(s.Profile.TaskTimeout) * time.Second,
		Logger:      s.logger,
		Metrics:     s.metrics,
	})

	service := apiv1.NewAPIV1Service(s.Profile, s.Store)
	service.SetLogger(s.logger)
	service.Conversations = conversations
	service.Profiles = profiles
	service.Clicks = csvlog.NewClickLog(s.Profile.ClickLogDir())
	service.Queue = s.queue

	if !s.Profile.IsAIEnabled() {
		s.logger.Warn("no LLM configured, chat endpoints are disabled")
		return service, nil
	}
	if err := s.wireAI(ctx, service, conversations); err != nil {
		return nil, err
	}
	return service, nil
}

func (s *Server) wireAI(ctx context.Context, service *apiv1.APIV1Service, history pipeline.HistoryReader) error {
	promptSet, err := prompts.Load(s.Profile.PromptDir)
	if err != nil {
		return errors.Wrap(err, "failed to load prompts")
	}

	schema := store.NewSchemaCache(s.Store.GetDriver())
	if err := schema.Reload(ctx); err != nil {
		return errors.Wrap(err, "failed to read dataset schema")
	}
	today := s.Profile.Today().Format(profile.ReferenceDateLayout)
	operatingContext := func() string {
		return promptSet.PolicyPrompt(schema.Describe(), today)
	}

	llmService, err := llm.NewService(&llm.Config{
		Provider:    s.Profile.LLMProvider,
		Model:       s.Profile.LLMModel,
		APIKey:      s.Profile.LLMAPIKey,
		BaseURL:     s.Profile.LLMBaseURL,
		Temperature: float32(s.Profile.LLMTemperature),
		Timeout:     s.Profile.LLMTimeout,
	})
	if err != nil {
		return errors.Wrap(err, "failed to create llm service")
	}
	s.llm = llmService

	toolCache := tools.NewToolResultCache(toolCacheEntries)
	toolCacheTTL := time.Duration(s.Profile.ToolCacheTTL) * time.Second
	toolCache.SetTTL(tools.ListTablesToolName, toolCacheTTL)
	toolCache.SetTTL(tools.SchemaToolName, toolCacheTTL)
	sqlTools := tools.NewSQLTools(s.Store.GetDriver(), toolCache)
	queryAgent, err := queryagent.New(llmService, sqlTools, queryagent.Config{
		StepLimit:         s.Profile.AgentStepLimit,
		FinalAnswerPrompt: promptSet.FinalAnswer,
		Logger:            s.logger,
	})
	if err != nil {
		return errors.Wrap(err, "failed to create query agent")
	}

	judge := format.NewJudge(llmService, promptSet.Judge, format.NewChecker(schema.Vocabulary()))
	chat, err := pipeline.NewChatPipeline(pipeline.ChatConfig{
		LLM:              llmService,
		Classifier:       routing.NewClassifier(llmService, promptSet.Classifier),
		Agent:            queryAgent,
		Validator:        pipeline.NewValidator(judge, s.metrics),
		History:          history,
		Templates:        promptSet,
		OperatingContext: operatingContext,
		Metrics:          s.metrics,
		Logger:           s.logger,
	})
	if err != nil {
		return err
	}
	tasks, err := pipeline.NewTaskPipeline(pipeline.TaskConfig{
		Templates:        promptSet,
		Agent:            queryAgent,
		OperatingContext: operatingContext,
		Model:            llmService.Model(),
		Metrics:          s.metrics,
		Logger:           s.logger,
	})
	if err != nil {
		return err
	}

	service.Chat = chat
	service.Tasks = tasks
	service.Titles = ai.NewTitleGenerator(llmService, promptSet.Title)

	s.logger.Info("AI pipelines ready",
		"model", llmService.Model(),
		"tools", toolNames(sqlTools),
		"tables", len(schema.TableNames()),
		"step_limit", s.Profile.AgentStepLimit)
	return nil
}

func toolNames(list []agent.ToolWithSchema) []string {
	names := make([]string, 0, len(list))
	for _, t := range list {
		names = append(names, t.Name())
	}
	return names
}

// Handler exposes the router, e.g. for tests.
func (s *Server) Handler() http.Handler {
	return s.echoServer
}

func (s *Server) Start(ctx context.Context) error {
	address := fmt.Sprintf("%s:%d", s.Profile.Addr, s.Profile.Port)
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return errors.Wrap(err, "failed to listen")
	}
	s.echoServer.Listener = listener

	if s.llm != nil {
		go s.llm.Warmup(ctx)
	}
	go func() {
		if err := s.echoServer.Start(address); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("failed to start echo server", "error", err)
		}
	}()
	return nil
}

// Shutdown stops the HTTP server, drains the persist queue and closes the store.
func (s *Server) Shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	slog.Info("server shutting down")
	if err := s.echoServer.Shutdown(ctx); err != nil {
		slog.Error("failed to shutdown server", "error", err)
	}
	if s.queue != nil {
		if err := s.queue.Close(queueDrainTimeout); err != nil {
			slog.Error("failed to drain persist queue", "error", err)
		}
	}
	if err := s.Store.Close(); err != nil {
		slog.Error("failed to close database", "error", err)
	}
	slog.Info("server stopped properly")
}
