package v1

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/fitcoach/ai/pipeline"
	"github.com/hrygo/fitcoach/ai/services/persist"
	"github.com/hrygo/fitcoach/store"
)

// chatFailureMessage is returned in place of an answer when the turn fails.
const chatFailureMessage = "An error occurred while processing your request. Please try again."

type chatRequest struct {
	UserID         string `json:"user_id"`
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id,omitempty"`
}

type chatResponse struct {
	Response       string `json:"response"`
	ConversationID string `json:"conversation_id"`
}

func (s *APIV1Service) chatRoot(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"message": "Welcome to the Fitness Chatbot part"})
}

// chat answers one user message. Model failures still return 200 with a
// generic answer so the client keeps the conversation id.
func (s *APIV1Service) chat(c echo.Context) error {
	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(http.StatusBadRequest, "invalid request body")
	}
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" || strings.TrimSpace(req.Message) == "" {
		return errorJSON(http.StatusBadRequest, "user_id and message are required")
	}
	userProfile, err := s.lookupProfile(req.UserID)
	if err != nil {
		return err
	}
	if s.Chat == nil {
		return errorJSON(http.StatusServiceUnavailable, "AI features are disabled")
	}

	isNew := req.ConversationID == ""
	conversationID := req.ConversationID
	if isNew {
		conversationID = fmt.Sprintf("%s_%d", req.UserID, s.now().Unix())
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()
	release, err := s.acquirePipeline(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "chat: no pipeline slot", "conversation_id", conversationID, "error", ctx.Err())
		return c.JSON(http.StatusServiceUnavailable, chatResponse{Response: chatFailureMessage, ConversationID: conversationID})
	}
	defer release()

	question := chatQuestion(s.Profile.Today().Format(chatDateLayout), userProfile, req.Message)
	state := &pipeline.ChatTurnState{
		UserID:         req.UserID,
		RawMessage:     question,
		ConversationID: conversationID,
	}
	if err := s.Chat.Run(ctx, state); err != nil {
		s.logger.ErrorContext(ctx, "chat: turn failed",
			"conversation_id", conversationID,
			"user_id", req.UserID,
			"trace", state.Trace,
			"error", err)
		return c.JSON(http.StatusOK, chatResponse{Response: chatFailureMessage, ConversationID: conversationID})
	}

	s.persistTurn(req.UserID, conversationID, question, state.Answer, isNew)
	return c.JSON(http.StatusOK, chatResponse{Response: state.Answer, ConversationID: conversationID})
}

// persistTurn queues the writes of a finished turn. New conversations also get
// a generated title.
func (s *APIV1Service) persistTurn(userID, conversationID, question, answer string, isNew bool) {
	if s.Queue == nil || s.Conversations == nil {
		return
	}
	now := s.now()

	if isNew && s.Titles != nil {
		s.Queue.Enqueue(&persist.Task{
			Kind:           "subject",
			Key:            "subject:" + conversationID,
			ConversationID: conversationID,
			Run: func(ctx context.Context) error {
				title, err := s.Titles.Generate(ctx, question, answer)
				if err != nil {
					return fmt.Errorf("generate title: %w", err)
				}
				return s.Conversations.AppendSubject(ctx, &store.ConversationSubject{
					ConversationID: conversationID,
					UserID:         userID,
					Title:          title,
					CreatedAt:      now,
				})
			},
		})
	}

	s.Queue.Enqueue(&persist.Task{
		Kind:           "messages",
		ConversationID: conversationID,
		Run: func(ctx context.Context) error {
			if err := s.Conversations.AppendMessage(ctx, &store.ConversationMessage{
				ConversationID: conversationID,
				UserID:         userID,
				Role:           store.RoleUser,
				Message:        question,
				CreatedAt:      now,
			}); err != nil {
				return fmt.Errorf("append user message: %w", err)
			}
			return s.Conversations.AppendMessage(ctx, &store.ConversationMessage{
				ConversationID: conversationID,
				UserID:         userID,
				Role:           store.RoleAssistant,
				Message:        answer,
				CreatedAt:      s.now(),
			})
		},
	})
}

// requestContext bounds a pipeline run by the configured request timeout.
func (s *APIV1Service) requestContext(c echo.Context) (context.Context, context.CancelFunc) {
	ctx := c.Request().Context()
	if s.Profile != nil && s.Profile.RequestTimeout > 0 {
		return context.WithTimeout(ctx, time.Duration(s.Profile.RequestTimeout)*time.Second)
	}
	return context.WithCancel(ctx)
}
