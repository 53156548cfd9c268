package v1

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/hrygo/fitcoach/store"
)

const defaultSubjectLimit = 5

type listConversationSubjectsResponse struct {
	Conversations []*store.ConversationSubject `json:"conversations"`
	Total         int                          `json:"total"`
	Offset        int                          `json:"offset"`
	Limit         int                          `json:"limit"`
}

func (s *APIV1Service) listConversationSubjects(c echo.Context) error {
	userID := c.Param("user_id")
	offset, limit := 0, defaultSubjectLimit
	if raw := c.QueryParam("offset"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			return detailJSON(http.StatusBadRequest, "offset must be a non-negative integer")
		}
		offset = v
	}
	if raw := c.QueryParam("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			return detailJSON(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = v
	}
	if s.Conversations == nil {
		return messageJSON(http.StatusNotFound, fmt.Sprintf("No conversation subjects found for user ID %s", userID))
	}

	list, total, err := s.Conversations.ListSubjects(&store.FindConversationSubject{
		UserID: userID,
		Offset: offset,
		Limit:  limit,
	})
	if err != nil {
		return errors.Wrap(err, "failed to list conversation subjects")
	}
	if total == 0 {
		return messageJSON(http.StatusNotFound, fmt.Sprintf("No conversation subjects found for user ID %s", userID))
	}
	if list == nil {
		list = []*store.ConversationSubject{}
	}
	return c.JSON(http.StatusOK, listConversationSubjectsResponse{
		Conversations: list,
		Total:         total,
		Offset:        offset,
		Limit:         limit,
	})
}

func (s *APIV1Service) listConversationMessages(c echo.Context) error {
	conversationID := c.Param("conversation_id")
	notFound := messageJSON(http.StatusNotFound, fmt.Sprintf("No conversation messages found for conversation ID %s", conversationID))
	if s.Conversations == nil {
		return notFound
	}

	list, err := s.Conversations.ListMessages(conversationID)
	if err != nil {
		return errors.Wrap(err, "failed to list conversation messages")
	}
	if len(list) == 0 {
		return notFound
	}
	return c.JSON(http.StatusOK, list)
}
