package v1

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/hrygo/fitcoach/store/csvlog"
)

func (s *APIV1Service) logClick(c echo.Context) error {
	var event csvlog.ClickEvent
	if err := c.Bind(&event); err != nil {
		return detailJSON(http.StatusBadRequest, "Missing required fields")
	}
	if strings.TrimSpace(event.SessionID) == "" || strings.TrimSpace(event.EventType) == "" || strings.TrimSpace(event.Component) == "" {
		return detailJSON(http.StatusBadRequest, "Missing required fields")
	}
	if s.Clicks == nil {
		return detailJSON(http.StatusServiceUnavailable, "click logging is disabled")
	}

	if err := s.Clicks.Log(c.Request().Context(), event); err != nil {
		if errors.Is(err, csvlog.ErrInvalidSession) {
			return detailJSON(http.StatusBadRequest, "Invalid session_id")
		}
		return errors.Wrap(err, "failed to log click")
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Click logged successfully"})
}
